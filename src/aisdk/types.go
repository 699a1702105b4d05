// Package aisdk defines the chat types shared by providers, the session store
// and the streaming engine.
package aisdk

import (
	"strings"
)

// Role identifies who authored a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Mode selects how the backend treats a conversation. In ask mode the
// assistant answers and may propose chain changes; in agent mode it edits the
// chain itself through tools and reports progress.
type Mode string

const (
	ModeAsk   Mode = "ask"
	ModeAgent Mode = "agent"
)

// DefaultMode is used for sessions created without an explicit mode.
const DefaultMode = ModeAsk

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeAsk || m == ModeAgent
}

// ChatMessage is a single message in a session. ID is assigned the first time
// the message is persisted.
type ChatMessage struct {
	ID      string `json:"id,omitempty"`
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Usage is token accounting reported by the backend at the end of a turn.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// ChatRequest is the body sent to the chat endpoints.
type ChatRequest struct {
	Messages       []ChatMessage  `json:"messages"`
	ConversationID string         `json:"conversationId,omitempty"`
	ModelID        string         `json:"modelId,omitempty"`
	Temperature    *float64       `json:"temperature,omitempty"`
	MaxTokens      *int           `json:"maxTokens,omitempty"`
	Context        map[string]any `json:"context,omitempty"`
	AttachmentURLs []string       `json:"attachmentUrls,omitempty"`
}

// ChatResponse is the final result of a non-streaming or progress call.
type ChatResponse struct {
	Messages       []ChatMessage `json:"messages"`
	Usage          *Usage        `json:"usage,omitempty"`
	FinishReason   string        `json:"finishReason,omitempty"`
	ConversationID string        `json:"conversationId,omitempty"`
}

// Content returns the content of the last assistant message in the response.
func (r *ChatResponse) Content() string {
	if r == nil {
		return ""
	}
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == RoleAssistant {
			return r.Messages[i].Content
		}
	}
	return ""
}

// UploadResult is returned by providers that accept file uploads.
type UploadResult struct {
	URL string `json:"url"`
}

// Capabilities describes what a provider supports beyond plain chat.
type Capabilities struct {
	SupportsStreaming bool `json:"supportsStreaming"`
	SupportsTools     bool `json:"supportsTools"`
}

// LastUserMessage returns the content of the last user message, or "".
func LastUserMessage(messages []ChatMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			return messages[i].Content
		}
	}
	return ""
}

// CloneMessages returns a copy of messages that shares no backing array.
func CloneMessages(messages []ChatMessage) []ChatMessage {
	if messages == nil {
		return nil
	}
	out := make([]ChatMessage, len(messages))
	copy(out, messages)
	return out
}

// Title derives a short session title from a user prompt.
func Title(prompt string, max int) string {
	title := strings.Join(strings.Fields(prompt), " ")
	r := []rune(title)
	if len(r) <= max {
		return title
	}
	return strings.TrimSpace(string(r[:max-1])) + "…"
}
