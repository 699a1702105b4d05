package aiprovider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/elee1766/chainpilot/src/aisdk"
)

const MockProviderID = "mock"

var (
	_ aisdk.Provider        = (*MockProvider)(nil)
	_ aisdk.Streamer        = (*MockProvider)(nil)
	_ aisdk.ProgressChatter = (*MockProvider)(nil)
	_ aisdk.Uploader        = (*MockProvider)(nil)
)

// MockProvider returns deterministic canned replies. It is used when no
// service is configured for offline use and in tests.
type MockProvider struct {
	// ChunkDelay is slept between streamed chunks.
	ChunkDelay time.Duration
}

// NewMockProvider creates a mock provider.
func NewMockProvider() *MockProvider {
	return &MockProvider{}
}

func (m *MockProvider) ID() string          { return MockProviderID }
func (m *MockProvider) DisplayName() string { return "Mock assistant" }

func (m *MockProvider) Capabilities() aisdk.Capabilities {
	return aisdk.Capabilities{SupportsStreaming: true, SupportsTools: false}
}

// Chat collects the streamed reply so both transports answer the same.
func (m *MockProvider) Chat(ctx context.Context, req *aisdk.ChatRequest) (*aisdk.ChatResponse, error) {
	return aisdk.AggregateStream(ctx, m, req)
}

func (m *MockProvider) StreamChat(ctx context.Context, req *aisdk.ChatRequest, onChunk aisdk.ChunkHandler) error {
	for _, step := range m.progress(req) {
		if err := m.pause(ctx); err != nil {
			onChunk(aisdk.ErrorChunk{Message: aisdk.AbortedMessage, Err: err})
			return err
		}
		onChunk(aisdk.ProgressChunk{Text: step})
	}

	resp := m.response(req)
	for _, word := range strings.SplitAfter(resp.Content(), " ") {
		if err := m.pause(ctx); err != nil {
			onChunk(aisdk.ErrorChunk{Message: aisdk.AbortedMessage, Err: err})
			return err
		}
		onChunk(aisdk.DeltaChunk{Content: word})
	}
	onChunk(aisdk.DoneChunk{Usage: resp.Usage, FinishReason: resp.FinishReason, ConversationID: resp.ConversationID})
	return nil
}

func (m *MockProvider) ChatWithProgress(ctx context.Context, req *aisdk.ChatRequest, onChunk aisdk.ChunkHandler) (*aisdk.ChatResponse, error) {
	for _, step := range m.progress(req) {
		if err := m.pause(ctx); err != nil {
			return nil, err
		}
		onChunk(aisdk.ProgressChunk{Text: step})
	}
	return m.response(req), nil
}

func (m *MockProvider) UploadFile(ctx context.Context, name string, r io.Reader, sessionID string) (*aisdk.UploadResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n, err := io.Copy(io.Discard, io.LimitReader(r, MaxUploadSize+1))
	if err != nil {
		return nil, &RequestError{Op: "read attachment", Err: err}
	}
	if n > MaxUploadSize {
		return nil, fmt.Errorf("%s: %w", name, ErrFileTooLarge)
	}
	u := url.URL{Scheme: "mock", Host: "uploads", Path: "/" + sessionID + "/" + name}
	return &aisdk.UploadResult{URL: u.String()}, nil
}

func (m *MockProvider) pause(ctx context.Context) error {
	if m.ChunkDelay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(m.ChunkDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (m *MockProvider) progress(req *aisdk.ChatRequest) []string {
	if mode, _ := req.Context["mode"].(string); mode != string(aisdk.ModeAgent) {
		return nil
	}
	return []string{"Analyzing the chain"}
}

func (m *MockProvider) response(req *aisdk.ChatRequest) *aisdk.ChatResponse {
	prompt := aisdk.LastUserMessage(req.Messages)
	content := "Mock reply: " + prompt
	if strings.Contains(strings.ToLower(prompt), "propos") {
		content = m.proposalReply(req)
	}

	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = "mock-conversation"
	}
	return &aisdk.ChatResponse{
		Messages:       []aisdk.ChatMessage{{Role: aisdk.RoleAssistant, Content: content}},
		Usage:          EstimateUsage(req.Messages, content),
		FinishReason:   "stop",
		ConversationID: conversationID,
	}
}

func (m *MockProvider) proposalReply(req *aisdk.ChatRequest) string {
	chainID, _ := req.Context["chainId"].(string)
	if chainID == "" {
		chainID = "chain-1"
	}
	proposal := map[string]any{
		"type":    "chain-modification-proposal",
		"chainId": chainID,
		"summary": "Add a logging script after the trigger",
		"changes": []map[string]any{
			{
				"action":      "createElement",
				"elementType": "script",
				"name":        "Log request",
				"properties":  map[string]any{"script": "log(body)"},
			},
		},
	}
	b, _ := json.MarshalIndent(proposal, "", "  ")
	return "Here is what I suggest:\n\n```json\n" + string(b) + "\n```\n\nApply it if it looks right."
}
