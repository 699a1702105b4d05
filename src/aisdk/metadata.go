package aisdk

import (
	"encoding/json"
	"strings"
)

// MetadataTag prefixes the content of system messages that carry turn
// metadata. Such messages are stored but never rendered or sent back.
const MetadataTag = "[[chat-metadata]]"

// TurnMetadata is recorded at the end of a successful turn.
type TurnMetadata struct {
	Usage        *Usage `json:"usage,omitempty"`
	FinishReason string `json:"finishReason,omitempty"`
}

// NewMetadataMessage encodes md into a tagged system message.
func NewMetadataMessage(md TurnMetadata) (ChatMessage, error) {
	b, err := json.Marshal(md)
	if err != nil {
		return ChatMessage{}, err
	}
	return ChatMessage{Role: RoleSystem, Content: MetadataTag + string(b)}, nil
}

// IsMetadataMessage reports whether m is a tagged metadata message.
func IsMetadataMessage(m ChatMessage) bool {
	return m.Role == RoleSystem && strings.HasPrefix(m.Content, MetadataTag)
}

// ParseMetadata decodes a metadata message.
func ParseMetadata(m ChatMessage) (TurnMetadata, bool) {
	var md TurnMetadata
	if !IsMetadataMessage(m) {
		return md, false
	}
	if err := json.Unmarshal([]byte(strings.TrimPrefix(m.Content, MetadataTag)), &md); err != nil {
		return md, false
	}
	return md, true
}

// WithoutMetadata returns messages with every metadata message removed.
func WithoutMetadata(messages []ChatMessage) []ChatMessage {
	out := make([]ChatMessage, 0, len(messages))
	for _, m := range messages {
		if !IsMetadataMessage(m) {
			out = append(out, m)
		}
	}
	return out
}
