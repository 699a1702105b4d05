package aisdk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ChunkType is the wire discriminator of a stream chunk.
type ChunkType string

const (
	ChunkDelta    ChunkType = "delta"
	ChunkDone     ChunkType = "done"
	ChunkError    ChunkType = "error"
	ChunkProgress ChunkType = "progress"
)

// StreamChunk is one unit of a streamed reply. The set of implementations is
// closed: DeltaChunk, DoneChunk, ErrorChunk and ProgressChunk.
type StreamChunk interface {
	Type() ChunkType
	isStreamChunk()
}

// DeltaChunk carries the next piece of assistant text.
type DeltaChunk struct {
	Content string
}

// DoneChunk terminates a successful stream.
type DoneChunk struct {
	Usage          *Usage
	FinishReason   string
	ConversationID string
}

// ErrorChunk terminates a failed stream. Malformed marks a payload that could
// not be decoded; the stream carries on after it.
type ErrorChunk struct {
	Message   string
	Err       error
	Malformed bool
}

// ProgressChunk reports a step the backend is working on.
type ProgressChunk struct {
	Text string
}

func (DeltaChunk) Type() ChunkType    { return ChunkDelta }
func (DoneChunk) Type() ChunkType     { return ChunkDone }
func (ErrorChunk) Type() ChunkType    { return ChunkError }
func (ProgressChunk) Type() ChunkType { return ChunkProgress }

func (DeltaChunk) isStreamChunk()    {}
func (DoneChunk) isStreamChunk()     {}
func (ErrorChunk) isStreamChunk()    {}
func (ProgressChunk) isStreamChunk() {}

// AbortedMessage is the error text of a request the client cancelled.
const AbortedMessage = "request aborted"

// Canceled reports whether the chunk describes a cancelled request rather
// than a real failure. Server errors only count when they carry the exact
// abort marker.
func (c ErrorChunk) Canceled() bool {
	if c.Err != nil {
		return errors.Is(c.Err, context.Canceled)
	}
	return strings.EqualFold(strings.TrimSpace(c.Message), AbortedMessage)
}

func (c ErrorChunk) asError() error {
	if c.Err != nil {
		return fmt.Errorf("%s: %w", c.Message, c.Err)
	}
	return errors.New(c.Message)
}

// ChunkHandler receives chunks in arrival order.
type ChunkHandler func(chunk StreamChunk)

// wireChunk is the JSON shape of a chunk on the stream endpoints.
type wireChunk struct {
	Type           ChunkType `json:"type"`
	Content        string    `json:"content,omitempty"`
	Message        string    `json:"message,omitempty"`
	Error          string    `json:"error,omitempty"`
	Usage          *Usage    `json:"usage,omitempty"`
	FinishReason   string    `json:"finishReason,omitempty"`
	ConversationID string    `json:"conversationId,omitempty"`
}

// DecodeChunk parses one stream payload.
func DecodeChunk(data []byte) (StreamChunk, error) {
	var w wireChunk
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode chunk: %w", err)
	}
	switch w.Type {
	case ChunkDelta:
		return DeltaChunk{Content: w.Content}, nil
	case ChunkProgress:
		text := w.Content
		if text == "" {
			text = w.Message
		}
		return ProgressChunk{Text: text}, nil
	case ChunkDone:
		return DoneChunk{Usage: w.Usage, FinishReason: w.FinishReason, ConversationID: w.ConversationID}, nil
	case ChunkError:
		msg := w.Error
		if msg == "" {
			msg = w.Message
		}
		if msg == "" {
			msg = "unknown stream error"
		}
		return ErrorChunk{Message: msg}, nil
	default:
		return nil, fmt.Errorf("decode chunk: unknown type %q", w.Type)
	}
}

// EncodeChunk renders a chunk in its wire form.
func EncodeChunk(chunk StreamChunk) ([]byte, error) {
	var w wireChunk
	switch c := chunk.(type) {
	case DeltaChunk:
		w = wireChunk{Type: ChunkDelta, Content: c.Content}
	case ProgressChunk:
		w = wireChunk{Type: ChunkProgress, Content: c.Text}
	case DoneChunk:
		w = wireChunk{Type: ChunkDone, Usage: c.Usage, FinishReason: c.FinishReason, ConversationID: c.ConversationID}
	case ErrorChunk:
		w = wireChunk{Type: ChunkError, Error: c.Message}
	default:
		return nil, fmt.Errorf("encode chunk: unsupported %T", chunk)
	}
	return json.Marshal(w)
}

// StreamAggregator folds a chunk sequence into a ChatResponse.
type StreamAggregator struct {
	content        strings.Builder
	usage          *Usage
	finishReason   string
	conversationID string
	err            error
}

// NewStreamAggregator creates an empty aggregator.
func NewStreamAggregator() *StreamAggregator {
	return &StreamAggregator{}
}

// AddChunk processes one chunk.
func (a *StreamAggregator) AddChunk(chunk StreamChunk) {
	switch c := chunk.(type) {
	case DeltaChunk:
		a.content.WriteString(c.Content)
	case DoneChunk:
		a.usage = c.Usage
		a.finishReason = c.FinishReason
		a.conversationID = c.ConversationID
	case ErrorChunk:
		if !c.Malformed && a.err == nil {
			a.err = c.asError()
		}
	case ProgressChunk:
	}
}

// ToResponse returns the aggregated response or the first stream error.
func (a *StreamAggregator) ToResponse() (*ChatResponse, error) {
	if a.err != nil {
		return nil, a.err
	}
	return &ChatResponse{
		Messages:       []ChatMessage{{Role: RoleAssistant, Content: a.content.String()}},
		Usage:          a.usage,
		FinishReason:   a.finishReason,
		ConversationID: a.conversationID,
	}, nil
}

// AggregateStream runs a streaming call to completion and returns the
// aggregated response.
func AggregateStream(ctx context.Context, s Streamer, req *ChatRequest) (*ChatResponse, error) {
	agg := NewStreamAggregator()
	err := s.StreamChat(ctx, req, agg.AddChunk)
	resp, aggErr := agg.ToResponse()
	if aggErr != nil {
		return nil, aggErr
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}
