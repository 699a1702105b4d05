package aisdk

import (
	"context"
	"io"
)

// Provider is a chat backend. Only Chat is required; streaming, progress
// reporting and uploads are optional capabilities checked with a type
// assertion.
type Provider interface {
	ID() string
	DisplayName() string
	Capabilities() Capabilities
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
}

// Streamer is implemented by providers that can stream a reply chunk by chunk.
// Failures are delivered as a single ErrorChunk and also returned.
type Streamer interface {
	StreamChat(ctx context.Context, req *ChatRequest, onChunk ChunkHandler) error
}

// ProgressChatter is implemented by providers that report progress lines
// while producing a single final response.
type ProgressChatter interface {
	ChatWithProgress(ctx context.Context, req *ChatRequest, onChunk ChunkHandler) (*ChatResponse, error)
}

// Uploader is implemented by providers that accept attachments.
type Uploader interface {
	UploadFile(ctx context.Context, name string, r io.Reader, sessionID string) (*UploadResult, error)
}
