package aiprovider

import (
	"log/slog"
	"net/http"
	"time"
)

const (
	// ChatTimeout bounds a non-streaming chat call.
	ChatTimeout = 10 * time.Minute
	// MaxUploadSize is the largest attachment accepted by UploadFile.
	MaxUploadSize = 10 << 20
)

// Config holds configuration for the HTTP provider
type Config struct {
	ServiceURL  string        // Base URL of the chat service
	APIKey      string        // Optional bearer token
	ModelID     string        // Model requested when the caller sets none
	Temperature *float64      // Default sampling temperature
	MaxTokens   *int          // Default completion budget
	Timeout     time.Duration // Non-streaming call timeout, defaults to ChatTimeout
	HTTPClient  *http.Client  // Optional custom client; must not set a Timeout
	Logger      *slog.Logger  // Logger for debugging
}
