package aiprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/elee1766/chainpilot/src/aisdk"
)

const (
	HTTPProviderID = "http"

	chatPath         = "/api/chat"
	streamPath       = "/api/chat/stream"
	withProgressPath = "/api/chat/with-progress"
	uploadPath       = "/api/upload"

	doneSentinel = "[DONE]"
)

var (
	_ aisdk.Provider        = (*HTTPProvider)(nil)
	_ aisdk.Streamer        = (*HTTPProvider)(nil)
	_ aisdk.ProgressChatter = (*HTTPProvider)(nil)
	_ aisdk.Uploader        = (*HTTPProvider)(nil)
)

// HTTPProvider talks to the remote chat service.
type HTTPProvider struct {
	config     Config
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
}

// NewHTTPProvider creates a provider for the service at config.ServiceURL.
func NewHTTPProvider(config Config) (*HTTPProvider, error) {
	base := strings.TrimRight(strings.TrimSpace(config.ServiceURL), "/")
	if base == "" {
		return nil, ErrNotConfigured
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, &RequestError{Op: "parse service url", Err: err}
	}
	if config.Timeout <= 0 {
		config.Timeout = ChatTimeout
	}

	// streams can outlive any fixed client timeout; deadlines come from contexts
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "chat_provider", "provider", HTTPProviderID)

	return &HTTPProvider{
		config:     config,
		httpClient: httpClient,
		logger:     logger,
		baseURL:    base,
	}, nil
}

func (p *HTTPProvider) ID() string          { return HTTPProviderID }
func (p *HTTPProvider) DisplayName() string { return "Chain Assistant" }

func (p *HTTPProvider) Capabilities() aisdk.Capabilities {
	return aisdk.Capabilities{SupportsStreaming: true, SupportsTools: true}
}

// Chat sends the whole request and waits for the final response.
func (p *HTTPProvider) Chat(ctx context.Context, req *aisdk.ChatRequest) (*aisdk.ChatResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	logger := p.logger.With("method", "Chat", "messages", len(req.Messages))
	logger.Debug("sending chat request")

	resp, err := p.postJSON(ctx, chatPath, p.prepare(req), "application/json")
	if err != nil {
		logger.Error("chat request failed", "error", err)
		return nil, err
	}
	defer resp.Body.Close()

	var result aisdk.ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	logger.Info("chat request successful", "finish_reason", result.FinishReason)
	return &result, nil
}

// StreamChat posts the request and delivers chunks as they arrive. Any
// failure ends the stream with one ErrorChunk; the same error is returned.
func (p *HTTPProvider) StreamChat(ctx context.Context, req *aisdk.ChatRequest, onChunk aisdk.ChunkHandler) error {
	token := aisdk.NewOwnedToken(ctx)
	defer token.Release()

	err := p.streamChat(token.Context(), req, onChunk)
	if err != nil {
		onChunk(errorChunk(token.Context(), err))
	}
	return err
}

func (p *HTTPProvider) streamChat(ctx context.Context, req *aisdk.ChatRequest, onChunk aisdk.ChunkHandler) error {
	logger := p.logger.With("method", "StreamChat", "messages", len(req.Messages))
	logger.Debug("opening stream")

	resp, err := p.postJSON(ctx, streamPath, p.prepare(req), "text/event-stream")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	reader := newSSEReader(resp.Body)
	for {
		data, ok, err := reader.Next()
		if err != nil {
			return p.readError(ctx, err)
		}
		if !ok {
			return ErrStreamClosed
		}
		if data == doneSentinel {
			return ErrStreamClosed
		}

		chunk, err := aisdk.DecodeChunk([]byte(data))
		if err != nil {
			logger.Warn("malformed stream payload", "error", err)
			onChunk(aisdk.ErrorChunk{Message: "malformed stream payload: " + err.Error(), Err: err, Malformed: true})
			continue
		}

		onChunk(chunk)
		switch c := chunk.(type) {
		case aisdk.DoneChunk:
			logger.Debug("stream finished", "finish_reason", c.FinishReason)
			return nil
		case aisdk.ErrorChunk:
			// the service already reported its failure as a chunk
			return nil
		case aisdk.DeltaChunk, aisdk.ProgressChunk:
		}
	}
}

// progressEvent is the wire form of the with-progress endpoint.
type progressEvent struct {
	Type           aisdk.ChunkType     `json:"type"`
	Content        string              `json:"content,omitempty"`
	Message        string              `json:"message,omitempty"`
	Error          string              `json:"error,omitempty"`
	Messages       []aisdk.ChatMessage `json:"messages,omitempty"`
	Usage          *aisdk.Usage        `json:"usage,omitempty"`
	FinishReason   string              `json:"finishReason,omitempty"`
	ConversationID string              `json:"conversationId,omitempty"`
}

// ChatWithProgress forwards progress lines while the service works and
// returns the final response carried by the done event.
func (p *HTTPProvider) ChatWithProgress(ctx context.Context, req *aisdk.ChatRequest, onChunk aisdk.ChunkHandler) (*aisdk.ChatResponse, error) {
	token := aisdk.NewOwnedToken(ctx)
	defer token.Release()
	ctx = token.Context()

	logger := p.logger.With("method", "ChatWithProgress", "messages", len(req.Messages))

	resp, err := p.postJSON(ctx, withProgressPath, p.prepare(req), "text/event-stream")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	reader := newSSEReader(resp.Body)
	for {
		data, ok, err := reader.Next()
		if err != nil {
			return nil, p.readError(ctx, err)
		}
		if !ok || data == doneSentinel {
			return nil, ErrStreamClosed
		}

		var ev progressEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			logger.Warn("malformed progress payload", "error", err)
			continue
		}

		switch ev.Type {
		case aisdk.ChunkProgress:
			text := ev.Content
			if text == "" {
				text = ev.Message
			}
			onChunk(aisdk.ProgressChunk{Text: text})
		case aisdk.ChunkDone:
			return &aisdk.ChatResponse{
				Messages:       ev.Messages,
				Usage:          ev.Usage,
				FinishReason:   ev.FinishReason,
				ConversationID: ev.ConversationID,
			}, nil
		case aisdk.ChunkError:
			msg := ev.Error
			if msg == "" {
				msg = ev.Message
			}
			return nil, &StreamError{Message: msg}
		default:
			logger.Debug("ignoring progress event", "type", ev.Type)
		}
	}
}

// UploadFile sends an attachment and returns the URL the service stored it at.
func (p *HTTPProvider) UploadFile(ctx context.Context, name string, r io.Reader, sessionID string) (*aisdk.UploadResult, error) {
	ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	content, err := io.ReadAll(io.LimitReader(r, MaxUploadSize+1))
	if err != nil {
		return nil, &RequestError{Op: "read attachment", Err: err}
	}
	if len(content) > MaxUploadSize {
		return nil, fmt.Errorf("%s: %w", name, ErrFileTooLarge)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return nil, &RequestError{Op: "encode attachment", Err: err}
	}
	if _, err := part.Write(content); err != nil {
		return nil, &RequestError{Op: "encode attachment", Err: err}
	}
	if sessionID != "" {
		if err := mw.WriteField("sessionId", sessionID); err != nil {
			return nil, &RequestError{Op: "encode attachment", Err: err}
		}
	}
	if err := mw.Close(); err != nil {
		return nil, &RequestError{Op: "encode attachment", Err: err}
	}

	httpReq, err := p.newRequest(ctx, http.MethodPost, uploadPath, &body, mw.FormDataContentType())
	if err != nil {
		return nil, err
	}
	resp, err := p.do(ctx, httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result aisdk.UploadResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode upload response: %w", err)
	}
	p.logger.Info("attachment uploaded", "name", name, "bytes", len(content))
	return &result, nil
}

// prepare fills in configured defaults without touching the caller's request.
func (p *HTTPProvider) prepare(req *aisdk.ChatRequest) *aisdk.ChatRequest {
	out := *req
	if out.ModelID == "" {
		out.ModelID = p.config.ModelID
	}
	if out.Temperature == nil {
		out.Temperature = p.config.Temperature
	}
	if out.MaxTokens == nil {
		out.MaxTokens = p.config.MaxTokens
	}
	if out.Messages == nil {
		out.Messages = []aisdk.ChatMessage{}
	}
	return &out
}

func (p *HTTPProvider) postJSON(ctx context.Context, path string, payload any, accept string) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &RequestError{Op: "encode request", Err: err}
	}
	req, err := p.newRequest(ctx, http.MethodPost, path, bytes.NewReader(body), "application/json")
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", accept)
	return p.do(ctx, req)
}

// newRequest creates a new HTTP request with the appropriate headers.
func (p *HTTPProvider) newRequest(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, body)
	if err != nil {
		return nil, &RequestError{Op: "build request", Err: err}
	}
	req.Header.Set("Content-Type", contentType)
	if p.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.config.APIKey)
	}
	return req, nil
}

// do sends req and turns every non-2xx answer into an *APIError.
func (p *HTTPProvider) do(ctx context.Context, req *http.Request) (*http.Response, error) {
	resp, err := p.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &UnreachableError{URL: req.URL.String(), Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, p.handleError(resp)
	}
	return resp, nil
}

// handleError processes error responses from the service.
func (p *HTTPProvider) handleError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		RequestID:  resp.Header.Get("X-Request-ID"),
		RetryAfter: resp.Header.Get("Retry-After"),
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil {
		apiErr.Message = errResp.Error
		if apiErr.Message == "" {
			apiErr.Message = errResp.Message
		}
		apiErr.Code = errResp.Code
	} else {
		apiErr.Message = strings.TrimSpace(string(body))
	}

	p.logger.Warn("received error response", "status_code", resp.StatusCode, "request_id", apiErr.RequestID)
	return apiErr
}

func (p *HTTPProvider) readError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return &UnreachableError{URL: p.baseURL, Err: err}
}

func errorChunk(ctx context.Context, err error) aisdk.ErrorChunk {
	if errors.Is(err, context.Canceled) || ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled) {
		return aisdk.ErrorChunk{Message: aisdk.AbortedMessage, Err: context.Canceled}
	}
	return aisdk.ErrorChunk{Message: UserMessage(err), Err: err}
}
