package aiprovider

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elee1766/chainpilot/src/aisdk"
)

func TestMockProviderStream(t *testing.T) {
	tests := []struct {
		name         string
		mode         aisdk.Mode
		prompt       string
		wantProgress int
		wantContains string
	}{
		{name: "ask mode echoes", mode: aisdk.ModeAsk, prompt: "hello there", wantContains: "Mock reply: hello there"},
		{name: "agent mode reports progress", mode: aisdk.ModeAgent, prompt: "do it", wantProgress: 1, wantContains: "Mock reply: do it"},
		{name: "proposal request", mode: aisdk.ModeAsk, prompt: "Propose a change", wantContains: `"type": "chain-modification-proposal"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMockProvider()
			req := &aisdk.ChatRequest{
				Messages: []aisdk.ChatMessage{{Role: aisdk.RoleUser, Content: tt.prompt}},
				Context:  map[string]any{"mode": string(tt.mode), "chainId": "c1"},
			}

			var progress int
			agg := aisdk.NewStreamAggregator()
			err := m.StreamChat(context.Background(), req, func(c aisdk.StreamChunk) {
				if _, ok := c.(aisdk.ProgressChunk); ok {
					progress++
				}
				agg.AddChunk(c)
			})
			require.NoError(t, err)
			resp, err := agg.ToResponse()
			require.NoError(t, err)

			assert.Equal(t, tt.wantProgress, progress)
			assert.Contains(t, resp.Content(), tt.wantContains)
			assert.Equal(t, "stop", resp.FinishReason)
			require.NotNil(t, resp.Usage)
			assert.Positive(t, resp.Usage.CompletionTokens)

			direct, err := m.Chat(context.Background(), req)
			require.NoError(t, err)
			assert.Equal(t, direct.Content(), resp.Content(), "streamed and direct replies agree")
		})
	}
}

func TestMockProviderCancelled(t *testing.T) {
	m := NewMockProvider()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var last aisdk.StreamChunk
	err := m.StreamChat(ctx, &aisdk.ChatRequest{}, func(c aisdk.StreamChunk) { last = c })
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, last.(aisdk.ErrorChunk).Canceled())

	_, err = m.Chat(ctx, &aisdk.ChatRequest{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMockProviderUpload(t *testing.T) {
	m := NewMockProvider()
	res, err := m.UploadFile(context.Background(), "a.txt", strings.NewReader("x"), "s1")
	require.NoError(t, err)
	assert.Equal(t, "mock://uploads/s1/a.txt", res.URL)
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry(nil)
	var builds atomic.Int32
	reg.Register("mock", func(ctx context.Context) (aisdk.Provider, error) {
		builds.Add(1)
		return NewMockProvider(), nil
	})
	reg.Register("broken", func(ctx context.Context) (aisdk.Provider, error) {
		return nil, ErrNotConfigured
	})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := reg.Get(context.Background(), "mock")
			assert.NoError(t, err)
			assert.Equal(t, MockProviderID, p.ID())
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), builds.Load())

	reg.Invalidate("mock")
	_, err := reg.Get(context.Background(), "mock")
	require.NoError(t, err)
	assert.Equal(t, int32(2), builds.Load())

	_, err = reg.Get(context.Background(), "broken")
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = reg.Get(context.Background(), "nope")
	assert.Error(t, err)

	assert.Equal(t, []string{"broken", "mock"}, reg.IDs())
}

func TestAPIError(t *testing.T) {
	tests := []struct {
		name        string
		err         *APIError
		kind        error
		isRetryable bool
		isRateLimit bool
		isAuthError bool
	}{
		{name: "bad request", err: &APIError{StatusCode: 400}, kind: ErrInvalidRequest},
		{name: "unauthorized", err: &APIError{StatusCode: 401}, kind: ErrUnauthorized, isAuthError: true},
		{name: "forbidden", err: &APIError{StatusCode: 403}, kind: ErrForbidden, isAuthError: true},
		{name: "rate limited", err: &APIError{StatusCode: 429}, kind: ErrBusy, isRetryable: true, isRateLimit: true},
		{name: "unavailable", err: &APIError{StatusCode: 503}, kind: ErrServiceUnavailable, isRetryable: true},
		{name: "server error", err: &APIError{StatusCode: 500, Message: "oops"}, kind: ErrService, isRetryable: true},
		{name: "other", err: &APIError{StatusCode: 418}, kind: ErrAPI},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.err, tt.kind)
			assert.Equal(t, tt.isRetryable, tt.err.IsRetryable())
			assert.Equal(t, tt.isRateLimit, tt.err.IsRateLimit())
			assert.Equal(t, tt.isAuthError, tt.err.IsAuthError())
			assert.Equal(t, tt.isRetryable, IsRetryable(tt.err))
		})
	}
}

func TestErrorHandler(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{name: "rate limit", err: &APIError{StatusCode: 429}, expected: "rate limited"},
		{name: "auth", err: &APIError{StatusCode: 401}, expected: "authentication failed"},
		{name: "unreachable", err: &UnreachableError{URL: "http://x", Err: errors.New("refused")}, expected: "service unreachable"},
		{name: "request", err: &RequestError{Op: "encode", Err: errors.New("bad")}, expected: "request construction failed"},
		{name: "stream", err: &StreamError{Message: "tool failed"}, expected: "stream reported an error"},
		{name: "plain", err: errors.New("x"), expected: "error occurred"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			h := NewErrorHandler(slog.New(slog.NewTextHandler(&buf, nil)))
			assert.Equal(t, tt.err, h.Handle(tt.err, "op"))
			assert.Contains(t, buf.String(), tt.expected)
		})
	}
	assert.NoError(t, NewErrorHandler(nil).Handle(nil, "op"))
}
