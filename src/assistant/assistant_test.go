package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elee1766/chainpilot/src/aiprovider"
	"github.com/elee1766/chainpilot/src/aisdk"
	"github.com/elee1766/chainpilot/src/chainapi"
	"github.com/elee1766/chainpilot/src/chatstore"
	"github.com/elee1766/chainpilot/src/events"
	"github.com/elee1766/chainpilot/src/proposal"
	"github.com/elee1766/chainpilot/src/reconcile"
	"github.com/elee1766/chainpilot/src/storage"
)

type eventRecorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *eventRecorder) Send(e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *eventRecorder) Close() error { return nil }

func (r *eventRecorder) has(t events.EventType) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.GetType() == t {
			return true
		}
	}
	return false
}

// recordingProvider answers through Chat only and keeps every request.
type recordingProvider struct {
	mu       sync.Mutex
	requests []*aisdk.ChatRequest
}

func (p *recordingProvider) ID() string                       { return "recording" }
func (p *recordingProvider) DisplayName() string              { return "Recording" }
func (p *recordingProvider) Capabilities() aisdk.Capabilities { return aisdk.Capabilities{} }

func (p *recordingProvider) Chat(ctx context.Context, req *aisdk.ChatRequest) (*aisdk.ChatResponse, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	n := len(p.requests)
	p.mu.Unlock()
	return &aisdk.ChatResponse{
		Messages:       []aisdk.ChatMessage{{Role: aisdk.RoleAssistant, Content: fmt.Sprintf("reply %d", n)}},
		Usage:          &aisdk.Usage{PromptTokens: 1, CompletionTokens: 2, TotalTokens: 3},
		FinishReason:   "stop",
		ConversationID: "conv-1",
	}, nil
}

// blockingProvider streams nothing until released or cancelled.
type blockingProvider struct {
	requests atomic.Int32
	release  chan struct{}
}

func (p *blockingProvider) ID() string          { return "blocking" }
func (p *blockingProvider) DisplayName() string { return "Blocking" }
func (p *blockingProvider) Capabilities() aisdk.Capabilities {
	return aisdk.Capabilities{SupportsStreaming: true}
}

func (p *blockingProvider) Chat(ctx context.Context, req *aisdk.ChatRequest) (*aisdk.ChatResponse, error) {
	return nil, errors.New("not used")
}

func (p *blockingProvider) StreamChat(ctx context.Context, req *aisdk.ChatRequest, onChunk aisdk.ChunkHandler) error {
	p.requests.Add(1)
	select {
	case <-p.release:
		onChunk(aisdk.DeltaChunk{Content: "ok"})
		onChunk(aisdk.DoneChunk{})
		return nil
	case <-ctx.Done():
		onChunk(aisdk.ErrorChunk{Message: "request aborted", Err: ctx.Err()})
		return ctx.Err()
	}
}

// memoryChain is a chain service holding elements in memory.
type memoryChain struct {
	mu       sync.Mutex
	elements []chainapi.Element
	onCreate func()
}

func (c *memoryChain) GetChain(ctx context.Context, chainID string) (*chainapi.Chain, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return &chainapi.Chain{ID: chainID, Elements: append([]chainapi.Element(nil), c.elements...)}, nil
}

func (c *memoryChain) UpdateChain(ctx context.Context, chainID string, patch chainapi.ChainPatch) error {
	return nil
}

func (c *memoryChain) CreateElement(ctx context.Context, chainID string, req chainapi.CreateElementRequest) (*chainapi.ElementsChange, error) {
	if c.onCreate != nil {
		c.onCreate()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	el := chainapi.Element{ID: fmt.Sprintf("el-%d", len(c.elements)+1), Type: req.Type}
	c.elements = append(c.elements, el)
	return &chainapi.ElementsChange{CreatedElements: []chainapi.Element{el}}, nil
}

func (c *memoryChain) GetElementsByType(ctx context.Context, chainID, elementType string) ([]chainapi.Element, error) {
	return nil, nil
}

func (c *memoryChain) UpdateElement(ctx context.Context, chainID, elementID string, patch chainapi.ElementPatch) (*chainapi.ElementsChange, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.elements {
		if c.elements[i].ID == elementID {
			if patch.Name != nil {
				c.elements[i].Name = *patch.Name
			}
			c.elements[i].Properties = patch.Properties
		}
	}
	return &chainapi.ElementsChange{}, nil
}

func (c *memoryChain) DeleteElements(ctx context.Context, chainID string, ids []string) error {
	return nil
}

func (c *memoryChain) CreateConnection(ctx context.Context, chainID, from, to string) (*chainapi.Connection, error) {
	return &chainapi.Connection{ID: "dep", From: from, To: to}, nil
}

func (c *memoryChain) DeleteConnections(ctx context.Context, chainID string, ids []string) error {
	return nil
}

type fixture struct {
	store     *chatstore.Store
	assistant *Assistant
	events    *eventRecorder
}

func newFixture(t *testing.T, provider aisdk.Provider, mutate func(*Config)) *fixture {
	t.Helper()
	store := chatstore.New(storage.NewFileBackend(afero.NewMemMapFs(), "/state"), chatstore.Options{})
	t.Cleanup(func() { _ = store.Close() })

	registry := aiprovider.NewRegistry(nil)
	registry.Register(provider.ID(), func(context.Context) (aisdk.Provider, error) { return provider, nil })

	rec := &eventRecorder{}
	cfg := Config{
		Store:      store,
		Providers:  registry,
		ProviderID: provider.ID(),
		Events:     rec,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	a, err := New(cfg)
	require.NoError(t, err)
	return &fixture{store: store, assistant: a, events: rec}
}

func TestHandleSendStreamsIntoSession(t *testing.T) {
	f := newFixture(t, aiprovider.NewMockProvider(), nil)
	sess := f.store.CreateSession(aisdk.ModeAsk)

	res, err := f.assistant.HandleSend(context.Background(), sess.ID, "  hello world  ", SendOptions{ChainID: "c1"})
	require.NoError(t, err)
	assert.Equal(t, reconcile.StateDone, res.State)
	assert.Equal(t, "Mock reply: hello world", res.Content)

	got, ok := f.store.GetSession(sess.ID)
	require.True(t, ok)
	require.Len(t, got.Messages, 3)
	assert.Equal(t, aisdk.ChatMessage{ID: got.Messages[0].ID, Role: aisdk.RoleUser, Content: "hello world"}, got.Messages[0])
	assert.Equal(t, "Mock reply: hello world", got.Messages[1].Content)
	assert.True(t, aisdk.IsMetadataMessage(got.Messages[2]))
	assert.Equal(t, "hello world", got.Title)
	assert.Equal(t, "mock-conversation", got.ConversationID)

	for _, et := range []events.EventType{events.EventTurnStarted, events.EventStreamDelta, events.EventTurnCompleted} {
		assert.True(t, f.events.has(et), et)
	}
}

func TestHandleSendBuildsRequests(t *testing.T) {
	p := &recordingProvider{}
	f := newFixture(t, p, nil)
	sess := f.store.CreateSession(aisdk.ModeAsk)

	_, err := f.assistant.HandleSend(context.Background(), sess.ID, "first", SendOptions{ChainID: "c1"})
	require.NoError(t, err)
	_, err = f.assistant.HandleSend(context.Background(), sess.ID, "second", SendOptions{ChainID: "c1", Mode: aisdk.ModeAgent})
	require.NoError(t, err)

	require.Len(t, p.requests, 2)
	first, second := p.requests[0], p.requests[1]

	require.Len(t, first.Messages, 1)
	assert.Equal(t, "first", first.Messages[0].Content)
	assert.Empty(t, first.ConversationID)
	assert.Equal(t, "c1", first.Context["chainId"])
	assert.Equal(t, "ask", first.Context["mode"])
	assert.Contains(t, first.Context, "proposalSchema")

	// The backend conversation exists now, so only the new turn is sent.
	require.Len(t, second.Messages, 1)
	assert.Equal(t, "second", second.Messages[0].Content)
	assert.Equal(t, "conv-1", second.ConversationID)
	assert.Equal(t, "agent", second.Context["mode"])
	assert.NotContains(t, second.Context, "proposalSchema")

	got, _ := f.store.GetSession(sess.ID)
	assert.Equal(t, "first", got.Title, "only the first message names the session")
	for _, m := range got.Messages {
		if m.Role == aisdk.RoleAssistant {
			assert.True(t, strings.HasPrefix(m.Content, "reply "))
		}
	}
}

func TestHandleSendRejects(t *testing.T) {
	f := newFixture(t, aiprovider.NewMockProvider(), nil)
	sess := f.store.CreateSession(aisdk.ModeAsk)

	_, err := f.assistant.HandleSend(context.Background(), sess.ID, "   ", SendOptions{})
	assert.ErrorIs(t, err, ErrEmptyMessages)

	_, err = f.assistant.HandleSend(context.Background(), "missing", "hi", SendOptions{})
	assert.ErrorIs(t, err, chatstore.ErrSessionNotFound)

	_, err = f.assistant.HandleSend(context.Background(), sess.ID, "hi", SendOptions{Mode: "shout"})
	assert.ErrorIs(t, err, chatstore.ErrInvalidMode)
	assert.False(t, f.assistant.Busy(sess.ID))
}

func TestRapidSendsIssueOneRequest(t *testing.T) {
	p := &blockingProvider{release: make(chan struct{})}
	f := newFixture(t, p, nil)
	sess := f.store.CreateSession(aisdk.ModeAsk)

	type outcome struct {
		res *TurnResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := f.assistant.HandleSend(context.Background(), sess.ID, "first", SendOptions{})
		done <- outcome{res, err}
	}()
	require.Eventually(t, func() bool { return p.requests.Load() == 1 }, time.Second, 5*time.Millisecond)

	_, err := f.assistant.HandleSend(context.Background(), sess.ID, "second", SendOptions{})
	assert.ErrorIs(t, err, ErrTurnInProgress)

	close(p.release)
	out := <-done
	require.NoError(t, out.err)
	assert.Equal(t, reconcile.StateDone, out.res.State)
	assert.Equal(t, int32(1), p.requests.Load())
	assert.False(t, f.assistant.Busy(sess.ID))
}

func TestAbortRestoresSession(t *testing.T) {
	p := &blockingProvider{release: make(chan struct{})}
	f := newFixture(t, p, nil)
	sess := f.store.CreateSession(aisdk.ModeAsk)

	done := make(chan *TurnResult, 1)
	go func() {
		res, err := f.assistant.HandleSend(context.Background(), sess.ID, "cancel me", SendOptions{})
		assert.NoError(t, err)
		done <- res
	}()
	require.Eventually(t, func() bool { return p.requests.Load() == 1 }, time.Second, 5*time.Millisecond)

	restored, ok := f.assistant.Abort(sess.ID)
	require.True(t, ok)
	assert.Equal(t, "cancel me", restored)

	res := <-done
	assert.Equal(t, reconcile.StateAborted, res.State)
	assert.Equal(t, "cancel me", res.RestoredInput)

	got, _ := f.store.GetSession(sess.ID)
	assert.Empty(t, got.Messages)
	assert.True(t, f.events.has(events.EventTurnAborted))

	_, ok = f.assistant.Abort(sess.ID)
	assert.False(t, ok)
}

// gatedSource hands out its provider only once released.
type gatedSource struct {
	provider aisdk.Provider
	entered  chan struct{}
	release  chan struct{}
}

func (g *gatedSource) Get(ctx context.Context, id string) (aisdk.Provider, error) {
	close(g.entered)
	<-g.release
	return g.provider, nil
}

func TestAbortBeforeRequestIsSent(t *testing.T) {
	p := &blockingProvider{release: make(chan struct{})}
	source := &gatedSource{provider: p, entered: make(chan struct{}), release: make(chan struct{})}
	f := newFixture(t, p, func(cfg *Config) { cfg.Providers = source })
	sess := f.store.CreateSession(aisdk.ModeAsk)

	done := make(chan *TurnResult, 1)
	go func() {
		res, err := f.assistant.HandleSend(context.Background(), sess.ID, "too soon", SendOptions{})
		assert.NoError(t, err)
		done <- res
	}()
	<-source.entered

	restored, ok := f.assistant.Abort(sess.ID)
	require.True(t, ok)
	assert.Equal(t, "too soon", restored)
	close(source.release)

	res := <-done
	assert.Equal(t, reconcile.StateAborted, res.State)
	assert.Equal(t, "too soon", res.RestoredInput)
	assert.Equal(t, int32(0), p.requests.Load())

	got, _ := f.store.GetSession(sess.ID)
	assert.Empty(t, got.Messages)
	assert.True(t, f.events.has(events.EventTurnAborted))
	assert.False(t, f.assistant.Busy(sess.ID))
}

type failingSource struct{ err error }

func (s failingSource) Get(context.Context, string) (aisdk.Provider, error) { return nil, s.err }

func TestFailuresBeforeSendingAreRecorded(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		opts    SendOptions
		wantErr error
	}{
		{
			name:    "provider unavailable",
			mutate:  func(cfg *Config) { cfg.Providers = failingSource{err: aiprovider.ErrNotConfigured} },
			wantErr: aiprovider.ErrNotConfigured,
		},
		{
			name:    "attachment rejected",
			opts:    SendOptions{Attachments: []Attachment{{Name: "a.txt", Reader: strings.NewReader("x")}}},
			wantErr: ErrUploadsUnsupported,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, &recordingProvider{}, tt.mutate)
			sess := f.store.CreateSession(aisdk.ModeAsk)

			_, err := f.assistant.HandleSend(context.Background(), sess.ID, "hello", tt.opts)
			assert.ErrorIs(t, err, tt.wantErr)

			got, _ := f.store.GetSession(sess.ID)
			require.Len(t, got.Messages, 2)
			assert.Equal(t, "hello", got.Messages[0].Content)
			assert.Equal(t, aisdk.RoleAssistant, got.Messages[1].Role)
			assert.True(t, strings.HasPrefix(got.Messages[1].Content, "Error: "))
			assert.True(t, f.events.has(events.EventTurnFailed))
			assert.False(t, f.assistant.Busy(sess.ID))
		})
	}
}

func TestProposalAppliedAfterConfirmation(t *testing.T) {
	chain := &memoryChain{}
	var confirmed []string
	f := newFixture(t, aiprovider.NewMockProvider(), func(cfg *Config) {
		cfg.Applier = proposal.NewApplier(chain, proposal.ApplierOptions{Events: cfg.Events})
		cfg.Confirmer = ConfirmFunc(func(ctx context.Context, p *proposal.Proposal, preview []string) (bool, error) {
			confirmed = preview
			return true, nil
		})
	})
	sess := f.store.CreateSession(aisdk.ModeAsk)

	res, err := f.assistant.HandleSend(context.Background(), sess.ID, "please propose a logger", SendOptions{ChainID: "c7"})
	require.NoError(t, err)
	require.NotNil(t, res.Proposal)
	assert.Equal(t, "c7", res.Proposal.ChainID)
	assert.Equal(t, []string{`Create script element "Log request" [script]`}, confirmed)

	require.NoError(t, res.ApplyErr)
	require.NotNil(t, res.Applied)
	assert.Equal(t, 1, res.Applied.Applied)
	require.Len(t, chain.elements, 1)
	assert.Equal(t, "Log request", chain.elements[0].Name)
	assert.Equal(t, map[string]any{"script": "log(body)"}, chain.elements[0].Properties)

	got, _ := f.store.GetSession(sess.ID)
	require.NotNil(t, got.ChainCreationPlan)
	assert.Equal(t, chatstore.PlanCompleted, got.ChainCreationPlan.Status)
	require.Len(t, got.ChainCreationPlan.Elements, 1)
	assert.Equal(t, chatstore.ElementCreated, got.ChainCreationPlan.Elements[0].Status)
	assert.Equal(t, "el-1", got.ChainCreationPlan.Elements[0].ElementID)

	assert.True(t, f.events.has(events.EventProposalDetected))
	assert.True(t, f.events.has(events.EventProposalApplied))
	assert.True(t, f.events.has(events.EventChainUpdated))
}

func TestPlanRecordsCreatingElement(t *testing.T) {
	chain := &memoryChain{}
	f := newFixture(t, aiprovider.NewMockProvider(), func(cfg *Config) {
		cfg.Applier = proposal.NewApplier(chain, proposal.ApplierOptions{})
		cfg.Confirmer = ConfirmFunc(func(context.Context, *proposal.Proposal, []string) (bool, error) { return true, nil })
	})
	sess := f.store.CreateSession(aisdk.ModeAsk)

	var during chatstore.ElementStatus
	chain.onCreate = func() {
		got, _ := f.store.GetSession(sess.ID)
		require.NotNil(t, got.ChainCreationPlan)
		during = got.ChainCreationPlan.Elements[0].Status
	}

	res, err := f.assistant.HandleSend(context.Background(), sess.ID, "propose something", SendOptions{ChainID: "c1"})
	require.NoError(t, err)
	require.NoError(t, res.ApplyErr)

	assert.Equal(t, chatstore.ElementCreating, during)
	got, _ := f.store.GetSession(sess.ID)
	assert.Equal(t, chatstore.ElementCreated, got.ChainCreationPlan.Elements[0].Status)
}

func TestPickTransport(t *testing.T) {
	a := &Assistant{logger: slog.Default()}
	tests := []struct {
		name      string
		provider  aisdk.Provider
		requested Transport
		want      Transport
	}{
		{"mock auto streams", aiprovider.NewMockProvider(), TransportAuto, TransportStream},
		{"mock progress on request", aiprovider.NewMockProvider(), TransportProgress, TransportProgress},
		{"mock chat on request", aiprovider.NewMockProvider(), TransportChat, TransportChat},
		{"chat only provider", &recordingProvider{}, TransportAuto, TransportChat},
		{"unsupported request falls back", &recordingProvider{}, TransportStream, TransportChat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, a.pickTransport(tt.provider, tt.requested))
		})
	}
}
