// Package assistant runs chat turns: it builds requests from a session,
// drives the provider, reconciles the reply into the session and applies
// any proposal the user approves.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/lithammer/shortuuid/v4"

	"github.com/elee1766/chainpilot/src/aiprovider"
	"github.com/elee1766/chainpilot/src/aisdk"
	"github.com/elee1766/chainpilot/src/chatstore"
	"github.com/elee1766/chainpilot/src/events"
	"github.com/elee1766/chainpilot/src/proposal"
	"github.com/elee1766/chainpilot/src/reconcile"
	"github.com/elee1766/chainpilot/src/schema"
	"github.com/elee1766/chainpilot/src/timing"
)

const titleLength = 50

var (
	ErrEmptyMessages      = errors.New("nothing to send")
	ErrTurnInProgress     = errors.New("a reply is already in progress for this session")
	ErrUploadsUnsupported = errors.New("provider does not accept attachments")
)

// Transport selects how a request is sent.
type Transport string

const (
	TransportAuto     Transport = ""
	TransportStream   Transport = "stream"
	TransportProgress Transport = "progress"
	TransportChat     Transport = "chat"
)

// Attachment is a file sent along with a message.
type Attachment struct {
	Name   string
	Reader io.Reader
}

// SendOptions tunes one HandleSend call.
type SendOptions struct {
	ChainID string
	// Mode overrides the session's mode for this turn when set.
	Mode        aisdk.Mode
	Attachments []Attachment
	Transport   Transport
}

// Confirmer asks the user whether to apply a proposal.
type Confirmer interface {
	Confirm(ctx context.Context, p *proposal.Proposal, preview []string) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, p *proposal.Proposal, preview []string) (bool, error)

func (f ConfirmFunc) Confirm(ctx context.Context, p *proposal.Proposal, preview []string) (bool, error) {
	return f(ctx, p, preview)
}

// ProviderSource hands out providers by id.
type ProviderSource interface {
	Get(ctx context.Context, id string) (aisdk.Provider, error)
}

var _ ProviderSource = (*aiprovider.Registry)(nil)

// Config wires an Assistant.
type Config struct {
	Store      *chatstore.Store
	Providers  ProviderSource
	ProviderID string
	// Applier is optional; without it proposals are only reported.
	Applier *proposal.Applier
	// Confirmer is optional; without it proposals are never applied.
	Confirmer Confirmer
	Events    events.EventSink
	// RefreshChain reloads a chain view while a turn edits it.
	RefreshChain    func(ctx context.Context, chainID string) error
	Clock           timing.Clock
	FlushInterval   time.Duration
	RefreshInterval time.Duration
	Logger          *slog.Logger
}

// TurnResult is what HandleSend reports back.
type TurnResult struct {
	State          reconcile.State
	Messages       []aisdk.ChatMessage
	Content        string
	Usage          *aisdk.Usage
	FinishReason   string
	ConversationID string
	Error          string
	RestoredInput  string
	Proposal       *proposal.Proposal
	Applied        *proposal.Report
	ApplyErr       error
}

type inflight struct {
	token *aisdk.CancelToken
	text  string
	// turn and aborted are guarded by Assistant.mu.
	turn    *reconcile.Turn
	aborted bool
}

// Assistant runs turns against one provider.
type Assistant struct {
	cfg    Config
	logger *slog.Logger
	errs   *aiprovider.ErrorHandler

	mu       sync.Mutex
	inflight map[string]*inflight
}

// New creates an Assistant.
func New(cfg Config) (*Assistant, error) {
	if cfg.Store == nil {
		return nil, errors.New("assistant requires a session store")
	}
	if cfg.Providers == nil {
		return nil, errors.New("assistant requires a provider source")
	}
	if cfg.ProviderID == "" {
		cfg.ProviderID = aiprovider.MockProviderID
	}
	if cfg.Events == nil {
		cfg.Events = events.Discard{}
	}
	if cfg.Clock == nil {
		cfg.Clock = timing.Real()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Assistant{
		cfg:      cfg,
		logger:   logger.With("component", "assistant"),
		errs:     aiprovider.NewErrorHandler(logger),
		inflight: make(map[string]*inflight),
	}, nil
}

// Busy reports whether sessionID has a turn in flight.
func (a *Assistant) Busy(sessionID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.inflight[sessionID]
	return ok
}

// Abort cancels the turn running for sessionID and restores the session to
// how it was before the turn. It returns the text of the aborted message.
// A turn aborted before its request went out leaves the session untouched.
func (a *Assistant) Abort(sessionID string) (string, bool) {
	a.mu.Lock()
	in := a.inflight[sessionID]
	var turn *reconcile.Turn
	if in != nil {
		turn = in.turn
		in.aborted = true
	}
	a.mu.Unlock()
	if in == nil {
		return "", false
	}

	restored, ok := in.text, true
	if turn != nil {
		restored, ok = turn.Abort()
	}
	in.token.Cancel()
	a.logger.Info("turn aborted", "session_id", sessionID, "sent", turn != nil)
	return restored, ok
}

// HandleSend runs one turn of sessionID with the user's text.
func (a *Assistant) HandleSend(ctx context.Context, sessionID, text string, opts SendOptions) (*TurnResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessages
	}
	sess, ok := a.cfg.Store.GetSession(sessionID)
	if !ok {
		return nil, chatstore.ErrSessionNotFound
	}

	mode := sess.Mode
	if opts.Mode != "" {
		if !opts.Mode.Valid() {
			return nil, fmt.Errorf("%w: %q", chatstore.ErrInvalidMode, opts.Mode)
		}
		mode = opts.Mode
	}

	in, err := a.claim(ctx, sessionID, text)
	if err != nil {
		return nil, err
	}
	defer a.release(sessionID, in)
	ctx = in.token.Context()

	logger := a.logger.With("session_id", sessionID, "chain_id", opts.ChainID)
	userMsg := aisdk.ChatMessage{ID: shortuuid.New(), Role: aisdk.RoleUser, Content: text}

	provider, err := a.cfg.Providers.Get(ctx, a.cfg.ProviderID)
	if err != nil {
		if a.abortedEarly(in) {
			return a.abortedResult(sessionID, text), nil
		}
		return nil, a.failEarly(logger, sess, userMsg, a.errs.Handle(err, "get_provider"))
	}

	attachmentURLs, err := a.upload(ctx, provider, sessionID, opts.Attachments)
	if err != nil {
		if a.abortedEarly(in) {
			return a.abortedResult(sessionID, text), nil
		}
		return nil, a.failEarly(logger, sess, userMsg, a.errs.Handle(err, "upload_attachments"))
	}

	req := a.buildRequest(sess, userMsg, mode, opts.ChainID, attachmentURLs)
	if len(req.Messages) == 0 {
		return nil, ErrEmptyMessages
	}

	turn := reconcile.NewTurn(reconcile.Config{
		Clock:           a.cfg.Clock,
		FlushInterval:   a.cfg.FlushInterval,
		RefreshInterval: a.cfg.RefreshInterval,
		Persist: func(messages []aisdk.ChatMessage) {
			if _, err := a.cfg.Store.UpdateSessionMessages(sessionID, messages); err != nil {
				logger.Warn("failed to persist turn", "error", err)
			}
		},
		Refresh: a.refresher(sessionID, opts.ChainID),
		Logger:  logger,
	}, sess.Messages, []aisdk.ChatMessage{userMsg})

	a.mu.Lock()
	aborted := in.aborted
	if !aborted {
		in.turn = turn
	}
	a.mu.Unlock()
	if aborted {
		return a.abortedResult(sessionID, text), nil
	}

	transport := a.pickTransport(provider, opts.Transport)
	logger.Info("sending message", "provider", provider.ID(), "transport", transport, "mode", mode, "messages", len(req.Messages))
	a.send(&events.TurnStartedEvent{
		BaseEvent: events.NewBase(events.EventTurnStarted, sessionID),
		Provider:  provider.ID(),
		Transport: string(transport),
	})

	turn.Begin()
	a.run(ctx, provider, transport, req, a.chunkHandler(sessionID, turn))
	if !turn.State().Terminal() {
		turn.Handle(aisdk.ErrorChunk{Message: "the reply ended unexpectedly"})
	}

	res := turn.Result()
	out := &TurnResult{
		State:          res.State,
		Messages:       res.Messages,
		Content:        res.Content,
		Usage:          res.Usage,
		FinishReason:   res.FinishReason,
		ConversationID: res.ConversationID,
		Error:          res.Error,
		RestoredInput:  res.RestoredInput,
		Proposal:       res.Proposal,
	}

	switch res.State {
	case reconcile.StateDone:
		a.completed(ctx, logger, sess, text, out, opts.ChainID)
	case reconcile.StateError:
		a.send(&events.TurnFailedEvent{BaseEvent: events.NewBase(events.EventTurnFailed, sessionID), Message: res.Error})
	case reconcile.StateAborted:
		a.send(&events.TurnAbortedEvent{BaseEvent: events.NewBase(events.EventTurnAborted, sessionID)})
	}
	return out, nil
}

func (a *Assistant) claim(ctx context.Context, sessionID, text string) (*inflight, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, busy := a.inflight[sessionID]; busy {
		return nil, ErrTurnInProgress
	}
	in := &inflight{token: aisdk.NewOwnedToken(ctx), text: text}
	a.inflight[sessionID] = in
	return in, nil
}

func (a *Assistant) release(sessionID string, in *inflight) {
	a.mu.Lock()
	if a.inflight[sessionID] == in {
		delete(a.inflight, sessionID)
	}
	a.mu.Unlock()
	in.token.Release()
}

func (a *Assistant) abortedEarly(in *inflight) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return in.aborted
}

// abortedResult reports a turn aborted before anything reached the session.
func (a *Assistant) abortedResult(sessionID, text string) *TurnResult {
	a.send(&events.TurnAbortedEvent{BaseEvent: events.NewBase(events.EventTurnAborted, sessionID)})
	return &TurnResult{State: reconcile.StateAborted, RestoredInput: text}
}

// failEarly records a turn that failed before its request was sent the same
// way a failed reply is recorded: the user's message followed by the error.
func (a *Assistant) failEarly(logger *slog.Logger, sess *chatstore.ChatSession, userMsg aisdk.ChatMessage, err error) error {
	msg := aiprovider.UserMessage(err)
	messages := append(aisdk.CloneMessages(sess.Messages), userMsg, aisdk.ChatMessage{
		ID:      shortuuid.New(),
		Role:    aisdk.RoleAssistant,
		Content: "Error: " + msg,
	})
	if _, perr := a.cfg.Store.UpdateSessionMessages(sess.ID, messages); perr != nil {
		logger.Warn("failed to record error", "error", perr)
	}
	a.send(&events.TurnFailedEvent{BaseEvent: events.NewBase(events.EventTurnFailed, sess.ID), Message: msg})
	return err
}

func (a *Assistant) upload(ctx context.Context, provider aisdk.Provider, sessionID string, attachments []Attachment) ([]string, error) {
	if len(attachments) == 0 {
		return nil, nil
	}
	uploader, ok := provider.(aisdk.Uploader)
	if !ok {
		return nil, ErrUploadsUnsupported
	}
	urls := make([]string, 0, len(attachments))
	for _, att := range attachments {
		res, err := uploader.UploadFile(ctx, att.Name, att.Reader, sessionID)
		if err != nil {
			return nil, fmt.Errorf("failed to upload %s: %w", att.Name, err)
		}
		urls = append(urls, res.URL)
	}
	if err := a.cfg.Store.UpdateSessionLastAttachmentURLs(sessionID, urls); err != nil {
		a.logger.Warn("failed to record attachment urls", "session_id", sessionID, "error", err)
	}
	return urls, nil
}

// buildRequest assembles the request. A session that already has a backend
// conversation only sends the new turn; the backend keeps the rest.
func (a *Assistant) buildRequest(sess *chatstore.ChatSession, userMsg aisdk.ChatMessage, mode aisdk.Mode, chainID string, attachmentURLs []string) *aisdk.ChatRequest {
	var messages []aisdk.ChatMessage
	if sess.ConversationID == "" {
		messages = aisdk.WithoutMetadata(sess.Messages)
	}
	messages = append(messages, userMsg)

	reqCtx := map[string]any{"mode": string(mode)}
	if chainID != "" {
		reqCtx["chainId"] = chainID
	}
	if mode == aisdk.ModeAsk {
		reqCtx["proposalSchema"] = schema.ProposalSchema()
	}

	return &aisdk.ChatRequest{
		Messages:       messages,
		ConversationID: sess.ConversationID,
		Context:        reqCtx,
		AttachmentURLs: attachmentURLs,
	}
}

func (a *Assistant) pickTransport(provider aisdk.Provider, requested Transport) Transport {
	_, canStream := provider.(aisdk.Streamer)
	canStream = canStream && provider.Capabilities().SupportsStreaming
	_, canProgress := provider.(aisdk.ProgressChatter)

	switch requested {
	case TransportStream:
		if canStream {
			return TransportStream
		}
	case TransportProgress:
		if canProgress {
			return TransportProgress
		}
	case TransportChat:
		return TransportChat
	}
	if requested != TransportAuto {
		a.logger.Warn("requested transport not supported, falling back", "transport", requested, "provider", provider.ID())
	}
	switch {
	case canStream:
		return TransportStream
	case canProgress:
		return TransportProgress
	default:
		return TransportChat
	}
}

func (a *Assistant) run(ctx context.Context, provider aisdk.Provider, transport Transport, req *aisdk.ChatRequest, onChunk aisdk.ChunkHandler) {
	switch transport {
	case TransportStream:
		// Failures arrive as an ErrorChunk; the returned error repeats them.
		if err := provider.(aisdk.Streamer).StreamChat(ctx, req, onChunk); err != nil {
			a.logger.Debug("stream ended with error", "error", err)
		}
	case TransportProgress:
		resp, err := provider.(aisdk.ProgressChatter).ChatWithProgress(ctx, req, onChunk)
		deliver(resp, err, onChunk)
	default:
		resp, err := provider.Chat(ctx, req)
		deliver(resp, err, onChunk)
	}
}

// deliver replays a whole response as chunks so every transport goes through
// the same reconciliation.
func deliver(resp *aisdk.ChatResponse, err error, onChunk aisdk.ChunkHandler) {
	if err != nil {
		if errors.Is(err, context.Canceled) {
			onChunk(aisdk.ErrorChunk{Message: aisdk.AbortedMessage, Err: err})
			return
		}
		onChunk(aisdk.ErrorChunk{Message: aiprovider.UserMessage(err), Err: err})
		return
	}
	if content := resp.Content(); content != "" {
		onChunk(aisdk.DeltaChunk{Content: content})
	}
	onChunk(aisdk.DoneChunk{Usage: resp.Usage, FinishReason: resp.FinishReason, ConversationID: resp.ConversationID})
}

func (a *Assistant) chunkHandler(sessionID string, turn *reconcile.Turn) aisdk.ChunkHandler {
	return func(chunk aisdk.StreamChunk) {
		if turn.State().Terminal() {
			return
		}
		turn.Handle(chunk)
		switch c := chunk.(type) {
		case aisdk.DeltaChunk:
			a.send(&events.StreamDeltaEvent{BaseEvent: events.NewBase(events.EventStreamDelta, sessionID), Content: c.Content})
		case aisdk.ProgressChunk:
			a.send(&events.ProgressEvent{BaseEvent: events.NewBase(events.EventProgress, sessionID), Text: c.Text})
		}
	}
}

func (a *Assistant) refresher(sessionID, chainID string) func() {
	if chainID == "" {
		return nil
	}
	return func() {
		if a.cfg.RefreshChain != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := a.cfg.RefreshChain(ctx, chainID); err != nil {
				a.logger.Warn("failed to refresh chain", "chain_id", chainID, "error", err)
				return
			}
		}
		a.send(&events.ChainUpdatedEvent{BaseEvent: events.NewBase(events.EventChainUpdated, sessionID), ChainID: chainID})
	}
}

func (a *Assistant) completed(ctx context.Context, logger *slog.Logger, sess *chatstore.ChatSession, text string, out *TurnResult, chainID string) {
	if out.ConversationID != "" && out.ConversationID != sess.ConversationID {
		if err := a.cfg.Store.UpdateConversationID(sess.ID, out.ConversationID); err != nil {
			logger.Warn("failed to store conversation id", "error", err)
		}
	}
	if sess.Title == chatstore.DefaultTitle && aisdk.LastUserMessage(sess.Messages) == "" {
		if err := a.cfg.Store.UpdateSessionTitle(sess.ID, aisdk.Title(text, titleLength)); err != nil {
			logger.Warn("failed to set session title", "error", err)
		}
	}

	completed := &events.TurnCompletedEvent{
		BaseEvent:    events.NewBase(events.EventTurnCompleted, sess.ID),
		Content:      out.Content,
		FinishReason: out.FinishReason,
	}
	if out.Usage != nil {
		completed.PromptTokens = out.Usage.PromptTokens
		completed.CompletionTokens = out.Usage.CompletionTokens
	}
	a.send(completed)

	p := out.Proposal
	if p == nil {
		return
	}
	if p.ChainID == "" {
		p.ChainID = chainID
	}
	preview := proposal.Describe(p)
	a.send(&events.ProposalDetectedEvent{
		BaseEvent: events.NewBase(events.EventProposalDetected, sess.ID),
		ChainID:   p.ChainID,
		Summary:   p.Summary,
		Preview:   preview,
	})
	if a.cfg.Applier == nil || a.cfg.Confirmer == nil || len(p.Changes) == 0 {
		return
	}

	ok, err := a.cfg.Confirmer.Confirm(ctx, p, preview)
	if err != nil {
		logger.Warn("confirmation failed", "error", err)
		return
	}
	if !ok {
		logger.Info("proposal declined", "chain_id", p.ChainID)
		return
	}
	out.Applied, out.ApplyErr = a.apply(ctx, sess.ID, p)
}

func (a *Assistant) send(e events.Event) {
	if err := a.cfg.Events.Send(e); err != nil {
		a.logger.Debug("event dropped", "type", e.GetType(), "error", err)
	}
}
