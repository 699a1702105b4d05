// Package reconcile folds a stream of reply chunks into a session's message
// list, persisting as it goes.
package reconcile

import (
	"log/slog"
	"sync"
	"time"

	"github.com/lithammer/shortuuid/v4"

	"github.com/elee1766/chainpilot/src/aisdk"
	"github.com/elee1766/chainpilot/src/proposal"
	"github.com/elee1766/chainpilot/src/timing"
)

const (
	DefaultFlushInterval   = 150 * time.Millisecond
	DefaultRefreshInterval = 2 * time.Second
)

// State is where a turn is in its lifecycle.
type State string

const (
	StateIdle         State = "idle"
	StateAwaiting     State = "awaiting-first-chunk"
	StateAccumulating State = "accumulating"
	StateDone         State = "done"
	StateError        State = "error"
	StateAborted      State = "aborted"
)

// Terminal reports whether no further chunks will be accepted.
func (s State) Terminal() bool {
	return s == StateDone || s == StateError || s == StateAborted
}

// Config configures a Turn.
type Config struct {
	Clock           timing.Clock
	FlushInterval   time.Duration
	RefreshInterval time.Duration
	// Persist receives full message snapshots, oldest first, never out of order.
	Persist func(messages []aisdk.ChatMessage)
	// Refresh reloads the chain view. It runs on its own goroutine.
	Refresh func()
	Logger  *slog.Logger
	NewID   func() string
}

// Result is the outcome of a finished turn.
type Result struct {
	State          State
	Messages       []aisdk.ChatMessage
	Content        string
	Usage          *aisdk.Usage
	FinishReason   string
	ConversationID string
	Proposal       *proposal.Proposal
	Error          string
	RestoredInput  string
}

// Turn reconciles one request/response exchange.
type Turn struct {
	cfg      Config
	logger   *slog.Logger
	throttle *timing.Throttle

	mu           sync.Mutex
	state        State
	before       []aisdk.ChatMessage
	pending      []aisdk.ChatMessage
	messages     []aisdk.ChatMessage
	assistantIdx int
	content      string
	result       Result
	lastRefresh  time.Time

	seq       uint64
	persistMu sync.Mutex
	persisted uint64
}

// NewTurn starts a turn on top of before, with the turn's own new messages
// (normally the user's message) in pending.
func NewTurn(cfg Config, before, pending []aisdk.ChatMessage) *Turn {
	if cfg.Clock == nil {
		cfg.Clock = timing.Real()
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = DefaultRefreshInterval
	}
	if cfg.NewID == nil {
		cfg.NewID = shortuuid.New
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	before = aisdk.CloneMessages(before)
	pending = aisdk.CloneMessages(pending)
	messages := make([]aisdk.ChatMessage, 0, len(before)+len(pending)+2)
	messages = append(messages, before...)
	messages = append(messages, pending...)

	return &Turn{
		cfg:          cfg,
		logger:       logger.With("component", "reconcile"),
		throttle:     timing.NewThrottle(cfg.Clock, cfg.FlushInterval),
		state:        StateIdle,
		before:       before,
		pending:      pending,
		messages:     messages,
		assistantIdx: -1,
	}
}

// Begin marks the request as sent and persists the pending messages.
func (t *Turn) Begin() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateIdle {
		return
	}
	t.state = StateAwaiting
	t.lastRefresh = t.cfg.Clock.Now()
	t.flushLocked(true)
}

// State returns the current state.
func (t *Turn) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Messages returns a snapshot of the working message list.
func (t *Turn) Messages() []aisdk.ChatMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return aisdk.CloneMessages(t.messages)
}

// Handle folds one chunk in. Chunks after the turn ended are ignored.
func (t *Turn) Handle(chunk aisdk.StreamChunk) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state.Terminal() {
		t.logger.Debug("ignoring chunk after turn ended", "type", chunk.Type(), "state", t.state)
		return
	}
	if t.state == StateIdle {
		t.state = StateAwaiting
		t.lastRefresh = t.cfg.Clock.Now()
	}

	switch c := chunk.(type) {
	case aisdk.ProgressChunk:
		t.appendLocked(ProgressBlock(t.content, c.Text))
		if IsCompleted(c.Text) && MentionsChainOperation(c.Text) {
			t.refreshLocked("chain operation completed")
		}

	case aisdk.DeltaChunk:
		t.appendLocked(c.Content)
		if t.cfg.Clock.Now().Sub(t.lastRefresh) > t.cfg.RefreshInterval {
			t.refreshLocked("periodic")
		}

	case aisdk.DoneChunk:
		t.finishLocked(c)

	case aisdk.ErrorChunk:
		switch {
		case c.Malformed:
			t.logger.Warn("skipping malformed chunk", "error", c.Message)
		case c.Canceled():
			t.logger.Info("stream cancelled", "message", c.Message)
			t.abortLocked()
		default:
			t.failLocked(c.Message)
		}

	default:
		t.logger.Warn("unknown chunk type", "type", chunk.Type())
	}
}

// Abort ends the turn and restores the history from before it started. It
// returns the text of the user message the turn was sent with, so the
// caller can put it back in the input.
func (t *Turn) Abort() (restoredInput string, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.Terminal() {
		return "", false
	}
	t.abortLocked()
	return t.result.RestoredInput, true
}

// Result returns the outcome so far; it is final once State is terminal.
func (t *Turn) Result() Result {
	t.mu.Lock()
	defer t.mu.Unlock()
	r := t.result
	r.State = t.state
	r.Messages = aisdk.CloneMessages(t.messages)
	if r.Content == "" {
		r.Content = StripProgressBlocks(t.content)
	}
	return r
}

func (t *Turn) appendLocked(s string) {
	if s == "" {
		return
	}
	t.content += s
	if t.assistantIdx < 0 {
		t.messages = append(t.messages, aisdk.ChatMessage{
			ID:      t.cfg.NewID(),
			Role:    aisdk.RoleAssistant,
			Content: t.content,
		})
		t.assistantIdx = len(t.messages) - 1
		t.state = StateAccumulating
	} else {
		t.messages[t.assistantIdx].Content = t.content
	}
	t.flushLocked(false)
}

func (t *Turn) finishLocked(c aisdk.DoneChunk) {
	t.state = StateDone
	t.result.Usage = c.Usage
	t.result.FinishReason = c.FinishReason
	t.result.ConversationID = c.ConversationID
	t.result.Content = StripProgressBlocks(t.content)

	if c.Usage != nil || c.FinishReason != "" {
		md, err := aisdk.NewMetadataMessage(aisdk.TurnMetadata{Usage: c.Usage, FinishReason: c.FinishReason})
		if err != nil {
			t.logger.Warn("failed to encode turn metadata", "error", err)
		} else {
			md.ID = t.cfg.NewID()
			t.messages = append(t.messages, md)
		}
	}

	if p, ok := proposal.TryParse(t.result.Content); ok {
		t.result.Proposal = p
		t.logger.Info("proposal detected", "chain_id", p.ChainID, "changes", len(p.Changes))
	}
	t.flushLocked(true)
}

func (t *Turn) failLocked(msg string) {
	if msg == "" {
		msg = "unknown error"
	}
	t.state = StateError
	t.result.Error = msg
	t.logger.Error("turn failed", "error", msg)
	t.messages = append(t.messages, aisdk.ChatMessage{
		ID:      t.cfg.NewID(),
		Role:    aisdk.RoleAssistant,
		Content: "Error: " + msg,
	})
	t.flushLocked(true)
}

func (t *Turn) abortLocked() {
	t.state = StateAborted
	t.messages = aisdk.CloneMessages(t.before)
	t.assistantIdx = -1
	t.result.RestoredInput = aisdk.LastUserMessage(t.pending)
	t.flushLocked(true)
}

func (t *Turn) refreshLocked(reason string) {
	t.lastRefresh = t.cfg.Clock.Now()
	if t.cfg.Refresh == nil {
		return
	}
	t.logger.Debug("refreshing chain view", "reason", reason)
	go t.cfg.Refresh()
}

// flushLocked hands a snapshot to the throttle. Each snapshot carries a
// sequence number; a snapshot older than the last one written is dropped.
func (t *Turn) flushLocked(force bool) {
	if t.cfg.Persist == nil {
		return
	}
	snapshot := aisdk.CloneMessages(t.messages)
	t.seq++
	seq := t.seq

	write := func() { t.persist(seq, snapshot) }
	if force {
		t.throttle.Force(write)
		return
	}
	t.throttle.Trigger(write)
}

func (t *Turn) persist(seq uint64, snapshot []aisdk.ChatMessage) {
	t.persistMu.Lock()
	defer t.persistMu.Unlock()
	if seq <= t.persisted {
		t.logger.Debug("dropping stale snapshot", "seq", seq, "persisted", t.persisted)
		return
	}
	t.persisted = seq
	t.cfg.Persist(snapshot)
}
