// Package chatstore keeps chat sessions in memory and persists them to a
// key/value backend. Message updates are debounced; everything else is
// written immediately.
package chatstore

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lithammer/shortuuid/v4"

	"github.com/elee1766/chainpilot/src/aisdk"
	"github.com/elee1766/chainpilot/src/timing"
)

const (
	// DefaultKey is the storage key holding the JSON array of all sessions.
	DefaultKey = "chain-assistant-sessions"
	// DefaultSaveDebounce is the quiet period before a debounced save.
	DefaultSaveDebounce = 500 * time.Millisecond

	backendTimeout = 10 * time.Second
)

var (
	ErrSessionNotFound     = errors.New("session not found")
	ErrPlanNotFound        = errors.New("session has no chain creation plan")
	ErrPlannedItemNotFound = errors.New("planned item not found")
	ErrInvalidMode         = errors.New("invalid chat mode")
)

// Backend persists opaque bytes under a key. Load returns nil, nil for a key
// that was never saved.
type Backend interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, data []byte) error
}

// Options configures a Store. Zero values select the defaults.
type Options struct {
	Key          string
	SaveDebounce time.Duration
	Clock        timing.Clock
	Logger       *slog.Logger
	NewSessionID func() string
	NewMessageID func() string
}

// Store is the session cache. The cache is authoritative: storage failures
// are logged and never surface to callers.
type Store struct {
	backend      Backend
	key          string
	clock        timing.Clock
	logger       *slog.Logger
	newSessionID func() string
	newMessageID func() string

	mu       sync.Mutex
	loaded   bool
	sessions []*ChatSession

	buf      *WriteBuffer
	debounce *timing.Debouncer
}

// New creates a store over backend. Nothing is read until first use.
func New(backend Backend, opts Options) *Store {
	if opts.Key == "" {
		opts.Key = DefaultKey
	}
	if opts.SaveDebounce <= 0 {
		opts.SaveDebounce = DefaultSaveDebounce
	}
	if opts.Clock == nil {
		opts.Clock = timing.Real()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.NewSessionID == nil {
		opts.NewSessionID = func() string { return uuid.New().String() }
	}
	if opts.NewMessageID == nil {
		opts.NewMessageID = shortuuid.New
	}

	s := &Store{
		backend:      backend,
		key:          opts.Key,
		clock:        opts.Clock,
		logger:       opts.Logger.With("component", "chat_store"),
		newSessionID: opts.NewSessionID,
		newMessageID: opts.NewMessageID,
		debounce:     timing.NewDebouncer(opts.Clock, opts.SaveDebounce),
	}
	s.buf = NewWriteBuffer(s.write)
	return s
}

// GetAllSessions returns copies of every session, newest first.
func (s *Store) GetAllSessions() []*ChatSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoadedLocked()

	out := make([]*ChatSession, len(s.sessions))
	for i, sess := range s.sessions {
		out[i] = sess.Clone()
	}
	return out
}

// GetSession returns a copy of the session with id.
func (s *Store) GetSession(id string) (*ChatSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoadedLocked()

	sess := s.findLocked(id)
	if sess == nil {
		return nil, false
	}
	return sess.Clone(), true
}

// CreateSession adds an empty session and persists it immediately. An
// invalid or empty mode falls back to the default mode.
func (s *Store) CreateSession(mode aisdk.Mode) *ChatSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoadedLocked()

	if !mode.Valid() {
		mode = aisdk.DefaultMode
	}
	now := s.clock.Now()
	sess := &ChatSession{
		ID:        s.newSessionID(),
		Title:     DefaultTitle,
		Messages:  []aisdk.ChatMessage{},
		Mode:      mode,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.sessions = append([]*ChatSession{sess}, s.sessions...)
	s.persistNowLocked()

	s.logger.Debug("session created", "session_id", sess.ID, "mode", mode)
	return sess.Clone()
}

// UpdateSessionMessages replaces the message list of a session. Messages
// without an id get one; when an id repeats, the last occurrence wins. The
// save is debounced. The stored list is returned.
func (s *Store) UpdateSessionMessages(id string, messages []aisdk.ChatMessage) ([]aisdk.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoadedLocked()

	sess := s.findLocked(id)
	if sess == nil {
		return nil, ErrSessionNotFound
	}
	sess.Messages = dedupeMessages(messages, s.newMessageID)
	sess.UpdatedAt = s.clock.Now()
	s.persistDebouncedLocked()

	return aisdk.CloneMessages(sess.Messages), nil
}

// UpdateConversationID records the backend conversation handle.
func (s *Store) UpdateConversationID(id, conversationID string) error {
	return s.mutateNow(id, func(sess *ChatSession) error {
		sess.ConversationID = conversationID
		return nil
	})
}

// UpdateSessionTitle renames a session.
func (s *Store) UpdateSessionTitle(id, title string) error {
	return s.mutateNow(id, func(sess *ChatSession) error {
		sess.Title = title
		return nil
	})
}

// UpdateSessionMode switches a session between ask and agent mode.
func (s *Store) UpdateSessionMode(id string, mode aisdk.Mode) error {
	if !mode.Valid() {
		return ErrInvalidMode
	}
	return s.mutateNow(id, func(sess *ChatSession) error {
		sess.Mode = mode
		return nil
	})
}

// UpdateSessionLastAttachmentURLs remembers the attachments of the last turn.
func (s *Store) UpdateSessionLastAttachmentURLs(id string, urls []string) error {
	return s.mutateNow(id, func(sess *ChatSession) error {
		sess.LastAttachmentURLs = append([]string(nil), urls...)
		return nil
	})
}

// DeleteSession removes a session. A pending debounced save is written
// first so it cannot resurrect stale state later.
func (s *Store) DeleteSession(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoadedLocked()

	s.debounce.Cancel()
	if err := s.buf.FlushBeforeDestroy(); err != nil {
		s.logger.Warn("failed to flush pending save before delete", "session_id", id, "error", err)
	}

	idx := s.indexLocked(id)
	if idx < 0 {
		return ErrSessionNotFound
	}
	s.sessions = append(s.sessions[:idx], s.sessions[idx+1:]...)
	s.persistNowLocked()

	s.logger.Debug("session deleted", "session_id", id)
	return nil
}

// Flush writes any pending debounced save now.
func (s *Store) Flush() error {
	s.debounce.Cancel()
	return s.buf.Flush()
}

// Close flushes pending writes. The store remains usable afterwards.
func (s *Store) Close() error {
	s.debounce.Cancel()
	return s.buf.FlushBeforeDestroy()
}

func (s *Store) mutateNow(id string, fn func(*ChatSession) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoadedLocked()

	sess := s.findLocked(id)
	if sess == nil {
		return ErrSessionNotFound
	}
	if err := fn(sess); err != nil {
		return err
	}
	sess.UpdatedAt = s.clock.Now()
	s.persistNowLocked()
	return nil
}

func (s *Store) mutateDebounced(id string, fn func(*ChatSession) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoadedLocked()

	sess := s.findLocked(id)
	if sess == nil {
		return ErrSessionNotFound
	}
	if err := fn(sess); err != nil {
		return err
	}
	sess.UpdatedAt = s.clock.Now()
	s.persistDebouncedLocked()
	return nil
}

func (s *Store) ensureLoadedLocked() {
	if s.loaded {
		return
	}
	s.loaded = true
	s.sessions = nil

	ctx, cancel := context.WithTimeout(context.Background(), backendTimeout)
	defer cancel()

	data, err := s.backend.Load(ctx, s.key)
	if err != nil {
		s.logger.Warn("failed to load sessions, starting empty", "key", s.key, "error", err)
		return
	}
	if len(data) == 0 {
		return
	}

	var sessions []*ChatSession
	if err := json.Unmarshal(data, &sessions); err != nil {
		s.logger.Warn("stored sessions are malformed, starting empty", "key", s.key, "error", err)
		return
	}
	for _, sess := range sessions {
		if sess == nil || sess.ID == "" {
			continue
		}
		if !sess.Mode.Valid() {
			sess.Mode = aisdk.DefaultMode
		}
		if sess.Messages == nil {
			sess.Messages = []aisdk.ChatMessage{}
		}
		s.sessions = append(s.sessions, sess)
	}
	s.logger.Debug("sessions loaded", "count", len(s.sessions))
}

func (s *Store) findLocked(id string) *ChatSession {
	if idx := s.indexLocked(id); idx >= 0 {
		return s.sessions[idx]
	}
	return nil
}

func (s *Store) indexLocked(id string) int {
	for i, sess := range s.sessions {
		if sess.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) snapshotLocked() ([]byte, bool) {
	sessions := s.sessions
	if sessions == nil {
		sessions = []*ChatSession{}
	}
	data, err := json.Marshal(sessions)
	if err != nil {
		s.logger.Warn("failed to encode sessions", "error", err)
		return nil, false
	}
	return data, true
}

func (s *Store) persistNowLocked() {
	data, ok := s.snapshotLocked()
	if !ok {
		return
	}
	s.debounce.Cancel()
	if err := s.buf.WriteNow(data); err != nil {
		s.logger.Warn("failed to save sessions", "key", s.key, "error", err)
	}
}

func (s *Store) persistDebouncedLocked() {
	data, ok := s.snapshotLocked()
	if !ok {
		return
	}
	s.buf.Stage(data)
	s.debounce.Schedule(func() {
		if err := s.buf.Flush(); err != nil {
			s.logger.Warn("failed to save sessions", "key", s.key, "error", err)
		}
	})
}

func (s *Store) write(data []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), backendTimeout)
	defer cancel()
	return s.backend.Save(ctx, s.key, data)
}

// dedupeMessages assigns missing ids and collapses repeated ids. The
// surviving entry keeps the position of the first occurrence and the value of
// the last.
func dedupeMessages(messages []aisdk.ChatMessage, newID func() string) []aisdk.ChatMessage {
	out := make([]aisdk.ChatMessage, 0, len(messages))
	index := make(map[string]int, len(messages))
	for _, m := range messages {
		if m.ID == "" {
			m.ID = newID()
		}
		if i, ok := index[m.ID]; ok {
			out[i] = m
			continue
		}
		index[m.ID] = len(out)
		out = append(out, m)
	}
	return out
}
