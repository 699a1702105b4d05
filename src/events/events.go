// Package events carries notifications from the assistant to whoever renders
// or reacts to them: chain views, session lists and the console.
package events

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// EventType represents the type of an assistant event
type EventType string

const (
	// Chain events, consumed by views of the chain being edited
	EventChainUpdated      EventType = "chain-updated"
	EventChainsListRefresh EventType = "chains-list-refresh"

	// Turn events
	EventTurnStarted   EventType = "turn-started"
	EventStreamDelta   EventType = "stream-delta"
	EventProgress      EventType = "progress"
	EventTurnCompleted EventType = "turn-completed"
	EventTurnFailed    EventType = "turn-failed"
	EventTurnAborted   EventType = "turn-aborted"

	// Proposal events
	EventProposalDetected EventType = "proposal-detected"
	EventProposalApplied  EventType = "proposal-applied"
)

// ErrSinkClosed is returned by Send after Close.
var ErrSinkClosed = errors.New("event sink is closed")

// Event is the base interface for all events
type Event interface {
	GetType() EventType
	GetTimestamp() time.Time
	GetSessionID() string
}

// BaseEvent contains common fields for all events
type BaseEvent struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"sessionId,omitempty"`
}

func (e BaseEvent) GetType() EventType      { return e.Type }
func (e BaseEvent) GetTimestamp() time.Time { return e.Timestamp }
func (e BaseEvent) GetSessionID() string    { return e.SessionID }

// NewBase stamps a BaseEvent with the current time.
func NewBase(t EventType, sessionID string) BaseEvent {
	return BaseEvent{Type: t, Timestamp: time.Now(), SessionID: sessionID}
}

// ChainUpdatedEvent tells views of ChainID to reload.
type ChainUpdatedEvent struct {
	BaseEvent
	ChainID string `json:"chainId"`
}

// ChainsListRefreshEvent tells chain lists to reload.
type ChainsListRefreshEvent struct {
	BaseEvent
}

// TurnStartedEvent is sent when a request goes out.
type TurnStartedEvent struct {
	BaseEvent
	Provider  string `json:"provider"`
	Transport string `json:"transport"`
}

// StreamDeltaEvent carries a piece of assistant text.
type StreamDeltaEvent struct {
	BaseEvent
	Content string `json:"content"`
}

// ProgressEvent carries one progress line.
type ProgressEvent struct {
	BaseEvent
	Text string `json:"text"`
}

// TurnCompletedEvent closes a successful turn.
type TurnCompletedEvent struct {
	BaseEvent
	Content          string `json:"content"`
	FinishReason     string `json:"finishReason,omitempty"`
	PromptTokens     int    `json:"promptTokens,omitempty"`
	CompletionTokens int    `json:"completionTokens,omitempty"`
}

// TurnFailedEvent closes a failed turn.
type TurnFailedEvent struct {
	BaseEvent
	Message string `json:"message"`
}

// TurnAbortedEvent closes a turn the user cancelled.
type TurnAbortedEvent struct {
	BaseEvent
}

// ProposalDetectedEvent is sent when a reply contains a proposal.
type ProposalDetectedEvent struct {
	BaseEvent
	ChainID string   `json:"chainId"`
	Summary string   `json:"summary,omitempty"`
	Preview []string `json:"preview"`
}

// ProposalAppliedEvent reports the outcome of applying a proposal.
type ProposalAppliedEvent struct {
	BaseEvent
	ChainID string `json:"chainId"`
	Applied int    `json:"applied"`
	Failed  int    `json:"failed"`
}

// EventSink is the interface for handling events
type EventSink interface {
	// Send sends an event to the sink
	Send(event Event) error

	// Close closes the event sink
	Close() error
}

// EventProcessor processes events
type EventProcessor interface {
	// Process handles a single event
	Process(event Event) error

	// Close cleans up any resources
	Close() error
}

// ProcessorFunc adapts a function to EventProcessor.
type ProcessorFunc func(event Event) error

func (f ProcessorFunc) Process(event Event) error { return f(event) }
func (f ProcessorFunc) Close() error              { return nil }

// ChannelEventSink implements EventSink using Go channels. Processors run on
// a single goroutine, in order.
type ChannelEventSink struct {
	events     chan Event
	processors []EventProcessor
	done       chan struct{}
	logger     *slog.Logger

	mu     sync.RWMutex
	closed bool
}

// NewChannelEventSink creates a new channel-based event sink
func NewChannelEventSink(bufferSize int, logger *slog.Logger, processors ...EventProcessor) *ChannelEventSink {
	if logger == nil {
		logger = slog.Default()
	}
	sink := &ChannelEventSink{
		events:     make(chan Event, bufferSize),
		processors: processors,
		done:       make(chan struct{}),
		logger:     logger.With("component", "event_sink"),
	}

	go sink.processEvents()

	return sink
}

// Send queues an event. It blocks while the buffer is full.
func (s *ChannelEventSink) Send(event Event) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrSinkClosed
	}
	s.events <- event
	return nil
}

// Close drains queued events and closes every processor.
func (s *ChannelEventSink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.events)
	s.mu.Unlock()
	<-s.done

	var errs []error
	for _, p := range s.processors {
		if err := p.Close(); err != nil {
			s.logger.Warn("failed to close processor", "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *ChannelEventSink) processEvents() {
	defer close(s.done)

	for event := range s.events {
		for _, processor := range s.processors {
			if err := processor.Process(event); err != nil {
				s.logger.Warn("failed to process event", "type", event.GetType(), "error", err)
			}
		}
	}
}

// Discard is a sink that drops every event.
type Discard struct{}

func (Discard) Send(Event) error { return nil }
func (Discard) Close() error     { return nil }
