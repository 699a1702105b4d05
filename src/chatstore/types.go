package chatstore

import (
	"maps"
	"time"

	"github.com/elee1766/chainpilot/src/aisdk"
)

// DefaultTitle is the title of a session nobody has named yet.
const DefaultTitle = "New chat"

// ChatSession is one conversation thread.
type ChatSession struct {
	ID                 string              `json:"id"`
	Title              string              `json:"title"`
	Messages           []aisdk.ChatMessage `json:"messages"`
	Mode               aisdk.Mode          `json:"mode"`
	CreatedAt          time.Time           `json:"createdAt"`
	UpdatedAt          time.Time           `json:"updatedAt"`
	ChainCreationPlan  *ChainCreationPlan  `json:"chainCreationPlan,omitempty"`
	LastAttachmentURLs []string            `json:"lastAttachmentUrls,omitempty"`
	ConversationID     string              `json:"conversationId,omitempty"`
}

// PlanStatus is the overall state of a chain creation plan.
type PlanStatus string

const (
	PlanPlanning   PlanStatus = "planning"
	PlanCreating   PlanStatus = "creating"
	PlanConnecting PlanStatus = "connecting"
	PlanCompleted  PlanStatus = "completed"
	PlanFailed     PlanStatus = "failed"
)

// ElementStatus tracks a planned element.
type ElementStatus string

const (
	ElementPlanned  ElementStatus = "planned"
	ElementCreating ElementStatus = "creating"
	ElementCreated  ElementStatus = "created"
	ElementVerified ElementStatus = "verified"
	ElementFailed   ElementStatus = "failed"
	ElementUpdated  ElementStatus = "updated"
)

// ConnectionStatus tracks a planned connection.
type ConnectionStatus string

const (
	ConnectionPlanned ConnectionStatus = "planned"
	ConnectionCreated ConnectionStatus = "created"
	ConnectionFailed  ConnectionStatus = "failed"
)

// ChainCreationPlan is the assistant's multi-step plan for building a chain.
type ChainCreationPlan struct {
	ChainID     string              `json:"chainId"`
	Elements    []PlannedElement    `json:"elements"`
	Connections []PlannedConnection `json:"connections"`
	Status      PlanStatus          `json:"status"`
	CreatedAt   time.Time           `json:"createdAt"`
	UpdatedAt   time.Time           `json:"updatedAt"`
}

// PlannedElement is an element the plan intends to create. ID is local to
// the plan; ElementID is set once the backend has created it.
type PlannedElement struct {
	ID              string         `json:"id"`
	Type            string         `json:"type"`
	Name            string         `json:"name,omitempty"`
	ParentElementID string         `json:"parentElementId,omitempty"`
	Properties      map[string]any `json:"properties,omitempty"`
	Status          ElementStatus  `json:"status"`
	ElementID       string         `json:"elementId,omitempty"`
	Error           string         `json:"error,omitempty"`
}

// PlannedConnection links two planned or existing elements.
type PlannedConnection struct {
	ID           string           `json:"id"`
	From         string           `json:"from"`
	To           string           `json:"to"`
	Status       ConnectionStatus `json:"status"`
	ConnectionID string           `json:"connectionId,omitempty"`
	Error        string           `json:"error,omitempty"`
}

// Clone returns a deep copy of s.
func (s *ChatSession) Clone() *ChatSession {
	if s == nil {
		return nil
	}
	c := *s
	c.Messages = aisdk.CloneMessages(s.Messages)
	if s.LastAttachmentURLs != nil {
		c.LastAttachmentURLs = append([]string(nil), s.LastAttachmentURLs...)
	}
	c.ChainCreationPlan = s.ChainCreationPlan.Clone()
	return &c
}

// Clone returns a deep copy of p.
func (p *ChainCreationPlan) Clone() *ChainCreationPlan {
	if p == nil {
		return nil
	}
	c := *p
	c.Elements = make([]PlannedElement, len(p.Elements))
	for i, e := range p.Elements {
		e.Properties = maps.Clone(e.Properties)
		c.Elements[i] = e
	}
	c.Connections = append([]PlannedConnection(nil), p.Connections...)
	return &c
}
