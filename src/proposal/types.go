// Package proposal extracts chain modification proposals embedded in
// assistant replies and applies them through the chain service.
package proposal

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Type is the discriminator every proposal carries.
const Type = "chain-modification-proposal"

// ActionType names one kind of change.
type ActionType string

const (
	ActionUpdateChain       ActionType = "updateChain"
	ActionCreateElement     ActionType = "createElement"
	ActionUpdateElement     ActionType = "updateElement"
	ActionDeleteElements    ActionType = "deleteElements"
	ActionCreateConnection  ActionType = "createConnection"
	ActionDeleteConnections ActionType = "deleteConnections"
)

// ActionTypes lists every known action in declaration order.
var ActionTypes = []ActionType{
	ActionUpdateChain,
	ActionCreateElement,
	ActionUpdateElement,
	ActionDeleteElements,
	ActionCreateConnection,
	ActionDeleteConnections,
}

// Action is one change of a proposal. Implementations are the structs below.
type Action interface {
	Kind() ActionType
	isAction()
}

// UpdateChain renames or re-describes the chain.
type UpdateChain struct {
	Name        *string `json:"name,omitempty" validate:"required_without=Description"`
	Description *string `json:"description,omitempty" validate:"required_without=Name"`
}

// CreateElement adds an element, then applies Name and Properties to it.
type CreateElement struct {
	ElementType     string         `json:"elementType" validate:"required"`
	ParentElementID string         `json:"parentElementId,omitempty"`
	Name            string         `json:"name,omitempty"`
	Properties      map[string]any `json:"properties,omitempty"`
}

// UpdateElement changes the name or merges properties of an existing element.
type UpdateElement struct {
	ElementID  string         `json:"elementId" validate:"required"`
	Name       *string        `json:"name,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
}

// DeleteElements removes elements.
type DeleteElements struct {
	ElementIDs []string `json:"elementIds" validate:"min=1,dive,required"`
}

// CreateConnection adds a dependency between two elements.
type CreateConnection struct {
	From string `json:"from" validate:"required"`
	To   string `json:"to" validate:"required,nefield=From"`
}

// DeleteConnections removes dependencies.
type DeleteConnections struct {
	ConnectionIDs []string `json:"connectionIds" validate:"min=1,dive,required"`
}

func (*UpdateChain) Kind() ActionType       { return ActionUpdateChain }
func (*CreateElement) Kind() ActionType     { return ActionCreateElement }
func (*UpdateElement) Kind() ActionType     { return ActionUpdateElement }
func (*DeleteElements) Kind() ActionType    { return ActionDeleteElements }
func (*CreateConnection) Kind() ActionType  { return ActionCreateConnection }
func (*DeleteConnections) Kind() ActionType { return ActionDeleteConnections }

func (*UpdateChain) isAction()       {}
func (*CreateElement) isAction()     {}
func (*UpdateElement) isAction()     {}
func (*DeleteElements) isAction()    {}
func (*CreateConnection) isAction()  {}
func (*DeleteConnections) isAction() {}

func newAction(kind ActionType) (Action, error) {
	switch kind {
	case ActionUpdateChain:
		return &UpdateChain{}, nil
	case ActionCreateElement:
		return &CreateElement{}, nil
	case ActionUpdateElement:
		return &UpdateElement{}, nil
	case ActionDeleteElements:
		return &DeleteElements{}, nil
	case ActionCreateConnection:
		return &CreateConnection{}, nil
	case ActionDeleteConnections:
		return &DeleteConnections{}, nil
	default:
		return nil, fmt.Errorf("unknown action %q", kind)
	}
}

// Proposal is a structured set of chain edits.
type Proposal struct {
	Type    string   `json:"type" validate:"eq=chain-modification-proposal"`
	ChainID string   `json:"chainId" validate:"required"`
	Summary string   `json:"summary,omitempty"`
	Changes []Action `json:"changes" validate:"-"`
}

// UnmarshalJSON decodes the changes array by each entry's "action" field.
// A missing or null "changes" key is an error; an empty array is not.
func (p *Proposal) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type    string             `json:"type"`
		ChainID string             `json:"chainId"`
		Summary string             `json:"summary"`
		Changes *[]json.RawMessage `json:"changes"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Changes == nil {
		return errors.New("proposal has no changes array")
	}

	changes := make([]Action, 0, len(*raw.Changes))
	for i, msg := range *raw.Changes {
		var head struct {
			Action ActionType `json:"action"`
		}
		if err := json.Unmarshal(msg, &head); err != nil {
			return fmt.Errorf("change %d: %w", i, err)
		}
		action, err := newAction(head.Action)
		if err != nil {
			return fmt.Errorf("change %d: %w", i, err)
		}
		if err := json.Unmarshal(msg, action); err != nil {
			return fmt.Errorf("change %d: %w", i, err)
		}
		changes = append(changes, action)
	}

	*p = Proposal{Type: raw.Type, ChainID: raw.ChainID, Summary: raw.Summary, Changes: changes}
	return nil
}

// MarshalJSON writes each change with its "action" discriminator.
func (p Proposal) MarshalJSON() ([]byte, error) {
	changes := make([]json.RawMessage, 0, len(p.Changes))
	for i, action := range p.Changes {
		b, err := encodeAction(action)
		if err != nil {
			return nil, fmt.Errorf("change %d: %w", i, err)
		}
		changes = append(changes, b)
	}
	return json.Marshal(struct {
		Type    string            `json:"type"`
		ChainID string            `json:"chainId"`
		Summary string            `json:"summary,omitempty"`
		Changes []json.RawMessage `json:"changes"`
	}{p.Type, p.ChainID, p.Summary, changes})
}

func encodeAction(action Action) ([]byte, error) {
	b, err := json.Marshal(action)
	if err != nil {
		return nil, err
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(b, &fields); err != nil {
		return nil, err
	}
	kind, _ := json.Marshal(action.Kind())
	fields["action"] = kind
	return json.Marshal(fields)
}
