package chainapi

import "fmt"

// Chain is the subset of a chain the assistant works with.
type Chain struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Description  string       `json:"description,omitempty"`
	Labels       []string     `json:"labels,omitempty"`
	Elements     []Element    `json:"elements,omitempty"`
	Dependencies []Connection `json:"dependencies,omitempty"`
}

// Element is one node of a chain.
type Element struct {
	ID              string         `json:"id"`
	Type            string         `json:"type"`
	Name            string         `json:"name,omitempty"`
	Description     string         `json:"description,omitempty"`
	ParentElementID string         `json:"parentElementId,omitempty"`
	Properties      map[string]any `json:"properties,omitempty"`
}

// Connection is a directed dependency between two elements.
type Connection struct {
	ID   string `json:"id"`
	From string `json:"from"`
	To   string `json:"to"`
}

// ElementsChange lists what a mutation created, updated or removed. Creating
// a composite element may create several elements at once.
type ElementsChange struct {
	CreatedElements     []Element    `json:"createdElements,omitempty"`
	UpdatedElements     []Element    `json:"updatedElements,omitempty"`
	RemovedElements     []Element    `json:"removedElements,omitempty"`
	CreatedDependencies []Connection `json:"createdDependencies,omitempty"`
	RemovedDependencies []Connection `json:"removedDependencies,omitempty"`
}

// ChainPatch updates chain metadata. Nil fields are left unchanged.
type ChainPatch struct {
	Name        *string  `json:"name,omitempty"`
	Description *string  `json:"description,omitempty"`
	Labels      []string `json:"labels,omitempty"`
}

// CreateElementRequest creates an element of Type, optionally under a parent.
type CreateElementRequest struct {
	Type            string `json:"type"`
	ParentElementID string `json:"parentElementId,omitempty"`
}

// ElementPatch updates an element. Nil fields are left unchanged; Properties
// replaces the whole property map when set.
type ElementPatch struct {
	Name            *string        `json:"name,omitempty"`
	Description     *string        `json:"description,omitempty"`
	ParentElementID *string        `json:"parentElementId,omitempty"`
	Properties      map[string]any `json:"properties,omitempty"`
}

// APIError is a non-2xx response from the chain service.
type APIError struct {
	StatusCode int
	Method     string
	Path       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("chain API %s %s failed with status %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("chain API %s %s failed with status %d", e.Method, e.Path, e.StatusCode)
}
