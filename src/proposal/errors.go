package proposal

import (
	"errors"
	"fmt"
	"strings"
)

// ErrElementNotFound is returned when a freshly created element cannot be
// found again to apply its name and properties.
var (
	ErrElementNotFound = errors.New("created element not found")
	ErrNoProposal      = errors.New("no " + Type + " marker found")
)

// ActionError is the failure of one change.
type ActionError struct {
	Index  int
	Action ActionType
	Err    error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("change %d (%s): %v", e.Index, e.Action, e.Err)
}

func (e *ActionError) Unwrap() error { return e.Err }

// MultiError represents multiple errors.
type MultiError struct {
	Errors []error
}

// Error implements the error interface.
func (e *MultiError) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	msgs := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("%d changes failed: %s", len(e.Errors), strings.Join(msgs, "; "))
}

// Add adds an error to the multi-error.
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors returns true if there are any errors.
func (e *MultiError) HasErrors() bool {
	return len(e.Errors) > 0
}

// Unwrap returns the errors slice.
func (e *MultiError) Unwrap() []error {
	return e.Errors
}

// ErrorOrNil returns nil when nothing was added.
func (e *MultiError) ErrorOrNil() error {
	if e == nil || !e.HasErrors() {
		return nil
	}
	return e
}
