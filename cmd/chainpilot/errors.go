package main

import (
	"context"
	"errors"

	"github.com/elee1766/chainpilot/src/aiprovider"
	"github.com/elee1766/chainpilot/src/assistant"
	"github.com/elee1766/chainpilot/src/chainapi"
	"github.com/elee1766/chainpilot/src/chatstore"
	"github.com/elee1766/chainpilot/src/config"
	"github.com/elee1766/chainpilot/src/proposal"
)

// Exit codes following standard conventions
const (
	ExitSuccess     = 0 // Success
	ExitError       = 1 // General error
	ExitUsage       = 2 // Usage error
	ExitConfig      = 3 // Configuration error
	ExitAuth        = 4 // Authentication error
	ExitNotFound    = 5 // Unknown session or chain
	ExitNetwork     = 6 // Network error
	ExitTimeout     = 7 // Timeout error
	ExitInterrupted = 8 // Interrupted by user
	ExitPartial     = 9 // Proposal applied with failures
)

// errAborted is returned when the user interrupts a turn
var errAborted = errors.New("interrupted")

// exitCode determines the appropriate exit code for an error
func exitCode(err error) int {
	var validationErr config.ValidationError
	var chainErr *chainapi.APIError
	var multiErr *proposal.MultiError

	switch {
	case err == nil:
		return ExitSuccess
	case errors.As(err, &validationErr),
		errors.Is(err, aiprovider.ErrNotConfigured),
		errors.Is(err, chainapi.ErrNotConfigured):
		return ExitConfig
	case errors.Is(err, aiprovider.ErrUnauthorized), errors.Is(err, aiprovider.ErrForbidden):
		return ExitAuth
	case errors.Is(err, chatstore.ErrSessionNotFound),
		errors.Is(err, chatstore.ErrPlanNotFound),
		errors.As(err, &chainErr) && chainErr.StatusCode == 404:
		return ExitNotFound
	case errors.Is(err, aiprovider.ErrUnreachable), errors.Is(err, aiprovider.ErrServiceUnavailable):
		return ExitNetwork
	case errors.Is(err, context.DeadlineExceeded):
		return ExitTimeout
	case errors.Is(err, errAborted), errors.Is(err, context.Canceled):
		return ExitInterrupted
	case errors.As(err, &multiErr):
		return ExitPartial
	case errors.Is(err, assistant.ErrEmptyMessages),
		errors.Is(err, chatstore.ErrInvalidMode),
		errors.Is(err, proposal.ErrNoProposal):
		return ExitUsage
	default:
		return ExitError
	}
}
