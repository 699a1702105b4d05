package proposal

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var markerPattern = regexp.MustCompile(`"type"\s*:\s*"chain-modification-proposal"`)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate checks the proposal and every change in it.
func Validate(p *Proposal) error {
	v := validatorInstance()
	if err := v.Struct(p); err != nil {
		return fmt.Errorf("invalid proposal: %w", err)
	}
	for i, action := range p.Changes {
		if action == nil {
			return fmt.Errorf("invalid proposal: change %d is empty", i)
		}
		if err := v.Struct(action); err != nil {
			return fmt.Errorf("invalid proposal: change %d (%s): %w", i, action.Kind(), err)
		}
	}
	return nil
}

// Locate returns the offset of the opening brace of the object that carries
// the proposal marker, or -1 when the text holds no marker.
func Locate(text string) int {
	loc := markerPattern.FindStringIndex(text)
	if loc == nil {
		return -1
	}
	depth := 0
	for i := loc[0] - 1; i >= 0; i-- {
		switch text[i] {
		case '}':
			depth++
		case '{':
			if depth == 0 {
				return i
			}
			depth--
		}
	}
	return -1
}

// Decode tries candidates that start at start and end at a closing brace,
// longest first, and returns the first one that decodes into a valid
// proposal.
func Decode(text string, start int) (*Proposal, error) {
	if start < 0 || start >= len(text) || text[start] != '{' {
		return nil, fmt.Errorf("no opening brace at offset %d", start)
	}

	var lastErr error
	end := len(text)
	for end > start {
		idx := strings.LastIndexByte(text[start:end], '}')
		if idx < 0 {
			break
		}
		end = start + idx
		candidate := text[start : end+1]

		var p Proposal
		if err := json.Unmarshal([]byte(candidate), &p); err != nil {
			lastErr = err
			continue
		}
		if p.Type != Type {
			lastErr = fmt.Errorf("unexpected type %q", p.Type)
			continue
		}
		if err := Validate(&p); err != nil {
			lastErr = err
			continue
		}
		return &p, nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no closing brace after offset %d", start)
	}
	return nil, lastErr
}

// Parse extracts the proposal embedded in text.
func Parse(text string) (*Proposal, error) {
	start := Locate(text)
	if start < 0 {
		return nil, ErrNoProposal
	}
	return Decode(text, start)
}

// TryParse is Parse for callers that only care whether a proposal exists.
func TryParse(text string) (*Proposal, bool) {
	p, err := Parse(text)
	if err != nil {
		return nil, false
	}
	return p, true
}
