package reconcile

import (
	"regexp"
	"strings"
)

// ProgressPrefix starts every progress line in a reply's content.
const ProgressPrefix = "> [progress] "

var (
	blankRuns = regexp.MustCompile(`\n{3,}`)

	// Operations that change the chain, in snake, camel or spaced form.
	chainOpPattern = regexp.MustCompile(`(?i)(create|update|delete|remove|transfer)[_ ]?(element|connection|dependenc)`)

	completedPrefixes = []string{"✓", "✔", "✅", "[x]", "completed", "complete:", "done", "finished"}
)

// ProgressBlock renders text as a progress line. It always starts on a fresh
// line and is followed by a blank one.
func ProgressBlock(content, text string) string {
	text = strings.TrimSpace(strings.ReplaceAll(text, "\n", " "))
	block := ProgressPrefix + text + "\n\n"
	if content != "" && !strings.HasSuffix(content, "\n") {
		block = "\n\n" + block
	}
	return block
}

// StripProgressBlocks removes progress lines, leaving the reply text.
func StripProgressBlocks(content string) string {
	lines := strings.Split(content, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.HasPrefix(line, ProgressPrefix) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(blankRuns.ReplaceAllString(strings.Join(kept, "\n"), "\n\n"))
}

// IsCompleted reports whether a progress line describes a finished step.
func IsCompleted(step string) bool {
	s := strings.ToLower(strings.TrimSpace(step))
	for _, p := range completedPrefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// MentionsChainOperation reports whether a progress line names an operation
// that changes the chain.
func MentionsChainOperation(step string) bool {
	return chainOpPattern.MatchString(step)
}

// ParseSteps returns the completed progress steps in order, and the step in
// flight: the last pending line, provided it comes after the last completed one.
func ParseSteps(content string) (completed []string, current string) {
	lastCompleted, lastPending := -1, -1
	var steps []string
	for _, line := range strings.Split(content, "\n") {
		if !strings.HasPrefix(line, ProgressPrefix) {
			continue
		}
		step := strings.TrimSpace(strings.TrimPrefix(line, ProgressPrefix))
		if step == "" {
			continue
		}
		if IsCompleted(step) {
			completed = append(completed, step)
			lastCompleted = len(steps)
		} else {
			lastPending = len(steps)
		}
		steps = append(steps, step)
	}
	if lastPending > lastCompleted {
		current = steps[lastPending]
	}
	return completed, current
}

// View is content split for display.
type View struct {
	Steps   []string
	Current string
	Text    string
}

// Render splits content into progress steps and reply text.
func Render(content string) View {
	steps, current := ParseSteps(content)
	return View{Steps: steps, Current: current, Text: StripProgressBlocks(content)}
}
