package events

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/x/ansi"

	"github.com/elee1766/chainpilot/src/theme"
)

// ConsoleProcessorConfig configures the console event processor
type ConsoleProcessorConfig struct {
	Out          io.Writer
	StreamMode   bool // print deltas as they arrive
	ShowProgress bool
	RawMode      bool // only print final assistant text
	MaxPreview   int  // max width of single-line previews
}

// ConsoleEventProcessor processes events and outputs to console
type ConsoleEventProcessor struct {
	config  ConsoleProcessorConfig
	mu      sync.Mutex
	midLine bool
}

// NewConsoleEventProcessor creates a new console event processor
func NewConsoleEventProcessor(config ConsoleProcessorConfig) *ConsoleEventProcessor {
	if config.Out == nil {
		config.Out = os.Stdout
	}
	if config.MaxPreview == 0 {
		config.MaxPreview = 120
	}
	return &ConsoleEventProcessor{config: config}
}

// Process handles a single event
func (p *ConsoleEventProcessor) Process(event Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.config.RawMode {
		if e, ok := event.(*TurnCompletedEvent); ok {
			fmt.Fprintln(p.config.Out, e.Content)
		}
		return nil
	}

	switch e := event.(type) {
	case *TurnStartedEvent:
		// nothing to show until the first chunk

	case *StreamDeltaEvent:
		if p.config.StreamMode {
			fmt.Fprint(p.config.Out, e.Content)
			p.midLine = !strings.HasSuffix(e.Content, "\n")
		}

	case *ProgressEvent:
		if p.config.ShowProgress {
			p.newline()
			fmt.Fprintln(p.config.Out, theme.Muted().Render("  ⋯ "+p.preview(e.Text)))
		}

	case *TurnCompletedEvent:
		if !p.config.StreamMode {
			fmt.Fprintln(p.config.Out, e.Content)
		}
		p.newline()
		if e.CompletionTokens > 0 {
			fmt.Fprintln(p.config.Out, theme.Muted().Render(
				fmt.Sprintf("  %d prompt / %d completion tokens", e.PromptTokens, e.CompletionTokens)))
		}

	case *TurnFailedEvent:
		p.newline()
		fmt.Fprintln(p.config.Out, theme.Error().Render("✗ "+e.Message))

	case *TurnAbortedEvent:
		p.newline()
		fmt.Fprintln(p.config.Out, theme.Warning().Render("⚠ request cancelled"))

	case *ProposalDetectedEvent:
		p.newline()
		var b strings.Builder
		b.WriteString(theme.Title().Render("Proposed changes to " + e.ChainID))
		if e.Summary != "" {
			b.WriteString("\n" + e.Summary)
		}
		for _, line := range e.Preview {
			b.WriteString("\n • " + p.preview(line))
		}
		fmt.Fprintln(p.config.Out, theme.Box().Render(b.String()))

	case *ProposalAppliedEvent:
		msg := fmt.Sprintf("applied %d change(s) to %s", e.Applied, e.ChainID)
		if e.Failed > 0 {
			fmt.Fprintln(p.config.Out, theme.Warning().Render(fmt.Sprintf("⚠ %s, %d failed", msg, e.Failed)))
		} else {
			fmt.Fprintln(p.config.Out, theme.Success().Render("✓ "+msg))
		}

	case *ChainUpdatedEvent, *ChainsListRefreshEvent:
		// consumed by chain views, not the console
	}

	return nil
}

// Close cleans up resources
func (p *ConsoleEventProcessor) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.newline()
	return nil
}

func (p *ConsoleEventProcessor) newline() {
	if p.midLine {
		fmt.Fprintln(p.config.Out)
		p.midLine = false
	}
}

func (p *ConsoleEventProcessor) preview(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return ansi.Truncate(s, p.config.MaxPreview, "…")
}
