package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/elee1766/chainpilot/src/proposal"
	"github.com/elee1766/chainpilot/src/theme"
)

// previewWait bounds how long the prompt waits for the proposal preview to
// be printed by the event sink.
const previewWait = 2 * time.Second

// promptConfirmer asks on a terminal before a proposal is applied
type promptConfirmer struct {
	in    *bufio.Reader
	out   io.Writer
	shown <-chan struct{}
}

func newPromptConfirmer(in io.Reader, out io.Writer, shown <-chan struct{}) *promptConfirmer {
	return &promptConfirmer{in: bufio.NewReader(in), out: out, shown: shown}
}

func (p *promptConfirmer) Confirm(ctx context.Context, prop *proposal.Proposal, preview []string) (bool, error) {
	printPreview := p.shown == nil
	if p.shown != nil {
		select {
		case <-p.shown:
		case <-time.After(previewWait):
			printPreview = true
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
	if printPreview {
		for _, line := range preview {
			fmt.Fprintln(p.out, " • "+line)
		}
	}

	fmt.Fprint(p.out, theme.Title().Render(fmt.Sprintf("Apply %d change(s) to %s? [y/N] ", len(prop.Changes), prop.ChainID)))

	answer := make(chan string, 1)
	go func() {
		line, _ := p.in.ReadString('\n')
		answer <- line
	}()

	select {
	case line := <-answer:
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true, nil
		default:
			return false, nil
		}
	case <-ctx.Done():
		fmt.Fprintln(p.out)
		return false, ctx.Err()
	}
}
