package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/alecthomas/chroma/v2/quick"

	"github.com/elee1766/chainpilot/src/proposal"
	"github.com/elee1766/chainpilot/src/schema"
	"github.com/elee1766/chainpilot/src/theme"
)

// ProposalCmd works with chain modification proposals offline
type ProposalCmd struct {
	Parse  ProposalParseCmd  `cmd:"" help:"Extract and validate a proposal from assistant output"`
	Schema ProposalSchemaCmd `cmd:"" help:"Print the JSON schema sent to the assistant"`
}

// ProposalParseCmd extracts the proposal embedded in a text
type ProposalParseCmd struct {
	File  string `arg:"" optional:"" type:"existingfile" help:"File holding the reply; stdin when omitted"`
	Plain bool   `help:"Disable syntax highlighting"`
}

func (c *ProposalParseCmd) Run(cli *CLI) error {
	var r io.Reader = os.Stdin
	if c.File != "" {
		f, err := os.Open(c.File)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	p, err := proposal.Parse(string(b))
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	if err := printJSON(os.Stdout, out, c.Plain); err != nil {
		return err
	}

	var preview strings.Builder
	preview.WriteString(theme.Title().Render(fmt.Sprintf("%d change(s) to %s", len(p.Changes), p.ChainID)))
	if p.Summary != "" {
		preview.WriteString("\n" + p.Summary)
	}
	for _, line := range proposal.Describe(p) {
		preview.WriteString("\n • " + line)
	}
	fmt.Fprintln(os.Stdout, theme.Box().Render(preview.String()))
	return nil
}

// ProposalSchemaCmd prints the proposal JSON schema
type ProposalSchemaCmd struct {
	Plain bool `help:"Disable syntax highlighting"`
}

func (c *ProposalSchemaCmd) Run(cli *CLI) error {
	b, err := schema.ProposalSchemaJSON()
	if err != nil {
		return err
	}
	return printJSON(os.Stdout, b, c.Plain)
}

// printJSON writes indented JSON, highlighted unless plain is set
func printJSON(w io.Writer, b []byte, plain bool) error {
	if !plain {
		if err := quick.Highlight(w, string(b)+"\n", "json", "terminal256", "monokai"); err == nil {
			return nil
		}
	}
	_, err := fmt.Fprintln(w, string(b))
	return err
}
