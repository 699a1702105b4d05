package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elee1766/chainpilot/src/aiprovider"
	"github.com/elee1766/chainpilot/src/aisdk"
	"github.com/elee1766/chainpilot/src/assistant"
	"github.com/elee1766/chainpilot/src/chainapi"
	"github.com/elee1766/chainpilot/src/chatstore"
	"github.com/elee1766/chainpilot/src/config"
	"github.com/elee1766/chainpilot/src/proposal"
)

func TestExitCode(t *testing.T) {
	multi := &proposal.MultiError{}
	multi.Add(errors.New("boom"))

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"validation", fmt.Errorf("load: %w", config.ValidationError{Field: "x"}), ExitConfig},
		{"not configured", aiprovider.ErrNotConfigured, ExitConfig},
		{"unauthorized", &aiprovider.APIError{StatusCode: 401}, ExitAuth},
		{"session", fmt.Errorf("%w: s1", chatstore.ErrSessionNotFound), ExitNotFound},
		{"missing chain", &chainapi.APIError{StatusCode: 404}, ExitNotFound},
		{"chain conflict", &chainapi.APIError{StatusCode: 409}, ExitError},
		{"unreachable", &aiprovider.UnreachableError{Err: errors.New("dial")}, ExitNetwork},
		{"deadline", context.DeadlineExceeded, ExitTimeout},
		{"aborted", errAborted, ExitInterrupted},
		{"partial apply", multi, ExitPartial},
		{"empty", assistant.ErrEmptyMessages, ExitUsage},
		{"no proposal", proposal.ErrNoProposal, ExitUsage},
		{"other", errors.New("x"), ExitError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}

func TestChatText(t *testing.T) {
	c := &ChatCmd{Text: []string{"add", "a", "logger"}}
	text, err := c.text(strings.NewReader("ignored"))
	require.NoError(t, err)
	assert.Equal(t, "add a logger", text)

	c = &ChatCmd{Text: []string{"-"}}
	text, err = c.text(strings.NewReader("  from stdin\n"))
	require.NoError(t, err)
	assert.Equal(t, "from stdin", text)

	c = &ChatCmd{}
	_, err = c.text(strings.NewReader("   "))
	assert.ErrorIs(t, err, assistant.ErrEmptyMessages)
}

func TestConfirmInput(t *testing.T) {
	stdin := strings.NewReader("")
	var opened bool
	tty := func() (io.ReadCloser, error) {
		opened = true
		return io.NopCloser(strings.NewReader("y\n")), nil
	}

	in, closeIn, err := confirmInput(false, stdin, tty)
	require.NoError(t, err)
	closeIn()
	assert.Same(t, stdin, in)
	assert.False(t, opened)

	// the message consumed stdin, so the answer comes from the terminal
	c := &ChatCmd{Text: []string{"-"}}
	in, closeIn, err = confirmInput(c.readsStdin(), stdin, tty)
	require.NoError(t, err)
	defer closeIn()
	assert.True(t, opened)

	ok, err := newPromptConfirmer(in, &bytes.Buffer{}, nil).Confirm(context.Background(), &proposal.Proposal{ChainID: "c1"}, nil)
	require.NoError(t, err)
	assert.True(t, ok)

	_, _, err = confirmInput(true, stdin, func() (io.ReadCloser, error) { return nil, os.ErrNotExist })
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestPromptConfirmer(t *testing.T) {
	p := &proposal.Proposal{Type: proposal.Type, ChainID: "c1", Changes: []proposal.Action{&proposal.DeleteElements{ElementIDs: []string{"e1"}}}}

	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q", tt.input), func(t *testing.T) {
			var out bytes.Buffer
			c := newPromptConfirmer(strings.NewReader(tt.input), &out, nil)
			ok, err := c.Confirm(context.Background(), p, []string{"Delete 1 element(s): e1"})
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
			assert.Contains(t, out.String(), "Delete 1 element(s): e1")
			assert.Contains(t, out.String(), "Apply 1 change(s) to c1?")
		})
	}
}

func TestPromptConfirmerWaitsForPreview(t *testing.T) {
	shown := make(chan struct{}, 1)
	shown <- struct{}{}

	var out bytes.Buffer
	c := newPromptConfirmer(strings.NewReader("y\n"), &out, shown)
	ok, err := c.Confirm(context.Background(), &proposal.Proposal{ChainID: "c1"}, []string{"preview line"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NotContains(t, out.String(), "preview line")
}

func TestPromptConfirmerCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := newPromptConfirmer(strings.NewReader(""), &bytes.Buffer{}, make(chan struct{}))
	ok, err := c.Confirm(ctx, &proposal.Proposal{ChainID: "c1"}, nil)
	assert.False(t, ok)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPrintTranscript(t *testing.T) {
	md, err := aisdk.NewMetadataMessage(aisdk.TurnMetadata{
		Usage:        &aisdk.Usage{PromptTokens: 3, CompletionTokens: 4, TotalTokens: 7},
		FinishReason: "stop",
	})
	require.NoError(t, err)

	s := &chatstore.ChatSession{
		Title: "Logger",
		Mode:  aisdk.ModeAgent,
		Messages: []aisdk.ChatMessage{
			{Role: aisdk.RoleUser, Content: "add a logger"},
			{Role: aisdk.RoleAssistant, Content: "> [progress] ✓ create_element done\n\nAdded it."},
			md,
		},
	}

	var out bytes.Buffer
	printTranscript(&out, s, false)
	text := out.String()
	assert.Contains(t, text, "add a logger")
	assert.Contains(t, text, "Added it.")
	assert.NotContains(t, text, "[progress]")
	assert.NotContains(t, text, aisdk.MetadataTag)
	assert.Contains(t, text, "7 tokens, stop")

	out.Reset()
	printTranscript(&out, s, true)
	assert.Contains(t, out.String(), "create_element done")
}

func TestPrintPlan(t *testing.T) {
	plan := &chatstore.ChainCreationPlan{
		ChainID: "c1",
		Status:  chatstore.PlanFailed,
		Elements: []chatstore.PlannedElement{
			{ID: "change-0", Type: "script", Name: "Log", Status: chatstore.ElementCreated, ElementID: "el-1"},
		},
		Connections: []chatstore.PlannedConnection{
			{ID: "change-1", From: "el-1", To: "el-2", Status: chatstore.ConnectionFailed, Error: "locked"},
		},
	}

	var out bytes.Buffer
	printPlan(&out, plan)
	text := out.String()
	assert.Contains(t, text, "Plan for c1")
	assert.Contains(t, text, "→ el-1")
	assert.Contains(t, text, "locked")
}

func TestPrintSessionsEmpty(t *testing.T) {
	var out bytes.Buffer
	printSessions(&out, nil)
	assert.Contains(t, out.String(), "no sessions")

	out.Reset()
	printSessions(&out, []*chatstore.ChatSession{{ID: "s1", Title: "hello", Mode: aisdk.ModeAsk, UpdatedAt: time.Now()}})
	assert.Contains(t, out.String(), "hello")
}

func TestPrintJSONPlain(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, printJSON(&out, []byte(`{"a":1}`), true))
	assert.Equal(t, "{\"a\":1}\n", out.String())

	out.Reset()
	require.NoError(t, printJSON(&out, []byte(`{"a":1}`), false))
	assert.Contains(t, out.String(), "a")
}

func TestMaskAPIKey(t *testing.T) {
	assert.Equal(t, "", maskAPIKey(""))
	assert.Equal(t, "*****", maskAPIKey("short"))
	assert.Equal(t, "sk-a****wxyz", maskAPIKey("sk-a1234wxyz"))
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, "DEBUG", parseLogLevel("debug").String())
	assert.Equal(t, "WARN", parseLogLevel("").String())
	assert.Equal(t, "ERROR", parseLogLevel("error").String())
}
