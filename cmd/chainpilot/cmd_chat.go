package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/elee1766/chainpilot/src/aisdk"
	"github.com/elee1766/chainpilot/src/app"
	"github.com/elee1766/chainpilot/src/assistant"
	"github.com/elee1766/chainpilot/src/events"
	"github.com/elee1766/chainpilot/src/proposal"
	"github.com/elee1766/chainpilot/src/reconcile"
	"github.com/elee1766/chainpilot/src/theme"
)

// ChatCmd sends one message and prints the reply as it streams
type ChatCmd struct {
	Text      []string `arg:"" optional:"" help:"Message text; read from stdin when omitted"`
	Session   string   `short:"s" help:"Session to continue (a new one is created when empty)"`
	Mode      string   `short:"m" enum:",ask,agent" default:"" help:"Mode for this turn (ask, agent)"`
	Chain     string   `help:"Chain the conversation is about"`
	Attach    []string `short:"a" type:"existingfile" help:"Files to upload with the message"`
	Transport string   `enum:",stream,progress,chat" default:"" help:"Force a transport (stream, progress, chat)"`
	Yes       bool     `short:"y" help:"Apply proposals without asking"`
	Raw       bool     `help:"Only print the final reply"`
}

func (c *ChatCmd) Run(cli *CLI) error {
	text, err := c.text(os.Stdin)
	if err != nil {
		return err
	}

	shown := make(chan struct{}, 1)
	console := events.NewConsoleEventProcessor(events.ConsoleProcessorConfig{
		Out:          os.Stdout,
		StreamMode:   !c.Raw,
		ShowProgress: !c.Raw,
		RawMode:      c.Raw,
	})
	// runs after the console, so the preview is on screen before the prompt
	proposalShown := events.ProcessorFunc(func(e events.Event) error {
		if e.GetType() == events.EventProposalDetected {
			select {
			case shown <- struct{}{}:
			default:
			}
		}
		return nil
	})

	var confirmer assistant.Confirmer
	if c.Yes {
		confirmer = assistant.ConfirmFunc(func(context.Context, *proposal.Proposal, []string) (bool, error) {
			return true, nil
		})
	} else if in, closeIn, err := confirmInput(c.readsStdin(), os.Stdin, openTTY); err != nil {
		fmt.Fprintln(os.Stderr, theme.Warning().Render("⚠ "+err.Error()+"; proposals will not be applied without --yes"))
	} else {
		defer closeIn()
		var wait <-chan struct{}
		if !c.Raw {
			wait = shown
		}
		confirmer = newPromptConfirmer(in, os.Stderr, wait)
	}

	ctx := context.Background()
	a, cleanup, err := cli.openApp(ctx, app.Options{
		Processors: []events.EventProcessor{console, proposalShown},
		Confirmer:  confirmer,
	})
	if err != nil {
		return err
	}
	defer cleanup()

	if banner := a.Banner(); banner != "" {
		fmt.Fprintln(os.Stderr, theme.Warning().Render("⚠ "+banner))
	}

	sessionID := c.Session
	if sessionID == "" {
		mode := aisdk.Mode(a.Config.Chat.DefaultMode)
		if c.Mode != "" {
			mode = aisdk.Mode(c.Mode)
		}
		sessionID = a.Store.CreateSession(mode).ID
		fmt.Fprintln(os.Stderr, theme.Muted().Render("session "+sessionID))
	}

	attachments, closeFiles, err := openAttachments(c.Attach)
	if err != nil {
		return err
	}
	defer closeFiles()

	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	defer signal.Stop(interrupts)
	go func() {
		if _, ok := <-interrupts; ok {
			a.Assistant.Abort(sessionID)
		}
	}()

	res, err := a.Assistant.HandleSend(ctx, sessionID, text, assistant.SendOptions{
		ChainID:     c.Chain,
		Mode:        aisdk.Mode(c.Mode),
		Attachments: attachments,
		Transport:   assistant.Transport(c.Transport),
	})
	if err != nil {
		return err
	}

	switch res.State {
	case reconcile.StateAborted:
		if res.RestoredInput != "" {
			fmt.Fprintln(os.Stderr, theme.Muted().Render("not sent: "+res.RestoredInput))
		}
		return errAborted
	case reconcile.StateError:
		return errors.New(res.Error)
	}

	if res.Applied != nil && c.Chain != "" {
		if chain, ok := a.Chain(c.Chain); ok {
			fmt.Fprintln(os.Stderr, theme.Muted().Render(fmt.Sprintf("%s now has %d element(s) and %d connection(s)",
				chain.Name, len(chain.Elements), len(chain.Dependencies))))
		}
	}
	return res.ApplyErr
}

func (c *ChatCmd) readsStdin() bool {
	return len(c.Text) == 0 || (len(c.Text) == 1 && c.Text[0] == "-")
}

// text joins the positional words, or reads stdin when there are none
func (c *ChatCmd) text(stdin io.Reader) (string, error) {
	if !c.readsStdin() {
		return strings.Join(c.Text, " "), nil
	}
	b, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read message from stdin: %w", err)
	}
	text := strings.TrimSpace(string(b))
	if text == "" {
		return "", assistant.ErrEmptyMessages
	}
	return text, nil
}

// confirmInput picks where the y/N answer is read from. Once the message has
// been read from stdin, the answer has to come from the terminal.
func confirmInput(stdinUsed bool, stdin io.Reader, open func() (io.ReadCloser, error)) (io.Reader, func(), error) {
	if !stdinUsed {
		return stdin, func() {}, nil
	}
	tty, err := open()
	if err != nil {
		return nil, nil, fmt.Errorf("message was read from stdin and no terminal is available: %w", err)
	}
	return tty, func() { tty.Close() }, nil
}

func openTTY() (io.ReadCloser, error) {
	if runtime.GOOS == "windows" {
		return os.Open("CONIN$")
	}
	return os.Open("/dev/tty")
}

func openAttachments(paths []string) ([]assistant.Attachment, func(), error) {
	var files []*os.File
	closeAll := func() {
		for _, f := range files {
			f.Close()
		}
	}

	attachments := make([]assistant.Attachment, 0, len(paths))
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("failed to open attachment: %w", err)
		}
		files = append(files, f)
		attachments = append(attachments, assistant.Attachment{Name: filepath.Base(path), Reader: f})
	}
	return attachments, closeAll, nil
}
