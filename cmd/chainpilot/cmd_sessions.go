package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/x/ansi"

	"github.com/elee1766/chainpilot/src/aisdk"
	"github.com/elee1766/chainpilot/src/app"
	"github.com/elee1766/chainpilot/src/chatstore"
	"github.com/elee1766/chainpilot/src/reconcile"
	"github.com/elee1766/chainpilot/src/theme"
)

// SessionsCmd manages stored chat sessions
type SessionsCmd struct {
	List   SessionsListCmd   `cmd:"" default:"1" help:"List sessions, newest first"`
	New    SessionsNewCmd    `cmd:"" help:"Create an empty session"`
	Show   SessionsShowCmd   `cmd:"" help:"Print the messages of a session"`
	Delete SessionsDeleteCmd `cmd:"" help:"Delete a session"`
	Rename SessionsRenameCmd `cmd:"" help:"Change the title of a session"`
	Mode   SessionsModeCmd   `cmd:"" help:"Change the mode of a session"`
	Plan   SessionsPlanCmd   `cmd:"" help:"Show the chain creation plan of a session"`
}

// withStore opens the app for commands that only touch sessions
func withStore(cli *CLI, fn func(a *app.App) error) error {
	a, cleanup, err := cli.openApp(context.Background(), app.Options{})
	if err != nil {
		return err
	}
	defer cleanup()
	return fn(a)
}

// SessionsListCmd lists sessions
type SessionsListCmd struct {
	JSON bool `help:"Print as JSON"`
}

func (c *SessionsListCmd) Run(cli *CLI) error {
	return withStore(cli, func(a *app.App) error {
		sessions := a.Store.GetAllSessions()
		if c.JSON {
			return writeJSON(os.Stdout, sessions)
		}
		printSessions(os.Stdout, sessions)
		return nil
	})
}

func printSessions(w io.Writer, sessions []*chatstore.ChatSession) {
	if len(sessions) == 0 {
		fmt.Fprintln(w, theme.Muted().Render("no sessions"))
		return
	}
	for _, s := range sessions {
		fmt.Fprintf(w, "%s  %-5s  %s  %s\n",
			theme.Title().Render(s.ID),
			s.Mode,
			theme.Muted().Render(s.UpdatedAt.Local().Format("2006-01-02 15:04")),
			ansi.Truncate(s.Title, 60, "…"),
		)
	}
}

// SessionsNewCmd creates a session
type SessionsNewCmd struct {
	Mode string `short:"m" enum:",ask,agent" default:"" help:"Session mode (defaults to config)"`
}

func (c *SessionsNewCmd) Run(cli *CLI) error {
	return withStore(cli, func(a *app.App) error {
		mode := aisdk.Mode(c.Mode)
		if mode == "" {
			mode = aisdk.Mode(a.Config.Chat.DefaultMode)
		}
		fmt.Println(a.Store.CreateSession(mode).ID)
		return nil
	})
}

// SessionsShowCmd prints a session's transcript
type SessionsShowCmd struct {
	ID       string `arg:"" help:"Session id"`
	Progress bool   `help:"Keep tool progress lines in assistant messages"`
	JSON     bool   `help:"Print as JSON"`
}

func (c *SessionsShowCmd) Run(cli *CLI) error {
	return withStore(cli, func(a *app.App) error {
		s, ok := a.Store.GetSession(c.ID)
		if !ok {
			return fmt.Errorf("%w: %s", chatstore.ErrSessionNotFound, c.ID)
		}
		if c.JSON {
			return writeJSON(os.Stdout, s)
		}
		printTranscript(os.Stdout, s, c.Progress)
		return nil
	})
}

func printTranscript(w io.Writer, s *chatstore.ChatSession, progress bool) {
	fmt.Fprintln(w, theme.Title().Render(s.Title)+theme.Muted().Render(fmt.Sprintf("  (%s, %d messages)", s.Mode, len(s.Messages))))
	for _, m := range s.Messages {
		if md, ok := aisdk.ParseMetadata(m); ok {
			if md.Usage != nil {
				fmt.Fprintln(w, theme.Muted().Render(fmt.Sprintf("  %d tokens, %s", md.Usage.TotalTokens, md.FinishReason)))
			}
			continue
		}

		content := m.Content
		if m.Role == aisdk.RoleAssistant {
			view := reconcile.Render(content)
			content = view.Text
			if progress {
				for _, step := range view.Steps {
					fmt.Fprintln(w, theme.Success().Render("  ✓ "+step))
				}
				if view.Current != "" {
					fmt.Fprintln(w, theme.Muted().Render("  ⋯ "+view.Current))
				}
			}
		}

		fmt.Fprintln(w)
		fmt.Fprintln(w, theme.Muted().Render(strings.ToUpper(string(m.Role))))
		fmt.Fprintln(w, content)
	}
}

// SessionsDeleteCmd deletes a session
type SessionsDeleteCmd struct {
	ID string `arg:"" help:"Session id"`
}

func (c *SessionsDeleteCmd) Run(cli *CLI) error {
	return withStore(cli, func(a *app.App) error {
		return a.Store.DeleteSession(c.ID)
	})
}

// SessionsRenameCmd retitles a session
type SessionsRenameCmd struct {
	ID    string   `arg:"" help:"Session id"`
	Title []string `arg:"" help:"New title"`
}

func (c *SessionsRenameCmd) Run(cli *CLI) error {
	return withStore(cli, func(a *app.App) error {
		return a.Store.UpdateSessionTitle(c.ID, strings.Join(c.Title, " "))
	})
}

// SessionsModeCmd switches a session between ask and agent mode
type SessionsModeCmd struct {
	ID   string `arg:"" help:"Session id"`
	Mode string `arg:"" enum:"ask,agent" help:"New mode (ask, agent)"`
}

func (c *SessionsModeCmd) Run(cli *CLI) error {
	return withStore(cli, func(a *app.App) error {
		return a.Store.UpdateSessionMode(c.ID, aisdk.Mode(c.Mode))
	})
}

// SessionsPlanCmd shows the chain creation plan of a session
type SessionsPlanCmd struct {
	ID   string `arg:"" help:"Session id"`
	JSON bool   `help:"Print as JSON"`
}

func (c *SessionsPlanCmd) Run(cli *CLI) error {
	return withStore(cli, func(a *app.App) error {
		s, ok := a.Store.GetSession(c.ID)
		if !ok {
			return fmt.Errorf("%w: %s", chatstore.ErrSessionNotFound, c.ID)
		}
		if s.ChainCreationPlan == nil {
			return chatstore.ErrPlanNotFound
		}
		if c.JSON {
			return writeJSON(os.Stdout, s.ChainCreationPlan)
		}
		printPlan(os.Stdout, s.ChainCreationPlan)
		return nil
	})
}

func printPlan(w io.Writer, plan *chatstore.ChainCreationPlan) {
	fmt.Fprintln(w, theme.Title().Render("Plan for "+plan.ChainID)+theme.Muted().Render("  "+string(plan.Status)))
	for _, e := range plan.Elements {
		line := fmt.Sprintf("  %-8s %s %q", e.Status, e.Type, e.Name)
		if e.ElementID != "" {
			line += " → " + e.ElementID
		}
		printPlanLine(w, line, e.Error)
	}
	for _, c := range plan.Connections {
		line := fmt.Sprintf("  %-8s %s → %s", c.Status, c.From, c.To)
		if c.ConnectionID != "" {
			line += " (" + c.ConnectionID + ")"
		}
		printPlanLine(w, line, c.Error)
	}
}

func printPlanLine(w io.Writer, line, errMsg string) {
	if errMsg != "" {
		fmt.Fprintln(w, theme.Error().Render(line+": "+errMsg))
		return
	}
	fmt.Fprintln(w, line)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
