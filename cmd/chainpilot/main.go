package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/elee1766/chainpilot/src/app"
	"github.com/elee1766/chainpilot/src/config"
)

// CLI represents the main CLI structure
type CLI struct {
	ConfigFile string `name:"config" short:"c" type:"path" help:"Extra config file merged after the standard locations"`
	EnvFile    string `name:"env-file" default:".env" help:"Dotenv file loaded before reading configuration"`
	LogLevel   string `enum:",debug,info,warn,error" default:"" help:"Log level (overrides config)"`
	LogFile    string `type:"path" help:"Also write JSON logs to this file"`

	Chat     ChatCmd     `cmd:"" help:"Send a message to the chain assistant"`
	Sessions SessionsCmd `cmd:"" help:"Manage chat sessions"`
	Proposal ProposalCmd `cmd:"" help:"Inspect chain modification proposals"`
	Config   ConfigCmd   `cmd:"" help:"Inspect configuration"`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("chainpilot"),
		kong.Description("Chat with the chain assistant and apply its proposals"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)

	err := ctx.Run(&cli)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// loadConfig loads dotenv, then the configuration from every location
func (c *CLI) loadConfig() (*config.Config, *config.Loader, error) {
	if c.EnvFile != "" {
		if err := godotenv.Load(c.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, nil, fmt.Errorf("failed to load %s: %w", c.EnvFile, err)
		}
	}

	loader := config.NewLoader(config.GetConfigPaths())
	if c.ConfigFile != "" {
		loader.WithFile(c.ConfigFile)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, err
	}

	if c.LogLevel != "" {
		cfg.Logging.Level = c.LogLevel
	}
	if c.LogFile != "" {
		cfg.Logging.File = c.LogFile
	}
	return cfg, loader, nil
}

// openApp loads configuration and wires the application. The returned
// cleanup closes the app and the log file.
func (c *CLI) openApp(ctx context.Context, opts app.Options) (*app.App, func(), error) {
	cfg, _, err := c.loadConfig()
	if err != nil {
		return nil, nil, err
	}

	logger, closeLog := createCLILogger(cfg.Logging)
	opts.Config = cfg
	opts.Logger = logger

	a, err := app.New(ctx, opts)
	if err != nil {
		closeLog()
		return nil, nil, err
	}

	cleanup := func() {
		if err := a.Close(); err != nil {
			logger.Warn("failed to close app", "error", err)
		}
		closeLog()
	}
	return a, cleanup, nil
}
