package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/elee1766/chainpilot/src/theme"
)

// ConfigCmd inspects configuration
type ConfigCmd struct {
	Show  ConfigShowCmd  `cmd:"" default:"1" help:"Print the effective configuration"`
	Paths ConfigPathsCmd `cmd:"" help:"List the configuration files that were merged"`
}

// ConfigShowCmd prints the merged configuration
type ConfigShowCmd struct {
	ShowSecrets bool `help:"Print the API key unmasked"`
	Plain       bool `help:"Disable syntax highlighting"`
}

func (c *ConfigShowCmd) Run(cli *CLI) error {
	cfg, _, err := cli.loadConfig()
	if err != nil {
		return err
	}
	shown := *cfg
	if !c.ShowSecrets {
		shown.API.APIKey = maskAPIKey(shown.API.APIKey)
	}
	b, err := json.MarshalIndent(shown, "", "  ")
	if err != nil {
		return err
	}
	return printJSON(os.Stdout, b, c.Plain)
}

// ConfigPathsCmd lists merged files
type ConfigPathsCmd struct{}

func (c *ConfigPathsCmd) Run(cli *CLI) error {
	_, loader, err := cli.loadConfig()
	if err != nil {
		return err
	}
	loaded := loader.Loaded()
	if len(loaded) == 0 {
		fmt.Println(theme.Muted().Render("no configuration files found; using defaults"))
		return nil
	}
	for _, f := range loaded {
		fmt.Printf("%-8s %s\n", f.Source, f.Path)
	}
	return nil
}

// maskAPIKey masks an API key for display
func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}
