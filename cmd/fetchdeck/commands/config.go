package commands

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/aristath/fetchdeck/internal/config"
)

type ConfigCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	write string
}

// NewConfigCommand returns the config command.
func NewConfigCommand(rootCmd *RootCommand, app *kingpin.Application) *ConfigCommand {
	c := &ConfigCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("config", "Print the effective configuration, or write it to a file as a starting point.")
	c.Cmd.Flag("write", "Save the effective configuration to this path instead of printing it.").StringVar(&c.write)

	return c
}

func (c ConfigCommand) Name() string { return c.Cmd.FullCommand() }

func (c ConfigCommand) Run(_ context.Context) error {
	cfg := c.rootCmd.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	if c.write != "" {
		if err := config.Save(cfg, c.write); err != nil {
			return fmt.Errorf("could not save configuration: %w", err)
		}
		c.rootCmd.Logger.Infof("Configuration written to %s", c.write)
		fmt.Fprintf(c.rootCmd.Stdout, "Configuration written to %s\n", c.write)
		return nil
	}

	enc := json.NewEncoder(c.rootCmd.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("could not print configuration: %w", err)
	}
	return nil
}
