package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/aristath/fetchdeck/internal/ops"
	"github.com/aristath/fetchdeck/internal/runner"
)

type TranscodeCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	input  string
	output string
	preset string
}

// NewTranscodeCommand returns the transcode command.
func NewTranscodeCommand(rootCmd *RootCommand, app *kingpin.Application) *TranscodeCommand {
	c := &TranscodeCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("transcode", "Re-encode a media file with ffmpeg.")
	c.Cmd.Arg("input", "Media file to transcode.").Required().StringVar(&c.input)
	c.Cmd.Flag("output", "Output file (defaults to <input>-transcoded.mp4).").StringVar(&c.output)
	c.Cmd.Flag("preset", "Named preset from the configuration (defaults to the configured preset).").StringVar(&c.preset)

	return c
}

func (c TranscodeCommand) Name() string { return c.Cmd.FullCommand() }

func (c TranscodeCommand) Run(ctx context.Context) error {
	cfg := c.rootCmd.Config
	name := cfg.Preset
	if c.preset != "" {
		name = c.preset
	}
	preset, ok := cfg.Presets[name]
	if !ok {
		return fmt.Errorf("unknown preset %q", name)
	}

	env := c.rootCmd.newEnv()
	params := ops.TranscodeParams{
		Input:  c.input,
		Output: c.output,
		Preset: ops.Preset(preset),
	}

	return c.rootCmd.runTask(ctx, env, taskSpec{
		Params: describeParams(map[string]string{"input": params.Input, "output": params.Output, "preset": name}),
		Build: func() (*runner.Task, error) {
			return runner.NewTask("Transcode", ops.NewTranscode(env, params), nil), nil
		},
	})
}
