package commands

import (
	"context"

	"github.com/alecthomas/kingpin/v2"

	"github.com/aristath/fetchdeck/internal/ops"
	"github.com/aristath/fetchdeck/internal/runner"
)

type ArchiveCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	source string
	output string
	format string
}

// NewArchiveCommand returns the archive command.
func NewArchiveCommand(rootCmd *RootCommand, app *kingpin.Application) *ArchiveCommand {
	c := &ArchiveCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("archive", "Pack a directory into a zip or tar.gz archive.")
	c.Cmd.Arg("source", "Directory to archive.").Required().StringVar(&c.source)
	c.Cmd.Flag("output", "Archive file (defaults to <source>.<format>).").StringVar(&c.output)
	c.Cmd.Flag("format", "Archive format (defaults to the configured format).").EnumVar(&c.format, ops.FormatZip, ops.FormatTarGz)

	return c
}

func (c ArchiveCommand) Name() string { return c.Cmd.FullCommand() }

func (c ArchiveCommand) Run(ctx context.Context) error {
	env := c.rootCmd.newEnv()
	params := ops.ArchiveParams{
		Source: c.source,
		Output: c.output,
		Format: c.format,
	}
	if params.Format == "" {
		params.Format = c.rootCmd.Config.ArchiveFormat
	}

	return c.rootCmd.runTask(ctx, env, taskSpec{
		Params: describeParams(map[string]string{"source": params.Source, "output": params.Output, "format": params.Format}),
		Build: func() (*runner.Task, error) {
			return runner.NewTask("Archive", ops.NewArchive(env, params), nil), nil
		},
	})
}
