package commands

import (
	"context"

	"github.com/alecthomas/kingpin/v2"

	"github.com/aristath/fetchdeck/internal/ops"
	"github.com/aristath/fetchdeck/internal/runner"
)

type DownloadCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	url       string
	dest      string
	outputDir string
}

// NewDownloadCommand returns the download command.
func NewDownloadCommand(rootCmd *RootCommand, app *kingpin.Application) *DownloadCommand {
	c := &DownloadCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("download", "Download a single file over HTTP.")
	c.Cmd.Arg("url", "URL to download.").Required().StringVar(&c.url)
	c.Cmd.Flag("dest", "Target file (derived from the URL when empty).").StringVar(&c.dest)
	c.Cmd.Flag("output-dir", "Directory for the file (defaults to the configured output directory).").StringVar(&c.outputDir)

	return c
}

func (c DownloadCommand) Name() string { return c.Cmd.FullCommand() }

func (c DownloadCommand) Run(ctx context.Context) error {
	env := c.rootCmd.newEnv()
	params := ops.DownloadParams{
		URL:       c.url,
		Dest:      c.dest,
		OutputDir: c.rootCmd.outputDir(c.outputDir),
	}

	return c.rootCmd.runTask(ctx, env, taskSpec{
		Params: describeParams(map[string]string{"url": params.URL, "dest": params.Dest, "output_dir": params.OutputDir}),
		Build: func() (*runner.Task, error) {
			return runner.NewTask("Download", ops.NewDownload(env, params), nil), nil
		},
	})
}
