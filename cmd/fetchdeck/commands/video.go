package commands

import (
	"context"

	"github.com/alecthomas/kingpin/v2"

	"github.com/aristath/fetchdeck/internal/ops"
	"github.com/aristath/fetchdeck/internal/runner"
)

type VideoCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	url       string
	format    string
	outputDir string
}

// NewVideoCommand returns the video command.
func NewVideoCommand(rootCmd *RootCommand, app *kingpin.Application) *VideoCommand {
	c := &VideoCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("video", "Fetch a video with yt-dlp.")
	c.Cmd.Arg("url", "Video page URL.").Required().StringVar(&c.url)
	c.Cmd.Flag("format", "yt-dlp format selector.").StringVar(&c.format)
	c.Cmd.Flag("output-dir", "Directory for the video (defaults to the configured output directory).").StringVar(&c.outputDir)

	return c
}

func (c VideoCommand) Name() string { return c.Cmd.FullCommand() }

func (c VideoCommand) Run(ctx context.Context) error {
	env := c.rootCmd.newEnv()
	params := ops.VideoParams{
		URL:       c.url,
		Format:    c.format,
		OutputDir: c.rootCmd.outputDir(c.outputDir),
	}

	return c.rootCmd.runTask(ctx, env, taskSpec{
		Params: describeParams(map[string]string{"url": params.URL, "format": params.Format, "output_dir": params.OutputDir}),
		Build: func() (*runner.Task, error) {
			return runner.NewTask("Video", ops.NewVideo(env, params), nil), nil
		},
	})
}
