package commands

import (
	"context"
	"strconv"

	"github.com/alecthomas/kingpin/v2"

	"github.com/aristath/fetchdeck/internal/ops"
	"github.com/aristath/fetchdeck/internal/runner"
)

type MirrorCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	url           string
	outputDir     string
	depth         int
	noParent      bool
	archiveAfter  bool
	archivePath   string
	archiveFormat string
}

// NewMirrorCommand returns the mirror command.
func NewMirrorCommand(rootCmd *RootCommand, app *kingpin.Application) *MirrorCommand {
	c := &MirrorCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("mirror", "Mirror a website with wget, optionally archiving it afterwards.")
	c.Cmd.Arg("url", "Site URL to mirror.").Required().StringVar(&c.url)
	c.Cmd.Flag("output-dir", "Directory for the mirror (defaults to the configured output directory).").StringVar(&c.outputDir)
	c.Cmd.Flag("depth", "Recursion depth (0 = unlimited).").Default("0").IntVar(&c.depth)
	c.Cmd.Flag("no-parent", "Never ascend above the starting directory.").BoolVar(&c.noParent)
	c.Cmd.Flag("archive-after", "Archive the mirrored site once the mirror succeeds.").BoolVar(&c.archiveAfter)
	c.Cmd.Flag("archive-path", "Archive file (derived from the mirrored directory when empty).").StringVar(&c.archivePath)
	c.Cmd.Flag("archive-format", "Archive format (defaults to the configured format).").EnumVar(&c.archiveFormat, ops.FormatZip, ops.FormatTarGz)

	return c
}

func (c MirrorCommand) Name() string { return c.Cmd.FullCommand() }

func (c MirrorCommand) Run(ctx context.Context) error {
	env := c.rootCmd.newEnv()
	params := ops.MirrorParams{
		URL:       c.url,
		OutputDir: c.rootCmd.outputDir(c.outputDir),
		Depth:     c.depth,
		NoParent:  c.noParent,
	}

	format := c.archiveFormat
	if format == "" {
		format = c.rootCmd.Config.ArchiveFormat
	}
	archive := ops.ArchiveParams{Output: c.archivePath, Format: format}

	desc := map[string]string{"url": params.URL, "output_dir": params.OutputDir}
	if c.depth > 0 {
		desc["depth"] = strconv.Itoa(c.depth)
	}
	if c.archiveAfter {
		desc["archive_format"] = format
		desc["archive_path"] = c.archivePath
	}

	return c.rootCmd.runTask(ctx, env, taskSpec{
		Params: describeParams(desc),
		Build: func() (*runner.Task, error) {
			// The chain is captured per task and never changes while it runs.
			chain := ops.ArchiveAfterMirror(env, c.archiveAfter, archive)
			return runner.NewTask("Mirror", ops.NewMirror(env, params), chain), nil
		},
	})
}
