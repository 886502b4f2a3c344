package commands

import (
	"context"
	"strings"

	"github.com/alecthomas/kingpin/v2"

	"github.com/aristath/fetchdeck/internal/ops"
	"github.com/aristath/fetchdeck/internal/runner"
)

type UploadCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	file     string
	endpoint string
	method   string
	field    string
}

// NewUploadCommand returns the upload command.
func NewUploadCommand(rootCmd *RootCommand, app *kingpin.Application) *UploadCommand {
	c := &UploadCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("upload", "Upload a file as a multipart form.")
	c.Cmd.Arg("file", "File to upload.").Required().StringVar(&c.file)
	c.Cmd.Flag("endpoint", "Upload URL (defaults to the configured endpoint).").StringVar(&c.endpoint)
	c.Cmd.Flag("method", "HTTP method, POST or PUT (defaults to the configured method).").StringVar(&c.method)
	c.Cmd.Flag("field", "Form field carrying the file (defaults to the configured field).").StringVar(&c.field)

	return c
}

func (c UploadCommand) Name() string { return c.Cmd.FullCommand() }

func (c UploadCommand) Run(ctx context.Context) error {
	upload := c.rootCmd.Config.Upload
	params := ops.UploadParams{
		File:     c.file,
		Endpoint: firstNonEmpty(c.endpoint, upload.Endpoint),
		Method:   strings.ToUpper(firstNonEmpty(c.method, upload.Method)),
		Field:    firstNonEmpty(c.field, upload.Field),
	}

	env := c.rootCmd.newEnv()
	return c.rootCmd.runTask(ctx, env, taskSpec{
		Params: describeParams(map[string]string{"file": params.File, "endpoint": params.Endpoint, "method": params.Method}),
		Build: func() (*runner.Task, error) {
			return runner.NewTask("Upload", ops.NewUpload(env, params), nil), nil
		},
	})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
