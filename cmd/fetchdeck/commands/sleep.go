package commands

import (
	"context"
	"time"

	"github.com/alecthomas/kingpin/v2"

	"github.com/aristath/fetchdeck/internal/ops"
	"github.com/aristath/fetchdeck/internal/runner"
)

type SleepCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	duration time.Duration
}

// NewSleepCommand returns the sleep command, a timed task with no side effects.
func NewSleepCommand(rootCmd *RootCommand, app *kingpin.Application) *SleepCommand {
	c := &SleepCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("sleep", "Run a timed task that only reports progress.").Hidden()
	c.Cmd.Arg("duration", "How long the task runs.").Default("5s").DurationVar(&c.duration)

	return c
}

func (c SleepCommand) Name() string { return c.Cmd.FullCommand() }

func (c SleepCommand) Run(ctx context.Context) error {
	d := c.duration
	return c.rootCmd.runTask(ctx, c.rootCmd.newEnv(), taskSpec{
		Params: describeParams(map[string]string{"duration": d.String()}),
		Build: func() (*runner.Task, error) {
			return runner.NewTask("Sleep", ops.Sleep{Duration: d}, nil), nil
		},
	})
}
