package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/aristath/fetchdeck/internal/dispatch"
	"github.com/aristath/fetchdeck/internal/events"
	"github.com/aristath/fetchdeck/internal/log"
	"github.com/aristath/fetchdeck/internal/ops"
	"github.com/aristath/fetchdeck/internal/persistence"
	"github.com/aristath/fetchdeck/internal/runner"
	"github.com/aristath/fetchdeck/internal/tui"
)

// taskSpec is what a task command hands to the shared task runtime.
type taskSpec struct {
	Params string                       // Parameter summary stored in history
	Build  func() (*runner.Task, error) // Called once per run; the TUI may re-run
}

// runTask runs spec on a fresh runner, through the terminal UI or headless.
func (c *RootCommand) runTask(ctx context.Context, env *ops.Env, spec taskSpec) error {
	logger := c.Logger

	rec, closeHistory := c.openHistory(ctx)
	defer closeHistory()

	var timeout time.Duration
	if c.Config != nil {
		timeout = c.Config.TaskTimeout.Std()
	}
	rn := runner.New(runner.Config{Logger: logger, TaskTimeout: timeout})

	// Interruption cancels the task and kills whatever external tools it
	// started; the task still reports its terminal event.
	stop := context.AfterFunc(ctx, func() {
		logger.Infof("Interrupted, stopping running task")
		if id, ok := rn.Current(); ok {
			rn.Cancel(id)
		}
		if err := env.Procs.KillAll(); err != nil {
			logger.Warningf("Error killing subprocesses: %v", err)
		}
	})
	defer stop()

	if c.Headless {
		return c.runHeadless(rn, rec, spec)
	}
	return c.runInteractive(ctx, rn, rec, spec)
}

// openHistory opens the task history. History is best effort: when it cannot
// be opened tasks still run, unrecorded.
func (c *RootCommand) openHistory(ctx context.Context) (*persistence.Recorder, func()) {
	if c.NoHistory {
		return nil, func() {}
	}

	path := c.historyPath()
	store, err := persistence.NewSQLiteStore(ctx, path)
	if err != nil {
		c.Logger.Warningf("Task history disabled: %v", err)
		return nil, func() {}
	}

	n, err := store.MarkInterrupted(ctx)
	if err != nil {
		c.Logger.Warningf("Could not close unfinished history entries: %v", err)
	} else if n > 0 {
		c.Logger.Warningf("Marked %d unfinished task(s) from a previous run as interrupted", n)
	}

	c.Logger.Debugf("Recording task history in %s", path)
	return persistence.NewRecorder(store, c.Logger), func() {
		if err := store.Close(); err != nil {
			c.Logger.Warningf("Error closing task history: %v", err)
		}
	}
}

// runHeadless runs one task and logs its events until the terminal one.
func (c *RootCommand) runHeadless(rn *runner.Runner, rec *persistence.Recorder, spec taskSpec) error {
	task, err := spec.Build()
	if err != nil {
		return err
	}

	ch, ok := rn.Start(task)
	if !ok {
		return fmt.Errorf("another task is already running")
	}
	defer rn.Wait()

	// History writes and the event drain ignore the command context: the
	// runner turns interruption into a terminal event, which is still wanted.
	bg := context.Background()
	if err := rec.Begin(bg, task, spec.Params); err != nil {
		c.Logger.Warningf("History: %v", err)
	}

	logger := c.Logger.WithValues(log.Kv{"task": task.ID})
	var state dispatch.State
	state.Begin(task.ID, task.Label)
	logger.Infof("%s", state.Status)

	lastDecile := -1
	err = dispatch.Drain(bg, ch, func(e events.Event) {
		if err := rec.Record(bg, e); err != nil {
			logger.Warningf("History: %v", err)
		}
		if !state.Apply(e) {
			return
		}

		switch ev := e.(type) {
		case events.StatusEvent:
			logger.Infof("%s", ev.Message)
		case events.ProgressEvent:
			if d := int(state.Fraction * 10); d != lastDecile {
				lastDecile = d
				logger.Infof("Progress %s", state.PercentText())
			}
		case events.DoneEvent:
			logger.Infof("Task finished in %s", ev.Duration)
			fmt.Fprintln(c.Stdout, ev.Message)
		}
	})
	if err != nil {
		return fmt.Errorf("could not read task events: %w", err)
	}

	if state.Outcome != dispatch.OutcomeSucceeded {
		return errors.New(state.Notice)
	}
	return nil
}

// runInteractive runs the terminal UI until the user quits.
func (c *RootCommand) runInteractive(ctx context.Context, rn *runner.Runner, rec *persistence.Recorder, spec taskSpec) error {
	model := tui.New(tui.Config{
		Runner:    rn,
		NewTask:   spec.Build,
		Params:    spec.Params,
		Recorder:  rec,
		Logger:    c.Logger,
		AutoStart: true,
	})

	p := tea.NewProgram(model,
		tea.WithAltScreen(),
		tea.WithContext(ctx),
		tea.WithInput(c.Stdin),
		tea.WithOutput(c.Stdout),
	)
	_, err := p.Run()

	if id, ok := rn.Current(); ok {
		rn.Cancel(id)
	}
	rn.Wait()

	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("terminal UI failed: %w", err)
	}
	return nil
}
