package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/aristath/fetchdeck/internal/persistence"
	"github.com/aristath/fetchdeck/internal/printer"
)

type HistoryCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	taskID string
	limit  int
	format string
}

// NewHistoryCommand returns the history command.
func NewHistoryCommand(rootCmd *RootCommand, app *kingpin.Application) *HistoryCommand {
	c := &HistoryCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("history", "List recorded tasks, or show one with its events.")
	c.Cmd.Arg("task-id", "Show this task and its events.").StringVar(&c.taskID)
	c.Cmd.Flag("limit", "Maximum number of tasks to list (0 = all).").Default("20").IntVar(&c.limit)
	c.Cmd.Flag("format", "Output format (table, json).").Default("table").EnumVar(&c.format, "table", "json")

	return c
}

func (c HistoryCommand) Name() string { return c.Cmd.FullCommand() }

func (c HistoryCommand) Run(ctx context.Context) error {
	if c.rootCmd.NoHistory {
		return fmt.Errorf("task history is disabled")
	}

	store, err := persistence.NewSQLiteStore(ctx, c.rootCmd.historyPath())
	if err != nil {
		return fmt.Errorf("could not open task history: %w", err)
	}
	defer store.Close()

	var p printer.Printer
	switch c.format {
	case "json":
		p = printer.NewJSONPrinter(c.rootCmd.Stdout)
	default: // table
		p = printer.NewTablePrinter(c.rootCmd.Stdout)
	}

	if c.taskID != "" {
		task, err := store.GetTask(ctx, c.taskID)
		if errors.Is(err, persistence.ErrNotFound) {
			return fmt.Errorf("no task %q in history", c.taskID)
		}
		if err != nil {
			return err
		}
		evs, err := store.GetEvents(ctx, c.taskID)
		if err != nil {
			return err
		}
		return p.PrintTask(task, evs)
	}

	tasks, err := store.ListTasks(ctx, c.limit)
	if err != nil {
		return fmt.Errorf("could not list tasks: %w", err)
	}
	if err := p.PrintList(tasks); err != nil {
		return fmt.Errorf("could not print history: %w", err)
	}
	return nil
}
