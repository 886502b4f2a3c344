package printer

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/aristath/fetchdeck/internal/persistence"
)

// TablePrinter prints task history in a table format.
type TablePrinter struct {
	writer io.Writer
}

// NewTablePrinter creates a new table printer.
func NewTablePrinter(w io.Writer) *TablePrinter {
	return &TablePrinter{writer: w}
}

// PrintList prints tasks in a table format, newest first as given.
func (t *TablePrinter) PrintList(tasks []*persistence.TaskRecord) error {
	if len(tasks) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "ID\tLABEL\tSTATUS\tSTARTED\tDURATION")
	for _, task := range tasks {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", task.ID, task.Label, task.Status, TimeAgo(task.StartedAt), FormatDuration(task.Duration()))
	}

	return nil
}

// PrintTask prints one task with its recorded events.
func (t *TablePrinter) PrintTask(task *persistence.TaskRecord, events []persistence.EventRecord) error {
	fmt.Fprintf(t.writer, "ID:         %s\n", task.ID)
	fmt.Fprintf(t.writer, "Label:      %s\n", task.Label)
	fmt.Fprintf(t.writer, "Operation:  %s\n", task.Operation)
	if task.Chain != "" {
		fmt.Fprintf(t.writer, "Chain:      %s\n", task.Chain)
	}
	if task.Params != "" {
		fmt.Fprintf(t.writer, "Params:     %s\n", task.Params)
	}
	fmt.Fprintf(t.writer, "Status:     %s\n", task.Status)
	fmt.Fprintf(t.writer, "Started:    %s\n", FormatTimestamp(task.StartedAt))
	if !task.FinishedAt.IsZero() {
		fmt.Fprintf(t.writer, "Finished:   %s\n", FormatTimestamp(task.FinishedAt))
		fmt.Fprintf(t.writer, "Duration:   %s\n", FormatDuration(task.Duration()))
	}
	if task.Message != "" {
		fmt.Fprintf(t.writer, "Message:    %s\n", task.Message)
	}

	if len(events) == 0 {
		return nil
	}

	fmt.Fprintln(t.writer, "\nEvents:")
	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()
	for _, e := range events {
		fmt.Fprintf(tw, "  %s\t%s\t%s\n", e.Timestamp.UTC().Format(time.TimeOnly), e.Kind, e.Message)
	}

	return nil
}
