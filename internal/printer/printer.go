// Package printer renders task history for the terminal.
package printer

import "github.com/aristath/fetchdeck/internal/persistence"

// Printer knows how to print task history in different formats.
type Printer interface {
	PrintList(tasks []*persistence.TaskRecord) error
	PrintTask(task *persistence.TaskRecord, events []persistence.EventRecord) error
}
