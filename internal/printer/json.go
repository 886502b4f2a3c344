package printer

import (
	"encoding/json"
	"io"
	"time"

	"github.com/aristath/fetchdeck/internal/persistence"
)

// JSONPrinter prints task history in JSON format.
type JSONPrinter struct {
	writer io.Writer
}

// NewJSONPrinter creates a new JSON printer.
func NewJSONPrinter(w io.Writer) *JSONPrinter {
	return &JSONPrinter{writer: w}
}

// taskOutput represents a task in the output.
type taskOutput struct {
	ID         string        `json:"id"`
	Label      string        `json:"label"`
	Operation  string        `json:"operation"`
	Chain      string        `json:"chain,omitempty"`
	Params     string        `json:"params,omitempty"`
	Status     string        `json:"status"`
	Message    string        `json:"message,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt *time.Time    `json:"finished_at"`
	Events     []eventOutput `json:"events,omitempty"`
}

type eventOutput struct {
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

func newTaskOutput(task *persistence.TaskRecord) taskOutput {
	out := taskOutput{
		ID:        task.ID,
		Label:     task.Label,
		Operation: task.Operation,
		Chain:     task.Chain,
		Params:    task.Params,
		Status:    string(task.Status),
		Message:   task.Message,
		StartedAt: task.StartedAt.UTC(),
	}
	if !task.FinishedAt.IsZero() {
		utcTime := task.FinishedAt.UTC()
		out.FinishedAt = &utcTime
	}
	return out
}

// PrintList prints tasks in JSON format.
func (j *JSONPrinter) PrintList(tasks []*persistence.TaskRecord) error {
	items := make([]taskOutput, len(tasks))
	for i, task := range tasks {
		items[i] = newTaskOutput(task)
	}

	enc := json.NewEncoder(j.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(items)
}

// PrintTask prints one task and its events in JSON format.
func (j *JSONPrinter) PrintTask(task *persistence.TaskRecord, events []persistence.EventRecord) error {
	out := newTaskOutput(task)
	for _, e := range events {
		out.Events = append(out.Events, eventOutput{Kind: e.Kind, Message: e.Message, Timestamp: e.Timestamp.UTC()})
	}

	enc := json.NewEncoder(j.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
