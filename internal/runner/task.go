package runner

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aristath/fetchdeck/internal/operation"
)

// TaskIDPrefix prefixes every generated task ID.
const TaskIDPrefix = "task-"

// Chain is a secondary operation that runs after the primary one succeeds, as
// part of the same task. It is captured when the task is created and never
// changes afterwards.
type Chain struct {
	Name string // Step name used in status and error messages (e.g. "archive")

	// When decides, from the primary result, whether the chained step runs.
	// A nil When always runs the step.
	When func(primary operation.Result) bool

	// Build creates the chained operation from the primary result. The returned
	// operation validates its own parameters when run.
	Build func(primary operation.Result) (operation.Operation, error)
}

// Task is one request to run an operation, optionally followed by a chained one.
type Task struct {
	ID      string              // Unique identifier
	Label   string              // Human-readable name
	Primary operation.Operation // Operation that always runs
	Chain   *Chain              // Optional dependent step
}

// NewTask creates a task with a fresh ID.
func NewTask(label string, primary operation.Operation, chain *Chain) *Task {
	return &Task{
		ID:      generateTaskID(),
		Label:   label,
		Primary: primary,
		Chain:   chain,
	}
}

// generateTaskID returns a time-ordered unique task ID.
func generateTaskID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Sprintf(TaskIDPrefix+"%d", time.Now().UnixNano())
	}
	return TaskIDPrefix + id.String()
}
