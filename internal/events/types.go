package events

import (
	"time"
)

// Event is the base interface for all events.
type Event interface {
	EventType() string
	TaskID() string
}

// Event type constants
const (
	EventTypeStatus   = "task.status"
	EventTypeProgress = "task.progress"
	EventTypeDone     = "task.done"
	EventTypeError    = "task.error"
)

// StatusEvent replaces the current status line of a task.
type StatusEvent struct {
	ID        string
	Message   string
	Timestamp time.Time
}

func (e StatusEvent) EventType() string { return EventTypeStatus }
func (e StatusEvent) TaskID() string    { return e.ID }

// ProgressEvent reports the completed fraction of the running operation.
// Fraction is expected in [0, 1]; consumers clamp anything outside.
type ProgressEvent struct {
	ID        string
	Fraction  float64
	Timestamp time.Time
}

func (e ProgressEvent) EventType() string { return EventTypeProgress }
func (e ProgressEvent) TaskID() string    { return e.ID }

// DoneEvent is the terminal event of a task that succeeded.
type DoneEvent struct {
	ID        string
	Message   string
	Duration  time.Duration
	Timestamp time.Time
}

func (e DoneEvent) EventType() string { return EventTypeDone }
func (e DoneEvent) TaskID() string    { return e.ID }

// ErrorEvent is the terminal event of a task that failed or was cancelled.
type ErrorEvent struct {
	ID        string
	Message   string
	Cancelled bool
	Duration  time.Duration
	Timestamp time.Time
}

func (e ErrorEvent) EventType() string { return EventTypeError }
func (e ErrorEvent) TaskID() string    { return e.ID }

// IsTerminal reports whether e ends its task's event stream.
func IsTerminal(e Event) bool {
	switch e.(type) {
	case DoneEvent, *DoneEvent, ErrorEvent, *ErrorEvent:
		return true
	default:
		return false
	}
}
