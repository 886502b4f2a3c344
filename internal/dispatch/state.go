// Package dispatch applies task events to the observable state shown to the
// user. It never blocks on the producing worker.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/aristath/fetchdeck/internal/events"
)

// Outcome is the terminal state of the last task.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeSucceeded
	OutcomeFailed
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeFailed:
		return "failed"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "none"
	}
}

// State is what the interactive layer displays for the current task.
type State struct {
	TaskID   string
	Label    string
	Busy     bool
	Status   string  // Current status line
	Fraction float64 // Current progress, always within [0, 1]
	Notice   string  // Failure message awaiting acknowledgement
	Outcome  Outcome
}

// Begin resets the state for a freshly accepted task.
func (s *State) Begin(taskID, label string) {
	*s = State{
		TaskID: taskID,
		Label:  label,
		Busy:   true,
		Status: fmt.Sprintf("Starting %s...", label),
	}
}

// Apply updates the state with one event. Events belonging to a task other
// than the current one are ignored and Apply reports false.
func (s *State) Apply(e events.Event) bool {
	if e == nil {
		return false
	}
	if s.TaskID != "" && e.TaskID() != s.TaskID {
		return false
	}

	switch ev := e.(type) {
	case events.StatusEvent:
		s.Status = ev.Message
	case events.ProgressEvent:
		s.Fraction = Clamp(ev.Fraction)
	case events.DoneEvent:
		s.Busy = false
		s.Fraction = 1.0
		s.Status = ev.Message
		s.Outcome = OutcomeSucceeded
	case events.ErrorEvent:
		s.Busy = false
		s.Fraction = 0.0
		s.Notice = ev.Message
		if ev.Cancelled {
			s.Outcome = OutcomeCancelled
			s.Status = "Cancelled"
		} else {
			s.Outcome = OutcomeFailed
			s.Status = "Failed"
		}
	default:
		return false
	}
	return true
}

// DismissNotice clears an acknowledged failure notice.
func (s *State) DismissNotice() {
	s.Notice = ""
}

// PercentText renders Fraction for display. An exact 0 shows nothing, meaning
// no progress has been reported yet.
func (s State) PercentText() string {
	switch {
	case s.Fraction <= 0:
		return ""
	case s.Fraction >= 1:
		return "100%"
	default:
		return fmt.Sprintf("%d%%", int(math.Floor(s.Fraction*100)))
	}
}

// Clamp limits f to [0, 1]. NaN becomes 0.
func Clamp(f float64) float64 {
	switch {
	case math.IsNaN(f), f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}

// Poll applies every event already queued on ch without waiting. It reports
// whether the channel is exhausted.
func Poll(ch *events.Channel, s *State) bool {
	if ch == nil {
		return true
	}
	for _, e := range ch.Drain() {
		s.Apply(e)
	}
	return ch.Exhausted()
}

// Drain blocks until ch is exhausted or ctx is done, handing every event to
// apply in order.
func Drain(ctx context.Context, ch *events.Channel, apply func(events.Event)) error {
	for {
		e, err := ch.Next(ctx)
		if errors.Is(err, events.ErrClosed) {
			return nil
		}
		if err != nil {
			return err
		}
		apply(e)
	}
}
