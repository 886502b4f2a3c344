package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/fetchdeck/internal/events"
	"github.com/aristath/fetchdeck/internal/log"
	"github.com/aristath/fetchdeck/internal/runner"
)

// Recorder writes the lifecycle of tasks into a Store. A nil Recorder, or
// one without a store, records nothing.
//
// Calls for one task must come from a single goroutine, in event order.
type Recorder struct {
	store  Store
	logger log.Logger
}

// NewRecorder creates a recorder backed by store.
func NewRecorder(store Store, logger log.Logger) *Recorder {
	if logger == nil {
		logger = log.Noop
	}
	return &Recorder{
		store:  store,
		logger: logger.WithValues(log.Kv{"svc": "history"}),
	}
}

// NewTaskRecord describes task as a running history entry.
func NewTaskRecord(task *runner.Task, params string) *TaskRecord {
	rec := &TaskRecord{
		ID:     task.ID,
		Label:  task.Label,
		Params: params,
		Status: StatusRunning,
	}
	if task.Primary != nil {
		rec.Operation = task.Primary.Name()
	}
	if task.Chain != nil {
		rec.Chain = task.Chain.Name
	}
	return rec
}

// Begin records that task was accepted by the runner.
func (r *Recorder) Begin(ctx context.Context, task *runner.Task, params string) error {
	if r == nil || r.store == nil {
		return nil
	}
	if err := r.store.SaveTask(ctx, NewTaskRecord(task, params)); err != nil {
		return fmt.Errorf("failed to record task %s: %w", task.ID, err)
	}
	return nil
}

// Record stores one task event. Progress events are not kept; terminal
// events also close the task record.
func (r *Recorder) Record(ctx context.Context, e events.Event) error {
	if r == nil || r.store == nil || e == nil {
		return nil
	}

	var err error
	switch ev := e.(type) {
	case events.StatusEvent:
		err = r.store.AppendEvent(ctx, ev.ID, ev.EventType(), ev.Message)
	case events.DoneEvent:
		err = r.finish(ctx, ev.ID, ev.EventType(), StatusSucceeded, ev.Message, ev.Timestamp)
	case events.ErrorEvent:
		status := StatusFailed
		if ev.Cancelled {
			status = StatusCancelled
		}
		err = r.finish(ctx, ev.ID, ev.EventType(), status, ev.Message, ev.Timestamp)
	default:
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to record %s for task %s: %w", e.EventType(), e.TaskID(), err)
	}
	return nil
}

func (r *Recorder) finish(ctx context.Context, taskID, kind string, status TaskStatus, message string, at time.Time) error {
	if err := r.store.AppendEvent(ctx, taskID, kind, message); err != nil {
		return err
	}
	r.logger.Debugf("Task %s recorded as %s", taskID, status)
	return r.store.UpdateTaskStatus(ctx, taskID, status, message, at)
}
