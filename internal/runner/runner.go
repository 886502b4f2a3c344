// Package runner implements the single-flight background task runner.
//
// At most one task runs at a time. Each accepted task gets its own
// events.Channel; the worker goroutine pushes status and progress events to it
// and always finishes with exactly one terminal event.
package runner

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/aristath/fetchdeck/internal/events"
	"github.com/aristath/fetchdeck/internal/log"
	"github.com/aristath/fetchdeck/internal/operation"
)

// Config configures the runner.
type Config struct {
	Logger      log.Logger
	TaskTimeout time.Duration // Optional hard deadline per task (0 = none)
}

// active is the bookkeeping for the running task.
type active struct {
	task   *Task
	ch     *events.Channel
	cancel context.CancelFunc
}

// Runner executes tasks one at a time off the interactive goroutine.
type Runner struct {
	gate    *semaphore.Weighted
	logger  log.Logger
	timeout time.Duration

	mu      sync.Mutex
	current *active
	wg      sync.WaitGroup
}

// New creates a new runner.
func New(cfg Config) *Runner {
	if cfg.Logger == nil {
		cfg.Logger = log.Noop
	}

	return &Runner{
		gate:    semaphore.NewWeighted(1),
		logger:  cfg.Logger.WithValues(log.Kv{"svc": "runner"}),
		timeout: cfg.TaskTimeout,
	}
}

// Start runs task in a new worker goroutine and returns the channel its events
// arrive on. If another task is running it returns (nil, false) immediately
// and nothing is spawned.
//
// A nil task is a caller bug, not a busy runner. It also returns (nil, false),
// leaves the running task alone and is logged as a warning.
func (r *Runner) Start(task *Task) (*events.Channel, bool) {
	if task == nil {
		r.logger.Warningf("Ignoring start of a nil task")
		return nil, false
	}
	if !r.gate.TryAcquire(1) {
		r.logger.Debugf("Rejected task %q: another task is running", task.Label)
		return nil, false
	}

	var ctx context.Context
	var cancel context.CancelFunc
	if r.timeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), r.timeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}

	a := &active{
		task:   task,
		ch:     events.NewChannel(),
		cancel: cancel,
	}

	r.mu.Lock()
	r.current = a
	r.mu.Unlock()

	r.wg.Add(1)
	go r.work(ctx, a)

	return a.ch, true
}

// Cancel requests cooperative cancellation of the running task with the given
// ID. It is a no-op (returning false) when that task is not running.
func (r *Runner) Cancel(taskID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current == nil || r.current.task.ID != taskID {
		return false
	}
	r.logger.Infof("Cancellation requested for task %s", taskID)
	r.current.cancel()
	return true
}

// Busy reports whether a task is running.
func (r *Runner) Busy() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current != nil
}

// Current returns the ID of the running task, if any.
func (r *Runner) Current() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return "", false
	}
	return r.current.task.ID, true
}

// Wait blocks until the running worker, if any, has finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// work is the worker goroutine body.
func (r *Runner) work(ctx context.Context, a *active) {
	defer r.wg.Done()
	defer a.cancel()

	logger := r.logger.WithValues(log.Kv{"task": a.task.ID, "label": a.task.Label})
	logger.Infof("Task started")

	start := time.Now()
	sink := &channelSink{id: a.task.ID, ch: a.ch}
	terminal := r.safeExecute(ctx, a.task, sink, start, logger)

	r.finish(a, terminal)

	switch e := terminal.(type) {
	case events.DoneEvent:
		logger.Infof("Task succeeded in %s", e.Duration.Round(time.Millisecond))
	case events.ErrorEvent:
		if e.Cancelled {
			logger.Warningf("Task cancelled: %s", e.Message)
		} else {
			logger.Errorf("Task failed: %s", e.Message)
		}
	}
}

// safeExecute is the worker boundary: nothing raised below it escapes the
// worker goroutine.
func (r *Runner) safeExecute(ctx context.Context, task *Task, sink *channelSink, start time.Time, logger log.Logger) (terminal events.Event) {
	defer func() {
		if p := recover(); p != nil {
			logger.Errorf("Task panicked: %v\n%s", p, debug.Stack())
			err := fmt.Errorf("%w: %v", operation.ErrInternal, p)
			terminal = failure(ctx, task, start, err, operation.Describe(err))
		}
	}()
	return r.execute(ctx, task, sink, start, logger)
}

// execute runs the primary operation and, when the chain says so, the chained
// one. It returns the terminal event for the task.
func (r *Runner) execute(ctx context.Context, task *Task, sink *channelSink, start time.Time, logger log.Logger) events.Event {
	primaryName := stepName(task.Primary)

	res, err := r.runStep(ctx, task.Primary, sink, logger)
	if err != nil {
		return failure(ctx, task, start, err, fmt.Sprintf("%s failed: %s", primaryName, operation.Describe(err)))
	}

	chain := task.Chain
	if chain == nil {
		return success(task, start, res)
	}

	run, err := decide(chain, res)
	if err != nil {
		return failure(ctx, task, start, err, chainedFailure(primaryName, chain.Name, err))
	}
	if !run {
		logger.Debugf("Chained %s step not triggered", chain.Name)
		return success(task, start, res)
	}

	sink.Status(fmt.Sprintf("%s finished, starting %s step...", primaryName, chain.Name))

	op, err := build(chain, res)
	if err != nil {
		return failure(ctx, task, start, err, chainedFailure(primaryName, chain.Name, err))
	}

	chained, err := r.runStep(ctx, op, sink, logger)
	if err != nil {
		return failure(ctx, task, start, err, chainedFailure(primaryName, chain.Name, err))
	}

	return success(task, start, chained)
}

// runStep runs a single operation, converting a panic into an ErrInternal error.
func (r *Runner) runStep(ctx context.Context, op operation.Operation, sink operation.Sink, logger log.Logger) (res operation.Result, err error) {
	name := stepName(op)
	defer func() {
		if p := recover(); p != nil {
			logger.Errorf("Operation %s panicked: %v\n%s", name, p, debug.Stack())
			res = operation.Result{}
			err = fmt.Errorf("%w: %s panicked: %v", operation.ErrInternal, name, p)
		}
	}()

	if op == nil {
		return operation.Result{}, fmt.Errorf("%w: no operation to run", operation.ErrInternal)
	}

	logger.Debugf("Running %s", name)
	res, err = op.Run(ctx, sink)
	if err == nil {
		return res, nil
	}

	// An operation that ignored ctx but failed after cancellation or deadline
	// is reported as such.
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, context.DeadlineExceeded):
		err = fmt.Errorf("%w: %w", err, context.DeadlineExceeded)
	case errors.Is(ctx.Err(), context.Canceled) && !operation.IsCancelled(err):
		err = fmt.Errorf("%w: %w", operation.ErrCancelled, err)
	}
	return res, err
}

// finish releases the gate and emits the terminal event. The gate is released
// first so a consumer reacting to the terminal event can start the next task.
func (r *Runner) finish(a *active, terminal events.Event) {
	r.mu.Lock()
	if r.current == a {
		r.current = nil
	}
	r.mu.Unlock()
	r.gate.Release(1)

	a.ch.Push(terminal)
	a.ch.Close()
}

// decide evaluates the chain predicate, treating a panic as an internal error.
func decide(chain *Chain, res operation.Result) (run bool, err error) {
	if chain.When == nil {
		return true, nil
	}
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: chain predicate panicked: %v", operation.ErrInternal, p)
		}
	}()
	return chain.When(res), nil
}

// build creates the chained operation, treating a panic as an internal error.
func build(chain *Chain, res operation.Result) (op operation.Operation, err error) {
	if chain.Build == nil {
		return nil, fmt.Errorf("%w: chained %s step has no builder", operation.ErrInternal, chain.Name)
	}
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: building %s step panicked: %v", operation.ErrInternal, chain.Name, p)
		}
	}()
	return chain.Build(res)
}

func chainedFailure(primary, chained string, err error) string {
	if operation.IsCancelled(err) {
		return fmt.Sprintf("%s succeeded, but %s step was cancelled", primary, chained)
	}
	return fmt.Sprintf("%s succeeded, but %s step failed: %s", primary, chained, operation.Describe(err))
}

func success(task *Task, start time.Time, res operation.Result) events.Event {
	msg := task.Label + " complete"
	if res.Detail != "" {
		msg += ": " + res.Detail
	} else if res.Path != "" {
		msg += ": " + res.Path
	}
	return events.DoneEvent{
		ID:        task.ID,
		Message:   msg,
		Duration:  time.Since(start),
		Timestamp: time.Now(),
	}
}

func failure(ctx context.Context, task *Task, start time.Time, err error, msg string) events.Event {
	cancelled := operation.IsCancelled(err) && !errors.Is(ctx.Err(), context.DeadlineExceeded)
	return events.ErrorEvent{
		ID:        task.ID,
		Message:   task.Label + ": " + msg,
		Cancelled: cancelled,
		Duration:  time.Since(start),
		Timestamp: time.Now(),
	}
}

func stepName(op operation.Operation) string {
	if op == nil {
		return "operation"
	}
	if name := op.Name(); name != "" {
		return name
	}
	return "operation"
}

// channelSink forwards operation events to a task's channel.
type channelSink struct {
	id string
	ch *events.Channel
}

func (s *channelSink) Status(message string) {
	s.ch.Push(events.StatusEvent{ID: s.id, Message: message, Timestamp: time.Now()})
}

func (s *channelSink) Progress(fraction float64) {
	s.ch.Push(events.ProgressEvent{ID: s.id, Fraction: fraction, Timestamp: time.Now()})
}
