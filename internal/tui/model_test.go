package tui

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/fetchdeck/internal/dispatch"
	"github.com/aristath/fetchdeck/internal/operation"
	"github.com/aristath/fetchdeck/internal/persistence"
	"github.com/aristath/fetchdeck/internal/runner"
)

func keyPress(key string) tea.KeyMsg {
	switch key {
	case KeyDismiss:
		return tea.KeyMsg{Type: tea.KeyEnter}
	case KeyCtrlC:
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	default:
		return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)}
	}
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	nm, ok := next.(Model)
	require.True(t, ok, "Update must return a Model")
	return nm, cmd
}

// pump runs cmd and every command that follows from it until none are left.
func pump(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	queue := []tea.Cmd{cmd}
	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]
		if c == nil {
			continue
		}
		msg := c()
		switch msg := msg.(type) {
		case nil:
			continue
		case tea.BatchMsg:
			queue = append(queue, msg...)
			continue
		case tea.QuitMsg:
			continue
		}
		var next tea.Cmd
		m, next = update(t, m, msg)
		queue = append(queue, next)
	}
	return m
}

type taskFactory struct {
	calls atomic.Int32
	op    func() operation.Operation
}

func (f *taskFactory) NewTask() (*runner.Task, error) {
	f.calls.Add(1)
	return runner.NewTask("demo", f.op(), nil), nil
}

func blockingOp() operation.Operation {
	return operation.Func{OpName: "block", Fn: func(ctx context.Context, sink operation.Sink) (operation.Result, error) {
		sink.Status("Blocking")
		<-ctx.Done()
		return operation.Result{}, operation.Cancelled(ctx)
	}}
}

func TestRunToCompletionRecordsHistory(t *testing.T) {
	store, err := persistence.NewMemoryStore(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	r := runner.New(runner.Config{})
	f := &taskFactory{op: func() operation.Operation {
		return operation.Func{OpName: "demo", Fn: func(ctx context.Context, sink operation.Sink) (operation.Result, error) {
			sink.Status("Working")
			sink.Progress(0.5)
			sink.Progress(1.0)
			return operation.Result{Detail: "all good"}, nil
		}}
	}}

	m := New(Config{Runner: r, NewTask: f.NewTask, Params: "n=1", Recorder: persistence.NewRecorder(store, nil)})
	m, cmd := update(t, m, startMsg{})
	assert.True(t, m.State().Busy)
	assert.Equal(t, "Starting demo...", m.State().Status)

	m = pump(t, m, cmd)
	r.Wait()

	state := m.State()
	assert.False(t, state.Busy)
	assert.Equal(t, dispatch.OutcomeSucceeded, state.Outcome)
	assert.Equal(t, 1.0, state.Fraction)
	assert.Equal(t, "demo complete: all good", state.Status)
	assert.Empty(t, state.Notice)

	log := strings.Join(m.logPane.Lines(), "\n")
	assert.Contains(t, log, "Working")
	assert.Contains(t, log, "demo complete: all good")

	rec, err := store.GetTask(context.Background(), state.TaskID)
	require.NoError(t, err)
	assert.Equal(t, persistence.StatusSucceeded, rec.Status)
	assert.Equal(t, "n=1", rec.Params)
	assert.Equal(t, "demo", rec.Operation)
}

func TestRerunWhileBusyShowsNotice(t *testing.T) {
	r := runner.New(runner.Config{})
	f := &taskFactory{op: blockingOp}

	m := New(Config{Runner: r, NewTask: f.NewTask})
	m, startCmd := update(t, m, keyPress(KeyRerun))
	require.True(t, r.Busy())

	m, cmd := update(t, m, keyPress(KeyRerun))
	assert.Nil(t, cmd)
	assert.Contains(t, m.BusyNotice(), "still running")
	assert.Equal(t, int32(1), f.calls.Load(), "no second task may be built while busy")

	m, _ = update(t, m, keyPress(KeyCancel))
	m = pump(t, m, startCmd)
	r.Wait()

	state := m.State()
	assert.Equal(t, dispatch.OutcomeCancelled, state.Outcome)
	assert.Equal(t, "Cancelled", state.Status)
	assert.Contains(t, state.Notice, "cancelled")
	assert.Empty(t, m.BusyNotice())
	assert.False(t, r.Busy())
}

func TestFailureNoticeBlocksUntilDismissed(t *testing.T) {
	r := runner.New(runner.Config{})
	f := &taskFactory{op: func() operation.Operation {
		return operation.Func{OpName: "demo", Fn: func(ctx context.Context, sink operation.Sink) (operation.Result, error) {
			return operation.Result{}, operation.IOf(errors.New("disk full"), "writing output")
		}}
	}}

	m := New(Config{Runner: r, NewTask: f.NewTask})
	m, cmd := update(t, m, startMsg{})
	m = pump(t, m, cmd)
	r.Wait()

	state := m.State()
	require.Equal(t, dispatch.OutcomeFailed, state.Outcome)
	assert.Equal(t, "demo: demo failed: i/o failure: writing output: disk full", state.Notice)
	assert.Equal(t, 0.0, state.Fraction)

	m, _ = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 30})
	assert.Contains(t, m.View(), "Press enter to dismiss.")

	m, cmd = update(t, m, keyPress(KeyRerun))
	assert.Nil(t, cmd)
	assert.Equal(t, int32(1), f.calls.Load(), "notice must be dismissed before re-running")

	m, _ = update(t, m, keyPress(KeyDismiss))
	assert.Empty(t, m.State().Notice)
	assert.NotContains(t, m.View(), "Press enter to dismiss.")

	m, cmd = update(t, m, keyPress(KeyRerun))
	require.NotNil(t, cmd)
	assert.Equal(t, int32(2), f.calls.Load())
	pump(t, m, cmd)
	r.Wait()
}

func TestQuitCancelsRunningTask(t *testing.T) {
	r := runner.New(runner.Config{})
	f := &taskFactory{op: blockingOp}

	m := New(Config{Runner: r, NewTask: f.NewTask})
	m, startCmd := update(t, m, startMsg{})

	m, cmd := update(t, m, keyPress(KeyQuit))
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.Equal(t, "Goodbye!\n", m.View())

	m = pump(t, m, startCmd)
	r.Wait()
	assert.Equal(t, dispatch.OutcomeCancelled, m.State().Outcome)
}

func TestStartErrorShowsNotice(t *testing.T) {
	r := runner.New(runner.Config{})
	m := New(Config{Runner: r, NewTask: func() (*runner.Task, error) {
		return nil, errors.New("missing URL")
	}})

	m, cmd := update(t, m, startMsg{})
	assert.Nil(t, cmd)
	assert.Equal(t, "Cannot start task: missing URL", m.State().Notice)
	assert.False(t, r.Busy())
}

func TestViewBeforeResize(t *testing.T) {
	m := New(Config{})
	assert.Equal(t, "Initializing...", m.View())

	m, _ = update(t, m, tea.WindowSizeMsg{Width: 80, Height: 24})
	view := m.View()
	assert.Contains(t, view, "No task")
	assert.Contains(t, view, "r: run again")
}
