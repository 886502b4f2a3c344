package ops

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/fetchdeck/internal/operation"
)

const mockTool = "testdata/mock-tool.sh"

// lineRecorder collects the lines a command prints.
type lineRecorder struct {
	mu     sync.Mutex
	stdout []string
	stderr []string
}

func (r *lineRecorder) record(stream Stream, line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if stream == Stdout {
		r.stdout = append(r.stdout, line)
	} else {
		r.stderr = append(r.stderr, line)
	}
}

func mockCommand(rec *lineRecorder, args ...string) command {
	c := command{Tool: "mock-tool", Path: "sh", Args: append([]string{mockTool}, args...)}
	if rec != nil {
		c.OnLine = rec.record
	}
	return c
}

func TestRunCommand_StreamsBothPipes(t *testing.T) {
	rec := &lineRecorder{}
	err := runCommand(context.Background(), nil, mockCommand(rec, "--stderr", "warming up", "--echo", "one", "two"))
	require.NoError(t, err)

	assert.Equal(t, []string{"one", "two"}, rec.stdout)
	assert.Equal(t, []string{"warming up"}, rec.stderr)
}

func TestRunCommand_CarriageReturnsSplitLines(t *testing.T) {
	rec := &lineRecorder{}
	require.NoError(t, runCommand(context.Background(), nil, mockCommand(rec, "--carriage")))

	assert.Equal(t, []string{"step 1", "step 2", "step 3"}, rec.stdout)
}

func TestRunCommand_LargeOutputDoesNotDeadlock(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var mu sync.Mutex
	lines := 0
	c := mockCommand(nil, "--large-output", "256")
	c.OnLine = func(Stream, string) {
		mu.Lock()
		lines++
		mu.Unlock()
	}

	require.NoError(t, runCommand(ctx, nil, c))
	assert.GreaterOrEqual(t, lines, 4000)
}

func TestRunCommand_Errors(t *testing.T) {
	tests := map[string]struct {
		cmd         command
		expExitCode int
		expOutput   string
	}{
		"non-zero exit keeps the stderr tail": {
			cmd:         mockCommand(nil, "--exit", "3"),
			expExitCode: 3,
			expOutput:   "fatal: mock failure",
		},
		"missing binary": {
			cmd:         command{Tool: "nope", Path: "/nonexistent/fetchdeck-tool"},
			expExitCode: -1,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			err := runCommand(context.Background(), nil, test.cmd)
			require.Error(t, err)
			assert.ErrorIs(t, err, operation.ErrExternalTool)

			var toolErr *operation.ToolError
			require.True(t, errors.As(err, &toolErr))
			assert.Equal(t, test.expExitCode, toolErr.ExitCode)
			assert.Equal(t, test.expOutput, toolErr.Output)
		})
	}
}

func TestRunCommand_CancelKillsProcessGroup(t *testing.T) {
	procs := NewProcessManager()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- runCommand(ctx, procs, mockCommand(nil, "--sleep", "30"))
	}()

	require.Eventually(t, func() bool { return procs.Count() == 1 }, 5*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, operation.ErrCancelled)
		assert.True(t, operation.IsCancelled(err))
	case <-time.After(5 * time.Second):
		t.Fatal("command did not stop after cancellation")
	}
	assert.Equal(t, 0, procs.Count())
}

func TestRunCommand_DeadlineIsNotCancellation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	err := runCommand(ctx, nil, mockCommand(nil, "--sleep", "30"))
	require.Error(t, err)
	assert.False(t, operation.IsCancelled(err))
	assert.Equal(t, "timed out", operation.Describe(err))
}

func TestRunCommand_AlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := &lineRecorder{}
	err := runCommand(ctx, nil, mockCommand(rec, "--echo", "never"))
	assert.True(t, operation.IsCancelled(err))
	assert.Empty(t, rec.stdout)
}

func TestProcessManager_KillAll(t *testing.T) {
	procs := NewProcessManager()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- runCommand(ctx, procs, mockCommand(nil, "--sleep", "30"))
	}()
	require.Eventually(t, func() bool { return procs.Count() == 1 }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, procs.KillAll())

	select {
	case err := <-done:
		var toolErr *operation.ToolError
		require.True(t, errors.As(err, &toolErr), "expected a tool error, got %v", err)
		assert.True(t, strings.Contains(toolErr.Error(), "mock-tool"))
	case <-time.After(5 * time.Second):
		t.Fatal("KillAll did not terminate the process")
	}
}

func TestLineTail_KeepsLastLines(t *testing.T) {
	tail := newLineTail(2)
	tail.add("a")
	tail.add("   ")
	tail.add("b")
	tail.add("c")
	assert.Equal(t, "b\nc", tail.String())
}
