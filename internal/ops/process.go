package ops

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aristath/fetchdeck/internal/operation"
)

// stderrTailLines is how many trailing stderr lines a ToolError keeps.
const stderrTailLines = 20

// waitDelay bounds how long Wait blocks on pipes after the process is killed.
const waitDelay = 2 * time.Second

// Stream identifies which pipe a line came from.
type Stream int

const (
	Stdout Stream = iota
	Stderr
)

// LineFunc receives every line a tool prints.
type LineFunc func(stream Stream, line string)

// command describes one external tool invocation.
type command struct {
	Tool   string // Display name used in errors
	Path   string // Binary to execute
	Args   []string
	Dir    string
	OnLine LineFunc
}

// newCommand creates an exec.Cmd in its own process group so the whole tree can
// be killed on cancellation.
func newCommand(ctx context.Context, name string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
	cmd.Cancel = func() error {
		return killProcessGroup(cmd)
	}
	cmd.WaitDelay = waitDelay
	return cmd
}

// runCommand runs c to completion, streaming its output line by line.
//
// Both pipes are drained concurrently before cmd.Wait so a chatty tool can
// never block on a full pipe buffer.
func runCommand(ctx context.Context, procs *ProcessManager, c command) error {
	if err := ctx.Err(); err != nil {
		return operation.Cancelled(ctx)
	}

	cmd := newCommand(ctx, c.Path, c.Args...)
	cmd.Dir = c.Dir

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return &operation.ToolError{Tool: c.Tool, ExitCode: -1, Err: err}
	}
	if procs != nil {
		procs.Track(cmd)
		defer procs.Untrack(cmd)
	}

	tail := newLineTail(stderrTailLines)
	onLine := c.OnLine
	if onLine == nil {
		onLine = func(Stream, string) {}
	}

	var g errgroup.Group
	g.Go(func() error {
		return scanLines(stdoutPipe, func(line string) { onLine(Stdout, line) })
	})
	g.Go(func() error {
		return scanLines(stderrPipe, func(line string) {
			tail.add(line)
			onLine(Stderr, line)
		})
	})
	readErr := g.Wait()

	waitErr := cmd.Wait()

	if ctx.Err() != nil {
		return operation.Cancelled(ctx)
	}
	if waitErr != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		return &operation.ToolError{Tool: c.Tool, ExitCode: exitCode, Output: tail.String(), Err: waitErr}
	}
	if readErr != nil {
		return operation.IOf(readErr, "reading %s output", c.Tool)
	}
	return nil
}

// scanLines calls fn for every line of r. Carriage returns also end a line, so
// tools redrawing a progress line in place are seen update by update.
func scanLines(r io.Reader, fn func(string)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	scanner.Split(scanCRLines)
	for scanner.Scan() {
		fn(strings.TrimRight(scanner.Text(), " \t"))
	}
	if err := scanner.Err(); err != nil {
		// Keep draining so the process never blocks on a full pipe.
		_, _ = io.Copy(io.Discard, r)
		if errors.Is(err, bufio.ErrTooLong) {
			return nil
		}
		return err
	}
	return nil
}

// scanCRLines is bufio.ScanLines that also splits on a bare '\r'.
func scanCRLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	for i, b := range data {
		switch b {
		case '\n':
			return i + 1, dropCR(data[:i]), nil
		case '\r':
			if i+1 < len(data) {
				if data[i+1] == '\n' {
					return i + 2, data[:i], nil
				}
				return i + 1, data[:i], nil
			}
			if atEOF {
				return i + 1, data[:i], nil
			}
			// Need one more byte to tell "\r" from "\r\n".
			return 0, nil, nil
		}
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

func dropCR(data []byte) []byte {
	if len(data) > 0 && data[len(data)-1] == '\r' {
		return data[:len(data)-1]
	}
	return data
}

// lineTail keeps the last n lines written to it.
type lineTail struct {
	mu    sync.Mutex
	n     int
	lines []string
}

func newLineTail(n int) *lineTail {
	return &lineTail{n: n}
}

func (t *lineTail) add(line string) {
	if strings.TrimSpace(line) == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines = append(t.lines, line)
	if len(t.lines) > t.n {
		t.lines = t.lines[len(t.lines)-t.n:]
	}
}

func (t *lineTail) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.Join(t.lines, "\n")
}

// killProcessGroup kills the entire process group associated with the command.
func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return fmt.Errorf("process not started")
	}

	// Negative PID targets the whole group.
	if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); err != nil {
		return fmt.Errorf("failed to kill process group: %w", err)
	}

	return nil
}

// ProcessManager tracks all running subprocesses and can terminate them all on shutdown.
type ProcessManager struct {
	mu    sync.Mutex
	procs map[int]*exec.Cmd
}

// NewProcessManager creates a new ProcessManager.
func NewProcessManager() *ProcessManager {
	return &ProcessManager{
		procs: make(map[int]*exec.Cmd),
	}
}

// Track registers a started subprocess.
func (pm *ProcessManager) Track(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}

	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.procs[cmd.Process.Pid] = cmd
}

// Untrack removes a subprocess once cmd.Wait has returned.
func (pm *ProcessManager) Untrack(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}

	pm.mu.Lock()
	defer pm.mu.Unlock()
	delete(pm.procs, cmd.Process.Pid)
}

// KillAll terminates all tracked subprocesses.
func (pm *ProcessManager) KillAll() error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	var errs []error
	for pid, cmd := range pm.procs {
		if err := killProcessGroup(cmd); err != nil {
			errs = append(errs, fmt.Errorf("failed to kill process %d: %w", pid, err))
		}
	}

	return errors.Join(errs...)
}

// Count returns the number of currently tracked processes.
func (pm *ProcessManager) Count() int {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return len(pm.procs)
}
