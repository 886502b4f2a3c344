package operation

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation is returned for bad or missing parameters, before any
	// external process starts.
	ErrValidation = errors.New("invalid parameters")
	// ErrExternalTool is returned when an external tool is missing or exits non-zero.
	ErrExternalTool = errors.New("external tool failed")
	// ErrIO is returned for filesystem or network failures mid-operation.
	ErrIO = errors.New("i/o failure")
	// ErrCancelled is returned when the operation observed a cancellation request.
	ErrCancelled = errors.New("cancelled")
	// ErrInternal marks an unexpected fault caught at the runner boundary.
	ErrInternal = errors.New("internal error")
)

// maxToolOutput bounds how much captured diagnostic output ends up in a message.
const maxToolOutput = 2048

// ToolError describes a failed external tool invocation.
type ToolError struct {
	Tool     string
	ExitCode int    // -1 when the tool could not be started
	Output   string // Captured diagnostic output (usually stderr)
	Err      error
}

func (e *ToolError) Error() string {
	var b strings.Builder
	if e.ExitCode >= 0 {
		fmt.Fprintf(&b, "%s exited with code %d", e.Tool, e.ExitCode)
	} else {
		fmt.Fprintf(&b, "%s: %v", e.Tool, e.Err)
	}
	if out := strings.TrimSpace(e.Output); out != "" {
		if len(out) > maxToolOutput {
			out = "..." + out[len(out)-maxToolOutput:]
		}
		fmt.Fprintf(&b, " (output: %s)", out)
	}
	return b.String()
}

func (e *ToolError) Unwrap() []error {
	return []error{ErrExternalTool, e.Err}
}

// Validationf builds an ErrValidation error.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// IOf wraps err as an ErrIO error with context.
func IOf(err error, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %w", ErrIO, fmt.Sprintf(format, args...), err)
}

// Cancelled returns an ErrCancelled error, keeping the context cause when known.
func Cancelled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrCancelled, err)
	}
	return ErrCancelled
}

// IsCancelled reports whether err represents a user cancellation. A deadline
// imposed from outside is a failure, not a cancellation.
func IsCancelled(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled)
}

// Describe turns err into the detail string shown to the user.
func Describe(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return "timed out"
	case IsCancelled(err):
		return "cancelled by user"
	default:
		return err.Error()
	}
}
