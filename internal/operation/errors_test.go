package operation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToolErrorClassification(t *testing.T) {
	err := fmt.Errorf("transcoding: %w", &ToolError{Tool: "ffmpeg", ExitCode: 1, Output: "Invalid data found", Err: errors.New("exit status 1")})

	assert.ErrorIs(t, err, ErrExternalTool)
	assert.Contains(t, err.Error(), "ffmpeg exited with code 1")
	assert.Contains(t, err.Error(), "Invalid data found")

	var toolErr *ToolError
	assert.True(t, errors.As(err, &toolErr))
	assert.Equal(t, "ffmpeg", toolErr.Tool)
}

func TestToolErrorTruncatesOutput(t *testing.T) {
	err := &ToolError{Tool: "wget", ExitCode: 8, Output: strings.Repeat("x", 10000)}
	assert.Less(t, len(err.Error()), 2200)
}

func TestToolErrorNotStarted(t *testing.T) {
	err := &ToolError{Tool: "wget", ExitCode: -1, Err: errors.New("executable file not found in $PATH")}
	assert.Equal(t, "wget: executable file not found in $PATH", err.Error())
}

func TestDescribe(t *testing.T) {
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	expired, cancel2 := context.WithTimeout(context.Background(), 0)
	defer cancel2()
	<-expired.Done()

	tests := map[string]struct {
		err          error
		expCancelled bool
		expMessage   string
	}{
		"nil error": {
			err:        nil,
			expMessage: "",
		},
		"user cancellation": {
			err:          Cancelled(cancelled),
			expCancelled: true,
			expMessage:   "cancelled by user",
		},
		"deadline is a failure": {
			err:          Cancelled(expired),
			expCancelled: false,
			expMessage:   "timed out",
		},
		"validation": {
			err:        Validationf("url must not be empty"),
			expMessage: "invalid parameters: url must not be empty",
		},
		"io": {
			err:        IOf(errors.New("disk full"), "writing %s", "/tmp/x"),
			expMessage: "i/o failure: writing /tmp/x: disk full",
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.expCancelled, IsCancelled(test.err))
			assert.Equal(t, test.expMessage, Describe(test.err))
		})
	}
}

func TestIOfKeepsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := IOf(cause, "reading body")
	assert.ErrorIs(t, err, ErrIO)
	assert.ErrorIs(t, err, cause)
}
