// Package operation defines the contract every long-running unit of work
// (download, transcode, mirror, archive, upload) satisfies.
//
// An Operation knows nothing about how its events reach a display: it only
// talks to a Sink.
package operation

import (
	"context"
)

// Sink receives the non-terminal events an operation emits while running.
type Sink interface {
	Status(message string)
	Progress(fraction float64)
}

// Result is what a successful operation hands back.
type Result struct {
	Path   string            // Primary artifact (file or directory) produced
	Detail string            // Human-readable summary
	Meta   map[string]string // Operation-specific extras (e.g. "url", "host")
}

// Operation is one externally visible unit of work.
//
// Run must validate its parameters before emitting any event, emit
// Progress(1.0) before returning success, check ctx at its natural boundaries
// and return an error wrapping ErrCancelled when it observes cancellation.
// Partial output is removed before a failing Run returns.
type Operation interface {
	Name() string
	Run(ctx context.Context, sink Sink) (Result, error)
}

// Func adapts a function to the Operation interface.
type Func struct {
	OpName string
	Fn     func(ctx context.Context, sink Sink) (Result, error)
}

func (f Func) Name() string { return f.OpName }

func (f Func) Run(ctx context.Context, sink Sink) (Result, error) {
	return f.Fn(ctx, sink)
}

// DiscardSink drops every event.
var DiscardSink Sink = discard{}

type discard struct{}

func (discard) Status(string)    {}
func (discard) Progress(float64) {}
