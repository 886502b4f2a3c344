package ops

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/fetchdeck/internal/operation"
)

// sleepSteps is how many progress events a Sleep emits.
const sleepSteps = 20

// Sleep waits for a fixed duration, reporting progress as it goes. It is the
// smallest operation that exercises every event kind and cooperative
// cancellation.
type Sleep struct {
	Duration time.Duration
}

func (s Sleep) Name() string { return "sleep" }

func (s Sleep) Run(ctx context.Context, sink operation.Sink) (operation.Result, error) {
	if s.Duration <= 0 {
		return operation.Result{}, operation.Validationf("duration must be positive")
	}

	sink.Status(fmt.Sprintf("Sleeping for %s", s.Duration))

	interval := s.Duration / sleepSteps
	if interval <= 0 {
		interval = time.Nanosecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for i := 1; i < sleepSteps; i++ {
		select {
		case <-ctx.Done():
			return operation.Result{}, operation.Cancelled(ctx)
		case <-ticker.C:
			sink.Progress(float64(i) / sleepSteps)
		}
	}
	select {
	case <-ctx.Done():
		return operation.Result{}, operation.Cancelled(ctx)
	case <-ticker.C:
	}

	sink.Progress(1.0)
	return operation.Result{Detail: fmt.Sprintf("slept %s", s.Duration)}, nil
}
