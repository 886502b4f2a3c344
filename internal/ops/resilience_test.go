package ops

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/fetchdeck/internal/operation"
)

func fastRetry(retries int) RetryConfig {
	return RetryConfig{
		InitialInterval:     5 * time.Millisecond,
		MaxInterval:         20 * time.Millisecond,
		MaxElapsedTime:      2 * time.Second,
		Multiplier:          2.0,
		RandomizationFactor: 0.1,
		MaxRetries:          retries,
	}
}

// scripted returns an attempt func that yields errs in order, then nil.
func scripted(calls *atomic.Int32, errs ...error) func() error {
	return func() error {
		n := int(calls.Add(1))
		if n <= len(errs) {
			return errs[n-1]
		}
		return nil
	}
}

func TestWithRetry(t *testing.T) {
	tests := map[string]struct {
		cfg      RetryConfig
		errs     []error
		expErr   error
		expCalls int32
	}{
		"transient failures are retried": {
			cfg:      fastRetry(3),
			errs:     []error{errors.New("connection reset"), &statusError{Code: 503, Status: "503 Service Unavailable"}},
			expCalls: 3,
		},
		"client errors are permanent": {
			cfg:      fastRetry(3),
			errs:     []error{&statusError{Code: 404, Status: "404 Not Found"}},
			expErr:   &statusError{},
			expCalls: 1,
		},
		"validation errors are permanent": {
			cfg:      fastRetry(3),
			errs:     []error{operation.Validationf("bad")},
			expErr:   operation.ErrValidation,
			expCalls: 1,
		},
		"retries exhausted": {
			cfg:      fastRetry(2),
			errs:     []error{errors.New("e1"), errors.New("e2"), errors.New("e3"), errors.New("e4")},
			expCalls: 3,
		},
		"retries disabled": {
			cfg:      fastRetry(-1),
			errs:     []error{errors.New("e1")},
			expCalls: 1,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			cb := NewBreakerRegistry(BreakerConfig{FailureThreshold: 100}, nil).Get("example.com")

			var calls atomic.Int32
			var notified int
			err := withRetry(context.Background(), cb, test.cfg, func(int, error, time.Duration) { notified++ }, scripted(&calls, test.errs...))

			assert.Equal(t, test.expCalls, calls.Load())
			assert.Equal(t, int(test.expCalls)-1, notified)
			switch {
			case test.expErr != nil:
				var se *statusError
				if errors.As(test.expErr, &se) {
					assert.True(t, errors.As(err, &se))
				} else {
					assert.ErrorIs(t, err, test.expErr)
				}
			case int(test.expCalls) > len(test.errs):
				assert.NoError(t, err)
			default:
				assert.Error(t, err)
			}
		})
	}
}

func TestWithRetry_CircuitOpens(t *testing.T) {
	reg := NewBreakerRegistry(BreakerConfig{FailureThreshold: 3, OpenTimeout: time.Minute}, nil)
	cb := reg.Get("flaky.example.com")

	var calls atomic.Int32
	always := func() error {
		calls.Add(1)
		return fmt.Errorf("dial tcp: connection refused")
	}

	err := withRetry(context.Background(), cb, fastRetry(10), nil, always)
	require.Error(t, err)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.ErrorIs(t, err, operation.ErrIO)
	assert.Equal(t, int32(3), calls.Load(), "no attempts once the circuit is open")
	assert.Equal(t, gobreaker.StateOpen, cb.State())
}

func TestWithRetry_ContextCancelledStopsRetry(t *testing.T) {
	cb := NewBreakerRegistry(DefaultBreakerConfig(), nil).Get("example.com")
	cfg := fastRetry(0)
	cfg.InitialInterval = 50 * time.Millisecond
	cfg.MaxElapsedTime = 10 * time.Second

	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	attempt := func() error {
		if calls.Add(1) == 2 {
			cancel()
		}
		return errors.New("connection reset")
	}

	start := time.Now()
	err := withRetry(ctx, cb, cfg, nil, attempt)
	require.Error(t, err)
	assert.True(t, operation.IsCancelled(err))
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestBreakerRegistry_PerHost(t *testing.T) {
	reg := NewBreakerRegistry(DefaultBreakerConfig(), nil)

	a1 := reg.Get("a.example.com")
	a2 := reg.Get("a.example.com")
	b := reg.Get("b.example.com")

	assert.Same(t, a1, a2)
	assert.NotSame(t, a1, b)
	assert.Equal(t, "a.example.com", a1.Name())
}

func TestBreaker_IgnoresCancellationAndClientErrors(t *testing.T) {
	reg := NewBreakerRegistry(BreakerConfig{FailureThreshold: 2}, nil)
	cb := reg.Get("example.com")

	for _, err := range []error{
		context.Canceled,
		operation.ErrCancelled,
		&statusError{Code: http.StatusNotFound, Status: "404 Not Found"},
		&statusError{Code: http.StatusForbidden, Status: "403 Forbidden"},
	} {
		_, _ = cb.Execute(func() (interface{}, error) { return nil, err })
	}

	assert.Equal(t, gobreaker.StateClosed, cb.State())
}
