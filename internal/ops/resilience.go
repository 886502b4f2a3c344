package ops

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/aristath/fetchdeck/internal/log"
	"github.com/aristath/fetchdeck/internal/operation"
)

// RetryConfig configures exponential backoff retry behavior.
type RetryConfig struct {
	InitialInterval     time.Duration // Initial retry interval (default 500ms)
	MaxInterval         time.Duration // Maximum retry interval (default 10s)
	MaxElapsedTime      time.Duration // Maximum total retry time (default 2min)
	Multiplier          float64       // Backoff multiplier (default 2.0)
	RandomizationFactor float64       // Jitter factor (default 0.5)
	MaxRetries          int           // Retries after the first attempt (default 3, 0 = until MaxElapsedTime, <0 = none)
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialInterval:     500 * time.Millisecond,
		MaxInterval:         10 * time.Second,
		MaxElapsedTime:      2 * time.Minute,
		Multiplier:          2.0,
		RandomizationFactor: 0.5,
		MaxRetries:          3,
	}
}

// BreakerConfig configures the per-host circuit breakers.
type BreakerConfig struct {
	FailureThreshold uint32        // Consecutive failures that open the circuit (default 5)
	OpenTimeout      time.Duration // How long the circuit stays open (default 30s)
	HalfOpenRequests uint32        // Probe requests allowed while half-open (default 1)
}

// DefaultBreakerConfig returns the default breaker configuration.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		OpenTimeout:      30 * time.Second,
		HalfOpenRequests: 1,
	}
}

// BreakerRegistry manages one circuit breaker per remote host.
type BreakerRegistry struct {
	cfg    BreakerConfig
	logger log.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewBreakerRegistry creates a new breaker registry.
func NewBreakerRegistry(cfg BreakerConfig, logger log.Logger) *BreakerRegistry {
	if logger == nil {
		logger = log.Noop
	}
	d := DefaultBreakerConfig()
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = d.FailureThreshold
	}
	if cfg.OpenTimeout == 0 {
		cfg.OpenTimeout = d.OpenTimeout
	}
	if cfg.HalfOpenRequests == 0 {
		cfg.HalfOpenRequests = d.HalfOpenRequests
	}

	return &BreakerRegistry{
		cfg:      cfg,
		logger:   logger.WithValues(log.Kv{"svc": "breaker"}),
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// Get returns the circuit breaker for host, creating it on first use.
func (r *BreakerRegistry) Get(host string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[host]; ok {
		return cb
	}

	threshold := r.cfg.FailureThreshold
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        host,
		MaxRequests: r.cfg.HalfOpenRequests,
		Interval:    0, // Don't clear counts automatically
		Timeout:     r.cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			r.logger.Warningf("Circuit breaker %q: %s -> %s", name, from, to)
		},
		IsSuccessful: func(err error) bool {
			// Cancellation and client-side mistakes say nothing about host health.
			if err == nil {
				return true
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, operation.ErrCancelled) {
				return true
			}
			var se *statusError
			if errors.As(err, &se) && !se.retryable() {
				return true
			}
			return false
		},
	})

	r.breakers[host] = cb
	return cb
}

// statusError is a non-2xx HTTP response.
type statusError struct {
	Code   int
	Status string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("server responded %s", e.Status)
}

// retryable reports whether the response is worth another attempt.
func (e *statusError) retryable() bool {
	return e.Code >= 500 || e.Code == http.StatusTooManyRequests || e.Code == http.StatusRequestTimeout
}

// checkStatus turns a non-2xx response into a statusError.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return &statusError{Code: resp.StatusCode, Status: resp.Status}
}

// retryNotify is called before every retry with the error that caused it.
type retryNotify func(attempt int, err error, wait time.Duration)

// withRetry runs attempt with exponential backoff retry and circuit breaker
// protection. attempt is retried on any error except a non-retryable HTTP
// status, an open circuit and cancellation.
func withRetry(ctx context.Context, cb *gobreaker.CircuitBreaker, cfg RetryConfig, notify retryNotify, attempt func() error) error {
	op := func() error {
		// Fail fast if cancelled
		if ctx.Err() != nil {
			return backoff.Permanent(operation.Cancelled(ctx))
		}

		_, err := cb.Execute(func() (interface{}, error) {
			return nil, attempt()
		})
		if err == nil {
			return nil
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return backoff.Permanent(fmt.Errorf("%w: circuit open for %s: %w", operation.ErrIO, cb.Name(), err))
		}
		if ctx.Err() != nil {
			return backoff.Permanent(operation.Cancelled(ctx))
		}
		var se *statusError
		if errors.As(err, &se) && !se.retryable() {
			return backoff.Permanent(err)
		}
		if errors.Is(err, operation.ErrValidation) {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.NewExponentialBackOff()
	if cfg.InitialInterval > 0 {
		policy.InitialInterval = cfg.InitialInterval
	}
	if cfg.MaxInterval > 0 {
		policy.MaxInterval = cfg.MaxInterval
	}
	policy.MaxElapsedTime = cfg.MaxElapsedTime
	if cfg.Multiplier > 0 {
		policy.Multiplier = cfg.Multiplier
	}
	policy.RandomizationFactor = cfg.RandomizationFactor

	var b backoff.BackOff = policy
	switch {
	case cfg.MaxRetries < 0:
		b = &backoff.StopBackOff{}
	case cfg.MaxRetries > 0:
		b = backoff.WithMaxRetries(b, uint64(cfg.MaxRetries))
	}

	tries := 0
	err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), func(err error, wait time.Duration) {
		tries++
		if notify != nil {
			notify(tries, err, wait)
		}
	})
	if err != nil && ctx.Err() != nil && !operation.IsCancelled(err) && !errors.Is(err, context.DeadlineExceeded) {
		return operation.Cancelled(ctx)
	}
	return err
}
