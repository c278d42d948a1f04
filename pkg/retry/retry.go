// Package retry runs fallible operations with exponential backoff and jitter.
//
// Only transient failures are retried. A failure is transient when it is
// wrapped with [Retryable] (network timeouts, 5xx responses, a resolver
// process that crashed). Everything else, including 404s and rate-limit
// responses, is permanent and returned on the first attempt.
//
// # Usage
//
//	exec := retry.New(retry.DefaultPolicy(), logger)
//	err := exec.Do(ctx, "pypi fetch", func(ctx context.Context) error {
//	    return fetch(ctx)
//	})
//
//	info, err := retry.Value(ctx, exec, "pypi fetch", func(ctx context.Context) (*Info, error) {
//	    return client.Fetch(ctx, name)
//	})
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/charmbracelet/log"
)

// Default policy values.
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Second
	DefaultMaxDelay    = 30 * time.Second
	DefaultMultiplier  = 2.0
	DefaultJitter      = 0.5
)

// Policy configures attempts and delays.
type Policy struct {
	MaxAttempts int           // Total attempts including the first (min 1)
	BaseDelay   time.Duration // Delay before the first retry
	MaxDelay    time.Duration // Upper bound for any single delay
	Multiplier  float64       // Growth factor between retries
	Jitter      float64       // Randomization factor in [0, 1]
}

// DefaultPolicy returns 3 attempts, 1s base delay doubling up to 30s.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
		Multiplier:  DefaultMultiplier,
		Jitter:      DefaultJitter,
	}
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultBaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultMaxDelay
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	if p.Multiplier < 1 {
		p.Multiplier = DefaultMultiplier
	}
	if p.Jitter < 0 || p.Jitter > 1 {
		p.Jitter = DefaultJitter
	}
	return p
}

// RetryableError wraps an error to indicate it should trigger a retry.
type RetryableError struct{ Err error }

// Retryable wraps an error as a RetryableError. A nil error stays nil.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

// Error returns the error message of the wrapped error.
func (e *RetryableError) Error() string { return e.Err.Error() }

// Unwrap returns the wrapped error.
func (e *RetryableError) Unwrap() error { return e.Err }

// IsRetryable checks if an error is wrapped with RetryableError.
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}

// Executor retries operations according to a Policy.
// It is safe for concurrent use; each call gets its own backoff state.
type Executor struct {
	policy Policy
	logger *log.Logger
}

// New creates an Executor. A nil logger uses log.Default().
func New(policy Policy, logger *log.Logger) *Executor {
	if logger == nil {
		logger = log.Default()
	}
	return &Executor{policy: policy.withDefaults(), logger: logger}
}

// Policy returns the effective policy.
func (e *Executor) Policy() Policy { return e.policy }

// Do runs fn until it succeeds, returns a permanent error, or attempts run out.
// The last error is returned when every attempt failed. Cancellation of ctx
// interrupts the wait between attempts and returns ctx.Err().
func (e *Executor) Do(ctx context.Context, op string, fn func(context.Context) error) error {
	bo := e.backoff()
	var lastErr error

	for attempt := range e.policy.MaxAttempts {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if !IsRetryable(err) || attempt == e.policy.MaxAttempts-1 {
			break
		}

		delay := e.nextDelay(bo)
		e.logger.Warn("retrying", "op", op, "attempt", attempt+1, "delay", delay, "error", err)

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	return unwrapRetryable(lastErr)
}

// Value is Do for operations that produce a result.
func Value[T any](ctx context.Context, e *Executor, op string, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := e.Do(ctx, op, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func (e *Executor) backoff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = e.policy.BaseDelay
	bo.MaxInterval = e.policy.MaxDelay
	bo.Multiplier = e.policy.Multiplier
	bo.RandomizationFactor = e.policy.Jitter
	bo.MaxElapsedTime = 0
	bo.Reset()
	return bo
}

// nextDelay clamps the randomized interval to MaxDelay.
func (e *Executor) nextDelay(bo *backoff.ExponentialBackOff) time.Duration {
	d := bo.NextBackOff()
	if d == backoff.Stop || d > e.policy.MaxDelay {
		return e.policy.MaxDelay
	}
	return d
}

// unwrapRetryable strips the retry marker so callers see the underlying
// error chain (errors.Is still works either way).
func unwrapRetryable(err error) error {
	var re *RetryableError
	if errors.As(err, &re) && re == err {
		return re.Err
	}
	return err
}
