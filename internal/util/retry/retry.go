package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Policy holds immutable retry configuration.
type Policy struct {
	// BaseDelay is the delay before the second attempt. Subsequent delays
	// double per attempt up to MaxDelay.
	BaseDelay time.Duration

	// MaxDelay is the hard ceiling for the computed delay.
	MaxDelay time.Duration

	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
}

// DefaultPolicy returns the policy used when the caller provides none.
func DefaultPolicy() Policy {
	return Policy{
		BaseDelay:   30 * time.Second,
		MaxDelay:    5 * time.Minute,
		MaxAttempts: 3,
	}
}

// Delay computes the backoff delay after the given zero-based attempt:
// min(BaseDelay * 2^attempt, MaxDelay).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := p.BaseDelay
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Option is a functional option for Do.
type Option func(*config)

type config struct {
	onAttempt func(attempt int, err error)
	sleep     func(ctx context.Context, d time.Duration) error
}

// WithOnAttempt registers a hook invoked after every attempt with the
// one-based attempt number and the attempt's error (nil on success). The
// orchestrator uses it to keep the run's attempt counter authoritative.
func WithOnAttempt(fn func(attempt int, err error)) Option {
	return func(c *config) {
		c.onAttempt = fn
	}
}

// withSleep overrides the backoff sleep, for tests.
func withSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(c *config) {
		c.sleep = fn
	}
}

// Do executes the operation with exponential backoff retry under the policy.
// It stops on the first success, on a Fatal-marked error, on context
// cancellation, or once MaxAttempts attempts have been made, whichever comes
// first. Context cancellation is observed before every attempt and during
// every backoff sleep.
func Do(ctx context.Context, policy Policy, operation func(ctx context.Context) error, opts ...Option) error {
	cfg := &config{
		sleep: sleepCtx,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("cancelled after %d attempts: %w", attempt, err)
		}

		err := operation(ctx)
		if cfg.onAttempt != nil {
			cfg.onAttempt(attempt+1, err)
		}
		if err == nil {
			return nil
		}
		lastErr = err

		if IsFatal(err) {
			return fmt.Errorf("fatal error (not retrying): %w", err)
		}

		if attempt < policy.MaxAttempts-1 {
			if err := cfg.sleep(ctx, policy.Delay(attempt)); err != nil {
				return fmt.Errorf("cancelled after %d attempts: %w", attempt+1, err)
			}
		}
	}

	return &ExhaustedError{Attempts: policy.MaxAttempts, Err: lastErr}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ExhaustedError reports that all attempts were consumed without success.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("operation failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// IsExhausted checks if an error marks an exhausted retry budget.
func IsExhausted(err error) bool {
	var exhausted *ExhaustedError
	return errors.As(err, &exhausted)
}

// FatalError wraps an error to mark it as fatal (non-retryable).
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string {
	return e.Err.Error()
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// Fatal marks an error as fatal (non-retryable). Operations that encounter
// fatal errors, such as invalid credentials or an unsupported OS, short-circuit
// without consuming the remaining retry budget.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &FatalError{Err: err}
}

// IsFatal checks if an error is fatal (non-retryable).
func IsFatal(err error) bool {
	var fatalErr *FatalError
	return errors.As(err, &fatalErr)
}
