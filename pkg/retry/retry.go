package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"streetviewdl/pkg/config"
	errs "streetviewdl/pkg/errors"
	"streetviewdl/pkg/logger"
)

// Operation performs one attempt. attempt starts at 1.
type Operation func(ctx context.Context, attempt int) error

// OperationWithResult is an Operation that also returns a value
type OperationWithResult[T any] func(ctx context.Context, attempt int) (T, error)

// Policy holds retry configuration
type Policy struct {
	// MaxAttempts is the total number of attempts, the first one included
	MaxAttempts int
	// Backoff strategy to use
	Backoff BackoffStrategy
	// Throttled replaces Backoff for rate limited responses when set
	Throttled BackoffStrategy
	// MaxHint caps a server Retry-After hint; zero ignores hints
	MaxHint time.Duration
	// RetryIf determines if an error should be retried
	RetryIf func(error) bool
	// OnRetry is called before each retry wait
	OnRetry func(attempt int, err error, delay time.Duration)
	// Logger for retry attempts
	Logger logger.Logger
}

// ExhaustedError is returned when every allowed attempt failed with a retryable error
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("max retry attempts (%d) exceeded: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// DefaultPolicy returns a retry policy with sensible defaults
func DefaultPolicy() *Policy {
	return &Policy{
		MaxAttempts: 3,
		Backoff:     DefaultExponentialBackoff(),
		RetryIf:     DefaultRetryIf,
		Logger:      logger.NewNopLogger(),
	}
}

// FromConfig builds the shared request policy from configuration.
// Rate limited responses back off at least twice as long as other transient
// errors, and a Retry-After hint from the service is honoured up to the
// throttled maximum.
func FromConfig(cfg config.RetryConfig, log logger.Logger) *Policy {
	base := &ExponentialBackoff{
		BaseDelay:    cfg.InitialBackoff,
		MaxDelay:     cfg.MaxBackoff,
		Multiplier:   cfg.Multiplier,
		JitterFactor: cfg.Jitter,
	}
	throttled := &ExponentialBackoff{
		BaseDelay:    2 * cfg.InitialBackoff,
		MaxDelay:     2 * cfg.MaxBackoff,
		Multiplier:   cfg.Multiplier,
		JitterFactor: cfg.Jitter,
	}

	return &Policy{
		MaxAttempts: cfg.MaxAttempts,
		Backoff:     base,
		Throttled:   throttled,
		MaxHint:     throttled.MaxDelay,
		RetryIf:     DefaultRetryIf,
		Logger:      logger.OrNop(log),
	}
}

// DefaultRetryIf retries transient service errors only
func DefaultRetryIf(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr *errs.Error
	if errors.As(err, &apiErr) {
		return apiErr.IsTransient()
	}

	return false
}

// Do runs op until it succeeds, returns a non-retryable error, or runs out
// of attempts. The context is checked before every attempt, and a cancelled
// context ends the loop with an error wrapping errs.ErrCancelled. The number
// of attempts actually made is always returned.
func Do(ctx context.Context, p *Policy, op Operation) (int, error) {
	if p == nil {
		p = DefaultPolicy()
	}
	log := logger.OrNop(p.Logger)
	retryIf := p.RetryIf
	if retryIf == nil {
		retryIf = DefaultRetryIf
	}
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	attempts := 0
	for {
		if err := ctx.Err(); err != nil {
			return attempts, fmt.Errorf("%w before attempt %d: %v", errs.ErrCancelled, attempts+1, err)
		}

		attempts++
		err := op(ctx, attempts)
		if err == nil {
			if attempts > 1 {
				log.DebugWithFields("operation succeeded after retry", map[string]interface{}{
					"attempt": attempts,
				})
			}
			return attempts, nil
		}

		if !retryIf(err) {
			return attempts, err
		}

		if attempts >= maxAttempts {
			log.WarnWithFields("max retry attempts exceeded", map[string]interface{}{
				"attempts":   attempts,
				"last_error": err.Error(),
			})
			return attempts, &ExhaustedError{Attempts: attempts, Last: err}
		}

		delay := p.delayFor(err, attempts)
		if p.OnRetry != nil {
			p.OnRetry(attempts, err, delay)
		}

		log.DebugWithFields("retrying operation", map[string]interface{}{
			"attempt":      attempts,
			"error":        err.Error(),
			"delay_ms":     delay.Milliseconds(),
			"max_attempts": maxAttempts,
		})

		if werr := Wait(ctx, delay); werr != nil {
			return attempts, fmt.Errorf("%w during retry wait: %v", errs.ErrCancelled, werr)
		}
	}
}

// DoWithResult executes an operation that returns a result with retry logic
func DoWithResult[T any](ctx context.Context, p *Policy, op OperationWithResult[T]) (T, int, error) {
	var result T

	attempts, err := Do(ctx, p, func(ctx context.Context, attempt int) error {
		var opErr error
		result, opErr = op(ctx, attempt)
		return opErr
	})

	return result, attempts, err
}

// delayFor is the wait after attempt failed with err. A Retry-After hint
// longer than the computed backoff wins, capped at MaxHint.
func (p *Policy) delayFor(err error, attempt int) time.Duration {
	strategy := p.Backoff
	if p.Throttled != nil && errs.TypeOf(err) == errs.ErrorTypeRateLimit {
		strategy = p.Throttled
	}

	var d time.Duration
	if strategy != nil {
		d = strategy.NextDelay(attempt)
	}

	var apiErr *errs.Error
	if p.MaxHint > 0 && errors.As(err, &apiErr) && apiErr.RetryAfter > d {
		d = min(apiErr.RetryAfter, p.MaxHint)
	}
	return d
}
