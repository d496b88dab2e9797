package retry

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/aura-studio/aura/internal/models"
)

// Policy controls retries for a single provider call.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// BaseDelay seeds the exponential backoff: base * 2^attempt.
	BaseDelay time.Duration
	// MaxDelay clamps the backoff.
	MaxDelay time.Duration
}

// DefaultPolicy returns the general-purpose retry policy.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: 500 * time.Millisecond, MaxDelay: 10 * time.Second}
}

// SingleAttempt disables retries; the call runs once.
func SingleAttempt() Policy {
	return Policy{MaxAttempts: 1, BaseDelay: 500 * time.Millisecond, MaxDelay: 10 * time.Second}
}

// Delay computes the backoff before the given zero-based retry attempt.
func (p Policy) Delay(attempt int) time.Duration {
	d := p.BaseDelay << uint(attempt)
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	if d < 0 {
		d = p.MaxDelay
	}
	return d
}

// Retryable reports whether err should consume retry budget. Context
// cancellation and non-retryable provider errors fail immediately.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var perr *models.ProviderError
	if errors.As(err, &perr) {
		return perr.Retryable
	}
	return models.CodeOf(err).Retryable()
}

// Invoker funnels provider calls through retry policy and the provider's
// circuit breaker.
type Invoker struct {
	breakers *BreakerRegistry
	logger   *slog.Logger
}

// NewInvoker creates an invoker backed by the given breaker registry.
func NewInvoker(breakers *BreakerRegistry, logger *slog.Logger) *Invoker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Invoker{breakers: breakers, logger: logger}
}

// Breakers exposes the underlying registry for diagnostics.
func (i *Invoker) Breakers() *BreakerRegistry { return i.breakers }

// Invoke runs fn under the policy and the provider's breaker. It returns
// the first success, the context error on cancellation, ErrCircuitOpen when
// the breaker rejects the call, or the last attempt's error once the budget
// is exhausted. Non-retryable errors return immediately.
func (i *Invoker) Invoke(ctx context.Context, provider string, policy Policy, fn func(context.Context) error) error {
	breaker := i.breakers.Get(provider)
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !breaker.Allow() {
			i.logger.Warn("circuit open, skipping provider",
				slog.String("provider", provider),
			)
			return ErrCircuitOpen
		}

		err := fn(ctx)
		if err == nil {
			breaker.RecordSuccess()
			return nil
		}
		breaker.RecordFailure()
		lastErr = err

		if !Retryable(err) {
			return err
		}
		if attempt == policy.MaxAttempts-1 {
			break
		}

		delay := policy.Delay(attempt)
		i.logger.Debug("retrying provider call",
			slog.String("provider", provider),
			slog.Int("attempt", attempt+1),
			slog.Duration("backoff", delay),
			slog.String("error", err.Error()),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return lastErr
}
