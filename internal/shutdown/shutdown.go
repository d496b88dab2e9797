// Package shutdown coordinates ordered teardown of the service.
//
// Steps run strictly in registration order, each under its own timeout.
// A failing or timed-out step is logged and does not stop later steps,
// so process exit always releases every resource it can.
package shutdown

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// DefaultStepTimeout bounds steps registered without an explicit timeout.
const DefaultStepTimeout = 10 * time.Second

type step struct {
	name    string
	timeout time.Duration
	fn      func(ctx context.Context) error
}

// Coordinator runs registered teardown steps in order.
type Coordinator struct {
	logger *slog.Logger
	steps  []step
}

// New creates a coordinator.
func New(logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{logger: logger}
}

// Add registers a teardown step. Steps run in the order added. A zero or
// negative timeout uses DefaultStepTimeout.
func (c *Coordinator) Add(name string, timeout time.Duration, fn func(ctx context.Context) error) {
	if timeout <= 0 {
		timeout = DefaultStepTimeout
	}
	c.steps = append(c.steps, step{name: name, timeout: timeout, fn: fn})
}

// Run executes every step and returns the joined errors of the ones that
// failed. The parent context bounds the whole teardown; individual step
// timeouts apply within it.
func (c *Coordinator) Run(ctx context.Context) error {
	start := time.Now()
	var errs []error

	for _, s := range c.steps {
		stepStart := time.Now()
		stepCtx, cancel := context.WithTimeout(ctx, s.timeout)
		err := c.runStep(stepCtx, s)
		cancel()

		if err != nil {
			c.logger.Error("shutdown step failed",
				slog.String("step", s.name),
				slog.Duration("duration", time.Since(stepStart)),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
			continue
		}
		c.logger.Info("shutdown step completed",
			slog.String("step", s.name),
			slog.Duration("duration", time.Since(stepStart)),
		)
	}

	c.logger.Info("shutdown complete",
		slog.Int("steps", len(c.steps)),
		slog.Int("failed", len(errs)),
		slog.Duration("duration", time.Since(start)),
	)
	return errors.Join(errs...)
}

// runStep runs one step in its own goroutine so a step that ignores its
// context cannot wedge the whole teardown.
func (c *Coordinator) runStep(ctx context.Context, s step) error {
	done := make(chan error, 1)
	go func() {
		done <- s.fn(ctx)
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
