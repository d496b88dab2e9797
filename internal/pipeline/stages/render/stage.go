// Package render drives the encoder chain over the composed timeline.
// Chain exhaustion fails the job: without a rendered file there is
// nothing to deliver.
package render

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/aura-studio/aura/internal/composer"
	"github.com/aura-studio/aura/internal/models"
	"github.com/aura-studio/aura/internal/outputs"
	"github.com/aura-studio/aura/internal/pipeline/core"
	"github.com/aura-studio/aura/internal/providers"
	"github.com/aura-studio/aura/internal/retry"
)

// Stage encodes the timeline to the output container.
type Stage struct {
	logger *slog.Logger
	policy retry.Policy
}

// New creates the render stage. Encodes are expensive, so each provider
// in the chain gets a single attempt before falling back.
func New(logger *slog.Logger) *Stage {
	if logger == nil {
		logger = slog.Default()
	}
	return &Stage{logger: logger, policy: retry.SingleAttempt()}
}

// ID implements core.Stage.
func (s *Stage) ID() models.Stage { return models.StageRender }

// Name implements core.Stage.
func (s *Stage) Name() string { return "Render Video" }

// Cleanup implements core.Stage.
func (s *Stage) Cleanup(context.Context) error { return nil }

// Execute implements core.Stage.
func (s *Stage) Execute(ctx context.Context, state *core.State) error {
	if state.Timeline == nil {
		return models.NewEngineError(models.CodeEmptyOutput, "render requires a composed timeline")
	}

	chain, record, err := state.Chain(providers.CategoryEncoder)
	if err != nil {
		return err
	}

	spec := state.Job.Render
	outPath := filepath.Join(state.Scope.Root(), "render."+string(spec.Container))
	state.Scope.Register(outPath)

	ctx = composer.WithJobID(ctx, state.Job.ID)
	ctx = composer.WithCorrelationID(ctx, state.Job.CorrelationID)

	var lastErr error
	for _, manifest := range chain {
		provider, ok := state.Registry.Encoder(manifest.Name)
		if !ok {
			continue
		}
		state.Reporter.RecordProvider(ctx, models.StageRender, manifest.Name, record)

		err := state.Invoker.Invoke(ctx, manifest.Name, s.policy, func(ctx context.Context) error {
			renderErr := provider.Render(ctx, *state.Timeline, spec, outPath, func(p providers.EncodeProgress) {
				state.Reporter.ReportProgress(ctx, models.StageRender, p.Percent, p.Detail)
			})
			if renderErr != nil {
				return renderErr
			}
			return outputs.ValidateVideo(outPath, spec.Container, state.Timeline.TotalDuration, spec.VideoKbps)
		})
		if err == nil {
			state.RenderOutput = outPath
			state.Reporter.ReportProgress(ctx, models.StageRender, 100, "render complete")
			return nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Warn("encoder provider failed",
			slog.String("job_id", state.Job.ID),
			slog.String("provider", manifest.Name),
			slog.String("error", err.Error()),
		)
	}

	if lastErr == nil {
		lastErr = models.NewEngineError(models.CodeNoProvider, "no usable encoder in chain")
	}
	return fmt.Errorf("rendering timeline: %w", lastErr)
}
