// Package voice implements the narration stage: select a TTS chain and
// synthesize the script lines into one audio file. The stage never fails
// the job; when every provider is exhausted it degrades to silent
// narration with a warning.
package voice

import (
	"context"
	"log/slog"

	"github.com/aura-studio/aura/internal/models"
	"github.com/aura-studio/aura/internal/outputs"
	"github.com/aura-studio/aura/internal/pipeline/core"
	"github.com/aura-studio/aura/internal/providers"
	"github.com/aura-studio/aura/internal/providers/builtin"
	"github.com/aura-studio/aura/internal/retry"
)

// Stage synthesizes narration.
type Stage struct {
	logger *slog.Logger
	policy retry.Policy
}

// New creates the voice stage.
func New(logger *slog.Logger) *Stage {
	if logger == nil {
		logger = slog.Default()
	}
	return &Stage{logger: logger, policy: retry.SingleAttempt()}
}

// ID implements core.Stage.
func (s *Stage) ID() models.Stage { return models.StageVoice }

// Name implements core.Stage.
func (s *Stage) Name() string { return "Synthesize Narration" }

// Cleanup implements core.Stage.
func (s *Stage) Cleanup(context.Context) error { return nil }

// Execute implements core.Stage.
func (s *Stage) Execute(ctx context.Context, state *core.State) error {
	if len(state.Lines) == 0 {
		state.Reporter.ReportProgress(ctx, models.StageVoice, 100, "no narration lines")
		return nil
	}

	voice := state.Job.Voice
	voice.Normalize()

	chain, record, err := state.Chain(providers.CategoryTTS)
	if err != nil {
		if models.CodeOf(err) == models.CodeOfflineViolation {
			return err
		}
		return s.degrade(ctx, state, "no narration provider available under policy")
	}

	for _, manifest := range chain {
		provider, ok := state.Registry.TTS(manifest.Name)
		if !ok {
			continue
		}
		state.Reporter.RecordProvider(ctx, models.StageVoice, manifest.Name, record)

		var path string
		err := state.Invoker.Invoke(ctx, manifest.Name, s.policy, func(ctx context.Context) error {
			out, err := provider.Synthesize(ctx, state.Lines, voice, state.Scope.Root())
			if err != nil {
				return err
			}
			if err := outputs.ValidateAudio(out); err != nil {
				return err
			}
			path = out
			return nil
		})
		if err == nil {
			state.Scope.Register(path)
			state.NarrationPath = path
			state.Reporter.ReportProgress(ctx, models.StageVoice, 100, "narration synthesized")
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Warn("narration provider failed",
			slog.String("job_id", state.Job.ID),
			slog.String("provider", manifest.Name),
			slog.String("error", err.Error()),
		)
	}

	return s.degrade(ctx, state, "all narration providers failed")
}

// degrade writes silent narration and records the warning.
func (s *Stage) degrade(ctx context.Context, state *core.State, reason string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path, err := builtin.NewNullTTS().Synthesize(ctx, state.Lines, state.Job.Voice, state.Scope.Root())
	if err != nil {
		return models.WrapEngineError(models.CodeProviderFailure, "writing silent narration fallback", err)
	}
	state.Scope.Register(path)
	state.NarrationPath = path

	state.Reporter.ReportWarning(ctx, models.StageVoice, reason+", using silent narration")
	state.Reporter.ReportProgress(ctx, models.StageVoice, 100, "silent narration substituted")
	return nil
}
