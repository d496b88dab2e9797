// Package compose builds the deterministic render timeline from the
// parsed scenes, the generated assets, and the narration track.
package compose

import (
	"context"
	"log/slog"
	"time"

	"github.com/aura-studio/aura/internal/models"
	"github.com/aura-studio/aura/internal/pipeline/core"
)

// Stage assembles the timeline.
type Stage struct {
	logger *slog.Logger
}

// New creates the compose stage.
func New(logger *slog.Logger) *Stage {
	if logger == nil {
		logger = slog.Default()
	}
	return &Stage{logger: logger}
}

// ID implements core.Stage.
func (s *Stage) ID() models.Stage { return models.StageCompose }

// Name implements core.Stage.
func (s *Stage) Name() string { return "Compose Timeline" }

// Cleanup implements core.Stage.
func (s *Stage) Cleanup(context.Context) error { return nil }

// Execute implements core.Stage. Composition is pure assembly: the same
// scenes and assets always produce the same timeline.
func (s *Stage) Execute(ctx context.Context, state *core.State) error {
	if len(state.Scenes) == 0 {
		return models.NewEngineError(models.CodeEmptyOutput, "no scenes to compose")
	}

	fps := state.Job.Render.FPS
	timeline := &models.Timeline{
		FPS:           fps,
		NarrationPath: state.NarrationPath,
		Scenes:        make([]models.Scene, 0, len(state.Scenes)),
	}

	cursor := time.Duration(0)
	for _, scene := range state.Scenes {
		asset, ok := state.SceneAssets[scene.Index]
		if !ok {
			return models.NewEngineError(models.CodeProviderFailure,
				"scene is missing its visual asset")
		}
		composed := scene
		composed.AssetPath = asset
		composed.Start = cursor
		composed.Duration = models.SnapToFrame(scene.Duration, fps)
		if composed.Duration <= 0 {
			composed.Duration = time.Second / time.Duration(max(fps, 1))
		}
		cursor += composed.Duration
		timeline.Scenes = append(timeline.Scenes, composed)
	}
	timeline.TotalDuration = cursor

	state.Timeline = timeline
	state.Reporter.ReportProgress(ctx, models.StageCompose, 100, "timeline composed")

	s.logger.Debug("timeline composed",
		slog.String("job_id", state.Job.ID),
		slog.Int("scenes", len(timeline.Scenes)),
		slog.Duration("total", timeline.TotalDuration),
	)
	return nil
}
