// Package postprocess moves the rendered file into the output directory
// and records the final artifact. Transferred files leave the cleanup
// scope so they survive job teardown.
package postprocess

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/aura-studio/aura/internal/models"
	"github.com/aura-studio/aura/internal/pipeline/core"
)

// Stage finalizes job outputs.
type Stage struct {
	logger *slog.Logger
}

// New creates the postprocess stage.
func New(logger *slog.Logger) *Stage {
	if logger == nil {
		logger = slog.Default()
	}
	return &Stage{logger: logger}
}

// ID implements core.Stage.
func (s *Stage) ID() models.Stage { return models.StagePostprocess }

// Name implements core.Stage.
func (s *Stage) Name() string { return "Finalize Output" }

// Cleanup implements core.Stage.
func (s *Stage) Cleanup(context.Context) error { return nil }

// Execute implements core.Stage.
func (s *Stage) Execute(ctx context.Context, state *core.State) error {
	if state.RenderOutput == "" {
		return models.NewEngineError(models.CodeEmptyOutput, "postprocess requires a rendered file")
	}

	if err := os.MkdirAll(state.OutputDir, 0o755); err != nil {
		return models.WrapEngineError(models.CodeInsufficientResources, "creating output directory", err)
	}

	finalPath := filepath.Join(state.OutputDir,
		fmt.Sprintf("%s.%s", state.Job.ID, state.Job.Render.Container))

	if err := moveFile(state.RenderOutput, finalPath); err != nil {
		return models.WrapEngineError(models.CodeInsufficientResources, "moving rendered file to output", err)
	}
	state.Scope.Transfer(state.RenderOutput)

	info, err := os.Stat(finalPath)
	if err != nil {
		return models.WrapEngineError(models.CodeInsufficientResources, "stat on final output", err)
	}

	state.Artifacts = append(state.Artifacts, models.Artifact{
		Path:      finalPath,
		SizeBytes: info.Size(),
		Kind:      "video",
	})

	state.Reporter.ReportProgress(ctx, models.StagePostprocess, 100, "output finalized")
	s.logger.Info("job output finalized",
		slog.String("job_id", state.Job.ID),
		slog.String("path", finalPath),
		slog.Int64("size_bytes", info.Size()),
	)
	return nil
}

// moveFile renames when possible and falls back to copy+remove for
// cross-device output directories.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
