package postprocess

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-studio/aura/internal/cleanup"
	"github.com/aura-studio/aura/internal/models"
	"github.com/aura-studio/aura/internal/pipeline/core"
	"github.com/aura-studio/aura/internal/providers"
)

type nopReporter struct{}

func (nopReporter) ReportProgress(context.Context, models.Stage, float64, string)  {}
func (nopReporter) ReportItemProgress(context.Context, models.Stage, int, int, string) {
}
func (nopReporter) ReportWarning(context.Context, models.Stage, string) {}
func (nopReporter) RecordProvider(context.Context, models.Stage, string, providers.SelectionRecord) {
}

func TestExecuteMovesOutputAndRecordsArtifact(t *testing.T) {
	scope, err := cleanup.NewScope(nil, t.TempDir(), "pp-test")
	require.NoError(t, err)

	rendered := filepath.Join(scope.Root(), "render.mp4")
	require.NoError(t, os.WriteFile(rendered, []byte("rendered bytes"), 0o644))
	scope.Register(rendered)

	state := core.NewState(&models.Job{
		ID:     "pp-test",
		Render: models.RenderSpec{Container: models.ContainerMP4},
	})
	state.Reporter = nopReporter{}
	state.Scope = scope
	state.OutputDir = t.TempDir()
	state.RenderOutput = rendered

	require.NoError(t, New(nil).Execute(context.Background(), state))

	require.Len(t, state.Artifacts, 1)
	artifact := state.Artifacts[0]
	assert.Equal(t, filepath.Join(state.OutputDir, "pp-test.mp4"), artifact.Path)
	assert.Equal(t, int64(len("rendered bytes")), artifact.SizeBytes)
	assert.Equal(t, "video", artifact.Kind)

	// The artifact survives scope teardown.
	scope.Close()
	_, err = os.Stat(artifact.Path)
	assert.NoError(t, err)
	_, err = os.Stat(rendered)
	assert.True(t, os.IsNotExist(err))
}

func TestExecuteWithoutRenderOutputFails(t *testing.T) {
	state := core.NewState(&models.Job{ID: "pp-none"})
	state.Reporter = nopReporter{}

	err := New(nil).Execute(context.Background(), state)
	require.Error(t, err)
	assert.Equal(t, models.CodeEmptyOutput, models.CodeOf(err))
}
