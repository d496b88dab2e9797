package compose

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

func composedState(fps int) *core.State {
	state := core.NewState(&models.Job{
		ID:     "compose-test",
		Render: models.RenderSpec{FPS: fps},
	})
	state.Reporter = nopReporter{}
	state.NarrationPath = "/tmp/narration.wav"
	state.Scenes = []models.Scene{
		{Index: 0, Heading: "One", Duration: 2*time.Second + 7*time.Millisecond},
		{Index: 1, Heading: "Two", Duration: 3 * time.Second},
	}
	state.SceneAssets = map[int]string{0: "/tmp/a0.png", 1: "/tmp/a1.png"}
	return state
}

func TestComposeBuildsFrameSnappedTimeline(t *testing.T) {
	state := composedState(30)
	require.NoError(t, New(nil).Execute(context.Background(), state))

	tl := state.Timeline
	require.NotNil(t, tl)
	require.Len(t, tl.Scenes, 2)
	assert.Equal(t, 30, tl.FPS)
	assert.Equal(t, "/tmp/narration.wav", tl.NarrationPath)

	frame := time.Second / 30
	for _, scene := range tl.Scenes {
		assert.Zero(t, scene.Duration%frame, "scene %d not frame aligned", scene.Index)
		assert.NotEmpty(t, scene.AssetPath)
	}

	// Scenes are contiguous and the total covers them exactly.
	assert.Equal(t, time.Duration(0), tl.Scenes[0].Start)
	assert.Equal(t, tl.Scenes[0].Duration, tl.Scenes[1].Start)
	assert.Equal(t, tl.Scenes[0].Duration+tl.Scenes[1].Duration, tl.TotalDuration)
}

func TestComposeIsDeterministic(t *testing.T) {
	first := composedState(30)
	second := composedState(30)
	require.NoError(t, New(nil).Execute(context.Background(), first))
	require.NoError(t, New(nil).Execute(context.Background(), second))
	assert.Equal(t, first.Timeline, second.Timeline)
}

func TestComposeFailsOnMissingAsset(t *testing.T) {
	state := composedState(30)
	delete(state.SceneAssets, 1)

	err := New(nil).Execute(context.Background(), state)
	require.Error(t, err)
	assert.Nil(t, state.Timeline)
}

func TestComposeFailsOnEmptyScenes(t *testing.T) {
	state := composedState(30)
	state.Scenes = nil

	err := New(nil).Execute(context.Background(), state)
	require.Error(t, err)
	assert.Equal(t, models.CodeEmptyOutput, models.CodeOf(err))
}
