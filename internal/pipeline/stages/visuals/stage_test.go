package visuals

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-studio/aura/internal/cleanup"
	"github.com/aura-studio/aura/internal/models"
	"github.com/aura-studio/aura/internal/pipeline/core"
	"github.com/aura-studio/aura/internal/providers"
	"github.com/aura-studio/aura/internal/providers/builtin"
	"github.com/aura-studio/aura/internal/retry"
)

type recordingReporter struct {
	warnings  []string
	items     []int
	providers []string
}

func (r *recordingReporter) ReportProgress(context.Context, models.Stage, float64, string) {}
func (r *recordingReporter) ReportItemProgress(_ context.Context, _ models.Stage, current, _ int, _ string) {
	r.items = append(r.items, current)
}
func (r *recordingReporter) ReportWarning(_ context.Context, _ models.Stage, msg string) {
	r.warnings = append(r.warnings, msg)
}
func (r *recordingReporter) RecordProvider(_ context.Context, _ models.Stage, provider string, _ providers.SelectionRecord) {
	r.providers = append(r.providers, provider)
}

func newState(t *testing.T, reg *providers.Registry, sceneCount int) (*core.State, *recordingReporter) {
	t.Helper()
	scope, err := cleanup.NewScope(nil, t.TempDir(), "visuals-test")
	require.NoError(t, err)
	t.Cleanup(scope.Close)

	reporter := &recordingReporter{}
	state := core.NewState(&models.Job{
		ID:     "visuals-test",
		Render: models.RenderSpec{Width: 640, Height: 360},
	})
	state.Registry = reg
	state.Invoker = retry.NewInvoker(retry.NewBreakerRegistry(retry.BreakerConfig{}), nil)
	state.OfflineOnly = true
	state.RequestedTier = providers.RequestFree
	state.AutoFallback = true
	state.Reporter = reporter
	state.Scope = scope
	for i := 0; i < sceneCount; i++ {
		state.Scenes = append(state.Scenes, models.Scene{
			Index: i, Heading: "Scene", Duration: 2 * time.Second,
		})
	}
	return state, reporter
}

func TestNoImageProviderProducesPlaceholders(t *testing.T) {
	reg := providers.NewRegistry()
	reg.Freeze()

	state, reporter := newState(t, reg, 3)
	require.NoError(t, New(nil).Execute(context.Background(), state))

	require.Len(t, state.SceneAssets, 3)
	for i := 0; i < 3; i++ {
		path, ok := state.SceneAssets[i]
		require.True(t, ok)
		assert.True(t, strings.Contains(path, "placeholder"))
		_, err := os.Stat(path)
		require.NoError(t, err)
	}

	require.NotEmpty(t, reporter.warnings)
	assert.Contains(t, reporter.warnings[0], "placeholder")
	assert.Len(t, reporter.items, 3)
}

func TestRegisteredProviderGeneratesAssets(t *testing.T) {
	reg := providers.NewRegistry()
	reg.RegisterImage(builtin.NewPlaceholderImage())
	reg.Freeze()

	state, reporter := newState(t, reg, 2)
	require.NoError(t, New(nil).Execute(context.Background(), state))

	assert.Len(t, state.SceneAssets, 2)
	assert.Empty(t, reporter.warnings)
	assert.Equal(t, []string{"Placeholder"}, reporter.providers)
}

func TestNoScenesIsNoOp(t *testing.T) {
	reg := providers.NewRegistry()
	reg.Freeze()

	state, reporter := newState(t, reg, 0)
	require.NoError(t, New(nil).Execute(context.Background(), state))
	assert.Empty(t, state.SceneAssets)
	assert.Empty(t, reporter.warnings)
}

func TestCanceledContextStopsGeneration(t *testing.T) {
	reg := providers.NewRegistry()
	reg.Freeze()

	state, _ := newState(t, reg, 4)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := New(nil).Execute(ctx, state)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
