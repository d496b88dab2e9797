package pipeline

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-studio/aura/internal/events"
	"github.com/aura-studio/aura/internal/jobstore"
	"github.com/aura-studio/aura/internal/models"
	"github.com/aura-studio/aura/internal/providers"
	"github.com/aura-studio/aura/internal/providers/builtin"
	"github.com/aura-studio/aura/internal/retry"
)

// mockEncoder writes a minimal MP4 and reports a few progress points.
// When block is non-nil it signals render start and waits for cancellation.
type mockEncoder struct {
	block chan struct{}
}

func (m *mockEncoder) Manifest() providers.Manifest {
	return providers.Manifest{Name: "MockEncoder", Tier: providers.TierFree, SupportsStreaming: true, SupportsCancellation: true}
}

func (m *mockEncoder) Render(ctx context.Context, timeline models.Timeline, spec models.RenderSpec, outPath string, sink func(providers.EncodeProgress)) error {
	if m.block != nil {
		sink(providers.EncodeProgress{Percent: 30, Detail: "encoding"})
		close(m.block)
		<-ctx.Done()
		return ctx.Err()
	}
	for _, pct := range []float64{25, 50, 75} {
		sink(providers.EncodeProgress{Percent: pct, Detail: "encoding"})
	}
	payload := make([]byte, 16*1024)
	copy(payload, []byte{0, 0, 0, 32})
	copy(payload[4:], "ftyp")
	copy(payload[8:], "isom")
	return os.WriteFile(outPath, payload, 0o644)
}

// failingLLM is a Pro provider that always fails with a retryable error.
type failingLLM struct{}

func (failingLLM) Manifest() providers.Manifest {
	return providers.Manifest{Name: "FailingPro", Tier: providers.TierPro, OnlineRequired: true}
}

func (failingLLM) DraftScript(context.Context, models.Brief, models.PlanSpec) (string, error) {
	return "", models.NewProviderError("FailingPro", models.CodeProviderFailure, errors.New("upstream unavailable"))
}

// flakyLLM fails its first call with a retryable error, then drafts.
type flakyLLM struct{ calls int }

func (f *flakyLLM) Manifest() providers.Manifest {
	return providers.Manifest{Name: "FlakyFree", Tier: providers.TierFree}
}

func (f *flakyLLM) DraftScript(context.Context, models.Brief, models.PlanSpec) (string, error) {
	f.calls++
	if f.calls == 1 {
		return "", models.NewProviderError("FlakyFree", models.CodeProviderFailure, errors.New("transient"))
	}
	return "# Quick Start\n\n## Scene 1: Introduction\nWelcome to the topic.\n", nil
}

// brokenEncoder fails every render with encoder diagnostics attached.
type brokenEncoder struct{}

func (brokenEncoder) Manifest() providers.Manifest {
	return providers.Manifest{Name: "BrokenEncoder", Tier: providers.TierFree}
}

func (brokenEncoder) Render(context.Context, models.Timeline, models.RenderSpec, string, func(providers.EncodeProgress)) error {
	return &models.ProviderError{
		Provider:   "BrokenEncoder",
		Code:       models.CodeEncoderFailure,
		StderrTail: "Invalid data found when processing input",
		LogPath:    "/var/log/aura/encoder/job-broken.log",
		Err:        errors.New("encoder exited with code 1"),
	}
}

func testJob(id string, tier providers.RequestedTier, offline bool, duration time.Duration) *models.Job {
	return &models.Job{
		ID:            id,
		CorrelationID: "corr-" + id,
		Brief:         models.Brief{Topic: "Quick Start", Language: "English", Aspect: models.AspectWidescreen},
		Plan:          models.PlanSpec{TargetDuration: duration, Pacing: models.PacingFast, Density: models.DensitySparse},
		Voice:         models.VoiceSpec{Name: "Default", Rate: 1, Pitch: 1, PauseStyle: models.PauseNatural},
		Render: models.RenderSpec{
			Width: 1280, Height: 720,
			Container: models.ContainerMP4, Codec: models.CodecH264,
			FPS: 30, VideoKbps: 64, AudioKbps: 128, QualityLevel: 75,
		},
		RequestedTier: string(tier),
		OfflineOnly:   offline,
	}
}

type testEngine struct {
	store  *jobstore.Store
	bus    *events.Bus
	runner *Runner
}

func newTestEngine(t *testing.T, register func(*providers.Registry)) *testEngine {
	return newTestEngineConfig(t, Config{AutoFallback: true}, register)
}

func newTestEngineConfig(t *testing.T, config Config, register func(*providers.Registry)) *testEngine {
	t.Helper()

	bus := events.NewBus(events.Options{}, nil)
	store := jobstore.New(nil, bus, nil)

	registry := providers.NewRegistry()
	register(registry)
	registry.Freeze()

	invoker := retry.NewInvoker(retry.NewBreakerRegistry(retry.BreakerConfig{}), nil)

	config.WorkDir = t.TempDir()
	config.OutputDir = t.TempDir()
	runner := NewRunner(config, store, registry, invoker, nil)

	return &testEngine{store: store, bus: bus, runner: runner}
}

func TestOfflineFreeJobCompletesWithPlaceholderWarning(t *testing.T) {
	eng := newTestEngine(t, func(reg *providers.Registry) {
		reg.RegisterLLM(builtin.NewRuleBasedLLM())
		reg.RegisterTTS(builtin.NewNullTTS())
		reg.RegisterEncoder(&mockEncoder{})
	})

	job := testJob("job-offline", providers.RequestFree, true, 10*time.Second)
	require.NoError(t, eng.store.Create(job))

	sub := eng.bus.Subscribe(context.Background(), job.ID, models.EventID{})
	require.NoError(t, eng.runner.Run(context.Background(), job.ID))

	final, ok := eng.store.Get(job.ID)
	require.True(t, ok)
	assert.Equal(t, models.JobDone, final.Status)
	assert.Equal(t, float64(100), final.Percent)
	assert.NotNil(t, final.CompletedUTC)

	// No image provider: placeholders plus a warning, never a failure.
	require.NotEmpty(t, final.Warnings)
	assert.Contains(t, strings.Join(final.Warnings, " "), "placeholder")

	require.Len(t, final.Artifacts, 1)
	assert.True(t, strings.HasSuffix(final.Artifacts[0].Path, ".mp4"))
	info, err := os.Stat(final.Artifacts[0].Path)
	require.NoError(t, err)
	assert.Equal(t, final.Artifacts[0].SizeBytes, info.Size())

	// Stream closed at the terminal event; percent never decreases.
	last := float64(-1)
	sawTerminal := false
	for ev := range sub.Events {
		assert.GreaterOrEqual(t, ev.PercentOverall, last, "event %s went backwards", ev.EventID)
		last = ev.PercentOverall
		if ev.Kind == models.EventJobCompleted {
			sawTerminal = true
		}
	}
	assert.True(t, sawTerminal)
	assert.Equal(t, float64(100), last)
}

func TestProTierFallsBackToFreeProvider(t *testing.T) {
	eng := newTestEngine(t, func(reg *providers.Registry) {
		reg.RegisterLLM(failingLLM{})
		reg.RegisterLLM(builtin.NewRuleBasedLLM())
		reg.RegisterTTS(builtin.NewNullTTS())
		reg.RegisterImage(builtin.NewPlaceholderImage())
		reg.RegisterEncoder(&mockEncoder{})
	})

	job := testJob("job-pro", providers.RequestPro, false, 10*time.Second)
	require.NoError(t, eng.store.Create(job))
	require.NoError(t, eng.runner.Run(context.Background(), job.ID))

	final, ok := eng.store.Get(job.ID)
	require.True(t, ok)
	require.Equal(t, models.JobDone, final.Status)

	used := final.ProviderUsed[models.StageScript]
	require.NotEmpty(t, used)
	assert.Equal(t, "FailingPro", used[0])
	assert.Equal(t, "RuleBased", used[len(used)-1])

	sel, ok := final.Selections[models.StageScript]
	require.True(t, ok)
	assert.Equal(t, "RuleBased", sel.Executed)
	assert.True(t, sel.IsFallback)
	assert.Equal(t, "Pro", sel.FallbackFrom)
}

func TestCancelDuringRenderTerminatesJob(t *testing.T) {
	renderStarted := make(chan struct{})
	eng := newTestEngine(t, func(reg *providers.Registry) {
		reg.RegisterLLM(builtin.NewRuleBasedLLM())
		reg.RegisterTTS(builtin.NewNullTTS())
		reg.RegisterImage(builtin.NewPlaceholderImage())
		reg.RegisterEncoder(&mockEncoder{block: renderStarted})
	})

	job := testJob("job-cancel", providers.RequestFree, true, 120*time.Second)
	require.NoError(t, eng.store.Create(job))

	done := make(chan error, 1)
	go func() { done <- eng.runner.Run(context.Background(), job.ID) }()

	select {
	case <-renderStarted:
	case <-time.After(30 * time.Second):
		t.Fatal("render never started")
	}
	require.NoError(t, eng.store.Cancel(job.ID))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("pipeline did not observe cancellation")
	}

	final, ok := eng.store.Get(job.ID)
	require.True(t, ok)
	assert.Equal(t, models.JobCanceled, final.Status)
	assert.NotNil(t, final.CanceledUTC)
	assert.Empty(t, final.Artifacts)
}

func TestCanceledQueuedJobNeverRuns(t *testing.T) {
	eng := newTestEngine(t, func(reg *providers.Registry) {
		reg.RegisterLLM(builtin.NewRuleBasedLLM())
		reg.RegisterTTS(builtin.NewNullTTS())
		reg.RegisterEncoder(&mockEncoder{})
	})

	job := testJob("job-queued-cancel", providers.RequestFree, true, 10*time.Second)
	require.NoError(t, eng.store.Create(job))
	require.NoError(t, eng.store.Cancel(job.ID))

	require.NoError(t, eng.runner.Run(context.Background(), job.ID))

	final, ok := eng.store.Get(job.ID)
	require.True(t, ok)
	assert.Equal(t, models.JobCanceled, final.Status)
	assert.Nil(t, final.StartedUTC)
}

func TestConfiguredRetryBudgetRecoversTransientFailure(t *testing.T) {
	flaky := &flakyLLM{}
	eng := newTestEngineConfig(t, Config{
		AutoFallback:   true,
		RetryAttempts:  2,
		RetryBaseDelay: time.Millisecond,
	}, func(reg *providers.Registry) {
		reg.RegisterLLM(flaky)
		reg.RegisterTTS(builtin.NewNullTTS())
		reg.RegisterImage(builtin.NewPlaceholderImage())
		reg.RegisterEncoder(&mockEncoder{})
	})

	job := testJob("job-retry", providers.RequestFree, true, 10*time.Second)
	require.NoError(t, eng.store.Create(job))
	require.NoError(t, eng.runner.Run(context.Background(), job.ID))

	final, ok := eng.store.Get(job.ID)
	require.True(t, ok)
	assert.Equal(t, models.JobDone, final.Status)
	assert.Equal(t, 2, flaky.calls)
}

func TestSingleAttemptBudgetDoesNotRetry(t *testing.T) {
	flaky := &flakyLLM{}
	eng := newTestEngineConfig(t, Config{
		AutoFallback:   true,
		RetryAttempts:  1,
		RetryBaseDelay: time.Millisecond,
	}, func(reg *providers.Registry) {
		reg.RegisterLLM(flaky)
		reg.RegisterTTS(builtin.NewNullTTS())
		reg.RegisterEncoder(&mockEncoder{})
	})

	job := testJob("job-no-retry", providers.RequestFree, true, 10*time.Second)
	require.NoError(t, eng.store.Create(job))
	require.NoError(t, eng.runner.Run(context.Background(), job.ID))

	final, ok := eng.store.Get(job.ID)
	require.True(t, ok)
	assert.Equal(t, models.JobFailed, final.Status)
	assert.Equal(t, 1, flaky.calls)
}

func TestEncoderFailureCarriesDiagnostics(t *testing.T) {
	eng := newTestEngineConfig(t, Config{
		AutoFallback:   true,
		RetryAttempts:  1,
		RetryBaseDelay: time.Millisecond,
	}, func(reg *providers.Registry) {
		reg.RegisterLLM(builtin.NewRuleBasedLLM())
		reg.RegisterTTS(builtin.NewNullTTS())
		reg.RegisterImage(builtin.NewPlaceholderImage())
		reg.RegisterEncoder(brokenEncoder{})
	})

	job := testJob("job-encfail", providers.RequestFree, true, 10*time.Second)
	require.NoError(t, eng.store.Create(job))
	require.NoError(t, eng.runner.Run(context.Background(), job.ID))

	final, ok := eng.store.Get(job.ID)
	require.True(t, ok)
	require.Equal(t, models.JobFailed, final.Status)
	require.NotNil(t, final.Failure)
	assert.Equal(t, models.StageRender, final.Failure.Stage)
	assert.Equal(t, models.CodeEncoderFailure, final.Failure.Code)
	assert.Equal(t, "Invalid data found when processing input", final.Failure.StderrSnippet)
	assert.Equal(t, "/var/log/aura/encoder/job-broken.log", final.Failure.LogPath)
}

func TestScriptChainExhaustionFailsJob(t *testing.T) {
	eng := newTestEngine(t, func(reg *providers.Registry) {
		reg.RegisterLLM(failingLLM{})
		reg.RegisterTTS(builtin.NewNullTTS())
		reg.RegisterEncoder(&mockEncoder{})
	})

	job := testJob("job-fail", providers.RequestPro, false, 10*time.Second)
	require.NoError(t, eng.store.Create(job))
	require.NoError(t, eng.runner.Run(context.Background(), job.ID))

	final, ok := eng.store.Get(job.ID)
	require.True(t, ok)
	assert.Equal(t, models.JobFailed, final.Status)
	require.NotNil(t, final.Failure)
	assert.Equal(t, models.StageScript, final.Failure.Stage)
	assert.NotNil(t, final.EndedUTC)
}
