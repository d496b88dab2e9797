package validate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-studio/aura/internal/models"
	"github.com/aura-studio/aura/internal/providers"
)

type stubProvider struct {
	manifest providers.Manifest
}

func (s stubProvider) Manifest() providers.Manifest { return s.manifest }

type stubLLM struct{ stubProvider }

func (stubLLM) DraftScript(context.Context, models.Brief, models.PlanSpec) (string, error) {
	return "", nil
}

type stubTTS struct{ stubProvider }

func (stubTTS) Synthesize(context.Context, []models.ScriptLine, models.VoiceSpec, string) (string, error) {
	return "", nil
}

type stubEncoder struct{ stubProvider }

func (stubEncoder) Render(context.Context, models.Timeline, models.RenderSpec, string, func(providers.EncodeProgress)) error {
	return nil
}

func fullRegistry() *providers.Registry {
	reg := providers.NewRegistry()
	reg.RegisterLLM(stubLLM{stubProvider{providers.Manifest{Name: "RuleBased", Tier: providers.TierFree}}})
	reg.RegisterTTS(stubTTS{stubProvider{providers.Manifest{Name: "Null", Tier: providers.TierFree}}})
	reg.RegisterEncoder(stubEncoder{stubProvider{providers.Manifest{Name: "FFmpeg", Tier: providers.TierLocal}}})
	reg.Freeze()
	return reg
}

func validRequest() Request {
	return Request{
		Brief: models.Brief{Topic: "Quick Start", Language: "English", Aspect: models.AspectWidescreen},
		Plan:  models.PlanSpec{TargetDuration: 10 * time.Second, Pacing: models.PacingFast, Density: models.DensitySparse},
		Voice: models.VoiceSpec{Name: "Default", Rate: 1, Pitch: 1, PauseStyle: models.PauseNatural},
		Render: models.RenderSpec{
			Width: 1280, Height: 720,
			Container: models.ContainerMP4, Codec: models.CodecH264,
			FPS: 30, VideoKbps: 4000, AudioKbps: 128, QualityLevel: 75,
		},
		OfflineOnly: true,
		Tier:        providers.RequestFree,
	}
}

func TestValidRequestPassesWithImageWarning(t *testing.T) {
	v := New(fullRegistry(), nil, "", nil)
	result := v.Validate(context.Background(), validRequest())

	assert.True(t, result.IsValid)
	assert.Empty(t, result.Issues)
	// No image provider registered: degradation warning, not an error.
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "image")
	assert.NoError(t, result.Err())
}

func TestInvalidSpecFailsBeforeProviderChecks(t *testing.T) {
	v := New(fullRegistry(), nil, "", nil)
	req := validRequest()
	req.Render.FPS = 5

	result := v.Validate(context.Background(), req)
	assert.False(t, result.IsValid)
	require.NotEmpty(t, result.Issues)
	assert.Equal(t, models.CodeInvalidInput, result.Issues[0].Code)
	assert.Equal(t, models.CodeInvalidInput, models.CodeOf(result.Err()))
}

func TestOfflineProIsPolicyViolation(t *testing.T) {
	v := New(fullRegistry(), nil, "", nil)
	req := validRequest()
	req.Tier = providers.RequestPro

	result := v.Validate(context.Background(), req)
	assert.False(t, result.IsValid)
	assert.Equal(t, models.CodeOfflineViolation, models.CodeOf(result.Err()))
}

func TestMissingScriptProviderIsFatal(t *testing.T) {
	reg := providers.NewRegistry()
	reg.RegisterEncoder(stubEncoder{stubProvider{providers.Manifest{Name: "FFmpeg", Tier: providers.TierLocal}}})
	reg.Freeze()

	v := New(reg, nil, "", nil)
	result := v.Validate(context.Background(), validRequest())

	assert.False(t, result.IsValid)
	require.NotEmpty(t, result.Issues)
	assert.Equal(t, models.StageScript, result.Issues[0].Stage)
	assert.Equal(t, models.CodeNoProvider, result.Issues[0].Code)
}

func TestEncoderProbeFailureIsFatal(t *testing.T) {
	probe := func(context.Context) error { return errors.New("ffmpeg not found") }
	v := New(fullRegistry(), probe, "", nil)

	result := v.Validate(context.Background(), validRequest())
	assert.False(t, result.IsValid)
	assert.Equal(t, models.CodeEncoderFailure, models.CodeOf(result.Err()))
}

func TestDiskSpaceCheckWarnsOnly(t *testing.T) {
	v := New(fullRegistry(), nil, t.TempDir(), nil)
	req := validRequest()
	// An absurd render keeps the estimate above any real volume's free space.
	req.Plan.TargetDuration = 2 * time.Hour
	req.Render.Width = 7680
	req.Render.Height = 4320
	req.Render.FPS = 120

	result := v.Validate(context.Background(), req)
	assert.True(t, result.IsValid)
}

func TestEstimateOutputBytesScales(t *testing.T) {
	small := EstimateOutputBytes(validRequest().Render, models.PlanSpec{TargetDuration: 10 * time.Second})
	large := EstimateOutputBytes(validRequest().Render, models.PlanSpec{TargetDuration: 100 * time.Second})
	assert.Greater(t, large, small)
	assert.Positive(t, small)
}
