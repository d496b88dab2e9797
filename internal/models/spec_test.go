package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validBrief() Brief {
	return Brief{
		Topic:    "Quick Start",
		Language: "English",
		Aspect:   AspectWidescreen,
	}
}

func validRender() RenderSpec {
	return RenderSpec{
		Width:        1280,
		Height:       720,
		Container:    ContainerMP4,
		Codec:        CodecH264,
		FPS:          30,
		VideoKbps:    4000,
		AudioKbps:    128,
		QualityLevel: 75,
	}
}

func TestBriefValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Brief)
		wantErr bool
	}{
		{"valid", func(b *Brief) {}, false},
		{"empty topic", func(b *Brief) { b.Topic = "  " }, true},
		{"empty language", func(b *Brief) { b.Language = "" }, true},
		{"bad aspect", func(b *Brief) { b.Aspect = "cinema_21x9" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := validBrief()
			tt.mutate(&b)
			err := b.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, CodeInvalidInput, CodeOf(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPlanSpecValidate(t *testing.T) {
	plan := PlanSpec{TargetDuration: 10 * time.Second, Pacing: PacingFast, Density: DensitySparse}
	assert.NoError(t, plan.Validate())

	plan.TargetDuration = 500 * time.Millisecond
	assert.Error(t, plan.Validate())

	plan.TargetDuration = 3 * time.Hour
	assert.Error(t, plan.Validate())

	plan.TargetDuration = time.Minute
	plan.Pacing = "frantic"
	assert.Error(t, plan.Validate())
}

func TestVoiceSpecValidateAndNormalize(t *testing.T) {
	v := VoiceSpec{Name: "Default"}
	v.Normalize()
	assert.Equal(t, 1.0, v.Rate)
	assert.Equal(t, 1.0, v.Pitch)
	assert.Equal(t, PauseNatural, v.PauseStyle)
	assert.NoError(t, v.Validate())

	v.Rate = 2.5
	assert.Error(t, v.Validate())

	v.Rate = 1.0
	v.Pitch = 0.1
	assert.Error(t, v.Validate())
}

func TestRenderSpecValidate(t *testing.T) {
	r := validRender()
	assert.NoError(t, r.Validate())

	r.FPS = 10
	assert.Error(t, r.Validate())

	r = validRender()
	r.Container = "avi"
	assert.Error(t, r.Validate())

	r = validRender()
	r.QualityLevel = 101
	assert.Error(t, r.Validate())
}

func TestJobStatusTransitions(t *testing.T) {
	allowed := map[JobStatus][]JobStatus{
		JobQueued:   {JobRunning, JobCanceled},
		JobRunning:  {JobDone, JobFailed, JobCanceled},
		JobDone:     {},
		JobFailed:   {},
		JobCanceled: {},
	}

	all := []JobStatus{JobQueued, JobRunning, JobDone, JobFailed, JobCanceled}
	for from, targets := range allowed {
		permitted := make(map[JobStatus]bool)
		for _, to := range targets {
			permitted[to] = true
		}
		for _, to := range all {
			assert.Equal(t, permitted[to], from.CanTransitionTo(to),
				"transition %s -> %s", from, to)
		}
	}
}

func TestEventIDOrderingAndParse(t *testing.T) {
	a := EventID{UnixMs: 1000, Counter: 1}
	b := EventID{UnixMs: 1000, Counter: 2}
	c := EventID{UnixMs: 1001, Counter: 0}

	assert.True(t, b.After(a))
	assert.True(t, c.After(b))
	assert.False(t, a.After(c))

	parsed, err := ParseEventID("1000-2")
	require.NoError(t, err)
	assert.Equal(t, b, parsed)

	_, err = ParseEventID("nope")
	assert.Error(t, err)

	// Round trip preserves ordering as lexicographic within same ms width.
	assert.Equal(t, "1001-0", c.String())
}

func TestJobRecordProvider(t *testing.T) {
	job := &Job{ID: "j1"}
	job.RecordProvider(StageScript, "openai")
	job.RecordProvider(StageScript, "openai") // dedup consecutive
	job.RecordProvider(StageScript, "rulebased")

	first, ok := job.FirstProvider(StageScript)
	require.True(t, ok)
	assert.Equal(t, "openai", first)
	assert.Equal(t, []string{"openai", "rulebased"}, job.ProviderUsed[StageScript])

	_, ok = job.FirstProvider(StageVoice)
	assert.False(t, ok)
}

func TestJobCloneIsDeep(t *testing.T) {
	now := time.Now()
	job := &Job{
		ID:         "j1",
		Status:     JobRunning,
		Warnings:   []string{"w1"},
		StartedUTC: &now,
	}
	job.RecordProvider(StageScript, "a")

	clone := job.Clone()
	clone.Warnings = append(clone.Warnings, "w2")
	clone.ProviderUsed[StageScript] = append(clone.ProviderUsed[StageScript], "b")

	assert.Len(t, job.Warnings, 1)
	assert.Len(t, job.ProviderUsed[StageScript], 1)
}

func TestDeriveTier(t *testing.T) {
	assert.Equal(t, TierS, DeriveTier(16, 32, true))
	assert.Equal(t, TierA, DeriveTier(16, 32, false))
	assert.Equal(t, TierB, DeriveTier(8, 16, false))
	assert.Equal(t, TierC, DeriveTier(4, 8, false))
	assert.Equal(t, TierD, DeriveTier(2, 4, false))
	assert.Equal(t, TierC, DeriveTier(2, 4, true))
}

func TestErrorCodeRetryable(t *testing.T) {
	assert.True(t, CodeTimeout.Retryable())
	assert.True(t, CodeRateLimit.Retryable())
	assert.False(t, CodeAuthFailure.Retryable())
	assert.False(t, CodeOfflineViolation.Retryable())
	assert.False(t, CodeInvalidInput.Retryable())
}
