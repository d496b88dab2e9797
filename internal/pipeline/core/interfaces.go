// Package core provides the pipeline orchestration framework: the stage
// contract, the shared execution state, and the stage-weighted progress
// model.
package core

import (
	"context"
	"time"

	"github.com/aura-studio/aura/internal/cleanup"
	"github.com/aura-studio/aura/internal/models"
	"github.com/aura-studio/aura/internal/providers"
	"github.com/aura-studio/aura/internal/retry"
)

// Stage represents a single step of the video generation pipeline.
type Stage interface {
	// ID returns the stage identity used for weights and provider records.
	ID() models.Stage

	// Name returns a human-readable name (e.g., "Draft Script").
	Name() string

	// Execute performs the stage's work against the shared state.
	Execute(ctx context.Context, state *State) error

	// Cleanup runs after pipeline completion, success or failure.
	Cleanup(ctx context.Context) error
}

// ProgressReporter receives per-stage progress writes. Implementations
// must tolerate out-of-order percentages; the job store coerces them to a
// monotonic overall value.
type ProgressReporter interface {
	// ReportProgress reports stage progress in [0,100] with optional detail.
	ReportProgress(ctx context.Context, stage models.Stage, stagePercent float64, detail string)

	// ReportItemProgress reports per-item progress within a stage.
	ReportItemProgress(ctx context.Context, stage models.Stage, current, total int, item string)

	// ReportWarning appends a degradation warning to the job.
	ReportWarning(ctx context.Context, stage models.Stage, message string)

	// RecordProvider records which provider executed a stage.
	RecordProvider(ctx context.Context, stage models.Stage, provider string, record providers.SelectionRecord)
}

// State holds all data shared between pipeline stages.
type State struct {
	// Job is a snapshot of the job being executed. Stages read specs from
	// it; they never mutate job status directly.
	Job *models.Job

	// Registry resolves providers; Invoker wraps calls in retry/breaker.
	Registry *providers.Registry
	Invoker  *retry.Invoker

	// OfflineOnly and RequestedTier are the effective selection policy.
	OfflineOnly   bool
	RequestedTier providers.RequestedTier
	AutoFallback  bool

	// Reporter receives progress writes.
	Reporter ProgressReporter

	// Scope owns temp files; stages register intermediates with it.
	Scope *cleanup.Scope

	// OutputDir is the final artifact destination.
	OutputDir string

	// Script is the drafted script text.
	Script string

	// Lines are the parsed narration lines.
	Lines []models.ScriptLine

	// Scenes are the parsed scene boundaries, before assets are attached.
	Scenes []models.Scene

	// NarrationPath is the synthesized narration audio file.
	NarrationPath string

	// SceneAssets maps scene index to visual asset path.
	SceneAssets map[int]string

	// Timeline is the composed render input.
	Timeline *models.Timeline

	// RenderOutput is the encoder's output file before postprocess.
	RenderOutput string

	// Artifacts are the finalized outputs.
	Artifacts []models.Artifact

	// StartTime records when pipeline execution began.
	StartTime time.Time
}

// NewState creates the pipeline state for a job.
func NewState(job *models.Job) *State {
	return &State{
		Job:         job,
		SceneAssets: make(map[int]string),
		StartTime:   time.Now(),
	}
}

// Duration returns the elapsed time since pipeline start.
func (s *State) Duration() time.Duration {
	return time.Since(s.StartTime)
}

// Chain computes the provider chain for a category under the state's
// policy. When AutoFallback is disabled the chain is truncated to the
// primary.
func (s *State) Chain(category providers.Category) ([]providers.Manifest, providers.SelectionRecord, error) {
	chain, record, err := providers.Select(s.RequestedTier, s.OfflineOnly, s.Registry.Manifests(category))
	if err != nil {
		return nil, record, err
	}
	if !s.AutoFallback && len(chain) > 1 {
		chain = chain[:1]
		record.Chain = record.Chain[:1]
	}
	return chain, record, nil
}
