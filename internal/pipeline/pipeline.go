// Package pipeline wires the generation stages into a runnable pipeline
// and executes jobs end to end: Running transition, cleanup scope,
// stage sequence, terminal transition with failure classification.
//
// The pipeline is organized into sub-packages:
//   - core: orchestrator, stage contract, weighted progress model
//   - stages/*: individual stage implementations
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/aura-studio/aura/internal/cleanup"
	"github.com/aura-studio/aura/internal/jobstore"
	"github.com/aura-studio/aura/internal/models"
	"github.com/aura-studio/aura/internal/pipeline/core"
	"github.com/aura-studio/aura/internal/pipeline/stages/compose"
	"github.com/aura-studio/aura/internal/pipeline/stages/postprocess"
	"github.com/aura-studio/aura/internal/pipeline/stages/render"
	"github.com/aura-studio/aura/internal/pipeline/stages/script"
	"github.com/aura-studio/aura/internal/pipeline/stages/visuals"
	"github.com/aura-studio/aura/internal/pipeline/stages/voice"
	"github.com/aura-studio/aura/internal/providers"
	"github.com/aura-studio/aura/internal/retry"
)

// Re-export core types for convenience.
type (
	// Stage is a single step in the pipeline.
	Stage = core.Stage

	// State holds shared data between stages.
	State = core.State

	// Orchestrator executes stages in sequence.
	Orchestrator = core.Orchestrator
)

// Re-export errors.
var ErrPipelineAlreadyRunning = core.ErrPipelineAlreadyRunning

// Config holds runner configuration.
type Config struct {
	// WorkDir hosts per-job temp directories.
	WorkDir string
	// OutputDir receives finalized artifacts.
	OutputDir string
	// AutoFallback enables trying fallback providers after the primary.
	AutoFallback bool
	// RetryAttempts is the per-provider attempt budget for retrying stages.
	// Zero keeps the default.
	RetryAttempts int
	// RetryBaseDelay seeds the retry backoff. Zero keeps the default.
	RetryBaseDelay time.Duration
}

// Runner executes jobs through the standard stage sequence.
type Runner struct {
	config   Config
	store    *jobstore.Store
	registry *providers.Registry
	invoker  *retry.Invoker
	logger   *slog.Logger
	stages   []core.Stage
}

// NewRunner creates a runner with the standard stages in execution order.
func NewRunner(config Config, store *jobstore.Store, registry *providers.Registry, invoker *retry.Invoker, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	policy := retry.DefaultPolicy()
	if config.RetryAttempts > 0 {
		policy.MaxAttempts = config.RetryAttempts
	}
	if config.RetryBaseDelay > 0 {
		policy.BaseDelay = config.RetryBaseDelay
	}
	return &Runner{
		config:   config,
		store:    store,
		registry: registry,
		invoker:  invoker,
		logger:   logger,
		stages: []core.Stage{
			script.New(logger).WithPolicy(policy),
			voice.New(logger),
			visuals.New(logger).WithPolicy(policy),
			compose.New(logger),
			render.New(logger),
			postprocess.New(logger),
		},
	}
}

// Run executes the job's pipeline to a terminal state. The context
// governs cancellation; the store's Cancel signals it through BindCancel.
// Run never returns an error for job-level failures, only for jobs that
// cannot start at all.
func (r *Runner) Run(ctx context.Context, jobID string) error {
	job, ok := r.store.Get(jobID)
	if !ok {
		return jobstore.ErrJobNotFound
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := r.store.BindCancel(jobID, cancel); err != nil {
		return err
	}

	err := r.store.Update(jobID, func(j *models.Job) error {
		if j.Status != models.JobQueued {
			return jobstore.ErrInvalidTransition
		}
		j.Status = models.JobRunning
		now := time.Now().UTC()
		j.StartedUTC = &now
		return nil
	})
	if err != nil {
		// Canceled while queued: nothing to run.
		if errors.Is(err, jobstore.ErrInvalidTransition) {
			return nil
		}
		return err
	}

	scope, err := cleanup.NewScope(r.logger, r.config.WorkDir, jobID)
	if err != nil {
		r.finishFailed(jobID, models.StageInitialization, err)
		return nil
	}
	defer scope.Close()

	reporter := newStoreReporter(r.store, jobID, providers.RequestedTier(job.RequestedTier), r.logger)
	reporter.ReportProgress(ctx, models.StageInitialization, 100, "pipeline starting")

	state := core.NewState(job)
	state.Registry = r.registry
	state.Invoker = r.invoker
	state.OfflineOnly = job.OfflineOnly
	state.RequestedTier = providers.RequestedTier(job.RequestedTier)
	state.AutoFallback = r.config.AutoFallback
	state.Reporter = reporter
	state.Scope = scope
	state.OutputDir = r.config.OutputDir

	runErr := core.NewOrchestrator(r.stages, r.logger).Execute(ctx, state)
	switch {
	case runErr == nil:
		r.finishDone(jobID, state)
	case errors.Is(runErr, context.Canceled), errors.Is(runErr, context.DeadlineExceeded):
		r.finishCanceled(jobID)
	default:
		stage, ok := core.StageOf(runErr)
		if !ok {
			stage = models.StageInitialization
		}
		r.finishFailed(jobID, stage, runErr)
	}
	return nil
}

func (r *Runner) finishDone(jobID string, state *core.State) {
	err := r.store.Update(jobID, func(j *models.Job) error {
		if j.Status.IsTerminal() {
			return nil
		}
		j.Status = models.JobDone
		j.Artifacts = append(j.Artifacts, state.Artifacts...)
		return nil
	})
	if err != nil {
		r.logger.Warn("failed to mark job done",
			slog.String("job_id", jobID), slog.String("error", err.Error()))
	}
}

func (r *Runner) finishCanceled(jobID string) {
	err := r.store.Update(jobID, func(j *models.Job) error {
		if j.Status.IsTerminal() {
			return nil
		}
		j.Status = models.JobCanceled
		return nil
	})
	if err != nil {
		r.logger.Warn("failed to mark job canceled",
			slog.String("job_id", jobID), slog.String("error", err.Error()))
	}
}

func (r *Runner) finishFailed(jobID string, stage models.Stage, cause error) {
	code := models.CodeOf(cause)
	failure := &models.FailureInfo{
		Stage:            stage,
		Code:             code,
		Message:          cause.Error(),
		SuggestedActions: suggestedActions(code),
	}
	var provErr *models.ProviderError
	if errors.As(cause, &provErr) {
		failure.StderrSnippet = provErr.StderrTail
		failure.LogPath = provErr.LogPath
	}
	err := r.store.Update(jobID, func(j *models.Job) error {
		if j.Status.IsTerminal() {
			return nil
		}
		j.Status = models.JobFailed
		j.Failure = failure
		return nil
	})
	if err != nil {
		r.logger.Warn("failed to mark job failed",
			slog.String("job_id", jobID), slog.String("error", err.Error()))
	}
}

// suggestedActions maps error classes to operator guidance.
func suggestedActions(code models.ErrorCode) []string {
	switch code {
	case models.CodeOfflineViolation:
		return []string{"disable offline mode or request the Free tier"}
	case models.CodeNoProvider:
		return []string{"register a provider for the failing stage", "relax the tier or offline policy"}
	case models.CodeEncoderFailure:
		return []string{"check the encoder log at the failure's log path", "verify the encoder binary is installed"}
	case models.CodeAuthFailure:
		return []string{"check provider credentials"}
	case models.CodeRateLimit:
		return []string{"retry later or lower concurrency"}
	case models.CodeInsufficientResources:
		return []string{"free disk space in the work and output directories"}
	default:
		return nil
	}
}
