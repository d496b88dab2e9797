package core

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// activeExecutions tracks which jobs have pipelines running.
var (
	activeExecutions   = make(map[string]bool)
	activeExecutionsMu sync.Mutex
)

// Orchestrator executes a sequence of pipeline stages against shared
// state, with cancellation checked between stages.
type Orchestrator struct {
	stages []Stage
	logger *slog.Logger
}

// NewOrchestrator creates an Orchestrator over the given stages.
func NewOrchestrator(stages []Stage, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{stages: stages, logger: logger}
}

// Stages returns the configured stages.
func (o *Orchestrator) Stages() []Stage { return o.stages }

// Execute runs all stages in sequence. On failure the error is wrapped
// with the failing stage's identity; stages that ran get their Cleanup
// called regardless of outcome.
func (o *Orchestrator) Execute(ctx context.Context, state *State) error {
	if !acquireExecution(state.Job.ID) {
		return ErrPipelineAlreadyRunning
	}
	defer releaseExecution(state.Job.ID)

	o.logger.InfoContext(ctx, "starting pipeline execution",
		slog.String("job_id", state.Job.ID),
		slog.String("topic", state.Job.Brief.Topic),
		slog.Int("stage_count", len(o.stages)),
	)

	for i, stage := range o.stages {
		select {
		case <-ctx.Done():
			o.cleanupStages(o.stages[:i])
			return ctx.Err()
		default:
		}

		if err := o.executeStage(ctx, i, stage, state); err != nil {
			o.cleanupStages(o.stages[:i+1])
			return NewStageError(stage.ID(), stage.Name(), err)
		}
	}

	o.logger.InfoContext(ctx, "pipeline execution completed",
		slog.String("job_id", state.Job.ID),
		slog.Duration("duration", state.Duration()),
		slog.Int("artifacts", len(state.Artifacts)),
	)

	o.cleanupStages(o.stages)
	return nil
}

func (o *Orchestrator) executeStage(ctx context.Context, index int, stage Stage, state *State) error {
	start := time.Now()

	o.logger.InfoContext(ctx, "executing stage",
		slog.Int("stage_num", index+1),
		slog.Int("total_stages", len(o.stages)),
		slog.String("stage", string(stage.ID())),
		slog.String("stage_name", stage.Name()),
		slog.String("job_id", state.Job.ID),
	)

	state.Reporter.ReportProgress(ctx, stage.ID(), 0, "starting")

	if err := stage.Execute(ctx, state); err != nil {
		o.logger.ErrorContext(ctx, "stage failed",
			slog.String("stage", string(stage.ID())),
			slog.String("job_id", state.Job.ID),
			slog.String("error", err.Error()),
			slog.Duration("duration", time.Since(start)),
		)
		return err
	}

	o.logger.InfoContext(ctx, "stage completed",
		slog.String("stage", string(stage.ID())),
		slog.String("job_id", state.Job.ID),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

// cleanupStages runs with a background context so cancellation of the
// pipeline does not skip teardown.
func (o *Orchestrator) cleanupStages(stages []Stage) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, stage := range stages {
		if err := stage.Cleanup(ctx); err != nil {
			o.logger.Warn("stage cleanup failed",
				slog.String("stage", string(stage.ID())),
				slog.String("error", err.Error()),
			)
		}
	}
}

func acquireExecution(jobID string) bool {
	activeExecutionsMu.Lock()
	defer activeExecutionsMu.Unlock()
	if activeExecutions[jobID] {
		return false
	}
	activeExecutions[jobID] = true
	return true
}

func releaseExecution(jobID string) {
	activeExecutionsMu.Lock()
	defer activeExecutionsMu.Unlock()
	delete(activeExecutions, jobID)
}
