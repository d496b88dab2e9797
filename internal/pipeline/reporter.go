package pipeline

import (
	"context"
	"log/slog"

	"github.com/aura-studio/aura/internal/jobstore"
	"github.com/aura-studio/aura/internal/models"
	"github.com/aura-studio/aura/internal/pipeline/core"
	"github.com/aura-studio/aura/internal/providers"
)

// storeReporter bridges stage progress into the job store, converting
// stage-local percentages into the weighted overall scale. The store
// coerces the result to be monotonic.
type storeReporter struct {
	store     *jobstore.Store
	jobID     string
	requested providers.RequestedTier
	logger    *slog.Logger
}

var _ core.ProgressReporter = (*storeReporter)(nil)

func newStoreReporter(store *jobstore.Store, jobID string, requested providers.RequestedTier, logger *slog.Logger) *storeReporter {
	return &storeReporter{store: store, jobID: jobID, requested: requested, logger: logger}
}

func (r *storeReporter) ReportProgress(_ context.Context, stage models.Stage, stagePercent float64, detail string) {
	err := r.store.WithMonotonicProgress(r.jobID, jobstore.ProgressUpdate{
		Stage:        stage,
		StagePercent: stagePercent,
		Overall:      core.Overall(stage, stagePercent),
		Detail:       detail,
	})
	if err != nil {
		r.logger.Warn("progress write rejected",
			slog.String("job_id", r.jobID),
			slog.String("stage", string(stage)),
			slog.String("error", err.Error()),
		)
	}
}

func (r *storeReporter) ReportItemProgress(_ context.Context, stage models.Stage, current, total int, item string) {
	stagePercent := float64(0)
	if total > 0 {
		stagePercent = float64(current) / float64(total) * 100
	}
	err := r.store.WithMonotonicProgress(r.jobID, jobstore.ProgressUpdate{
		Stage:        stage,
		StagePercent: stagePercent,
		Overall:      core.Overall(stage, stagePercent),
		Detail:       item,
		CurrentItem:  current,
		TotalItems:   total,
	})
	if err != nil {
		r.logger.Warn("item progress write rejected",
			slog.String("job_id", r.jobID),
			slog.String("stage", string(stage)),
			slog.String("error", err.Error()),
		)
	}
}

func (r *storeReporter) ReportWarning(_ context.Context, stage models.Stage, message string) {
	err := r.store.Update(r.jobID, func(job *models.Job) error {
		job.Warnings = append(job.Warnings, message)
		return nil
	})
	if err != nil {
		r.logger.Warn("warning write rejected",
			slog.String("job_id", r.jobID),
			slog.String("stage", string(stage)),
			slog.String("error", err.Error()),
		)
	}
}

// RecordProvider records the executing provider and derives the stage's
// selection info. A provider other than the chain's primary marks the
// selection as a fallback from the requested tier.
func (r *storeReporter) RecordProvider(_ context.Context, stage models.Stage, provider string, record providers.SelectionRecord) {
	err := r.store.Update(r.jobID, func(job *models.Job) error {
		job.RecordProvider(stage, provider)

		info := models.SelectionInfo{
			Primary:         record.Primary,
			Executed:        provider,
			IsFallback:      record.IsFallback,
			FallbackFrom:    string(record.FallbackFrom),
			DowngradeReason: record.DowngradeReason,
			Reason:          record.Reason,
		}
		if provider != record.Primary {
			info.IsFallback = true
			if info.FallbackFrom == "" {
				info.FallbackFrom = string(r.requested)
			}
		}
		if job.Selections == nil {
			job.Selections = make(map[models.Stage]models.SelectionInfo)
		}
		job.Selections[stage] = info
		return nil
	})
	if err != nil {
		r.logger.Warn("provider record rejected",
			slog.String("job_id", r.jobID),
			slog.String("stage", string(stage)),
			slog.String("provider", provider),
			slog.String("error", err.Error()),
		)
	}
}
