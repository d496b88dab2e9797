// Package maintenance runs the scheduled sweep: orphaned temp dirs,
// expired history records, and stale terminal jobs in the live queue.
package maintenance

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/aura-studio/aura/internal/cleanup"
	"github.com/aura-studio/aura/internal/events"
	"github.com/aura-studio/aura/internal/jobstore"
	"github.com/aura-studio/aura/internal/repository"
)

// Options configure the sweeper.
type Options struct {
	// Schedule is a 6-field cron expression (with seconds).
	Schedule string
	// WorkDir is the job temp dir root to sweep for orphans.
	WorkDir string
	// TempRetention is the age after which an orphaned temp dir is removed.
	TempRetention time.Duration
	// RecordRetention is the age after which terminal jobs and their
	// history records are pruned.
	RecordRetention time.Duration
}

// Sweeper schedules and executes maintenance sweeps.
type Sweeper struct {
	opts    Options
	store   *jobstore.Store
	bus     *events.Bus
	records repository.JobRecordRepository
	logger  *slog.Logger

	cron *cron.Cron
}

// New creates a sweeper. The record repository may be nil.
func New(opts Options, store *jobstore.Store, bus *events.Bus, records repository.JobRecordRepository, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Schedule == "" {
		opts.Schedule = "0 0 3 * * *"
	}
	if opts.TempRetention <= 0 {
		opts.TempRetention = 24 * time.Hour
	}
	if opts.RecordRetention <= 0 {
		opts.RecordRetention = 30 * 24 * time.Hour
	}
	return &Sweeper{
		opts:    opts,
		store:   store,
		bus:     bus,
		records: records,
		logger:  logger,
	}
}

// Start registers the cron schedule and begins running sweeps.
func (s *Sweeper) Start() error {
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(cron.WithParser(parser))
	_, err := c.AddFunc(s.opts.Schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		s.Sweep(ctx)
	})
	if err != nil {
		return err
	}
	s.cron = c
	c.Start()
	s.logger.Info("maintenance sweeper started", slog.String("schedule", s.opts.Schedule))
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.logger.Info("maintenance sweeper stopped")
}

// Sweep performs one maintenance pass.
func (s *Sweeper) Sweep(ctx context.Context) {
	start := time.Now()

	removedDirs := 0
	if s.opts.WorkDir != "" {
		n, err := cleanup.SweepOrphanedTempDirs(s.logger, s.opts.WorkDir, s.opts.TempRetention)
		if err != nil {
			s.logger.Warn("orphan sweep failed", slog.String("error", err.Error()))
		}
		removedDirs = n
	}

	cutoff := time.Now().UTC().Add(-s.opts.RecordRetention)

	var removedRecords int64
	if s.records != nil {
		n, err := s.records.DeleteOlderThan(ctx, cutoff)
		if err != nil {
			s.logger.Warn("record sweep failed", slog.String("error", err.Error()))
		}
		removedRecords = n
	}

	removedJobs := s.pruneLiveJobs(cutoff)

	s.logger.Info("maintenance sweep completed",
		slog.Int("removed_temp_dirs", removedDirs),
		slog.Int64("removed_records", removedRecords),
		slog.Int("removed_jobs", removedJobs),
		slog.Duration("duration", time.Since(start)),
	)
}

// pruneLiveJobs removes terminal jobs that ended before the cutoff from
// the in-memory queue, dropping their event streams with them.
func (s *Sweeper) pruneLiveJobs(cutoff time.Time) int {
	if s.store == nil {
		return 0
	}
	removed := 0
	for _, job := range s.store.List() {
		if !job.Status.IsTerminal() || job.EndedUTC == nil || !job.EndedUTC.Before(cutoff) {
			continue
		}
		if s.store.Remove(job.ID) {
			if s.bus != nil {
				s.bus.DropStream(job.ID)
			}
			removed++
		}
	}
	return removed
}
