// Package jobstore owns the in-memory job map and the job state machine.
// All job mutation funnels through Update, which serializes writes per
// job, enforces transitions and monotonic progress, and publishes the
// resulting diff to the event bus.
package jobstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/aura-studio/aura/internal/events"
	"github.com/aura-studio/aura/internal/models"
)

// Common errors.
var (
	// ErrJobExists is returned when creating a job whose ID is taken.
	ErrJobExists = errors.New("job already exists")
	// ErrJobNotFound is returned when the job doesn't exist.
	ErrJobNotFound = errors.New("job not found")
	// ErrInvalidTransition is returned when a mutator violates the state machine.
	ErrInvalidTransition = errors.New("invalid job status transition")
)

// PersistFunc receives terminal job records. Implementations must be
// best-effort: failures are logged, never propagated to the job.
type PersistFunc func(ctx context.Context, record *models.JobRecord) error

type entry struct {
	mu     sync.Mutex
	job    *models.Job
	cancel context.CancelFunc
}

// Store is the in-memory job registry.
type Store struct {
	logger  *slog.Logger
	bus     *events.Bus
	persist PersistFunc

	mu   sync.RWMutex
	jobs map[string]*entry
}

// New creates a store publishing diffs to bus. persist may be nil.
func New(logger *slog.Logger, bus *events.Bus, persist PersistFunc) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		logger:  logger,
		bus:     bus,
		persist: persist,
		jobs:    make(map[string]*entry),
	}
}

// Create registers a new job. The job must be Queued with a zero percent.
func (s *Store) Create(job *models.Job) error {
	if job.Status == "" {
		job.Status = models.JobQueued
	}
	if job.Status != models.JobQueued {
		return fmt.Errorf("%w: new jobs start Queued, got %s", ErrInvalidTransition, job.Status)
	}
	if job.CreatedUTC.IsZero() {
		job.CreatedUTC = time.Now().UTC()
	}
	job.Stage = models.StageInitialization

	s.mu.Lock()
	if _, ok := s.jobs[job.ID]; ok {
		s.mu.Unlock()
		return ErrJobExists
	}
	s.jobs[job.ID] = &entry{job: job.Clone()}
	s.mu.Unlock()

	s.publish(job, models.JobEvent{
		Kind:    models.EventJobStatus,
		Message: string(models.JobQueued),
	})
	s.logger.Info("job created",
		slog.String("job_id", job.ID),
		slog.String("correlation_id", job.CorrelationID),
		slog.String("topic", job.Brief.Topic),
	)
	return nil
}

// Get returns a deep copy of the job.
func (s *Store) Get(jobID string) (*models.Job, bool) {
	e, ok := s.lookup(jobID)
	if !ok {
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.job.Clone(), true
}

// List returns copies of all jobs, newest first.
func (s *Store) List() []*models.Job {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.jobs))
	for _, e := range s.jobs {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make([]*models.Job, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.job.Clone())
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedUTC.After(out[j].CreatedUTC)
	})
	return out
}

// Remove forgets a terminal job. Running jobs cannot be removed.
func (s *Store) Remove(jobID string) bool {
	e, ok := s.lookup(jobID)
	if !ok {
		return false
	}
	e.mu.Lock()
	terminal := e.job.Status.IsTerminal()
	e.mu.Unlock()
	if !terminal {
		return false
	}

	s.mu.Lock()
	delete(s.jobs, jobID)
	s.mu.Unlock()
	if s.bus != nil {
		s.bus.DropStream(jobID)
	}
	return true
}

func (s *Store) lookup(jobID string) (*entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.jobs[jobID]
	return e, ok
}

// BindCancel attaches the cancellation function of the job's pipeline
// context. Cancel invokes it when the job leaves Queued or Running.
func (s *Store) BindCancel(jobID string, cancel context.CancelFunc) error {
	e, ok := s.lookup(jobID)
	if !ok {
		return ErrJobNotFound
	}
	e.mu.Lock()
	e.cancel = cancel
	e.mu.Unlock()
	return nil
}

// Update applies mutate to the job under its lock. The mutation is
// rejected if it would violate the state machine; progress writes are
// coerced to be monotonic rather than rejected. The resulting diff is
// published as events.
func (s *Store) Update(jobID string, mutate func(*models.Job) error) error {
	return s.update(jobID, mutate, nil)
}

func (s *Store) update(jobID string, mutate func(*models.Job) error, enrich func(*models.JobEvent)) error {
	e, ok := s.lookup(jobID)
	if !ok {
		return ErrJobNotFound
	}

	e.mu.Lock()
	before := e.job.Clone()
	next := e.job.Clone()
	if err := mutate(next); err != nil {
		e.mu.Unlock()
		return err
	}

	if next.Status != before.Status && !before.Status.CanTransitionTo(next.Status) {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, before.Status, next.Status)
	}

	next.Percent = monotonicPercent(before.Percent, next.Percent)
	applyTerminalTimestamps(before, next)

	e.job = next
	snapshot := next.Clone()
	cancel := e.cancel
	e.mu.Unlock()

	s.emitDiff(before, snapshot, enrich)

	if snapshot.Status.IsTerminal() {
		if snapshot.Status == models.JobCanceled && cancel != nil {
			cancel()
		}
		s.persistTerminal(snapshot)
	}
	return nil
}

// ProgressUpdate carries one stage-level progress write.
type ProgressUpdate struct {
	Stage        models.Stage
	StagePercent float64
	Overall      float64
	Detail       string
	CurrentItem  int
	TotalItems   int
}

// WithMonotonicProgress sets the job's overall percent to
// max(current, clamp(target, 0, 100)) and publishes the stage detail on
// the resulting progress event.
func (s *Store) WithMonotonicProgress(jobID string, update ProgressUpdate) error {
	return s.update(jobID, func(job *models.Job) error {
		job.Stage = update.Stage
		job.Percent = update.Overall
		return nil
	}, func(ev *models.JobEvent) {
		ev.PercentStage = update.StagePercent
		ev.SubstageDetail = update.Detail
		ev.CurrentItem = update.CurrentItem
		ev.TotalItems = update.TotalItems
	})
}

// Warn appends a warning to the job; emitDiff publishes it as a warning
// event on the job's stream.
func (s *Store) Warn(jobID, message string) error {
	return s.Update(jobID, func(job *models.Job) error {
		job.Warnings = append(job.Warnings, message)
		return nil
	})
}

// Cancel transitions a Queued or Running job to Canceled and signals the
// pipeline context. No-op on terminal jobs.
func (s *Store) Cancel(jobID string) error {
	e, ok := s.lookup(jobID)
	if !ok {
		return ErrJobNotFound
	}
	e.mu.Lock()
	if e.job.Status.IsTerminal() {
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()

	err := s.Update(jobID, func(job *models.Job) error {
		if job.Status.IsTerminal() {
			return nil
		}
		job.Status = models.JobCanceled
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("job canceled", slog.String("job_id", jobID))
	return nil
}

func monotonicPercent(current, target float64) float64 {
	if target < 0 {
		target = 0
	}
	if target > 100 {
		target = 100
	}
	if target < current {
		return current
	}
	return target
}

func applyTerminalTimestamps(before, next *models.Job) {
	if next.Status == before.Status || !next.Status.IsTerminal() {
		return
	}
	now := time.Now().UTC()
	if next.EndedUTC == nil {
		next.EndedUTC = &now
	}
	switch next.Status {
	case models.JobDone:
		if next.CompletedUTC == nil {
			next.CompletedUTC = &now
		}
		next.Percent = 100
		next.Stage = models.StageComplete
	case models.JobCanceled:
		if next.CanceledUTC == nil {
			next.CanceledUTC = &now
		}
	}
}

// emitDiff publishes events for what changed between two snapshots.
func (s *Store) emitDiff(before, after *models.Job, enrich func(*models.JobEvent)) {
	if s.bus == nil {
		return
	}

	stageChanged := after.Stage != before.Stage
	statusChanged := after.Status != before.Status

	if statusChanged {
		kind := models.EventJobStatus
		switch after.Status {
		case models.JobDone:
			kind = models.EventJobCompleted
		case models.JobFailed:
			kind = models.EventJobFailed
		case models.JobCanceled:
			kind = models.EventJobCanceled
		}
		ev := models.JobEvent{
			Kind:           kind,
			Stage:          after.Stage,
			PercentOverall: after.Percent,
			Message:        string(after.Status),
			CorrelationID:  after.CorrelationID,
		}
		if after.Failure != nil {
			ev.Message = after.Failure.Message
		}
		if kind.IsTerminal() {
			ev.Warnings = after.Warnings
		}
		s.publish(after, ev)
		if kind.IsTerminal() {
			return
		}
	}

	if stageChanged {
		s.publish(after, models.JobEvent{
			Kind:           models.EventStepStatus,
			Stage:          after.Stage,
			PercentOverall: after.Percent,
			Message:        string(after.Stage),
			CorrelationID:  after.CorrelationID,
		})
	}

	// Small progress deltas are suppressed unless the stage changed.
	if after.Percent != before.Percent && (stageChanged || after.Percent-before.Percent >= 1) {
		ev := models.JobEvent{
			Kind:           models.EventStepProgress,
			Stage:          after.Stage,
			PercentOverall: after.Percent,
			CorrelationID:  after.CorrelationID,
		}
		if enrich != nil {
			enrich(&ev)
		}
		s.publish(after, ev)
	}

	for _, warning := range after.Warnings[len(before.Warnings):] {
		s.publish(after, models.JobEvent{
			Kind:          models.EventWarning,
			Stage:         after.Stage,
			Message:       warning,
			CorrelationID: after.CorrelationID,
		})
	}
}

func (s *Store) publish(job *models.Job, ev models.JobEvent) {
	if s.bus == nil {
		return
	}
	if ev.PercentOverall == 0 {
		ev.PercentOverall = job.Percent
	}
	s.bus.Publish(job.ID, ev)
}

// persistTerminal writes the terminal record best-effort in the background.
func (s *Store) persistTerminal(job *models.Job) {
	if s.persist == nil {
		return
	}
	record := models.NewJobRecord(job)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.persist(ctx, record); err != nil {
			s.logger.Warn("failed to persist job record",
				slog.String("job_id", job.ID),
				slog.String("error", err.Error()),
			)
		}
	}()
}
