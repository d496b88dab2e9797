// Package service provides the high-level job API used by the HTTP
// surface: validated submission, a bounded worker pool, cancellation,
// and draining for shutdown.
package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/aura-studio/aura/internal/jobstore"
	"github.com/aura-studio/aura/internal/models"
	"github.com/aura-studio/aura/internal/pipeline"
	"github.com/aura-studio/aura/internal/providers"
	"github.com/aura-studio/aura/internal/validate"
)

// ErrDraining is returned for submissions during shutdown.
var ErrDraining = errors.New("service is draining, not accepting new jobs")

// ErrQueueFull is returned when the submission queue is at capacity.
var ErrQueueFull = errors.New("job queue is full")

// Config holds worker pool tuning.
type Config struct {
	// MaxConcurrentJobs bounds how many pipelines run at once.
	MaxConcurrentJobs int
	// QueueCapacity bounds how many jobs may wait for a worker.
	QueueCapacity int
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrentJobs <= 0 {
		c.MaxConcurrentJobs = 1
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = 16
	}
	return c
}

// SubmitRequest is one video generation request.
type SubmitRequest struct {
	Brief         models.Brief
	Plan          models.PlanSpec
	Voice         models.VoiceSpec
	Render        models.RenderSpec
	OfflineOnly   bool
	Tier          providers.RequestedTier
	CorrelationID string
}

// JobService validates, queues, and executes jobs.
type JobService struct {
	config    Config
	store     *jobstore.Store
	validator *validate.Validator
	runner    *pipeline.Runner
	profile   models.SystemProfile
	logger    *slog.Logger

	queue chan string
	// qmu serializes queue sends against Drain's close. Submitters hold it
	// shared; Drain closes the queue under the exclusive lock.
	qmu      sync.RWMutex
	wg       sync.WaitGroup
	draining atomic.Bool
	started  atomic.Bool
}

// NewJobService creates the service. Start must be called before jobs run.
func NewJobService(config Config, store *jobstore.Store, validator *validate.Validator, runner *pipeline.Runner, profile models.SystemProfile, logger *slog.Logger) *JobService {
	if logger == nil {
		logger = slog.Default()
	}
	config = config.withDefaults()
	return &JobService{
		config:    config,
		store:     store,
		validator: validator,
		runner:    runner,
		profile:   profile,
		logger:    logger,
		queue:     make(chan string, config.QueueCapacity),
	}
}

// Start launches the worker pool. Workers run until the queue closes.
func (s *JobService) Start(ctx context.Context) {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	for i := 0; i < s.config.MaxConcurrentJobs; i++ {
		s.wg.Add(1)
		go s.worker(ctx)
	}
	s.logger.Info("job workers started",
		slog.Int("workers", s.config.MaxConcurrentJobs),
		slog.Int("queue_capacity", s.config.QueueCapacity),
	)
}

func (s *JobService) worker(ctx context.Context) {
	defer s.wg.Done()
	for jobID := range s.queue {
		if err := s.runner.Run(ctx, jobID); err != nil {
			s.logger.Error("pipeline run failed to start",
				slog.String("job_id", jobID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// Submit validates and enqueues a job. On validation failure no job is
// created and no events are produced.
func (s *JobService) Submit(ctx context.Context, req SubmitRequest) (*models.Job, error) {
	if s.draining.Load() {
		return nil, ErrDraining
	}

	req.Voice.Normalize()
	result := s.validator.Validate(ctx, validate.Request{
		Brief:       req.Brief,
		Plan:        req.Plan,
		Voice:       req.Voice,
		Render:      req.Render,
		OfflineOnly: req.OfflineOnly,
		Tier:        req.Tier,
	})
	if !result.IsValid {
		return nil, result.Err()
	}

	correlationID := req.CorrelationID
	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	job := &models.Job{
		ID:            models.NewULID().String(),
		CorrelationID: correlationID,
		Brief:         req.Brief,
		Plan:          req.Plan,
		Voice:         req.Voice,
		Render:        req.Render,
		Profile:       s.profile,
		RequestedTier: string(req.Tier),
		OfflineOnly:   req.OfflineOnly,
		Warnings:      result.Warnings,
	}
	if err := s.store.Create(job); err != nil {
		return nil, err
	}

	s.qmu.RLock()
	if s.draining.Load() {
		s.qmu.RUnlock()
		_ = s.store.Cancel(job.ID)
		return nil, ErrDraining
	}
	var full bool
	select {
	case s.queue <- job.ID:
	default:
		full = true
	}
	s.qmu.RUnlock()
	if full {
		// Queue full: fail the job rather than block the caller.
		_ = s.store.Cancel(job.ID)
		return nil, ErrQueueFull
	}

	s.logger.Info("job submitted",
		slog.String("job_id", job.ID),
		slog.String("correlation_id", correlationID),
		slog.String("topic", req.Brief.Topic),
		slog.String("tier", string(req.Tier)),
		slog.Bool("offline_only", req.OfflineOnly),
	)
	return job.Clone(), nil
}

// Get returns a job snapshot.
func (s *JobService) Get(jobID string) (*models.Job, bool) {
	return s.store.Get(jobID)
}

// List returns all job snapshots, newest first.
func (s *JobService) List() []*models.Job {
	return s.store.List()
}

// Cancel requests cancellation of a queued or running job.
func (s *JobService) Cancel(jobID string) error {
	return s.store.Cancel(jobID)
}

// Delete removes a terminal job from the live queue.
func (s *JobService) Delete(jobID string) error {
	if !s.store.Remove(jobID) {
		if _, ok := s.store.Get(jobID); !ok {
			return jobstore.ErrJobNotFound
		}
		return errors.New("job is not finished")
	}
	return nil
}

// Stats summarizes the live queue.
type Stats struct {
	Queued   int `json:"queued"`
	Running  int `json:"running"`
	Done     int `json:"done"`
	Failed   int `json:"failed"`
	Canceled int `json:"canceled"`
}

// GetStats counts live jobs by status.
func (s *JobService) GetStats() Stats {
	var stats Stats
	for _, job := range s.store.List() {
		switch job.Status {
		case models.JobQueued:
			stats.Queued++
		case models.JobRunning:
			stats.Running++
		case models.JobDone:
			stats.Done++
		case models.JobFailed:
			stats.Failed++
		case models.JobCanceled:
			stats.Canceled++
		}
	}
	return stats
}

// Draining reports whether the service is refusing new submissions.
func (s *JobService) Draining() bool {
	return s.draining.Load()
}

// Drain stops accepting submissions, warns and cancels active jobs, and
// waits for workers to finish or the context to expire.
func (s *JobService) Drain(ctx context.Context) error {
	if !s.draining.CompareAndSwap(false, true) {
		return nil
	}
	s.qmu.Lock()
	close(s.queue)
	s.qmu.Unlock()

	for _, job := range s.store.List() {
		if job.Status.IsTerminal() {
			continue
		}
		if err := s.store.Warn(job.ID, "server shutting down, canceling job"); err != nil {
			s.logger.Warn("failed to warn job during drain",
				slog.String("job_id", job.ID),
				slog.String("error", err.Error()),
			)
		}
		if err := s.store.Cancel(job.ID); err != nil {
			s.logger.Warn("failed to cancel job during drain",
				slog.String("job_id", job.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("job workers drained")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitIdle blocks until all workers exit or the timeout elapses. Intended
// for tests.
func (s *JobService) WaitIdle(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
