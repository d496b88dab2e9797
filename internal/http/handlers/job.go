package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/aura-studio/aura/internal/jobstore"
	"github.com/aura-studio/aura/internal/models"
	"github.com/aura-studio/aura/internal/providers"
	"github.com/aura-studio/aura/internal/repository"
	"github.com/aura-studio/aura/internal/service"
)

// JobHandler handles job API endpoints.
type JobHandler struct {
	jobService   *service.JobService
	records      repository.JobRecordRepository
	forceOffline bool
	defaultTier  providers.RequestedTier
}

// NewJobHandler creates a new job handler. The record repository is optional;
// without it the history endpoint returns empty pages.
func NewJobHandler(jobService *service.JobService, records repository.JobRecordRepository) *JobHandler {
	return &JobHandler{
		jobService: jobService,
		records:    records,
	}
}

// WithEngineDefaults applies service-level policy: forceOffline marks every
// job offline-only regardless of the request, and defaultTier fills
// requests that omit a tier.
func (h *JobHandler) WithEngineDefaults(forceOffline bool, defaultTier providers.RequestedTier) *JobHandler {
	h.forceOffline = forceOffline
	h.defaultTier = defaultTier
	return h
}

// Register registers the job routes with the API.
func (h *JobHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "submitJob",
		Method:        "POST",
		Path:          "/api/v1/jobs",
		Summary:       "Submit job",
		Description:   "Validates and enqueues a video generation job",
		Tags:          []string{"Jobs"},
		DefaultStatus: http.StatusCreated,
	}, h.Submit)

	huma.Register(api, huma.Operation{
		OperationID: "listJobs",
		Method:      "GET",
		Path:        "/api/v1/jobs",
		Summary:     "List jobs",
		Description: "Returns all live jobs, newest first",
		Tags:        []string{"Jobs"},
	}, h.List)

	huma.Register(api, huma.Operation{
		OperationID: "getJobHistory",
		Method:      "GET",
		Path:        "/api/v1/jobs/history",
		Summary:     "Get job history",
		Description: "Returns persisted records of finished jobs with pagination",
		Tags:        []string{"Jobs"},
	}, h.GetHistory)

	huma.Register(api, huma.Operation{
		OperationID: "getJobStats",
		Method:      "GET",
		Path:        "/api/v1/jobs/stats",
		Summary:     "Get job statistics",
		Description: "Returns live job counts by status",
		Tags:        []string{"Jobs"},
	}, h.GetStats)

	huma.Register(api, huma.Operation{
		OperationID: "getJob",
		Method:      "GET",
		Path:        "/api/v1/jobs/{id}",
		Summary:     "Get job",
		Description: "Returns a job by ID",
		Tags:        []string{"Jobs"},
	}, h.GetByID)

	huma.Register(api, huma.Operation{
		OperationID: "cancelJob",
		Method:      "POST",
		Path:        "/api/v1/jobs/{id}/cancel",
		Summary:     "Cancel job",
		Description: "Requests cancellation of a queued or running job",
		Tags:        []string{"Jobs"},
	}, h.Cancel)

	huma.Register(api, huma.Operation{
		OperationID: "deleteJob",
		Method:      "DELETE",
		Path:        "/api/v1/jobs/{id}",
		Summary:     "Delete job",
		Description: "Removes a finished job from the live queue",
		Tags:        []string{"Jobs"},
	}, h.Delete)
}

// SubmitJobInput is the input for submitting a job.
type SubmitJobInput struct {
	Body SubmitJobRequest
}

// SubmitJobOutput is the output for submitting a job.
type SubmitJobOutput struct {
	Body JobResponse
}

// Submit validates and enqueues a job.
func (h *JobHandler) Submit(ctx context.Context, input *SubmitJobInput) (*SubmitJobOutput, error) {
	tier := providers.RequestedTier(input.Body.Tier)
	if tier == "" {
		tier = h.defaultTier
	}
	if tier == "" {
		tier = providers.RequestFree
	}

	job, err := h.jobService.Submit(ctx, service.SubmitRequest{
		Brief:         input.Body.ToBrief(),
		Plan:          input.Body.ToPlan(),
		Voice:         input.Body.ToVoice(),
		Render:        input.Body.ToRender(),
		OfflineOnly:   input.Body.OfflineOnly || h.forceOffline,
		Tier:          tier,
		CorrelationID: input.Body.CorrelationID,
	})
	if err != nil {
		return nil, submitError(err)
	}

	return &SubmitJobOutput{Body: JobFromModel(job)}, nil
}

// submitError maps submission failures to HTTP errors.
func submitError(err error) error {
	switch {
	case errors.Is(err, service.ErrDraining):
		return huma.Error503ServiceUnavailable(err.Error())
	case errors.Is(err, service.ErrQueueFull):
		return huma.Error429TooManyRequests(err.Error())
	}

	switch models.CodeOf(err) {
	case models.CodeInvalidInput:
		return huma.Error422UnprocessableEntity(err.Error())
	case models.CodeOfflineViolation, models.CodeNoProvider:
		return huma.Error409Conflict(err.Error())
	case models.CodeInsufficientResources:
		return huma.Error409Conflict(err.Error())
	}
	return huma.Error500InternalServerError("failed to submit job", err)
}

// ListJobsInput is the input for listing jobs.
type ListJobsInput struct{}

// ListJobsOutput is the output for listing jobs.
type ListJobsOutput struct {
	Body struct {
		Jobs []JobResponse `json:"jobs"`
	}
}

// List returns all live jobs.
func (h *JobHandler) List(ctx context.Context, input *ListJobsInput) (*ListJobsOutput, error) {
	jobs := h.jobService.List()

	resp := &ListJobsOutput{}
	resp.Body.Jobs = make([]JobResponse, 0, len(jobs))
	for _, j := range jobs {
		resp.Body.Jobs = append(resp.Body.Jobs, JobFromModel(j))
	}
	return resp, nil
}

// GetJobInput is the input for getting a job.
type GetJobInput struct {
	ID string `path:"id" doc:"Job ID (ULID)"`
}

// GetJobOutput is the output for getting a job.
type GetJobOutput struct {
	Body JobResponse
}

// GetByID returns a job by ID.
func (h *JobHandler) GetByID(ctx context.Context, input *GetJobInput) (*GetJobOutput, error) {
	job, ok := h.jobService.Get(input.ID)
	if !ok {
		return nil, huma.Error404NotFound(fmt.Sprintf("job %s not found", input.ID))
	}
	return &GetJobOutput{Body: JobFromModel(job)}, nil
}

// CancelJobInput is the input for canceling a job.
type CancelJobInput struct {
	ID string `path:"id" doc:"Job ID (ULID)"`
}

// CancelJobOutput is the output for canceling a job.
type CancelJobOutput struct {
	Body struct {
		Message string `json:"message"`
	}
}

// Cancel requests cancellation of a queued or running job.
func (h *JobHandler) Cancel(ctx context.Context, input *CancelJobInput) (*CancelJobOutput, error) {
	if err := h.jobService.Cancel(input.ID); err != nil {
		switch {
		case errors.Is(err, jobstore.ErrJobNotFound):
			return nil, huma.Error404NotFound(fmt.Sprintf("job %s not found", input.ID))
		case errors.Is(err, jobstore.ErrInvalidTransition):
			return nil, huma.Error409Conflict("job is already finished")
		}
		return nil, huma.Error500InternalServerError("failed to cancel job", err)
	}

	resp := &CancelJobOutput{}
	resp.Body.Message = fmt.Sprintf("job %s canceled", input.ID)
	return resp, nil
}

// DeleteJobInput is the input for deleting a job.
type DeleteJobInput struct {
	ID string `path:"id" doc:"Job ID (ULID)"`
}

// DeleteJobOutput is the output for deleting a job.
type DeleteJobOutput struct{}

// Delete removes a finished job from the live queue.
func (h *JobHandler) Delete(ctx context.Context, input *DeleteJobInput) (*DeleteJobOutput, error) {
	if err := h.jobService.Delete(input.ID); err != nil {
		if errors.Is(err, jobstore.ErrJobNotFound) {
			return nil, huma.Error404NotFound(fmt.Sprintf("job %s not found", input.ID))
		}
		return nil, huma.Error409Conflict(err.Error())
	}
	return &DeleteJobOutput{}, nil
}

// GetJobStatsInput is the input for getting job statistics.
type GetJobStatsInput struct{}

// GetJobStatsOutput is the output for getting job statistics.
type GetJobStatsOutput struct {
	Body service.Stats
}

// GetStats returns live job counts by status.
func (h *JobHandler) GetStats(ctx context.Context, input *GetJobStatsInput) (*GetJobStatsOutput, error) {
	return &GetJobStatsOutput{Body: h.jobService.GetStats()}, nil
}

// GetJobHistoryInput is the input for getting job history.
type GetJobHistoryInput struct {
	Offset int `query:"offset" default:"0" minimum:"0" doc:"Offset for pagination"`
	Limit  int `query:"limit" default:"50" minimum:"1" maximum:"1000" doc:"Limit for pagination"`
}

// GetJobHistoryOutput is the output for getting job history.
type GetJobHistoryOutput struct {
	Body struct {
		History    []JobRecordResponse `json:"history"`
		Pagination PaginationMeta      `json:"pagination"`
	}
}

// GetHistory returns persisted records of finished jobs.
func (h *JobHandler) GetHistory(ctx context.Context, input *GetJobHistoryInput) (*GetJobHistoryOutput, error) {
	resp := &GetJobHistoryOutput{}
	resp.Body.History = make([]JobRecordResponse, 0)

	if h.records == nil {
		resp.Body.Pagination = PaginationMeta{CurrentPage: 1, PageSize: input.Limit}
		return resp, nil
	}

	records, total, err := h.records.List(ctx, input.Offset, input.Limit)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to get job history", err)
	}

	for _, r := range records {
		resp.Body.History = append(resp.Body.History, JobRecordFromModel(r))
	}

	totalPages := total / int64(input.Limit)
	if total%int64(input.Limit) > 0 {
		totalPages++
	}
	resp.Body.Pagination = PaginationMeta{
		CurrentPage: (input.Offset / input.Limit) + 1,
		PageSize:    input.Limit,
		TotalItems:  total,
		TotalPages:  totalPages,
	}
	return resp, nil
}
