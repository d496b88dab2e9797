package models

import (
	"time"
)

// JobStatus is the lifecycle status of a job.
type JobStatus string

const (
	// JobQueued indicates the job is accepted and waiting for a worker.
	JobQueued JobStatus = "Queued"
	// JobRunning indicates the pipeline is executing.
	JobRunning JobStatus = "Running"
	// JobDone indicates the pipeline completed successfully.
	JobDone JobStatus = "Done"
	// JobFailed indicates the pipeline failed.
	JobFailed JobStatus = "Failed"
	// JobCanceled indicates the job was canceled externally.
	JobCanceled JobStatus = "Canceled"
)

// IsTerminal returns true for Done, Failed, and Canceled.
func (s JobStatus) IsTerminal() bool {
	return s == JobDone || s == JobFailed || s == JobCanceled
}

// CanTransitionTo reports whether the status transition is allowed by the
// job state machine.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	switch s {
	case JobQueued:
		return next == JobRunning || next == JobCanceled
	case JobRunning:
		return next == JobDone || next == JobFailed || next == JobCanceled
	default:
		return false
	}
}

// Stage identifies a phase of the generation pipeline.
type Stage string

const (
	StageInitialization Stage = "Initialization"
	StageScript         Stage = "Script"
	StageVoice          Stage = "Voice"
	StageVisuals        Stage = "Visuals"
	StageCompose        Stage = "Compose"
	StageRender         Stage = "Render"
	StagePostprocess    Stage = "Postprocess"
	StageComplete       Stage = "Complete"
)

// Artifact is a produced output file.
type Artifact struct {
	Path      string `json:"path"`
	SizeBytes int64  `json:"size_bytes"`
	Kind      string `json:"kind"`
}

// SelectionInfo records how a stage's provider chain was chosen and
// whether execution fell back from the requested tier or the primary.
type SelectionInfo struct {
	Primary         string `json:"primary"`
	Executed        string `json:"executed,omitempty"`
	IsFallback      bool   `json:"is_fallback"`
	FallbackFrom    string `json:"fallback_from,omitempty"`
	DowngradeReason string `json:"downgrade_reason,omitempty"`
	Reason          string `json:"reason,omitempty"`
}

// FailureInfo describes a terminal failure in caller-facing terms.
// It never carries stack traces or credential material.
type FailureInfo struct {
	Stage            Stage     `json:"stage"`
	Code             ErrorCode `json:"error_code"`
	Message          string    `json:"message"`
	StderrSnippet    string    `json:"stderr_snippet,omitempty"`
	LogPath          string    `json:"log_path,omitempty"`
	SuggestedActions []string  `json:"suggested_actions,omitempty"`
}

// Job is the central entity: one accepted video-generation request with
// identity, state, events, and artifacts. Owned by the job store; all
// mutation goes through store update primitives.
type Job struct {
	ID            string        `json:"id"`
	CorrelationID string        `json:"correlation_id"`
	Brief         Brief         `json:"brief"`
	Plan          PlanSpec      `json:"plan"`
	Voice         VoiceSpec     `json:"voice"`
	Render        RenderSpec    `json:"render"`
	Profile       SystemProfile `json:"system_profile"`

	// Policy captured at submission. RequestedTier is a providers tier
	// name kept as a string to keep this package dependency-free.
	RequestedTier string `json:"requested_tier,omitempty"`
	OfflineOnly   bool   `json:"offline_only,omitempty"`

	Status  JobStatus `json:"status"`
	Stage   Stage     `json:"stage"`
	Percent float64   `json:"percent"`

	CreatedUTC   time.Time  `json:"created_utc"`
	StartedUTC   *time.Time `json:"started_utc,omitempty"`
	CompletedUTC *time.Time `json:"completed_utc,omitempty"`
	CanceledUTC  *time.Time `json:"canceled_utc,omitempty"`
	EndedUTC     *time.Time `json:"ended_utc,omitempty"`

	// ProviderUsed maps each stage to the providers that executed it, in
	// order. The first entry is the provider that first began execution;
	// fallbacks append.
	ProviderUsed map[Stage][]string `json:"provider_used_per_stage,omitempty"`

	// Selections records how each stage's provider chain was chosen.
	Selections map[Stage]SelectionInfo `json:"selections,omitempty"`

	Warnings  []string     `json:"warnings,omitempty"`
	Artifacts []Artifact   `json:"artifacts,omitempty"`
	Failure   *FailureInfo `json:"failure,omitempty"`
}

// Clone returns a deep copy safe for concurrent readers.
func (j *Job) Clone() *Job {
	c := *j
	if j.ProviderUsed != nil {
		c.ProviderUsed = make(map[Stage][]string, len(j.ProviderUsed))
		for k, v := range j.ProviderUsed {
			c.ProviderUsed[k] = append([]string(nil), v...)
		}
	}
	if j.Selections != nil {
		c.Selections = make(map[Stage]SelectionInfo, len(j.Selections))
		for k, v := range j.Selections {
			c.Selections[k] = v
		}
	}
	c.Warnings = append([]string(nil), j.Warnings...)
	c.Artifacts = append([]Artifact(nil), j.Artifacts...)
	if j.Failure != nil {
		f := *j.Failure
		f.SuggestedActions = append([]string(nil), j.Failure.SuggestedActions...)
		c.Failure = &f
	}
	if j.StartedUTC != nil {
		t := *j.StartedUTC
		c.StartedUTC = &t
	}
	if j.CompletedUTC != nil {
		t := *j.CompletedUTC
		c.CompletedUTC = &t
	}
	if j.CanceledUTC != nil {
		t := *j.CanceledUTC
		c.CanceledUTC = &t
	}
	if j.EndedUTC != nil {
		t := *j.EndedUTC
		c.EndedUTC = &t
	}
	return &c
}

// RecordProvider appends a provider to the stage's usage list if it is not
// already the most recent entry.
func (j *Job) RecordProvider(stage Stage, provider string) {
	if j.ProviderUsed == nil {
		j.ProviderUsed = make(map[Stage][]string)
	}
	used := j.ProviderUsed[stage]
	if len(used) > 0 && used[len(used)-1] == provider {
		return
	}
	j.ProviderUsed[stage] = append(used, provider)
}

// FirstProvider returns the provider that first began executing the stage.
func (j *Job) FirstProvider(stage Stage) (string, bool) {
	used := j.ProviderUsed[stage]
	if len(used) == 0 {
		return "", false
	}
	return used[0], true
}
