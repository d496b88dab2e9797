package models

import "time"

// JobRecord is the persisted form of a terminal job, written best-effort
// when a job ends. The live queue is in-memory only; records exist so
// operators can inspect history across restarts.
type JobRecord struct {
	BaseModel

	JobID         string    `gorm:"not null;size:26;uniqueIndex" json:"job_id"`
	CorrelationID string    `gorm:"size:64;index" json:"correlation_id"`
	Topic         string    `gorm:"size:255" json:"topic"`
	Status        JobStatus `gorm:"not null;size:20;index" json:"status"`
	Stage         Stage     `gorm:"size:20" json:"stage"`
	Percent       float64   `json:"percent"`

	CreatedUTC time.Time  `json:"created_utc"`
	StartedUTC *time.Time `json:"started_utc,omitempty"`
	EndedUTC   *time.Time `gorm:"index" json:"ended_utc,omitempty"`
	DurationMs int64      `json:"duration_ms,omitempty"`

	ArtifactPath  string    `gorm:"size:1024" json:"artifact_path,omitempty"`
	ArtifactBytes int64     `json:"artifact_bytes,omitempty"`
	ErrorCode     ErrorCode `gorm:"size:8" json:"error_code,omitempty"`
	ErrorMessage  string    `gorm:"size:4096" json:"error_message,omitempty"`
	WarningCount  int       `json:"warning_count"`
}

// TableName returns the table name for JobRecord.
func (JobRecord) TableName() string {
	return "job_records"
}

// NewJobRecord builds a record from a terminal job snapshot.
func NewJobRecord(job *Job) *JobRecord {
	rec := &JobRecord{
		JobID:         job.ID,
		CorrelationID: job.CorrelationID,
		Topic:         job.Brief.Topic,
		Status:        job.Status,
		Stage:         job.Stage,
		Percent:       job.Percent,
		CreatedUTC:    job.CreatedUTC,
		StartedUTC:    job.StartedUTC,
		EndedUTC:      job.EndedUTC,
		WarningCount:  len(job.Warnings),
	}
	if job.StartedUTC != nil && job.EndedUTC != nil {
		rec.DurationMs = job.EndedUTC.Sub(*job.StartedUTC).Milliseconds()
	}
	if len(job.Artifacts) > 0 {
		rec.ArtifactPath = job.Artifacts[0].Path
		rec.ArtifactBytes = job.Artifacts[0].SizeBytes
	}
	if job.Failure != nil {
		rec.ErrorCode = job.Failure.Code
		rec.ErrorMessage = job.Failure.Message
	}
	return rec
}
