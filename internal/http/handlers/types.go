// Package handlers provides HTTP API handlers for aura.
package handlers

import (
	"time"

	"github.com/aura-studio/aura/internal/models"
)

// PaginationMeta contains pagination metadata in responses.
type PaginationMeta struct {
	CurrentPage int   `json:"current_page"`
	PageSize    int   `json:"page_size"`
	TotalItems  int64 `json:"total_items"`
	TotalPages  int64 `json:"total_pages"`
}

// JobResponse represents a job in API responses.
type JobResponse struct {
	ID            string           `json:"id"`
	CorrelationID string           `json:"correlation_id"`
	Status        models.JobStatus `json:"status"`
	Stage         models.Stage     `json:"stage"`
	Percent       float64          `json:"percent"`

	Topic         string `json:"topic"`
	RequestedTier string `json:"requested_tier,omitempty"`
	OfflineOnly   bool   `json:"offline_only"`

	CreatedUTC   time.Time  `json:"created_utc"`
	StartedUTC   *time.Time `json:"started_utc,omitempty"`
	CompletedUTC *time.Time `json:"completed_utc,omitempty"`
	CanceledUTC  *time.Time `json:"canceled_utc,omitempty"`
	EndedUTC     *time.Time `json:"ended_utc,omitempty"`

	ProviderUsed map[models.Stage][]string             `json:"provider_used_per_stage,omitempty"`
	Selections   map[models.Stage]models.SelectionInfo `json:"selections,omitempty"`

	Warnings  []string            `json:"warnings,omitempty"`
	Artifacts []models.Artifact   `json:"artifacts,omitempty"`
	Failure   *models.FailureInfo `json:"failure,omitempty"`
}

// JobFromModel converts a job snapshot to a response.
func JobFromModel(j *models.Job) JobResponse {
	return JobResponse{
		ID:            j.ID,
		CorrelationID: j.CorrelationID,
		Status:        j.Status,
		Stage:         j.Stage,
		Percent:       j.Percent,
		Topic:         j.Brief.Topic,
		RequestedTier: j.RequestedTier,
		OfflineOnly:   j.OfflineOnly,
		CreatedUTC:    j.CreatedUTC,
		StartedUTC:    j.StartedUTC,
		CompletedUTC:  j.CompletedUTC,
		CanceledUTC:   j.CanceledUTC,
		EndedUTC:      j.EndedUTC,
		ProviderUsed:  j.ProviderUsed,
		Selections:    j.Selections,
		Warnings:      j.Warnings,
		Artifacts:     j.Artifacts,
		Failure:       j.Failure,
	}
}

// BriefRequest describes what the video should communicate.
type BriefRequest struct {
	Topic    string `json:"topic" doc:"Subject of the video" minLength:"1" maxLength:"500"`
	Audience string `json:"audience,omitempty" doc:"Intended audience" maxLength:"255"`
	Goal     string `json:"goal,omitempty" doc:"What the viewer should take away" maxLength:"500"`
	Tone     string `json:"tone,omitempty" doc:"Narration tone" maxLength:"100"`
	Language string `json:"language" doc:"Narration language" minLength:"1" maxLength:"50"`
	Aspect   string `json:"aspect" doc:"Frame aspect ratio" enum:"widescreen_16x9,vertical_9x16,square_1x1"`
}

// PlanRequest controls duration and structure.
type PlanRequest struct {
	TargetDurationSeconds float64 `json:"target_duration_seconds" doc:"Target video length in seconds" minimum:"1" maximum:"7200"`
	Pacing                string  `json:"pacing" doc:"Narration tempo" enum:"fast,conversational,slow"`
	Density               string  `json:"density" doc:"Information density" enum:"sparse,balanced,dense"`
	Style                 string  `json:"style,omitempty" doc:"Visual style hint" maxLength:"100"`
}

// VoiceRequest controls narration synthesis.
type VoiceRequest struct {
	Name       string  `json:"name" doc:"Voice name" minLength:"1" maxLength:"100"`
	Rate       float64 `json:"rate,omitempty" doc:"Speaking rate multiplier (default 1.0)" minimum:"0" maximum:"2"`
	Pitch      float64 `json:"pitch,omitempty" doc:"Pitch multiplier (default 1.0)" minimum:"0" maximum:"2"`
	PauseStyle string  `json:"pause_style,omitempty" doc:"Pause length between lines" enum:"short,natural,long,"`
}

// RenderRequest controls the final encode.
type RenderRequest struct {
	Width          int    `json:"width" doc:"Output width in pixels" minimum:"1"`
	Height         int    `json:"height" doc:"Output height in pixels" minimum:"1"`
	Container      string `json:"container" doc:"Output container" enum:"mp4,mkv,webm"`
	Codec          string `json:"codec" doc:"Video codec" enum:"h264,vp9,av1"`
	FPS            int    `json:"fps" doc:"Frames per second" minimum:"24" maximum:"120"`
	VideoKbps      int    `json:"video_kbps,omitempty" doc:"Video bitrate in kbps"`
	AudioKbps      int    `json:"audio_kbps,omitempty" doc:"Audio bitrate in kbps"`
	QualityLevel   int    `json:"quality_level,omitempty" doc:"Encoder quality level" minimum:"0" maximum:"100"`
	EnableSceneCut bool   `json:"enable_scene_cut,omitempty" doc:"Allow encoder scene-cut keyframes"`
}

// SubmitJobRequest is the request body for submitting a job.
type SubmitJobRequest struct {
	Brief         BriefRequest  `json:"brief"`
	Plan          PlanRequest   `json:"plan"`
	Voice         VoiceRequest  `json:"voice"`
	Render        RenderRequest `json:"render"`
	OfflineOnly   bool          `json:"offline_only,omitempty" doc:"Reject providers that require network access"`
	Tier          string        `json:"tier,omitempty" doc:"Requested provider tier (default Free)" enum:"Free,ProIfAvailable,Pro,"`
	CorrelationID string        `json:"correlation_id,omitempty" doc:"Caller-supplied correlation ID" maxLength:"64"`
}

// ToBrief converts the request brief to a model.
func (r *SubmitJobRequest) ToBrief() models.Brief {
	return models.Brief{
		Topic:    r.Brief.Topic,
		Audience: r.Brief.Audience,
		Goal:     r.Brief.Goal,
		Tone:     r.Brief.Tone,
		Language: r.Brief.Language,
		Aspect:   models.Aspect(r.Brief.Aspect),
	}
}

// ToPlan converts the request plan to a model.
func (r *SubmitJobRequest) ToPlan() models.PlanSpec {
	return models.PlanSpec{
		TargetDuration: time.Duration(r.Plan.TargetDurationSeconds * float64(time.Second)),
		Pacing:         models.Pacing(r.Plan.Pacing),
		Density:        models.Density(r.Plan.Density),
		Style:          r.Plan.Style,
	}
}

// ToVoice converts the request voice to a model.
func (r *SubmitJobRequest) ToVoice() models.VoiceSpec {
	return models.VoiceSpec{
		Name:       r.Voice.Name,
		Rate:       r.Voice.Rate,
		Pitch:      r.Voice.Pitch,
		PauseStyle: models.PauseStyle(r.Voice.PauseStyle),
	}
}

// ToRender converts the request render spec to a model.
func (r *SubmitJobRequest) ToRender() models.RenderSpec {
	return models.RenderSpec{
		Width:          r.Render.Width,
		Height:         r.Render.Height,
		Container:      models.Container(r.Render.Container),
		Codec:          models.VideoCodec(r.Render.Codec),
		FPS:            r.Render.FPS,
		VideoKbps:      r.Render.VideoKbps,
		AudioKbps:      r.Render.AudioKbps,
		QualityLevel:   r.Render.QualityLevel,
		EnableSceneCut: r.Render.EnableSceneCut,
	}
}

// JobRecordResponse represents a persisted job history record.
type JobRecordResponse struct {
	JobID         string           `json:"job_id"`
	CorrelationID string           `json:"correlation_id,omitempty"`
	Topic         string           `json:"topic"`
	Status        models.JobStatus `json:"status"`
	Stage         models.Stage     `json:"stage,omitempty"`
	Percent       float64          `json:"percent"`
	CreatedUTC    time.Time        `json:"created_utc"`
	StartedUTC    *time.Time       `json:"started_utc,omitempty"`
	EndedUTC      *time.Time       `json:"ended_utc,omitempty"`
	DurationMs    int64            `json:"duration_ms,omitempty"`
	ArtifactPath  string           `json:"artifact_path,omitempty"`
	ArtifactBytes int64            `json:"artifact_bytes,omitempty"`
	ErrorCode     models.ErrorCode `json:"error_code,omitempty"`
	ErrorMessage  string           `json:"error_message,omitempty"`
	WarningCount  int              `json:"warning_count"`
}

// JobRecordFromModel converts a persisted record to a response.
func JobRecordFromModel(r *models.JobRecord) JobRecordResponse {
	return JobRecordResponse{
		JobID:         r.JobID,
		CorrelationID: r.CorrelationID,
		Topic:         r.Topic,
		Status:        r.Status,
		Stage:         r.Stage,
		Percent:       r.Percent,
		CreatedUTC:    r.CreatedUTC,
		StartedUTC:    r.StartedUTC,
		EndedUTC:      r.EndedUTC,
		DurationMs:    r.DurationMs,
		ArtifactPath:  r.ArtifactPath,
		ArtifactBytes: r.ArtifactBytes,
		ErrorCode:     r.ErrorCode,
		ErrorMessage:  r.ErrorMessage,
		WarningCount:  r.WarningCount,
	}
}
