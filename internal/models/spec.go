package models

import (
	"fmt"
	"strings"
	"time"
)

// Aspect is the output frame aspect ratio.
type Aspect string

const (
	// AspectWidescreen is 16:9 landscape.
	AspectWidescreen Aspect = "widescreen_16x9"
	// AspectVertical is 9:16 portrait.
	AspectVertical Aspect = "vertical_9x16"
	// AspectSquare is 1:1.
	AspectSquare Aspect = "square_1x1"
)

// Valid returns true for a known aspect.
func (a Aspect) Valid() bool {
	switch a {
	case AspectWidescreen, AspectVertical, AspectSquare:
		return true
	}
	return false
}

// Pacing controls narration and scene tempo.
type Pacing string

const (
	PacingFast           Pacing = "fast"
	PacingConversational Pacing = "conversational"
	PacingSlow           Pacing = "slow"
)

// Valid returns true for a known pacing.
func (p Pacing) Valid() bool {
	switch p {
	case PacingFast, PacingConversational, PacingSlow:
		return true
	}
	return false
}

// Density controls information density of the script.
type Density string

const (
	DensitySparse   Density = "sparse"
	DensityBalanced Density = "balanced"
	DensityDense    Density = "dense"
)

// Valid returns true for a known density.
func (d Density) Valid() bool {
	switch d {
	case DensitySparse, DensityBalanced, DensityDense:
		return true
	}
	return false
}

// PauseStyle controls narration pause lengths between lines.
type PauseStyle string

const (
	PauseShort   PauseStyle = "short"
	PauseNatural PauseStyle = "natural"
	PauseLong    PauseStyle = "long"
)

// Valid returns true for a known pause style.
func (p PauseStyle) Valid() bool {
	switch p {
	case PauseShort, PauseNatural, PauseLong:
		return true
	}
	return false
}

// Container is the output media container.
type Container string

const (
	ContainerMP4  Container = "mp4"
	ContainerMKV  Container = "mkv"
	ContainerWebM Container = "webm"
)

// Valid returns true for a known container.
func (c Container) Valid() bool {
	switch c {
	case ContainerMP4, ContainerMKV, ContainerWebM:
		return true
	}
	return false
}

// VideoCodec is the output video codec.
type VideoCodec string

const (
	CodecH264 VideoCodec = "h264"
	CodecVP9  VideoCodec = "vp9"
	CodecAV1  VideoCodec = "av1"
)

// Valid returns true for a known codec.
func (c VideoCodec) Valid() bool {
	switch c {
	case CodecH264, CodecVP9, CodecAV1:
		return true
	}
	return false
}

// Brief describes what the video should communicate. Immutable per job.
type Brief struct {
	Topic    string `json:"topic"`
	Audience string `json:"audience,omitempty"`
	Goal     string `json:"goal,omitempty"`
	Tone     string `json:"tone,omitempty"`
	Language string `json:"language"`
	Aspect   Aspect `json:"aspect"`
}

// Validate checks required fields and closed enums.
func (b *Brief) Validate() error {
	if strings.TrimSpace(b.Topic) == "" {
		return NewEngineError(CodeInvalidInput, "brief topic must not be empty")
	}
	if strings.TrimSpace(b.Language) == "" {
		return NewEngineError(CodeInvalidInput, "brief language must not be empty")
	}
	if !b.Aspect.Valid() {
		return NewEngineError(CodeInvalidInput, fmt.Sprintf("unknown aspect %q", b.Aspect))
	}
	return nil
}

// PlanSpec controls duration and structure of the generated video.
type PlanSpec struct {
	TargetDuration time.Duration `json:"target_duration"`
	Pacing         Pacing        `json:"pacing"`
	Density        Density       `json:"density"`
	Style          string        `json:"style,omitempty"`
}

// Plan duration bounds.
const (
	MinPlanDuration = time.Second
	MaxPlanDuration = 2 * time.Hour
)

// Validate checks the duration range and closed enums.
func (p *PlanSpec) Validate() error {
	if p.TargetDuration < MinPlanDuration || p.TargetDuration > MaxPlanDuration {
		return NewEngineError(CodeInvalidInput,
			fmt.Sprintf("target duration %s outside [%s, %s]", p.TargetDuration, MinPlanDuration, MaxPlanDuration))
	}
	if !p.Pacing.Valid() {
		return NewEngineError(CodeInvalidInput, fmt.Sprintf("unknown pacing %q", p.Pacing))
	}
	if !p.Density.Valid() {
		return NewEngineError(CodeInvalidInput, fmt.Sprintf("unknown density %q", p.Density))
	}
	return nil
}

// VoiceSpec controls narration synthesis.
type VoiceSpec struct {
	Name       string     `json:"name"`
	Rate       float64    `json:"rate"`
	Pitch      float64    `json:"pitch"`
	PauseStyle PauseStyle `json:"pause_style"`
}

// Validate checks the rate/pitch ranges and pause style.
func (v *VoiceSpec) Validate() error {
	if strings.TrimSpace(v.Name) == "" {
		return NewEngineError(CodeInvalidInput, "voice name must not be empty")
	}
	if v.Rate < 0.5 || v.Rate > 2.0 {
		return NewEngineError(CodeInvalidInput, fmt.Sprintf("voice rate %.2f outside [0.5, 2.0]", v.Rate))
	}
	if v.Pitch < 0.5 || v.Pitch > 2.0 {
		return NewEngineError(CodeInvalidInput, fmt.Sprintf("voice pitch %.2f outside [0.5, 2.0]", v.Pitch))
	}
	if !v.PauseStyle.Valid() {
		return NewEngineError(CodeInvalidInput, fmt.Sprintf("unknown pause style %q", v.PauseStyle))
	}
	return nil
}

// Normalize applies defaults for zero-valued optional fields.
func (v *VoiceSpec) Normalize() {
	if v.Rate == 0 {
		v.Rate = 1.0
	}
	if v.Pitch == 0 {
		v.Pitch = 1.0
	}
	if v.PauseStyle == "" {
		v.PauseStyle = PauseNatural
	}
}

// RenderSpec controls the final encode.
type RenderSpec struct {
	Width          int        `json:"width"`
	Height         int        `json:"height"`
	Container      Container  `json:"container"`
	Codec          VideoCodec `json:"codec"`
	FPS            int        `json:"fps"`
	VideoKbps      int        `json:"video_kbps"`
	AudioKbps      int        `json:"audio_kbps"`
	QualityLevel   int        `json:"quality_level"`
	EnableSceneCut bool       `json:"enable_scene_cut"`
}

// Validate checks resolution, fps, and closed enums.
func (r *RenderSpec) Validate() error {
	if r.Width <= 0 || r.Height <= 0 {
		return NewEngineError(CodeInvalidInput, fmt.Sprintf("invalid resolution %dx%d", r.Width, r.Height))
	}
	if !r.Container.Valid() {
		return NewEngineError(CodeInvalidInput, fmt.Sprintf("unknown container %q", r.Container))
	}
	if !r.Codec.Valid() {
		return NewEngineError(CodeInvalidInput, fmt.Sprintf("unknown codec %q", r.Codec))
	}
	if r.FPS < 24 || r.FPS > 120 {
		return NewEngineError(CodeInvalidInput, fmt.Sprintf("fps %d outside [24, 120]", r.FPS))
	}
	if r.QualityLevel < 0 || r.QualityLevel > 100 {
		return NewEngineError(CodeInvalidInput, fmt.Sprintf("quality level %d outside [0, 100]", r.QualityLevel))
	}
	return nil
}
