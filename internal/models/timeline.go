package models

import "time"

// ScriptLine is one narrated line parsed out of a drafted script, with
// timing inferred from pacing and density.
type ScriptLine struct {
	SceneIndex int           `json:"scene_index"`
	Text       string        `json:"text"`
	Start      time.Duration `json:"start"`
	Duration   time.Duration `json:"duration"`
}

// Scene is one composed segment of the final video.
type Scene struct {
	Index     int           `json:"index"`
	Heading   string        `json:"heading"`
	Start     time.Duration `json:"start"`
	Duration  time.Duration `json:"duration"`
	AssetPath string        `json:"asset_path,omitempty"`
	Narration []ScriptLine  `json:"narration,omitempty"`
}

// Timeline is the deterministic composition handed to the renderer.
// Scenes are ordered by index and snapped to the render frame rate.
type Timeline struct {
	Scenes        []Scene       `json:"scenes"`
	TotalDuration time.Duration `json:"total_duration"`
	NarrationPath string        `json:"narration_path,omitempty"`
	FPS           int           `json:"fps"`
}

// SnapToFrame rounds d to the nearest whole frame at the given rate.
func SnapToFrame(d time.Duration, fps int) time.Duration {
	if fps <= 0 {
		return d
	}
	frame := time.Second / time.Duration(fps)
	if frame <= 0 {
		return d
	}
	frames := (d + frame/2) / frame
	return frames * frame
}
