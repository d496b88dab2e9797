package core

import "github.com/aura-studio/aura/internal/models"

// StageWeight positions a stage in the overall progress scale. Base is the
// floor when the stage begins; Weight is the span the stage's own percent
// covers.
type StageWeight struct {
	Base   float64
	Weight float64
}

// Compose and Render share the rendering band: composing the timeline is
// cheap and keeps the floor, the encoder drives the band's span.
var stageWeights = map[models.Stage]StageWeight{
	models.StageInitialization: {Base: 0, Weight: 5},
	models.StageScript:         {Base: 5, Weight: 20},
	models.StageVoice:          {Base: 25, Weight: 30},
	models.StageVisuals:        {Base: 55, Weight: 25},
	models.StageCompose:        {Base: 80, Weight: 0},
	models.StageRender:         {Base: 80, Weight: 15},
	models.StagePostprocess:    {Base: 95, Weight: 5},
	models.StageComplete:       {Base: 100, Weight: 0},
}

// WeightOf returns the weight entry for a stage.
func WeightOf(stage models.Stage) (StageWeight, bool) {
	w, ok := stageWeights[stage]
	return w, ok
}

// Overall converts a stage-local percent into the overall job percent:
// base + stage_percent/100 * weight, clamped to [0,100].
func Overall(stage models.Stage, stagePercent float64) float64 {
	w, ok := stageWeights[stage]
	if !ok {
		return clamp(stagePercent)
	}
	if stagePercent < 0 {
		stagePercent = 0
	}
	if stagePercent > 100 {
		stagePercent = 100
	}
	return clamp(w.Base + stagePercent/100*w.Weight)
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
