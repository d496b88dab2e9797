package core

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aura-studio/aura/internal/models"
)

func TestOverallFollowsStageBands(t *testing.T) {
	assert.Equal(t, 0.0, Overall(models.StageInitialization, 0))
	assert.Equal(t, 5.0, Overall(models.StageScript, 0))
	assert.Equal(t, 25.0, Overall(models.StageScript, 100))
	assert.Equal(t, 25.0, Overall(models.StageVoice, 0))
	assert.Equal(t, 55.0, Overall(models.StageVoice, 100))
	assert.Equal(t, 80.0, Overall(models.StageCompose, 100))
	assert.Equal(t, 84.5, Overall(models.StageRender, 30))
	assert.Equal(t, 95.0, Overall(models.StageRender, 100))
	assert.Equal(t, 100.0, Overall(models.StagePostprocess, 100))
}

func TestOverallClampsInput(t *testing.T) {
	assert.Equal(t, 5.0, Overall(models.StageScript, -50))
	assert.Equal(t, 25.0, Overall(models.StageScript, 250))
}

func TestStageBandsAreContiguous(t *testing.T) {
	order := []models.Stage{
		models.StageInitialization,
		models.StageScript,
		models.StageVoice,
		models.StageVisuals,
		models.StageRender,
		models.StagePostprocess,
	}
	for i := 1; i < len(order); i++ {
		prev, _ := WeightOf(order[i-1])
		cur, _ := WeightOf(order[i])
		assert.Equal(t, prev.Base+prev.Weight, cur.Base,
			"band %s does not start where %s ends", order[i], order[i-1])
	}
}
