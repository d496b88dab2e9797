package script

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-studio/aura/internal/models"
)

func TestParseSplitsScenesAndAllocatesDurations(t *testing.T) {
	draft := "# Quick Start\n" +
		"## Scene 1: Opening\n" +
		"Welcome to the show.\n" +
		"This is the opening.\n" +
		"## Scene 2: Closing\n" +
		"Goodbye.\n"
	plan := models.PlanSpec{TargetDuration: 30 * time.Second}

	scenes, lines := Parse(draft, plan)
	require.Len(t, scenes, 2)
	require.Len(t, lines, 3)

	assert.Equal(t, "Opening", scenes[0].Heading)
	assert.Equal(t, "Closing", scenes[1].Heading)
	assert.Equal(t, 0, scenes[0].Index)
	assert.Equal(t, time.Duration(0), scenes[0].Start)
	assert.Equal(t, scenes[0].Duration, scenes[1].Start)

	// Durations cover the target exactly; the longer scene gets more time.
	assert.Equal(t, plan.TargetDuration, scenes[0].Duration+scenes[1].Duration)
	assert.Greater(t, scenes[0].Duration, scenes[1].Duration)

	// Lines divide their scene evenly and carry the scene index.
	assert.Equal(t, 0, lines[0].SceneIndex)
	assert.Equal(t, 1, lines[2].SceneIndex)
	assert.Equal(t, scenes[0].Duration/2, lines[0].Duration)
	assert.Equal(t, lines[0].Duration, lines[1].Start)
}

func TestParseIgnoresTitleAndLeadingProse(t *testing.T) {
	draft := "# Title\nstray text before any scene\n## Scene 1: Only\nBody.\n"
	scenes, lines := Parse(draft, models.PlanSpec{TargetDuration: 10 * time.Second})
	require.Len(t, scenes, 1)
	require.Len(t, lines, 1)
	assert.Equal(t, "Body.", lines[0].Text)
	assert.Equal(t, 10*time.Second, scenes[0].Duration)
}

func TestParseEmptyScriptYieldsNothing(t *testing.T) {
	scenes, lines := Parse("", models.PlanSpec{TargetDuration: 10 * time.Second})
	assert.Nil(t, scenes)
	assert.Nil(t, lines)
}

func TestValidateLanguageRejectsNonASCIIDraftForEnglish(t *testing.T) {
	assert.Error(t, validateLanguage("これはテストです", "English"))
	assert.NoError(t, validateLanguage("plain english draft", "English"))
	assert.NoError(t, validateLanguage("これはテストです", "Japanese"))
}
