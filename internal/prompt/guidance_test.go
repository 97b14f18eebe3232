package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/storyforge/storyforge/pkg/story"
)

func TestFor_ReturnsFreeformWhenPresetNil(t *testing.T) {
	g := For(nil)
	assert.Equal(t, freeformGuidance, g)
}

func TestFor_ReturnsMatchingPresetGuidance(t *testing.T) {
	preset := story.PresetAdventure
	g := For(&preset)
	assert.Contains(t, g.Introduction, "ADVENTURE")
}

func TestCompose_OmitsResolutionForNonTerminalNodes(t *testing.T) {
	preset := story.PresetGuided
	text := Compose(&preset, false)
	assert.NotContains(t, text, freeformGuidance.Resolution)
	assert.Contains(t, text, guidanceTable[story.PresetGuided].Requirements)
	assert.False(t, strings.Contains(text, guidanceTable[story.PresetGuided].Resolution))
}

func TestCompose_IncludesResolutionForTerminalNode(t *testing.T) {
	preset := story.PresetEpic
	text := Compose(&preset, true)
	assert.Contains(t, text, guidanceTable[story.PresetEpic].Resolution)
}

func TestCompose_UnknownPresetFallsBackToFreeform(t *testing.T) {
	unknown := story.Preset("not-a-real-preset")
	text := Compose(&unknown, false)
	assert.Contains(t, text, freeformGuidance.Introduction)
}
