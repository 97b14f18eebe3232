package fallback

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storyforge/storyforge/pkg/story"
)

func TestBuild_IsDeterministicForSamePresetAndTheme(t *testing.T) {
	preset := story.PresetAdventure
	req := &story.GenerationRequest{ID: "req-1", Theme: "underwater exploration", Preset: &preset}

	first := Build(req)
	second := Build(req)

	require.Equal(t, len(first.TrailSteps), len(second.TrailSteps))
	for i := range first.TrailSteps {
		assert.Equal(t, first.TrailSteps[i].ContentData.Text, second.TrailSteps[i].ContentData.Text)
		assert.Equal(t, first.TrailSteps[i].Title, second.TrailSteps[i].Title)
	}
	assert.Equal(t, first.Trail.Title, second.Trail.Title)
}

func TestBuild_HasFiveScenesAndPassesByConstruction(t *testing.T) {
	req := &story.GenerationRequest{ID: "req-2", Theme: "a quiet mystery investigation"}
	resp := Build(req)

	assert.Len(t, resp.TrailSteps, 5)
	assert.Equal(t, story.StatusCompleted, resp.Status)
	assert.Equal(t, story.GenerationModeFallback, resp.Metadata.GenerationMode)
	assert.Equal(t, 1.0, resp.Metadata.PassRate)
	assert.Equal(t, 0, resp.Metadata.AbandonedNodes)
}

func TestBuild_FallsBackToFreeformWhenNoKeywordMatch(t *testing.T) {
	req := &story.GenerationRequest{ID: "req-3", Theme: "xyz unrelated words"}
	resp := Build(req)

	assert.Contains(t, resp.Trail.Title, "General Narrative")
}

func TestBuild_ChainsScenesViaNextNodeIDs(t *testing.T) {
	req := &story.GenerationRequest{ID: "req-4", Theme: "training simulation to learn a skill"}
	resp := Build(req)

	for i, step := range resp.TrailSteps[:len(resp.TrailSteps)-1] {
		require.Len(t, step.ContentData.NextNodeIDs, 1)
		assert.Equal(t, resp.TrailSteps[i+1].ContentData.ID, step.ContentData.NextNodeIDs[0])
	}
	last := resp.TrailSteps[len(resp.TrailSteps)-1]
	assert.Empty(t, last.ContentData.NextNodeIDs)
}
