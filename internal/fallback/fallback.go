// Package fallback produces the deterministic template graph returned when
// C8's circuit breaker trips (§4.8). It never calls an upstream service and
// always passes validation by construction, grounded on the original
// holodeck server's FallbackStoryTemplate/ErrorHandlingState pattern: a
// small table of pre-built templates keyed by category and theme keywords.
package fallback

import (
	"fmt"
	"strings"

	"github.com/storyforge/storyforge/pkg/story"
)

// category groups fallback templates the way the original keyed templates
// by story type; storyforge keys them by the request's structural preset,
// defaulting to freeform when no preset is given.
type category string

const (
	categoryGuided        category = "guided"
	categoryAdventure     category = "adventure"
	categoryEpic          category = "epic"
	categoryChooseYourPath category = "choose_your_path"
	categoryFreeform      category = "freeform"
)

func categoryFor(p *story.Preset) category {
	if p == nil {
		return categoryFreeform
	}
	switch *p {
	case story.PresetGuided:
		return categoryGuided
	case story.PresetAdventure:
		return categoryAdventure
	case story.PresetEpic:
		return categoryEpic
	case story.PresetChooseYourPath:
		return categoryChooseYourPath
	default:
		return categoryFreeform
	}
}

// template is one pre-built 5-scene story skeleton.
type template struct {
	themeKeywords   []string
	category        category
	title           string
	scenes          [5]sceneSpec
	objectives      []string
	complexityScore float64
}

type sceneSpec struct {
	name string
	text string
}

func (t template) matches(theme string, c category) bool {
	if t.category != c {
		return false
	}
	themeLower := strings.ToLower(theme)
	for _, kw := range t.themeKeywords {
		if strings.Contains(themeLower, kw) {
			return true
		}
	}
	return false
}

var templates = []template{
	{
		themeKeywords: []string{"exploration", "discovery", "unknown", "journey"},
		category:      categoryAdventure,
		title:         "Standard Exploration Mission",
		scenes: [5]sceneSpec{
			{"Mission briefing and departure", "The crew gathers for final preparations before setting out into the unknown."},
			{"First challenge encounter", "An unexpected obstacle tests the group's resolve early in the journey."},
			{"Major discovery", "A significant find reshapes the group's understanding of their mission."},
			{"Climactic decision", "The group must choose how to respond to the mission's central challenge."},
			{"Resolution and debrief", "The journey concludes and its lessons are carried forward."},
		},
		objectives:      []string{"Explore unfamiliar territory safely", "Make contact following protocol", "Overcome the journey's central obstacle"},
		complexityScore: 6,
	},
	{
		themeKeywords: []string{"mystery", "investigation", "disappearance", "clue"},
		category:      categoryGuided,
		title:         "Investigation Protocol",
		scenes: [5]sceneSpec{
			{"Discovery of the mystery", "A strange occurrence sets the investigation in motion."},
			{"Initial investigation", "The investigators gather their first leads."},
			{"Key clue revelation", "A turning-point clue reframes the case."},
			{"Final deduction", "The pieces come together toward a conclusion."},
			{"Mystery resolution", "The truth comes to light."},
		},
		objectives:      []string{"Investigate the central anomaly", "Gather evidence systematically", "Solve the mystery"},
		complexityScore: 7,
	},
	{
		themeKeywords: []string{"diplomatic", "negotiation", "conflict", "alliance"},
		category:      categoryEpic,
		title:         "Diplomatic Resolution",
		scenes: [5]sceneSpec{
			{"Conflict introduction", "Tensions are established between the parties involved."},
			{"Stakeholder perspectives", "Each side's position and stakes become clear."},
			{"Moral dilemma", "A difficult choice forces a reckoning with competing values."},
			{"Emotional climax", "The conflict reaches its most intense point."},
			{"Resolution", "A path forward is found for all parties."},
		},
		objectives:      []string{"Navigate the central conflict", "Make a difficult ethical decision", "Reach a lasting resolution"},
		complexityScore: 8,
	},
	{
		themeKeywords: []string{"training", "education", "learn", "skill"},
		category:      categoryChooseYourPath,
		title:         "Training Simulation",
		scenes: [5]sceneSpec{
			{"Learning objectives introduction", "The training scenario's goals are laid out."},
			{"Skill demonstration", "The protagonist demonstrates an initial skill."},
			{"Knowledge application", "The protagonist applies what they've learned under pressure."},
			{"Competency assessment", "The protagonist's progress is tested."},
			{"Educational summary", "The training concludes with a recap of what was learned."},
		},
		objectives:      []string{"Complete the training objectives", "Demonstrate the learned skill", "Pass the final assessment"},
		complexityScore: 5,
	},
	{
		themeKeywords: []string{},
		category:      categoryFreeform,
		title:         "General Narrative",
		scenes: [5]sceneSpec{
			{"Opening", "The story begins with its central premise."},
			{"Rising action", "Complications build on the initial premise."},
			{"Turning point", "A pivotal event changes the story's direction."},
			{"Climax", "The story reaches its point of highest tension."},
			{"Resolution", "The story concludes."},
		},
		objectives:      []string{"Experience the requested theme"},
		complexityScore: 4,
	},
}

// selectTemplate returns the best-matching template for theme/category,
// falling back to the freeform entry when no template matches (freeform
// has no theme keywords, so matches() never selects it).
func selectTemplate(theme string, c category) template {
	for _, t := range templates {
		if t.matches(theme, c) {
			return t
		}
	}
	for _, t := range templates {
		if t.category == categoryFreeform {
			return t
		}
	}
	return templates[len(templates)-1]
}

// Build produces a complete, deterministic GenerationResponse for req,
// stamped GenerationMode = fallback. Deterministic for a given
// (preset-derived category, theme) pair per §8.
func Build(req *story.GenerationRequest) *story.GenerationResponse {
	c := categoryFor(req.Preset)
	t := selectTemplate(req.Theme, c)

	ids := make([]string, len(t.scenes))
	for i := range t.scenes {
		ids[i] = fmt.Sprintf("fallback-%d", i+1)
	}

	steps := make([]story.TrailStep, len(t.scenes))
	for i, s := range t.scenes {
		content := story.NodeContent{
			ID:   ids[i],
			Text: fmt.Sprintf("%s — %s (theme: %s)", s.name, s.text, req.Theme),
		}
		if i < len(t.scenes)-1 {
			content.NextNodeIDs = []string{ids[i+1]}
			content.Choices = []story.Choice{{
				ID:           fmt.Sprintf("%s-choice", ids[i]),
				Text:         "Continue the story.",
				TargetNodeID: ids[i+1],
			}}
		}

		steps[i] = story.TrailStep{
			StepOrder:   i + 1,
			ContentData: content,
			Title:       s.name,
			IsRequired:  true,
		}
	}

	trail := &story.Trail{
		Title:  fmt.Sprintf("%s — %s", t.title, req.Theme),
		Status: story.TrailDraft,
		Tags:   []string{string(c)},
	}

	return &story.GenerationResponse{
		RequestID: req.ID,
		Status:    story.StatusCompleted,
		Progress:  100,
		Trail:     trail,
		TrailSteps: steps,
		Metadata: story.GenerationMetadata{
			PassRate:        1.0,
			PassedNodes:     len(steps),
			TotalNodes:      len(steps),
			ComplexityScore: t.complexityScore,
			GenerationMode:  story.GenerationModeFallback,
		},
	}
}
