// Package prompt holds the story-type-specific prompt engineering
// guidance the orchestrator attaches to outgoing Prompt Composer (C3)
// requests. It is a supplemented feature: the distilled specification
// doesn't describe it, but the original holodeck server keyed its whole
// prompt-construction strategy on a per-story-type introduction,
// structural requirements, and resolution guidance, and that texture is
// worth carrying over rather than sending the Composer a bare theme
// string.
package prompt

import (
	"strings"

	"github.com/storyforge/storyforge/pkg/story"
)

// Guidance is the engineering content for one structural flavor: an
// introduction framing the tone, the structural requirements a
// generated node should satisfy, and resolution guidance reserved for
// terminal nodes.
type Guidance struct {
	Introduction string
	Requirements string
	Resolution   string
}

// guidanceTable keys guidance by DagConfig preset, mirroring the
// flavor assignment internal/fallback uses for its template table so the
// two supplemented features read as one coherent story-type taxonomy.
var guidanceTable = map[story.Preset]Guidance{
	story.PresetAdventure: {
		Introduction: "You are writing an ADVENTURE story. Focus on action, exploration, and discovery. Include physical challenges, unknown territories, and heroic actions. Emphasize excitement, courage, and the thrill of the unknown.",
		Requirements: "Include at least one action sequence or physical challenge. Create opportunities for exploration and discovery. Include a moment of danger requiring courage or quick thinking. Emphasize teamwork and heroic choices.",
		Resolution:   "Conclude with a climactic moment where the protagonist uses skills developed earlier in the story. The resolution should feel earned and provide a sense of accomplishment.",
	},
	story.PresetGuided: {
		Introduction: "You are writing a MYSTERY-flavored guided story. Focus on investigation, clues, and logical deduction. Include hidden information, evidence to discover, and a central puzzle to solve. Emphasize observation and methodical reasoning.",
		Requirements: "Introduce a clue or piece of evidence relevant to the central puzzle. Create a logical deduction opportunity. Avoid resolving the mystery before the final node.",
		Resolution:   "The solution should be logical and satisfying, with every clue fitting together coherently. Include a moment where the solution is revealed and its logic made clear.",
	},
	story.PresetEpic: {
		Introduction: "You are writing an EPIC story centered on conflict and diplomacy. Focus on high-stakes tension between parties, moral dilemmas, and consequential decisions. Emphasize the weight of each choice.",
		Requirements: "Introduce or escalate a conflict, dilemma, or competing interest. Give the protagonist a difficult, morally weighted decision. Avoid resolving the central conflict before the final node.",
		Resolution:   "Bring the conflict to a resolution that feels earned given the choices made throughout. Acknowledge the cost of the path taken.",
	},
	story.PresetChooseYourPath: {
		Introduction: "You are writing a TRAINING-flavored interactive story. Focus on learning objectives, skill demonstration, and knowledge application under pressure. Emphasize clear, practical progress.",
		Requirements: "Introduce or apply a concrete skill or piece of knowledge relevant to the stated learning objective. Include a moment that tests or demonstrates competency.",
		Resolution:   "Conclude with a recap of what was learned and clear evidence the objective was met.",
	},
}

// freeformGuidance is used when no preset is given, matching
// internal/fallback's unconditional freeform template.
var freeformGuidance = Guidance{
	Introduction: "You are writing a general interactive narrative. Follow the requested theme naturally, without forcing a specific genre structure.",
	Requirements: "Advance the story's central premise. Keep tone and detail consistent with prior nodes.",
	Resolution:   "Bring the story to a natural conclusion consistent with its premise.",
}

// For returns the guidance for a preset, or the freeform default when
// preset is nil or unrecognized.
func For(preset *story.Preset) Guidance {
	if preset == nil {
		return freeformGuidance
	}
	if g, ok := guidanceTable[*preset]; ok {
		return g
	}
	return freeformGuidance
}

// Compose assembles the guidance block to attach to a node's
// PromptRequest: the introduction and structural requirements always,
// the resolution guidance only for the story's terminal node.
func Compose(preset *story.Preset, isTerminal bool) string {
	g := For(preset)
	var b strings.Builder
	b.WriteString(g.Introduction)
	b.WriteString("\n\n")
	b.WriteString(g.Requirements)
	if isTerminal {
		b.WriteString("\n\n")
		b.WriteString(g.Resolution)
	}
	return b.String()
}
