// Package story defines the public data model for the content-generation
// orchestration core: requests, DAG configuration, generated story graphs,
// validation results, and execution traces.
package story

import "time"

// Audience is the target age bucket for a generated story.
type Audience string

const (
	Audience6to8   Audience = "6-8"
	Audience9to11  Audience = "9-11"
	Audience12to14 Audience = "12-14"
	Audience15to17 Audience = "15-17"
	Audience18plus Audience = "18+"
)

// Language is the narrative language of the generated content.
type Language string

const (
	LanguageEnglish Language = "en"
	LanguageGerman  Language = "de"
)

// Preset names a canned structural template. When present it takes
// priority over an explicit DagConfig.
type Preset string

const (
	PresetGuided        Preset = "guided"
	PresetAdventure      Preset = "adventure"
	PresetEpic           Preset = "epic"
	PresetChooseYourPath Preset = "choose_your_path"
)

// RestrictedWordsMergeMode controls how request-supplied restricted words
// combine with configuration-supplied defaults.
type RestrictedWordsMergeMode string

const (
	RestrictedWordsReplace   RestrictedWordsMergeMode = "replace"
	RestrictedWordsMerge     RestrictedWordsMergeMode = "merge"
	RestrictedWordsConfigOnly RestrictedWordsMergeMode = "config_only"
)

// ValidationPolicy overrides the default acceptance thresholds for a single
// request.
type ValidationPolicy struct {
	QualityThreshold    *float64 `json:"quality_threshold,omitempty"`
	ConstraintThreshold *float64 `json:"constraint_threshold,omitempty"`
}

// GenerationRequest is the immutable-after-admission input to the pipeline.
type GenerationRequest struct {
	ID       string   `json:"id"`
	TenantID string   `json:"tenant_id,omitempty"`
	AuthorID string   `json:"author_id,omitempty"`

	Theme    string   `json:"theme" validate:"required,min=5,max=200"`
	Language Language `json:"language" validate:"required,oneof=de en"`
	Audience Audience `json:"audience" validate:"required"`

	NodeCount *int    `json:"node_count,omitempty"`
	Preset    *Preset `json:"preset,omitempty"`
	DagConfig *DagConfig `json:"dag_config,omitempty"`

	VocabularyLevel     *string  `json:"vocabulary_level,omitempty"`
	RequiredElements    []string `json:"required_elements,omitempty"`
	EducationalGoals    []string `json:"educational_goals,omitempty"`
	CharacterNames      []string `json:"character_names,omitempty"`

	ValidationPolicy *ValidationPolicy `json:"validation_policy,omitempty"`

	CustomRestrictedWords []string                  `json:"custom_restricted_words,omitempty"`
	RestrictedWordsMode   RestrictedWordsMergeMode  `json:"restricted_words_mode,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// audienceNodeCountDefaults implements the 5-bucket default table from
// the request resolver's audience fallback rules.
var audienceNodeCountDefaults = map[Audience]int{
	Audience6to8:   12,
	Audience9to11:  12,
	Audience12to14: 16,
	Audience15to17: 24,
	Audience18plus: 30,
}

// DefaultNodeCountFor returns the audience-default node count, the last
// resolution tier when neither an explicit count nor a preset is given.
func DefaultNodeCountFor(a Audience) (int, bool) {
	n, ok := audienceNodeCountDefaults[a]
	return n, ok
}

// presetTable implements the preset → DagConfig mapping.
var presetTable = map[Preset]DagConfig{
	PresetGuided: {
		// SingleConvergence runs linearly from its convergence point to
		// the terminal, so max_depth has to cover the divergent fan-out
		// plus the full linear remainder, not just the fan-out depth.
		NodeCount: 12, Branching: 2, MaxDepth: 8,
		ConvergencePattern: SingleConvergence, ConvergencePointRatio: floatPtr(0.5),
	},
	PresetAdventure: {
		NodeCount: 12, Branching: 3, MaxDepth: 8,
		ConvergencePattern: MultipleConvergence, ConvergencePointRatio: floatPtr(0.5),
	},
	PresetEpic: {
		NodeCount: 30, Branching: 3, MaxDepth: 9,
		ConvergencePattern: EndOnly, ConvergencePointRatio: floatPtr(1.0),
	},
	PresetChooseYourPath: {
		NodeCount: 24, Branching: 4, MaxDepth: 5,
		ConvergencePattern: PureBranching,
	},
}

// PresetConfig returns the DagConfig template for a preset name.
func PresetConfig(p Preset) (DagConfig, bool) {
	cfg, ok := presetTable[p]
	return cfg, ok
}

func floatPtr(f float64) *float64 { return &f }
