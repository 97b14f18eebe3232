// Package resolve implements the Request Resolver (C1): it turns a
// validated story.GenerationRequest into a concrete set of ResolvedParams,
// applying the explicit > preset > audience-default priority and the
// restricted-words merge policy.
package resolve

import (
	"github.com/storyforge/storyforge/pkg/story"
)

// ResolvedParams is C1's output: everything C2 (the planner) and later
// stages need, with every optional field already defaulted.
type ResolvedParams struct {
	DagConfig       story.DagConfig
	VocabularyLevel string
	RestrictedWords []string
	NodeCount       int
}

// Resolver carries DefaultRestrictedWords, the configuration-supplied word
// list merged or replaced per request (§4.1). Callers inject their own via New.
type Resolver struct {
	DefaultRestrictedWords []string
}

// New builds a Resolver with the process-wide default restricted words.
func New(defaultRestrictedWords []string) *Resolver {
	return &Resolver{DefaultRestrictedWords: defaultRestrictedWords}
}

// Resolve applies the resolution priority: explicit DagConfig/NodeCount >
// preset > audience default.
func (r *Resolver) Resolve(req *story.GenerationRequest) (*ResolvedParams, error) {
	if err := validateTheme(req.Theme); err != nil {
		return nil, err
	}

	cfg, err := r.resolveDagConfig(req)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	vocab := ""
	if req.VocabularyLevel != nil {
		vocab = *req.VocabularyLevel
	}

	return &ResolvedParams{
		DagConfig:       cfg,
		VocabularyLevel: vocab,
		RestrictedWords: r.resolveRestrictedWords(req),
		NodeCount:       cfg.NodeCount,
	}, nil
}

func validateTheme(theme string) error {
	if len(theme) < 5 || len(theme) > 200 {
		return &story.ValidationError{Field: "theme", Message: "theme must be between 5 and 200 characters"}
	}
	return nil
}

// resolveDagConfig applies explicit DagConfig > preset > audience default,
// per §4.1's resolution priority.
func (r *Resolver) resolveDagConfig(req *story.GenerationRequest) (story.DagConfig, error) {
	if req.DagConfig != nil {
		cfg := *req.DagConfig
		if req.NodeCount != nil {
			cfg.NodeCount = *req.NodeCount
		}
		return cfg, nil
	}

	if req.Preset != nil {
		cfg, ok := story.PresetConfig(*req.Preset)
		if !ok {
			return story.DagConfig{}, &story.PipelineError{Kind: story.ErrKindInvalidRequest, Err: unknownPresetError(*req.Preset)}
		}
		if req.NodeCount != nil {
			cfg.NodeCount = *req.NodeCount
		}
		return cfg, nil
	}

	nodeCount, ok := story.DefaultNodeCountFor(req.Audience)
	if !ok {
		return story.DagConfig{}, &story.PipelineError{Kind: story.ErrKindInvalidRequest, Err: unknownAudienceError(req.Audience)}
	}
	if req.NodeCount != nil {
		nodeCount = *req.NodeCount
	}

	ratio := 0.5
	return story.DagConfig{
		NodeCount:             nodeCount,
		Branching:             2,
		MaxDepth:              nodeCount / 2,
		ConvergencePattern:    story.SingleConvergence,
		ConvergencePointRatio: &ratio,
	}, nil
}

// resolveRestrictedWords applies Replace / Merge / ConfigOnly.
func (r *Resolver) resolveRestrictedWords(req *story.GenerationRequest) []string {
	switch req.RestrictedWordsMode {
	case story.RestrictedWordsReplace:
		return req.CustomRestrictedWords
	case story.RestrictedWordsConfigOnly:
		return r.DefaultRestrictedWords
	case story.RestrictedWordsMerge:
		return mergeUnique(r.DefaultRestrictedWords, req.CustomRestrictedWords)
	default:
		if len(req.CustomRestrictedWords) > 0 {
			return req.CustomRestrictedWords
		}
		return r.DefaultRestrictedWords
	}
}

func mergeUnique(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, w := range list {
			if !seen[w] {
				seen[w] = true
				out = append(out, w)
			}
		}
	}
	return out
}

type unknownPresetError string

func (e unknownPresetError) Error() string { return "unknown preset: " + string(e) }

type unknownAudienceError string

func (e unknownAudienceError) Error() string { return "unknown audience bucket: " + string(e) }
