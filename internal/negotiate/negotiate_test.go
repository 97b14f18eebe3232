package negotiate

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storyforge/storyforge/internal/cache"
	"github.com/storyforge/storyforge/internal/services"
	"github.com/storyforge/storyforge/internal/validate"
	"github.com/storyforge/storyforge/pkg/story"
)

type stubPrompt struct {
	pkg *story.PromptPackage
	err error
}

func (s *stubPrompt) Compose(ctx context.Context, req services.PromptRequest) (*story.PromptPackage, error) {
	return s.pkg, s.err
}

type stubContent struct {
	contents []*story.NodeContent
	calls    int
	err      error
}

func (s *stubContent) Generate(ctx context.Context, pkg *story.PromptPackage) (*story.NodeContent, error) {
	if s.err != nil {
		return nil, s.err
	}
	c := s.contents[s.calls]
	if s.calls < len(s.contents)-1 {
		s.calls++
	}
	return c, nil
}

type stubQuality struct{ reports []*story.QualityReport; calls int }

func (s *stubQuality) Validate(ctx context.Context, content *story.NodeContent, audience story.Audience, language story.Language) (*story.QualityReport, error) {
	r := s.reports[s.calls]
	if s.calls < len(s.reports)-1 {
		s.calls++
	}
	return r, nil
}

type stubConstraint struct{ reports []*story.ConstraintReport; calls int }

func (s *stubConstraint) Check(ctx context.Context, content *story.NodeContent, requiredElements []string, vocabularyLevel string, restrictedWords []string) (*story.ConstraintReport, error) {
	r := s.reports[s.calls]
	if s.calls < len(s.reports)-1 {
		s.calls++
	}
	return r, nil
}

func passingReport(nodeID string) *story.ValidationReport {
	return &story.ValidationReport{
		NodeID:               nodeID,
		Quality:              story.QualityReport{AgeAppropriateScore: 0.9, EducationalValueScore: 0.9},
		Constraint:           story.ConstraintReport{ThemeConsistencyScore: 0.9},
		CorrectionCapability: story.CanFixLocally,
	}
}

func TestSession_Resolve_AlreadyPassingReturnsImmediately(t *testing.T) {
	n := New(&stubPrompt{}, &stubContent{}, validate.New(&stubQuality{reports: []*story.QualityReport{{}}}, &stubConstraint{reports: []*story.ConstraintReport{{}}}), cache.NewExprCache(10), DefaultConfig())
	session := n.NewSession()

	content := &story.NodeContent{ID: "n1", Text: "already fine"}
	report := passingReport("n1")

	out, err := session.Resolve(context.Background(), services.PromptRequest{}, validate.Request{Content: content}, content, report)
	require.NoError(t, err)
	assert.Equal(t, story.NodePassed, out.Status)
	assert.Empty(t, out.Decisions)
}

func TestSession_Resolve_LocalFixAppliesPatchAndPasses(t *testing.T) {
	failing := &story.ValidationReport{
		NodeID:               "n1",
		Quality:              story.QualityReport{AgeAppropriateScore: 0.9, EducationalValueScore: 0.9},
		Constraint:           story.ConstraintReport{ThemeConsistencyScore: 0.3},
		CorrectionCapability: story.CanFixLocally,
		Issues: []story.ValidationIssue{
			{NodeID: "n1", Type: story.IssueVocabulary, Severity: story.SeverityWarning, Description: "too advanced",
				Suggestion: &story.Patch{Field: "text", Expression: `"a simpler sentence"`}},
		},
	}
	quality := &stubQuality{reports: []*story.QualityReport{{AgeAppropriateScore: 0.9, EducationalValueScore: 0.9}, {AgeAppropriateScore: 0.9, EducationalValueScore: 0.9}}}
	constraint := &stubConstraint{reports: []*story.ConstraintReport{{ThemeConsistencyScore: 0.9}}}
	pipeline := validate.New(quality, constraint)

	n := New(&stubPrompt{}, &stubContent{}, pipeline, cache.NewExprCache(10), DefaultConfig())
	session := n.NewSession()

	content := &story.NodeContent{ID: "n1", Text: "an overly complex sentence"}
	out, err := session.Resolve(context.Background(), services.PromptRequest{}, validate.Request{Content: content}, content, failing)
	require.NoError(t, err)
	assert.Equal(t, story.NodePassed, out.Status)
	require.Len(t, out.Decisions, 1)
	assert.Equal(t, story.CorrectionLocalFix, out.Decisions[0].Kind)
	assert.Equal(t, "a simpler sentence", out.Content.Text)
}

func TestSession_Resolve_NoFixPossibleSkipsImmediately(t *testing.T) {
	failing := &story.ValidationReport{
		NodeID:               "n1",
		CorrectionCapability: story.NoFixPossible,
	}
	n := New(&stubPrompt{}, &stubContent{}, validate.New(&stubQuality{reports: []*story.QualityReport{{}}}, &stubConstraint{reports: []*story.ConstraintReport{{}}}), cache.NewExprCache(10), DefaultConfig())
	session := n.NewSession()

	content := &story.NodeContent{ID: "n1"}
	out, err := session.Resolve(context.Background(), services.PromptRequest{}, validate.Request{Content: content}, content, failing)
	require.NoError(t, err)
	assert.Equal(t, story.NodeAbandoned, out.Status)
	require.Len(t, out.Decisions, 1)
	assert.Equal(t, story.CorrectionSkip, out.Decisions[0].Kind)
}

func TestSession_Resolve_NeedsRevisionRegeneratesThenPasses(t *testing.T) {
	failing := &story.ValidationReport{
		NodeID:               "n1",
		CorrectionCapability: story.NeedsRevision,
		Constraint:           story.ConstraintReport{ThemeConsistencyScore: 0.2},
	}
	regeneratedContent := &story.NodeContent{ID: "n1", Text: "revised content"}
	quality := &stubQuality{reports: []*story.QualityReport{{AgeAppropriateScore: 0.9, EducationalValueScore: 0.9}}}
	constraint := &stubConstraint{reports: []*story.ConstraintReport{{ThemeConsistencyScore: 0.9}}}

	n := New(&stubPrompt{pkg: &story.PromptPackage{SystemPrompt: "sys"}}, &stubContent{contents: []*story.NodeContent{regeneratedContent}}, validate.New(quality, constraint), cache.NewExprCache(10), DefaultConfig())
	session := n.NewSession()

	original := &story.NodeContent{ID: "n1", Text: "original content"}
	out, err := session.Resolve(context.Background(), services.PromptRequest{}, validate.Request{Content: original}, original, failing)
	require.NoError(t, err)
	assert.Equal(t, story.NodePassed, out.Status)
	require.Len(t, out.Decisions, 1)
	assert.Equal(t, story.CorrectionRegenerate, out.Decisions[0].Kind)
	assert.Equal(t, "revised content", out.Content.Text)
}

func TestSession_Resolve_AbandonsAfterNodeAttemptBudgetExhausted(t *testing.T) {
	failing := &story.ValidationReport{
		NodeID:               "n1",
		CorrectionCapability: story.NeedsRevision,
		Constraint:           story.ConstraintReport{ThemeConsistencyScore: 0.1},
	}
	stillFailing := &story.NodeContent{ID: "n1", Text: "still bad"}
	quality := &stubQuality{reports: []*story.QualityReport{{}}}
	constraint := &stubConstraint{reports: []*story.ConstraintReport{{ThemeConsistencyScore: 0.1}}}

	cfg := DefaultConfig()
	cfg.MaxNodeAttempts = 2
	n := New(&stubPrompt{pkg: &story.PromptPackage{}}, &stubContent{contents: []*story.NodeContent{stillFailing}}, validate.New(quality, constraint), cache.NewExprCache(10), cfg)
	session := n.NewSession()

	original := &story.NodeContent{ID: "n1", Text: "original"}
	out, err := session.Resolve(context.Background(), services.PromptRequest{}, validate.Request{Content: original}, original, failing)
	require.NoError(t, err)
	assert.Equal(t, story.NodeAbandoned, out.Status)
	assert.Len(t, out.Decisions, 2)
}

func TestSession_Resolve_PropagatesRegenerateError(t *testing.T) {
	failing := &story.ValidationReport{NodeID: "n1", CorrectionCapability: story.NeedsRevision}
	n := New(&stubPrompt{err: errors.New("prompt service down")}, &stubContent{}, validate.New(&stubQuality{reports: []*story.QualityReport{{}}}, &stubConstraint{reports: []*story.ConstraintReport{{}}}), cache.NewExprCache(10), DefaultConfig())
	session := n.NewSession()

	content := &story.NodeContent{ID: "n1"}
	_, err := session.Resolve(context.Background(), services.PromptRequest{}, validate.Request{Content: content}, content, failing)
	require.Error(t, err)
}

func TestSession_GlobalRoundBudgetSharedAcrossNodes(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxGlobalRounds = 1
	cfg.MaxNodeAttempts = 5

	content := &story.NodeContent{ID: "shared", Text: "bad"}
	n := New(&stubPrompt{pkg: &story.PromptPackage{}}, &stubContent{contents: []*story.NodeContent{content}}, validate.New(&stubQuality{reports: []*story.QualityReport{{}}}, &stubConstraint{reports: []*story.ConstraintReport{{ThemeConsistencyScore: 0.1}}}), cache.NewExprCache(10), cfg)
	session := n.NewSession()

	failing := &story.ValidationReport{NodeID: "n1", CorrectionCapability: story.NeedsRevision, Constraint: story.ConstraintReport{ThemeConsistencyScore: 0.1}}
	out1, err := session.Resolve(context.Background(), services.PromptRequest{}, validate.Request{Content: content}, content, failing)
	require.NoError(t, err)
	assert.Equal(t, story.NodeAbandoned, out1.Status)

	failing2 := &story.ValidationReport{NodeID: "n2", CorrectionCapability: story.NeedsRevision, Constraint: story.ConstraintReport{ThemeConsistencyScore: 0.1}}
	out2, err := session.Resolve(context.Background(), services.PromptRequest{}, validate.Request{Content: content}, content, failing2)
	require.NoError(t, err)
	assert.Equal(t, story.NodeAbandoned, out2.Status)
	assert.Empty(t, out2.Decisions, "global round budget already exhausted by the first node")
}
