// Package validate implements the Validation Pipeline (C5): one Quality
// call and one Constraint call per node, aggregated into a
// story.ValidationReport.
package validate

import (
	"context"

	"github.com/storyforge/storyforge/internal/services"
	"github.com/storyforge/storyforge/pkg/story"
)

// Pipeline invokes Quality then Constraint for each candidate NodeContent.
type Pipeline struct {
	quality    services.QualityClient
	constraint services.ConstraintClient
}

// New builds a Pipeline from the two specialist clients.
func New(quality services.QualityClient, constraint services.ConstraintClient) *Pipeline {
	return &Pipeline{quality: quality, constraint: constraint}
}

// Request carries the per-node constraint inputs alongside the content
// under validation.
type Request struct {
	Content          *story.NodeContent
	Audience         story.Audience
	Language         story.Language
	RequiredElements []string
	VocabularyLevel  string
	RestrictedWords  []string
}

// Validate runs both specialist calls and aggregates the result. Quality
// and Constraint invocations are independent; callers wanting them
// concurrent should do so around this call — Validate itself is
// sequential to keep per-node error attribution simple.
func (p *Pipeline) Validate(ctx context.Context, req Request) (*story.ValidationReport, error) {
	quality, err := p.quality.Validate(ctx, req.Content, req.Audience, req.Language)
	if err != nil {
		return nil, err
	}

	constraint, err := p.constraint.Check(ctx, req.Content, req.RequiredElements, req.VocabularyLevel, req.RestrictedWords)
	if err != nil {
		return nil, err
	}

	report := &story.ValidationReport{
		NodeID:               req.Content.ID,
		Quality:              *quality,
		Constraint:           *constraint,
		CorrectionCapability: story.Worst(quality.CorrectionCapability, constraint.CorrectionCapability),
	}
	report.Issues = deriveIssues(req.Content.ID, quality, constraint)
	return report, nil
}

// deriveIssues synthesizes the §4.5 issues list from the two raw reports:
// safety issues and missing elements become concrete ValidationIssue
// entries so the negotiator has something uniform to act on.
func deriveIssues(nodeID string, quality *story.QualityReport, constraint *story.ConstraintReport) []story.ValidationIssue {
	var issues []story.ValidationIssue

	for _, safety := range quality.SafetyIssues {
		issues = append(issues, story.ValidationIssue{
			NodeID:      nodeID,
			Type:        story.IssueSafety,
			Severity:    story.SeverityCritical,
			Description: safety,
		})
	}
	for _, missing := range constraint.MissingElements {
		issues = append(issues, story.ValidationIssue{
			NodeID:      nodeID,
			Type:        story.IssueCanon,
			Severity:    story.SeverityWarning,
			Description: "missing required element: " + missing,
		})
	}
	for _, violation := range constraint.VocabularyViolations {
		issues = append(issues, story.ValidationIssue{
			NodeID:      nodeID,
			Type:        story.IssueVocabulary,
			Severity:    story.SeverityWarning,
			Description: violation,
		})
	}
	for _, patch := range constraint.Corrections {
		issues = append(issues, story.ValidationIssue{
			NodeID:      nodeID,
			Type:        story.IssueStructural,
			Severity:    story.SeverityInfo,
			Description: "suggested correction for " + patch.Field,
			Suggestion:  &patch,
		})
	}

	return issues
}
