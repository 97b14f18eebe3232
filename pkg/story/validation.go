package story

// IssueType names the category of a ValidationIssue.
type IssueType string

const (
	IssueAgeAppropriateness IssueType = "age_appropriateness"
	IssueWordCount          IssueType = "word_count"
	IssueCanon              IssueType = "canon"
	IssueSafety             IssueType = "safety"
	IssueStructural         IssueType = "structural"
	IssueVocabulary         IssueType = "vocabulary"
)

// Severity ranks how serious a ValidationIssue is.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// ValidationIssue is one problem reported against a NodeContent by the
// Quality or Constraint service.
type ValidationIssue struct {
	NodeID      string    `json:"node_id"`
	Type        IssueType `json:"type"`
	Severity    Severity  `json:"severity"`
	Description string    `json:"description"`
	Suggestion  *Patch    `json:"suggestion,omitempty"`
}

// Patch is a machine-readable local-fix suggestion.
type Patch struct {
	Field      string `json:"field"`
	Expression string `json:"expression"`
}

// CorrectionCapability is the validator-reported hint telling the
// negotiator how, or whether, a node can be fixed.
type CorrectionCapability string

const (
	CanFixLocally  CorrectionCapability = "can_fix_locally"
	NeedsRevision  CorrectionCapability = "needs_revision"
	NoFixPossible  CorrectionCapability = "no_fix_possible"
)

// worseThan orders capabilities so NoFixPossible dominates.
var capabilityRank = map[CorrectionCapability]int{
	CanFixLocally: 0,
	NeedsRevision: 1,
	NoFixPossible: 2,
}

// Worst returns whichever of a, b reports the more severe capability.
func Worst(a, b CorrectionCapability) CorrectionCapability {
	if capabilityRank[b] > capabilityRank[a] {
		return b
	}
	return a
}

// QualityReport is the Quality service's per-node assessment.
type QualityReport struct {
	AgeAppropriateScore   float64  `json:"age_appropriate_score"`
	EducationalValueScore float64  `json:"educational_value_score"`
	SafetyIssues          []string `json:"safety_issues,omitempty"`
	CorrectionCapability  CorrectionCapability `json:"correction_capability"`
}

// ConstraintReport is the Constraint service's per-node assessment.
type ConstraintReport struct {
	ThemeConsistencyScore    float64  `json:"theme_consistency_score"`
	RequiredElementsPresent  bool     `json:"required_elements_present"`
	MissingElements          []string `json:"missing_elements,omitempty"`
	VocabularyViolations     []string `json:"vocabulary_violations,omitempty"`
	CorrectionCapability     CorrectionCapability `json:"correction_capability"`
	Corrections              []Patch  `json:"corrections,omitempty"`
}

// ValidationReport aggregates the Quality and Constraint reports for one
// node, per §4.5.
type ValidationReport struct {
	NodeID               string               `json:"node_id"`
	Quality              QualityReport        `json:"quality"`
	Constraint           ConstraintReport      `json:"constraint"`
	Issues               []ValidationIssue     `json:"issues"`
	CorrectionCapability CorrectionCapability  `json:"correction_capability"`
}

// Passing reports whether the node meets the acceptance thresholds: no
// Critical issue and both scores at or above threshold.
func (r ValidationReport) Passing(qualityThreshold, constraintThreshold float64) bool {
	for _, issue := range r.Issues {
		if issue.Severity == SeverityCritical {
			return false
		}
	}
	if r.Quality.AgeAppropriateScore < qualityThreshold || r.Quality.EducationalValueScore < qualityThreshold {
		return false
	}
	if r.Constraint.ThemeConsistencyScore < constraintThreshold {
		return false
	}
	return true
}

// CorrectionKind names the action the negotiator picked for a node.
type CorrectionKind string

const (
	CorrectionLocalFix   CorrectionKind = "local_fix"
	CorrectionRegenerate CorrectionKind = "regenerate"
	CorrectionSkip       CorrectionKind = "skip"
)

// CorrectionDecision is the negotiator's verdict for one failing node.
type CorrectionDecision struct {
	NodeID string         `json:"node_id"`
	Kind   CorrectionKind `json:"kind"`
	Patch  *Patch         `json:"patch,omitempty"`
}

// NodeNegotiationStatus is the per-node state machine position (§4.6).
type NodeNegotiationStatus string

const (
	NodePending            NodeNegotiationStatus = "pending"
	NodePromptRequested    NodeNegotiationStatus = "prompt_requested"
	NodeGenerated          NodeNegotiationStatus = "generated"
	NodeValidationPending  NodeNegotiationStatus = "validation_pending"
	NodePassed             NodeNegotiationStatus = "passed"
	NodeNeedsCorrection    NodeNegotiationStatus = "needs_correction"
	NodeAbandoned          NodeNegotiationStatus = "abandoned"
)

// Terminal reports whether the status ends the node's negotiation.
func (s NodeNegotiationStatus) Terminal() bool {
	return s == NodePassed || s == NodeAbandoned
}
