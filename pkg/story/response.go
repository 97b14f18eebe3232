package story

// ResponseStatus is the externally visible completion state of a request.
type ResponseStatus string

const (
	StatusPending    ResponseStatus = "pending"
	StatusInProgress ResponseStatus = "in_progress"
	StatusCompleted  ResponseStatus = "completed"
	StatusFailed     ResponseStatus = "failed"
)

// GenerationMode records whether a response came from live generation,
// the cache, or the deterministic fallback path.
type GenerationMode string

const (
	GenerationModeLive     GenerationMode = "live"
	GenerationModeCached   GenerationMode = "cached"
	GenerationModeFallback GenerationMode = "fallback"
)

// TrailStatus is the publication state of the persistence-ready Trail.
type TrailStatus string

const (
	TrailDraft     TrailStatus = "DRAFT"
	TrailPublished TrailStatus = "PUBLISHED"
	TrailArchived  TrailStatus = "ARCHIVED"
)

// Trail is the caller-side-persistable header for a generated story.
type Trail struct {
	Title       string         `json:"title"` // 5-255 chars
	Description string         `json:"description,omitempty"` // <=2000
	Status      TrailStatus    `json:"status"`
	IsPublic    bool           `json:"is_public"`
	Price       *float64       `json:"price,omitempty"`
	Tags        []string       `json:"tags,omitempty"` // <=20 x <=50 chars
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// TrailStep is one finalized node, ready for caller-side persistence.
type TrailStep struct {
	StepOrder   int            `json:"step_order"` // >=1
	ContentData NodeContent    `json:"content_data"`
	Title       string         `json:"title,omitempty"`
	Description string         `json:"description,omitempty"`
	IsRequired  bool           `json:"is_required"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// GenerationMetadata summarizes how the negotiation loop resolved the
// request.
type GenerationMetadata struct {
	PassRate             float64               `json:"pass_rate"`
	PassedNodes          int                   `json:"passed_nodes"`
	AbandonedNodes       int                   `json:"abandoned_nodes"`
	TotalNodes           int                   `json:"total_nodes"`
	NegotiationRounds    int                   `json:"negotiation_rounds_executed"`
	CorrectionsApplied   []CorrectionDecision  `json:"corrections_applied,omitempty"`
	UnresolvedIssues     []ValidationIssue     `json:"unresolved_validation_issues,omitempty"`
	ComplexityScore      float64               `json:"complexity_score"`
	CharacterAssignments []CharacterAssignment `json:"character_assignments,omitempty"`
	GenerationMode       GenerationMode        `json:"generation_mode"`
}

// CharacterAssignment binds a requested character name to a role within
// the generated story (C10 supplement, grounded on original_source).
type CharacterAssignment struct {
	CharacterName string `json:"character_name"`
	RoleInStory   string `json:"role_in_story"`
	Synthesized   bool   `json:"synthesized"`
}

// GenerationResponse is the outbound envelope returned to the caller.
type GenerationResponse struct {
	RequestID  string         `json:"request_id"`
	Status     ResponseStatus `json:"status"`
	Progress   int            `json:"progress_percentage"`
	Trail      *Trail         `json:"trail,omitempty"`
	TrailSteps []TrailStep    `json:"trail_steps,omitempty"`
	Metadata   GenerationMetadata `json:"metadata"`
	PromptSummary map[string]any `json:"prompt_generation_summary,omitempty"`
	Trace      ExecutionTrace `json:"execution_trace"`
	Errors     []ErrorDetail  `json:"errors,omitempty"`
}

// ErrorDetail is one entry in a fatal response's errors[] array.
type ErrorDetail struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	TraceID string    `json:"trace_id,omitempty"`
}

// ExternalJobStatus is the coarse, gateway-facing view of request progress.
type ExternalJobStatus struct {
	JobID                       string         `json:"job_id"`
	ProgressPercentage          int            `json:"progress_percentage"`
	Status                      ResponseStatus `json:"status"`
	CurrentPhase                *string        `json:"current_phase,omitempty"`
	EstimatedCompletionSeconds  *int           `json:"estimated_completion_seconds,omitempty"`
}

// externalPhaseNames compresses internal phases into the coarse names the
// gateway view exposes.
var externalPhaseNames = map[Phase]string{
	PhasePromptGeneration: "preparing",
	PhaseStructure:        "preparing",
	PhaseGeneration:       "generating",
	PhaseValidation:       "generating",
	PhaseAssembly:         "finalizing",
	PhaseComplete:         "done",
}

// ExternalPhaseName returns the coarse external name for an internal phase.
func ExternalPhaseName(p Phase) string {
	if name, ok := externalPhaseNames[p]; ok {
		return name
	}
	return string(p)
}
