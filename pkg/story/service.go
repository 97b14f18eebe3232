package story

// ServiceTarget names which downstream specialist a PromptPackage is
// composed for.
type ServiceTarget string

const (
	ServiceTargetContent    ServiceTarget = "content"
	ServiceTargetQuality    ServiceTarget = "quality"
	ServiceTargetConstraint ServiceTarget = "constraint"
)

// GenerationMethod records how a PromptPackage came to exist. Informational
// only — the pipeline treats all three identically (§4.3).
type GenerationMethod string

const (
	MethodLLMGenerated     GenerationMethod = "llm_generated"
	MethodTemplateFallback GenerationMethod = "template_fallback"
	MethodCached           GenerationMethod = "cached"
)

// NodeContext is what the orchestrator supplies to the Prompt Composer for
// a single node.
type NodeContext struct {
	Target              ServiceTarget
	Language            Language
	Audience            Audience
	Theme               string
	NodePosition        int
	IncomingEdgeCount   int
	ConvergenceFlag     bool
	PreviousNodeSummary string
	IssueContext        []ValidationIssue // appended on Regenerate
}

// GenerationConfig is the sampling configuration attached to a
// PromptPackage.
type GenerationConfig struct {
	Temperature      float64  `json:"temperature"`
	TopP             float64  `json:"top_p"`
	PresencePenalty  float64  `json:"presence_penalty"`
	FrequencyPenalty float64  `json:"frequency_penalty"`
	StopSequences    []string `json:"stop_sequences,omitempty"`
	MaxTokens        int      `json:"max_tokens"`
}

// PromptPackage is the Prompt Composer's output and the Content Generator's
// input.
type PromptPackage struct {
	SystemPrompt    string           `json:"system_prompt"`
	UserPrompt      string           `json:"user_prompt"`
	ModelName       string           `json:"model_name"`
	Config          GenerationConfig `json:"config"`
	TemplateVersion string           `json:"template_version"`
	Method          GenerationMethod `json:"generation_method"`
}
