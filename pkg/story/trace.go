package story

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Phase names one of the totally-ordered orchestration phases.
type Phase string

const (
	PhasePromptGeneration Phase = "prompt_generation"
	PhaseStructure        Phase = "structure"
	PhaseGeneration       Phase = "generation"
	PhaseValidation       Phase = "validation"
	PhaseAssembly         Phase = "assembly"
	PhaseComplete         Phase = "complete"
)

// orderedPhases is the canonical phase sequence; phases_completed in an
// ExecutionTrace must be a prefix of it.
var orderedPhases = []Phase{
	PhasePromptGeneration, PhaseStructure, PhaseGeneration, PhaseValidation, PhaseAssembly, PhaseComplete,
}

// ValidPhasePrefix reports whether completed is a prefix of the canonical
// phase order.
func ValidPhasePrefix(completed []Phase) bool {
	if len(completed) > len(orderedPhases) {
		return false
	}
	for i, p := range completed {
		if p != orderedPhases[i] {
			return false
		}
	}
	return true
}

// ServiceInvocation records one RPC to an external specialist service.
type ServiceInvocation struct {
	Service   string        `json:"service"`
	Tool      string        `json:"tool"`
	Phase     Phase         `json:"phase"`
	NodeID    string        `json:"node_id,omitempty"`
	BatchID   string        `json:"batch_id,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
}

// ExecutionTrace is the append-only record of one request's journey
// through the pipeline.
type ExecutionTrace struct {
	RequestID        string              `json:"request_id"`
	ServiceInvocations []ServiceInvocation `json:"service_invocations"`
	PhasesCompleted  []Phase             `json:"phases_completed"`
	TotalDuration    time.Duration       `json:"total_duration"`
}

// TraceRecorder accumulates ServiceInvocations into a shared
// ExecutionTrace from multiple concurrently-resolving nodes. One
// recorder is built per request and handed to every guarded dependency
// call through the request's context.
type TraceRecorder struct {
	mu    sync.Mutex
	trace *ExecutionTrace
}

// NewTraceRecorder builds a recorder writing into trace.
func NewTraceRecorder(trace *ExecutionTrace) *TraceRecorder {
	return &TraceRecorder{trace: trace}
}

// Record appends one ServiceInvocation.
func (r *TraceRecorder) Record(inv ServiceInvocation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trace.ServiceInvocations = append(r.trace.ServiceInvocations, inv)
}

// Finalize sorts the recorded invocations by StartedAt: concurrent node
// resolution appends them out of order, but testable property 4 requires
// service_invocations ordered by started_at in the returned trace.
func (r *TraceRecorder) Finalize() {
	r.mu.Lock()
	defer r.mu.Unlock()
	sort.Slice(r.trace.ServiceInvocations, func(i, j int) bool {
		return r.trace.ServiceInvocations[i].StartedAt.Before(r.trace.ServiceInvocations[j].StartedAt)
	})
}

// TraceMeta tags a context with where a guarded dependency call should
// record its ServiceInvocation.
type TraceMeta struct {
	Recorder *TraceRecorder
	NodeID   string
	Phase    Phase
}

type traceMetaKey struct{}

// WithTraceMeta attaches meta to ctx. A nil Recorder is a no-op tag (the
// guard simply won't record anything), so callers outside a traced
// request path never need a nil check.
func WithTraceMeta(ctx context.Context, meta TraceMeta) context.Context {
	return context.WithValue(ctx, traceMetaKey{}, meta)
}

// TraceMetaFromContext retrieves a previously attached TraceMeta.
func TraceMetaFromContext(ctx context.Context) (TraceMeta, bool) {
	meta, ok := ctx.Value(traceMetaKey{}).(TraceMeta)
	return meta, ok
}

// WithPhase re-tags ctx's existing TraceMeta with a different phase,
// keeping the same recorder and node id — used where one logical call
// site spans several phases (e.g. negotiation's regenerate-then-validate
// loop, which moves from PromptGeneration to Generation to Validation).
func WithPhase(ctx context.Context, phase Phase) context.Context {
	meta, ok := TraceMetaFromContext(ctx)
	if !ok {
		return ctx
	}
	meta.Phase = phase
	return WithTraceMeta(ctx, meta)
}
