// Package orchestrator implements the Pipeline Orchestrator (C9): it
// drives one request through admission, cache lookup, resolution,
// planning, the per-node prompt/generate/validate/negotiate loop, and
// assembly, publishing phase events and persisting the result along the
// way. Grounded on the teacher's DAGExecutor (wave-based parallelism
// bounded by a semaphore, cancellation checked between waves) and its
// ObserverManager (best-effort, non-blocking event notification).
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/storyforge/storyforge/internal/breaker"
	"github.com/storyforge/storyforge/internal/cache"
	"github.com/storyforge/storyforge/internal/config"
	"github.com/storyforge/storyforge/internal/fallback"
	"github.com/storyforge/storyforge/internal/logging"
	"github.com/storyforge/storyforge/internal/negotiate"
	"github.com/storyforge/storyforge/internal/planner"
	"github.com/storyforge/storyforge/internal/prompt"
	"github.com/storyforge/storyforge/internal/resolve"
	"github.com/storyforge/storyforge/internal/services"
	"github.com/storyforge/storyforge/internal/storage"
	"github.com/storyforge/storyforge/internal/validate"
	"github.com/storyforge/storyforge/pkg/story"
)

// Config bounds one request's walk through the pipeline.
type Config struct {
	// RequestTimeout is the hard wall-clock budget for a single request
	// (§5 default: 60s).
	RequestTimeout time.Duration
	// NodeFanoutOverride pins the per-wave concurrency instead of the
	// default ceil(sqrt(node count)).
	NodeFanoutOverride int
}

// DefaultConfig returns the spec-mandated defaults.
func DefaultConfig() Config {
	return Config{RequestTimeout: 60 * time.Second}
}

// Dependencies bundles everything the Orchestrator wires together. Every
// client is the bare, unguarded implementation — New wraps each in a
// dependencyGuard so concurrency limits and circuit-breaker state are
// consistent across every call site.
type Dependencies struct {
	Resolver   *resolve.Resolver
	Prompt     services.PromptClient
	Content    services.ContentClient
	Quality    services.QualityClient
	Constraint services.ConstraintClient
	Character  services.CharacterClient
	Cache      *cache.GenerationCache
	ExprCache  *cache.ExprCache
	Repo       storage.TrailRepository // may be nil: persistence is best-effort
	Logger     *logging.Logger
}

// Orchestrator is the C9 pipeline driver.
type Orchestrator struct {
	cfg    Config
	logger *logging.Logger

	resolver  *resolve.Resolver
	validator *validate.Pipeline
	negotiator *negotiate.Negotiator
	prompt    services.PromptClient
	content   services.ContentClient
	character services.CharacterClient

	promptGuard  *dependencyGuard
	contentGuard *dependencyGuard

	genCache *cache.GenerationCache
	repo     storage.TrailRepository

	Publisher *Publisher
	Hub       *WebSocketHub
}

// New wires every C9 dependency, building one breaker.Registry and one
// dependencyGuard per external specialist from cfg.Services.
func New(cfg *config.Config, deps Dependencies, runtimeCfg Config) *Orchestrator {
	breakers := breaker.NewRegistry(breaker.Config{
		FailureThreshold:    cfg.Breaker.FailureThreshold,
		SuccessThreshold:    cfg.Breaker.SuccessThreshold,
		CooldownTimeout:     cfg.Breaker.CooldownTimeout,
		HalfOpenMaxInFlight: cfg.Breaker.HalfOpenMaxInFlight,
	})

	promptGuard := newDependencyGuard("prompt", cfg.Services.Prompt, breakers)
	contentGuard := newDependencyGuard("content", cfg.Services.Content, breakers)
	qualityGuard := newDependencyGuard("quality", cfg.Services.Quality, breakers)
	constraintGuard := newDependencyGuard("constraint", cfg.Services.Constraint, breakers)
	characterGuard := newDependencyGuard("character", cfg.Services.Character, breakers)

	guardedPrompt := &guardedPromptClient{inner: deps.Prompt, guard: promptGuard}
	guardedContent := &guardedContentClient{inner: deps.Content, guard: contentGuard}
	guardedQuality := &guardedQualityClient{inner: deps.Quality, guard: qualityGuard}
	guardedConstraint := &guardedConstraintClient{inner: deps.Constraint, guard: constraintGuard}
	guardedCharacter := &guardedCharacterClient{inner: deps.Character, guard: characterGuard}

	validator := validate.New(guardedQuality, guardedConstraint)
	negotiator := negotiate.New(guardedPrompt, guardedContent, validator, deps.ExprCache, negotiate.Config{
		MaxGlobalRounds:     cfg.Negotiate.MaxGlobalRounds,
		MaxNodeAttempts:     cfg.Negotiate.MaxRoundsPerNode,
		QualityThreshold:    cfg.Validation.QualityThreshold,
		ConstraintThreshold: cfg.Validation.ConstraintThreshold,
	})

	publisher := NewPublisher(deps.Logger)
	publisher.Register(NewLogObserver(deps.Logger))

	hub := NewWebSocketHub(deps.Logger)
	publisher.Register(NewWebSocketObserver(hub, deps.Logger))

	if runtimeCfg.RequestTimeout <= 0 {
		runtimeCfg.RequestTimeout = DefaultConfig().RequestTimeout
	}

	return &Orchestrator{
		cfg:          runtimeCfg,
		logger:       deps.Logger,
		resolver:     deps.Resolver,
		validator:    validator,
		negotiator:   negotiator,
		prompt:       guardedPrompt,
		content:      guardedContent,
		character:    guardedCharacter,
		promptGuard:  promptGuard,
		contentGuard: contentGuard,
		genCache:     deps.Cache,
		repo:         deps.Repo,
		Publisher:    publisher,
		Hub:          hub,
	}
}

// Generate drives req through the full pipeline, returning a response in
// every case except an unrecoverable internal fault: pipeline-level
// failures (invalid request, unsatisfiable structure, deadline exceeded)
// are reported as a Failed response rather than a Go error, matching the
// propagation policy of §7.
func (o *Orchestrator) Generate(ctx context.Context, req *story.GenerationRequest) (*story.GenerationResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.RequestTimeout)
	defer cancel()

	start := time.Now()
	o.Publisher.Publish(ctx, Event{Type: EventRequestStarted, RequestID: req.ID, Timestamp: start})

	fingerprint := story.Fingerprint(req)
	if cached, ok := o.genCache.Lookup(ctx, fingerprint); ok {
		resp := *cached
		resp.Metadata.GenerationMode = story.GenerationModeCached
		resp.Trace = story.ExecutionTrace{
			RequestID: req.ID,
			ServiceInvocations: []story.ServiceInvocation{{
				Service:   "cache",
				Tool:      "lookup",
				Phase:     story.PhaseComplete,
				StartedAt: start,
				Duration:  time.Since(start),
				Success:   true,
			}},
			PhasesCompleted: []story.Phase{
				story.PhasePromptGeneration, story.PhaseStructure, story.PhaseGeneration,
				story.PhaseValidation, story.PhaseAssembly, story.PhaseComplete,
			},
			TotalDuration: time.Since(start),
		}
		o.Publisher.Publish(ctx, Event{Type: EventRequestCompleted, RequestID: req.ID, Timestamp: time.Now()})
		return &resp, nil
	}

	trace := &story.ExecutionTrace{RequestID: req.ID}
	resp, genErr := o.genCache.GetOrGenerate(ctx, fingerprint, func(ctx context.Context) (*story.GenerationResponse, error) {
		return o.generate(ctx, req, trace)
	})
	trace.TotalDuration = time.Since(start)

	if genErr != nil {
		var pipelineErr *story.PipelineError
		if errors.As(genErr, &pipelineErr) && pipelineErr.Kind.Fatal() {
			o.Publisher.Publish(ctx, Event{Type: EventRequestFailed, RequestID: req.ID, Err: genErr, Timestamp: time.Now()})
			return o.failedResponse(req, pipelineErr, *trace), nil
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			pe := &story.PipelineError{Kind: story.ErrKindDeadlineExceeded, RequestID: req.ID, Err: genErr}
			o.Publisher.Publish(ctx, Event{Type: EventRequestFailed, RequestID: req.ID, Err: pe, Timestamp: time.Now()})
			return o.failedResponse(req, pe, *trace), nil
		}
		return nil, fmt.Errorf("generate request %s: %w", req.ID, genErr)
	}

	o.Publisher.Publish(ctx, Event{Type: EventRequestCompleted, RequestID: req.ID, Timestamp: time.Now()})
	return resp, nil
}

func (o *Orchestrator) failedResponse(req *story.GenerationRequest, pe *story.PipelineError, trace story.ExecutionTrace) *story.GenerationResponse {
	return &story.GenerationResponse{
		RequestID: req.ID,
		Status:    story.StatusFailed,
		Trace:     trace,
		Errors:    []story.ErrorDetail{{Kind: pe.Kind, Message: pe.Error()}},
	}
}

// generate performs the actual Resolution -> Planning -> per-node loop ->
// Assembly walk. It returns a PipelineError for fatal conditions. A prompt
// or content circuit that is already open at admission degrades to the
// deterministic fallback template; a failed per-node call abandons that
// node instead of failing the request.
func (o *Orchestrator) generate(ctx context.Context, req *story.GenerationRequest, trace *story.ExecutionTrace) (*story.GenerationResponse, error) {
	if o.promptGuard.open() || o.contentGuard.open() {
		o.logger.WarnContext(ctx, "circuit open at admission, serving fallback", "request_id", req.ID)
		return fallback.Build(req), nil
	}

	resolved, err := o.resolver.Resolve(req)
	if err != nil {
		return nil, asFatal(req.ID, story.ErrKindInvalidRequest, err)
	}

	seed := story.SeedFromFingerprint(story.Fingerprint(req))
	skeletons, edges, err := planner.Plan(resolved.DagConfig, seed)
	if err != nil {
		return nil, asFatal(req.ID, story.ErrKindUnsatisfiableStructure, err)
	}
	trace.PhasesCompleted = append(trace.PhasesCompleted, story.PhasePromptGeneration, story.PhaseStructure)

	recorder := story.NewTraceRecorder(trace)
	characters := o.resolveCharacters(ctx, req, recorder)

	waves, err := buildWaves(skeletons)
	if err != nil {
		return nil, asFatal(req.ID, story.ErrKindInternal, err)
	}

	results := newNodeResults(len(skeletons))
	fanout := o.fanoutWidth(len(skeletons))
	session := o.negotiator.NewSession()

	for _, wave := range waves {
		select {
		case <-ctx.Done():
			for _, s := range wave {
				results.abandon(s.ID)
			}
			continue
		default:
		}
		o.runWave(ctx, req, resolved, wave, results, fanout, session, recorder)
	}
	trace.PhasesCompleted = append(trace.PhasesCompleted, story.PhaseGeneration, story.PhaseValidation)
	recorder.Finalize()

	steps, metadata := assemble(skeletons, edges, results, characters)

	dag := buildDag(skeletons, edges, steps)
	if err := dag.Validate(); err != nil {
		return nil, asFatal(req.ID, story.ErrKindInternal, err)
	}
	trace.PhasesCompleted = append(trace.PhasesCompleted, story.PhaseAssembly)

	trail := &story.Trail{
		Title:  fmt.Sprintf("Generated story: %s", req.Theme),
		Status: story.TrailDraft,
		Tags:   []string{string(req.Audience)},
	}

	if o.repo != nil {
		if _, err := o.repo.Create(ctx, req.ID, trail, steps); err != nil {
			o.logger.WarnContext(ctx, "trail persistence failed, continuing with in-memory result", "request_id", req.ID, "error", err)
		}
	}

	trace.PhasesCompleted = append(trace.PhasesCompleted, story.PhaseComplete)
	metadata.GenerationMode = story.GenerationModeLive

	return &story.GenerationResponse{
		RequestID:  req.ID,
		Status:     story.StatusCompleted,
		Progress:   100,
		Trail:      trail,
		TrailSteps: steps,
		Metadata:   metadata,
		Trace:      *trace,
	}, nil
}

func asFatal(requestID string, kind story.ErrorKind, err error) error {
	var pe *story.PipelineError
	if errors.As(err, &pe) {
		return pe
	}
	return &story.PipelineError{Kind: kind, RequestID: requestID, Err: err}
}

// fanoutWidth is ceil(sqrt(n)), the default per-request node concurrency
// bound from §5, unless Config overrides it.
func (o *Orchestrator) fanoutWidth(n int) int {
	if o.cfg.NodeFanoutOverride > 0 {
		return o.cfg.NodeFanoutOverride
	}
	width := int(math.Ceil(math.Sqrt(float64(n))))
	if width < 1 {
		width = 1
	}
	return width
}

// runWave resolves every node in wave concurrently, bounded by fanout. All
// nodes in a request share one negotiate.Session so the global negotiation
// round budget (§4.6) is spent once across the whole request rather than
// once per node.
func (o *Orchestrator) runWave(ctx context.Context, req *story.GenerationRequest, resolved *resolve.ResolvedParams, wave []story.NodeSkeleton, results *nodeResults, fanout int, session *negotiate.Session, recorder *story.TraceRecorder) {
	var wg sync.WaitGroup
	sem := make(chan struct{}, fanout)

	for _, skeleton := range wave {
		wg.Add(1)
		sem <- struct{}{}
		go func(s story.NodeSkeleton) {
			defer wg.Done()
			defer func() { <-sem }()
			o.resolveNode(ctx, req, resolved, s, results, session, recorder)
		}(skeleton)
	}
	wg.Wait()
}

// resolveNode runs the full prompt/generate/validate/negotiate loop for
// one node and records its outcome. session is shared across every node in
// the request so the global negotiation round budget is enforced
// correctly even though nodes resolve concurrently. Each guarded call is
// tagged via recorder so its ServiceInvocation lands in the request's
// ExecutionTrace regardless of which goroutine it runs in.
func (o *Orchestrator) resolveNode(ctx context.Context, req *story.GenerationRequest, resolved *resolve.ResolvedParams, skeleton story.NodeSkeleton, results *nodeResults, session *negotiate.Session, recorder *story.TraceRecorder) {
	guidance := prompt.Compose(req.Preset, skeleton.IsTerminal)
	nodeCtx := story.NodeContext{
		Target:            story.ServiceTargetContent,
		Language:          req.Language,
		Audience:          req.Audience,
		Theme:             req.Theme,
		NodePosition:      skeleton.Ordinal,
		IncomingEdgeCount: skeleton.IncomingEdgeCount,
		ConvergenceFlag:   skeleton.IsConvergencePoint,
	}
	if summary, ok := results.summaryFor(skeleton.Prerequisites); ok {
		nodeCtx.PreviousNodeSummary = summary
	}

	promptReq := services.PromptRequest{NodeContext: nodeCtx, Request: req, Guidance: guidance}
	tracedCtx := story.WithTraceMeta(ctx, story.TraceMeta{Recorder: recorder, NodeID: skeleton.ID, Phase: story.PhasePromptGeneration})

	pkg, err := o.prompt.Compose(tracedCtx, promptReq)
	if err != nil {
		o.logger.WithContext(tracedCtx).WarnContext(ctx, "prompt composition failed, abandoning node", "request_id", req.ID, "error", err)
		o.Publisher.Publish(ctx, Event{Type: EventNodeResolved, RequestID: req.ID, NodeID: skeleton.ID, Status: story.NodeAbandoned, Err: err, Timestamp: time.Now()})
		results.abandon(skeleton.ID)
		return
	}

	generationCtx := story.WithPhase(tracedCtx, story.PhaseGeneration)
	content, err := o.content.Generate(generationCtx, pkg)
	if err != nil {
		o.logger.WithContext(generationCtx).WarnContext(ctx, "content generation failed, abandoning node", "request_id", req.ID, "error", err)
		o.Publisher.Publish(ctx, Event{Type: EventNodeResolved, RequestID: req.ID, NodeID: skeleton.ID, Status: story.NodeAbandoned, Err: err, Timestamp: time.Now()})
		results.abandon(skeleton.ID)
		return
	}
	content.ID = skeleton.ID

	valReq := validate.Request{
		Content:          content,
		Audience:         req.Audience,
		Language:         req.Language,
		RequiredElements: req.RequiredElements,
		VocabularyLevel:  resolved.VocabularyLevel,
		RestrictedWords:  resolved.RestrictedWords,
	}
	validationCtx := story.WithPhase(tracedCtx, story.PhaseValidation)
	report, err := o.validator.Validate(validationCtx, valReq)
	if err != nil {
		o.logger.WithContext(validationCtx).WarnContext(ctx, "validation failed, abandoning node", "request_id", req.ID, "error", err)
		o.Publisher.Publish(ctx, Event{Type: EventNodeResolved, RequestID: req.ID, NodeID: skeleton.ID, Status: story.NodeAbandoned, Err: err, Timestamp: time.Now()})
		results.abandon(skeleton.ID)
		return
	}

	outcome, err := session.Resolve(validationCtx, promptReq, valReq, content, report)
	if err != nil {
		o.Publisher.Publish(ctx, Event{Type: EventNodeResolved, RequestID: req.ID, NodeID: skeleton.ID, Status: story.NodeAbandoned, Err: err, Timestamp: time.Now()})
		results.abandon(skeleton.ID)
		return
	}

	o.Publisher.Publish(ctx, Event{Type: EventNodeResolved, RequestID: req.ID, NodeID: skeleton.ID, Status: outcome.Status, Timestamp: time.Now()})
	results.record(skeleton, outcome)
}

func (o *Orchestrator) resolveCharacters(ctx context.Context, req *story.GenerationRequest, recorder *story.TraceRecorder) []story.CharacterAssignment {
	assignments := make([]story.CharacterAssignment, 0, len(req.CharacterNames))
	tracedCtx := story.WithTraceMeta(ctx, story.TraceMeta{Recorder: recorder, Phase: story.PhaseGeneration})
	for _, name := range req.CharacterNames {
		assignment, err := o.character.Profile(tracedCtx, name)
		if err != nil {
			assignment = services.Synthesize(name, req.Theme)
		}
		assignments = append(assignments, *assignment)
	}
	return assignments
}
