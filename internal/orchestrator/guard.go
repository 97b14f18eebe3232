package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/storyforge/storyforge/internal/breaker"
	"github.com/storyforge/storyforge/internal/config"
	"github.com/storyforge/storyforge/internal/services"
	"github.com/storyforge/storyforge/internal/tracing"
	"github.com/storyforge/storyforge/pkg/story"
)

// dependencyGuard bounds one dependency's in-flight call count to its
// configured MaxConcurrency and routes every call through a shared
// circuit breaker, so breaker state reflects the dependency as a whole
// rather than any one client call — grounded on the teacher's
// per-wave semaphore in dag_executor.go, generalized to per-dependency.
type dependencyGuard struct {
	name string
	sem  chan struct{}
	cb   *breaker.Breaker
}

func newDependencyGuard(name string, cfg config.DependencyConfig, registry *breaker.Registry) *dependencyGuard {
	capacity := cfg.MaxConcurrency
	if capacity <= 0 {
		capacity = 1
	}
	return &dependencyGuard{name: name, sem: make(chan struct{}, capacity), cb: registry.Get(name)}
}

// run executes fn under both the concurrency gate and the circuit
// breaker. A saturated gate is reported as UpstreamBackpressure rather
// than made to wait, so backpressure itself counts as a breaker failure.
// tool names the specific operation (e.g. "compose", "generate") for the
// ServiceInvocation this call records when ctx carries a story.TraceMeta
// (it won't during e.g. admission-time circuit probes, which don't trace).
func (g *dependencyGuard) run(ctx context.Context, tool string, fn func(context.Context) error) error {
	start := time.Now()
	meta, traced := story.TraceMetaFromContext(ctx)

	spanCtx, endSpan := tracing.TraceInvocation(ctx, g.name, tool, meta.NodeID)
	err := g.cb.Execute(spanCtx, g.name, func(ctx context.Context) error {
		select {
		case g.sem <- struct{}{}:
		default:
			return &story.UpstreamError{
				Dependency: g.name,
				Kind:       story.ErrKindUpstreamBackpressure,
				Err:        fmt.Errorf("%s concurrency limit reached", g.name),
			}
		}
		defer func() { <-g.sem }()
		return fn(ctx)
	})
	endSpan(err)

	if traced && meta.Recorder != nil {
		inv := story.ServiceInvocation{
			Service:   g.name,
			Tool:      tool,
			Phase:     meta.Phase,
			NodeID:    meta.NodeID,
			StartedAt: start,
			Duration:  time.Since(start),
			Success:   err == nil,
		}
		if err != nil {
			inv.Error = err.Error()
		}
		meta.Recorder.Record(inv)
	}

	return err
}

func (g *dependencyGuard) open() bool { return g.cb.State() == breaker.Open }

// guardedPromptClient wraps a services.PromptClient with a dependencyGuard.
type guardedPromptClient struct {
	inner services.PromptClient
	guard *dependencyGuard
}

func (c *guardedPromptClient) Compose(ctx context.Context, req services.PromptRequest) (*story.PromptPackage, error) {
	var pkg *story.PromptPackage
	err := c.guard.run(ctx, "compose", func(ctx context.Context) error {
		p, err := c.inner.Compose(ctx, req)
		if err != nil {
			return err
		}
		pkg = p
		return nil
	})
	return pkg, err
}

// guardedContentClient wraps a services.ContentClient with a dependencyGuard.
type guardedContentClient struct {
	inner services.ContentClient
	guard *dependencyGuard
}

func (c *guardedContentClient) Generate(ctx context.Context, pkg *story.PromptPackage) (*story.NodeContent, error) {
	var content *story.NodeContent
	err := c.guard.run(ctx, "generate", func(ctx context.Context) error {
		out, err := c.inner.Generate(ctx, pkg)
		if err != nil {
			return err
		}
		content = out
		return nil
	})
	return content, err
}

// guardedQualityClient wraps a services.QualityClient with a dependencyGuard.
type guardedQualityClient struct {
	inner services.QualityClient
	guard *dependencyGuard
}

func (c *guardedQualityClient) Validate(ctx context.Context, content *story.NodeContent, audience story.Audience, language story.Language) (*story.QualityReport, error) {
	var report *story.QualityReport
	err := c.guard.run(ctx, "validate", func(ctx context.Context) error {
		r, err := c.inner.Validate(ctx, content, audience, language)
		if err != nil {
			return err
		}
		report = r
		return nil
	})
	return report, err
}

// guardedConstraintClient wraps a services.ConstraintClient with a dependencyGuard.
type guardedConstraintClient struct {
	inner services.ConstraintClient
	guard *dependencyGuard
}

func (c *guardedConstraintClient) Check(ctx context.Context, content *story.NodeContent, requiredElements []string, vocabularyLevel string, restrictedWords []string) (*story.ConstraintReport, error) {
	var report *story.ConstraintReport
	err := c.guard.run(ctx, "check", func(ctx context.Context) error {
		r, err := c.inner.Check(ctx, content, requiredElements, vocabularyLevel, restrictedWords)
		if err != nil {
			return err
		}
		report = r
		return nil
	})
	return report, err
}

// guardedCharacterClient wraps a services.CharacterClient with a dependencyGuard.
type guardedCharacterClient struct {
	inner services.CharacterClient
	guard *dependencyGuard
}

func (c *guardedCharacterClient) Profile(ctx context.Context, characterName string) (*story.CharacterAssignment, error) {
	var assignment *story.CharacterAssignment
	err := c.guard.run(ctx, "profile", func(ctx context.Context) error {
		a, err := c.inner.Profile(ctx, characterName)
		if err != nil {
			return err
		}
		assignment = a
		return nil
	})
	return assignment, err
}
