// Package negotiate implements the Negotiator (C6): for each node that
// fails validation it picks a CorrectionDecision (LocalFix, Regenerate,
// or Skip) and drives the node's state machine until it passes or is
// abandoned, honoring both the per-node attempt budget and the global
// round budget for the whole request.
package negotiate

import (
	"context"
	"fmt"
	"sync"

	"github.com/expr-lang/expr"

	"github.com/storyforge/storyforge/internal/cache"
	"github.com/storyforge/storyforge/internal/services"
	"github.com/storyforge/storyforge/internal/validate"
	"github.com/storyforge/storyforge/pkg/story"
)

// Config holds the round/attempt budgets and passing thresholds, all
// with §4.6/§4.5 defaults.
type Config struct {
	MaxGlobalRounds     int
	MaxNodeAttempts     int
	QualityThreshold    float64
	ConstraintThreshold float64
}

// DefaultConfig returns the spec defaults: 3 global rounds, 3 per-node
// attempts, 0.6 score thresholds.
func DefaultConfig() Config {
	return Config{MaxGlobalRounds: 3, MaxNodeAttempts: 3, QualityThreshold: 0.6, ConstraintThreshold: 0.6}
}

// Negotiator wires the two upstream clients a Regenerate decision needs
// (Prompt then Content), the validation pipeline to re-check the result,
// and the expression cache used to evaluate LocalFix patches.
type Negotiator struct {
	prompt    services.PromptClient
	content   services.ContentClient
	validator *validate.Pipeline
	exprCache *cache.ExprCache
	cfg       Config
}

// New builds a Negotiator.
func New(prompt services.PromptClient, content services.ContentClient, validator *validate.Pipeline, exprCache *cache.ExprCache, cfg Config) *Negotiator {
	return &Negotiator{prompt: prompt, content: content, validator: validator, exprCache: exprCache, cfg: cfg}
}

// Session tracks the global round budget across every node negotiated
// for one request — the budget in §4.6 is request-scoped, not per-node.
// One Session is shared across every node resolved concurrently for a
// request, so roundsUsed is guarded by mu.
type Session struct {
	n  *Negotiator
	mu sync.Mutex
	roundsUsed int
}

// consumeRound atomically checks the global budget and reserves one
// round if any remain, so concurrent nodes never jointly overspend it.
func (s *Session) consumeRound() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.roundsUsed >= s.n.cfg.MaxGlobalRounds {
		return false
	}
	s.roundsUsed++
	return true
}

// NewSession starts a fresh negotiation session for one request.
func (n *Negotiator) NewSession() *Session {
	return &Session{n: n}
}

// Outcome is the final state reached for one node plus the trail of
// decisions it took to get there.
type Outcome struct {
	Content   *story.NodeContent
	Report    *story.ValidationReport
	Status    story.NodeNegotiationStatus
	Decisions []story.CorrectionDecision
}

// Resolve drives one node's state machine from an initial (content,
// report) pair — already produced by the orchestrator's first
// Prompt/Generate/Validate pass — to Passed or Abandoned.
func (s *Session) Resolve(ctx context.Context, promptReq services.PromptRequest, valReq validate.Request, content *story.NodeContent, report *story.ValidationReport) (*Outcome, error) {
	out := &Outcome{Content: content, Report: report}
	localFixAttempts := 0
	nodeAttempts := 0

	for {
		if report.Passing(s.n.cfg.QualityThreshold, s.n.cfg.ConstraintThreshold) {
			out.Status = story.NodePassed
			out.Content, out.Report = content, report
			return out, nil
		}

		if nodeAttempts >= s.n.cfg.MaxNodeAttempts || !s.consumeRound() {
			out.Status = story.NodeAbandoned
			out.Content, out.Report = content, report
			return out, nil
		}

		decision := decide(report, localFixAttempts)
		out.Decisions = append(out.Decisions, decision)
		nodeAttempts++

		switch decision.Kind {
		case story.CorrectionSkip:
			out.Status = story.NodeAbandoned
			out.Content, out.Report = content, report
			return out, nil

		case story.CorrectionLocalFix:
			localFixAttempts++
			fixed, err := s.n.applyLocalFix(content, decision.Patch)
			if err != nil {
				// Patch didn't apply cleanly; fall through to the next
				// loop iteration, which will see the same report and
				// escalate to Regenerate since localFixAttempts > 0.
				continue
			}
			content = fixed

		case story.CorrectionRegenerate:
			withIssues := promptReq
			withIssues.NodeContext.IssueContext = report.Issues
			regenerated, err := s.n.regenerate(ctx, withIssues)
			if err != nil {
				return nil, fmt.Errorf("negotiate regenerate node %s: %w", report.NodeID, err)
			}
			content = regenerated
		}

		valReq.Content = content
		newReport, err := s.n.validator.Validate(ctx, valReq)
		if err != nil {
			return nil, fmt.Errorf("negotiate validate node %s: %w", report.NodeID, err)
		}
		report = newReport
	}
}

// decide applies the §4.6 CorrectionDecision table. localFixAttempts
// tracks whether a LocalFix has already been tried for this node and
// failed to resolve the report — once it has, capability CanFixLocally
// escalates to Regenerate rather than repeating the same fix.
func decide(report *story.ValidationReport, localFixAttempts int) story.CorrectionDecision {
	nonStructural := 0
	for _, issue := range report.Issues {
		if issue.Type != story.IssueStructural {
			nonStructural++
		}
	}

	switch report.CorrectionCapability {
	case story.NoFixPossible:
		return story.CorrectionDecision{NodeID: report.NodeID, Kind: story.CorrectionSkip}
	case story.CanFixLocally:
		if localFixAttempts == 0 && nonStructural <= 3 {
			return story.CorrectionDecision{NodeID: report.NodeID, Kind: story.CorrectionLocalFix, Patch: firstPatch(report)}
		}
		return story.CorrectionDecision{NodeID: report.NodeID, Kind: story.CorrectionRegenerate}
	default: // NeedsRevision
		return story.CorrectionDecision{NodeID: report.NodeID, Kind: story.CorrectionRegenerate}
	}
}

// firstPatch picks the first suggested patch out of the issues list, or
// one synthesized from the constraint report's raw Corrections if no
// issue carries a Suggestion.
func firstPatch(report *story.ValidationReport) *story.Patch {
	for _, issue := range report.Issues {
		if issue.Suggestion != nil {
			return issue.Suggestion
		}
	}
	if len(report.Constraint.Corrections) > 0 {
		return &report.Constraint.Corrections[0]
	}
	return nil
}

// applyLocalFix evaluates patch.Expression via the expr-lang cache and
// assigns the result onto the named field of a copy of content.
func (n *Negotiator) applyLocalFix(content *story.NodeContent, patch *story.Patch) (*story.NodeContent, error) {
	if patch == nil {
		return nil, fmt.Errorf("no patch available for local fix")
	}

	env := map[string]any{
		"text":    content.Text,
		"choices": content.Choices,
	}
	program, err := n.exprCache.CompileValue(patch.Expression, env)
	if err != nil {
		return nil, fmt.Errorf("compile patch expression: %w", err)
	}
	result, err := expr.Run(program, env)
	if err != nil {
		return nil, fmt.Errorf("run patch expression: %w", err)
	}

	fixed := *content
	switch patch.Field {
	case "text":
		text, ok := result.(string)
		if !ok {
			return nil, fmt.Errorf("patch for field %q did not produce a string", patch.Field)
		}
		fixed.Text = text
	default:
		return nil, fmt.Errorf("unsupported local-fix field %q", patch.Field)
	}
	return &fixed, nil
}

// regenerate re-runs C3 (prompt composition, with the failing report's
// issues appended as context) then C4 (content generation). ctx arrives
// tagged for the Validation phase (the caller's last validate call); it's
// re-tagged here so the two regenerate sub-calls trace under their own
// phases instead of being misattributed to Validation.
func (n *Negotiator) regenerate(ctx context.Context, promptReq services.PromptRequest) (*story.NodeContent, error) {
	pkg, err := n.prompt.Compose(story.WithPhase(ctx, story.PhasePromptGeneration), promptReq)
	if err != nil {
		return nil, fmt.Errorf("compose prompt: %w", err)
	}
	content, err := n.content.Generate(story.WithPhase(ctx, story.PhaseGeneration), pkg)
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}
	return content, nil
}
