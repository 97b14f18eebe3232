package orchestrator

import (
	"sync"

	"github.com/storyforge/storyforge/internal/negotiate"
	"github.com/storyforge/storyforge/pkg/story"
)

// nodeResults collects every node's negotiation outcome as waves
// complete, guarded by a mutex since multiple wave goroutines write
// concurrently.
type nodeResults struct {
	mu       sync.Mutex
	outcomes map[string]*negotiate.Outcome
}

func newNodeResults(capacity int) *nodeResults {
	return &nodeResults{outcomes: make(map[string]*negotiate.Outcome, capacity)}
}

func (r *nodeResults) record(skeleton story.NodeSkeleton, outcome *negotiate.Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes[skeleton.ID] = outcome
}

func (r *nodeResults) abandon(nodeID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes[nodeID] = &negotiate.Outcome{
		Status:  story.NodeAbandoned,
		Content: &story.NodeContent{ID: nodeID, Abandoned: true},
	}
}

// summaryFor returns a short text summary of a node's content for its
// first prerequisite, the input the Prompt Composer uses to keep
// consecutive nodes coherent.
func (r *nodeResults) summaryFor(prerequisites []string) (string, bool) {
	if len(prerequisites) == 0 {
		return "", false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	outcome, ok := r.outcomes[prerequisites[0]]
	if !ok || outcome.Content == nil {
		return "", false
	}
	return summarize(outcome.Content.Text), true
}

// summarize truncates node text to a short preceding-context summary.
func summarize(text string) string {
	const maxLen = 200
	if len(text) <= maxLen {
		return text
	}
	return text[:maxLen] + "..."
}

// assemble turns the collected outcomes into the caller-facing TrailSteps
// and summary GenerationMetadata, ordered by planner ordinal. Edges
// backfill NextNodeIDs on any node whose generated content left them
// empty, so the planner's structural graph always survives even if a
// specialist service didn't echo its own linkage.
func assemble(skeletons []story.NodeSkeleton, edges []story.Edge, results *nodeResults, characters []story.CharacterAssignment) ([]story.TrailStep, story.GenerationMetadata) {
	children := make(map[string][]string, len(skeletons))
	for _, e := range edges {
		children[e.From] = append(children[e.From], e.To)
	}

	steps := make([]story.TrailStep, 0, len(skeletons))
	metadata := story.GenerationMetadata{
		TotalNodes:           len(skeletons),
		CharacterAssignments: characters,
	}

	results.mu.Lock()
	defer results.mu.Unlock()

	for _, skeleton := range skeletons {
		outcome, ok := results.outcomes[skeleton.ID]
		if !ok {
			continue
		}

		metadata.NegotiationRounds += len(outcome.Decisions)
		metadata.CorrectionsApplied = append(metadata.CorrectionsApplied, outcome.Decisions...)

		switch outcome.Status {
		case story.NodePassed:
			metadata.PassedNodes++
		case story.NodeAbandoned:
			metadata.AbandonedNodes++
			if outcome.Report != nil {
				metadata.UnresolvedIssues = append(metadata.UnresolvedIssues, outcome.Report.Issues...)
			}
		}

		content := *outcome.Content
		if outcome.Status == story.NodeAbandoned {
			content.Abandoned = true
		}
		if len(content.NextNodeIDs) == 0 && !skeleton.IsTerminal {
			content.NextNodeIDs = children[skeleton.ID]
		}

		steps = append(steps, story.TrailStep{
			StepOrder:   skeleton.Ordinal + 1,
			ContentData: content,
			IsRequired:  !skeleton.IsConvergencePoint,
		})
	}

	if metadata.TotalNodes > 0 {
		metadata.PassRate = float64(metadata.PassedNodes) / float64(metadata.TotalNodes)
	}
	return steps, metadata
}

// buildDag seals the assembled steps into the §3 Dag invariant-checking
// type: one node per generated step, the planner's structural edges, the
// ordinal-0 skeleton as start, and every convergence-point skeleton
// flagged. Run through Dag.Validate() before a response is returned, this
// is what actually catches a specialist-returned choice pointing at a
// nonexistent node id — assemble() itself has no reason to reject that.
func buildDag(skeletons []story.NodeSkeleton, edges []story.Edge, steps []story.TrailStep) *story.Dag {
	dag := story.NewDag()
	for _, step := range steps {
		content := step.ContentData
		dag.Nodes[content.ID] = &content
	}
	dag.Edges = edges
	for _, s := range skeletons {
		if s.Ordinal == 0 {
			dag.StartNodeID = s.ID
		}
		if s.IsConvergencePoint {
			dag.ConvergencePoints[s.ID] = true
		}
	}
	return dag
}
