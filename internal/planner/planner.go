// Package planner implements the DAG Planner (C2): it expands a
// story.DagConfig into a deterministic set of NodeSkeletons and edges,
// honoring the five convergence patterns from §4.2.
package planner

import (
	"fmt"
	"math/rand"

	"github.com/storyforge/storyforge/pkg/story"
)

// Plan produces the skeleton graph for cfg. seed makes the output
// deterministic for a given (cfg, seed) pair — two requests sharing a
// fingerprint always produce identical skeletons.
func Plan(cfg story.DagConfig, seed uint64) ([]story.NodeSkeleton, []story.Edge, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	// minNodesFor models a single tree spanning nearly every node, which
	// only PureBranching and EndOnly actually build: SingleConvergence and
	// MultipleConvergence fan out over a fraction of the nodes and chain
	// or re-branch the rest, and ParallelPaths never calls fanOutTree at
	// all, so the formula has no bearing on those patterns' feasibility.
	if cfg.ConvergencePattern == story.PureBranching || cfg.ConvergencePattern == story.EndOnly {
		if minNodesFor(cfg.Branching, cfg.MaxDepth) > cfg.NodeCount {
			return nil, nil, &story.PipelineError{Kind: story.ErrKindUnsatisfiableStructure, Err: fmt.Errorf("node count %d insufficient for branching %d x depth %d", cfg.NodeCount, cfg.Branching, cfg.MaxDepth)}
		}
	}

	rng := rand.New(rand.NewSource(int64(seed)))
	b := &builder{cfg: cfg, rng: rng, ids: makeIDs(cfg.NodeCount)}
	b.seedRoot()

	switch cfg.ConvergencePattern {
	case story.SingleConvergence:
		b.buildSingleConvergence()
	case story.MultipleConvergence:
		b.buildMultipleConvergence()
	case story.EndOnly:
		b.buildEndOnly()
	case story.PureBranching:
		b.buildPureBranching()
	case story.ParallelPaths:
		b.buildParallelPaths()
	default:
		return nil, nil, &story.PipelineError{Kind: story.ErrKindUnsatisfiableStructure, Err: fmt.Errorf("unknown convergence pattern %q", cfg.ConvergencePattern)}
	}

	// Authoritative for every pattern, including the ones minNodesFor
	// never screens: a SingleConvergence linear tail, in particular, can
	// still overrun max_depth even once its fan-out stage fits easily.
	if d := b.maxDepth(); d > cfg.MaxDepth {
		return nil, nil, &story.PipelineError{Kind: story.ErrKindUnsatisfiableStructure, Err: fmt.Errorf("%s pattern reached depth %d exceeding max_depth %d for node count %d", cfg.ConvergencePattern, d, cfg.MaxDepth, cfg.NodeCount)}
	}

	return b.skeletons(), b.edges, nil
}

// minNodesFor is a conservative lower bound: a full branching tree of
// depth d needs at least 1 + branching*d nodes to have any room to
// diverge and reconverge.
func minNodesFor(branching, maxDepth int) int {
	return 1 + branching*maxDepth
}

func makeIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("node-%03d", i)
	}
	return ids
}

type builder struct {
	cfg  story.DagConfig
	rng  *rand.Rand
	ids  []string
	edges []story.Edge

	incoming map[string]int
	outgoing map[string]int
	convergence map[string]bool
	depth    map[string]int
}

// seedRoot initializes the builder's bookkeeping maps and places the
// start node at depth 0 before any pattern builder runs, so depth
// propagates through addEdge for every pattern, including ones (like
// buildParallelPaths) that never call fanOutTree themselves.
func (b *builder) seedRoot() {
	b.incoming = make(map[string]int)
	b.outgoing = make(map[string]int)
	b.convergence = make(map[string]bool)
	b.depth = map[string]int{b.ids[0]: 0}
}

func (b *builder) addEdge(from, to string) {
	b.edges = append(b.edges, story.Edge{From: from, To: to})
	b.outgoing[from]++
	b.incoming[to]++
	if d, ok := b.depth[from]; ok {
		if existing, has := b.depth[to]; !has || d+1 < existing {
			b.depth[to] = d + 1
		}
	}
}

// maxDepth returns the deepest node reached so far, used to check the
// §4.2 "depth never exceeds max_depth" invariant once a pattern has
// finished building.
func (b *builder) maxDepth() int {
	deepest := 0
	for _, d := range b.depth {
		if d > deepest {
			deepest = d
		}
	}
	return deepest
}

func (b *builder) skeletons() []story.NodeSkeleton {
	out := make([]story.NodeSkeleton, len(b.ids))
	for i, id := range b.ids {
		out[i] = story.NodeSkeleton{
			ID:                id,
			Ordinal:           i,
			IncomingEdgeCount: b.incoming[id],
			OutgoingEdgeCount: b.outgoing[id],
			IsConvergencePoint: b.convergence[id],
			IsTerminal:        b.outgoing[id] == 0,
			Prerequisites:     b.prerequisitesOf(id),
		}
	}
	return out
}

// prerequisitesOf returns every node with a direct edge into id.
func (b *builder) prerequisitesOf(id string) []string {
	var out []string
	for _, e := range b.edges {
		if e.To == id {
			out = append(out, e.From)
		}
	}
	return out
}

// buildSingleConvergence: branches diverge from start, all converge at
// index floor(ratio*N), then continue linearly to the terminal.
func (b *builder) buildSingleConvergence() {
	n := len(b.ids)
	convergeIdx := convergenceIndex(n, b.cfg.ConvergencePointRatio)
	if convergeIdx <= 0 {
		convergeIdx = 1
	}
	if convergeIdx >= n {
		convergeIdx = n - 1
	}

	divergent := b.ids[1:convergeIdx]
	b.fanOutTree(b.ids[0], divergent)

	converge := b.ids[convergeIdx]
	b.convergence[converge] = true
	for _, leaf := range b.leaves(append([]string{b.ids[0]}, divergent...)) {
		b.addEdge(leaf, converge)
	}

	b.chain(b.ids[convergeIdx:])
}

// buildMultipleConvergence: several convergence points evenly spaced
// over the nodes, count = max(2, branching); ConvergencePointRatio is
// not used. The run past the final
// convergence point re-branches rather than chaining linearly, since
// the pattern (unlike SingleConvergence) places no such requirement on
// it and a straight chain would blow the depth budget for larger node
// counts.
func (b *builder) buildMultipleConvergence() {
	n := len(b.ids)
	count := b.cfg.Branching
	if count < 2 {
		count = 2
	}
	if count > n-2 {
		count = n - 2
	}
	if count < 1 {
		b.chain(b.ids)
		return
	}

	segment := (n - 1) / (count + 1)
	if segment < 1 {
		segment = 1
	}

	prevEnd := 0
	for c := 1; c <= count; c++ {
		convergeIdx := c * segment
		if convergeIdx <= prevEnd {
			convergeIdx = prevEnd + 1
		}
		if convergeIdx >= n {
			convergeIdx = n - 1
		}

		segmentNodes := b.ids[prevEnd+1 : convergeIdx]
		b.fanOutTree(b.ids[prevEnd], segmentNodes)

		converge := b.ids[convergeIdx]
		b.convergence[converge] = true
		for _, leaf := range b.leaves(append([]string{b.ids[prevEnd]}, segmentNodes...)) {
			b.addEdge(leaf, converge)
		}
		prevEnd = convergeIdx
	}

	// Unlike SingleConvergence, nothing in the pattern's definition
	// mandates a linear run after the last convergence point, so the
	// remainder re-branches through fanOutTree instead of chaining node
	// by node — that keeps depth within budget for node counts a purely
	// linear tail couldn't fit.
	b.fanOutTree(b.ids[prevEnd], b.ids[prevEnd+1:])
}

// buildEndOnly: branches never converge internally; everything merges at
// the single terminal node.
func (b *builder) buildEndOnly() {
	n := len(b.ids)
	terminal := b.ids[n-1]
	body := b.ids[1 : n-1]
	b.fanOutTree(b.ids[0], body)
	for _, leaf := range b.leaves(append([]string{b.ids[0]}, body...)) {
		if leaf != terminal {
			b.addEdge(leaf, terminal)
		}
	}
}

// buildPureBranching: a strict tree to terminals; every leaf is a
// terminal, nothing converges.
func (b *builder) buildPureBranching() {
	b.fanOutTree(b.ids[0], b.ids[1:])
}

// buildParallelPaths: disjoint parallel chains from start to separate
// terminals.
func (b *builder) buildParallelPaths() {
	n := len(b.ids)
	paths := b.cfg.Branching
	if paths < 1 {
		paths = 1
	}
	if paths > n-1 {
		paths = n - 1
	}

	rest := b.ids[1:]
	chains := make([][]string, paths)
	for i, id := range rest {
		p := i % paths
		chains[p] = append(chains[p], id)
	}

	for _, chain := range chains {
		if len(chain) == 0 {
			continue
		}
		b.addEdge(b.ids[0], chain[0])
		b.chain(chain)
	}
}

// fanOutTree builds a branching-bounded tree over nodes, rooted at root,
// level by level (breadth-first), taking nodes in index order; each
// level's parents are shuffled per seed before children are attached.
func (b *builder) fanOutTree(root string, nodes []string) {
	if len(nodes) == 0 {
		return
	}
	frontier := []string{root}
	if _, ok := b.depth[root]; !ok {
		// root is a later segment's convergence point (buildMultipleConvergence
		// calls fanOutTree once per segment): its depth already reflects the
		// chain up to here and must not be reset to 0.
		b.depth[root] = 0
	}

	i := 0
	for i < len(nodes) {
		// Shuffle attachment order per-seed: same (cfg, seed) always
		// yields the same skeleton, but different fingerprints spread
		// children across the frontier differently.
		b.rng.Shuffle(len(frontier), func(x, y int) { frontier[x], frontier[y] = frontier[y], frontier[x] })

		var nextFrontier []string
		for _, parent := range frontier {
			if i >= len(nodes) {
				break
			}
			parentDepth := b.depth[parent]
			if parentDepth >= b.cfg.MaxDepth {
				continue
			}
			for c := 0; c < b.cfg.Branching && i < len(nodes); c++ {
				child := nodes[i]
				i++
				b.addEdge(parent, child)
				b.depth[child] = parentDepth + 1
				nextFrontier = append(nextFrontier, child)
			}
		}
		if len(nextFrontier) == 0 {
			// Depth budget exhausted but nodes remain: keep attaching to
			// the last frontier to guarantee every node gets placed.
			if len(frontier) == 0 {
				break
			}
			parent := frontier[len(frontier)-1]
			for i < len(nodes) {
				child := nodes[i]
				i++
				b.addEdge(parent, child)
				b.depth[child] = b.depth[parent] + 1
				nextFrontier = append(nextFrontier, child)
			}
		}
		frontier = nextFrontier
	}
}

// chain links nodes linearly: nodes[0] -> nodes[1] -> ... -> nodes[last].
func (b *builder) chain(nodes []string) {
	for i := 0; i+1 < len(nodes); i++ {
		b.addEdge(nodes[i], nodes[i+1])
	}
}

// leaves returns the subset of candidates with zero outgoing edges so
// far — the points where a convergence or terminal merge must attach.
func (b *builder) leaves(candidates []string) []string {
	var out []string
	for _, id := range candidates {
		if b.outgoing[id] == 0 {
			out = append(out, id)
		}
	}
	return out
}

func convergenceIndex(n int, ratio *float64) int {
	r := 0.5
	if ratio != nil {
		r = *ratio
	}
	idx := int(float64(n) * r)
	return idx
}
