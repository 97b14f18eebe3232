package story

// NodeSkeleton is a planner-produced placeholder for a story node, before
// any narrative content has been generated.
type NodeSkeleton struct {
	ID                string   `json:"id"`
	Ordinal           int      `json:"ordinal"`
	IncomingEdgeCount int      `json:"incoming_edge_count"`
	OutgoingEdgeCount int      `json:"outgoing_edge_count"`
	IsConvergencePoint bool    `json:"is_convergence_point"`
	IsTerminal        bool     `json:"is_terminal"`
	Prerequisites     []string `json:"prerequisites"`
}

// Choice is one player-facing option leading out of a NodeContent.
type Choice struct {
	ID           string         `json:"id"`
	Text         string         `json:"text" validate:"min=10,max=200"`
	TargetNodeID string         `json:"target_node_id"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// EducationalBlock carries the optional curriculum-linked payload attached
// to a node.
type EducationalBlock struct {
	Topic             string   `json:"topic"`
	LearningObjective string   `json:"learning_objective"`
	VocabularyWords   []string `json:"vocabulary_words,omitempty"` // at most 20
	Facts             []string `json:"facts,omitempty"`
}

// NodeContent is the fully generated narrative payload for one node.
type NodeContent struct {
	ID               string             `json:"id"`
	Text             string             `json:"text"` // 50-1000 chars
	Choices          []Choice           `json:"choices,omitempty"` // 0-4
	NextNodeIDs      []string           `json:"next_node_ids,omitempty"`
	ConvergenceFlag  bool               `json:"convergence_flag"`
	Educational      *EducationalBlock  `json:"educational,omitempty"`
	Abandoned        bool               `json:"abandoned"`
}

// Edge is one directed connection between two nodes, optionally carrying
// the choice id that produced it.
type Edge struct {
	From     string `json:"from"`
	To       string `json:"to"`
	ChoiceID string `json:"choice_id,omitempty"`
}

// Dag is the sealed, immutable graph assembled at the end of generation.
type Dag struct {
	Nodes              map[string]*NodeContent `json:"nodes"`
	Edges              []Edge                  `json:"edges"`
	StartNodeID        string                  `json:"start_node_id"`
	ConvergencePoints  map[string]bool         `json:"convergence_points"`
}

// NewDag creates an empty, mutable Dag ready to be populated during
// Planning and Generation.
func NewDag() *Dag {
	return &Dag{
		Nodes:             make(map[string]*NodeContent),
		ConvergencePoints: make(map[string]bool),
	}
}

// Validate checks the structural invariants from §8: acyclicity,
// reachability from start, valid choice targets, and terminal
// out-degree zero.
func (d *Dag) Validate() error {
	if d.StartNodeID == "" {
		return &ValidationError{Field: "start_node_id", Message: "exactly one start node is required"}
	}
	if _, ok := d.Nodes[d.StartNodeID]; !ok {
		return &ValidationError{Field: "start_node_id", Message: "start node not present in graph"}
	}

	adjacency := make(map[string][]string, len(d.Nodes))
	for _, e := range d.Edges {
		adjacency[e.From] = append(adjacency[e.From], e.To)
	}
	for _, node := range d.Nodes {
		for _, c := range node.Choices {
			if _, ok := d.Nodes[c.TargetNodeID]; !ok {
				return &ValidationError{Field: "choices", Message: "choice target " + c.TargetNodeID + " not present in graph"}
			}
		}
		if len(node.Choices) == 0 && len(adjacency[node.ID]) == 0 && !node.Abandoned {
			// terminal: fine, no outgoing edges required
			continue
		}
	}

	if err := detectCycle(adjacency, d.StartNodeID); err != nil {
		return err
	}
	if err := checkReachability(adjacency, d.StartNodeID, d.Nodes); err != nil {
		return err
	}
	return nil
}

func detectCycle(adj map[string][]string, start string) error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int)
	var visit func(string) error
	visit = func(n string) error {
		color[n] = gray
		for _, next := range adj[n] {
			switch color[next] {
			case gray:
				return &InternalError{Reason: "cycle detected in generated graph at node " + next}
			case white:
				if err := visit(next); err != nil {
					return err
				}
			}
		}
		color[n] = black
		return nil
	}
	for n := range adj {
		if color[n] == white {
			if err := visit(n); err != nil {
				return err
			}
		}
	}
	return nil
}

func checkReachability(adj map[string][]string, start string, nodes map[string]*NodeContent) error {
	visited := map[string]bool{start: true}
	queue := []string{start}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for _, next := range adj[n] {
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}
	for id := range nodes {
		if !visited[id] {
			return &ValidationError{Field: "nodes", Message: "node " + id + " unreachable from start"}
		}
	}
	return nil
}
