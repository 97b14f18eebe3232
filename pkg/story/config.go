package story

import "fmt"

// ConvergencePattern names the structural pattern used to join branches
// of a generated Dag.
type ConvergencePattern string

const (
	SingleConvergence   ConvergencePattern = "single_convergence"
	MultipleConvergence ConvergencePattern = "multiple_convergence"
	EndOnly             ConvergencePattern = "end_only"
	PureBranching       ConvergencePattern = "pure_branching"
	ParallelPaths       ConvergencePattern = "parallel_paths"
)

// ratioRequired reports whether a pattern requires a ConvergencePointRatio.
func (p ConvergencePattern) ratioRequired() bool {
	switch p {
	case SingleConvergence, MultipleConvergence, EndOnly:
		return true
	default:
		return false
	}
}

// DagConfig is the derived structural configuration for the planner (C2).
type DagConfig struct {
	NodeCount             int                `json:"node_count"`
	Branching             int                `json:"branching"`
	MaxDepth               int               `json:"max_depth"`
	ConvergencePattern     ConvergencePattern `json:"convergence_pattern"`
	ConvergencePointRatio  *float64           `json:"convergence_point_ratio,omitempty"`
}

// Validate enforces the bounds and the ratio-presence invariant from §3.
func (c DagConfig) Validate() error {
	if c.NodeCount < 4 || c.NodeCount > 100 {
		return &ValidationError{Field: "node_count", Message: "must be within [4, 100]"}
	}
	if c.Branching < 1 || c.Branching > 4 {
		return &ValidationError{Field: "branching", Message: "must be within [1, 4]"}
	}
	if c.MaxDepth < 1 || c.MaxDepth > 20 {
		return &ValidationError{Field: "max_depth", Message: "must be within [1, 20]"}
	}
	required := c.ConvergencePattern.ratioRequired()
	if required && c.ConvergencePointRatio == nil {
		return &ValidationError{Field: "convergence_point_ratio", Message: fmt.Sprintf("required for pattern %s", c.ConvergencePattern)}
	}
	if !required && c.ConvergencePointRatio != nil {
		return &ValidationError{Field: "convergence_point_ratio", Message: fmt.Sprintf("must be absent for pattern %s", c.ConvergencePattern)}
	}
	if c.ConvergencePointRatio != nil && (*c.ConvergencePointRatio < 0 || *c.ConvergencePointRatio > 1) {
		return &ValidationError{Field: "convergence_point_ratio", Message: "must be within [0, 1]"}
	}
	return nil
}
