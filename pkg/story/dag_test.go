package story

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDag_Validate(t *testing.T) {
	tests := []struct {
		name    string
		build   func() *Dag
		wantErr string
	}{
		{
			name: "single node start and terminal",
			build: func() *Dag {
				d := NewDag()
				d.Nodes["n1"] = &NodeContent{ID: "n1"}
				d.StartNodeID = "n1"
				return d
			},
		},
		{
			name: "reachable chain via choices",
			build: func() *Dag {
				d := NewDag()
				d.Nodes["n1"] = &NodeContent{ID: "n1", Choices: []Choice{{ID: "c1", TargetNodeID: "n2"}}}
				d.Nodes["n2"] = &NodeContent{ID: "n2"}
				d.Edges = []Edge{{From: "n1", To: "n2", ChoiceID: "c1"}}
				d.StartNodeID = "n1"
				return d
			},
		},
		{
			name: "missing start node",
			build: func() *Dag {
				d := NewDag()
				d.Nodes["n1"] = &NodeContent{ID: "n1"}
				return d
			},
			wantErr: "start node",
		},
		{
			name: "choice targets unknown node",
			build: func() *Dag {
				d := NewDag()
				d.Nodes["n1"] = &NodeContent{ID: "n1", Choices: []Choice{{ID: "c1", TargetNodeID: "ghost"}}}
				d.StartNodeID = "n1"
				return d
			},
			wantErr: "choice target",
		},
		{
			name: "unreachable node",
			build: func() *Dag {
				d := NewDag()
				d.Nodes["n1"] = &NodeContent{ID: "n1"}
				d.Nodes["n2"] = &NodeContent{ID: "n2"}
				d.StartNodeID = "n1"
				return d
			},
			wantErr: "unreachable",
		},
		{
			name: "cycle detected",
			build: func() *Dag {
				d := NewDag()
				d.Nodes["n1"] = &NodeContent{ID: "n1", Choices: []Choice{{ID: "c1", TargetNodeID: "n2"}}}
				d.Nodes["n2"] = &NodeContent{ID: "n2", Choices: []Choice{{ID: "c2", TargetNodeID: "n1"}}}
				d.Edges = []Edge{{From: "n1", To: "n2"}, {From: "n2", To: "n1"}}
				d.StartNodeID = "n1"
				return d
			},
			wantErr: "cycle",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.build().Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDagConfig_Validate(t *testing.T) {
	ratio := 0.5
	valid := DagConfig{NodeCount: 12, Branching: 2, MaxDepth: 6, ConvergencePattern: SingleConvergence, ConvergencePointRatio: &ratio}
	require.NoError(t, valid.Validate())

	t.Run("node count out of range", func(t *testing.T) {
		cfg := valid
		cfg.NodeCount = 3
		assert.Error(t, cfg.Validate())
	})

	t.Run("ratio required but missing", func(t *testing.T) {
		cfg := valid
		cfg.ConvergencePointRatio = nil
		assert.Error(t, cfg.Validate())
	})

	t.Run("ratio present but forbidden", func(t *testing.T) {
		cfg := valid
		cfg.ConvergencePattern = PureBranching
		assert.Error(t, cfg.Validate())
	})

	t.Run("ratio out of bounds", func(t *testing.T) {
		cfg := valid
		bad := 1.5
		cfg.ConvergencePointRatio = &bad
		assert.Error(t, cfg.Validate())
	})
}
