package orchestrator

import (
	"fmt"

	"github.com/storyforge/storyforge/pkg/story"
)

// buildWaves layers skeletons into execution waves via Kahn's algorithm
// over each node's Prerequisites, so a node's PreviousNodeSummary input is
// always available by the time its wave runs. Grounded on the teacher's
// buildDAG/topologicalSort pair, adapted from models.Node/Edge to
// story.NodeSkeleton/Prerequisites.
func buildWaves(skeletons []story.NodeSkeleton) ([][]story.NodeSkeleton, error) {
	byID := make(map[string]story.NodeSkeleton, len(skeletons))
	children := make(map[string][]string, len(skeletons))
	inDegree := make(map[string]int, len(skeletons))

	for _, s := range skeletons {
		byID[s.ID] = s
		inDegree[s.ID] = len(s.Prerequisites)
	}
	for _, s := range skeletons {
		for _, parent := range s.Prerequisites {
			children[parent] = append(children[parent], s.ID)
		}
	}

	var waves [][]story.NodeSkeleton
	processed := 0

	for processed < len(skeletons) {
		var wave []string
		for id, degree := range inDegree {
			if degree == 0 {
				wave = append(wave, id)
			}
		}
		if len(wave) == 0 {
			return nil, fmt.Errorf("cycle detected while scheduling node waves")
		}

		waveNodes := make([]story.NodeSkeleton, 0, len(wave))
		for _, id := range wave {
			waveNodes = append(waveNodes, byID[id])
			delete(inDegree, id)
			processed++
			for _, child := range children[id] {
				inDegree[child]--
			}
		}
		waves = append(waves, waveNodes)
	}

	return waves, nil
}
