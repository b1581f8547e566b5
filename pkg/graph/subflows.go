package graph

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/dukex/blockflow/pkg/models"
)

// SubflowsFromState converts the editor-facing loops and parallels of a state into
// persisted subflow records, sorted by id.
func SubflowsFromState(workflowID string, state *models.WorkflowState) []*models.Subflow {
	if state == nil {
		return nil
	}

	subflows := make([]*models.Subflow, 0, len(state.Loops)+len(state.Parallels))

	for _, id := range sortedKeys(state.Loops) {
		loop := state.Loops[id]
		if loop == nil {
			continue
		}

		subflows = append(subflows, &models.Subflow{
			ID:         id,
			WorkflowID: workflowID,
			Type:       models.SubflowTypeLoop,
			Config: models.SubflowConfig{
				ID:           id,
				Nodes:        slices.Clone(loop.Nodes),
				Iterations:   loop.Iterations,
				LoopType:     loop.LoopType,
				ForEachItems: loop.ForEachItems,
			},
		})
	}

	for _, id := range sortedKeys(state.Parallels) {
		parallel := state.Parallels[id]
		if parallel == nil {
			continue
		}

		subflows = append(subflows, &models.Subflow{
			ID:         id,
			WorkflowID: workflowID,
			Type:       models.SubflowTypeParallel,
			Config: models.SubflowConfig{
				ID:           id,
				Nodes:        slices.Clone(parallel.Nodes),
				Distribution: parallel.Distribution,
				Count:        parallel.Count,
				ParallelType: parallel.ParallelType,
			},
		})
	}

	slices.SortFunc(subflows, func(a, b *models.Subflow) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		default:
			return 0
		}
	})

	return subflows
}

// ApplySubflows rebuilds the loops and parallels maps of state from persisted subflow records.
func ApplySubflows(state *models.WorkflowState, subflows []*models.Subflow) {
	state.Loops = make(map[string]*models.Loop)
	state.Parallels = make(map[string]*models.Parallel)

	for _, subflow := range subflows {
		nodes := subflow.Config.Nodes
		if nodes == nil {
			nodes = []string{}
		}

		switch subflow.Type {
		case models.SubflowTypeLoop:
			state.Loops[subflow.ID] = &models.Loop{
				ID:           subflow.ID,
				Nodes:        slices.Clone(nodes),
				Iterations:   subflow.Config.Iterations,
				LoopType:     subflow.Config.LoopType,
				ForEachItems: subflow.Config.ForEachItems,
			}
		case models.SubflowTypeParallel:
			state.Parallels[subflow.ID] = &models.Parallel{
				ID:           subflow.ID,
				Nodes:        slices.Clone(nodes),
				Distribution: subflow.Config.Distribution,
				Count:        subflow.Config.Count,
				ParallelType: subflow.Config.ParallelType,
			}
		}
	}
}

// Clone returns a deep copy of state.
func Clone(state *models.WorkflowState) (*models.WorkflowState, error) {
	if state == nil {
		return nil, nil
	}

	raw, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("failed to encode workflow state: %w", err)
	}

	var clone models.WorkflowState
	if err := json.Unmarshal(raw, &clone); err != nil {
		return nil, fmt.Errorf("failed to decode workflow state: %w", err)
	}

	clone.EnsureDefaults()

	return &clone, nil
}
