// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"time"

	"github.com/dukex/blockflow/pkg/models"
	"github.com/google/uuid"
)

// CreateTestBlock creates a test Block with default values that can be overridden.
func CreateTestBlock(id string, overrides ...func(*models.Block)) *models.Block {
	block := &models.Block{
		ID:        id,
		Type:      models.BlockTypeAgent,
		Name:      "Block " + id,
		Position:  models.Position{X: 100, Y: 200},
		Enabled:   true,
		SubBlocks: map[string]*models.SubBlock{},
		Outputs:   map[string]any{},
	}

	for _, override := range overrides {
		override(block)
	}

	return block
}

// WithBlockType sets the block type.
func WithBlockType(blockType models.BlockType) func(*models.Block) {
	return func(b *models.Block) {
		b.Type = blockType
	}
}

// WithParent nests the block inside a container, keeping the editor data in agreement.
func WithParent(parentID string) func(*models.Block) {
	return func(b *models.Block) {
		b.ParentID = parentID
		b.Extent = models.ExtentParent

		if b.Data == nil {
			b.Data = map[string]any{}
		}

		b.Data["parentId"] = parentID
		b.Data["extent"] = models.ExtentParent
	}
}

// WithPosition sets the block position.
func WithPosition(x, y float64) func(*models.Block) {
	return func(b *models.Block) {
		b.Position = models.Position{X: x, Y: y}
	}
}

// CreateTestEdge creates an edge between two blocks.
func CreateTestEdge(id, source, target string) *models.Edge {
	return &models.Edge{
		ID:           id,
		Source:       source,
		Target:       target,
		SourceHandle: "source",
		TargetHandle: "target",
	}
}

// CreateTestState creates a workflow state from blocks and edges, deriving loop and
// parallel configurations for every container block.
func CreateTestState(blocks []*models.Block, edges []*models.Edge) *models.WorkflowState {
	state := models.NewWorkflowState()

	for _, block := range blocks {
		state.Blocks[block.ID] = block
	}

	state.Edges = append(state.Edges, edges...)

	for _, block := range blocks {
		var nodes []string

		for _, member := range blocks {
			if member.ParentID == block.ID {
				nodes = append(nodes, member.ID)
			}
		}

		if nodes == nil {
			nodes = []string{}
		}

		switch block.Type {
		case models.BlockTypeLoop:
			state.Loops[block.ID] = &models.Loop{ID: block.ID, Nodes: nodes, Iterations: 5, LoopType: "for"}
		case models.BlockTypeParallel:
			state.Parallels[block.ID] = &models.Parallel{ID: block.ID, Nodes: nodes, Count: 2, ParallelType: "count"}
		}
	}

	return state
}

// CreateTestWorkflow creates a test Workflow with default values that can be overridden.
func CreateTestWorkflow(overrides ...func(*models.Workflow)) *models.Workflow {
	now := time.Now().UTC().Truncate(time.Millisecond)

	workflow := &models.Workflow{
		ID:          uuid.New().String(),
		UserID:      "user-1",
		Name:        "Test Workflow",
		Description: "A test workflow",
		Color:       "#3972F6",
		State: CreateTestState(
			[]*models.Block{
				CreateTestBlock("start", WithBlockType(models.BlockTypeStarter), WithPosition(0, 0)),
				CreateTestBlock("agent", WithPosition(400, 0)),
			},
			[]*models.Edge{CreateTestEdge("e1", "start", "agent")},
		),
		LastSynced: now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	for _, override := range overrides {
		override(workflow)
	}

	return workflow
}

// WithOwner sets the workflow owner.
func WithOwner(userID string) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.UserID = userID
	}
}

// WithWorkspace places the workflow in a workspace.
func WithWorkspace(workspaceID string) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.WorkspaceID = workspaceID
	}
}

// WithWorkflowID sets the workflow id.
func WithWorkflowID(id string) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.ID = id
	}
}

// WithState replaces the workflow graph.
func WithState(state *models.WorkflowState) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.State = state
	}
}

// ContainerState builds a graph with a loop container holding two agents and a
// parallel nested inside the loop, connected to a top-level starter.
func ContainerState() *models.WorkflowState {
	return CreateTestState(
		[]*models.Block{
			CreateTestBlock("start", WithBlockType(models.BlockTypeStarter)),
			CreateTestBlock("loop", WithBlockType(models.BlockTypeLoop)),
			CreateTestBlock("inner-a", WithParent("loop")),
			CreateTestBlock("inner-b", WithParent("loop")),
			CreateTestBlock("par", WithBlockType(models.BlockTypeParallel), WithParent("loop")),
			CreateTestBlock("deep", WithParent("par")),
			CreateTestBlock("end", WithBlockType(models.BlockTypeResponse)),
		},
		[]*models.Edge{
			CreateTestEdge("e1", "start", "loop"),
			CreateTestEdge("e2", "inner-a", "inner-b"),
			CreateTestEdge("e3", "inner-b", "par"),
			CreateTestEdge("e4", "loop", "end"),
		},
	)
}
