package file

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/dukex/blockflow/pkg/graph"
	"github.com/dukex/blockflow/pkg/models"
	"github.com/dukex/blockflow/pkg/persistence"
	"github.com/google/uuid"
)

// workflowRecord mirrors the relational layout: the workflow row with its
// deployment flags, plus the normalized graph rows.
type workflowRecord struct {
	Workflow *models.Workflow  `json:"workflow"`
	Blocks   []*models.Block   `json:"blocks"`
	Edges    []*models.Edge    `json:"edges"`
	Subflows []*models.Subflow `json:"subflows"`
}

func (rec *workflowRecord) live() bool {
	return rec != nil && rec.Workflow != nil && rec.Workflow.DeletedAt == nil
}

// assemble builds the aggregate from the row and graph rows.
func (rec *workflowRecord) assemble() *models.Workflow {
	workflow := *rec.Workflow

	state := models.NewWorkflowState()
	if rec.Workflow.State != nil {
		state.IsDeployed = rec.Workflow.State.IsDeployed
		state.DeployedAt = rec.Workflow.State.DeployedAt
		state.HasActiveWebhook = rec.Workflow.State.HasActiveWebhook
		state.IsPublished = rec.Workflow.State.IsPublished
		state.LastSaved = rec.Workflow.State.LastSaved

		for env, status := range rec.Workflow.State.DeploymentStatuses {
			state.DeploymentStatuses[env] = status
		}
	}

	for _, block := range rec.Blocks {
		state.Blocks[block.ID] = block
	}

	state.Edges = append(state.Edges, rec.Edges...)
	graph.ApplySubflows(state, rec.Subflows)

	workflow.State = state

	return &workflow
}

// rowOf returns a copy of workflow whose state carries only the row-level flags.
func rowOf(workflow *models.Workflow) *models.Workflow {
	row := *workflow
	flags := models.NewWorkflowState()

	if workflow.State != nil {
		flags.IsDeployed = workflow.State.IsDeployed
		flags.DeployedAt = workflow.State.DeployedAt
		flags.HasActiveWebhook = workflow.State.HasActiveWebhook
		flags.IsPublished = workflow.State.IsPublished
		flags.LastSaved = workflow.State.LastSaved

		for env, status := range workflow.State.DeploymentStatuses {
			flags.DeploymentStatuses[env] = status
		}
	}

	row.State = flags

	return &row
}

// WorkflowRepository handles workflow-related file operations.
type WorkflowRepository struct {
	v view
}

func (wr *WorkflowRepository) record(workflowID string) (*workflowRecord, error) {
	return readJSON[workflowRecord](wr.v, workflowsDir, workflowID)
}

func (wr *WorkflowRepository) GetByID(_ context.Context, workflowID string) (*models.Workflow, error) {
	rec, err := wr.record(workflowID)
	if err != nil {
		return nil, persistence.NewWorkflowError("GetByID", workflowID, err)
	}

	if !rec.live() {
		return nil, nil
	}

	return rec.assemble(), nil
}

func (wr *WorkflowRepository) GetDeleted(_ context.Context, workflowID string) (*models.Workflow, error) {
	rec, err := wr.record(workflowID)
	if err != nil {
		return nil, persistence.NewWorkflowError("GetDeleted", workflowID, err)
	}

	if rec == nil || rec.Workflow == nil || rec.live() {
		return nil, nil
	}

	return rowOf(rec.Workflow), nil
}

func (wr *WorkflowRepository) ListByWorkspace(_ context.Context, workspaceID string) ([]*models.Workflow, error) {
	return wr.list(func(w *models.Workflow) bool {
		return w.WorkspaceID == workspaceID
	})
}

func (wr *WorkflowRepository) ListByOwner(_ context.Context, userID string) ([]*models.Workflow, error) {
	return wr.list(func(w *models.Workflow) bool {
		return w.UserID == userID
	})
}

func (wr *WorkflowRepository) ListUnscoped(_ context.Context, userID string) ([]*models.Workflow, error) {
	return wr.list(func(w *models.Workflow) bool {
		return w.UserID == userID && w.WorkspaceID == ""
	})
}

func (wr *WorkflowRepository) list(match func(*models.Workflow) bool) ([]*models.Workflow, error) {
	ids, err := wr.v.list(workflowsDir)
	if err != nil {
		return nil, err
	}

	workflows := make([]*models.Workflow, 0)

	for _, id := range ids {
		rec, err := wr.record(id)
		if err != nil {
			return nil, fmt.Errorf("failed to load workflow %s: %w", id, err)
		}

		if rec.live() && match(rec.Workflow) {
			workflows = append(workflows, rec.assemble())
		}
	}

	slices.SortFunc(workflows, func(a, b *models.Workflow) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}

		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		default:
			return 0
		}
	})

	return workflows, nil
}

// Save writes the workflow row and replaces its graph.
func (wr *WorkflowRepository) Save(_ context.Context, workflow *models.Workflow) error {
	now := time.Now().UTC()

	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	if workflow.LastSynced.IsZero() {
		workflow.LastSynced = now
	}

	workflow.UpdatedAt = now

	if workflow.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate workflow ID: %w", err)
		}

		workflow.ID = id.String()
	}

	if workflow.State == nil {
		workflow.State = models.NewWorkflowState()
	}

	rec := &workflowRecord{
		Workflow: rowOf(workflow),
		Blocks:   make([]*models.Block, 0, len(workflow.State.Blocks)),
		Edges:    slices.Clone(workflow.State.Edges),
		Subflows: graph.SubflowsFromState(workflow.ID, workflow.State),
	}

	ids := make([]string, 0, len(workflow.State.Blocks))
	for id := range workflow.State.Blocks {
		ids = append(ids, id)
	}

	slices.Sort(ids)

	for _, id := range ids {
		rec.Blocks = append(rec.Blocks, workflow.State.Blocks[id])
	}

	if rec.Edges == nil {
		rec.Edges = []*models.Edge{}
	}

	return writeJSON(wr.v, workflowsDir, workflow.ID, rec)
}

// InsertWorkflow writes only the workflow row. Any existing file, deleted or not, is a conflict.
func (wr *WorkflowRepository) InsertWorkflow(_ context.Context, workflow *models.Workflow) error {
	existing, err := wr.record(workflow.ID)
	if err != nil {
		return persistence.NewWorkflowError("InsertWorkflow", workflow.ID, err)
	}

	if existing != nil {
		return persistence.NewWorkflowError("InsertWorkflow", workflow.ID, persistence.ErrWorkflowAlreadyExists)
	}

	rec := &workflowRecord{
		Workflow: rowOf(workflow),
		Blocks:   []*models.Block{},
		Edges:    []*models.Edge{},
		Subflows: []*models.Subflow{},
	}

	return writeJSON(wr.v, workflowsDir, workflow.ID, rec)
}

// Delete marks the workflow as deleted. Deleting a missing workflow is not an error.
func (wr *WorkflowRepository) Delete(_ context.Context, id string) error {
	rec, err := wr.record(id)
	if err != nil {
		return persistence.NewWorkflowError("Delete", id, err)
	}

	if !rec.live() {
		return nil
	}

	now := time.Now().UTC()
	rec.Workflow.DeletedAt = &now

	return writeJSON(wr.v, workflowsDir, id, rec)
}

func (wr *WorkflowRepository) AssignWorkspace(_ context.Context, ownerID, workspaceID string) (int64, error) {
	ids, err := wr.v.list(workflowsDir)
	if err != nil {
		return 0, err
	}

	var moved int64

	for _, id := range ids {
		rec, err := wr.record(id)
		if err != nil {
			return moved, fmt.Errorf("failed to load workflow %s: %w", id, err)
		}

		if !rec.live() || rec.Workflow.UserID != ownerID || rec.Workflow.WorkspaceID != "" {
			continue
		}

		rec.Workflow.WorkspaceID = workspaceID
		rec.Workflow.UpdatedAt = time.Now().UTC()

		err = writeJSON(wr.v, workflowsDir, id, rec)
		if err != nil {
			return moved, err
		}

		moved++
	}

	return moved, nil
}

func (wr *WorkflowRepository) Blocks(_ context.Context, workflowID string) ([]*models.Block, error) {
	rec, err := wr.record(workflowID)
	if err != nil || rec == nil {
		return []*models.Block{}, err
	}

	return rec.Blocks, nil
}

func (wr *WorkflowRepository) Edges(_ context.Context, workflowID string) ([]*models.Edge, error) {
	rec, err := wr.record(workflowID)
	if err != nil || rec == nil {
		return []*models.Edge{}, err
	}

	return rec.Edges, nil
}

func (wr *WorkflowRepository) Subflows(_ context.Context, workflowID string) ([]*models.Subflow, error) {
	rec, err := wr.record(workflowID)
	if err != nil || rec == nil {
		return []*models.Subflow{}, err
	}

	return rec.Subflows, nil
}

func (wr *WorkflowRepository) InsertBlocks(_ context.Context, workflowID string, blocks []*models.Block) error {
	return wr.update("InsertBlocks", workflowID, func(rec *workflowRecord) {
		rec.Blocks = append(rec.Blocks, blocks...)
	})
}

func (wr *WorkflowRepository) InsertEdges(_ context.Context, workflowID string, edges []*models.Edge) error {
	return wr.update("InsertEdges", workflowID, func(rec *workflowRecord) {
		rec.Edges = append(rec.Edges, edges...)
	})
}

func (wr *WorkflowRepository) InsertSubflows(_ context.Context, workflowID string, subflows []*models.Subflow) error {
	return wr.update("InsertSubflows", workflowID, func(rec *workflowRecord) {
		for _, subflow := range subflows {
			stored := *subflow
			stored.WorkflowID = workflowID
			rec.Subflows = append(rec.Subflows, &stored)
		}
	})
}

func (wr *WorkflowRepository) update(op, workflowID string, mutate func(*workflowRecord)) error {
	rec, err := wr.record(workflowID)
	if err != nil {
		return persistence.NewWorkflowError(op, workflowID, err)
	}

	if rec == nil {
		return persistence.NewWorkflowError(op, workflowID, persistence.ErrWorkflowNotFound)
	}

	mutate(rec)

	return writeJSON(wr.v, workflowsDir, workflowID, rec)
}
