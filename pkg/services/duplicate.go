package services

import (
	"context"
	"log/slog"
	"maps"
	"time"

	"github.com/dukex/blockflow/pkg/metrics"
	"github.com/dukex/blockflow/pkg/models"
	"github.com/dukex/blockflow/pkg/otelhelper"
	"github.com/dukex/blockflow/pkg/permissions"
	"github.com/dukex/blockflow/pkg/persistence"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// DuplicateRequest names the source workflow and the metadata of the copy. Empty
// optional fields are taken from the source.
type DuplicateRequest struct {
	SourceWorkflowID string  `json:"sourceWorkflowId" validate:"required"`
	Name             string  `json:"name"             validate:"required,max=255"`
	Description      *string `json:"description"`
	Color            string  `json:"color"            validate:"omitempty,max=32"`
	WorkspaceID      string  `json:"workspaceId"`
	FolderID         string  `json:"folderId"`
}

type DuplicateResult struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	Color         string `json:"color"`
	WorkspaceID   string `json:"workspaceId"`
	FolderID      string `json:"folderId"`
	BlocksCount   int    `json:"blocksCount"`
	EdgesCount    int    `json:"edgesCount"`
	SubflowsCount int    `json:"subflowsCount"`
}

// Duplicator deep-copies a persisted workflow graph under fresh identifiers.
type Duplicator struct {
	persistence persistence.Persistence
	gate        *permissions.Gate
	metrics     *metrics.Metrics
	logger      *slog.Logger
	newID       func() string
}

func NewDuplicator(
	logger *slog.Logger,
	persistence persistence.Persistence,
	gate *permissions.Gate,
	m *metrics.Metrics,
) *Duplicator {
	return &Duplicator{
		persistence: persistence,
		gate:        gate,
		metrics:     m,
		logger:      logger.With("component", "duplicator"),
		newID:       uuid.NewString,
	}
}

// Duplicate copies the source workflow with its blocks, edges and subflows. Access is
// checked first; the copy is then written inside one transaction, so nothing of it is
// visible unless every row was written.
func (d *Duplicator) Duplicate(ctx context.Context, userID string, req DuplicateRequest) (result *DuplicateResult, err error) {
	const op = "Duplicate"

	ctx, span := startSpan(ctx, "workflow.duplicate", attribute.String(otelhelper.WorkflowIDKey, req.SourceWorkflowID))
	defer func() {
		endSpan(span, err)

		if err != nil {
			d.metrics.RecordDuplication("failure")
		} else {
			d.metrics.RecordDuplication("success")
		}
	}()

	if err := validateStruct(op, req); err != nil {
		return nil, err
	}

	if userID == "" {
		return nil, unauthenticated(op)
	}

	source, err := loadAuthorized(ctx, d.persistence, d.gate, op, userID, req.SourceWorkflowID, models.PermissionWrite)
	if err != nil {
		return nil, err
	}

	copied, err := d.newWorkflow(ctx, userID, source, req)
	if err != nil {
		return nil, err
	}

	err = d.persistence.Transaction(ctx, func(ctx context.Context, tx persistence.Repositories) error {
		if err := tx.Workflows().InsertWorkflow(ctx, copied); err != nil {
			return dependency(op, err)
		}

		blocks, err := tx.Workflows().Blocks(ctx, source.ID)
		if err != nil {
			return dependency(op, err)
		}

		edges, err := tx.Workflows().Edges(ctx, source.ID)
		if err != nil {
			return dependency(op, err)
		}

		subflows, err := tx.Workflows().Subflows(ctx, source.ID)
		if err != nil {
			return dependency(op, err)
		}

		out := copyGraph(copied.ID, blocks, edges, subflows, d.newID)

		for _, orphan := range out.orphans {
			d.logger.WarnContext(ctx, "skipping subflow without a matching block",
				"workflow_id", source.ID, "subflow_id", orphan)
		}

		if err := tx.Workflows().InsertBlocks(ctx, copied.ID, out.blocks); err != nil {
			return dependency(op, err)
		}

		if err := tx.Workflows().InsertEdges(ctx, copied.ID, out.edges); err != nil {
			return dependency(op, err)
		}

		if err := tx.Workflows().InsertSubflows(ctx, copied.ID, out.subflows); err != nil {
			return dependency(op, err)
		}

		result = &DuplicateResult{
			ID:            copied.ID,
			Name:          copied.Name,
			Description:   copied.Description,
			Color:         copied.Color,
			WorkspaceID:   copied.WorkspaceID,
			FolderID:      copied.FolderID,
			BlocksCount:   len(out.blocks),
			EdgesCount:    len(out.edges),
			SubflowsCount: len(out.subflows),
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	d.logger.InfoContext(ctx, "workflow duplicated",
		"source_id", req.SourceWorkflowID, "workflow_id", result.ID,
		"blocks", result.BlocksCount, "edges", result.EdgesCount, "subflows", result.SubflowsCount)

	return result, nil
}

// newWorkflow builds the row of the copy. It is never deployed or published, whatever
// the source state is.
func (d *Duplicator) newWorkflow(ctx context.Context, userID string, source *models.Workflow, req DuplicateRequest) (*models.Workflow, error) {
	const op = "Duplicate"

	workspaceID := source.WorkspaceID
	if req.WorkspaceID != "" {
		workspaceID = req.WorkspaceID
	}

	if workspaceID != "" && workspaceID != source.WorkspaceID &&
		!d.gate.WorkspacePermission(ctx, userID, workspaceID).AtLeast(models.PermissionWrite) {
		return nil, forbidden(op, "caller needs write permission on the target workspace")
	}

	description := source.Description
	if req.Description != nil {
		description = *req.Description
	}

	color := source.Color
	if req.Color != "" {
		color = req.Color
	}

	folderID := source.FolderID
	if req.FolderID != "" {
		folderID = req.FolderID
	}

	now := time.Now().UTC()
	state := models.NewWorkflowState()
	state.LastSaved = now.UnixMilli()

	return &models.Workflow{
		ID:          d.newID(),
		UserID:      userID,
		WorkspaceID: workspaceID,
		FolderID:    folderID,
		Name:        req.Name,
		Description: description,
		Color:       color,
		State:       state,
		LastSynced:  now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

type graphCopy struct {
	blocks   []*models.Block
	edges    []*models.Edge
	subflows []*models.Subflow
	// orphans are source subflows whose container block was not copied.
	orphans []string
}

// copyGraph rewrites a graph under fresh ids. References are remapped through one
// id table; a reference the table does not know keeps its original value.
func copyGraph(
	workflowID string,
	blocks []*models.Block,
	edges []*models.Edge,
	subflows []*models.Subflow,
	newID func() string,
) graphCopy {
	ids := make(map[string]string, len(blocks))
	for _, block := range blocks {
		ids[block.ID] = newID()
	}

	remap := func(id string) string {
		if mapped, ok := ids[id]; ok {
			return mapped
		}

		return id
	}

	out := graphCopy{
		blocks:   make([]*models.Block, 0, len(blocks)),
		edges:    make([]*models.Edge, 0, len(edges)),
		subflows: make([]*models.Subflow, 0, len(subflows)),
	}

	for _, block := range blocks {
		copied := *block
		copied.ID = ids[block.ID]
		copied.Data = maps.Clone(block.Data)
		copied.SubBlocks = maps.Clone(block.SubBlocks)
		copied.Outputs = maps.Clone(block.Outputs)

		if block.ParentID != "" {
			copied.ParentID = remap(block.ParentID)
		}

		if parentID, ok := block.DataParentID(); ok {
			copied.Data["parentId"] = remap(parentID)
			copied.Data["extent"] = models.ExtentParent
			copied.Extent = models.ExtentParent
		}

		out.blocks = append(out.blocks, &copied)
	}

	for _, edge := range edges {
		copied := *edge
		copied.ID = newID()
		copied.Source = remap(edge.Source)
		copied.Target = remap(edge.Target)

		out.edges = append(out.edges, &copied)
	}

	for _, subflow := range subflows {
		id, ok := ids[subflow.ID]
		if !ok {
			out.orphans = append(out.orphans, subflow.ID)

			continue
		}

		copied := *subflow
		copied.ID = id
		copied.WorkflowID = workflowID
		copied.Config.ID = id
		copied.Config.Nodes = make([]string, 0, len(subflow.Config.Nodes))

		for _, node := range subflow.Config.Nodes {
			copied.Config.Nodes = append(copied.Config.Nodes, remap(node))
		}

		out.subflows = append(out.subflows, &copied)
	}

	return out
}
