package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/dukex/blockflow/pkg/graph"
	"github.com/dukex/blockflow/pkg/models"
	"github.com/dukex/blockflow/pkg/persistence"
	"github.com/google/uuid"
)

const workflowColumns = `
			id
		  , user_id
		  , workspace_id
		  , folder_id
		  , name
		  , description
		  , color
		  , marketplace_data
		  , is_deployed
		  , deployed_at
		  , deployment_statuses
		  , has_active_webhook
		  , is_published
		  , last_saved
		  , last_synced
		  , created_at
		  , updated_at
		  , deleted_at`

// WorkflowRepository handles workflow-related database operations.
type WorkflowRepository struct {
	db     Querier
	logger *slog.Logger
}

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository(db Querier, logger *slog.Logger) *WorkflowRepository {
	return &WorkflowRepository{db: db, logger: logger}
}

func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	query := `SELECT ` + workflowColumns + `
		FROM workflows
		WHERE id = $1 AND deleted_at IS NULL
	`

	row := r.db.QueryRowContext(ctx, query, id)

	workflow, err := r.scanWorkflowBase(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan workflow: %w", err)
	}

	if err := r.loadGraph(ctx, workflow); err != nil {
		return nil, persistence.NewWorkflowError("GetByID", id, err)
	}

	return workflow, nil
}

func (r *WorkflowRepository) GetDeleted(ctx context.Context, id string) (*models.Workflow, error) {
	query := `SELECT ` + workflowColumns + `
		FROM workflows
		WHERE id = $1 AND deleted_at IS NOT NULL
	`

	workflow, err := r.scanWorkflowBase(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan deleted workflow: %w", err)
	}

	return workflow, nil
}

// ListByWorkspace returns the live workflows of a workspace, oldest first.
func (r *WorkflowRepository) ListByWorkspace(ctx context.Context, workspaceID string) ([]*models.Workflow, error) {
	return r.list(ctx, `WHERE workspace_id = $1 AND deleted_at IS NULL`, workspaceID)
}

// ListByOwner returns every live workflow owned by userID, oldest first.
func (r *WorkflowRepository) ListByOwner(ctx context.Context, userID string) ([]*models.Workflow, error) {
	return r.list(ctx, `WHERE user_id = $1 AND deleted_at IS NULL`, userID)
}

func (r *WorkflowRepository) ListUnscoped(ctx context.Context, userID string) ([]*models.Workflow, error) {
	return r.list(ctx, `WHERE user_id = $1 AND workspace_id IS NULL AND deleted_at IS NULL`, userID)
}

func (r *WorkflowRepository) list(ctx context.Context, where string, args ...any) ([]*models.Workflow, error) {
	query := `SELECT ` + workflowColumns + `
		FROM workflows
		` + where + `
		ORDER BY created_at, id
	`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}

	workflows := make([]*models.Workflow, 0)

	for rows.Next() {
		workflow, err := r.scanWorkflowBase(rows)
		if err != nil {
			closeRows(ctx, r.logger, rows)

			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}

		workflows = append(workflows, workflow)
	}

	err = rows.Err()

	closeRows(ctx, r.logger, rows)

	if err != nil {
		return nil, fmt.Errorf("error iterating workflows: %w", err)
	}

	// Graphs are loaded after the cursor is closed: a transaction holds a single connection.
	for _, workflow := range workflows {
		if err := r.loadGraph(ctx, workflow); err != nil {
			return nil, persistence.NewWorkflowError("List", workflow.ID, err)
		}
	}

	return workflows, nil
}

// Save upserts the workflow row and replaces its blocks, edges and subflows atomically.
func (r *WorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
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

	return withTx(ctx, r.db, func(q Querier) error {
		args, err := workflowArgs(workflow)
		if err != nil {
			return err
		}

		query := `
			INSERT INTO workflows (` + workflowColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
			ON CONFLICT (id) DO UPDATE SET
				user_id = EXCLUDED.user_id,
				workspace_id = EXCLUDED.workspace_id,
				folder_id = EXCLUDED.folder_id,
				name = EXCLUDED.name,
				description = EXCLUDED.description,
				color = EXCLUDED.color,
				marketplace_data = EXCLUDED.marketplace_data,
				is_deployed = EXCLUDED.is_deployed,
				deployed_at = EXCLUDED.deployed_at,
				deployment_statuses = EXCLUDED.deployment_statuses,
				has_active_webhook = EXCLUDED.has_active_webhook,
				is_published = EXCLUDED.is_published,
				last_saved = EXCLUDED.last_saved,
				last_synced = EXCLUDED.last_synced,
				updated_at = EXCLUDED.updated_at,
				deleted_at = EXCLUDED.deleted_at
		`

		_, err = q.ExecContext(ctx, query, args...)
		if err != nil {
			return persistence.NewWorkflowError("Save", workflow.ID, err)
		}

		for _, table := range []string{"workflow_edges", "workflow_subflows", "workflow_blocks"} {
			_, err = q.ExecContext(ctx, "DELETE FROM "+table+" WHERE workflow_id = $1", workflow.ID)
			if err != nil {
				return fmt.Errorf("failed to delete existing %s: %w", table, err)
			}
		}

		tx := NewWorkflowRepository(q, r.logger)
		state := workflow.State

		blocks := make([]*models.Block, 0, len(state.Blocks))
		for _, id := range sortedBlockIDs(state.Blocks) {
			blocks = append(blocks, state.Blocks[id])
		}

		if err := tx.InsertBlocks(ctx, workflow.ID, blocks); err != nil {
			return err
		}

		if err := tx.InsertEdges(ctx, workflow.ID, state.Edges); err != nil {
			return err
		}

		return tx.InsertSubflows(ctx, workflow.ID, graph.SubflowsFromState(workflow.ID, state))
	})
}

// InsertWorkflow inserts only the workflow row. An existing id yields persistence.ErrWorkflowAlreadyExists.
func (r *WorkflowRepository) InsertWorkflow(ctx context.Context, workflow *models.Workflow) error {
	if workflow.State == nil {
		workflow.State = models.NewWorkflowState()
	}

	args, err := workflowArgs(workflow)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO workflows (` + workflowColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`

	_, err = r.db.ExecContext(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return persistence.NewWorkflowError("InsertWorkflow", workflow.ID, persistence.ErrWorkflowAlreadyExists)
		}

		return persistence.NewWorkflowError("InsertWorkflow", workflow.ID, err)
	}

	return nil
}

// Delete soft deletes a workflow by setting deleted_at timestamp.
func (r *WorkflowRepository) Delete(ctx context.Context, id string) error {
	query := `UPDATE workflows SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL`

	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return persistence.NewWorkflowError("Delete", id, err)
	}

	return nil
}

func (r *WorkflowRepository) AssignWorkspace(ctx context.Context, ownerID, workspaceID string) (int64, error) {
	query := `
		UPDATE workflows SET workspace_id = $2, updated_at = NOW()
		WHERE user_id = $1 AND workspace_id IS NULL AND deleted_at IS NULL
	`

	result, err := r.db.ExecContext(ctx, query, ownerID, workspaceID)
	if err != nil {
		return 0, fmt.Errorf("failed to assign workflows to workspace %s: %w", workspaceID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected, nil
}

func (r *WorkflowRepository) Blocks(ctx context.Context, workflowID string) ([]*models.Block, error) {
	query := `
		SELECT id, type, name, position_x, position_y, parent_id, extent, enabled,
			horizontal_handles, is_wide, height, data, sub_blocks, outputs
		FROM workflow_blocks
		WHERE workflow_id = $1
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow blocks: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	blocks := make([]*models.Block, 0)

	for rows.Next() {
		var (
			block                             models.Block
			parentID, extent                  sql.NullString
			dataJSON, subBlocksJSON, outsJSON []byte
		)

		err := rows.Scan(
			&block.ID,
			&block.Type,
			&block.Name,
			&block.Position.X,
			&block.Position.Y,
			&parentID,
			&extent,
			&block.Enabled,
			&block.HorizontalHandle,
			&block.IsWide,
			&block.Height,
			&dataJSON,
			&subBlocksJSON,
			&outsJSON,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan block: %w", err)
		}

		block.ParentID = parentID.String
		block.Extent = extent.String

		if err := unmarshalColumn(dataJSON, &block.Data); err != nil {
			return nil, fmt.Errorf("block %s data: %w", block.ID, err)
		}

		if err := unmarshalColumn(subBlocksJSON, &block.SubBlocks); err != nil {
			return nil, fmt.Errorf("block %s sub-blocks: %w", block.ID, err)
		}

		if err := unmarshalColumn(outsJSON, &block.Outputs); err != nil {
			return nil, fmt.Errorf("block %s outputs: %w", block.ID, err)
		}

		blocks = append(blocks, &block)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating blocks: %w", err)
	}

	return blocks, nil
}

// Edges returns the workflow's edges in their stored order.
func (r *WorkflowRepository) Edges(ctx context.Context, workflowID string) ([]*models.Edge, error) {
	query := `
		SELECT id, source_block_id, target_block_id, source_handle, target_handle, type
		FROM workflow_edges
		WHERE workflow_id = $1
		ORDER BY ordinal
	`

	rows, err := r.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow edges: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	edges := make([]*models.Edge, 0)

	for rows.Next() {
		var (
			edge                             models.Edge
			sourceHandle, targetHandle, kind sql.NullString
		)

		err := rows.Scan(&edge.ID, &edge.Source, &edge.Target, &sourceHandle, &targetHandle, &kind)
		if err != nil {
			return nil, fmt.Errorf("failed to scan edge: %w", err)
		}

		edge.SourceHandle = sourceHandle.String
		edge.TargetHandle = targetHandle.String
		edge.Type = kind.String

		edges = append(edges, &edge)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating edges: %w", err)
	}

	return edges, nil
}

func (r *WorkflowRepository) Subflows(ctx context.Context, workflowID string) ([]*models.Subflow, error) {
	query := `
		SELECT id, type, config
		FROM workflow_subflows
		WHERE workflow_id = $1
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow subflows: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	subflows := make([]*models.Subflow, 0)

	for rows.Next() {
		var (
			subflow    models.Subflow
			configJSON []byte
		)

		err := rows.Scan(&subflow.ID, &subflow.Type, &configJSON)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subflow: %w", err)
		}

		if err := unmarshalColumn(configJSON, &subflow.Config); err != nil {
			return nil, fmt.Errorf("subflow %s config: %w", subflow.ID, err)
		}

		subflow.WorkflowID = workflowID
		subflows = append(subflows, &subflow)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating subflows: %w", err)
	}

	return subflows, nil
}

func (r *WorkflowRepository) InsertBlocks(ctx context.Context, workflowID string, blocks []*models.Block) error {
	query := `
		INSERT INTO workflow_blocks (workflow_id, id, type, name, position_x, position_y, parent_id, extent,
			enabled, horizontal_handles, is_wide, height, data, sub_blocks, outputs)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	for _, block := range blocks {
		dataJSON, err := marshalColumn(block.Data)
		if err != nil {
			return fmt.Errorf("failed to marshal block %s data: %w", block.ID, err)
		}

		subBlocksJSON, err := marshalColumn(block.SubBlocks)
		if err != nil {
			return fmt.Errorf("failed to marshal block %s sub-blocks: %w", block.ID, err)
		}

		outputsJSON, err := marshalColumn(block.Outputs)
		if err != nil {
			return fmt.Errorf("failed to marshal block %s outputs: %w", block.ID, err)
		}

		_, err = r.db.ExecContext(ctx, query,
			workflowID,
			block.ID,
			block.Type,
			block.Name,
			block.Position.X,
			block.Position.Y,
			nullString(block.ParentID),
			nullString(block.Extent),
			block.Enabled,
			block.HorizontalHandle,
			block.IsWide,
			block.Height,
			dataJSON,
			subBlocksJSON,
			outputsJSON,
		)
		if err != nil {
			return fmt.Errorf("failed to save block %s: %w", block.ID, err)
		}
	}

	return nil
}

func (r *WorkflowRepository) InsertEdges(ctx context.Context, workflowID string, edges []*models.Edge) error {
	query := `
		INSERT INTO workflow_edges (workflow_id, id, ordinal, source_block_id, target_block_id, source_handle, target_handle, type)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	for ordinal, edge := range edges {
		_, err := r.db.ExecContext(ctx, query,
			workflowID,
			edge.ID,
			ordinal,
			edge.Source,
			edge.Target,
			nullString(edge.SourceHandle),
			nullString(edge.TargetHandle),
			nullString(edge.Type),
		)
		if err != nil {
			return fmt.Errorf("failed to save edge %s: %w", edge.ID, err)
		}
	}

	return nil
}

func (r *WorkflowRepository) InsertSubflows(ctx context.Context, workflowID string, subflows []*models.Subflow) error {
	query := `
		INSERT INTO workflow_subflows (workflow_id, id, type, config)
		VALUES ($1, $2, $3, $4)
	`

	for _, subflow := range subflows {
		configJSON, err := json.Marshal(subflow.Config)
		if err != nil {
			return fmt.Errorf("failed to marshal subflow %s config: %w", subflow.ID, err)
		}

		_, err = r.db.ExecContext(ctx, query, workflowID, subflow.ID, subflow.Type, configJSON)
		if err != nil {
			return fmt.Errorf("failed to save subflow %s: %w", subflow.ID, err)
		}
	}

	return nil
}

func (r *WorkflowRepository) loadGraph(ctx context.Context, workflow *models.Workflow) error {
	blocks, err := r.Blocks(ctx, workflow.ID)
	if err != nil {
		return err
	}

	edges, err := r.Edges(ctx, workflow.ID)
	if err != nil {
		return err
	}

	subflows, err := r.Subflows(ctx, workflow.ID)
	if err != nil {
		return err
	}

	for _, block := range blocks {
		workflow.State.Blocks[block.ID] = block
	}

	workflow.State.Edges = edges
	graph.ApplySubflows(workflow.State, subflows)

	return nil
}

func (r *WorkflowRepository) scanWorkflowBase(scanner interface {
	Scan(dest ...any) error
}) (*models.Workflow, error) {
	var (
		workflow                  models.Workflow
		workspaceID, folderID     sql.NullString
		marketplaceJSON, statuses []byte
	)

	state := models.NewWorkflowState()

	err := scanner.Scan(
		&workflow.ID,
		&workflow.UserID,
		&workspaceID,
		&folderID,
		&workflow.Name,
		&workflow.Description,
		&workflow.Color,
		&marketplaceJSON,
		&state.IsDeployed,
		&state.DeployedAt,
		&statuses,
		&state.HasActiveWebhook,
		&state.IsPublished,
		&state.LastSaved,
		&workflow.LastSynced,
		&workflow.CreatedAt,
		&workflow.UpdatedAt,
		&workflow.DeletedAt,
	)
	if err != nil {
		return nil, err
	}

	workflow.WorkspaceID = workspaceID.String
	workflow.FolderID = folderID.String
	workflow.State = state

	if marketplaceJSON != nil {
		if err := json.Unmarshal(marketplaceJSON, &workflow.MarketplaceData); err != nil {
			return nil, fmt.Errorf("%w: marketplace data: %w", persistence.ErrCorruptGraph, err)
		}
	}

	if err := unmarshalColumn(statuses, &state.DeploymentStatuses); err != nil {
		return nil, fmt.Errorf("deployment statuses: %w", err)
	}

	state.EnsureDefaults()

	return &workflow, nil
}

func workflowArgs(workflow *models.Workflow) ([]any, error) {
	state := workflow.State

	var marketplace any

	if workflow.MarketplaceData != nil {
		marketplaceJSON, err := json.Marshal(workflow.MarketplaceData)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal marketplace data: %w", err)
		}

		marketplace = marketplaceJSON
	}

	statusesJSON, err := marshalColumn(state.DeploymentStatuses)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal deployment statuses: %w", err)
	}

	return []any{
		workflow.ID,
		workflow.UserID,
		nullString(workflow.WorkspaceID),
		nullString(workflow.FolderID),
		workflow.Name,
		workflow.Description,
		workflow.Color,
		marketplace,
		state.IsDeployed,
		state.DeployedAt,
		statusesJSON,
		state.HasActiveWebhook,
		state.IsPublished,
		state.LastSaved,
		workflow.LastSynced,
		workflow.CreatedAt,
		workflow.UpdatedAt,
		workflow.DeletedAt,
	}, nil
}

func marshalColumn(value any) ([]byte, error) {
	return json.Marshal(value)
}

func unmarshalColumn[T any](raw []byte, target *T) error {
	if raw == nil {
		return nil
	}

	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("%w: %w", persistence.ErrCorruptGraph, err)
	}

	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func sortedBlockIDs(blocks map[string]*models.Block) []string {
	ids := make([]string, 0, len(blocks))
	for id := range blocks {
		ids = append(ids, id)
	}

	slices.Sort(ids)

	return ids
}
