// Package persistence provides the storage abstraction for workflows, workspaces and copilot checkpoints.
package persistence

import (
	"context"
	"time"

	"github.com/dukex/blockflow/pkg/models"
)

// WorkflowRepository stores workflow rows and their normalized graph (blocks, edges, subflows).
// Lookups return (nil, nil) when the workflow does not exist or is soft-deleted.
type WorkflowRepository interface {
	GetByID(ctx context.Context, id string) (*models.Workflow, error)
	// GetDeleted returns the row of a soft-deleted workflow without its graph, or (nil, nil)
	// when the id is unused or still live.
	GetDeleted(ctx context.Context, id string) (*models.Workflow, error)
	ListByWorkspace(ctx context.Context, workspaceID string) ([]*models.Workflow, error)
	ListByOwner(ctx context.Context, userID string) ([]*models.Workflow, error)
	// ListUnscoped returns the owner's workflows that do not belong to any workspace.
	ListUnscoped(ctx context.Context, userID string) ([]*models.Workflow, error)

	// Save upserts the workflow row and replaces its whole graph.
	Save(ctx context.Context, workflow *models.Workflow) error
	// Delete soft-deletes the workflow.
	Delete(ctx context.Context, id string) error
	// AssignWorkspace moves every unscoped workflow of ownerID into workspaceID.
	AssignWorkspace(ctx context.Context, ownerID, workspaceID string) (int64, error)

	InsertWorkflow(ctx context.Context, workflow *models.Workflow) error
	Blocks(ctx context.Context, workflowID string) ([]*models.Block, error)
	Edges(ctx context.Context, workflowID string) ([]*models.Edge, error)
	Subflows(ctx context.Context, workflowID string) ([]*models.Subflow, error)
	InsertBlocks(ctx context.Context, workflowID string, blocks []*models.Block) error
	InsertEdges(ctx context.Context, workflowID string, edges []*models.Edge) error
	InsertSubflows(ctx context.Context, workflowID string, subflows []*models.Subflow) error
}

// WorkspaceRepository stores workspaces and their memberships.
type WorkspaceRepository interface {
	GetByID(ctx context.Context, id string) (*models.Workspace, error)
	// Create inserts the workspace and records its owner as a member with the owner role.
	Create(ctx context.Context, workspace *models.Workspace) error
	Member(ctx context.Context, workspaceID, userID string) (*models.WorkspaceMember, error)
	Members(ctx context.Context, workspaceID string) ([]*models.WorkspaceMember, error)
	// SaveMember inserts the membership or updates its role.
	SaveMember(ctx context.Context, member *models.WorkspaceMember) error
}

// CheckpointRepository stores copilot checkpoints. Checkpoints are immutable once created.
type CheckpointRepository interface {
	Create(ctx context.Context, checkpoint *models.Checkpoint) error
	// GetForUser returns the checkpoint only when it belongs to userID.
	GetForUser(ctx context.Context, id, userID string) (*models.Checkpoint, error)
	// ListByChat returns the user's checkpoints of a chat, newest first.
	ListByChat(ctx context.Context, userID, chatID string, limit, offset int) ([]*models.Checkpoint, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Repositories groups the repositories that share one connection or transaction.
type Repositories interface {
	Workflows() WorkflowRepository
	Workspaces() WorkspaceRepository
	Checkpoints() CheckpointRepository
}

// TxFunc runs inside a transaction; returning an error rolls it back.
type TxFunc func(ctx context.Context, tx Repositories) error

type Persistence interface {
	Repositories

	// Transaction runs fn atomically: either every write made through tx is committed or none is.
	Transaction(ctx context.Context, fn TxFunc) error
	HealthCheck(ctx context.Context) error

	Close(ctx context.Context) error
}
