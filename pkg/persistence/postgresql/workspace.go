package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/blockflow/pkg/models"
	"github.com/dukex/blockflow/pkg/persistence"
	"github.com/google/uuid"
)

// WorkspaceRepository handles workspace and membership database operations.
type WorkspaceRepository struct {
	db     Querier
	logger *slog.Logger
}

// NewWorkspaceRepository creates a new workspace repository.
func NewWorkspaceRepository(db Querier, logger *slog.Logger) *WorkspaceRepository {
	return &WorkspaceRepository{db: db, logger: logger}
}

func (r *WorkspaceRepository) GetByID(ctx context.Context, id string) (*models.Workspace, error) {
	query := `
		SELECT id, name, owner_id, created_at, updated_at
		FROM workspaces
		WHERE id = $1
	`

	var workspace models.Workspace

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&workspace.ID,
		&workspace.Name,
		&workspace.OwnerID,
		&workspace.CreatedAt,
		&workspace.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, &persistence.WorkspaceError{Op: "GetByID", WorkspaceID: id, Err: err}
	}

	return &workspace, nil
}

// Create inserts the workspace together with its owner membership.
func (r *WorkspaceRepository) Create(ctx context.Context, workspace *models.Workspace) error {
	now := time.Now().UTC()

	if workspace.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate workspace ID: %w", err)
		}

		workspace.ID = id.String()
	}

	workspace.CreatedAt = now
	workspace.UpdatedAt = now

	return withTx(ctx, r.db, func(q Querier) error {
		_, err := q.ExecContext(ctx, `
			INSERT INTO workspaces (id, name, owner_id, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5)
		`, workspace.ID, workspace.Name, workspace.OwnerID, workspace.CreatedAt, workspace.UpdatedAt)
		if err != nil {
			return &persistence.WorkspaceError{Op: "Create", WorkspaceID: workspace.ID, Err: err}
		}

		return NewWorkspaceRepository(q, r.logger).SaveMember(ctx, &models.WorkspaceMember{
			WorkspaceID: workspace.ID,
			UserID:      workspace.OwnerID,
			Role:        models.RoleOwner,
			JoinedAt:    now,
		})
	})
}

func (r *WorkspaceRepository) Member(ctx context.Context, workspaceID, userID string) (*models.WorkspaceMember, error) {
	query := `
		SELECT workspace_id, user_id, role, joined_at
		FROM workspace_members
		WHERE workspace_id = $1 AND user_id = $2
	`

	var member models.WorkspaceMember

	err := r.db.QueryRowContext(ctx, query, workspaceID, userID).Scan(
		&member.WorkspaceID,
		&member.UserID,
		&member.Role,
		&member.JoinedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, &persistence.WorkspaceError{Op: "Member", WorkspaceID: workspaceID, UserID: userID, Err: err}
	}

	return &member, nil
}

func (r *WorkspaceRepository) Members(ctx context.Context, workspaceID string) ([]*models.WorkspaceMember, error) {
	query := `
		SELECT workspace_id, user_id, role, joined_at
		FROM workspace_members
		WHERE workspace_id = $1
		ORDER BY joined_at, user_id
	`

	rows, err := r.db.QueryContext(ctx, query, workspaceID)
	if err != nil {
		return nil, &persistence.WorkspaceError{Op: "Members", WorkspaceID: workspaceID, Err: err}
	}

	defer closeRows(ctx, r.logger, rows)

	members := make([]*models.WorkspaceMember, 0)

	for rows.Next() {
		var member models.WorkspaceMember

		err := rows.Scan(&member.WorkspaceID, &member.UserID, &member.Role, &member.JoinedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workspace member: %w", err)
		}

		members = append(members, &member)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workspace members: %w", err)
	}

	return members, nil
}

// SaveMember inserts the membership or updates the role of an existing one.
func (r *WorkspaceRepository) SaveMember(ctx context.Context, member *models.WorkspaceMember) error {
	if member.JoinedAt.IsZero() {
		member.JoinedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO workspace_members (workspace_id, user_id, role, joined_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (workspace_id, user_id) DO UPDATE SET role = EXCLUDED.role
	`

	_, err := r.db.ExecContext(ctx, query, member.WorkspaceID, member.UserID, member.Role, member.JoinedAt)
	if err != nil {
		return &persistence.WorkspaceError{Op: "SaveMember", WorkspaceID: member.WorkspaceID, UserID: member.UserID, Err: err}
	}

	return nil
}
