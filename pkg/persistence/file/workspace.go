package file

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/dukex/blockflow/pkg/models"
	"github.com/dukex/blockflow/pkg/persistence"
	"github.com/google/uuid"
)

type workspaceRecord struct {
	Workspace *models.Workspace         `json:"workspace"`
	Members   []*models.WorkspaceMember `json:"members"`
}

// WorkspaceRepository handles workspace and membership file operations.
type WorkspaceRepository struct {
	v view
}

func (r *WorkspaceRepository) record(id string) (*workspaceRecord, error) {
	rec, err := readJSON[workspaceRecord](r.v, workspacesDir, id)
	if err != nil {
		return nil, &persistence.WorkspaceError{Op: "Read", WorkspaceID: id, Err: err}
	}

	return rec, nil
}

func (r *WorkspaceRepository) GetByID(_ context.Context, id string) (*models.Workspace, error) {
	rec, err := r.record(id)
	if err != nil || rec == nil {
		return nil, err
	}

	return rec.Workspace, nil
}

func (r *WorkspaceRepository) Create(_ context.Context, workspace *models.Workspace) error {
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

	rec := &workspaceRecord{
		Workspace: workspace,
		Members: []*models.WorkspaceMember{{
			WorkspaceID: workspace.ID,
			UserID:      workspace.OwnerID,
			Role:        models.RoleOwner,
			JoinedAt:    now,
		}},
	}

	return writeJSON(r.v, workspacesDir, workspace.ID, rec)
}

func (r *WorkspaceRepository) Member(_ context.Context, workspaceID, userID string) (*models.WorkspaceMember, error) {
	rec, err := r.record(workspaceID)
	if err != nil || rec == nil {
		return nil, err
	}

	for _, member := range rec.Members {
		if member.UserID == userID {
			return member, nil
		}
	}

	return nil, nil
}

func (r *WorkspaceRepository) Members(_ context.Context, workspaceID string) ([]*models.WorkspaceMember, error) {
	rec, err := r.record(workspaceID)
	if err != nil {
		return nil, err
	}

	if rec == nil {
		return []*models.WorkspaceMember{}, nil
	}

	members := slices.Clone(rec.Members)
	slices.SortFunc(members, func(a, b *models.WorkspaceMember) int {
		if c := a.JoinedAt.Compare(b.JoinedAt); c != 0 {
			return c
		}

		switch {
		case a.UserID < b.UserID:
			return -1
		case a.UserID > b.UserID:
			return 1
		default:
			return 0
		}
	})

	return members, nil
}

func (r *WorkspaceRepository) SaveMember(_ context.Context, member *models.WorkspaceMember) error {
	rec, err := r.record(member.WorkspaceID)
	if err != nil {
		return err
	}

	if rec == nil {
		return &persistence.WorkspaceError{Op: "SaveMember", WorkspaceID: member.WorkspaceID, UserID: member.UserID, Err: persistence.ErrWorkspaceNotFound}
	}

	if member.JoinedAt.IsZero() {
		member.JoinedAt = time.Now().UTC()
	}

	index := slices.IndexFunc(rec.Members, func(m *models.WorkspaceMember) bool {
		return m.UserID == member.UserID
	})

	if index >= 0 {
		rec.Members[index].Role = member.Role
	} else {
		rec.Members = append(rec.Members, member)
	}

	return writeJSON(r.v, workspacesDir, member.WorkspaceID, rec)
}
