package services

import (
	"testing"

	"github.com/dukex/blockflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkspaces_Create(t *testing.T) {
	f := newFixture(t)
	workspaces := NewWorkspaces(f.logger, f.persistence, f.gate)

	workspace, err := workspaces.Create(t.Context(), "alice", CreateWorkspaceRequest{Name: "Team"})
	require.NoError(t, err)
	assert.NotEmpty(t, workspace.ID)
	assert.Equal(t, "alice", workspace.OwnerID)

	assert.Equal(t, models.PermissionOwner, f.gate.WorkspacePermission(t.Context(), "alice", workspace.ID))

	_, err = workspaces.Create(t.Context(), "alice", CreateWorkspaceRequest{})
	assert.True(t, IsValidationError(err))

	_, err = workspaces.Create(t.Context(), "", CreateWorkspaceRequest{Name: "Team"})
	assert.True(t, IsUnauthenticatedError(err))
}

func TestWorkspaces_AddMember(t *testing.T) {
	f := newFixture(t)
	workspaces := NewWorkspaces(f.logger, f.persistence, f.gate)

	workspaceID := f.workspace(t, "owner", map[string]models.Role{
		"admin":  models.RoleAdmin,
		"member": models.RoleMember,
	})

	tests := []struct {
		name        string
		userID      string
		workspaceID string
		req         AddMemberRequest
		check       func(error) bool
	}{
		{
			name:        "owner adds a member",
			userID:      "owner",
			workspaceID: workspaceID,
			req:         AddMemberRequest{UserID: "new", Role: models.RoleMember},
		},
		{
			name:        "admin adds a viewer",
			userID:      "admin",
			workspaceID: workspaceID,
			req:         AddMemberRequest{UserID: "watcher", Role: models.RoleViewer},
		},
		{
			name:        "member cannot add",
			userID:      "member",
			workspaceID: workspaceID,
			req:         AddMemberRequest{UserID: "other", Role: models.RoleViewer},
			check:       IsPermissionError,
		},
		{
			name:        "admin cannot grant owner",
			userID:      "admin",
			workspaceID: workspaceID,
			req:         AddMemberRequest{UserID: "other", Role: models.RoleOwner},
			check:       IsPermissionError,
		},
		{
			name:        "unknown role",
			userID:      "owner",
			workspaceID: workspaceID,
			req:         AddMemberRequest{UserID: "other", Role: "superuser"},
			check:       IsValidationError,
		},
		{
			name:        "unknown workspace",
			userID:      "owner",
			workspaceID: "missing",
			req:         AddMemberRequest{UserID: "other", Role: models.RoleViewer},
			check:       IsNotFoundError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			member, err := workspaces.AddMember(t.Context(), tt.userID, tt.workspaceID, tt.req)
			if tt.check != nil {
				require.Error(t, err)
				assert.True(t, tt.check(err), err.Error())

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.req.Role, member.Role)
			assert.Equal(t, tt.req.Role.Permission(), f.gate.WorkspacePermission(t.Context(), tt.req.UserID, tt.workspaceID))
		})
	}
}
