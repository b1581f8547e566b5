package persistence_test

import (
	"errors"
	"testing"

	"github.com/dukex/blockflow/pkg/persistence"
	"github.com/stretchr/testify/assert"
)

func TestStandardizedErrors(t *testing.T) {
	t.Parallel()

	t.Run("error constants are available", func(t *testing.T) {
		assert.NotNil(t, persistence.ErrWorkflowNotFound)
		assert.NotNil(t, persistence.ErrWorkflowAlreadyExists)
		assert.NotNil(t, persistence.ErrWorkspaceNotFound)
		assert.NotNil(t, persistence.ErrCheckpointNotFound)
	})

	t.Run("error checking functions work correctly", func(t *testing.T) {
		workflowErr := persistence.NewWorkflowError("GetByID", "workflow-123", persistence.ErrWorkflowNotFound)
		workspaceErr := &persistence.WorkspaceError{Op: "GetByID", WorkspaceID: "ws-1", Err: persistence.ErrWorkspaceNotFound}
		checkpointErr := &persistence.CheckpointError{Op: "GetForUser", CheckpointID: "cp-1", Err: persistence.ErrCheckpointNotFound}

		assert.True(t, persistence.IsWorkflowNotFound(workflowErr))
		assert.True(t, persistence.IsWorkspaceNotFound(workspaceErr))
		assert.True(t, persistence.IsCheckpointNotFound(checkpointErr))
		assert.False(t, persistence.IsWorkflowAlreadyExists(workflowErr))

		assert.True(t, errors.Is(workflowErr, persistence.ErrWorkflowNotFound))
		assert.True(t, errors.Is(workspaceErr, persistence.ErrWorkspaceNotFound))
	})

	t.Run("workflow error contains context", func(t *testing.T) {
		err := persistence.NewWorkflowError("Save", "workflow-123", persistence.ErrWorkflowAlreadyExists)

		assert.Contains(t, err.Error(), "Save")
		assert.Contains(t, err.Error(), "workflow-123")
		assert.Contains(t, err.Error(), "workflow already exists")
	})

	t.Run("workspace error names the member", func(t *testing.T) {
		err := &persistence.WorkspaceError{Op: "SaveMember", WorkspaceID: "ws-1", UserID: "user-2", Err: errors.New("boom")}

		assert.Contains(t, err.Error(), "member user-2")
		assert.Contains(t, err.Error(), "workspace ws-1")
	})
}
