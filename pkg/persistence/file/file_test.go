package file

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dukex/blockflow/pkg/models"
	"github.com/dukex/blockflow/pkg/persistence"
	"github.com/dukex/blockflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPersistence(t *testing.T) {
	// Test with regular path
	p := NewPersistence("/tmp/test")
	fp := p.(*Persistence)
	assert.Equal(t, "/tmp/test", fp.root)

	// Test with file:// prefix
	p = NewPersistence("file:///tmp/test")
	fp = p.(*Persistence)
	assert.Equal(t, "/tmp/test", fp.root)
}

func TestPersistence_HealthCheck(t *testing.T) {
	assert.NoError(t, NewPersistence(t.TempDir()).HealthCheck(t.Context()))
	assert.Error(t, NewPersistence(filepath.Join(t.TempDir(), "missing")).HealthCheck(t.Context()))
}

func TestWorkflowRepository_SaveAndGet(t *testing.T) {
	testDir := t.TempDir()
	p := NewPersistence(testDir)
	ctx := t.Context()

	workflow := testutil.CreateTestWorkflow(
		testutil.WithWorkflowID("wf-1"),
		testutil.WithState(testutil.ContainerState()),
	)
	workflow.State.IsDeployed = true

	require.NoError(t, p.Workflows().Save(ctx, workflow))

	// Verify file was created
	_, err := os.Stat(filepath.Join(testDir, "workflows", "wf-1.json"))
	require.NoError(t, err)

	retrieved, err := p.Workflows().GetByID(ctx, "wf-1")
	require.NoError(t, err)
	require.NotNil(t, retrieved)

	assert.Equal(t, workflow.Name, retrieved.Name)
	assert.True(t, retrieved.State.IsDeployed)
	assert.Len(t, retrieved.State.Blocks, len(workflow.State.Blocks))
	assert.Equal(t, workflow.State.Loops, retrieved.State.Loops)
	assert.Equal(t, workflow.State.Parallels, retrieved.State.Parallels)

	for i, edge := range workflow.State.Edges {
		assert.Equal(t, edge.ID, retrieved.State.Edges[i].ID)
	}

	require.NoError(t, p.Workflows().Delete(ctx, "wf-1"))

	deleted, err := p.Workflows().GetByID(ctx, "wf-1")
	require.NoError(t, err)
	assert.Nil(t, deleted)

	missing, err := p.Workflows().GetByID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestWorkflowRepository_IDsAreEscaped(t *testing.T) {
	testDir := t.TempDir()
	p := NewPersistence(testDir)

	workflow := testutil.CreateTestWorkflow(testutil.WithWorkflowID("../escape"))
	require.NoError(t, p.Workflows().Save(t.Context(), workflow))

	_, err := os.Stat(filepath.Join(testDir, "escape.json"))
	assert.True(t, os.IsNotExist(err))

	listed, err := p.Workflows().ListByOwner(t.Context(), workflow.UserID)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "../escape", listed[0].ID)
}

func TestWorkflowRepository_Lists(t *testing.T) {
	p := NewPersistence(t.TempDir())
	ctx := t.Context()

	base := time.Now().UTC()

	for i, w := range []*models.Workflow{
		testutil.CreateTestWorkflow(testutil.WithWorkflowID("a"), testutil.WithWorkspace("ws-1")),
		testutil.CreateTestWorkflow(testutil.WithWorkflowID("b")),
		testutil.CreateTestWorkflow(testutil.WithWorkflowID("c")),
		testutil.CreateTestWorkflow(testutil.WithWorkflowID("d"), testutil.WithOwner("user-2")),
	} {
		w.CreatedAt = base.Add(time.Duration(i) * time.Second)
		require.NoError(t, p.Workflows().Save(ctx, w))
	}

	scoped, err := p.Workflows().ListByWorkspace(ctx, "ws-1")
	require.NoError(t, err)
	assert.Len(t, scoped, 1)

	owned, err := p.Workflows().ListByOwner(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, owned, 3)
	assert.Equal(t, "a", owned[0].ID)

	unscoped, err := p.Workflows().ListUnscoped(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, unscoped, 2)

	moved, err := p.Workflows().AssignWorkspace(ctx, "user-1", "ws-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), moved)

	scoped, err = p.Workflows().ListByWorkspace(ctx, "ws-1")
	require.NoError(t, err)
	assert.Len(t, scoped, 3)
}

func TestPersistence_TransactionCommitsAtomically(t *testing.T) {
	p := NewPersistence(t.TempDir())
	ctx := t.Context()

	workflow := testutil.CreateTestWorkflow(testutil.WithWorkflowID("copy"))

	err := p.Transaction(ctx, func(ctx context.Context, tx persistence.Repositories) error {
		if err := tx.Workflows().InsertWorkflow(ctx, workflow); err != nil {
			return err
		}

		if err := tx.Workflows().InsertBlocks(ctx, "copy", []*models.Block{testutil.CreateTestBlock("x")}); err != nil {
			return err
		}

		// Staged writes are visible inside the transaction.
		blocks, err := tx.Workflows().Blocks(ctx, "copy")
		if err != nil {
			return err
		}

		assert.Len(t, blocks, 1)

		return tx.Workflows().InsertEdges(ctx, "copy", []*models.Edge{testutil.CreateTestEdge("e", "x", "x")})
	})
	require.NoError(t, err)

	retrieved, err := p.Workflows().GetByID(ctx, "copy")
	require.NoError(t, err)
	require.NotNil(t, retrieved)
	assert.Contains(t, retrieved.State.Blocks, "x")
	assert.Len(t, retrieved.State.Edges, 1)
}

func TestPersistence_TransactionRollback(t *testing.T) {
	p := NewPersistence(t.TempDir())
	ctx := t.Context()

	boom := errors.New("boom")

	err := p.Transaction(ctx, func(ctx context.Context, tx persistence.Repositories) error {
		if err := tx.Workflows().InsertWorkflow(ctx, testutil.CreateTestWorkflow(testutil.WithWorkflowID("gone"))); err != nil {
			return err
		}

		return boom
	})
	require.ErrorIs(t, err, boom)

	retrieved, err := p.Workflows().GetByID(ctx, "gone")
	require.NoError(t, err)
	assert.Nil(t, retrieved)
}

func TestWorkflowRepository_InsertWorkflowConflict(t *testing.T) {
	p := NewPersistence(t.TempDir())
	workflow := testutil.CreateTestWorkflow()

	require.NoError(t, p.Workflows().InsertWorkflow(t.Context(), workflow))

	err := p.Workflows().InsertWorkflow(t.Context(), workflow)
	assert.True(t, persistence.IsWorkflowAlreadyExists(err))

	err = p.Workflows().InsertBlocks(t.Context(), "missing", []*models.Block{testutil.CreateTestBlock("a")})
	assert.True(t, persistence.IsWorkflowNotFound(err))
}

func TestWorkflowRepository_GetDeleted(t *testing.T) {
	p := NewPersistence(t.TempDir())
	workflow := testutil.CreateTestWorkflow(testutil.WithWorkflowID("wf"), testutil.WithOwner("alice"))

	require.NoError(t, p.Workflows().Save(t.Context(), workflow))

	deleted, err := p.Workflows().GetDeleted(t.Context(), "wf")
	require.NoError(t, err)
	assert.Nil(t, deleted)

	require.NoError(t, p.Workflows().Delete(t.Context(), "wf"))

	deleted, err = p.Workflows().GetDeleted(t.Context(), "wf")
	require.NoError(t, err)
	require.NotNil(t, deleted)
	assert.Equal(t, "alice", deleted.UserID)
	assert.NotNil(t, deleted.DeletedAt)
	assert.Empty(t, deleted.State.Blocks)

	missing, err := p.Workflows().GetDeleted(t.Context(), "missing")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestWorkspaceRepository(t *testing.T) {
	p := NewPersistence(t.TempDir())
	ctx := t.Context()

	workspace := &models.Workspace{Name: "Team", OwnerID: "owner"}
	require.NoError(t, p.Workspaces().Create(ctx, workspace))
	assert.NotEmpty(t, workspace.ID)

	owner, err := p.Workspaces().Member(ctx, workspace.ID, "owner")
	require.NoError(t, err)
	require.NotNil(t, owner)
	assert.Equal(t, models.RoleOwner, owner.Role)

	require.NoError(t, p.Workspaces().SaveMember(ctx, &models.WorkspaceMember{WorkspaceID: workspace.ID, UserID: "bob", Role: models.RoleViewer}))
	require.NoError(t, p.Workspaces().SaveMember(ctx, &models.WorkspaceMember{WorkspaceID: workspace.ID, UserID: "bob", Role: models.RoleAdmin}))

	members, err := p.Workspaces().Members(ctx, workspace.ID)
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, models.RoleAdmin, members[1].Role)

	err = p.Workspaces().SaveMember(ctx, &models.WorkspaceMember{WorkspaceID: "nope", UserID: "bob", Role: models.RoleViewer})
	assert.True(t, persistence.IsWorkspaceNotFound(err))

	missing, err := p.Workspaces().GetByID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestCheckpointRepository(t *testing.T) {
	p := NewPersistence(t.TempDir())
	ctx := t.Context()

	base := time.Now().UTC().Add(-time.Hour)

	for i := range 5 {
		require.NoError(t, p.Checkpoints().Create(ctx, &models.Checkpoint{
			UserID:        "user-1",
			WorkflowID:    "wf-1",
			ChatID:        "chat-1",
			WorkflowState: json.RawMessage(`{"blocks":{}}`),
			CreatedAt:     base.Add(time.Duration(i) * time.Minute),
		}))
	}

	require.NoError(t, p.Checkpoints().Create(ctx, &models.Checkpoint{
		UserID: "user-2", WorkflowID: "wf-1", ChatID: "chat-1", WorkflowState: json.RawMessage(`{}`),
	}))

	page, err := p.Checkpoints().ListByChat(ctx, "user-1", "chat-1", 2, 1)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.True(t, page[0].CreatedAt.After(page[1].CreatedAt))
	assert.True(t, page[0].CreatedAt.Equal(base.Add(3*time.Minute)))

	empty, err := p.Checkpoints().ListByChat(ctx, "user-1", "chat-1", 10, 10)
	require.NoError(t, err)
	assert.Empty(t, empty)

	forOther, err := p.Checkpoints().GetForUser(ctx, page[0].ID, "user-2")
	require.NoError(t, err)
	assert.Nil(t, forOther)

	mine, err := p.Checkpoints().GetForUser(ctx, page[0].ID, "user-1")
	require.NoError(t, err)
	require.NotNil(t, mine)
	assert.JSONEq(t, `{"blocks":{}}`, string(mine.WorkflowState))

	removed, err := p.Checkpoints().DeleteOlderThan(ctx, base.Add(150*time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(3), removed)
}

func TestPersistence_ConcurrentWriters(t *testing.T) {
	p := NewPersistence(t.TempDir())
	ctx := t.Context()

	var wg sync.WaitGroup

	for i := range 10 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			workflow := testutil.CreateTestWorkflow()
			workflow.Name = string(rune('a' + i))

			assert.NoError(t, p.Transaction(ctx, func(ctx context.Context, tx persistence.Repositories) error {
				return tx.Workflows().Save(ctx, workflow)
			}))
		}()
	}

	wg.Wait()

	owned, err := p.Workflows().ListByOwner(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, owned, 10)
}
