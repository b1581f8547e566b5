package services

import (
	"strings"
	"testing"
	"time"

	"github.com/dukex/blockflow/pkg/events"
	"github.com/dukex/blockflow/pkg/models"
	"github.com/dukex/blockflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func payloadOf(name string, state *models.WorkflowState) *WorkflowPayload {
	return &WorkflowPayload{Name: name, Color: "#3972F6", State: state}
}

func TestSync_WriteCreatesUpdatesAndDeletes(t *testing.T) {
	f := newFixture(t)
	sync := f.sync()

	kept := f.save(t, testutil.CreateTestWorkflow(testutil.WithWorkflowID("kept"), testutil.WithOwner("alice")))
	f.save(t, testutil.CreateTestWorkflow(testutil.WithWorkflowID("gone"), testutil.WithOwner("alice")))

	result, err := sync.Write(t.Context(), "alice", SyncRequest{
		Workflows: map[string]*WorkflowPayload{
			"kept": payloadOf("Renamed", kept.State),
			"new":  payloadOf("Fresh", testutil.ContainerState()),
		},
	})
	require.NoError(t, err)

	assert.Equal(t, &SyncResult{Success: true, Created: 1, Updated: 1, Deleted: 1}, result)

	assert.Equal(t, "Renamed", f.load(t, "kept").Name)
	assert.Nil(t, f.load(t, "gone"))

	created := f.load(t, "new")
	require.NotNil(t, created)
	assert.Equal(t, "alice", created.UserID)
	assert.Len(t, created.State.Blocks, 7)
	assert.Contains(t, created.State.Loops, "loop")

	received := f.notifier.received()
	require.Len(t, received, 1)
	assert.Equal(t, events.WorkflowsSyncedEvent, received[0].Type)
}

func TestSync_WriteIsIdempotent(t *testing.T) {
	f := newFixture(t)
	sync := f.sync()

	req := SyncRequest{
		Workflows: map[string]*WorkflowPayload{
			"wf": payloadOf("Loops", testutil.ContainerState()),
		},
	}

	first, err := sync.Write(t.Context(), "alice", req)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Created)

	second, err := sync.Write(t.Context(), "alice", req)
	require.NoError(t, err)
	assert.Equal(t, &SyncResult{Success: true}, second)

	assert.Len(t, f.notifier.received(), 1)
}

func TestSync_WriteRefusesEmptySubmission(t *testing.T) {
	f := newFixture(t)
	sync := f.sync()

	f.save(t, testutil.CreateTestWorkflow(testutil.WithWorkflowID("wf"), testutil.WithOwner("alice")))

	_, err := sync.Write(t.Context(), "alice", SyncRequest{Workflows: map[string]*WorkflowPayload{}})
	require.Error(t, err)
	assert.True(t, IsConflictError(err))

	assert.NotNil(t, f.load(t, "wf"))
}

func TestSync_WriteEmptySubmissionOnEmptyScope(t *testing.T) {
	f := newFixture(t)

	result, err := f.sync().Write(t.Context(), "alice", SyncRequest{Workflows: map[string]*WorkflowPayload{}})
	require.NoError(t, err)
	assert.Equal(t, &SyncResult{Success: true}, result)
	assert.Empty(t, f.notifier.received())
}

func TestSync_WriteInWorkspace(t *testing.T) {
	f := newFixture(t)
	workspaceID := f.workspace(t, "owner", map[string]models.Role{
		"viewer": models.RoleViewer,
		"member": models.RoleMember,
	})

	f.save(t, testutil.CreateTestWorkflow(
		testutil.WithWorkflowID("shared"),
		testutil.WithOwner("owner"),
		testutil.WithWorkspace(workspaceID),
	))

	tests := []struct {
		name     string
		userID   string
		expected *SyncResult
		newName  string
	}{
		{
			name:     "viewer change is skipped",
			userID:   "viewer",
			expected: &SyncResult{Success: true, Skipped: 1},
			newName:  "Test Workflow",
		},
		{
			name:     "member change is applied",
			userID:   "member",
			expected: &SyncResult{Success: true, Updated: 1},
			newName:  "Edited",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			current := f.load(t, "shared")

			result, err := f.sync().Write(t.Context(), tt.userID, SyncRequest{
				WorkspaceID: workspaceID,
				Workflows: map[string]*WorkflowPayload{
					"shared": payloadOf("Edited", current.State),
				},
			})
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
			assert.Equal(t, tt.newName, f.load(t, "shared").Name)
		})
	}
}

func TestSync_WriteViewerCannotDelete(t *testing.T) {
	f := newFixture(t)
	workspaceID := f.workspace(t, "owner", map[string]models.Role{"viewer": models.RoleViewer})

	f.save(t, testutil.CreateTestWorkflow(
		testutil.WithWorkflowID("a"),
		testutil.WithOwner("owner"),
		testutil.WithWorkspace(workspaceID),
	))
	b := f.save(t, testutil.CreateTestWorkflow(
		testutil.WithWorkflowID("b"),
		testutil.WithOwner("owner"),
		testutil.WithWorkspace(workspaceID),
	))

	result, err := f.sync().Write(t.Context(), "viewer", SyncRequest{
		WorkspaceID: workspaceID,
		Workflows: map[string]*WorkflowPayload{
			"b": {Name: b.Name, Description: b.Description, Color: b.Color, State: b.State},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, &SyncResult{Success: true, Skipped: 1}, result)
	assert.NotNil(t, f.load(t, "a"))
}

func TestSync_WriteScopeErrors(t *testing.T) {
	f := newFixture(t)
	workspaceID := f.workspace(t, "owner", nil)

	tests := []struct {
		name        string
		userID      string
		workspaceID string
		check       func(error) bool
	}{
		{name: "unknown workspace", userID: "owner", workspaceID: "missing", check: IsNotFoundError},
		{name: "non-member", userID: "stranger", workspaceID: workspaceID, check: IsPermissionError},
		{name: "anonymous", userID: "", workspaceID: workspaceID, check: IsUnauthenticatedError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.sync().Write(t.Context(), tt.userID, SyncRequest{
				WorkspaceID: tt.workspaceID,
				Workflows: map[string]*WorkflowPayload{
					"wf": payloadOf("New", testutil.ContainerState()),
				},
			})
			require.Error(t, err)
			assert.True(t, tt.check(err), err.Error())
		})
	}
}

func TestSync_WriteValidation(t *testing.T) {
	f := newFixture(t)

	broken := testutil.ContainerState()
	broken.Edges = append(broken.Edges, testutil.CreateTestEdge("dangling", "start", "nowhere"))

	tests := []struct {
		name   string
		userID string
		req    SyncRequest
		field  string
	}{
		{
			name:   "missing workflows",
			userID: "alice",
			req:    SyncRequest{},
			field:  "workflows",
		},
		{
			name:   "id does not match key",
			userID: "alice",
			req: SyncRequest{Workflows: map[string]*WorkflowPayload{
				"wf": {ID: "other", Name: "x", State: models.NewWorkflowState()},
			}},
			field: "workflows.wf.id",
		},
		{
			name:   "graph violation is prefixed",
			userID: "alice",
			req: SyncRequest{Workflows: map[string]*WorkflowPayload{
				"wf": payloadOf("x", broken),
			}},
			field: "workflows.wf.state.edges",
		},
		{
			name:   "validation precedes authentication",
			userID: "",
			req:    SyncRequest{},
			field:  "workflows",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.sync().Write(t.Context(), tt.userID, tt.req)
			require.Error(t, err)
			require.True(t, IsValidationError(err))

			var fields []string
			for _, fe := range FieldErrors(err) {
				fields = append(fields, fe.Field)
			}

			found := false
			for _, field := range fields {
				found = found || strings.HasPrefix(field, tt.field)
			}

			assert.True(t, found, "expected a field starting with %q, got %v", tt.field, fields)
		})
	}
}

func TestSync_WriteMigratesPublishedWorkflows(t *testing.T) {
	f := newFixture(t)

	state := testutil.ContainerState()
	state.IsPublished = true

	_, err := f.sync().Write(t.Context(), "alice", SyncRequest{
		Workflows: map[string]*WorkflowPayload{"wf": payloadOf("Published", state)},
	})
	require.NoError(t, err)

	stored := f.load(t, "wf")
	require.NotNil(t, stored.MarketplaceData)
	assert.Equal(t, &models.MarketplaceData{ID: "wf", Status: models.MarketplaceStatusOwner}, stored.MarketplaceData)
}

func TestSync_ReadAssignsUnscopedWorkflows(t *testing.T) {
	f := newFixture(t)
	workspaceID := f.workspace(t, "alice", nil)

	f.save(t, testutil.CreateTestWorkflow(testutil.WithWorkflowID("mine"), testutil.WithOwner("alice")))
	f.save(t, testutil.CreateTestWorkflow(testutil.WithWorkflowID("theirs"), testutil.WithOwner("bob")))
	f.save(t, testutil.CreateTestWorkflow(
		testutil.WithWorkflowID("scoped"),
		testutil.WithOwner("alice"),
		testutil.WithWorkspace(workspaceID),
	))

	workflows, err := f.sync().Read(t.Context(), "alice", workspaceID)
	require.NoError(t, err)
	require.Len(t, workflows, 1)
	assert.Equal(t, "scoped", workflows[0].ID)

	require.NoError(t, f.runner.Wait(t.Context()))

	assert.Equal(t, workspaceID, f.load(t, "mine").WorkspaceID)
	assert.Empty(t, f.load(t, "theirs").WorkspaceID)
}

func TestSync_ReadUnscoped(t *testing.T) {
	f := newFixture(t)

	f.save(t, testutil.CreateTestWorkflow(testutil.WithWorkflowID("mine"), testutil.WithOwner("alice")))
	f.save(t, testutil.CreateTestWorkflow(testutil.WithWorkflowID("theirs"), testutil.WithOwner("bob")))

	workflows, err := f.sync().Read(t.Context(), "alice", "")
	require.NoError(t, err)
	require.Len(t, workflows, 1)
	assert.Equal(t, "mine", workflows[0].ID)

	_, err = f.sync().Read(t.Context(), "", "")
	assert.True(t, IsUnauthenticatedError(err))
}

func TestChanged(t *testing.T) {
	existing := testutil.CreateTestWorkflow()

	same := &WorkflowPayload{
		Name:        existing.Name,
		Description: existing.Description,
		Color:       existing.Color,
		State:       existing.State,
	}
	assert.False(t, changed(existing, same))

	renamed := *same
	renamed.Name = "Other"
	assert.True(t, changed(existing, &renamed))
}

func TestChanged_IgnoresSubMicrosecondTimestamps(t *testing.T) {
	deployedAt := time.Date(2025, 3, 4, 5, 6, 7, 123456789, time.UTC)
	stored := deployedAt.Truncate(time.Microsecond)

	existing := testutil.CreateTestWorkflow()
	existing.State.IsDeployed = true
	existing.State.DeployedAt = &stored

	submitted := *existing.State
	submitted.DeployedAt = &deployedAt

	payload := &WorkflowPayload{
		Name:        existing.Name,
		Description: existing.Description,
		Color:       existing.Color,
		State:       &submitted,
	}
	assert.False(t, changed(existing, payload))

	later := deployedAt.Add(time.Millisecond)
	submitted.DeployedAt = &later
	assert.True(t, changed(existing, payload))
}

func TestSync_WriteKeepsDeletedIDsReserved(t *testing.T) {
	f := newFixture(t)

	f.save(t, testutil.CreateTestWorkflow(testutil.WithWorkflowID("wf"), testutil.WithOwner("alice")))
	require.NoError(t, f.persistence.Workflows().Delete(t.Context(), "wf"))

	req := SyncRequest{
		Workflows: map[string]*WorkflowPayload{"wf": payloadOf("Taken", testutil.ContainerState())},
	}

	result, err := f.sync().Write(t.Context(), "mallory", req)
	require.NoError(t, err)
	assert.Equal(t, &SyncResult{Success: true, Skipped: 1}, result)

	assert.Nil(t, f.load(t, "wf"))

	deleted, err := f.persistence.Workflows().GetDeleted(t.Context(), "wf")
	require.NoError(t, err)
	require.NotNil(t, deleted)
	assert.Equal(t, "alice", deleted.UserID)
	assert.NotNil(t, deleted.DeletedAt)

	result, err = f.sync().Write(t.Context(), "alice", req)
	require.NoError(t, err)
	assert.Equal(t, &SyncResult{Success: true, Created: 1}, result)

	restored := f.load(t, "wf")
	require.NotNil(t, restored)
	assert.Equal(t, "alice", restored.UserID)
}
