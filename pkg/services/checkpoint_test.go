package services

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/dukex/blockflow/pkg/events"
	"github.com/dukex/blockflow/pkg/models"
	"github.com/dukex/blockflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clock returns a now function that advances by a second on every call.
func clock(start time.Time) func() time.Time {
	current := start

	return func() time.Time {
		now := current
		current = current.Add(time.Second)

		return now
	}
}

var epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func TestCheckpoints_CreateAndList(t *testing.T) {
	f := newFixture(t)
	f.save(t, testutil.CreateTestWorkflow(testutil.WithWorkflowID("wf"), testutil.WithOwner("alice")))

	checkpoints := f.checkpoints()
	checkpoints.now = clock(epoch)

	var ids []string

	for _, message := range []string{"m1", "m2", "m3"} {
		checkpoint, err := checkpoints.Create(t.Context(), "alice", CreateCheckpointRequest{
			WorkflowID:    "wf",
			ChatID:        "chat",
			MessageID:     message,
			WorkflowState: json.RawMessage(`{"blocks":{},"edges":[]}`),
		})
		require.NoError(t, err)

		ids = append(ids, checkpoint.ID)
	}

	listed, err := checkpoints.List(t.Context(), "alice", ListCheckpointsRequest{ChatID: "chat", Limit: 2})
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, ids[2], listed[0].ID)
	assert.Equal(t, ids[1], listed[1].ID)

	rest, err := checkpoints.List(t.Context(), "alice", ListCheckpointsRequest{ChatID: "chat", Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, ids[0], rest[0].ID)

	others, err := checkpoints.List(t.Context(), "bob", ListCheckpointsRequest{ChatID: "chat"})
	require.NoError(t, err)
	assert.NotNil(t, others)
	assert.Empty(t, others)
}

func TestCheckpoints_CreateErrors(t *testing.T) {
	f := newFixture(t)
	f.save(t, testutil.CreateTestWorkflow(testutil.WithWorkflowID("wf"), testutil.WithOwner("alice")))

	tests := []struct {
		name   string
		userID string
		req    CreateCheckpointRequest
		check  func(error) bool
		field  string
	}{
		{
			name:   "missing chat",
			userID: "alice",
			req:    CreateCheckpointRequest{WorkflowID: "wf", WorkflowState: json.RawMessage(`{}`)},
			check:  IsValidationError,
			field:  "chatId",
		},
		{
			name:   "malformed state",
			userID: "alice",
			req:    CreateCheckpointRequest{WorkflowID: "wf", ChatID: "chat", WorkflowState: json.RawMessage(`{"edges":"none"}`)},
			check:  IsValidationError,
			field:  "workflowState",
		},
		{
			name:   "not an object",
			userID: "alice",
			req:    CreateCheckpointRequest{WorkflowID: "wf", ChatID: "chat", WorkflowState: json.RawMessage(`[1,2]`)},
			check:  IsValidationError,
			field:  "workflowState",
		},
		{
			name:   "foreign workflow",
			userID: "bob",
			req:    CreateCheckpointRequest{WorkflowID: "wf", ChatID: "chat", WorkflowState: json.RawMessage(`{}`)},
			check:  IsPermissionError,
		},
		{
			name:   "anonymous",
			userID: "",
			req:    CreateCheckpointRequest{WorkflowID: "wf", ChatID: "chat", WorkflowState: json.RawMessage(`{}`)},
			check:  IsUnauthenticatedError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.checkpoints().Create(t.Context(), tt.userID, tt.req)
			require.Error(t, err)
			assert.True(t, tt.check(err), err.Error())

			if tt.field != "" {
				require.NotEmpty(t, FieldErrors(err))
				assert.Equal(t, tt.field, FieldErrors(err)[0].Field)
			}
		})
	}
}

func TestCheckpoints_ListClampsPaging(t *testing.T) {
	f := newFixture(t)

	listed, err := f.checkpoints().List(t.Context(), "alice", ListCheckpointsRequest{ChatID: "chat", Limit: 1000, Offset: -5})
	require.NoError(t, err)
	assert.Empty(t, listed)

	_, err = f.checkpoints().List(t.Context(), "alice", ListCheckpointsRequest{})
	assert.True(t, IsValidationError(err))
}

func TestCheckpoints_Revert(t *testing.T) {
	deployedAt := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name       string
		state      string
		blocks     int
		edges      int
		deployed   bool
		deployedAt *time.Time
		live       bool
		published  bool
	}{
		{
			name:   "partial snapshot is completed",
			state:  `{"blocks":null,"isDeployed":"yes","deployedAt":"not a date"}`,
			blocks: 0,
			edges:  0,
		},
		{
			name:       "valid deployment is kept",
			state:      `{"blocks":{"x":{"id":"x","type":"agent","name":"X","position":{"x":1,"y":2}}},"edges":[],"isDeployed":true,"deployedAt":"2024-01-02T03:04:05Z"}`,
			blocks:     1,
			edges:      0,
			deployed:   true,
			deployedAt: &deployedAt,
		},
		{
			name:   "null edges are dropped",
			state:  `{"blocks":{"x":{"id":"x","type":"agent"},"y":{"id":"y","type":"agent"}},"edges":[null,{"id":"e","source":"x","target":"y"}]}`,
			blocks: 2,
			edges:  1,
		},
		{
			name:      "published flag survives a published snapshot",
			state:     `{"blocks":{},"edges":[],"isPublished":true}`,
			live:      true,
			published: true,
		},
		{
			name:      "live published flag is kept when the snapshot has none",
			state:     `{"blocks":{},"edges":[]}`,
			live:      true,
			published: true,
		},
		{
			name:  "snapshot can unpublish",
			state: `{"blocks":{},"edges":[],"isPublished":false}`,
			live:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			live := testutil.ContainerState()
			live.IsPublished = tt.live

			f.save(t, testutil.CreateTestWorkflow(
				testutil.WithWorkflowID("wf"),
				testutil.WithOwner("alice"),
				testutil.WithState(live),
			))

			checkpoints := f.checkpoints()
			checkpoints.now = clock(epoch)

			checkpoint, err := checkpoints.Create(t.Context(), "alice", CreateCheckpointRequest{
				WorkflowID:    "wf",
				ChatID:        "chat",
				WorkflowState: json.RawMessage(tt.state),
			})
			require.NoError(t, err)

			result, err := checkpoints.Revert(t.Context(), "alice", checkpoint.ID)
			require.NoError(t, err)

			assert.True(t, result.Success)
			assert.Equal(t, "wf", result.WorkflowID)
			assert.Equal(t, checkpoint.ID, result.Checkpoint.ID)
			assert.Equal(t, epoch.Add(time.Second), result.RevertedAt)

			stored := f.load(t, "wf")
			assert.Equal(t, "Test Workflow", stored.Name)
			assert.Len(t, stored.State.Blocks, tt.blocks)
			assert.Len(t, stored.State.Edges, tt.edges)
			assert.NotNil(t, stored.State.Edges)
			assert.Equal(t, tt.deployed, stored.State.IsDeployed)
			assert.Equal(t, tt.deployedAt, stored.State.DeployedAt)
			assert.Equal(t, tt.published, stored.State.IsPublished)
			assert.Equal(t, result.RevertedAt.UnixMilli(), stored.State.LastSaved)

			received := f.notifier.received()
			require.Len(t, received, 1)
			assert.Equal(t, events.WorkflowRevertedEvent, received[0].Type)
		})
	}
}

func TestCheckpoints_RevertErrors(t *testing.T) {
	f := newFixture(t)
	f.save(t, testutil.CreateTestWorkflow(testutil.WithWorkflowID("wf"), testutil.WithOwner("alice")))
	f.save(t, testutil.CreateTestWorkflow(testutil.WithWorkflowID("doomed"), testutil.WithOwner("alice")))

	checkpoints := f.checkpoints()

	create := func(workflowID string) string {
		checkpoint, err := checkpoints.Create(t.Context(), "alice", CreateCheckpointRequest{
			WorkflowID:    workflowID,
			ChatID:        "chat",
			WorkflowState: json.RawMessage(`{}`),
		})
		require.NoError(t, err)

		return checkpoint.ID
	}

	owned := create("wf")
	orphaned := create("doomed")
	require.NoError(t, f.persistence.Workflows().Delete(t.Context(), "doomed"))

	tests := []struct {
		name         string
		userID       string
		checkpointID string
		check        func(error) bool
	}{
		{name: "missing id", userID: "alice", checkpointID: "", check: IsValidationError},
		{name: "anonymous", userID: "", checkpointID: owned, check: IsUnauthenticatedError},
		{name: "unknown checkpoint", userID: "alice", checkpointID: "nope", check: IsNotFoundError},
		{name: "checkpoint of another user", userID: "bob", checkpointID: owned, check: IsNotFoundError},
		{name: "deleted workflow", userID: "alice", checkpointID: orphaned, check: IsNotFoundError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := checkpoints.Revert(t.Context(), tt.userID, tt.checkpointID)
			require.Error(t, err)
			assert.True(t, tt.check(err), err.Error())
		})
	}

	assert.Nil(t, f.load(t, "doomed"))
	assert.Empty(t, f.notifier.received())
}

func TestCheckpoints_Prune(t *testing.T) {
	f := newFixture(t)
	f.save(t, testutil.CreateTestWorkflow(testutil.WithWorkflowID("wf"), testutil.WithOwner("alice")))

	checkpoints := f.checkpoints()

	for _, at := range []time.Time{epoch.Add(-48 * time.Hour), epoch.Add(-time.Hour)} {
		checkpoints.now = func() time.Time { return at }

		_, err := checkpoints.Create(t.Context(), "alice", CreateCheckpointRequest{
			WorkflowID:    "wf",
			ChatID:        "chat",
			WorkflowState: json.RawMessage(`{}`),
		})
		require.NoError(t, err)
	}

	checkpoints.now = func() time.Time { return epoch }

	deleted, err := checkpoints.Prune(t.Context(), 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	remaining, err := checkpoints.List(t.Context(), "alice", ListCheckpointsRequest{ChatID: "chat"})
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}

func TestWorkflow_Status(t *testing.T) {
	deployedAt := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		state    func(*models.WorkflowState)
		market   *models.MarketplaceData
		expected DeploymentStatus
	}{
		{
			name:     "never deployed",
			state:    func(*models.WorkflowState) {},
			expected: DeploymentStatus{},
		},
		{
			name: "saved after deployment",
			state: func(s *models.WorkflowState) {
				s.IsDeployed = true
				s.DeployedAt = &deployedAt
				s.LastSaved = deployedAt.Add(time.Minute).UnixMilli()
			},
			expected: DeploymentStatus{IsDeployed: true, DeployedAt: &deployedAt, NeedsRedeployment: true},
		},
		{
			name: "saved before deployment",
			state: func(s *models.WorkflowState) {
				s.IsDeployed = true
				s.DeployedAt = &deployedAt
				s.LastSaved = deployedAt.Add(-time.Minute).UnixMilli()
			},
			expected: DeploymentStatus{IsDeployed: true, DeployedAt: &deployedAt},
		},
		{
			name:     "published through the marketplace",
			state:    func(*models.WorkflowState) {},
			market:   &models.MarketplaceData{ID: "wf", Status: models.MarketplaceStatusOwner},
			expected: DeploymentStatus{IsPublished: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			workflow := testutil.CreateTestWorkflow(testutil.WithWorkflowID("wf"), testutil.WithOwner("alice"))
			tt.state(workflow.State)
			workflow.MarketplaceData = tt.market
			f.save(t, workflow)

			status, err := NewWorkflow(f.persistence, f.gate).Status(t.Context(), "alice", "wf")
			require.NoError(t, err)
			assert.Equal(t, tt.expected.IsDeployed, status.IsDeployed)
			assert.Equal(t, tt.expected.IsPublished, status.IsPublished)
			assert.Equal(t, tt.expected.NeedsRedeployment, status.NeedsRedeployment)

			if tt.expected.DeployedAt != nil {
				require.NotNil(t, status.DeployedAt)
				assert.True(t, tt.expected.DeployedAt.Equal(*status.DeployedAt))
			}
		})
	}
}

func TestWorkflow_HealthCheck(t *testing.T) {
	f := newFixture(t)

	message, healthy := NewWorkflow(f.persistence, f.gate).HealthCheck(t.Context())
	assert.True(t, healthy)
	assert.Equal(t, "Persistence layer is healthy", message)

	message, healthy = NewWorkflow(nil, f.gate).HealthCheck(t.Context())
	assert.False(t, healthy)
	assert.Equal(t, "Persistence layer not initialized", message)
}
