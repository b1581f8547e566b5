package mocks

import (
	"context"
	"time"

	"github.com/dukex/blockflow/pkg/models"
	"github.com/dukex/blockflow/pkg/persistence"
	"github.com/stretchr/testify/mock"
)

// MockWorkflowRepository is a mock implementation of persistence.WorkflowRepository interface.
type MockWorkflowRepository struct {
	mock.Mock
}

func (m *MockWorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Workflow), args.Error(1)
}

func (m *MockWorkflowRepository) GetDeleted(ctx context.Context, id string) (*models.Workflow, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Workflow), args.Error(1)
}

func (m *MockWorkflowRepository) ListByWorkspace(ctx context.Context, workspaceID string) ([]*models.Workflow, error) {
	args := m.Called(ctx, workspaceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Workflow), args.Error(1)
}

func (m *MockWorkflowRepository) ListByOwner(ctx context.Context, userID string) ([]*models.Workflow, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Workflow), args.Error(1)
}

func (m *MockWorkflowRepository) ListUnscoped(ctx context.Context, userID string) ([]*models.Workflow, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Workflow), args.Error(1)
}

func (m *MockWorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	args := m.Called(ctx, workflow)

	return args.Error(0)
}

func (m *MockWorkflowRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)

	return args.Error(0)
}

func (m *MockWorkflowRepository) AssignWorkspace(ctx context.Context, ownerID, workspaceID string) (int64, error) {
	args := m.Called(ctx, ownerID, workspaceID)

	return args.Get(0).(int64), args.Error(1)
}

func (m *MockWorkflowRepository) InsertWorkflow(ctx context.Context, workflow *models.Workflow) error {
	args := m.Called(ctx, workflow)

	return args.Error(0)
}

func (m *MockWorkflowRepository) Blocks(ctx context.Context, workflowID string) ([]*models.Block, error) {
	args := m.Called(ctx, workflowID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Block), args.Error(1)
}

func (m *MockWorkflowRepository) Edges(ctx context.Context, workflowID string) ([]*models.Edge, error) {
	args := m.Called(ctx, workflowID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Edge), args.Error(1)
}

func (m *MockWorkflowRepository) Subflows(ctx context.Context, workflowID string) ([]*models.Subflow, error) {
	args := m.Called(ctx, workflowID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Subflow), args.Error(1)
}

func (m *MockWorkflowRepository) InsertBlocks(ctx context.Context, workflowID string, blocks []*models.Block) error {
	args := m.Called(ctx, workflowID, blocks)

	return args.Error(0)
}

func (m *MockWorkflowRepository) InsertEdges(ctx context.Context, workflowID string, edges []*models.Edge) error {
	args := m.Called(ctx, workflowID, edges)

	return args.Error(0)
}

func (m *MockWorkflowRepository) InsertSubflows(ctx context.Context, workflowID string, subflows []*models.Subflow) error {
	args := m.Called(ctx, workflowID, subflows)

	return args.Error(0)
}

// MockWorkspaceRepository is a mock implementation of persistence.WorkspaceRepository interface.
type MockWorkspaceRepository struct {
	mock.Mock
}

func (m *MockWorkspaceRepository) GetByID(ctx context.Context, id string) (*models.Workspace, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Workspace), args.Error(1)
}

func (m *MockWorkspaceRepository) Create(ctx context.Context, workspace *models.Workspace) error {
	args := m.Called(ctx, workspace)

	return args.Error(0)
}

func (m *MockWorkspaceRepository) Member(ctx context.Context, workspaceID, userID string) (*models.WorkspaceMember, error) {
	args := m.Called(ctx, workspaceID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.WorkspaceMember), args.Error(1)
}

func (m *MockWorkspaceRepository) Members(ctx context.Context, workspaceID string) ([]*models.WorkspaceMember, error) {
	args := m.Called(ctx, workspaceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.WorkspaceMember), args.Error(1)
}

func (m *MockWorkspaceRepository) SaveMember(ctx context.Context, member *models.WorkspaceMember) error {
	args := m.Called(ctx, member)

	return args.Error(0)
}

// MockCheckpointRepository is a mock implementation of persistence.CheckpointRepository interface.
type MockCheckpointRepository struct {
	mock.Mock
}

func (m *MockCheckpointRepository) Create(ctx context.Context, checkpoint *models.Checkpoint) error {
	args := m.Called(ctx, checkpoint)

	return args.Error(0)
}

func (m *MockCheckpointRepository) GetForUser(ctx context.Context, id, userID string) (*models.Checkpoint, error) {
	args := m.Called(ctx, id, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Checkpoint), args.Error(1)
}

func (m *MockCheckpointRepository) ListByChat(ctx context.Context, userID, chatID string, limit, offset int) ([]*models.Checkpoint, error) {
	args := m.Called(ctx, userID, chatID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Checkpoint), args.Error(1)
}

func (m *MockCheckpointRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)

	return args.Get(0).(int64), args.Error(1)
}

// MockPersistence is a mock implementation of persistence.Persistence interface.
// Transaction runs the function directly against the same mock repositories.
type MockPersistence struct {
	mock.Mock

	workflowRepo   *MockWorkflowRepository
	workspaceRepo  *MockWorkspaceRepository
	checkpointRepo *MockCheckpointRepository
}

// NewMockPersistence creates a new MockPersistence with all mock repositories.
func NewMockPersistence() *MockPersistence {
	return &MockPersistence{
		workflowRepo:   &MockWorkflowRepository{},
		workspaceRepo:  &MockWorkspaceRepository{},
		checkpointRepo: &MockCheckpointRepository{},
	}
}

// GetMockWorkflowRepository returns the underlying mock workflow repository for setting up expectations.
func (m *MockPersistence) GetMockWorkflowRepository() *MockWorkflowRepository {
	return m.workflowRepo
}

// GetMockWorkspaceRepository returns the underlying mock workspace repository for setting up expectations.
func (m *MockPersistence) GetMockWorkspaceRepository() *MockWorkspaceRepository {
	return m.workspaceRepo
}

// GetMockCheckpointRepository returns the underlying mock checkpoint repository for setting up expectations.
func (m *MockPersistence) GetMockCheckpointRepository() *MockCheckpointRepository {
	return m.checkpointRepo
}

func (m *MockPersistence) Workflows() persistence.WorkflowRepository {
	return m.workflowRepo
}

func (m *MockPersistence) Workspaces() persistence.WorkspaceRepository {
	return m.workspaceRepo
}

func (m *MockPersistence) Checkpoints() persistence.CheckpointRepository {
	return m.checkpointRepo
}

func (m *MockPersistence) Transaction(ctx context.Context, fn persistence.TxFunc) error {
	return fn(ctx, m)
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
