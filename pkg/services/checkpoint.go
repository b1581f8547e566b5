package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/dukex/blockflow/pkg/events"
	"github.com/dukex/blockflow/pkg/graph"
	"github.com/dukex/blockflow/pkg/metrics"
	"github.com/dukex/blockflow/pkg/models"
	"github.com/dukex/blockflow/pkg/otelhelper"
	"github.com/dukex/blockflow/pkg/permissions"
	"github.com/dukex/blockflow/pkg/persistence"
	"github.com/dukex/blockflow/pkg/realtime"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

const (
	DefaultCheckpointLimit = 10
	MaxCheckpointLimit     = 100
)

type CreateCheckpointRequest struct {
	WorkflowID    string          `json:"workflowId"    validate:"required"`
	ChatID        string          `json:"chatId"        validate:"required"`
	MessageID     string          `json:"messageId"`
	WorkflowState json.RawMessage `json:"workflowState" validate:"required"`
}

type ListCheckpointsRequest struct {
	ChatID string `json:"chatId" validate:"required"`
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
}

type RevertedCheckpoint struct {
	ID            string                `json:"id"`
	WorkflowState *models.WorkflowState `json:"workflowState"`
}

type RevertResult struct {
	Success      bool               `json:"success"`
	WorkflowID   string             `json:"workflowId"`
	CheckpointID string             `json:"checkpointId"`
	RevertedAt   time.Time          `json:"revertedAt"`
	Checkpoint   RevertedCheckpoint `json:"checkpoint"`
}

// Checkpoints captures workflow snapshots for copilot chats and restores them.
type Checkpoints struct {
	persistence persistence.Persistence
	gate        *permissions.Gate
	notifier    realtime.Notifier
	metrics     *metrics.Metrics
	logger      *slog.Logger
	now         func() time.Time
}

func NewCheckpoints(
	logger *slog.Logger,
	persistence persistence.Persistence,
	gate *permissions.Gate,
	notifier realtime.Notifier,
	m *metrics.Metrics,
) *Checkpoints {
	return &Checkpoints{
		persistence: persistence,
		gate:        gate,
		notifier:    notifier,
		metrics:     m,
		logger:      logger.With("component", "checkpoints"),
		now:         time.Now,
	}
}

// Create stores a snapshot of a workflow the caller may edit. The snapshot only has to
// be shaped like a workflow state; it may describe a graph that is still being built.
func (c *Checkpoints) Create(ctx context.Context, userID string, req CreateCheckpointRequest) (checkpoint *models.Checkpoint, err error) {
	const op = "CreateCheckpoint"

	ctx, span := startSpan(ctx, "checkpoint.create",
		attribute.String(otelhelper.WorkflowIDKey, req.WorkflowID),
		attribute.String(otelhelper.ChatIDKey, req.ChatID))
	defer func() { endSpan(span, err) }()

	if err := validateStruct(op, req); err != nil {
		return nil, err
	}

	if err := graph.CheckStateShape(req.WorkflowState); err != nil {
		return nil, NewValidationError(op, "invalid_workflow_state", "workflow state is malformed",
			FieldError{Field: "workflowState", Message: err.Error()})
	}

	if _, err := loadAuthorized(ctx, c.persistence, c.gate, op, userID, req.WorkflowID, models.PermissionWrite); err != nil {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, dependency(op, err)
	}

	now := c.now().UTC()
	checkpoint = &models.Checkpoint{
		ID:            id.String(),
		UserID:        userID,
		WorkflowID:    req.WorkflowID,
		ChatID:        req.ChatID,
		MessageID:     req.MessageID,
		WorkflowState: req.WorkflowState,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := c.persistence.Checkpoints().Create(ctx, checkpoint); err != nil {
		return nil, dependency(op, err)
	}

	return checkpoint, nil
}

// List returns the caller's checkpoints of a chat, newest first.
func (c *Checkpoints) List(ctx context.Context, userID string, req ListCheckpointsRequest) (checkpoints []*models.Checkpoint, err error) {
	const op = "ListCheckpoints"

	ctx, span := startSpan(ctx, "checkpoint.list", attribute.String(otelhelper.ChatIDKey, req.ChatID))
	defer func() { endSpan(span, err) }()

	if err := validateStruct(op, req); err != nil {
		return nil, err
	}

	if userID == "" {
		return nil, unauthenticated(op)
	}

	if req.Limit <= 0 {
		req.Limit = DefaultCheckpointLimit
	}

	if req.Limit > MaxCheckpointLimit {
		req.Limit = MaxCheckpointLimit
	}

	if req.Offset < 0 {
		req.Offset = 0
	}

	checkpoints, err = c.persistence.Checkpoints().ListByChat(ctx, userID, req.ChatID, req.Limit, req.Offset)
	if err != nil {
		return nil, dependency(op, err)
	}

	if checkpoints == nil {
		checkpoints = []*models.Checkpoint{}
	}

	return checkpoints, nil
}

// Revert makes the snapshot of a checkpoint the current graph of its workflow. A
// checkpoint of another user is reported as not found. The snapshot is normalized
// first, so partial snapshots restore to a complete state. The workflow row itself
// (name, owner, workspace) is kept; a deleted workflow is not brought back.
func (c *Checkpoints) Revert(ctx context.Context, userID, checkpointID string) (result *RevertResult, err error) {
	const op = "RevertCheckpoint"

	ctx, span := startSpan(ctx, "checkpoint.revert", attribute.String(otelhelper.CheckpointIDKey, checkpointID))
	defer func() {
		endSpan(span, err)

		if err != nil {
			c.metrics.RecordCheckpointRevert("failure")
		} else {
			c.metrics.RecordCheckpointRevert("success")
		}
	}()

	if checkpointID == "" {
		return nil, NewValidationError(op, "validation_error", "request is invalid",
			FieldError{Field: "checkpointId", Message: "is required"})
	}

	if userID == "" {
		return nil, unauthenticated(op)
	}

	checkpoint, err := c.persistence.Checkpoints().GetForUser(ctx, checkpointID, userID)
	if err != nil {
		return nil, dependency(op, err)
	}

	if checkpoint == nil {
		return nil, notFound(op, "checkpoint_not_found", "checkpoint not found")
	}

	workflow, err := loadAuthorized(ctx, c.persistence, c.gate, op, userID, checkpoint.WorkflowID, models.PermissionWrite)
	if err != nil {
		return nil, err
	}

	state, err := graph.RestoreSnapshot(checkpoint.WorkflowState, workflow.State)
	if err != nil {
		return nil, dependency(op, err)
	}

	revertedAt := c.now().UTC()
	state.LastSaved = revertedAt.UnixMilli()

	err = c.persistence.Transaction(ctx, func(ctx context.Context, tx persistence.Repositories) error {
		// Re-read the row so a workflow deleted since the check is not written back.
		current, err := tx.Workflows().GetByID(ctx, workflow.ID)
		if err != nil {
			return dependency(op, err)
		}

		if current == nil {
			return notFound(op, "workflow_not_found", "workflow not found")
		}

		restored := *current
		restored.State = state

		if err := tx.Workflows().Save(ctx, &restored); err != nil {
			return dependency(op, err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	result = &RevertResult{
		Success:      true,
		WorkflowID:   workflow.ID,
		CheckpointID: checkpoint.ID,
		RevertedAt:   revertedAt,
		Checkpoint:   RevertedCheckpoint{ID: checkpoint.ID, WorkflowState: state},
	}

	c.notifier.Dispatch(ctx, events.NewWorkflowReverted(result.WorkflowID, userID, checkpointID))

	c.logger.InfoContext(ctx, "workflow reverted to checkpoint",
		"workflow_id", result.WorkflowID, "checkpoint_id", checkpointID, "user_id", userID)

	return result, nil
}

// Prune deletes checkpoints created more than retention ago.
func (c *Checkpoints) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	deleted, err := c.persistence.Checkpoints().DeleteOlderThan(ctx, c.now().UTC().Add(-retention))
	if err != nil {
		return 0, dependency("PruneCheckpoints", err)
	}

	return deleted, nil
}
