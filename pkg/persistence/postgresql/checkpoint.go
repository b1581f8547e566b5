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

// CheckpointRepository handles copilot checkpoint database operations.
type CheckpointRepository struct {
	db     Querier
	logger *slog.Logger
}

// NewCheckpointRepository creates a new checkpoint repository.
func NewCheckpointRepository(db Querier, logger *slog.Logger) *CheckpointRepository {
	return &CheckpointRepository{db: db, logger: logger}
}

func (r *CheckpointRepository) Create(ctx context.Context, checkpoint *models.Checkpoint) error {
	now := time.Now().UTC()

	if checkpoint.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate checkpoint ID: %w", err)
		}

		checkpoint.ID = id.String()
	}

	if checkpoint.CreatedAt.IsZero() {
		checkpoint.CreatedAt = now
	}

	checkpoint.UpdatedAt = checkpoint.CreatedAt

	query := `
		INSERT INTO copilot_checkpoints (id, user_id, workflow_id, chat_id, message_id, workflow_state, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.ExecContext(ctx, query,
		checkpoint.ID,
		checkpoint.UserID,
		checkpoint.WorkflowID,
		checkpoint.ChatID,
		nullString(checkpoint.MessageID),
		[]byte(checkpoint.WorkflowState),
		checkpoint.CreatedAt,
		checkpoint.UpdatedAt,
	)
	if err != nil {
		return &persistence.CheckpointError{Op: "Create", CheckpointID: checkpoint.ID, Err: err}
	}

	return nil
}

func (r *CheckpointRepository) GetForUser(ctx context.Context, id, userID string) (*models.Checkpoint, error) {
	query := `
		SELECT id, user_id, workflow_id, chat_id, message_id, workflow_state, created_at, updated_at
		FROM copilot_checkpoints
		WHERE id = $1 AND user_id = $2
	`

	checkpoint, err := scanCheckpoint(r.db.QueryRowContext(ctx, query, id, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, &persistence.CheckpointError{Op: "GetForUser", CheckpointID: id, Err: err}
	}

	return checkpoint, nil
}

func (r *CheckpointRepository) ListByChat(ctx context.Context, userID, chatID string, limit, offset int) ([]*models.Checkpoint, error) {
	query := `
		SELECT id, user_id, workflow_id, chat_id, message_id, workflow_state, created_at, updated_at
		FROM copilot_checkpoints
		WHERE user_id = $1 AND chat_id = $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3 OFFSET $4
	`

	rows, err := r.db.QueryContext(ctx, query, userID, chatID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query checkpoints: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	checkpoints := make([]*models.Checkpoint, 0)

	for rows.Next() {
		checkpoint, err := scanCheckpoint(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan checkpoint: %w", err)
		}

		checkpoints = append(checkpoints, checkpoint)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating checkpoints: %w", err)
	}

	return checkpoints, nil
}

// DeleteOlderThan removes checkpoints created before cutoff and reports how many were removed.
func (r *CheckpointRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM copilot_checkpoints WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete checkpoints: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected, nil
}

func scanCheckpoint(scanner interface {
	Scan(dest ...any) error
}) (*models.Checkpoint, error) {
	var (
		checkpoint models.Checkpoint
		messageID  sql.NullString
		state      []byte
	)

	err := scanner.Scan(
		&checkpoint.ID,
		&checkpoint.UserID,
		&checkpoint.WorkflowID,
		&checkpoint.ChatID,
		&messageID,
		&state,
		&checkpoint.CreatedAt,
		&checkpoint.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	checkpoint.MessageID = messageID.String
	checkpoint.WorkflowState = state

	return &checkpoint, nil
}
