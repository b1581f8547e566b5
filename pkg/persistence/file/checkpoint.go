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

// CheckpointRepository handles copilot checkpoint file operations.
type CheckpointRepository struct {
	v view
}

func (r *CheckpointRepository) Create(_ context.Context, checkpoint *models.Checkpoint) error {
	if checkpoint.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate checkpoint ID: %w", err)
		}

		checkpoint.ID = id.String()
	}

	if checkpoint.CreatedAt.IsZero() {
		checkpoint.CreatedAt = time.Now().UTC()
	}

	checkpoint.UpdatedAt = checkpoint.CreatedAt

	err := writeJSON(r.v, checkpointsDir, checkpoint.ID, checkpoint)
	if err != nil {
		return &persistence.CheckpointError{Op: "Create", CheckpointID: checkpoint.ID, Err: err}
	}

	return nil
}

func (r *CheckpointRepository) GetForUser(_ context.Context, id, userID string) (*models.Checkpoint, error) {
	checkpoint, err := readJSON[models.Checkpoint](r.v, checkpointsDir, id)
	if err != nil {
		return nil, &persistence.CheckpointError{Op: "GetForUser", CheckpointID: id, Err: err}
	}

	if checkpoint == nil || checkpoint.UserID != userID {
		return nil, nil
	}

	return checkpoint, nil
}

func (r *CheckpointRepository) ListByChat(_ context.Context, userID, chatID string, limit, offset int) ([]*models.Checkpoint, error) {
	all, err := r.all()
	if err != nil {
		return nil, err
	}

	checkpoints := make([]*models.Checkpoint, 0)

	for _, checkpoint := range all {
		if checkpoint.UserID == userID && checkpoint.ChatID == chatID {
			checkpoints = append(checkpoints, checkpoint)
		}
	}

	slices.SortFunc(checkpoints, func(a, b *models.Checkpoint) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}

		switch {
		case a.ID > b.ID:
			return -1
		case a.ID < b.ID:
			return 1
		default:
			return 0
		}
	})

	if offset >= len(checkpoints) {
		return []*models.Checkpoint{}, nil
	}

	checkpoints = checkpoints[offset:]
	if limit >= 0 && limit < len(checkpoints) {
		checkpoints = checkpoints[:limit]
	}

	return checkpoints, nil
}

func (r *CheckpointRepository) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	all, err := r.all()
	if err != nil {
		return 0, err
	}

	var removed int64

	for _, checkpoint := range all {
		if !checkpoint.CreatedAt.Before(cutoff) {
			continue
		}

		err := r.v.remove(checkpointsDir, checkpoint.ID)
		if err != nil {
			return removed, err
		}

		removed++
	}

	return removed, nil
}

func (r *CheckpointRepository) all() ([]*models.Checkpoint, error) {
	ids, err := r.v.list(checkpointsDir)
	if err != nil {
		return nil, err
	}

	checkpoints := make([]*models.Checkpoint, 0, len(ids))

	for _, id := range ids {
		checkpoint, err := readJSON[models.Checkpoint](r.v, checkpointsDir, id)
		if err != nil {
			return nil, fmt.Errorf("failed to load checkpoint %s: %w", id, err)
		}

		if checkpoint != nil {
			checkpoints = append(checkpoints, checkpoint)
		}
	}

	return checkpoints, nil
}
