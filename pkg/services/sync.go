package services

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/dukex/blockflow/pkg/background"
	"github.com/dukex/blockflow/pkg/events"
	"github.com/dukex/blockflow/pkg/graph"
	"github.com/dukex/blockflow/pkg/metrics"
	"github.com/dukex/blockflow/pkg/models"
	"github.com/dukex/blockflow/pkg/otelhelper"
	"github.com/dukex/blockflow/pkg/permissions"
	"github.com/dukex/blockflow/pkg/persistence"
	"github.com/dukex/blockflow/pkg/realtime"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"go.opentelemetry.io/otel/attribute"
)

// WorkflowPayload is one workflow as the editor holds it locally.
type WorkflowPayload struct {
	ID              string                  `json:"id"`
	Name            string                  `json:"name"            validate:"required,max=255"`
	Description     string                  `json:"description"`
	Color           string                  `json:"color"`
	WorkspaceID     string                  `json:"workspaceId"`
	FolderID        string                  `json:"folderId"`
	MarketplaceData *models.MarketplaceData `json:"marketplaceData"`
	State           *models.WorkflowState   `json:"state"           validate:"required"`
}

// SyncRequest is a full submission of the workflows of one scope: a workspace, or the
// caller's workflows outside any workspace when WorkspaceID is empty.
type SyncRequest struct {
	WorkspaceID string                      `json:"workspaceId"`
	Workflows   map[string]*WorkflowPayload `json:"workflows"   validate:"required,dive,required"`
}

// SyncResult counts the writes a sync applied. Skipped counts submitted changes and
// deletions refused for lack of permission.
type SyncResult struct {
	Success bool `json:"success"`
	Created int  `json:"created"`
	Updated int  `json:"updated"`
	Deleted int  `json:"deleted"`
	Skipped int  `json:"skipped"`
}

// Sync reconciles editor submissions against persisted workflows.
type Sync struct {
	persistence persistence.Persistence
	gate        *permissions.Gate
	notifier    realtime.Notifier
	runner      *background.Runner
	metrics     *metrics.Metrics
	logger      *slog.Logger
	now         func() time.Time
}

func NewSync(
	logger *slog.Logger,
	persistence persistence.Persistence,
	gate *permissions.Gate,
	notifier realtime.Notifier,
	runner *background.Runner,
	m *metrics.Metrics,
) *Sync {
	return &Sync{
		persistence: persistence,
		gate:        gate,
		notifier:    notifier,
		runner:      runner,
		metrics:     m,
		logger:      logger.With("component", "sync"),
		now:         time.Now,
	}
}

// Read returns the workflows visible to userID in a scope. Inside a workspace every
// workflow of the workspace is visible to any member, and the caller's workflows that
// belong to no workspace are moved into it in the background. Without a workspace only
// the caller's own workflows are returned.
func (s *Sync) Read(ctx context.Context, userID, workspaceID string) (workflows []*models.Workflow, err error) {
	const op = "SyncRead"

	ctx, span := startSpan(ctx, "sync.read", attribute.String(otelhelper.WorkspaceIDKey, workspaceID))
	defer func() { endSpan(span, err) }()

	if userID == "" {
		return nil, unauthenticated(op)
	}

	if workspaceID == "" {
		workflows, err = s.persistence.Workflows().ListByOwner(ctx, userID)
		if err != nil {
			return nil, dependency(op, err)
		}

		return workflows, nil
	}

	if err := s.authorizeScope(ctx, op, userID, workspaceID); err != nil {
		return nil, err
	}

	workflows, err = s.persistence.Workflows().ListByWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, dependency(op, err)
	}

	s.runner.Go(ctx, "assign-workspace", func(ctx context.Context) error {
		moved, err := s.persistence.Workflows().AssignWorkspace(ctx, userID, workspaceID)
		if err != nil {
			return err
		}

		if moved > 0 {
			s.logger.InfoContext(ctx, "moved unscoped workflows into workspace",
				"user_id", userID, "workspace_id", workspaceID, "count", moved)
		}

		return nil
	})

	return workflows, nil
}

// Write reconciles req against the persisted workflows of its scope: unknown workflows
// are created, changed ones updated and persisted ones missing from the submission
// deleted. Items the caller may not modify are skipped and logged. An empty submission
// for a scope that still holds workflows is refused with ErrConflict.
//
// Writes are applied one workflow at a time. On failure the returned result counts the
// writes applied before it; resubmitting the same request is safe.
func (s *Sync) Write(ctx context.Context, userID string, req SyncRequest) (result *SyncResult, err error) {
	const op = "SyncWrite"

	ctx, span := startSpan(ctx, "sync.write",
		attribute.String(otelhelper.WorkspaceIDKey, req.WorkspaceID),
		attribute.Int("blockflow.sync.submitted", len(req.Workflows)))
	defer func() { endSpan(span, err) }()

	if err := validateSyncRequest(op, req); err != nil {
		return nil, err
	}

	if userID == "" {
		return nil, unauthenticated(op)
	}

	if req.WorkspaceID != "" {
		if err := s.authorizeScope(ctx, op, userID, req.WorkspaceID); err != nil {
			return nil, err
		}
	}

	persisted, err := s.scope(ctx, userID, req.WorkspaceID)
	if err != nil {
		return nil, dependency(op, err)
	}

	if len(req.Workflows) == 0 && len(persisted) > 0 {
		return nil, conflict(op, "empty_sync_payload",
			"refusing to sync an empty submission over a scope that still holds workflows")
	}

	result = &SyncResult{}
	defer s.recordResult(result)

	now := s.now().UTC()

	for _, id := range slices.Sorted(maps.Keys(req.Workflows)) {
		payload := req.Workflows[id]
		migrateMarketplaceData(id, payload)

		existing, ok := persisted[id]
		if !ok {
			// The workflow may live in another scope, e.g. moved to a workspace.
			existing, err = s.persistence.Workflows().GetByID(ctx, id)
			if err != nil {
				return result, dependency(op, err)
			}
		}

		if payload.WorkspaceID == "" {
			payload.WorkspaceID = req.WorkspaceID
			if existing != nil {
				payload.WorkspaceID = existing.WorkspaceID
			}
		}

		if existing == nil {
			claimable, err := s.claimable(ctx, userID, id)
			if err != nil {
				return result, dependency(op, err)
			}

			if !claimable {
				s.logger.WarnContext(ctx, "skipping workflow id held by a deleted workflow of another user",
					"workflow_id", id, "user_id", userID)

				result.Skipped++

				continue
			}

			if err := s.create(ctx, userID, id, payload, now, result); err != nil {
				return result, dependency(op, err)
			}

			continue
		}

		if err := s.update(ctx, userID, existing, payload, now, result); err != nil {
			return result, dependency(op, err)
		}
	}

	for _, id := range slices.Sorted(maps.Keys(persisted)) {
		if _, submitted := req.Workflows[id]; submitted {
			continue
		}

		workflow := persisted[id]

		if !s.gate.WorkflowPermission(ctx, userID, workflow).AtLeast(models.PermissionWrite) {
			s.logger.WarnContext(ctx, "skipping unauthorized workflow deletion",
				"workflow_id", id, "user_id", userID)

			result.Skipped++

			continue
		}

		if err := s.persistence.Workflows().Delete(ctx, id); err != nil {
			return result, dependency(op, err)
		}

		result.Deleted++
	}

	result.Success = true

	if result.Created+result.Updated+result.Deleted > 0 {
		s.notifier.Dispatch(ctx, events.NewWorkflowsSynced(req.WorkspaceID, userID,
			result.Created, result.Updated, result.Deleted))
	}

	return result, nil
}

// claimable reports whether a missing id may be created by userID. A soft-deleted workflow keeps
// its id reserved for its owner so checkpoints and other references cannot be taken over.
func (s *Sync) claimable(ctx context.Context, userID, id string) (bool, error) {
	deleted, err := s.persistence.Workflows().GetDeleted(ctx, id)
	if err != nil {
		return false, err
	}

	return deleted == nil || deleted.UserID == userID, nil
}

func (s *Sync) create(
	ctx context.Context,
	userID, id string,
	payload *WorkflowPayload,
	now time.Time,
	result *SyncResult,
) error {
	workspaceID := payload.WorkspaceID

	if workspaceID != "" && !s.gate.WorkspacePermission(ctx, userID, workspaceID).AtLeast(models.PermissionWrite) {
		s.logger.WarnContext(ctx, "skipping unauthorized workflow creation",
			"workflow_id", id, "workspace_id", workspaceID, "user_id", userID)

		result.Skipped++

		return nil
	}

	state, err := graph.Clone(payload.State)
	if err != nil {
		return err
	}

	workflow := &models.Workflow{
		ID:              id,
		UserID:          userID,
		WorkspaceID:     workspaceID,
		FolderID:        payload.FolderID,
		Name:            payload.Name,
		Description:     payload.Description,
		Color:           payload.Color,
		State:           state,
		MarketplaceData: payload.MarketplaceData,
		LastSynced:      now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.persistence.Workflows().Save(ctx, workflow); err != nil {
		return err
	}

	result.Created++

	return nil
}

func (s *Sync) update(
	ctx context.Context,
	userID string,
	existing *models.Workflow,
	payload *WorkflowPayload,
	now time.Time,
	result *SyncResult,
) error {
	if !changed(existing, payload) {
		return nil
	}

	allowed := s.gate.WorkflowPermission(ctx, userID, existing).AtLeast(models.PermissionWrite)

	// Moving a workflow into another workspace also needs write access there.
	if allowed && payload.WorkspaceID != "" && payload.WorkspaceID != existing.WorkspaceID {
		allowed = s.gate.WorkspacePermission(ctx, userID, payload.WorkspaceID).AtLeast(models.PermissionWrite)
	}

	if !allowed {
		s.logger.WarnContext(ctx, "skipping unauthorized workflow update",
			"workflow_id", existing.ID, "user_id", userID)

		result.Skipped++

		return nil
	}

	state, err := graph.Clone(payload.State)
	if err != nil {
		return err
	}

	updated := *existing
	updated.Name = payload.Name
	updated.Description = payload.Description
	updated.Color = payload.Color
	updated.WorkspaceID = payload.WorkspaceID
	updated.MarketplaceData = payload.MarketplaceData
	updated.State = state
	updated.LastSynced = now

	if payload.FolderID != "" {
		updated.FolderID = payload.FolderID
	}

	if err := s.persistence.Workflows().Save(ctx, &updated); err != nil {
		return err
	}

	result.Updated++

	return nil
}

// authorizeScope checks that the workspace exists and that userID is a member of it.
func (s *Sync) authorizeScope(ctx context.Context, op, userID, workspaceID string) error {
	workspace, err := s.persistence.Workspaces().GetByID(ctx, workspaceID)
	if err != nil {
		return dependency(op, err)
	}

	if workspace == nil {
		return notFound(op, "workspace_not_found", "workspace not found")
	}

	if !s.gate.WorkspacePermission(ctx, userID, workspaceID).AtLeast(models.PermissionRead) {
		return forbidden(op, "caller is not a member of the workspace")
	}

	return nil
}

// scope loads the persisted workflows a submission is reconciled against.
func (s *Sync) scope(ctx context.Context, userID, workspaceID string) (map[string]*models.Workflow, error) {
	var (
		workflows []*models.Workflow
		err       error
	)

	if workspaceID == "" {
		workflows, err = s.persistence.Workflows().ListUnscoped(ctx, userID)
	} else {
		workflows, err = s.persistence.Workflows().ListByWorkspace(ctx, workspaceID)
	}

	if err != nil {
		return nil, err
	}

	persisted := make(map[string]*models.Workflow, len(workflows))
	for _, workflow := range workflows {
		persisted[workflow.ID] = workflow
	}

	return persisted, nil
}

func (s *Sync) recordResult(result *SyncResult) {
	s.metrics.RecordSyncOperations("created", result.Created)
	s.metrics.RecordSyncOperations("updated", result.Updated)
	s.metrics.RecordSyncOperations("deleted", result.Deleted)
	s.metrics.RecordSyncOperations("skipped", result.Skipped)
}

func validateSyncRequest(op string, req SyncRequest) error {
	if err := validateStruct(op, req); err != nil {
		return err
	}

	var fields []FieldError

	for _, id := range slices.Sorted(maps.Keys(req.Workflows)) {
		payload := req.Workflows[id]

		if payload.ID != "" && payload.ID != id {
			fields = append(fields, FieldError{
				Field:   "workflows." + id + ".id",
				Message: "must match the key it is submitted under",
			})
		}

		if err := graph.Validate(payload.State); err != nil {
			fields = append(fields, graphFields("workflows."+id+".state", err)...)
		}
	}

	if len(fields) > 0 {
		return NewValidationError(op, "validation_error", "submitted workflows are invalid", fields...)
	}

	return nil
}

// migrateMarketplaceData gives workflows published before marketplace records existed
// an owner record.
func migrateMarketplaceData(id string, payload *WorkflowPayload) {
	if payload.State != nil && payload.State.IsPublished && payload.MarketplaceData == nil {
		payload.MarketplaceData = &models.MarketplaceData{ID: id, Status: models.MarketplaceStatusOwner}
	}
}

// syncedFields are the parts of a workflow a sync may change.
type syncedFields struct {
	Name            string
	Description     string
	Color           string
	WorkspaceID     string
	MarketplaceData *models.MarketplaceData
	State           *models.WorkflowState
}

func changed(existing *models.Workflow, payload *WorkflowPayload) bool {
	before := syncedFields{
		Name:            existing.Name,
		Description:     existing.Description,
		Color:           existing.Color,
		WorkspaceID:     existing.WorkspaceID,
		MarketplaceData: existing.MarketplaceData,
		State:           existing.State,
	}

	after := syncedFields{
		Name:            payload.Name,
		Description:     payload.Description,
		Color:           payload.Color,
		WorkspaceID:     payload.WorkspaceID,
		MarketplaceData: payload.MarketplaceData,
		State:           payload.State,
	}

	// PostgreSQL keeps timestamps to the microsecond, so finer client values must still compare equal.
	return !cmp.Equal(before, after, cmpopts.EquateEmpty(), cmpopts.EquateApproxTime(time.Microsecond))
}
