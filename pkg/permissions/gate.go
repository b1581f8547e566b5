// Package permissions resolves a caller's effective permission on workflows and workspaces.
package permissions

import (
	"context"
	"log/slog"

	"github.com/dukex/blockflow/pkg/metrics"
	"github.com/dukex/blockflow/pkg/models"
	"github.com/dukex/blockflow/pkg/persistence"
)

// Gate answers permission questions. Workspace memberships are memoized in the injected
// cache; a failed membership lookup resolves to PermissionNone and is not cached.
type Gate struct {
	workspaces persistence.WorkspaceRepository
	cache      Cache
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

func NewGate(logger *slog.Logger, workspaces persistence.WorkspaceRepository, cache Cache, m *metrics.Metrics) *Gate {
	if cache == nil {
		cache = NoopCache{}
	}

	return &Gate{
		workspaces: workspaces,
		cache:      cache,
		metrics:    m,
		logger:     logger.With("component", "permission_gate"),
	}
}

func cacheKey(workspaceID, userID string) string {
	return workspaceID + ":" + userID
}

// WorkflowPermission resolves userID's permission on workflow: the owner always gets
// PermissionOwner, otherwise the caller's role in the workflow's workspace applies.
func (g *Gate) WorkflowPermission(ctx context.Context, userID string, workflow *models.Workflow) models.Permission {
	if workflow == nil || userID == "" {
		return models.PermissionNone
	}

	if workflow.UserID == userID {
		return models.PermissionOwner
	}

	if workflow.WorkspaceID == "" {
		return models.PermissionNone
	}

	return g.WorkspacePermission(ctx, userID, workflow.WorkspaceID)
}

// WorkspacePermission maps userID's membership role in workspaceID to a permission.
func (g *Gate) WorkspacePermission(ctx context.Context, userID, workspaceID string) models.Permission {
	if userID == "" || workspaceID == "" {
		return models.PermissionNone
	}

	key := cacheKey(workspaceID, userID)

	if permission, ok := g.cache.Get(ctx, key); ok {
		g.metrics.RecordPermissionLookup(true)

		return permission
	}

	g.metrics.RecordPermissionLookup(false)

	member, err := g.workspaces.Member(ctx, workspaceID, userID)
	if err != nil {
		g.logger.ErrorContext(ctx, "failed to look up workspace membership",
			"workspace_id", workspaceID, "user_id", userID, "error", err)

		return models.PermissionNone
	}

	permission := models.PermissionNone
	if member != nil {
		permission = member.Role.Permission()
	}

	g.cache.Set(ctx, key, permission)

	return permission
}

// Invalidate forgets the memoized permission of userID in workspaceID.
func (g *Gate) Invalidate(ctx context.Context, workspaceID, userID string) {
	g.cache.Delete(ctx, cacheKey(workspaceID, userID))
}
