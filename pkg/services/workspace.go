package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/dukex/blockflow/pkg/models"
	"github.com/dukex/blockflow/pkg/otelhelper"
	"github.com/dukex/blockflow/pkg/permissions"
	"github.com/dukex/blockflow/pkg/persistence"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

type CreateWorkspaceRequest struct {
	Name string `json:"name" validate:"required,max=255"`
}

type AddMemberRequest struct {
	UserID string      `json:"userId" validate:"required"`
	Role   models.Role `json:"role"   validate:"required,oneof=owner admin member viewer"`
}

// Workspaces manages workspaces and their memberships.
type Workspaces struct {
	persistence persistence.Persistence
	gate        *permissions.Gate
	logger      *slog.Logger
}

func NewWorkspaces(logger *slog.Logger, persistence persistence.Persistence, gate *permissions.Gate) *Workspaces {
	return &Workspaces{
		persistence: persistence,
		gate:        gate,
		logger:      logger.With("component", "workspaces"),
	}
}

// Create makes a workspace owned by userID.
func (w *Workspaces) Create(ctx context.Context, userID string, req CreateWorkspaceRequest) (*models.Workspace, error) {
	const op = "CreateWorkspace"

	if err := validateStruct(op, req); err != nil {
		return nil, err
	}

	if userID == "" {
		return nil, unauthenticated(op)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, dependency(op, err)
	}

	now := time.Now().UTC()
	workspace := &models.Workspace{
		ID:        id.String(),
		Name:      req.Name,
		OwnerID:   userID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := w.persistence.Workspaces().Create(ctx, workspace); err != nil {
		return nil, dependency(op, err)
	}

	w.gate.Invalidate(ctx, workspace.ID, userID)

	return workspace, nil
}

// AddMember adds a member or changes the role of an existing one. The caller needs
// admin permission, and only owners may grant the owner role.
func (w *Workspaces) AddMember(ctx context.Context, userID, workspaceID string, req AddMemberRequest) (member *models.WorkspaceMember, err error) {
	const op = "AddWorkspaceMember"

	ctx, span := startSpan(ctx, "workspace.add_member", attribute.String(otelhelper.WorkspaceIDKey, workspaceID))
	defer func() { endSpan(span, err) }()

	if err := validateStruct(op, req); err != nil {
		return nil, err
	}

	if userID == "" {
		return nil, unauthenticated(op)
	}

	workspace, err := w.persistence.Workspaces().GetByID(ctx, workspaceID)
	if err != nil {
		return nil, dependency(op, err)
	}

	if workspace == nil {
		return nil, notFound(op, "workspace_not_found", "workspace not found")
	}

	required := models.PermissionAdmin
	if req.Role == models.RoleOwner {
		required = models.PermissionOwner
	}

	if !w.gate.WorkspacePermission(ctx, userID, workspaceID).AtLeast(required) {
		return nil, forbidden(op, "caller needs "+required.String()+" permission on the workspace")
	}

	member = &models.WorkspaceMember{
		WorkspaceID: workspaceID,
		UserID:      req.UserID,
		Role:        req.Role,
		JoinedAt:    time.Now().UTC(),
	}

	if err := w.persistence.Workspaces().SaveMember(ctx, member); err != nil {
		return nil, dependency(op, err)
	}

	w.gate.Invalidate(ctx, workspaceID, req.UserID)

	w.logger.InfoContext(ctx, "workspace member saved",
		"workspace_id", workspaceID, "user_id", req.UserID, "role", req.Role)

	return member, nil
}
