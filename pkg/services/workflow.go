package services

import (
	"context"
	"time"

	"github.com/dukex/blockflow/pkg/models"
	"github.com/dukex/blockflow/pkg/otelhelper"
	"github.com/dukex/blockflow/pkg/permissions"
	"github.com/dukex/blockflow/pkg/persistence"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/dukex/blockflow/pkg/services")

// nolint:spancheck // the caller ends the span
func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otelhelper.StartSpan(ctx, tracer, name, attrs...)
}

// endSpan records err on span, if any, and ends it.
func endSpan(span trace.Span, err error) {
	if err != nil {
		otelhelper.SetError(span, err)
	}

	span.End()
}

type Workflow struct {
	persistence persistence.Persistence
	gate        *permissions.Gate
}

// NewWorkflow creates a new workflow service.
func NewWorkflow(persistence persistence.Persistence, gate *permissions.Gate) *Workflow {
	return &Workflow{
		persistence: persistence,
		gate:        gate,
	}
}

// HealthCheck checks the health of the persistence layer.
func (w *Workflow) HealthCheck(ctx context.Context) (string, bool) {
	if w.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := w.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// DeploymentStatus summarizes whether a workflow is live and whether its graph changed
// since it was deployed.
type DeploymentStatus struct {
	IsDeployed        bool       `json:"isDeployed"`
	DeployedAt        *time.Time `json:"deployedAt"`
	IsPublished       bool       `json:"isPublished"`
	NeedsRedeployment bool       `json:"needsRedeployment"`
}

// Status returns the deployment status of a workflow the caller can read.
func (w *Workflow) Status(ctx context.Context, userID, workflowID string) (status *DeploymentStatus, err error) {
	const op = "Status"

	ctx, span := startSpan(ctx, "workflow.status", attribute.String(otelhelper.WorkflowIDKey, workflowID))
	defer func() { endSpan(span, err) }()

	workflow, err := loadAuthorized(ctx, w.persistence, w.gate, op, userID, workflowID, models.PermissionRead)
	if err != nil {
		return nil, err
	}

	state := workflow.State
	if state == nil {
		state = models.NewWorkflowState()
	}

	status = &DeploymentStatus{
		IsDeployed:  state.IsDeployed,
		DeployedAt:  state.DeployedAt,
		IsPublished: state.IsPublished || (workflow.MarketplaceData != nil && workflow.MarketplaceData.Status == models.MarketplaceStatusOwner),
	}

	if state.IsDeployed && state.DeployedAt != nil && state.LastSaved > 0 {
		status.NeedsRedeployment = time.UnixMilli(state.LastSaved).After(*state.DeployedAt)
	}

	return status, nil
}

// loadAuthorized fetches a workflow through repos and checks that userID holds at least
// required on it. A missing workflow is ErrNotFound, an insufficient permission
// ErrPermissionDenied.
func loadAuthorized(
	ctx context.Context,
	repos persistence.Repositories,
	gate *permissions.Gate,
	op, userID, workflowID string,
	required models.Permission,
) (*models.Workflow, error) {
	if userID == "" {
		return nil, unauthenticated(op)
	}

	workflow, err := repos.Workflows().GetByID(ctx, workflowID)
	if err != nil {
		return nil, dependency(op, err)
	}

	if workflow == nil {
		return nil, notFound(op, "workflow_not_found", "workflow not found")
	}

	if !gate.WorkflowPermission(ctx, userID, workflow).AtLeast(required) {
		return nil, forbidden(op, "caller needs "+required.String()+" permission on the workflow")
	}

	return workflow, nil
}
