package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dukex/blockflow/pkg/events"
	"github.com/dukex/blockflow/pkg/graph"
	"github.com/dukex/blockflow/pkg/layout"
	"github.com/dukex/blockflow/pkg/metrics"
	"github.com/dukex/blockflow/pkg/models"
	"github.com/dukex/blockflow/pkg/otelhelper"
	"github.com/dukex/blockflow/pkg/permissions"
	"github.com/dukex/blockflow/pkg/persistence"
	"github.com/dukex/blockflow/pkg/realtime"
	"go.opentelemetry.io/otel/attribute"
)

type LayoutResult struct {
	BlockCount     int                         `json:"blockCount"`
	LayoutedBlocks map[string]layout.Placement `json:"layoutedBlocks"`
	Direction      layout.Direction            `json:"direction"`
}

// AutoLayout computes new block positions for a workflow and persists them.
type AutoLayout struct {
	persistence persistence.Persistence
	gate        *permissions.Gate
	notifier    realtime.Notifier
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

func NewAutoLayout(
	logger *slog.Logger,
	persistence persistence.Persistence,
	gate *permissions.Gate,
	notifier realtime.Notifier,
	m *metrics.Metrics,
) *AutoLayout {
	return &AutoLayout{
		persistence: persistence,
		gate:        gate,
		notifier:    notifier,
		metrics:     m,
		logger:      logger.With("component", "autolayout"),
	}
}

// Apply lays out the workflow and saves the new positions in a single write: either
// every block moves or none does. The configuration is checked before anything is loaded.
func (a *AutoLayout) Apply(ctx context.Context, userID, workflowID string, cfg layout.Config) (result *LayoutResult, err error) {
	const op = "AutoLayout"

	ctx, span := startSpan(ctx, "workflow.autolayout",
		attribute.String(otelhelper.WorkflowIDKey, workflowID),
		attribute.String(otelhelper.LayoutStrategyKey, string(cfg.Strategy)))
	defer func() { endSpan(span, err) }()

	if err := cfg.Validate(); err != nil {
		return nil, configError(op, err)
	}

	cfg = cfg.WithDefaults()

	workflow, err := loadAuthorized(ctx, a.persistence, a.gate, op, userID, workflowID, models.PermissionWrite)
	if err != nil {
		return nil, err
	}

	state, err := graph.Clone(workflow.State)
	if err != nil {
		return nil, dependency(op, err)
	}

	if state == nil {
		state = models.NewWorkflowState()
	}

	started := time.Now()

	computed, err := layout.Compute(ctx, state, cfg)
	if err != nil {
		return nil, dependency(op, err)
	}

	a.metrics.ObserveLayout(string(cfg.Strategy), time.Since(started))

	computed.ApplyTo(state)
	state.LastSaved = time.Now().UnixMilli()

	updated := *workflow
	updated.State = state

	if err := a.persistence.Workflows().Save(ctx, &updated); err != nil {
		return nil, dependency(op, err)
	}

	a.notifier.Dispatch(ctx, events.NewWorkflowLayoutApplied(workflowID, userID, len(computed.Placements)))

	a.logger.InfoContext(ctx, "layout applied",
		"workflow_id", workflowID, "strategy", cfg.Strategy, "blocks", len(computed.Placements))

	return &LayoutResult{
		BlockCount:     len(computed.Placements),
		LayoutedBlocks: computed.Placements,
		Direction:      computed.Direction,
	}, nil
}

func configError(op string, err error) error {
	var cerr *layout.ConfigError
	if !errors.As(err, &cerr) {
		return NewValidationError(op, "invalid_layout_config", err.Error())
	}

	fields := make([]FieldError, 0, len(cerr.Fields))
	for _, f := range cerr.Fields {
		fields = append(fields, FieldError{Field: f.Field, Message: f.Message})
	}

	return NewValidationError(op, "invalid_layout_config", "layout configuration is invalid", fields...)
}
