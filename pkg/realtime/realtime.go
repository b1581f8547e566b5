// Package realtime notifies connected collaborators that a workflow changed server-side.
// Delivery is fire-and-forget: a failed notification is logged, counted and dropped.
package realtime

import (
	"context"
	"log/slog"

	"github.com/dukex/blockflow/pkg/background"
	"github.com/dukex/blockflow/pkg/events"
	"github.com/dukex/blockflow/pkg/metrics"
)

// Sink delivers one event to the realtime collaborator.
type Sink interface {
	Send(ctx context.Context, event events.Event) error
}

// NoopSink drops every event.
type NoopSink struct{}

func (NoopSink) Send(context.Context, events.Event) error {
	return nil
}

// Notifier is what the services depend on to announce a change.
type Notifier interface {
	Dispatch(ctx context.Context, event events.Event)
}

// Dispatcher hands each event to a background task and never reports the outcome to
// the caller.
type Dispatcher struct {
	sink    Sink
	runner  *background.Runner
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewDispatcher(logger *slog.Logger, sink Sink, runner *background.Runner, m *metrics.Metrics) *Dispatcher {
	if sink == nil {
		sink = NoopSink{}
	}

	return &Dispatcher{
		sink:    sink,
		runner:  runner,
		metrics: m,
		logger:  logger.With("component", "realtime"),
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, event events.Event) {
	d.runner.Go(ctx, "notify "+string(event.Type), func(ctx context.Context) error {
		err := d.sink.Send(ctx, event)
		if err != nil {
			d.metrics.RecordNotification(string(event.Type), false)
			d.logger.WarnContext(ctx, "dropping realtime notification",
				"event_type", event.Type, "event_id", event.ID, "workflow_id", event.WorkflowID, "error", err)

			return nil
		}

		d.metrics.RecordNotification(string(event.Type), true)

		return nil
	})
}
