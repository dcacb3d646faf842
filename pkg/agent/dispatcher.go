package agent

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/xww/neutron-monitor-agent/pkg/log"
	"github.com/xww/neutron-monitor-agent/pkg/metrics"
	"github.com/xww/neutron-monitor-agent/pkg/remote"
	"github.com/xww/neutron-monitor-agent/pkg/types"
)

// Dispatcher routes inbound control-plane notifications to the engine's
// handlers, one at a time, in the order the transport delivered them.
// Each handler call acquires the engine mutex, so a notification arriving
// mid-resync simply waits and applies its update afterwards.
type Dispatcher struct {
	engine *Engine
	source remote.Notifier
	logger zerolog.Logger
}

// NewDispatcher creates a dispatcher consuming from source
func NewDispatcher(engine *Engine, source remote.Notifier) *Dispatcher {
	return &Dispatcher{
		engine: engine,
		source: source,
		logger: log.WithComponent("dispatcher"),
	}
}

// Run dispatches until the context is cancelled or the source channel closes
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case n, ok := <-d.source.Notifications():
			if !ok {
				return nil
			}
			d.Dispatch(ctx, n)
		}
	}
}

// Dispatch routes a single notification to the matching engine handler
func (d *Dispatcher) Dispatch(ctx context.Context, n types.Notification) {
	metrics.NotificationsTotal.WithLabelValues(string(n.Kind)).Inc()
	d.logger.Debug().
		Str("kind", string(n.Kind)).
		Str("monitor_id", n.MonitorID).
		Msg("notification received")

	switch n.Kind {
	case types.NotificationMonitorCreated:
		d.engine.MonitorCreated(ctx, n.MonitorID)
	case types.NotificationMonitorUpdated:
		d.engine.MonitorUpdated(ctx, n.MonitorID)
	case types.NotificationMonitorDeleted:
		d.engine.MonitorDeleted(ctx, n.MonitorID)
	case types.NotificationMonitorAdded:
		d.engine.MonitorAddedToAgent(ctx, n.MonitorID)
	case types.NotificationMonitorRemoved:
		d.engine.MonitorRemovedFromAgent(ctx, n.MonitorID)
	case types.NotificationPortUpdateEnd:
		d.engine.PortUpdateEnd(ctx, n.Port)
	case types.NotificationAgentUpdated:
		d.engine.AgentUpdated(ctx)
	default:
		metrics.NotificationsDropped.Inc()
		d.logger.Warn().Str("kind", string(n.Kind)).Msg("unknown notification kind dropped")
	}
}
