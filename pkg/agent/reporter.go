package agent

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/xww/neutron-monitor-agent/pkg/log"
	"github.com/xww/neutron-monitor-agent/pkg/metrics"
	"github.com/xww/neutron-monitor-agent/pkg/remote"
	"github.com/xww/neutron-monitor-agent/pkg/types"
)

// StateReporter pushes the agent heartbeat to the control plane on a fixed
// interval. The heartbeat state is owned exclusively by the reporter and
// mutated only inside its loop.
//
// The engine's first full resync is gated on the reporter: it fires after
// the first successful heartbeat, so agent registration is ordered before
// monitor enforcement, or immediately when the control plane turns out not
// to support reporting at all.
type StateReporter struct {
	engine   *Engine
	remote   remote.Client
	interval time.Duration
	state    *types.AgentState
	logger   zerolog.Logger
}

// NewStateReporter creates a reporter around the given heartbeat state.
// state.StartFlag should be true; it is consumed on the first successful report.
func NewStateReporter(engine *Engine, rc remote.Client, interval time.Duration, state *types.AgentState) *StateReporter {
	return &StateReporter{
		engine:   engine,
		remote:   rc,
		interval: interval,
		state:    state,
		logger:   log.WithComponent("reporter"),
	}
}

// Run reports until the context is cancelled or the control plane signals
// that reporting is unsupported, which disables the reporter permanently.
func (r *StateReporter) Run(ctx context.Context) error {
	if r.interval <= 0 {
		// Reporting disabled by configuration; the normal startup trigger
		// will never fire, so trigger it here.
		r.engine.Startup(ctx)
		return nil
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if err := r.report(ctx); errors.Is(err, remote.ErrReportingNotSupported) {
			r.logger.Warn().Msg("state reporting unsupported by control plane, disabling reporter")
			r.engine.Startup(ctx)
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// report pushes one heartbeat. Transient failures are logged and absorbed;
// only ErrReportingNotSupported propagates to the loop.
func (r *StateReporter) report(ctx context.Context) error {
	count, err := r.engine.GetState()
	if err != nil {
		// Keep the previous count rather than dropping the heartbeat
		r.logger.Warn().Err(err).Msg("monitor count refresh failed")
	} else {
		r.state.Configurations.MonitorCount = count
	}

	err = r.remote.ReportState(ctx, r.state)
	if errors.Is(err, remote.ErrReportingNotSupported) {
		return err
	}
	if err != nil {
		metrics.HeartbeatFailuresTotal.Inc()
		r.logger.Warn().Err(err).Msg("state report failed")
		return nil
	}

	metrics.HeartbeatsTotal.Inc()
	if r.state.StartFlag {
		r.state.StartFlag = false
		r.logger.Info().Msg("first heartbeat acknowledged")
		r.engine.Startup(ctx)
	}
	return nil
}
