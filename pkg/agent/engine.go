package agent

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/xww/neutron-monitor-agent/pkg/driver"
	"github.com/xww/neutron-monitor-agent/pkg/log"
	"github.com/xww/neutron-monitor-agent/pkg/metrics"
	"github.com/xww/neutron-monitor-agent/pkg/remote"
	"github.com/xww/neutron-monitor-agent/pkg/types"
)

// Engine reconciles the monitor set enforced by the driver with the set the
// control plane considers active for this host.
//
// A single mutex serializes the full resync pass and every notification
// handler: a resync interleaving its stop/start calls with a concurrent
// targeted update on the same monitor would race on the driver. The
// needs-resync flag is guarded by the same mutex; it is the sole recovery
// mechanism, set by any failed step and consumed by the periodic resync
// loop. There is no retry queue and no per-item tracking.
type Engine struct {
	driver driver.Driver
	remote remote.Client
	logger zerolog.Logger

	resyncInterval time.Duration

	mu          sync.Mutex
	needsResync bool

	startOnce sync.Once
}

// NewEngine creates a reconciliation engine. The needs-resync flag starts
// false; the first full resync runs only when Startup is triggered.
func NewEngine(drv driver.Driver, rc remote.Client, resyncInterval time.Duration) *Engine {
	return &Engine{
		driver:         drv,
		remote:         rc,
		logger:         log.WithComponent("engine"),
		resyncInterval: resyncInterval,
	}
}

// Startup runs the engine's startup sequence, a full resync. It is triggered
// by the state reporter after the first successful heartbeat, or directly
// when reporting is disabled or unsupported; repeated triggers are no-ops.
func (e *Engine) Startup(ctx context.Context) {
	e.startOnce.Do(func() {
		e.logger.Info().Msg("startup resync triggered")
		e.SyncState(ctx)
	})
}

// SyncState performs one full reconciliation pass under the engine mutex
func (e *Engine) SyncState(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.syncState(ctx)
}

// syncState is the full resync algorithm. Callers must hold e.mu.
func (e *Engine) syncState(ctx context.Context) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.ResyncDuration)
	metrics.ResyncCyclesTotal.Inc()

	known, err := e.driver.GetMonitors()
	if err != nil {
		e.resyncFailure()
		e.logger.Error().Err(err).Msg("resync aborted: driver snapshot failed")
		return
	}

	// A failed ground-truth fetch must not be treated as zero active
	// monitors; abort the whole pass instead of disabling everything.
	active, err := e.remote.FetchActiveMonitors(ctx, nil)
	if err != nil {
		e.resyncFailure()
		e.logger.Error().Err(err).Msg("resync aborted: active monitor fetch failed")
		return
	}

	activeIDs := make(map[string]struct{}, len(active))
	for _, monitor := range active {
		activeIDs[monitor.ID] = struct{}{}
	}

	// Stale monitors: locally known but no longer active. A failure on one
	// id must not stop the others from being processed.
	for id := range known {
		if _, ok := activeIDs[id]; ok {
			continue
		}
		if err := e.driver.StopMonitor(id); err != nil {
			e.resyncFailure()
			e.logger.Error().Err(err).Str("monitor_id", id).Msg("failed to stop stale monitor")
		}
	}

	// (Re-)enable everything active; driver start is idempotent
	for _, monitor := range active {
		if err := e.driver.StartMonitor(monitor); err != nil {
			e.resyncFailure()
			e.logger.Error().Err(err).Str("monitor_id", monitor.ID).Msg("failed to start monitor")
		}
	}

	metrics.MonitorsEnforced.Set(float64(len(active)))
	e.logger.Info().
		Int("known", len(known)).
		Int("active", len(active)).
		Msg("resync complete")
}

// resyncFailure marks the local state as possibly drifted. Callers must hold e.mu.
func (e *Engine) resyncFailure() {
	if !e.needsResync {
		metrics.ResyncFailuresTotal.Inc()
	}
	e.needsResync = true
}

// Run is the periodic resync loop: every interval it consumes the
// needs-resync flag and, when it was set, runs a full resync.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.resyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.mu.Lock()
			if e.needsResync {
				e.needsResync = false
				e.syncState(ctx)
			}
			e.mu.Unlock()
		}
	}
}

// GetState returns the number of monitors currently enforced by the driver
func (e *Engine) GetState() (int, error) {
	monitors, err := e.driver.GetMonitors()
	if err != nil {
		return 0, err
	}
	return len(monitors), nil
}

// MonitorCreated handles a monitor-created notification
func (e *Engine) MonitorCreated(ctx context.Context, id string) {
	e.MonitorUpdated(ctx, id)
}

// MonitorUpdated handles a monitor-updated notification with a targeted enable
func (e *Engine) MonitorUpdated(ctx context.Context, id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enableMonitor(ctx, id)
}

// MonitorDeleted handles a monitor-deleted notification with a targeted disable
func (e *Engine) MonitorDeleted(ctx context.Context, id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.disableMonitor(id)
}

// MonitorAddedToAgent handles reassignment of a monitor onto this agent
func (e *Engine) MonitorAddedToAgent(ctx context.Context, id string) {
	e.MonitorUpdated(ctx, id)
}

// MonitorRemovedFromAgent handles reassignment of a monitor off this agent
func (e *Engine) MonitorRemovedFromAgent(ctx context.Context, id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.disableMonitor(id)
}

// PortUpdateEnd handles the end of a port update: every active monitor on
// the updated port's network is re-enabled with its current remote record.
func (e *Engine) PortUpdateEnd(ctx context.Context, port *types.PortUpdate) {
	if port == nil || port.NetworkID == "" {
		e.logger.Warn().Msg("port update without network id, skipping")
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	active, err := e.remote.FetchActiveMonitors(ctx, nil)
	if err != nil {
		e.resyncFailure()
		e.logger.Error().Err(err).Str("network_id", port.NetworkID).
			Msg("active monitor fetch failed during port update")
		return
	}

	for _, monitor := range active {
		if monitor.NetworkID != port.NetworkID {
			continue
		}
		if err := e.driver.StartMonitor(monitor); err != nil {
			e.resyncFailure()
			e.logger.Error().Err(err).Str("monitor_id", monitor.ID).
				Msg("failed to start monitor after port update")
		}
	}
}

// AgentUpdated handles a reassignment notice from the control plane: the
// local set may be arbitrarily stale, so only the needs-resync flag is set.
func (e *Engine) AgentUpdated(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.needsResync = true
	e.logger.Info().Msg("agent updated, full resync scheduled")
}

// enableMonitor fetches the monitor's current remote record and starts it.
// Callers must hold e.mu.
func (e *Engine) enableMonitor(ctx context.Context, id string) {
	monitors, err := e.remote.FetchActiveMonitors(ctx, []string{id})
	if err != nil {
		e.resyncFailure()
		e.logger.Error().Err(err).Str("monitor_id", id).Msg("monitor lookup failed")
		return
	}
	if len(monitors) == 0 {
		// Deleted between notification and lookup; expected race
		e.logger.Warn().Str("monitor_id", id).Msg("monitor vanished before enable, skipping")
		return
	}

	if err := e.driver.StartMonitor(monitors[0]); err != nil {
		e.resyncFailure()
		e.logger.Error().Err(err).Str("monitor_id", id).Msg("failed to start monitor")
	}
}

// disableMonitor stops a monitor directly; the id alone is enough.
// Callers must hold e.mu.
func (e *Engine) disableMonitor(id string) {
	if err := e.driver.StopMonitor(id); err != nil {
		e.resyncFailure()
		e.logger.Error().Err(err).Str("monitor_id", id).Msg("failed to stop monitor")
		return
	}
	e.logger.Debug().Str("monitor_id", id).Msg("monitor stopped")
}
