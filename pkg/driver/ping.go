package driver

import (
	"context"
	"net"
	"reflect"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/xww/neutron-monitor-agent/pkg/log"
	"github.com/xww/neutron-monitor-agent/pkg/metrics"
	"github.com/xww/neutron-monitor-agent/pkg/remote"
	"github.com/xww/neutron-monitor-agent/pkg/types"
)

func init() {
	Register("ping", newPingDriver)
	Register("passive", newPassiveDriver)
}

// pingDriver enforces a monitor by probing its port address over TCP. Each
// started monitor gets a prober goroutine; once a port has been unreachable
// longer than the report threshold, a down status is pushed to the control
// plane, and a recover status when it comes back.
type pingDriver struct {
	store   *recordStore
	remote  remote.Client
	opts    Options
	logger  zerolog.Logger
	limiter *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	probers map[string]*prober
	wg      sync.WaitGroup
}

func newPingDriver(ctx context.Context, opts Options) (Driver, error) {
	store, err := openRecordStore(opts.DataDir)
	if err != nil {
		return nil, err
	}

	dctx, cancel := context.WithCancel(ctx)
	d := &pingDriver{
		store:  store,
		remote: opts.Remote,
		opts:   opts,
		logger: log.WithComponent("driver.ping"),
		// Flapping ports must not flood the control plane with pushes
		limiter: rate.NewLimiter(rate.Every(time.Second), 10),
		ctx:     dctx,
		cancel:  cancel,
		probers: make(map[string]*prober),
	}

	// Resume probing for monitors that survived a restart
	monitors, err := store.list()
	if err != nil {
		store.Close()
		cancel()
		return nil, err
	}
	for _, monitor := range monitors {
		d.startProber(monitor)
	}

	return d, nil
}

// GetMonitors implements Driver
func (d *pingDriver) GetMonitors() (map[string]*types.Monitor, error) {
	return d.store.list()
}

// StartMonitor implements Driver. Starting an already-started monitor with an
// unchanged record is a no-op; a changed record is always persisted, and the
// prober is restarted only when the probe target itself changed.
func (d *pingDriver) StartMonitor(monitor *types.Monitor) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	existing, err := d.store.get(monitor.ID)
	if err != nil {
		return err
	}
	p, running := d.probers[monitor.ID]
	if existing != nil && running && sameTarget(existing, monitor) {
		if reflect.DeepEqual(existing, monitor) {
			return nil
		}
		// Same target, new payload: keep the prober and its outage
		// tracking, but make sure later pushes carry the new record.
		if err := d.store.put(monitor); err != nil {
			return err
		}
		p.setMonitor(monitor)
		return nil
	}

	if err := d.store.put(monitor); err != nil {
		return err
	}

	if running {
		p.stop()
		delete(d.probers, monitor.ID)
	}
	d.startProber(monitor)
	return nil
}

// StopMonitor implements Driver. Stopping an unknown id is a no-op.
func (d *pingDriver) StopMonitor(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if p, running := d.probers[id]; running {
		p.stop()
		delete(d.probers, id)
	}
	return d.store.delete(id)
}

// Close implements Driver
func (d *pingDriver) Close() error {
	d.cancel()
	d.wg.Wait()
	return d.store.Close()
}

// startProber must be called with d.mu held (or before the driver is shared)
func (d *pingDriver) startProber(monitor *types.Monitor) {
	if !probeable(monitor) {
		return
	}

	pctx, cancel := context.WithCancel(d.ctx)
	p := &prober{
		driver:  d,
		monitor: monitor,
		cancel:  cancel,
		logger:  log.WithMonitorID(monitor.ID),
	}
	d.probers[monitor.ID] = p

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		p.run(pctx)
	}()
}

func probeable(monitor *types.Monitor) bool {
	if monitor.Address == "" || monitor.Port <= 0 {
		return false
	}
	return monitor.Protocol == "" || monitor.Protocol == "tcp"
}

func sameTarget(a, b *types.Monitor) bool {
	return a.Address == b.Address && a.Port == b.Port && a.Protocol == b.Protocol
}

// prober probes one monitor's port until stopped
type prober struct {
	driver *pingDriver
	cancel context.CancelFunc
	logger zerolog.Logger

	mu      sync.Mutex
	monitor *types.Monitor

	unreachableSince time.Time
	reported         bool
}

func (p *prober) stop() {
	p.cancel()
}

// setMonitor swaps the record behind a running prober after a payload-only
// update
func (p *prober) setMonitor(monitor *types.Monitor) {
	p.mu.Lock()
	p.monitor = monitor
	p.mu.Unlock()
}

func (p *prober) getMonitor() *types.Monitor {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.monitor
}

func (p *prober) run(ctx context.Context) {
	ticker := time.NewTicker(p.driver.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.probe(ctx)
		}
	}
}

func (p *prober) probe(ctx context.Context) {
	reachable := p.dial(ctx)
	now := time.Now()

	if reachable {
		metrics.ProbesTotal.WithLabelValues("reachable").Inc()
		if p.reported {
			// The outage was reported; keep retrying the recover on
			// later probes until it lands so the pair stays matched.
			if !p.pushStatus(ctx, p.unreachableSince, true) {
				return
			}
			p.reported = false
		}
		p.unreachableSince = time.Time{}
		return
	}

	metrics.ProbesTotal.WithLabelValues("unreachable").Inc()
	if p.unreachableSince.IsZero() {
		p.unreachableSince = now
	}
	if !p.reported && now.Sub(p.unreachableSince) >= p.driver.opts.PingReportThreshold {
		p.reported = p.pushStatus(ctx, p.unreachableSince, false)
	}
}

func (p *prober) dial(ctx context.Context) bool {
	dialer := &net.Dialer{Timeout: p.driver.opts.PingTimeout}

	conn, err := dialer.DialContext(ctx, "tcp", p.getMonitor().Target())
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// pushStatus reports whether the push landed. A rate-limited or failed push
// is logged and dropped; the probe loop decides whether to try again later.
func (p *prober) pushStatus(ctx context.Context, since time.Time, recovered bool) bool {
	monitor := p.getMonitor()

	if p.driver.remote == nil {
		return true
	}
	if !p.driver.limiter.Allow() {
		p.logger.Debug().Msg("status push rate limited")
		return false
	}

	direction := "down"
	if recovered {
		direction = "recover"
	}

	err := p.driver.remote.PushStatus(ctx, types.PortStatus{
		TenantID: monitor.TenantID,
		PortID:   monitor.PortID,
		Since:    since,
		Recover:  recovered,
	})
	if err != nil {
		p.logger.Warn().Err(err).
			Str("direction", direction).
			Msg("port status push failed")
		return false
	}

	metrics.StatusPushesTotal.WithLabelValues(direction).Inc()
	p.logger.Info().
		Str("port_id", monitor.PortID).
		Str("direction", direction).
		Msg("port status pushed")
	return true
}

// passiveDriver records the enforced monitor set without probing. It is
// useful when reachability is checked by an external system and the agent
// only tracks assignment.
type passiveDriver struct {
	store *recordStore
}

func newPassiveDriver(_ context.Context, opts Options) (Driver, error) {
	store, err := openRecordStore(opts.DataDir)
	if err != nil {
		return nil, err
	}
	return &passiveDriver{store: store}, nil
}

func (d *passiveDriver) GetMonitors() (map[string]*types.Monitor, error) {
	return d.store.list()
}

func (d *passiveDriver) StartMonitor(monitor *types.Monitor) error {
	return d.store.put(monitor)
}

func (d *passiveDriver) StopMonitor(id string) error {
	return d.store.delete(id)
}

func (d *passiveDriver) Close() error {
	return d.store.Close()
}
