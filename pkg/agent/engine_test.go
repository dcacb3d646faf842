package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xww/neutron-monitor-agent/pkg/types"
)

// fakeDriver records every call in order and lets tests inject per-id failures
type fakeDriver struct {
	mu       sync.Mutex
	monitors map[string]*types.Monitor
	calls    []string

	failStop  map[string]error
	failStart map[string]error
	snapErr   error
}

func newFakeDriver(ids ...string) *fakeDriver {
	d := &fakeDriver{
		monitors:  make(map[string]*types.Monitor),
		failStop:  make(map[string]error),
		failStart: make(map[string]error),
	}
	for _, id := range ids {
		d.monitors[id] = &types.Monitor{ID: id}
	}
	return d
}

func (d *fakeDriver) GetMonitors() (map[string]*types.Monitor, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.snapErr != nil {
		return nil, d.snapErr
	}
	snapshot := make(map[string]*types.Monitor, len(d.monitors))
	for id, m := range d.monitors {
		snapshot[id] = m
	}
	return snapshot, nil
}

func (d *fakeDriver) StartMonitor(monitor *types.Monitor) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, "start:"+monitor.ID)
	if err := d.failStart[monitor.ID]; err != nil {
		return err
	}
	d.monitors[monitor.ID] = monitor
	return nil
}

func (d *fakeDriver) StopMonitor(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, "stop:"+id)
	if err := d.failStop[id]; err != nil {
		return err
	}
	delete(d.monitors, id)
	return nil
}

func (d *fakeDriver) Close() error { return nil }

func (d *fakeDriver) callLog() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.calls))
	copy(out, d.calls)
	return out
}

// fakeRemote serves scripted monitor sets and records report/status traffic
type fakeRemote struct {
	mu       sync.Mutex
	active   []*types.Monitor
	fetchErr error

	fetchCalls int
	fetchHook  func() // runs inside FetchActiveMonitors, before returning

	reportErr     error
	reportedCount int
	reports       []types.AgentState

	statuses []types.PortStatus
}

func (r *fakeRemote) FetchActiveMonitors(ctx context.Context, ids []string) ([]*types.Monitor, error) {
	r.mu.Lock()
	hook := r.fetchHook
	r.fetchCalls++
	r.mu.Unlock()

	if hook != nil {
		hook()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fetchErr != nil {
		return nil, r.fetchErr
	}
	if len(ids) == 0 {
		return r.active, nil
	}

	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	var out []*types.Monitor
	for _, m := range r.active {
		if _, ok := want[m.ID]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *fakeRemote) ReportState(ctx context.Context, state *types.AgentState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.reportErr != nil {
		return r.reportErr
	}
	r.reportedCount++
	r.reports = append(r.reports, *state)
	return nil
}

func (r *fakeRemote) PushStatus(ctx context.Context, status types.PortStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, status)
	return nil
}

func (r *fakeRemote) fetchCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fetchCalls
}

func monitorSet(ids ...string) []*types.Monitor {
	out := make([]*types.Monitor, 0, len(ids))
	for _, id := range ids {
		out = append(out, &types.Monitor{ID: id})
	}
	return out
}

func TestSyncStateConvergence(t *testing.T) {
	drv := newFakeDriver("a", "b")
	rc := &fakeRemote{active: monitorSet("b", "c")}
	engine := NewEngine(drv, rc, time.Second)

	engine.SyncState(context.Background())

	monitors, err := drv.GetMonitors()
	require.NoError(t, err)
	assert.Len(t, monitors, 2)
	assert.Contains(t, monitors, "b")
	assert.Contains(t, monitors, "c")
	assert.NotContains(t, monitors, "a")
	assert.False(t, engine.needsResync)
}

func TestSyncStateRepeatedTicksConverge(t *testing.T) {
	drv := newFakeDriver("a", "b", "c")
	rc := &fakeRemote{active: monitorSet(), fetchErr: errors.New("control plane down")}
	engine := NewEngine(drv, rc, time.Second)

	// First pass fails at the fetch and must leave the flag set
	engine.SyncState(context.Background())
	assert.True(t, engine.needsResync)

	// Control plane recovers; the next pass drives known to equal active
	rc.mu.Lock()
	rc.fetchErr = nil
	rc.mu.Unlock()

	engine.mu.Lock()
	engine.needsResync = false
	engine.syncState(context.Background())
	engine.mu.Unlock()

	monitors, err := drv.GetMonitors()
	require.NoError(t, err)
	assert.Empty(t, monitors)
	assert.False(t, engine.needsResync)
}

func TestSyncStateAbortsOnFetchFailure(t *testing.T) {
	drv := newFakeDriver("a", "b")
	rc := &fakeRemote{fetchErr: errors.New("connection refused")}
	engine := NewEngine(drv, rc, time.Second)

	engine.SyncState(context.Background())

	// A failed ground-truth fetch must not be treated as zero active
	// monitors: no driver call may happen in this pass.
	assert.Empty(t, drv.callLog())
	assert.True(t, engine.needsResync)
}

func TestSyncStateAbortsOnDriverSnapshotFailure(t *testing.T) {
	drv := newFakeDriver("a")
	drv.snapErr = errors.New("database closed")
	rc := &fakeRemote{active: monitorSet("a")}
	engine := NewEngine(drv, rc, time.Second)

	engine.SyncState(context.Background())

	assert.Empty(t, drv.callLog())
	assert.True(t, engine.needsResync)
	assert.Equal(t, 0, rc.fetchCount())
}

func TestSyncStateFailureIsolation(t *testing.T) {
	drv := newFakeDriver("a", "b", "c")
	drv.failStop["b"] = errors.New("driver busy")
	rc := &fakeRemote{active: monitorSet()}
	engine := NewEngine(drv, rc, time.Second)

	engine.SyncState(context.Background())

	// The failure on b must not stop a and c from being processed
	calls := drv.callLog()
	assert.Contains(t, calls, "stop:a")
	assert.Contains(t, calls, "stop:b")
	assert.Contains(t, calls, "stop:c")
	assert.True(t, engine.needsResync)
}

func TestSyncStateStartFailureSetsFlag(t *testing.T) {
	drv := newFakeDriver()
	drv.failStart["a"] = errors.New("port in use")
	rc := &fakeRemote{active: monitorSet("a", "b")}
	engine := NewEngine(drv, rc, time.Second)

	engine.SyncState(context.Background())

	calls := drv.callLog()
	assert.Contains(t, calls, "start:a")
	assert.Contains(t, calls, "start:b")
	assert.True(t, engine.needsResync)
}

func TestMonitorUpdatedEnables(t *testing.T) {
	drv := newFakeDriver()
	rc := &fakeRemote{active: monitorSet("a")}
	engine := NewEngine(drv, rc, time.Second)

	engine.MonitorUpdated(context.Background(), "a")

	assert.Equal(t, []string{"start:a"}, drv.callLog())
	assert.False(t, engine.needsResync)
}

func TestMonitorUpdatedIdempotent(t *testing.T) {
	drv := newFakeDriver()
	rc := &fakeRemote{active: monitorSet("a")}
	engine := NewEngine(drv, rc, time.Second)

	engine.MonitorUpdated(context.Background(), "a")
	engine.MonitorUpdated(context.Background(), "a")

	// The engine neither fails nor loops on repeated enables; the driver
	// sees one start per notification and stays at one enforced monitor.
	monitors, err := drv.GetMonitors()
	require.NoError(t, err)
	assert.Len(t, monitors, 1)
	assert.False(t, engine.needsResync)
}

func TestMonitorUpdatedVanished(t *testing.T) {
	drv := newFakeDriver()
	rc := &fakeRemote{active: monitorSet()}
	engine := NewEngine(drv, rc, time.Second)

	engine.MonitorUpdated(context.Background(), "ghost")

	// Deletion races are expected: no driver call, no flag
	assert.Empty(t, drv.callLog())
	assert.False(t, engine.needsResync)
}

func TestMonitorUpdatedRemoteFailure(t *testing.T) {
	drv := newFakeDriver()
	rc := &fakeRemote{fetchErr: errors.New("timeout")}
	engine := NewEngine(drv, rc, time.Second)

	engine.MonitorUpdated(context.Background(), "a")

	assert.Empty(t, drv.callLog())
	assert.True(t, engine.needsResync)
}

func TestMonitorDeletedDisables(t *testing.T) {
	drv := newFakeDriver("a")
	rc := &fakeRemote{}
	engine := NewEngine(drv, rc, time.Second)

	engine.MonitorDeleted(context.Background(), "a")

	// No remote lookup is needed for a disable
	assert.Equal(t, 0, rc.fetchCount())
	assert.Equal(t, []string{"stop:a"}, drv.callLog())
}

func TestMonitorRemovedFromAgentDisables(t *testing.T) {
	drv := newFakeDriver("a")
	engine := NewEngine(drv, &fakeRemote{}, time.Second)

	engine.MonitorRemovedFromAgent(context.Background(), "a")

	assert.Equal(t, []string{"stop:a"}, drv.callLog())
}

func TestPortUpdateEndFansOut(t *testing.T) {
	drv := newFakeDriver()
	rc := &fakeRemote{active: []*types.Monitor{
		{ID: "a", NetworkID: "net-1"},
		{ID: "b", NetworkID: "net-2"},
		{ID: "c", NetworkID: "net-1"},
	}}
	engine := NewEngine(drv, rc, time.Second)

	engine.PortUpdateEnd(context.Background(), &types.PortUpdate{PortID: "p", NetworkID: "net-1"})

	calls := drv.callLog()
	assert.Contains(t, calls, "start:a")
	assert.Contains(t, calls, "start:c")
	assert.NotContains(t, calls, "start:b")
}

func TestPortUpdateEndWithoutNetworkID(t *testing.T) {
	drv := newFakeDriver()
	rc := &fakeRemote{active: monitorSet("a")}
	engine := NewEngine(drv, rc, time.Second)

	engine.PortUpdateEnd(context.Background(), &types.PortUpdate{PortID: "p"})
	engine.PortUpdateEnd(context.Background(), nil)

	assert.Empty(t, drv.callLog())
	assert.Equal(t, 0, rc.fetchCount())
}

func TestAgentUpdatedSetsFlagOnly(t *testing.T) {
	drv := newFakeDriver("a")
	rc := &fakeRemote{}
	engine := NewEngine(drv, rc, time.Second)

	engine.AgentUpdated(context.Background())

	assert.True(t, engine.needsResync)
	assert.Empty(t, drv.callLog())
	assert.Equal(t, 0, rc.fetchCount())
}

func TestStartupRunsOnce(t *testing.T) {
	drv := newFakeDriver()
	rc := &fakeRemote{active: monitorSet("a")}
	engine := NewEngine(drv, rc, time.Second)

	engine.Startup(context.Background())
	engine.Startup(context.Background())

	assert.Equal(t, 1, rc.fetchCount())
}

func TestGetState(t *testing.T) {
	drv := newFakeDriver("a", "b", "c")
	engine := NewEngine(drv, &fakeRemote{}, time.Second)

	count, err := engine.GetState()
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestRunConsumesNeedsResync(t *testing.T) {
	drv := newFakeDriver("stale")
	rc := &fakeRemote{active: monitorSet()}
	engine := NewEngine(drv, rc, 10*time.Millisecond)
	engine.needsResync = true

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = engine.Run(ctx) }()

	require.Eventually(t, func() bool {
		monitors, err := drv.GetMonitors()
		return err == nil && len(monitors) == 0
	}, time.Second, 10*time.Millisecond, "resync tick should consume the flag and stop the stale monitor")

	engine.mu.Lock()
	flag := engine.needsResync
	engine.mu.Unlock()
	assert.False(t, flag)
}

func TestRunIdleWithoutFlag(t *testing.T) {
	drv := newFakeDriver("a")
	rc := &fakeRemote{active: monitorSet("a")}
	engine := NewEngine(drv, rc, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_ = engine.Run(ctx)

	// The timer never reads the flag as set, so no resync runs
	assert.Equal(t, 0, rc.fetchCount())
	assert.Empty(t, drv.callLog())
}

func TestResyncAndNotificationDoNotInterleave(t *testing.T) {
	drv := newFakeDriver("stale")
	rc := &fakeRemote{active: monitorSet("a", "b")}
	engine := NewEngine(drv, rc, time.Second)

	fetchEntered := make(chan struct{})
	releaseFetch := make(chan struct{})
	var once sync.Once
	rc.fetchHook = func() {
		once.Do(func() {
			close(fetchEntered)
			<-releaseFetch
		})
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		engine.SyncState(context.Background())
	}()

	// Wait until the resync holds the lock inside its remote fetch, then
	// fire a concurrent targeted disable for an overlapping id.
	<-fetchEntered
	wg.Add(1)
	go func() {
		defer wg.Done()
		engine.MonitorDeleted(context.Background(), "a")
	}()

	// Give the deletion a chance to (incorrectly) run, then let the resync finish
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, drv.callLog(), "no driver call may happen while the resync holds the lock")
	close(releaseFetch)
	wg.Wait()

	// The resync's driver calls all precede the targeted disable
	calls := drv.callLog()
	require.NotEmpty(t, calls)
	assert.Equal(t, "stop:a", calls[len(calls)-1])
	assert.Equal(t, []string{"stop:stale", "start:a", "start:b"}, calls[:len(calls)-1])
}

func TestSyncStateLogsCompletion(t *testing.T) {
	// Completion is observable as the flag staying clear over many passes
	drv := newFakeDriver()
	rc := &fakeRemote{}
	engine := NewEngine(drv, rc, time.Second)

	for i := 0; i < 5; i++ {
		rc.mu.Lock()
		rc.active = monitorSet(fmt.Sprintf("m-%d", i))
		rc.mu.Unlock()
		engine.SyncState(context.Background())
		assert.False(t, engine.needsResync)
	}
}
