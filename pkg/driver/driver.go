package driver

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/xww/neutron-monitor-agent/pkg/remote"
	"github.com/xww/neutron-monitor-agent/pkg/types"
)

// Driver is the local mechanism that enforces monitors on this host.
//
// GetMonitors must return a consistent snapshot. StartMonitor is idempotent:
// starting an already-started monitor is a no-op, not an error. StopMonitor
// of an unknown id must not fail; the monitor is treated as already stopped.
type Driver interface {
	GetMonitors() (map[string]*types.Monitor, error)
	StartMonitor(monitor *types.Monitor) error
	StopMonitor(id string) error

	// Close releases driver resources and stops any background probing
	Close() error
}

// Options carries everything a driver constructor may need
type Options struct {
	DataDir string
	Remote  remote.Client

	PingTimeout         time.Duration
	PingInterval        time.Duration
	PingReportThreshold time.Duration
}

// Factory constructs a named driver implementation
type Factory func(ctx context.Context, opts Options) (Driver, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes a driver implementation selectable by name. It panics on a
// duplicate name; registration happens from package init only.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, dup := registry[name]; dup {
		panic(fmt.Sprintf("driver: Register called twice for %q", name))
	}
	registry[name] = factory
}

// Open constructs the driver registered under name
func Open(ctx context.Context, name string, opts Options) (Driver, error) {
	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown driver %q (registered: %v)", name, Names())
	}
	return factory(ctx, opts)
}

// Names returns the registered driver names, sorted
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
