package remote

import (
	"context"
	"errors"

	"github.com/xww/neutron-monitor-agent/pkg/types"
)

// ErrReportingNotSupported is returned by ReportState when the control plane
// does not implement agent state reporting at all. It is a terminal condition
// for the reporter, distinct from transient transport failures.
var ErrReportingNotSupported = errors.New("agent state reporting not supported by control plane")

// Client is the synchronous remote-call interface to the control plane.
// The reconciliation engine uses it to learn ground truth; the state reporter
// uses it to push heartbeats; the driver uses it to push port status changes.
type Client interface {
	// FetchActiveMonitors returns the monitors the control plane considers
	// active for this host. A nil or empty ids slice means all of them;
	// a non-empty slice restricts the result to those ids, if still active.
	FetchActiveMonitors(ctx context.Context, ids []string) ([]*types.Monitor, error)

	// ReportState pushes the agent heartbeat payload. A return of
	// ErrReportingNotSupported means the control plane will never accept
	// reports; any other error is transient.
	ReportState(ctx context.Context, state *types.AgentState) error

	// PushStatus is a fire-and-forget notification of a port reachability
	// change. Failures are not recorded in any recovery flag.
	PushStatus(ctx context.Context, status types.PortStatus) error
}

// Notifier delivers inbound asynchronous notifications from the control
// plane. Implementations must preserve delivery order.
type Notifier interface {
	// Notifications returns the channel on which inbound messages arrive.
	// The channel is closed when the notifier stops.
	Notifications() <-chan types.Notification
}
