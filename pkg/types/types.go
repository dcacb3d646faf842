package types

import (
	"net"
	"strconv"
	"time"
)

// Monitor represents one monitored object as defined by the control plane.
// The reconciliation engine keys monitors solely by ID; every other field is
// payload carried through to the driver.
type Monitor struct {
	ID           string            `json:"id"`
	NetworkID    string            `json:"network_id,omitempty"`
	TenantID     string            `json:"tenant_id,omitempty"`
	PortID       string            `json:"port_id,omitempty"`
	Address      string            `json:"address,omitempty"` // IP of the monitored port
	Port         int               `json:"port,omitempty"`
	Protocol     string            `json:"protocol,omitempty"` // "tcp" or "udp"
	AdminStateUp bool              `json:"admin_state_up"`
	Status       MonitorStatus     `json:"status,omitempty"`
	Options      map[string]string `json:"options,omitempty"` // Driver-specific settings
}

// MonitorStatus represents the last observed state of a monitor
type MonitorStatus string

const (
	MonitorStatusUnknown     MonitorStatus = "unknown"
	MonitorStatusReachable   MonitorStatus = "reachable"
	MonitorStatusUnreachable MonitorStatus = "unreachable"
)

// Target returns the probe address of the monitored port
func (m *Monitor) Target() string {
	if m.Port <= 0 {
		return m.Address
	}
	return net.JoinHostPort(m.Address, strconv.Itoa(m.Port))
}

// PortUpdate is the payload of a port-update-end notification
type PortUpdate struct {
	PortID    string `json:"port_id"`
	NetworkID string `json:"network_id"`
	TenantID  string `json:"tenant_id,omitempty"`
}

// NotificationKind identifies an inbound control-plane notification
type NotificationKind string

const (
	NotificationMonitorCreated NotificationKind = "monitor.created"
	NotificationMonitorUpdated NotificationKind = "monitor.updated"
	NotificationMonitorDeleted NotificationKind = "monitor.deleted"
	NotificationMonitorAdded   NotificationKind = "monitor.added_to_agent"
	NotificationMonitorRemoved NotificationKind = "monitor.removed_from_agent"
	NotificationPortUpdateEnd  NotificationKind = "port.update.end"
	NotificationAgentUpdated   NotificationKind = "agent.updated"
)

// Notification is one inbound message from the control plane
type Notification struct {
	Kind      NotificationKind `json:"kind"`
	MonitorID string           `json:"monitor_id,omitempty"`
	Port      *PortUpdate      `json:"port,omitempty"`
	Timestamp time.Time        `json:"timestamp,omitempty"`
}

// AgentState is the heartbeat payload reported to the control plane
type AgentState struct {
	Binary         string              `json:"binary"`
	Host           string              `json:"host"`
	Topic          string              `json:"topic"`
	AgentType      string              `json:"agent_type"` // Driver identifier
	InstanceID     string              `json:"instance_id,omitempty"`
	StartFlag      bool                `json:"start_flag"`
	Configurations AgentConfigurations `json:"configurations"`
}

// AgentConfigurations is the mutable sub-map of the heartbeat payload
type AgentConfigurations struct {
	MonitorCount int `json:"monitor_count"`
}

// PortStatus is a fire-and-forget reachability report for one port
type PortStatus struct {
	TenantID string    `json:"tenant_id"`
	PortID   string    `json:"port_id"`
	Since    time.Time `json:"since"`
	Recover  bool      `json:"recover"`
}
