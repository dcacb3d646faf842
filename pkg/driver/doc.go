/*
Package driver defines the local enforcement mechanism behind the
reconciliation engine and the concrete drivers shipped with the agent.

The Driver contract mirrors what the engine relies on: GetMonitors returns a
consistent snapshot, StartMonitor is idempotent, and StopMonitor of an
unknown id is treated as already stopped. Implementations register
themselves by name so the configuration can select one.

Two drivers are built in. The "ping" driver probes each monitor's port over
TCP on a fixed interval and pushes port status changes to the control plane
once a port has been unreachable longer than the report threshold. The
"passive" driver only records assignment. Both persist their monitor set in
a bbolt database under the agent's data directory.
*/
package driver
