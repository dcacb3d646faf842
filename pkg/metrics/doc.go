/*
Package metrics exposes Prometheus instrumentation and HTTP health endpoints
for the monitor agent.

Collectors cover the reconciliation loop (cycle counts, durations, enforced
monitor gauge), inbound notifications, heartbeat reporting, and the ping
driver's probes. All collectors are registered at package init; Handler
returns the promhttp handler to mount on the metrics listener.

The Timer helper measures operation durations:

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.ResyncDuration)
*/
package metrics
