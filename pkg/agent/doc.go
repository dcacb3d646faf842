/*
Package agent contains the core of the monitor agent: the reconciliation
engine, the state reporter, and the notification dispatcher.

# Reconciliation

The engine keeps the driver's enforced monitor set equal to the set the
control plane considers active. It converges through two paths: a full
resync, which diffs a fresh driver snapshot against the remote active set
and issues the necessary stop/start calls, and targeted updates driven by
inbound notifications, which consult the control plane for a single
monitor's current record before acting.

A single mutex serializes the full resync and all notification handlers.
This coarse discipline is deliberate: a resync interleaving its driver
calls with a concurrent targeted update on the same monitor id would race,
and one shared lock is the simplest correct answer.

# Failure recovery

Every failed step, remote fetch, driver stop, driver start, sets a sticky
needs-resync flag under the same mutex. The engine's Run loop wakes on a
fixed interval, and when the flag is set, clears it and runs a full resync.
Convergence is therefore eventual: any transient failure is repaired by the
next successful pass. Nothing in this package propagates an error out of a
handler; failures are absorbed, logged, and folded into the flag.

# Heartbeat gating

The first full resync does not run at construction. The state reporter
triggers it after the first successful heartbeat, keeping agent
registration ordered before monitor enforcement, or immediately when the
control plane does not support reporting.
*/
package agent
