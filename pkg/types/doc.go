/*
Package types defines the shared data structures exchanged between the
monitor agent's components: monitor records as known to the control plane
and the driver, inbound notification envelopes, and the agent heartbeat
payload.

Monitors are keyed by their opaque ID for all set-membership comparisons;
the remaining fields are payload the reconciliation engine passes through
to the driver without interpretation.
*/
package types
