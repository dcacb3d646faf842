/*
Package remote implements the control-plane side of the agent: a synchronous
JSON-over-HTTP client for ground-truth queries, heartbeat reports, and port
status pushes, plus a long-polling notifier that delivers inbound
notifications in order.

ReportState distinguishes two failure classes: ErrReportingNotSupported,
returned when the control plane does not implement agent state reporting at
all (terminal for the reporter), and everything else, which is transient and
retried on the next heartbeat tick.
*/
package remote
