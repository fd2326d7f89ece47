package pool

import "time"

type DiagnosticKind string

const (
	DiagnosticLeak          DiagnosticKind = "connection_leak"
	DiagnosticSlowAcquire   DiagnosticKind = "slow_acquire"
	DiagnosticSlowQuery     DiagnosticKind = "slow_query"
	DiagnosticHealthCheck   DiagnosticKind = "health_check_failed"
	DiagnosticCircuitChange DiagnosticKind = "circuit_state_change"
)

// Diagnostic is emitted to Options.OnDiagnostic whenever the pool notices
// something an operator should look at.
type Diagnostic struct {
	Kind     DiagnosticKind
	Message  string
	Site     string        // acquisition call site, for leaks
	Duration time.Duration // held, acquire or query duration
	At       time.Time
}
