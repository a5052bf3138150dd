package metrics

import "time"

// Sink records broker metrics. All methods are fire-and-forget:
// implementations MUST NOT block or propagate errors.
type Sink interface {
	// DispatchCompleted records one dispatch attempt per command and trigger
	// source; outcome is "ok" or "error".
	DispatchCompleted(command, source, outcome string)

	// ExchangeCompleted records one credential exchange; outcome is "ok" or
	// an error code (exchange_not_found, invalid_transition, mint_failed, ...).
	ExchangeCompleted(outcome string, duration time.Duration)

	// ReportCompleted records one completion report per terminal status.
	ReportCompleted(status string)

	// RevokeCompleted records one credential revocation attempt.
	RevokeCompleted(outcome string)
}
