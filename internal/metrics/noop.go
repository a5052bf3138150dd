package metrics

import "time"

// NoopSink is a no-op implementation of Sink.
// Used when metrics are disabled to avoid nil checks.
type NoopSink struct{}

func NewNoopSink() *NoopSink {
	return &NoopSink{}
}

func (n *NoopSink) DispatchCompleted(command, source, outcome string)       {}
func (n *NoopSink) ExchangeCompleted(outcome string, duration time.Duration) {}
func (n *NoopSink) ReportCompleted(status string)                            {}
func (n *NoopSink) RevokeCompleted(outcome string)                           {}
