package metrics

import (
	"time"

	"github.com/FriendsOfShopware/automation-bot/internal/log"
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusSink implements Sink using the Prometheus client library.
// Registration errors are logged but never propagated.
type PrometheusSink struct {
	dispatchesTotal  *prometheus.CounterVec
	exchangesTotal   *prometheus.CounterVec
	exchangeDuration prometheus.Histogram
	reportsTotal     *prometheus.CounterVec
	revokesTotal     *prometheus.CounterVec
}

func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	s := &PrometheusSink{
		dispatchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "automation_bot_dispatches_total",
			Help: "Total number of command dispatches.",
		}, []string{"command", "source", "outcome"}),
		exchangesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "automation_bot_exchanges_total",
			Help: "Total number of credential exchanges.",
		}, []string{"outcome"}),
		exchangeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "automation_bot_exchange_duration_seconds",
			Help:    "Credential exchange latency in seconds (includes upstream mint).",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		reportsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "automation_bot_reports_total",
			Help: "Total number of completion reports per terminal status.",
		}, []string{"status"}),
		revokesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "automation_bot_revokes_total",
			Help: "Total number of credential revocation attempts.",
		}, []string{"outcome"}),
	}

	s.register(reg, s.dispatchesTotal, "automation_bot_dispatches_total")
	s.register(reg, s.exchangesTotal, "automation_bot_exchanges_total")
	s.register(reg, s.exchangeDuration, "automation_bot_exchange_duration_seconds")
	s.register(reg, s.reportsTotal, "automation_bot_reports_total")
	s.register(reg, s.revokesTotal, "automation_bot_revokes_total")
	return s
}

func (s *PrometheusSink) register(reg prometheus.Registerer, c prometheus.Collector, name string) {
	if reg == nil {
		return
	}
	if err := reg.Register(c); err != nil {
		log.WithComponent("metrics").Warn("metric registration failed", "metric", name, "error", err)
	}
}

func (s *PrometheusSink) DispatchCompleted(command, source, outcome string) {
	s.dispatchesTotal.WithLabelValues(command, source, outcome).Inc()
}

func (s *PrometheusSink) ExchangeCompleted(outcome string, duration time.Duration) {
	s.exchangesTotal.WithLabelValues(outcome).Inc()
	s.exchangeDuration.Observe(duration.Seconds())
}

func (s *PrometheusSink) ReportCompleted(status string) {
	s.reportsTotal.WithLabelValues(status).Inc()
}

func (s *PrometheusSink) RevokeCompleted(outcome string) {
	s.revokesTotal.WithLabelValues(outcome).Inc()
}
