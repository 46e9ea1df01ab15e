package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// SettlementMetrics counts payment lifecycle events.
type SettlementMetrics struct {
	initiated *prometheus.CounterVec
	settled   *prometheus.CounterVec
	webhooks  *prometheus.CounterVec
	refunds   *prometheus.CounterVec
	providers *prometheus.CounterVec
}

// NewSettlementMetrics registers the settlement counters on reg.
func NewSettlementMetrics(reg prometheus.Registerer) *SettlementMetrics {
	if reg == nil {
		return &SettlementMetrics{}
	}
	initiated := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_initiated_total",
		Help: "Transactions created, by payment method and resulting state.",
	}, []string{"method", "state"})
	settled := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_settled_total",
		Help: "Settlement calls by outcome and whether they mutated a transaction.",
	}, []string{"outcome", "result"})
	webhooks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_webhooks_total",
		Help: "Inbound provider webhooks by method and handling result.",
	}, []string{"method", "result"})
	refunds := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_refunded_total",
		Help: "Refunds by resulting transaction state.",
	}, []string{"state"})
	providers := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_provider_errors_total",
		Help: "Provider call failures by method and operation.",
	}, []string{"method", "operation"})
	reg.MustRegister(initiated, settled, webhooks, refunds, providers)
	return &SettlementMetrics{
		initiated: initiated,
		settled:   settled,
		webhooks:  webhooks,
		refunds:   refunds,
		providers: providers,
	}
}

func (m *SettlementMetrics) IncInitiated(method, state string) {
	if m == nil || m.initiated == nil {
		return
	}
	m.initiated.WithLabelValues(normalizeLabel(method), normalizeLabel(state)).Inc()
}

// IncSettled records a settle call; result is "applied", "noop" or "unknown_ref".
func (m *SettlementMetrics) IncSettled(outcome, result string) {
	if m == nil || m.settled == nil {
		return
	}
	m.settled.WithLabelValues(normalizeLabel(outcome), normalizeLabel(result)).Inc()
}

func (m *SettlementMetrics) IncWebhook(method, result string) {
	if m == nil || m.webhooks == nil {
		return
	}
	m.webhooks.WithLabelValues(normalizeLabel(method), normalizeLabel(result)).Inc()
}

func (m *SettlementMetrics) IncRefund(state string) {
	if m == nil || m.refunds == nil {
		return
	}
	m.refunds.WithLabelValues(normalizeLabel(state)).Inc()
}

func (m *SettlementMetrics) IncProviderError(method, operation string) {
	if m == nil || m.providers == nil {
		return
	}
	m.providers.WithLabelValues(normalizeLabel(method), normalizeLabel(operation)).Inc()
}
