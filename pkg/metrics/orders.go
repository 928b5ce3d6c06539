package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// OrderMetrics records counters for the order, payment and delivery flows.
type OrderMetrics struct {
	created     prometheus.Counter
	transitions *prometheus.CounterVec
	cancelled   *prometheus.CounterVec
	payments    *prometheus.CounterVec
	refunds     prometheus.Counter
	stockDenied prometheus.Counter
}

// NewOrderMetrics registers the order flow metrics on the provided registerer.
func NewOrderMetrics(reg prometheus.Registerer) *OrderMetrics {
	if reg == nil {
		return &OrderMetrics{}
	}
	created := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Orders accepted with stock reserved.",
	})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "order_transitions_total",
		Help: "Order status transitions by target status.",
	}, []string{"to"})
	cancelled := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_cancelled_total",
		Help: "Cancelled orders by whether stock was restored.",
	}, []string{"stock_restored"})
	payments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_settled_total",
		Help: "Settled payments by outcome.",
	}, []string{"outcome"})
	refunds := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "refunds_total",
		Help: "Refunds settled against the gateway.",
	})
	stockDenied := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orders_rejected_out_of_stock_total",
		Help: "Order attempts rejected because stock reservation failed.",
	})
	reg.MustRegister(created, transitions, cancelled, payments, refunds, stockDenied)
	return &OrderMetrics{
		created:     created,
		transitions: transitions,
		cancelled:   cancelled,
		payments:    payments,
		refunds:     refunds,
		stockDenied: stockDenied,
	}
}

// IncCreated counts an accepted order.
func (m *OrderMetrics) IncCreated() {
	if m == nil || m.created == nil {
		return
	}
	m.created.Inc()
}

// IncTransition counts a lifecycle transition into the given status.
func (m *OrderMetrics) IncTransition(to string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(to)).Inc()
}

// IncCancelled counts a cancellation and whether stock came back.
func (m *OrderMetrics) IncCancelled(stockRestored bool) {
	if m == nil || m.cancelled == nil {
		return
	}
	label := "no"
	if stockRestored {
		label = "yes"
	}
	m.cancelled.WithLabelValues(label).Inc()
}

// IncPayment counts a payment settlement outcome.
func (m *OrderMetrics) IncPayment(outcome string) {
	if m == nil || m.payments == nil {
		return
	}
	m.payments.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncRefund counts a settled refund.
func (m *OrderMetrics) IncRefund() {
	if m == nil || m.refunds == nil {
		return
	}
	m.refunds.Inc()
}

// IncStockDenied counts a reservation failure.
func (m *OrderMetrics) IncStockDenied() {
	if m == nil || m.stockDenied == nil {
		return
	}
	m.stockDenied.Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
