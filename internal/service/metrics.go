package service

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the order-domain collectors. A nil *Metrics records nothing.
type Metrics struct {
	created     prometheus.Counter
	transitions *prometheus.CounterVec
	rejections  *prometheus.CounterVec
}

// NewMetrics registers the order collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		created: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orders_created_total",
			Help: "Total number of orders placed",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "order_status_transitions_total",
			Help: "Total number of order status changes",
		}, []string{"from", "to"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "order_create_rejections_total",
			Help: "Order submissions rejected by validation, by error code",
		}, []string{"code"}),
	}
	reg.MustRegister(m.created, m.transitions, m.rejections)
	return m
}

func (m *Metrics) orderCreated() {
	if m != nil {
		m.created.Inc()
	}
}

func (m *Metrics) statusChanged(from, to string) {
	if m != nil {
		m.transitions.WithLabelValues(from, to).Inc()
	}
}

func (m *Metrics) createRejected(code string) {
	if m != nil {
		m.rejections.WithLabelValues(code).Inc()
	}
}
