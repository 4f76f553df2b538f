package metrics

import "github.com/prometheus/client_golang/prometheus"

type DeliveryMetrics struct {
	delivered *prometheus.CounterVec
}

func NewDeliveryMetrics(reg prometheus.Registerer) *DeliveryMetrics {
	m := &DeliveryMetrics{
		delivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "slotconfirm",
			Subsystem: "notification",
			Name:      "deliveries_total",
			Help:      "Email deliveries by provider and status.",
		}, []string{"provider", "status"}),
	}
	if reg != nil {
		reg.MustRegister(m.delivered)
	}
	return m
}

func (m *DeliveryMetrics) Delivered(provider, status string) {
	if m == nil {
		return
	}
	m.delivered.WithLabelValues(provider, status).Inc()
}
