package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics counts appointment requests, confirmation outcomes,
// notification attempts and outbox relay results.
type BookingMetrics struct {
	requestsTotal      *prometheus.CounterVec
	confirmationsTotal *prometheus.CounterVec
	notificationsTotal *prometheus.CounterVec
	outboxTotal        *prometheus.CounterVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "slotconfirm",
			Subsystem: "booking",
			Name:      "appointment_requests_total",
			Help:      "Appointment requests by result",
		}, []string{"result"}),
		confirmationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "slotconfirm",
			Subsystem: "booking",
			Name:      "confirmations_total",
			Help:      "Confirmation link visits by outcome",
		}, []string{"outcome"}),
		notificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "slotconfirm",
			Subsystem: "booking",
			Name:      "notifications_total",
			Help:      "Notification attempts by kind and status",
		}, []string{"kind", "status"}),
		outboxTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "slotconfirm",
			Subsystem: "outbox",
			Name:      "events_total",
			Help:      "Outbox events relayed to Kafka by status",
		}, []string{"status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.requestsTotal, m.confirmationsTotal, m.notificationsTotal, m.outboxTotal)
	return m
}

func (m *BookingMetrics) AppointmentRequested(result string) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(result).Inc()
}

func (m *BookingMetrics) ConfirmationOutcome(outcome string) {
	if m == nil {
		return
	}
	m.confirmationsTotal.WithLabelValues(outcome).Inc()
}

func (m *BookingMetrics) NotificationResult(kind string, err error) {
	if m == nil {
		return
	}
	status := "sent"
	if err != nil {
		status = "failed"
	}
	m.notificationsTotal.WithLabelValues(kind, status).Inc()
}

func (m *BookingMetrics) OutboxRelayed(published int, err error) {
	if m == nil {
		return
	}
	if published > 0 {
		m.outboxTotal.WithLabelValues("published").Add(float64(published))
	}
	if err != nil {
		m.outboxTotal.WithLabelValues("failed").Inc()
	}
}
