package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestBookingMetricsCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBookingMetrics(reg)

	m.ConfirmationOutcome("booked")
	m.ConfirmationOutcome("booked")
	m.ConfirmationOutcome("lost_race")
	m.NotificationResult("request", nil)
	m.NotificationResult("request", errors.New("smtp down"))
	m.AppointmentRequested("created")
	m.OutboxRelayed(3, nil)

	if got := testutil.ToFloat64(m.confirmationsTotal.WithLabelValues("booked")); got != 2 {
		t.Fatalf("expected 2 booked, got %v", got)
	}
	if got := testutil.ToFloat64(m.notificationsTotal.WithLabelValues("request", "failed")); got != 1 {
		t.Fatalf("expected 1 failed notification, got %v", got)
	}
	if got := testutil.ToFloat64(m.outboxTotal.WithLabelValues("published")); got != 3 {
		t.Fatalf("expected 3 published, got %v", got)
	}
}

func TestNilBookingMetricsIsSafe(t *testing.T) {
	var m *BookingMetrics
	m.ConfirmationOutcome("booked")
	m.AppointmentRequested("created")
	m.NotificationResult("booked", nil)
	m.OutboxRelayed(1, errors.New("x"))
}
