package handlers

import (
	"net/http"

	"github.com/md-rashed-zaman/slotconfirm/libs/httpx"
)

// Register mounts the booking routes. public wraps the unauthenticated
// endpoints (rate limiting). The admin listing is mounted only when
// adminToken is set.
func (h *BookingHandler) Register(mux *http.ServeMux, public httpx.Middleware, adminToken string) {
	wrap := func(f http.HandlerFunc) http.Handler {
		if public == nil {
			return f
		}
		return public(f)
	}

	mux.Handle("/api/slots", wrap(h.Slots))
	mux.Handle("/api/v1/public/slots", wrap(h.Slots))
	mux.Handle("/api/appointments", wrap(h.CreateAppointment))
	mux.Handle("/api/v1/public/appointments", wrap(h.CreateAppointment))
	mux.Handle("/confirm", wrap(h.Confirm))
	mux.HandleFunc("/api/health", h.Health)

	if adminToken != "" {
		mux.Handle("/api/v1/appointments", RequireBearer(adminToken, http.HandlerFunc(h.ListAppointments)))
	}
}
