package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/slotconfirm/libs/httpx"
	"github.com/md-rashed-zaman/slotconfirm/services/booking-service/internal/booking"
)

type BookingHandler struct {
	svc     *booking.Service
	logger  *slog.Logger
	baseURL string
}

// NewBookingHandler serves the public booking API. baseURL overrides the
// link host inferred from the request when non-empty.
func NewBookingHandler(svc *booking.Service, logger *slog.Logger, baseURL string) *BookingHandler {
	return &BookingHandler{svc: svc, logger: logger, baseURL: baseURL}
}

type slotItem struct {
	ID    int64  `json:"id"`
	Start string `json:"start"`
	End   string `json:"end"`
}

type createAppointmentRequest struct {
	SlotID        flexInt64 `json:"slotId"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	Phone         string    `json:"phone"`
	TermsAccepted flexBool  `json:"termsAccepted"`
}

type createAppointmentResponse struct {
	OK            bool   `json:"ok"`
	AppointmentID string `json:"appointmentId"`
}

func (h *BookingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	slots, err := h.svc.ListFreeSlots(r.Context())
	if err != nil {
		h.logger.Error("list free slots failed", "err", err)
		http.Error(w, "failed to list slots", http.StatusInternalServerError)
		return
	}

	items := make([]slotItem, 0, len(slots))
	for _, s := range slots {
		items = append(items, slotItem{
			ID:    s.ID,
			Start: s.Start.UTC().Format(time.RFC3339),
			End:   s.End.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *BookingHandler) CreateAppointment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	req, err := decodeCreateRequest(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}

	appt, err := h.svc.RequestAppointment(r.Context(), booking.RequestInput{
		SlotID:        int64(req.SlotID),
		Name:          req.Name,
		Email:         req.Email,
		Phone:         req.Phone,
		TermsAccepted: bool(req.TermsAccepted),
		BaseURL:       httpx.BaseURL(r, h.baseURL),
	})
	switch {
	case errors.Is(err, booking.ErrInvalidRequest):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Missing required fields"})
		return
	case errors.Is(err, booking.ErrSlotUnavailable):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "Slot not available"})
		return
	case err != nil:
		h.logger.Error("create appointment failed", "err", err, "slot_id", int64(req.SlotID))
		http.Error(w, "failed to create appointment", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, createAppointmentResponse{OK: true, AppointmentID: appt.ID})
}

// decodeCreateRequest accepts JSON and urlencoded form posts.
func decodeCreateRequest(r *http.Request) (createAppointmentRequest, error) {
	var req createAppointmentRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		if err := r.ParseForm(); err != nil {
			return req, err
		}
		if raw := strings.TrimSpace(r.PostForm.Get("slotId")); raw != "" {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return req, err
			}
			req.SlotID = flexInt64(id)
		}
		req.Name = r.PostForm.Get("name")
		req.Email = r.PostForm.Get("email")
		req.Phone = r.PostForm.Get("phone")
		req.TermsAccepted = flexBool(truthy(r.PostForm.Get("termsAccepted")))
		return req, nil
	}
	err := json.NewDecoder(r.Body).Decode(&req)
	return req, err
}

var confirmMessages = map[booking.Outcome]string{
	booking.OutcomeAwaitingOtherParty: "Confirmation saved. You can close this page.",
	booking.OutcomeAlreadyConfirmed:   "Already confirmed.",
	booking.OutcomeBooked:             "Confirmation saved. Your appointment is booked. You can close this page.",
	booking.OutcomeLostRace:           "Confirmation saved, but this time slot is no longer available. Please contact the provider.",
}

// Confirm is the target of the emailed links.
func (h *BookingHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	token := strings.TrimSpace(r.URL.Query().Get("token"))
	party, err := booking.ParseParty(r.URL.Query().Get("who"))
	if token == "" || err != nil {
		http.Error(w, "Invalid link", http.StatusBadRequest)
		return
	}

	res, err := h.svc.Confirm(r.Context(), token, party)
	switch {
	case errors.Is(err, booking.ErrInvalidRequest):
		http.Error(w, "Invalid link", http.StatusBadRequest)
		return
	case errors.Is(err, booking.ErrTokenNotFound), errors.Is(err, booking.ErrPartyMismatch):
		http.Error(w, "Token not found", http.StatusNotFound)
		return
	case err != nil:
		h.logger.Error("confirm failed", "err", err, "party", party)
		http.Error(w, "Something went wrong. Please try again later.", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(confirmMessages[res.Outcome]))
}

type appointmentItem struct {
	AppointmentID       string `json:"appointmentId"`
	SlotID              int64  `json:"slotId"`
	Start               string `json:"start"`
	End                 string `json:"end"`
	CustomerName        string `json:"customerName"`
	CustomerEmail       string `json:"customerEmail"`
	CustomerPhone       string `json:"customerPhone,omitempty"`
	CustomerConfirmedAt string `json:"customerConfirmedAt,omitempty"`
	ProviderConfirmedAt string `json:"providerConfirmedAt,omitempty"`
	State               string `json:"state"`
	CreatedAt           string `json:"createdAt"`
}

// ListAppointments is the operator view; state=race_lost finds appointments
// that need manual follow-up.
func (h *BookingHandler) ListAppointments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	state, err := booking.ParseState(r.URL.Query().Get("state"))
	if err != nil {
		http.Error(w, "invalid state", http.StatusBadRequest)
		return
	}
	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	views, err := h.svc.ListAppointments(r.Context(), booking.ListFilter{State: state, Limit: limit})
	if err != nil {
		h.logger.Error("list appointments failed", "err", err)
		http.Error(w, "failed to list appointments", http.StatusInternalServerError)
		return
	}

	items := make([]appointmentItem, 0, len(views))
	for _, v := range views {
		a := v.Appointment
		items = append(items, appointmentItem{
			AppointmentID:       a.ID,
			SlotID:              a.SlotID,
			Start:               v.Slot.Start.UTC().Format(time.RFC3339),
			End:                 v.Slot.End.UTC().Format(time.RFC3339),
			CustomerName:        a.Customer.Name,
			CustomerEmail:       a.Customer.Email,
			CustomerPhone:       a.Customer.Phone,
			CustomerConfirmedAt: formatOptional(a.CustomerConfirmedAt),
			ProviderConfirmedAt: formatOptional(a.ProviderConfirmedAt),
			State:               string(v.State),
			CreatedAt:           a.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *BookingHandler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func formatOptional(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func truthy(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}

// flexInt64 accepts 12 or "12".
type flexInt64 int64

func (f *flexInt64) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid id %q", s)
	}
	*f = flexInt64(n)
	return nil
}

// flexBool accepts true, "true", "on" and 1.
type flexBool bool

func (f *flexBool) UnmarshalJSON(b []byte) error {
	*f = flexBool(truthy(strings.Trim(string(b), `"`)))
	return nil
}
