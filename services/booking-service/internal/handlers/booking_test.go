package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/md-rashed-zaman/slotconfirm/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/slotconfirm/services/booking-service/internal/storage"
	"github.com/md-rashed-zaman/slotconfirm/services/booking-service/internal/tokens"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type outbox struct {
	mu   sync.Mutex
	msgs []booking.Message
}

func (o *outbox) Send(_ context.Context, msg booking.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.msgs = append(o.msgs, msg)
	return nil
}

type server struct {
	mux  *http.ServeMux
	mem  *storage.Memory
	sent *outbox
	slot booking.Slot
}

func newServer(t *testing.T) *server {
	t.Helper()
	mem := storage.NewMemory()
	issuer, err := tokens.NewIssuer(nil)
	require.NoError(t, err)
	sent := &outbox{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := booking.NewService(booking.Deps{
		Slots:        mem.Slots(),
		Appointments: mem.Appointments(),
		Tokens:       issuer,
		Notifier:     sent,
		Logger:       logger,
	}, booking.Config{ProviderEmail: "provider@clinic.test"})

	start := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Minute)
	slot, err := mem.Slots().Insert(context.Background(), start, start.Add(30*time.Minute))
	require.NoError(t, err)

	mux := http.NewServeMux()
	NewBookingHandler(svc, logger, "").Register(mux, nil, "secret")
	return &server{mux: mux, mem: mem, sent: sent, slot: slot}
}

func (s *server) do(method, target, contentType, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rw := httptest.NewRecorder()
	s.mux.ServeHTTP(rw, req)
	return rw
}

func (s *server) linkPath(t *testing.T, i int) string {
	t.Helper()
	s.sent.mu.Lock()
	body := s.sent.msgs[i].Body
	s.sent.mu.Unlock()
	start := strings.Index(body, "http://")
	require.GreaterOrEqual(t, start, 0, "no link in %q", body)
	u, err := url.Parse(strings.Fields(body[start:])[0])
	require.NoError(t, err)
	return u.RequestURI()
}

func TestSlotsEndpoint(t *testing.T) {
	s := newServer(t)
	rw := s.do(http.MethodGet, "/api/slots", "", "")
	require.Equal(t, http.StatusOK, rw.Code)

	var items []slotItem
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &items))
	require.Len(t, items, 1)
	assert.Equal(t, s.slot.ID, items[0].ID)
	assert.Equal(t, s.slot.Start.Format(time.RFC3339), items[0].Start)

	assert.Equal(t, http.StatusMethodNotAllowed, s.do(http.MethodPost, "/api/slots", "", "").Code)
}

func TestCreateAndConfirmFlow(t *testing.T) {
	s := newServer(t)

	body := `{"slotId":` + jsonInt(s.slot.ID) + `,"name":"Ann","email":"ann@example.com","termsAccepted":true}`
	rw := s.do(http.MethodPost, "/api/appointments", "application/json", body)
	require.Equal(t, http.StatusCreated, rw.Code, rw.Body.String())
	var created createAppointmentResponse
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &created))
	assert.True(t, created.OK)
	assert.NotEmpty(t, created.AppointmentID)

	customerLink, providerLink := s.linkPath(t, 0), s.linkPath(t, 1)
	assert.Contains(t, customerLink, "who=customer")

	rw = s.do(http.MethodGet, customerLink, "", "")
	assert.Equal(t, http.StatusOK, rw.Code)
	assert.Equal(t, confirmMessages[booking.OutcomeAwaitingOtherParty], rw.Body.String())

	rw = s.do(http.MethodGet, providerLink, "", "")
	assert.Equal(t, http.StatusOK, rw.Code)
	assert.Equal(t, confirmMessages[booking.OutcomeBooked], rw.Body.String())

	rw = s.do(http.MethodGet, providerLink, "", "")
	assert.Equal(t, confirmMessages[booking.OutcomeAlreadyConfirmed], rw.Body.String())

	rw = s.do(http.MethodGet, "/api/slots", "", "")
	assert.JSONEq(t, `[]`, rw.Body.String())

	// The slot is gone; a new request conflicts.
	rw = s.do(http.MethodPost, "/api/v1/public/appointments", "application/json", body)
	assert.Equal(t, http.StatusConflict, rw.Code)
	assert.JSONEq(t, `{"error":"Slot not available"}`, rw.Body.String())
}

func TestCreateAppointmentForm(t *testing.T) {
	s := newServer(t)
	form := url.Values{
		"slotId":        {jsonInt(s.slot.ID)},
		"name":          {"Bob"},
		"email":         {"bob@example.com"},
		"termsAccepted": {"on"},
	}
	rw := s.do(http.MethodPost, "/api/appointments", "application/x-www-form-urlencoded", form.Encode())
	assert.Equal(t, http.StatusCreated, rw.Code, rw.Body.String())
}

func TestCreateAppointmentValidation(t *testing.T) {
	s := newServer(t)
	cases := []string{
		`{"slotId":"` + jsonInt(s.slot.ID) + `","name":"Ann","email":"ann@example.com","termsAccepted":false}`,
		`{"slotId":` + jsonInt(s.slot.ID) + `,"email":"ann@example.com","termsAccepted":true}`,
		`{"name":"Ann","email":"ann@example.com","termsAccepted":true}`,
	}
	for _, body := range cases {
		rw := s.do(http.MethodPost, "/api/appointments", "application/json", body)
		assert.Equal(t, http.StatusBadRequest, rw.Code, body)
	}
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/api/appointments", "application/json", `{`).Code)

	rw := s.do(http.MethodPost, "/api/appointments", "application/json",
		`{"slotId":999,"name":"Ann","email":"ann@example.com","termsAccepted":true}`)
	assert.Equal(t, http.StatusConflict, rw.Code)

	s.sent.mu.Lock()
	defer s.sent.mu.Unlock()
	assert.Empty(t, s.sent.msgs)
}

func TestConfirmErrors(t *testing.T) {
	s := newServer(t)
	body := `{"slotId":` + jsonInt(s.slot.ID) + `,"name":"Ann","email":"ann@example.com","termsAccepted":true}`
	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/api/appointments", "application/json", body).Code)
	customerLink := s.linkPath(t, 0)

	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/confirm?token=abc&who=admin", "", "").Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/confirm?who=customer", "", "").Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/confirm?token=abc&who=customer", "", "").Code)

	mismatched := strings.Replace(customerLink, "who=customer", "who=provider", 1)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, mismatched, "", "").Code)
}

func TestConfirmLostRace(t *testing.T) {
	s := newServer(t)
	body := `{"slotId":` + jsonInt(s.slot.ID) + `,"name":"Ann","email":"ann@example.com","termsAccepted":true}`
	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/api/appointments", "application/json", body).Code)
	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/api/appointments", "application/json", body).Code)
	a1c, a1p, a2c, a2p := s.linkPath(t, 0), s.linkPath(t, 1), s.linkPath(t, 2), s.linkPath(t, 3)

	s.do(http.MethodGet, a1c, "", "")
	s.do(http.MethodGet, a1p, "", "")
	s.do(http.MethodGet, a2c, "", "")
	rw := s.do(http.MethodGet, a2p, "", "")
	assert.Equal(t, http.StatusOK, rw.Code)
	assert.Contains(t, rw.Body.String(), "Please contact the provider")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/appointments?state=race_lost", nil)
	req.Header.Set("Authorization", "Bearer secret")
	list := httptest.NewRecorder()
	s.mux.ServeHTTP(list, req)
	require.Equal(t, http.StatusOK, list.Code)
	var items []appointmentItem
	require.NoError(t, json.Unmarshal(list.Body.Bytes(), &items))
	require.Len(t, items, 1)
	assert.Equal(t, "race_lost", items[0].State)
}

func TestAdminListRequiresToken(t *testing.T) {
	s := newServer(t)
	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/api/v1/appointments", "", "").Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/appointments?state=bogus", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rw := httptest.NewRecorder()
	s.mux.ServeHTTP(rw, req)
	assert.Equal(t, http.StatusBadRequest, rw.Code)
}

func TestHealth(t *testing.T) {
	s := newServer(t)
	rw := s.do(http.MethodGet, "/api/health", "", "")
	assert.Equal(t, http.StatusOK, rw.Code)
	assert.JSONEq(t, `{"ok":true}`, rw.Body.String())
}

func jsonInt(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}
