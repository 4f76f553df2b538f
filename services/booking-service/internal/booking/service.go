package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	EventAppointmentRequested = "booking.appointment.requested.v1"
	EventAppointmentBooked    = "booking.appointment.booked.v1"
	EventAppointmentRaceLost  = "booking.appointment.race_lost.v1"
)

type Deps struct {
	Slots        SlotStore
	Appointments AppointmentStore
	Tokens       TokenIssuer
	Notifier     Notifier
	Events       EventRecorder
	Observer     Observer
	Logger       *slog.Logger
}

type Config struct {
	ProviderEmail string
	NotifyTimeout time.Duration
	Now           func() time.Time
}

// Service runs the two-party confirmation protocol. It holds no locks of its
// own: every cross-request guarantee comes from the stores.
type Service struct {
	slots    SlotStore
	appts    AppointmentStore
	tokens   TokenIssuer
	notifier Notifier
	events   EventRecorder
	observer Observer
	logger   *slog.Logger
	tracer   trace.Tracer
	cfg      Config
}

func NewService(deps Deps, cfg Config) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = 10 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		slots:    deps.Slots,
		appts:    deps.Appointments,
		tokens:   deps.Tokens,
		notifier: deps.Notifier,
		events:   deps.Events,
		observer: deps.Observer,
		logger:   deps.Logger,
		tracer:   otel.Tracer("booking"),
		cfg:      cfg,
	}
}

func (s *Service) ListFreeSlots(ctx context.Context) ([]Slot, error) {
	return s.slots.ListFree(ctx, s.cfg.Now().UTC())
}

type RequestInput struct {
	SlotID        int64
	Name          string
	Email         string
	Phone         string
	TermsAccepted bool
	// BaseURL is the scheme and host the confirmation links point at.
	BaseURL string
}

func (in RequestInput) normalize() (RequestInput, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	in.Phone = strings.TrimSpace(in.Phone)
	if in.SlotID <= 0 || in.Name == "" || in.Email == "" || !in.TermsAccepted {
		return in, fmt.Errorf("%w: missing required fields", ErrInvalidRequest)
	}
	addr, err := mail.ParseAddress(in.Email)
	if err != nil || addr.Address != in.Email {
		return in, fmt.Errorf("%w: invalid email", ErrInvalidRequest)
	}
	return in, nil
}

// RequestAppointment creates a pending appointment and emails a confirmation
// link to each party. Availability is checked here on a best-effort basis;
// the binding check is the slot lock at dual confirmation.
func (s *Service) RequestAppointment(ctx context.Context, in RequestInput) (Appointment, error) {
	ctx, span := s.tracer.Start(ctx, "booking.request_appointment",
		trace.WithAttributes(attribute.Int64("slot.id", in.SlotID)))
	defer span.End()

	appt, slot, tokens, err := s.createAppointment(ctx, in)
	if err != nil {
		s.observeRequest(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Appointment{}, err
	}
	s.observeRequest(nil)
	span.SetAttributes(attribute.String("appointment.id", appt.ID))

	s.record(ctx, EventAppointmentRequested, appt, slot)
	s.notify(ctx, "request", appt.ID,
		customerRequestMessage(appt.Customer, slot, ConfirmLink(in.BaseURL, tokens[0], PartyCustomer)),
		providerRequestMessage(s.cfg.ProviderEmail, appt.Customer, slot, ConfirmLink(in.BaseURL, tokens[1], PartyProvider)),
	)
	return appt, nil
}

func (s *Service) createAppointment(ctx context.Context, in RequestInput) (Appointment, Slot, [2]string, error) {
	var tokens [2]string
	in, err := in.normalize()
	if err != nil {
		return Appointment{}, Slot{}, tokens, err
	}

	slot, err := s.slots.Get(ctx, in.SlotID)
	if errors.Is(err, ErrNotFound) {
		return Appointment{}, Slot{}, tokens, ErrSlotUnavailable
	}
	if err != nil {
		return Appointment{}, Slot{}, tokens, fmt.Errorf("get slot: %w", err)
	}
	if slot.Booked {
		return Appointment{}, Slot{}, tokens, ErrSlotUnavailable
	}

	customerToken, providerToken, err := s.tokens.IssuePair()
	if err != nil {
		return Appointment{}, Slot{}, tokens, fmt.Errorf("issue tokens: %w", err)
	}
	appt, err := s.appts.Create(ctx, NewAppointment{
		SlotID:            slot.ID,
		Customer:          Customer{Name: in.Name, Email: in.Email, Phone: in.Phone},
		TermsAccepted:     in.TermsAccepted,
		CustomerTokenHash: s.tokens.Hash(customerToken),
		ProviderTokenHash: s.tokens.Hash(providerToken),
	})
	if err != nil {
		if errors.Is(err, ErrSlotUnavailable) || errors.Is(err, ErrInvalidRequest) {
			return Appointment{}, Slot{}, tokens, err
		}
		return Appointment{}, Slot{}, tokens, fmt.Errorf("create appointment: %w", err)
	}
	tokens[0], tokens[1] = customerToken, providerToken
	return appt, slot, tokens, nil
}

// Confirm applies one party's confirmation. The returned error is one of
// ErrInvalidRequest, ErrTokenNotFound, ErrPartyMismatch or a storage failure;
// every protocol result, including a lost race, is an Outcome.
func (s *Service) Confirm(ctx context.Context, token string, claimed Party) (ConfirmResult, error) {
	ctx, span := s.tracer.Start(ctx, "booking.confirm",
		trace.WithAttributes(attribute.String("party", string(claimed))))
	defer span.End()

	res, err := s.confirm(ctx, token, claimed)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if s.observer != nil {
			s.observer.ConfirmationOutcome(errorLabel(err))
		}
		return ConfirmResult{}, err
	}
	span.SetAttributes(
		attribute.String("appointment.id", res.AppointmentID),
		attribute.String("outcome", string(res.Outcome)),
	)
	if s.observer != nil {
		s.observer.ConfirmationOutcome(string(res.Outcome))
	}
	return res, nil
}

func (s *Service) confirm(ctx context.Context, token string, claimed Party) (ConfirmResult, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return ConfirmResult{}, fmt.Errorf("%w: token required", ErrInvalidRequest)
	}
	if claimed != PartyCustomer && claimed != PartyProvider {
		return ConfirmResult{}, fmt.Errorf("%w: party must be customer or provider", ErrInvalidRequest)
	}

	appt, party, err := s.appts.FindByTokenHash(ctx, s.tokens.Hash(token))
	if errors.Is(err, ErrNotFound) {
		return ConfirmResult{}, ErrTokenNotFound
	}
	if err != nil {
		return ConfirmResult{}, fmt.Errorf("find token: %w", err)
	}
	if party != claimed {
		return ConfirmResult{}, ErrPartyMismatch
	}

	res := ConfirmResult{AppointmentID: appt.ID, SlotID: appt.SlotID, Party: party}
	if appt.Confirmed(party) {
		res.Outcome = OutcomeAlreadyConfirmed
		return res, nil
	}

	changed, err := s.appts.MarkConfirmed(ctx, appt.ID, party)
	if err != nil {
		return ConfirmResult{}, fmt.Errorf("mark confirmed: %w", err)
	}
	if !changed {
		// Another visit with the same token got there first.
		res.Outcome = OutcomeAlreadyConfirmed
		return res, nil
	}

	appt, err = s.appts.Get(ctx, appt.ID)
	if err != nil {
		return ConfirmResult{}, fmt.Errorf("reload appointment: %w", err)
	}
	if !appt.BothConfirmed() {
		res.Outcome = OutcomeAwaitingOtherParty
		return res, nil
	}

	// Start and end never change, so the copy read before the lock is enough
	// for the final emails once the lock is won.
	slot, err := s.slots.Get(ctx, appt.SlotID)
	if err != nil {
		return ConfirmResult{}, fmt.Errorf("get slot: %w", err)
	}
	won, err := s.slots.TryLock(ctx, appt.SlotID, appt.ID)
	if err != nil {
		return ConfirmResult{}, fmt.Errorf("lock slot: %w", err)
	}
	if won {
		slot.Booked, slot.BookedBy = true, appt.ID
	} else if slot, err = s.slots.Get(ctx, appt.SlotID); err != nil {
		return ConfirmResult{}, fmt.Errorf("get locked slot: %w", err)
	}

	switch {
	case won:
		res.Outcome = OutcomeBooked
		s.logger.Info("appointment booked", "appointment_id", appt.ID, "slot_id", appt.SlotID)
		s.record(ctx, EventAppointmentBooked, appt, slot)
		s.notify(ctx, "booked", appt.ID,
			customerBookedMessage(appt.Customer, slot),
			providerBookedMessage(s.cfg.ProviderEmail, appt.Customer, slot),
		)
	case slot.BookedBy == appt.ID:
		// Both parties confirmed at the same moment and the other visit took
		// the lock for this same appointment; it sends the final emails.
		res.Outcome = OutcomeBooked
	default:
		res.Outcome = OutcomeLostRace
		s.logger.Error("slot lock lost after dual confirmation",
			"appointment_id", appt.ID,
			"slot_id", appt.SlotID,
			"booked_by", slot.BookedBy,
		)
		s.record(ctx, EventAppointmentRaceLost, appt, slot)
	}
	return res, nil
}

// ListAppointments lists appointments with their derived state, newest first.
func (s *Service) ListAppointments(ctx context.Context, filter ListFilter) ([]AppointmentView, error) {
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	return s.appts.List(ctx, filter)
}

// notify sends messages after the state change is durable. It detaches from
// the request's cancellation so a client hanging up does not drop the email.
func (s *Service) notify(ctx context.Context, kind string, appointmentID string, msgs ...Message) {
	if s.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.NotifyTimeout)
	defer cancel()
	for _, msg := range msgs {
		if strings.TrimSpace(msg.To) == "" {
			s.logger.Warn("notification skipped: no recipient", "kind", kind, "appointment_id", appointmentID, "subject", msg.Subject)
			continue
		}
		err := s.notifier.Send(ctx, msg)
		if s.observer != nil {
			s.observer.NotificationResult(kind, err)
		}
		if err != nil {
			s.logger.Warn("notification failed", "err", err, "kind", kind, "appointment_id", appointmentID)
		}
	}
}

// record writes an audit event, detached from request cancellation like notify.
func (s *Service) record(ctx context.Context, eventType string, appt Appointment, slot Slot) {
	if s.events == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	payload := map[string]any{
		"appointment_id": appt.ID,
		"slot_id":        slot.ID,
		"slot_start":     slot.Start.UTC().Format(time.RFC3339),
		"slot_end":       slot.End.UTC().Format(time.RFC3339),
		"customer_email": appt.Customer.Email,
		"occurred_at":    s.cfg.Now().UTC().Format(time.RFC3339),
	}
	if slot.BookedBy != "" {
		payload["booked_by"] = slot.BookedBy
	}
	if err := s.events.Record(ctx, eventType, appt.ID, payload); err != nil {
		s.logger.Warn("event record failed", "err", err, "event_type", eventType, "appointment_id", appt.ID)
	}
}

func (s *Service) observeRequest(err error) {
	if s.observer == nil {
		return
	}
	if err == nil {
		s.observer.AppointmentRequested("created")
		return
	}
	s.observer.AppointmentRequested(errorLabel(err))
}

func errorLabel(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, ErrSlotUnavailable):
		return "slot_unavailable"
	case errors.Is(err, ErrTokenNotFound):
		return "token_not_found"
	case errors.Is(err, ErrPartyMismatch):
		return "party_mismatch"
	default:
		return "error"
	}
}
