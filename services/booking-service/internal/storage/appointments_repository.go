package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/slotconfirm/libs/db"
	"github.com/md-rashed-zaman/slotconfirm/services/booking-service/internal/booking"
)

type AppointmentRepository struct {
	q db.Querier
}

func NewAppointmentRepository(q db.Querier) *AppointmentRepository {
	return &AppointmentRepository{q: q}
}

const appointmentColumns = `a.id::text, a.slot_id, a.customer_name, a.customer_email, a.customer_phone,
	a.terms_accepted, a.customer_confirmed_at, a.provider_confirmed_at, a.created_at`

func scanAppointment(row pgx.Row, extra ...any) (booking.Appointment, error) {
	var a booking.Appointment
	dest := []any{
		&a.ID, &a.SlotID, &a.Customer.Name, &a.Customer.Email, &a.Customer.Phone,
		&a.TermsAccepted, &a.CustomerConfirmedAt, &a.ProviderConfirmedAt, &a.CreatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return booking.Appointment{}, err
	}
	return a, nil
}

// Create inserts the appointment and both token hashes in one transaction.
// The insert only matches a slot that exists and is still free.
func (r *AppointmentRepository) Create(ctx context.Context, in booking.NewAppointment) (booking.Appointment, error) {
	if !in.TermsAccepted {
		return booking.Appointment{}, fmt.Errorf("%w: terms must be accepted", booking.ErrInvalidRequest)
	}

	tx, err := r.q.Begin(ctx)
	if err != nil {
		return booking.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	a := booking.Appointment{SlotID: in.SlotID, Customer: in.Customer, TermsAccepted: true}
	err = tx.QueryRow(ctx, `
		INSERT INTO appointments (slot_id, customer_name, customer_email, customer_phone, terms_accepted)
		SELECT id, $2, $3, $4, TRUE
		FROM slots
		WHERE id = $1 AND NOT booked
		RETURNING id::text, created_at
	`, in.SlotID, in.Customer.Name, in.Customer.Email, in.Customer.Phone).Scan(&a.ID, &a.CreatedAt)
	if db.IsNoRows(err) {
		return booking.Appointment{}, booking.ErrSlotUnavailable
	}
	if err != nil {
		return booking.Appointment{}, err
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO confirmation_tokens (token_hash, appointment_id, party)
		VALUES ($1, $2, 'customer'), ($3, $2, 'provider')
	`, in.CustomerTokenHash, a.ID, in.ProviderTokenHash); err != nil {
		return booking.Appointment{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return booking.Appointment{}, err
	}
	return a, nil
}

func (r *AppointmentRepository) FindByTokenHash(ctx context.Context, hash string) (booking.Appointment, booking.Party, error) {
	var party string
	a, err := scanAppointment(r.q.QueryRow(ctx, `
		SELECT `+appointmentColumns+`, t.party
		FROM confirmation_tokens t
		JOIN appointments a ON a.id = t.appointment_id
		WHERE t.token_hash = $1
	`, hash), &party)
	if db.IsNoRows(err) {
		return booking.Appointment{}, "", booking.ErrNotFound
	}
	if err != nil {
		return booking.Appointment{}, "", err
	}
	p, err := booking.ParseParty(party)
	if err != nil {
		return booking.Appointment{}, "", err
	}
	return a, p, nil
}

var confirmColumns = map[booking.Party]string{
	booking.PartyCustomer: "customer_confirmed_at",
	booking.PartyProvider: "provider_confirmed_at",
}

func (r *AppointmentRepository) MarkConfirmed(ctx context.Context, id string, party booking.Party) (bool, error) {
	col, ok := confirmColumns[party]
	if !ok {
		return false, fmt.Errorf("%w: unknown party %q", booking.ErrInvalidRequest, party)
	}
	tag, err := r.q.Exec(ctx, `
		UPDATE appointments
		SET `+col+` = now()
		WHERE id = $1 AND `+col+` IS NULL
	`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *AppointmentRepository) Get(ctx context.Context, id string) (booking.Appointment, error) {
	a, err := scanAppointment(r.q.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments a
		WHERE a.id = $1
	`, id))
	if db.IsNoRows(err) {
		return booking.Appointment{}, booking.ErrNotFound
	}
	if err != nil {
		return booking.Appointment{}, err
	}
	return a, nil
}

var stateFilters = map[booking.State]string{
	booking.StatePending: `s.booked_appointment_id IS DISTINCT FROM a.id
		AND (a.customer_confirmed_at IS NULL OR a.provider_confirmed_at IS NULL)`,
	booking.StateBothConfirmed: `a.customer_confirmed_at IS NOT NULL AND a.provider_confirmed_at IS NOT NULL
		AND NOT s.booked`,
	booking.StateBooked: `s.booked_appointment_id = a.id`,
	booking.StateRaceLost: `a.customer_confirmed_at IS NOT NULL AND a.provider_confirmed_at IS NOT NULL
		AND s.booked AND s.booked_appointment_id <> a.id`,
}

func (r *AppointmentRepository) List(ctx context.Context, filter booking.ListFilter) ([]booking.AppointmentView, error) {
	var where string
	if filter.State != "" {
		cond, ok := stateFilters[filter.State]
		if !ok {
			return nil, fmt.Errorf("%w: unknown state %q", booking.ErrInvalidRequest, filter.State)
		}
		where = "WHERE " + cond
	}

	query := strings.Join([]string{
		`SELECT ` + appointmentColumns + `,
			s.start_at, s.end_at, s.booked, COALESCE(s.booked_appointment_id::text, '')
		FROM appointments a
		JOIN slots s ON s.id = a.slot_id`,
		where,
		`ORDER BY a.created_at DESC
		LIMIT $1`,
	}, "\n")

	rows, err := r.q.Query(ctx, query, filter.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []booking.AppointmentView
	for rows.Next() {
		var slot booking.Slot
		var start, end time.Time
		a, err := scanAppointment(rows, &start, &end, &slot.Booked, &slot.BookedBy)
		if err != nil {
			return nil, err
		}
		slot.ID = a.SlotID
		slot.Start, slot.End = start.UTC(), end.UTC()
		out = append(out, booking.AppointmentView{
			Appointment: a,
			Slot:        slot,
			State:       booking.DeriveState(a, slot),
		})
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}
