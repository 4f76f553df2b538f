package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/slotconfirm/libs/db"
	"github.com/md-rashed-zaman/slotconfirm/services/booking-service/internal/booking"
)

type SlotRepository struct {
	q db.Querier
}

func NewSlotRepository(q db.Querier) *SlotRepository {
	return &SlotRepository{q: q}
}

const slotColumns = `id, start_at, end_at, booked, COALESCE(booked_appointment_id::text, '')`

func (r *SlotRepository) ListFree(ctx context.Context, now time.Time) ([]booking.Slot, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE NOT booked AND start_at > $1
		ORDER BY start_at ASC
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []booking.Slot
	for rows.Next() {
		var s booking.Slot
		if err := rows.Scan(&s.ID, &s.Start, &s.End, &s.Booked, &s.BookedBy); err != nil {
			return nil, err
		}
		out = append(out, normalizeSlot(s))
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *SlotRepository) Get(ctx context.Context, id int64) (booking.Slot, error) {
	var s booking.Slot
	err := r.q.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE id = $1
	`, id).Scan(&s.ID, &s.Start, &s.End, &s.Booked, &s.BookedBy)
	if db.IsNoRows(err) {
		return booking.Slot{}, booking.ErrNotFound
	}
	if err != nil {
		return booking.Slot{}, err
	}
	return normalizeSlot(s), nil
}

// TryLock is the compare-and-set that makes double booking impossible:
// exactly one UPDATE can match a row whose booked flag is still false.
func (r *SlotRepository) TryLock(ctx context.Context, slotID int64, appointmentID string) (bool, error) {
	tag, err := r.q.Exec(ctx, `
		UPDATE slots
		SET booked = TRUE, booked_appointment_id = $2, booked_at = now()
		WHERE id = $1 AND NOT booked
	`, slotID, appointmentID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Insert adds a free slot. A slot with the same start yields ErrDuplicateSlot.
func (r *SlotRepository) Insert(ctx context.Context, start, end time.Time) (booking.Slot, error) {
	if !start.Before(end) {
		return booking.Slot{}, fmt.Errorf("%w: slot end must be after start", booking.ErrInvalidRequest)
	}
	s := booking.Slot{Start: start.UTC(), End: end.UTC()}
	err := r.q.QueryRow(ctx, `
		INSERT INTO slots (start_at, end_at)
		VALUES ($1, $2)
		ON CONFLICT (start_at) DO NOTHING
		RETURNING id
	`, s.Start, s.End).Scan(&s.ID)
	if db.IsNoRows(err) {
		return booking.Slot{}, booking.ErrDuplicateSlot
	}
	if err != nil {
		return booking.Slot{}, err
	}
	return s, nil
}

func normalizeSlot(s booking.Slot) booking.Slot {
	s.Start = s.Start.UTC()
	s.End = s.End.UTC()
	return s
}
