package storage

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/slotconfirm/services/booking-service/internal/booking"
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock
}

func TestSlotRepositoryListFree(t *testing.T) {
	mock := newMock(t)
	repo := NewSlotRepository(mock)
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	start := now.Add(time.Hour)

	rows := pgxmock.NewRows([]string{"id", "start_at", "end_at", "booked", "booked_appointment_id"}).
		AddRow(int64(1), start, start.Add(30*time.Minute), false, "").
		AddRow(int64(2), start.Add(time.Hour), start.Add(90*time.Minute), false, "")
	mock.ExpectQuery(regexp.QuoteMeta("WHERE NOT booked AND start_at > $1")).WithArgs(now).WillReturnRows(rows)

	slots, err := repo.ListFree(context.Background(), now)
	if err != nil {
		t.Fatalf("list free: %v", err)
	}
	if len(slots) != 2 || slots[0].ID != 1 || !slots[0].Start.Equal(start) {
		t.Fatalf("unexpected slots %#v", slots)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSlotRepositoryGetNotFound(t *testing.T) {
	mock := newMock(t)
	repo := NewSlotRepository(mock)

	mock.ExpectQuery("FROM slots").WithArgs(int64(9)).WillReturnError(pgx.ErrNoRows)
	if _, err := repo.Get(context.Background(), 9); !errors.Is(err, booking.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSlotRepositoryTryLock(t *testing.T) {
	mock := newMock(t)
	repo := NewSlotRepository(mock)
	ctx := context.Background()

	lock := regexp.QuoteMeta("WHERE id = $1 AND NOT booked")
	mock.ExpectExec(lock).WithArgs(int64(7), "appt-1").WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(lock).WithArgs(int64(7), "appt-2").WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	won, err := repo.TryLock(ctx, 7, "appt-1")
	if err != nil || !won {
		t.Fatalf("first lock should win, won=%v err=%v", won, err)
	}
	won, err = repo.TryLock(ctx, 7, "appt-2")
	if err != nil || won {
		t.Fatalf("second lock should lose, won=%v err=%v", won, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSlotRepositoryInsertDuplicate(t *testing.T) {
	mock := newMock(t)
	repo := NewSlotRepository(mock)
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	insert := regexp.QuoteMeta("ON CONFLICT (start_at) DO NOTHING")
	mock.ExpectQuery(insert).WithArgs(start, start.Add(time.Hour)).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(4)))
	mock.ExpectQuery(insert).WithArgs(start, start.Add(time.Hour)).WillReturnError(pgx.ErrNoRows)

	slot, err := repo.Insert(context.Background(), start, start.Add(time.Hour))
	if err != nil || slot.ID != 4 {
		t.Fatalf("insert: slot=%+v err=%v", slot, err)
	}
	if _, err := repo.Insert(context.Background(), start, start.Add(time.Hour)); !errors.Is(err, booking.ErrDuplicateSlot) {
		t.Fatalf("expected ErrDuplicateSlot, got %v", err)
	}
	if _, err := repo.Insert(context.Background(), start, start); !errors.Is(err, booking.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest for empty range, got %v", err)
	}
}

func TestAppointmentRepositoryCreate(t *testing.T) {
	mock := newMock(t)
	repo := NewAppointmentRepository(mock)
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO appointments").
		WithArgs(int64(3), "Ann", "ann@example.com", "").
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow("a-1", created))
	mock.ExpectExec("INSERT INTO confirmation_tokens").
		WithArgs("hash-c", "a-1", "hash-p").
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	appt, err := repo.Create(context.Background(), booking.NewAppointment{
		SlotID:            3,
		Customer:          booking.Customer{Name: "Ann", Email: "ann@example.com"},
		TermsAccepted:     true,
		CustomerTokenHash: "hash-c",
		ProviderTokenHash: "hash-p",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if appt.ID != "a-1" || !appt.CreatedAt.Equal(created) {
		t.Fatalf("unexpected appointment %+v", appt)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAppointmentRepositoryCreateSlotUnavailable(t *testing.T) {
	mock := newMock(t)
	repo := NewAppointmentRepository(mock)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO appointments").
		WithArgs(int64(3), "Ann", "ann@example.com", "").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	_, err := repo.Create(context.Background(), booking.NewAppointment{
		SlotID:        3,
		Customer:      booking.Customer{Name: "Ann", Email: "ann@example.com"},
		TermsAccepted: true,
	})
	if !errors.Is(err, booking.ErrSlotUnavailable) {
		t.Fatalf("expected ErrSlotUnavailable, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAppointmentRepositoryCreateRequiresTerms(t *testing.T) {
	mock := newMock(t)
	repo := NewAppointmentRepository(mock)

	_, err := repo.Create(context.Background(), booking.NewAppointment{SlotID: 3})
	if !errors.Is(err, booking.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("nothing should touch the database: %v", err)
	}
}

var appointmentCols = []string{
	"id", "slot_id", "customer_name", "customer_email", "customer_phone",
	"terms_accepted", "customer_confirmed_at", "provider_confirmed_at", "created_at",
}

func TestAppointmentRepositoryFindByTokenHash(t *testing.T) {
	mock := newMock(t)
	repo := NewAppointmentRepository(mock)
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	confirmed := created.Add(time.Minute)

	rows := pgxmock.NewRows(append(appointmentCols, "party")).
		AddRow("a-1", int64(3), "Ann", "ann@example.com", "555", true, &confirmed, nil, created, "provider")
	mock.ExpectQuery("FROM confirmation_tokens").WithArgs("hash-p").WillReturnRows(rows)
	mock.ExpectQuery("FROM confirmation_tokens").WithArgs("nope").WillReturnError(pgx.ErrNoRows)

	appt, party, err := repo.FindByTokenHash(context.Background(), "hash-p")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if party != booking.PartyProvider || appt.ID != "a-1" {
		t.Fatalf("unexpected result %+v %s", appt, party)
	}
	if !appt.Confirmed(booking.PartyCustomer) || appt.Confirmed(booking.PartyProvider) {
		t.Fatalf("unexpected flags %+v", appt)
	}

	if _, _, err := repo.FindByTokenHash(context.Background(), "nope"); !errors.Is(err, booking.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAppointmentRepositoryMarkConfirmed(t *testing.T) {
	mock := newMock(t)
	repo := NewAppointmentRepository(mock)
	ctx := context.Background()

	mock.ExpectExec(regexp.QuoteMeta("SET customer_confirmed_at = now()")).
		WithArgs("a-1").WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(regexp.QuoteMeta("SET customer_confirmed_at = now()")).
		WithArgs("a-1").WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	changed, err := repo.MarkConfirmed(ctx, "a-1", booking.PartyCustomer)
	if err != nil || !changed {
		t.Fatalf("first mark should change, changed=%v err=%v", changed, err)
	}
	changed, err = repo.MarkConfirmed(ctx, "a-1", booking.PartyCustomer)
	if err != nil || changed {
		t.Fatalf("second mark should be a no-op, changed=%v err=%v", changed, err)
	}
	if _, err := repo.MarkConfirmed(ctx, "a-1", booking.Party("admin")); !errors.Is(err, booking.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAppointmentRepositoryListRaceLost(t *testing.T) {
	mock := newMock(t)
	repo := NewAppointmentRepository(mock)
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	start := created.Add(24 * time.Hour)
	c, p := created.Add(time.Minute), created.Add(2*time.Minute)

	rows := pgxmock.NewRows(append(appointmentCols, "start_at", "end_at", "booked", "booked_appointment_id")).
		AddRow("a-2", int64(3), "Bob", "bob@example.com", "", true, &c, &p, created, start, start.Add(time.Hour), true, "a-1")
	mock.ExpectQuery(regexp.QuoteMeta("s.booked_appointment_id <> a.id")).WithArgs(10).WillReturnRows(rows)

	views, err := repo.List(context.Background(), booking.ListFilter{State: booking.StateRaceLost, Limit: 10})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(views) != 1 || views[0].State != booking.StateRaceLost || views[0].Slot.BookedBy != "a-1" {
		t.Fatalf("unexpected views %#v", views)
	}

	if _, err := repo.List(context.Background(), booking.ListFilter{State: "cancelled", Limit: 10}); !errors.Is(err, booking.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
