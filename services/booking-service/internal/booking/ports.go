package booking

import (
	"context"
	"time"
)

type SlotStore interface {
	// ListFree returns unbooked slots starting after now, ordered by start.
	ListFree(ctx context.Context, now time.Time) ([]Slot, error)
	Get(ctx context.Context, id int64) (Slot, error)
	// TryLock books the slot for appointmentID only if it is still free.
	// It is a single conditional write and reports whether this caller won.
	TryLock(ctx context.Context, slotID int64, appointmentID string) (bool, error)
}

type AppointmentStore interface {
	// Create persists a pending appointment with its two token hashes. It
	// fails with ErrSlotUnavailable if the slot is missing or already booked.
	Create(ctx context.Context, in NewAppointment) (Appointment, error)
	FindByTokenHash(ctx context.Context, hash string) (Appointment, Party, error)
	// MarkConfirmed sets the party's flag if it is not set yet. changed is
	// false when the flag was already set.
	MarkConfirmed(ctx context.Context, id string, party Party) (changed bool, err error)
	Get(ctx context.Context, id string) (Appointment, error)
	List(ctx context.Context, filter ListFilter) ([]AppointmentView, error)
}

// TokenIssuer creates confirmation tokens and the lookup hash stored for them.
type TokenIssuer interface {
	IssuePair() (customer string, provider string, err error)
	Hash(token string) string
}

type Message struct {
	To      string
	ToName  string
	Subject string
	Body    string
}

// Notifier is fire-and-forget delivery. Errors are logged by the caller and
// never undo a state change.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// EventRecorder receives audit events for appointment transitions.
type EventRecorder interface {
	Record(ctx context.Context, eventType string, aggregateID string, payload any) error
}

// Observer receives outcome counts. A nil Observer is allowed.
type Observer interface {
	AppointmentRequested(result string)
	ConfirmationOutcome(outcome string)
	NotificationResult(kind string, err error)
}
