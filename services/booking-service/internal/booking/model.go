package booking

import (
	"fmt"
	"strings"
	"time"
)

// Party identifies which side of an appointment a confirmation token belongs to.
type Party string

const (
	PartyCustomer Party = "customer"
	PartyProvider Party = "provider"
)

func ParseParty(raw string) (Party, error) {
	switch p := Party(strings.ToLower(strings.TrimSpace(raw))); p {
	case PartyCustomer, PartyProvider:
		return p, nil
	default:
		return "", fmt.Errorf("%w: party must be customer or provider", ErrInvalidRequest)
	}
}

// Slot is a bookable time range. BookedBy holds the id of the appointment that
// won the slot lock.
type Slot struct {
	ID       int64
	Start    time.Time
	End      time.Time
	Booked   bool
	BookedBy string
}

type Customer struct {
	Name  string
	Email string
	Phone string
}

type Appointment struct {
	ID                  string
	SlotID              int64
	Customer            Customer
	TermsAccepted       bool
	CustomerConfirmedAt *time.Time
	ProviderConfirmedAt *time.Time
	CreatedAt           time.Time
}

func (a Appointment) Confirmed(p Party) bool {
	switch p {
	case PartyCustomer:
		return a.CustomerConfirmedAt != nil
	case PartyProvider:
		return a.ProviderConfirmedAt != nil
	}
	return false
}

func (a Appointment) BothConfirmed() bool {
	return a.CustomerConfirmedAt != nil && a.ProviderConfirmedAt != nil
}

// NewAppointment is what the store persists on creation. Only token hashes
// are stored; the plaintext tokens exist in the emailed links.
type NewAppointment struct {
	SlotID            int64
	Customer          Customer
	TermsAccepted     bool
	CustomerTokenHash string
	ProviderTokenHash string
}

// State is derived from the confirmation flags and the slot owner; it is
// never stored.
type State string

const (
	StatePending       State = "pending"
	StateBothConfirmed State = "both_confirmed"
	StateBooked        State = "booked"
	StateRaceLost      State = "race_lost"
)

func ParseState(raw string) (State, error) {
	switch s := State(strings.ToLower(strings.TrimSpace(raw))); s {
	case "":
		return "", nil
	case StatePending, StateBothConfirmed, StateBooked, StateRaceLost:
		return s, nil
	default:
		return "", fmt.Errorf("%w: unknown state %q", ErrInvalidRequest, raw)
	}
}

// DeriveState places an appointment in the confirmation state machine.
// An appointment whose flags are both set while its slot is still free is
// BothConfirmed: the lock attempt has not happened or has not finished.
func DeriveState(a Appointment, slot Slot) State {
	switch {
	case slot.Booked && slot.BookedBy == a.ID:
		return StateBooked
	case !a.BothConfirmed():
		return StatePending
	case slot.Booked:
		return StateRaceLost
	default:
		return StateBothConfirmed
	}
}

// Outcome is the result of a confirmation visit.
type Outcome string

const (
	OutcomeAwaitingOtherParty Outcome = "awaiting_other_party"
	OutcomeAlreadyConfirmed   Outcome = "already_confirmed"
	OutcomeBooked             Outcome = "booked"
	OutcomeLostRace           Outcome = "lost_race"
)

type ConfirmResult struct {
	Outcome       Outcome
	AppointmentID string
	SlotID        int64
	Party         Party
}

// AppointmentView is an appointment joined with its slot for listings.
type AppointmentView struct {
	Appointment Appointment
	Slot        Slot
	State       State
}

type ListFilter struct {
	State State
	Limit int
}
