package booking

import (
	"testing"
	"time"
)

func TestDeriveState(t *testing.T) {
	now := time.Now()
	pending := Appointment{ID: "a1", CustomerConfirmedAt: &now}
	both := Appointment{ID: "a1", CustomerConfirmedAt: &now, ProviderConfirmedAt: &now}

	cases := []struct {
		name string
		appt Appointment
		slot Slot
		want State
	}{
		{"pending free slot", pending, Slot{}, StatePending},
		{"pending slot taken by other", pending, Slot{Booked: true, BookedBy: "a2"}, StatePending},
		{"both confirmed before lock", both, Slot{}, StateBothConfirmed},
		{"booked", both, Slot{Booked: true, BookedBy: "a1"}, StateBooked},
		{"race lost", both, Slot{Booked: true, BookedBy: "a2"}, StateRaceLost},
	}
	for _, tc := range cases {
		if got := DeriveState(tc.appt, tc.slot); got != tc.want {
			t.Fatalf("%s: got %s want %s", tc.name, got, tc.want)
		}
	}
}

func TestConfirmLink(t *testing.T) {
	got := ConfirmLink("https://book.example.com/", "abc_-1", PartyProvider)
	if got != "https://book.example.com/confirm?token=abc_-1&who=provider" {
		t.Fatalf("unexpected link %q", got)
	}
}
