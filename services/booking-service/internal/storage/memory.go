package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/slotconfirm/services/booking-service/internal/booking"
)

// Memory keeps slots, appointments and tokens in process. It honors the same
// conditional-write contracts as the Postgres repositories and is used for
// local runs without DATABASE_URL and in tests.
type Memory struct {
	mu       sync.Mutex
	now      func() time.Time
	nextSlot int64
	slots    map[int64]*booking.Slot
	byStart  map[int64]int64 // unix nanos -> slot id
	appts    map[string]*booking.Appointment
	order    []string
	tokens   map[string]tokenRef
}

type tokenRef struct {
	appointmentID string
	party         booking.Party
}

func NewMemory() *Memory {
	return &Memory{
		now:     time.Now,
		slots:   map[int64]*booking.Slot{},
		byStart: map[int64]int64{},
		appts:   map[string]*booking.Appointment{},
		tokens:  map[string]tokenRef{},
	}
}

func (m *Memory) Slots() *MemorySlots               { return &MemorySlots{m: m} }
func (m *Memory) Appointments() *MemoryAppointments { return &MemoryAppointments{m: m} }

type MemorySlots struct{ m *Memory }

func (s *MemorySlots) Insert(_ context.Context, start, end time.Time) (booking.Slot, error) {
	if !start.Before(end) {
		return booking.Slot{}, fmt.Errorf("%w: slot end must be after start", booking.ErrInvalidRequest)
	}
	m := s.m
	m.mu.Lock()
	defer m.mu.Unlock()

	key := start.UTC().UnixNano()
	if _, exists := m.byStart[key]; exists {
		return booking.Slot{}, booking.ErrDuplicateSlot
	}
	m.nextSlot++
	slot := &booking.Slot{ID: m.nextSlot, Start: start.UTC(), End: end.UTC()}
	m.slots[slot.ID] = slot
	m.byStart[key] = slot.ID
	return *slot, nil
}

func (s *MemorySlots) ListFree(_ context.Context, now time.Time) ([]booking.Slot, error) {
	m := s.m
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []booking.Slot
	for _, slot := range m.slots {
		if !slot.Booked && slot.Start.After(now) {
			out = append(out, *slot)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (s *MemorySlots) Get(_ context.Context, id int64) (booking.Slot, error) {
	m := s.m
	m.mu.Lock()
	defer m.mu.Unlock()

	slot, ok := m.slots[id]
	if !ok {
		return booking.Slot{}, booking.ErrNotFound
	}
	return *slot, nil
}

func (s *MemorySlots) TryLock(_ context.Context, slotID int64, appointmentID string) (bool, error) {
	m := s.m
	m.mu.Lock()
	defer m.mu.Unlock()

	slot, ok := m.slots[slotID]
	if !ok || slot.Booked {
		return false, nil
	}
	slot.Booked = true
	slot.BookedBy = appointmentID
	return true, nil
}

type MemoryAppointments struct{ m *Memory }

func (s *MemoryAppointments) Create(_ context.Context, in booking.NewAppointment) (booking.Appointment, error) {
	if !in.TermsAccepted {
		return booking.Appointment{}, fmt.Errorf("%w: terms must be accepted", booking.ErrInvalidRequest)
	}
	m := s.m
	m.mu.Lock()
	defer m.mu.Unlock()

	slot, ok := m.slots[in.SlotID]
	if !ok || slot.Booked {
		return booking.Appointment{}, booking.ErrSlotUnavailable
	}
	for _, h := range []string{in.CustomerTokenHash, in.ProviderTokenHash} {
		if _, dup := m.tokens[h]; dup || h == "" {
			return booking.Appointment{}, fmt.Errorf("storage: token hash collision")
		}
	}
	if in.CustomerTokenHash == in.ProviderTokenHash {
		return booking.Appointment{}, fmt.Errorf("storage: token hash collision")
	}

	a := &booking.Appointment{
		ID:            uuid.NewString(),
		SlotID:        in.SlotID,
		Customer:      in.Customer,
		TermsAccepted: true,
		CreatedAt:     m.now().UTC(),
	}
	m.appts[a.ID] = a
	m.order = append(m.order, a.ID)
	m.tokens[in.CustomerTokenHash] = tokenRef{appointmentID: a.ID, party: booking.PartyCustomer}
	m.tokens[in.ProviderTokenHash] = tokenRef{appointmentID: a.ID, party: booking.PartyProvider}
	return copyAppointment(a), nil
}

func (s *MemoryAppointments) FindByTokenHash(_ context.Context, hash string) (booking.Appointment, booking.Party, error) {
	m := s.m
	m.mu.Lock()
	defer m.mu.Unlock()

	ref, ok := m.tokens[hash]
	if !ok {
		return booking.Appointment{}, "", booking.ErrNotFound
	}
	return copyAppointment(m.appts[ref.appointmentID]), ref.party, nil
}

func (s *MemoryAppointments) MarkConfirmed(_ context.Context, id string, party booking.Party) (bool, error) {
	m := s.m
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.appts[id]
	if !ok {
		return false, booking.ErrNotFound
	}
	now := m.now().UTC()
	switch party {
	case booking.PartyCustomer:
		if a.CustomerConfirmedAt != nil {
			return false, nil
		}
		a.CustomerConfirmedAt = &now
	case booking.PartyProvider:
		if a.ProviderConfirmedAt != nil {
			return false, nil
		}
		a.ProviderConfirmedAt = &now
	default:
		return false, fmt.Errorf("%w: unknown party %q", booking.ErrInvalidRequest, party)
	}
	return true, nil
}

func (s *MemoryAppointments) Get(_ context.Context, id string) (booking.Appointment, error) {
	m := s.m
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.appts[id]
	if !ok {
		return booking.Appointment{}, booking.ErrNotFound
	}
	return copyAppointment(a), nil
}

func (s *MemoryAppointments) List(_ context.Context, filter booking.ListFilter) ([]booking.AppointmentView, error) {
	m := s.m
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []booking.AppointmentView
	for i := len(m.order) - 1; i >= 0; i-- {
		a := m.appts[m.order[i]]
		slot := *m.slots[a.SlotID]
		state := booking.DeriveState(*a, slot)
		if filter.State != "" && state != filter.State {
			continue
		}
		out = append(out, booking.AppointmentView{Appointment: copyAppointment(a), Slot: slot, State: state})
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func copyAppointment(a *booking.Appointment) booking.Appointment {
	out := *a
	if a.CustomerConfirmedAt != nil {
		t := *a.CustomerConfirmedAt
		out.CustomerConfirmedAt = &t
	}
	if a.ProviderConfirmedAt != nil {
		t := *a.ProviderConfirmedAt
		out.ProviderConfirmedAt = &t
	}
	return out
}
