package appointment

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type slotRecord struct {
	mu   sync.Mutex
	slot Slot
}

// MemorySlotStore is an in-process SlotStore and CatalogStore. Each slot has
// its own mutex so reservations of different slots never contend.
type MemorySlotStore struct {
	mu      sync.RWMutex
	slots   map[uuid.UUID]*slotRecord
	doctors map[uuid.UUID]Doctor
	now     func() time.Time
}

func NewMemorySlotStore() *MemorySlotStore {
	return &MemorySlotStore{
		slots:   make(map[uuid.UUID]*slotRecord),
		doctors: make(map[uuid.UUID]Doctor),
		now:     time.Now,
	}
}

func (m *MemorySlotStore) record(id uuid.UUID) (*slotRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.slots[id]
	return rec, ok
}

func (m *MemorySlotStore) GetSlot(_ context.Context, id uuid.UUID) (*Slot, error) {
	rec, ok := m.record(id)
	if !ok {
		return nil, ErrSlotNotFound
	}
	rec.mu.Lock()
	s := rec.slot
	rec.mu.Unlock()
	return &s, nil
}

func (m *MemorySlotStore) ReserveSlot(_ context.Context, id uuid.UUID) error {
	rec, ok := m.record(id)
	if !ok {
		return ErrSlotNotFound
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.slot.Reserved {
		return ErrSlotAlreadyReserved
	}
	rec.slot.Reserved = true
	return nil
}

func (m *MemorySlotStore) InsertDoctor(_ context.Context, d *Doctor) (*Doctor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := *d
	stored.CreatedAt = m.now()
	m.doctors[stored.ID] = stored
	out := stored
	return &out, nil
}

func (m *MemorySlotStore) GetDoctor(_ context.Context, id uuid.UUID) (*Doctor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	return &d, nil
}

func (m *MemorySlotStore) InsertSlot(_ context.Context, s *Slot) (*Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.doctors[s.DoctorID]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	stored := *s
	stored.DoctorName = d.Name
	stored.Reserved = false
	stored.CreatedAt = m.now()
	m.slots[stored.ID] = &slotRecord{slot: stored}
	out := stored
	return &out, nil
}

func (m *MemorySlotStore) ListAvailableSlots(_ context.Context) ([]Slot, error) {
	m.mu.RLock()
	records := make([]*slotRecord, 0, len(m.slots))
	for _, rec := range m.slots {
		records = append(records, rec)
	}
	m.mu.RUnlock()

	var result []Slot
	for _, rec := range records {
		rec.mu.Lock()
		s := rec.slot
		rec.mu.Unlock()
		if !s.Reserved {
			result = append(result, s)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].StartTime.Equal(result[j].StartTime) {
			return result[i].ID.String() < result[j].ID.String()
		}
		return result[i].StartTime.Before(result[j].StartTime)
	})
	return result, nil
}

// MemoryAppointmentStore is an in-process AppointmentStore. Like the Postgres
// schema it refuses a second appointment for a slot.
type MemoryAppointmentStore struct {
	mu     sync.Mutex
	byID   map[uuid.UUID]Appointment
	bySlot map[uuid.UUID]uuid.UUID
	now    func() time.Time
}

func NewMemoryAppointmentStore() *MemoryAppointmentStore {
	return &MemoryAppointmentStore{
		byID:   make(map[uuid.UUID]Appointment),
		bySlot: make(map[uuid.UUID]uuid.UUID),
		now:    time.Now,
	}
}

func (m *MemoryAppointmentStore) FindBySlotID(_ context.Context, slotID uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.bySlot[slotID]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	a := m.byID[id]
	return &a, nil
}

func (m *MemoryAppointmentStore) FindByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.byID[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (m *MemoryAppointmentStore) Save(_ context.Context, a *Appointment) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if owner, ok := m.bySlot[a.SlotID]; ok && owner != a.ID {
		return nil, ErrAppointmentExists
	}

	stored := *a
	if existing, ok := m.byID[a.ID]; ok {
		stored.SlotID = existing.SlotID
		stored.PatientID = existing.PatientID
		stored.ReservedAt = existing.ReservedAt
	}
	stored.UpdatedAt = m.now()

	m.byID[stored.ID] = stored
	m.bySlot[stored.SlotID] = stored.ID

	out := stored
	return &out, nil
}

func (m *MemoryAppointmentStore) TransitionStatus(_ context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.byID[id]
	if !ok || a.Status != from {
		return nil, ErrAppointmentNotFound
	}
	a.Status = to
	a.UpdatedAt = m.now()
	m.byID[id] = a

	out := a
	return &out, nil
}

func (m *MemoryAppointmentStore) ListUpcoming(_ context.Context, now time.Time) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []Appointment
	for _, a := range m.byID {
		if a.Status == StatusBooked && !a.ReservedAt.Before(now) {
			result = append(result, a)
		}
	}
	return result, nil
}
