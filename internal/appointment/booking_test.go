package appointment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	redisclient "github.com/hackgods/slot-booking/internal/redis"
)

// -- Fakes --

type recordingSink struct {
	mu     sync.Mutex
	events []Confirmation
	err    error
}

func (s *recordingSink) Notify(_ context.Context, c Confirmation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, c)
	return s.err
}

func (s *recordingSink) Events() []Confirmation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Confirmation, len(s.events))
	copy(out, s.events)
	return out
}

type busyLocker struct{}

func (busyLocker) WithSlotLock(context.Context, uuid.UUID, func(context.Context) error) error {
	return redisclient.ErrLockNotAcquired
}

// racySlotStore reports the slot as free on read but loses the reservation,
// as if another caller reserved it in between.
type racySlotStore struct {
	slot Slot
}

func (r *racySlotStore) GetSlot(context.Context, uuid.UUID) (*Slot, error) {
	s := r.slot
	return &s, nil
}

func (r *racySlotStore) ReserveSlot(context.Context, uuid.UUID) error {
	return ErrSlotAlreadyReserved
}

type failingAppointmentStore struct {
	*MemoryAppointmentStore
	err error
}

func (f *failingAppointmentStore) FindBySlotID(context.Context, uuid.UUID) (*Appointment, error) {
	return nil, f.err
}

// -- Helpers --

type fixture struct {
	slots   *MemorySlotStore
	appts   *MemoryAppointmentStore
	sink    *recordingSink
	engine  *BookingEngine
	doctor  *Doctor
	catalog *Catalog
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	slots := NewMemorySlotStore()
	appts := NewMemoryAppointmentStore()
	sink := &recordingSink{}
	catalog := NewCatalog(slots)

	doctor, err := catalog.CreateDoctor(context.Background(), NewDoctor{Name: "Dr. Ada Park", Specialization: "Cardiology"})
	if err != nil {
		t.Fatalf("create doctor: %v", err)
	}

	return &fixture{
		slots:   slots,
		appts:   appts,
		sink:    sink,
		engine:  NewBookingEngine(slots, appts, sink, nil, zerolog.Nop()),
		doctor:  doctor,
		catalog: catalog,
	}
}

func (f *fixture) newSlot(t *testing.T) *Slot {
	t.Helper()
	s, err := f.catalog.CreateSlot(context.Background(), NewSlot{
		DoctorID:  f.doctor.ID,
		StartTime: time.Now().Add(48 * time.Hour),
		CostCents: 15000,
	})
	if err != nil {
		t.Fatalf("create slot: %v", err)
	}
	return s
}

func request(slotID uuid.UUID, name string) BookingRequest {
	return BookingRequest{SlotID: slotID, PatientID: uuid.New(), PatientName: name}
}

// -- Tests --

func TestBookHappyPath(t *testing.T) {
	f := newFixture(t)
	slot := f.newSlot(t)
	ctx := context.Background()

	before := time.Now().UTC()
	appt, err := f.engine.Book(ctx, request(slot.ID, "Jane Roe"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if appt.SlotID != slot.ID {
		t.Errorf("expected slot %s, got %s", slot.ID, appt.SlotID)
	}
	if appt.PatientName != "Jane Roe" {
		t.Errorf("expected patient Jane Roe, got %s", appt.PatientName)
	}
	if appt.Status != StatusBooked {
		t.Errorf("expected status booked, got %s", appt.Status)
	}
	if appt.ID == uuid.Nil {
		t.Error("expected generated appointment id")
	}
	if appt.ReservedAt.Before(before) {
		t.Errorf("reserved_at %s before booking start %s", appt.ReservedAt, before)
	}

	stored, err := f.slots.GetSlot(ctx, slot.ID)
	if err != nil {
		t.Fatalf("get slot: %v", err)
	}
	if !stored.Reserved {
		t.Error("expected slot to be reserved")
	}

	events := f.sink.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(events))
	}
	if events[0].AppointmentID != appt.ID {
		t.Errorf("notification references %s, want %s", events[0].AppointmentID, appt.ID)
	}
	if events[0].DoctorName != "Dr. Ada Park" {
		t.Errorf("expected doctor name in notification, got %q", events[0].DoctorName)
	}
	if !events[0].AppointmentTime.Equal(slot.StartTime) {
		t.Errorf("expected appointment time %s, got %s", slot.StartTime, events[0].AppointmentTime)
	}
}

func TestBookRejectsReservedSlot(t *testing.T) {
	f := newFixture(t)
	slot := f.newSlot(t)
	ctx := context.Background()

	first, err := f.engine.Book(ctx, request(slot.ID, "First"))
	if err != nil {
		t.Fatalf("first booking: %v", err)
	}

	_, err = f.engine.Book(ctx, request(slot.ID, "Second"))
	if !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("expected ErrSlotUnavailable, got %v", err)
	}

	existing, err := f.appts.FindBySlotID(ctx, slot.ID)
	if err != nil {
		t.Fatalf("find by slot: %v", err)
	}
	if existing.ID != first.ID || existing.PatientName != "First" {
		t.Errorf("existing appointment altered: %+v", existing)
	}
	if n := len(f.sink.Events()); n != 1 {
		t.Errorf("expected 1 notification, got %d", n)
	}
}

func TestBookRejectsSlotWithAppointmentRecord(t *testing.T) {
	f := newFixture(t)
	slot := f.newSlot(t)
	ctx := context.Background()

	// Record exists but the slot flag was never set.
	prior := &Appointment{ID: uuid.New(), SlotID: slot.ID, PatientID: uuid.New(), PatientName: "Prior", Status: StatusBooked, ReservedAt: time.Now()}
	if _, err := f.appts.Save(ctx, prior); err != nil {
		t.Fatalf("save: %v", err)
	}

	_, err := f.engine.Book(ctx, request(slot.ID, "Late"))
	if !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("expected ErrSlotUnavailable, got %v", err)
	}

	stored, _ := f.slots.GetSlot(ctx, slot.ID)
	if stored.Reserved {
		t.Error("early exit must not reserve the slot")
	}
}

func TestBookUnknownSlot(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Book(context.Background(), request(uuid.New(), "Nobody"))
	if !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("expected ErrSlotUnavailable, got %v", err)
	}
	if n := len(f.sink.Events()); n != 0 {
		t.Errorf("expected no notifications, got %d", n)
	}
}

func TestBookConcurrentMutualExclusion(t *testing.T) {
	f := newFixture(t)
	slot := f.newSlot(t)
	ctx := context.Background()

	const callers = 64

	var (
		wg          sync.WaitGroup
		mu          sync.Mutex
		successes   []*Appointment
		unavailable int
		start       = make(chan struct{})
	)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			appt, err := f.engine.Book(ctx, request(slot.ID, "Racer"))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes = append(successes, appt)
			case errors.Is(err, ErrSlotUnavailable):
				unavailable++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if len(successes) != 1 {
		t.Fatalf("expected exactly 1 success, got %d", len(successes))
	}
	if unavailable != callers-1 {
		t.Errorf("expected %d unavailable, got %d", callers-1, unavailable)
	}

	stored, err := f.appts.FindBySlotID(ctx, slot.ID)
	if err != nil {
		t.Fatalf("find by slot: %v", err)
	}
	if stored.ID != successes[0].ID {
		t.Errorf("stored appointment %s does not match winner %s", stored.ID, successes[0].ID)
	}
	if n := len(f.sink.Events()); n != 1 {
		t.Errorf("expected 1 notification, got %d", n)
	}
}

func TestBookLostReservationRace(t *testing.T) {
	appts := NewMemoryAppointmentStore()
	slots := &racySlotStore{slot: Slot{ID: uuid.New(), DoctorName: "Dr. Who", StartTime: time.Now().Add(time.Hour)}}
	sink := &recordingSink{}
	engine := NewBookingEngine(slots, appts, sink, nil, zerolog.Nop())

	_, err := engine.Book(context.Background(), request(slots.slot.ID, "Loser"))
	if !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("expected ErrSlotUnavailable, got %v", err)
	}
	if _, err := appts.FindBySlotID(context.Background(), slots.slot.ID); !errors.Is(err, ErrAppointmentNotFound) {
		t.Errorf("expected no appointment, got %v", err)
	}
}

func TestBookLockBusy(t *testing.T) {
	f := newFixture(t)
	slot := f.newSlot(t)
	engine := NewBookingEngine(f.slots, f.appts, f.sink, busyLocker{}, zerolog.Nop())

	_, err := engine.Book(context.Background(), request(slot.ID, "Blocked"))
	if !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("expected ErrSlotUnavailable, got %v", err)
	}

	stored, _ := f.slots.GetSlot(context.Background(), slot.ID)
	if stored.Reserved {
		t.Error("slot must stay free when the lock was not acquired")
	}
}

func TestBookNotificationFailureDoesNotFailBooking(t *testing.T) {
	f := newFixture(t)
	slot := f.newSlot(t)
	f.sink.err = errors.New("broker down")

	appt, err := f.engine.Book(context.Background(), request(slot.ID, "Jane Roe"))
	if err != nil {
		t.Fatalf("expected booking to succeed, got %v", err)
	}
	if _, err := f.appts.FindByID(context.Background(), appt.ID); err != nil {
		t.Errorf("expected appointment to be stored: %v", err)
	}
}

func TestBookStorageErrorPropagates(t *testing.T) {
	f := newFixture(t)
	slot := f.newSlot(t)
	storeErr := errors.New("connection reset")
	appts := &failingAppointmentStore{MemoryAppointmentStore: f.appts, err: storeErr}
	engine := NewBookingEngine(f.slots, appts, f.sink, nil, zerolog.Nop())

	_, err := engine.Book(context.Background(), request(slot.ID, "Jane Roe"))
	if !errors.Is(err, storeErr) {
		t.Fatalf("expected storage error, got %v", err)
	}
	if errors.Is(err, ErrSlotUnavailable) {
		t.Error("storage failure must not be reported as unavailable")
	}
}

// txAppointmentStore stands in for a store with a transactional booking path.
// A non-nil err fails the whole write before anything changes.
type txAppointmentStore struct {
	*MemoryAppointmentStore
	slots *MemorySlotStore
	err   error
	calls int
}

func (s *txAppointmentStore) ReserveAndSave(ctx context.Context, a *Appointment) (*Appointment, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if err := s.slots.ReserveSlot(ctx, a.SlotID); err != nil {
		return nil, err
	}
	return s.MemoryAppointmentStore.Save(ctx, a)
}

func TestBookUsesTransactionalStore(t *testing.T) {
	f := newFixture(t)
	slot := f.newSlot(t)
	counting := &countingSlotStore{MemorySlotStore: f.slots}
	appts := &txAppointmentStore{MemoryAppointmentStore: f.appts, slots: f.slots}
	engine := NewBookingEngine(counting, appts, f.sink, nil, zerolog.Nop())

	appt, err := engine.Book(context.Background(), request(slot.ID, "Jane Roe"))
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if appts.calls != 1 {
		t.Errorf("expected one transactional write, got %d", appts.calls)
	}
	if counting.reserves != 0 {
		t.Errorf("expected no separate reservation, got %d", counting.reserves)
	}
	if stored, _ := f.appts.FindBySlotID(context.Background(), slot.ID); stored == nil || stored.ID != appt.ID {
		t.Errorf("expected stored appointment %s, got %+v", appt.ID, stored)
	}

	if _, err := engine.Book(context.Background(), request(slot.ID, "Late")); !errors.Is(err, ErrSlotUnavailable) {
		t.Errorf("expected ErrSlotUnavailable, got %v", err)
	}
}

func TestBookTransactionalFailureLeavesSlotFree(t *testing.T) {
	f := newFixture(t)
	slot := f.newSlot(t)
	storeErr := errors.New("deadline exceeded mid transaction")
	appts := &txAppointmentStore{MemoryAppointmentStore: f.appts, slots: f.slots, err: storeErr}
	engine := NewBookingEngine(f.slots, appts, f.sink, nil, zerolog.Nop())

	_, err := engine.Book(context.Background(), request(slot.ID, "Jane Roe"))
	if !errors.Is(err, storeErr) || errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("expected wrapped storage error, got %v", err)
	}

	stored, err := f.slots.GetSlot(context.Background(), slot.ID)
	if err != nil {
		t.Fatalf("get slot: %v", err)
	}
	if stored.Reserved {
		t.Error("slot must stay bookable after a failed transactional booking")
	}

	appts.err = nil
	if _, err := engine.Book(context.Background(), request(slot.ID, "Retry")); err != nil {
		t.Fatalf("retry after failure: %v", err)
	}
}
