package appointment

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/slot-booking/internal/db"
)

func newPgRepository(t *testing.T) *PgRepository {
	t.Helper()
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set, skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn, db.PoolOptions{})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)

	if _, err := db.Migrate(ctx, pool); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewPgRepository(pool)
}

func pgSlot(t *testing.T, repo *PgRepository) *Slot {
	t.Helper()
	ctx := context.Background()
	c := NewCatalog(repo)
	doctor, err := c.CreateDoctor(ctx, NewDoctor{Name: "Dr. Integration"})
	if err != nil {
		t.Fatalf("create doctor: %v", err)
	}
	slot, err := c.CreateSlot(ctx, NewSlot{DoctorID: doctor.ID, StartTime: time.Now().Add(72 * time.Hour), CostCents: 12000})
	if err != nil {
		t.Fatalf("create slot: %v", err)
	}
	return slot
}

func TestPgReserveSlotConcurrent(t *testing.T) {
	repo := newPgRepository(t)
	slot := pgSlot(t, repo)
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = map[string]int{}
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.ReserveSlot(ctx, slot.ID)
			key := "ok"
			if err != nil {
				key = err.Error()
			}
			mu.Lock()
			results[key]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	if results["ok"] != 1 || results[ErrSlotAlreadyReserved.Error()] != 19 {
		t.Errorf("unexpected reservation outcomes: %v", results)
	}

	if err := repo.ReserveSlot(ctx, uuid.New()); !errors.Is(err, ErrSlotNotFound) {
		t.Errorf("expected ErrSlotNotFound, got %v", err)
	}
}

func TestPgBookAndTransition(t *testing.T) {
	repo := newPgRepository(t)
	slot := pgSlot(t, repo)
	ctx := context.Background()

	sink := &recordingSink{}
	engine := NewBookingEngine(repo, repo, sink, nil, zerolog.Nop())
	lifecycle := NewLifecycleManager(repo, zerolog.Nop())

	appt, err := engine.Book(ctx, BookingRequest{SlotID: slot.ID, PatientID: uuid.New(), PatientName: "Pat"})
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if _, err := engine.Book(ctx, BookingRequest{SlotID: slot.ID, PatientID: uuid.New(), PatientName: "Other"}); !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("expected ErrSlotUnavailable, got %v", err)
	}

	upcoming, err := lifecycle.ListUpcoming(ctx, appt.ReservedAt.Add(-time.Second))
	if err != nil {
		t.Fatalf("list upcoming: %v", err)
	}
	found := false
	for _, a := range upcoming {
		if a.ID == appt.ID {
			found = true
		}
	}
	if !found {
		t.Error("expected booked appointment in upcoming list")
	}

	if err := lifecycle.Cancel(ctx, appt.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := lifecycle.Complete(ctx, appt.ID); !errors.Is(err, ErrNotEligible) {
		t.Fatalf("expected ErrNotEligible, got %v", err)
	}

	stored, err := repo.GetSlot(ctx, slot.ID)
	if err != nil {
		t.Fatalf("get slot: %v", err)
	}
	if !stored.Reserved {
		t.Error("slot must stay reserved after cancel")
	}
}

func TestPgSaveRejectsSecondAppointmentForSlot(t *testing.T) {
	repo := newPgRepository(t)
	slot := pgSlot(t, repo)
	ctx := context.Background()

	first := &Appointment{ID: uuid.New(), SlotID: slot.ID, PatientID: uuid.New(), PatientName: "A", Status: StatusBooked, ReservedAt: time.Now()}
	if _, err := repo.Save(ctx, first); err != nil {
		t.Fatalf("save: %v", err)
	}
	second := &Appointment{ID: uuid.New(), SlotID: slot.ID, PatientID: uuid.New(), PatientName: "B", Status: StatusBooked, ReservedAt: time.Now()}
	if _, err := repo.Save(ctx, second); !errors.Is(err, ErrAppointmentExists) {
		t.Fatalf("expected ErrAppointmentExists, got %v", err)
	}
}

func TestPgReserveAndSaveRollsBackReservation(t *testing.T) {
	repo := newPgRepository(t)
	slot := pgSlot(t, repo)
	ctx := context.Background()

	// An appointment row for the slot without a reservation makes the insert
	// inside ReserveAndSave conflict after the slot UPDATE succeeded.
	orphan := &Appointment{ID: uuid.New(), SlotID: slot.ID, PatientID: uuid.New(), PatientName: "Orphan", Status: StatusBooked, ReservedAt: time.Now()}
	if _, err := repo.Save(ctx, orphan); err != nil {
		t.Fatalf("save: %v", err)
	}

	next := &Appointment{ID: uuid.New(), SlotID: slot.ID, PatientID: uuid.New(), PatientName: "Next", Status: StatusBooked, ReservedAt: time.Now()}
	if _, err := repo.ReserveAndSave(ctx, next); !errors.Is(err, ErrAppointmentExists) {
		t.Fatalf("expected ErrAppointmentExists, got %v", err)
	}

	stored, err := repo.GetSlot(ctx, slot.ID)
	if err != nil {
		t.Fatalf("get slot: %v", err)
	}
	if stored.Reserved {
		t.Error("reservation must roll back with the failed insert")
	}

	fresh := pgSlot(t, repo)
	appt := &Appointment{ID: uuid.New(), SlotID: fresh.ID, PatientID: uuid.New(), PatientName: "Ok", Status: StatusBooked, ReservedAt: time.Now()}
	if _, err := repo.ReserveAndSave(ctx, appt); err != nil {
		t.Fatalf("reserve and save: %v", err)
	}
	if _, err := repo.ReserveAndSave(ctx, &Appointment{ID: uuid.New(), SlotID: fresh.ID, PatientID: uuid.New(), PatientName: "Twice", Status: StatusBooked, ReservedAt: time.Now()}); !errors.Is(err, ErrSlotAlreadyReserved) {
		t.Fatalf("expected ErrSlotAlreadyReserved, got %v", err)
	}
}
