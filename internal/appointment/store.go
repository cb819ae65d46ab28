package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrSlotNotFound        = errors.New("slot not found")
	ErrSlotAlreadyReserved = errors.New("slot already reserved")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrAppointmentExists   = errors.New("slot already has an appointment")
)

// SlotStore holds slot records. ReserveSlot is a compare-and-set: among
// concurrent callers on one slot exactly one gets nil, the rest get
// ErrSlotAlreadyReserved.
type SlotStore interface {
	GetSlot(ctx context.Context, id uuid.UUID) (*Slot, error)
	ReserveSlot(ctx context.Context, id uuid.UUID) error
}

// AppointmentStore holds appointment records keyed by id and by slot id.
type AppointmentStore interface {
	FindBySlotID(ctx context.Context, slotID uuid.UUID) (*Appointment, error)
	FindByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// Save upserts by appointment id. ReservedAt is never overwritten.
	Save(ctx context.Context, a *Appointment) (*Appointment, error)

	// TransitionStatus writes to only if the stored status is still from.
	// A missing row or a status mismatch both yield ErrAppointmentNotFound.
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error)

	ListUpcoming(ctx context.Context, now time.Time) ([]Appointment, error)
}

// SlotBooker is implemented by stores that can reserve a slot and insert its
// appointment atomically. It reports the same errors as ReserveSlot and Save.
// The engine prefers it when the AppointmentStore implements it, so the slot
// rows it reserves must be the ones the SlotStore reads.
type SlotBooker interface {
	ReserveAndSave(ctx context.Context, a *Appointment) (*Appointment, error)
}

// NotificationSink receives confirmations after a booking commits. Errors are
// logged by the caller and never undo the booking.
type NotificationSink interface {
	Notify(ctx context.Context, c Confirmation) error
}

// CatalogStore backs doctor and slot management.
type CatalogStore interface {
	InsertDoctor(ctx context.Context, d *Doctor) (*Doctor, error)
	GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error)
	InsertSlot(ctx context.Context, s *Slot) (*Slot, error)
	ListAvailableSlots(ctx context.Context) ([]Slot, error)
}
