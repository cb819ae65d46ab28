package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	redisclient "github.com/hackgods/slot-booking/internal/redis"
)

var (
	// ErrSlotUnavailable covers a missing slot, a reserved slot and a slot that
	// already has an appointment. Callers cannot act differently on any of them.
	ErrSlotUnavailable = errors.New("slot unavailable")
)

type BookingEngine struct {
	slots        SlotStore
	appointments AppointmentStore
	notifier     NotificationSink
	locker       redisclient.Locker
	logger       zerolog.Logger
	now          func() time.Time
	newID        func() uuid.UUID
}

// NewBookingEngine wires the engine. A nil locker means the store's
// conditional reserve is the only guard.
func NewBookingEngine(slots SlotStore, appointments AppointmentStore, notifier NotificationSink, locker redisclient.Locker, logger zerolog.Logger) *BookingEngine {
	if locker == nil {
		locker = redisclient.LocalLocker{}
	}
	return &BookingEngine{
		slots:        slots,
		appointments: appointments,
		notifier:     notifier,
		locker:       locker,
		logger:       logger.With().Str("component", "booking").Logger(),
		now:          time.Now,
		newID:        uuid.New,
	}
}

// Book claims a slot for a patient. Exactly one of any number of concurrent
// calls for the same slot returns an appointment; the others get
// ErrSlotUnavailable.
func (e *BookingEngine) Book(ctx context.Context, req BookingRequest) (*Appointment, error) {
	// Early exits. These can race with a concurrent booking; the reservation
	// below is the actual mutual exclusion point.
	if _, err := e.appointments.FindBySlotID(ctx, req.SlotID); err == nil {
		return nil, ErrSlotUnavailable
	} else if !errors.Is(err, ErrAppointmentNotFound) {
		return nil, fmt.Errorf("find appointment for slot: %w", err)
	}

	slot, err := e.slots.GetSlot(ctx, req.SlotID)
	if err != nil {
		if errors.Is(err, ErrSlotNotFound) {
			return nil, ErrSlotUnavailable
		}
		return nil, fmt.Errorf("load slot: %w", err)
	}
	if slot.Reserved {
		return nil, ErrSlotUnavailable
	}

	var saved *Appointment

	err = e.locker.WithSlotLock(ctx, req.SlotID, func(lockCtx context.Context) error {
		appt := &Appointment{
			ID:          e.newID(),
			SlotID:      req.SlotID,
			PatientID:   req.PatientID,
			PatientName: req.PatientName,
			Status:      StatusBooked,
			ReservedAt:  e.now().UTC(),
		}

		out, err := e.reserveAndSave(lockCtx, appt)
		if err != nil {
			switch {
			case errors.Is(err, ErrSlotAlreadyReserved), errors.Is(err, ErrSlotNotFound):
				return ErrSlotUnavailable
			case errors.Is(err, ErrAppointmentExists):
				e.logger.Error().
					Str("slot_id", req.SlotID.String()).
					Msg("slot was free but an appointment already exists for it")
				return ErrSlotUnavailable
			}
			return err
		}

		saved = out
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotUnavailable
		}
		return nil, err
	}

	e.logger.Info().
		Str("slot_id", saved.SlotID.String()).
		Str("appointment_id", saved.ID.String()).
		Msg("appointment booked")

	e.notify(ctx, saved, slot)

	return saved, nil
}

// reserveAndSave uses the store's transactional path when it has one. Otherwise
// the reservation and the insert are separate writes, and a failed insert
// leaves the slot reserved.
func (e *BookingEngine) reserveAndSave(ctx context.Context, appt *Appointment) (*Appointment, error) {
	if tx, ok := e.appointments.(SlotBooker); ok {
		out, err := tx.ReserveAndSave(ctx, appt)
		if err != nil && !isBookingOutcome(err) {
			return nil, fmt.Errorf("reserve and save: %w", err)
		}
		return out, err
	}

	if err := e.slots.ReserveSlot(ctx, appt.SlotID); err != nil {
		if isBookingOutcome(err) {
			return nil, err
		}
		return nil, fmt.Errorf("reserve slot: %w", err)
	}
	out, err := e.appointments.Save(ctx, appt)
	if err != nil && !isBookingOutcome(err) {
		return nil, fmt.Errorf("save appointment: %w", err)
	}
	return out, err
}

func isBookingOutcome(err error) bool {
	return errors.Is(err, ErrSlotAlreadyReserved) ||
		errors.Is(err, ErrSlotNotFound) ||
		errors.Is(err, ErrAppointmentExists)
}

// notify is best effort: the booking is already committed.
func (e *BookingEngine) notify(ctx context.Context, appt *Appointment, slot *Slot) {
	if e.notifier == nil {
		return
	}

	c := Confirmation{
		AppointmentID:   appt.ID,
		PatientName:     appt.PatientName,
		DoctorName:      slot.DoctorName,
		AppointmentTime: slot.StartTime,
	}

	if err := e.notifier.Notify(context.WithoutCancel(ctx), c); err != nil {
		e.logger.Warn().
			Err(err).
			Str("appointment_id", appt.ID.String()).
			Msg("confirmation not dispatched")
	}
}
