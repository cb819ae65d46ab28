package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	// ErrNotEligible is returned when the appointment is unknown or no longer Booked.
	ErrNotEligible = errors.New("appointment not eligible for transition")
)

// LifecycleManager owns every status change after creation:
// Booked -> Completed and Booked -> Canceled. Both targets are terminal.
//
// Canceling leaves the slot reserved; it is not offered for rebooking.
type LifecycleManager struct {
	appointments AppointmentStore
	logger       zerolog.Logger
}

func NewLifecycleManager(appointments AppointmentStore, logger zerolog.Logger) *LifecycleManager {
	return &LifecycleManager{
		appointments: appointments,
		logger:       logger.With().Str("component", "lifecycle").Logger(),
	}
}

func (m *LifecycleManager) Complete(ctx context.Context, id uuid.UUID) error {
	return m.transition(ctx, id, StatusCompleted)
}

func (m *LifecycleManager) Cancel(ctx context.Context, id uuid.UUID) error {
	return m.transition(ctx, id, StatusCanceled)
}

func (m *LifecycleManager) transition(ctx context.Context, id uuid.UUID, to AppointmentStatus) error {
	appt, err := m.appointments.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return ErrNotEligible
		}
		return fmt.Errorf("load appointment: %w", err)
	}
	if appt.Status != StatusBooked {
		return ErrNotEligible
	}

	// Conditioned on the status still being Booked, so of two racing terminal
	// transitions only one lands.
	if _, err := m.appointments.TransitionStatus(ctx, id, StatusBooked, to); err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return ErrNotEligible
		}
		return fmt.Errorf("update appointment status: %w", err)
	}

	m.logger.Info().
		Str("appointment_id", id.String()).
		Str("status", string(to)).
		Msg("appointment status changed")
	return nil
}

// ListUpcoming returns Booked appointments with ReservedAt at or after now, in no particular order.
func (m *LifecycleManager) ListUpcoming(ctx context.Context, now time.Time) ([]Appointment, error) {
	list, err := m.appointments.ListUpcoming(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("list upcoming appointments: %w", err)
	}
	return list, nil
}

func (m *LifecycleManager) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := m.appointments.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return appt, nil
}
