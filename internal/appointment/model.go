package appointment

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusBooked    AppointmentStatus = "booked"
	StatusCompleted AppointmentStatus = "completed"
	StatusCanceled  AppointmentStatus = "canceled"
)

// IsTerminal reports whether no further transition is allowed.
func (s AppointmentStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCanceled
}

func (s AppointmentStatus) Valid() bool {
	switch s {
	case StatusBooked, StatusCompleted, StatusCanceled:
		return true
	}
	return false
}

type Doctor struct {
	ID             uuid.UUID
	Name           string
	Specialization *string
	Email          *string
	PhoneNumber    *string
	CreatedAt      time.Time
}

// Slot is a bookable doctor time window. Reserved only ever goes from false to true.
type Slot struct {
	ID         uuid.UUID
	DoctorID   uuid.UUID
	DoctorName string
	StartTime  time.Time
	CostCents  int64
	Reserved   bool
	CreatedAt  time.Time
}

type Appointment struct {
	ID          uuid.UUID
	SlotID      uuid.UUID
	PatientID   uuid.UUID
	PatientName string
	Status      AppointmentStatus
	ReservedAt  time.Time
	UpdatedAt   time.Time
}

type BookingRequest struct {
	SlotID      uuid.UUID
	PatientID   uuid.UUID
	PatientName string
}

// Confirmation is the event handed to a NotificationSink after a booking commits.
type Confirmation struct {
	AppointmentID   uuid.UUID `json:"appointment_id"`
	PatientName     string    `json:"patient_name"`
	DoctorName      string    `json:"doctor_name"`
	AppointmentTime time.Time `json:"appointment_time"`
}

// FormatCost renders integer cents as a decimal amount, e.g. 15050 -> "150.50".
func FormatCost(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}
