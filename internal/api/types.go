package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/slot-booking/internal/appointment"
)

type CreateDoctorRequest struct {
	Name           string `json:"name"`
	Specialization string `json:"specialization"`
	Email          string `json:"email"`
	PhoneNumber    string `json:"phone_number"`
}

type CreateSlotRequest struct {
	DoctorID  string    `json:"doctor_id"`
	StartTime time.Time `json:"start_time"`
	CostCents int64     `json:"cost_cents"`
}

type CreateAppointmentRequest struct {
	SlotID      string `json:"slot_id"`
	PatientID   string `json:"patient_id"`
	PatientName string `json:"patient_name"`
}

type DoctorResponse struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Specialization *string   `json:"specialization,omitempty"`
	Email          *string   `json:"email,omitempty"`
	PhoneNumber    *string   `json:"phone_number,omitempty"`
}

type SlotResponse struct {
	ID         uuid.UUID `json:"id"`
	DoctorID   uuid.UUID `json:"doctor_id"`
	DoctorName string    `json:"doctor_name"`
	StartTime  time.Time `json:"start_time"`
	CostCents  int64     `json:"cost_cents"`
	Cost       string    `json:"cost"`
	Reserved   bool      `json:"is_reserved"`
}

type AppointmentResponse struct {
	ID          uuid.UUID `json:"id"`
	SlotID      uuid.UUID `json:"slot_id"`
	PatientID   uuid.UUID `json:"patient_id"`
	PatientName string    `json:"patient_name"`
	Status      string    `json:"status"`
	ReservedAt  time.Time `json:"reserved_at"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toDoctorResponse(d *appointment.Doctor) DoctorResponse {
	return DoctorResponse{
		ID:             d.ID,
		Name:           d.Name,
		Specialization: d.Specialization,
		Email:          d.Email,
		PhoneNumber:    d.PhoneNumber,
	}
}

func toSlotResponse(s *appointment.Slot) SlotResponse {
	return SlotResponse{
		ID:         s.ID,
		DoctorID:   s.DoctorID,
		DoctorName: s.DoctorName,
		StartTime:  s.StartTime,
		CostCents:  s.CostCents,
		Cost:       appointment.FormatCost(s.CostCents),
		Reserved:   s.Reserved,
	}
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:          a.ID,
		SlotID:      a.SlotID,
		PatientID:   a.PatientID,
		PatientName: a.PatientName,
		Status:      string(a.Status),
		ReservedAt:  a.ReservedAt,
	}
}
