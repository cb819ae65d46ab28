package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/slot-booking/internal/appointment"
)

type Booker interface {
	Book(ctx context.Context, req appointment.BookingRequest) (*appointment.Appointment, error)
}

type Lifecycle interface {
	Complete(ctx context.Context, id uuid.UUID) error
	Cancel(ctx context.Context, id uuid.UUID) error
	ListUpcoming(ctx context.Context, now time.Time) ([]appointment.Appointment, error)
	Get(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
}

type Catalog interface {
	CreateDoctor(ctx context.Context, in appointment.NewDoctor) (*appointment.Doctor, error)
	CreateSlot(ctx context.Context, in appointment.NewSlot) (*appointment.Slot, error)
	ListAvailableSlots(ctx context.Context) ([]appointment.Slot, error)
}

func createDoctorHandler(catalog Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateDoctorRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		doctor, err := catalog.CreateDoctor(r.Context(), appointment.NewDoctor{
			Name:           req.Name,
			Specialization: req.Specialization,
			Email:          req.Email,
			PhoneNumber:    req.PhoneNumber,
		})
		if err != nil {
			handleCatalogError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toDoctorResponse(doctor))
	}
}

func createSlotHandler(catalog Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateSlotRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		doctorID, err := uuid.Parse(req.DoctorID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
			return
		}

		slot, err := catalog.CreateSlot(r.Context(), appointment.NewSlot{
			DoctorID:  doctorID,
			StartTime: req.StartTime,
			CostCents: req.CostCents,
		})
		if err != nil {
			handleCatalogError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toSlotResponse(slot))
	}
}

func listSlotsHandler(catalog Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slots, err := catalog.ListAvailableSlots(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		resp := make([]SlotResponse, 0, len(slots))
		for i := range slots {
			resp = append(resp, toSlotResponse(&slots[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func createAppointmentHandler(booker Booker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		slotID, err := uuid.Parse(req.SlotID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot_id", "slot_id must be a valid UUID")
			return
		}

		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}

		name := strings.TrimSpace(req.PatientName)
		if name == "" {
			writeError(w, http.StatusBadRequest, "invalid_patient_name", "patient_name is required")
			return
		}

		appt, err := booker.Book(r.Context(), appointment.BookingRequest{
			SlotID:      slotID,
			PatientID:   patientID,
			PatientName: name,
		})
		if err != nil {
			if errors.Is(err, appointment.ErrSlotUnavailable) {
				writeError(w, http.StatusConflict, "slot_unavailable", "slot is not available for booking")
				return
			}
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func listUpcomingHandler(lc Lifecycle, now func() time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		from := now()
		if raw := r.URL.Query().Get("from"); raw != "" {
			t, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_from", "from must be an RFC3339 timestamp")
				return
			}
			from = t
		}

		list, err := lc.ListUpcoming(r.Context(), from)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		sort.Slice(list, func(i, j int) bool {
			if list[i].ReservedAt.Equal(list[j].ReservedAt) {
				return list[i].ID.String() < list[j].ID.String()
			}
			return list[i].ReservedAt.Before(list[j].ReservedAt)
		})

		resp := make([]AppointmentResponse, 0, len(list))
		for i := range list {
			resp = append(resp, toAppointmentResponse(&list[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func getAppointmentHandler(lc Lifecycle) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentID(w, r)
		if !ok {
			return
		}

		appt, err := lc.Get(r.Context(), id)
		if err != nil {
			if errors.Is(err, appointment.ErrAppointmentNotFound) {
				writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func transitionHandler(lc Lifecycle, apply func(context.Context, uuid.UUID) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentID(w, r)
		if !ok {
			return
		}

		if err := apply(r.Context(), id); err != nil {
			if errors.Is(err, appointment.ErrNotEligible) {
				writeError(w, http.StatusConflict, "not_eligible", "appointment is not in a state that allows this change")
				return
			}
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		appt, err := lc.Get(r.Context(), id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func appointmentID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func handleCatalogError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, appointment.ErrInvalidDoctor),
		errors.Is(err, appointment.ErrSlotInPast),
		errors.Is(err, appointment.ErrInvalidCost):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, appointment.ErrDoctorNotFound):
		writeError(w, http.StatusNotFound, "doctor_not_found", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
