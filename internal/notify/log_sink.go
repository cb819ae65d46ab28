package notify

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/slot-booking/internal/appointment"
)

// LogSink delivers a confirmation by logging one entry per recipient.
type LogSink struct {
	logger zerolog.Logger
}

func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger.With().Str("component", "confirmation").Logger()}
}

func (s *LogSink) Notify(_ context.Context, c appointment.Confirmation) error {
	for _, recipient := range []string{"patient", "doctor"} {
		s.logger.Info().
			Str("recipient", recipient).
			Str("appointment_id", c.AppointmentID.String()).
			Str("patient_name", c.PatientName).
			Str("doctor_name", c.DoctorName).
			Str("appointment_time", c.AppointmentTime.Format(time.RFC3339)).
			Msg("appointment confirmation")
	}
	return nil
}
