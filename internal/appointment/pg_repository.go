package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

// PgRepository implements SlotStore, AppointmentStore and CatalogStore on Postgres.
type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// queryer is satisfied by both the pool and a transaction.
type queryer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Helpers

const slotColumns = `s.id, s.doctor_id, d.name, s.start_time, s.cost_cents, s.is_reserved, s.created_at`

const appointmentColumns = `id, slot_id, patient_id, patient_name, status, reserved_at, updated_at`

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor

	err := row.Scan(
		&d.ID,
		&d.Name,
		&d.Specialization,
		&d.Email,
		&d.PhoneNumber,
		&d.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}

	return &d, nil
}

func scanSlot(row pgx.Row) (*Slot, error) {
	var s Slot

	err := row.Scan(
		&s.ID,
		&s.DoctorID,
		&s.DoctorName,
		&s.StartTime,
		&s.CostCents,
		&s.Reserved,
		&s.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}

	return &s, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.SlotID,
		&a.PatientID,
		&a.PatientName,
		&a.Status,
		&a.ReservedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	return &a, nil
}

// Slots

func (r *PgRepository) GetSlot(ctx context.Context, id uuid.UUID) (*Slot, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM slots s
		JOIN doctors d ON d.id = s.doctor_id
		WHERE s.id = $1
	`, id)
	return scanSlot(row)
}

// ReserveSlot flips is_reserved in a single conditional UPDATE so Postgres
// serializes concurrent reservations of the same row.
func (r *PgRepository) ReserveSlot(ctx context.Context, id uuid.UUID) error {
	return reserveSlot(ctx, r.pool, id)
}

func reserveSlot(ctx context.Context, q queryer, id uuid.UUID) error {
	tag, err := q.Exec(ctx, `
		UPDATE slots
		SET is_reserved = TRUE,
		    reserved_at = now()
		WHERE id = $1
		  AND is_reserved = FALSE
	`, id)
	if err != nil {
		return fmt.Errorf("reserve slot: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM slots WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check slot: %w", err)
	}
	if !exists {
		return ErrSlotNotFound
	}
	return ErrSlotAlreadyReserved
}

// ReserveAndSave reserves the slot and inserts the appointment in one
// transaction. Any failure leaves the slot unreserved.
func (r *PgRepository) ReserveAndSave(ctx context.Context, a *Appointment) (*Appointment, error) {
	var saved *Appointment
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := reserveSlot(ctx, tx, a.SlotID); err != nil {
			return err
		}
		out, err := saveAppointment(ctx, tx, a)
		if err != nil {
			return err
		}
		saved = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

// Appointments

func (r *PgRepository) FindBySlotID(ctx context.Context, slotID uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE slot_id = $1
	`, slotID)
	return scanAppointment(row)
}

func (r *PgRepository) FindByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) Save(ctx context.Context, a *Appointment) (*Appointment, error) {
	return saveAppointment(ctx, r.pool, a)
}

func saveAppointment(ctx context.Context, q queryer, a *Appointment) (*Appointment, error) {
	row := q.QueryRow(ctx, `
		INSERT INTO appointments (id, slot_id, patient_id, patient_name, status, reserved_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (id) DO UPDATE
		SET patient_name = EXCLUDED.patient_name,
		    status = EXCLUDED.status,
		    updated_at = now()
		RETURNING `+appointmentColumns+`
	`, a.ID, a.SlotID, a.PatientID, a.PatientName, a.Status, a.ReservedAt)

	saved, err := scanAppointment(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, ErrAppointmentExists
		}
		return nil, err
	}
	return saved, nil
}

func (r *PgRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns+`
	`, id, to, from)

	return scanAppointment(row)
}

func (r *PgRepository) ListUpcoming(ctx context.Context, now time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = 'booked'
		  AND reserved_at >= $1
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// Catalog

func (r *PgRepository) InsertDoctor(ctx context.Context, d *Doctor) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO doctors (id, name, specialization, email, phone_number, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		RETURNING id, name, specialization, email, phone_number, created_at
	`, d.ID, d.Name, d.Specialization, d.Email, d.PhoneNumber)
	return scanDoctor(row)
}

func (r *PgRepository) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, specialization, email, phone_number, created_at
		FROM doctors
		WHERE id = $1
	`, id)
	return scanDoctor(row)
}

func (r *PgRepository) InsertSlot(ctx context.Context, s *Slot) (*Slot, error) {
	row := r.pool.QueryRow(ctx, `
		WITH inserted AS (
			INSERT INTO slots (id, doctor_id, start_time, cost_cents, is_reserved, created_at)
			VALUES ($1, $2, $3, $4, FALSE, now())
			RETURNING *
		)
		SELECT `+slotColumns+`
		FROM inserted s
		JOIN doctors d ON d.id = s.doctor_id
	`, s.ID, s.DoctorID, s.StartTime, s.CostCents)

	slot, err := scanSlot(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}
	return slot, nil
}

func (r *PgRepository) ListAvailableSlots(ctx context.Context) ([]Slot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+slotColumns+`
		FROM slots s
		JOIN doctors d ON d.id = s.doctor_id
		WHERE s.is_reserved = FALSE
		ORDER BY s.start_time, s.id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}
