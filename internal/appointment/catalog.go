package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidDoctor = errors.New("doctor name is required")
	ErrSlotInPast    = errors.New("slot time must be in the future")
	ErrInvalidCost   = errors.New("cost must be a positive number")
)

type NewDoctor struct {
	Name           string
	Specialization string
	Email          string
	PhoneNumber    string
}

type NewSlot struct {
	DoctorID  uuid.UUID
	StartTime time.Time
	CostCents int64
}

// Catalog manages doctors and their bookable slots.
type Catalog struct {
	store CatalogStore
	now   func() time.Time
}

func NewCatalog(store CatalogStore) *Catalog {
	return &Catalog{store: store, now: time.Now}
}

func (c *Catalog) CreateDoctor(ctx context.Context, in NewDoctor) (*Doctor, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, ErrInvalidDoctor
	}

	d, err := c.store.InsertDoctor(ctx, &Doctor{
		ID:             uuid.New(),
		Name:           name,
		Specialization: optional(in.Specialization),
		Email:          optional(in.Email),
		PhoneNumber:    optional(in.PhoneNumber),
	})
	if err != nil {
		return nil, fmt.Errorf("insert doctor: %w", err)
	}
	return d, nil
}

func (c *Catalog) CreateSlot(ctx context.Context, in NewSlot) (*Slot, error) {
	if !in.StartTime.After(c.now()) {
		return nil, ErrSlotInPast
	}
	if in.CostCents <= 0 {
		return nil, ErrInvalidCost
	}

	if _, err := c.store.GetDoctor(ctx, in.DoctorID); err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load doctor: %w", err)
	}

	s, err := c.store.InsertSlot(ctx, &Slot{
		ID:        uuid.New(),
		DoctorID:  in.DoctorID,
		StartTime: in.StartTime.UTC(),
		CostCents: in.CostCents,
	})
	if err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("insert slot: %w", err)
	}
	return s, nil
}

// ListAvailableSlots returns unreserved slots ordered by start time.
func (c *Catalog) ListAvailableSlots(ctx context.Context) ([]Slot, error) {
	slots, err := c.store.ListAvailableSlots(ctx)
	if err != nil {
		return nil, fmt.Errorf("list available slots: %w", err)
	}
	return slots, nil
}

func optional(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
