package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/hackgods/slot-booking/internal/api"
)

type Simulator struct {
	config  SimConfig
	client  *http.Client
	logger  zerolog.Logger
	metrics Metrics
}

// Result lists every broken guarantee the run observed.
type Result struct {
	Slots        int
	Booked       int
	Transitioned int
	Violations   []string
}

func NewSimulator(cfg SimConfig, client *http.Client, logger zerolog.Logger) *Simulator {
	return &Simulator{config: cfg, client: client, logger: logger}
}

func (s *Simulator) Run(ctx context.Context) (*Result, error) {
	slots, err := s.prepareSlots(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare slots: %w", err)
	}
	s.logger.Info().Int("slots", len(slots)).Int("racers", s.config.Racers).Msg("racing bookings")

	res := &Result{Slots: len(slots)}

	winners, violations := s.raceBookings(ctx, slots)
	res.Booked = len(winners)
	res.Violations = append(res.Violations, violations...)

	booked := make([]uuid.UUID, 0, len(winners))
	for _, id := range winners {
		booked = append(booked, id)
	}
	s.logger.Info().Int("appointments", len(booked)).Msg("racing complete against cancel")

	transitioned, violations := s.raceTransitions(ctx, booked)
	res.Transitioned = transitioned
	res.Violations = append(res.Violations, violations...)

	violations, err = s.verifySlotsHidden(ctx, winners)
	if err != nil {
		return nil, fmt.Errorf("verify slots: %w", err)
	}
	res.Violations = append(res.Violations, violations...)

	return res, nil
}

// prepareSlots returns up to config.Slots free slots, creating a doctor and
// the missing slots through the API when the catalog is short.
func (s *Simulator) prepareSlots(ctx context.Context) ([]uuid.UUID, error) {
	var existing []api.SlotResponse
	if _, err := s.call(ctx, &s.metrics.Setup, http.MethodGet, "/slots", nil, &existing); err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, 0, s.config.Slots)
	for _, slot := range existing {
		if len(ids) == s.config.Slots {
			break
		}
		ids = append(ids, slot.ID)
	}
	if len(ids) == s.config.Slots {
		return ids, nil
	}

	var doctor api.DoctorResponse
	status, err := s.call(ctx, &s.metrics.Setup, http.MethodPost, "/doctors", api.CreateDoctorRequest{
		Name:           "Dr. " + gofakeit.Name(),
		Specialization: "General Practice",
		Email:          gofakeit.Email(),
	}, &doctor)
	if err != nil {
		return nil, err
	}
	if status != http.StatusCreated {
		return nil, fmt.Errorf("create doctor: unexpected status %d", status)
	}

	start := time.Now().Add(24 * time.Hour).Truncate(time.Minute)
	for i := len(ids); i < s.config.Slots; i++ {
		var slot api.SlotResponse
		status, err := s.call(ctx, &s.metrics.Setup, http.MethodPost, "/slots", api.CreateSlotRequest{
			DoctorID:  doctor.ID.String(),
			StartTime: start.Add(time.Duration(i) * 30 * time.Minute),
			CostCents: int64(gofakeit.Number(50, 300)) * 100,
		}, &slot)
		if err != nil {
			return nil, err
		}
		if status != http.StatusCreated {
			return nil, fmt.Errorf("create slot: unexpected status %d", status)
		}
		ids = append(ids, slot.ID)
	}
	return ids, nil
}

func (s *Simulator) raceBookings(ctx context.Context, slots []uuid.UUID) (map[uuid.UUID]uuid.UUID, []string) {
	var (
		mu      sync.Mutex
		winners = make(map[uuid.UUID]uuid.UUID, len(slots))
		wins    = make(map[uuid.UUID]int, len(slots))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Workers)

	for _, slotID := range slots {
		for r := 0; r < s.config.Racers; r++ {
			g.Go(func() error {
				var appt api.AppointmentResponse
				status, err := s.call(gctx, &s.metrics.Booking, http.MethodPost, "/appointments", api.CreateAppointmentRequest{
					SlotID:      slotID.String(),
					PatientID:   uuid.NewString(),
					PatientName: gofakeit.Name(),
				}, &appt)
				if err != nil || status != http.StatusCreated {
					return nil
				}

				mu.Lock()
				wins[slotID]++
				winners[slotID] = appt.ID
				mu.Unlock()
				return nil
			})
		}
	}
	_ = g.Wait()

	var violations []string
	for _, slotID := range slots {
		if n := wins[slotID]; n != 1 {
			violations = append(violations, fmt.Sprintf("slot %s: %d successful bookings, want 1", slotID, n))
		}
	}
	return winners, violations
}

func (s *Simulator) raceTransitions(ctx context.Context, appointments []uuid.UUID) (int, []string) {
	var (
		mu   sync.Mutex
		wins = make(map[uuid.UUID]int, len(appointments))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Workers)

	for _, id := range appointments {
		for _, action := range []string{"complete", "cancel"} {
			g.Go(func() error {
				status, err := s.call(gctx, &s.metrics.Transition, http.MethodPost,
					fmt.Sprintf("/appointments/%s/%s", id, action), nil, nil)
				if err != nil || status != http.StatusOK {
					return nil
				}
				mu.Lock()
				wins[id]++
				mu.Unlock()
				return nil
			})
		}
	}
	_ = g.Wait()

	var (
		violations   []string
		transitioned int
	)
	for _, id := range appointments {
		switch n := wins[id]; n {
		case 1:
			transitioned++
		default:
			violations = append(violations, fmt.Sprintf("appointment %s: %d successful transitions, want 1", id, n))
		}
	}
	return transitioned, violations
}

// verifySlotsHidden checks that no booked slot is still offered as available.
func (s *Simulator) verifySlotsHidden(ctx context.Context, winners map[uuid.UUID]uuid.UUID) ([]string, error) {
	var available []api.SlotResponse
	if _, err := s.call(ctx, &s.metrics.Setup, http.MethodGet, "/slots", nil, &available); err != nil {
		return nil, err
	}

	var violations []string
	for _, slot := range available {
		if _, ok := winners[slot.ID]; ok {
			violations = append(violations, fmt.Sprintf("slot %s is booked but still listed as available", slot.ID))
		}
	}
	return violations, nil
}

// call sends one JSON request and records it. A 409 counts as a conflict, any
// other non-2xx as an error. out is decoded only on 2xx.
func (s *Simulator) call(ctx context.Context, om *OperationMetrics, method, path string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, reader)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		om.Record(latency, false, false)
		return 0, err
	}
	defer resp.Body.Close()

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	om.Record(latency, ok, resp.StatusCode == http.StatusConflict)

	if ok && out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode %s %s: %w", method, path, err)
		}
	} else {
		_, _ = io.Copy(io.Discard, resp.Body)
	}
	return resp.StatusCode, nil
}
