package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

type RouterConfig struct {
	Booker         Booker
	Lifecycle      Lifecycle
	Catalog        Catalog
	Checks         []DependencyCheck
	Logger         zerolog.Logger
	RequestTimeout time.Duration
	Env            string
	Version        string
	// Now defaults to time.Now; tests pin it.
	Now func() time.Time
}

func NewRouter(cfg RouterConfig) http.Handler {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(middleware.Recoverer)

	health := NewHealthHandler(cfg.Checks, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Group(func(r chi.Router) {
		r.Use(TimeoutMiddleware(cfg.RequestTimeout))

		r.Post("/doctors", createDoctorHandler(cfg.Catalog))
		r.Post("/slots", createSlotHandler(cfg.Catalog))
		r.Get("/slots", listSlotsHandler(cfg.Catalog))

		r.Post("/appointments", createAppointmentHandler(cfg.Booker))
		r.Get("/appointments/upcoming", listUpcomingHandler(cfg.Lifecycle, now))
		r.Get("/appointments/{id}", getAppointmentHandler(cfg.Lifecycle))
		r.Post("/appointments/{id}/complete", transitionHandler(cfg.Lifecycle, cfg.Lifecycle.Complete))
		r.Post("/appointments/{id}/cancel", transitionHandler(cfg.Lifecycle, cfg.Lifecycle.Cancel))
	})

	return r
}
