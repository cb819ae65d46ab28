package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"

	"github.com/hackgods/slot-booking/internal/logging"
)

type SimConfig struct {
	APIBaseURL string        `env:"SIM_API_BASE_URL" envDefault:"http://localhost:8080"`
	Slots      int           `env:"SIM_SLOTS" envDefault:"50"`
	Racers     int           `env:"SIM_RACERS" envDefault:"20"`  // concurrent bookings per slot
	Workers    int           `env:"SIM_WORKERS" envDefault:"64"` // in-flight requests
	Timeout    time.Duration `env:"SIM_HTTP_TIMEOUT" envDefault:"10s"`
	Env        string        `env:"APP_ENV" envDefault:"dev"`
}

func loadConfig() (SimConfig, error) {
	_ = godotenv.Load()

	var cfg SimConfig
	if err := env.Parse(&cfg); err != nil {
		return SimConfig{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.APIBaseURL = strings.TrimRight(cfg.APIBaseURL, "/")
	return cfg, validateConfig(cfg)
}

func validateConfig(cfg SimConfig) error {
	if cfg.Slots <= 0 {
		return errors.New("SIM_SLOTS must be > 0")
	}
	if cfg.Racers < 2 {
		return errors.New("SIM_RACERS must be >= 2")
	}
	if cfg.Workers <= 0 {
		return errors.New("SIM_WORKERS must be > 0")
	}
	return nil
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Env).With().Str("service", "simulate").Logger()
	logger.Info().
		Str("api", cfg.APIBaseURL).
		Int("slots", cfg.Slots).
		Int("racers", cfg.Racers).
		Int("workers", cfg.Workers).
		Msg("simulator starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sim := NewSimulator(cfg, &http.Client{Timeout: cfg.Timeout}, logger)
	start := time.Now()
	res, err := sim.Run(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("simulation failed")
	}

	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Elapsed: %s\n", time.Since(start).Round(time.Millisecond))
	fmt.Printf("Slots: %d  Booked: %d  Transitioned: %d\n\n", res.Slots, res.Booked, res.Transitioned)
	sim.metrics.Print(os.Stdout)

	if len(res.Violations) > 0 {
		for _, v := range res.Violations {
			logger.Error().Msg(v)
		}
		logger.Fatal().Int("violations", len(res.Violations)).Msg("concurrency guarantees violated")
	}
	logger.Info().Msg("all guarantees held")
}
