package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

type Config struct {
	Env             string        `env:"APP_ENV" envDefault:"dev"` // dev, prod
	Version         string        `env:"APP_VERSION" envDefault:"local"`
	HTTPPort        string        `env:"HTTP_PORT" envDefault:"8080"`
	StoreBackend    string        `env:"STORE_BACKEND" envDefault:"postgres"` // postgres, memory
	PostgresDSN     string        `env:"POSTGRES_DSN"`                        // required for postgres
	PGMaxConns      int32         `env:"PG_MAX_CONNS" envDefault:"20"`
	PGMinConns      int32         `env:"PG_MIN_CONNS" envDefault:"2"`
	RedisURL        string        `env:"REDIS_URL"`                // empty disables the slot lock
	LockTTL         time.Duration `env:"LOCK_TTL" envDefault:"5s"` // how long a Redis slot lock lives
	AMQPURL         string        `env:"AMQP_URL"`                 // empty logs confirmations locally
	NotifyExchange  string        `env:"NOTIFY_EXCHANGE" envDefault:"appointments"`
	NotifyQueue     string        `env:"NOTIFY_QUEUE" envDefault:"appointment_confirmations"`
	NotifyBuffer    int           `env:"NOTIFY_BUFFER" envDefault:"256"`
	SlotCacheSize   int           `env:"SLOT_CACHE_SIZE" envDefault:"4096"` // 0 disables
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"5s"`   // store calls per request
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"` // graceful shutdown timeout
}

func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	cfg.Env = strings.ToLower(cfg.Env)
	cfg.StoreBackend = strings.ToLower(cfg.StoreBackend)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) validate() error {
	switch c.StoreBackend {
	case BackendPostgres:
		if c.PostgresDSN == "" {
			return errors.New("POSTGRES_DSN is required")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}

	if c.LockTTL <= 0 {
		return errors.New("LOCK_TTL must be > 0")
	}
	if c.NotifyBuffer <= 0 {
		return errors.New("NOTIFY_BUFFER must be > 0")
	}
	if c.SlotCacheSize < 0 {
		return errors.New("SLOT_CACHE_SIZE must be >= 0")
	}
	return nil
}

func (c Config) IsDev() bool {
	return c.Env == "dev"
}
