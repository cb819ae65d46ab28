package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORE_BACKEND", "memory")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.HTTPPort != "8080" {
		t.Errorf("expected port 8080, got %s", cfg.HTTPPort)
	}
	if cfg.LockTTL != 5*time.Second {
		t.Errorf("expected lock ttl 5s, got %s", cfg.LockTTL)
	}
	if cfg.NotifyExchange != "appointments" {
		t.Errorf("expected exchange appointments, got %s", cfg.NotifyExchange)
	}
	if cfg.SlotCacheSize != 4096 {
		t.Errorf("expected cache size 4096, got %d", cfg.SlotCacheSize)
	}
}

func TestLoadRequiresDSNForPostgres(t *testing.T) {
	t.Setenv("STORE_BACKEND", "postgres")
	t.Setenv("POSTGRES_DSN", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when POSTGRES_DSN is missing")
	}
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	t.Setenv("STORE_BACKEND", "sqlite")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestLoadParsesDurations(t *testing.T) {
	t.Setenv("STORE_BACKEND", "MEMORY")
	t.Setenv("LOCK_TTL", "750ms")
	t.Setenv("APP_ENV", "Prod")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LockTTL != 750*time.Millisecond {
		t.Errorf("expected 750ms, got %s", cfg.LockTTL)
	}
	if cfg.IsDev() {
		t.Error("expected prod env")
	}
	if cfg.StoreBackend != BackendMemory {
		t.Errorf("expected memory backend, got %s", cfg.StoreBackend)
	}
}
