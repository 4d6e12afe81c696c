package config

import (
	"testing"
	"time"
)

func TestLoadProductServiceDefaults(t *testing.T) {
	cfg, err := LoadProductService()
	if err != nil {
		t.Fatalf("LoadProductService() error = %v", err)
	}
	if cfg.Port != 8000 {
		t.Fatalf("Port = %d, want 8000", cfg.Port)
	}
	if cfg.CacheTTL != 5*time.Minute {
		t.Fatalf("CacheTTL = %v, want 5m", cfg.CacheTTL)
	}
	if cfg.InventoryQueue != "inventory.updates" {
		t.Fatalf("InventoryQueue = %q", cfg.InventoryQueue)
	}
	if cfg.Address() != ":8000" {
		t.Fatalf("Address() = %q", cfg.Address())
	}
	if cfg.Redis.Addr() != "localhost:6379" {
		t.Fatalf("Redis.Addr() = %q", cfg.Redis.Addr())
	}
}

func TestLoadProductServiceOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("CACHE_TTL", "90s")
	t.Setenv("REDIS_HOST", "cache.internal")

	cfg, err := LoadProductService()
	if err != nil {
		t.Fatalf("LoadProductService() error = %v", err)
	}
	if cfg.Port != 9000 || cfg.CacheTTL != 90*time.Second {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.Redis.Addr() != "cache.internal:6379" {
		t.Fatalf("Redis.Addr() = %q", cfg.Redis.Addr())
	}
}

func TestLoadUserServiceRequiresSecret(t *testing.T) {
	if _, err := LoadUserService(); err == nil {
		t.Fatal("LoadUserService() without JWT_SECRET = nil, want error")
	}

	t.Setenv("JWT_SECRET", "0123456789abcdef0123456789abcdef")
	cfg, err := LoadUserService()
	if err != nil {
		t.Fatalf("LoadUserService() error = %v", err)
	}
	if cfg.TokenTTL != 24*time.Hour {
		t.Fatalf("TokenTTL = %v, want 24h", cfg.TokenTTL)
	}
	if cfg.RevocationFailClosed {
		t.Fatal("RevocationFailClosed default = true, want false")
	}
}

func TestDatabaseConnString(t *testing.T) {
	db := Database{Host: "db.internal", Port: 5433, User: "app", Password: "pw", Name: "store", SSLMode: "disable"}
	want := "postgres://app:pw@db.internal:5433/store?sslmode=disable"
	if got := db.ConnString(); got != want {
		t.Fatalf("ConnString() = %q, want %q", got, want)
	}

	db.DSN = "postgres://other"
	if got := db.ConnString(); got != "postgres://other" {
		t.Fatalf("ConnString() with DSN = %q", got)
	}
}
