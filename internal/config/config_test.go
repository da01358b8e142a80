package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Database.Host == "" {
		t.Fatalf("expected database host to be set")
	}
	if cfg.RabbitMQ.Port == 0 {
		t.Fatalf("expected rabbitmq port to be set")
	}
	if cfg.Checkout.DigestDebounce != 30*time.Second {
		t.Errorf("expected default digest debounce of 30s, got %v", cfg.Checkout.DigestDebounce)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DB_PORT", "6543")
	t.Setenv("PREVIEW_TTL_SECONDS", "3")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Database.Port != 6543 {
		t.Errorf("expected DB_PORT override, got %d", cfg.Database.Port)
	}
	if cfg.Checkout.PreviewTTL != 3*time.Second {
		t.Errorf("expected preview TTL override, got %v", cfg.Checkout.PreviewTTL)
	}
}

func TestLoad_InvalidPort(t *testing.T) {
	t.Setenv("DB_PORT", "99999")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for out-of-range DB_PORT")
	}
}

func TestDatabaseURL(t *testing.T) {
	cfg := &Config{Database: DatabaseConfig{
		Host: "db", Port: 5432, User: "u", Password: "p", Database: "checkout",
	}}
	want := "postgres://u:p@db:5432/checkout?sslmode=disable"
	if got := cfg.DatabaseURL(); got != want {
		t.Errorf("DatabaseURL() = %q, want %q", got, want)
	}
}
