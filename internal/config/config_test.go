package config

import (
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	configViper := NewViper()
	configViper.Set("jwt.secret", "test-secret")

	cfg, err := Load(configViper)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTPAddress != defaultHTTPAddress {
		t.Fatalf("expected default http address, got %s", cfg.HTTPAddress)
	}
	if cfg.DatabasePath != defaultDatabasePath {
		t.Fatalf("expected default database path, got %s", cfg.DatabasePath)
	}
	if cfg.TokenTTL != 7*24*time.Hour {
		t.Fatalf("expected week-long token ttl, got %s", cfg.TokenTTL)
	}
	if len(cfg.AllowedOrigins) != 2 {
		t.Fatalf("expected two default origins, got %d", len(cfg.AllowedOrigins))
	}
}

func TestLoadRejectsMissingSecret(t *testing.T) {
	configViper := NewViper()

	if _, err := Load(configViper); err == nil {
		t.Fatal("expected error for missing jwt secret")
	}
}

func TestLoadRejectsNonPositiveTTL(t *testing.T) {
	configViper := NewViper()
	configViper.Set("jwt.secret", "test-secret")
	configViper.Set("jwt.ttl_hours", 0)

	if _, err := Load(configViper); err == nil {
		t.Fatal("expected error for zero token ttl")
	}
}
