package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Port != "8080" {
		t.Errorf("Port = %s, want 8080", cfg.Port)
	}
	if cfg.AckTimeout != 8*time.Second {
		t.Errorf("AckTimeout = %v, want 8s", cfg.AckTimeout)
	}
	if cfg.AckRetries != 3 {
		t.Errorf("AckRetries = %d, want 3", cfg.AckRetries)
	}
	if cfg.ReconnectWindow != 60*time.Second {
		t.Errorf("ReconnectWindow = %v, want 60s", cfg.ReconnectWindow)
	}
	if cfg.InlineMaxBytes != 1<<20 {
		t.Errorf("InlineMaxBytes = %d, want 1MiB", cfg.InlineMaxBytes)
	}
	if cfg.AttachmentMaxBytes != 5<<20 {
		t.Errorf("AttachmentMaxBytes = %d, want 5MiB", cfg.AttachmentMaxBytes)
	}
	if !cfg.IsDevelopment() {
		t.Error("default env should be development")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("ACK_TIMEOUT", "2s")
	t.Setenv("ACK_RETRIES", "5")
	t.Setenv("INLINE_MAX_BYTES", "2048")
	t.Setenv("MESSAGE_RATE_LIMIT", "10")

	cfg := Load()

	if cfg.Port != "9000" {
		t.Errorf("Port = %s, want 9000", cfg.Port)
	}
	if cfg.AckTimeout != 2*time.Second {
		t.Errorf("AckTimeout = %v, want 2s", cfg.AckTimeout)
	}
	if cfg.AckRetries != 5 {
		t.Errorf("AckRetries = %d, want 5", cfg.AckRetries)
	}
	if cfg.InlineMaxBytes != 2048 {
		t.Errorf("InlineMaxBytes = %d, want 2048", cfg.InlineMaxBytes)
	}
	if cfg.MessageRateLimit != 10 {
		t.Errorf("MessageRateLimit = %d, want 10", cfg.MessageRateLimit)
	}
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("ACK_TIMEOUT", "soon")
	t.Setenv("ACK_RETRIES", "many")

	cfg := Load()

	if cfg.AckTimeout != 8*time.Second {
		t.Errorf("malformed duration should keep default, got %v", cfg.AckTimeout)
	}
	if cfg.AckRetries != 3 {
		t.Errorf("malformed int should keep default, got %d", cfg.AckRetries)
	}
}

func TestProductionRequiresSecrets(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("JWT_SECRET", "")

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for missing JWT_SECRET in production")
		}
	}()
	Load()
}
