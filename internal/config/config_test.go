package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", "")
	t.Setenv("SERVICE_FEE", "")
	t.Setenv("MPESA_TIMEOUT", "")

	cfg := Load()
	if cfg.StoreDriver != "postgres" {
		t.Errorf("StoreDriver = %q, want postgres", cfg.StoreDriver)
	}
	if cfg.ServiceFee != 2 {
		t.Errorf("ServiceFee = %d, want 2", cfg.ServiceFee)
	}
	if cfg.Mpesa.Timeout != 30*time.Second {
		t.Errorf("Mpesa.Timeout = %v, want 30s", cfg.Mpesa.Timeout)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("SERVICE_FEE", "5")
	t.Setenv("FALLBACK_MATCH_WINDOW", "2m")
	t.Setenv("RATE_RPS", "not-a-number")
	t.Setenv("MPESA_CALLBACK_BASE_URL", "https://pay.example.com")

	cfg := Load()
	if cfg.StoreDriver != "memory" {
		t.Errorf("StoreDriver = %q", cfg.StoreDriver)
	}
	if cfg.ServiceFee != 5 {
		t.Errorf("ServiceFee = %d", cfg.ServiceFee)
	}
	if cfg.FallbackMatchWindow != 2*time.Minute {
		t.Errorf("FallbackMatchWindow = %v", cfg.FallbackMatchWindow)
	}
	if cfg.RateRPS != 20 {
		t.Errorf("RateRPS = %d, want default on parse error", cfg.RateRPS)
	}
	if got, want := cfg.Mpesa.CallbackURL(), "https://pay.example.com/api/v1/mpesa/callback"; got != want {
		t.Errorf("CallbackURL = %q, want %q", got, want)
	}
}
