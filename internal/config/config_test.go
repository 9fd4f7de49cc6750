package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":8080" {
		t.Fatalf("BindAddr = %q, want %q", cfg.BindAddr, ":8080")
	}
	if cfg.OpenAIRealtimeURL != "wss://api.openai.com/v1/realtime" {
		t.Fatalf("OpenAIRealtimeURL = %q", cfg.OpenAIRealtimeURL)
	}
	if cfg.OpenAITemperature != 0.8 {
		t.Fatalf("OpenAITemperature = %v, want 0.8", cfg.OpenAITemperature)
	}
	if cfg.ShutdownTimeout != 15*time.Second {
		t.Fatalf("ShutdownTimeout = %v, want 15s", cfg.ShutdownTimeout)
	}
	if cfg.TwilioAPIBaseURL != "https://api.twilio.com/2010-04-01" {
		t.Fatalf("TwilioAPIBaseURL = %q", cfg.TwilioAPIBaseURL)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_BIND_ADDR", ":9999")
	t.Setenv("APP_PUBLIC_HOST", "bridge.example.com")
	t.Setenv("OPENAI_TEMPERATURE", "0.7")
	t.Setenv("APP_SHUTDOWN_TIMEOUT", "5s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":9999" {
		t.Fatalf("BindAddr = %q, want %q", cfg.BindAddr, ":9999")
	}
	if cfg.PublicHost != "bridge.example.com" {
		t.Fatalf("PublicHost = %q", cfg.PublicHost)
	}
	if cfg.OpenAITemperature != 0.7 {
		t.Fatalf("OpenAITemperature = %v, want 0.7", cfg.OpenAITemperature)
	}
	if cfg.ShutdownTimeout != 5*time.Second {
		t.Fatalf("ShutdownTimeout = %v, want 5s", cfg.ShutdownTimeout)
	}
}

func TestLoadRejectsTemperatureOutOfRange(t *testing.T) {
	t.Setenv("OPENAI_TEMPERATURE", "0.2")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for out-of-range temperature")
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Setenv("APP_SHUTDOWN_TIMEOUT", "soon")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for invalid duration")
	}
}

func TestLoadRejectsNonWebsocketRealtimeURL(t *testing.T) {
	t.Setenv("OPENAI_REALTIME_URL", "https://api.openai.com/v1/realtime")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for non-websocket realtime URL")
	}
}
