package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultInstructions is used when no per-call instructions can be resolved.
const DefaultInstructions = "You are a helpful and friendly phone assistant. " +
	"Keep answers short and conversational; you are speaking over a phone line."

// Config contains all runtime settings for the voice bridge service.
type Config struct {
	BindAddr         string
	PublicHost       string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	GreetingText string

	OpenAIAPIKey      string
	OpenAIRealtimeURL string
	OpenAIModel       string
	OpenAIVoice       string
	OpenAITemperature float64

	InstructionsURL     string
	InstructionsTimeout time.Duration

	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioAPIBaseURL string
	TwilioFromNumber string

	DatabaseURL string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		PublicHost:       stringsTrimSpace("APP_PUBLIC_HOST"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "voxline"),
		GreetingText:     envOrDefault("APP_GREETING_TEXT", "Please wait while we connect your call."),

		OpenAIAPIKey:      stringsTrimSpace("OPENAI_API_KEY"),
		OpenAIRealtimeURL: envOrDefault("OPENAI_REALTIME_URL", "wss://api.openai.com/v1/realtime"),
		OpenAIModel:       envOrDefault("OPENAI_REALTIME_MODEL", "gpt-4o-realtime-preview"),
		OpenAIVoice:       envOrDefault("OPENAI_VOICE", "alloy"),
		OpenAITemperature: 0.8,

		InstructionsURL:     stringsTrimSpace("INSTRUCTIONS_URL"),
		InstructionsTimeout: 2 * time.Second,

		TwilioAccountSID: stringsTrimSpace("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:  stringsTrimSpace("TWILIO_AUTH_TOKEN"),
		TwilioAPIBaseURL: envOrDefault("TWILIO_API_BASE_URL", "https://api.twilio.com/2010-04-01"),
		TwilioFromNumber: stringsTrimSpace("TWILIO_FROM_NUMBER"),

		DatabaseURL: stringsTrimSpace("DATABASE_URL"),

		ShutdownTimeout: 15 * time.Second,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.InstructionsTimeout, err = durationFromEnv("INSTRUCTIONS_TIMEOUT", cfg.InstructionsTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.OpenAITemperature, err = floatFromEnv("OPENAI_TEMPERATURE", cfg.OpenAITemperature)
	if err != nil {
		return Config{}, err
	}

	if cfg.ShutdownTimeout <= 0 {
		return Config{}, fmt.Errorf("APP_SHUTDOWN_TIMEOUT must be positive")
	}
	if cfg.InstructionsTimeout <= 0 {
		return Config{}, fmt.Errorf("INSTRUCTIONS_TIMEOUT must be positive")
	}
	// The realtime API rejects temperatures outside this band.
	if cfg.OpenAITemperature < 0.6 || cfg.OpenAITemperature > 1.2 {
		return Config{}, fmt.Errorf("OPENAI_TEMPERATURE must be between 0.6 and 1.2")
	}
	if !strings.HasPrefix(cfg.OpenAIRealtimeURL, "ws://") && !strings.HasPrefix(cfg.OpenAIRealtimeURL, "wss://") {
		return Config{}, fmt.Errorf("OPENAI_REALTIME_URL must be a ws:// or wss:// URL")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}
