package app

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/voxline/voxline/internal/bridge"
	"github.com/voxline/voxline/internal/calls"
	"github.com/voxline/voxline/internal/config"
	"github.com/voxline/voxline/internal/httpapi"
	"github.com/voxline/voxline/internal/instructions"
	"github.com/voxline/voxline/internal/observability"
	"github.com/voxline/voxline/internal/persist"
	"github.com/voxline/voxline/internal/protocol"
	"github.com/voxline/voxline/internal/realtime"
	"github.com/voxline/voxline/internal/telephony"
)

type BuildResult struct {
	Config   config.Config
	API      *httpapi.Server
	Registry *calls.Registry
	Metrics  *observability.Metrics

	// Cleanup should be called on shutdown to release external resources.
	Cleanup func() error
}

// Build constructs the service with explicit dependency injection; nothing
// here is process-global.
func Build(ctx context.Context, cfg config.Config) (*BuildResult, error) {
	if strings.TrimSpace(cfg.OpenAIAPIKey) == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	sink, err := persist.NewSink(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("persistence sink init failed: %w", err)
	}

	var provider instructions.Provider
	if strings.TrimSpace(cfg.InstructionsURL) != "" {
		provider = instructions.NewHTTPProvider(cfg.InstructionsURL, cfg.InstructionsTimeout)
	} else {
		provider = instructions.Static{Text: config.DefaultInstructions}
	}

	dialAI := func(ctx context.Context, callSID string) (bridge.AIClient, error) {
		text, err := provider.Lookup(ctx, callSID)
		if err != nil || strings.TrimSpace(text) == "" {
			if err != nil {
				log.Printf("app: instructions lookup for %s failed, using default: %v", callSID, err)
			}
			text = config.DefaultInstructions
		}
		return realtime.Dial(ctx, realtime.Config{
			URL:    cfg.OpenAIRealtimeURL,
			Model:  cfg.OpenAIModel,
			APIKey: cfg.OpenAIAPIKey,
			Session: protocol.SessionConfig{
				Instructions: text,
				Voice:        cfg.OpenAIVoice,
				Temperature:  cfg.OpenAITemperature,
			},
		})
	}

	var originator httpapi.CallOriginator
	if strings.TrimSpace(cfg.TwilioAccountSID) != "" && strings.TrimSpace(cfg.TwilioAuthToken) != "" {
		orig, err := telephony.NewOriginator(telephony.OriginatorConfig{
			AccountSID: cfg.TwilioAccountSID,
			AuthToken:  cfg.TwilioAuthToken,
			BaseURL:    cfg.TwilioAPIBaseURL,
			FromNumber: cfg.TwilioFromNumber,
		})
		if err != nil {
			_ = sink.Close()
			return nil, fmt.Errorf("originator init failed: %w", err)
		}
		originator = orig
	} else {
		log.Printf("app: twilio credentials not set; outbound origination disabled")
	}

	registry := calls.NewRegistry()
	api := httpapi.New(cfg, registry, metrics, sink, dialAI, originator)

	cleanup := func() error {
		return sink.Close()
	}

	return &BuildResult{
		Config:   cfg,
		API:      api,
		Registry: registry,
		Metrics:  metrics,
		Cleanup:  cleanup,
	}, nil
}
