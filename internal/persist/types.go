package persist

import (
	"context"
	"encoding/json"
	"time"
)

// TranscriptRecord stores one completed assistant response, keyed by the
// content item that carried it.
type TranscriptRecord struct {
	ID        string          `json:"id"`
	CallSID   string          `json:"call_sid"`
	ItemID    string          `json:"item_id"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// UpdateRecord stores a dashboard-facing event, keyed by event type.
type UpdateRecord struct {
	ID        string          `json:"id"`
	CallSID   string          `json:"call_sid"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// Sink receives best-effort terminal events from live bridges. It must be
// safe for concurrent use by many calls.
type Sink interface {
	SaveTranscript(ctx context.Context, record TranscriptRecord) error
	SaveUpdate(ctx context.Context, record UpdateRecord) error
	Close() error
}
