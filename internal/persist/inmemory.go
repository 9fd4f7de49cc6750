package persist

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemorySink is a simple in-process sink for local/dev use.
type InMemorySink struct {
	mu          sync.RWMutex
	transcripts []TranscriptRecord
	updates     []UpdateRecord
}

func NewInMemorySink() *InMemorySink {
	return &InMemorySink{}
}

func (s *InMemorySink) SaveTranscript(_ context.Context, record TranscriptRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	s.transcripts = append(s.transcripts, record)
	return nil
}

func (s *InMemorySink) SaveUpdate(_ context.Context, record UpdateRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	s.updates = append(s.updates, record)
	return nil
}

// Transcripts returns a copy of stored transcript records.
func (s *InMemorySink) Transcripts() []TranscriptRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]TranscriptRecord, len(s.transcripts))
	copy(out, s.transcripts)
	return out
}

// Updates returns a copy of stored dashboard-update records.
func (s *InMemorySink) Updates() []UpdateRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]UpdateRecord, len(s.updates))
	copy(out, s.updates)
	return out
}

func (s *InMemorySink) Close() error { return nil }
