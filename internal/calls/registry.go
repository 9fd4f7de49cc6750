package calls

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

var ErrNotFound = errors.New("call not found")

// Call is the registry's view of one bridged call. Bridge-internal timing
// state lives in the bridge itself; this record exists for reporting.
type Call struct {
	ID        string    `json:"call_id"`
	CallSID   string    `json:"call_sid"`
	StreamSID string    `json:"stream_sid"`
	Status    Status    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at,omitempty"`
}

// Registry tracks live calls across the process.
type Registry struct {
	mu    sync.RWMutex
	calls map[string]*Call
}

func NewRegistry() *Registry {
	return &Registry{calls: make(map[string]*Call)}
}

// Register records a new call at websocket accept time, before the stream
// identifiers are known.
func (r *Registry) Register() *Call {
	c := &Call{
		ID:        uuid.NewString(),
		Status:    StatusActive,
		StartedAt: time.Now().UTC(),
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[c.ID] = c
	return clone(c)
}

// SetStream fills in the identifiers Twilio assigned once the stream starts.
func (r *Registry) SetStream(id, callSID, streamSID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.calls[id]
	if !ok {
		return ErrNotFound
	}
	c.CallSID = callSID
	c.StreamSID = streamSID
	return nil
}

func (r *Registry) Get(id string) (*Call, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.calls[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(c), nil
}

// End removes the call and returns its final snapshot. Ended calls are not
// retained; the persistence sink is the durable record.
func (r *Registry) End(id string) (*Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.calls[id]
	if !ok {
		return nil, ErrNotFound
	}
	delete(r.calls, id)
	c.Status = StatusEnded
	c.EndedAt = time.Now().UTC()
	return c, nil
}

func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.calls)
}

func clone(c *Call) *Call {
	out := *c
	return &out
}
