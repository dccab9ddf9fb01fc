package broadcast

import (
	"context"
	"sync"
	"time"
)

// CallUpdate is the real-time notification published after a call session
// changes. Consumers (dashboard sockets) subscribe per tenant.
type CallUpdate struct {
	TenantID  string `json:"tenant_id"`
	SessionID string `json:"session_id"`
	Token     string `json:"token,omitempty"`
	Status    string `json:"status"`

	CallerID    string `json:"caller_id,omitempty"`
	Destination string `json:"destination,omitempty"`

	DurationSeconds *int `json:"duration_seconds,omitempty"`

	OccurredAt time.Time `json:"occurred_at"`
}

// Broadcaster publishes call updates to real-time subscribers.
//
// Publishing is best-effort: the webhook path fires it off the request's
// critical path and logs failures, it never fails the HTTP response on one.
type Broadcaster interface {
	PublishCallUpdate(ctx context.Context, u CallUpdate) error
}

// Nop discards updates. Used when no real-time layer is configured.
type Nop struct{}

func (Nop) PublishCallUpdate(ctx context.Context, u CallUpdate) error { return nil }

// Recorder captures updates in memory; test helper.
type Recorder struct {
	mu      sync.Mutex
	updates []CallUpdate

	// Err, when set, is returned from every publish.
	Err error
}

func (r *Recorder) PublishCallUpdate(ctx context.Context, u CallUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.updates = append(r.updates, u)
	return nil
}

func (r *Recorder) Updates() []CallUpdate {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]CallUpdate, len(r.updates))
	copy(out, r.updates)
	return out
}
