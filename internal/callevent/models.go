package callevent

import (
	"encoding/json"
	"time"
)

// Event is an immutable, append-only audit record of one accepted webhook.
//
// Invariants:
// - Events are never updated or deleted.
// - tenant_id is required for tenancy isolation.
// - EventID is unique; it deduplicates the exact same logical event instance
//   delivered twice with identical composition. It does NOT by itself make a
//   webhook retry idempotent; the session/CDR upserts enforce that on their
//   own keys.
//
// Storage recommendation (Postgres):
// - Table call_events with an INSERT-only policy.
// - Optional: trigger to prevent UPDATE/DELETE.
// - Optional: partition by time for retention.

type Event struct {
	ID       string `json:"id" db:"id"`
	TenantID string `json:"tenant_id" db:"tenant_id"`

	// CallSessionID references the session row the webhook landed on.
	CallSessionID string `json:"call_session_id" db:"call_session_id"`

	// Type is the webhook event category.
	Type EventType `json:"event_type" db:"event_type"`

	// EventID is the dedup key, composed from type + token + arrival time.
	EventID string `json:"event_id" db:"event_id"`

	// Payload and Headers capture the delivery verbatim for replay/debugging.
	Payload json.RawMessage `json:"payload" db:"payload"`
	Headers json.RawMessage `json:"headers,omitempty" db:"headers"`

	// OccurredAt is the event's claimed occurrence time.
	OccurredAt time.Time `json:"occurred_at" db:"occurred_at"`

	ProcessedAt *time.Time `json:"processed_at,omitempty" db:"processed_at"`

	// ProcessingStatus is always written as completed at creation; there is
	// no async post-processing stage in this service.
	ProcessingStatus ProcessingStatus `json:"processing_status" db:"processing_status"`
	ErrorMessage     string           `json:"error_message,omitempty" db:"error_message"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeSessionUpdate EventType = "session_update"
)

type ProcessingStatus string

const (
	ProcessingStatusPending    ProcessingStatus = "pending"
	ProcessingStatusProcessing ProcessingStatus = "processing"
	ProcessingStatusCompleted  ProcessingStatus = "completed"
	ProcessingStatusFailed     ProcessingStatus = "failed"
)
