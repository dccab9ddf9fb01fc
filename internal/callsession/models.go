package callsession

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// CallSession is the mutable aggregate for one call's lifecycle, from first
// sighting to terminal state.
//
// Two entry points create rows, with different identity keys:
//   - session-update webhooks key strictly on Token and overwrite in place;
//   - application bootstrap requests key on SessionID and create-if-absent.
//
// A real phone call can therefore legitimately own more than one row. The
// rows are not unified on purpose; merging them would change observable
// behavior.
type CallSession struct {
	ID       string `json:"id" db:"id"`
	TenantID string `json:"tenant_id" db:"tenant_id"`

	// SessionID is the provider session identifier (numeric, stored as a
	// string). Unique; the bootstrap path synthesizes one when the provider
	// omits the call identifier.
	SessionID string `json:"session_id" db:"session_id"`
	// CallID is the provider call identifier when known.
	CallID string `json:"call_id,omitempty" db:"call_id"`
	// Token is the provider-issued opaque session token. Idempotency key for
	// session-update webhooks; empty on bootstrap-only rows.
	Token string `json:"token,omitempty" db:"token"`

	Domain      string `json:"domain,omitempty" db:"domain"`
	CallerID    string `json:"caller_id,omitempty" db:"caller_id"`
	Destination string `json:"destination,omitempty" db:"destination"`
	FromNumber  string `json:"from_number,omitempty" db:"from_number"`
	ToNumber    string `json:"to_number,omitempty" db:"to_number"`
	Direction   string `json:"direction" db:"direction"`

	Status Status `json:"status" db:"status"`

	// VappServer is the provider application-server label.
	VappServer string `json:"vapp_server,omitempty" db:"vapp_server"`

	StartedAt         *time.Time `json:"started_at,omitempty" db:"started_at"`
	CallStartTime     *time.Time `json:"call_start_time,omitempty" db:"call_start_time"`
	CallAnswerTime    *time.Time `json:"call_answer_time,omitempty" db:"call_answer_time"`
	AnswerTime        *time.Time `json:"answer_time,omitempty" db:"answer_time"`
	WebhookCreatedAt  *time.Time `json:"webhook_created_at,omitempty" db:"webhook_created_at"`
	WebhookModifiedAt *time.Time `json:"webhook_modified_at,omitempty" db:"webhook_modified_at"`

	DurationSeconds *int `json:"duration_seconds,omitempty" db:"duration_seconds"`

	// State holds runtime state data; Metadata holds the full last-seen
	// webhook payload for forensics. Both are opaque JSON documents.
	State    json.RawMessage `json:"state,omitempty" db:"state"`
	Metadata json.RawMessage `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type Status string

const (
	StatusRinging   Status = "ringing"
	StatusConnected Status = "connected"
	StatusAnswered  Status = "answered"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusBusy      Status = "busy"
)

// ActiveStatuses are the statuses counted as live calls on the dashboard.
var ActiveStatuses = []Status{StatusRinging, StatusConnected}

var ErrNotFound = errors.New("callsession: not found")

// DayStats aggregates one tenant's sessions for a single day, bucketed by
// webhook_created_at.
type DayStats struct {
	Total              int     `json:"total"`
	AvgDurationSeconds float64 `json:"avg_duration_seconds"`
	Completed          int     `json:"completed"`
	Failed             int     `json:"failed"`
}

// Repository is the persistence contract for call sessions.
//
// Concurrency: the provider retries and may parallel-post deliveries for the
// same token. Implementations must make UpsertByToken and
// CreateIfAbsentBySessionID atomic on their unique keys; there is no
// application-level locking above this layer.
type Repository interface {
	// UpsertByToken inserts or fully overwrites the row keyed by s.Token.
	// Every webhook-carried field is written on every delivery, including
	// nil ones; the store deliberately does not implement recency ordering,
	// so a stale redelivery can regress visible status.
	UpsertByToken(ctx context.Context, s CallSession) (CallSession, error)

	// CreateIfAbsentBySessionID inserts the row keyed by s.SessionID unless
	// one already exists, in which case the existing row is returned
	// unchanged. Reports whether a row was created.
	CreateIfAbsentBySessionID(ctx context.Context, s CallSession) (CallSession, bool, error)

	// GetByToken returns the session owning the token, or ErrNotFound.
	GetByToken(ctx context.Context, tenantID, token string) (CallSession, error)

	// ListActive returns the tenant's sessions in an active status, most
	// recently modified first.
	ListActive(ctx context.Context, tenantID string) ([]CallSession, error)

	// DayStats aggregates sessions whose webhook_created_at falls in
	// [dayStart, dayEnd).
	DayStats(ctx context.Context, tenantID string, dayStart, dayEnd time.Time) (DayStats, error)
}
