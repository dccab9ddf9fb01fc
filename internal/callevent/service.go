package callevent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for call events.
//
// It MUST be append-only.
// No Update/Delete methods are provided by design.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service records webhook audit entries.
//
// Append errors, ErrDuplicate included, propagate to the ingestion
// controller, which answers 500 and lets the gateway retry. The dedup key
// carries a second-resolution arrival timestamp, so a later retry lands
// under a fresh key.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

// WithClock overrides the service clock. Test hook.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.clock = now
	return s
}

var ErrInvalidEvent = errors.New("callevent: invalid event")

// ErrDuplicate reports that an event with the same dedup key already exists.
var ErrDuplicate = errors.New("callevent: duplicate event_id")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("callevent: repository not configured")
	}
	if e.TenantID == "" {
		return ErrInvalidEvent
	}
	if e.Type == "" || e.EventID == "" {
		return ErrInvalidEvent
	}

	now := s.clock().UTC()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = now
	}
	if e.ProcessingStatus == "" {
		e.ProcessingStatus = ProcessingStatusCompleted
	}
	return s.repo.Append(ctx, e)
}

// RecordSessionUpdate appends the audit entry for one accepted
// session-update webhook. The dedup key is derived from the session token
// and the server-side arrival timestamp.
func (s *Service) RecordSessionUpdate(ctx context.Context, tenantID, callSessionID, token string, payload, headers []byte, occurredAt time.Time) error {
	now := s.clock().UTC()
	return s.Append(ctx, Event{
		TenantID:         tenantID,
		CallSessionID:    callSessionID,
		Type:             EventTypeSessionUpdate,
		EventID:          fmt.Sprintf("session_update_%s_%d", token, now.Unix()),
		Payload:          payload,
		Headers:          headers,
		OccurredAt:       occurredAt,
		ProcessingStatus: ProcessingStatusCompleted,
	})
}
