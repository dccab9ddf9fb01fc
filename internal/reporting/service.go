package reporting

import (
	"context"
	"errors"
	"math"
	"time"

	"voicegate/internal/callsession"
	"voicegate/internal/cdr"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Service assembles tenant-scoped dashboard reads from the session store and
// the CDR store. It is read-only; ingestion owns all writes.
type Service struct {
	sessions callsession.Repository
	cdrs     cdr.Repository

	clock func() time.Time
}

func NewService(sessions callsession.Repository, cdrs cdr.Repository) *Service {
	return &Service{sessions: sessions, cdrs: cdrs, clock: time.Now}
}

// WithClock overrides the service clock. Test hook.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.clock = now
	return s
}

// ActiveCalls returns the tenant's live sessions, most recently modified
// first, each with a wall-clock duration so the dashboard can show a running
// timer without the provider having reported one yet.
func (s *Service) ActiveCalls(ctx context.Context, tenantID string) ([]ActiveCall, error) {
	if tenantID == "" {
		return nil, ErrInvalidRequest
	}
	rows, err := s.sessions.ListActive(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	now := s.clock().UTC()
	out := make([]ActiveCall, 0, len(rows))
	for _, r := range rows {
		created := r.WebhookCreatedAt
		if created == nil && !r.CreatedAt.IsZero() {
			c := r.CreatedAt
			created = &c
		}
		out = append(out, ActiveCall{
			ID:              r.ID,
			SessionID:       r.SessionID,
			Domain:          r.Domain,
			CallerID:        r.CallerID,
			Destination:     r.Destination,
			Direction:       r.Direction,
			Status:          string(r.Status),
			DurationSeconds: liveDuration(r, now),
			CallStartTime:   r.CallStartTime,
			CreatedAt:       created,
		})
	}
	return out, nil
}

// liveDuration measures from the best-known start marker: the provider's
// call start, else the first webhook's timestamp, else row creation.
func liveDuration(r callsession.CallSession, now time.Time) int {
	var start time.Time
	switch {
	case r.CallStartTime != nil:
		start = *r.CallStartTime
	case r.WebhookCreatedAt != nil:
		start = *r.WebhookCreatedAt
	case !r.CreatedAt.IsZero():
		start = r.CreatedAt
	default:
		return 0
	}
	d := int(now.Sub(start).Seconds())
	if d < 0 {
		return 0
	}
	return d
}

// Statistics returns the dashboard counters for the current UTC day.
func (s *Service) Statistics(ctx context.Context, tenantID string) (Statistics, error) {
	if tenantID == "" {
		return Statistics{}, ErrInvalidRequest
	}

	active, err := s.sessions.ListActive(ctx, tenantID)
	if err != nil {
		return Statistics{}, err
	}

	now := s.clock().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	day, err := s.sessions.DayStats(ctx, tenantID, dayStart, dayStart.Add(24*time.Hour))
	if err != nil {
		return Statistics{}, err
	}

	return Statistics{
		ActiveCalls:    len(active),
		TotalToday:     day.Total,
		AvgDuration:    math.Round(day.AvgDurationSeconds*10) / 10,
		CompletedToday: day.Completed,
		FailedToday:    day.Failed,
	}, nil
}

// ListCdrs validates and applies the filter, returning one page of records
// plus pagination metadata. Invalid filters surface cdr.ErrInvalidFilter.
func (s *Service) ListCdrs(ctx context.Context, tenantID string, f cdr.Filter) ([]cdr.CdrLog, cdr.Page, error) {
	if tenantID == "" {
		return nil, cdr.Page{}, ErrInvalidRequest
	}
	if err := f.Normalize(); err != nil {
		return nil, cdr.Page{}, err
	}

	rows, total, err := s.cdrs.List(ctx, tenantID, f)
	if err != nil {
		return nil, cdr.Page{}, err
	}

	lastPage := (total + f.PerPage - 1) / f.PerPage
	if lastPage < 1 {
		lastPage = 1
	}
	return rows, cdr.Page{
		CurrentPage: f.Page,
		PerPage:     f.PerPage,
		Total:       total,
		LastPage:    lastPage,
	}, nil
}

// GetCdr returns one tenant-scoped record, or cdr.ErrNotFound.
func (s *Service) GetCdr(ctx context.Context, tenantID, id string) (cdr.CdrLog, error) {
	if tenantID == "" {
		return cdr.CdrLog{}, ErrInvalidRequest
	}
	return s.cdrs.GetByID(ctx, tenantID, id)
}
