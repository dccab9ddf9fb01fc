package callsession

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepo is an in-memory Repository for tests and early development.
// It mirrors the uniqueness guarantees of the Postgres implementation:
// one row per non-empty token, one row per session id.
type MemoryRepo struct {
	mu   sync.Mutex
	rows []CallSession

	clock func() time.Time
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{clock: time.Now}
}

func (r *MemoryRepo) UpsertByToken(ctx context.Context, s CallSession) (CallSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock().UTC()
	for i := range r.rows {
		if r.rows[i].Token != "" && r.rows[i].Token == s.Token {
			// Full overwrite of webhook-carried fields; row identity survives.
			s.ID = r.rows[i].ID
			s.CreatedAt = r.rows[i].CreatedAt
			s.UpdatedAt = now
			r.rows[i] = s
			return r.rows[i], nil
		}
	}

	s.ID = uuid.NewString()
	s.CreatedAt = now
	s.UpdatedAt = now
	r.rows = append(r.rows, s)
	return s, nil
}

func (r *MemoryRepo) CreateIfAbsentBySessionID(ctx context.Context, s CallSession) (CallSession, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.rows {
		if r.rows[i].SessionID == s.SessionID {
			return r.rows[i], false, nil
		}
	}

	now := r.clock().UTC()
	s.ID = uuid.NewString()
	s.CreatedAt = now
	s.UpdatedAt = now
	r.rows = append(r.rows, s)
	return s, true, nil
}

func (r *MemoryRepo) GetByToken(ctx context.Context, tenantID, token string) (CallSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.rows {
		if r.rows[i].TenantID == tenantID && r.rows[i].Token == token && token != "" {
			return r.rows[i], nil
		}
	}
	return CallSession{}, ErrNotFound
}

func (r *MemoryRepo) ListActive(ctx context.Context, tenantID string) ([]CallSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]CallSession, 0)
	for _, s := range r.rows {
		if s.TenantID != tenantID {
			continue
		}
		if s.Status == StatusRinging || s.Status == StatusConnected {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return modifiedAt(out[i]).After(modifiedAt(out[j]))
	})
	return out, nil
}

func modifiedAt(s CallSession) time.Time {
	if s.WebhookModifiedAt != nil {
		return *s.WebhookModifiedAt
	}
	return s.UpdatedAt
}

func (r *MemoryRepo) DayStats(ctx context.Context, tenantID string, dayStart, dayEnd time.Time) (DayStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out DayStats
	var durTotal, durCount int
	for _, s := range r.rows {
		if s.TenantID != tenantID || s.WebhookCreatedAt == nil {
			continue
		}
		t := *s.WebhookCreatedAt
		if t.Before(dayStart) || !t.Before(dayEnd) {
			continue
		}
		out.Total++
		if s.DurationSeconds != nil {
			durTotal += *s.DurationSeconds
			durCount++
		}
		switch s.Status {
		case StatusCompleted:
			out.Completed++
		case StatusFailed:
			out.Failed++
		}
	}
	if durCount > 0 {
		out.AvgDurationSeconds = float64(durTotal) / float64(durCount)
	}
	return out, nil
}

// All returns a copy of every row; test helper.
func (r *MemoryRepo) All() []CallSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]CallSession, len(r.rows))
	copy(out, r.rows)
	return out
}
