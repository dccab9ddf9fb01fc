package cdr

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepo is an in-memory Repository for tests and early development.
// It enforces tenant isolation and the (tenant_id, call_id) uniqueness the
// Postgres implementation gets from its constraint.
type MemoryRepo struct {
	mu   sync.Mutex
	rows []CdrLog

	clock func() time.Time
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{clock: time.Now}
}

func (r *MemoryRepo) Upsert(ctx context.Context, c CdrLog) (CdrLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock().UTC()
	for i := range r.rows {
		if r.rows[i].TenantID == c.TenantID && r.rows[i].CallID == c.CallID {
			c.ID = r.rows[i].ID
			c.CreatedAt = r.rows[i].CreatedAt
			c.UpdatedAt = now
			r.rows[i] = c
			return r.rows[i], nil
		}
	}

	c.ID = uuid.NewString()
	c.CreatedAt = now
	c.UpdatedAt = now
	r.rows = append(r.rows, c)
	return c, nil
}

func (r *MemoryRepo) List(ctx context.Context, tenantID string, f Filter) ([]CdrLog, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	matched := make([]CdrLog, 0)
	for _, c := range r.rows {
		if c.TenantID != tenantID {
			continue
		}
		if f.From != "" && !strings.Contains(c.FromNumber, f.From) {
			continue
		}
		if f.To != "" && !strings.Contains(c.ToNumber, f.To) {
			continue
		}
		if f.Disposition != "" && c.Disposition != f.Disposition {
			continue
		}
		if f.Token != "" && !strings.Contains(c.SessionToken, f.Token) {
			continue
		}
		if (f.StartDate != nil || f.EndDate != nil) && !inDateRange(c.StartTime, f.StartDate, f.EndDate) {
			continue
		}
		if (f.StartTimeOfDay != "" || f.EndTimeOfDay != "") && !inTimeOfDayRange(c.StartTime, f.StartTimeOfDay, f.EndTimeOfDay) {
			continue
		}
		matched = append(matched, c)
	}

	sortCdrs(matched, f.SortBy, f.SortOrder)

	total := len(matched)
	start := (f.Page - 1) * f.PerPage
	if start >= total {
		return []CdrLog{}, total, nil
	}
	end := start + f.PerPage
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (r *MemoryRepo) GetByID(ctx context.Context, tenantID, id string) (CdrLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.rows {
		if c.TenantID == tenantID && c.ID == id {
			return c, nil
		}
	}
	return CdrLog{}, ErrNotFound
}

func inDateRange(t *time.Time, start, end *time.Time) bool {
	if t == nil {
		return false
	}
	if start != nil && t.Before(*start) {
		return false
	}
	if end != nil {
		// EndDate is inclusive to the end of its day.
		if !t.Before(end.AddDate(0, 0, 1)) {
			return false
		}
	}
	return true
}

func inTimeOfDayRange(t *time.Time, start, end string) bool {
	if t == nil {
		return false
	}
	if start == "" {
		start = "00:00"
	}
	if end == "" {
		end = "23:59"
	}
	tod := t.Format("15:04")
	return tod >= start && tod <= end
}

func sortCdrs(rows []CdrLog, by, order string) {
	less := func(a, b CdrLog) bool {
		switch by {
		case "id":
			return a.ID < b.ID
		case "call_id":
			return a.CallID < b.CallID
		case "duration_seconds":
			return intOrZero(a.DurationSeconds) < intOrZero(b.DurationSeconds)
		case "disposition":
			return a.Disposition < b.Disposition
		case "created_at":
			return a.CreatedAt.Before(b.CreatedAt)
		default: // start_time
			return timeOrZero(a.StartTime).Before(timeOrZero(b.StartTime))
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if order == "asc" {
			return less(rows[i], rows[j])
		}
		return less(rows[j], rows[i])
	})
}

func intOrZero(n *int) int {
	if n == nil {
		return 0
	}
	return *n
}

func timeOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

// All returns a copy of every row; test helper.
func (r *MemoryRepo) All() []CdrLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]CdrLog, len(r.rows))
	copy(out, r.rows)
	return out
}
