package cdr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// CdrLog is the durable record of one completed call, one row per
// (tenant_id, call_id). Redelivery of the same CDR overwrites the row; this
// is the terminal, queryable record used for billing and reporting.
type CdrLog struct {
	ID       string `json:"id" db:"id"`
	TenantID string `json:"tenant_id" db:"tenant_id"`

	CallID string `json:"call_id" db:"call_id"`
	// SessionToken cross-references the call session when the CDR carried a
	// nested session object.
	SessionToken string `json:"session_token,omitempty" db:"session_token"`

	FromNumber string `json:"from_number,omitempty" db:"from_number"`
	ToNumber   string `json:"to_number,omitempty" db:"to_number"`

	Direction   string      `json:"direction" db:"direction"`
	Disposition Disposition `json:"disposition" db:"disposition"`

	StartTime  *time.Time `json:"start_time,omitempty" db:"start_time"`
	AnswerTime *time.Time `json:"answer_time,omitempty" db:"answer_time"`
	EndTime    *time.Time `json:"end_time,omitempty" db:"end_time"`

	DurationSeconds *int `json:"duration_seconds,omitempty" db:"duration_seconds"`
	BillSec         *int `json:"billsec,omitempty" db:"billsec"`

	Domain     string `json:"domain,omitempty" db:"domain"`
	Subscriber string `json:"subscriber,omitempty" db:"subscriber"`
	CxTrunkID  string `json:"cx_trunk_id,omitempty" db:"cx_trunk_id"`
	Application string `json:"application,omitempty" db:"application"`
	Route      string `json:"route,omitempty" db:"route"`
	VappServer string `json:"vapp_server,omitempty" db:"vapp_server"`

	// RawCdr preserves the complete webhook payload verbatim, including the
	// originally-received disposition string.
	RawCdr json.RawMessage `json:"raw_cdr" db:"raw_cdr"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Disposition is the terminal outcome classification of a call.
type Disposition string

const (
	DispositionAnswer     Disposition = "ANSWER"
	DispositionBusy       Disposition = "BUSY"
	DispositionCancel     Disposition = "CANCEL"
	DispositionFailed     Disposition = "FAILED"
	DispositionCongestion Disposition = "CONGESTION"
	DispositionNoAnswer   Disposition = "NOANSWER"
)

func IsValidDisposition(d Disposition) bool {
	switch d {
	case DispositionAnswer, DispositionBusy, DispositionCancel,
		DispositionFailed, DispositionCongestion, DispositionNoAnswer:
		return true
	default:
		return false
	}
}

var ErrNotFound = errors.New("cdr: not found")
var ErrInvalidFilter = errors.New("cdr: invalid filter")

// Filter narrows and orders a tenant's CDR listing.
type Filter struct {
	// From and To are substring matches against from_number/to_number.
	From string
	To   string

	Disposition Disposition

	// Token is a substring match against session_token.
	Token string

	// StartDate and EndDate bound start_time to whole days.
	StartDate *time.Time
	EndDate   *time.Time

	// StartTimeOfDay and EndTimeOfDay ("HH:MM") bound the time-of-day of
	// start_time within the date range.
	StartTimeOfDay string
	EndTimeOfDay   string

	SortBy    string
	SortOrder string

	Page    int
	PerPage int
}

const (
	DefaultPerPage = 50
	MaxPerPage     = 200
)

var sortableColumns = map[string]struct{}{
	"id":               {},
	"call_id":          {},
	"start_time":       {},
	"duration_seconds": {},
	"disposition":      {},
	"created_at":       {},
}

// Normalize validates the filter and applies defaults.
func (f *Filter) Normalize() error {
	if f.Disposition != "" && !IsValidDisposition(f.Disposition) {
		return fmt.Errorf("%w: disposition %q", ErrInvalidFilter, f.Disposition)
	}
	if f.StartDate != nil && f.EndDate != nil && f.EndDate.Before(*f.StartDate) {
		return fmt.Errorf("%w: end_date before start_date", ErrInvalidFilter)
	}
	for _, v := range []string{f.StartTimeOfDay, f.EndTimeOfDay} {
		if v == "" {
			continue
		}
		if _, err := time.Parse("15:04", v); err != nil {
			return fmt.Errorf("%w: time of day %q", ErrInvalidFilter, v)
		}
	}
	if f.SortBy == "" {
		f.SortBy = "start_time"
	}
	if _, ok := sortableColumns[f.SortBy]; !ok {
		return fmt.Errorf("%w: sort_by %q", ErrInvalidFilter, f.SortBy)
	}
	switch f.SortOrder {
	case "":
		f.SortOrder = "desc"
	case "asc", "desc":
	default:
		return fmt.Errorf("%w: sort_order %q", ErrInvalidFilter, f.SortOrder)
	}
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PerPage < 1 {
		f.PerPage = DefaultPerPage
	}
	if f.PerPage > MaxPerPage {
		return fmt.Errorf("%w: per_page above %d", ErrInvalidFilter, MaxPerPage)
	}
	return nil
}

// Page describes one page of a listing.
type Page struct {
	CurrentPage int `json:"current_page"`
	PerPage     int `json:"per_page"`
	Total       int `json:"total"`
	LastPage    int `json:"last_page"`
}

// Repository is the persistence contract for CDR records.
type Repository interface {
	// Upsert creates or fully overwrites the row keyed by
	// (c.TenantID, c.CallID).
	Upsert(ctx context.Context, c CdrLog) (CdrLog, error)

	// List returns one page of the tenant's CDRs under the filter, plus the
	// total row count before pagination. The filter must be normalized.
	List(ctx context.Context, tenantID string, f Filter) ([]CdrLog, int, error)

	// GetByID returns the tenant's CDR with the given row id, or ErrNotFound.
	GetByID(ctx context.Context, tenantID, id string) (CdrLog, error)
}
