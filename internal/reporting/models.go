package reporting

import "time"

// ActiveCall is the dashboard projection of one live session. Duration is
// computed at read time against the wall clock, not taken from the row.
type ActiveCall struct {
	ID              string     `json:"id"`
	SessionID       string     `json:"session_id"`
	Domain          string     `json:"domain,omitempty"`
	CallerID        string     `json:"caller_id,omitempty"`
	Destination     string     `json:"destination,omitempty"`
	Direction       string     `json:"direction"`
	Status          string     `json:"status"`
	DurationSeconds int        `json:"duration_seconds"`
	CallStartTime   *time.Time `json:"call_start_time,omitempty"`
	CreatedAt       *time.Time `json:"created_at,omitempty"`
}

// Statistics carries the dashboard counters: current live calls plus
// today's totals bucketed by webhook_created_at.
type Statistics struct {
	ActiveCalls    int     `json:"active_calls"`
	TotalToday     int     `json:"total_today"`
	AvgDuration    float64 `json:"avg_duration"`
	CompletedToday int     `json:"completed_today"`
	FailedToday    int     `json:"failed_today"`
}
