package reporting

import (
	"context"
	"errors"
	"testing"
	"time"

	"voicegate/internal/callsession"
	"voicegate/internal/cdr"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func intPtr(n int) *int { return &n }

func timePtr(t time.Time) *time.Time { return &t }

func seedSession(t *testing.T, repo *callsession.MemoryRepo, s callsession.CallSession) callsession.CallSession {
	t.Helper()
	out, err := repo.UpsertByToken(context.Background(), s)
	if err != nil {
		t.Fatalf("seed session: %v", err)
	}
	return out
}

func TestActiveCalls_LiveDurationAndOrder(t *testing.T) {
	sessions := callsession.NewMemoryRepo()
	svc := NewService(sessions, cdr.NewMemoryRepo())

	now := time.Date(2026, 5, 20, 10, 0, 0, 0, time.UTC)
	svc.WithClock(fixedClock(now))

	seedSession(t, sessions, callsession.CallSession{
		TenantID:          "t-1",
		Token:             "tok-old",
		SessionID:         "1",
		Status:            callsession.StatusRinging,
		CallStartTime:     timePtr(now.Add(-90 * time.Second)),
		WebhookModifiedAt: timePtr(now.Add(-80 * time.Second)),
	})
	seedSession(t, sessions, callsession.CallSession{
		TenantID:          "t-1",
		Token:             "tok-new",
		SessionID:         "2",
		Status:            callsession.StatusConnected,
		WebhookCreatedAt:  timePtr(now.Add(-30 * time.Second)),
		WebhookModifiedAt: timePtr(now.Add(-5 * time.Second)),
	})
	// Terminal and foreign rows never appear.
	seedSession(t, sessions, callsession.CallSession{
		TenantID: "t-1", Token: "tok-done", SessionID: "3",
		Status: callsession.StatusCompleted,
	})
	seedSession(t, sessions, callsession.CallSession{
		TenantID: "t-2", Token: "tok-other", SessionID: "4",
		Status: callsession.StatusRinging,
	})

	calls, err := svc.ActiveCalls(context.Background(), "t-1")
	if err != nil {
		t.Fatalf("ActiveCalls: %v", err)
	}
	if len(calls) != 2 {
		t.Fatalf("calls = %d, want 2", len(calls))
	}
	if calls[0].SessionID != "2" || calls[1].SessionID != "1" {
		t.Fatalf("order = %s, %s", calls[0].SessionID, calls[1].SessionID)
	}
	// tok-new has no call start; the first webhook timestamp stands in.
	if calls[0].DurationSeconds != 30 {
		t.Fatalf("duration[0] = %d, want 30", calls[0].DurationSeconds)
	}
	if calls[1].DurationSeconds != 90 {
		t.Fatalf("duration[1] = %d, want 90", calls[1].DurationSeconds)
	}
}

func TestActiveCalls_FutureStartClampsToZero(t *testing.T) {
	sessions := callsession.NewMemoryRepo()
	svc := NewService(sessions, cdr.NewMemoryRepo())

	now := time.Date(2026, 5, 20, 10, 0, 0, 0, time.UTC)
	svc.WithClock(fixedClock(now))

	seedSession(t, sessions, callsession.CallSession{
		TenantID: "t-1", Token: "tok-skew", SessionID: "1",
		Status:        callsession.StatusRinging,
		CallStartTime: timePtr(now.Add(40 * time.Second)),
	})

	calls, err := svc.ActiveCalls(context.Background(), "t-1")
	if err != nil {
		t.Fatalf("ActiveCalls: %v", err)
	}
	if calls[0].DurationSeconds != 0 {
		t.Fatalf("duration = %d, want 0", calls[0].DurationSeconds)
	}
}

func TestStatistics_TodayBuckets(t *testing.T) {
	sessions := callsession.NewMemoryRepo()
	svc := NewService(sessions, cdr.NewMemoryRepo())

	now := time.Date(2026, 5, 20, 18, 0, 0, 0, time.UTC)
	svc.WithClock(fixedClock(now))

	today := time.Date(2026, 5, 20, 9, 0, 0, 0, time.UTC)
	yesterday := today.Add(-24 * time.Hour)

	seedSession(t, sessions, callsession.CallSession{
		TenantID: "t-1", Token: "a", SessionID: "1",
		Status:           callsession.StatusCompleted,
		WebhookCreatedAt: timePtr(today),
		DurationSeconds:  intPtr(10),
	})
	seedSession(t, sessions, callsession.CallSession{
		TenantID: "t-1", Token: "b", SessionID: "2",
		Status:           callsession.StatusFailed,
		WebhookCreatedAt: timePtr(today.Add(time.Hour)),
		DurationSeconds:  intPtr(15),
	})
	seedSession(t, sessions, callsession.CallSession{
		TenantID: "t-1", Token: "c", SessionID: "3",
		Status:           callsession.StatusRinging,
		WebhookCreatedAt: timePtr(today.Add(2 * time.Hour)),
	})
	// Yesterday's row stays out of today's counters.
	seedSession(t, sessions, callsession.CallSession{
		TenantID: "t-1", Token: "d", SessionID: "4",
		Status:           callsession.StatusCompleted,
		WebhookCreatedAt: timePtr(yesterday),
		DurationSeconds:  intPtr(100),
	})

	stats, err := svc.Statistics(context.Background(), "t-1")
	if err != nil {
		t.Fatalf("Statistics: %v", err)
	}
	if stats.ActiveCalls != 1 {
		t.Fatalf("active = %d, want 1", stats.ActiveCalls)
	}
	if stats.TotalToday != 3 {
		t.Fatalf("total today = %d, want 3", stats.TotalToday)
	}
	if stats.CompletedToday != 1 || stats.FailedToday != 1 {
		t.Fatalf("completed=%d failed=%d", stats.CompletedToday, stats.FailedToday)
	}
	// Average over rows carrying a duration: (10+15)/2, one decimal.
	if stats.AvgDuration != 12.5 {
		t.Fatalf("avg = %v, want 12.5", stats.AvgDuration)
	}
}

func TestListCdrs_PageMeta(t *testing.T) {
	cdrs := cdr.NewMemoryRepo()
	svc := NewService(callsession.NewMemoryRepo(), cdrs)

	base := time.Date(2026, 5, 20, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 7; i++ {
		_, err := cdrs.Upsert(context.Background(), cdr.CdrLog{
			TenantID:    "t-1",
			CallID:      "CA" + string(rune('0'+i)),
			Direction:   "inbound",
			Disposition: cdr.DispositionAnswer,
			StartTime:   timePtr(base.Add(time.Duration(i) * time.Minute)),
		})
		if err != nil {
			t.Fatalf("seed cdr: %v", err)
		}
	}

	rows, page, err := svc.ListCdrs(context.Background(), "t-1", cdr.Filter{PerPage: 3, Page: 2})
	if err != nil {
		t.Fatalf("ListCdrs: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(rows))
	}
	if page.Total != 7 || page.LastPage != 3 || page.CurrentPage != 2 || page.PerPage != 3 {
		t.Fatalf("page = %+v", page)
	}
}

func TestListCdrs_InvalidFilter(t *testing.T) {
	svc := NewService(callsession.NewMemoryRepo(), cdr.NewMemoryRepo())

	_, _, err := svc.ListCdrs(context.Background(), "t-1", cdr.Filter{SortBy: "secret_column"})
	if !errors.Is(err, cdr.ErrInvalidFilter) {
		t.Fatalf("err = %v, want ErrInvalidFilter", err)
	}
}

func TestGetCdr_TenantScoped(t *testing.T) {
	cdrs := cdr.NewMemoryRepo()
	svc := NewService(callsession.NewMemoryRepo(), cdrs)

	saved, err := cdrs.Upsert(context.Background(), cdr.CdrLog{
		TenantID: "t-1", CallID: "CA1",
		Direction: "inbound", Disposition: cdr.DispositionAnswer,
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	if _, err := svc.GetCdr(context.Background(), "t-1", saved.ID); err != nil {
		t.Fatalf("own tenant: %v", err)
	}
	if _, err := svc.GetCdr(context.Background(), "t-2", saved.ID); !errors.Is(err, cdr.ErrNotFound) {
		t.Fatalf("foreign tenant err = %v, want ErrNotFound", err)
	}
}
