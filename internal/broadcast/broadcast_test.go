package broadcast

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRecorder_CapturesUpdates(t *testing.T) {
	rec := &Recorder{}
	u := CallUpdate{
		TenantID:   "t-1",
		SessionID:  "CA100",
		Status:     "connected",
		OccurredAt: time.Now(),
	}
	if err := rec.PublishCallUpdate(context.Background(), u); err != nil {
		t.Fatalf("publish: %v", err)
	}
	got := rec.Updates()
	if len(got) != 1 {
		t.Fatalf("updates = %d, want 1", len(got))
	}
	if got[0].SessionID != "CA100" || got[0].TenantID != "t-1" {
		t.Fatalf("unexpected update: %+v", got[0])
	}
}

func TestRecorder_Err(t *testing.T) {
	rec := &Recorder{Err: errors.New("down")}
	if err := rec.PublishCallUpdate(context.Background(), CallUpdate{TenantID: "t-1"}); err == nil {
		t.Fatal("expected error")
	}
	if len(rec.Updates()) != 0 {
		t.Fatal("failed publish must not record")
	}
}

func TestChannel(t *testing.T) {
	if got := Channel("t-42"); got != "calls:t-42" {
		t.Fatalf("channel = %q", got)
	}
}
