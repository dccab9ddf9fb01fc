package cloudonix

import (
	"testing"

	"voicegate/internal/callsession"
	"voicegate/internal/cdr"
)

func TestMapSessionStatus(t *testing.T) {
	cases := map[string]callsession.Status{
		"ringing":    callsession.StatusRinging,
		"connected":  callsession.StatusConnected,
		"processing": callsession.StatusRinging,
		"answer":     callsession.StatusAnswered,
		"answered":   callsession.StatusAnswered,
		"new":        callsession.StatusRinging,
		"noanswer":   callsession.StatusFailed,
		"busy":       callsession.StatusBusy,
		"nocredit":   callsession.StatusFailed,
		"cancel":     callsession.StatusFailed,
		"external":   callsession.StatusFailed,
		"error":      callsession.StatusFailed,
		"completed":  callsession.StatusCompleted,
		"failed":     callsession.StatusFailed,
	}
	for in, want := range cases {
		if got := MapSessionStatus(in); got != want {
			t.Fatalf("MapSessionStatus(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMapSessionStatus_UnknownStaysVisible(t *testing.T) {
	if got := MapSessionStatus("something-new"); got != callsession.StatusRinging {
		t.Fatalf("unknown status mapped to %q, want ringing", got)
	}
	// Uppercase input is unknown too; the provider sends lowercase.
	if got := MapSessionStatus("CONNECTED"); got != callsession.StatusRinging {
		t.Fatalf("uppercase status mapped to %q, want ringing", got)
	}
}

func TestMapDisposition(t *testing.T) {
	cases := map[string]cdr.Disposition{
		"CONNECTED":  cdr.DispositionAnswer,
		"ANSWERED":   cdr.DispositionAnswer,
		"ANSWER":     cdr.DispositionAnswer,
		"BUSY":       cdr.DispositionBusy,
		"CANCEL":     cdr.DispositionCancel,
		"FAILED":     cdr.DispositionFailed,
		"CONGESTION": cdr.DispositionCongestion,
		"NOANSWER":   cdr.DispositionNoAnswer,
		"NO ANSWER":  cdr.DispositionNoAnswer,
		"answered":   cdr.DispositionAnswer, // matched case-insensitively
		"no answer":  cdr.DispositionNoAnswer,
	}
	for in, want := range cases {
		if got := MapDisposition(in); got != want {
			t.Fatalf("MapDisposition(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMapDisposition_UnknownNeverBillsAsAnswered(t *testing.T) {
	if got := MapDisposition("WEIRD"); got != cdr.DispositionFailed {
		t.Fatalf("unknown disposition mapped to %q, want FAILED", got)
	}
	if got := MapDisposition(""); got != cdr.DispositionFailed {
		t.Fatalf("empty disposition mapped to %q, want FAILED", got)
	}
}
