package cloudonix

import (
	"strings"

	"voicegate/internal/callsession"
	"voicegate/internal/cdr"
)

// sessionStatusMap translates provider session statuses to internal ones.
// Provider statuses are lowercase on the wire.
var sessionStatusMap = map[string]callsession.Status{
	"ringing":    callsession.StatusRinging,
	"connected":  callsession.StatusConnected, // kept distinct from answered
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

// MapSessionStatus maps a provider session status to the internal status.
// Unknown statuses map to ringing: a live session we cannot classify stays
// visible on the active-calls board rather than being dropped.
func MapSessionStatus(providerStatus string) callsession.Status {
	if s, ok := sessionStatusMap[providerStatus]; ok {
		return s
	}
	return callsession.StatusRinging
}

var dispositionMap = map[string]cdr.Disposition{
	"CONNECTED":  cdr.DispositionAnswer,
	"ANSWERED":   cdr.DispositionAnswer,
	"ANSWER":     cdr.DispositionAnswer,
	"BUSY":       cdr.DispositionBusy,
	"CANCEL":     cdr.DispositionCancel,
	"FAILED":     cdr.DispositionFailed,
	"CONGESTION": cdr.DispositionCongestion,
	"NOANSWER":   cdr.DispositionNoAnswer,
	"NO ANSWER":  cdr.DispositionNoAnswer,
}

// MapDisposition maps a provider CDR disposition (case-insensitive) to the
// internal enum. Unknown dispositions map to FAILED: a terminal record we
// cannot classify must never be billed as answered. The raw provider string
// is preserved verbatim in raw_cdr.
func MapDisposition(providerDisposition string) cdr.Disposition {
	if d, ok := dispositionMap[strings.ToUpper(providerDisposition)]; ok {
		return d
	}
	return cdr.DispositionFailed
}
