package cloudonix

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Provider webhooks arrive as JSON documents. Forms here are the adapter
// boundary: decode, validate, convert. Business decisions stay out.

// ErrInvalidPayload reports a webhook body that failed structural validation.
var ErrInvalidPayload = errors.New("cloudonix: invalid payload")

// timeLayouts are the wall-clock formats the provider has been observed
// sending in createdAt/modifiedAt/answerTime.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func parseWebhookTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cloudonix: unparseable timestamp %q", s)
}

// fromEpochMs converts a provider epoch-milliseconds value to a time.
func fromEpochMs(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// SessionUpdateForm is the session-update webhook payload.
//
// id, domain, token and status are required; everything else is optional.
// callStartTime is epoch milliseconds, the *At/answerTime fields are
// wall-clock strings.
type SessionUpdateForm struct {
	ID          int64  `json:"id"`
	Domain      string `json:"domain"`
	Token       string `json:"token"`
	Status      string `json:"status"`
	CallerID    string `json:"callerId"`
	Destination string `json:"destination"`
	Direction   string `json:"direction"`
	CreatedAt   string `json:"createdAt"`
	ModifiedAt  string `json:"modifiedAt"`
	CallStartMs *int64 `json:"callStartTime"`
	AnswerTime  string `json:"answerTime"`
	VappServer  string `json:"vappServer"`

	createdAt  *time.Time
	modifiedAt *time.Time
	answerTime *time.Time
}

// ParseSessionUpdate decodes and validates a session-update body. The raw
// body is returned alongside so callers can persist the delivery verbatim.
func ParseSessionUpdate(r *http.Request) (SessionUpdateForm, []byte, error) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return SessionUpdateForm{}, nil, fmt.Errorf("cloudonix: read body: %w", err)
	}
	var f SessionUpdateForm
	if err := json.Unmarshal(raw, &f); err != nil {
		return SessionUpdateForm{}, raw, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := f.validate(); err != nil {
		return SessionUpdateForm{}, raw, err
	}
	return f, raw, nil
}

func (f *SessionUpdateForm) validate() error {
	var missing []string
	if f.ID == 0 {
		missing = append(missing, "id")
	}
	if f.Domain == "" {
		missing = append(missing, "domain")
	}
	if f.Token == "" {
		missing = append(missing, "token")
	}
	if f.Status == "" {
		missing = append(missing, "status")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidPayload, strings.Join(missing, ", "))
	}

	var err error
	if f.createdAt, err = optionalTime(f.CreatedAt); err != nil {
		return fmt.Errorf("%w: createdAt: %v", ErrInvalidPayload, err)
	}
	if f.modifiedAt, err = optionalTime(f.ModifiedAt); err != nil {
		return fmt.Errorf("%w: modifiedAt: %v", ErrInvalidPayload, err)
	}
	if f.answerTime, err = optionalTime(f.AnswerTime); err != nil {
		return fmt.Errorf("%w: answerTime: %v", ErrInvalidPayload, err)
	}
	return nil
}

func optionalTime(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := parseWebhookTime(s)
	if err != nil {
		return nil, err
	}
	t = t.UTC()
	return &t, nil
}

// WebhookCreatedAt returns the parsed createdAt, nil when absent.
// Only valid after a successful parse.
func (f *SessionUpdateForm) WebhookCreatedAt() *time.Time { return f.createdAt }

// WebhookModifiedAt returns the parsed modifiedAt, nil when absent.
func (f *SessionUpdateForm) WebhookModifiedAt() *time.Time { return f.modifiedAt }

// AnsweredAt returns the parsed answerTime, nil when absent.
func (f *SessionUpdateForm) AnsweredAt() *time.Time { return f.answerTime }

// CallStartTime returns callStartTime as a wall-clock time, nil when absent.
func (f *SessionUpdateForm) CallStartTime() *time.Time {
	if f.CallStartMs == nil {
		return nil
	}
	t := fromEpochMs(*f.CallStartMs)
	return &t
}

// DurationSeconds computes answer-to-start elapsed seconds from the webhook's
// own timestamps. Nil unless both answerTime and callStartTime are present.
// Negative results (skewed provider clocks) clamp to zero.
func (f *SessionUpdateForm) DurationSeconds() *int {
	if f.answerTime == nil || f.CallStartMs == nil {
		return nil
	}
	d := f.answerTime.Unix() - *f.CallStartMs/1000
	if d < 0 {
		d = 0
	}
	out := int(d)
	return &out
}

// CdrSessionInfo is the nested session object on a CDR callback. All
// timestamps are epoch milliseconds.
type CdrSessionInfo struct {
	Token        string `json:"token"`
	CallStartMs  *int64 `json:"callStartTime"`
	CallAnswerMs *int64 `json:"callAnswerTime"`
	CallEndMs    *int64 `json:"callEndTime"`
	VappServer   string `json:"vappServer"`
}

// CdrForm is the call-detail-record callback payload.
type CdrForm struct {
	CallID      string `json:"call_id"`
	Domain      string `json:"domain"`
	From        string `json:"from"`
	To          string `json:"to"`
	Disposition string `json:"disposition"`
	Duration    *int   `json:"duration"`
	BillSec     *int   `json:"billsec"`
	Timestamp   *int64 `json:"timestamp"`

	Subscriber  string `json:"subscriber"`
	CxTrunkID   string `json:"cx_trunk_id"`
	Application string `json:"application"`
	Route       string `json:"route"`
	VappServer  string `json:"vapp_server"`

	Session *CdrSessionInfo `json:"session"`
}

// ParseCdr decodes and validates a CDR callback body, returning the raw body
// alongside for verbatim storage in raw_cdr.
func ParseCdr(r *http.Request) (CdrForm, []byte, error) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return CdrForm{}, nil, fmt.Errorf("cloudonix: read body: %w", err)
	}
	var f CdrForm
	if err := json.Unmarshal(raw, &f); err != nil {
		return CdrForm{}, raw, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := f.validate(); err != nil {
		return CdrForm{}, raw, err
	}
	return f, raw, nil
}

func (f *CdrForm) validate() error {
	var missing []string
	if f.CallID == "" {
		missing = append(missing, "call_id")
	}
	if f.Domain == "" {
		missing = append(missing, "domain")
	}
	if f.Disposition == "" {
		missing = append(missing, "disposition")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidPayload, strings.Join(missing, ", "))
	}
	return nil
}

// SessionToken returns the nested session token, empty when absent.
func (f *CdrForm) SessionToken() string {
	if f.Session == nil {
		return ""
	}
	return f.Session.Token
}

func (f *CdrForm) sessionTime(ms *int64) *time.Time {
	if f.Session == nil || ms == nil {
		return nil
	}
	t := fromEpochMs(*ms)
	return &t
}

// StartTime / AnswerTime / EndTime lift the nested session epoch-ms
// timestamps, nil when the session object or the field is absent.
func (f *CdrForm) StartTime() *time.Time {
	if f.Session == nil {
		return nil
	}
	return f.sessionTime(f.Session.CallStartMs)
}

func (f *CdrForm) AnswerTime() *time.Time {
	if f.Session == nil {
		return nil
	}
	return f.sessionTime(f.Session.CallAnswerMs)
}

func (f *CdrForm) EndTime() *time.Time {
	if f.Session == nil {
		return nil
	}
	return f.sessionTime(f.Session.CallEndMs)
}

// ServerLabel prefers the top-level vapp_server and falls back to the nested
// session's vappServer.
func (f *CdrForm) ServerLabel() string {
	if f.VappServer != "" {
		return f.VappServer
	}
	if f.Session != nil {
		return f.Session.VappServer
	}
	return ""
}

// BootstrapForm carries the call fields the provider includes on the initial
// application request. The provider posts these either form-encoded or as
// JSON depending on application configuration, so both are accepted.
type BootstrapForm struct {
	CallSid   string `json:"CallSid"`
	From      string `json:"From"`
	To        string `json:"To"`
	Direction string `json:"Direction"`
}

// ParseBootstrap extracts the bootstrap fields and a JSON snapshot of the
// full request payload for metadata storage. It never rejects: the bootstrap
// path must answer calls even for payloads it does not recognize.
func ParseBootstrap(r *http.Request) (BootstrapForm, json.RawMessage) {
	ct := r.Header.Get("Content-Type")
	if strings.Contains(ct, "json") {
		raw, err := io.ReadAll(r.Body)
		if err != nil || len(raw) == 0 {
			return BootstrapForm{}, json.RawMessage(`{}`)
		}
		var f BootstrapForm
		// Best effort; unknown shapes still get stored verbatim.
		_ = json.Unmarshal(raw, &f)
		if !json.Valid(raw) {
			return f, json.RawMessage(`{}`)
		}
		return f, raw
	}

	_ = r.ParseForm()
	f := BootstrapForm{
		CallSid:   r.Form.Get("CallSid"),
		From:      r.Form.Get("From"),
		To:        r.Form.Get("To"),
		Direction: r.Form.Get("Direction"),
	}
	flat := make(map[string]string, len(r.Form))
	for k := range r.Form {
		flat[k] = r.Form.Get(k)
	}
	raw, err := json.Marshal(flat)
	if err != nil {
		raw = []byte(`{}`)
	}
	return f, raw
}
