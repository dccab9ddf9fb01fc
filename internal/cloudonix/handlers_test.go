package cloudonix

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"voicegate/internal/broadcast"
	"voicegate/internal/callevent"
	"voicegate/internal/callsession"
	"voicegate/internal/cdr"
	"voicegate/internal/tenant"
	"voicegate/internal/voiceapp"

	"github.com/gin-gonic/gin"
)

const (
	testDomain = "acme.cloudonix.net"
	testCXML   = `<?xml version="1.0" encoding="UTF-8"?><Response><Play>https://cdn.example.com/welcome.mp3</Play></Response>`
)

type webhookFixture struct {
	router   *gin.Engine
	handlers *WebhookHandlers

	sessions *callsession.MemoryRepo
	cdrs     *cdr.MemoryRepo
	events   *callevent.MemoryRepo
	rec      *broadcast.Recorder

	now time.Time
}

func newWebhookFixture(t *testing.T) *webhookFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &webhookFixture{
		sessions: callsession.NewMemoryRepo(),
		cdrs:     cdr.NewMemoryRepo(),
		events:   callevent.NewMemoryRepo(),
		rec:      &broadcast.Recorder{},
		now:      time.Date(2026, 5, 20, 9, 30, 0, 0, time.UTC),
	}

	dir := tenant.NewMemoryDirectory(tenant.Tenant{
		ID:       "t-1",
		Name:     "Acme",
		Slug:     "acme",
		Domain:   testDomain,
		IsActive: true,
	})
	apps := voiceapp.NewMemoryRepo(voiceapp.VoiceApplication{
		ID:             "va-1",
		TenantID:       "t-1",
		Name:           "welcome",
		CXMLDefinition: testCXML,
		ProviderAppID:  "app-100",
		IsActive:       true,
	})

	clock := func() time.Time { return f.now }
	f.handlers = &WebhookHandlers{
		Tenants:   dir,
		Apps:      apps,
		Sessions:  f.sessions,
		Cdrs:      f.cdrs,
		Events:    callevent.NewService(f.events).WithClock(clock),
		Broadcast: f.rec,
		Now:       clock,
	}

	f.router = gin.New()
	f.router.POST("/application/:application_id", f.handlers.HandleApplication)
	f.router.POST("/session/update", f.handlers.HandleSessionUpdate)
	f.router.POST("/session/cdr", f.handlers.HandleCdrCallback)
	return f
}

func (f *webhookFixture) post(path, body, contentType string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("User-Agent", "Cloudonix-VoIP/2.1")
	f.router.ServeHTTP(w, req)
	return w
}

func (f *webhookFixture) postJSON(path, body string) *httptest.ResponseRecorder {
	return f.post(path, body, "application/json")
}

// waitForBroadcasts polls the recorder until n updates have landed. Publishes
// run detached from the request, so assertions on them must wait.
func (f *webhookFixture) waitForBroadcasts(t *testing.T, n int) []broadcast.CallUpdate {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		ups := f.rec.Updates()
		if len(ups) >= n {
			return ups
		}
		if time.Now().After(deadline) {
			t.Fatalf("broadcasts = %d, want %d", len(ups), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func sessionUpdateBody(token, status string) string {
	return `{"id":9001,"domain":"` + testDomain + `","token":"` + token + `","status":"` + status + `","callerId":"+15551230001","destination":"+15559870002","modifiedAt":"2026-05-20T09:30:15Z"}`
}

func TestHandleSessionUpdate_OK(t *testing.T) {
	f := newWebhookFixture(t)

	w := f.postJSON("/session/update", sessionUpdateBody("tok-1", "connected"))
	if w.Code != http.StatusOK || w.Body.String() != "OK" {
		t.Fatalf("status=%d body=%q", w.Code, w.Body.String())
	}

	rows := f.sessions.All()
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}
	s := rows[0]
	if s.TenantID != "t-1" || s.Token != "tok-1" || s.SessionID != "9001" {
		t.Fatalf("unexpected row: %+v", s)
	}
	if s.Status != callsession.StatusConnected {
		t.Fatalf("status = %q", s.Status)
	}
	if len(s.Metadata) == 0 {
		t.Fatal("metadata must keep the delivery verbatim")
	}

	events := f.events.Events()
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	if events[0].EventID != "session_update_tok-1_"+itoa(f.now.Unix()) {
		t.Fatalf("event_id = %q", events[0].EventID)
	}

	ups := f.waitForBroadcasts(t, 1)
	if len(ups) != 1 || ups[0].Token != "tok-1" || ups[0].Status != "connected" {
		t.Fatalf("broadcast = %+v", ups)
	}
}

func TestHandleSessionUpdate_InvalidPayload(t *testing.T) {
	f := newWebhookFixture(t)

	w := f.postJSON("/session/update", `{"domain":"`+testDomain+`","status":"ringing"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if len(f.sessions.All()) != 0 || len(f.events.Events()) != 0 {
		t.Fatal("rejected payload must write nothing")
	}
}

func TestHandleSessionUpdate_UnknownDomain(t *testing.T) {
	f := newWebhookFixture(t)

	body := `{"id":1,"domain":"nobody.example.com","token":"tok-x","status":"ringing"}`
	w := f.postJSON("/session/update", body)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	if len(f.sessions.All()) != 0 || len(f.events.Events()) != 0 {
		t.Fatal("unknown domain must write nothing")
	}
}

func TestHandleSessionUpdate_RedeliveryOverwrites(t *testing.T) {
	f := newWebhookFixture(t)

	w := f.postJSON("/session/update", sessionUpdateBody("tok-1", "connected"))
	if w.Code != http.StatusOK {
		t.Fatalf("first delivery: %d", w.Code)
	}

	// Later delivery, later arrival second: fresh audit key, same row.
	f.now = f.now.Add(2 * time.Second)
	w = f.postJSON("/session/update", sessionUpdateBody("tok-1", "ringing"))
	if w.Code != http.StatusOK {
		t.Fatalf("second delivery: %d", w.Code)
	}

	rows := f.sessions.All()
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}
	// The overwrite is unconditional: the stale status wins. Deliberate;
	// the store keeps last-delivery, not last-event.
	if rows[0].Status != callsession.StatusRinging {
		t.Fatalf("status = %q, want ringing after overwrite", rows[0].Status)
	}
	if len(f.events.Events()) != 2 {
		t.Fatalf("events = %d, want 2", len(f.events.Events()))
	}
}

func TestHandleSessionUpdate_SameSecondDuplicateIs500ButRowSticks(t *testing.T) {
	f := newWebhookFixture(t)

	if w := f.postJSON("/session/update", sessionUpdateBody("tok-1", "connected")); w.Code != http.StatusOK {
		t.Fatalf("first delivery: %d", w.Code)
	}

	// Same token, same arrival second: the audit dedup key collides, the
	// delivery answers 500 and the gateway retries. The session overwrite
	// has already committed by then.
	w := f.postJSON("/session/update", sessionUpdateBody("tok-1", "completed"))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("duplicate delivery: %d, want 500", w.Code)
	}

	rows := f.sessions.All()
	if len(rows) != 1 || rows[0].Status != callsession.StatusCompleted {
		t.Fatalf("row after duplicate: %+v", rows)
	}
	if len(f.events.Events()) != 1 {
		t.Fatalf("events = %d, want 1", len(f.events.Events()))
	}
}

func TestHandleSessionUpdate_BroadcastFailureDoesNotFailRequest(t *testing.T) {
	f := newWebhookFixture(t)
	f.rec.Err = errors.New("redis down")

	w := f.postJSON("/session/update", sessionUpdateBody("tok-1", "connected"))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 despite broadcast failure", w.Code)
	}
}

// stallingBroadcaster holds every publish for delay before recording it.
type stallingBroadcaster struct {
	rec   broadcast.Recorder
	delay time.Duration
}

func (s *stallingBroadcaster) PublishCallUpdate(ctx context.Context, u broadcast.CallUpdate) error {
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return ctx.Err()
	}
	return s.rec.PublishCallUpdate(ctx, u)
}

func TestHandleSessionUpdate_SlowBroadcastDoesNotDelayAck(t *testing.T) {
	f := newWebhookFixture(t)
	slow := &stallingBroadcaster{delay: 1500 * time.Millisecond}
	f.handlers.Broadcast = slow

	start := time.Now()
	w := f.postJSON("/session/update", sessionUpdateBody("tok-1", "connected"))
	elapsed := time.Since(start)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	// The ack must not wait on the broker; the publish runs detached.
	if elapsed > 500*time.Millisecond {
		t.Fatalf("ack took %v with a stalled broker", elapsed)
	}

	deadline := time.Now().Add(3 * time.Second)
	for len(slow.rec.Updates()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("detached publish never completed")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHandleCdrCallback_OK(t *testing.T) {
	f := newWebhookFixture(t)

	body := `{"call_id":"CA555","domain":"` + testDomain + `","from":"+1555","to":"+1666","disposition":"connected","duration":42,"billsec":40,"session":{"token":"tok-1","callStartTime":1779268200000,"callAnswerTime":1779268207000}}`
	w := f.postJSON("/session/cdr", body)
	if w.Code != http.StatusOK || w.Body.String() != "OK" {
		t.Fatalf("status=%d body=%q", w.Code, w.Body.String())
	}

	rows := f.cdrs.All()
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}
	r := rows[0]
	if r.TenantID != "t-1" || r.CallID != "CA555" || r.SessionToken != "tok-1" {
		t.Fatalf("unexpected row: %+v", r)
	}
	if r.Direction != "inbound" {
		t.Fatalf("direction = %q, want inbound", r.Direction)
	}
	if r.Disposition != cdr.DispositionAnswer {
		t.Fatalf("disposition = %q, want ANSWER", r.Disposition)
	}
	if r.DurationSeconds == nil || *r.DurationSeconds != 42 {
		t.Fatalf("duration = %v", r.DurationSeconds)
	}
	if !strings.Contains(string(r.RawCdr), `"disposition":"connected"`) {
		t.Fatalf("raw_cdr must keep the original disposition: %s", r.RawCdr)
	}
}

func TestHandleCdrCallback_MissingDisposition(t *testing.T) {
	f := newWebhookFixture(t)

	w := f.postJSON("/session/cdr", `{"call_id":"CA555","domain":"`+testDomain+`"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if len(f.cdrs.All()) != 0 {
		t.Fatal("rejected cdr must write nothing")
	}
}

func TestHandleCdrCallback_UnknownDomain(t *testing.T) {
	f := newWebhookFixture(t)

	w := f.postJSON("/session/cdr", `{"call_id":"CA555","domain":"nobody.example.com","disposition":"ANSWER"}`)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	if len(f.cdrs.All()) != 0 {
		t.Fatal("unknown domain must write nothing")
	}
}

func TestHandleCdrCallback_RedeliveryKeepsOneRow(t *testing.T) {
	f := newWebhookFixture(t)

	body := `{"call_id":"CA556","domain":"` + testDomain + `","disposition":"NOANSWER"}`
	for i := 0; i < 3; i++ {
		if w := f.postJSON("/session/cdr", body); w.Code != http.StatusOK {
			t.Fatalf("delivery %d: %d", i, w.Code)
		}
	}
	rows := f.cdrs.All()
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}
	if rows[0].Disposition != cdr.DispositionNoAnswer {
		t.Fatalf("disposition = %q", rows[0].Disposition)
	}
}

func TestHandleApplication_ReturnsStoredMarkup(t *testing.T) {
	f := newWebhookFixture(t)

	w := f.post("/application/app-100", "CallSid=CA123&From=%2B1555&To=%2B1666&Direction=inbound", "application/x-www-form-urlencoded")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/xml" {
		t.Fatalf("content-type = %q", ct)
	}
	if w.Body.String() != testCXML {
		t.Fatalf("body = %q", w.Body.String())
	}

	rows := f.sessions.All()
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}
	s := rows[0]
	if s.SessionID != "CA123" || s.CallID != "CA123" || s.TenantID != "t-1" {
		t.Fatalf("unexpected row: %+v", s)
	}
	if s.Status != callsession.StatusRinging {
		t.Fatalf("status = %q", s.Status)
	}
	if s.Token != "" {
		t.Fatalf("bootstrap rows carry no token, got %q", s.Token)
	}
	if !strings.Contains(string(s.State), "initial_request") {
		t.Fatalf("state = %s", s.State)
	}
}

func TestHandleApplication_UnknownApp404(t *testing.T) {
	f := newWebhookFixture(t)

	w := f.post("/application/app-999", "CallSid=CA123", "application/x-www-form-urlencoded")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	if len(f.sessions.All()) != 0 {
		t.Fatal("unknown application must write nothing")
	}
}

func TestHandleApplication_MissingCallSidSynthesizesSessionID(t *testing.T) {
	f := newWebhookFixture(t)

	w := f.post("/application/app-100", "From=%2B1555", "application/x-www-form-urlencoded")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	rows := f.sessions.All()
	if len(rows) != 1 {
		t.Fatalf("rows = %d", len(rows))
	}
	want := "unknown_" + itoa(f.now.Unix())
	if rows[0].SessionID != want {
		t.Fatalf("session_id = %q, want %q", rows[0].SessionID, want)
	}
}

func TestHandleApplication_RepeatedBootstrapKeepsFirstRow(t *testing.T) {
	f := newWebhookFixture(t)

	if w := f.post("/application/app-100", "CallSid=CA123&From=%2B1555", "application/x-www-form-urlencoded"); w.Code != http.StatusOK {
		t.Fatalf("first: %d", w.Code)
	}
	if w := f.post("/application/app-100", "CallSid=CA123&From=%2B1777", "application/x-www-form-urlencoded"); w.Code != http.StatusOK {
		t.Fatalf("second: %d", w.Code)
	}

	rows := f.sessions.All()
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}
	if rows[0].FromNumber != "+1555" {
		t.Fatalf("first sighting must win, got from=%q", rows[0].FromNumber)
	}
}

// A real call produces a bootstrap row keyed by session_id and a webhook row
// keyed by token. The two identity keys never merge.
func TestBootstrapAndUpdateRowsStayIndependent(t *testing.T) {
	f := newWebhookFixture(t)

	if w := f.post("/application/app-100", "CallSid=CA123&From=%2B1555", "application/x-www-form-urlencoded"); w.Code != http.StatusOK {
		t.Fatalf("bootstrap: %d", w.Code)
	}
	if w := f.postJSON("/session/update", sessionUpdateBody("CA123-token", "connected")); w.Code != http.StatusOK {
		t.Fatalf("update: %d", w.Code)
	}

	rows := f.sessions.All()
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2 independent rows", len(rows))
	}
}
