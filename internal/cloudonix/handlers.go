package cloudonix

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"voicegate/internal/broadcast"
	"voicegate/internal/callevent"
	"voicegate/internal/callsession"
	"voicegate/internal/cdr"
	"voicegate/internal/tenant"
	"voicegate/internal/voiceapp"
	"voicegate/pkg/logger"

	"github.com/gin-gonic/gin"
)

// directionInbound is written on every CDR row. The provider's payload does
// not carry a usable direction marker, and this deployment only terminates
// inbound traffic.
const directionInbound = "inbound"

// broadcastTimeout bounds the detached publish after a session update; the
// gateway's ack never waits on it.
const broadcastTimeout = 5 * time.Second

// WebhookHandlers serves the unauthenticated provider-facing endpoints:
// application bootstrap, session updates, and CDR callbacks.
//
// Origin checking is advisory (see Verifier) and rate counting is advisory;
// neither ever rejects a delivery. Idempotency lives in the repositories'
// unique keys, not here.
type WebhookHandlers struct {
	Tenants  tenant.Directory
	Apps     voiceapp.Repository
	Sessions callsession.Repository
	Cdrs     cdr.Repository
	Events   *callevent.Service

	Broadcast broadcast.Broadcaster
	Verify    Verifier

	// RateCount increments and returns the tenant's webhook counter for the
	// current window. Optional; failures and limit breaches are logged only.
	RateCount func(ctx context.Context, tenantID string) (int64, error)
	RateLimit int64

	Now func() time.Time
}

func (h *WebhookHandlers) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func (h *WebhookHandlers) checkOrigin(c *gin.Context) {
	if !h.Verify.LooksAuthentic(c.Request) {
		logger.FromGin(c).Warn("webhook missing provider origin markers",
			"user_agent", c.Request.UserAgent(),
			"ip", c.ClientIP(),
		)
	}
}

func (h *WebhookHandlers) countDelivery(c *gin.Context, tenantID string) {
	if h.RateCount == nil {
		return
	}
	log := logger.FromGin(c)
	n, err := h.RateCount(c.Request.Context(), tenantID)
	if err != nil {
		log.Warn("webhook rate counter unavailable", "tenant_id", tenantID, "err", err)
		return
	}
	if h.RateLimit > 0 && n > h.RateLimit {
		log.Warn("webhook rate above configured limit",
			"tenant_id", tenantID, "count", n, "limit", h.RateLimit)
	}
}

// HandleApplication answers the provider's initial call-control request with
// the application's stored markup and records a first-sighting session row.
//
// Failure policy is availability-first: an inactive or unknown application id
// is a 404, but any internal failure degrades to a hangup document with
// HTTP 200 so the call ends cleanly instead of looping gateway retries.
func (h *WebhookHandlers) HandleApplication(c *gin.Context) {
	log := logger.FromGin(c)
	h.checkOrigin(c)

	appID := c.Param("application_id")

	app, err := h.Apps.GetActiveByProviderAppID(c.Request.Context(), appID)
	if errors.Is(err, voiceapp.ErrNotFound) {
		log.Warn("voice application not found", "application_id", appID)
		c.String(http.StatusNotFound, "Application not found")
		return
	}
	if err != nil {
		log.Error("voice application lookup failed", "application_id", appID, "err", err)
		c.Data(http.StatusOK, cxmlContentType, []byte(HangupCXML))
		return
	}

	form, payload := ParseBootstrap(c.Request)

	sess, created, err := h.storeBootstrapSession(c, app, form, payload)
	if err != nil {
		log.Error("bootstrap session store failed",
			"application_id", appID, "tenant_id", app.TenantID, "err", err)
		c.Data(http.StatusOK, cxmlContentType, []byte(HangupCXML))
		return
	}

	log.Info("voice application request served",
		"application_id", appID,
		"tenant_id", app.TenantID,
		"session_id", sess.SessionID,
		"session_created", created,
	)
	c.Data(http.StatusOK, cxmlContentType, []byte(app.CXMLDefinition))
}

func (h *WebhookHandlers) storeBootstrapSession(c *gin.Context, app voiceapp.VoiceApplication, form BootstrapForm, payload json.RawMessage) (callsession.CallSession, bool, error) {
	now := h.now().UTC()

	sessionID := form.CallSid
	if sessionID == "" {
		sessionID = "unknown_" + strconv.FormatInt(now.Unix(), 10)
	}
	direction := form.Direction
	if direction == "" {
		direction = directionInbound
	}

	meta, err := json.Marshal(map[string]any{
		"voice_application_id": app.ID,
		"request_data":         payload,
		"headers":              c.Request.Header,
	})
	if err != nil {
		return callsession.CallSession{}, false, err
	}

	return h.Sessions.CreateIfAbsentBySessionID(c.Request.Context(), callsession.CallSession{
		TenantID:   app.TenantID,
		SessionID:  sessionID,
		CallID:     form.CallSid,
		Direction:  direction,
		FromNumber: form.From,
		ToNumber:   form.To,
		Status:     callsession.StatusRinging,
		StartedAt:  &now,
		State:      json.RawMessage(`{"initial_request":true}`),
		Metadata:   meta,
	})
}

// HandleSessionUpdate ingests a session-update webhook: overwrite the session
// row keyed by token, append the audit event, then broadcast.
//
// The row write is a full overwrite with whatever this delivery carries.
// There is no recency check against the row's current contents; ordering is
// the provider's problem and the audit trail keeps every delivery anyway.
func (h *WebhookHandlers) HandleSessionUpdate(c *gin.Context) {
	log := logger.FromGin(c)
	h.checkOrigin(c)

	form, raw, err := ParseSessionUpdate(c.Request)
	if errors.Is(err, ErrInvalidPayload) {
		log.Warn("invalid session update payload", "err", err)
		c.String(http.StatusBadRequest, "Invalid payload")
		return
	}
	if err != nil {
		log.Error("session update read failed", "err", err)
		c.String(http.StatusInternalServerError, "Internal server error")
		return
	}

	tn, err := h.Tenants.ResolveDomain(c.Request.Context(), form.Domain)
	if errors.Is(err, tenant.ErrNotFound) {
		log.Warn("tenant not found for webhook domain",
			"domain", form.Domain, "session_id", form.ID)
		c.String(http.StatusNotFound, "Tenant not found")
		return
	}
	if err != nil {
		log.Error("tenant resolution failed", "domain", form.Domain, "err", err)
		c.String(http.StatusInternalServerError, "Internal server error")
		return
	}

	h.countDelivery(c, tn.ID)

	internalStatus := MapSessionStatus(form.Status)
	direction := form.Direction
	if direction == "" {
		direction = directionInbound
	}

	saved, err := h.Sessions.UpsertByToken(c.Request.Context(), callsession.CallSession{
		TenantID:          tn.ID,
		SessionID:         strconv.FormatInt(form.ID, 10),
		Token:             form.Token,
		Domain:            form.Domain,
		CallerID:          form.CallerID,
		Destination:       form.Destination,
		Direction:         direction,
		Status:            internalStatus,
		VappServer:        form.VappServer,
		CallStartTime:     form.CallStartTime(),
		CallAnswerTime:    form.AnsweredAt(),
		AnswerTime:        form.AnsweredAt(),
		WebhookCreatedAt:  form.WebhookCreatedAt(),
		WebhookModifiedAt: form.WebhookModifiedAt(),
		DurationSeconds:   form.DurationSeconds(),
		Metadata:          raw,
	})
	if err != nil {
		log.Error("session upsert failed", "token", form.Token, "err", err)
		c.String(http.StatusInternalServerError, "Internal server error")
		return
	}

	occurredAt := h.now().UTC()
	if t := form.WebhookModifiedAt(); t != nil {
		occurredAt = *t
	}
	headers, _ := json.Marshal(c.Request.Header)
	if err := h.Events.RecordSessionUpdate(c.Request.Context(), tn.ID, saved.ID, form.Token, raw, headers, occurredAt); err != nil {
		log.Error("audit append failed", "token", form.Token, "err", err)
		c.String(http.StatusInternalServerError, "Internal server error")
		return
	}

	if h.Broadcast != nil {
		u := broadcast.CallUpdate{
			TenantID:        tn.ID,
			SessionID:       saved.SessionID,
			Token:           saved.Token,
			Status:          string(saved.Status),
			CallerID:        saved.CallerID,
			Destination:     saved.Destination,
			DurationSeconds: saved.DurationSeconds,
			OccurredAt:      occurredAt,
		}
		bctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), broadcastTimeout)
		go func() {
			defer cancel()
			if err := h.Broadcast.PublishCallUpdate(bctx, u); err != nil {
				log.Warn("call update broadcast failed", "token", u.Token, "err", err)
			}
		}()
	}

	log.Info("session update processed",
		"session_id", form.ID,
		"token", form.Token,
		"domain", form.Domain,
		"status", form.Status,
		"internal_status", internalStatus,
		"tenant_id", tn.ID,
		"duration_seconds", saved.DurationSeconds,
	)
	c.String(http.StatusOK, "OK")
}

// HandleCdrCallback ingests the terminal call-detail record, one row per
// (tenant, call_id). Redelivery overwrites the row.
func (h *WebhookHandlers) HandleCdrCallback(c *gin.Context) {
	log := logger.FromGin(c)
	h.checkOrigin(c)

	form, raw, err := ParseCdr(c.Request)
	if errors.Is(err, ErrInvalidPayload) {
		log.Warn("invalid cdr payload", "err", err)
		c.String(http.StatusBadRequest, "Invalid payload")
		return
	}
	if err != nil {
		log.Error("cdr read failed", "err", err)
		c.String(http.StatusInternalServerError, "Internal server error")
		return
	}

	tn, err := h.Tenants.ResolveDomain(c.Request.Context(), form.Domain)
	if errors.Is(err, tenant.ErrNotFound) {
		log.Warn("tenant not found for cdr domain",
			"domain", form.Domain, "call_id", form.CallID)
		c.String(http.StatusNotFound, "Tenant not found")
		return
	}
	if err != nil {
		log.Error("tenant resolution failed", "domain", form.Domain, "err", err)
		c.String(http.StatusInternalServerError, "Internal server error")
		return
	}

	h.countDelivery(c, tn.ID)

	disposition := MapDisposition(form.Disposition)

	saved, err := h.Cdrs.Upsert(c.Request.Context(), cdr.CdrLog{
		TenantID:        tn.ID,
		CallID:          form.CallID,
		SessionToken:    form.SessionToken(),
		FromNumber:      form.From,
		ToNumber:        form.To,
		Direction:       directionInbound,
		Disposition:     disposition,
		StartTime:       form.StartTime(),
		AnswerTime:      form.AnswerTime(),
		EndTime:         form.EndTime(),
		DurationSeconds: form.Duration,
		BillSec:         form.BillSec,
		Domain:          form.Domain,
		Subscriber:      form.Subscriber,
		CxTrunkID:       form.CxTrunkID,
		Application:     form.Application,
		Route:           form.Route,
		VappServer:      form.ServerLabel(),
		RawCdr:          raw,
	})
	if err != nil {
		log.Error("cdr upsert failed", "call_id", form.CallID, "err", err)
		c.String(http.StatusInternalServerError, "Internal server error")
		return
	}

	log.Info("cdr callback processed",
		"call_id", form.CallID,
		"disposition", form.Disposition,
		"mapped_disposition", disposition,
		"domain", form.Domain,
		"tenant_id", tn.ID,
		"cdr_log_id", saved.ID,
	)
	c.String(http.StatusOK, "OK")
}
