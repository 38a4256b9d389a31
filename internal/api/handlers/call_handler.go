package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rajmehta89/call-agent-backend/internal/cache"
	"github.com/rajmehta89/call-agent-backend/internal/models"
	"github.com/rajmehta89/call-agent-backend/internal/services"
	"github.com/rajmehta89/call-agent-backend/internal/session"
	"github.com/rajmehta89/call-agent-backend/internal/telephony"
	"github.com/rajmehta89/call-agent-backend/internal/utils"
	"github.com/sirupsen/logrus"
)

// Dialer places outbound calls; *telephony.Client in production.
type Dialer interface {
	Configured() bool
	Call(ctx context.Context, call telephony.OutboundCall) (map[string]any, error)
}

// CallLookup finds the stored record of a finished call.
type CallLookup interface {
	FindBySession(ctx context.Context, sessionID string) (*models.CallRecord, error)
}

// TurnLister reads back the relational turn log of a call.
type TurnLister interface {
	ListBySession(ctx context.Context, sessionID string, limit int) ([]models.CallTurn, error)
}

type CallHandler struct {
	dialer   Dialer
	baseURL  string
	meta     cache.Cache // optional
	calls    services.CallLogService
	turns    TurnLister // optional
	history  CallLookup // optional
	registry *session.Registry
	log      logrus.FieldLogger
}

// NewCallHandler builds the operator call API. baseURL is the public http(s) origin of this
// service; when empty the request's own host is used.
func NewCallHandler(d Dialer, baseURL string, meta cache.Cache, calls services.CallLogService, reg *session.Registry, log logrus.FieldLogger) *CallHandler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &CallHandler{
		dialer:   d,
		baseURL:  strings.TrimRight(baseURL, "/"),
		meta:     meta,
		calls:    calls,
		registry: reg,
		log:      log,
	}
}

// WithTurnLog enables the turn history endpoint.
func (h *CallHandler) WithTurnLog(t TurnLister) *CallHandler {
	h.turns = t
	return h
}

// WithHistory lets call-status answer for calls that have already ended.
func (h *CallHandler) WithHistory(l CallLookup) *CallHandler {
	h.history = l
	return h
}

type makeCallReq struct {
	PhoneNumber string `json:"phone_number"`
	LeadID      string `json:"lead_id"`
}

func (h *CallHandler) MakeCall(c *gin.Context) {
	const op = "CallHandler.MakeCall"
	ctx := c.Request.Context()

	var req makeCallReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "invalid json", err))
		return
	}
	req.PhoneNumber = strings.TrimSpace(req.PhoneNumber)
	if req.PhoneNumber == "" {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "phone_number is required", nil))
		return
	}
	if h.dialer == nil || !h.dialer.Configured() {
		writeError(c, utils.E(utils.CodeMisconfigured, op, "Piopiy API not configured", nil))
		return
	}

	sessionID := uuid.NewString()
	base := h.origin(c)
	log := h.log.WithFields(logrus.Fields{"session_id": sessionID, "phone": req.PhoneNumber, "lead_id": req.LeadID})

	meta := telephony.CallMeta{SessionID: sessionID, Phone: req.PhoneNumber, LeadID: req.LeadID}
	if h.meta != nil {
		if err := h.meta.SetJSON(ctx, cache.CallMetaKey(sessionID), meta, cache.CallMetaTTL); err != nil {
			log.WithError(err).Warn("failed to cache call context")
		}
	}

	if h.calls != nil {
		if _, err := h.calls.LogCall(ctx, req.PhoneNumber, req.LeadID, models.CallData{
			CallSessionID: sessionID,
			Direction:     models.DirectionOutbound,
			Status:        models.CallInitiated,
		}); err != nil {
			log.WithError(err).Warn("failed to record initiated call")
		}
	}

	extra := map[string]string{
		"phone_number": req.PhoneNumber,
		"lead_id":      req.LeadID,
		"session":      sessionID,
	}
	resp, err := h.dialer.Call(ctx, telephony.OutboundCall{
		To:          req.PhoneNumber,
		PCMO:        telephony.StreamPCMO(MediaURL(base, meta), extra),
		HangupURL:   base + "/api/call-hangup/" + sessionID,
		ExtraParams: extra,
		Record:      true,
	})
	if err != nil {
		log.WithError(err).Error("outbound call failed")
		if h.meta != nil {
			_ = h.meta.Del(ctx, cache.CallMetaKey(sessionID))
		}
		writeError(c, err)
		return
	}

	log.Info("outbound call placed")
	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"session_id":    sessionID,
		"phone_number":  req.PhoneNumber,
		"lead_id":       req.LeadID,
		"call_response": resp,
	})
}

// CallHangup is the provider's hangup callback for an outbound call.
func (h *CallHandler) CallHangup(c *gin.Context) {
	id := c.Param("session_id")
	if s, ok := h.registry.Get(id); ok {
		h.log.WithField("session_id", id).Info("provider hung up call")
		s.Hangup("provider_hangup")
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *CallHandler) CallStatus(c *gin.Context) {
	const op = "CallHandler.CallStatus"

	id := c.Param("session_id")
	if s, ok := h.registry.Get(id); ok {
		c.JSON(http.StatusOK, s.Snapshot())
		return
	}
	if h.history == nil {
		writeError(c, utils.E(utils.CodeNotFound, op, "Call session not found", nil))
		return
	}

	rec, err := h.history.FindBySession(c.Request.Context(), id)
	switch {
	case errors.Is(err, utils.ErrNotFound):
		writeError(c, utils.E(utils.CodeNotFound, op, "Call session not found", err))
		return
	case err != nil:
		writeError(c, utils.E(utils.CodeUnavailable, op, "call lookup failed", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id":        id,
		"status":            rec.Status,
		"phone_number":      rec.PhoneNumber,
		"lead_id":           rec.LeadID,
		"direction":         rec.Direction,
		"duration":          rec.Duration,
		"call_summary":      rec.Summary,
		"interest_analysis": rec.InterestAnalysis,
	})
}

// CallTurns lists the logged turns of a live or finished call, oldest first.
func (h *CallHandler) CallTurns(c *gin.Context) {
	const op = "CallHandler.CallTurns"

	if h.turns == nil {
		writeError(c, utils.E(utils.CodeUnavailable, op, "turn log is disabled", nil))
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	rows, err := h.turns.ListBySession(c.Request.Context(), c.Param("session_id"), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": c.Param("session_id"), "turns": rows, "count": len(rows)})
}

func (h *CallHandler) ActiveCalls(c *gin.Context) {
	calls := h.registry.Snapshots()
	c.JSON(http.StatusOK, gin.H{"active_calls": calls, "count": len(calls)})
}

func (h *CallHandler) origin(c *gin.Context) string {
	if h.baseURL != "" {
		return h.baseURL
	}
	scheme := "http"
	if c.Request.TLS != nil || strings.EqualFold(c.GetHeader("X-Forwarded-Proto"), "https") {
		scheme = "https"
	}
	return scheme + "://" + c.Request.Host
}

// MediaURL is the media socket address for a call: the http(s) origin switched to ws(s) with
// the call context in the path and query.
func MediaURL(origin string, m telephony.CallMeta) string {
	ws := origin
	switch {
	case strings.HasPrefix(ws, "https://"):
		ws = "wss://" + strings.TrimPrefix(ws, "https://")
	case strings.HasPrefix(ws, "http://"):
		ws = "ws://" + strings.TrimPrefix(ws, "http://")
	}
	q := url.Values{}
	q.Set("phone_number", m.Phone)
	q.Set("lead_id", m.LeadID)
	return strings.TrimRight(ws, "/") + "/ws/" + url.PathEscape(m.SessionID) + "?" + q.Encode()
}
