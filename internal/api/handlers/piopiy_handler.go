package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rajmehta89/call-agent-backend/internal/cache"
	"github.com/rajmehta89/call-agent-backend/internal/services"
	"github.com/rajmehta89/call-agent-backend/internal/telephony"
	"github.com/rajmehta89/call-agent-backend/internal/utils"
	"github.com/sirupsen/logrus"
)

const pendingHangupTTL = 10 * time.Minute

// PiopiyHandler serves the provider's call-control and lifecycle webhooks.
type PiopiyHandler struct {
	wsURL  string
	flags  cache.Flags
	events services.CallEventService
	log    logrus.FieldLogger
}

func NewPiopiyHandler(wsURL string, flags cache.Flags, events services.CallEventService, log logrus.FieldLogger) *PiopiyHandler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &PiopiyHandler{wsURL: wsURL, flags: flags, events: events, log: log}
}

// Inbound answers a new call with the PCMO that streams it to the media socket, or with a
// hangup when one was requested since the last call.
func (h *PiopiyHandler) Inbound(c *gin.Context) {
	const op = "PiopiyHandler.Inbound"
	ctx := c.Request.Context()

	if h.flags != nil {
		pending, err := h.flags.TakeHangup(ctx)
		if err != nil {
			h.log.WithError(err).Warn("pending hangup flag unavailable")
		}
		if pending {
			h.log.Info("answering inbound call with pending hangup")
			c.JSON(http.StatusOK, telephony.HangupResponse{Hangup: true})
			return
		}
	}

	if h.wsURL == "" {
		h.log.Error("WEBSOCKET_URL is not set")
		writeError(c, utils.E(utils.CodeInternal, op, "WEBSOCKET_URL undefined", nil))
		return
	}

	body := jsonBody(c)
	extra := map[string]string{
		"phone_number": str(body, "phone_number"),
		"lead_id":      str(body, "lead_id"),
	}
	h.log.WithField("phone", extra["phone_number"]).Info("inbound call")
	c.JSON(http.StatusOK, telephony.StreamPCMO(h.wsURL, extra))
}

// Events applies answer/hangup/no-answer notifications to the matching lead. Unknown events
// are acknowledged so the provider does not retry them.
func (h *PiopiyHandler) Events(c *gin.Context) {
	body := jsonBody(c)
	ev := telephony.ParseEvent(body)

	log := h.log.WithFields(logrus.Fields{"event": ev.Type, "call_id": ev.CallID, "phone": ev.Phone})
	log.Info("call event")

	if ev.Type == "" {
		c.JSON(http.StatusOK, gin.H{"status": "received", "note": "unknown event"})
		return
	}
	if h.events == nil {
		c.JSON(http.StatusOK, gin.H{"status": "received"})
		return
	}

	out, err := h.events.HandleEvent(c.Request.Context(), services.CallEvent{
		CallID:   ev.CallID,
		Type:     ev.Type,
		Phone:    ev.Phone,
		Duration: ev.Duration,
	})
	if err != nil {
		log.WithError(err).Error("call event handling failed")
		writeError(c, err)
		return
	}
	if out.Duplicate {
		log.Debug("duplicate call event ignored")
	}
	c.JSON(http.StatusOK, gin.H{"status": "received"})
}

// HangupCall arms the pending-hangup flag picked up by the next inbound webhook.
func (h *PiopiyHandler) HangupCall(c *gin.Context) {
	const op = "PiopiyHandler.HangupCall"

	body := jsonBody(c)
	reason := str(body, "reason")
	if reason == "" {
		reason = "user_request"
	}

	if h.flags == nil {
		writeError(c, utils.E(utils.CodeUnavailable, op, "hangup flag store unavailable", nil))
		return
	}
	if err := h.flags.SetHangup(c.Request.Context(), pendingHangupTTL); err != nil {
		writeError(c, utils.E(utils.CodeUnavailable, op, "failed to store hangup request", err))
		return
	}

	h.log.WithFields(logrus.Fields{"reason": reason, "call_id": str(body, "call_id")}).Info("call hangup requested")
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Call hangup initiated",
		"action":  telephony.HangupResponse{Hangup: true},
	})
}
