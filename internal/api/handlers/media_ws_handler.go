package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rajmehta89/call-agent-backend/internal/cache"
	"github.com/rajmehta89/call-agent-backend/internal/models"
	"github.com/rajmehta89/call-agent-backend/internal/session"
	"github.com/rajmehta89/call-agent-backend/internal/telephony"
	"github.com/sirupsen/logrus"
)

const (
	wsWriteWait = 10 * time.Second
	wsReadWait  = 60 * time.Second
)

// MediaHandler accepts the PBX media stream and runs one call session per connection.
type MediaHandler struct {
	deps     session.Deps
	meta     cache.Cache // optional
	log      logrus.FieldLogger
	upgrader websocket.Upgrader
}

func NewMediaHandler(deps session.Deps, meta cache.Cache, log logrus.FieldLogger) *MediaHandler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if deps.Log == nil {
		deps.Log = log
	}
	return &MediaHandler{
		deps: deps,
		meta: meta,
		log:  log,
		upgrader: websocket.Upgrader{
			// the PBX is not a browser and sends no Origin worth checking
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// wsConn serializes writes; gorilla connections allow one concurrent writer.
type wsConn struct {
	c  *websocket.Conn
	mu sync.Mutex
}

func (w *wsConn) writeText(b []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.c.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return w.c.WriteMessage(websocket.TextMessage, b)
}

func (w *wsConn) Send(frame []byte) error { return w.writeText(frame) }

func (w *wsConn) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.c.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "call ended"),
		time.Now().Add(time.Second))
	return w.c.Close()
}

// Stream serves GET /ws and GET /ws/:session_id.
func (h *MediaHandler) Stream(c *gin.Context) {
	meta, fromProvider, direction := h.resolveMeta(c)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// upgrade already wrote response in most cases
		h.log.WithError(err).Warn("media websocket upgrade failed")
		return
	}

	wc := &wsConn{c: conn}
	s := session.New(meta, fromProvider, direction, wc, h.deps)
	s.Start(context.Background())

	_ = conn.SetReadDeadline(time.Now().Add(wsReadWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsReadWait))
	})

	reason := "remote_close"
	for {
		mt, data, rerr := conn.ReadMessage()
		if rerr != nil {
			if !websocket.IsCloseError(rerr, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				reason = "connection_error"
			}
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsReadWait))

		switch mt {
		case websocket.BinaryMessage:
			s.HandleAudio(data)
		case websocket.TextMessage:
			s.HandleText(data)
		}
	}
	s.Close(reason)
}

// resolveMeta reads call context from the path and query. Outbound calls placed by make-call
// left their context in the cache under the session id.
func (h *MediaHandler) resolveMeta(c *gin.Context) (telephony.CallMeta, bool, models.CallDirection) {
	meta := telephony.MetaFromQuery(c.Request.URL.Query())
	if id := c.Param("session_id"); id != "" {
		meta.SessionID = id
	}
	direction := models.DirectionInbound

	if meta.SessionID != "" {
		cached, hit, err := cache.Get[telephony.CallMeta](c.Request.Context(), h.meta, cache.CallMetaKey(meta.SessionID))
		if err != nil {
			h.log.WithError(err).WithField("session_id", meta.SessionID).Warn("call context lookup failed")
		}
		if hit {
			meta = cached.Merge(meta)
			direction = models.DirectionOutbound
		}
	}

	if meta.SessionID == "" {
		meta.SessionID = uuid.NewString()
		return meta, false, direction
	}
	return meta, true, direction
}
