package websocket

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"peacepad-signaling/internal/hub"
	"peacepad-signaling/internal/middleware"
)

// WebSocketHandler upgrades authenticated requests into signaling channels.
type WebSocketHandler struct {
	upgrader   websocket.Upgrader
	hub        *hub.Hub
	sendBuffer int
}

// NewWebSocketHandler creates a handler. allowedOrigins lists the browser
// origins accepted on upgrade; "*" accepts any. Requests without an Origin
// header (native clients) are always accepted.
func NewWebSocketHandler(h *hub.Hub, allowedOrigins []string, sendBuffer int) *WebSocketHandler {
	if h == nil {
		panic("Hub cannot be nil for WebSocketHandler")
	}
	if sendBuffer <= 0 {
		sendBuffer = hub.DefaultSendBuffer
	}

	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}

	return &WebSocketHandler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowed["*"] || allowed[origin]
			},
		},
		hub:        h,
		sendBuffer: sendBuffer,
	}
}

// HandleConnection handles GET /ws. The participant id comes from the
// verified token; a newer connection for the same id replaces the old one.
func (h *WebSocketHandler) HandleConnection(c *gin.Context) {
	// 1. identity comes from the auth middleware
	participantID, ok := middleware.ParticipantID(c)
	if !ok {
		logrus.Warn("WS Handler: participant id not found in context")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Participant not authenticated"})
		return
	}
	logCtx := logrus.WithField("participant_id", participantID)

	// 2. upgrade; the origin check runs here
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		logCtx.WithError(err).Warn("WS Handler: failed to upgrade connection")
		return
	}
	logCtx.Info("WS Handler: connection upgraded")

	// 3. register with the hub and start the pumps
	hub.NewClient(h.hub, conn, participantID, h.sendBuffer).Run()
}
