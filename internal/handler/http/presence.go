package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"peacepad-signaling/internal/repository"
)

// PresenceHandler lists participants with a live signaling channel.
type PresenceHandler struct {
	presence repository.PresenceRepository
}

func NewPresenceHandler(presence repository.PresenceRepository) *PresenceHandler {
	if presence == nil {
		panic("PresenceRepository cannot be nil for PresenceHandler")
	}
	return &PresenceHandler{presence: presence}
}

// ListOnline handles GET /api/presence.
func (h *PresenceHandler) ListOnline(c *gin.Context) {
	if _, ok := participant(c); !ok {
		return
	}
	online, err := h.presence.ListOnline(c.Request.Context())
	if err != nil {
		logrus.WithError(err).Error("Handler.ListOnline: Failed to read presence")
		ErrorResponse(c, http.StatusServiceUnavailable, "Presence is unavailable")
		return
	}
	// always an array in JSON
	if online == nil {
		online = []string{}
	}
	SuccessResponse(c, http.StatusOK, gin.H{"online": online})
}
