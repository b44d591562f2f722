package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"peacepad-signaling/internal/middleware"
)

func ErrorResponse(c *gin.Context, code int, message string) {
	c.JSON(code, gin.H{"error": message})
}

func SuccessResponse(c *gin.Context, code int, data interface{}) {
	c.JSON(code, data)
}

// participant returns the authenticated participant id, writing a 401 when
// the auth middleware did not run.
func participant(c *gin.Context) (string, bool) {
	id, ok := middleware.ParticipantID(c)
	if !ok {
		ErrorResponse(c, http.StatusUnauthorized, "Participant not authenticated")
		return "", false
	}
	return id, true
}
