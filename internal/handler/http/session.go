package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"peacepad-signaling/internal/domain"
	"peacepad-signaling/internal/service"
)

// SessionHandler serves the session directory endpoints.
type SessionHandler struct {
	sessionService *service.SessionService
}

func NewSessionHandler(sessionService *service.SessionService) *SessionHandler {
	if sessionService == nil {
		panic("SessionService cannot be nil for SessionHandler")
	}
	return &SessionHandler{sessionService: sessionService}
}

type CreateSessionRequest struct {
	CallKind domain.CallKind `json:"callKind" binding:"required"`
}

// CreateSession handles POST /api/sessions.
func (h *SessionHandler) CreateSession(c *gin.Context) {
	// 1. the authenticated participant hosts the session
	hostID, ok := participant(c)
	if !ok {
		return
	}

	// 2. bind the call kind
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	// 3. allocate a code and persist
	session, err := h.sessionService.Create(c.Request.Context(), hostID, req.CallKind)
	if err != nil {
		HandleServiceError(c, err)
		return
	}

	// 4. success
	logrus.WithFields(logrus.Fields{"host_id": hostID, "session_code": session.SessionCode}).Info("Handler.CreateSession: Session created")
	SuccessResponse(c, http.StatusCreated, session)
}

// GetSession handles GET /api/sessions/:code. An ended session is 410 Gone.
func (h *SessionHandler) GetSession(c *gin.Context) {
	if _, ok := participant(c); !ok {
		return
	}
	session, err := h.sessionService.Lookup(c.Request.Context(), c.Param("code"))
	// an ended session still reports its details
	if errors.Is(err, service.ErrSessionInactive) {
		c.JSON(http.StatusGone, gin.H{"error": err.Error(), "session": session})
		return
	}
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, session)
}

// EndSession handles POST /api/sessions/:code/end.
func (h *SessionHandler) EndSession(c *gin.Context) {
	by, ok := participant(c)
	if !ok {
		return
	}
	// host check, persist, then session-ended to live members
	session, err := h.sessionService.End(c.Request.Context(), c.Param("code"), by)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, session)
}
