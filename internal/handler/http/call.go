package http

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"peacepad-signaling/internal/domain"
	"peacepad-signaling/internal/service"
)

// CallHandler serves the direct call lifecycle endpoints.
type CallHandler struct {
	callService *service.CallService
}

func NewCallHandler(callService *service.CallService) *CallHandler {
	if callService == nil {
		panic("CallService cannot be nil for CallHandler")
	}
	return &CallHandler{callService: callService}
}

type InitiateCallRequest struct {
	ReceiverID    string          `json:"receiverId" binding:"required"`
	CallKind      domain.CallKind `json:"callKind" binding:"required"`
	PartnershipID *string         `json:"partnershipId"`
}

type DeclineCallRequest struct {
	Reason string `json:"reason"`
}

type CallHistoryResponse struct {
	Filter domain.HistoryFilter `json:"filter"`
	Calls  []domain.Call        `json:"calls"`
}

// InitiateCall handles POST /api/calls.
func (h *CallHandler) InitiateCall(c *gin.Context) {
	// 1. the caller is the authenticated participant
	callerID, ok := participant(c)
	if !ok {
		return
	}

	// 2. bind receiver and kind
	var req InitiateCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	// 3. create the ringing call; the service notifies the receiver
	call, err := h.callService.Initiate(c.Request.Context(), callerID, req.ReceiverID, req.CallKind, req.PartnershipID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusCreated, call)
}

// AcceptCall handles POST /api/calls/:id/accept.
func (h *CallHandler) AcceptCall(c *gin.Context) {
	by, ok := participant(c)
	if !ok {
		return
	}
	call, err := h.callService.Accept(c.Request.Context(), c.Param("id"), by)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, call)
}

// DeclineCall handles POST /api/calls/:id/decline. The body is optional.
func (h *CallHandler) DeclineCall(c *gin.Context) {
	by, ok := participant(c)
	if !ok {
		return
	}
	// a missing body means no reason
	var req DeclineCallRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		ErrorResponse(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	call, err := h.callService.Decline(c.Request.Context(), c.Param("id"), by, req.Reason)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, call)
}

// EndCall handles POST /api/calls/:id/end.
func (h *CallHandler) EndCall(c *gin.Context) {
	by, ok := participant(c)
	if !ok {
		return
	}
	call, err := h.callService.End(c.Request.Context(), c.Param("id"), by)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, call)
}

// ListCalls handles GET /api/calls?filter=&limit=.
func (h *CallHandler) ListCalls(c *gin.Context) {
	participantID, ok := participant(c)
	if !ok {
		return
	}
	// 1. parse filter and limit; the service validates the filter
	filter := domain.HistoryFilter(c.DefaultQuery("filter", string(domain.HistoryAll)))
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			ErrorResponse(c, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	// 2. query
	calls, err := h.callService.History(c.Request.Context(), participantID, filter, limit)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, CallHistoryResponse{Filter: filter, Calls: calls})
}
