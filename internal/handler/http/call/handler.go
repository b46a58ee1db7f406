package call

import (
	"encoding/base64"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"voxlink-backend/internal/domain"
	callsvc "voxlink-backend/internal/service/call"
	apperrors "voxlink-backend/pkg/errors"
	"voxlink-backend/pkg/response"
)

// SignalLog reads the signaling audit trail of a call
type SignalLog interface {
	GetByCall(callID uuid.UUID, limit int, pageState []byte) ([]*domain.CallSignal, []byte, error)
}

// Handler handles call lifecycle HTTP requests
type Handler struct {
	callService *callsvc.Service
	signalLog   SignalLog
}

// NewHandler creates a new call handler. signalLog may be nil when the audit
// store is down; the signals endpoint then reports unavailable.
func NewHandler(callService *callsvc.Service, signalLog SignalLog) *Handler {
	return &Handler{
		callService: callService,
		signalLog:   signalLog,
	}
}

// InitiateCallRequest represents call initiation request
type InitiateCallRequest struct {
	ReceiverID string `json:"receiver_id" binding:"required,uuid"`
	CallType   string `json:"call_type" binding:"required,oneof=audio video"`
}

// currentUser pulls the authenticated user from the Gin context
func currentUser(c *gin.Context) (uuid.UUID, string, bool) {
	userIDVal, exists := c.Get("user_id")
	if !exists {
		response.Unauthorized(c, "Not authenticated")
		return uuid.Nil, "", false
	}

	userID, ok := userIDVal.(uuid.UUID)
	if !ok {
		response.InternalError(c, "Invalid user ID")
		return uuid.Nil, "", false
	}

	username, _ := c.Get("username")
	name, _ := username.(string)
	return userID, name, true
}

// InitiateCall starts a new call
// POST /v1/calls
func (h *Handler) InitiateCall(c *gin.Context) {
	var req InitiateCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	callerID, callerUsername, ok := currentUser(c)
	if !ok {
		return
	}

	receiverID, err := uuid.Parse(req.ReceiverID)
	if err != nil {
		response.ValidationError(c, "Invalid receiver ID")
		return
	}

	call, err := h.callService.Initiate(c.Request.Context(), callerID, callerUsername, receiverID, domain.CallType(req.CallType))
	if err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, call)
}

// transition applies one lifecycle event endpoint
func (h *Handler) transition(c *gin.Context, apply func(c *gin.Context, callID, userID uuid.UUID) (*domain.Call, error)) {
	callID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "Invalid call ID")
		return
	}

	userID, _, ok := currentUser(c)
	if !ok {
		return
	}

	call, err := apply(c, callID, userID)
	if err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, call)
}

// MarkRinging records that the receiver's device is ringing
// POST /v1/calls/:id/ringing
func (h *Handler) MarkRinging(c *gin.Context) {
	h.transition(c, func(c *gin.Context, callID, userID uuid.UUID) (*domain.Call, error) {
		return h.callService.MarkRinging(c.Request.Context(), callID, userID)
	})
}

// AcceptCall accepts an incoming call
// POST /v1/calls/:id/accept
func (h *Handler) AcceptCall(c *gin.Context) {
	h.transition(c, func(c *gin.Context, callID, userID uuid.UUID) (*domain.Call, error) {
		return h.callService.Accept(c.Request.Context(), callID, userID)
	})
}

// RejectCall rejects an incoming call
// POST /v1/calls/:id/reject
func (h *Handler) RejectCall(c *gin.Context) {
	h.transition(c, func(c *gin.Context, callID, userID uuid.UUID) (*domain.Call, error) {
		return h.callService.Reject(c.Request.Context(), callID, userID)
	})
}

// CancelCall cancels an outgoing call before it is answered
// POST /v1/calls/:id/cancel
func (h *Handler) CancelCall(c *gin.Context) {
	h.transition(c, func(c *gin.Context, callID, userID uuid.UUID) (*domain.Call, error) {
		return h.callService.Cancel(c.Request.Context(), callID, userID)
	})
}

// EndCall hangs up an accepted call
// POST /v1/calls/:id/end
func (h *Handler) EndCall(c *gin.Context) {
	h.transition(c, func(c *gin.Context, callID, userID uuid.UUID) (*domain.Call, error) {
		return h.callService.End(c.Request.Context(), callID, userID)
	})
}

// GetCall retrieves a single call
// GET /v1/calls/:id
func (h *Handler) GetCall(c *gin.Context) {
	callID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "Invalid call ID")
		return
	}

	userID, _, ok := currentUser(c)
	if !ok {
		return
	}

	call, err := h.callService.Get(c.Request.Context(), callID, userID)
	if err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, call)
}

// GetCallSignals returns the relayed-signal audit trail of a call.
// Participants only; cursor pagination via the page_state token.
// GET /v1/calls/:id/signals
func (h *Handler) GetCallSignals(c *gin.Context) {
	callID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "Invalid call ID")
		return
	}

	userID, _, ok := currentUser(c)
	if !ok {
		return
	}

	if h.signalLog == nil {
		response.AppError(c, apperrors.ServiceUnavailableError("signal log unavailable"))
		return
	}

	// The participant check lives in the service
	if _, err := h.callService.Get(c.Request.Context(), callID, userID); err != nil {
		response.AppError(c, err)
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var pageState []byte
	if token := c.Query("page_state"); token != "" {
		pageState, err = base64.URLEncoding.DecodeString(token)
		if err != nil {
			response.ValidationError(c, "Invalid page state")
			return
		}
	}

	signals, nextPageState, err := h.signalLog.GetByCall(callID, limit, pageState)
	if err != nil {
		response.AppError(c, err)
		return
	}

	if signals == nil {
		signals = []*domain.CallSignal{}
	}
	payload := gin.H{
		"signals": signals,
		"count":   len(signals),
	}
	if len(nextPageState) > 0 {
		payload["next_page_state"] = base64.URLEncoding.EncodeToString(nextPageState)
	}
	response.Success(c, http.StatusOK, payload)
}

func (h *Handler) list(c *gin.Context, filter domain.CallListFilter) {
	userID, _, ok := currentUser(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))

	calls, err := h.callService.List(c.Request.Context(), userID, filter, limit)
	if err != nil {
		response.AppError(c, err)
		return
	}

	if calls == nil {
		calls = []*domain.Call{}
	}
	response.Success(c, http.StatusOK, gin.H{
		"calls": calls,
		"count": len(calls),
	})
}

// ListActiveCalls returns the user's in-flight calls
// GET /v1/calls/active
func (h *Handler) ListActiveCalls(c *gin.Context) {
	h.list(c, domain.CallFilterActive)
}

// ListCallHistory returns the user's settled calls, newest first
// GET /v1/calls/history
func (h *Handler) ListCallHistory(c *gin.Context) {
	h.list(c, domain.CallFilterHistory)
}

// ListMissedCalls returns calls the user never answered
// GET /v1/calls/missed
func (h *Handler) ListMissedCalls(c *gin.Context) {
	h.list(c, domain.CallFilterMissed)
}
