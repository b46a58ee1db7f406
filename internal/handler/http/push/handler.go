package push

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"voxlink-backend/pkg/logger"
	"voxlink-backend/pkg/response"
)

// TokenStore persists device push tokens
type TokenStore interface {
	SaveToken(ctx context.Context, userID uuid.UUID, token, platform string) error
	DeleteToken(ctx context.Context, userID uuid.UUID, token string) error
}

// Handler handles push token registration requests
type Handler struct {
	tokens TokenStore
}

// NewHandler creates a new push token handler
func NewHandler(tokens TokenStore) *Handler {
	return &Handler{tokens: tokens}
}

func currentUser(c *gin.Context) (uuid.UUID, bool) {
	userIDVal, exists := c.Get("user_id")
	if !exists {
		response.Unauthorized(c, "Not authenticated")
		return uuid.Nil, false
	}

	userID, ok := userIDVal.(uuid.UUID)
	if !ok {
		response.InternalError(c, "Invalid user ID")
		return uuid.Nil, false
	}
	return userID, true
}

// RegisterTokenRequest represents a device token registration
type RegisterTokenRequest struct {
	Token    string `json:"token" binding:"required"`
	Platform string `json:"platform" binding:"required,oneof=fcm apns"`
}

// RegisterToken stores a device token for the authenticated user so call
// alerts can reach the device while no notification channel is open
// POST /v1/push/tokens
func (h *Handler) RegisterToken(c *gin.Context) {
	var req RegisterTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	userID, ok := currentUser(c)
	if !ok {
		return
	}

	if err := h.tokens.SaveToken(c.Request.Context(), userID, req.Token, req.Platform); err != nil {
		logger.Log.Error("failed to register push token",
			zap.String("user_id", userID.String()),
			zap.Error(err))
		response.InternalError(c, "Failed to register token")
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "Token registered"})
}

// UnregisterTokenRequest represents a device token removal
type UnregisterTokenRequest struct {
	Token string `json:"token" binding:"required"`
}

// UnregisterToken removes a device token (logout or push opt-out)
// DELETE /v1/push/tokens
func (h *Handler) UnregisterToken(c *gin.Context) {
	var req UnregisterTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	userID, ok := currentUser(c)
	if !ok {
		return
	}

	if err := h.tokens.DeleteToken(c.Request.Context(), userID, req.Token); err != nil {
		logger.Log.Error("failed to unregister push token",
			zap.String("user_id", userID.String()),
			zap.Error(err))
		response.InternalError(c, "Failed to unregister token")
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "Token unregistered"})
}
