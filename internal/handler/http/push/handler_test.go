package push

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockTokenStore struct {
	mock.Mock
}

func (m *MockTokenStore) SaveToken(ctx context.Context, userID uuid.UUID, token, platform string) error {
	args := m.Called(ctx, userID, token, platform)
	return args.Error(0)
}

func (m *MockTokenStore) DeleteToken(ctx context.Context, userID uuid.UUID, token string) error {
	args := m.Called(ctx, userID, token)
	return args.Error(0)
}

func newTestRouter(h *Handler, userID uuid.UUID) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set("user_id", userID)
	})
	router.POST("/v1/push/tokens", h.RegisterToken)
	router.DELETE("/v1/push/tokens", h.UnregisterToken)
	return router
}

func TestRegisterToken(t *testing.T) {
	store := new(MockTokenStore)
	userID := uuid.New()
	router := newTestRouter(NewHandler(store), userID)

	store.On("SaveToken", mock.Anything, userID, "device-token-1", "fcm").Return(nil)

	body := `{"token":"device-token-1","platform":"fcm"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/push/tokens", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	store.AssertExpectations(t)
}

func TestRegisterToken_RejectsUnknownPlatform(t *testing.T) {
	store := new(MockTokenStore)
	router := newTestRouter(NewHandler(store), uuid.New())

	body := `{"token":"device-token-1","platform":"sms"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/push/tokens", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	store.AssertNotCalled(t, "SaveToken", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestUnregisterToken(t *testing.T) {
	store := new(MockTokenStore)
	userID := uuid.New()
	router := newTestRouter(NewHandler(store), userID)

	store.On("DeleteToken", mock.Anything, userID, "device-token-1").Return(nil)

	body := `{"token":"device-token-1"}`
	req := httptest.NewRequest(http.MethodDelete, "/v1/push/tokens", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	store.AssertExpectations(t)
}
