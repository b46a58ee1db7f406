package jwt

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-at-least-32-chars-long"

func TestGenerateAndValidateToken(t *testing.T) {
	manager := NewJWTManager(testSecret, 15*time.Minute)
	userID := uuid.New()

	tokenString, err := manager.GenerateAccessToken(userID, "alice", "user")
	require.NoError(t, err)
	require.NotEmpty(t, tokenString)

	claims, err := manager.ValidateToken(tokenString)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, "user", claims.Role)
	assert.Contains(t, claims.Audience, Audience)
}

func TestValidateTokenWrongSecret(t *testing.T) {
	manager := NewJWTManager(testSecret, 15*time.Minute)
	other := NewJWTManager("another-secret-key-also-32-chars-xx", 15*time.Minute)

	tokenString, err := manager.GenerateAccessToken(uuid.New(), "bob", "user")
	require.NoError(t, err)

	_, err = other.ValidateToken(tokenString)
	assert.Error(t, err)
}

func TestValidateExpiredToken(t *testing.T) {
	manager := NewJWTManager(testSecret, -1*time.Minute)

	tokenString, err := manager.GenerateAccessToken(uuid.New(), "carol", "user")
	require.NoError(t, err)

	_, err = manager.ValidateToken(tokenString)
	assert.Error(t, err)
}

func TestValidateGarbageToken(t *testing.T) {
	manager := NewJWTManager(testSecret, 15*time.Minute)

	_, err := manager.ValidateToken("not-a-token")
	assert.Error(t, err)
}

func TestExtractUserID(t *testing.T) {
	manager := NewJWTManager(testSecret, 15*time.Minute)
	userID := uuid.New()

	tokenString, err := manager.GenerateAccessToken(userID, "dave", "user")
	require.NoError(t, err)

	extracted, err := manager.ExtractUserID(tokenString)
	require.NoError(t, err)
	assert.Equal(t, userID, extracted)
}
