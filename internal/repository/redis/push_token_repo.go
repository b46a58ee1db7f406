package redis

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"voxlink-backend/pkg/constants"
)

// Device platforms a push token can belong to
const (
	PlatformFCM  = "fcm"
	PlatformAPNs = "apns"
)

// PushTokenRepository stores device push tokens in Redis, one hash per user
// keyed by token with the platform as value. Tokens expire if the device
// never re-registers.
type PushTokenRepository struct {
	client *redis.Client
}

// NewPushTokenRepository creates a new PushTokenRepository
func NewPushTokenRepository(client *redis.Client) *PushTokenRepository {
	return &PushTokenRepository{client: client}
}

// SaveToken registers a device token for a user
func (r *PushTokenRepository) SaveToken(ctx context.Context, userID uuid.UUID, token, platform string) error {
	key := fmt.Sprintf("push:tokens:%s", userID)

	err := r.client.HSet(ctx, key, token, platform).Err()
	if err != nil {
		return fmt.Errorf("failed to save push token: %w", err)
	}

	err = r.client.Expire(ctx, key, constants.PushTokenExpiry).Err()
	if err != nil {
		return fmt.Errorf("failed to set push token expiry: %w", err)
	}

	return nil
}

// DeleteToken removes a device token (logout, or provider reported it stale)
func (r *PushTokenRepository) DeleteToken(ctx context.Context, userID uuid.UUID, token string) error {
	key := fmt.Sprintf("push:tokens:%s", userID)

	err := r.client.HDel(ctx, key, token).Err()
	if err != nil {
		return fmt.Errorf("failed to delete push token: %w", err)
	}

	return nil
}

// GetTokens retrieves all device tokens for a user, keyed by token with
// platform as value
func (r *PushTokenRepository) GetTokens(ctx context.Context, userID uuid.UUID) (map[string]string, error) {
	key := fmt.Sprintf("push:tokens:%s", userID)

	tokens, err := r.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get push tokens: %w", err)
	}

	return tokens, nil
}
