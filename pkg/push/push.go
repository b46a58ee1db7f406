package push

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"voxlink-backend/internal/domain"
	"voxlink-backend/pkg/logger"
	"voxlink-backend/pkg/metrics"
)

// Provider defines interface for sending push notifications
type Provider interface {
	Send(ctx context.Context, notification *Notification, tokens []string) (*SendResult, error)
}

// SendResult contains the result of a push notification send operation
type SendResult struct {
	SuccessCount  int
	FailureCount  int
	InvalidTokens []string
	Errors        []error
}

// Notification represents a push notification
type Notification struct {
	Title    string            `json:"title"`
	Body     string            `json:"body"`
	Data     map[string]string `json:"data,omitempty"`
	Priority string            `json:"priority,omitempty"` // high, normal, low
	Sound    string            `json:"sound,omitempty"`
	Badge    *int              `json:"badge,omitempty"`
	Category string            `json:"category,omitempty"`
}

// TokenSource retrieves a user's registered device tokens, keyed by token
// with the platform name (fcm, apns) as value
type TokenSource interface {
	GetTokens(ctx context.Context, userID uuid.UUID) (map[string]string, error)
	DeleteToken(ctx context.Context, userID uuid.UUID, token string) error
}

// Service fans a notification out to a user's devices, routing each token to
// the provider for its platform. Used only when the user has no open
// notification channel; delivery is best-effort.
type Service struct {
	providers map[string]Provider
	tokens    TokenSource
	metrics   *metrics.Metrics
}

// NewService creates a new push notification service
func NewService(providers map[string]Provider, tokens TokenSource, m *metrics.Metrics) *Service {
	return &Service{
		providers: providers,
		tokens:    tokens,
		metrics:   m,
	}
}

// NotifyIncomingCall alerts an offline receiver about an incoming call
func (s *Service) NotifyIncomingCall(ctx context.Context, userID uuid.UUID, call *domain.Call, callerUsername string) error {
	notification := &Notification{
		Title:    "Incoming Call",
		Body:     fmt.Sprintf("%s is calling you", callerUsername),
		Priority: "high",
		Sound:    "default",
		Category: "INCOMING_CALL",
		Data: map[string]string{
			"type":            "call",
			"call_id":         call.CallID.String(),
			"room_id":         call.RoomID,
			"caller":          call.CallerID.String(),
			"caller_username": callerUsername,
			"call_type":       string(call.CallType),
			"timestamp":       fmt.Sprintf("%d", call.InitiatedAt.Unix()),
		},
	}

	return s.send(ctx, userID, notification)
}

// NotifyMissedCall tells a receiver they missed a call
func (s *Service) NotifyMissedCall(ctx context.Context, userID uuid.UUID, call *domain.Call) error {
	notification := &Notification{
		Title:    "Missed Call",
		Body:     fmt.Sprintf("You missed a call from %s", call.CallerName),
		Priority: "normal",
		Sound:    "default",
		Data: map[string]string{
			"type":      "missed_call",
			"call_id":   call.CallID.String(),
			"caller":    call.CallerID.String(),
			"call_type": string(call.CallType),
		},
	}

	return s.send(ctx, userID, notification)
}

// send routes the user's tokens to their platform providers
func (s *Service) send(ctx context.Context, userID uuid.UUID, notification *Notification) error {
	tokens, err := s.tokens.GetTokens(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load push tokens: %w", err)
	}

	if len(tokens) == 0 {
		logger.Info("no push tokens registered",
			zap.String("user_id", userID.String()))
		return nil
	}

	byPlatform := make(map[string][]string)
	for token, platform := range tokens {
		byPlatform[platform] = append(byPlatform[platform], token)
	}

	for platform, platformTokens := range byPlatform {
		provider, ok := s.providers[platform]
		if !ok {
			logger.Warn("no provider configured for platform",
				zap.String("platform", platform),
				zap.Int("token_count", len(platformTokens)))
			continue
		}

		result, err := provider.Send(ctx, notification, platformTokens)
		if err != nil {
			s.metrics.RecordPushFailed(platform)
			logger.Error("push send failed",
				zap.String("platform", platform),
				zap.String("user_id", userID.String()),
				zap.Error(err))
			continue
		}

		if result.SuccessCount > 0 {
			s.metrics.RecordPushSent(platform)
		}
		if result.FailureCount > 0 {
			s.metrics.RecordPushFailed(platform)
		}

		logger.Info("push notification sent",
			zap.String("platform", platform),
			zap.String("user_id", userID.String()),
			zap.Int("success_count", result.SuccessCount),
			zap.Int("failure_count", result.FailureCount),
			zap.Int("invalid_tokens", len(result.InvalidTokens)))

		// Forget tokens the provider reported stale
		for _, stale := range result.InvalidTokens {
			if err := s.tokens.DeleteToken(ctx, userID, stale); err != nil {
				logger.Warn("failed to delete stale push token",
					zap.String("user_id", userID.String()),
					zap.Error(err))
			}
		}
	}

	return nil
}

// MockProvider is a mock implementation for development/testing
type MockProvider struct {
	NotificationsSent int
}

// Send implements Provider interface
func (m *MockProvider) Send(ctx context.Context, notification *Notification, tokens []string) (*SendResult, error) {
	m.NotificationsSent++

	logger.Debug("MockProvider: sending notification",
		zap.String("title", notification.Title),
		zap.String("body", notification.Body),
		zap.Int("token_count", len(tokens)))

	return &SendResult{
		SuccessCount: len(tokens),
	}, nil
}

