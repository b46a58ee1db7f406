package push

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"voxlink-backend/pkg/env"
	"voxlink-backend/pkg/logger"
)

// Platform names tokens are registered under
const (
	PlatformFCM  = "fcm"
	PlatformAPNs = "apns"
	PlatformMock = "mock"
)

// NewProvidersFromEnv builds the platform-to-provider map from the
// PUSH_PROVIDERS environment variable (comma-separated: fcm,apns,mock).
// A platform that fails to initialize is skipped; offline alerting is
// best-effort and must not block startup.
func NewProvidersFromEnv() map[string]Provider {
	providers := make(map[string]Provider)

	configured := env.GetString("PUSH_PROVIDERS", "mock")
	for _, name := range strings.Split(configured, ",") {
		name = strings.TrimSpace(name)

		var (
			provider Provider
			err      error
		)
		switch name {
		case PlatformFCM:
			provider, err = newFCMProviderFromEnv()
		case PlatformAPNs:
			provider, err = newAPNsProviderFromEnv()
		case PlatformMock:
			provider = &MockProvider{}
		case "":
			continue
		default:
			logger.Warn("unknown push provider, skipping",
				zap.String("provider", name))
			continue
		}

		if err != nil {
			logger.Warn("push provider failed to initialize, skipping",
				zap.String("provider", name),
				zap.Error(err))
			continue
		}

		key := name
		if name == PlatformMock {
			// Mock answers for both platforms in development
			providers[PlatformFCM] = provider
			providers[PlatformAPNs] = provider
			continue
		}
		providers[key] = provider
	}

	return providers
}

// newFCMProviderFromEnv creates a new FCM provider from environment configuration
func newFCMProviderFromEnv() (Provider, error) {
	projectID := env.GetString("FCM_PROJECT_ID", "")
	credentialsPath := env.GetString("FCM_CREDENTIALS_PATH", "")

	if projectID == "" {
		return nil, fmt.Errorf("FCM_PROJECT_ID environment variable is required for FCM provider")
	}

	return NewFCMProvider(&FCMConfig{
		ProjectID:       projectID,
		CredentialsPath: credentialsPath,
	})
}

// newAPNsProviderFromEnv creates a new APNs provider from environment configuration
func newAPNsProviderFromEnv() (Provider, error) {
	bundleID := env.GetString("APNS_BUNDLE_ID", "")
	keyPath := env.GetString("APNS_KEY_PATH", "")
	keyID := env.GetString("APNS_KEY_ID", "")
	teamID := env.GetString("APNS_TEAM_ID", "")
	certificatePath := env.GetString("APNS_CERT_PATH", "")
	certificatePassword := env.GetString("APNS_CERT_PASSWORD", "")
	production := env.GetBool("APNS_PRODUCTION", false)

	if bundleID == "" {
		return nil, fmt.Errorf("APNS_BUNDLE_ID environment variable is required for APNs provider")
	}

	// Prefer token-based authentication
	if keyPath != "" && keyID != "" && teamID != "" {
		return NewAPNsProvider(&APNsConfig{
			BundleID:   bundleID,
			KeyPath:    keyPath,
			KeyID:      keyID,
			TeamID:     teamID,
			Production: production,
		})
	}

	if certificatePath != "" {
		return NewAPNsProvider(&APNsConfig{
			BundleID:            bundleID,
			CertificatePath:     certificatePath,
			CertificatePassword: certificatePassword,
			Production:          production,
		})
	}

	return nil, fmt.Errorf("either token-based (APNS_KEY_PATH, APNS_KEY_ID, APNS_TEAM_ID) or certificate-based (APNS_CERT_PATH) authentication must be provided for APNs provider")
}
