// Package constants defines application-wide constants for timeouts, limits, and durations.
package constants

import "time"

// Call lifecycle constants
const (
	// RingTimeout is the bounded ring period; a call not accepted, rejected
	// or cancelled within it is marked missed
	RingTimeout = 45 * time.Second

	// MaxCallDuration is the maximum allowed call duration (24 hours)
	MaxCallDuration = 24 * time.Hour
)

// WebSocket constants
const (
	// PresenceIdleTimeout closes a presence channel that has sent nothing
	// (not even a keep-alive) for this long
	PresenceIdleTimeout = 60 * time.Second

	// KeepAliveInterval is the server-side ping cadence; clients are expected
	// to ping at the same interval
	KeepAliveInterval = 30 * time.Second

	// WriteDeadline bounds a single WebSocket write
	WriteDeadline = 10 * time.Second

	// ReadBufferSize and WriteBufferSize size the WebSocket IO buffers
	ReadBufferSize  = 1024
	WriteBufferSize = 1024

	// SendQueueSize is the per-client outbound message buffer; a client that
	// falls this far behind is dropped
	SendQueueSize = 256
)

// JWT-related constants
const (
	// AccessTokenExpiry is the default access token lifetime
	AccessTokenExpiry = 15 * time.Minute

	// RefreshTokenExpiry is the default refresh token lifetime
	RefreshTokenExpiry = 30 * 24 * time.Hour
)

// Database connection constants
const (
	// MaxConnLifetime is the maximum lifetime of a database connection
	MaxConnLifetime = 1 * time.Hour

	// MaxConnIdleTime is the maximum idle time for a database connection
	MaxConnIdleTime = 30 * time.Minute

	// HealthCheckPeriod is the interval between database health checks
	HealthCheckPeriod = 1 * time.Minute
)

// Presence mirror constants
const (
	// PresenceTTL is how long a Redis presence key lives without refresh
	PresenceTTL = 5 * time.Minute
)

// Pagination constants
const (
	// DefaultPageSize is the default number of items per page
	DefaultPageSize = 20

	// MaxPageSize is the maximum number of items per page
	MaxPageSize = 100
)

// Push notification constants
const (
	// PushTokenExpiry is the validity period for push notification tokens
	PushTokenExpiry = 30 * 24 * time.Hour
)
