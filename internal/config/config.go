package config

import (
	"time"

	"voxlink-backend/pkg/constants"
	"voxlink-backend/pkg/env"
)

// Config holds service-level settings read from the environment.
// Database and Redis connections configure themselves from the environment
// in pkg/database.
type Config struct {
	Env         string
	ServiceName string
	Port        string
	JWTSecret   string
}

// Load reads configuration from environment variables (or Docker secrets
// via the _FILE convention for the JWT secret)
func Load() *Config {
	return &Config{
		Env:         env.GetString("ENV", "development"),
		ServiceName: env.GetString("SERVICE_NAME", "call-service"),
		Port:        env.GetString("PORT", "8083"),
		JWTSecret:   env.GetStringFromFile("JWT_SECRET", "dev-secret-change-me"),
	}
}

// IsProduction reports whether the service runs in a production environment
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// AccessTokenDuration returns the configured access token lifetime
func (c *Config) AccessTokenDuration() time.Duration {
	return constants.AccessTokenExpiry
}
