package domain

import (
	"time"

	"github.com/google/uuid"
)

// User is a reference to an account owned by the external account store.
// The call service only reads identity and display fields; presence state
// is tracked in-process and mirrored to Redis.
type User struct {
	UserID      uuid.UUID `json:"user_id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name,omitempty"`
	IsOnline    bool      `json:"is_online"`
	LastSeen    time.Time `json:"last_seen,omitempty"`
}
