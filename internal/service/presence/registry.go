package presence

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"voxlink-backend/pkg/logger"
)

// Mirror replicates presence state to a shared store so other services can
// read it. Mirrored keys carry a TTL, so long-lived channels must refresh
// them on keepalives. Mirror failures never affect the in-process truth.
type Mirror interface {
	SetUserOnline(ctx context.Context, userID uuid.UUID) error
	SetUserOffline(ctx context.Context, userID uuid.UUID) error
	RefreshPresence(ctx context.Context, userID uuid.UUID) error
}

// LastSeenStore persists the moment a user's last channel closed
type LastSeenStore interface {
	UpdateLastSeen(ctx context.Context, userID uuid.UUID) error
}

// Registry tracks which users hold at least one open notification channel.
// A user is online iff their channel count is positive; the count moves only
// on channel open/close, never on message traffic.
type Registry struct {
	mu       sync.Mutex
	channels map[uuid.UUID]int
	lastSeen map[uuid.UUID]time.Time

	mirror Mirror
	store  LastSeenStore
}

// NewRegistry creates a presence registry. mirror and store may be nil.
func NewRegistry(mirror Mirror, store LastSeenStore) *Registry {
	return &Registry{
		channels: make(map[uuid.UUID]int),
		lastSeen: make(map[uuid.UUID]time.Time),
		mirror:   mirror,
		store:    store,
	}
}

// MarkOnline records one more open channel for the user. Returns true only
// on the 0→1 edge, so callers can suppress duplicate online broadcasts.
func (r *Registry) MarkOnline(ctx context.Context, userID uuid.UUID) bool {
	r.mu.Lock()
	r.channels[userID]++
	becameOnline := r.channels[userID] == 1
	r.mu.Unlock()

	if becameOnline && r.mirror != nil {
		if err := r.mirror.SetUserOnline(ctx, userID); err != nil {
			logger.Log.Warn("failed to mirror online status",
				zap.String("user_id", userID.String()),
				zap.Error(err))
		}
	}

	return becameOnline
}

// MarkOffline records one closed channel for the user. Returns true only
// when the last channel closed and the user actually went offline.
func (r *Registry) MarkOffline(ctx context.Context, userID uuid.UUID) bool {
	r.mu.Lock()
	count, ok := r.channels[userID]
	if !ok {
		r.mu.Unlock()
		return false
	}

	wentOffline := false
	if count <= 1 {
		delete(r.channels, userID)
		r.lastSeen[userID] = time.Now()
		wentOffline = true
	} else {
		r.channels[userID] = count - 1
	}
	r.mu.Unlock()

	if wentOffline {
		if r.mirror != nil {
			if err := r.mirror.SetUserOffline(ctx, userID); err != nil {
				logger.Log.Warn("failed to mirror offline status",
					zap.String("user_id", userID.String()),
					zap.Error(err))
			}
		}
		if r.store != nil {
			if err := r.store.UpdateLastSeen(ctx, userID); err != nil {
				logger.Log.Warn("failed to persist last seen",
					zap.String("user_id", userID.String()),
					zap.Error(err))
			}
		}
	}

	return wentOffline
}

// Touch refreshes the mirror's TTL for a user who is still connected. Called
// on channel keepalives; never changes presence state.
func (r *Registry) Touch(ctx context.Context, userID uuid.UUID) {
	if r.mirror == nil || !r.IsOnline(userID) {
		return
	}
	if err := r.mirror.RefreshPresence(ctx, userID); err != nil {
		logger.Log.Warn("failed to refresh mirrored presence",
			zap.String("user_id", userID.String()),
			zap.Error(err))
	}
}

// IsOnline reports whether the user holds at least one open channel
func (r *Registry) IsOnline(userID uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.channels[userID] > 0
}

// ChannelsFor returns the number of open channels for the user
func (r *Registry) ChannelsFor(userID uuid.UUID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.channels[userID]
}

// ListOnline returns the IDs of all users currently online
func (r *Registry) ListOnline() []uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()

	users := make([]uuid.UUID, 0, len(r.channels))
	for userID := range r.channels {
		users = append(users, userID)
	}
	return users
}

// OnlineCount returns the number of users currently online
func (r *Registry) OnlineCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.channels)
}

// LastSeen returns when the user last went offline. The zero time means the
// user has not gone offline since this instance started.
func (r *Registry) LastSeen(userID uuid.UUID) time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastSeen[userID]
}
