package ws

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxlink-backend/internal/domain"
	"voxlink-backend/internal/service/presence"
	"voxlink-backend/pkg/constants"
)

func newTestPresenceClient(hub *PresenceHub, userID uuid.UUID) *PresenceClient {
	return &PresenceClient{
		hub:    hub,
		send:   make(chan []byte, constants.SendQueueSize),
		userID: userID,
	}
}

func drainEvents(t *testing.T, client *PresenceClient) []domain.PushEvent {
	t.Helper()
	var events []domain.PushEvent
	for {
		select {
		case raw := <-client.send:
			var event domain.PushEvent
			require.NoError(t, json.Unmarshal(raw, &event))
			events = append(events, event)
		default:
			return events
		}
	}
}

func TestPresenceHub_PushCountsOpenChannels(t *testing.T) {
	hub := NewPresenceHub(presence.NewRegistry(nil, nil), testMetrics)
	userID := uuid.New()

	assert.Equal(t, 0, hub.Push(userID, domain.PushEvent{Type: domain.EventTypeCallEnded}))

	first := newTestPresenceClient(hub, userID)
	second := newTestPresenceClient(hub, userID)
	hub.addClient(first)
	hub.addClient(second)
	drainEvents(t, first)
	drainEvents(t, second)

	delivered := hub.Push(userID, domain.PushEvent{Type: domain.EventTypeCallEnded})
	assert.Equal(t, 2, delivered)

	for _, client := range []*PresenceClient{first, second} {
		events := drainEvents(t, client)
		require.Len(t, events, 1)
		assert.Equal(t, domain.EventTypeCallEnded, events[0].Type)
	}
}

func TestPresenceHub_RosterSentOnConnect(t *testing.T) {
	hub := NewPresenceHub(presence.NewRegistry(nil, nil), testMetrics)
	alice := uuid.New()
	bob := uuid.New()

	hub.addClient(newTestPresenceClient(hub, alice))

	bobClient := newTestPresenceClient(hub, bob)
	hub.addClient(bobClient)

	events := drainEvents(t, bobClient)
	require.NotEmpty(t, events)
	assert.Equal(t, domain.EventTypeOnlineUsers, events[0].Type)
	assert.Contains(t, events[0].UserIDs, alice)
	assert.Contains(t, events[0].UserIDs, bob)
}

func TestPresenceHub_OnlineBroadcastOnFirstChannelOnly(t *testing.T) {
	hub := NewPresenceHub(presence.NewRegistry(nil, nil), testMetrics)
	watcher := newTestPresenceClient(hub, uuid.New())
	hub.addClient(watcher)
	drainEvents(t, watcher)

	userID := uuid.New()
	hub.addClient(newTestPresenceClient(hub, userID))

	events := drainEvents(t, watcher)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventTypeUserOnline, events[0].Type)
	assert.Equal(t, userID, events[0].UserID)

	// A second device for the same user is not an online edge
	hub.addClient(newTestPresenceClient(hub, userID))
	assert.Empty(t, drainEvents(t, watcher))
}

func TestPresenceHub_OfflineBroadcastOnLastChannelOnly(t *testing.T) {
	hub := NewPresenceHub(presence.NewRegistry(nil, nil), testMetrics)
	watcher := newTestPresenceClient(hub, uuid.New())
	hub.addClient(watcher)

	userID := uuid.New()
	first := newTestPresenceClient(hub, userID)
	second := newTestPresenceClient(hub, userID)
	hub.addClient(first)
	hub.addClient(second)
	drainEvents(t, watcher)

	hub.removeClient(first)
	assert.Empty(t, drainEvents(t, watcher), "user still has an open channel")

	hub.removeClient(second)
	events := drainEvents(t, watcher)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventTypeUserOffline, events[0].Type)
	assert.Equal(t, userID, events[0].UserID)
}

func TestPresenceHub_RemoveUnknownClientIsNoop(t *testing.T) {
	hub := NewPresenceHub(presence.NewRegistry(nil, nil), testMetrics)
	client := newTestPresenceClient(hub, uuid.New())

	hub.removeClient(client)

	assert.Equal(t, 0, hub.Push(client.userID, domain.PushEvent{Type: domain.EventTypePong}))
}
