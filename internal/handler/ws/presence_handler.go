package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"voxlink-backend/internal/domain"
	"voxlink-backend/internal/service/presence"
	"voxlink-backend/pkg/constants"
	"voxlink-backend/pkg/logger"
	"voxlink-backend/pkg/metrics"
)

// PresenceHub manages notification channels: one WebSocket per device on
// which the server pushes call and presence events. A user may hold several
// channels at once; presence edges come from the registry, so a second
// channel opening or one of several closing produces no broadcast.
type PresenceHub struct {
	registry *presence.Registry
	metrics  *metrics.Metrics

	mu      sync.RWMutex
	clients map[uuid.UUID]map[*PresenceClient]bool
}

// PresenceClient represents one open notification channel
type PresenceClient struct {
	hub    *PresenceHub
	conn   *websocket.Conn
	send   chan []byte
	userID uuid.UUID
}

var presenceUpgrader = websocket.Upgrader{
	ReadBufferSize:  constants.ReadBufferSize,
	WriteBufferSize: constants.WriteBufferSize,
	CheckOrigin: func(r *http.Request) bool {
		return originAllowed(r.Header.Get("Origin"))
	},
}

// NewPresenceHub creates a new presence hub
func NewPresenceHub(registry *presence.Registry, m *metrics.Metrics) *PresenceHub {
	return &PresenceHub{
		registry: registry,
		metrics:  m,
		clients:  make(map[uuid.UUID]map[*PresenceClient]bool),
	}
}

// Push delivers an event to every open channel of the user. Returns the
// number of channels the event was queued on; zero means the user is offline.
func (h *PresenceHub) Push(userID uuid.UUID, event domain.PushEvent) int {
	payload, err := json.Marshal(event)
	if err != nil {
		logger.Log.Error("failed to marshal push event", zap.Error(err))
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for client := range h.clients[userID] {
		select {
		case client.send <- payload:
			delivered++
		default:
			// Slow consumer; the write pump will tear the channel down
		}
	}
	return delivered
}

// OnlineUsers returns the IDs of all users currently online
func (h *PresenceHub) OnlineUsers() []uuid.UUID {
	return h.registry.ListOnline()
}

// addClient registers a channel, sends the new client the current roster,
// and broadcasts user-online if this is the user's first channel.
func (h *PresenceHub) addClient(client *PresenceClient) {
	h.mu.Lock()
	if h.clients[client.userID] == nil {
		h.clients[client.userID] = make(map[*PresenceClient]bool)
	}
	h.clients[client.userID][client] = true
	h.mu.Unlock()

	h.metrics.PresenceChannelOpened()

	becameOnline := h.registry.MarkOnline(context.Background(), client.userID)
	h.metrics.SetUsersOnline(h.registry.OnlineCount())

	// New channel gets the full roster first
	h.pushTo(client, domain.PushEvent{
		Type:    domain.EventTypeOnlineUsers,
		UserIDs: h.registry.ListOnline(),
	})

	if becameOnline {
		h.broadcast(domain.PushEvent{
			Type:   domain.EventTypeUserOnline,
			UserID: client.userID,
		})
	}
}

// removeClient unregisters a channel and broadcasts user-offline if it was
// the user's last one.
func (h *PresenceHub) removeClient(client *PresenceClient) {
	h.mu.Lock()
	clients, ok := h.clients[client.userID]
	if !ok || !clients[client] {
		h.mu.Unlock()
		return
	}
	delete(clients, client)
	if len(clients) == 0 {
		delete(h.clients, client.userID)
	}
	close(client.send)
	h.mu.Unlock()

	h.metrics.PresenceChannelClosed()

	wentOffline := h.registry.MarkOffline(context.Background(), client.userID)
	h.metrics.SetUsersOnline(h.registry.OnlineCount())

	if wentOffline {
		h.broadcast(domain.PushEvent{
			Type:   domain.EventTypeUserOffline,
			UserID: client.userID,
		})
	}
}

// broadcast sends an event to every connected channel
func (h *PresenceHub) broadcast(event domain.PushEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		logger.Log.Error("failed to marshal broadcast event", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, clients := range h.clients {
		for client := range clients {
			select {
			case client.send <- payload:
			default:
			}
		}
	}
}

func (h *PresenceHub) pushTo(client *PresenceClient, event domain.PushEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	select {
	case client.send <- payload:
	default:
	}
}

// ServeWS handles WebSocket requests for the presence channel
func (h *PresenceHub) ServeWS(c *gin.Context) {
	userIDVal, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	userID, ok := userIDVal.(uuid.UUID)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "invalid user_id"})
		return
	}

	conn, err := presenceUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Log.Warn("presence upgrade failed",
			zap.String("user_id", userID.String()),
			zap.Error(err))
		return
	}

	client := &PresenceClient{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, constants.SendQueueSize),
		userID: userID,
	}

	h.addClient(client)

	go client.writePump()
	go client.readPump()
}

// inboundMessage is the only client-to-server traffic on a presence channel
type inboundMessage struct {
	Type string `json:"type"`
}

// readPump reads keepalive messages from the channel. Traffic never affects
// presence state; only open and close do.
func (c *PresenceClient) readPump() {
	defer func() {
		c.hub.removeClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(constants.PresenceIdleTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(constants.PresenceIdleTimeout))
		c.hub.registry.Touch(context.Background(), c.userID)
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Log.Debug("presence channel closed",
					zap.String("user_id", c.userID.String()),
					zap.Error(err))
			}
			break
		}

		c.conn.SetReadDeadline(time.Now().Add(constants.PresenceIdleTimeout))

		var msg inboundMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}

		if msg.Type == "ping" {
			c.hub.registry.Touch(context.Background(), c.userID)
			c.hub.pushTo(c, domain.PushEvent{Type: domain.EventTypePong})
		}
	}
}

// writePump writes queued events to the channel
func (c *PresenceClient) writePump() {
	ticker := time.NewTicker(constants.KeepAliveInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(constants.WriteDeadline))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(constants.WriteDeadline))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
