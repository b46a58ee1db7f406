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
	"voxlink-backend/pkg/constants"
	apperrors "voxlink-backend/pkg/errors"
	"voxlink-backend/pkg/logger"
	"voxlink-backend/pkg/metrics"
	"voxlink-backend/pkg/response"
)

// CallDirectory resolves a signaling room to its call record
type CallDirectory interface {
	GetByRoomID(ctx context.Context, roomID string) (*domain.Call, error)
}

// SignalLogger appends relayed signals to the audit log
type SignalLogger interface {
	Save(signal *domain.CallSignal) error
}

// LifecycleReporter records lifecycle events observed on the room channel
type LifecycleReporter interface {
	MarkRinging(ctx context.Context, callID, actorID uuid.UUID) (*domain.Call, error)
}

// RoomHub manages two-party signaling rooms. A room relays opaque WebRTC
// payloads between the call's two participants: a signal goes to the peer if
// their socket is open and is dropped otherwise, never echoed back and never
// buffered for later delivery.
type RoomHub struct {
	calls     CallDirectory
	signals   SignalLogger
	lifecycle LifecycleReporter
	metrics   *metrics.Metrics

	mu    sync.Mutex
	rooms map[string]*room
}

type room struct {
	callID  uuid.UUID
	members map[uuid.UUID]*RoomClient
}

// RoomClient represents one participant's socket in a signaling room
type RoomClient struct {
	hub    *RoomHub
	conn   *websocket.Conn
	send   chan []byte
	userID uuid.UUID
	roomID string
	callID uuid.UUID
}

// roomMessage carries only the envelope; the payload stays opaque and is
// relayed byte-for-byte.
type roomMessage struct {
	Type string `json:"type"`
}

// Audit log kind per relayed wire type; anything else stays out of the log
var auditKindForWire = map[string]string{
	domain.WireCallOffer:  domain.SignalKindOffer,
	domain.WireCallAnswer: domain.SignalKindAnswer,
	domain.WireICE:        domain.SignalKindICE,
}

var roomUpgrader = websocket.Upgrader{
	ReadBufferSize:  constants.ReadBufferSize,
	WriteBufferSize: constants.WriteBufferSize,
	CheckOrigin: func(r *http.Request) bool {
		return originAllowed(r.Header.Get("Origin"))
	},
}

// NewRoomHub creates a new room hub. signals may be nil to disable auditing.
func NewRoomHub(calls CallDirectory, signals SignalLogger, m *metrics.Metrics) *RoomHub {
	return &RoomHub{
		calls:   calls,
		signals: signals,
		metrics: m,
		rooms:   make(map[string]*room),
	}
}

// SetLifecycle wires the hub to the call lifecycle so a ringing signal on the
// room channel also advances the call record. The hub and the call service
// reference each other, so this is set after both are constructed.
func (h *RoomHub) SetLifecycle(r LifecycleReporter) {
	h.lifecycle = r
}

// reserve admits a user into a room, enforcing the two-party limit. A second
// socket from the same user replaces the first; a third distinct identity is
// rejected. The caller has already verified the user participates in the call.
func (h *RoomHub) reserve(client *RoomClient) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	rm, ok := h.rooms[client.roomID]
	if !ok {
		rm = &room{
			callID:  client.callID,
			members: make(map[uuid.UUID]*RoomClient),
		}
		h.rooms[client.roomID] = rm
	}

	if old, rejoining := rm.members[client.userID]; rejoining {
		// Same identity reconnecting; drop the stale socket
		close(old.send)
	} else if len(rm.members) >= 2 {
		return apperrors.RoomFullError()
	}

	// Tell the joiner who is already here; the occupant list drives the
	// client's offer/answer role selection
	for userID := range rm.members {
		if userID == client.userID {
			continue
		}
		payload, _ := json.Marshal(gin.H{"type": "user-joined", "user_id": userID.String()})
		select {
		case client.send <- payload:
		default:
		}
	}

	rm.members[client.userID] = client
	h.metrics.RoomChannelOpened()
	notifyPeer(rm, client.userID, "user-joined")
	return nil
}

// release removes a client from its room, tearing the room down when empty
func (h *RoomHub) release(client *RoomClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	rm, ok := h.rooms[client.roomID]
	if !ok {
		return
	}
	current, ok := rm.members[client.userID]
	if !ok || current != client {
		// Already replaced by a rejoin
		return
	}

	delete(rm.members, client.userID)
	close(client.send)
	h.metrics.RoomChannelClosed()

	if len(rm.members) == 0 {
		delete(h.rooms, client.roomID)
		return
	}
	notifyPeer(rm, client.userID, "user-left")
}

// notifyPeer tells the other room member about a membership change. Callers
// hold the hub mutex.
func notifyPeer(rm *room, about uuid.UUID, event string) {
	payload, _ := json.Marshal(gin.H{"type": event, "user_id": about.String()})
	for userID, member := range rm.members {
		if userID == about {
			continue
		}
		select {
		case member.send <- payload:
		default:
		}
	}
}

// relay forwards a raw signal to the sender's peer. No peer socket means the
// signal is dropped; rooms never buffer. The send happens under the hub
// mutex: release and CloseRoom close the peer's queue under the same lock,
// so a send outside it would race the close.
func (h *RoomHub) relay(sender *RoomClient, signalType string, raw []byte) {
	h.mu.Lock()
	delivered := false
	if rm, ok := h.rooms[sender.roomID]; ok {
		for userID, member := range rm.members {
			if userID == sender.userID {
				continue
			}
			select {
			case member.send <- raw:
				delivered = true
			default:
			}
		}
	}
	h.mu.Unlock()

	if delivered {
		h.metrics.RecordSignalRelayed(signalType)
	} else {
		h.metrics.RecordSignalDropped(signalType)
	}

	if signalType == domain.WireRinging && h.lifecycle != nil {
		// A ringing signal on the room channel also advances the call record.
		// Losing the race to an HTTP transition is fine.
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if _, err := h.lifecycle.MarkRinging(ctx, sender.callID, sender.userID); err != nil {
				logger.Log.Debug("ringing signal did not advance call",
					zap.String("call_id", sender.callID.String()),
					zap.Error(err))
			}
		}()
	}

	if kind, audited := auditKindForWire[signalType]; audited && h.signals != nil {
		signal := &domain.CallSignal{
			CallID:     sender.callID,
			SignalType: kind,
			SenderID:   sender.userID,
			Payload:    raw,
		}
		// Fire-and-forget; the audit log never blocks the relay
		go func() {
			if err := h.signals.Save(signal); err != nil {
				logger.Log.Warn("failed to log signal",
					zap.String("call_id", signal.CallID.String()),
					zap.Error(err))
			}
		}()
	}
}

// CloseRoom disconnects both participants of a room. Closing an unknown room
// is a no-op. Reason is sent to the members before the sockets drop.
func (h *RoomHub) CloseRoom(roomID string, reason string) {
	h.mu.Lock()
	rm, ok := h.rooms[roomID]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(h.rooms, roomID)

	payload, _ := json.Marshal(gin.H{"type": "room-closed", "reason": reason})
	for _, member := range rm.members {
		select {
		case member.send <- payload:
		default:
		}
		close(member.send)
		h.metrics.RoomChannelClosed()
	}
	h.mu.Unlock()
}

// ServeWS handles WebSocket requests for a signaling room
func (h *RoomHub) ServeWS(c *gin.Context) {
	roomID := c.Query("room_id")
	if roomID == "" {
		response.ValidationError(c, "room_id required")
		return
	}

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

	call, err := h.calls.GetByRoomID(c.Request.Context(), roomID)
	if err != nil {
		response.AppError(c, err)
		return
	}

	if call.Status.IsTerminal() {
		response.AppError(c, apperrors.RoomClosedError())
		return
	}

	if !call.Participant(userID) {
		response.AppError(c, apperrors.ForbiddenError("not a participant of this call"))
		return
	}

	client := &RoomClient{
		hub:    h,
		send:   make(chan []byte, constants.SendQueueSize),
		userID: userID,
		roomID: roomID,
		callID: call.CallID,
	}

	if err := h.reserve(client); err != nil {
		response.AppError(c, err)
		return
	}

	conn, err := roomUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Log.Warn("room upgrade failed",
			zap.String("room_id", roomID),
			zap.String("user_id", userID.String()),
			zap.Error(err))
		h.release(client)
		return
	}
	client.conn = conn

	go client.writePump()
	go client.readPump()
}

// readPump reads signals from the socket and relays them to the peer
func (c *RoomClient) readPump() {
	defer func() {
		c.hub.release(c)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(constants.PresenceIdleTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(constants.PresenceIdleTimeout))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Log.Debug("room socket closed",
					zap.String("room_id", c.roomID),
					zap.String("user_id", c.userID.String()),
					zap.Error(err))
			}
			break
		}

		c.conn.SetReadDeadline(time.Now().Add(constants.PresenceIdleTimeout))

		var msg roomMessage
		if err := json.Unmarshal(message, &msg); err != nil || msg.Type == "" {
			logger.Log.Warn("invalid room message",
				zap.String("room_id", c.roomID),
				zap.String("user_id", c.userID.String()))
			continue
		}

		c.hub.relay(c, msg.Type, message)
	}
}

// writePump writes relayed signals to the socket
func (c *RoomClient) writePump() {
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
