package ws

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxlink-backend/internal/domain"
	"voxlink-backend/pkg/constants"
	apperrors "voxlink-backend/pkg/errors"
	"voxlink-backend/pkg/metrics"
)

// Shared across tests; prometheus collectors register globally
var testMetrics = metrics.NewMetrics("ws-test")

type recordingSignalLogger struct {
	saved chan *domain.CallSignal
}

func newRecordingSignalLogger() *recordingSignalLogger {
	return &recordingSignalLogger{saved: make(chan *domain.CallSignal, 16)}
}

func (l *recordingSignalLogger) Save(signal *domain.CallSignal) error {
	l.saved <- signal
	return nil
}

func newTestRoomClient(hub *RoomHub, userID uuid.UUID, roomID string, callID uuid.UUID) *RoomClient {
	return &RoomClient{
		hub:    hub,
		send:   make(chan []byte, constants.SendQueueSize),
		userID: userID,
		roomID: roomID,
		callID: callID,
	}
}

// drainSend discards queued membership notices so a test can assert on the
// next message alone
func drainSend(c *RoomClient) {
	for {
		select {
		case <-c.send:
		default:
			return
		}
	}
}

func TestRoomHub_ReserveTwoParties(t *testing.T) {
	hub := NewRoomHub(nil, nil, testMetrics)
	roomID := uuid.New().String()
	callID := uuid.New()

	caller := newTestRoomClient(hub, uuid.New(), roomID, callID)
	receiver := newTestRoomClient(hub, uuid.New(), roomID, callID)
	stranger := newTestRoomClient(hub, uuid.New(), roomID, callID)

	require.NoError(t, hub.reserve(caller))
	require.NoError(t, hub.reserve(receiver))

	err := hub.reserve(stranger)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeRoomFull))
}

func TestRoomHub_RejoinReplacesSocket(t *testing.T) {
	hub := NewRoomHub(nil, nil, testMetrics)
	roomID := uuid.New().String()
	callID := uuid.New()
	userID := uuid.New()

	first := newTestRoomClient(hub, userID, roomID, callID)
	second := newTestRoomClient(hub, userID, roomID, callID)

	require.NoError(t, hub.reserve(first))
	require.NoError(t, hub.reserve(second))

	// Stale socket's queue is closed so its write pump exits
	_, open := <-first.send
	assert.False(t, open)

	// Releasing the stale client must not evict the new one
	hub.release(first)
	hub.mu.Lock()
	rm := hub.rooms[roomID]
	assert.Equal(t, second, rm.members[userID])
	hub.mu.Unlock()
}

func TestRoomHub_RelayReachesPeerOnly(t *testing.T) {
	hub := NewRoomHub(nil, nil, testMetrics)
	roomID := uuid.New().String()
	callID := uuid.New()

	caller := newTestRoomClient(hub, uuid.New(), roomID, callID)
	receiver := newTestRoomClient(hub, uuid.New(), roomID, callID)
	require.NoError(t, hub.reserve(caller))
	require.NoError(t, hub.reserve(receiver))
	drainSend(caller)
	drainSend(receiver)

	raw := []byte(`{"type":"call-offer","sdp":"v=0 ..."}`)
	hub.relay(caller, domain.WireCallOffer, raw)

	select {
	case got := <-receiver.send:
		assert.Equal(t, raw, got)
	default:
		t.Fatal("peer did not receive the signal")
	}

	// Never echoed back to the sender
	select {
	case <-caller.send:
		t.Fatal("signal echoed to sender")
	default:
	}
}

func TestRoomHub_SignalDroppedWithoutPeer(t *testing.T) {
	hub := NewRoomHub(nil, nil, testMetrics)
	roomID := uuid.New().String()
	callID := uuid.New()

	caller := newTestRoomClient(hub, uuid.New(), roomID, callID)
	require.NoError(t, hub.reserve(caller))

	// Peer never joined; nothing is buffered
	hub.relay(caller, domain.WireICE, []byte(`{"type":"ice-candidate"}`))

	receiver := newTestRoomClient(hub, uuid.New(), roomID, callID)
	require.NoError(t, hub.reserve(receiver))

	// The joiner gets the occupant notice and nothing else
	var notice map[string]string
	require.NoError(t, json.Unmarshal(<-receiver.send, &notice))
	assert.Equal(t, "user-joined", notice["type"])

	select {
	case <-receiver.send:
		t.Fatal("late joiner received a buffered signal")
	default:
	}
}

func TestRoomHub_AuditLogGetsRelayedSignals(t *testing.T) {
	auditLog := newRecordingSignalLogger()
	hub := NewRoomHub(nil, auditLog, testMetrics)
	roomID := uuid.New().String()
	callID := uuid.New()

	caller := newTestRoomClient(hub, uuid.New(), roomID, callID)
	receiver := newTestRoomClient(hub, uuid.New(), roomID, callID)
	require.NoError(t, hub.reserve(caller))
	require.NoError(t, hub.reserve(receiver))

	hub.relay(caller, domain.WireCallAnswer, []byte(`{"type":"call-answer","sdp":"..."}`))

	select {
	case signal := <-auditLog.saved:
		assert.Equal(t, callID, signal.CallID)
		// Wire type normalized for the log
		assert.Equal(t, domain.SignalKindAnswer, signal.SignalType)
		assert.Equal(t, caller.userID, signal.SenderID)
	case <-time.After(time.Second):
		t.Fatal("signal never reached the audit log")
	}

	// Non-media envelope types stay out of the log
	hub.relay(caller, "ringing", []byte(`{"type":"ringing"}`))
	select {
	case <-auditLog.saved:
		t.Fatal("ringing message was audited")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRoomHub_CloseRoomDisconnectsMembers(t *testing.T) {
	hub := NewRoomHub(nil, nil, testMetrics)
	roomID := uuid.New().String()
	callID := uuid.New()

	caller := newTestRoomClient(hub, uuid.New(), roomID, callID)
	receiver := newTestRoomClient(hub, uuid.New(), roomID, callID)
	require.NoError(t, hub.reserve(caller))
	require.NoError(t, hub.reserve(receiver))
	drainSend(caller)
	drainSend(receiver)

	hub.CloseRoom(roomID, "ended")

	for _, client := range []*RoomClient{caller, receiver} {
		msg, open := <-client.send
		require.True(t, open)

		var envelope map[string]string
		require.NoError(t, json.Unmarshal(msg, &envelope))
		assert.Equal(t, "room-closed", envelope["type"])
		assert.Equal(t, "ended", envelope["reason"])

		_, open = <-client.send
		assert.False(t, open)
	}

	hub.mu.Lock()
	assert.NotContains(t, hub.rooms, roomID)
	hub.mu.Unlock()
}

func TestRoomHub_CloseUnknownRoomIsNoop(t *testing.T) {
	hub := NewRoomHub(nil, nil, testMetrics)
	hub.CloseRoom(uuid.New().String(), "ended")
}

func TestRoomHub_MembershipNotices(t *testing.T) {
	hub := NewRoomHub(nil, nil, testMetrics)
	roomID := uuid.New().String()
	callID := uuid.New()

	caller := newTestRoomClient(hub, uuid.New(), roomID, callID)
	receiver := newTestRoomClient(hub, uuid.New(), roomID, callID)

	require.NoError(t, hub.reserve(caller))
	require.NoError(t, hub.reserve(receiver))

	var notice map[string]string
	require.NoError(t, json.Unmarshal(<-caller.send, &notice))
	assert.Equal(t, "user-joined", notice["type"])
	assert.Equal(t, receiver.userID.String(), notice["user_id"])

	// The joiner is told who was already in the room, not about themselves
	require.NoError(t, json.Unmarshal(<-receiver.send, &notice))
	assert.Equal(t, "user-joined", notice["type"])
	assert.Equal(t, caller.userID.String(), notice["user_id"])
	select {
	case <-receiver.send:
		t.Fatal("joiner received more than the occupant notice")
	default:
	}

	hub.release(receiver)
	require.NoError(t, json.Unmarshal(<-caller.send, &notice))
	assert.Equal(t, "user-left", notice["type"])
	assert.Equal(t, receiver.userID.String(), notice["user_id"])
}

// A peer disconnecting while signals are in flight closes the send queue;
// the relay must never hit that channel after the close.
func TestRoomHub_RelayDuringDisconnectChurn(t *testing.T) {
	hub := NewRoomHub(nil, nil, testMetrics)
	roomID := uuid.New().String()
	callID := uuid.New()
	peerID := uuid.New()

	sender := newTestRoomClient(hub, uuid.New(), roomID, callID)
	require.NoError(t, hub.reserve(sender))

	raw := []byte(`{"type":"ice-candidate"}`)
	stop := make(chan struct{})
	var wg sync.WaitGroup

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					hub.relay(sender, domain.WireICE, raw)
				}
			}
		}()
	}

	for i := 0; i < 200; i++ {
		peer := newTestRoomClient(hub, peerID, roomID, callID)
		require.NoError(t, hub.reserve(peer))
		drainSend(peer)
		hub.release(peer)
	}

	close(stop)
	wg.Wait()
}

type recordingLifecycle struct {
	ringing chan uuid.UUID
}

func (r *recordingLifecycle) MarkRinging(ctx context.Context, callID, actorID uuid.UUID) (*domain.Call, error) {
	r.ringing <- callID
	return nil, nil
}

func TestRoomHub_RingingSignalAdvancesCall(t *testing.T) {
	lifecycle := &recordingLifecycle{ringing: make(chan uuid.UUID, 1)}
	hub := NewRoomHub(nil, nil, testMetrics)
	hub.SetLifecycle(lifecycle)
	roomID := uuid.New().String()
	callID := uuid.New()

	caller := newTestRoomClient(hub, uuid.New(), roomID, callID)
	receiver := newTestRoomClient(hub, uuid.New(), roomID, callID)
	require.NoError(t, hub.reserve(caller))
	require.NoError(t, hub.reserve(receiver))

	hub.relay(receiver, domain.WireRinging, []byte(`{"type":"ringing"}`))

	select {
	case got := <-lifecycle.ringing:
		assert.Equal(t, callID, got)
	case <-time.After(time.Second):
		t.Fatal("ringing signal never reached the lifecycle")
	}
}
