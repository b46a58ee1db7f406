package domain

import "github.com/google/uuid"

// Presence channel event types pushed to connected clients
const (
	EventTypeIncomingCall  = "incoming-call"
	EventTypeCallCancelled = "call-cancelled"
	EventTypeCallRejected  = "call-rejected"
	EventTypeCallEnded     = "call-ended"
	EventTypeCallMissed    = "call-missed"
	EventTypeUserOnline    = "user-online"
	EventTypeUserOffline   = "user-offline"
	EventTypeOnlineUsers   = "online-users"
	EventTypePong          = "pong"
)

// PushEvent is an outbound event on a user's presence channel
type PushEvent struct {
	Type           string      `json:"type"`
	CallID         uuid.UUID   `json:"call_id,omitempty"`
	RoomID         string      `json:"room_id,omitempty"`
	Caller         uuid.UUID   `json:"caller,omitempty"`
	CallerUsername string      `json:"caller_username,omitempty"`
	CallType       CallType    `json:"call_type,omitempty"`
	UserID         uuid.UUID   `json:"user_id,omitempty"`
	UserIDs        []uuid.UUID `json:"user_ids,omitempty"`
}

// NewIncomingCallEvent builds the push sent to a receiver when a call is initiated
func NewIncomingCallEvent(call *Call, caller *User) PushEvent {
	return PushEvent{
		Type:           EventTypeIncomingCall,
		CallID:         call.CallID,
		RoomID:         call.RoomID,
		Caller:         call.CallerID,
		CallerUsername: caller.Username,
		CallType:       call.CallType,
	}
}

// NewCallCancelledEvent builds the push sent to a receiver when the caller hangs up early
func NewCallCancelledEvent(callID uuid.UUID) PushEvent {
	return PushEvent{Type: EventTypeCallCancelled, CallID: callID}
}

// NewCallRejectedEvent builds the push sent to the caller when the receiver
// declines; the caller may still be waiting outside the room
func NewCallRejectedEvent(callID uuid.UUID) PushEvent {
	return PushEvent{Type: EventTypeCallRejected, CallID: callID}
}

// NewCallEndedEvent builds the terminal push for a party not inside the room
func NewCallEndedEvent(callID uuid.UUID) PushEvent {
	return PushEvent{Type: EventTypeCallEnded, CallID: callID}
}

// NewCallMissedEvent builds the push sent to the caller when the ring period expires
func NewCallMissedEvent(callID uuid.UUID) PushEvent {
	return PushEvent{Type: EventTypeCallMissed, CallID: callID}
}
