package domain

import (
	"time"

	"github.com/google/uuid"
)

// CallStatus represents the lifecycle state of a call
type CallStatus string

const (
	CallStatusInitiated CallStatus = "initiated"
	CallStatusRinging   CallStatus = "ringing"
	CallStatusAccepted  CallStatus = "accepted"
	CallStatusRejected  CallStatus = "rejected"
	CallStatusCancelled CallStatus = "cancelled"
	CallStatusMissed    CallStatus = "missed"
	CallStatusEnded     CallStatus = "ended"
)

// IsTerminal reports whether no further transition is legal from this status
func (s CallStatus) IsTerminal() bool {
	switch s {
	case CallStatusRejected, CallStatusCancelled, CallStatusMissed, CallStatusEnded:
		return true
	}
	return false
}

// CallType represents the media kind of a call
type CallType string

const (
	CallTypeAudio CallType = "audio"
	CallTypeVideo CallType = "video"
)

// Valid reports whether the call type is one of the known kinds
func (t CallType) Valid() bool {
	return t == CallTypeAudio || t == CallTypeVideo
}

// CallEvent is a lifecycle event applied to a call record
type CallEvent string

const (
	CallEventRinging CallEvent = "ringing"
	CallEventAccept  CallEvent = "accept"
	CallEventReject  CallEvent = "reject"
	CallEventCancel  CallEvent = "cancel"
	CallEventEnd     CallEvent = "end"
	CallEventTimeout CallEvent = "timeout"
)

// transitions maps each event to the statuses it may legally be applied from.
// An event applied from any other status is an invalid transition and must
// leave the record untouched.
var transitions = map[CallEvent][]CallStatus{
	CallEventRinging: {CallStatusInitiated},
	CallEventAccept:  {CallStatusInitiated, CallStatusRinging},
	CallEventReject:  {CallStatusInitiated, CallStatusRinging},
	CallEventCancel:  {CallStatusInitiated, CallStatusRinging},
	CallEventEnd:     {CallStatusAccepted},
	CallEventTimeout: {CallStatusInitiated, CallStatusRinging},
}

// targets maps each event to the status it produces
var targets = map[CallEvent]CallStatus{
	CallEventRinging: CallStatusRinging,
	CallEventAccept:  CallStatusAccepted,
	CallEventReject:  CallStatusRejected,
	CallEventCancel:  CallStatusCancelled,
	CallEventEnd:     CallStatusEnded,
	CallEventTimeout: CallStatusMissed,
}

// LegalFrom returns the statuses the event may be applied from
func LegalFrom(event CallEvent) []CallStatus {
	return transitions[event]
}

// TargetStatus returns the status the event transitions a call into
func TargetStatus(event CallEvent) CallStatus {
	return targets[event]
}

// CanTransition reports whether the event is legal from the given status
func CanTransition(from CallStatus, event CallEvent) bool {
	for _, s := range transitions[event] {
		if s == from {
			return true
		}
	}
	return false
}

// Call represents a call between exactly two users.
// RoomID is assigned once at creation and never changes; it is the routing
// key for the signaling relay.
type Call struct {
	CallID       uuid.UUID  `json:"call_id"`
	CallerID     uuid.UUID  `json:"caller_id"`
	ReceiverID   uuid.UUID  `json:"receiver_id"`
	CallerName   string     `json:"caller_name,omitempty"`
	ReceiverName string     `json:"receiver_name,omitempty"`
	CallType     CallType   `json:"call_type"` // audio, video
	Status       CallStatus `json:"status"`
	RoomID       string     `json:"room_id"`
	InitiatedAt  time.Time  `json:"initiated_at"`
	RingingAt    *time.Time `json:"ringing_at,omitempty"`
	AcceptedAt   *time.Time `json:"accepted_at,omitempty"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
	Duration     int        `json:"duration"` // seconds, 0 unless accepted then ended
}

// Participant reports whether the user is the caller or the receiver
func (c *Call) Participant(userID uuid.UUID) bool {
	return c.CallerID == userID || c.ReceiverID == userID
}

// PeerOf returns the other participant's ID, or uuid.Nil for a non-participant
func (c *Call) PeerOf(userID uuid.UUID) uuid.UUID {
	switch userID {
	case c.CallerID:
		return c.ReceiverID
	case c.ReceiverID:
		return c.CallerID
	}
	return uuid.Nil
}

// CallListFilter selects which slice of a user's calls to return
type CallListFilter string

const (
	CallFilterActive  CallListFilter = "active"
	CallFilterHistory CallListFilter = "history"
	CallFilterMissed  CallListFilter = "missed"
)
