package domain

import (
	"time"

	"github.com/google/uuid"
)

// Room channel wire message types. Payloads are opaque SDP/ICE blobs passed
// through the relay unexamined.
const (
	WireCallOffer  = "call-offer"
	WireCallAnswer = "call-answer"
	WireICE        = "ice-candidate"
	WireRinging    = "ringing"
)

// Signal kinds recorded in the audit log; call-offer and call-answer on the
// wire normalize to offer and answer in the log.
const (
	SignalKindOffer  = "offer"
	SignalKindAnswer = "answer"
	SignalKindICE    = "ice-candidate"
)

// CallSignal is an append-only audit record of one relayed signaling message.
// Written fire-and-forget for forensic replay; never read by the service.
type CallSignal struct {
	CallID     uuid.UUID `json:"call_id"`
	SignalID   uuid.UUID `json:"signal_id"`
	SignalType string    `json:"signal_type"` // offer, answer, ice-candidate
	SenderID   uuid.UUID `json:"sender_id"`
	Payload    []byte    `json:"payload"`
	CreatedAt  time.Time `json:"created_at"`
}
