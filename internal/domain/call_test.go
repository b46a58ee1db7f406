package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name  string
		from  CallStatus
		event CallEvent
		want  bool
	}{
		{"initiated to ringing", CallStatusInitiated, CallEventRinging, true},
		{"initiated accept", CallStatusInitiated, CallEventAccept, true},
		{"ringing accept", CallStatusRinging, CallEventAccept, true},
		{"ringing reject", CallStatusRinging, CallEventReject, true},
		{"ringing cancel", CallStatusRinging, CallEventCancel, true},
		{"ringing timeout", CallStatusRinging, CallEventTimeout, true},
		{"accepted end", CallStatusAccepted, CallEventEnd, true},
		{"accepted ringing", CallStatusAccepted, CallEventRinging, false},
		{"accepted accept", CallStatusAccepted, CallEventAccept, false},
		{"accepted timeout", CallStatusAccepted, CallEventTimeout, false},
		{"initiated end", CallStatusInitiated, CallEventEnd, false},
		{"cancelled accept", CallStatusCancelled, CallEventAccept, false},
		{"rejected end", CallStatusRejected, CallEventEnd, false},
		{"missed accept", CallStatusMissed, CallEventAccept, false},
		{"ended end", CallStatusEnded, CallEventEnd, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.event))
		})
	}
}

func TestTerminalStatusesAllowNothing(t *testing.T) {
	terminals := []CallStatus{CallStatusRejected, CallStatusCancelled, CallStatusMissed, CallStatusEnded}
	events := []CallEvent{CallEventRinging, CallEventAccept, CallEventReject, CallEventCancel, CallEventEnd, CallEventTimeout}

	for _, s := range terminals {
		assert.True(t, s.IsTerminal(), "%s should be terminal", s)
		for _, e := range events {
			assert.False(t, CanTransition(s, e), "%s -> %s should be illegal", s, e)
		}
	}
}

func TestNonTerminalStatuses(t *testing.T) {
	for _, s := range []CallStatus{CallStatusInitiated, CallStatusRinging, CallStatusAccepted} {
		assert.False(t, s.IsTerminal())
	}
}

func TestTargetStatus(t *testing.T) {
	assert.Equal(t, CallStatusRinging, TargetStatus(CallEventRinging))
	assert.Equal(t, CallStatusAccepted, TargetStatus(CallEventAccept))
	assert.Equal(t, CallStatusRejected, TargetStatus(CallEventReject))
	assert.Equal(t, CallStatusCancelled, TargetStatus(CallEventCancel))
	assert.Equal(t, CallStatusEnded, TargetStatus(CallEventEnd))
	assert.Equal(t, CallStatusMissed, TargetStatus(CallEventTimeout))
}

func TestCallPeerOf(t *testing.T) {
	caller := uuid.New()
	receiver := uuid.New()
	stranger := uuid.New()

	call := &Call{CallID: uuid.New(), CallerID: caller, ReceiverID: receiver}

	assert.Equal(t, receiver, call.PeerOf(caller))
	assert.Equal(t, caller, call.PeerOf(receiver))
	assert.Equal(t, uuid.Nil, call.PeerOf(stranger))
	assert.True(t, call.Participant(caller))
	assert.True(t, call.Participant(receiver))
	assert.False(t, call.Participant(stranger))
}
