package call

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"voxlink-backend/internal/domain"
	apperrors "voxlink-backend/pkg/errors"
	"voxlink-backend/pkg/metrics"
)

// Shared across tests; prometheus collectors register globally
var testMetrics = metrics.NewMetrics("call-service-test")

// MockCallRepository is a mock call repository
type MockCallRepository struct {
	mock.Mock
}

func (m *MockCallRepository) Create(ctx context.Context, call *domain.Call) error {
	args := m.Called(ctx, call)
	return args.Error(0)
}

func (m *MockCallRepository) Transition(ctx context.Context, callID uuid.UUID, event domain.CallEvent, now time.Time) (*domain.Call, error) {
	args := m.Called(ctx, callID, event, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Call), args.Error(1)
}

func (m *MockCallRepository) GetByID(ctx context.Context, callID uuid.UUID) (*domain.Call, error) {
	args := m.Called(ctx, callID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Call), args.Error(1)
}

func (m *MockCallRepository) GetByRoomID(ctx context.Context, roomID string) (*domain.Call, error) {
	args := m.Called(ctx, roomID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Call), args.Error(1)
}

func (m *MockCallRepository) ListForUser(ctx context.Context, userID uuid.UUID, filter domain.CallListFilter, limit int) ([]*domain.Call, error) {
	args := m.Called(ctx, userID, filter, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Call), args.Error(1)
}

// MockUserDirectory is a mock user directory
type MockUserDirectory struct {
	mock.Mock
}

func (m *MockUserDirectory) GetByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

// MockNotifier is a mock presence channel notifier
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Push(userID uuid.UUID, event domain.PushEvent) int {
	args := m.Called(userID, event)
	return args.Int(0)
}

// MockRoomCloser is a mock room closer
type MockRoomCloser struct {
	mock.Mock
}

func (m *MockRoomCloser) CloseRoom(roomID string, reason string) {
	m.Called(roomID, reason)
}

// MockMobilePusher is a mock mobile push sender
type MockMobilePusher struct {
	mock.Mock
}

func (m *MockMobilePusher) NotifyIncomingCall(ctx context.Context, userID uuid.UUID, call *domain.Call, callerUsername string) error {
	args := m.Called(ctx, userID, call, callerUsername)
	return args.Error(0)
}

func (m *MockMobilePusher) NotifyMissedCall(ctx context.Context, userID uuid.UUID, call *domain.Call) error {
	args := m.Called(ctx, userID, call)
	return args.Error(0)
}

type fixture struct {
	calls    *MockCallRepository
	users    *MockUserDirectory
	notifier *MockNotifier
	rooms    *MockRoomCloser
	pusher   *MockMobilePusher
	service  *Service
}

func newFixture() *fixture {
	f := &fixture{
		calls:    new(MockCallRepository),
		users:    new(MockUserDirectory),
		notifier: new(MockNotifier),
		rooms:    new(MockRoomCloser),
		pusher:   new(MockMobilePusher),
	}
	f.service = NewService(f.calls, f.users, f.notifier, f.rooms, f.pusher, testMetrics)
	return f
}

func testCall(callerID, receiverID uuid.UUID, status domain.CallStatus) *domain.Call {
	return &domain.Call{
		CallID:      uuid.New(),
		CallerID:    callerID,
		ReceiverID:  receiverID,
		CallType:    domain.CallTypeVideo,
		Status:      status,
		RoomID:      uuid.New().String(),
		InitiatedAt: time.Now(),
	}
}

func TestInitiate_Success(t *testing.T) {
	f := newFixture()
	callerID := uuid.New()
	receiverID := uuid.New()

	f.users.On("GetByID", mock.Anything, receiverID).
		Return(&domain.User{UserID: receiverID, Username: "bob"}, nil)
	f.calls.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.notifier.On("Push", receiverID, mock.MatchedBy(func(e domain.PushEvent) bool {
		return e.Type == domain.EventTypeIncomingCall && e.CallerUsername == "alice"
	})).Return(1)

	call, err := f.service.Initiate(context.Background(), callerID, "alice", receiverID, domain.CallTypeVideo)

	require.NoError(t, err)
	assert.Equal(t, domain.CallStatusInitiated, call.Status)
	assert.Equal(t, callerID, call.CallerID)
	assert.Equal(t, receiverID, call.ReceiverID)
	assert.NotEmpty(t, call.RoomID)

	// Receiver was online; no mobile push
	f.pusher.AssertNotCalled(t, "NotifyIncomingCall", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.calls.AssertExpectations(t)
	f.notifier.AssertExpectations(t)

	f.service.Shutdown()
}

func TestInitiate_OfflineReceiverGetsMobilePush(t *testing.T) {
	f := newFixture()
	callerID := uuid.New()
	receiverID := uuid.New()

	f.users.On("GetByID", mock.Anything, receiverID).
		Return(&domain.User{UserID: receiverID, Username: "bob"}, nil)
	f.calls.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.notifier.On("Push", receiverID, mock.Anything).Return(0)
	f.pusher.On("NotifyIncomingCall", mock.Anything, receiverID, mock.Anything, "alice").Return(nil)

	_, err := f.service.Initiate(context.Background(), callerID, "alice", receiverID, domain.CallTypeAudio)

	require.NoError(t, err)
	f.pusher.AssertExpectations(t)

	f.service.Shutdown()
}

func TestInitiate_SelfCallRejected(t *testing.T) {
	f := newFixture()
	userID := uuid.New()

	_, err := f.service.Initiate(context.Background(), userID, "alice", userID, domain.CallTypeVideo)

	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidReceiver))
	f.calls.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestInitiate_UnknownReceiver(t *testing.T) {
	f := newFixture()
	callerID := uuid.New()
	receiverID := uuid.New()

	f.users.On("GetByID", mock.Anything, receiverID).Return(nil, apperrors.UserNotFoundError())

	_, err := f.service.Initiate(context.Background(), callerID, "alice", receiverID, domain.CallTypeVideo)

	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidReceiver))
}

func TestInitiate_InvalidCallType(t *testing.T) {
	f := newFixture()

	_, err := f.service.Initiate(context.Background(), uuid.New(), "alice", uuid.New(), domain.CallType("screen"))

	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeValidation))
}

func TestAccept_ByReceiver(t *testing.T) {
	f := newFixture()
	callerID := uuid.New()
	receiverID := uuid.New()
	call := testCall(callerID, receiverID, domain.CallStatusRinging)

	accepted := *call
	accepted.Status = domain.CallStatusAccepted

	f.calls.On("GetByID", mock.Anything, call.CallID).Return(call, nil)
	f.calls.On("Transition", mock.Anything, call.CallID, domain.CallEventAccept, mock.Anything).
		Return(&accepted, nil)

	updated, err := f.service.Accept(context.Background(), call.CallID, receiverID)

	require.NoError(t, err)
	assert.Equal(t, domain.CallStatusAccepted, updated.Status)
	f.calls.AssertExpectations(t)
}

func TestAccept_ByCallerForbidden(t *testing.T) {
	f := newFixture()
	callerID := uuid.New()
	receiverID := uuid.New()
	call := testCall(callerID, receiverID, domain.CallStatusRinging)

	f.calls.On("GetByID", mock.Anything, call.CallID).Return(call, nil)

	_, err := f.service.Accept(context.Background(), call.CallID, callerID)

	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeForbidden))
	f.calls.AssertNotCalled(t, "Transition", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestAccept_LostRaceToTimeout(t *testing.T) {
	f := newFixture()
	callerID := uuid.New()
	receiverID := uuid.New()
	call := testCall(callerID, receiverID, domain.CallStatusRinging)

	missed := *call
	missed.Status = domain.CallStatusMissed

	f.calls.On("GetByID", mock.Anything, call.CallID).Return(call, nil)
	f.calls.On("Transition", mock.Anything, call.CallID, domain.CallEventAccept, mock.Anything).
		Return(&missed, apperrors.InvalidTransitionError("call already missed"))

	_, err := f.service.Accept(context.Background(), call.CallID, receiverID)

	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidTransition))
}

func TestReject_NotifiesCallerAndClosesRoom(t *testing.T) {
	f := newFixture()
	callerID := uuid.New()
	receiverID := uuid.New()
	call := testCall(callerID, receiverID, domain.CallStatusRinging)

	rejected := *call
	rejected.Status = domain.CallStatusRejected

	f.calls.On("GetByID", mock.Anything, call.CallID).Return(call, nil)
	f.calls.On("Transition", mock.Anything, call.CallID, domain.CallEventReject, mock.Anything).
		Return(&rejected, nil)
	// The caller waits on their presence channel, not in the room
	f.notifier.On("Push", callerID, mock.MatchedBy(func(e domain.PushEvent) bool {
		return e.Type == domain.EventTypeCallRejected && e.CallID == call.CallID
	})).Return(1)
	f.rooms.On("CloseRoom", call.RoomID, "rejected").Return()

	updated, err := f.service.Reject(context.Background(), call.CallID, receiverID)

	require.NoError(t, err)
	assert.Equal(t, domain.CallStatusRejected, updated.Status)
	f.notifier.AssertExpectations(t)
	f.rooms.AssertExpectations(t)
}

func TestCancel_NotifiesReceiver(t *testing.T) {
	f := newFixture()
	callerID := uuid.New()
	receiverID := uuid.New()
	call := testCall(callerID, receiverID, domain.CallStatusInitiated)

	cancelled := *call
	cancelled.Status = domain.CallStatusCancelled

	f.calls.On("GetByID", mock.Anything, call.CallID).Return(call, nil)
	f.calls.On("Transition", mock.Anything, call.CallID, domain.CallEventCancel, mock.Anything).
		Return(&cancelled, nil)
	f.notifier.On("Push", receiverID, mock.MatchedBy(func(e domain.PushEvent) bool {
		return e.Type == domain.EventTypeCallCancelled && e.CallID == call.CallID
	})).Return(1)
	f.rooms.On("CloseRoom", call.RoomID, "cancelled").Return()

	_, err := f.service.Cancel(context.Background(), call.CallID, callerID)

	require.NoError(t, err)
	f.notifier.AssertExpectations(t)
	f.rooms.AssertExpectations(t)
}

func TestCancel_ByReceiverForbidden(t *testing.T) {
	f := newFixture()
	callerID := uuid.New()
	receiverID := uuid.New()
	call := testCall(callerID, receiverID, domain.CallStatusRinging)

	f.calls.On("GetByID", mock.Anything, call.CallID).Return(call, nil)

	_, err := f.service.Cancel(context.Background(), call.CallID, receiverID)

	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeForbidden))
}

func TestEnd_EitherParticipant(t *testing.T) {
	f := newFixture()
	callerID := uuid.New()
	receiverID := uuid.New()

	for _, actorID := range []uuid.UUID{callerID, receiverID} {
		call := testCall(callerID, receiverID, domain.CallStatusAccepted)
		ended := *call
		ended.Status = domain.CallStatusEnded
		ended.Duration = 42

		f.calls.On("GetByID", mock.Anything, call.CallID).Return(call, nil)
		f.calls.On("Transition", mock.Anything, call.CallID, domain.CallEventEnd, mock.Anything).
			Return(&ended, nil)
		f.notifier.On("Push", call.PeerOf(actorID), mock.MatchedBy(func(e domain.PushEvent) bool {
			return e.Type == domain.EventTypeCallEnded
		})).Return(1)
		f.rooms.On("CloseRoom", call.RoomID, "ended").Return()

		updated, err := f.service.End(context.Background(), call.CallID, actorID)

		require.NoError(t, err)
		assert.Equal(t, domain.CallStatusEnded, updated.Status)
	}

	f.notifier.AssertExpectations(t)
}

func TestEnd_StrangerForbidden(t *testing.T) {
	f := newFixture()
	call := testCall(uuid.New(), uuid.New(), domain.CallStatusAccepted)

	f.calls.On("GetByID", mock.Anything, call.CallID).Return(call, nil)

	_, err := f.service.End(context.Background(), call.CallID, uuid.New())

	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeForbidden))
}

func TestMarkRinging_ParticipantsOnly(t *testing.T) {
	f := newFixture()
	callerID := uuid.New()
	receiverID := uuid.New()
	call := testCall(callerID, receiverID, domain.CallStatusInitiated)

	ringing := *call
	ringing.Status = domain.CallStatusRinging

	f.calls.On("GetByID", mock.Anything, call.CallID).Return(call, nil)
	f.calls.On("Transition", mock.Anything, call.CallID, domain.CallEventRinging, mock.Anything).
		Return(&ringing, nil)

	// Either party may report ringing
	updated, err := f.service.MarkRinging(context.Background(), call.CallID, receiverID)
	require.NoError(t, err)
	assert.Equal(t, domain.CallStatusRinging, updated.Status)

	_, err = f.service.MarkRinging(context.Background(), call.CallID, callerID)
	require.NoError(t, err)

	_, err = f.service.MarkRinging(context.Background(), call.CallID, uuid.New())
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeForbidden))
}

func TestRingTimeout_MarksMissedAndNotifiesBothParties(t *testing.T) {
	f := newFixture()
	f.service.ringTimeout = 20 * time.Millisecond

	callerID := uuid.New()
	receiverID := uuid.New()
	call := testCall(callerID, receiverID, domain.CallStatusRinging)

	missed := *call
	missed.Status = domain.CallStatusMissed

	f.calls.On("Transition", mock.Anything, call.CallID, domain.CallEventTimeout, mock.Anything).
		Return(&missed, nil)
	f.notifier.On("Push", callerID, mock.MatchedBy(func(e domain.PushEvent) bool {
		return e.Type == domain.EventTypeCallMissed && e.CallID == call.CallID
	})).Return(1)
	f.notifier.On("Push", receiverID, mock.MatchedBy(func(e domain.PushEvent) bool {
		return e.Type == domain.EventTypeCallMissed && e.CallID == call.CallID
	})).Return(1)
	done := make(chan struct{})
	f.rooms.On("CloseRoom", call.RoomID, "missed").
		Run(func(args mock.Arguments) { close(done) }).Return()

	f.service.startRingTimer(call.CallID)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("ring timer never fired")
	}

	f.calls.AssertExpectations(t)
	f.notifier.AssertExpectations(t)
	f.rooms.AssertExpectations(t)
}

func TestRingTimeout_OfflineReceiverGetsMissedPush(t *testing.T) {
	f := newFixture()

	callerID := uuid.New()
	receiverID := uuid.New()
	call := testCall(callerID, receiverID, domain.CallStatusRinging)

	missed := *call
	missed.Status = domain.CallStatusMissed

	f.calls.On("Transition", mock.Anything, call.CallID, domain.CallEventTimeout, mock.Anything).
		Return(&missed, nil)
	f.notifier.On("Push", callerID, mock.Anything).Return(1)
	f.notifier.On("Push", receiverID, mock.Anything).Return(0)
	f.pusher.On("NotifyMissedCall", mock.Anything, receiverID, &missed).Return(nil)
	f.rooms.On("CloseRoom", call.RoomID, "missed").Return()

	f.service.handleRingTimeout(call.CallID)

	f.pusher.AssertExpectations(t)
	f.rooms.AssertExpectations(t)
}

func TestRingTimeout_NoopAfterTerminalTransition(t *testing.T) {
	f := newFixture()
	callID := uuid.New()

	// Timer fires after the call was already rejected; missed events must not go out
	f.calls.On("Transition", mock.Anything, callID, domain.CallEventTimeout, mock.Anything).
		Return(nil, apperrors.InvalidTransitionError("call already rejected"))

	f.service.handleRingTimeout(callID)

	f.notifier.AssertNotCalled(t, "Push", mock.Anything, mock.Anything)
	f.rooms.AssertNotCalled(t, "CloseRoom", mock.Anything, mock.Anything)
}

func TestList_ClampsLimit(t *testing.T) {
	f := newFixture()
	userID := uuid.New()

	f.calls.On("ListForUser", mock.Anything, userID, domain.CallFilterHistory, 20).
		Return([]*domain.Call{}, nil).Once()
	f.calls.On("ListForUser", mock.Anything, userID, domain.CallFilterHistory, 100).
		Return([]*domain.Call{}, nil).Once()

	_, err := f.service.List(context.Background(), userID, domain.CallFilterHistory, 0)
	require.NoError(t, err)

	_, err = f.service.List(context.Background(), userID, domain.CallFilterHistory, 5000)
	require.NoError(t, err)

	f.calls.AssertExpectations(t)
}
