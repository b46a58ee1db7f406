package call

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"voxlink-backend/internal/domain"
	"voxlink-backend/pkg/constants"
	apperrors "voxlink-backend/pkg/errors"
	"voxlink-backend/pkg/logger"
	"voxlink-backend/pkg/metrics"
)

// CallRepository defines call record storage operations
type CallRepository interface {
	Create(ctx context.Context, call *domain.Call) error
	Transition(ctx context.Context, callID uuid.UUID, event domain.CallEvent, now time.Time) (*domain.Call, error)
	GetByID(ctx context.Context, callID uuid.UUID) (*domain.Call, error)
	GetByRoomID(ctx context.Context, roomID string) (*domain.Call, error)
	ListForUser(ctx context.Context, userID uuid.UUID, filter domain.CallListFilter, limit int) ([]*domain.Call, error)
}

// UserDirectory defines user lookups needed by the call service
type UserDirectory interface {
	GetByID(ctx context.Context, userID uuid.UUID) (*domain.User, error)
}

// CallNotifier pushes events onto a user's open notification channels.
// Returns the number of channels the event was delivered to; zero means the
// user is offline.
type CallNotifier interface {
	Push(userID uuid.UUID, event domain.PushEvent) int
}

// RoomCloser tears down a signaling room when its call reaches a terminal
// status. Closing an unknown or already-closed room is a no-op.
type RoomCloser interface {
	CloseRoom(roomID string, reason string)
}

// MobilePusher delivers call alerts to a user's registered devices when no
// notification channel is open.
type MobilePusher interface {
	NotifyIncomingCall(ctx context.Context, userID uuid.UUID, call *domain.Call, callerUsername string) error
	NotifyMissedCall(ctx context.Context, userID uuid.UUID, call *domain.Call) error
}

// Service owns the call lifecycle: creation, state transitions, ring
// timeouts, and the fan-out of lifecycle events to presence channels.
// Transitions are linearized per call by the repository's compare-and-swap;
// concurrent events race and the loser gets an invalid transition error.
type Service struct {
	calls    CallRepository
	users    UserDirectory
	notifier CallNotifier
	rooms    RoomCloser
	pusher   MobilePusher
	metrics  *metrics.Metrics

	mu          sync.Mutex
	ringTimers  map[uuid.UUID]*time.Timer
	ringTimeout time.Duration
}

// NewService creates a new call service. pusher and rooms may be nil.
func NewService(
	calls CallRepository,
	users UserDirectory,
	notifier CallNotifier,
	rooms RoomCloser,
	pusher MobilePusher,
	m *metrics.Metrics,
) *Service {
	return &Service{
		calls:       calls,
		users:       users,
		notifier:    notifier,
		rooms:       rooms,
		pusher:      pusher,
		metrics:     m,
		ringTimers:  make(map[uuid.UUID]*time.Timer),
		ringTimeout: constants.RingTimeout,
	}
}

// Initiate creates a call from caller to receiver and pushes an incoming-call
// event to the receiver's notification channels. If the receiver has none
// open, delivery falls back to best-effort mobile push; the call record is
// created either way and will go missed if never answered.
func (s *Service) Initiate(ctx context.Context, callerID uuid.UUID, callerUsername string, receiverID uuid.UUID, callType domain.CallType) (*domain.Call, error) {
	if !callType.Valid() {
		return nil, apperrors.ValidationError("call_type must be audio or video")
	}
	if receiverID == callerID {
		return nil, apperrors.InvalidReceiverError("cannot call yourself")
	}

	receiver, err := s.users.GetByID(ctx, receiverID)
	if err != nil {
		if apperrors.IsCode(err, apperrors.ErrCodeUserNotFound) {
			return nil, apperrors.InvalidReceiverError("receiver does not exist")
		}
		return nil, err
	}

	now := time.Now()
	call := &domain.Call{
		CallID:       uuid.New(),
		CallerID:     callerID,
		ReceiverID:   receiverID,
		CallerName:   callerUsername,
		ReceiverName: receiver.Username,
		CallType:     callType,
		Status:       domain.CallStatusInitiated,
		RoomID:       uuid.New().String(),
		InitiatedAt:  now,
	}

	if err := s.calls.Create(ctx, call); err != nil {
		return nil, err
	}

	s.metrics.CallStarted()
	s.startRingTimer(call.CallID)

	caller := &domain.User{UserID: callerID, Username: callerUsername}
	delivered := s.notifier.Push(receiverID, domain.NewIncomingCallEvent(call, caller))
	if delivered == 0 {
		logger.Log.Info("receiver offline, falling back to mobile push",
			zap.String("call_id", call.CallID.String()),
			zap.String("receiver_id", receiverID.String()))
		if s.pusher != nil {
			if err := s.pusher.NotifyIncomingCall(ctx, receiverID, call, callerUsername); err != nil {
				logger.Log.Warn("mobile push failed",
					zap.String("call_id", call.CallID.String()),
					zap.Error(err))
			}
		}
	}

	return call, nil
}

// MarkRinging records that the receiver's device started ringing. Either
// participant may report it: usually the receiver's device, but a caller in
// the room relays it too. Losing the race to a terminal event is normal and
// surfaces as an invalid transition.
func (s *Service) MarkRinging(ctx context.Context, callID, actorID uuid.UUID) (*domain.Call, error) {
	call, err := s.calls.GetByID(ctx, callID)
	if err != nil {
		return nil, err
	}
	if !call.Participant(actorID) {
		return nil, apperrors.ForbiddenError("not a participant of this call")
	}

	return s.calls.Transition(ctx, callID, domain.CallEventRinging, time.Now())
}

// Accept transitions the call to accepted. Receiver only.
func (s *Service) Accept(ctx context.Context, callID, actorID uuid.UUID) (*domain.Call, error) {
	call, err := s.calls.GetByID(ctx, callID)
	if err != nil {
		return nil, err
	}
	if call.ReceiverID != actorID {
		return nil, apperrors.ForbiddenError("only the receiver can accept a call")
	}

	updated, err := s.calls.Transition(ctx, callID, domain.CallEventAccept, time.Now())
	if err != nil {
		return updated, err
	}

	s.cancelRingTimer(callID)
	return updated, nil
}

// Reject transitions the call to rejected, tells the waiting caller, and
// closes the room. Receiver only.
func (s *Service) Reject(ctx context.Context, callID, actorID uuid.UUID) (*domain.Call, error) {
	call, err := s.calls.GetByID(ctx, callID)
	if err != nil {
		return nil, err
	}
	if call.ReceiverID != actorID {
		return nil, apperrors.ForbiddenError("only the receiver can reject a call")
	}

	updated, err := s.calls.Transition(ctx, callID, domain.CallEventReject, time.Now())
	if err != nil {
		return updated, err
	}

	// The caller is likely not in the room yet; their presence channel is the
	// only place the rejection can reach them
	s.notifier.Push(updated.CallerID, domain.NewCallRejectedEvent(updated.CallID))
	s.finishCall(updated, "rejected")
	return updated, nil
}

// Cancel transitions the call to cancelled, dismisses the receiver's ringing
// UI, and closes the room. Caller only, and only before the call is accepted.
func (s *Service) Cancel(ctx context.Context, callID, actorID uuid.UUID) (*domain.Call, error) {
	call, err := s.calls.GetByID(ctx, callID)
	if err != nil {
		return nil, err
	}
	if call.CallerID != actorID {
		return nil, apperrors.ForbiddenError("only the caller can cancel a call")
	}

	updated, err := s.calls.Transition(ctx, callID, domain.CallEventCancel, time.Now())
	if err != nil {
		return updated, err
	}

	s.notifier.Push(updated.ReceiverID, domain.NewCallCancelledEvent(updated.CallID))
	s.finishCall(updated, "cancelled")
	return updated, nil
}

// End hangs up an accepted call. Either participant may end; the peer is
// notified on their presence channels and the room is closed.
func (s *Service) End(ctx context.Context, callID, actorID uuid.UUID) (*domain.Call, error) {
	call, err := s.calls.GetByID(ctx, callID)
	if err != nil {
		return nil, err
	}
	if !call.Participant(actorID) {
		return nil, apperrors.ForbiddenError("not a participant of this call")
	}

	updated, err := s.calls.Transition(ctx, callID, domain.CallEventEnd, time.Now())
	if err != nil {
		return updated, err
	}

	s.notifier.Push(updated.PeerOf(actorID), domain.NewCallEndedEvent(updated.CallID))
	s.metrics.RecordCallDuration(float64(updated.Duration))
	s.finishCall(updated, "ended")
	return updated, nil
}

// Get retrieves a call. Participants only.
func (s *Service) Get(ctx context.Context, callID, actorID uuid.UUID) (*domain.Call, error) {
	call, err := s.calls.GetByID(ctx, callID)
	if err != nil {
		return nil, err
	}
	if !call.Participant(actorID) {
		return nil, apperrors.ForbiddenError("not a participant of this call")
	}
	return call, nil
}

// GetByRoom retrieves the call a signaling room belongs to
func (s *Service) GetByRoom(ctx context.Context, roomID string) (*domain.Call, error) {
	return s.calls.GetByRoomID(ctx, roomID)
}

// List retrieves the user's calls scoped by filter
func (s *Service) List(ctx context.Context, userID uuid.UUID, filter domain.CallListFilter, limit int) ([]*domain.Call, error) {
	if limit <= 0 {
		limit = constants.DefaultPageSize
	}
	if limit > constants.MaxPageSize {
		limit = constants.MaxPageSize
	}
	return s.calls.ListForUser(ctx, userID, filter, limit)
}

// Shutdown stops all pending ring timers
func (s *Service) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for callID, timer := range s.ringTimers {
		timer.Stop()
		delete(s.ringTimers, callID)
	}
}

// finishCall runs the common teardown for a terminal transition
func (s *Service) finishCall(call *domain.Call, outcome string) {
	s.cancelRingTimer(call.CallID)
	s.metrics.CallFinished(string(call.CallType), outcome)
	if s.rooms != nil {
		s.rooms.CloseRoom(call.RoomID, outcome)
	}
}

func (s *Service) startRingTimer(callID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ringTimers[callID] = time.AfterFunc(s.ringTimeout, func() {
		s.handleRingTimeout(callID)
	})
}

func (s *Service) cancelRingTimer(callID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if timer, ok := s.ringTimers[callID]; ok {
		timer.Stop()
		delete(s.ringTimers, callID)
	}
}

// handleRingTimeout fires when a call was neither answered nor torn down
// within the ring window. The compare-and-swap makes a late firing after a
// terminal transition a harmless no-op.
func (s *Service) handleRingTimeout(callID uuid.UUID) {
	s.mu.Lock()
	delete(s.ringTimers, callID)
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	updated, err := s.calls.Transition(ctx, callID, domain.CallEventTimeout, time.Now())
	if err != nil {
		if apperrors.IsCode(err, apperrors.ErrCodeInvalidTransition) {
			// Lost the race to accept/reject/cancel
			return
		}
		logger.Log.Error("failed to mark call missed",
			zap.String("call_id", callID.String()),
			zap.Error(err))
		return
	}

	logger.Log.Info("call missed",
		zap.String("call_id", updated.CallID.String()),
		zap.String("caller_id", updated.CallerID.String()),
		zap.String("receiver_id", updated.ReceiverID.String()))

	s.metrics.RecordRingTimeout()
	s.notifier.Push(updated.CallerID, domain.NewCallMissedEvent(updated.CallID))
	delivered := s.notifier.Push(updated.ReceiverID, domain.NewCallMissedEvent(updated.CallID))
	if delivered == 0 && s.pusher != nil {
		if err := s.pusher.NotifyMissedCall(ctx, updated.ReceiverID, updated); err != nil {
			logger.Log.Warn("missed call push failed",
				zap.String("call_id", updated.CallID.String()),
				zap.Error(err))
		}
	}
	s.metrics.CallFinished(string(updated.CallType), "missed")
	if s.rooms != nil {
		s.rooms.CloseRoom(updated.RoomID, "missed")
	}
}
