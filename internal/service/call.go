package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"peacepad-signaling/internal/domain"
	"peacepad-signaling/internal/repository"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// CallService owns the direct call state machine.
type CallService struct {
	callRepo    repository.CallRepository
	notifier    CallNotifier
	waker       WakeNotifier
	ringTimer   RingTimer
	ringTimeout time.Duration
	now         func() time.Time
	newID       func() string
}

// CallServiceOption configures optional CallService collaborators.
type CallServiceOption func(*CallService)

// WithWakeNotifier sets the out-of-band wake used when the receiver is offline.
func WithWakeNotifier(w WakeNotifier) CallServiceOption {
	return func(s *CallService) { s.waker = w }
}

// WithRingTimeout expires calls still ringing after d. d <= 0 disables it.
func WithRingTimeout(timer RingTimer, d time.Duration) CallServiceOption {
	return func(s *CallService) {
		s.ringTimer = timer
		s.ringTimeout = d
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) CallServiceOption {
	return func(s *CallService) { s.now = now }
}

// WithIDGenerator replaces the uuid call id generator.
func WithIDGenerator(gen func() string) CallServiceOption {
	return func(s *CallService) { s.newID = gen }
}

// NewCallService creates a CallService.
func NewCallService(callRepo repository.CallRepository, notifier CallNotifier, opts ...CallServiceOption) *CallService {
	if callRepo == nil {
		panic("CallRepository cannot be nil for CallService")
	}
	if notifier == nil {
		panic("CallNotifier cannot be nil for CallService")
	}
	s := &CallService{
		callRepo: callRepo,
		notifier: notifier,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Initiate creates a ringing call and notifies the receiver exactly once:
// over the live channel when there is one, otherwise through the wake notifier.
func (s *CallService) Initiate(ctx context.Context, callerID, receiverID string, kind domain.CallKind, partnershipID *string) (*domain.Call, error) {
	logCtx := logrus.WithFields(logrus.Fields{"caller_id": callerID, "receiver_id": receiverID, "call_kind": kind})

	// 1. validate
	if callerID == "" {
		return nil, validationError("caller is required")
	}
	if receiverID == "" {
		return nil, validationError("receiverId is required")
	}
	if callerID == receiverID {
		return nil, validationError("cannot call yourself")
	}
	if !kind.Valid() {
		return nil, validationError("callKind must be %q or %q", domain.CallKindAudio, domain.CallKindVideo)
	}
	if partnershipID != nil && strings.TrimSpace(*partnershipID) == "" {
		partnershipID = nil
	}

	// 2. persist as ringing
	call := &domain.Call{
		ID:            s.newID(),
		CallerID:      callerID,
		ReceiverID:    receiverID,
		PartnershipID: partnershipID,
		CallKind:      kind,
		Status:        domain.CallStatusRinging,
	}
	if err := s.callRepo.Create(ctx, call); err != nil {
		logCtx.WithError(err).Error("Failed to save new call")
		return nil, ErrInternalServer
	}
	logCtx = logCtx.WithField("call_id", call.ID)

	// 3. notify the receiver exactly once: live channel first, wake otherwise
	if s.notifier.NotifyCall(receiverID, call) {
		logCtx.Debug("Receiver notified over live channel")
	} else if s.waker != nil {
		if err := s.waker.WakeForCall(ctx, call); err != nil {
			logCtx.WithError(err).Warn("Failed to enqueue wake notification for offline receiver")
		}
	} else {
		logCtx.Warn("Receiver offline and no wake notifier configured")
	}

	// 4. optional ring timeout
	if s.ringTimer != nil && s.ringTimeout > 0 {
		if err := s.ringTimer.ScheduleRingTimeout(ctx, call.ID, s.ringTimeout); err != nil {
			logCtx.WithError(err).Warn("Failed to schedule ring timeout")
		}
	}

	logCtx.Info("Call initiated")
	return call, nil
}

// Accept moves a ringing call to active. Only the receiver may accept.
func (s *CallService) Accept(ctx context.Context, callID, by string) (*domain.Call, error) {
	call, err := s.loadForParty(ctx, callID, by)
	if err != nil {
		return nil, err
	}
	if by != call.ReceiverID {
		return nil, ErrForbidden
	}
	if call.Status != domain.CallStatusRinging {
		return nil, ErrStateConflict
	}

	// ringing -> active
	now := s.now()
	next := *call
	next.Status = domain.CallStatusActive
	next.StartedAt = &now
	if err := s.apply(ctx, call.Status, &next); err != nil {
		return nil, err
	}

	s.notifier.NotifyCall(call.CallerID, &next)
	logrus.WithFields(logrus.Fields{"call_id": callID, "by": by}).Info("Call accepted")
	return &next, nil
}

// Decline moves a ringing call to declined. Only the receiver may decline.
func (s *CallService) Decline(ctx context.Context, callID, by, reason string) (*domain.Call, error) {
	call, err := s.loadForParty(ctx, callID, by)
	if err != nil {
		return nil, err
	}
	if by != call.ReceiverID {
		return nil, ErrForbidden
	}
	if call.Status != domain.CallStatusRinging {
		return nil, ErrStateConflict
	}

	// ringing -> declined, with a reason
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = domain.DefaultDeclineReason
	}
	now := s.now()
	zero := domain.ZeroDuration
	next := *call
	next.Status = domain.CallStatusDeclined
	next.EndedAt = &now
	next.Duration = &zero
	next.DeclineReason = &reason
	if err := s.apply(ctx, call.Status, &next); err != nil {
		return nil, err
	}

	s.notifier.NotifyCall(call.CallerID, &next)
	logrus.WithFields(logrus.Fields{"call_id": callID, "by": by}).Info("Call declined")
	return &next, nil
}

// End hangs up a call. An active call becomes ended with its duration; a call
// still ringing becomes missed, whoever ends it.
func (s *CallService) End(ctx context.Context, callID, by string) (*domain.Call, error) {
	call, err := s.loadForParty(ctx, callID, by)
	if err != nil {
		return nil, err
	}

	// active -> ended with duration, ringing -> missed
	now := s.now()
	next := *call
	next.EndedAt = &now
	switch call.Status {
	case domain.CallStatusActive:
		started := now
		if call.StartedAt != nil {
			started = *call.StartedAt
		}
		d := domain.CallDuration(started, now)
		next.Status = domain.CallStatusEnded
		next.Duration = &d
	case domain.CallStatusRinging:
		zero := domain.ZeroDuration
		next.Status = domain.CallStatusMissed
		next.Duration = &zero
	default:
		return nil, ErrStateConflict
	}
	if err := s.apply(ctx, call.Status, &next); err != nil {
		return nil, err
	}

	// the other party learns the outcome
	s.notifier.NotifyCall(call.OtherParty(by), &next)
	logrus.WithFields(logrus.Fields{"call_id": callID, "by": by, "status": next.Status}).Info("Call ended")
	return &next, nil
}

// ExpireRinging marks a call that is still ringing as missed and tells both
// parties. It reports false when the call had already left ringing.
func (s *CallService) ExpireRinging(ctx context.Context, callID string) (*domain.Call, bool, error) {
	call, err := s.callRepo.FindByID(ctx, callID)
	if err != nil {
		if errors.Is(err, repository.ErrCallNotFound) {
			return nil, false, ErrCallNotFound
		}
		return nil, false, ErrInternalServer
	}
	if call.Status != domain.CallStatusRinging {
		return call, false, nil
	}

	now := s.now()
	zero := domain.ZeroDuration
	next := *call
	next.Status = domain.CallStatusMissed
	next.EndedAt = &now
	next.Duration = &zero
	if err := s.apply(ctx, domain.CallStatusRinging, &next); err != nil {
		// someone acted between the read and the update
		if errors.Is(err, ErrStateConflict) {
			return call, false, nil
		}
		return nil, false, err
	}

	s.notifier.NotifyCall(call.CallerID, &next)
	s.notifier.NotifyCall(call.ReceiverID, &next)
	logrus.WithField("call_id", callID).Info("Ringing call expired as missed")
	return &next, true, nil
}

// History lists the participant's calls. An empty filter means all.
func (s *CallService) History(ctx context.Context, participantID string, filter domain.HistoryFilter, limit int) ([]domain.Call, error) {
	if filter == "" {
		filter = domain.HistoryAll
	}
	if !filter.Valid() {
		return nil, validationError("filter must be one of all, missed, received, outgoing")
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	calls, err := s.callRepo.ListForParticipant(ctx, participantID, filter, limit)
	if err != nil {
		logrus.WithError(err).WithField("participant_id", participantID).Error("Failed to list call history")
		return nil, ErrInternalServer
	}
	if calls == nil {
		calls = []domain.Call{}
	}
	return calls, nil
}

// --- private helpers ---

// loadForParty loads a call and checks that by is one of its two parties.
func (s *CallService) loadForParty(ctx context.Context, callID, by string) (*domain.Call, error) {
	call, err := s.callRepo.FindByID(ctx, callID)
	if err != nil {
		if errors.Is(err, repository.ErrCallNotFound) {
			return nil, ErrCallNotFound
		}
		logrus.WithError(err).WithField("call_id", callID).Error("Failed to load call")
		return nil, ErrInternalServer
	}
	if !call.IsParty(by) {
		return nil, ErrForbidden
	}
	return call, nil
}

// apply persists next only if the stored status is still expected.
func (s *CallService) apply(ctx context.Context, expected domain.CallStatus, next *domain.Call) error {
	err := s.callRepo.CompareAndUpdate(ctx, expected, next)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrStateConflict):
		return ErrStateConflict
	case errors.Is(err, repository.ErrCallNotFound):
		return ErrCallNotFound
	}
	logrus.WithError(err).WithField("call_id", next.ID).Error("Failed to persist call transition")
	return ErrInternalServer
}
