package service

import (
	"context"
	"time"

	"peacepad-signaling/internal/domain"
)

// CallNotifier pushes call state changes over a participant's live channel.
// It returns false when the participant has no live channel.
type CallNotifier interface {
	NotifyCall(participantID string, call *domain.Call) bool
}

// WakeNotifier wakes an offline receiver out of band (push). Fire-and-forget.
type WakeNotifier interface {
	WakeForCall(ctx context.Context, call *domain.Call) error
}

// RingTimer schedules a check that expires a call still ringing after a delay.
type RingTimer interface {
	ScheduleRingTimeout(ctx context.Context, callID string, after time.Duration) error
}

// SessionNotifier tells the live members of a session that it has ended.
type SessionNotifier interface {
	NotifySessionEnded(session *domain.CallSession)
}
