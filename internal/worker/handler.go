package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"peacepad-signaling/internal/domain"
	"peacepad-signaling/internal/service"
	"peacepad-signaling/internal/tasks"
)

// Pusher delivers an out-of-band incoming-call notification. Delivery itself
// belongs to an external push provider.
type Pusher interface {
	PushIncomingCall(ctx context.Context, wake tasks.CallWakePayload) error
}

// LogPusher only logs the wake; used when no push provider is configured.
type LogPusher struct{}

func (LogPusher) PushIncomingCall(_ context.Context, wake tasks.CallWakePayload) error {
	logrus.WithFields(logrus.Fields{
		"call_id":     wake.CallID,
		"caller_id":   wake.CallerID,
		"receiver_id": wake.ReceiverID,
		"call_kind":   wake.CallKind,
	}).Info("Incoming call push (no provider configured)")
	return nil
}

// RingExpirer moves a call still ringing to missed.
type RingExpirer interface {
	ExpireRinging(ctx context.Context, callID string) (*domain.Call, bool, error)
}

// taskLogger builds the per-task log context.
func taskLogger(ctx context.Context, t *asynq.Task) *logrus.Entry {
	taskID := ""
	if rw := t.ResultWriter(); rw != nil {
		taskID = rw.TaskID()
	}
	currentRetry, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)
	return logrus.WithFields(logrus.Fields{
		"task_id":   taskID,
		"task_type": t.Type(),
		"retry":     currentRetry,
		"max_retry": maxRetry,
	})
}

// CallWakeHandler processes call:wake tasks.
type CallWakeHandler struct {
	pusher Pusher
}

func NewCallWakeHandler(pusher Pusher) *CallWakeHandler {
	if pusher == nil {
		pusher = LogPusher{}
	}
	return &CallWakeHandler{pusher: pusher}
}

// ProcessTask implements asynq.Handler.
func (h *CallWakeHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	logCtx := taskLogger(ctx, t)

	var payload tasks.CallWakePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		logCtx.WithError(err).Error("Failed to unmarshal task payload")
		return fmt.Errorf("failed to unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}
	logCtx = logCtx.WithField("call_id", payload.CallID)

	if err := h.pusher.PushIncomingCall(ctx, payload); err != nil {
		logCtx.WithError(err).Warn("Incoming call push failed")
		return fmt.Errorf("push incoming call %s: %w", payload.CallID, err)
	}
	logCtx.Info("Call wake task processed successfully")
	return nil
}

// RingTimeoutHandler processes call:ring-timeout tasks.
type RingTimeoutHandler struct {
	calls RingExpirer
}

func NewRingTimeoutHandler(calls RingExpirer) *RingTimeoutHandler {
	if calls == nil {
		panic("RingExpirer cannot be nil for RingTimeoutHandler")
	}
	return &RingTimeoutHandler{calls: calls}
}

// ProcessTask implements asynq.Handler.
func (h *RingTimeoutHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	logCtx := taskLogger(ctx, t)

	var payload tasks.RingTimeoutPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		logCtx.WithError(err).Error("Failed to unmarshal task payload")
		return fmt.Errorf("failed to unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}
	logCtx = logCtx.WithField("call_id", payload.CallID)

	_, expired, err := h.calls.ExpireRinging(ctx, payload.CallID)
	if errors.Is(err, service.ErrCallNotFound) {
		logCtx.Warn("Ring timeout for unknown call, skipping")
		return fmt.Errorf("call %s not found: %w", payload.CallID, asynq.SkipRetry)
	}
	if err != nil {
		return fmt.Errorf("expire ringing call %s: %w", payload.CallID, err)
	}
	if expired {
		logCtx.Info("Ringing call expired as missed")
	} else {
		logCtx.Debug("Call already answered or ended before ring timeout")
	}
	return nil
}
