package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"peacepad-signaling/internal/domain"
)

// Task types
const (
	TypeCallWake        = "call:wake"         // wake an offline receiver of a ringing call
	TypeCallRingTimeout = "call:ring-timeout" // expire a call still ringing
)

// CallWakePayload is what the push collaborator needs to announce a call.
type CallWakePayload struct {
	CallID     string          `json:"callId"`
	CallerID   string          `json:"callerId"`
	ReceiverID string          `json:"receiverId"`
	CallKind   domain.CallKind `json:"callKind"`
}

type RingTimeoutPayload struct {
	CallID string `json:"callId"`
}

// NewCallWakeTask builds the wake task for call's receiver.
func NewCallWakeTask(call *domain.Call) (*asynq.Task, error) {
	payload, err := json.Marshal(CallWakePayload{
		CallID:     call.ID,
		CallerID:   call.CallerID,
		ReceiverID: call.ReceiverID,
		CallKind:   call.CallKind,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeCallWake, payload, asynq.Queue("critical"), asynq.MaxRetry(3), asynq.Timeout(15*time.Second)), nil
}

// NewRingTimeoutTask builds the ring timeout task for callID. The task id is
// derived from the call so the same call is never scheduled twice.
func NewRingTimeoutTask(callID string) (*asynq.Task, error) {
	payload, err := json.Marshal(RingTimeoutPayload{CallID: callID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeCallRingTimeout, payload, asynq.TaskID("ring-timeout:"+callID), asynq.MaxRetry(5)), nil
}

// Enqueuer is the part of *asynq.Client the dispatcher uses.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Dispatcher enqueues call tasks. It wakes offline receivers and schedules
// ring timeouts for the call service.
type Dispatcher struct {
	client Enqueuer
}

func NewDispatcher(client Enqueuer) *Dispatcher {
	if client == nil {
		panic("Enqueuer cannot be nil for Dispatcher")
	}
	return &Dispatcher{client: client}
}

func (d *Dispatcher) WakeForCall(ctx context.Context, call *domain.Call) error {
	task, err := NewCallWakeTask(call)
	if err != nil {
		return fmt.Errorf("build wake task: %w", err)
	}
	if _, err := d.client.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("enqueue wake task for call %s: %w", call.ID, err)
	}
	return nil
}

func (d *Dispatcher) ScheduleRingTimeout(ctx context.Context, callID string, after time.Duration) error {
	task, err := NewRingTimeoutTask(callID)
	if err != nil {
		return fmt.Errorf("build ring timeout task: %w", err)
	}
	if _, err := d.client.EnqueueContext(ctx, task, asynq.ProcessIn(after)); err != nil {
		return fmt.Errorf("enqueue ring timeout for call %s: %w", callID, err)
	}
	return nil
}
