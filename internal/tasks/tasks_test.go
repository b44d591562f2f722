package tasks_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peacepad-signaling/internal/domain"
	"peacepad-signaling/internal/tasks"
)

type recordingEnqueuer struct {
	tasks []*asynq.Task
	opts  [][]asynq.Option
	err   error
}

func (r *recordingEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.tasks = append(r.tasks, task)
	r.opts = append(r.opts, opts)
	return &asynq.TaskInfo{Type: task.Type()}, nil
}

func TestDispatcher_WakeForCall(t *testing.T) {
	enq := &recordingEnqueuer{}
	d := tasks.NewDispatcher(enq)
	call := &domain.Call{ID: "c1", CallerID: "A", ReceiverID: "B", CallKind: domain.CallKindAudio}

	require.NoError(t, d.WakeForCall(context.Background(), call))

	require.Len(t, enq.tasks, 1)
	assert.Equal(t, tasks.TypeCallWake, enq.tasks[0].Type())
	var p tasks.CallWakePayload
	require.NoError(t, json.Unmarshal(enq.tasks[0].Payload(), &p))
	assert.Equal(t, tasks.CallWakePayload{CallID: "c1", CallerID: "A", ReceiverID: "B", CallKind: domain.CallKindAudio}, p)
}

func TestDispatcher_ScheduleRingTimeout(t *testing.T) {
	enq := &recordingEnqueuer{}
	d := tasks.NewDispatcher(enq)

	require.NoError(t, d.ScheduleRingTimeout(context.Background(), "c1", 30*time.Second))

	require.Len(t, enq.tasks, 1)
	assert.Equal(t, tasks.TypeCallRingTimeout, enq.tasks[0].Type())
	require.Len(t, enq.opts[0], 1)
	assert.Equal(t, asynq.ProcessInOpt, enq.opts[0][0].Type())
	assert.Equal(t, 30*time.Second, enq.opts[0][0].Value())
}

func TestDispatcher_EnqueueError(t *testing.T) {
	d := tasks.NewDispatcher(&recordingEnqueuer{err: errors.New("redis down")})

	err := d.WakeForCall(context.Background(), &domain.Call{ID: "c1"})
	assert.ErrorContains(t, err, "c1")

	err = d.ScheduleRingTimeout(context.Background(), "c2", time.Second)
	assert.ErrorContains(t, err, "c2")
}
