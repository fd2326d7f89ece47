package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/RezaEskandarii/genjob/internal/message_broaker"
	"github.com/RezaEskandarii/genjob/types"
	"github.com/RezaEskandarii/genjob/types/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testQueues = config.QueueConfig{Dispatch: "d", Lifecycle: "l", Control: "c"}

func next(t *testing.T, ch <-chan []byte) types.LifecycleEvent {
	t.Helper()
	select {
	case body := <-ch:
		evt, err := Decode(body)
		require.NoError(t, err)
		return evt
	case <-time.After(time.Second):
		t.Fatal("no event")
		return types.LifecycleEvent{}
	}
}

func TestPublisher_DispatchedGoesToBothQueues(t *testing.T) {
	broker := message_broaker.NewInMemory()
	defer broker.Close()
	ctx := context.Background()
	p := NewPublisher(broker, testQueues)

	job := &types.Job{ID: "p-n-0", ProjectID: "p"}
	require.NoError(t, p.Publish(ctx, Dispatched(job)))

	dispatch, _ := broker.Consume(ctx, "d")
	life, _ := broker.Consume(ctx, "l")

	evt := next(t, dispatch)
	assert.Equal(t, types.EventJobDispatched, evt.Type)
	assert.Equal(t, "p-n-0", evt.JobID)
	assert.False(t, evt.At.IsZero())

	assert.Equal(t, types.EventJobDispatched, next(t, life).Type)
}

func TestPublisher_OtherEventsOnlyOnLifecycleQueue(t *testing.T) {
	broker := message_broaker.NewInMemory()
	defer broker.Close()
	ctx := context.Background()
	p := NewPublisher(broker, testQueues)

	job := &types.Job{ID: "p-n-0", ProjectID: "p"}
	require.NoError(t, p.Publish(ctx, Failed(job, "timeout")))

	life, _ := broker.Consume(ctx, "l")
	evt := next(t, life)
	assert.Equal(t, types.EventJobFailed, evt.Type)
	assert.Equal(t, "timeout", evt.Error)

	dispatch, _ := broker.Consume(ctx, "d")
	select {
	case <-dispatch:
		t.Fatal("failure events are not dispatched")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestPublisher_StopProjectBroadcasts(t *testing.T) {
	broker := message_broaker.NewInMemory()
	defer broker.Close()
	ctx := context.Background()
	p := NewPublisher(broker, testQueues)

	sub, err := broker.Subscribe(ctx, "c")
	require.NoError(t, err)

	require.NoError(t, p.StopProject(ctx, "p"))
	evt := next(t, sub)
	assert.Equal(t, types.EventProjectStop, evt.Type)
	assert.Equal(t, "p", evt.ProjectID)
}

func TestDecode_Invalid(t *testing.T) {
	_, err := Decode([]byte("not json"))
	assert.Error(t, err)
	_, err = Decode([]byte(`{"jobId":"x"}`))
	assert.Error(t, err)
}
