package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case e, ok := <-ch:
		require.True(t, ok, "channel closed")
		return e
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func TestLocalFanOut(t *testing.T) {
	bus := NewLocal(nil)
	ctx := context.Background()

	a, cancelA, err := bus.Subscribe(ctx)
	require.NoError(t, err)
	defer cancelA()
	b, cancelB, err := bus.Subscribe(ctx)
	require.NoError(t, err)
	defer cancelB()

	require.NoError(t, bus.Publish(ctx, Event{Type: VoteCast, QuestionID: "q1"}))

	ea := receive(t, a)
	eb := receive(t, b)
	assert.Equal(t, VoteCast, ea.Type)
	assert.Equal(t, "q1", eb.QuestionID)
	assert.False(t, ea.At.IsZero())
}

func TestLocalCancelClosesChannel(t *testing.T) {
	bus := NewLocal(nil)
	ch, cancel, err := bus.Subscribe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, bus.Subscribers())

	cancel()
	cancel()
	_, ok := <-ch
	assert.False(t, ok)
	assert.Equal(t, 0, bus.Subscribers())

	require.NoError(t, bus.Publish(context.Background(), Event{Type: TopicsUpdated}))
}

func TestLocalContextCancelUnsubscribes(t *testing.T) {
	bus := NewLocal(nil)
	ctx, cancel := context.WithCancel(context.Background())
	ch, _, err := bus.Subscribe(ctx)
	require.NoError(t, err)

	cancel()
	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("subscription not released")
	}
}

func TestLocalSlowSubscriberDoesNotBlock(t *testing.T) {
	bus := NewLocal(nil)
	_, cancel, err := bus.Subscribe(context.Background())
	require.NoError(t, err)
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*2; i++ {
			_ = bus.Publish(context.Background(), Event{Type: TopicsUpdated})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
}

func TestLocalClose(t *testing.T) {
	bus := NewLocal(nil)
	ch, _, err := bus.Subscribe(context.Background())
	require.NoError(t, err)

	require.NoError(t, bus.Close())
	_, ok := <-ch
	assert.False(t, ok)
}
