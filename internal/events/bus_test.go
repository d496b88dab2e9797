package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-studio/aura/internal/models"
)

func testBus(opts Options) *Bus {
	return NewBus(opts, nil)
}

func collect(t *testing.T, ch chan models.JobEvent, n int) []models.JobEvent {
	t.Helper()
	var out []models.JobEvent
	for i := 0; i < n; i++ {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for event %d of %d", i+1, n)
		}
	}
	return out
}

func TestPublishAssignsIncreasingIDs(t *testing.T) {
	bus := testBus(Options{})
	var last models.EventID
	for i := 0; i < 50; i++ {
		ev := bus.Publish("j1", models.JobEvent{Kind: models.EventStepProgress})
		assert.True(t, ev.ID.After(last), "event %d not after previous", i)
		last = ev.ID
	}
}

func TestSubscribeReplaysAfterLastEventID(t *testing.T) {
	bus := testBus(Options{})
	var ids []models.EventID
	for i := 0; i < 5; i++ {
		ev := bus.Publish("j1", models.JobEvent{Kind: models.EventStepProgress})
		ids = append(ids, ev.ID)
	}

	sub := bus.Subscribe(context.Background(), "j1", ids[1])
	defer sub.Close()

	got := collect(t, sub.Events, 3)
	require.Len(t, got, 3)
	assert.Equal(t, ids[2], got[0].ID)
	assert.Equal(t, ids[4], got[2].ID)
}

func TestSubscribeEvictedIDGetsResyncWarning(t *testing.T) {
	bus := testBus(Options{BufferSize: 4})
	first := bus.Publish("j1", models.JobEvent{Kind: models.EventStepProgress})
	for i := 0; i < 10; i++ {
		bus.Publish("j1", models.JobEvent{Kind: models.EventStepProgress})
	}

	sub := bus.Subscribe(context.Background(), "j1", first.ID)
	defer sub.Close()

	got := collect(t, sub.Events, 1)
	require.Len(t, got, 1)
	assert.Equal(t, models.EventWarning, got[0].Kind)
	assert.Contains(t, got[0].Message, "resync")
}

func TestTerminalEventClosesSubscribers(t *testing.T) {
	bus := testBus(Options{})
	sub := bus.Subscribe(context.Background(), "j1", models.EventID{})

	bus.Publish("j1", models.JobEvent{Kind: models.EventJobCompleted})

	got := collect(t, sub.Events, 1)
	require.Len(t, got, 1)
	assert.Equal(t, models.EventJobCompleted, got[0].Kind)

	_, open := <-sub.Events
	assert.False(t, open)
}

func TestLateSubscriberToTerminalJobGetsTerminalEventOnly(t *testing.T) {
	bus := testBus(Options{})
	bus.Publish("j1", models.JobEvent{Kind: models.EventJobStatus})
	bus.Publish("j1", models.JobEvent{Kind: models.EventStepProgress})
	bus.Publish("j1", models.JobEvent{Kind: models.EventJobFailed})

	sub := bus.Subscribe(context.Background(), "j1", models.EventID{})
	got := collect(t, sub.Events, 1)
	require.Len(t, got, 1)
	assert.Equal(t, models.EventJobFailed, got[0].Kind)

	_, open := <-sub.Events
	assert.False(t, open)
}

func TestLateSubscriberToTerminalJobResumesFromCursor(t *testing.T) {
	bus := testBus(Options{})
	first := bus.Publish("j1", models.JobEvent{Kind: models.EventJobStatus})
	bus.Publish("j1", models.JobEvent{Kind: models.EventStepProgress})
	bus.Publish("j1", models.JobEvent{Kind: models.EventJobCompleted})

	sub := bus.Subscribe(context.Background(), "j1", first.ID)
	got := collect(t, sub.Events, 2)
	require.Len(t, got, 2)
	assert.Equal(t, models.EventStepProgress, got[0].Kind)
	assert.Equal(t, models.EventJobCompleted, got[1].Kind)

	_, open := <-sub.Events
	assert.False(t, open)
}

func TestResumeReplayLargerThanBacklogLosesNothing(t *testing.T) {
	bus := testBus(Options{SubscriberBacklog: 8})
	var ids []models.EventID
	for i := 0; i < 40; i++ {
		ev := bus.Publish("j1", models.JobEvent{Kind: models.EventStepProgress})
		ids = append(ids, ev.ID)
	}

	sub := bus.Subscribe(context.Background(), "j1", ids[0])
	defer sub.Close()

	got := collect(t, sub.Events, 39)
	require.Len(t, got, 39)
	assert.Equal(t, ids[1], got[0].ID)
	assert.Equal(t, ids[39], got[38].ID)
	for i := 1; i < len(got); i++ {
		assert.True(t, got[i].ID.After(got[i-1].ID), "event %d out of order", i)
	}
}

func TestSlowSubscriberIsDropped(t *testing.T) {
	bus := testBus(Options{SubscriberBacklog: 2})
	sub := bus.Subscribe(context.Background(), "j1", models.EventID{})

	for i := 0; i < 5; i++ {
		bus.Publish("j1", models.JobEvent{Kind: models.EventStepProgress})
	}

	// Backlog of 2, then the third publish drops the subscriber.
	got := collect(t, sub.Events, 3)
	assert.Len(t, got, 2)
}

func TestLiveDeliveryAfterReplay(t *testing.T) {
	bus := testBus(Options{})
	bus.Publish("j1", models.JobEvent{Kind: models.EventJobStatus})

	sub := bus.Subscribe(context.Background(), "j1", models.EventID{})
	defer sub.Close()
	bus.Publish("j1", models.JobEvent{Kind: models.EventStepStatus})

	got := collect(t, sub.Events, 2)
	require.Len(t, got, 2)
	assert.Equal(t, models.EventJobStatus, got[0].Kind)
	assert.Equal(t, models.EventStepStatus, got[1].Kind)
	assert.True(t, got[1].ID.After(got[0].ID))
}

func TestSubscriberContextCancelDetaches(t *testing.T) {
	bus := testBus(Options{})
	ctx, cancel := context.WithCancel(context.Background())
	sub := bus.Subscribe(ctx, "j1", models.EventID{})

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, open := <-sub.Events:
			return !open
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)
}

func TestHeartbeatOnSilentStream(t *testing.T) {
	bus := testBus(Options{HeartbeatInterval: 30 * time.Millisecond})
	bus.Start()
	defer bus.Stop()

	sub := bus.Subscribe(context.Background(), "j1", models.EventID{})
	defer sub.Close()

	// Make the stream exist with an old last-event time.
	bus.Publish("j1", models.JobEvent{Kind: models.EventJobStatus})
	collect(t, sub.Events, 1)

	time.Sleep(100 * time.Millisecond)
	got := collect(t, sub.Events, 1)
	require.NotEmpty(t, got)
	assert.Equal(t, models.EventHeartbeat, got[0].Kind)
}
