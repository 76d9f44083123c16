package websocket

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleanflow/api/internal/model"
)

var epoch = time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(nil)
	go hub.Run()
	t.Cleanup(hub.Close)
	return hub
}

func receive(t *testing.T, c *Client) model.WSJobMessage {
	t.Helper()
	select {
	case data, ok := <-c.Send:
		require.True(t, ok, "channel closed")
		var msg model.WSJobMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no delta received")
		return model.WSJobMessage{}
	}
}

func nothing(t *testing.T, c *Client) {
	t.Helper()
	select {
	case data := <-c.Send:
		t.Fatalf("unexpected delta %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func delta(jobID string, sec int, completed int) model.JobDelta {
	return model.JobDelta{
		JobID:              jobID,
		State:              model.JobStateInProgress,
		CompletedTaskCount: completed,
		CriticalTaskCount:  5,
		UpdatedAt:          epoch.Add(time.Duration(sec) * time.Second),
	}
}

func TestHubRoutesByTopic(t *testing.T) {
	hub := startHub(t)
	job := hub.Subscribe("obs-1", JobTopic("42"))
	other := hub.Subscribe("obs-2", JobTopic("7"))
	dashboard := hub.Subscribe("obs-3", TopicAll)

	hub.PublishJob(delta("42", 1, 1))

	msg := receive(t, job)
	assert.Equal(t, model.WSMessageTypeJobUpdate, msg.Type)
	assert.Equal(t, "42", msg.JobID)
	assert.Equal(t, 1, msg.CompletedTaskCount)
	assert.Equal(t, "42", receive(t, dashboard).JobID)
	nothing(t, other)
}

func TestHubPreservesOrderPerJob(t *testing.T) {
	hub := startHub(t)
	sub := hub.Subscribe("obs-1", JobTopic("42"))

	for i := 1; i <= 10; i++ {
		hub.PublishJob(delta("42", i, i))
	}
	for i := 1; i <= 10; i++ {
		assert.Equal(t, i, receive(t, sub).CompletedTaskCount)
	}
}

func TestHubPropertyDelta(t *testing.T) {
	hub := startHub(t)
	sub := hub.Subscribe("obs-1", PropertyTopic("prop-1"))

	hub.PublishProperty(model.PropertyDelta{PropertyID: "prop-1", Bucket: model.BucketInProgress, Field: model.FieldNotes})

	select {
	case data := <-sub.Send:
		var msg model.WSPropertyMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		assert.Equal(t, model.WSMessageTypePropertyUpdate, msg.Type)
		assert.Equal(t, model.BucketInProgress, msg.Bucket)
	case <-time.After(2 * time.Second):
		t.Fatal("no property delta")
	}
}

func TestHubDropsSlowSubscriber(t *testing.T) {
	hub := startHub(t)
	slow := hub.Subscribe("slow", JobTopic("42"))

	for i := 0; i <= cap(slow.Send); i++ {
		hub.PublishJob(delta("42", i, 0))
	}

	assert.Eventually(t, func() bool {
		return hub.Subscribers(JobTopic("42")) == 0
	}, 2*time.Second, 10*time.Millisecond)

	n := 0
	for range slow.Send {
		n++
	}
	assert.Equal(t, cap(slow.Send), n, "buffered deltas drain, then the channel closes")
}

func TestHubUnsubscribe(t *testing.T) {
	hub := startHub(t)
	sub := hub.Subscribe("obs-1", JobTopic("42"))
	hub.Unsubscribe(sub)

	_, ok := <-sub.Send
	assert.False(t, ok)
	assert.Equal(t, 0, hub.Subscribers(JobTopic("42")))
}

func TestClosedHubNeverBlocks(t *testing.T) {
	hub := NewHub(nil)
	hub.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		client := hub.Subscribe("obs-1", JobTopic("j-1"))
		_, open := <-client.Send
		assert.False(t, open)
		// more than the broadcast buffer holds
		for i := 0; i < 300; i++ {
			hub.PublishJob(delta("j-1", i, 1))
			hub.PublishProperty(model.PropertyDelta{PropertyID: "p-1", UpdatedAt: epoch})
		}
		hub.Unsubscribe(client)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("hub blocked after Close")
	}
}

func TestMergerFencesOnUpdatedAt(t *testing.T) {
	m := NewMerger()

	assert.True(t, m.Merge(delta("42", 2, 2)))
	assert.False(t, m.Merge(delta("42", 1, 1)), "older delta")
	assert.False(t, m.Merge(delta("42", 2, 2)), "duplicate delivery")
	assert.True(t, m.Merge(delta("42", 3, 3)))
	assert.True(t, m.Merge(delta("7", 1, 1)))

	held, ok := m.Get("42")
	require.True(t, ok)
	assert.Equal(t, 3, held.CompletedTaskCount)
}

func TestRedisRelayFansOutToHub(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	hub := startHub(t)
	sub := hub.Subscribe("obs-1", JobTopic("42"))
	relay := NewRedisRelay(rdb, hub)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	ready := make(chan struct{})
	go relay.Run(ctx, ready)
	select {
	case <-ready:
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not subscribe")
	}

	relay.PublishJob(delta("42", 1, 4))
	assert.Equal(t, 4, receive(t, sub).CompletedTaskCount)
}
