package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleanflow/api/internal/metrics"
	"github.com/cleanflow/api/internal/model"
)

type recordingPublisher struct {
	mu     sync.Mutex
	deltas []model.JobDelta
}

func (p *recordingPublisher) PublishJob(d model.JobDelta) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deltas = append(p.deltas, d)
}

func (p *recordingPublisher) all() []model.JobDelta {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.JobDelta(nil), p.deltas...)
}

func newTracker(t *testing.T) (*Tracker, *recordingPublisher) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	pub := &recordingPublisher{}
	return NewTracker(rdb, pub, metrics.NewRecorder(prom.NewRegistry())), pub
}

func TestTrackerLifecycle(t *testing.T) {
	ctx := context.Background()
	tr, pub := newTracker(t)

	for i := 1; i <= 5; i++ {
		ev := event(model.EventTaskCompleted, i)
		ev.CriticalTaskCount = 5
		res, err := tr.Handle(ctx, ev)
		require.NoError(t, err)
		require.Equal(t, OutcomeApplied, res.Outcome)
		if i < 5 {
			assert.Equal(t, model.JobStateInProgress, res.Job.State)
		}
	}

	job, err := tr.Get(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, model.JobStateCompleted, job.State)

	res, err := tr.Cancel(ctx, "42", ts(6))
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, res.Outcome)
	assert.Equal(t, model.JobStateCompleted, res.Job.State)

	deltas := pub.all()
	require.Len(t, deltas, 5, "ignored events publish nothing")
	for i := 1; i < len(deltas); i++ {
		assert.True(t, deltas[i].Supersedes(&deltas[i-1]))
	}
	assert.Equal(t, model.JobStateCompleted, deltas[4].State)
}

func TestTrackerUnknownJob(t *testing.T) {
	ctx := context.Background()
	tr, pub := newTracker(t)

	_, err := tr.Handle(ctx, event(model.EventTaskCompleted, 1))
	assert.True(t, errors.Is(err, model.ErrValidation))

	_, err = tr.Get(ctx, "42")
	assert.True(t, errors.Is(err, model.ErrNotFound))

	_, err = tr.Cancel(ctx, "42", ts(1))
	assert.True(t, errors.Is(err, model.ErrNotFound))

	_, err = tr.Reconcile(ctx, "42", 1, 2, ts(1))
	assert.True(t, errors.Is(err, model.ErrNotFound))
	assert.Empty(t, pub.all())
}

func TestTrackerDiscardsLateEvent(t *testing.T) {
	ctx := context.Background()
	tr, pub := newTracker(t)

	ev := event(model.EventTaskCompleted, 10)
	ev.CriticalTaskCount = 3
	_, err := tr.Handle(ctx, ev)
	require.NoError(t, err)

	late := event(model.EventTaskCompleted, 5)
	res, err := tr.Handle(ctx, late)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDiscarded, res.Outcome)
	assert.Equal(t, 1, res.Job.CompletedTaskCount)
	assert.Len(t, pub.all(), 1)
}

func TestTrackerConcurrentEventsStayOrdered(t *testing.T) {
	ctx := context.Background()
	tr, pub := newTracker(t)

	seed := event(model.EventRoomEntered, 0)
	seed.CriticalTaskCount = 50
	_, err := tr.Handle(ctx, seed)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 1; i <= 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := tr.Handle(ctx, event(model.EventNoteAdded, i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	deltas := pub.all()
	for i := 1; i < len(deltas); i++ {
		assert.True(t, deltas[i].UpdatedAt.After(deltas[i-1].UpdatedAt), "published deltas are strictly increasing")
	}
}

func TestTrackerReplicasShareJob(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	newReplica := func() *Tracker {
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { rdb.Close() })
		return NewTracker(rdb, nil, metrics.NewRecorder(prom.NewRegistry()))
	}
	// separate trackers hold separate locks, so writes race on WATCH
	replicas := []*Tracker{newReplica(), newReplica(), newReplica(), newReplica()}

	seed := event(model.EventRoomEntered, 0)
	seed.CriticalTaskCount = 100
	_, err := replicas[0].Handle(ctx, seed)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 1; i <= 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := replicas[i%len(replicas)].Handle(ctx, event(model.EventNoteAdded, i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	job, err := replicas[0].Get(ctx, "42")
	require.NoError(t, err)
	assert.True(t, job.UpdatedAt.Equal(ts(40)))
	assert.GreaterOrEqual(t, job.NoteCount, 1)
}

func TestBackoffStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, backoff(ctx, 0))
	cancel()
	assert.ErrorIs(t, backoff(ctx, 10), context.Canceled)
}

func TestTrackerListAndIdle(t *testing.T) {
	ctx := context.Background()
	tr, _ := newTracker(t)

	for _, id := range []string{"a", "b"} {
		ev := event(model.EventRoomEntered, 1)
		ev.JobID = id
		ev.CriticalTaskCount = 2
		_, err := tr.Handle(ctx, ev)
		require.NoError(t, err)
	}
	_, err := tr.Cancel(ctx, "b", ts(2))
	require.NoError(t, err)

	jobs, err := tr.List(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "b", jobs[0].JobID)

	idle, err := tr.Idle(ctx, ts(100))
	require.NoError(t, err)
	require.Len(t, idle, 1)
	assert.Equal(t, "a", idle[0].JobID)
}

func TestTrackerReconcile(t *testing.T) {
	ctx := context.Background()
	tr, pub := newTracker(t)

	ev := event(model.EventTaskCompleted, 1)
	ev.CriticalTaskCount = 3
	_, err := tr.Handle(ctx, ev)
	require.NoError(t, err)

	res, err := tr.Reconcile(ctx, "42", 3, 3, ts(2))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)
	assert.Equal(t, model.JobStateCompleted, res.Job.State)
	assert.Len(t, pub.all(), 2)
}
