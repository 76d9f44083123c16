package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"log"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cleanflow/api/internal/metrics"
	"github.com/cleanflow/api/internal/model"
)

const (
	jobIndexKey = "workflow:jobs"
	lockStripes = 64
	minBackoff  = time.Millisecond
	maxBackoff  = 50 * time.Millisecond
)

// Publisher receives a job delta once the transition is durable
type Publisher interface {
	PublishJob(delta model.JobDelta)
}

// Result is the job after an event together with what the event did
type Result struct {
	Job     *model.WorkflowJob
	Outcome Outcome
}

// Tracker owns workflow jobs. Events for the same job are applied and
// published one at a time so observers see transitions in order.
type Tracker struct {
	redis     *redis.Client
	publisher Publisher
	metrics   *metrics.Recorder
	locks     [lockStripes]sync.Mutex
}

func NewTracker(redisClient *redis.Client, publisher Publisher, recorder *metrics.Recorder) *Tracker {
	return &Tracker{
		redis:     redisClient,
		publisher: publisher,
		metrics:   recorder,
	}
}

func jobKey(jobID string) string {
	return fmt.Sprintf("workflow:job:%s", jobID)
}

func (t *Tracker) lock(jobID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(jobID))
	return &t.locks[h.Sum32()%lockStripes]
}

// Handle applies a workflow event, creating the job when its id is unknown
func (t *Tracker) Handle(ctx context.Context, ev model.WorkflowEvent) (*Result, error) {
	if ev.JobID == "" {
		return nil, model.Validationf("jobId is required")
	}
	if ev.UpdatedAt.IsZero() {
		return nil, model.Validationf("updatedAt is required")
	}

	return t.transition(ctx, ev.JobID, string(ev.Type), func(job *model.WorkflowJob) (*model.WorkflowJob, error) {
		if job == nil {
			created, err := Start(ev)
			if err != nil {
				return nil, err
			}
			job = created
		}
		next, outcome := Apply(job, ev)
		if outcome != OutcomeApplied {
			log.Printf("Workflow event %s for job %s %s (state %s)", ev.Type, ev.JobID, outcome, job.State)
			return nil, nil
		}
		return &next, nil
	})
}

// Cancel moves an existing job to cancelled
func (t *Tracker) Cancel(ctx context.Context, jobID string, ts time.Time) (*Result, error) {
	if _, err := t.Get(ctx, jobID); err != nil {
		return nil, err
	}
	return t.Handle(ctx, model.WorkflowEvent{
		JobID:     jobID,
		Type:      model.EventCancel,
		ActorID:   model.RoleSystem,
		UpdatedAt: ts,
	})
}

// Reconcile resets an existing job's counters from the task record store
func (t *Tracker) Reconcile(ctx context.Context, jobID string, completed, critical int, ts time.Time) (*Result, error) {
	return t.transition(ctx, jobID, "reconcile", func(job *model.WorkflowJob) (*model.WorkflowJob, error) {
		if job == nil {
			return nil, model.NotFoundf("job %s", jobID)
		}
		next, outcome := Reconcile(job, completed, critical, ts)
		if outcome != OutcomeApplied {
			return nil, nil
		}
		return &next, nil
	})
}

// transition runs fn under the job's lock and persists its result. fn
// returns nil to leave the job untouched.
func (t *Tracker) transition(ctx context.Context, jobID, kind string, fn func(*model.WorkflowJob) (*model.WorkflowJob, error)) (*Result, error) {
	mu := t.lock(jobID)
	mu.Lock()
	defer mu.Unlock()

	key := jobKey(jobID)
	for attempt := 0; ; attempt++ {
		var result *Result
		from := model.JobState("none")

		err := t.redis.Watch(ctx, func(tx *redis.Tx) error {
			current, err := loadJob(ctx, tx, jobID)
			if err != nil && !errors.Is(err, model.ErrNotFound) {
				return err
			}
			if current != nil {
				from = current.State
			}

			next, err := fn(current)
			if err != nil {
				return err
			}
			if next == nil {
				if current == nil {
					return model.NotFoundf("job %s", jobID)
				}
				result = &Result{Job: current, Outcome: OutcomeDiscarded}
				if current.State.Terminal() {
					result.Outcome = OutcomeIgnored
				}
				return nil
			}

			data, err := json.Marshal(next)
			if err != nil {
				return fmt.Errorf("failed to marshal job: %w", err)
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, data, 0)
				pipe.SAdd(ctx, jobIndexKey, jobID)
				return nil
			})
			if err != nil {
				return err
			}
			result = &Result{Job: next, Outcome: OutcomeApplied}
			return nil
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			// another replica wrote the job between WATCH and EXEC
			if err := backoff(ctx, attempt); err != nil {
				t.metrics.IncWorkflowEvent(kind, "error")
				return nil, fmt.Errorf("%w: job %s: %w", model.ErrConflict, jobID, err)
			}
			continue
		}
		if err != nil {
			t.metrics.IncWorkflowEvent(kind, "error")
			return nil, err
		}

		t.metrics.IncWorkflowEvent(kind, string(result.Outcome))
		if result.Outcome == OutcomeApplied {
			if from != result.Job.State {
				t.metrics.IncTransition(string(from), string(result.Job.State))
			}
			if t.publisher != nil {
				t.publisher.PublishJob(result.Job.Delta())
			}
		}
		return result, nil
	}
}

func backoff(ctx context.Context, n int) error {
	d := maxBackoff
	if n < 6 {
		d = min(minBackoff<<n, maxBackoff)
	}
	d = d/2 + time.Duration(rand.Int63n(int64(d/2)+1))

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Get returns a job by id
func (t *Tracker) Get(ctx context.Context, jobID string) (*model.WorkflowJob, error) {
	return loadJob(ctx, t.redis, jobID)
}

// List returns every job, most recently updated first
func (t *Tracker) List(ctx context.Context) ([]*model.WorkflowJob, error) {
	ids, err := t.redis.SMembers(ctx, jobIndexKey).Result()
	if err != nil {
		return nil, err
	}
	jobs := make([]*model.WorkflowJob, 0, len(ids))
	if len(ids) == 0 {
		return jobs, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = jobKey(id)
	}
	values, err := t.redis.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var job model.WorkflowJob
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			return nil, fmt.Errorf("failed to unmarshal job: %w", err)
		}
		jobs = append(jobs, &job)
	}
	sort.SliceStable(jobs, func(i, j int) bool {
		return jobs[i].UpdatedAt.After(jobs[j].UpdatedAt)
	})
	return jobs, nil
}

// Idle returns the non-terminal jobs that saw no event since before cutoff
func (t *Tracker) Idle(ctx context.Context, cutoff time.Time) ([]*model.WorkflowJob, error) {
	jobs, err := t.List(ctx)
	if err != nil {
		return nil, err
	}
	idle := make([]*model.WorkflowJob, 0)
	for _, job := range jobs {
		if !job.State.Terminal() && job.UpdatedAt.Before(cutoff) {
			idle = append(idle, job)
		}
	}
	t.metrics.SetIdleJobs(len(idle))
	return idle, nil
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func loadJob(ctx context.Context, c getter, jobID string) (*model.WorkflowJob, error) {
	data, err := c.Get(ctx, jobKey(jobID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, model.NotFoundf("job %s", jobID)
		}
		return nil, err
	}
	var job model.WorkflowJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return &job, nil
}
