package worker

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"github.com/cleanflow/api/internal/model"
	"github.com/cleanflow/api/internal/store"
	"github.com/cleanflow/api/internal/workflow"
)

// ReconcileWorker re-derives the counters of open jobs from the task
// record store. Jobs are best-effort projections; the store wins.
type ReconcileWorker struct {
	tracker    *workflow.Tracker
	store      store.Store
	staleAfter time.Duration
	now        func() time.Time
}

func NewReconcileWorker(tracker *workflow.Tracker, st store.Store, staleAfter time.Duration) *ReconcileWorker {
	return &ReconcileWorker{
		tracker:    tracker,
		store:      st,
		staleAfter: staleAfter,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// ProcessTask runs one reconciliation pass
func (w *ReconcileWorker) ProcessTask(ctx context.Context, _ *asynq.Task) error {
	_, err := w.ReconcileAll(ctx)
	return err
}

// ReconcileAll reconciles every open job linked to a property and returns
// how many jobs changed
func (w *ReconcileWorker) ReconcileAll(ctx context.Context) (int, error) {
	jobs, err := w.tracker.List(ctx)
	if err != nil {
		return 0, err
	}

	now := w.now()
	changed := 0
	for _, job := range jobs {
		if job.State.Terminal() || job.PropertyID == "" {
			continue
		}
		p, err := w.store.Get(ctx, job.PropertyID)
		if errors.Is(err, model.ErrNotFound) {
			log.Printf("Job %s references unknown property %s", job.JobID, job.PropertyID)
			continue
		}
		if err != nil {
			return changed, err
		}

		total, completed := p.TaskCount()
		res, err := w.tracker.Reconcile(ctx, job.JobID, completed, total, now)
		if err != nil {
			log.Printf("Failed to reconcile job %s: %v", job.JobID, err)
			continue
		}
		if res.Outcome == workflow.OutcomeApplied {
			changed++
			log.Printf("Reconciled job %s: %d/%d tasks, state %s", job.JobID, res.Job.CompletedTaskCount, res.Job.CriticalTaskCount, res.Job.State)
		}
	}

	if w.staleAfter > 0 {
		idle, err := w.tracker.Idle(ctx, now.Add(-w.staleAfter))
		if err != nil {
			return changed, err
		}
		for _, job := range idle {
			log.Printf("Job %s idle in %s since %s", job.JobID, job.State, job.UpdatedAt.Format(time.RFC3339))
		}
	}
	return changed, nil
}
