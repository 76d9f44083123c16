package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/hibiken/asynq"

	"github.com/cleanflow/api/internal/model"
	"github.com/cleanflow/api/internal/workflow"
)

// WorkflowWorker applies queued workflow events
type WorkflowWorker struct {
	tracker *workflow.Tracker
}

func NewWorkflowWorker(tracker *workflow.Tracker) *WorkflowWorker {
	return &WorkflowWorker{tracker: tracker}
}

// ProcessTask handles one queued workflow event
func (w *WorkflowWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var ev model.WorkflowEvent
	if err := json.Unmarshal(t.Payload(), &ev); err != nil {
		return fmt.Errorf("failed to unmarshal workflow event: %v: %w", err, asynq.SkipRetry)
	}

	result, err := w.tracker.Handle(ctx, ev)
	if err != nil {
		if errors.Is(err, model.ErrValidation) || errors.Is(err, model.ErrNotFound) {
			log.Printf("Rejected workflow event %s for job %s: %v", ev.Type, ev.JobID, err)
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}

	log.Printf("Workflow event %s for job %s %s, state %s", ev.Type, ev.JobID, result.Outcome, result.Job.State)
	return nil
}
