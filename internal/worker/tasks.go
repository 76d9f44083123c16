package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/cleanflow/api/internal/model"
)

const (
	TaskTypeWorkflowEvent = "workflow:event"
	TaskTypeReconcile     = "workflow:reconcile"

	QueueWorkflow = "workflow"
)

func newWorkflowEventTask(ev model.WorkflowEvent) (*asynq.Task, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeWorkflowEvent, data), nil
}

// NewReconcileTask builds the periodic reconciliation task
func NewReconcileTask() *asynq.Task {
	return asynq.NewTask(TaskTypeReconcile, nil)
}

// AsynqEmitter queues workflow events for the workflow worker
type AsynqEmitter struct {
	client *asynq.Client
}

func NewAsynqEmitter(client *asynq.Client) *AsynqEmitter {
	return &AsynqEmitter{client: client}
}

// Emit enqueues ev on the workflow queue
func (e *AsynqEmitter) Emit(ctx context.Context, ev model.WorkflowEvent) error {
	task, err := newWorkflowEventTask(ev)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	_, err = e.client.EnqueueContext(ctx, task,
		asynq.Queue(QueueWorkflow),
		asynq.MaxRetry(5),
		asynq.Retention(time.Hour),
	)
	if err != nil {
		return fmt.Errorf("%w: failed to enqueue workflow event: %v", model.ErrTransport, err)
	}
	return nil
}
