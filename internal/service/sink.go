package service

import (
	"context"

	"github.com/cleanflow/api/internal/model"
	"github.com/cleanflow/api/internal/workflow"
)

// EventSink receives the workflow events produced by task mutations
type EventSink interface {
	Emit(ctx context.Context, ev model.WorkflowEvent) error
}

// TrackerSink hands events straight to the tracker
type TrackerSink struct {
	tracker *workflow.Tracker
}

func NewTrackerSink(tracker *workflow.Tracker) *TrackerSink {
	return &TrackerSink{tracker: tracker}
}

func (s *TrackerSink) Emit(ctx context.Context, ev model.WorkflowEvent) error {
	_, err := s.tracker.Handle(ctx, ev)
	return err
}
