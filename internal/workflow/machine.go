// Package workflow tracks the progress of cleaning jobs as a forward-only
// state machine fed by field events.
package workflow

import (
	"time"

	"github.com/cleanflow/api/internal/model"
)

// Outcome describes what an event did to a job
type Outcome string

const (
	// OutcomeApplied means the job changed and a delta should be published
	OutcomeApplied Outcome = "applied"
	// OutcomeDiscarded means the event was not newer than the job
	OutcomeDiscarded Outcome = "discarded"
	// OutcomeIgnored means the job was already terminal
	OutcomeIgnored Outcome = "ignored"
)

// Start builds the pending job an event creates when its jobId is unknown.
// Every creating event except cancel must name the critical task count.
func Start(ev model.WorkflowEvent) (*model.WorkflowJob, error) {
	if ev.Type != model.EventCancel && ev.CriticalTaskCount < 1 {
		return nil, model.Validationf("job %s is unknown and event carries no criticalTaskCount", ev.JobID)
	}
	return &model.WorkflowJob{
		JobID:      ev.JobID,
		PropertyID: ev.PropertyID,
		State:      model.JobStatePending,
		CreatedAt:  ev.UpdatedAt,
	}, nil
}

// Apply computes the job that results from ev. The input is never modified.
func Apply(job *model.WorkflowJob, ev model.WorkflowEvent) (model.WorkflowJob, Outcome) {
	next := *job
	if !job.UpdatedAt.IsZero() && !ev.UpdatedAt.After(job.UpdatedAt) {
		return next, OutcomeDiscarded
	}
	if job.State.Terminal() {
		return next, OutcomeIgnored
	}

	if next.PropertyID == "" {
		next.PropertyID = ev.PropertyID
	}
	if ev.CriticalTaskCount > 0 {
		next.CriticalTaskCount = max(ev.CriticalTaskCount, next.CompletedTaskCount)
	}

	switch ev.Type {
	case model.EventTaskCompleted:
		begin(&next)
		switch {
		case ev.CompletedTaskCount != nil:
			next.CompletedTaskCount = *ev.CompletedTaskCount
		case next.CompletedTaskCount < next.CriticalTaskCount:
			next.CompletedTaskCount++
		}
	case model.EventTaskReopened:
		begin(&next)
		switch {
		case ev.CompletedTaskCount != nil:
			next.CompletedTaskCount = *ev.CompletedTaskCount
		case next.CompletedTaskCount > 0:
			next.CompletedTaskCount--
		}
	case model.EventPhotoUploaded:
		begin(&next)
		switch ev.PhotoType {
		case model.PhotoTypeBefore:
			next.BeforePhotoCount++
		case model.PhotoTypeAfter:
			next.AfterPhotoCount++
		}
	case model.EventNoteAdded:
		next.NoteCount++
	case model.EventRoomEntered:
		next.CurrentRoom = ev.Room
	case model.EventCancel:
		next.State = model.JobStateCancelled
	}

	if next.CriticalTaskCount > 0 {
		next.CompletedTaskCount = min(next.CompletedTaskCount, next.CriticalTaskCount)
	}
	settle(&next)
	next.UpdatedAt = ev.UpdatedAt
	return next, OutcomeApplied
}

// Reconcile resets the counters of job from the authoritative task counts.
// A terminal job is left alone so a completed job is never reopened.
// ts is server time and only orders reconcile passes. UpdatedAt stays in
// the event clock and advances by one nanosecond.
func Reconcile(job *model.WorkflowJob, completed, critical int, ts time.Time) (model.WorkflowJob, Outcome) {
	next := *job
	if !job.ReconciledAt.IsZero() && !ts.After(job.ReconciledAt) {
		return next, OutcomeDiscarded
	}
	if job.State.Terminal() {
		return next, OutcomeIgnored
	}
	if critical < 1 {
		return next, OutcomeIgnored
	}

	next.CriticalTaskCount = critical
	next.CompletedTaskCount = min(completed, critical)
	if next.CompletedTaskCount > 0 {
		begin(&next)
	}
	settle(&next)

	if next == *job {
		return next, OutcomeIgnored
	}
	next.UpdatedAt = job.UpdatedAt.Add(time.Nanosecond)
	next.ReconciledAt = ts
	return next, OutcomeApplied
}

func begin(job *model.WorkflowJob) {
	if job.State == model.JobStatePending {
		job.State = model.JobStateInProgress
	}
}

// settle completes the job once every critical task is done
func settle(job *model.WorkflowJob) {
	if job.State.Terminal() || job.CriticalTaskCount < 1 {
		return
	}
	if job.CompletedTaskCount >= job.CriticalTaskCount {
		job.State = model.JobStateCompleted
	}
}
