package model

import "time"

// WorkflowJob is the real-time progress projection of a cleaning job.
// It is best-effort; the task record store stays authoritative.
type WorkflowJob struct {
	JobID              string    `json:"jobId"`
	PropertyID         string    `json:"propertyId,omitempty"`
	State              JobState  `json:"state"`
	CurrentRoom        string    `json:"currentRoom,omitempty"`
	CompletedTaskCount int       `json:"completedTaskCount"`
	CriticalTaskCount  int       `json:"criticalTaskCount"`
	NoteCount          int       `json:"noteCount"`
	BeforePhotoCount   int       `json:"beforePhotoCount"`
	AfterPhotoCount    int       `json:"afterPhotoCount"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
	// ReconciledAt is the server time of the last counter repair
	ReconciledAt time.Time `json:"reconciledAt,omitempty"`
}

// WorkflowEvent advances a workflow job. CompletedTaskCount, when set, is
// the number of completed tasks the task record store held after the
// write that produced the event; the job adopts it instead of counting.
type WorkflowEvent struct {
	JobID              string    `json:"jobId" validate:"required,max=128"`
	Type               EventType `json:"type" validate:"required,oneof=task_completed task_reopened photo_uploaded note_added room_entered cancel"`
	PhotoType          PhotoType `json:"photoType,omitempty" validate:"omitempty,oneof=before during after"`
	Room               string    `json:"room,omitempty"`
	PropertyID         string    `json:"propertyId,omitempty"`
	CriticalTaskCount  int       `json:"criticalTaskCount,omitempty" validate:"min=0"`
	CompletedTaskCount *int      `json:"completedTaskCount,omitempty" validate:"omitempty,min=0"`
	ActorID            string    `json:"actorId,omitempty"`
	UpdatedAt          time.Time `json:"updatedAt" validate:"required"`
}

// JobDelta is the record pushed to observers after a job transition
type JobDelta struct {
	JobID              string    `json:"jobId"`
	State              JobState  `json:"state"`
	CompletedTaskCount int       `json:"completedTaskCount"`
	CriticalTaskCount  int       `json:"criticalTaskCount"`
	CurrentRoom        string    `json:"currentRoom,omitempty"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// Delta builds the broadcast record for the job
func (j *WorkflowJob) Delta() JobDelta {
	return JobDelta{
		JobID:              j.JobID,
		State:              j.State,
		CompletedTaskCount: j.CompletedTaskCount,
		CriticalTaskCount:  j.CriticalTaskCount,
		CurrentRoom:        j.CurrentRoom,
		UpdatedAt:          j.UpdatedAt,
	}
}

// Supersedes reports whether d should replace the locally held delta.
// updatedAt is the fencing token: equal or older deltas are discarded.
func (d JobDelta) Supersedes(held *JobDelta) bool {
	if held == nil {
		return true
	}
	return d.UpdatedAt.After(held.UpdatedAt)
}

// PropertyDelta announces a task-level change to dashboard observers
type PropertyDelta struct {
	PropertyID string    `json:"propertyId"`
	Bucket     Bucket    `json:"bucket,omitempty"`
	RoomIndex  int       `json:"roomIndex"`
	TaskIndex  int       `json:"taskIndex"`
	Field      Field     `json:"field"`
	UpdatedAt  time.Time `json:"updatedAt"`
}
