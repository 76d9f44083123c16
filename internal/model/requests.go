package model

import "time"

// CreatePropertyRequest represents the request to register a property
type CreatePropertyRequest struct {
	PropertyID    string            `json:"propertyId" yaml:"propertyId" validate:"required,max=64"`
	Name          string            `json:"name" yaml:"name" validate:"required"`
	Address       string            `json:"address" yaml:"address" validate:"required"`
	Type          PropertyType      `json:"type" yaml:"type" validate:"omitempty,oneof=apartment house office commercial"`
	SquareFootage int               `json:"squareFootage" yaml:"squareFootage" validate:"min=0"`
	AssignedTo    string            `json:"assignedTo,omitempty" yaml:"assignedTo,omitempty" validate:"max=128"`
	ScheduledTime *time.Time        `json:"scheduledTime,omitempty" yaml:"scheduledTime,omitempty"`
	Manual        *ManualRequest    `json:"manual,omitempty" yaml:"manual,omitempty"`
	RoomTasks     []RoomTaskRequest `json:"roomTasks" yaml:"roomTasks" validate:"omitempty,dive"`
}

// ManualRequest carries the property's cleaning manual
type ManualRequest struct {
	Title   string `json:"title,omitempty" yaml:"title,omitempty" validate:"max=200"`
	Content string `json:"content" yaml:"content" validate:"required"`
}

// RoomTaskRequest describes a room when creating a property
type RoomTaskRequest struct {
	RoomType            string        `json:"roomType" yaml:"roomType" validate:"required"`
	EstimatedTime       string        `json:"estimatedTime,omitempty" yaml:"estimatedTime,omitempty" validate:"max=64"`
	SpecialInstructions []string      `json:"specialInstructions,omitempty" yaml:"specialInstructions,omitempty" validate:"omitempty,max=50"`
	Tasks               []TaskRequest `json:"tasks" yaml:"tasks" validate:"omitempty,dive"`
}

// TaskRequest describes a task when creating a property
type TaskRequest struct {
	Description string `json:"description" yaml:"description" validate:"required"`
	Recurrence  string `json:"recurrence,omitempty" yaml:"recurrence,omitempty"`
}

// SetActiveRequest soft-deletes or restores a property
type SetActiveRequest struct {
	IsActive *bool `json:"isActive" validate:"required"`
}

// AssignRequest hands a property to a cleaner. An empty assignedTo
// clears the assignment.
type AssignRequest struct {
	AssignedTo *string `json:"assignedTo" validate:"required,max=128"`
}

// MutationMeta is shared by every task mutation request. UpdatedAt is the
// actor's clock used for last-writer-wins; JobID links the change to a
// workflow job.
type MutationMeta struct {
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
	JobID     string     `json:"jobId,omitempty" validate:"omitempty,max=128"`
}

// SetCompletionRequest flips a task or room completion flag
type SetCompletionRequest struct {
	IsCompleted *bool `json:"isCompleted" validate:"required"`
	MutationMeta
}

// SetNoteRequest replaces a task's maintenance note
type SetNoteRequest struct {
	Notes string `json:"notes" validate:"max=4000"`
	MutationMeta
}

// AddPhotoRequest attaches an already stored photo url
type AddPhotoRequest struct {
	URL   string    `json:"url" validate:"required,url"`
	Type  PhotoType `json:"type" validate:"required,oneof=before during after"`
	Tags  []string  `json:"tags" validate:"omitempty,max=20"`
	Notes string    `json:"notes" validate:"max=2000"`
	MutationMeta
}

// AddIssueRequest reports an issue on a task
type AddIssueRequest struct {
	Type        string   `json:"type" validate:"required"`
	Description string   `json:"description" validate:"required"`
	Severity    Severity `json:"severity" validate:"omitempty,oneof=low medium high"`
	MutationMeta
}

// ResolveIssueRequest flips an issue's resolution flag
type ResolveIssueRequest struct {
	IsResolved *bool `json:"isResolved" validate:"required"`
	MutationMeta
}

// TaskView is a task enriched with its parent ids
type TaskView struct {
	PropertyID string `json:"propertyId"`
	RoomIndex  int    `json:"roomIndex"`
	TaskIndex  int    `json:"taskIndex"`
	Stale      bool   `json:"stale"`
	Task
}

// RoomView is a room enriched with its parent id and derived status
type RoomView struct {
	PropertyID string     `json:"propertyId"`
	RoomIndex  int        `json:"roomIndex"`
	Stale      bool       `json:"stale"`
	Status     RoomStatus `json:"status"`
	RoomTask
}

// PhotoView is a photo enriched with its parent ids
type PhotoView struct {
	PropertyID string `json:"propertyId"`
	RoomIndex  int    `json:"roomIndex"`
	TaskIndex  int    `json:"taskIndex"`
	Photo
}

// IssueView is an issue enriched with its parent ids
type IssueView struct {
	PropertyID string `json:"propertyId"`
	RoomIndex  int    `json:"roomIndex"`
	TaskIndex  int    `json:"taskIndex"`
	Stale      bool   `json:"stale"`
	Issue
}

// CancelJobRequest cancels a workflow job
type CancelJobRequest struct {
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}
