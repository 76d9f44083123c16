package model

import (
	"fmt"
	"time"
)

// Field identifies the part of a task addressed by a mutation
type Field string

const (
	FieldCompletion      Field = "completion"
	FieldNotes           Field = "notes"
	FieldPhotos          Field = "photos"
	FieldIssues          Field = "issues"
	FieldIssueResolution Field = "issue_resolution"
	FieldRoomCompletion  Field = "room_completion"
)

// FieldPath addresses a single field inside a property document.
// TaskIndex is ignored for room-level fields.
type FieldPath struct {
	RoomIndex int    `json:"roomIndex"`
	TaskIndex int    `json:"taskIndex"`
	Field     Field  `json:"field"`
	IssueID   string `json:"issueId,omitempty"`
}

func (p FieldPath) String() string {
	if p.Field == FieldRoomCompletion {
		return fmt.Sprintf("roomTasks.%d.%s", p.RoomIndex, p.Field)
	}
	if p.IssueID != "" {
		return fmt.Sprintf("roomTasks.%d.tasks.%d.issues.%s.resolved", p.RoomIndex, p.TaskIndex, p.IssueID)
	}
	return fmt.Sprintf("roomTasks.%d.tasks.%d.%s", p.RoomIndex, p.TaskIndex, p.Field)
}

// ClockKey is the key under which the field's last write time is kept
func (p FieldPath) ClockKey() string {
	if p.Field == FieldIssueResolution {
		return "issues/" + p.IssueID + "/resolved"
	}
	return string(p.Field)
}

// Mutation is a single field-path write. Value type depends on Field:
// bool for completion fields, string for notes, Photo, Issue.
type Mutation struct {
	Path      FieldPath
	Value     interface{}
	Timestamp time.Time
	ActorID   string
}
