package model

import "time"

// RoomStatus is the derived status of one room
type RoomStatus struct {
	Index          int    `json:"index"`
	RoomType       string `json:"roomType"`
	Completed      bool   `json:"completed"`
	CompletedTasks int    `json:"completedTasks"`
	TotalTasks     int    `json:"totalTasks"`
	HintMismatch   bool   `json:"hintMismatch,omitempty"`
}

// PropertyStatus is the query-surface answer for a single property.
// Included is false when the property falls in no bucket (inactive and
// not completed).
type PropertyStatus struct {
	PropertyID   string       `json:"propertyId"`
	Bucket       Bucket       `json:"bucket,omitempty"`
	Included     bool         `json:"included"`
	IsActive     bool         `json:"isActive"`
	RoomStatuses []RoomStatus `json:"roomStatuses"`
	Version      int64        `json:"version"`
}

// Dashboard aggregates every property in the store
type Dashboard struct {
	TotalProperties int     `json:"totalProperties"`
	NotStarted      int     `json:"notStarted"`
	InProgress      int     `json:"inProgress"`
	Completed       int     `json:"completed"`
	Excluded        int     `json:"excluded"`
	TotalTasks      int     `json:"totalTasks"`
	CompletedTasks  int     `json:"completedTasks"`
	CompletionRate  float64 `json:"completionRate"`
}

// CleaningReport summarizes the work done at a property
type CleaningReport struct {
	PropertyID           string     `json:"propertyId"`
	Name                 string     `json:"name"`
	Address              string     `json:"address"`
	Bucket               Bucket     `json:"bucket,omitempty"`
	Rooms                []string   `json:"rooms"`
	TotalTasks           int        `json:"totalTasks"`
	CompletedTasks       int        `json:"completedTasks"`
	CompletionPercentage int        `json:"completionPercentage"`
	Photos               int        `json:"photos"`
	UnresolvedIssues     []string   `json:"unresolvedIssues"`
	LastCompletedAt      *time.Time `json:"lastCompletedAt,omitempty"`
	UpdatedAt            time.Time  `json:"updatedAt"`
}

// TaskStats is a cleaner's progress over the rooms of the properties
// assigned to them. A room counts as done once every task in it is.
type TaskStats struct {
	Properties     int     `json:"properties"`
	TotalRooms     int     `json:"totalRooms"`
	CompletedRooms int     `json:"completedRooms"`
	PendingRooms   int     `json:"pendingRooms"`
	TotalTasks     int     `json:"totalTasks"`
	CompletedTasks int     `json:"completedTasks"`
	CompletionRate float64 `json:"completionRate"`
}
