package model

import "time"

// Property is a serviceable location holding the room/task tree
type Property struct {
	ID            string       `json:"id"`
	PropertyID    string       `json:"propertyId" validate:"required,max=64"`
	Name          string       `json:"name" validate:"required"`
	Address       string       `json:"address" validate:"required"`
	Type          PropertyType `json:"type" validate:"omitempty,oneof=apartment house office commercial"`
	SquareFootage int          `json:"squareFootage" validate:"min=0"`
	IsActive      bool         `json:"isActive"`
	AssignedTo    string       `json:"assignedTo,omitempty" validate:"max=128"`
	ScheduledTime *time.Time   `json:"scheduledTime,omitempty"`
	Manual        *Manual      `json:"manual,omitempty"`
	RoomTasks     []RoomTask   `json:"roomTasks" validate:"dive"`
	Version       int64        `json:"version"`
	CreatedAt     time.Time    `json:"createdAt"`
	UpdatedAt     time.Time    `json:"updatedAt"`
}

// DefaultManualTitle names a manual created without a title
const DefaultManualTitle = "Live Cleaning & Maintenance Manual"

// Manual is the cleaning and maintenance guide shown to the assigned cleaner
type Manual struct {
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// RoomTask groups the tasks of one room. IsCompleted is an advisory hint;
// the derived room status is authoritative.
type RoomTask struct {
	RoomType            string    `json:"roomType" validate:"required"`
	EstimatedTime       string    `json:"estimatedTime,omitempty"`
	SpecialInstructions []string  `json:"specialInstructions,omitempty"`
	Tasks               []Task    `json:"tasks" validate:"dive"`
	IsCompleted         bool      `json:"isCompleted"`
	UpdatedAt           time.Time `json:"updatedAt,omitempty"`
}

// Task is the smallest unit of cleaning work
type Task struct {
	Description string               `json:"description" validate:"required"`
	Recurrence  string               `json:"recurrence,omitempty"`
	IsCompleted bool                 `json:"isCompleted"`
	CompletedAt *time.Time           `json:"completedAt,omitempty"`
	Notes       string               `json:"notes,omitempty"`
	Photos      []Photo              `json:"photos"`
	Issues      []Issue              `json:"issues"`
	FieldClock  map[string]time.Time `json:"fieldClock,omitempty"`
	UpdatedAt   time.Time            `json:"updatedAt,omitempty"`
}

// Photo is immutable once attached to a task
type Photo struct {
	ID         string    `json:"id"`
	URL        string    `json:"url"`
	Type       PhotoType `json:"type"`
	UploadedAt time.Time `json:"uploadedAt"`
	Tags       []string  `json:"tags"`
	Notes      string    `json:"notes,omitempty"`
	UploadedBy string    `json:"uploadedBy,omitempty"`
}

// Issue is a problem reported against a task. Only the resolution
// fields change after creation.
type Issue struct {
	ID          string     `json:"id"`
	Type        string     `json:"type"`
	Description string     `json:"description"`
	Severity    Severity   `json:"severity"`
	IsResolved  bool       `json:"isResolved"`
	ResolvedAt  *time.Time `json:"resolvedAt,omitempty"`
	ReportedBy  string     `json:"reportedBy,omitempty"`
	ReportedAt  time.Time  `json:"reportedAt"`
}

// Clone returns a deep copy so callers can mutate without touching shared state
func (p *Property) Clone() *Property {
	if p == nil {
		return nil
	}
	cp := *p
	if p.ScheduledTime != nil {
		at := *p.ScheduledTime
		cp.ScheduledTime = &at
	}
	if p.Manual != nil {
		m := *p.Manual
		cp.Manual = &m
	}
	cp.RoomTasks = make([]RoomTask, len(p.RoomTasks))
	for i, room := range p.RoomTasks {
		cp.RoomTasks[i] = room
		if room.SpecialInstructions != nil {
			cp.RoomTasks[i].SpecialInstructions = append([]string(nil), room.SpecialInstructions...)
		}
		cp.RoomTasks[i].Tasks = make([]Task, len(room.Tasks))
		for j, task := range room.Tasks {
			t := task
			if task.Photos != nil {
				t.Photos = append(make([]Photo, 0, len(task.Photos)), task.Photos...)
			}
			if task.Issues != nil {
				t.Issues = append(make([]Issue, 0, len(task.Issues)), task.Issues...)
			}
			if task.FieldClock != nil {
				t.FieldClock = make(map[string]time.Time, len(task.FieldClock))
				for k, v := range task.FieldClock {
					t.FieldClock[k] = v
				}
			}
			cp.RoomTasks[i].Tasks[j] = t
		}
	}
	return &cp
}

// TaskCount returns total and completed task counts across all rooms
func (p *Property) TaskCount() (total, completed int) {
	for _, room := range p.RoomTasks {
		for _, task := range room.Tasks {
			total++
			if task.IsCompleted {
				completed++
			}
		}
	}
	return total, completed
}
