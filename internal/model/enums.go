package model

// Property types
type PropertyType string

const (
	PropertyTypeApartment  PropertyType = "apartment"
	PropertyTypeHouse      PropertyType = "house"
	PropertyTypeOffice     PropertyType = "office"
	PropertyTypeCommercial PropertyType = "commercial"
)

// Photo types
type PhotoType string

const (
	PhotoTypeBefore PhotoType = "before"
	PhotoTypeDuring PhotoType = "during"
	PhotoTypeAfter  PhotoType = "after"
)

var ValidPhotoTypes = []PhotoType{PhotoTypeBefore, PhotoTypeDuring, PhotoTypeAfter}

// Issue severity
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Bucket is the derived status of a property
type Bucket string

const (
	BucketNotStarted Bucket = "not_started"
	BucketInProgress Bucket = "in_progress"
	BucketCompleted  Bucket = "completed"
)

// Workflow job states
type JobState string

const (
	JobStatePending    JobState = "pending"
	JobStateInProgress JobState = "in_progress"
	JobStateCompleted  JobState = "completed"
	JobStateCancelled  JobState = "cancelled"
)

// Terminal reports whether no further event may change the state
func (s JobState) Terminal() bool {
	return s == JobStateCompleted || s == JobStateCancelled
}

// Workflow event types
type EventType string

const (
	EventTaskCompleted EventType = "task_completed"
	EventTaskReopened  EventType = "task_reopened"
	EventPhotoUploaded EventType = "photo_uploaded"
	EventNoteAdded     EventType = "note_added"
	EventRoomEntered   EventType = "room_entered"
	EventCancel        EventType = "cancel"
)

// Actor roles supplied by the authentication collaborator
const (
	RoleCleaner = "cleaner"
	RoleAdmin   = "admin"
	RoleSystem  = "system"
)
