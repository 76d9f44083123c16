package store

import (
	"time"

	"github.com/cleanflow/api/internal/aggregate"
	"github.com/cleanflow/api/internal/model"
)

// Apply writes a single field-path mutation into doc. It touches only the
// addressed field; a write whose timestamp is not newer than the field's
// last write is discarded and reported as stale.
func Apply(doc *model.Property, m model.Mutation) (stale bool, err error) {
	if m.Timestamp.IsZero() {
		return false, model.Validationf("mutation timestamp is required")
	}
	path := m.Path
	if path.RoomIndex < 0 || path.RoomIndex >= len(doc.RoomTasks) {
		return false, model.NotFoundf("room %d", path.RoomIndex)
	}
	room := &doc.RoomTasks[path.RoomIndex]

	if path.Field == model.FieldRoomCompletion {
		done, ok := m.Value.(bool)
		if !ok {
			return false, model.Validationf("%s expects a boolean", path)
		}
		applied := false
		for i := range room.Tasks {
			if setCompletion(&room.Tasks[i], done, m.Timestamp) {
				applied = true
			}
		}
		if !applied {
			return true, nil
		}
		stamp(doc, room, nil, m.Timestamp)
		return false, nil
	}

	if path.TaskIndex < 0 || path.TaskIndex >= len(room.Tasks) {
		return false, model.NotFoundf("task %d in room %d", path.TaskIndex, path.RoomIndex)
	}
	task := &room.Tasks[path.TaskIndex]

	switch path.Field {
	case model.FieldCompletion:
		done, ok := m.Value.(bool)
		if !ok {
			return false, model.Validationf("%s expects a boolean", path)
		}
		if !setCompletion(task, done, m.Timestamp) {
			return true, nil
		}

	case model.FieldNotes:
		note, ok := m.Value.(string)
		if !ok {
			return false, model.Validationf("%s expects a string", path)
		}
		if !claim(task, path.ClockKey(), m.Timestamp) {
			return true, nil
		}
		task.Notes = note

	case model.FieldPhotos:
		photo, ok := m.Value.(model.Photo)
		if !ok || photo.ID == "" {
			return false, model.Validationf("%s expects a photo with an id", path)
		}
		for _, existing := range task.Photos {
			if existing.ID == photo.ID {
				return true, nil
			}
		}
		task.Photos = append(task.Photos, photo)

	case model.FieldIssues:
		issue, ok := m.Value.(model.Issue)
		if !ok || issue.ID == "" {
			return false, model.Validationf("%s expects an issue with an id", path)
		}
		for _, existing := range task.Issues {
			if existing.ID == issue.ID {
				return true, nil
			}
		}
		task.Issues = append(task.Issues, issue)

	case model.FieldIssueResolution:
		resolved, ok := m.Value.(bool)
		if !ok {
			return false, model.Validationf("%s expects a boolean", path)
		}
		idx := -1
		for i := range task.Issues {
			if task.Issues[i].ID == path.IssueID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return false, model.NotFoundf("issue %s", path.IssueID)
		}
		if !claim(task, path.ClockKey(), m.Timestamp) {
			return true, nil
		}
		issue := &task.Issues[idx]
		issue.IsResolved = resolved
		if resolved {
			at := m.Timestamp
			issue.ResolvedAt = &at
		} else {
			issue.ResolvedAt = nil
		}

	default:
		return false, model.Validationf("unknown field %q", path.Field)
	}

	stamp(doc, room, task, m.Timestamp)
	return false, nil
}

// claim advances the field clock when ts is newer than the last write
func claim(task *model.Task, key string, ts time.Time) bool {
	if last, ok := task.FieldClock[key]; ok && !ts.After(last) {
		return false
	}
	if task.FieldClock == nil {
		task.FieldClock = make(map[string]time.Time)
	}
	task.FieldClock[key] = ts
	return true
}

func setCompletion(task *model.Task, done bool, ts time.Time) bool {
	if !claim(task, string(model.FieldCompletion), ts) {
		return false
	}
	switch {
	case done && !task.IsCompleted:
		at := ts
		task.CompletedAt = &at
	case !done:
		task.CompletedAt = nil
	}
	task.IsCompleted = done
	if ts.After(task.UpdatedAt) {
		task.UpdatedAt = ts
	}
	return true
}

// stamp moves updatedAt forward on the task, room and property and
// refreshes the room's advisory completion hint
func stamp(doc *model.Property, room *model.RoomTask, task *model.Task, ts time.Time) {
	if task != nil && ts.After(task.UpdatedAt) {
		task.UpdatedAt = ts
	}
	if ts.After(room.UpdatedAt) {
		room.UpdatedAt = ts
	}
	if ts.After(doc.UpdatedAt) {
		doc.UpdatedAt = ts
	}
	room.IsCompleted = aggregate.RoomCompleted(room)
}
