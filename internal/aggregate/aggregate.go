// Package aggregate derives room and property status from the task tree.
// Every function here is pure: results are recomputed from the document
// on each call and nothing is cached.
package aggregate

import (
	"math"

	"github.com/cleanflow/api/internal/model"
)

// RoomCompleted reports whether every task in the room is completed.
// A room without tasks never counts as done.
func RoomCompleted(room *model.RoomTask) bool {
	if len(room.Tasks) == 0 {
		return false
	}
	for i := range room.Tasks {
		if !room.Tasks[i].IsCompleted {
			return false
		}
	}
	return true
}

// Classify places a property in exactly one bucket. The second return value
// is false when the property belongs to no bucket (inactive and not done).
func Classify(p *model.Property) (model.Bucket, bool) {
	if len(p.RoomTasks) == 0 {
		if p.IsActive {
			return model.BucketNotStarted, true
		}
		return "", false
	}

	done := 0
	for i := range p.RoomTasks {
		if RoomCompleted(&p.RoomTasks[i]) {
			done++
		}
	}

	switch {
	case done == len(p.RoomTasks):
		return model.BucketCompleted, true
	case !p.IsActive:
		return "", false
	case done == 0:
		return model.BucketNotStarted, true
	default:
		return model.BucketInProgress, true
	}
}

// RoomStatuses derives the status of every room in order
func RoomStatuses(p *model.Property) []model.RoomStatus {
	statuses := make([]model.RoomStatus, 0, len(p.RoomTasks))
	for i := range p.RoomTasks {
		room := &p.RoomTasks[i]
		completed := 0
		for _, t := range room.Tasks {
			if t.IsCompleted {
				completed++
			}
		}
		derived := RoomCompleted(room)
		statuses = append(statuses, model.RoomStatus{
			Index:          i,
			RoomType:       room.RoomType,
			Completed:      derived,
			CompletedTasks: completed,
			TotalTasks:     len(room.Tasks),
			HintMismatch:   derived != room.IsCompleted,
		})
	}
	return statuses
}

// Status computes the full query-surface status of a property
func Status(p *model.Property) model.PropertyStatus {
	bucket, included := Classify(p)
	return model.PropertyStatus{
		PropertyID:   p.PropertyID,
		Bucket:       bucket,
		Included:     included,
		IsActive:     p.IsActive,
		RoomStatuses: RoomStatuses(p),
		Version:      p.Version,
	}
}

// RefreshHints overwrites every room's advisory flag with the derived status
func RefreshHints(p *model.Property) {
	for i := range p.RoomTasks {
		p.RoomTasks[i].IsCompleted = RoomCompleted(&p.RoomTasks[i])
	}
}

// Summarize counts buckets and tasks across all properties
func Summarize(props []*model.Property) model.Dashboard {
	var d model.Dashboard
	d.TotalProperties = len(props)
	for _, p := range props {
		bucket, included := Classify(p)
		if !included {
			d.Excluded++
		}
		switch bucket {
		case model.BucketNotStarted:
			d.NotStarted++
		case model.BucketInProgress:
			d.InProgress++
		case model.BucketCompleted:
			d.Completed++
		}
		total, completed := p.TaskCount()
		d.TotalTasks += total
		d.CompletedTasks += completed
	}
	if d.TotalTasks > 0 {
		rate := float64(d.CompletedTasks) / float64(d.TotalTasks) * 100
		d.CompletionRate = math.Round(rate*10) / 10
	}
	return d
}

// Report builds the cleaning report row for a property
func Report(p *model.Property) model.CleaningReport {
	bucket, _ := Classify(p)
	total, completed := p.TaskCount()

	r := model.CleaningReport{
		PropertyID:       p.PropertyID,
		Name:             p.Name,
		Address:          p.Address,
		Bucket:           bucket,
		Rooms:            []string{},
		TotalTasks:       total,
		CompletedTasks:   completed,
		UnresolvedIssues: []string{},
		UpdatedAt:        p.UpdatedAt,
	}
	if total > 0 {
		r.CompletionPercentage = int(math.Round(float64(completed) / float64(total) * 100))
	}

	seen := make(map[string]bool)
	for _, room := range p.RoomTasks {
		if !seen[room.RoomType] {
			seen[room.RoomType] = true
			r.Rooms = append(r.Rooms, room.RoomType)
		}
		for _, task := range room.Tasks {
			r.Photos += len(task.Photos)
			for _, issue := range task.Issues {
				if !issue.IsResolved {
					r.UnresolvedIssues = append(r.UnresolvedIssues, issue.Description)
				}
			}
			if task.CompletedAt != nil && (r.LastCompletedAt == nil || task.CompletedAt.After(*r.LastCompletedAt)) {
				at := *task.CompletedAt
				r.LastCompletedAt = &at
			}
		}
	}
	return r
}

// CleanerStats sums room and task progress over the properties handed to
// one cleaner
func CleanerStats(props []*model.Property) model.TaskStats {
	st := model.TaskStats{Properties: len(props)}
	for _, p := range props {
		for i := range p.RoomTasks {
			room := &p.RoomTasks[i]
			st.TotalRooms++
			if RoomCompleted(room) {
				st.CompletedRooms++
			}
			for _, task := range room.Tasks {
				st.TotalTasks++
				if task.IsCompleted {
					st.CompletedTasks++
				}
			}
		}
	}
	st.PendingRooms = st.TotalRooms - st.CompletedRooms
	if st.TotalRooms > 0 {
		rate := float64(st.CompletedRooms) / float64(st.TotalRooms) * 100
		st.CompletionRate = math.Round(rate*10) / 10
	}
	return st
}
