package service

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cleanflow/api/internal/aggregate"
	"github.com/cleanflow/api/internal/metrics"
	"github.com/cleanflow/api/internal/model"
	"github.com/cleanflow/api/internal/store"
)

// PropertyPublisher receives a delta after every applied task mutation
type PropertyPublisher interface {
	PublishProperty(delta model.PropertyDelta)
}

// TaskRef addresses a task inside a property
type TaskRef struct {
	PropertyID string
	RoomIndex  int
	TaskIndex  int
}

// Coordinator applies task mutations to the task record store. Each
// mutation touches one field path; concurrent writers to different fields
// of the same property never lose each other's writes.
type Coordinator struct {
	store     store.Store
	publisher PropertyPublisher
	sink      EventSink
	cache     *StatusCache
	metrics   *metrics.Recorder
	now       func() time.Time
}

func NewCoordinator(st store.Store, publisher PropertyPublisher, sink EventSink, cache *StatusCache, recorder *metrics.Recorder) *Coordinator {
	return &Coordinator{
		store:     st,
		publisher: publisher,
		sink:      sink,
		cache:     cache,
		metrics:   recorder,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetTaskCompletion marks a task done or not done
func (s *Coordinator) SetTaskCompletion(ctx context.Context, ref TaskRef, req *model.SetCompletionRequest, actorID string) (*model.TaskView, error) {
	ts := s.timestamp(req.MutationMeta)
	res, err := s.apply(ctx, ref.PropertyID, model.Mutation{
		Path:      model.FieldPath{RoomIndex: ref.RoomIndex, TaskIndex: ref.TaskIndex, Field: model.FieldCompletion},
		Value:     *req.IsCompleted,
		Timestamp: ts,
		ActorID:   actorID,
	})
	if err != nil {
		return nil, err
	}

	if !res.Stale {
		s.emit(ctx, req.JobID, res.Property, completionEvent(res.Property, ref.RoomIndex, *req.IsCompleted), actorID, ts)
	}
	return taskView(ref, res), nil
}

// SetTaskNote replaces a task's maintenance note
func (s *Coordinator) SetTaskNote(ctx context.Context, ref TaskRef, req *model.SetNoteRequest, actorID string) (*model.TaskView, error) {
	ts := s.timestamp(req.MutationMeta)
	res, err := s.apply(ctx, ref.PropertyID, model.Mutation{
		Path:      model.FieldPath{RoomIndex: ref.RoomIndex, TaskIndex: ref.TaskIndex, Field: model.FieldNotes},
		Value:     strings.TrimSpace(req.Notes),
		Timestamp: ts,
		ActorID:   actorID,
	})
	if err != nil {
		return nil, err
	}
	if !res.Stale {
		s.emit(ctx, req.JobID, res.Property, model.WorkflowEvent{Type: model.EventNoteAdded, Room: roomType(res.Property, ref.RoomIndex)}, actorID, ts)
	}
	return taskView(ref, res), nil
}

// AppendPhoto attaches a stored photo to a task
func (s *Coordinator) AppendPhoto(ctx context.Context, ref TaskRef, req *model.AddPhotoRequest, actorID string) (*model.PhotoView, error) {
	ts := s.timestamp(req.MutationMeta)
	tags := req.Tags
	if tags == nil {
		tags = []string{}
	}
	photo := model.Photo{
		ID:         uuid.New().String(),
		URL:        req.URL,
		Type:       req.Type,
		UploadedAt: ts,
		Tags:       tags,
		Notes:      req.Notes,
		UploadedBy: actorID,
	}

	res, err := s.apply(ctx, ref.PropertyID, model.Mutation{
		Path:      model.FieldPath{RoomIndex: ref.RoomIndex, TaskIndex: ref.TaskIndex, Field: model.FieldPhotos},
		Value:     photo,
		Timestamp: ts,
		ActorID:   actorID,
	})
	if err != nil {
		return nil, err
	}
	if !res.Stale {
		s.emit(ctx, req.JobID, res.Property, model.WorkflowEvent{Type: model.EventPhotoUploaded, PhotoType: photo.Type, Room: roomType(res.Property, ref.RoomIndex)}, actorID, ts)
	}
	return &model.PhotoView{
		PropertyID: ref.PropertyID,
		RoomIndex:  ref.RoomIndex,
		TaskIndex:  ref.TaskIndex,
		Photo:      photo,
	}, nil
}

// AppendIssue reports an issue against a task
func (s *Coordinator) AppendIssue(ctx context.Context, ref TaskRef, req *model.AddIssueRequest, actorID string) (*model.IssueView, error) {
	ts := s.timestamp(req.MutationMeta)
	severity := req.Severity
	if severity == "" {
		severity = model.SeverityMedium
	}
	issue := model.Issue{
		ID:          uuid.New().String(),
		Type:        strings.TrimSpace(req.Type),
		Description: strings.TrimSpace(req.Description),
		Severity:    severity,
		ReportedBy:  actorID,
		ReportedAt:  ts,
	}
	if issue.Type == "" || issue.Description == "" {
		return nil, model.Validationf("issue type and description are required")
	}

	res, err := s.apply(ctx, ref.PropertyID, model.Mutation{
		Path:      model.FieldPath{RoomIndex: ref.RoomIndex, TaskIndex: ref.TaskIndex, Field: model.FieldIssues},
		Value:     issue,
		Timestamp: ts,
		ActorID:   actorID,
	})
	if err != nil {
		return nil, err
	}
	return &model.IssueView{
		PropertyID: ref.PropertyID,
		RoomIndex:  ref.RoomIndex,
		TaskIndex:  ref.TaskIndex,
		Stale:      res.Stale,
		Issue:      issue,
	}, nil
}

// ResolveIssue flips the resolution flag of an issue
func (s *Coordinator) ResolveIssue(ctx context.Context, ref TaskRef, issueID string, req *model.ResolveIssueRequest, actorID string) (*model.IssueView, error) {
	ts := s.timestamp(req.MutationMeta)
	res, err := s.apply(ctx, ref.PropertyID, model.Mutation{
		Path:      model.FieldPath{RoomIndex: ref.RoomIndex, TaskIndex: ref.TaskIndex, Field: model.FieldIssueResolution, IssueID: issueID},
		Value:     *req.IsResolved,
		Timestamp: ts,
		ActorID:   actorID,
	})
	if err != nil {
		return nil, err
	}

	for _, issue := range res.Property.RoomTasks[ref.RoomIndex].Tasks[ref.TaskIndex].Issues {
		if issue.ID == issueID {
			return &model.IssueView{
				PropertyID: ref.PropertyID,
				RoomIndex:  ref.RoomIndex,
				TaskIndex:  ref.TaskIndex,
				Stale:      res.Stale,
				Issue:      issue,
			}, nil
		}
	}
	return nil, model.NotFoundf("issue %s", issueID)
}

// SetRoomCompletion is the operator override for a whole room. It writes
// completion to every task in the room under the usual per-task ordering;
// the room flag is then re-derived from the tasks.
func (s *Coordinator) SetRoomCompletion(ctx context.Context, propertyID string, roomIndex int, req *model.SetCompletionRequest, actorID string) (*model.RoomView, error) {
	ts := s.timestamp(req.MutationMeta)
	res, err := s.apply(ctx, propertyID, model.Mutation{
		Path:      model.FieldPath{RoomIndex: roomIndex, Field: model.FieldRoomCompletion},
		Value:     *req.IsCompleted,
		Timestamp: ts,
		ActorID:   actorID,
	})
	if err != nil {
		return nil, err
	}

	if !res.Stale {
		s.emit(ctx, req.JobID, res.Property, completionEvent(res.Property, roomIndex, *req.IsCompleted), actorID, ts)
	}
	room := res.Property.RoomTasks[roomIndex]
	return &model.RoomView{
		PropertyID: propertyID,
		RoomIndex:  roomIndex,
		Stale:      res.Stale,
		Status:     aggregate.RoomStatuses(res.Property)[roomIndex],
		RoomTask:   room,
	}, nil
}

func (s *Coordinator) apply(ctx context.Context, propertyID string, m model.Mutation) (*store.Result, error) {
	field := string(m.Path.Field)
	start := time.Now()
	res, err := s.store.ApplyMutation(ctx, propertyID, m)
	s.metrics.ObserveMutation(field, time.Since(start))
	if err != nil {
		s.metrics.IncMutation(field, metrics.OutcomeError)
		if errors.Is(err, model.ErrConflict) {
			log.Printf("Mutation %s on %s gave up after retries: %v", m.Path, propertyID, err)
		}
		return nil, err
	}

	if res.Stale {
		s.metrics.IncMutation(field, metrics.OutcomeStale)
		return res, nil
	}
	s.metrics.IncMutation(field, metrics.OutcomeApplied)
	s.cache.Invalidate(propertyID)

	if s.publisher != nil {
		bucket, _ := aggregate.Classify(res.Property)
		s.publisher.PublishProperty(model.PropertyDelta{
			PropertyID: propertyID,
			Bucket:     bucket,
			RoomIndex:  m.Path.RoomIndex,
			TaskIndex:  m.Path.TaskIndex,
			Field:      m.Path.Field,
			UpdatedAt:  res.Property.UpdatedAt,
		})
	}
	return res, nil
}

// emit forwards a workflow event when the mutation belongs to a job.
// The task record store is authoritative, so a failed emit is only logged;
// reconciliation repairs the job later.
func (s *Coordinator) emit(ctx context.Context, jobID string, p *model.Property, ev model.WorkflowEvent, actorID string, ts time.Time) {
	if jobID == "" || s.sink == nil {
		return
	}
	total, _ := p.TaskCount()
	ev.JobID = jobID
	ev.PropertyID = p.PropertyID
	ev.CriticalTaskCount = total
	ev.ActorID = actorID
	ev.UpdatedAt = ts
	if err := s.sink.Emit(ctx, ev); err != nil {
		log.Printf("Failed to emit %s for job %s: %v", ev.Type, jobID, err)
	}
}

// completionEvent carries the store's completed count so that toggling a
// task back and forth never inflates the job's counter
func completionEvent(p *model.Property, roomIndex int, done bool) model.WorkflowEvent {
	_, completed := p.TaskCount()
	ev := model.WorkflowEvent{
		Type:               model.EventTaskCompleted,
		Room:               roomType(p, roomIndex),
		CompletedTaskCount: &completed,
	}
	if !done {
		ev.Type = model.EventTaskReopened
	}
	return ev
}

func (s *Coordinator) timestamp(meta model.MutationMeta) time.Time {
	if meta.UpdatedAt != nil && !meta.UpdatedAt.IsZero() {
		return meta.UpdatedAt.UTC()
	}
	return s.now()
}

func taskView(ref TaskRef, res *store.Result) *model.TaskView {
	return &model.TaskView{
		PropertyID: ref.PropertyID,
		RoomIndex:  ref.RoomIndex,
		TaskIndex:  ref.TaskIndex,
		Stale:      res.Stale,
		Task:       res.Property.RoomTasks[ref.RoomIndex].Tasks[ref.TaskIndex],
	}
}

func roomType(p *model.Property, roomIndex int) string {
	if roomIndex < 0 || roomIndex >= len(p.RoomTasks) {
		return ""
	}
	return p.RoomTasks[roomIndex].RoomType
}
