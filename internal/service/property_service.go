package service

import (
	"context"
	"strings"
	"time"

	"github.com/cleanflow/api/internal/aggregate"
	"github.com/cleanflow/api/internal/model"
	"github.com/cleanflow/api/internal/store"
)

// PropertyService handles property registration and the read side:
// status, dashboard and reports are derived from the stored documents on
// every call.
type PropertyService struct {
	store store.Store
	cache *StatusCache
}

func NewPropertyService(st store.Store, cache *StatusCache) *PropertyService {
	return &PropertyService{store: st, cache: cache}
}

// Create registers a property with its room/task tree
func (s *PropertyService) Create(ctx context.Context, req *model.CreatePropertyRequest) (*model.Property, error) {
	p := &model.Property{
		PropertyID:    req.PropertyID,
		Name:          req.Name,
		Address:       req.Address,
		Type:          req.Type,
		SquareFootage: req.SquareFootage,
		IsActive:      true,
		AssignedTo:    req.AssignedTo,
		ScheduledTime: req.ScheduledTime,
		RoomTasks:     make([]model.RoomTask, 0, len(req.RoomTasks)),
	}
	if req.Manual != nil {
		title := req.Manual.Title
		if title == "" {
			title = model.DefaultManualTitle
		}
		p.Manual = &model.Manual{Title: title, Content: req.Manual.Content, LastUpdated: time.Now().UTC()}
	}
	for _, r := range req.RoomTasks {
		room := model.RoomTask{
			RoomType:            r.RoomType,
			EstimatedTime:       r.EstimatedTime,
			SpecialInstructions: r.SpecialInstructions,
			Tasks:               make([]model.Task, 0, len(r.Tasks)),
		}
		for _, t := range r.Tasks {
			room.Tasks = append(room.Tasks, model.Task{
				Description: t.Description,
				Recurrence:  t.Recurrence,
				Photos:      []model.Photo{},
				Issues:      []model.Issue{},
			})
		}
		p.RoomTasks = append(p.RoomTasks, room)
	}
	return s.store.Create(ctx, p)
}

// Get returns a property with room flags reflecting the derived status
func (s *PropertyService) Get(ctx context.Context, propertyID string) (*model.Property, error) {
	p, err := s.store.Get(ctx, propertyID)
	if err != nil {
		return nil, err
	}
	aggregate.RefreshHints(p)
	return p, nil
}

// List returns properties, newest first. Inactive ones are skipped unless
// includeInactive is set.
func (s *PropertyService) List(ctx context.Context, includeInactive bool) ([]*model.Property, error) {
	props, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*model.Property, 0, len(props))
	for _, p := range props {
		if !p.IsActive && !includeInactive {
			continue
		}
		aggregate.RefreshHints(p)
		out = append(out, p)
	}
	return out, nil
}

// SetActive soft-deletes or restores a property
func (s *PropertyService) SetActive(ctx context.Context, propertyID string, active bool) (*model.Property, error) {
	p, err := s.store.SetActive(ctx, propertyID, active, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(propertyID)
	aggregate.RefreshHints(p)
	return p, nil
}

// Assign hands a property to a cleaner; an empty assignee clears it
func (s *PropertyService) Assign(ctx context.Context, propertyID, assignee string) (*model.Property, error) {
	p, err := s.store.Assign(ctx, propertyID, strings.TrimSpace(assignee), time.Now().UTC())
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(propertyID)
	aggregate.RefreshHints(p)
	return p, nil
}

// Assigned returns the active properties assigned to actorID
func (s *PropertyService) Assigned(ctx context.Context, actorID string) ([]*model.Property, error) {
	props, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*model.Property, 0)
	for _, p := range props {
		if !p.IsActive || actorID == "" || p.AssignedTo != actorID {
			continue
		}
		aggregate.RefreshHints(p)
		out = append(out, p)
	}
	return out, nil
}

// AssignedProperty returns a property only when it is assigned to actorID.
// Anyone else gets ErrNotFound so property ids do not leak.
func (s *PropertyService) AssignedProperty(ctx context.Context, actorID, propertyID string) (*model.Property, error) {
	p, err := s.Get(ctx, propertyID)
	if err != nil {
		return nil, err
	}
	if actorID == "" || p.AssignedTo != actorID {
		return nil, model.NotFoundf("property %s", propertyID)
	}
	return p, nil
}

// TaskStats reports actorID's progress across their assigned properties
func (s *PropertyService) TaskStats(ctx context.Context, actorID string) (*model.TaskStats, error) {
	props, err := s.Assigned(ctx, actorID)
	if err != nil {
		return nil, err
	}
	st := aggregate.CleanerStats(props)
	return &st, nil
}

// GetPropertyStatus returns the bucket and per-room status of a property
func (s *PropertyService) GetPropertyStatus(ctx context.Context, propertyID string) (*model.PropertyStatus, error) {
	p, err := s.store.Get(ctx, propertyID)
	if err != nil {
		return nil, err
	}
	st := s.cache.Status(p)
	return &st, nil
}

// Dashboard counts buckets and tasks across every property
func (s *PropertyService) Dashboard(ctx context.Context) (*model.Dashboard, error) {
	props, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	d := aggregate.Summarize(props)
	return &d, nil
}

// Reports builds a cleaning report for every property that falls in a bucket
func (s *PropertyService) Reports(ctx context.Context) ([]model.CleaningReport, error) {
	props, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	reports := make([]model.CleaningReport, 0, len(props))
	for _, p := range props {
		if _, included := aggregate.Classify(p); !included {
			continue
		}
		reports = append(reports, aggregate.Report(p))
	}
	return reports, nil
}
