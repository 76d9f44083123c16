// Package store holds the task record store: one JSON document per
// property, mutated by single field-path writes with per-field
// last-writer-wins.
package store

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/cleanflow/api/internal/model"
)

const (
	minBackoff = time.Millisecond
	maxBackoff = 50 * time.Millisecond
)

// Store is the durable task record store
type Store interface {
	Get(ctx context.Context, propertyID string) (*model.Property, error)
	List(ctx context.Context) ([]*model.Property, error)
	Create(ctx context.Context, p *model.Property) (*model.Property, error)
	SetActive(ctx context.Context, propertyID string, active bool, ts time.Time) (*model.Property, error)
	Assign(ctx context.Context, propertyID, assignee string, ts time.Time) (*model.Property, error)
	ApplyMutation(ctx context.Context, propertyID string, m model.Mutation) (*Result, error)
	Close() error
}

// Result is the document after a mutation. Stale is set when the write lost
// to a newer one and nothing changed; Property then holds the winning value.
type Result struct {
	Property *model.Property
	Stale    bool
}

// updateFunc edits a fresh copy of the document and reports whether it changed
type updateFunc func(p *model.Property) (bool, error)

var validate = validator.New()

// prepareNew validates a new property and fills storage-owned fields
func prepareNew(p *model.Property) (*model.Property, error) {
	doc := p.Clone()
	doc.PropertyID = strings.TrimSpace(doc.PropertyID)
	doc.Name = strings.TrimSpace(doc.Name)
	doc.Address = strings.TrimSpace(doc.Address)

	if err := validate.Struct(doc); err != nil {
		return nil, model.Validationf("invalid property: %v", err)
	}

	now := time.Now().UTC()
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = doc.CreatedAt
	}
	doc.Version = 1

	for i := range doc.RoomTasks {
		room := &doc.RoomTasks[i]
		if room.Tasks == nil {
			room.Tasks = []model.Task{}
		}
		for j := range room.Tasks {
			task := &room.Tasks[j]
			if task.Photos == nil {
				task.Photos = []model.Photo{}
			}
			if task.Issues == nil {
				task.Issues = []model.Issue{}
			}
		}
	}
	if doc.RoomTasks == nil {
		doc.RoomTasks = []model.RoomTask{}
	}
	return doc, nil
}

func mutate(m model.Mutation) updateFunc {
	return func(p *model.Property) (bool, error) {
		stale, err := Apply(p, m)
		if err != nil {
			return false, err
		}
		return !stale, nil
	}
}

func setActive(active bool, ts time.Time) updateFunc {
	return func(p *model.Property) (bool, error) {
		if p.IsActive == active {
			return false, nil
		}
		p.IsActive = active
		if ts.After(p.UpdatedAt) {
			p.UpdatedAt = ts
		}
		return true, nil
	}
}

func assign(assignee string, ts time.Time) updateFunc {
	return func(p *model.Property) (bool, error) {
		if p.AssignedTo == assignee {
			return false, nil
		}
		p.AssignedTo = assignee
		if ts.After(p.UpdatedAt) {
			p.UpdatedAt = ts
		}
		return true, nil
	}
}

// backoff sleeps before optimistic attempt n+1. The delay doubles up to
// maxBackoff and is jittered so colliding writers spread out. It returns
// ctx's error once the caller gives up.
func backoff(ctx context.Context, n int) error {
	d := maxBackoff
	if n < 6 {
		d = min(minBackoff<<n, maxBackoff)
	}
	d = d/2 + time.Duration(rand.Int63n(int64(d/2)+1))

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Open returns the backend named by driver. redisClient is only used by
// the redis backend.
func Open(driver, sqlitePath string, redisClient *redis.Client) (Store, error) {
	switch driver {
	case "", "redis":
		if redisClient == nil {
			return nil, fmt.Errorf("redis store requires a redis client")
		}
		return NewRedisStore(redisClient), nil
	case "sqlite":
		return OpenSQLite(sqlitePath)
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}
