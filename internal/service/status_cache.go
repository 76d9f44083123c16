package service

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/cleanflow/api/internal/aggregate"
	"github.com/cleanflow/api/internal/metrics"
	"github.com/cleanflow/api/internal/model"
)

// StatusCache memoizes derived property status by document version. An
// entry is only served when its version matches the document just read,
// so it can never answer with an outdated status.
type StatusCache struct {
	entries *lru.Cache[string, model.PropertyStatus]
	metrics *metrics.Recorder
}

func NewStatusCache(size int, recorder *metrics.Recorder) (*StatusCache, error) {
	if size <= 0 {
		size = 1024
	}
	entries, err := lru.New[string, model.PropertyStatus](size)
	if err != nil {
		return nil, err
	}
	return &StatusCache{entries: entries, metrics: recorder}, nil
}

// Status returns the derived status of p
func (c *StatusCache) Status(p *model.Property) model.PropertyStatus {
	if c == nil {
		return aggregate.Status(p)
	}
	if st, ok := c.entries.Get(p.PropertyID); ok && st.Version == p.Version {
		c.metrics.IncCacheLookup(true)
		return st
	}
	c.metrics.IncCacheLookup(false)
	st := aggregate.Status(p)
	c.entries.Add(p.PropertyID, st)
	return st
}

// Invalidate drops the entry for a property
func (c *StatusCache) Invalidate(propertyID string) {
	if c == nil {
		return
	}
	c.entries.Remove(propertyID)
}
