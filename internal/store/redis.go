package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cleanflow/api/internal/aggregate"
	"github.com/cleanflow/api/internal/model"
)

const propertyIndexKey = "properties"

// RedisStore splits each property over several keys: a header holding the
// property fields and room layout, one key per task and a version counter.
// A task write WATCHes only the task keys it touches, so writers on
// different tasks of one property never retry against each other.
type RedisStore struct {
	redis *redis.Client
}

// propertyHeader is the property without its tasks. TaskCounts records
// how many task keys each room owns; the layout never changes after create.
type propertyHeader struct {
	Property   model.Property `json:"property"`
	TaskCounts []int          `json:"taskCounts"`
}

func NewRedisStore(redisClient *redis.Client) *RedisStore {
	return &RedisStore{redis: redisClient}
}

func propertyKey(propertyID string) string {
	return fmt.Sprintf("property:%s", propertyID)
}

func versionKey(propertyID string) string {
	return fmt.Sprintf("property:%s:version", propertyID)
}

func taskKey(propertyID string, roomIndex, taskIndex int) string {
	return fmt.Sprintf("property:%s:room:%d:task:%d", propertyID, roomIndex, taskIndex)
}

// Get loads a property document
func (s *RedisStore) Get(ctx context.Context, propertyID string) (*model.Property, error) {
	hdr, err := s.header(ctx, s.redis, propertyID)
	if err != nil {
		return nil, err
	}
	return s.snapshot(ctx, s.redis, propertyID, hdr)
}

// List returns every property, newest first
func (s *RedisStore) List(ctx context.Context) ([]*model.Property, error) {
	ids, err := s.redis.SMembers(ctx, propertyIndexKey).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []*model.Property{}, nil
	}

	headerCmds := make([]*redis.StringCmd, len(ids))
	_, err = s.redis.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			headerCmds[i] = pipe.Get(ctx, propertyKey(id))
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	type pending struct {
		id  string
		hdr *propertyHeader
		cmd *redis.SliceCmd
	}
	var reads []pending
	for i, cmd := range headerCmds {
		data, err := cmd.Bytes()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, err
		}
		hdr, err := decodeHeader(data)
		if err != nil {
			return nil, err
		}
		reads = append(reads, pending{id: ids[i], hdr: hdr})
	}

	_, err = s.redis.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i := range reads {
			reads[i].cmd = pipe.MGet(ctx, snapshotKeys(reads[i].id, reads[i].hdr)...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	props := make([]*model.Property, 0, len(reads))
	for _, r := range reads {
		p, err := assemble(r.id, r.hdr, r.cmd.Val())
		if errors.Is(err, model.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		props = append(props, p)
	}
	sortNewestFirst(props)
	return props, nil
}

// Create stores a new property; the propertyId must not be taken
func (s *RedisStore) Create(ctx context.Context, p *model.Property) (*model.Property, error) {
	doc, err := prepareNew(p)
	if err != nil {
		return nil, err
	}
	hdrData, err := encodeHeader(doc)
	if err != nil {
		return nil, err
	}
	tasks := make(map[string][]byte)
	for r, room := range doc.RoomTasks {
		for t := range room.Tasks {
			data, err := json.Marshal(room.Tasks[t])
			if err != nil {
				return nil, fmt.Errorf("failed to marshal task: %w", err)
			}
			tasks[taskKey(doc.PropertyID, r, t)] = data
		}
	}

	key := propertyKey(doc.PropertyID)
	err = s.retry(ctx, doc.PropertyID, func() error {
		return s.redis.Watch(ctx, func(tx *redis.Tx) error {
			n, err := tx.Exists(ctx, key).Result()
			if err != nil {
				return err
			}
			if n > 0 {
				return model.Duplicatef("propertyId %s", doc.PropertyID)
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, hdrData, 0)
				for k, v := range tasks {
					pipe.Set(ctx, k, v, 0)
				}
				pipe.Set(ctx, versionKey(doc.PropertyID), doc.Version, 0)
				pipe.SAdd(ctx, propertyIndexKey, doc.PropertyID)
				return nil
			})
			return err
		}, key)
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// SetActive soft-deletes or restores a property
func (s *RedisStore) SetActive(ctx context.Context, propertyID string, active bool, ts time.Time) (*model.Property, error) {
	return s.updateHeader(ctx, propertyID, setActive(active, ts))
}

// Assign hands a property to a cleaner; an empty assignee clears it
func (s *RedisStore) Assign(ctx context.Context, propertyID, assignee string, ts time.Time) (*model.Property, error) {
	return s.updateHeader(ctx, propertyID, assign(assignee, ts))
}

// ApplyMutation writes one field path against the current document
func (s *RedisStore) ApplyMutation(ctx context.Context, propertyID string, m model.Mutation) (*Result, error) {
	hdr, err := s.header(ctx, s.redis, propertyID)
	if err != nil {
		return nil, err
	}
	written := touchedTasks(hdr, m.Path)
	if len(written) == 0 {
		// out of range or an empty room; Apply reports which
		doc, err := s.snapshot(ctx, s.redis, propertyID, hdr)
		if err != nil {
			return nil, err
		}
		if _, err := Apply(doc, m); err != nil {
			return nil, err
		}
		return &Result{Property: doc, Stale: true}, nil
	}

	watched := make([]string, len(written))
	for i, ref := range written {
		watched[i] = taskKey(propertyID, ref[0], ref[1])
	}

	var stale *model.Property
	err = s.retry(ctx, propertyID, func() error {
		stale = nil
		return s.redis.Watch(ctx, func(tx *redis.Tx) error {
			doc, err := s.snapshot(ctx, tx, propertyID, hdr)
			if err != nil {
				return err
			}
			isStale, err := Apply(doc, m)
			if err != nil {
				return err
			}
			if isStale {
				stale = doc
				return nil
			}

			encoded := make([][]byte, len(written))
			for i, ref := range written {
				data, err := json.Marshal(doc.RoomTasks[ref[0]].Tasks[ref[1]])
				if err != nil {
					return fmt.Errorf("failed to marshal task: %w", err)
				}
				encoded[i] = data
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				for i, key := range watched {
					pipe.Set(ctx, key, encoded[i], 0)
				}
				pipe.Incr(ctx, versionKey(propertyID))
				return nil
			})
			return err
		}, watched...)
	})
	if err != nil {
		return nil, err
	}
	if stale != nil {
		return &Result{Property: stale, Stale: true}, nil
	}

	doc, err := s.Get(ctx, propertyID)
	if err != nil {
		return nil, err
	}
	return &Result{Property: doc}, nil
}

func (s *RedisStore) updateHeader(ctx context.Context, propertyID string, fn updateFunc) (*model.Property, error) {
	key := propertyKey(propertyID)

	var out *model.Property
	err := s.retry(ctx, propertyID, func() error {
		return s.redis.Watch(ctx, func(tx *redis.Tx) error {
			hdr, err := s.header(ctx, tx, propertyID)
			if err != nil {
				return err
			}
			doc, err := s.snapshot(ctx, tx, propertyID, hdr)
			if err != nil {
				return err
			}
			changed, err := fn(doc)
			if err != nil {
				return err
			}
			if !changed {
				out = doc
				return nil
			}
			data, err := encodeHeader(doc)
			if err != nil {
				return err
			}

			var version *redis.IntCmd
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, data, 0)
				version = pipe.Incr(ctx, versionKey(propertyID))
				return nil
			})
			if err != nil {
				return err
			}
			doc.Version = version.Val()
			out = doc
			return nil
		}, key)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// retry runs one optimistic attempt at a time until it commits or ctx ends
func (s *RedisStore) retry(ctx context.Context, propertyID string, attempt func() error) error {
	for n := 0; ; n++ {
		err := attempt()
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
		if err := backoff(ctx, n); err != nil {
			return fmt.Errorf("%w: property %s: %w", model.ErrConflict, propertyID, err)
		}
	}
}

// Close is a no-op; the redis client is owned by the caller
func (s *RedisStore) Close() error {
	return nil
}

// reader is the read surface shared by *redis.Client and *redis.Tx
type reader interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	MGet(ctx context.Context, keys ...string) *redis.SliceCmd
}

func (s *RedisStore) header(ctx context.Context, c reader, propertyID string) (*propertyHeader, error) {
	data, err := c.Get(ctx, propertyKey(propertyID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, model.NotFoundf("property %s", propertyID)
		}
		return nil, err
	}
	return decodeHeader(data)
}

// snapshot reads the header, version and every task in one MGET
func (s *RedisStore) snapshot(ctx context.Context, c reader, propertyID string, hdr *propertyHeader) (*model.Property, error) {
	values, err := c.MGet(ctx, snapshotKeys(propertyID, hdr)...).Result()
	if err != nil {
		return nil, err
	}
	return assemble(propertyID, hdr, values)
}

func snapshotKeys(propertyID string, hdr *propertyHeader) []string {
	keys := []string{propertyKey(propertyID), versionKey(propertyID)}
	for r, n := range hdr.TaskCounts {
		for t := 0; t < n; t++ {
			keys = append(keys, taskKey(propertyID, r, t))
		}
	}
	return keys
}

// assemble rebuilds the document from snapshotKeys values. Room and
// property updatedAt are the latest of their own and their tasks' times.
func assemble(propertyID string, layout *propertyHeader, values []interface{}) (*model.Property, error) {
	raw, ok := values[0].(string)
	if !ok {
		return nil, model.NotFoundf("property %s", propertyID)
	}
	hdr, err := decodeHeader([]byte(raw))
	if err != nil {
		return nil, err
	}
	doc := hdr.Property
	if v, ok := values[1].(string); ok {
		doc.Version, err = strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad version for property %s: %w", propertyID, err)
		}
	}

	i := 2
	for r := range doc.RoomTasks {
		room := &doc.RoomTasks[r]
		room.Tasks = make([]model.Task, layout.TaskCounts[r])
		for t := range room.Tasks {
			raw, ok := values[i].(string)
			i++
			if !ok {
				return nil, fmt.Errorf("property %s is missing task %d.%d", propertyID, r, t)
			}
			if err := json.Unmarshal([]byte(raw), &room.Tasks[t]); err != nil {
				return nil, fmt.Errorf("failed to unmarshal task: %w", err)
			}
			if room.Tasks[t].UpdatedAt.After(room.UpdatedAt) {
				room.UpdatedAt = room.Tasks[t].UpdatedAt
			}
		}
		room.IsCompleted = aggregate.RoomCompleted(room)
		if room.UpdatedAt.After(doc.UpdatedAt) {
			doc.UpdatedAt = room.UpdatedAt
		}
	}
	return &doc, nil
}

// touchedTasks lists the [room, task] pairs a mutation at path can write
func touchedTasks(hdr *propertyHeader, path model.FieldPath) [][2]int {
	if path.RoomIndex < 0 || path.RoomIndex >= len(hdr.TaskCounts) {
		return nil
	}
	n := hdr.TaskCounts[path.RoomIndex]
	if path.Field == model.FieldRoomCompletion {
		refs := make([][2]int, n)
		for t := range refs {
			refs[t] = [2]int{path.RoomIndex, t}
		}
		return refs
	}
	if path.TaskIndex < 0 || path.TaskIndex >= n {
		return nil
	}
	return [][2]int{{path.RoomIndex, path.TaskIndex}}
}

func encodeHeader(doc *model.Property) ([]byte, error) {
	hdr := propertyHeader{Property: *doc, TaskCounts: make([]int, len(doc.RoomTasks))}
	hdr.Property.RoomTasks = make([]model.RoomTask, len(doc.RoomTasks))
	for i, room := range doc.RoomTasks {
		hdr.TaskCounts[i] = len(room.Tasks)
		room.Tasks = nil
		hdr.Property.RoomTasks[i] = room
	}
	data, err := json.Marshal(hdr)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal property: %w", err)
	}
	return data, nil
}

func decodeHeader(data []byte) (*propertyHeader, error) {
	var hdr propertyHeader
	if err := json.Unmarshal(data, &hdr); err != nil {
		return nil, fmt.Errorf("failed to unmarshal property: %w", err)
	}
	if len(hdr.TaskCounts) != len(hdr.Property.RoomTasks) {
		return nil, fmt.Errorf("property %s has a corrupt room layout", hdr.Property.PropertyID)
	}
	return &hdr, nil
}

func decodeProperty(data []byte) (*model.Property, error) {
	var p model.Property
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal property: %w", err)
	}
	return &p, nil
}

func sortNewestFirst(props []*model.Property) {
	sort.SliceStable(props, func(i, j int) bool {
		return props[i].CreatedAt.After(props[j].CreatedAt)
	})
}
