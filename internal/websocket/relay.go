package websocket

import (
	"context"
	"encoding/json"
	"log"

	"github.com/redis/go-redis/v9"

	"github.com/cleanflow/api/internal/model"
)

// RelayChannel is the redis pub/sub channel deltas travel on
const RelayChannel = "cleanflow:deltas"

// Broadcaster is what producers publish deltas through. Hub delivers to
// local subscribers; RedisRelay delivers to every instance's hub.
type Broadcaster interface {
	PublishJob(delta model.JobDelta)
	PublishProperty(delta model.PropertyDelta)
}

type relayEnvelope struct {
	Kind     string               `json:"kind"`
	Job      *model.JobDelta      `json:"job,omitempty"`
	Property *model.PropertyDelta `json:"property,omitempty"`
}

// RedisRelay publishes deltas on a redis channel and feeds the deltas it
// receives into the local hub
type RedisRelay struct {
	redis *redis.Client
	hub   *Hub
}

func NewRedisRelay(redisClient *redis.Client, hub *Hub) *RedisRelay {
	return &RedisRelay{redis: redisClient, hub: hub}
}

// PublishJob sends a job delta to every instance
func (r *RedisRelay) PublishJob(delta model.JobDelta) {
	r.publish(relayEnvelope{Kind: "job", Job: &delta})
}

// PublishProperty sends a property delta to every instance
func (r *RedisRelay) PublishProperty(delta model.PropertyDelta) {
	r.publish(relayEnvelope{Kind: "property", Property: &delta})
}

func (r *RedisRelay) publish(env relayEnvelope) {
	data, err := json.Marshal(env)
	if err != nil {
		log.Printf("Failed to marshal relay envelope: %v", err)
		return
	}
	if err := r.redis.Publish(context.Background(), RelayChannel, data).Err(); err != nil {
		// observers miss this delta and catch up on their next refetch
		log.Printf("Relay publish failed: %v", err)
	}
}

// Run forwards relayed deltas into the hub until ctx is done. ready is
// closed once the subscription is active.
func (r *RedisRelay) Run(ctx context.Context, ready chan<- struct{}) error {
	sub := r.redis.Subscribe(ctx, RelayChannel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	if ready != nil {
		close(ready)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env relayEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				log.Printf("Dropping malformed relay message: %v", err)
				continue
			}
			switch {
			case env.Kind == "job" && env.Job != nil:
				r.hub.PublishJob(*env.Job)
			case env.Kind == "property" && env.Property != nil:
				r.hub.PublishProperty(*env.Property)
			}
		}
	}
}
