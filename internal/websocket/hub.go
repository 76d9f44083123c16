package websocket

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"

	"github.com/cleanflow/api/internal/metrics"
	"github.com/cleanflow/api/internal/model"
)

// TopicAll receives every job and property delta
const TopicAll = "*"

// JobTopic is the topic observers of a single job subscribe to
func JobTopic(jobID string) string {
	return fmt.Sprintf("job:%s", jobID)
}

// PropertyTopic is the topic observers of a single property subscribe to
func PropertyTopic(propertyID string) string {
	return fmt.Sprintf("property:%s", propertyID)
}

// Client represents a subscriber. Conn is nil for in-process subscribers.
type Client struct {
	ObserverID string
	Topic      string
	Conn       *websocket.Conn
	Send       chan []byte
}

// Hub maintains active subscribers and fans deltas out to them
type Hub struct {
	// Clients grouped by topic
	clients map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *BroadcastMessage
	done       chan struct{}

	metrics *metrics.Recorder
	mu      sync.RWMutex
}

// BroadcastMessage is an encoded delta addressed to one or more topics
type BroadcastMessage struct {
	Topics  []string
	Message []byte
}

// NewHub creates a new Hub
func NewHub(recorder *metrics.Recorder) *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *BroadcastMessage, 256),
		done:       make(chan struct{}),
		metrics:    recorder,
	}
}

// Run starts the hub's main loop. Deltas leave in the order they were
// published.
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			return

		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.Topic] == nil {
				h.clients[client.Topic] = make(map[*Client]bool)
			}
			h.clients[client.Topic][client] = true
			h.mu.Unlock()
			h.metrics.AddSubscribers(1)
			log.Printf("Observer %s subscribed to %s", client.ObserverID, client.Topic)

		case client := <-h.unregister:
			h.mu.Lock()
			h.remove(client)
			h.mu.Unlock()
			log.Printf("Observer %s unsubscribed from %s", client.ObserverID, client.Topic)

		case msg := <-h.broadcast:
			h.mu.Lock()
			for _, topic := range msg.Topics {
				for client := range h.clients[topic] {
					select {
					case client.Send <- msg.Message:
					default:
						// slow subscriber; it reconnects and refetches
						log.Printf("Dropping slow observer %s on %s", client.ObserverID, client.Topic)
						h.remove(client)
						h.metrics.IncDroppedSubscriber()
					}
				}
			}
			h.mu.Unlock()
		}
	}
}

// remove must be called with mu held
func (h *Hub) remove(client *Client) {
	clients, ok := h.clients[client.Topic]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}
	delete(clients, client)
	close(client.Send)
	if len(clients) == 0 {
		delete(h.clients, client.Topic)
	}
	h.metrics.AddSubscribers(-1)
}

// Close stops the main loop
func (h *Hub) Close() {
	close(h.done)
}

// Subscribe registers an in-process subscriber on topic
func (h *Hub) Subscribe(observerID, topic string) *Client {
	client := &Client{
		ObserverID: observerID,
		Topic:      topic,
		Send:       make(chan []byte, 256),
	}
	select {
	case h.register <- client:
	case <-h.done:
		close(client.Send)
	}
	return client
}

// Unsubscribe removes a subscriber
func (h *Hub) Unsubscribe(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Subscribers returns the number of subscribers on topic
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[topic])
}

// PublishJob sends a job delta to the job's observers and to dashboards
func (h *Hub) PublishJob(delta model.JobDelta) {
	msg := model.WSJobMessage{
		Type:     model.WSMessageTypeJobUpdate,
		JobDelta: delta,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("Failed to marshal job delta: %v", err)
		return
	}
	h.metrics.IncDelta("job")
	h.send(&BroadcastMessage{
		Topics:  []string{JobTopic(delta.JobID), TopicAll},
		Message: data,
	})
}

// PublishProperty sends a property delta to the property's observers and to dashboards
func (h *Hub) PublishProperty(delta model.PropertyDelta) {
	msg := model.WSPropertyMessage{
		Type:          model.WSMessageTypePropertyUpdate,
		PropertyDelta: delta,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("Failed to marshal property delta: %v", err)
		return
	}
	h.metrics.IncDelta("property")
	h.send(&BroadcastMessage{
		Topics:  []string{PropertyTopic(delta.PropertyID), TopicAll},
		Message: data,
	})
}

// send queues msg for the main loop; once the hub is closed it is dropped
func (h *Hub) send(msg *BroadcastMessage) {
	select {
	case h.broadcast <- msg:
	case <-h.done:
	}
}

// HandleConnection handles a WebSocket connection subscribed to topic
func (h *Hub) HandleConnection(c *websocket.Conn, observerID, topic string) {
	client := &Client{
		ObserverID: observerID,
		Topic:      topic,
		Conn:       c,
		Send:       make(chan []byte, 256),
	}

	select {
	case h.register <- client:
	case <-h.done:
		return
	}
	defer h.Unsubscribe(client)

	// Writer
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case message, ok := <-client.Send:
				if !ok {
					c.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
				if err := c.WriteMessage(websocket.TextMessage, message); err != nil {
					return
				}

			case <-ticker.C:
				if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	// Reader
	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		var msg model.WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}

		if msg.Type == model.WSMessageTypePing {
			pong := model.WSMessage{Type: model.WSMessageTypePong}
			data, _ := json.Marshal(pong)
			h.mu.RLock()
			_, live := h.clients[topic][client]
			if live {
				select {
				case client.Send <- data:
				default:
				}
			}
			h.mu.RUnlock()
		}
	}
}
