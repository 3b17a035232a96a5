package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gloads/portal/internal/metrics"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30
	PongWait     = 60
)

// Hub maintains topic -> set of connections and broadcasts messages.
// Uses Redis pub/sub for horizontal scaling: with Redis configured, events go out through Redis
// and every instance (this one included) delivers them from its subscription.
type Hub struct {
	// topic -> map[clientID]*Client
	topics  map[string]map[string]*Client
	subs    map[string]func() // cancel Redis subscription per topic
	mu      sync.RWMutex
	logger  *zap.Logger
	redis   RedisPublisher
	sub     RedisSubscriber
	metrics *metrics.Metrics
}

// RedisPublisher is the interface for publishing to Redis (for cross-instance broadcast).
type RedisPublisher interface {
	PublishTopic(topic, event string, payload []byte) error
}

// RedisSubscriber subscribes to topic channels and invokes handler for incoming events.
type RedisSubscriber interface {
	SubscribeTopic(topic string, handler func(event string, payload []byte)) (cancel func(), err error)
}

// NewHub creates a new WebSocket hub. redisPub and redisSub may both be nil for a single instance.
func NewHub(logger *zap.Logger, redisPub RedisPublisher, redisSub RedisSubscriber, m *metrics.Metrics) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		topics:  make(map[string]map[string]*Client),
		subs:    make(map[string]func()),
		logger:  logger,
		redis:   redisPub,
		sub:     redisSub,
		metrics: m,
	}
}

// Register adds a client to each of its topics. Starts the Redis subscription for a topic on its first client.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	for _, topic := range c.Topics {
		if h.topics[topic] == nil {
			h.topics[topic] = make(map[string]*Client)
			if h.sub != nil {
				topic := topic
				cancel, err := h.sub.SubscribeTopic(topic, func(event string, payload []byte) {
					h.Broadcast(topic, event, payload)
				})
				if err != nil {
					h.logger.Warn("redis subscribe failed", zap.String("topic", topic), zap.Error(err))
				} else {
					h.subs[topic] = cancel
				}
			}
		}
		h.topics[topic][c.ID] = c
	}
	h.mu.Unlock()
	h.metrics.ClientConnected(1)
	h.logger.Debug("client subscribed", zap.String("client_id", c.ID), zap.Strings("topics", c.Topics))
}

// Unregister removes a client from its topics and closes its send queue.
// Cancels a topic's Redis subscription when its last client leaves.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	removed := false
	for _, topic := range c.Topics {
		m, ok := h.topics[topic]
		if !ok {
			continue
		}
		if _, ok := m[c.ID]; ok {
			removed = true
			delete(m, c.ID)
		}
		if len(m) == 0 {
			delete(h.topics, topic)
			if cancel, ok := h.subs[topic]; ok {
				cancel()
				delete(h.subs, topic)
			}
		}
	}
	h.mu.Unlock()
	c.close()
	if removed {
		h.metrics.ClientConnected(-1)
		h.logger.Debug("client unsubscribed", zap.String("client_id", c.ID))
	}
}

// Broadcast sends a message to all clients of a topic on this instance.
// A client whose queue is full is dropped so it can reconnect and resync from a snapshot.
func (h *Hub) Broadcast(topic, event string, payload interface{}) {
	msg := WSMessage{Topic: topic, Event: event, Data: encode(payload), At: time.Now().UTC()}

	h.mu.RLock()
	clients := make([]*Client, 0, len(h.topics[topic]))
	for _, c := range h.topics[topic] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if !c.deliver(msg) {
			h.logger.Warn("client too slow, dropping", zap.String("client_id", c.ID), zap.String("topic", topic))
			h.Unregister(c)
		}
	}
}

// Publish delivers an event to a topic across all instances.
func (h *Hub) Publish(topic, event string, payload interface{}) error {
	data := encode(payload)
	if h.redis != nil {
		if err := h.redis.PublishTopic(topic, event, data); err != nil {
			// keep local subscribers current even when Redis is down
			h.Broadcast(topic, event, json.RawMessage(data))
			return err
		}
		return nil
	}
	h.Broadcast(topic, event, json.RawMessage(data))
	return nil
}

// Subscribers returns the number of connected clients on a topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

func encode(payload interface{}) json.RawMessage {
	switch v := payload.(type) {
	case nil:
		return nil
	case []byte:
		return v
	case json.RawMessage:
		return v
	default:
		data, _ := json.Marshal(payload)
		return data
	}
}
