package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/gloads/portal/internal/session"
)

// EventSnapshot is the first message on every connection.
const EventSnapshot = "snapshot"

const sendBuffer = 256

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // tokens are required; origin is not used for auth
	},
}

// WSMessage is the WebSocket message envelope.
type WSMessage struct {
	Topic string          `json:"topic,omitempty"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	At    time.Time       `json:"at"`
}

// SnapshotFunc builds the current read model for a session.
type SnapshotFunc func(ctx context.Context, sess session.Session) (interface{}, error)

// Client represents a single WebSocket connection.
// Messages published before the snapshot is sent are held back and flushed after it.
type Client struct {
	ID      string
	Session session.Session
	Topics  []string
	conn    *websocket.Conn
	send    chan WSMessage
	logger  *zap.Logger

	mu      sync.Mutex
	ready   bool
	closed  bool
	pending []WSMessage
}

// NewClient creates a client for the given topics. conn may be nil in tests.
func NewClient(sess session.Session, topics []string, conn *websocket.Conn, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		ID:      uuid.New().String(),
		Session: sess,
		Topics:  topics,
		conn:    conn,
		send:    make(chan WSMessage, sendBuffer),
		logger:  logger,
	}
}

// deliver queues msg. It returns false when the queue is full.
func (c *Client) deliver(msg WSMessage) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return true
	}
	if !c.ready {
		if len(c.pending) >= sendBuffer-1 {
			return false
		}
		c.pending = append(c.pending, msg)
		return true
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// Start sends the snapshot and releases any messages held back while it was built.
func (c *Client) Start(snapshot WSMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.ready {
		return
	}
	c.send <- snapshot
	for _, msg := range c.pending {
		select {
		case c.send <- msg:
		default:
		}
	}
	c.pending = nil
	c.ready = true
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// Topics returns the topics a session is entitled to.
func Topics(sess session.Session) []string {
	topics := []string{AdvertiserTopic(sess.ID)}
	if sess.IsAdmin() {
		topics = append(topics, TopicAdmin)
	}
	return topics
}

// TopicAdmin carries events for the revenue/admin view.
const TopicAdmin = "admin"

// AdvertiserTopic is the per-account topic.
func AdvertiserTopic(id uuid.UUID) string {
	return "advertiser:" + id.String()
}

// ServeWs handles the WebSocket upgrade and runs the client loop.
func ServeWs(hub *Hub, logger *zap.Logger, validate func(ctx context.Context, token string) (session.Session, error), snapshot SnapshotFunc) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			token = strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		}
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "token required"})
			return
		}
		sess, err := validate(c.Request.Context(), token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "invalid token"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		client := NewClient(sess, Topics(sess), conn, logger)
		hub.Register(client)
		go client.writePump()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		msg, err := buildSnapshot(ctx, snapshot, sess)
		cancel()
		if err != nil {
			logger.Error("build snapshot", zap.Error(err), zap.String("advertiser_id", sess.ID.String()))
			hub.Unregister(client)
			_ = conn.Close()
			return
		}
		client.Start(msg)
		client.readPump(hub, snapshot)
	}
}

func buildSnapshot(ctx context.Context, fn SnapshotFunc, sess session.Session) (WSMessage, error) {
	msg := WSMessage{Topic: AdvertiserTopic(sess.ID), Event: EventSnapshot, At: time.Now().UTC()}
	if fn == nil {
		return msg, nil
	}
	data, err := fn(ctx, sess)
	if err != nil {
		return msg, err
	}
	msg.Data = encode(data)
	return msg, nil
}

// readPump consumes client messages until the socket closes. A "resync" message re-sends the snapshot.
func (c *Client) readPump(hub *Hub, snapshot SnapshotFunc) {
	defer func() {
		hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		return nil
	})

	for {
		var msg WSMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			break
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))

		switch msg.Event {
		case "resync":
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			snap, err := buildSnapshot(ctx, snapshot, c.Session)
			cancel()
			if err != nil {
				c.logger.Warn("resync snapshot", zap.Error(err))
				continue
			}
			if !c.deliver(snap) {
				return
			}
		default:
			// ignore
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(PingInterval * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
