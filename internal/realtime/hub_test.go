package realtime

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gloads/portal/internal/models"
	"github.com/gloads/portal/internal/session"
)

func recv(t *testing.T, c *Client) WSMessage {
	t.Helper()
	select {
	case msg, ok := <-c.send:
		require.True(t, ok, "send queue closed")
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
	return WSMessage{}
}

func advertiserSession() session.Session {
	return session.Session{ID: uuid.New(), Handle: "acme", Role: models.RoleAdvertiser}
}

func TestSnapshotIsDeliveredFirst(t *testing.T) {
	hub := NewHub(nil, nil, nil, nil)
	sess := advertiserSession()
	c := NewClient(sess, Topics(sess), nil, nil)
	hub.Register(c)

	topic := AdvertiserTopic(sess.ID)
	require.NoError(t, hub.Publish(topic, "wallet.updated", map[string]int{"balance": 500}))

	c.Start(WSMessage{Event: EventSnapshot})
	require.NoError(t, hub.Publish(topic, "campaign.created", map[string]string{"title": "x"}))

	assert.Equal(t, EventSnapshot, recv(t, c).Event)
	first := recv(t, c)
	assert.Equal(t, "wallet.updated", first.Event)
	assert.JSONEq(t, `{"balance":500}`, string(first.Data))
	assert.Equal(t, "campaign.created", recv(t, c).Event)
}

func TestTopicsIsolateAdvertisers(t *testing.T) {
	hub := NewHub(nil, nil, nil, nil)
	a, b := advertiserSession(), advertiserSession()
	admin := session.Session{ID: uuid.New(), Handle: "boss", Role: models.RoleAdmin}

	ca := NewClient(a, Topics(a), nil, nil)
	cb := NewClient(b, Topics(b), nil, nil)
	cadm := NewClient(admin, Topics(admin), nil, nil)
	for _, c := range []*Client{ca, cb, cadm} {
		hub.Register(c)
		c.Start(WSMessage{Event: EventSnapshot})
		recv(t, c)
	}
	assert.Equal(t, []string{AdvertiserTopic(admin.ID), TopicAdmin}, cadm.Topics)

	require.NoError(t, hub.Publish(AdvertiserTopic(a.ID), "wallet.updated", nil))
	require.NoError(t, hub.Publish(TopicAdmin, "payment_request.created", nil))

	assert.Equal(t, "wallet.updated", recv(t, ca).Event)
	assert.Equal(t, "payment_request.created", recv(t, cadm).Event)
	assert.Len(t, cb.send, 0)
	assert.Len(t, ca.send, 0)
}

type fakeSubscriber struct {
	mu        sync.Mutex
	active    map[string]int
	cancelled []string
	fail      bool
}

func (f *fakeSubscriber) SubscribeTopic(topic string, _ func(string, []byte)) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, errors.New("down")
	}
	if f.active == nil {
		f.active = map[string]int{}
	}
	f.active[topic]++
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.active[topic]--
		f.cancelled = append(f.cancelled, topic)
	}, nil
}

func TestLastClientCancelsSubscription(t *testing.T) {
	sub := &fakeSubscriber{}
	hub := NewHub(nil, nil, sub, nil)
	sess := advertiserSession()
	topic := AdvertiserTopic(sess.ID)

	c1 := NewClient(sess, Topics(sess), nil, nil)
	c2 := NewClient(sess, Topics(sess), nil, nil)
	hub.Register(c1)
	hub.Register(c2)
	assert.Equal(t, 1, sub.active[topic], "one subscription per topic")
	assert.Equal(t, 2, hub.Subscribers(topic))

	hub.Unregister(c1)
	assert.Empty(t, sub.cancelled)
	hub.Unregister(c2)
	assert.Equal(t, []string{topic}, sub.cancelled)
	assert.Equal(t, 0, sub.active[topic])
	assert.Equal(t, 0, hub.Subscribers(topic))

	_, ok := <-c2.send
	assert.False(t, ok, "unregister closes the send queue")
	hub.Unregister(c2)
}

func TestSlowClientIsDropped(t *testing.T) {
	hub := NewHub(nil, nil, nil, nil)
	sess := advertiserSession()
	c := NewClient(sess, Topics(sess), nil, nil)
	hub.Register(c)
	c.Start(WSMessage{Event: EventSnapshot})

	topic := AdvertiserTopic(sess.ID)
	for i := 0; i < sendBuffer+1; i++ {
		hub.Broadcast(topic, "campaign.updated", nil)
	}
	assert.Equal(t, 0, hub.Subscribers(topic))
}

func TestRedisFanOutAcrossInstances(t *testing.T) {
	mr := miniredis.RunT(t)
	newHub := func() *Hub {
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = rdb.Close() })
		ps := NewRedisPubSub(rdb, nil)
		return NewHub(nil, ps, ps, nil)
	}
	hubA, hubB := newHub(), newHub()

	sess := advertiserSession()
	onA := NewClient(sess, Topics(sess), nil, nil)
	onB := NewClient(sess, Topics(sess), nil, nil)
	hubA.Register(onA)
	hubB.Register(onB)
	onA.Start(WSMessage{Event: EventSnapshot})
	onB.Start(WSMessage{Event: EventSnapshot})
	recv(t, onA)
	recv(t, onB)

	require.NoError(t, hubA.Publish(AdvertiserTopic(sess.ID), "wallet.updated", map[string]int64{"balance": 500}))

	for _, c := range []*Client{onA, onB} {
		msg := recv(t, c)
		assert.Equal(t, "wallet.updated", msg.Event)
		assert.JSONEq(t, `{"balance":500}`, string(msg.Data))
	}
}

func TestServeWs(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := NewHub(nil, nil, nil, nil)
	sess := advertiserSession()

	validate := func(_ context.Context, token string) (session.Session, error) {
		if token != "good" {
			return session.Session{}, errors.New("bad token")
		}
		return sess, nil
	}
	snapshot := func(_ context.Context, s session.Session) (interface{}, error) {
		return map[string]string{"handle": s.Handle}, nil
	}

	r := gin.New()
	r.GET("/ws", ServeWs(hub, nil, validate, snapshot))
	srv := httptest.NewServer(r)
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(wsURL+"?token=bad", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?token=good", nil)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))

	var msg WSMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, EventSnapshot, msg.Event)
	assert.JSONEq(t, `{"handle":"acme"}`, string(msg.Data))

	require.NoError(t, hub.Publish(AdvertiserTopic(sess.ID), "campaign.created", map[string]string{"title": "Diwali"}))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "campaign.created", msg.Event)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return hub.Subscribers(AdvertiserTopic(sess.ID)) == 0 }, 2*time.Second, 20*time.Millisecond)
}
