// Package events fans domain changes out to live subscribers and downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gloads/portal/internal/metrics"
	"github.com/gloads/portal/internal/realtime"
)

// Event names.
const (
	PaymentRequestCreated = "payment_request.created"
	PaymentRequestUpdated = "payment_request.updated"
	PaymentRequestDeleted = "payment_request.deleted"
	WalletUpdated         = "wallet.updated"
	CampaignCreated       = "campaign.created"
	CampaignUpdated       = "campaign.updated"
)

// Notifier is what handlers and workers use to announce a change.
type Notifier interface {
	Notify(ctx context.Context, event string, payload interface{}, topics ...string)
}

// Advertiser returns the topic for one account.
func Advertiser(id uuid.UUID) string { return realtime.AdvertiserTopic(id) }

// Admin is the topic watched by the revenue view.
const Admin = realtime.TopicAdmin

// TopicPublisher delivers to WebSocket subscribers.
type TopicPublisher interface {
	Publish(topic, event string, payload interface{}) error
}

// Bus publishes raw messages on a subject.
type Bus interface {
	Publish(subject string, data []byte) error
}

// Envelope is the message put on the bus.
type Envelope struct {
	Topic string          `json:"topic"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	At    time.Time       `json:"at"`
}

// Dispatcher publishes every event to the realtime hub and, when configured, to the message bus.
type Dispatcher struct {
	hub           TopicPublisher
	bus           Bus
	subjectPrefix string
	logger        *zap.Logger
	metrics       *metrics.Metrics
}

// NewDispatcher creates a dispatcher. hub and bus may be nil.
func NewDispatcher(hub TopicPublisher, bus Bus, subjectPrefix string, logger *zap.Logger, m *metrics.Metrics) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if subjectPrefix == "" {
		subjectPrefix = "gloads"
	}
	return &Dispatcher{hub: hub, bus: bus, subjectPrefix: subjectPrefix, logger: logger, metrics: m}
}

// Notify publishes event to each topic. Failures are logged; the change itself has already been committed.
func (d *Dispatcher) Notify(_ context.Context, event string, payload interface{}, topics ...string) {
	data, err := json.Marshal(payload)
	if err != nil {
		d.logger.Error("marshal event", zap.String("event", event), zap.Error(err))
		return
	}
	if d.hub != nil {
		for _, topic := range topics {
			if err := d.hub.Publish(topic, event, json.RawMessage(data)); err != nil {
				d.logger.Warn("realtime publish failed", zap.String("topic", topic), zap.String("event", event), zap.Error(err))
			}
		}
	}
	if d.bus != nil && len(topics) > 0 {
		body, err := json.Marshal(Envelope{Topic: topics[0], Event: event, Data: data, At: time.Now().UTC()})
		if err == nil {
			err = d.bus.Publish(d.Subject(event), body)
		}
		if err != nil {
			d.logger.Warn("bus publish failed", zap.String("event", event), zap.Error(err))
		}
	}
	d.metrics.EventPublished(event)
}

// Subject returns the bus subject for an event.
func (d *Dispatcher) Subject(event string) string {
	return fmt.Sprintf("%s.%s", d.subjectPrefix, event)
}

// Nop discards events.
type Nop struct{}

// Notify implements Notifier.
func (Nop) Notify(context.Context, string, interface{}, ...string) {}
