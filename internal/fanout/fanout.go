// Package fanout broadcasts chat messages and delivery-status deltas to
// viewers subscribed to an event-scoped topic.
//
// Delivery is at-least-once over an unreliable push transport: a failed
// publish is retried once, redelivery is normal, and subscribers must
// deduplicate by envelope id.
package fanout

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"coachreach/internal/common/errors"
	"coachreach/internal/common/logger"
	"coachreach/internal/common/metrics"
	"coachreach/internal/models"
)

// Event kinds carried on a topic.
const (
	KindMessage        = "message"
	KindDeliveryStatus = "delivery_status"
)

// Envelope is the wire format pushed to subscribers.
type Envelope struct {
	Kind        string          `json:"kind"`
	ID          string          `json:"id"`
	Payload     json.RawMessage `json:"payload"`
	PublishedAt time.Time       `json:"publishedAt"`
}

// Broker publishes and subscribes event-scoped envelopes over Redis pub/sub.
type Broker struct {
	rdb    *redis.Client
	prefix string
	logger logger.Logger
}

func NewBroker(rdb *redis.Client, topicPrefix string, log logger.Logger) *Broker {
	return &Broker{
		rdb:    rdb,
		prefix: topicPrefix,
		logger: log.WithFields(map[string]interface{}{"component": "fanout"}),
	}
}

func (b *Broker) topic(eventID string) string {
	return b.prefix + eventID
}

// PublishMessage broadcasts a newly created chat message to the event topic.
func (b *Broker) PublishMessage(ctx context.Context, eventID string, msg models.Message) error {
	return b.publish(ctx, eventID, KindMessage, msg.ID, msg)
}

// PublishDeliveryStatus broadcasts a delivery record change to the event topic.
func (b *Broker) PublishDeliveryStatus(ctx context.Context, eventID string, record models.DeliveryRecord) error {
	return b.publish(ctx, eventID, KindDeliveryStatus, record.ID, record)
}

func (b *Broker) publish(ctx context.Context, eventID, kind, id string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return errors.NewFanoutPublishFailedError(b.topic(eventID), err)
	}

	envelope := Envelope{
		Kind:        kind,
		ID:          id,
		Payload:     raw,
		PublishedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		return errors.NewFanoutPublishFailedError(b.topic(eventID), err)
	}

	// One retry keeps the at-least-once contract without blocking callers
	// behind a dead broker.
	topic := b.topic(eventID)
	if err := b.rdb.Publish(ctx, topic, data).Err(); err != nil {
		b.logger.Warn("publish failed, retrying once", map[string]interface{}{
			"topic": topic,
			"kind":  kind,
			"error": err,
		})
		if err := b.rdb.Publish(ctx, topic, data).Err(); err != nil {
			return errors.NewFanoutPublishFailedError(topic, err)
		}
	}

	metrics.FanoutPublished.WithLabelValues(kind).Inc()
	return nil
}

// Subscribe returns a channel of envelopes for one event topic. The channel
// closes when ctx is cancelled. Envelopes may repeat; consumers dedup by ID.
func (b *Broker) Subscribe(ctx context.Context, eventID string) (<-chan Envelope, error) {
	sub := b.rdb.Subscribe(ctx, b.topic(eventID))

	// Force the subscription onto the wire before returning so callers do
	// not miss envelopes published right after Subscribe.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}

	out := make(chan Envelope)
	go func() {
		defer close(out)
		defer sub.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-sub.Channel():
				if !ok {
					return
				}
				var envelope Envelope
				if err := json.Unmarshal([]byte(msg.Payload), &envelope); err != nil {
					b.logger.Warn("dropping malformed envelope", map[string]interface{}{
						"topic": msg.Channel,
						"error": err,
					})
					continue
				}
				select {
				case out <- envelope:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}
