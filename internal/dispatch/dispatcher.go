// Package dispatch sends rendered messages through channel gateways and
// records the outcome of every attempt in the delivery ledger.
package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"coachreach/internal/common/config"
	"coachreach/internal/common/logger"
	"coachreach/internal/common/metrics"
	"coachreach/internal/gateway"
	"coachreach/internal/models"
)

// Ledger is the slice of the delivery ledger the dispatcher writes.
type Ledger interface {
	AppendMessage(ctx context.Context, msg models.Message) error
	UpsertDelivery(ctx context.Context, record models.DeliveryRecord) error
	ApplyConfirmation(ctx context.Context, providerMessageID string, status models.DeliveryStatus, errorDetail string) (*models.DeliveryRecord, error)
}

// Publisher fans delivery events out to subscribers.
type Publisher interface {
	PublishMessage(ctx context.Context, eventID string, msg models.Message) error
	PublishDeliveryStatus(ctx context.Context, eventID string, record models.DeliveryRecord) error
}

// EventResolver maps a recipient back to the event whose fan-out topic
// should carry a late delivery confirmation.
type EventResolver interface {
	EventIDForRecipient(ctx context.Context, recipientID string) (string, error)
}

// Dispatcher routes messages to the right channel adapter with a bounded
// number of in-flight submits per channel.
type Dispatcher struct {
	gateways gateway.Registry
	ledger   Ledger
	fanout   Publisher
	events   EventResolver
	slots    map[models.Channel]chan struct{}
	logger   logger.Logger
}

func NewDispatcher(gateways gateway.Registry, ledger Ledger, fanout Publisher, events EventResolver, channels config.ChannelsConfig, log logger.Logger) *Dispatcher {
	slots := make(map[models.Channel]chan struct{}, len(gateways))
	for channel := range gateways {
		bound := channels.MaxInFlightFor(string(channel))
		if bound < 1 {
			bound = 1
		}
		slots[channel] = make(chan struct{}, bound)
	}
	return &Dispatcher{
		gateways: gateways,
		ledger:   ledger,
		fanout:   fanout,
		events:   events,
		slots:    slots,
		logger:   log.WithFields(map[string]interface{}{"component": "dispatch"}),
	}
}

// Send submits one message to one recipient and returns the delivery record,
// which is always persisted: sent with a provider id on success, failed with
// the error detail otherwise. The returned error covers only ledger trouble;
// a gateway failure is data, not an error.
func (d *Dispatcher) Send(ctx context.Context, eventID string, msg models.Message, recipient models.Recipient) (*models.DeliveryRecord, error) {
	record := models.DeliveryRecord{
		ID:          uuid.New().String(),
		MessageID:   msg.ID,
		RecipientID: recipient.ID,
		Channel:     recipient.Channel,
		SentAt:      time.Now().UTC(),
	}

	adapter, err := d.gateways.ForChannel(recipient.Channel)
	if err != nil {
		record.Status = models.DeliveryFailed
		record.ErrorDetail = err.Error()
	} else {
		providerID, submitErr := d.submit(ctx, adapter, msg.RenderedText, recipient)
		if submitErr != nil {
			record.Status = models.DeliveryFailed
			record.ErrorDetail = submitErr.Error()
		} else {
			record.Status = models.DeliverySent
			record.ProviderMessageID = providerID
		}
	}

	metrics.DispatchTotal.WithLabelValues(string(recipient.Channel), string(record.Status)).Inc()
	if record.Status == models.DeliveryFailed {
		d.logger.Warn("gateway submit failed", map[string]interface{}{
			"channel":     string(recipient.Channel),
			"recipientId": recipient.ID,
			"error":       record.ErrorDetail,
		})
	}

	if err := d.ledger.UpsertDelivery(ctx, record); err != nil {
		return nil, err
	}
	if err := d.fanout.PublishDeliveryStatus(ctx, eventID, record); err != nil {
		// The record is durable; a missed fan-out event only delays watchers.
		d.logger.WithError(err).Warn("delivery status fan-out failed", map[string]interface{}{
			"recipientId": recipient.ID,
		})
	}
	return &record, nil
}

// submit runs the gateway call under the channel's concurrency bound.
func (d *Dispatcher) submit(ctx context.Context, adapter gateway.Adapter, text string, recipient models.Recipient) (string, error) {
	slot := d.slots[recipient.Channel]
	select {
	case slot <- struct{}{}:
		defer func() { <-slot }()
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return adapter.Submit(ctx, text, recipient.Address)
}

// SendBatch appends the message once, publishes it to the event's fan-out
// topic, and sends to every recipient concurrently. One recipient's failure
// never blocks the others; the caller gets a record per recipient.
func (d *Dispatcher) SendBatch(ctx context.Context, eventID string, msg models.Message, recipients []models.Recipient) ([]models.DeliveryRecord, error) {
	if err := d.ledger.AppendMessage(ctx, msg); err != nil {
		return nil, err
	}
	if err := d.fanout.PublishMessage(ctx, eventID, msg); err != nil {
		d.logger.WithError(err).Warn("message fan-out failed", map[string]interface{}{
			"messageId": msg.ID,
		})
	}

	records := make([]models.DeliveryRecord, len(recipients))
	var wg sync.WaitGroup
	for i, recipient := range recipients {
		wg.Add(1)
		go func(i int, recipient models.Recipient) {
			defer wg.Done()
			record, err := d.Send(ctx, eventID, msg, recipient)
			if err != nil {
				// Ledger write failed; report the attempt as failed so the
				// batch result stays complete.
				records[i] = models.DeliveryRecord{
					ID:          uuid.New().String(),
					MessageID:   msg.ID,
					RecipientID: recipient.ID,
					Channel:     recipient.Channel,
					Status:      models.DeliveryFailed,
					ErrorDetail: err.Error(),
					SentAt:      time.Now().UTC(),
				}
				return
			}
			records[i] = *record
		}(i, recipient)
	}
	wg.Wait()
	return records, nil
}

// ConfirmDelivery applies an asynchronous gateway callback. Transitions land
// only on records still in sent; late or repeated callbacks are no-ops. Safe
// at any time, including after the campaign closed.
func (d *Dispatcher) ConfirmDelivery(ctx context.Context, providerMessageID string, status models.DeliveryStatus, errorDetail string) (*models.DeliveryRecord, error) {
	record, err := d.ledger.ApplyConfirmation(ctx, providerMessageID, status, errorDetail)
	if err != nil {
		return nil, err
	}

	eventID, err := d.events.EventIDForRecipient(ctx, record.RecipientID)
	if err != nil {
		// The confirmation itself landed; only the fan-out is lost.
		d.logger.WithError(err).Warn("event lookup for confirmation fan-out failed", map[string]interface{}{
			"recipientId": record.RecipientID,
		})
		return record, nil
	}
	if err := d.fanout.PublishDeliveryStatus(ctx, eventID, *record); err != nil {
		d.logger.WithError(err).Warn("delivery status fan-out failed", map[string]interface{}{
			"providerMessageId": providerMessageID,
		})
	}
	return record, nil
}
