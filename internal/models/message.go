// internal/models/message.go
package models

import "time"

// Message is a fully rendered outbound message. Immutable once created.
type Message struct {
	ID           string    `json:"id"`
	TemplateID   string    `json:"templateId"`
	RenderedText string    `json:"renderedText"`
	CreatedAt    time.Time `json:"createdAt"`
}

// DeliveryStatus is the lifecycle of a single delivery attempt.
type DeliveryStatus string

const (
	DeliverySent      DeliveryStatus = "sent"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
)

// DeliveryRecord tracks one (message, recipient) delivery attempt.
// Status only ever moves sent->delivered or sent->failed.
type DeliveryRecord struct {
	ID                string         `json:"id"`
	MessageID         string         `json:"messageId"`
	RecipientID       string         `json:"recipientId"`
	Channel           Channel        `json:"channel"`
	Status            DeliveryStatus `json:"status"`
	ProviderMessageID string         `json:"providerMessageId,omitempty"`
	ErrorDetail       string         `json:"errorDetail,omitempty"`
	SentAt            time.Time      `json:"sentAt"`
}

// Terminal reports whether the record has reached a final delivery outcome.
func (r *DeliveryRecord) Terminal() bool {
	return r.Status == DeliveryDelivered || r.Status == DeliveryFailed
}
