// internal/models/acknowledgement.go
package models

import "time"

// ReplyResponse is the interpreted answer carried by an inbound reply.
type ReplyResponse string

const (
	ResponseAccept  ReplyResponse = "accept"
	ResponseDecline ReplyResponse = "decline"
)

// InboundReply is a reply received from a gateway webhook or an explicit
// response submission.
type InboundReply struct {
	Response ReplyResponse `json:"response"`
	RawText  string        `json:"rawText,omitempty"`
	Token    string        `json:"token,omitempty"`
}

// Acknowledgement records that a recipient answered a campaign. Unique per
// (campaignId, recipientId); a second reply for the same pair is a no-op.
type Acknowledgement struct {
	ID             string    `json:"id"`
	CampaignID     string    `json:"campaignId"`
	RecipientID    string    `json:"recipientId"`
	Token          string    `json:"token"`
	AcknowledgedAt time.Time `json:"acknowledgedAt"`
}
