// internal/models/campaign.go
package models

import "time"

// CampaignTemplates holds the two message templates a campaign sends.
type CampaignTemplates struct {
	Initial  string `json:"initial"`
	Reminder string `json:"reminder"`
}

// CampaignConfig is the timing and template configuration supplied when
// outreach is initiated.
type CampaignConfig struct {
	ReminderOffsetsDays []int             `json:"reminderOffsetsDays"`
	HandoffAfterDays    int               `json:"handoffAfterDays"`
	Templates           CampaignTemplates `json:"templates"`
}

// OutreachCampaign is one outreach effort tied to a single event.
type OutreachCampaign struct {
	ID        string         `json:"id"`
	EventID   string         `json:"eventId"`
	Config    CampaignConfig `json:"config"`
	CreatedAt time.Time      `json:"createdAt"`
}

// InvitationState is the per-recipient workflow state within a campaign.
type InvitationState string

const (
	InvitationPending   InvitationState = "pending"
	InvitationReminded  InvitationState = "reminded"
	InvitationAccepted  InvitationState = "accepted"
	InvitationDeclined  InvitationState = "declined"
	InvitationEscalated InvitationState = "escalated"
)

// Terminal reports whether the state admits no further transitions.
func (s InvitationState) Terminal() bool {
	switch s {
	case InvitationAccepted, InvitationDeclined, InvitationEscalated:
		return true
	}
	return false
}

// Invitation is the solicitation state for one recipient in one campaign.
// Version backs the optimistic write guard: a write only lands if the row
// still carries the version it was read at.
type Invitation struct {
	CampaignID     string          `json:"campaignId"`
	RecipientID    string          `json:"recipientId"`
	State          InvitationState `json:"state"`
	RemindersSent  int             `json:"remindersSent"`
	CreatedAt      time.Time       `json:"createdAt"`
	LastActionAt   time.Time       `json:"lastActionAt"`
	ResponseDetail string          `json:"responseDetail,omitempty"`
	Version        int             `json:"-"`
}

// InvitationStatus is the per-recipient view returned by status queries.
type InvitationStatus struct {
	RecipientID   string          `json:"recipientId"`
	State         InvitationState `json:"state"`
	RemindersSent int             `json:"remindersSent"`
	LastActionAt  time.Time       `json:"lastActionAt"`
}
