// Package ack correlates inbound replies with open invitations and records
// acknowledgements exactly once per (campaign, recipient) pair.
package ack

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"coachreach/internal/campaign"
	"coachreach/internal/common/errors"
	"coachreach/internal/common/logger"
	"coachreach/internal/common/metrics"
	"coachreach/internal/ledger"
	"coachreach/internal/models"
)

// WorkflowStore is the invitation and acknowledgement persistence the
// correlator drives.
type WorkflowStore interface {
	Invitation(ctx context.Context, campaignID, recipientID string) (*models.Invitation, error)
	UpdateInvitation(ctx context.Context, inv *models.Invitation) error
	LatestOpenInvitationForRecipient(ctx context.Context, recipientID string) (*models.Invitation, error)
	CreateAcknowledgement(ctx context.Context, ack models.Acknowledgement) (bool, error)
	AcknowledgementFor(ctx context.Context, campaignID, recipientID string) (*models.Acknowledgement, error)
}

// AddressResolver maps a gateway address back to a directory recipient.
type AddressResolver interface {
	RecipientByAddress(ctx context.Context, channel models.Channel, address string) (*models.Recipient, error)
}

// EscalationAuditor receives audit documents for reply-driven escalations.
type EscalationAuditor interface {
	IndexEscalation(ctx context.Context, audit ledger.EscalationAudit)
}

// Result reports the outcome of correlating one reply.
type Result struct {
	Acknowledgement models.Acknowledgement `json:"acknowledgement"`
	State           models.InvitationState `json:"state"`
	Duplicate       bool                   `json:"duplicate"`
}

// Correlator applies inbound replies to invitation state.
type Correlator struct {
	store    WorkflowStore
	resolver AddressResolver
	auditor  EscalationAuditor
	logger   logger.Logger
}

func NewCorrelator(store WorkflowStore, resolver AddressResolver, auditor EscalationAuditor, log logger.Logger) *Correlator {
	return &Correlator{
		store:    store,
		resolver: resolver,
		auditor:  auditor,
		logger:   log.WithFields(map[string]interface{}{"component": "ack"}),
	}
}

// Correlate records an acknowledgement for the pair and transitions the
// invitation. A second reply for an already-acknowledged pair returns the
// stored acknowledgement with Duplicate set and changes nothing.
func (c *Correlator) Correlate(ctx context.Context, campaignID, recipientID string, reply models.InboundReply) (*Result, error) {
	existing, err := c.store.AcknowledgementFor(ctx, campaignID, recipientID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		inv, err := c.store.Invitation(ctx, campaignID, recipientID)
		if err != nil {
			return nil, err
		}
		return &Result{Acknowledgement: *existing, State: inv.State, Duplicate: true}, nil
	}

	inv, err := c.store.Invitation(ctx, campaignID, recipientID)
	if err != nil {
		return nil, err
	}

	ack := models.Acknowledgement{
		ID:             uuid.New().String(),
		CampaignID:     campaignID,
		RecipientID:    recipientID,
		Token:          reply.Token,
		AcknowledgedAt: time.Now().UTC(),
	}
	created, err := c.store.CreateAcknowledgement(ctx, ack)
	if err != nil {
		return nil, err
	}
	if !created {
		// Raced with another reply for the same pair; the first one wins.
		stored, err := c.store.AcknowledgementFor(ctx, campaignID, recipientID)
		if err != nil {
			return nil, err
		}
		return &Result{Acknowledgement: *stored, State: inv.State, Duplicate: true}, nil
	}

	metrics.Acknowledgements.WithLabelValues(responseLabel(reply.Response)).Inc()

	// A terminal invitation keeps its state; the acknowledgement is still
	// recorded for the audit trail.
	if inv.State.Terminal() {
		return &Result{Acknowledgement: ack, State: inv.State}, nil
	}

	state := c.applyReply(ctx, inv, reply)
	return &Result{Acknowledgement: ack, State: state}, nil
}

func (c *Correlator) applyReply(ctx context.Context, inv *models.Invitation, reply models.InboundReply) models.InvitationState {
	switch reply.Response {
	case models.ResponseAccept:
		inv.State = models.InvitationAccepted
	case models.ResponseDecline:
		inv.State = models.InvitationDeclined
	default:
		inv.State = models.InvitationEscalated
		inv.ResponseDetail = reply.RawText
	}
	inv.LastActionAt = time.Now().UTC()

	if err := c.store.UpdateInvitation(ctx, inv); err != nil {
		if stderrors.Is(err, campaign.ErrVersionConflict) {
			// Someone else transitioned first; their state stands.
			current, cerr := c.store.Invitation(ctx, inv.CampaignID, inv.RecipientID)
			if cerr == nil {
				return current.State
			}
		}
		c.logger.WithError(err).Error("invitation transition failed", map[string]interface{}{
			"campaignId":  inv.CampaignID,
			"recipientId": inv.RecipientID,
		})
		return inv.State
	}

	if inv.State == models.InvitationEscalated {
		metrics.Escalations.WithLabelValues("uninterpretable_reply").Inc()
		if c.auditor != nil {
			c.auditor.IndexEscalation(ctx, ledger.EscalationAudit{
				CampaignID:  inv.CampaignID,
				RecipientID: inv.RecipientID,
				Trigger:     "uninterpretable_reply",
				Detail:      reply.RawText,
				EscalatedAt: inv.LastActionAt,
			})
		}
	}
	return inv.State
}

// ResolveAddress maps an inbound gateway address to the most recent open
// invitation for that contact. A reply that matches nothing comes back as a
// REPLY_UNMATCHED error; the webhook layer drops it without surfacing
// anything to the sender.
func (c *Correlator) ResolveAddress(ctx context.Context, channel models.Channel, address string) (*models.Invitation, error) {
	recipient, err := c.resolver.RecipientByAddress(ctx, channel, address)
	if err != nil {
		if code, ok := errors.CodeOf(err); ok && code == errors.ErrCodeRecipientNotFound {
			return nil, c.dropReply(channel, address, "unknown address")
		}
		return nil, err
	}

	inv, err := c.store.LatestOpenInvitationForRecipient(ctx, recipient.ID)
	if err != nil {
		if code, ok := errors.CodeOf(err); ok && code == errors.ErrCodeInvitationNotFound {
			return nil, c.dropReply(channel, address, "no open invitation")
		}
		return nil, err
	}
	return inv, nil
}

func (c *Correlator) dropReply(channel models.Channel, address, reason string) *errors.StandardError {
	metrics.RepliesDropped.Inc()
	err := errors.NewReplyUnmatchedError(string(channel), address)
	c.logger.WithError(err).Warn("inbound reply dropped", map[string]interface{}{
		"channel": string(channel),
		"address": address,
		"reason":  reason,
	})
	return err
}

func responseLabel(r models.ReplyResponse) string {
	switch r {
	case models.ResponseAccept, models.ResponseDecline:
		return string(r)
	}
	return "unknown"
}

// InterpretReply maps free-form reply text onto an accept or decline. Text
// that matches neither vocabulary returns an empty response, which Correlate
// treats as uninterpretable.
func InterpretReply(rawText string) models.ReplyResponse {
	normalized := strings.ToLower(strings.TrimSpace(rawText))
	switch normalized {
	case "yes", "y", "accept", "accepted", "confirm", "ok", "i'm in", "im in":
		return models.ResponseAccept
	case "no", "n", "decline", "declined", "pass", "can't", "cant", "cannot":
		return models.ResponseDecline
	}
	return ""
}
