// Package campaign owns the outreach workflow: per-recipient invitation
// state machines, reminder and handoff timing, and the acknowledgements
// that close them out.
package campaign

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"

	"coachreach/internal/common/errors"
	"coachreach/internal/models"
)

// ErrVersionConflict signals a lost optimistic-concurrency race on an
// invitation write. Callers treat it as "someone else already acted".
var ErrVersionConflict = stderrors.New("invitation version conflict")

// Store persists campaigns, invitations, and acknowledgements.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateCampaign inserts a campaign with its config serialized as JSONB.
func (s *Store) CreateCampaign(ctx context.Context, campaign models.OutreachCampaign) error {
	cfg, err := json.Marshal(campaign.Config)
	if err != nil {
		return errors.NewInvalidCampaignConfigError(err.Error())
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO campaigns (id, event_id, config, created_at)
		VALUES ($1, $2, $3, $4)`,
		campaign.ID, campaign.EventID, cfg, campaign.CreatedAt)
	if err != nil {
		return errors.NewDatabaseInsertFailedError(err)
	}
	return nil
}

// ActiveCampaignByEvent returns the open campaign for an event, or
// CAMPAIGN_NOT_FOUND when the event has none. Openness is derived: a
// campaign is open while any of its invitations is still pending or
// reminded, so there is no second source of truth to keep in sync.
func (s *Store) ActiveCampaignByEvent(ctx context.Context, eventID string) (*models.OutreachCampaign, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT c.id, c.event_id, c.config, c.created_at
		FROM campaigns c
		WHERE c.event_id = $1
		  AND EXISTS (
			SELECT 1 FROM invitations i
			WHERE i.campaign_id = c.id AND i.state IN ('pending', 'reminded'))
		ORDER BY c.created_at DESC
		LIMIT 1`,
		eventID)
	campaign, err := scanCampaign(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewCampaignNotFoundError(eventID)
	}
	if err != nil {
		return nil, errors.NewQueryExecutionFailedError("campaign by event", err)
	}
	return campaign, nil
}

// LatestCampaignByEvent returns the newest campaign for an event, open or
// closed. Status queries keep working after a campaign finishes.
func (s *Store) LatestCampaignByEvent(ctx context.Context, eventID string) (*models.OutreachCampaign, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, event_id, config, created_at
		FROM campaigns
		WHERE event_id = $1
		ORDER BY created_at DESC
		LIMIT 1`,
		eventID)
	campaign, err := scanCampaign(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewCampaignNotFoundError(eventID)
	}
	if err != nil {
		return nil, errors.NewQueryExecutionFailedError("latest campaign by event", err)
	}
	return campaign, nil
}

// OpenCampaigns lists every campaign with at least one non-terminal
// invitation, oldest first. A campaign whose last invitation turns terminal
// through any writer drops out of this list immediately.
func (s *Store) OpenCampaigns(ctx context.Context) ([]models.OutreachCampaign, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.event_id, c.config, c.created_at
		FROM campaigns c
		WHERE EXISTS (
			SELECT 1 FROM invitations i
			WHERE i.campaign_id = c.id AND i.state IN ('pending', 'reminded'))
		ORDER BY c.created_at`)
	if err != nil {
		return nil, errors.NewQueryExecutionFailedError("open campaigns", err)
	}
	defer rows.Close()

	var campaigns []models.OutreachCampaign
	for rows.Next() {
		campaign, err := scanCampaign(rows)
		if err != nil {
			return nil, errors.NewQueryExecutionFailedError("scan campaign", err)
		}
		campaigns = append(campaigns, *campaign)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewQueryExecutionFailedError("iterate campaigns", err)
	}
	return campaigns, nil
}

// CreateInvitation inserts a fresh invitation at version 1.
func (s *Store) CreateInvitation(ctx context.Context, inv models.Invitation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO invitations
			(campaign_id, recipient_id, state, reminders_sent, created_at, last_action_at, response_detail, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 1)`,
		inv.CampaignID, inv.RecipientID, string(inv.State), inv.RemindersSent,
		inv.CreatedAt, inv.LastActionAt, inv.ResponseDetail)
	if err != nil {
		return errors.NewDatabaseInsertFailedError(err)
	}
	return nil
}

// Invitation loads one invitation including its current version.
func (s *Store) Invitation(ctx context.Context, campaignID, recipientID string) (*models.Invitation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT campaign_id, recipient_id, state, reminders_sent, created_at, last_action_at, response_detail, version
		FROM invitations
		WHERE campaign_id = $1 AND recipient_id = $2`,
		campaignID, recipientID)
	inv, err := scanInvitation(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewInvitationNotFoundError(campaignID, recipientID)
	}
	if err != nil {
		return nil, errors.NewQueryExecutionFailedError("invitation lookup", err)
	}
	return inv, nil
}

// InvitationsForCampaign returns all invitations, recipient order stable.
func (s *Store) InvitationsForCampaign(ctx context.Context, campaignID string) ([]models.Invitation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT campaign_id, recipient_id, state, reminders_sent, created_at, last_action_at, response_detail, version
		FROM invitations
		WHERE campaign_id = $1
		ORDER BY recipient_id`,
		campaignID)
	if err != nil {
		return nil, errors.NewQueryExecutionFailedError("invitations for campaign", err)
	}
	defer rows.Close()

	var invitations []models.Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, errors.NewQueryExecutionFailedError("scan invitation", err)
		}
		invitations = append(invitations, *inv)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewQueryExecutionFailedError("iterate invitations", err)
	}
	return invitations, nil
}

// UpdateInvitation writes inv back only if the stored version still matches
// inv.Version. On success inv.Version is bumped to the stored value.
func (s *Store) UpdateInvitation(ctx context.Context, inv *models.Invitation) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE invitations
		SET state = $3, reminders_sent = $4, last_action_at = $5, response_detail = $6, version = version + 1
		WHERE campaign_id = $1 AND recipient_id = $2 AND version = $7`,
		inv.CampaignID, inv.RecipientID, string(inv.State), inv.RemindersSent,
		inv.LastActionAt, inv.ResponseDetail, inv.Version)
	if err != nil {
		return errors.NewQueryExecutionFailedError("update invitation", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return errors.NewQueryExecutionFailedError("update invitation", err)
	}
	if affected == 0 {
		return ErrVersionConflict
	}
	inv.Version++
	return nil
}

// LatestOpenInvitationForRecipient finds the most recently created
// non-terminal invitation addressed to a recipient, across campaigns.
func (s *Store) LatestOpenInvitationForRecipient(ctx context.Context, recipientID string) (*models.Invitation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT campaign_id, recipient_id, state, reminders_sent, created_at, last_action_at, response_detail, version
		FROM invitations
		WHERE recipient_id = $1 AND state IN ('pending', 'reminded')
		ORDER BY created_at DESC
		LIMIT 1`,
		recipientID)
	inv, err := scanInvitation(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewInvitationNotFoundError("", recipientID)
	}
	if err != nil {
		return nil, errors.NewQueryExecutionFailedError("open invitation for recipient", err)
	}
	return inv, nil
}

// EventIDForRecipient returns the event behind the recipient's most recent
// invitation, open or terminal. Delivery confirmations use it to pick a
// fan-out topic after the campaign may already have closed.
func (s *Store) EventIDForRecipient(ctx context.Context, recipientID string) (string, error) {
	var eventID string
	err := s.db.QueryRowContext(ctx, `
		SELECT c.event_id
		FROM invitations i
		JOIN campaigns c ON c.id = i.campaign_id
		WHERE i.recipient_id = $1
		ORDER BY i.created_at DESC
		LIMIT 1`,
		recipientID).Scan(&eventID)
	if err == sql.ErrNoRows {
		return "", errors.NewInvitationNotFoundError("", recipientID)
	}
	if err != nil {
		return "", errors.NewQueryExecutionFailedError("event for recipient", err)
	}
	return eventID, nil
}

// CreateAcknowledgement records a reply. Returns false when the pair already
// acknowledged; the original row is left untouched.
func (s *Store) CreateAcknowledgement(ctx context.Context, ack models.Acknowledgement) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO acknowledgements (id, campaign_id, recipient_id, token, acknowledged_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (campaign_id, recipient_id) DO NOTHING`,
		ack.ID, ack.CampaignID, ack.RecipientID, ack.Token, ack.AcknowledgedAt)
	if err != nil {
		return false, errors.NewDatabaseInsertFailedError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, errors.NewQueryExecutionFailedError("create acknowledgement", err)
	}
	return affected > 0, nil
}

// AcknowledgementFor loads the stored reply for a pair, nil when absent.
func (s *Store) AcknowledgementFor(ctx context.Context, campaignID, recipientID string) (*models.Acknowledgement, error) {
	var ack models.Acknowledgement
	err := s.db.QueryRowContext(ctx, `
		SELECT id, campaign_id, recipient_id, token, acknowledged_at
		FROM acknowledgements
		WHERE campaign_id = $1 AND recipient_id = $2`,
		campaignID, recipientID).
		Scan(&ack.ID, &ack.CampaignID, &ack.RecipientID, &ack.Token, &ack.AcknowledgedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewQueryExecutionFailedError("acknowledgement lookup", err)
	}
	return &ack, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCampaign(row rowScanner) (*models.OutreachCampaign, error) {
	var campaign models.OutreachCampaign
	var rawConfig []byte
	if err := row.Scan(&campaign.ID, &campaign.EventID, &rawConfig, &campaign.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(rawConfig, &campaign.Config); err != nil {
		return nil, err
	}
	return &campaign, nil
}

func scanInvitation(row rowScanner) (*models.Invitation, error) {
	var inv models.Invitation
	var state string
	var detail sql.NullString
	err := row.Scan(&inv.CampaignID, &inv.RecipientID, &state, &inv.RemindersSent,
		&inv.CreatedAt, &inv.LastActionAt, &detail, &inv.Version)
	if err != nil {
		return nil, err
	}
	inv.State = models.InvitationState(state)
	inv.ResponseDetail = detail.String
	return &inv, nil
}
