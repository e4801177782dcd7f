// Package ledger persists messages and per-recipient delivery records.
// Messages are append-only; delivery records are upserted on
// (message_id, recipient_id) so a retried send updates rather than
// duplicates a record.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"coachreach/internal/common/database"
	"coachreach/internal/common/errors"
	"coachreach/internal/common/logger"
	"coachreach/internal/models"
)

// AuditIndexer receives escalation audit documents. Indexing is best-effort
// and never blocks or fails a ledger write.
type AuditIndexer interface {
	Index(ctx context.Context, index, id string, doc []byte) error
}

// Store is the Postgres-backed delivery ledger.
type Store struct {
	db         *sql.DB
	es         AuditIndexer
	auditIndex string
	logger     logger.Logger
}

func NewStore(db *sql.DB, es AuditIndexer, auditIndex string, log logger.Logger) *Store {
	return &Store{
		db:         db,
		es:         es,
		auditIndex: auditIndex,
		logger:     log.WithFields(map[string]interface{}{"component": "ledger"}),
	}
}

// NewStoreWithoutAudit builds a Store with escalation indexing disabled.
func NewStoreWithoutAudit(db *sql.DB, log logger.Logger) *Store {
	return NewStore(db, nil, "", log)
}

var _ AuditIndexer = (*database.ElasticsearchClient)(nil)

// AppendMessage stores an immutable rendered message.
func (s *Store) AppendMessage(ctx context.Context, msg models.Message) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, template_id, rendered_text, created_at)
		VALUES ($1, $2, $3, $4)`,
		msg.ID, msg.TemplateID, msg.RenderedText, msg.CreatedAt)
	if err != nil {
		return errors.NewDatabaseInsertFailedError(err)
	}
	return nil
}

// UpsertDelivery writes a delivery record keyed by (message_id, recipient_id).
// A duplicate submit for the same pair updates the existing row.
func (s *Store) UpsertDelivery(ctx context.Context, record models.DeliveryRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO delivery_records
			(id, message_id, recipient_id, channel, status, provider_message_id, error_detail, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (message_id, recipient_id) DO UPDATE SET
			status = EXCLUDED.status,
			provider_message_id = EXCLUDED.provider_message_id,
			error_detail = EXCLUDED.error_detail,
			sent_at = EXCLUDED.sent_at`,
		record.ID, record.MessageID, record.RecipientID, string(record.Channel),
		string(record.Status), nullable(record.ProviderMessageID), nullable(record.ErrorDetail), record.SentAt)
	if err != nil {
		return errors.NewDatabaseInsertFailedError(err)
	}
	return nil
}

// ApplyConfirmation applies an asynchronous gateway outcome to the record
// matching providerMessageID. Only sent->delivered and sent->failed land; a
// late or duplicate confirmation for an already-terminal record is a no-op
// returning the stored record unchanged.
func (s *Store) ApplyConfirmation(ctx context.Context, providerMessageID string, status models.DeliveryStatus, errorDetail string) (*models.DeliveryRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE delivery_records
		SET status = $2, error_detail = $3
		WHERE provider_message_id = $1 AND status = 'sent'
		RETURNING id, message_id, recipient_id, channel, status, provider_message_id, error_detail, sent_at`,
		providerMessageID, string(status), nullable(errorDetail))

	record, err := scanDelivery(row)
	if err == nil {
		return record, nil
	}
	if err != sql.ErrNoRows {
		return nil, errors.NewQueryExecutionFailedError("apply confirmation", err)
	}

	// Nothing updated: either the record is already terminal (fine) or the
	// provider id is unknown.
	existing, err := s.DeliveryByProviderID(ctx, providerMessageID)
	if err != nil {
		return nil, err
	}
	return existing, nil
}

// DeliveryByProviderID looks a record up by the gateway's message id.
func (s *Store) DeliveryByProviderID(ctx context.Context, providerMessageID string) (*models.DeliveryRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, message_id, recipient_id, channel, status, provider_message_id, error_detail, sent_at
		FROM delivery_records
		WHERE provider_message_id = $1`,
		providerMessageID)

	record, err := scanDelivery(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewDeliveryRecordNotFoundError(providerMessageID)
	}
	if err != nil {
		return nil, errors.NewQueryExecutionFailedError("delivery by provider id", err)
	}
	return record, nil
}

// DeliveriesForMessage returns all delivery records for one message.
func (s *Store) DeliveriesForMessage(ctx context.Context, messageID string) ([]models.DeliveryRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, message_id, recipient_id, channel, status, provider_message_id, error_detail, sent_at
		FROM delivery_records
		WHERE message_id = $1
		ORDER BY sent_at`,
		messageID)
	if err != nil {
		return nil, errors.NewQueryExecutionFailedError("deliveries for message", err)
	}
	defer rows.Close()
	return collectDeliveries(rows)
}

// DeliveriesForCampaign returns all delivery records for a campaign, joined
// through its invitations' recipients.
func (s *Store) DeliveriesForCampaign(ctx context.Context, campaignID string) ([]models.DeliveryRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT dr.id, dr.message_id, dr.recipient_id, dr.channel, dr.status, dr.provider_message_id, dr.error_detail, dr.sent_at
		FROM delivery_records dr
		JOIN invitations i ON i.recipient_id = dr.recipient_id
		WHERE i.campaign_id = $1
		ORDER BY dr.sent_at`,
		campaignID)
	if err != nil {
		return nil, errors.NewQueryExecutionFailedError("deliveries for campaign", err)
	}
	defer rows.Close()
	return collectDeliveries(rows)
}

// FailureCount returns the number of failed deliveries within a campaign,
// surfaced to operators alongside workflow status.
func (s *Store) FailureCount(ctx context.Context, campaignID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM delivery_records dr
		JOIN invitations i ON i.recipient_id = dr.recipient_id
		WHERE i.campaign_id = $1 AND dr.status = 'failed'`,
		campaignID).Scan(&count)
	if err != nil {
		return 0, errors.NewQueryExecutionFailedError("failure count", err)
	}
	return count, nil
}

// EscalationAudit is the operator-searchable record of one escalation.
type EscalationAudit struct {
	CampaignID  string    `json:"campaignId"`
	EventID     string    `json:"eventId"`
	RecipientID string    `json:"recipientId"`
	Trigger     string    `json:"trigger"` // "timeout", "override", "uninterpretable_reply"
	Detail      string    `json:"detail,omitempty"`
	EscalatedAt time.Time `json:"escalatedAt"`
}

// IndexEscalation pushes an escalation audit document to the search index.
// Failures are logged and swallowed: the invitation state is the source of
// truth, the index is a convenience view.
func (s *Store) IndexEscalation(ctx context.Context, audit EscalationAudit) {
	if s.es == nil {
		return
	}
	doc, err := json.Marshal(audit)
	if err != nil {
		s.logger.Warn("escalation audit marshal failed", map[string]interface{}{"error": err})
		return
	}
	id := audit.CampaignID + ":" + audit.RecipientID
	if err := s.es.Index(ctx, s.auditIndex, id, doc); err != nil {
		s.logger.Warn("escalation audit index failed", map[string]interface{}{
			"campaignId":  audit.CampaignID,
			"recipientId": audit.RecipientID,
			"error":       err,
		})
	}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDelivery(row rowScanner) (*models.DeliveryRecord, error) {
	var record models.DeliveryRecord
	var channel, status string
	var providerID, errorDetail sql.NullString

	err := row.Scan(&record.ID, &record.MessageID, &record.RecipientID, &channel,
		&status, &providerID, &errorDetail, &record.SentAt)
	if err != nil {
		return nil, err
	}

	record.Channel = models.Channel(channel)
	record.Status = models.DeliveryStatus(status)
	record.ProviderMessageID = providerID.String
	record.ErrorDetail = errorDetail.String
	return &record, nil
}

func collectDeliveries(rows *sql.Rows) ([]models.DeliveryRecord, error) {
	var records []models.DeliveryRecord
	for rows.Next() {
		record, err := scanDelivery(rows)
		if err != nil {
			return nil, errors.NewQueryExecutionFailedError("scan delivery", err)
		}
		records = append(records, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewQueryExecutionFailedError("iterate deliveries", err)
	}
	return records, nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
