package ledger

import (
	"context"
	"fmt"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coachreach/internal/common/errors"
	applogger "coachreach/internal/common/logger"
	"coachreach/internal/models"
)

func newTestStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStoreWithoutAudit(db, applogger.NewTestLogger(t)), mock
}

func deliveryColumns() []string {
	return []string{"id", "message_id", "recipient_id", "channel", "status", "provider_message_id", "error_detail", "sent_at"}
}

func TestAppendMessage(t *testing.T) {
	store, mock := newTestStore(t)

	msg := models.Message{
		ID:           "msg-1",
		TemplateID:   "invite-initial",
		RenderedText: "Hi Dana, the U12 clinic needs a coach.",
		CreatedAt:    time.Now().UTC(),
	}

	mock.ExpectExec(`INSERT INTO messages`).
		WithArgs(msg.ID, msg.TemplateID, msg.RenderedText, msg.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.AppendMessage(context.Background(), msg))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendMessageInsertFailure(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectExec(`INSERT INTO messages`).
		WillReturnError(fmt.Errorf("connection reset"))

	err := store.AppendMessage(context.Background(), models.Message{ID: "msg-1"})
	require.Error(t, err)
	code, ok := errors.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrCodeDatabaseInsertFailed, code)
}

func TestUpsertDelivery(t *testing.T) {
	store, mock := newTestStore(t)

	sentAt := time.Now().UTC()
	record := models.DeliveryRecord{
		ID:                "dr-1",
		MessageID:         "msg-1",
		RecipientID:       "coach-7",
		Channel:           models.ChannelSMS,
		Status:            models.DeliverySent,
		ProviderMessageID: "sns-123",
		SentAt:            sentAt,
	}

	mock.ExpectExec(`INSERT INTO delivery_records`).
		WithArgs("dr-1", "msg-1", "coach-7", "sms", "sent", "sns-123", nil, sentAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.UpsertDelivery(context.Background(), record))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyConfirmationTransitionsSentRecord(t *testing.T) {
	store, mock := newTestStore(t)

	sentAt := time.Now().UTC()
	mock.ExpectQuery(`UPDATE delivery_records`).
		WithArgs("sns-123", "delivered", nil).
		WillReturnRows(sqlmock.NewRows(deliveryColumns()).
			AddRow("dr-1", "msg-1", "coach-7", "sms", "delivered", "sns-123", nil, sentAt))

	record, err := store.ApplyConfirmation(context.Background(), "sns-123", models.DeliveryDelivered, "")
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryDelivered, record.Status)
	assert.Equal(t, "coach-7", record.RecipientID)
}

func TestApplyConfirmationIdempotentOnTerminalRecord(t *testing.T) {
	store, mock := newTestStore(t)

	sentAt := time.Now().UTC()
	// Update matches nothing because the record already left "sent".
	mock.ExpectQuery(`UPDATE delivery_records`).
		WithArgs("sns-123", "failed", "number unreachable").
		WillReturnRows(sqlmock.NewRows(deliveryColumns()))
	mock.ExpectQuery(`SELECT .+ FROM delivery_records`).
		WithArgs("sns-123").
		WillReturnRows(sqlmock.NewRows(deliveryColumns()).
			AddRow("dr-1", "msg-1", "coach-7", "sms", "delivered", "sns-123", nil, sentAt))

	record, err := store.ApplyConfirmation(context.Background(), "sns-123", models.DeliveryFailed, "number unreachable")
	require.NoError(t, err)
	// The stored terminal status wins; the late confirmation is dropped.
	assert.Equal(t, models.DeliveryDelivered, record.Status)
}

func TestApplyConfirmationUnknownProviderID(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectQuery(`UPDATE delivery_records`).
		WillReturnRows(sqlmock.NewRows(deliveryColumns()))
	mock.ExpectQuery(`SELECT .+ FROM delivery_records`).
		WithArgs("sns-missing").
		WillReturnRows(sqlmock.NewRows(deliveryColumns()))

	_, err := store.ApplyConfirmation(context.Background(), "sns-missing", models.DeliveryDelivered, "")
	require.Error(t, err)
	code, ok := errors.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrCodeDeliveryRecordNotFound, code)
}

func TestDeliveriesForMessage(t *testing.T) {
	store, mock := newTestStore(t)

	sentAt := time.Now().UTC()
	mock.ExpectQuery(`SELECT .+ FROM delivery_records\s+WHERE message_id`).
		WithArgs("msg-1").
		WillReturnRows(sqlmock.NewRows(deliveryColumns()).
			AddRow("dr-1", "msg-1", "coach-7", "sms", "delivered", "sns-123", nil, sentAt).
			AddRow("dr-2", "msg-1", "coach-8", "email", "failed", "ses-456", "mailbox full", sentAt))

	records, err := store.DeliveriesForMessage(context.Background(), "msg-1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, models.ChannelSMS, records[0].Channel)
	assert.Equal(t, "mailbox full", records[1].ErrorDetail)
}

func TestDeliveriesForCampaignJoinsInvitations(t *testing.T) {
	store, mock := newTestStore(t)

	sentAt := time.Now().UTC()
	mock.ExpectQuery(`JOIN invitations`).
		WithArgs("camp-1").
		WillReturnRows(sqlmock.NewRows(deliveryColumns()).
			AddRow("dr-1", "msg-1", "coach-7", "chat", "sent", "chat-1", nil, sentAt))

	records, err := store.DeliveriesForCampaign(context.Background(), "camp-1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, models.ChannelChat, records[0].Channel)
}

func TestFailureCount(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectQuery(`SELECT COUNT`).
		WithArgs("camp-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	count, err := store.FailureCount(context.Background(), "camp-1")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}
