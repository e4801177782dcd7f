package campaign

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coachreach/internal/common/errors"
	"coachreach/internal/models"
)

func newSQLStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(db), mock
}

func TestUpdateInvitationBumpsVersion(t *testing.T) {
	store, mock := newSQLStore(t)

	mock.ExpectExec(`UPDATE invitations`).
		WithArgs("camp-1", "coach-7", "accepted", 1, sqlmock.AnyArg(), "", 2).
		WillReturnResult(sqlmock.NewResult(0, 1))

	inv := &models.Invitation{
		CampaignID:    "camp-1",
		RecipientID:   "coach-7",
		State:         models.InvitationAccepted,
		RemindersSent: 1,
		LastActionAt:  time.Now().UTC(),
		Version:       2,
	}
	require.NoError(t, store.UpdateInvitation(context.Background(), inv))
	assert.Equal(t, 3, inv.Version)
}

func TestUpdateInvitationVersionConflict(t *testing.T) {
	store, mock := newSQLStore(t)

	mock.ExpectExec(`UPDATE invitations`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	inv := &models.Invitation{CampaignID: "camp-1", RecipientID: "coach-7", Version: 2}
	err := store.UpdateInvitation(context.Background(), inv)
	assert.ErrorIs(t, err, ErrVersionConflict)
	assert.Equal(t, 2, inv.Version)
}

func TestCreateAcknowledgementConflictReturnsFalse(t *testing.T) {
	store, mock := newSQLStore(t)

	mock.ExpectExec(`INSERT INTO acknowledgements`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	created, err := store.CreateAcknowledgement(context.Background(), models.Acknowledgement{
		ID:          "ack-1",
		CampaignID:  "camp-1",
		RecipientID: "coach-7",
	})
	require.NoError(t, err)
	assert.False(t, created)
}

func TestActiveCampaignByEventNotFound(t *testing.T) {
	store, mock := newSQLStore(t)

	mock.ExpectQuery(`SELECT .+ FROM campaigns`).
		WithArgs("evt-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "event_id", "config", "created_at"}))

	_, err := store.ActiveCampaignByEvent(context.Background(), "evt-1")
	require.Error(t, err)
	code, _ := errors.CodeOf(err)
	assert.Equal(t, errors.ErrCodeCampaignNotFound, code)
}

// Openness is computed from invitation states at read time; both open-
// campaign queries must carry the EXISTS filter rather than a stored flag.
func TestActiveCampaignByEventDerivesOpenness(t *testing.T) {
	store, mock := newSQLStore(t)

	mock.ExpectQuery(`FROM campaigns c WHERE c\.event_id = \$1 AND EXISTS \( SELECT 1 FROM invitations i WHERE i\.campaign_id = c\.id AND i\.state IN \('pending', 'reminded'\)\)`).
		WithArgs("evt-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "event_id", "config", "created_at"}))

	_, err := store.ActiveCampaignByEvent(context.Background(), "evt-1")
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOpenCampaignsDerivesOpenness(t *testing.T) {
	store, mock := newSQLStore(t)

	mock.ExpectQuery(`FROM campaigns c WHERE EXISTS \( SELECT 1 FROM invitations i WHERE i\.campaign_id = c\.id AND i\.state IN \('pending', 'reminded'\)\)`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "event_id", "config", "created_at"}))

	campaigns, err := store.OpenCampaigns(context.Background())
	require.NoError(t, err)
	assert.Empty(t, campaigns)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestActiveCampaignByEventDecodesConfig(t *testing.T) {
	store, mock := newSQLStore(t)

	cfg := []byte(`{"reminderOffsetsDays":[1,3,5],"handoffAfterDays":7,"templates":{"initial":"a","reminder":"b"}}`)
	mock.ExpectQuery(`SELECT .+ FROM campaigns`).
		WithArgs("evt-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "event_id", "config", "created_at"}).
			AddRow("camp-1", "evt-1", cfg, time.Now().UTC()))

	campaign, err := store.ActiveCampaignByEvent(context.Background(), "evt-1")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3, 5}, campaign.Config.ReminderOffsetsDays)
	assert.Equal(t, 7, campaign.Config.HandoffAfterDays)
}
