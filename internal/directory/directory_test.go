package directory

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coachreach/internal/common/errors"
	applogger "coachreach/internal/common/logger"
	"coachreach/internal/models"
)

func newTestService(t *testing.T) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { cache.Close() })

	return NewService(db, cache, applogger.NewTestLogger(t)), mock
}

func TestRecipientReadThrough(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery(`SELECT .+ FROM recipients`).
		WithArgs("coach-7").
		WillReturnRows(sqlmock.NewRows([]string{"id", "display_name", "channel", "address"}).
			AddRow("coach-7", "Dana Reyes", "sms", "+15550100"))

	recipient, err := svc.Recipient(context.Background(), "coach-7")
	require.NoError(t, err)
	assert.Equal(t, models.ChannelSMS, recipient.Channel)
	assert.Equal(t, "+15550100", recipient.Address)

	// Second lookup is served by the cache; no further DB expectation set.
	cached, err := svc.Recipient(context.Background(), "coach-7")
	require.NoError(t, err)
	assert.Equal(t, recipient, cached)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecipientNotFound(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery(`SELECT .+ FROM recipients`).
		WithArgs("nobody").
		WillReturnRows(sqlmock.NewRows([]string{"id", "display_name", "channel", "address"}))

	_, err := svc.Recipient(context.Background(), "nobody")
	require.Error(t, err)
	code, ok := errors.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrCodeRecipientNotFound, code)
}

func TestRecipientsFailsOnAnyMissing(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery(`SELECT .+ FROM recipients`).
		WithArgs("coach-7").
		WillReturnRows(sqlmock.NewRows([]string{"id", "display_name", "channel", "address"}).
			AddRow("coach-7", "Dana Reyes", "email", "dana@example.com"))
	mock.ExpectQuery(`SELECT .+ FROM recipients`).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"id", "display_name", "channel", "address"}))

	_, err := svc.Recipients(context.Background(), []string{"coach-7", "ghost"})
	require.Error(t, err)
	code, _ := errors.CodeOf(err)
	assert.Equal(t, errors.ErrCodeRecipientNotFound, code)
}

func TestCandidatesForEvent(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery(`JOIN event_candidate_pool`).
		WithArgs("evt-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "display_name", "specialties", "ratings", "location"}).
			AddRow("coach-7", "Dana Reyes", "{soccer,youth}", "{4.5,5.0}", "north"))
	mock.ExpectQuery(`FROM candidate_availability`).
		WithArgs("coach-7").
		WillReturnRows(sqlmock.NewRows([]string{"start_at", "end_at"}).
			AddRow(time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC), time.Date(2026, 9, 1, 17, 0, 0, 0, time.UTC)))

	candidates, err := svc.CandidatesForEvent(context.Background(), "evt-1")
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, []string{"soccer", "youth"}, candidates[0].Specialties)
	assert.Equal(t, []float64{4.5, 5.0}, candidates[0].Ratings)
	require.Len(t, candidates[0].Availability, 1)
}

func TestEventProfileNotFound(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery(`SELECT .+ FROM events`).
		WithArgs("evt-missing").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "required_skills", "start_at", "end_at", "location"}))

	_, err := svc.EventProfile(context.Background(), "evt-missing")
	require.Error(t, err)
	code, _ := errors.CodeOf(err)
	assert.Equal(t, errors.ErrCodeEventNotFound, code)
}
