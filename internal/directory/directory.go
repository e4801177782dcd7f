// Package directory serves recipient and candidate lookups from Postgres
// with a Redis read-through cache. The engine treats the directory as
// external reference data and never writes to it.
package directory

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"coachreach/internal/common/errors"
	"coachreach/internal/common/logger"
	"coachreach/internal/models"
)

const (
	recipientKeyPrefix = "directory:recipient:"
	recipientCacheTTL  = 10 * time.Minute
)

// Service resolves recipients and event candidates.
type Service struct {
	db     *sql.DB
	cache  *redis.Client
	logger logger.Logger
}

func NewService(db *sql.DB, cache *redis.Client, log logger.Logger) *Service {
	return &Service{
		db:     db,
		cache:  cache,
		logger: log.WithFields(map[string]interface{}{"component": "directory"}),
	}
}

// Recipient returns the contact for id, consulting the cache first.
func (s *Service) Recipient(ctx context.Context, id string) (*models.Recipient, error) {
	if cached := s.cachedRecipient(ctx, id); cached != nil {
		return cached, nil
	}

	var recipient models.Recipient
	var channel string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, channel, address
		FROM recipients
		WHERE id = $1`,
		id).Scan(&recipient.ID, &recipient.DisplayName, &channel, &recipient.Address)
	if err == sql.ErrNoRows {
		return nil, errors.NewRecipientNotFoundError(id)
	}
	if err != nil {
		return nil, errors.NewQueryExecutionFailedError("recipient lookup", err)
	}

	parsed, perr := models.ParseChannel(channel)
	if perr != nil {
		return nil, perr
	}
	recipient.Channel = parsed

	s.cacheRecipient(ctx, &recipient)
	return &recipient, nil
}

// RecipientByAddress resolves an inbound address back to a recipient. Used
// to correlate gateway replies; not cached because addresses arrive rarely
// and stale hits would misroute replies.
func (s *Service) RecipientByAddress(ctx context.Context, channel models.Channel, address string) (*models.Recipient, error) {
	var recipient models.Recipient
	var ch string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, channel, address
		FROM recipients
		WHERE channel = $1 AND address = $2`,
		string(channel), address).Scan(&recipient.ID, &recipient.DisplayName, &ch, &recipient.Address)
	if err == sql.ErrNoRows {
		return nil, errors.NewRecipientNotFoundError(address)
	}
	if err != nil {
		return nil, errors.NewQueryExecutionFailedError("recipient by address", err)
	}
	recipient.Channel = channel
	return &recipient, nil
}

// Recipients resolves a batch of ids, preserving input order. Any missing id
// fails the whole lookup so a campaign never starts with a partial roster.
func (s *Service) Recipients(ctx context.Context, ids []string) ([]models.Recipient, error) {
	recipients := make([]models.Recipient, 0, len(ids))
	for _, id := range ids {
		recipient, err := s.Recipient(ctx, id)
		if err != nil {
			return nil, err
		}
		recipients = append(recipients, *recipient)
	}
	return recipients, nil
}

// CandidatesForEvent returns the coach pool eligible for an event. Candidate
// rows change often enough that they are read straight from Postgres.
func (s *Service) CandidatesForEvent(ctx context.Context, eventID string) ([]models.Candidate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.display_name, c.specialties, c.ratings, c.location
		FROM candidates c
		JOIN event_candidate_pool p ON p.candidate_id = c.id
		WHERE p.event_id = $1
		ORDER BY c.id`,
		eventID)
	if err != nil {
		return nil, errors.NewQueryExecutionFailedError("candidates for event", err)
	}
	defer rows.Close()

	var candidates []models.Candidate
	for rows.Next() {
		var candidate models.Candidate
		err := rows.Scan(&candidate.ID, &candidate.DisplayName,
			pq.Array(&candidate.Specialties), pq.Array(&candidate.Ratings), &candidate.Location)
		if err != nil {
			return nil, errors.NewQueryExecutionFailedError("scan candidate", err)
		}
		windows, err := s.availabilityFor(ctx, candidate.ID)
		if err != nil {
			return nil, err
		}
		candidate.Availability = windows
		candidates = append(candidates, candidate)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewQueryExecutionFailedError("iterate candidates", err)
	}
	return candidates, nil
}

// EventProfile loads the event attributes the scorer reads.
func (s *Service) EventProfile(ctx context.Context, eventID string) (*models.EventProfile, error) {
	var event models.EventProfile
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, required_skills, start_at, end_at, location
		FROM events
		WHERE id = $1`,
		eventID).Scan(&event.ID, &event.Name, pq.Array(&event.RequiredSkills),
		&event.Start, &event.End, &event.Location)
	if err == sql.ErrNoRows {
		return nil, errors.NewEventNotFoundError(eventID)
	}
	if err != nil {
		return nil, errors.NewQueryExecutionFailedError("event profile", err)
	}
	return &event, nil
}

func (s *Service) availabilityFor(ctx context.Context, candidateID string) ([]models.Window, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT start_at, end_at
		FROM candidate_availability
		WHERE candidate_id = $1
		ORDER BY start_at`,
		candidateID)
	if err != nil {
		return nil, errors.NewQueryExecutionFailedError("candidate availability", err)
	}
	defer rows.Close()

	var windows []models.Window
	for rows.Next() {
		var window models.Window
		if err := rows.Scan(&window.Start, &window.End); err != nil {
			return nil, errors.NewQueryExecutionFailedError("scan availability", err)
		}
		windows = append(windows, window)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewQueryExecutionFailedError("iterate availability", err)
	}
	return windows, nil
}

func (s *Service) cachedRecipient(ctx context.Context, id string) *models.Recipient {
	if s.cache == nil {
		return nil
	}
	raw, err := s.cache.Get(ctx, recipientKeyPrefix+id).Bytes()
	if err != nil {
		if err != redis.Nil {
			s.logger.Warn("recipient cache read failed", map[string]interface{}{"recipientId": id, "error": err})
		}
		return nil
	}
	var recipient models.Recipient
	if err := json.Unmarshal(raw, &recipient); err != nil {
		return nil
	}
	return &recipient
}

func (s *Service) cacheRecipient(ctx context.Context, recipient *models.Recipient) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(recipient)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, recipientKeyPrefix+recipient.ID, raw, recipientCacheTTL).Err(); err != nil {
		s.logger.Warn("recipient cache write failed", map[string]interface{}{"recipientId": recipient.ID, "error": err})
	}
}
