package campaign

import (
	"context"
	"time"

	"coachreach/internal/common/logger"
	"coachreach/internal/common/metrics"
	"coachreach/internal/common/observability"
	"coachreach/internal/models"
)

const tickLockPrefix = "outreach:tick:"

// Locker is the distributed lock keeping two scheduler instances from
// evaluating the same campaign at once.
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key string) error
}

// TickSource lists open campaigns and evaluates one campaign per call.
type TickSource interface {
	OpenCampaignList(ctx context.Context) ([]models.OutreachCampaign, error)
	TickCampaign(ctx context.Context, campaign models.OutreachCampaign, now time.Time) error
}

// OpenCampaignList exposes the store listing on the manager so the
// scheduler's TickSource stays a single dependency.
func (m *Manager) OpenCampaignList(ctx context.Context) ([]models.OutreachCampaign, error) {
	return m.store.OpenCampaigns(ctx)
}

// Scheduler drives the reminder and handoff timers on a fixed interval.
type Scheduler struct {
	source   TickSource
	locker   Locker
	interval time.Duration
	lockTTL  time.Duration
	catchUp  bool
	obs      *observability.Observability
	logger   logger.Logger
}

func NewScheduler(source TickSource, locker Locker, interval, lockTTL time.Duration, catchUp bool, obs *observability.Observability, log logger.Logger) *Scheduler {
	return &Scheduler{
		source:   source,
		locker:   locker,
		interval: interval,
		lockTTL:  lockTTL,
		catchUp:  catchUp,
		obs:      obs,
		logger:   log.WithFields(map[string]interface{}{"component": "scheduler"}),
	}
}

// Run ticks until ctx is cancelled. When catch-up is enabled the first tick
// fires immediately, so invitations that came due while the service was down
// are processed without waiting a full interval.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("scheduler started", map[string]interface{}{
		"interval": s.interval.String(),
		"catchUp":  s.catchUp,
	})

	if s.catchUp {
		s.tick(ctx)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped", nil)
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick evaluates every open campaign it can take the lock for. A held lock
// means another instance is already on that campaign this round.
func (s *Scheduler) tick(ctx context.Context) {
	started := time.Now()
	now := started.UTC()

	campaigns, err := s.source.OpenCampaignList(ctx)
	if err != nil {
		s.logger.WithError(err).Error("tick: listing open campaigns failed", nil)
		return
	}

	for _, campaign := range campaigns {
		s.tickCampaign(ctx, campaign, now)
	}

	elapsed := time.Since(started)
	metrics.TickDuration.Observe(elapsed.Seconds())
	if s.obs != nil {
		s.obs.RecordTick(ctx, "completed")
		s.obs.RecordTickDuration(ctx, elapsed, "completed")
	}
}

func (s *Scheduler) tickCampaign(ctx context.Context, campaign models.OutreachCampaign, now time.Time) {
	lockKey := tickLockPrefix + campaign.ID
	acquired, err := s.locker.AcquireLock(ctx, lockKey, s.lockTTL)
	if err != nil {
		s.logger.WithError(err).Error("tick lock acquisition failed", map[string]interface{}{
			"campaignId": campaign.ID,
		})
		return
	}
	if !acquired {
		s.logger.Debug("campaign locked by another instance", map[string]interface{}{
			"campaignId": campaign.ID,
		})
		return
	}
	defer func() {
		if err := s.locker.ReleaseLock(ctx, lockKey); err != nil {
			s.logger.WithError(err).Warn("tick lock release failed", map[string]interface{}{
				"campaignId": campaign.ID,
			})
		}
	}()

	if err := s.source.TickCampaign(ctx, campaign, now); err != nil {
		s.logger.WithError(err).Error("campaign tick failed", map[string]interface{}{
			"campaignId": campaign.ID,
		})
	}
}
