package campaign

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coachreach/internal/common/database"
	applogger "coachreach/internal/common/logger"
	"coachreach/internal/models"
)

type countingSource struct {
	mu        sync.Mutex
	campaigns []models.OutreachCampaign
	ticked    map[string]int
	listCalls int64
}

func newCountingSource(ids ...string) *countingSource {
	source := &countingSource{ticked: make(map[string]int)}
	for _, id := range ids {
		source.campaigns = append(source.campaigns, models.OutreachCampaign{ID: id, EventID: "evt-" + id})
	}
	return source
}

func (s *countingSource) OpenCampaignList(context.Context) ([]models.OutreachCampaign, error) {
	atomic.AddInt64(&s.listCalls, 1)
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.OutreachCampaign(nil), s.campaigns...), nil
}

func (s *countingSource) TickCampaign(_ context.Context, campaign models.OutreachCampaign, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ticked[campaign.ID]++
	return nil
}

func (s *countingSource) tickCount(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticked[id]
}

func newTestLocker(t *testing.T) *database.RedisClient {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return &database.RedisClient{Client: client}
}

func TestSchedulerCatchUpTickRunsImmediately(t *testing.T) {
	source := newCountingSource("camp-1", "camp-2")
	scheduler := NewScheduler(source, newTestLocker(t), time.Hour, time.Minute, true, nil, applogger.NewTestLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		scheduler.Run(ctx)
		close(done)
	}()

	// With an hour-long interval, only the catch-up tick can have fired.
	require.Eventually(t, func() bool {
		return source.tickCount("camp-1") == 1 && source.tickCount("camp-2") == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop on context cancel")
	}
}

func TestSchedulerNoCatchUpWaitsForInterval(t *testing.T) {
	source := newCountingSource("camp-1")
	scheduler := NewScheduler(source, newTestLocker(t), 50*time.Millisecond, time.Minute, false, nil, applogger.NewTestLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go scheduler.Run(ctx)

	assert.Equal(t, 0, source.tickCount("camp-1"))
	require.Eventually(t, func() bool {
		return source.tickCount("camp-1") >= 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSchedulerSkipsLockedCampaign(t *testing.T) {
	source := newCountingSource("camp-1", "camp-2")
	locker := newTestLocker(t)

	// Another instance holds camp-1.
	held, err := locker.AcquireLock(context.Background(), tickLockPrefix+"camp-1", time.Minute)
	require.NoError(t, err)
	require.True(t, held)

	scheduler := NewScheduler(source, locker, time.Hour, time.Minute, true, nil, applogger.NewTestLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go scheduler.Run(ctx)

	require.Eventually(t, func() bool {
		return source.tickCount("camp-2") == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, source.tickCount("camp-1"))
}

func TestSchedulerReleasesLockAfterTick(t *testing.T) {
	source := newCountingSource("camp-1")
	locker := newTestLocker(t)
	scheduler := NewScheduler(source, locker, time.Hour, time.Minute, true, nil, applogger.NewTestLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go scheduler.Run(ctx)

	require.Eventually(t, func() bool {
		return source.tickCount("camp-1") == 1
	}, 2*time.Second, 10*time.Millisecond)

	// Lock is free again for the next round.
	require.Eventually(t, func() bool {
		free, err := locker.AcquireLock(context.Background(), tickLockPrefix+"camp-1", time.Minute)
		return err == nil && free
	}, 2*time.Second, 10*time.Millisecond)
}
