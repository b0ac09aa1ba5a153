package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"busbar/pkg/apperror"
	"busbar/pkg/config"
	"busbar/pkg/metrics"
	"busbar/services/rating-svc/internal/domain"
	"busbar/services/rating-svc/internal/repository"
)

var (
	day1 = time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	day2 = day1.AddDate(0, 0, 1)
)

type quotaFixture struct {
	svc   *QuotaService
	repo  *repository.MemoryQuotaRepository
	clock *time.Time
	m     *metrics.Metrics
}

func newQuotaFixture(t *testing.T, cfg config.QuotaConfig) *quotaFixture {
	t.Helper()
	now := day1.Add(10 * time.Hour)
	f := &quotaFixture{
		repo:  repository.NewMemoryQuotaRepository(),
		clock: &now,
		m:     metrics.New(nil, "test", ""),
	}
	f.svc = NewQuotaService(f.repo, &cfg, f.m, WithClock(func() time.Time { return *f.clock }))
	return f
}

func (f *quotaFixture) advance(d time.Duration) {
	*f.clock = f.clock.Add(d)
}

func TestCheckAndConsume_UnknownUserIsAbsent(t *testing.T) {
	f := newQuotaFixture(t, config.QuotaConfig{})

	decision, err := f.svc.CheckAndConsume(context.Background(), "ghost")

	require.NoError(t, err)
	assert.Nil(t, decision)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.m.QuotaDecisionsTotal.WithLabelValues("unknown_user")))
}

func TestCheckAndConsume_CountsDown(t *testing.T) {
	f := newQuotaFixture(t, config.QuotaConfig{})
	f.repo.Put(domain.UserQuota{UserID: "u1", DailyLimit: 2, Remaining: 2, LastSearchDate: day1})
	ctx := context.Background()

	d, err := f.svc.CheckAndConsume(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.QuotaDecision{Allowed: true, Remaining: 1, Limit: 2}, *d)

	d, err = f.svc.CheckAndConsume(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.QuotaDecision{Allowed: true, Remaining: 0, Limit: 2}, *d)

	d, err = f.svc.CheckAndConsume(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.QuotaDecision{Allowed: false, Remaining: 0, Limit: 2}, *d)
}

func TestCheckAndConsume_ResetsOnNewDay(t *testing.T) {
	f := newQuotaFixture(t, config.QuotaConfig{})
	f.repo.Put(domain.UserQuota{UserID: "u1", DailyLimit: 3, Remaining: 0, LastSearchDate: day1})

	d, err := f.svc.CheckAndConsume(context.Background(), "u1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)

	f.advance(24 * time.Hour)
	d, err = f.svc.CheckAndConsume(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 2, d.Remaining)
}

func TestToday_UsesConfiguredTimezone(t *testing.T) {
	f := newQuotaFixture(t, config.QuotaConfig{Timezone: "Asia/Tokyo"})
	*f.clock = time.Date(2026, 3, 10, 20, 0, 0, 0, time.UTC)

	assert.Equal(t, day2, f.svc.Today())
}

func TestCheckAndConsume_ConcurrentLastSearch(t *testing.T) {
	f := newQuotaFixture(t, config.QuotaConfig{})
	f.repo.Put(domain.UserQuota{UserID: "u1", DailyLimit: 5, Remaining: 1, LastSearchDate: day1})

	var allowed atomic.Int32
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := f.svc.CheckAndConsume(context.Background(), "u1")
			if assert.NoError(t, err) && d.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), allowed.Load())
}

func TestDecrementWithoutLog(t *testing.T) {
	f := newQuotaFixture(t, config.QuotaConfig{LogSearches: true})
	f.repo.Put(domain.UserQuota{UserID: "u1", DailyLimit: 5, Remaining: 5, LastSearchDate: day1})
	ctx := context.Background()

	_, err := f.svc.DecrementWithoutLog(ctx, "u1")
	require.NoError(t, err)
	_, err = f.svc.CheckAndConsume(ctx, "u1")
	require.NoError(t, err)

	q, err := f.svc.GetQuota(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, q.Remaining)

	logs, err := f.svc.UserSearchLog(ctx, "u1", 7)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, 1, logs[0].Count)
}

func TestGate(t *testing.T) {
	f := newQuotaFixture(t, config.QuotaConfig{DefaultLimit: 1})
	ctx := context.Background()

	d, err := f.svc.Gate(ctx, "new-user")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Limit)

	d, err = f.svc.Gate(ctx, "new-user")
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.CodeQuotaExhausted))
	assert.False(t, d.Allowed)
}

func TestGetQuota(t *testing.T) {
	f := newQuotaFixture(t, config.QuotaConfig{})
	f.repo.Put(domain.UserQuota{UserID: "u1", DailyLimit: 20, Remaining: 4, LastSearchDate: day1.AddDate(0, 0, -2)})

	q, err := f.svc.GetQuota(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 20, q.Remaining, "a quota from an earlier day reads as reset")

	q, err = f.svc.GetQuota(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Nil(t, q)
}

func TestEnsureQuota_DefaultLimit(t *testing.T) {
	f := newQuotaFixture(t, config.QuotaConfig{})

	q, err := f.svc.EnsureQuota(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultDailyLimit, q.DailyLimit)

	_, err = f.svc.EnsureQuota(context.Background(), "")
	assert.True(t, apperror.Is(err, apperror.CodeInvalidArgument))
}

func TestSetLimit(t *testing.T) {
	f := newQuotaFixture(t, config.QuotaConfig{})
	f.repo.Put(domain.UserQuota{UserID: "u1", DailyLimit: 20, Remaining: 15, LastSearchDate: day1})
	ctx := context.Background()

	q, err := f.svc.SetLimit(ctx, "u1", 10, nil)
	require.NoError(t, err)
	assert.Equal(t, 10, q.DailyLimit)
	assert.Equal(t, 10, q.Remaining)

	remaining := 3
	q, err = f.svc.SetLimit(ctx, "u1", 10, &remaining)
	require.NoError(t, err)
	assert.Equal(t, 3, q.Remaining)

	tooMany := 11
	_, err = f.svc.SetLimit(ctx, "u1", 10, &tooMany)
	assert.True(t, apperror.Is(err, apperror.CodeInvalidArgument))

	_, err = f.svc.SetLimit(ctx, "u1", -1, nil)
	assert.True(t, apperror.Is(err, apperror.CodeInvalidArgument))

	_, err = f.svc.SetLimit(ctx, "ghost", 10, nil)
	assert.True(t, apperror.Is(err, apperror.CodeNotFound))
}

func TestDailyStats(t *testing.T) {
	f := newQuotaFixture(t, config.QuotaConfig{LogSearches: true})
	ctx := context.Background()
	for _, u := range []string{"u1", "u2"} {
		f.repo.Put(domain.UserQuota{UserID: u, DailyLimit: 20, Remaining: 20, LastSearchDate: day1})
	}

	_, _ = f.svc.CheckAndConsume(ctx, "u1")
	f.advance(48 * time.Hour)
	_, _ = f.svc.CheckAndConsume(ctx, "u1")
	_, _ = f.svc.CheckAndConsume(ctx, "u2")

	stats, err := f.svc.DailyStats(ctx, 3)
	require.NoError(t, err)
	require.Len(t, stats, 3)
	assert.Equal(t, domain.DailyStat{Date: day1, Searches: 1, Users: 1}, stats[0])
	assert.Equal(t, domain.DailyStat{Date: day2}, stats[1])
	assert.Equal(t, domain.DailyStat{Date: day2.AddDate(0, 0, 1), Searches: 2, Users: 2}, stats[2])

	stats, err = f.svc.DailyStats(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, stats, 1)

	stats, err = f.svc.DailyStats(ctx, 1000)
	require.NoError(t, err)
	assert.Len(t, stats, 365)

	totals, err := f.svc.Totals(ctx)
	require.NoError(t, err)
	assert.Equal(t, repository.SearchTotals{TotalUsers: 2, ActiveUsers: 2, TotalSearches: 3, TodaySearches: 2}, *totals)
}
