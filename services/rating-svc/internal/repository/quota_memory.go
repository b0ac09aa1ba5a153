package repository

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"busbar/services/rating-svc/internal/domain"
)

type searchLogKey struct {
	userID string
	day    time.Time
}

// MemoryQuotaRepository keeps quotas and the search log in process memory.
// One mutex serializes every consume.
type MemoryQuotaRepository struct {
	mu     sync.Mutex
	quotas map[string]*domain.UserQuota
	logs   map[searchLogKey]int
}

// NewMemoryQuotaRepository creates an empty repository.
func NewMemoryQuotaRepository() *MemoryQuotaRepository {
	return &MemoryQuotaRepository{
		quotas: make(map[string]*domain.UserQuota),
		logs:   make(map[searchLogKey]int),
	}
}

func (r *MemoryQuotaRepository) Get(ctx context.Context, userID string) (*domain.UserQuota, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	q, ok := r.quotas[userID]
	if !ok {
		return nil, ErrQuotaNotFound
	}
	result := *q
	return &result, nil
}

func (r *MemoryQuotaRepository) Ensure(ctx context.Context, userID string, limit int) (*domain.UserQuota, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	q, ok := r.quotas[userID]
	if !ok {
		q = &domain.UserQuota{
			UserID:         userID,
			DailyLimit:     limit,
			Remaining:      limit,
			LastSearchDate: time.Unix(0, 0).UTC(),
		}
		r.quotas[userID] = q
	}
	result := *q
	return &result, nil
}

// Put stores q as is. It is meant for seeding fixtures.
func (r *MemoryQuotaRepository) Put(q domain.UserQuota) {
	r.mu.Lock()
	defer r.mu.Unlock()

	q.LastSearchDate = domain.Day(q.LastSearchDate)
	r.quotas[q.UserID] = &q
}

func (r *MemoryQuotaRepository) Consume(
	ctx context.Context,
	userID string,
	today time.Time,
	logSearch bool,
) (*domain.QuotaDecision, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	q, ok := r.quotas[userID]
	if !ok {
		return nil, ErrQuotaNotFound
	}

	today = domain.Day(today)
	next, decision := q.Consume(today)
	*q = next

	if decision.Allowed && logSearch {
		r.logs[searchLogKey{userID, today}]++
	}
	return &decision, nil
}

func (r *MemoryQuotaRepository) SetLimit(ctx context.Context, userID string, limit int, remaining *int) (*domain.UserQuota, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	q, ok := r.quotas[userID]
	if !ok {
		return nil, ErrQuotaNotFound
	}

	q.DailyLimit = limit
	if remaining != nil {
		q.Remaining = *remaining
	} else {
		q.Remaining = min(q.Remaining, limit)
	}

	result := *q
	return &result, nil
}

func (r *MemoryQuotaRepository) DailyStats(ctx context.Context, from, to time.Time) ([]domain.DailyStat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	from, to = domain.Day(from), domain.Day(to)
	byDay := make(map[time.Time]*domain.DailyStat)
	for k, count := range r.logs {
		if k.day.Before(from) || k.day.After(to) {
			continue
		}
		s, ok := byDay[k.day]
		if !ok {
			s = &domain.DailyStat{Date: k.day}
			byDay[k.day] = s
		}
		s.Searches += count
		s.Users++
	}

	result := make([]domain.DailyStat, 0, len(byDay))
	for _, s := range byDay {
		result = append(result, *s)
	}
	slices.SortFunc(result, func(a, b domain.DailyStat) int { return a.Date.Compare(b.Date) })
	return result, nil
}

func (r *MemoryQuotaRepository) UserSearchLog(ctx context.Context, userID string, from, to time.Time) ([]domain.SearchLogEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	from, to = domain.Day(from), domain.Day(to)
	var result []domain.SearchLogEntry
	for k, count := range r.logs {
		if k.userID != userID || k.day.Before(from) || k.day.After(to) {
			continue
		}
		result = append(result, domain.SearchLogEntry{UserID: userID, Date: k.day, Count: count})
	}
	slices.SortFunc(result, func(a, b domain.SearchLogEntry) int { return cmp.Compare(b.Date.Unix(), a.Date.Unix()) })
	return result, nil
}

func (r *MemoryQuotaRepository) Totals(ctx context.Context, today time.Time) (*SearchTotals, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	today = domain.Day(today)
	weekStart := today.AddDate(0, 0, -6)

	totals := &SearchTotals{TotalUsers: len(r.quotas)}
	active := make(map[string]struct{})
	for k, count := range r.logs {
		totals.TotalSearches += count
		if k.day.Equal(today) {
			totals.TodaySearches += count
		}
		if !k.day.Before(weekStart) {
			active[k.userID] = struct{}{}
		}
	}
	totals.ActiveUsers = len(active)
	return totals, nil
}
