// Package repository persists ratings, the component catalog and user quotas.
// Each store has a PostgreSQL implementation and an in-memory twin; the
// rating store can additionally be fronted by pkg/cache.
package repository

import (
	"context"
	"errors"
	"time"

	"busbar/services/rating-svc/internal/domain"
)

var (
	ErrComponentNotFound = errors.New("component not found")
	ErrComponentExists   = errors.New("component already exists")
	ErrQuotaNotFound     = errors.New("user quota not found")
)

// RatingRepository is the rating cache keyed by normalized configuration.
type RatingRepository interface {
	// Lookup matches all eight configuration fields exactly.
	Lookup(ctx context.Context, cfg domain.Configuration) (string, bool, error)
	// InsertIfAbsent stores rating unless cfg already has one. Duplicates are not errors.
	InsertIfAbsent(ctx context.Context, cfg domain.Configuration, rating string) (bool, error)
	// MaxRatedForce returns the highest stored force for cfg's other seven fields.
	MaxRatedForce(ctx context.Context, cfg domain.Configuration) (int, bool, error)
}

// MatchQuery selects catalog rows for a product query.
type MatchQuery struct {
	NbPhase   int
	Thickness float64
	Width     float64
	Poles     int
	Shape     string
}

// Match identifies a component supporting a MatchQuery.
type Match struct {
	ComponentID string
	NbPhase     int
}

// CatalogRepository stores components and their configuration rows.
type CatalogRepository interface {
	GetComponent(ctx context.Context, key string, nbphase int) (*domain.Component, error)
	CreateComponent(ctx context.Context, c *domain.Component) error
	UpdateComponent(ctx context.Context, key string, nbphase int, patch domain.ComponentPatch) (*domain.Component, error)
	// DeleteComponent removes the component and its configuration rows together.
	DeleteComponent(ctx context.Context, key string, nbphase int) error
	ListComponents(ctx context.Context) ([]*domain.Component, error)

	ListCombinations(ctx context.Context, key string, nbphase int) ([]domain.Combination, error)
	// ReplaceCombinations swaps the stored rows for rows atomically and returns the number written.
	ReplaceCombinations(ctx context.Context, key string, nbphase int, rows []domain.Combination) (int, error)
	FindMatches(ctx context.Context, q MatchQuery) ([]Match, error)
}

// SearchTotals is an overview of search activity.
type SearchTotals struct {
	TotalUsers    int `json:"total_users"`
	ActiveUsers   int `json:"active_users"`
	TotalSearches int `json:"total_searches"`
	TodaySearches int `json:"today_searches"`
}

// QuotaRepository stores per-user daily quotas and the search log.
type QuotaRepository interface {
	Get(ctx context.Context, userID string) (*domain.UserQuota, error)
	// Ensure creates the quota with limit if the user has none and returns the stored row.
	Ensure(ctx context.Context, userID string, limit int) (*domain.UserQuota, error)
	// Consume rolls over and decrements the user's quota as one atomic unit.
	// When logSearch is set and the search is allowed, today's search log is incremented.
	Consume(ctx context.Context, userID string, today time.Time, logSearch bool) (*domain.QuotaDecision, error)
	// SetLimit changes the daily limit and optionally the remaining count.
	SetLimit(ctx context.Context, userID string, limit int, remaining *int) (*domain.UserQuota, error)

	DailyStats(ctx context.Context, from, to time.Time) ([]domain.DailyStat, error)
	UserSearchLog(ctx context.Context, userID string, from, to time.Time) ([]domain.SearchLogEntry, error)
	Totals(ctx context.Context, today time.Time) (*SearchTotals, error)
}
