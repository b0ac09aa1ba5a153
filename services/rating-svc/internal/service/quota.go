package service

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"busbar/pkg/apperror"
	"busbar/pkg/config"
	"busbar/pkg/metrics"
	"busbar/pkg/telemetry"
	"busbar/services/rating-svc/internal/domain"
	"busbar/services/rating-svc/internal/repository"
)

const (
	minLogDays = 1
	maxLogDays = 365
)

// QuotaService is the per-user daily quota gate.
type QuotaService struct {
	repo         repository.QuotaRepository
	defaultLimit int
	logSearches  bool
	loc          *time.Location
	now          func() time.Time
	metrics      *metrics.Metrics
}

// QuotaOption configures a QuotaService.
type QuotaOption func(*QuotaService)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) QuotaOption {
	return func(s *QuotaService) { s.now = now }
}

// NewQuotaService creates a quota gate. Days are counted in cfg's timezone.
func NewQuotaService(repo repository.QuotaRepository, cfg *config.QuotaConfig, m *metrics.Metrics, opts ...QuotaOption) *QuotaService {
	s := &QuotaService{
		repo:         repo,
		defaultLimit: cfg.DefaultLimit,
		logSearches:  cfg.LogSearches,
		loc:          cfg.Location(),
		now:          time.Now,
		metrics:      m,
	}
	if s.defaultLimit <= 0 {
		s.defaultLimit = domain.DefaultDailyLimit
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Today is the current civil date in the configured timezone.
func (s *QuotaService) Today() time.Time {
	return domain.Day(s.now().In(s.loc))
}

// CheckAndConsume takes one search from the user's quota and logs it.
// An unknown user yields a nil decision and a nil error.
func (s *QuotaService) CheckAndConsume(ctx context.Context, userID string) (*domain.QuotaDecision, error) {
	return s.consume(ctx, "QuotaService.CheckAndConsume", userID, s.logSearches)
}

// DecrementWithoutLog takes one search without writing the search log.
func (s *QuotaService) DecrementWithoutLog(ctx context.Context, userID string) (*domain.QuotaDecision, error) {
	return s.consume(ctx, "QuotaService.DecrementWithoutLog", userID, false)
}

func (s *QuotaService) consume(ctx context.Context, op, userID string, logSearch bool) (*domain.QuotaDecision, error) {
	ctx, span := telemetry.StartSpan(ctx, op,
		telemetry.WithAttributes(attribute.String(telemetry.AttrUserID, userID)))
	defer span.End()

	decision, err := s.repo.Consume(ctx, userID, s.Today(), logSearch)
	if errors.Is(err, repository.ErrQuotaNotFound) {
		s.metrics.RecordQuotaDecision("unknown_user")
		return nil, nil
	}
	if err != nil {
		telemetry.SetError(ctx, err)
		return nil, err
	}

	if decision.Allowed {
		s.metrics.RecordQuotaDecision("allowed")
	} else {
		s.metrics.RecordQuotaDecision("denied")
	}
	span.SetAttributes(
		attribute.Bool("quota.allowed", decision.Allowed),
		attribute.Int("quota.remaining", decision.Remaining),
	)
	return decision, nil
}

// Gate admits one search for the user, creating a default quota on first
// use. An exhausted quota is a QUOTA_EXHAUSTED error.
func (s *QuotaService) Gate(ctx context.Context, userID string) (*domain.QuotaDecision, error) {
	if _, err := s.EnsureQuota(ctx, userID); err != nil {
		return nil, err
	}

	decision, err := s.CheckAndConsume(ctx, userID)
	if err != nil {
		return nil, err
	}
	if decision == nil {
		return nil, apperror.New(apperror.CodeNotFound, "user quota not found").WithDetails("user_id", userID)
	}
	if !decision.Allowed {
		return decision, apperror.New(apperror.CodeQuotaExhausted, "daily search limit reached").
			WithDetails("user_id", userID).
			WithDetails("limit", decision.Limit)
	}
	return decision, nil
}

// GetQuota returns the user's quota as of today, or nil for an unknown user.
// A quota last used on an earlier day is reported as reset.
func (s *QuotaService) GetQuota(ctx context.Context, userID string) (*domain.UserQuota, error) {
	ctx, span := telemetry.StartSpan(ctx, "QuotaService.GetQuota",
		telemetry.WithAttributes(attribute.String(telemetry.AttrUserID, userID)))
	defer span.End()

	q, err := s.repo.Get(ctx, userID)
	if errors.Is(err, repository.ErrQuotaNotFound) {
		return nil, nil
	}
	if err != nil {
		telemetry.SetError(ctx, err)
		return nil, err
	}

	view := q.Rollover(s.Today())
	return &view, nil
}

// EnsureQuota creates a quota with the default limit if the user has none.
func (s *QuotaService) EnsureQuota(ctx context.Context, userID string) (*domain.UserQuota, error) {
	if userID == "" {
		return nil, apperror.NewWithField(apperror.CodeInvalidArgument, "user id is required", "user_id")
	}
	return s.repo.Ensure(ctx, userID, s.defaultLimit)
}

// SetLimit changes the user's daily limit and optionally the remaining count.
func (s *QuotaService) SetLimit(ctx context.Context, userID string, limit int, remaining *int) (*domain.UserQuota, error) {
	ctx, span := telemetry.StartSpan(ctx, "QuotaService.SetLimit",
		telemetry.WithAttributes(attribute.String(telemetry.AttrUserID, userID)))
	defer span.End()

	if limit < 0 {
		return nil, apperror.NewWithField(apperror.CodeInvalidArgument, "limit must not be negative", "daily_search_limit")
	}
	if remaining != nil && (*remaining < 0 || *remaining > limit) {
		return nil, apperror.NewWithField(apperror.CodeInvalidArgument,
			"remaining must be between 0 and the limit", "daily_search_remaining")
	}

	q, err := s.repo.SetLimit(ctx, userID, limit, remaining)
	if errors.Is(err, repository.ErrQuotaNotFound) {
		return nil, apperror.Wrap(err, apperror.CodeNotFound, "user quota not found").WithDetails("user_id", userID)
	}
	if err != nil {
		telemetry.SetError(ctx, err)
		return nil, err
	}
	return q, nil
}

// DailyStats returns one entry per day for the last days days, oldest first.
// days is clamped to [1, 365].
func (s *QuotaService) DailyStats(ctx context.Context, days int) ([]domain.DailyStat, error) {
	ctx, span := telemetry.StartSpan(ctx, "QuotaService.DailyStats")
	defer span.End()

	days = clampDays(days)
	today := s.Today()

	stats, err := s.repo.DailyStats(ctx, today.AddDate(0, 0, -(days-1)), today)
	if err != nil {
		telemetry.SetError(ctx, err)
		return nil, err
	}
	return domain.FillDays(stats, today, days), nil
}

// UserSearchLog lists the days the user searched within the last days days.
func (s *QuotaService) UserSearchLog(ctx context.Context, userID string, days int) ([]domain.SearchLogEntry, error) {
	ctx, span := telemetry.StartSpan(ctx, "QuotaService.UserSearchLog",
		telemetry.WithAttributes(attribute.String(telemetry.AttrUserID, userID)))
	defer span.End()

	days = clampDays(days)
	today := s.Today()

	entries, err := s.repo.UserSearchLog(ctx, userID, today.AddDate(0, 0, -(days-1)), today)
	if err != nil {
		telemetry.SetError(ctx, err)
		return nil, err
	}
	return entries, nil
}

// Totals summarizes search activity up to today.
func (s *QuotaService) Totals(ctx context.Context) (*repository.SearchTotals, error) {
	ctx, span := telemetry.StartSpan(ctx, "QuotaService.Totals")
	defer span.End()

	totals, err := s.repo.Totals(ctx, s.Today())
	if err != nil {
		telemetry.SetError(ctx, err)
		return nil, err
	}
	return totals, nil
}

func clampDays(days int) int {
	return min(max(days, minLogDays), maxLogDays)
}
