package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/attribute"

	"busbar/pkg/apperror"
	"busbar/pkg/database"
	"busbar/pkg/telemetry"
	"busbar/services/rating-svc/internal/domain"
)

const quotaColumns = `user_id, daily_limit, remaining, last_search_date`

// PostgresQuotaRepository stores user_quotas and search_logs.
type PostgresQuotaRepository struct {
	db database.DB
}

// NewPostgresQuotaRepository creates the repository.
func NewPostgresQuotaRepository(db database.DB) *PostgresQuotaRepository {
	return &PostgresQuotaRepository{db: db}
}

func scanQuota(row pgx.Row) (*domain.UserQuota, error) {
	q := &domain.UserQuota{}
	if err := row.Scan(&q.UserID, &q.DailyLimit, &q.Remaining, &q.LastSearchDate); err != nil {
		return nil, err
	}
	q.LastSearchDate = domain.Day(q.LastSearchDate)
	return q, nil
}

func (r *PostgresQuotaRepository) Get(ctx context.Context, userID string) (*domain.UserQuota, error) {
	ctx, span := telemetry.StartSpan(ctx, "PostgresQuotaRepository.Get",
		telemetry.WithAttributes(attribute.String(telemetry.AttrUserID, userID)))
	defer span.End()

	q, err := scanQuota(r.db.QueryRow(ctx,
		`SELECT `+quotaColumns+` FROM user_quotas WHERE user_id = $1`, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrQuotaNotFound
		}
		telemetry.SetError(ctx, err)
		return nil, apperror.StoreIO(err, "get quota")
	}
	return q, nil
}

func (r *PostgresQuotaRepository) Ensure(ctx context.Context, userID string, limit int) (*domain.UserQuota, error) {
	ctx, span := telemetry.StartSpan(ctx, "PostgresQuotaRepository.Ensure",
		telemetry.WithAttributes(attribute.String(telemetry.AttrUserID, userID)))
	defer span.End()

	_, err := r.db.Exec(ctx, `
		INSERT INTO user_quotas (user_id, daily_limit, remaining)
		VALUES ($1, $2, $2)
		ON CONFLICT (user_id) DO NOTHING
	`, userID, limit)
	if err != nil {
		telemetry.SetError(ctx, err)
		return nil, apperror.StoreIO(err, "ensure quota")
	}

	return r.Get(ctx, userID)
}

// Consume locks the user's row for the whole read-modify-write, so
// concurrent calls for one user are serialized by the database.
func (r *PostgresQuotaRepository) Consume(
	ctx context.Context,
	userID string,
	today time.Time,
	logSearch bool,
) (*domain.QuotaDecision, error) {
	ctx, span := telemetry.StartSpan(ctx, "PostgresQuotaRepository.Consume",
		telemetry.WithAttributes(attribute.String(telemetry.AttrUserID, userID)))
	defer span.End()

	today = domain.Day(today)

	decision, err := database.WithTransactionResult(ctx, r.db, func(tx pgx.Tx) (*domain.QuotaDecision, error) {
		current, err := scanQuota(tx.QueryRow(ctx,
			`SELECT `+quotaColumns+` FROM user_quotas WHERE user_id = $1 FOR UPDATE`, userID))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, ErrQuotaNotFound
			}
			return nil, apperror.StoreIO(err, "lock quota")
		}

		next, decision := current.Consume(today)

		if _, err := tx.Exec(ctx, `
			UPDATE user_quotas
			SET remaining = $2, last_search_date = $3, updated_at = NOW()
			WHERE user_id = $1
		`, userID, next.Remaining, next.LastSearchDate); err != nil {
			return nil, apperror.StoreIO(err, "update quota")
		}

		if decision.Allowed && logSearch {
			if _, err := tx.Exec(ctx, `
				INSERT INTO search_logs (id, user_id, log_date, search_count)
				VALUES ($1, $2, $3, 1)
				ON CONFLICT ON CONSTRAINT search_logs_user_day
				DO UPDATE SET search_count = search_logs.search_count + 1
			`, uuid.NewString(), userID, today); err != nil {
				return nil, apperror.StoreIO(err, "log search")
			}
		}

		return &decision, nil
	})
	if err != nil {
		if !errors.Is(err, ErrQuotaNotFound) {
			telemetry.SetError(ctx, err)
		}
		return nil, err
	}

	return decision, nil
}

func (r *PostgresQuotaRepository) SetLimit(ctx context.Context, userID string, limit int, remaining *int) (*domain.UserQuota, error) {
	ctx, span := telemetry.StartSpan(ctx, "PostgresQuotaRepository.SetLimit",
		telemetry.WithAttributes(attribute.String(telemetry.AttrUserID, userID)))
	defer span.End()

	q, err := scanQuota(r.db.QueryRow(ctx, `
		UPDATE user_quotas
		SET daily_limit = $2,
		    remaining = COALESCE($3::int, LEAST(remaining, $2)),
		    updated_at = NOW()
		WHERE user_id = $1
		RETURNING `+quotaColumns, userID, limit, remaining))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrQuotaNotFound
		}
		telemetry.SetError(ctx, err)
		return nil, apperror.StoreIO(err, "set quota limit")
	}
	return q, nil
}

func (r *PostgresQuotaRepository) DailyStats(ctx context.Context, from, to time.Time) ([]domain.DailyStat, error) {
	ctx, span := telemetry.StartSpan(ctx, "PostgresQuotaRepository.DailyStats")
	defer span.End()

	rows, err := r.db.Query(ctx, `
		SELECT log_date, SUM(search_count), COUNT(DISTINCT user_id)
		FROM search_logs
		WHERE log_date BETWEEN $1 AND $2
		GROUP BY log_date
		ORDER BY log_date
	`, domain.Day(from), domain.Day(to))
	if err != nil {
		telemetry.SetError(ctx, err)
		return nil, apperror.StoreIO(err, "daily search stats")
	}
	defer rows.Close()

	var result []domain.DailyStat
	for rows.Next() {
		var (
			day             time.Time
			searches, users int64
		)
		if err := rows.Scan(&day, &searches, &users); err != nil {
			return nil, apperror.StoreIO(err, "scan daily stat")
		}
		result = append(result, domain.DailyStat{Date: domain.Day(day), Searches: int(searches), Users: int(users)})
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.StoreIO(err, "daily search stats")
	}

	return result, nil
}

func (r *PostgresQuotaRepository) UserSearchLog(ctx context.Context, userID string, from, to time.Time) ([]domain.SearchLogEntry, error) {
	ctx, span := telemetry.StartSpan(ctx, "PostgresQuotaRepository.UserSearchLog",
		telemetry.WithAttributes(attribute.String(telemetry.AttrUserID, userID)))
	defer span.End()

	rows, err := r.db.Query(ctx, `
		SELECT user_id, log_date, search_count
		FROM search_logs
		WHERE user_id = $1 AND log_date BETWEEN $2 AND $3
		ORDER BY log_date DESC
	`, userID, domain.Day(from), domain.Day(to))
	if err != nil {
		telemetry.SetError(ctx, err)
		return nil, apperror.StoreIO(err, "user search log")
	}
	defer rows.Close()

	var result []domain.SearchLogEntry
	for rows.Next() {
		var e domain.SearchLogEntry
		if err := rows.Scan(&e.UserID, &e.Date, &e.Count); err != nil {
			return nil, apperror.StoreIO(err, "scan search log")
		}
		e.Date = domain.Day(e.Date)
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.StoreIO(err, "user search log")
	}

	return result, nil
}

func (r *PostgresQuotaRepository) Totals(ctx context.Context, today time.Time) (*SearchTotals, error) {
	ctx, span := telemetry.StartSpan(ctx, "PostgresQuotaRepository.Totals")
	defer span.End()

	today = domain.Day(today)
	weekStart := today.AddDate(0, 0, -6)

	var users, active, total, todayCount int64
	err := r.db.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM user_quotas),
			(SELECT COUNT(DISTINCT user_id) FROM search_logs WHERE log_date >= $1),
			(SELECT COALESCE(SUM(search_count), 0) FROM search_logs),
			(SELECT COALESCE(SUM(search_count), 0) FROM search_logs WHERE log_date = $2)
	`, weekStart, today).Scan(&users, &active, &total, &todayCount)
	if err != nil {
		telemetry.SetError(ctx, err)
		return nil, apperror.StoreIO(err, "search totals")
	}

	return &SearchTotals{
		TotalUsers:    int(users),
		ActiveUsers:   int(active),
		TotalSearches: int(total),
		TodaySearches: int(todayCount),
	}, nil
}
