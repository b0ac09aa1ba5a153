package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"busbar/pkg/apperror"
	"busbar/pkg/database"
	"busbar/pkg/telemetry"
	"busbar/services/rating-svc/internal/domain"
)

// PostgresRatingRepository stores ratings in the ratings table.
type PostgresRatingRepository struct {
	db database.DB
}

// NewPostgresRatingRepository creates the repository.
func NewPostgresRatingRepository(db database.DB) *PostgresRatingRepository {
	return &PostgresRatingRepository{db: db}
}

func (r *PostgresRatingRepository) Lookup(ctx context.Context, cfg domain.Configuration) (string, bool, error) {
	cfg = cfg.Normalize()
	ctx, span := telemetry.StartSpan(ctx, "PostgresRatingRepository.Lookup")
	defer span.End()

	query := `
		SELECT l FROM ratings
		WHERE w = $1 AND t = $2 AND b = $3 AND angle = $4
		  AND a = $5 AND icc = $6 AND force = $7 AND poles = $8
	`

	var rating string
	err := r.db.QueryRow(ctx, query,
		cfg.W, cfg.T, cfg.B, cfg.Angle, cfg.A, cfg.Icc, cfg.Force, cfg.Poles,
	).Scan(&rating)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			telemetry.SetAttributes(ctx, telemetry.RatingAttributes(cfg.Key(), false)...)
			return "", false, nil
		}
		telemetry.SetError(ctx, err)
		return "", false, apperror.StoreIO(err, "rating lookup")
	}

	telemetry.SetAttributes(ctx, telemetry.RatingAttributes(cfg.Key(), true)...)
	return rating, true, nil
}

func (r *PostgresRatingRepository) InsertIfAbsent(ctx context.Context, cfg domain.Configuration, rating string) (bool, error) {
	cfg = cfg.Normalize()
	ctx, span := telemetry.StartSpan(ctx, "PostgresRatingRepository.InsertIfAbsent")
	defer span.End()

	query := `
		INSERT INTO ratings (w, t, b, angle, a, icc, force, poles, l)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT ON CONSTRAINT ratings_configuration_key DO NOTHING
	`

	tag, err := r.db.Exec(ctx, query,
		cfg.W, cfg.T, cfg.B, cfg.Angle, cfg.A, cfg.Icc, cfg.Force, cfg.Poles, rating,
	)
	if err != nil {
		telemetry.SetError(ctx, err)
		return false, apperror.StoreIO(err, "rating insert")
	}

	return tag.RowsAffected() == 1, nil
}

func (r *PostgresRatingRepository) MaxRatedForce(ctx context.Context, cfg domain.Configuration) (int, bool, error) {
	cfg = cfg.Normalize()
	ctx, span := telemetry.StartSpan(ctx, "PostgresRatingRepository.MaxRatedForce")
	defer span.End()

	query := `
		SELECT COUNT(*), COALESCE(MAX(force), 0) FROM ratings
		WHERE w = $1 AND t = $2 AND b = $3 AND angle = $4
		  AND a = $5 AND icc = $6 AND poles = $7
	`

	var (
		count int64
		force int
	)
	err := r.db.QueryRow(ctx, query,
		cfg.W, cfg.T, cfg.B, cfg.Angle, cfg.A, cfg.Icc, cfg.Poles,
	).Scan(&count, &force)
	if err != nil {
		telemetry.SetError(ctx, err)
		return 0, false, apperror.StoreIO(err, "max rated force")
	}

	return force, count > 0, nil
}
