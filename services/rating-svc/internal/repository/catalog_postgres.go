package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/attribute"

	"busbar/pkg/apperror"
	"busbar/pkg/database"
	"busbar/pkg/telemetry"
	"busbar/services/rating-svc/internal/domain"
)

const componentColumns = `key, nbphase, angle, resmini, info, a_list, created_at, updated_at`

// PostgresCatalogRepository stores components and component_configurations.
type PostgresCatalogRepository struct {
	db database.DB
}

// NewPostgresCatalogRepository creates the repository.
func NewPostgresCatalogRepository(db database.DB) *PostgresCatalogRepository {
	return &PostgresCatalogRepository{db: db}
}

func scanComponent(row pgx.Row) (*domain.Component, error) {
	c := &domain.Component{}
	err := row.Scan(
		&c.Key,
		&c.NbPhase,
		&c.Angle,
		&c.ResMini,
		&c.Info,
		&c.AList,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *PostgresCatalogRepository) GetComponent(ctx context.Context, key string, nbphase int) (*domain.Component, error) {
	ctx, span := telemetry.StartSpan(ctx, "PostgresCatalogRepository.GetComponent",
		telemetry.WithAttributes(telemetry.ComponentAttributes(key, nbphase)...))
	defer span.End()

	query := `SELECT ` + componentColumns + ` FROM components WHERE key = $1 AND nbphase = $2`

	c, err := scanComponent(r.db.QueryRow(ctx, query, key, nbphase))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrComponentNotFound
		}
		telemetry.SetError(ctx, err)
		return nil, apperror.StoreIO(err, "get component")
	}
	return c, nil
}

func (r *PostgresCatalogRepository) CreateComponent(ctx context.Context, c *domain.Component) error {
	ctx, span := telemetry.StartSpan(ctx, "PostgresCatalogRepository.CreateComponent",
		telemetry.WithAttributes(telemetry.ComponentAttributes(c.Key, c.NbPhase)...))
	defer span.End()

	query := `
		INSERT INTO components (key, nbphase, angle, resmini, info, a_list)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query,
		c.Key, c.NbPhase, c.Angle, c.ResMini, c.Info, c.AList,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return ErrComponentExists
		}
		telemetry.SetError(ctx, err)
		return apperror.StoreIO(err, "create component")
	}
	return nil
}

// UpdateComponent builds its SET list from the patch's known fields only.
func (r *PostgresCatalogRepository) UpdateComponent(
	ctx context.Context,
	key string,
	nbphase int,
	patch domain.ComponentPatch,
) (*domain.Component, error) {
	ctx, span := telemetry.StartSpan(ctx, "PostgresCatalogRepository.UpdateComponent",
		telemetry.WithAttributes(telemetry.ComponentAttributes(key, nbphase)...))
	defer span.End()

	if patch.Empty() {
		return r.GetComponent(ctx, key, nbphase)
	}

	sets := []string{"updated_at = NOW()"}
	args := []any{key, nbphase}
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.Angle != nil {
		add("angle", *patch.Angle)
	}
	if patch.ResMini != nil {
		add("resmini", *patch.ResMini)
	}
	if patch.Info != nil {
		add("info", *patch.Info)
	}
	if patch.AList != nil {
		add("a_list", *patch.AList)
	}

	query := fmt.Sprintf(`
		UPDATE components SET %s
		WHERE key = $1 AND nbphase = $2
		RETURNING %s
	`, strings.Join(sets, ", "), componentColumns)

	c, err := scanComponent(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrComponentNotFound
		}
		telemetry.SetError(ctx, err)
		return nil, apperror.StoreIO(err, "update component")
	}
	return c, nil
}

func (r *PostgresCatalogRepository) DeleteComponent(ctx context.Context, key string, nbphase int) error {
	ctx, span := telemetry.StartSpan(ctx, "PostgresCatalogRepository.DeleteComponent",
		telemetry.WithAttributes(telemetry.ComponentAttributes(key, nbphase)...))
	defer span.End()

	err := database.WithTransaction(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`DELETE FROM component_configurations WHERE component_id = $1 AND nbphase = $2`,
			key, nbphase,
		); err != nil {
			return apperror.StoreIO(err, "delete configurations")
		}

		tag, err := tx.Exec(ctx, `DELETE FROM components WHERE key = $1 AND nbphase = $2`, key, nbphase)
		if err != nil {
			return apperror.StoreIO(err, "delete component")
		}
		if tag.RowsAffected() == 0 {
			return ErrComponentNotFound
		}
		return nil
	})
	if err != nil && !errors.Is(err, ErrComponentNotFound) {
		telemetry.SetError(ctx, err)
	}
	return err
}

func (r *PostgresCatalogRepository) ListComponents(ctx context.Context) ([]*domain.Component, error) {
	ctx, span := telemetry.StartSpan(ctx, "PostgresCatalogRepository.ListComponents")
	defer span.End()

	rows, err := r.db.Query(ctx, `SELECT `+componentColumns+` FROM components ORDER BY key, nbphase`)
	if err != nil {
		telemetry.SetError(ctx, err)
		return nil, apperror.StoreIO(err, "list components")
	}
	defer rows.Close()

	var result []*domain.Component
	for rows.Next() {
		c, err := scanComponent(rows)
		if err != nil {
			return nil, apperror.StoreIO(err, "scan component")
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.StoreIO(err, "list components")
	}

	return result, nil
}

func (r *PostgresCatalogRepository) ListCombinations(ctx context.Context, key string, nbphase int) ([]domain.Combination, error) {
	ctx, span := telemetry.StartSpan(ctx, "PostgresCatalogRepository.ListCombinations",
		telemetry.WithAttributes(telemetry.ComponentAttributes(key, nbphase)...))
	defer span.End()

	query := `
		SELECT thickness, width, poles, shape
		FROM component_configurations
		WHERE component_id = $1 AND nbphase = $2
		ORDER BY thickness, width, poles, shape
	`

	rows, err := r.db.Query(ctx, query, key, nbphase)
	if err != nil {
		telemetry.SetError(ctx, err)
		return nil, apperror.StoreIO(err, "list configurations")
	}
	defer rows.Close()

	var result []domain.Combination
	for rows.Next() {
		var c domain.Combination
		if err := rows.Scan(&c.Thickness, &c.Width, &c.Poles, &c.Shape); err != nil {
			return nil, apperror.StoreIO(err, "scan configuration")
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.StoreIO(err, "list configurations")
	}

	return result, nil
}

// ReplaceCombinations deletes and bulk-inserts inside one transaction, so
// readers only ever see the old or the new generation.
func (r *PostgresCatalogRepository) ReplaceCombinations(
	ctx context.Context,
	key string,
	nbphase int,
	combos []domain.Combination,
) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "PostgresCatalogRepository.ReplaceCombinations",
		telemetry.WithAttributes(telemetry.ComponentAttributes(key, nbphase)...))
	defer span.End()

	n, err := database.WithTransactionResult(ctx, r.db, func(tx pgx.Tx) (int, error) {
		// Locking the component row serializes concurrent replaces of one set.
		var exists int
		err := tx.QueryRow(ctx,
			`SELECT 1 FROM components WHERE key = $1 AND nbphase = $2 FOR UPDATE`,
			key, nbphase,
		).Scan(&exists)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return 0, ErrComponentNotFound
			}
			return 0, apperror.StoreIO(err, "lock component")
		}

		if _, err := tx.Exec(ctx,
			`DELETE FROM component_configurations WHERE component_id = $1 AND nbphase = $2`,
			key, nbphase,
		); err != nil {
			return 0, apperror.StoreIO(err, "clear configurations")
		}

		if len(combos) == 0 {
			return 0, nil
		}

		copied, err := tx.CopyFrom(ctx,
			pgx.Identifier{"component_configurations"},
			[]string{"component_id", "nbphase", "thickness", "width", "poles", "shape"},
			pgx.CopyFromSlice(len(combos), func(i int) ([]any, error) {
				c := combos[i]
				return []any{key, nbphase, c.Thickness, c.Width, c.Poles, c.Shape}, nil
			}),
		)
		if err != nil {
			if database.IsForeignKeyViolation(err) {
				return 0, ErrComponentNotFound
			}
			return 0, apperror.StoreIO(err, "insert configurations")
		}
		return int(copied), nil
	})
	if err != nil {
		if !errors.Is(err, ErrComponentNotFound) {
			telemetry.SetError(ctx, err)
		}
		return 0, err
	}

	telemetry.SetAttributes(ctx, attribute.Int(telemetry.AttrRowsWritten, n))
	return n, nil
}

func (r *PostgresCatalogRepository) FindMatches(ctx context.Context, q MatchQuery) ([]Match, error) {
	ctx, span := telemetry.StartSpan(ctx, "PostgresCatalogRepository.FindMatches")
	defer span.End()

	query := `
		SELECT DISTINCT component_id, nbphase
		FROM component_configurations
		WHERE nbphase = $1 AND thickness = $2 AND width = $3 AND poles = $4 AND shape = $5
		ORDER BY component_id
	`

	rows, err := r.db.Query(ctx, query, q.NbPhase, q.Thickness, q.Width, q.Poles, q.Shape)
	if err != nil {
		telemetry.SetError(ctx, err)
		return nil, apperror.StoreIO(err, "find matches")
	}
	defer rows.Close()

	var result []Match
	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.ComponentID, &m.NbPhase); err != nil {
			return nil, apperror.StoreIO(err, "scan match")
		}
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.StoreIO(err, "find matches")
	}

	return result, nil
}
