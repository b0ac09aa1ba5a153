package repository

import (
	"context"
	"fmt"

	"busbar/migrations"
	"busbar/pkg/cache"
	"busbar/pkg/config"
	"busbar/pkg/database"
	"busbar/pkg/logger"
	"busbar/pkg/metrics"
)

// RepositoryType selects the storage backend.
type RepositoryType string

const (
	RepositoryTypeMemory   RepositoryType = "memory"
	RepositoryTypePostgres RepositoryType = "postgres"
)

// Repositories bundles the stores of the rating service.
type Repositories struct {
	Ratings RatingRepository
	Catalog CatalogRepository
	Quotas  QuotaRepository

	db    *database.PostgresDB
	cache cache.Cache
}

// Ping checks the persistent store. Memory repositories are always ready.
func (r *Repositories) Ping(ctx context.Context) error {
	if r.db == nil {
		return nil
	}
	return database.HealthCheck(ctx, r.db)
}

// DB returns the postgres connection, or nil for memory repositories.
func (r *Repositories) DB() *database.PostgresDB {
	return r.db
}

// Close releases the cache and the database pool.
func (r *Repositories) Close() {
	if r.cache != nil {
		if err := r.cache.Close(); err != nil {
			logger.Log.Warn("failed to close rating cache", "error", err)
		}
	}
	if r.db != nil {
		r.db.Close()
	}
}

// NewRepositories creates the stores for cfg.Database and, when enabled,
// fronts the rating store with the cache from cfg.Cache.
func NewRepositories(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (*Repositories, error) {
	var (
		repos *Repositories
		err   error
	)

	switch RepositoryType(cfg.Database.Driver) {
	case RepositoryTypeMemory, "":
		repos = newMemoryRepositories()

	case RepositoryTypePostgres, "postgresql":
		repos, err = newPostgresRepositories(ctx, &cfg.Database)
		if err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("unsupported repository type: %s", cfg.Database.Driver)
	}

	if cfg.Cache.Enabled {
		c, err := cache.New(cache.FromConfig(&cfg.Cache))
		if err != nil {
			repos.Close()
			return nil, fmt.Errorf("failed to create rating cache: %w", err)
		}
		repos.cache = c
		repos.Ratings = NewCachedRatingRepository(repos.Ratings, cache.NewRatingCache(c, cfg.Cache.DefaultTTL), m)
		logger.Log.Info("rating cache enabled", "driver", cfg.Cache.Driver)
	}

	return repos, nil
}

func newMemoryRepositories() *Repositories {
	return &Repositories{
		Ratings: NewMemoryRatingRepository(),
		Catalog: NewMemoryCatalogRepository(),
		Quotas:  NewMemoryQuotaRepository(),
	}
}

func newPostgresRepositories(ctx context.Context, cfg *config.DatabaseConfig) (*Repositories, error) {
	db, err := database.NewPostgresDB(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	if err := database.RunMigrations(ctx, db.Pool(), cfg, migrations.FS, migrations.Dir); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Repositories{
		Ratings: NewPostgresRatingRepository(db),
		Catalog: NewPostgresCatalogRepository(db),
		Quotas:  NewPostgresQuotaRepository(db),
		db:      db,
	}, nil
}
