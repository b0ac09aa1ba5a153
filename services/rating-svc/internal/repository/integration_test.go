//go:build integration

package repository

import (
	"context"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"busbar/migrations"
	"busbar/pkg/config"
	"busbar/pkg/database"
	"busbar/services/rating-svc/internal/domain"
)

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// requirePostgres connects to the database named by POSTGRES_* and applies
// the migrations. Tables are emptied before the test runs.
func requirePostgres(t *testing.T) *database.PostgresDB {
	t.Helper()
	if os.Getenv("INTEGRATION_TESTS") != "1" {
		t.Skip("skipping integration test; set INTEGRATION_TESTS=1 to run")
	}

	port, err := strconv.Atoi(envOr("POSTGRES_PORT", "5433"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := database.NewPostgresDB(ctx, &config.DatabaseConfig{
		Driver:          "postgres",
		Host:            envOr("POSTGRES_HOST", "localhost"),
		Port:            port,
		Database:        envOr("POSTGRES_DB", "busbar_test"),
		Username:        envOr("POSTGRES_USER", "postgres"),
		Password:        envOr("POSTGRES_PASSWORD", "postgres"),
		SSLMode:         "disable",
		MaxOpenConns:    20,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: time.Minute,
	})
	if err != nil {
		t.Skipf("postgres not available: %v", err)
	}
	t.Cleanup(db.Close)

	require.NoError(t, database.NewMigrator(db.Pool(), migrations.FS, migrations.Dir).Up(ctx))
	_, err = db.Exec(ctx, `TRUNCATE ratings, component_configurations, components, search_logs, user_quotas`)
	require.NoError(t, err)

	return db
}

func TestIntegration_RatingStore(t *testing.T) {
	db := requirePostgres(t)
	repo := NewPostgresRatingRepository(db)
	ctx := context.Background()

	cfg := domain.NewConfiguration(40, 10, 3, 90, 60, 50, 8000, 3)

	_, found, err := repo.Lookup(ctx, cfg)
	require.NoError(t, err)
	assert.False(t, found)

	inserted, err := repo.InsertIfAbsent(ctx, cfg, "1250")
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = repo.InsertIfAbsent(ctx, cfg, "9999")
	require.NoError(t, err)
	assert.False(t, inserted)

	rating, found, err := repo.Lookup(ctx, cfg)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "1250", rating)

	_, err = repo.InsertIfAbsent(ctx, cfg.WithForce(6000), "1100")
	require.NoError(t, err)

	maxForce, ok, err := repo.MaxRatedForce(ctx, cfg.WithForce(1000))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 8000, maxForce)
}

func TestIntegration_CatalogReplaceAndMatch(t *testing.T) {
	db := requirePostgres(t)
	repo := NewPostgresCatalogRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.CreateComponent(ctx, &domain.Component{
		Key: "EF-40", NbPhase: 3, Angle: 90, ResMini: 500, AList: "60,70",
	}))
	assert.ErrorIs(t, repo.CreateComponent(ctx, &domain.Component{Key: "EF-40", NbPhase: 3}), ErrComponentExists)

	rows := domain.Expand([]float64{10, 12}, []float64{40, 50}, []int{3}, []string{"flat"})
	n, err := repo.ReplaceCombinations(ctx, "EF-40", 3, rows)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	n, err = repo.ReplaceCombinations(ctx, "EF-40", 3, rows[:1])
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stored, err := repo.ListCombinations(ctx, "EF-40", 3)
	require.NoError(t, err)
	assert.Len(t, stored, 1)

	matches, err := repo.FindMatches(ctx, MatchQuery{NbPhase: 3, Thickness: 10, Width: 40, Poles: 3, Shape: "flat"})
	require.NoError(t, err)
	assert.Equal(t, []Match{{ComponentID: "EF-40", NbPhase: 3}}, matches)

	require.NoError(t, repo.DeleteComponent(ctx, "EF-40", 3))
	stored, err = repo.ListCombinations(ctx, "EF-40", 3)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestIntegration_QuotaConcurrentConsume(t *testing.T) {
	db := requirePostgres(t)
	repo := NewPostgresQuotaRepository(db)
	ctx := context.Background()
	today := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	_, err := repo.Ensure(ctx, "u1", 1)
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := repo.Consume(ctx, "u1", today, true)
			if !assert.NoError(t, err) {
				return
			}
			if d.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, allowed)

	logs, err := repo.UserSearchLog(ctx, "u1", today, today)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, 1, logs[0].Count)

	d, err := repo.Consume(ctx, "u1", today.AddDate(0, 0, 1), false)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
}
