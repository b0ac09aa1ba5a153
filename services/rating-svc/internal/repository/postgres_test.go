package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"busbar/pkg/apperror"
	"busbar/services/rating-svc/internal/domain"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

var testConfig = domain.Configuration{W: 40, T: 10, B: 2, Angle: 90, A: 60, Icc: 50, Force: 8000, Poles: 3}

func configArgs(cfg domain.Configuration) []any {
	return []any{cfg.W, cfg.T, cfg.B, cfg.Angle, cfg.A, cfg.Icc, cfg.Force, cfg.Poles}
}

func TestPostgresRating_LookupHit(t *testing.T) {
	mock := newMock(t)
	repo := NewPostgresRatingRepository(mock)

	mock.ExpectQuery("SELECT l FROM ratings").
		WithArgs(configArgs(testConfig)...).
		WillReturnRows(pgxmock.NewRows([]string{"l"}).AddRow("42"))

	rating, found, err := repo.Lookup(context.Background(), testConfig)

	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "42", rating)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRating_LookupNormalizesB(t *testing.T) {
	mock := newMock(t)
	repo := NewPostgresRatingRepository(mock)

	five := testConfig
	five.B = 5
	four := testConfig
	four.B = 4

	mock.ExpectQuery("SELECT l FROM ratings").
		WithArgs(configArgs(four)...).
		WillReturnError(pgx.ErrNoRows)

	_, found, err := repo.Lookup(context.Background(), five)

	require.NoError(t, err)
	assert.False(t, found)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRating_LookupStoreFailureIsNotAbsence(t *testing.T) {
	mock := newMock(t)
	repo := NewPostgresRatingRepository(mock)

	mock.ExpectQuery("SELECT l FROM ratings").
		WithArgs(configArgs(testConfig)...).
		WillReturnError(errors.New("connection reset"))

	_, found, err := repo.Lookup(context.Background(), testConfig)

	require.Error(t, err)
	assert.False(t, found)
	assert.True(t, apperror.Is(err, apperror.CodeStoreIO))
}

func TestPostgresRating_InsertIfAbsent(t *testing.T) {
	mock := newMock(t)
	repo := NewPostgresRatingRepository(mock)
	args := append(configArgs(testConfig), "42")

	mock.ExpectExec("INSERT INTO ratings").
		WithArgs(args...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO ratings").
		WithArgs(args...).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	inserted, err := repo.InsertIfAbsent(context.Background(), testConfig, "42")
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = repo.InsertIfAbsent(context.Background(), testConfig, "42")
	require.NoError(t, err)
	assert.False(t, inserted, "duplicate is swallowed")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRating_MaxRatedForce(t *testing.T) {
	mock := newMock(t)
	repo := NewPostgresRatingRepository(mock)
	cfg := testConfig

	mock.ExpectQuery(`SELECT COUNT\(\*\), COALESCE\(MAX\(force\), 0\) FROM ratings`).
		WithArgs(cfg.W, cfg.T, cfg.B, cfg.Angle, cfg.A, cfg.Icc, cfg.Poles).
		WillReturnRows(pgxmock.NewRows([]string{"count", "max"}).AddRow(int64(3), 7000))
	mock.ExpectQuery(`SELECT COUNT\(\*\), COALESCE\(MAX\(force\), 0\) FROM ratings`).
		WithArgs(cfg.W, cfg.T, cfg.B, cfg.Angle, cfg.A, cfg.Icc, cfg.Poles).
		WillReturnRows(pgxmock.NewRows([]string{"count", "max"}).AddRow(int64(0), 0))

	force, found, err := repo.MaxRatedForce(context.Background(), cfg)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 7000, force)

	_, found, err = repo.MaxRatedForce(context.Background(), cfg)
	require.NoError(t, err)
	assert.False(t, found)
}

var componentCols = []string{"key", "nbphase", "angle", "resmini", "info", "a_list", "created_at", "updated_at"}

func TestPostgresCatalog_GetComponent(t *testing.T) {
	mock := newMock(t)
	repo := NewPostgresCatalogRepository(mock)
	now := time.Now()

	mock.ExpectQuery("FROM components WHERE key").
		WithArgs("EF-1", 2).
		WillReturnRows(pgxmock.NewRows(componentCols).
			AddRow("EF-1", 2, 90, 12.5, "clamp", "70,80", now, now))
	mock.ExpectQuery("FROM components WHERE key").
		WithArgs("missing", 2).
		WillReturnError(pgx.ErrNoRows)

	c, err := repo.GetComponent(context.Background(), "EF-1", 2)
	require.NoError(t, err)
	assert.Equal(t, "EF-1", c.Key)
	assert.Equal(t, 70, c.Amini())
	assert.Equal(t, 125, c.Force())

	_, err = repo.GetComponent(context.Background(), "missing", 2)
	assert.ErrorIs(t, err, ErrComponentNotFound)
}

func TestPostgresCatalog_CreateDuplicate(t *testing.T) {
	mock := newMock(t)
	repo := NewPostgresCatalogRepository(mock)

	mock.ExpectQuery("INSERT INTO components").
		WithArgs("EF-1", 2, 90, 12.5, "", "70").
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := repo.CreateComponent(context.Background(), &domain.Component{
		Key: "EF-1", NbPhase: 2, Angle: 90, ResMini: 12.5, AList: "70",
	})
	assert.ErrorIs(t, err, ErrComponentExists)
}

func TestPostgresCatalog_UpdateUsesOnlyPatchedColumns(t *testing.T) {
	mock := newMock(t)
	repo := NewPostgresCatalogRepository(mock)
	now := time.Now()
	info := "updated"

	mock.ExpectQuery(`UPDATE components SET updated_at = NOW\(\), info = \$3`).
		WithArgs("EF-1", 2, "updated").
		WillReturnRows(pgxmock.NewRows(componentCols).
			AddRow("EF-1", 2, 90, 12.5, "updated", "70", now, now))

	c, err := repo.UpdateComponent(context.Background(), "EF-1", 2, domain.ComponentPatch{Info: &info})

	require.NoError(t, err)
	assert.Equal(t, "updated", c.Info)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCatalog_DeleteInTransaction(t *testing.T) {
	mock := newMock(t)
	repo := NewPostgresCatalogRepository(mock)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM component_configurations").
		WithArgs("EF-1", 2).
		WillReturnResult(pgxmock.NewResult("DELETE", 6))
	mock.ExpectExec("DELETE FROM components").
		WithArgs("EF-1", 2).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCommit()

	require.NoError(t, repo.DeleteComponent(context.Background(), "EF-1", 2))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCatalog_DeleteMissingRollsBack(t *testing.T) {
	mock := newMock(t)
	repo := NewPostgresCatalogRepository(mock)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM component_configurations").
		WithArgs("EF-1", 2).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec("DELETE FROM components").
		WithArgs("EF-1", 2).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectRollback()

	err := repo.DeleteComponent(context.Background(), "EF-1", 2)
	assert.ErrorIs(t, err, ErrComponentNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

var configurationCols = []string{"component_id", "nbphase", "thickness", "width", "poles", "shape"}

func TestPostgresCatalog_ReplaceCombinations(t *testing.T) {
	mock := newMock(t)
	repo := NewPostgresCatalogRepository(mock)
	combos := domain.Expand([]float64{10}, []float64{40, 50}, []int{1, 2, 3}, []string{"flat"})

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT 1 FROM components").
		WithArgs("EF-1", 2).
		WillReturnRows(pgxmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectExec("DELETE FROM component_configurations").
		WithArgs("EF-1", 2).
		WillReturnResult(pgxmock.NewResult("DELETE", 4))
	mock.ExpectCopyFrom(pgx.Identifier{"component_configurations"}, configurationCols).
		WillReturnResult(6)
	mock.ExpectCommit()

	n, err := repo.ReplaceCombinations(context.Background(), "EF-1", 2, combos)

	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCatalog_ReplaceRollsBackOnInsertFailure(t *testing.T) {
	mock := newMock(t)
	repo := NewPostgresCatalogRepository(mock)
	combos := domain.Expand([]float64{10}, []float64{40}, []int{1}, []string{"flat"})

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT 1 FROM components").
		WithArgs("EF-1", 2).
		WillReturnRows(pgxmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectExec("DELETE FROM component_configurations").
		WithArgs("EF-1", 2).
		WillReturnResult(pgxmock.NewResult("DELETE", 4))
	mock.ExpectCopyFrom(pgx.Identifier{"component_configurations"}, configurationCols).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err := repo.ReplaceCombinations(context.Background(), "EF-1", 2, combos)

	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.CodeStoreIO))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCatalog_ReplaceUnknownComponent(t *testing.T) {
	mock := newMock(t)
	repo := NewPostgresCatalogRepository(mock)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT 1 FROM components").
		WithArgs("ghost", 2).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	_, err := repo.ReplaceCombinations(context.Background(), "ghost", 2, nil)

	assert.ErrorIs(t, err, ErrComponentNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCatalog_FindMatches(t *testing.T) {
	mock := newMock(t)
	repo := NewPostgresCatalogRepository(mock)

	mock.ExpectQuery("SELECT DISTINCT component_id, nbphase").
		WithArgs(2, 10.0, 40.0, 3, "flat").
		WillReturnRows(pgxmock.NewRows([]string{"component_id", "nbphase"}).
			AddRow("EF-1", 2).
			AddRow("EF-2", 2))

	matches, err := repo.FindMatches(context.Background(), MatchQuery{
		NbPhase: 2, Thickness: 10, Width: 40, Poles: 3, Shape: "flat",
	})

	require.NoError(t, err)
	assert.Equal(t, []Match{{"EF-1", 2}, {"EF-2", 2}}, matches)
}

var quotaCols = []string{"user_id", "daily_limit", "remaining", "last_search_date"}

func TestPostgresQuota_ConsumeRollsOverAndLogs(t *testing.T) {
	mock := newMock(t)
	repo := NewPostgresQuotaRepository(mock)
	today := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery("FROM user_quotas WHERE user_id = \\$1 FOR UPDATE").
		WithArgs("u1").
		WillReturnRows(pgxmock.NewRows(quotaCols).AddRow("u1", 20, 20, today.AddDate(0, 0, -1)))
	mock.ExpectExec("UPDATE user_quotas").
		WithArgs("u1", 19, today).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("INSERT INTO search_logs").
		WithArgs(pgxmock.AnyArg(), "u1", today).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	decision, err := repo.Consume(context.Background(), "u1", today.Add(9*time.Hour), true)

	require.NoError(t, err)
	assert.Equal(t, &domain.QuotaDecision{Allowed: true, Remaining: 19, Limit: 20}, decision)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresQuota_ConsumeExhaustedSkipsLog(t *testing.T) {
	mock := newMock(t)
	repo := NewPostgresQuotaRepository(mock)
	today := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").
		WithArgs("u1").
		WillReturnRows(pgxmock.NewRows(quotaCols).AddRow("u1", 20, 0, today))
	mock.ExpectExec("UPDATE user_quotas").
		WithArgs("u1", 0, today).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	decision, err := repo.Consume(context.Background(), "u1", today, true)

	require.NoError(t, err)
	assert.Equal(t, &domain.QuotaDecision{Allowed: false, Remaining: 0, Limit: 20}, decision)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresQuota_ConsumeUnknownUser(t *testing.T) {
	mock := newMock(t)
	repo := NewPostgresQuotaRepository(mock)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").
		WithArgs("nobody").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	_, err := repo.Consume(context.Background(), "nobody", time.Now(), true)

	assert.ErrorIs(t, err, ErrQuotaNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresQuota_SetLimit(t *testing.T) {
	mock := newMock(t)
	repo := NewPostgresQuotaRepository(mock)
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	remaining := 5

	mock.ExpectQuery("UPDATE user_quotas").
		WithArgs("u1", 50, &remaining).
		WillReturnRows(pgxmock.NewRows(quotaCols).AddRow("u1", 50, 5, day))

	q, err := repo.SetLimit(context.Background(), "u1", 50, &remaining)

	require.NoError(t, err)
	assert.Equal(t, 50, q.DailyLimit)
	assert.Equal(t, 5, q.Remaining)
}

func TestPostgresQuota_DailyStats(t *testing.T) {
	mock := newMock(t)
	repo := NewPostgresQuotaRepository(mock)
	to := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	from := to.AddDate(0, 0, -6)

	mock.ExpectQuery("FROM search_logs").
		WithArgs(from, to).
		WillReturnRows(pgxmock.NewRows([]string{"log_date", "sum", "count"}).
			AddRow(to.AddDate(0, 0, -1), int64(12), int64(3)))

	stats, err := repo.DailyStats(context.Background(), from, to)

	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, 12, stats[0].Searches)
	assert.Equal(t, 3, stats[0].Users)
}

func TestPostgresQuota_Totals(t *testing.T) {
	mock := newMock(t)
	repo := NewPostgresQuotaRepository(mock)
	today := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT COUNT").
		WithArgs(today.AddDate(0, 0, -6), today).
		WillReturnRows(pgxmock.NewRows([]string{"users", "active", "total", "today"}).
			AddRow(int64(10), int64(4), int64(120), int64(9)))

	totals, err := repo.Totals(context.Background(), today)

	require.NoError(t, err)
	assert.Equal(t, &SearchTotals{TotalUsers: 10, ActiveUsers: 4, TotalSearches: 120, TodaySearches: 9}, totals)
}
