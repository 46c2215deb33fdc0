//go:build integration

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	_ "github.com/jackc/pgx/v5/stdlib" //для goose миграций

	"github.com/shestoi/vigil/internal/notifier/repository"
)

func TestRepository_Integration(t *testing.T) {
	ctx := context.Background()

	// Поднимаем PostgreSQL контейнер через testcontainers
	postgresContainer, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:15-alpine"),
		postgres.WithDatabase("vigil_notifier"),
		postgres.WithUsername("vigil"),
		postgres.WithPassword("vigil"),
	)
	require.NoError(t, err)
	defer func() {
		err := postgresContainer.Terminate(ctx)
		require.NoError(t, err)
	}()

	dsn, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	// Открываем *sql.DB через pgx stdlib для goose миграций
	db, err := sql.Open("pgx", dsn)
	require.NoError(t, err)
	defer db.Close()

	// Ждём готовности БД через ping с retry
	var pingErr error
	for i := 0; i < 10; i++ {
		pingErr = db.PingContext(ctx)
		if pingErr == nil {
			break
		}
		time.Sleep(1 * time.Second)
	}
	require.NoError(t, pingErr, "Failed to ping database after retries")

	// Путь к миграциям относительно текущего файла:
	// internal/notifier/repository/postgres -> migrations/notifier
	_, filename, _, ok := runtime.Caller(0)
	require.True(t, ok, "Failed to get current file path")

	moduleRoot := filepath.Dir(filepath.Dir(filepath.Dir(filepath.Dir(filepath.Dir(filename)))))
	migrationsDir := filepath.Join(moduleRoot, "migrations", "notifier")

	err = goose.UpContext(ctx, db, migrationsDir)
	require.NoError(t, err, "Failed to run migrations")

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	defer pool.Close()

	repo := NewRepository(pool)

	t.Run("InsertAlert and ListAlerts", func(t *testing.T) {
		now := time.Now().UTC().Truncate(time.Microsecond)
		record := repository.AlertRecord{
			EventID:     uuid.NewString(),
			AlertName:   "HighErrorRate",
			Status:      repository.StatusFiring,
			Labels:      map[string]string{"alertname": "HighErrorRate", "job": "api"},
			Annotations: map[string]string{"summary": "too many errors"},
			Value:       42.5,
			StartsAt:    now,
			OccurredAt:  now,
			Outcome:     repository.OutcomeDelivered,
		}

		id, err := repo.InsertAlert(ctx, record)
		require.NoError(t, err)
		require.Greater(t, id, int64(0))

		records, err := repo.ListAlerts(ctx, repository.HistoryFilter{AlertName: "HighErrorRate"})
		require.NoError(t, err)
		require.Len(t, records, 1)
		require.Equal(t, record.EventID, records[0].EventID)
		require.Equal(t, "api", records[0].Labels["job"])
		require.Equal(t, 42.5, records[0].Value)
		require.True(t, records[0].EndsAt.IsZero())
	})

	t.Run("ListAlerts filter and order", func(t *testing.T) {
		now := time.Now().UTC()
		resolved := repository.AlertRecord{
			EventID:    uuid.NewString(),
			AlertName:  "HighErrorRate",
			Status:     repository.StatusResolved,
			Labels:     map[string]string{"job": "api"},
			Annotations: map[string]string{},
			StartsAt:   now.Add(-time.Minute),
			EndsAt:     now,
			OccurredAt: now,
			Outcome:    repository.OutcomeDelivered,
		}
		_, err := repo.InsertAlert(ctx, resolved)
		require.NoError(t, err)

		records, err := repo.ListAlerts(ctx, repository.HistoryFilter{
			AlertName: "HighErrorRate",
			Status:    repository.StatusResolved,
		})
		require.NoError(t, err)
		require.Len(t, records, 1)
		require.False(t, records[0].EndsAt.IsZero())

		all, err := repo.ListAlerts(ctx, repository.HistoryFilter{AlertName: "HighErrorRate"})
		require.NoError(t, err)
		require.Len(t, all, 2)
		// Новые первыми
		require.Equal(t, repository.StatusResolved, all[0].Status)
	})

	t.Run("Silences CRUD", func(t *testing.T) {
		now := time.Now().UTC().Truncate(time.Microsecond)
		silence := repository.Silence{
			ID: uuid.NewString(),
			Matchers: []repository.SilenceMatcher{
				{Name: "job", Value: "api"},
				{Name: "severity", Value: "info", Negative: true},
			},
			StartsAt:  now.Add(-time.Minute),
			EndsAt:    now.Add(time.Hour),
			CreatedBy: "ops",
			Comment:   "deploy window",
		}

		require.NoError(t, repo.CreateSilence(ctx, silence))

		got, err := repo.GetSilence(ctx, silence.ID)
		require.NoError(t, err)
		require.Equal(t, silence.ID, got.ID)
		require.Len(t, got.Matchers, 2)
		require.True(t, got.Matchers[1].Negative)
		require.Equal(t, "deploy window", got.Comment)

		active, err := repo.ListSilences(ctx, now)
		require.NoError(t, err)
		require.Len(t, active, 1)

		// В прошлом silence ещё не действовал
		before, err := repo.ListSilences(ctx, now.Add(-time.Hour))
		require.NoError(t, err)
		require.Empty(t, before)

		require.NoError(t, repo.DeleteSilence(ctx, silence.ID))

		_, err = repo.GetSilence(ctx, silence.ID)
		require.True(t, errors.Is(err, repository.ErrNotFound), "Expected ErrNotFound, got: %v", err)

		err = repo.DeleteSilence(ctx, silence.ID)
		require.True(t, errors.Is(err, repository.ErrNotFound), "Expected ErrNotFound, got: %v", err)
	})
}
