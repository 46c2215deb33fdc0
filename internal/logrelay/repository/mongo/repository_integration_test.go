//go:build integration

package mongo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/shestoi/vigil/internal/logrelay/repository"
)

func TestRepository_Integration(t *testing.T) {
	ctx := context.Background()

	// Поднимаем MongoDB контейнер через testcontainers
	mongoC, err := mongodb.RunContainer(ctx,
		tc.WithImage("mongo:6"),
	)
	require.NoError(t, err)
	defer func() { require.NoError(t, mongoC.Terminate(ctx)) }()

	mongoURI, err := mongoC.ConnectionString(ctx)
	require.NoError(t, err)

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoURI))
	require.NoError(t, err)
	defer func() { _ = client.Disconnect(ctx) }()

	// Ждём готовности MongoDB (ping с retry)
	var pingErr error
	for i := 0; i < 20; i++ {
		pingErr = client.Database("admin").RunCommand(ctx, bson.D{{Key: "ping", Value: 1}}).Err()
		if pingErr == nil {
			break
		}
		time.Sleep(500 * time.Millisecond)
	}
	require.NoError(t, pingErr, "MongoDB did not become ready in time")

	repo, err := NewRepository(client, "vigil_logs_test", 7)
	require.NoError(t, err)

	base := time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC)

	t.Run("InsertBatch and Query", func(t *testing.T) {
		records := []repository.LogRecord{
			{
				Timestamp: base,
				Level:     "info",
				Service:   "api",
				Namespace: "prod",
				Pod:       "api-1",
				Node:      "node-1",
				Message:   "request handled",
				TraceID:   "t1",
				Fields:    map[string]string{"status": "200"},
			},
			{
				Timestamp: base.Add(time.Minute),
				Level:     "error",
				Service:   "api",
				Namespace: "prod",
				Pod:       "api-2",
				Message:   "request failed",
			},
			{
				Timestamp: base.Add(2 * time.Minute),
				Level:     "info",
				Service:   "payment",
				Namespace: "prod",
				Message:   "payment processed",
			},
		}
		require.NoError(t, repo.InsertBatch(ctx, records))

		got, err := repo.Query(ctx, repository.QueryFilter{Service: "api"})
		require.NoError(t, err)
		require.Len(t, got, 2)
		// Новые первыми
		assert.Equal(t, "request failed", got[0].Message)
		assert.Equal(t, "request handled", got[1].Message)
		assert.Equal(t, "200", got[1].Fields["status"])
		assert.Equal(t, "t1", got[1].TraceID)
	})

	t.Run("Query by level and time range", func(t *testing.T) {
		got, err := repo.Query(ctx, repository.QueryFilter{Level: "error"})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "api", got[0].Service)

		got, err = repo.Query(ctx, repository.QueryFilter{
			Since: base.Add(90 * time.Second),
		})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "payment processed", got[0].Message)

		got, err = repo.Query(ctx, repository.QueryFilter{
			Until: base.Add(30 * time.Second),
		})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "request handled", got[0].Message)
	})

	t.Run("Query limit", func(t *testing.T) {
		got, err := repo.Query(ctx, repository.QueryFilter{Limit: 1})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "payment processed", got[0].Message)
	})

	t.Run("TTL index exists", func(t *testing.T) {
		cursor, err := repo.col.Indexes().List(ctx)
		require.NoError(t, err)

		var indexes []bson.M
		require.NoError(t, cursor.All(ctx, &indexes))

		found := false
		for _, idx := range indexes {
			if _, ok := idx["expireAfterSeconds"]; ok {
				found = true
			}
		}
		assert.True(t, found, "TTL index on ts must exist")
	})
}
