package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shestoi/vigil/internal/logrelay/repository"
	"github.com/shestoi/vigil/internal/logrelay/repository/memory"
)

func newTestService() (*LogRelayService, *memory.Repository) {
	repo := memory.NewRepository()
	svc := NewLogRelayService(zap.NewNop(), repo, 10, 100, 1000)
	return svc, repo
}

func TestNormalizeRecord_Kubernetes(t *testing.T) {
	now := time.Now().UTC()
	raw := map[string]interface{}{
		"date":     1756000000.5,
		"log":      "request handled",
		"level":    "INFO",
		"trace_id": "abc123",
		"kubernetes": map[string]interface{}{
			"namespace_name": "prod",
			"pod_name":       "api-7f9c-x2",
			"host":           "node-1",
			"container_name": "api",
			"labels": map[string]interface{}{
				"app": "checkout",
			},
		},
		"status": float64(200),
	}

	record, ok := NormalizeRecord(raw, now)
	require.True(t, ok)

	assert.Equal(t, time.Unix(1756000000, 500000000).UTC(), record.Timestamp)
	assert.Equal(t, "info", record.Level)
	assert.Equal(t, "request handled", record.Message)
	assert.Equal(t, "abc123", record.TraceID)
	assert.Equal(t, "checkout", record.Service)
	assert.Equal(t, "prod", record.Namespace)
	assert.Equal(t, "api-7f9c-x2", record.Pod)
	assert.Equal(t, "node-1", record.Node)
	assert.Equal(t, "200", record.Fields["status"])
}

func TestNormalizeRecord_ContainerNameFallback(t *testing.T) {
	raw := map[string]interface{}{
		"log": "started",
		"kubernetes": map[string]interface{}{
			"container_name": "worker",
		},
	}

	record, ok := NormalizeRecord(raw, time.Now())
	require.True(t, ok)
	assert.Equal(t, "worker", record.Service)
}

func TestNormalizeRecord_Defaults(t *testing.T) {
	now := time.Now().UTC()
	raw := map[string]interface{}{
		"message": "plain record",
	}

	record, ok := NormalizeRecord(raw, now)
	require.True(t, ok)

	// Без date берётся время приёма, без метаданных - unknown/info
	assert.Equal(t, now, record.Timestamp)
	assert.Equal(t, "info", record.Level)
	assert.Equal(t, "unknown", record.Service)
	assert.Nil(t, record.Fields)
}

func TestNormalizeRecord_NoMessage(t *testing.T) {
	raw := map[string]interface{}{
		"date":  1756000000.0,
		"level": "error",
	}

	_, ok := NormalizeRecord(raw, time.Now())
	assert.False(t, ok)
}

func TestIngest_StoresNormalizedRecords(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	accepted, err := svc.Ingest(ctx, []map[string]interface{}{
		{"date": 1756000000.0, "log": "first", "service": "api"},
		{"date": 1756000001.0, "log": "second", "service": "api"},
		{"date": 1756000002.0, "level": "warn"}, // без message - отбрасывается
	})
	require.NoError(t, err)
	assert.Equal(t, 2, accepted)

	records, err := repo.Query(ctx, repository.QueryFilter{Service: "api"})
	require.NoError(t, err)
	require.Len(t, records, 2)
	// Новые первыми
	assert.Equal(t, "second", records[0].Message)
	assert.Equal(t, "first", records[1].Message)
}

func TestIngest_BatchTooLarge(t *testing.T) {
	svc, _ := newTestService()

	batch := make([]map[string]interface{}, 11)
	for i := range batch {
		batch[i] = map[string]interface{}{"log": "x"}
	}

	_, err := svc.Ingest(context.Background(), batch)
	require.ErrorIs(t, err, ErrBatchTooLarge)
}

func TestQuery_LimitClamping(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	base := time.Now().UTC()
	records := make([]repository.LogRecord, 0, 150)
	for i := 0; i < 150; i++ {
		records = append(records, repository.LogRecord{
			Timestamp: base.Add(time.Duration(i) * time.Second),
			Level:     "info",
			Service:   "api",
			Message:   "m",
		})
	}
	require.NoError(t, repo.InsertBatch(ctx, records))

	// Нулевой limit заменяется на default
	result, err := svc.Query(ctx, repository.QueryFilter{Service: "api"})
	require.NoError(t, err)
	assert.Len(t, result, 100)

	// Limit выше максимума обрезается
	result, err = svc.Query(ctx, repository.QueryFilter{Service: "api", Limit: 5000})
	require.NoError(t, err)
	assert.Len(t, result, 150)
}

func TestQuery_TimeRange(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	base := time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC)
	require.NoError(t, repo.InsertBatch(ctx, []repository.LogRecord{
		{Timestamp: base, Service: "api", Level: "info", Message: "old"},
		{Timestamp: base.Add(time.Minute), Service: "api", Level: "info", Message: "mid"},
		{Timestamp: base.Add(2 * time.Minute), Service: "api", Level: "info", Message: "new"},
	}))

	result, err := svc.Query(ctx, repository.QueryFilter{
		Since: base.Add(30 * time.Second),
		Until: base.Add(90 * time.Second),
	})
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, "mid", result[0].Message)
}
