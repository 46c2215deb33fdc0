package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/shestoi/vigil/internal/logrelay/repository"
)

// logDocument представляет документ в коллекции MongoDB
type logDocument struct {
	Timestamp time.Time         `bson:"ts"`
	Level     string            `bson:"level"`
	Service   string            `bson:"service"`
	Namespace string            `bson:"namespace,omitempty"`
	Pod       string            `bson:"pod,omitempty"`
	Node      string            `bson:"node,omitempty"`
	Message   string            `bson:"message"`
	TraceID   string            `bson:"trace_id,omitempty"`
	Fields    map[string]string `bson:"fields,omitempty"`
}

// Repository реализует LogRepository используя MongoDB
type Repository struct {
	client *mongo.Client
	db     *mongo.Database
	col    *mongo.Collection
}

// NewRepository создаёт новый MongoDB репозиторий логов.
// Создаёт индекс (service, ts) для запросов и TTL индекс на ts для retention.
func NewRepository(client *mongo.Client, dbName string, retentionDays int) (*Repository, error) {
	db := client.Database(dbName)
	col := db.Collection("logs")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "service", Value: 1}, {Key: "ts", Value: -1}},
		},
		{
			// TTL индекс: Mongo сам удаляет записи старше retention
			Keys:    bson.D{{Key: "ts", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(retentionDays * 24 * 3600)),
		},
	}
	if _, err := col.Indexes().CreateMany(ctx, indexes); err != nil {
		return nil, fmt.Errorf("failed to create log indexes: %w", err)
	}

	return &Repository{
		client: client,
		db:     db,
		col:    col,
	}, nil
}

// InsertBatch сохраняет пачку записей одним InsertMany
func (r *Repository) InsertBatch(ctx context.Context, records []repository.LogRecord) error {
	if len(records) == 0 {
		return nil
	}

	docs := make([]interface{}, 0, len(records))
	for _, rec := range records {
		docs = append(docs, logDocument{
			Timestamp: rec.Timestamp,
			Level:     rec.Level,
			Service:   rec.Service,
			Namespace: rec.Namespace,
			Pod:       rec.Pod,
			Node:      rec.Node,
			Message:   rec.Message,
			TraceID:   rec.TraceID,
			Fields:    rec.Fields,
		})
	}

	// Ordered=false: одна битая запись не валит всю пачку
	opts := options.InsertMany().SetOrdered(false)
	if _, err := r.col.InsertMany(ctx, docs, opts); err != nil {
		return fmt.Errorf("failed to insert log batch: %w", err)
	}
	return nil
}

// Query возвращает записи по фильтру, новые первыми
func (r *Repository) Query(ctx context.Context, filter repository.QueryFilter) ([]repository.LogRecord, error) {
	query := bson.M{}
	if filter.Service != "" {
		query["service"] = filter.Service
	}
	if filter.Namespace != "" {
		query["namespace"] = filter.Namespace
	}
	if filter.Level != "" {
		query["level"] = filter.Level
	}

	tsRange := bson.M{}
	if !filter.Since.IsZero() {
		tsRange["$gte"] = filter.Since
	}
	if !filter.Until.IsZero() {
		tsRange["$lt"] = filter.Until
	}
	if len(tsRange) > 0 {
		query["ts"] = tsRange
	}

	limit := int64(filter.Limit)
	if limit <= 0 {
		limit = 100
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "ts", Value: -1}}).
		SetLimit(limit)

	cursor, err := r.col.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query logs: %w", err)
	}
	defer cursor.Close(ctx)

	records := make([]repository.LogRecord, 0)
	for cursor.Next(ctx) {
		var doc logDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode log document: %w", err)
		}
		records = append(records, repository.LogRecord{
			Timestamp: doc.Timestamp,
			Level:     doc.Level,
			Service:   doc.Service,
			Namespace: doc.Namespace,
			Pod:       doc.Pod,
			Node:      doc.Node,
			Message:   doc.Message,
			TraceID:   doc.TraceID,
			Fields:    doc.Fields,
		})
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}

	return records, nil
}
