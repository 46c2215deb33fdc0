package repository

import (
	"context"
	"time"
)

// LogRecord представляет нормализованную запись лога
type LogRecord struct {
	Timestamp time.Time         `json:"ts"`
	Level     string            `json:"level"`
	Service   string            `json:"service"`
	Namespace string            `json:"namespace,omitempty"`
	Pod       string            `json:"pod,omitempty"`
	Node      string            `json:"node,omitempty"`
	Message   string            `json:"message"`
	TraceID   string            `json:"trace_id,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
}

// QueryFilter задаёт фильтр запроса логов.
// Пустое строковое поле = фильтр не применяется, нулевое время = без границы.
type QueryFilter struct {
	Service   string
	Namespace string
	Level     string
	Since     time.Time
	Until     time.Time
	Limit     int
}

// LogRepository определяет операции хранилища логов
type LogRepository interface {
	// InsertBatch сохраняет пачку записей
	InsertBatch(ctx context.Context, records []LogRecord) error
	// Query возвращает записи по фильтру, новые первыми
	Query(ctx context.Context, filter QueryFilter) ([]LogRecord, error)
}
