package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/shestoi/vigil/internal/logrelay/repository"
)

// Repository - in-memory реализация LogRepository для dev/test
type Repository struct {
	mu      sync.RWMutex
	records []repository.LogRecord
}

// NewRepository создаёт in-memory репозиторий логов
func NewRepository() *Repository {
	return &Repository{}
}

// InsertBatch сохраняет пачку записей
func (r *Repository) InsertBatch(ctx context.Context, records []repository.LogRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, records...)
	return nil
}

// Query возвращает записи по фильтру, новые первыми
func (r *Repository) Query(ctx context.Context, filter repository.QueryFilter) ([]repository.LogRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]repository.LogRecord, 0)
	for _, rec := range r.records {
		if filter.Service != "" && rec.Service != filter.Service {
			continue
		}
		if filter.Namespace != "" && rec.Namespace != filter.Namespace {
			continue
		}
		if filter.Level != "" && rec.Level != filter.Level {
			continue
		}
		if !filter.Since.IsZero() && rec.Timestamp.Before(filter.Since) {
			continue
		}
		if !filter.Until.IsZero() && !rec.Timestamp.Before(filter.Until) {
			continue
		}
		result = append(result, rec)
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Timestamp.After(result[j].Timestamp)
	})

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
