package memory

import (
	"context"
	"sync"
	"time"

	"github.com/shestoi/vigil/internal/notifier/repository"
)

// Repository in-memory реализация HistoryRepository и SilenceRepository
// (для локальной разработки и unit-тестов)
type Repository struct {
	mu       sync.RWMutex
	nextID   int64
	history  []repository.AlertRecord
	silences map[string]repository.Silence
}

// NewRepository создаёт пустой in-memory репозиторий
func NewRepository() *Repository {
	return &Repository{
		nextID:   1,
		silences: make(map[string]repository.Silence),
	}
}

// InsertAlert сохраняет запись истории
func (r *Repository) InsertAlert(ctx context.Context, record repository.AlertRecord) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record.ID = r.nextID
	r.nextID++
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	r.history = append(r.history, record)
	return record.ID, nil
}

// ListAlerts возвращает записи истории по фильтру, новые первыми
func (r *Repository) ListAlerts(ctx context.Context, filter repository.HistoryFilter) ([]repository.AlertRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	out := make([]repository.AlertRecord, 0)
	for i := len(r.history) - 1; i >= 0 && len(out) < limit; i-- {
		record := r.history[i]
		if filter.AlertName != "" && record.AlertName != filter.AlertName {
			continue
		}
		if filter.Status != "" && record.Status != filter.Status {
			continue
		}
		out = append(out, record)
	}
	return out, nil
}

// CreateSilence сохраняет silence
func (r *Repository) CreateSilence(ctx context.Context, silence repository.Silence) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if silence.CreatedAt.IsZero() {
		silence.CreatedAt = time.Now()
	}
	r.silences[silence.ID] = silence
	return nil
}

// GetSilence возвращает silence по id
func (r *Repository) GetSilence(ctx context.Context, id string) (repository.Silence, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	silence, ok := r.silences[id]
	if !ok {
		return repository.Silence{}, repository.ErrNotFound
	}
	return silence, nil
}

// ListSilences возвращает silences; activeAt обрезает до действующих
func (r *Repository) ListSilences(ctx context.Context, activeAt time.Time) ([]repository.Silence, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]repository.Silence, 0, len(r.silences))
	for _, silence := range r.silences {
		if !activeAt.IsZero() && !silence.Active(activeAt) {
			continue
		}
		out = append(out, silence)
	}
	return out, nil
}

// DeleteSilence удаляет silence по id
func (r *Repository) DeleteSilence(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.silences[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.silences, id)
	return nil
}

// StateRepository in-memory реализация StateRepository (дедупликация + троттлинг)
type StateRepository struct {
	mu        sync.Mutex
	processed map[string]time.Time // eventID -> истечение
	throttle  map[string]time.Time // fingerprint -> истечение
}

// NewStateRepository создаёт пустое in-memory состояние
func NewStateRepository() *StateRepository {
	return &StateRepository{
		processed: make(map[string]time.Time),
		throttle:  make(map[string]time.Time),
	}
}

// IsProcessed проверяет, обрабатывалось ли событие
func (r *StateRepository) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	expiry, ok := r.processed[eventID]
	if !ok {
		return false, nil
	}
	if time.Now().After(expiry) {
		delete(r.processed, eventID)
		return false, nil
	}
	return true, nil
}

// MarkProcessed помечает событие обработанным на ttl
func (r *StateRepository) MarkProcessed(ctx context.Context, eventID string, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.processed[eventID] = time.Now().Add(ttl)
	return nil
}

// AllowDelivery атомарно проверяет и занимает слот доставки для fingerprint-а
func (r *StateRepository) AllowDelivery(ctx context.Context, fingerprint string, repeatInterval time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if expiry, ok := r.throttle[fingerprint]; ok && now.Before(expiry) {
		return false, nil
	}
	r.throttle[fingerprint] = now.Add(repeatInterval)
	return true, nil
}

// ClearThrottle сбрасывает троттлинг fingerprint-а
func (r *StateRepository) ClearThrottle(ctx context.Context, fingerprint string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.throttle, fingerprint)
	return nil
}
