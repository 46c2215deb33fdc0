package repository

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound возвращается когда запись не найдена
var ErrNotFound = errors.New("not found")

// Статусы алерта в истории
const (
	StatusFiring   = "firing"
	StatusResolved = "resolved"
)

// Исходы обработки события (колонка outcome в истории)
const (
	OutcomeDelivered = "delivered"
	OutcomeSilenced  = "silenced"
	OutcomeThrottled = "throttled"
)

// AlertRecord запись истории алертов
type AlertRecord struct {
	ID          int64             `json:"id"`
	EventID     string            `json:"event_id"`
	AlertName   string            `json:"alertname"`
	Status      string            `json:"status"`
	Labels      map[string]string `json:"labels"`
	Annotations map[string]string `json:"annotations"`
	Value       float64           `json:"value"`
	StartsAt    time.Time         `json:"starts_at"`
	EndsAt      time.Time         `json:"ends_at,omitempty"`
	OccurredAt  time.Time         `json:"occurred_at"`
	Outcome     string            `json:"outcome"`
	CreatedAt   time.Time         `json:"created_at"`
}

// HistoryFilter параметры выборки истории
type HistoryFilter struct {
	AlertName string
	Status    string
	Limit     int
}

// SilenceMatcher matcher одного лейбла в silence.
// Negative инвертирует сравнение (label != value).
type SilenceMatcher struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Negative bool   `json:"negative,omitempty"`
}

// Matches проверяет matcher по набору лейблов алерта.
// Отсутствующий лейбл трактуется как пустая строка — как в Alertmanager.
func (m SilenceMatcher) Matches(labels map[string]string) bool {
	equal := labels[m.Name] == m.Value
	if m.Negative {
		return !equal
	}
	return equal
}

// Silence подавление алертов по набору matcher-ов в интервале времени
type Silence struct {
	ID        string           `json:"id"`
	Matchers  []SilenceMatcher `json:"matchers"`
	StartsAt  time.Time        `json:"starts_at"`
	EndsAt    time.Time        `json:"ends_at"`
	CreatedBy string           `json:"created_by,omitempty"`
	Comment   string           `json:"comment,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

// Active сообщает, действует ли silence в момент now
func (s Silence) Active(now time.Time) bool {
	return !now.Before(s.StartsAt) && now.Before(s.EndsAt)
}

// Matches проверяет, подпадает ли алерт с такими лейблами под silence.
// Silence срабатывает только если ВСЕ matcher-ы совпали.
func (s Silence) Matches(labels map[string]string) bool {
	if len(s.Matchers) == 0 {
		return false
	}
	for _, m := range s.Matchers {
		if !m.Matches(labels) {
			return false
		}
	}
	return true
}

// HistoryRepository хранилище истории алертов
type HistoryRepository interface {
	// InsertAlert сохраняет запись истории, возвращает её id
	InsertAlert(ctx context.Context, record AlertRecord) (int64, error)
	// ListAlerts возвращает записи истории по фильтру, новые первыми
	ListAlerts(ctx context.Context, filter HistoryFilter) ([]AlertRecord, error)
}

// SilenceRepository хранилище silences
type SilenceRepository interface {
	// CreateSilence сохраняет новый silence
	CreateSilence(ctx context.Context, silence Silence) error
	// GetSilence возвращает silence по id, ErrNotFound если нет
	GetSilence(ctx context.Context, id string) (Silence, error)
	// ListSilences возвращает все silences; activeAt обрезает до действующих
	// в указанный момент (zero time = все)
	ListSilences(ctx context.Context, activeAt time.Time) ([]Silence, error)
	// DeleteSilence удаляет silence по id, ErrNotFound если нет
	DeleteSilence(ctx context.Context, id string) error
}

// StateRepository быстрое состояние обработки: дедупликация событий
// и троттлинг повторной доставки (реализация — Redis)
type StateRepository interface {
	// IsProcessed проверяет, обрабатывалось ли событие
	IsProcessed(ctx context.Context, eventID string) (bool, error)
	// MarkProcessed помечает событие обработанным на ttl
	MarkProcessed(ctx context.Context, eventID string, ttl time.Duration) error
	// AllowDelivery атомарно проверяет и занимает слот доставки для
	// fingerprint-а алерта: true = доставлять, false = ещё действует
	// repeat_interval с прошлой доставки
	AllowDelivery(ctx context.Context, fingerprint string, repeatInterval time.Duration) (bool, error)
	// ClearThrottle сбрасывает троттлинг fingerprint-а (при resolved:
	// следующий firing доставляется сразу)
	ClearThrottle(ctx context.Context, fingerprint string) error
}
