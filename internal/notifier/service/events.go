package service

import (
	"time"

	"github.com/prometheus/common/model"
)

// Типы событий алертов (входящие из Kafka)
const (
	EventTypeFiring   = "alert.firing"
	EventTypeResolved = "alert.resolved"
)

// AlertEvent событие перехода алерта (входящее из Kafka или webhook ingest)
type AlertEvent struct {
	EventID      string
	EventType    string
	EventVersion int
	OccurredAt   time.Time
	AlertName    string
	Status       string
	Labels       map[string]string
	Annotations  map[string]string
	Value        float64
	StartsAt     time.Time
	EndsAt       time.Time
}

// Fingerprint идентификатор алерта по полному набору лейблов.
// Один и тот же алерт (имя + лейблы) даёт один fingerprint независимо
// от event_id — по нему троттлится повторная доставка.
func (e AlertEvent) Fingerprint() string {
	ls := make(model.LabelSet, len(e.Labels))
	for k, v := range e.Labels {
		ls[model.LabelName(k)] = model.LabelValue(v)
	}
	return ls.Fingerprint().String()
}
