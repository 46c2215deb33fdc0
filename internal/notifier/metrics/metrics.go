package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Собственные метрики notifier-а, отдаются на /metrics
var (
	// EventsConsumedTotal количество событий, прочитанных из Kafka
	EventsConsumedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vigil_notifier_events_consumed_total",
		Help: "Total alert events consumed from Kafka.",
	})

	// EventsDuplicateTotal количество отброшенных дубликатов
	EventsDuplicateTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vigil_notifier_events_duplicate_total",
		Help: "Total alert events skipped as already processed.",
	})

	// AlertsDeliveredTotal доставленные уведомления по каналам
	AlertsDeliveredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vigil_notifier_alerts_delivered_total",
		Help: "Total notifications delivered, by channel.",
	}, []string{"channel"})

	// DeliveryFailuresTotal ошибки доставки по каналам
	DeliveryFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vigil_notifier_delivery_failures_total",
		Help: "Total notification delivery failures, by channel.",
	}, []string{"channel"})

	// AlertsSilencedTotal алерты, подавленные активным silence
	AlertsSilencedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vigil_notifier_alerts_silenced_total",
		Help: "Total alerts suppressed by an active silence.",
	})

	// AlertsThrottledTotal алерты, не доставленные из-за repeat_interval
	AlertsThrottledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vigil_notifier_alerts_throttled_total",
		Help: "Total alerts suppressed by the repeat interval.",
	})

	// DLQMessagesTotal сообщения, отправленные в DLQ
	DLQMessagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vigil_notifier_dlq_messages_total",
		Help: "Total messages published to the dead letter queue.",
	})
)
