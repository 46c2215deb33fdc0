package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Self-метрики LogRelay Service, отдаются на /metrics
var (
	// RecordsIngestedTotal - количество принятых и сохранённых записей логов
	RecordsIngestedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vigil_logrelay_records_ingested_total",
		Help: "Total number of log records ingested and stored",
	})

	// RecordsDroppedTotal - количество записей, отброшенных при нормализации
	RecordsDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vigil_logrelay_records_dropped_total",
		Help: "Total number of log records dropped during normalization",
	})

	// BatchesRejectedTotal - количество отклонённых пачек (превышен лимит размера)
	BatchesRejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vigil_logrelay_batches_rejected_total",
		Help: "Total number of ingest batches rejected due to size limit",
	})

	// InsertFailuresTotal - количество неудачных вставок в хранилище
	InsertFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vigil_logrelay_insert_failures_total",
		Help: "Total number of failed storage inserts",
	})
)
