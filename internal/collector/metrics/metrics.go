package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Собственные метрики collector-а. Регистрируются в default registry
// и отдаются через promhttp на /metrics — pipeline мониторит сам себя.
var (
	// ScrapesTotal количество scrape-попыток по целям
	ScrapesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vigil_scrapes_total",
		Help: "Total number of scrape attempts per target.",
	}, []string{"job", "instance"})

	// ScrapeFailuresTotal количество неудачных scrape-ов по целям
	ScrapeFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vigil_scrape_failures_total",
		Help: "Total number of failed scrapes per target.",
	}, []string{"job", "instance"})

	// SamplesAppendedTotal количество сэмплов, записанных в хранилище
	SamplesAppendedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vigil_samples_appended_total",
		Help: "Total number of samples appended to the in-memory storage.",
	})

	// SamplesOutOfOrderTotal количество отброшенных out-of-order сэмплов
	SamplesOutOfOrderTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vigil_samples_out_of_order_total",
		Help: "Total number of samples rejected as out of order.",
	})

	// SeriesCount текущее количество серий в хранилище
	SeriesCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vigil_storage_series",
		Help: "Current number of series in the in-memory storage.",
	})

	// RuleEvaluationsTotal количество вычислений правил
	RuleEvaluationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vigil_rule_evaluations_total",
		Help: "Total number of rule evaluations.",
	})

	// AlertsFiredTotal количество переходов алертов в firing
	AlertsFiredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vigil_alerts_fired_total",
		Help: "Total number of alerts that transitioned to firing.",
	}, []string{"alertname"})

	// AlertsResolvedTotal количество переходов алертов в resolved
	AlertsResolvedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vigil_alerts_resolved_total",
		Help: "Total number of alerts that resolved.",
	}, []string{"alertname"})
)
