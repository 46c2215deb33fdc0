package httpapi

import (
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	platformhealth "github.com/shestoi/vigil/platform/health/http"
	platformobservability "github.com/shestoi/vigil/platform/observability"
)

// NewRouter создаёт HTTP роутер коллектора: query API, статусные endpoint-ы,
// health и self-метрики.
// readiness - функция готовности сервиса (nil = всегда готов).
// logger используется для observability HTTP middleware (trace_id в логах).
func NewRouter(handler *Handler, readiness func() bool, logger *zap.Logger) chi.Router {
	router := chi.NewRouter()

	if logger != nil {
		router.Use(platformobservability.HTTPMiddleware("collector", logger))
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/query", handler.GetQuery)
		r.Get("/query_range", handler.GetQueryRange)
		r.Get("/series", handler.GetSeries)
		r.Get("/targets", handler.GetTargets)
		r.Get("/rules", handler.GetRules)
		r.Get("/alerts", handler.GetAlerts)
	})

	router.Get("/health", platformhealth.Handler(readiness))

	// Собственные метрики коллектора в exposition-формате
	router.Handle("/metrics", promhttp.Handler())

	return router
}
