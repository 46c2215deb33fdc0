package httpapi

import (
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	platformhealth "github.com/shestoi/vigil/platform/health/http"
	platformobservability "github.com/shestoi/vigil/platform/observability"
)

// NewRouter создаёт HTTP роутер logrelay: ingest от FluentBit, запросы логов,
// health и self-метрики
func NewRouter(handler *Handler, readiness func() bool, logger *zap.Logger) chi.Router {
	router := chi.NewRouter()

	if logger != nil {
		router.Use(platformobservability.HTTPMiddleware("logrelay", logger))
	}

	router.Post("/ingest", handler.PostIngest)
	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/logs", handler.GetLogs)
	})

	router.Get("/health", platformhealth.Handler(readiness))
	router.Handle("/metrics", promhttp.Handler())

	return router
}
