package httpapi

import (
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/shestoi/vigil/internal/notifier/api/http/middleware"
	platformhealth "github.com/shestoi/vigil/platform/health/http"
	platformobservability "github.com/shestoi/vigil/platform/observability"
)

// NewRouter создаёт HTTP роутер notifier-а: webhook ingest, silences CRUD,
// история, health и self-метрики.
// apiKeyHash защищает мутирующие endpoint-ы (пусто = auth выключен).
func NewRouter(handler *Handler, alertmanagerHandler *AlertmanagerHandler, apiKeyHash string, readiness func() bool, logger *zap.Logger) chi.Router {
	router := chi.NewRouter()

	if logger != nil {
		router.Use(platformobservability.HTTPMiddleware("notifier", logger))
	}
	authLogger := logger
	if authLogger == nil {
		authLogger = zap.NewNop()
	}

	// Приём webhook от стороннего Alertmanager
	router.Post("/alerts", alertmanagerHandler.ServeHTTP)

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/silences", handler.GetSilences)
		r.Get("/history", handler.GetHistory)

		// Мутирующие endpoint-ы за api key
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAPIKey(authLogger, apiKeyHash))
			r.Post("/silences", handler.PostSilences)
			r.Delete("/silences/{id}", handler.DeleteSilence)
		})
	})

	router.Get("/health", platformhealth.Handler(readiness))
	router.Handle("/metrics", promhttp.Handler())

	return router
}
