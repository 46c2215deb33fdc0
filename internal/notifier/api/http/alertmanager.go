package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/shestoi/vigil/internal/notifier/service"
)

// Alertmanager webhook payload (Prometheus Alertmanager API v4)
// https://prometheus.io/docs/alerting/latest/configuration/#webhook_config
type alertmanagerPayload struct {
	Version           string            `json:"version"`
	GroupKey          string            `json:"groupKey"`
	Status            string            `json:"status"` // "firing" | "resolved"
	Receiver          string            `json:"receiver"`
	GroupLabels       map[string]string `json:"groupLabels"`
	CommonLabels      map[string]string `json:"commonLabels"`
	CommonAnnotations map[string]string `json:"commonAnnotations"`
	ExternalURL       string            `json:"externalURL"`
	Alerts            []alertItem       `json:"alerts"`
}

type alertItem struct {
	Status       string            `json:"status"`
	Labels       map[string]string `json:"labels"`
	Annotations  map[string]string `json:"annotations"`
	StartsAt     time.Time         `json:"startsAt"`
	EndsAt       time.Time         `json:"endsAt"`
	GeneratorURL string            `json:"generatorURL"`
	Fingerprint  string            `json:"fingerprint"`
}

// AlertmanagerHandler принимает webhook от стороннего Alertmanager
// и прогоняет алерты через общий пайплайн (silences, троттлинг, доставка)
type AlertmanagerHandler struct {
	logger  *zap.Logger
	service *service.NotifierService
}

// NewAlertmanagerHandler создаёт обработчик webhook алертов
func NewAlertmanagerHandler(logger *zap.Logger, svc *service.NotifierService) *AlertmanagerHandler {
	return &AlertmanagerHandler{
		logger:  logger,
		service: svc,
	}
}

// ServeHTTP обрабатывает POST /alerts: каждый алерт из payload-а проходит
// тот же путь, что и событие из Kafka
func (h *AlertmanagerHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var payload alertmanagerPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.logger.Error("alertmanager webhook: decode failed", zap.Error(err))
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	accepted := 0
	for _, item := range payload.Alerts {
		event, err := toAlertEvent(item)
		if err != nil {
			h.logger.Warn("alertmanager webhook: skipping malformed alert",
				zap.Error(err),
				zap.String("fingerprint", item.Fingerprint),
			)
			continue
		}
		if err := h.service.HandleAlertEvent(r.Context(), event); err != nil {
			h.logger.Error("alertmanager webhook: failed to handle alert",
				zap.Error(err),
				zap.String("alertname", event.AlertName),
			)
			http.Error(w, "failed to process alerts", http.StatusInternalServerError)
			return
		}
		accepted++
	}

	h.logger.Info("alertmanager webhook processed",
		zap.String("status", payload.Status),
		zap.Int("alerts", len(payload.Alerts)),
		zap.Int("accepted", accepted),
	)
	w.WriteHeader(http.StatusOK)
}

// toAlertEvent преобразует алерт из webhook payload в общее событие.
// event_id детерминирован (fingerprint + статус + starts_at), чтобы
// ретрансмиты Alertmanager-а отсекались дедупликацией.
func toAlertEvent(item alertItem) (service.AlertEvent, error) {
	alertname := item.Labels["alertname"]
	if alertname == "" {
		return service.AlertEvent{}, fmt.Errorf("alertname label is required")
	}

	eventType := service.EventTypeFiring
	if item.Status == "resolved" {
		eventType = service.EventTypeResolved
	}

	fingerprint := item.Fingerprint
	if fingerprint == "" {
		fingerprint = service.AlertEvent{Labels: item.Labels}.Fingerprint()
	}

	return service.AlertEvent{
		EventID:      fmt.Sprintf("am:%s:%s:%d", fingerprint, item.Status, item.StartsAt.Unix()),
		EventType:    eventType,
		EventVersion: 1,
		OccurredAt:   time.Now().UTC(),
		AlertName:    alertname,
		Status:       item.Status,
		Labels:       item.Labels,
		Annotations:  item.Annotations,
		StartsAt:     item.StartsAt,
		EndsAt:       item.EndsAt,
	}, nil
}
