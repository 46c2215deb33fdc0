package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/shestoi/vigil/internal/logrelay/repository"
	"github.com/shestoi/vigil/internal/logrelay/service"
)

// Handler содержит HTTP-обработчики LogRelay Service
type Handler struct {
	logger  *zap.Logger
	service *service.LogRelayService
}

// NewHandler создаёт HTTP handler
func NewHandler(logger *zap.Logger, svc *service.LogRelayService) *Handler {
	return &Handler{
		logger:  logger,
		service: svc,
	}
}

// ingestResponse тело ответа POST /ingest
type ingestResponse struct {
	Accepted int `json:"accepted"`
}

// PostIngest обрабатывает POST /ingest - пачку записей от FluentBit HTTP output.
// Тело запроса - JSON массив записей с полем date (epoch секунды).
func (h *Handler) PostIngest(w http.ResponseWriter, r *http.Request) {
	var raw []map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		http.Error(w, "body must be a JSON array of records", http.StatusBadRequest)
		return
	}

	accepted, err := h.service.Ingest(r.Context(), raw)
	if err != nil {
		if errors.Is(err, service.ErrBatchTooLarge) {
			http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
			return
		}
		h.logger.Error("failed to ingest log batch", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(ingestResponse{Accepted: accepted}); err != nil {
		h.logger.Error("failed to encode ingest response", zap.Error(err))
	}
}

// GetLogs обрабатывает GET /api/v1/logs?service=&namespace=&level=&since=&until=&limit=
func (h *Handler) GetLogs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := repository.QueryFilter{
		Service:   query.Get("service"),
		Namespace: query.Get("namespace"),
		Level:     query.Get("level"),
	}

	var err error
	if filter.Since, err = parseTime(query.Get("since")); err != nil {
		http.Error(w, "invalid since: "+err.Error(), http.StatusBadRequest)
		return
	}
	if filter.Until, err = parseTime(query.Get("until")); err != nil {
		http.Error(w, "invalid until: "+err.Error(), http.StatusBadRequest)
		return
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		filter.Limit = limit
	}

	records, err := h.service.Query(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to query logs", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(records); err != nil {
		h.logger.Error("failed to encode logs response", zap.Error(err))
	}
}

// parseTime принимает unix секунды или RFC3339; пустая строка = нулевое время
func parseTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if sec, err := strconv.ParseFloat(raw, 64); err == nil {
		s := int64(sec)
		ns := int64((sec - float64(s)) * 1e9)
		return time.Unix(s, ns).UTC(), nil
	}
	return time.Parse(time.RFC3339, raw)
}
