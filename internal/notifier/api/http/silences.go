package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/shestoi/vigil/internal/notifier/repository"
	"github.com/shestoi/vigil/internal/notifier/service"
)

// Handler содержит HTTP-обработчики API notifier-а (silences, история)
type Handler struct {
	logger  *zap.Logger
	service *service.NotifierService
}

// NewHandler создаёт HTTP handler
func NewHandler(logger *zap.Logger, svc *service.NotifierService) *Handler {
	return &Handler{
		logger:  logger,
		service: svc,
	}
}

// silenceRequest тело POST /api/v1/silences
type silenceRequest struct {
	Matchers  []repository.SilenceMatcher `json:"matchers"`
	StartsAt  *time.Time                  `json:"starts_at,omitempty"`
	EndsAt    time.Time                   `json:"ends_at"`
	CreatedBy string                      `json:"created_by,omitempty"`
	Comment   string                      `json:"comment,omitempty"`
}

// PostSilences обрабатывает POST /api/v1/silences - создание silence
func (h *Handler) PostSilences(w http.ResponseWriter, r *http.Request) {
	var req silenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}

	input := service.CreateSilenceInput{
		Matchers:  req.Matchers,
		EndsAt:    req.EndsAt,
		CreatedBy: req.CreatedBy,
		Comment:   req.Comment,
	}
	if req.StartsAt != nil {
		input.StartsAt = *req.StartsAt
	}

	silence, err := h.service.CreateSilence(r.Context(), input)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(silence); err != nil {
		h.logger.Error("failed to encode silence response", zap.Error(err))
	}
}

// GetSilences обрабатывает GET /api/v1/silences[?active=true]
func (h *Handler) GetSilences(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"

	silences, err := h.service.ListSilences(r.Context(), activeOnly)
	if err != nil {
		h.logger.Error("failed to list silences", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(silences); err != nil {
		h.logger.Error("failed to encode silences response", zap.Error(err))
	}
}

// DeleteSilence обрабатывает DELETE /api/v1/silences/{id}
func (h *Handler) DeleteSilence(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.service.DeleteSilence(r.Context(), id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			http.Error(w, "silence not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to delete silence", zap.Error(err), zap.String("silence_id", id))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetHistory обрабатывает GET /api/v1/history?alertname=&status=&limit=
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	filter := repository.HistoryFilter{
		AlertName: r.URL.Query().Get("alertname"),
		Status:    r.URL.Query().Get("status"),
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		filter.Limit = limit
	}

	records, err := h.service.History(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list alert history", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(records); err != nil {
		h.logger.Error("failed to encode history response", zap.Error(err))
	}
}
