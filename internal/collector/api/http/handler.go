package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/common/model"
	"go.uber.org/zap"

	"github.com/shestoi/vigil/internal/collector/rules"
	"github.com/shestoi/vigil/internal/collector/scrape"
	"github.com/shestoi/vigil/internal/collector/tsdb"
)

// Handler содержит HTTP-обработчики query API коллектора.
// Формат ответов повторяет Prometheus HTTP API v1:
// {"status":"success","data":...} / {"status":"error","errorType":...,"error":...}
type Handler struct {
	logger  *zap.Logger
	storage *tsdb.Storage
	manager *scrape.Manager
	engine  *rules.Engine
}

// NewHandler создаёт HTTP handler коллектора
func NewHandler(logger *zap.Logger, storage *tsdb.Storage, manager *scrape.Manager, engine *rules.Engine) *Handler {
	return &Handler{
		logger:  logger,
		storage: storage,
		manager: manager,
		engine:  engine,
	}
}

type apiResponse struct {
	Status    string `json:"status"`
	Data      any    `json:"data,omitempty"`
	ErrorType string `json:"errorType,omitempty"`
	Error     string `json:"error,omitempty"`
}

// vectorSample элемент результата instant-запроса.
// Value кодируется как [unix_seconds, "value"] — как в Prometheus API.
type vectorSample struct {
	Metric model.Metric `json:"metric"`
	Value  samplePair   `json:"value"`
}

type matrixSeries struct {
	Metric model.Metric `json:"metric"`
	Values []samplePair `json:"values"`
}

type samplePair struct {
	Timestamp time.Time
	Value     float64
}

// MarshalJSON кодирует пару как [unix_seconds, "value"]
func (p samplePair) MarshalJSON() ([]byte, error) {
	ts := float64(p.Timestamp.UnixMilli()) / 1000
	return json.Marshal([2]any{ts, model.SampleValue(p.Value).String()})
}

type queryData struct {
	ResultType string `json:"resultType"`
	Result     any    `json:"result"`
}

// GetQuery обрабатывает GET /api/v1/query?query=<selector>[&time=<ts>]
func (h *Handler) GetQuery(w http.ResponseWriter, r *http.Request) {
	sel, err := tsdb.ParseSelector(r.URL.Query().Get("query"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "bad_data", fmt.Sprintf("invalid query: %v", err))
		return
	}

	at := time.Now()
	if raw := r.URL.Query().Get("time"); raw != "" {
		at, err = parseTime(raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "bad_data", fmt.Sprintf("invalid time: %v", err))
			return
		}
	}

	points := h.storage.InstantQuery(sel, at)
	result := make([]vectorSample, 0, len(points))
	for _, p := range points {
		result = append(result, vectorSample{
			Metric: p.Metric,
			Value:  samplePair{Timestamp: p.Sample.Timestamp, Value: p.Sample.Value},
		})
	}

	h.writeSuccess(w, queryData{ResultType: "vector", Result: result})
}

// GetQueryRange обрабатывает GET /api/v1/query_range?query=&start=&end=&step=
func (h *Handler) GetQueryRange(w http.ResponseWriter, r *http.Request) {
	sel, err := tsdb.ParseSelector(r.URL.Query().Get("query"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "bad_data", fmt.Sprintf("invalid query: %v", err))
		return
	}

	start, err := parseTime(r.URL.Query().Get("start"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "bad_data", fmt.Sprintf("invalid start: %v", err))
		return
	}
	end, err := parseTime(r.URL.Query().Get("end"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "bad_data", fmt.Sprintf("invalid end: %v", err))
		return
	}
	step, err := parseStep(r.URL.Query().Get("step"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "bad_data", fmt.Sprintf("invalid step: %v", err))
		return
	}
	if end.Before(start) {
		h.writeError(w, http.StatusBadRequest, "bad_data", "end must not be before start")
		return
	}

	ranges := h.storage.RangeQuery(sel, start, end, step)
	result := make([]matrixSeries, 0, len(ranges))
	for _, sr := range ranges {
		values := make([]samplePair, 0, len(sr.Samples))
		for _, s := range sr.Samples {
			values = append(values, samplePair{Timestamp: s.Timestamp, Value: s.Value})
		}
		result = append(result, matrixSeries{Metric: sr.Metric, Values: values})
	}

	h.writeSuccess(w, queryData{ResultType: "matrix", Result: result})
}

// GetSeries обрабатывает GET /api/v1/series?match[]=<selector>
func (h *Handler) GetSeries(w http.ResponseWriter, r *http.Request) {
	matches := r.URL.Query()["match[]"]
	if len(matches) == 0 {
		h.writeError(w, http.StatusBadRequest, "bad_data", "at least one match[] parameter is required")
		return
	}

	// Дедупликация по fingerprint: селекторы могут пересекаться
	seen := make(map[model.Fingerprint]bool)
	result := make([]model.Metric, 0)
	for _, raw := range matches {
		sel, err := tsdb.ParseSelector(raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "bad_data", fmt.Sprintf("invalid match[]: %v", err))
			return
		}
		for _, metric := range h.storage.Series(sel) {
			fp := metric.Fingerprint()
			if seen[fp] {
				continue
			}
			seen[fp] = true
			result = append(result, metric)
		}
	}

	h.writeSuccess(w, result)
}

// GetTargets обрабатывает GET /api/v1/targets
func (h *Handler) GetTargets(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]any{"activeTargets": h.manager.Targets()})
}

// GetRules обрабатывает GET /api/v1/rules
func (h *Handler) GetRules(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]any{"rules": h.engine.Rules()})
}

// GetAlerts обрабатывает GET /api/v1/alerts
func (h *Handler) GetAlerts(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]any{"alerts": h.engine.ActiveAlerts()})
}

func (h *Handler) writeSuccess(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(apiResponse{Status: "success", Data: data}); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, code int, errorType, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(apiResponse{Status: "error", ErrorType: errorType, Error: message}); err != nil {
		h.logger.Error("failed to encode error response", zap.Error(err))
	}
}

// parseTime принимает unix seconds (в т.ч. дробные) или RFC3339
func parseTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, fmt.Errorf("timestamp is required")
	}
	if sec, err := strconv.ParseFloat(raw, 64); err == nil {
		return time.UnixMilli(int64(sec * 1000)), nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("cannot parse %q as unix seconds or RFC3339", raw)
	}
	return t, nil
}

// parseStep принимает duration ("30s") или количество секунд ("30")
func parseStep(raw string) (time.Duration, error) {
	if raw == "" {
		return 0, fmt.Errorf("step is required")
	}
	if sec, err := strconv.ParseFloat(raw, 64); err == nil {
		step := time.Duration(sec * float64(time.Second))
		if step <= 0 {
			return 0, fmt.Errorf("step must be positive")
		}
		return step, nil
	}
	step, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if step <= 0 {
		return 0, fmt.Errorf("step must be positive")
	}
	return step, nil
}
