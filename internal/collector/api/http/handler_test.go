package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/common/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shestoi/vigil/internal/collector/rules"
	"github.com/shestoi/vigil/internal/collector/scrape"
	"github.com/shestoi/vigil/internal/collector/tsdb"
)

func newTestRouter(t *testing.T, storage *tsdb.Storage, ruleList []rules.Rule) http.Handler {
	t.Helper()
	logger := zap.NewNop()
	manager := scrape.NewManager(logger, storage, scrape.NewScraper(time.Second), []scrape.JobConfig{
		{JobName: "node", Targets: []string{"localhost:9100"}},
	})
	engine := rules.NewEngine(logger, storage, ruleList, nil, 30*time.Second)
	handler := NewHandler(logger, storage, manager, engine)
	return NewRouter(handler, nil, nil)
}

func seedStorage(t *testing.T, storage *tsdb.Storage, now time.Time) {
	t.Helper()
	m := model.Metric{
		model.MetricNameLabel: "http_requests_total",
		"job":                 "api",
		"code":                "200",
	}
	require.NoError(t, storage.Append(m, now.Add(-time.Minute), 10))
	require.NoError(t, storage.Append(m, now, 15))
}

type envelope struct {
	Status    string          `json:"status"`
	Data      json.RawMessage `json:"data"`
	ErrorType string          `json:"errorType"`
	Error     string          `json:"error"`
}

func doRequest(t *testing.T, router http.Handler, url string) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, url, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return rec.Code, env
}

func TestHandler_Query(t *testing.T) {
	storage := tsdb.NewStorage(2*time.Hour, 100)
	now := time.Now().Truncate(time.Second)
	seedStorage(t, storage, now)
	router := newTestRouter(t, storage, nil)

	url := fmt.Sprintf(`/api/v1/query?query=http_requests_total{job="api"}&time=%d`, now.Unix())
	code, env := doRequest(t, router, url)

	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "success", env.Status)

	var data struct {
		ResultType string `json:"resultType"`
		Result     []struct {
			Metric map[string]string `json:"metric"`
			Value  [2]any            `json:"value"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "vector", data.ResultType)
	require.Len(t, data.Result, 1)
	assert.Equal(t, "http_requests_total", data.Result[0].Metric["__name__"])
	assert.Equal(t, "15", data.Result[0].Value[1])
}

func TestHandler_Query_InvalidSelector(t *testing.T) {
	storage := tsdb.NewStorage(2*time.Hour, 100)
	router := newTestRouter(t, storage, nil)

	code, env := doRequest(t, router, `/api/v1/query?query={job=`)

	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "error", env.Status)
	assert.Equal(t, "bad_data", env.ErrorType)
	assert.NotEmpty(t, env.Error)
}

func TestHandler_QueryRange(t *testing.T) {
	storage := tsdb.NewStorage(2*time.Hour, 100)
	now := time.Now().Truncate(time.Second)
	seedStorage(t, storage, now)
	router := newTestRouter(t, storage, nil)

	url := fmt.Sprintf(`/api/v1/query_range?query=http_requests_total&start=%d&end=%d&step=30s`,
		now.Add(-time.Minute).Unix(), now.Unix())
	code, env := doRequest(t, router, url)

	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "success", env.Status)

	var data struct {
		ResultType string `json:"resultType"`
		Result     []struct {
			Metric map[string]string `json:"metric"`
			Values [][2]any          `json:"values"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "matrix", data.ResultType)
	require.Len(t, data.Result, 1)
	// Три шага: -60s, -30s, 0; на каждом серия имеет актуальный сэмпл
	assert.Len(t, data.Result[0].Values, 3)
}

func TestHandler_QueryRange_MissingParams(t *testing.T) {
	storage := tsdb.NewStorage(2*time.Hour, 100)
	router := newTestRouter(t, storage, nil)

	code, env := doRequest(t, router, `/api/v1/query_range?query=up`)

	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "bad_data", env.ErrorType)
}

func TestHandler_Series(t *testing.T) {
	storage := tsdb.NewStorage(2*time.Hour, 100)
	now := time.Now()
	seedStorage(t, storage, now)
	router := newTestRouter(t, storage, nil)

	// Два пересекающихся селектора: серия не должна задвоиться
	code, env := doRequest(t, router,
		`/api/v1/series?match[]=http_requests_total&match[]=http_requests_total{job="api"}`)

	require.Equal(t, http.StatusOK, code)
	var result []map[string]string
	require.NoError(t, json.Unmarshal(env.Data, &result))
	require.Len(t, result, 1)
	assert.Equal(t, "api", result[0]["job"])
}

func TestHandler_Series_NoMatch(t *testing.T) {
	storage := tsdb.NewStorage(2*time.Hour, 100)
	router := newTestRouter(t, storage, nil)

	code, env := doRequest(t, router, `/api/v1/series`)

	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "bad_data", env.ErrorType)
}

func TestHandler_Targets(t *testing.T) {
	storage := tsdb.NewStorage(2*time.Hour, 100)
	router := newTestRouter(t, storage, nil)

	code, env := doRequest(t, router, "/api/v1/targets")

	require.Equal(t, http.StatusOK, code)
	var data struct {
		ActiveTargets []struct {
			Job      string `json:"job"`
			Instance string `json:"instance"`
		} `json:"activeTargets"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.Len(t, data.ActiveTargets, 1)
	assert.Equal(t, "node", data.ActiveTargets[0].Job)
	assert.Equal(t, "localhost:9100", data.ActiveTargets[0].Instance)
}

func TestHandler_RulesAndAlerts(t *testing.T) {
	storage := tsdb.NewStorage(2*time.Hour, 100)
	expr, err := rules.ParseExpr("up < 1")
	require.NoError(t, err)
	rule := rules.Rule{Name: "InstanceDown", Expr: expr, For: time.Minute}
	router := newTestRouter(t, storage, []rules.Rule{rule})

	code, env := doRequest(t, router, "/api/v1/rules")
	require.Equal(t, http.StatusOK, code)
	var rulesData struct {
		Rules []struct {
			Name string `json:"name"`
			Expr string `json:"expr"`
		} `json:"rules"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &rulesData))
	require.Len(t, rulesData.Rules, 1)
	assert.Equal(t, "InstanceDown", rulesData.Rules[0].Name)
	assert.Equal(t, "up < 1", rulesData.Rules[0].Expr)

	code, env = doRequest(t, router, "/api/v1/alerts")
	require.Equal(t, http.StatusOK, code)
	var alertsData struct {
		Alerts []json.RawMessage `json:"alerts"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &alertsData))
	assert.Empty(t, alertsData.Alerts)
}

func TestHandler_Health(t *testing.T) {
	storage := tsdb.NewStorage(2*time.Hour, 100)
	router := newTestRouter(t, storage, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

func TestHandler_HealthReadiness(t *testing.T) {
	storage := tsdb.NewStorage(2*time.Hour, 100)
	logger := zap.NewNop()
	manager := scrape.NewManager(logger, storage, scrape.NewScraper(time.Second), []scrape.JobConfig{
		{JobName: "node", Targets: []string{"localhost:9100"}},
	})
	engine := rules.NewEngine(logger, storage, nil, nil, 30*time.Second)
	handler := NewHandler(logger, storage, manager, engine)

	// Readiness как в app: флаг взводится после старта фоновых циклов
	ready := &atomic.Bool{}
	router := NewRouter(handler, ready.Load, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	ready.Store(true)
	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
