package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/shestoi/vigil/internal/notifier/repository"
	"github.com/shestoi/vigil/internal/notifier/repository/memory"
	"github.com/shestoi/vigil/internal/notifier/service"
	"github.com/shestoi/vigil/internal/notifier/templates"
)

type recordingSender struct {
	mu       sync.Mutex
	messages []string
}

func (s *recordingSender) Send(ctx context.Context, chatID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, text)
	return nil
}

func newTestService(t *testing.T) (*service.NotifierService, *recordingSender) {
	t.Helper()
	logger := zap.NewNop()
	repo := memory.NewRepository()
	state := memory.NewStateRepository()
	sender := &recordingSender{}

	renderer, err := templates.NewRenderer(logger, "")
	require.NoError(t, err)

	svc := service.NewNotifierService(logger, repo, repo, state, sender, "chat-1", nil, renderer,
		time.Hour, time.Hour)
	return svc, sender
}

func newTestRouter(t *testing.T, apiKeyHash string) (http.Handler, *recordingSender) {
	t.Helper()
	svc, sender := newTestService(t)
	logger := zap.NewNop()
	handler := NewHandler(logger, svc)
	alertmanagerHandler := NewAlertmanagerHandler(logger, svc)
	return NewRouter(handler, alertmanagerHandler, apiKeyHash, nil, nil), sender
}

func TestRouter_AlertmanagerWebhook(t *testing.T) {
	router, sender := newTestRouter(t, "")

	payload := `{
		"version": "4",
		"status": "firing",
		"receiver": "vigil",
		"alerts": [{
			"status": "firing",
			"labels": {"alertname": "KubePodCrashLooping", "namespace": "prod"},
			"annotations": {"summary": "pod is crash looping"},
			"startsAt": "2026-08-23T10:00:00Z",
			"fingerprint": "abc123"
		}]
	}`

	req := httptest.NewRequest(http.MethodPost, "/alerts", bytes.NewBufferString(payload))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, sender.messages, 1)
	assert.Contains(t, sender.messages[0], "KubePodCrashLooping")

	// Ретрансмит того же алерта отсекается дедупликацией
	req = httptest.NewRequest(http.MethodPost, "/alerts", bytes.NewBufferString(payload))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, sender.messages, 1)
}

func TestRouter_AlertmanagerWebhook_BadJSON(t *testing.T) {
	router, _ := newTestRouter(t, "")

	req := httptest.NewRequest(http.MethodPost, "/alerts", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_SilencesCRUD(t *testing.T) {
	router, _ := newTestRouter(t, "")

	body := fmt.Sprintf(`{
		"matchers": [{"name": "job", "value": "api"}],
		"ends_at": %q,
		"comment": "deploy window"
	}`, time.Now().Add(time.Hour).Format(time.RFC3339))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/silences", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var created repository.Silence
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "deploy window", created.Comment)

	// Список
	req = httptest.NewRequest(http.MethodGet, "/api/v1/silences?active=true", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var silences []repository.Silence
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &silences))
	require.Len(t, silences, 1)

	// Удаление
	req = httptest.NewRequest(http.MethodDelete, "/api/v1/silences/"+created.ID, nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// Повторное удаление — 404
	req = httptest.NewRequest(http.MethodDelete, "/api/v1/silences/"+created.ID, nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_SilencesValidation(t *testing.T) {
	router, _ := newTestRouter(t, "")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/silences",
		bytes.NewBufferString(`{"matchers": [], "ends_at": "2030-01-01T00:00:00Z"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_APIKeyAuth(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("secret-key"), bcrypt.DefaultCost)
	require.NoError(t, err)
	router, _ := newTestRouter(t, string(hash))

	body := fmt.Sprintf(`{
		"matchers": [{"name": "job", "value": "api"}],
		"ends_at": %q
	}`, time.Now().Add(time.Hour).Format(time.RFC3339))

	// Без ключа — 401
	req := httptest.NewRequest(http.MethodPost, "/api/v1/silences", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// С неверным ключом — 401
	req = httptest.NewRequest(http.MethodPost, "/api/v1/silences", bytes.NewBufferString(body))
	req.Header.Set("x-api-key", "wrong")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// С верным ключом — создаётся
	req = httptest.NewRequest(http.MethodPost, "/api/v1/silences", bytes.NewBufferString(body))
	req.Header.Set("x-api-key", "secret-key")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusCreated, rec.Code)

	// GET не требует ключа
	req = httptest.NewRequest(http.MethodGet, "/api/v1/silences", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_History(t *testing.T) {
	svc, _ := newTestService(t)
	logger := zap.NewNop()
	handler := NewHandler(logger, svc)
	alertmanagerHandler := NewAlertmanagerHandler(logger, svc)
	router := NewRouter(handler, alertmanagerHandler, "", nil, nil)

	// Загоняем событие через webhook, чтобы появилась запись истории
	payload := `{
		"version": "4",
		"status": "firing",
		"alerts": [{
			"status": "firing",
			"labels": {"alertname": "InstanceDown", "job": "node"},
			"annotations": {},
			"startsAt": "2026-08-23T10:00:00Z",
			"fingerprint": "fp1"
		}]
	}`
	req := httptest.NewRequest(http.MethodPost, "/alerts", bytes.NewBufferString(payload))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/history?alertname=InstanceDown", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var records []repository.AlertRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	require.Len(t, records, 1)
	assert.Equal(t, "InstanceDown", records[0].AlertName)
	assert.Equal(t, repository.OutcomeDelivered, records[0].Outcome)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/history?limit=abc", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_Health(t *testing.T) {
	router, _ := newTestRouter(t, "")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
