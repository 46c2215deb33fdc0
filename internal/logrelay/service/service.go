package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/shestoi/vigil/internal/logrelay/metrics"
	"github.com/shestoi/vigil/internal/logrelay/repository"
)

// ErrBatchTooLarge возвращается, когда пачка превышает лимит ingest-а
var ErrBatchTooLarge = errors.New("ingest batch exceeds max size")

// LogRelayService нормализует записи FluentBit и сохраняет их в хранилище
type LogRelayService struct {
	logger       *zap.Logger
	repo         repository.LogRepository
	maxBatchSize int
	defaultLimit int
	maxLimit     int
}

// NewLogRelayService создаёт новый экземпляр LogRelayService
func NewLogRelayService(
	logger *zap.Logger,
	repo repository.LogRepository,
	maxBatchSize int,
	defaultLimit int,
	maxLimit int,
) *LogRelayService {
	return &LogRelayService{
		logger:       logger,
		repo:         repo,
		maxBatchSize: maxBatchSize,
		defaultLimit: defaultLimit,
		maxLimit:     maxLimit,
	}
}

// Ingest нормализует и сохраняет пачку сырых записей FluentBit.
// Возвращает количество принятых записей. Записи без message отбрасываются,
// но не валят пачку.
func (s *LogRelayService) Ingest(ctx context.Context, raw []map[string]interface{}) (int, error) {
	if len(raw) > s.maxBatchSize {
		metrics.BatchesRejectedTotal.Inc()
		return 0, fmt.Errorf("%w: %d records, limit %d", ErrBatchTooLarge, len(raw), s.maxBatchSize)
	}

	now := time.Now().UTC()
	records := make([]repository.LogRecord, 0, len(raw))
	dropped := 0
	for _, item := range raw {
		record, ok := NormalizeRecord(item, now)
		if !ok {
			dropped++
			continue
		}
		records = append(records, record)
	}
	if dropped > 0 {
		metrics.RecordsDroppedTotal.Add(float64(dropped))
		s.logger.Warn("dropped malformed log records",
			zap.Int("dropped", dropped),
			zap.Int("batch_size", len(raw)),
		)
	}

	if len(records) == 0 {
		return 0, nil
	}

	if err := s.repo.InsertBatch(ctx, records); err != nil {
		metrics.InsertFailuresTotal.Inc()
		return 0, err
	}

	metrics.RecordsIngestedTotal.Add(float64(len(records)))
	return len(records), nil
}

// Query возвращает записи по фильтру. Limit ограничивается maxLimit,
// нулевой limit заменяется на defaultLimit.
func (s *LogRelayService) Query(ctx context.Context, filter repository.QueryFilter) ([]repository.LogRecord, error) {
	if filter.Limit <= 0 {
		filter.Limit = s.defaultLimit
	}
	if filter.Limit > s.maxLimit {
		filter.Limit = s.maxLimit
	}
	return s.repo.Query(ctx, filter)
}

// NormalizeRecord преобразует сырую запись FluentBit (HTTP output, json формат)
// в LogRecord. Поле date содержит epoch секунды (float), kubernetes filter
// добавляет вложенные метаданные pod-а. Запись без message отбрасывается.
func NormalizeRecord(raw map[string]interface{}, now time.Time) (repository.LogRecord, bool) {
	record := repository.LogRecord{
		Timestamp: now,
		Level:     "info",
		Service:   "unknown",
		Fields:    map[string]string{},
	}

	consumed := map[string]bool{
		"date": true, "level": true, "severity": true,
		"message": true, "msg": true, "log": true,
		"trace_id": true, "service": true, "kubernetes": true,
	}

	if date, ok := raw["date"].(float64); ok && date > 0 {
		sec := int64(date)
		nsec := int64((date - float64(sec)) * 1e9)
		record.Timestamp = time.Unix(sec, nsec).UTC()
	}

	if level := stringField(raw, "level", "severity"); level != "" {
		record.Level = strings.ToLower(level)
	}

	record.Message = stringField(raw, "message", "msg", "log")
	if record.Message == "" {
		return repository.LogRecord{}, false
	}

	if traceID, ok := raw["trace_id"].(string); ok {
		record.TraceID = traceID
	}
	if service, ok := raw["service"].(string); ok && service != "" {
		record.Service = service
	}

	// Метаданные kubernetes filter-а
	if k8s, ok := raw["kubernetes"].(map[string]interface{}); ok {
		if ns, ok := k8s["namespace_name"].(string); ok {
			record.Namespace = ns
		}
		if pod, ok := k8s["pod_name"].(string); ok {
			record.Pod = pod
		}
		if node, ok := k8s["host"].(string); ok {
			record.Node = node
		}
		// Имя сервиса: label app, иначе имя контейнера
		if labels, ok := k8s["labels"].(map[string]interface{}); ok {
			if app, ok := labels["app"].(string); ok && app != "" {
				record.Service = app
			}
		}
		if record.Service == "unknown" {
			if container, ok := k8s["container_name"].(string); ok && container != "" {
				record.Service = container
			}
		}
	}

	// Остальные поля сохраняем строками, чтобы не терять контекст
	for key, value := range raw {
		if consumed[key] {
			continue
		}
		record.Fields[key] = fmt.Sprint(value)
	}
	if len(record.Fields) == 0 {
		record.Fields = nil
	}

	return record, true
}

// stringField возвращает первое непустое строковое поле из списка ключей
func stringField(raw map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		if value, ok := raw[key].(string); ok && value != "" {
			return value
		}
	}
	return ""
}
