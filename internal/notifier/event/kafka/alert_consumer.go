package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/shestoi/vigil/internal/notifier/metrics"
	"github.com/shestoi/vigil/internal/notifier/service"
)

// AlertEventConsumer обрабатывает события алертов из Kafka
type AlertEventConsumer struct {
	logger       *zap.Logger
	reader       *kafka.Reader
	service      *service.NotifierService
	dlqPublisher *DLQPublisher
	maxAttempts  int
	backoffBase  time.Duration
}

// NewAlertEventConsumer создаёт новый consumer событий алертов
func NewAlertEventConsumer(
	logger *zap.Logger,
	brokers []string,
	groupID, topic string,
	svc *service.NotifierService,
	dlqPublisher *DLQPublisher,
	maxAttempts int,
	backoffBase time.Duration,
) *AlertEventConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		GroupID:  groupID,
		Topic:    topic,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})

	return &AlertEventConsumer{
		logger:       logger,
		reader:       reader,
		service:      svc,
		dlqPublisher: dlqPublisher,
		maxAttempts:  maxAttempts,
		backoffBase:  backoffBase,
	}
}

// Start запускает consumer и начинает обработку сообщений.
// At-least-once семантика: FetchMessage + CommitMessages после успешной обработки.
func (c *AlertEventConsumer) Start(ctx context.Context) error {
	c.logger.Info("starting kafka consumer",
		zap.String("topic", c.reader.Config().Topic),
		zap.String("group_id", c.reader.Config().GroupID),
		zap.Int("max_retry_attempts", c.maxAttempts),
		zap.Duration("retry_backoff_base", c.backoffBase),
	)

	for {
		// FetchMessage вместо ReadMessage для ручного контроля commit
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer context cancelled, stopping")
				return nil
			}
			c.logger.Error("failed to fetch message from kafka",
				zap.Error(err),
			)
			continue
		}

		metrics.EventsConsumedTotal.Inc()
		shouldCommit := c.processMessage(ctx, m)

		// Коммитим offset только после терминального исхода
		if shouldCommit {
			if err := c.reader.CommitMessages(ctx, m); err != nil {
				c.logger.Error("failed to commit message offset",
					zap.Error(err),
					zap.String("topic", m.Topic),
					zap.Int("partition", m.Partition),
					zap.Int64("offset", m.Offset),
				)
				continue
			}

			c.logger.Debug("message offset committed",
				zap.String("topic", m.Topic),
				zap.Int("partition", m.Partition),
				zap.Int64("offset", m.Offset),
			)
		}
	}
}

// processMessage обрабатывает одно сообщение из Kafka.
// Возвращает true, если нужно закоммитить offset.
func (c *AlertEventConsumer) processMessage(ctx context.Context, m kafka.Message) bool {
	event, err := parseAlertEvent(m.Value)
	if err != nil {
		c.logger.Error("failed to parse alert event",
			zap.Error(err),
			zap.String("topic", m.Topic),
			zap.Int("partition", m.Partition),
			zap.Int64("offset", m.Offset),
		)
		// Ядовитое сообщение: в DLQ и коммитим
		if dlqErr := c.dlqPublisher.Publish(context.Background(), m, err, event.EventType, event.EventID, event.AlertName); dlqErr != nil {
			c.logger.Error("failed to publish to DLQ, not committing",
				zap.Error(dlqErr),
			)
			return false
		}
		return true
	}

	c.logger.Info("received alert event",
		zap.String("event_id", event.EventID),
		zap.String("event_type", event.EventType),
		zap.String("alertname", event.AlertName),
		zap.Int("partition", m.Partition),
		zap.Int64("offset", m.Offset),
	)

	success := c.handleWithRetry(ctx, event)

	if !success {
		// После исчерпания retry отправляем в DLQ и коммитим
		c.logger.Error("failed to handle alert event after all retries, sending to DLQ",
			zap.String("event_id", event.EventID),
			zap.String("alertname", event.AlertName),
			zap.Int("partition", m.Partition),
			zap.Int64("offset", m.Offset),
		)
		dlqErr := fmt.Errorf("exhausted all retry attempts")
		if err := c.dlqPublisher.Publish(context.Background(), m, dlqErr, event.EventType, event.EventID, event.AlertName); err != nil {
			c.logger.Error("failed to publish to DLQ, not committing",
				zap.Error(err),
			)
			return false
		}
		return true
	}

	return true
}

// handleWithRetry обрабатывает событие с экспоненциальным backoff.
// Возвращает true при успешной обработке, false при исчерпании попыток.
func (c *AlertEventConsumer) handleWithRetry(ctx context.Context, event service.AlertEvent) bool {
	var lastErr error

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		// Backoff: base, base*2, base*4 ...
		if attempt > 1 {
			backoff := c.backoffBase * time.Duration(1<<uint(attempt-2))
			c.logger.Info("retrying alert event",
				zap.String("event_id", event.EventID),
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", c.maxAttempts),
				zap.Duration("backoff", backoff),
			)

			select {
			case <-ctx.Done():
				return false
			case <-time.After(backoff):
			}
		}

		err := c.service.HandleAlertEvent(ctx, event)
		if err == nil {
			if attempt > 1 {
				c.logger.Info("alert event processed successfully after retry",
					zap.String("event_id", event.EventID),
					zap.Int("attempt", attempt),
				)
			}
			return true
		}

		lastErr = err
		c.logger.Warn("failed to handle alert event",
			zap.Error(err),
			zap.String("event_id", event.EventID),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", c.maxAttempts),
		)
	}

	c.logger.Error("exhausted all retry attempts",
		zap.Error(lastErr),
		zap.String("event_id", event.EventID),
		zap.Int("max_attempts", c.maxAttempts),
	)

	return false
}

// alertEventPayload wire-формат события алерта (JSON из топика)
type alertEventPayload struct {
	EventID      string            `json:"event_id"`
	EventType    string            `json:"event_type"`
	EventVersion int               `json:"event_version"`
	OccurredAt   time.Time         `json:"occurred_at"`
	AlertName    string            `json:"alertname"`
	Status       string            `json:"status"`
	Labels       map[string]string `json:"labels"`
	Annotations  map[string]string `json:"annotations"`
	Value        float64           `json:"value"`
	StartsAt     time.Time         `json:"starts_at"`
	EndsAt       time.Time         `json:"ends_at"`
}

// parseAlertEvent разбирает и валидирует событие из Kafka.
// При ошибке возвращает частично заполненное событие — для контекста в DLQ.
func parseAlertEvent(data []byte) (service.AlertEvent, error) {
	var payload alertEventPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return service.AlertEvent{}, err
	}

	event := service.AlertEvent{
		EventID:      payload.EventID,
		EventType:    payload.EventType,
		EventVersion: payload.EventVersion,
		OccurredAt:   payload.OccurredAt,
		AlertName:    payload.AlertName,
		Status:       payload.Status,
		Labels:       payload.Labels,
		Annotations:  payload.Annotations,
		Value:        payload.Value,
		StartsAt:     payload.StartsAt,
		EndsAt:       payload.EndsAt,
	}

	if event.EventID == "" {
		return event, &ParseError{Field: "event_id", Message: "event_id is required"}
	}
	if event.EventType != service.EventTypeFiring && event.EventType != service.EventTypeResolved {
		return event, &ParseError{Field: "event_type", Message: fmt.Sprintf("unknown event_type %q", event.EventType)}
	}
	if event.AlertName == "" {
		return event, &ParseError{Field: "alertname", Message: "alertname is required"}
	}

	return event, nil
}

// Close закрывает Kafka reader
func (c *AlertEventConsumer) Close() error {
	c.logger.Info("closing kafka consumer")
	return c.reader.Close()
}
