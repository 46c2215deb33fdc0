package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/shestoi/vigil/internal/collector/rules"
)

// AlertEventPublisher публикует события алертов в Kafka.
// Реализует rules.AlertPublisher.
type AlertEventPublisher struct {
	logger *zap.Logger
	writer *kafka.Writer
	topic  string
}

// NewAlertEventPublisher создаёт publisher для топика событий алертов
func NewAlertEventPublisher(logger *zap.Logger, brokers []string, topic string) *AlertEventPublisher {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	}

	return &AlertEventPublisher{
		logger: logger,
		writer: writer,
		topic:  topic,
	}
}

// PublishAlertEvent отправляет событие алерта в Kafka.
// Ключ сообщения — alertname: события одного алерта попадают в одну партицию
// и обрабатываются notifier-ом по порядку.
func (p *AlertEventPublisher) PublishAlertEvent(ctx context.Context, event rules.AlertEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal alert event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.AlertName),
		Value: payload,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("failed to publish alert event",
			zap.Error(err),
			zap.String("topic", p.topic),
			zap.String("alertname", event.AlertName),
			zap.String("event_type", event.EventType),
		)
		return err
	}

	p.logger.Info("alert event published",
		zap.String("topic", p.topic),
		zap.String("alertname", event.AlertName),
		zap.String("event_type", event.EventType),
		zap.String("event_id", event.EventID),
	)

	return nil
}

// Close закрывает Kafka writer
func (p *AlertEventPublisher) Close() error {
	p.logger.Info("closing alert event publisher")
	return p.writer.Close()
}
