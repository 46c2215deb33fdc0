package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// StateRepository реализует StateRepository используя Redis.
// Дедупликация: ключ processed:<event_id> с TTL.
// Троттлинг: SET NX на ключ throttle:<fingerprint> с TTL = repeat_interval.
type StateRepository struct {
	client *redis.Client
	logger *zap.Logger
}

// NewStateRepository создаёт новый Redis state repository
func NewStateRepository(client *redis.Client, logger *zap.Logger) *StateRepository {
	return &StateRepository{
		client: client,
		logger: logger,
	}
}

func processedKey(eventID string) string {
	return fmt.Sprintf("notifier:processed:%s", eventID)
}

func throttleKey(fingerprint string) string {
	return fmt.Sprintf("notifier:throttle:%s", fingerprint)
}

// IsProcessed проверяет, обрабатывалось ли событие
func (r *StateRepository) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	exists, err := r.client.Exists(ctx, processedKey(eventID)).Result()
	if err != nil {
		r.logger.Error("failed to check processed event in redis",
			zap.Error(err),
			zap.String("event_id", eventID),
		)
		return false, fmt.Errorf("failed to check processed event: %w", err)
	}
	return exists > 0, nil
}

// MarkProcessed помечает событие обработанным на ttl
func (r *StateRepository) MarkProcessed(ctx context.Context, eventID string, ttl time.Duration) error {
	if err := r.client.Set(ctx, processedKey(eventID), "1", ttl).Err(); err != nil {
		r.logger.Error("failed to mark event processed in redis",
			zap.Error(err),
			zap.String("event_id", eventID),
		)
		return fmt.Errorf("failed to mark event processed: %w", err)
	}
	return nil
}

// AllowDelivery атомарно проверяет и занимает слот доставки для fingerprint-а.
// SETNX: true = ключа не было, доставляем; false = доставка уже была
// в пределах repeat_interval.
func (r *StateRepository) AllowDelivery(ctx context.Context, fingerprint string, repeatInterval time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, throttleKey(fingerprint), "1", repeatInterval).Result()
	if err != nil {
		r.logger.Error("failed to acquire delivery slot in redis",
			zap.Error(err),
			zap.String("fingerprint", fingerprint),
		)
		return false, fmt.Errorf("failed to acquire delivery slot: %w", err)
	}
	return ok, nil
}

// ClearThrottle сбрасывает троттлинг fingerprint-а
func (r *StateRepository) ClearThrottle(ctx context.Context, fingerprint string) error {
	if err := r.client.Del(ctx, throttleKey(fingerprint)).Err(); err != nil {
		r.logger.Error("failed to clear throttle key in redis",
			zap.Error(err),
			zap.String("fingerprint", fingerprint),
		)
		return fmt.Errorf("failed to clear throttle: %w", err)
	}
	return nil
}
