package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	platformobservability "github.com/shestoi/vigil/platform/observability"

	"github.com/shestoi/vigil/internal/notifier/metrics"
	"github.com/shestoi/vigil/internal/notifier/repository"
	"github.com/shestoi/vigil/internal/notifier/telegram"
	"github.com/shestoi/vigil/internal/notifier/templates"
	"github.com/shestoi/vigil/internal/notifier/webhook"
)

// WebhookSender отправляет уведомление на внешний webhook
// (реализация — webhook.Sender; nil = канал выключен)
type WebhookSender interface {
	Send(ctx context.Context, notification webhook.Notification) error
}

// NotifierService содержит бизнес-логику обработки событий алертов:
// дедупликация, silences, троттлинг, доставка, история.
type NotifierService struct {
	logger         *zap.Logger
	history        repository.HistoryRepository
	silences       repository.SilenceRepository
	state          repository.StateRepository
	telegramSender telegram.Sender
	telegramChatID string
	webhookSender  WebhookSender
	renderer       *templates.Renderer
	dedupTTL       time.Duration
	repeatInterval time.Duration
}

// NewNotifierService создаёт новый экземпляр NotifierService.
// webhookSender может быть nil (канал выключен); telegramSender для
// выключенного Telegram — NoOpSender.
func NewNotifierService(
	logger *zap.Logger,
	history repository.HistoryRepository,
	silences repository.SilenceRepository,
	state repository.StateRepository,
	telegramSender telegram.Sender,
	telegramChatID string,
	webhookSender WebhookSender,
	renderer *templates.Renderer,
	dedupTTL time.Duration,
	repeatInterval time.Duration,
) *NotifierService {
	return &NotifierService{
		logger:         logger,
		history:        history,
		silences:       silences,
		state:          state,
		telegramSender: telegramSender,
		telegramChatID: telegramChatID,
		webhookSender:  webhookSender,
		renderer:       renderer,
		dedupTTL:       dedupTTL,
		repeatInterval: repeatInterval,
	}
}

// HandleAlertEvent обрабатывает одно событие алерта.
// Порядок: дедупликация -> silences -> троттлинг -> доставка -> история.
// Ошибка доставки возвращается без пометки события обработанным —
// consumer повторит попытку, at-least-once.
func (s *NotifierService) HandleAlertEvent(ctx context.Context, event AlertEvent) error {
	// Логи пути обработки коррелируются с трейсом запроса/сообщения
	logger := platformobservability.L(ctx, s.logger)

	logger.Info("handling alert event",
		zap.String("event_id", event.EventID),
		zap.String("event_type", event.EventType),
		zap.String("alertname", event.AlertName),
	)

	// Дедупликация: событие с этим event_id уже обработано?
	processed, err := s.state.IsProcessed(ctx, event.EventID)
	if err != nil {
		return err
	}
	if processed {
		metrics.EventsDuplicateTotal.Inc()
		logger.Info("event already processed (duplicate)",
			zap.String("event_id", event.EventID),
			zap.String("alertname", event.AlertName),
		)
		return nil
	}

	fingerprint := event.Fingerprint()
	now := time.Now()

	// resolved снимает троттлинг: следующий firing доставляется сразу
	if event.EventType == EventTypeResolved {
		if err := s.state.ClearThrottle(ctx, fingerprint); err != nil {
			// Не критично: худший случай — следующий firing задержится
			logger.Warn("failed to clear throttle",
				zap.Error(err),
				zap.String("fingerprint", fingerprint),
			)
		}
	}

	outcome, err := s.decideOutcome(ctx, event, fingerprint, now)
	if err != nil {
		return err
	}

	if outcome == repository.OutcomeDelivered {
		if err := s.deliver(ctx, event); err != nil {
			// Слот троттлинга занят атомарно (SETNX) до доставки;
			// при ошибке освобождаем его, иначе retry будет затроттлен
			// и алерт пропадёт на весь repeat_interval
			if event.EventType == EventTypeFiring {
				if clearErr := s.state.ClearThrottle(ctx, fingerprint); clearErr != nil {
					logger.Warn("failed to release throttle slot after delivery failure",
						zap.Error(clearErr),
						zap.String("fingerprint", fingerprint),
					)
				}
			}
			return err
		}
	}

	if _, err := s.history.InsertAlert(ctx, s.toRecord(event, outcome)); err != nil {
		logger.Error("failed to insert alert history",
			zap.Error(err),
			zap.String("event_id", event.EventID),
		)
		return err
	}

	if err := s.state.MarkProcessed(ctx, event.EventID, s.dedupTTL); err != nil {
		// История уже записана; при redelivery появится вторая запись,
		// но повторная доставка отсечётся троттлингом
		logger.Warn("failed to mark event processed",
			zap.Error(err),
			zap.String("event_id", event.EventID),
		)
	}

	logger.Info("alert event processed",
		zap.String("event_id", event.EventID),
		zap.String("alertname", event.AlertName),
		zap.String("outcome", outcome),
	)

	return nil
}

// decideOutcome решает судьбу события: доставить, подавить silence-ом
// или затроттлить
func (s *NotifierService) decideOutcome(ctx context.Context, event AlertEvent, fingerprint string, now time.Time) (string, error) {
	silenced, err := s.isSilenced(ctx, event.Labels, now)
	if err != nil {
		return "", err
	}
	if silenced {
		metrics.AlertsSilencedTotal.Inc()
		s.logger.Info("alert suppressed by silence",
			zap.String("event_id", event.EventID),
			zap.String("alertname", event.AlertName),
		)
		return repository.OutcomeSilenced, nil
	}

	// Троттлинг касается только firing: resolved доставляется всегда
	if event.EventType == EventTypeFiring {
		allowed, err := s.state.AllowDelivery(ctx, fingerprint, s.repeatInterval)
		if err != nil {
			return "", err
		}
		if !allowed {
			metrics.AlertsThrottledTotal.Inc()
			s.logger.Info("alert throttled by repeat interval",
				zap.String("event_id", event.EventID),
				zap.String("alertname", event.AlertName),
				zap.String("fingerprint", fingerprint),
			)
			return repository.OutcomeThrottled, nil
		}
	}

	return repository.OutcomeDelivered, nil
}

// isSilenced проверяет лейблы алерта по активным silences
func (s *NotifierService) isSilenced(ctx context.Context, labels map[string]string, now time.Time) (bool, error) {
	active, err := s.silences.ListSilences(ctx, now)
	if err != nil {
		return false, fmt.Errorf("list active silences: %w", err)
	}
	for _, silence := range active {
		if silence.Matches(labels) {
			return true, nil
		}
	}
	return false, nil
}

// deliver отправляет уведомление во все настроенные каналы.
// Ошибка любого канала — ошибка доставки (consumer повторит).
func (s *NotifierService) deliver(ctx context.Context, event AlertEvent) error {
	text, err := s.render(event)
	if err != nil {
		return err
	}

	if err := s.telegramSender.Send(ctx, s.telegramChatID, text); err != nil {
		metrics.DeliveryFailuresTotal.WithLabelValues("telegram").Inc()
		s.logger.Error("failed to send telegram notification",
			zap.Error(err),
			zap.String("event_id", event.EventID),
			zap.String("alertname", event.AlertName),
		)
		return err
	}
	metrics.AlertsDeliveredTotal.WithLabelValues("telegram").Inc()

	if s.webhookSender != nil {
		notification := webhook.Notification{
			Version:  "4",
			GroupKey: event.AlertName,
			Status:   event.Status,
			Receiver: "vigil-webhook",
			Alerts: []webhook.Alert{{
				Status:      event.Status,
				Labels:      event.Labels,
				Annotations: event.Annotations,
				StartsAt:    event.StartsAt,
				EndsAt:      event.EndsAt,
				Fingerprint: event.Fingerprint(),
			}},
		}
		if err := s.webhookSender.Send(ctx, notification); err != nil {
			metrics.DeliveryFailuresTotal.WithLabelValues("webhook").Inc()
			s.logger.Error("failed to send webhook notification",
				zap.Error(err),
				zap.String("event_id", event.EventID),
				zap.String("alertname", event.AlertName),
			)
			return err
		}
		metrics.AlertsDeliveredTotal.WithLabelValues("webhook").Inc()
	}

	return nil
}

func (s *NotifierService) render(event AlertEvent) (string, error) {
	if event.EventType == EventTypeResolved {
		return s.renderer.RenderResolved(event)
	}
	return s.renderer.RenderFiring(event)
}

func (s *NotifierService) toRecord(event AlertEvent, outcome string) repository.AlertRecord {
	status := repository.StatusFiring
	if event.EventType == EventTypeResolved {
		status = repository.StatusResolved
	}
	return repository.AlertRecord{
		EventID:     event.EventID,
		AlertName:   event.AlertName,
		Status:      status,
		Labels:      event.Labels,
		Annotations: event.Annotations,
		Value:       event.Value,
		StartsAt:    event.StartsAt,
		EndsAt:      event.EndsAt,
		OccurredAt:  event.OccurredAt,
		Outcome:     outcome,
	}
}

// CreateSilenceInput параметры создания silence
type CreateSilenceInput struct {
	Matchers  []repository.SilenceMatcher
	StartsAt  time.Time
	EndsAt    time.Time
	CreatedBy string
	Comment   string
}

// CreateSilence валидирует и сохраняет новый silence
func (s *NotifierService) CreateSilence(ctx context.Context, input CreateSilenceInput) (repository.Silence, error) {
	if len(input.Matchers) == 0 {
		return repository.Silence{}, fmt.Errorf("at least one matcher is required")
	}
	for i, m := range input.Matchers {
		if m.Name == "" {
			return repository.Silence{}, fmt.Errorf("matchers[%d]: name is required", i)
		}
	}

	startsAt := input.StartsAt
	if startsAt.IsZero() {
		startsAt = time.Now()
	}
	if input.EndsAt.IsZero() || !input.EndsAt.After(startsAt) {
		return repository.Silence{}, fmt.Errorf("ends_at must be after starts_at")
	}

	silence := repository.Silence{
		ID:        uuid.NewString(),
		Matchers:  input.Matchers,
		StartsAt:  startsAt,
		EndsAt:    input.EndsAt,
		CreatedBy: input.CreatedBy,
		Comment:   input.Comment,
		CreatedAt: time.Now(),
	}

	if err := s.silences.CreateSilence(ctx, silence); err != nil {
		s.logger.Error("failed to create silence", zap.Error(err))
		return repository.Silence{}, err
	}

	s.logger.Info("silence created",
		zap.String("silence_id", silence.ID),
		zap.Time("ends_at", silence.EndsAt),
		zap.Int("matchers", len(silence.Matchers)),
	)

	return silence, nil
}

// ListSilences возвращает silences (activeOnly = только действующие сейчас)
func (s *NotifierService) ListSilences(ctx context.Context, activeOnly bool) ([]repository.Silence, error) {
	var activeAt time.Time
	if activeOnly {
		activeAt = time.Now()
	}
	return s.silences.ListSilences(ctx, activeAt)
}

// DeleteSilence удаляет silence по id
func (s *NotifierService) DeleteSilence(ctx context.Context, id string) error {
	if err := s.silences.DeleteSilence(ctx, id); err != nil {
		return err
	}
	s.logger.Info("silence deleted", zap.String("silence_id", id))
	return nil
}

// History возвращает записи истории алертов по фильтру
func (s *NotifierService) History(ctx context.Context, filter repository.HistoryFilter) ([]repository.AlertRecord, error) {
	return s.history.ListAlerts(ctx, filter)
}
