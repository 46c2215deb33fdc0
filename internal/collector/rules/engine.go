package rules

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/common/model"
	"go.uber.org/zap"

	"github.com/shestoi/vigil/internal/collector/metrics"
	"github.com/shestoi/vigil/internal/collector/tsdb"
)

// Статусы алерта
const (
	StatePending = "pending"
	StateFiring  = "firing"
)

// Типы событий, публикуемых в Kafka
const (
	EventTypeFiring   = "alert.firing"
	EventTypeResolved = "alert.resolved"
)

// AlertEvent событие перехода алерта в firing или resolved (исходящее в Kafka)
type AlertEvent struct {
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
	EndsAt       time.Time         `json:"ends_at,omitempty"`
}

// AlertPublisher публикует события алертов (реализация — Kafka writer)
type AlertPublisher interface {
	PublishAlertEvent(ctx context.Context, event AlertEvent) error
}

// ActiveAlert текущее состояние алерта для API /api/v1/alerts
type ActiveAlert struct {
	RuleName    string            `json:"rule_name"`
	State       string            `json:"state"`
	Labels      map[string]string `json:"labels"`
	Annotations map[string]string `json:"annotations"`
	Value       float64           `json:"value"`
	ActiveAt    time.Time         `json:"active_at"`
	FiredAt     time.Time         `json:"fired_at,omitempty"`
}

// RuleInfo описание правила для API /api/v1/rules
type RuleInfo struct {
	Name        string            `json:"name"`
	Expr        string            `json:"expr"`
	For         string            `json:"for"`
	Labels      map[string]string `json:"labels,omitempty"`
	Annotations map[string]string `json:"annotations,omitempty"`
}

// alertInstance состояние алерта по одной серии-результату правила
type alertInstance struct {
	labels      map[string]string
	annotations map[string]string
	state       string
	value       float64
	activeAt    time.Time // когда выражение впервые стало истинным
	firedAt     time.Time // когда алерт перешёл в firing
}

// Engine периодически вычисляет правила по хранилищу и ведёт state machine
// алертов: inactive -> pending -> firing, с переходом в resolved когда
// выражение перестаёт быть истинным. Переходы firing/resolved публикуются.
type Engine struct {
	logger    *zap.Logger
	storage   *tsdb.Storage
	rules     []Rule
	publisher AlertPublisher
	interval  time.Duration

	mu        sync.RWMutex
	instances map[string]*alertInstance // ключ: имя правила + fingerprint серии
}

// NewEngine создаёт engine. publisher может быть nil — тогда переходы
// только логируются (режим локальной разработки без Kafka).
func NewEngine(logger *zap.Logger, storage *tsdb.Storage, rules []Rule, publisher AlertPublisher, interval time.Duration) *Engine {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Engine{
		logger:    logger,
		storage:   storage,
		rules:     rules,
		publisher: publisher,
		interval:  interval,
		instances: make(map[string]*alertInstance),
	}
}

// Run запускает цикл вычисления правил. Блокируется до отмены контекста.
func (e *Engine) Run(ctx context.Context) {
	e.logger.Info("starting rule engine",
		zap.Int("rules", len(e.rules)),
		zap.Duration("interval", e.interval),
	)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("rule engine stopped")
			return
		case <-ticker.C:
			e.Evaluate(ctx, time.Now())
		}
	}
}

// Evaluate вычисляет все правила на момент now
func (e *Engine) Evaluate(ctx context.Context, now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range e.rules {
		e.evaluateRule(ctx, &e.rules[i], now)
		metrics.RuleEvaluationsTotal.Inc()
	}
}

func (e *Engine) evaluateRule(ctx context.Context, rule *Rule, now time.Time) {
	points := e.storage.InstantQuery(rule.Expr.Selector, now)

	// Серии, по которым выражение истинно на этом вычислении
	seen := make(map[string]bool, len(points))

	for _, p := range points {
		if !rule.Expr.Op.Compare(p.Sample.Value, rule.Expr.Threshold) {
			continue
		}

		key := instanceKey(rule.Name, p.Metric)
		seen[key] = true

		inst, ok := e.instances[key]
		if !ok {
			inst = &alertInstance{
				labels:      alertLabels(rule, p.Metric),
				annotations: rule.Annotations,
				state:       StatePending,
				activeAt:    now,
			}
			e.instances[key] = inst
		}
		inst.value = p.Sample.Value

		// pending -> firing после истечения for
		if inst.state == StatePending && !now.Before(inst.activeAt.Add(rule.For)) {
			inst.state = StateFiring
			inst.firedAt = now
			metrics.AlertsFiredTotal.WithLabelValues(rule.Name).Inc()
			e.logger.Info("alert firing",
				zap.String("alertname", rule.Name),
				zap.Float64("value", inst.value),
			)
			e.publish(ctx, AlertEvent{
				EventID:      uuid.NewString(),
				EventType:    EventTypeFiring,
				EventVersion: 1,
				OccurredAt:   now.UTC(),
				AlertName:    rule.Name,
				Status:       StateFiring,
				Labels:       inst.labels,
				Annotations:  inst.annotations,
				Value:        inst.value,
				StartsAt:     inst.firedAt.UTC(),
			})
		}
	}

	// Инстансы правила, по которым выражение больше не истинно
	for key, inst := range e.instances {
		if seen[key] || !isRuleKey(key, rule.Name) {
			continue
		}
		delete(e.instances, key)

		if inst.state != StateFiring {
			// pending тихо сбрасывается, событие не публикуется
			continue
		}

		metrics.AlertsResolvedTotal.WithLabelValues(rule.Name).Inc()
		e.logger.Info("alert resolved", zap.String("alertname", rule.Name))
		e.publish(ctx, AlertEvent{
			EventID:      uuid.NewString(),
			EventType:    EventTypeResolved,
			EventVersion: 1,
			OccurredAt:   now.UTC(),
			AlertName:    rule.Name,
			Status:       "resolved",
			Labels:       inst.labels,
			Annotations:  inst.annotations,
			Value:        inst.value,
			StartsAt:     inst.firedAt.UTC(),
			EndsAt:       now.UTC(),
		})
	}
}

// publish отправляет событие; ошибка публикации не прерывает вычисление правил
func (e *Engine) publish(ctx context.Context, event AlertEvent) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.PublishAlertEvent(ctx, event); err != nil {
		e.logger.Error("failed to publish alert event",
			zap.Error(err),
			zap.String("alertname", event.AlertName),
			zap.String("event_type", event.EventType),
		)
	}
}

// ActiveAlerts возвращает снапшот pending/firing алертов
func (e *Engine) ActiveAlerts() []ActiveAlert {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]ActiveAlert, 0, len(e.instances))
	for key, inst := range e.instances {
		out = append(out, ActiveAlert{
			RuleName:    ruleNameFromKey(key),
			State:       inst.state,
			Labels:      inst.labels,
			Annotations: inst.annotations,
			Value:       inst.value,
			ActiveAt:    inst.activeAt,
			FiredAt:     inst.firedAt,
		})
	}
	return out
}

// Rules возвращает описания всех правил
func (e *Engine) Rules() []RuleInfo {
	out := make([]RuleInfo, 0, len(e.rules))
	for _, r := range e.rules {
		out = append(out, RuleInfo{
			Name:        r.Name,
			Expr:        r.Expr.String(),
			For:         r.For.String(),
			Labels:      r.Labels,
			Annotations: r.Annotations,
		})
	}
	return out
}

// alertLabels собирает лейблы алерта: лейблы серии без __name__,
// поверх — лейблы правила, поверх — alertname
func alertLabels(rule *Rule, metric model.Metric) map[string]string {
	labels := make(map[string]string, len(metric)+len(rule.Labels)+1)
	for k, v := range metric {
		if k == model.MetricNameLabel {
			continue
		}
		labels[string(k)] = string(v)
	}
	for k, v := range rule.Labels {
		labels[k] = v
	}
	labels["alertname"] = rule.Name
	return labels
}

func instanceKey(ruleName string, metric model.Metric) string {
	return ruleName + "\x00" + fmt.Sprintf("%016x", uint64(metric.Fingerprint()))
}

func isRuleKey(key, ruleName string) bool {
	return len(key) > len(ruleName) && key[:len(ruleName)] == ruleName && key[len(ruleName)] == '\x00'
}

func ruleNameFromKey(key string) string {
	for i := 0; i < len(key); i++ {
		if key[i] == '\x00' {
			return key[:i]
		}
	}
	return key
}
