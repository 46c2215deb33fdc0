package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Notification полезная нагрузка исходящего webhook-а.
// Формат совместим с Alertmanager webhook v4: приёмник, написанный под
// Alertmanager, примет и наши уведомления.
type Notification struct {
	Version  string  `json:"version"`
	GroupKey string  `json:"groupKey"`
	Status   string  `json:"status"`
	Receiver string  `json:"receiver"`
	Alerts   []Alert `json:"alerts"`
}

// Alert один алерт в webhook payload
type Alert struct {
	Status      string            `json:"status"`
	Labels      map[string]string `json:"labels"`
	Annotations map[string]string `json:"annotations"`
	StartsAt    time.Time         `json:"startsAt"`
	EndsAt      time.Time         `json:"endsAt,omitempty"`
	Fingerprint string            `json:"fingerprint"`
}

// Sender отправляет уведомления на настроенный webhook URL
type Sender struct {
	logger *zap.Logger
	url    string
	client *http.Client
}

// NewSender создаёт webhook sender
func NewSender(logger *zap.Logger, url string) *Sender {
	return &Sender{
		logger: logger,
		url:    url,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Send отправляет уведомление POST-ом на webhook URL.
// Любой статус вне 2xx считается ошибкой доставки.
func (s *Sender) Send(ctx context.Context, notification Notification) error {
	payload, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("webhook status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	s.logger.Debug("webhook notification sent",
		zap.String("url", s.url),
		zap.String("status", notification.Status),
		zap.Int("alerts", len(notification.Alerts)),
	)

	return nil
}
