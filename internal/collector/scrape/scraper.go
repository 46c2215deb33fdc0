package scrape

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/common/model"
)

// Target одна scrape-цель: конечная точка, отдающая метрики в text exposition format
type Target struct {
	// Job имя scrape job-а из конфигурации
	Job string
	// Instance host:port цели, попадает в лейбл instance
	Instance string
	// URL полный адрес эндпоинта метрик (http://host:port/metrics)
	URL string
	// Labels дополнительные лейблы из конфигурации job-а (плюс job/instance)
	Labels model.LabelSet
}

// Scraper выполняет HTTP-запрос к цели и парсит ответ
type Scraper struct {
	client *http.Client
}

// NewScraper создаёт scraper с указанным таймаутом на запрос
func NewScraper(timeout time.Duration) *Scraper {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Scraper{
		client: &http.Client{Timeout: timeout},
	}
}

// Scrape запрашивает метрики цели и возвращает плоский список сэмплов.
// Все сэмплы получают лейблы цели (job, instance и лейблы из конфига).
func (s *Scraper) Scrape(ctx context.Context, target Target) ([]Sample, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "text/plain")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("scrape %s: %w", target.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("scrape %s: unexpected status %d", target.URL, resp.StatusCode)
	}

	samples, err := ParseExposition(resp.Body, time.Now(), target.Labels)
	if err != nil {
		return nil, fmt.Errorf("scrape %s: %w", target.URL, err)
	}
	return samples, nil
}
