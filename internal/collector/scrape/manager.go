package scrape

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/common/model"
	"go.uber.org/zap"

	"github.com/shestoi/vigil/internal/collector/metrics"
	"github.com/shestoi/vigil/internal/collector/tsdb"
)

// gcInterval период фоновой чистки хранилища от устаревших серий
const gcInterval = time.Minute

// JobConfig конфигурация одного scrape job-а (из yaml-файла)
type JobConfig struct {
	JobName        string
	ScrapeInterval time.Duration
	MetricsPath    string
	Targets        []string
	Labels         map[string]string
}

// TargetStatus текущее состояние scrape-цели для API /api/v1/targets
type TargetStatus struct {
	Job         string    `json:"job"`
	Instance    string    `json:"instance"`
	URL         string    `json:"url"`
	Healthy     bool      `json:"healthy"`
	LastScrape  time.Time `json:"last_scrape"`
	LastError   string    `json:"last_error,omitempty"`
	LastSamples int       `json:"last_samples"`
}

// targetState цель плюс её изменяемое состояние (под мьютексом manager-а)
type targetState struct {
	target   Target
	interval time.Duration
	status   TargetStatus
}

// Manager запускает scrape-циклы по всем целям и пишет сэмплы в хранилище.
// На каждую цель — своя горутина с тикером на интервале job-а.
type Manager struct {
	logger  *zap.Logger
	scraper *Scraper
	storage *tsdb.Storage

	mu      sync.RWMutex
	targets []*targetState
	wg      sync.WaitGroup
}

// NewManager создаёт manager по списку job-ов из конфигурации
func NewManager(logger *zap.Logger, storage *tsdb.Storage, scraper *Scraper, jobs []JobConfig) *Manager {
	m := &Manager{
		logger:  logger,
		scraper: scraper,
		storage: storage,
	}

	for _, job := range jobs {
		path := job.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		interval := job.ScrapeInterval
		if interval <= 0 {
			interval = 15 * time.Second
		}
		for _, addr := range job.Targets {
			labels := model.LabelSet{
				"job":      model.LabelValue(job.JobName),
				"instance": model.LabelValue(addr),
			}
			for k, v := range job.Labels {
				labels[model.LabelName(k)] = model.LabelValue(v)
			}
			m.targets = append(m.targets, &targetState{
				target: Target{
					Job:      job.JobName,
					Instance: addr,
					URL:      "http://" + addr + path,
					Labels:   labels,
				},
				interval: interval,
				status: TargetStatus{
					Job:      job.JobName,
					Instance: addr,
					URL:      "http://" + addr + path,
				},
			})
		}
	}

	return m
}

// Start запускает scrape-горутины и фоновый GC хранилища.
// Блокируется до отмены контекста.
func (m *Manager) Start(ctx context.Context) {
	m.logger.Info("starting scrape manager", zap.Int("targets", len(m.targets)))

	for _, ts := range m.targets {
		m.wg.Add(1)
		go func(ts *targetState) {
			defer m.wg.Done()
			m.runTarget(ctx, ts)
		}(ts)
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.runGC(ctx)
	}()

	<-ctx.Done()
	m.wg.Wait()
	m.logger.Info("scrape manager stopped")
}

// runTarget цикл одной цели: scrape сразу при старте, дальше по тикеру
func (m *Manager) runTarget(ctx context.Context, ts *targetState) {
	m.scrapeOnce(ctx, ts)

	ticker := time.NewTicker(ts.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.scrapeOnce(ctx, ts)
		}
	}
}

// scrapeOnce выполняет один scrape цели: пишет полученные сэмплы,
// синтетические up и scrape_duration_seconds, обновляет статус цели.
func (m *Manager) scrapeOnce(ctx context.Context, ts *targetState) {
	start := time.Now()
	metrics.ScrapesTotal.WithLabelValues(ts.target.Job, ts.target.Instance).Inc()

	samples, err := m.scraper.Scrape(ctx, ts.target)
	duration := time.Since(start)

	appended := 0
	if err != nil {
		metrics.ScrapeFailuresTotal.WithLabelValues(ts.target.Job, ts.target.Instance).Inc()
		m.logger.Warn("scrape failed",
			zap.String("job", ts.target.Job),
			zap.String("instance", ts.target.Instance),
			zap.Error(err),
		)
	} else {
		for _, s := range samples {
			if appendErr := m.storage.Append(s.Metric, s.Timestamp, s.Value); appendErr != nil {
				if errors.Is(appendErr, tsdb.ErrOutOfOrder) {
					metrics.SamplesOutOfOrderTotal.Inc()
					continue
				}
				m.logger.Error("failed to append sample", zap.Error(appendErr))
				continue
			}
			appended++
		}
		metrics.SamplesAppendedTotal.Add(float64(appended))
	}

	// Синтетические серии пишутся на каждую попытку, как у Prometheus
	upValue := 1.0
	if err != nil {
		upValue = 0
	}
	now := time.Now()
	_ = m.storage.Append(m.syntheticMetric("up", ts.target), now, upValue)
	_ = m.storage.Append(m.syntheticMetric("scrape_duration_seconds", ts.target), now, duration.Seconds())

	m.mu.Lock()
	ts.status.Healthy = err == nil
	ts.status.LastScrape = now
	ts.status.LastSamples = appended
	if err != nil {
		ts.status.LastError = err.Error()
	} else {
		ts.status.LastError = ""
	}
	m.mu.Unlock()
}

func (m *Manager) syntheticMetric(name string, target Target) model.Metric {
	return model.Metric{
		model.MetricNameLabel: model.LabelValue(name),
		"job":                 model.LabelValue(target.Job),
		"instance":            model.LabelValue(target.Instance),
	}
}

// runGC периодически удаляет устаревшие серии и обновляет gauge количества серий
func (m *Manager) runGC(ctx context.Context) {
	ticker := time.NewTicker(gcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := m.storage.GC(time.Now())
			metrics.SeriesCount.Set(float64(m.storage.SeriesCount()))
			if removed > 0 {
				m.logger.Debug("storage gc", zap.Int("removed_series", removed))
			}
		}
	}
}

// Targets возвращает снапшот статусов всех целей
func (m *Manager) Targets() []TargetStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]TargetStatus, 0, len(m.targets))
	for _, ts := range m.targets {
		out = append(out, ts.status)
	}
	return out
}
