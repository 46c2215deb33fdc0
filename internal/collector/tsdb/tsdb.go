package tsdb

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/common/model"
)

// StalenessDelta окно, в пределах которого сэмпл считается актуальным
// при instant-запросе (как у Prometheus — 5 минут).
const StalenessDelta = 5 * time.Minute

// ErrOutOfOrder возвращается при попытке записать сэмпл с timestamp
// не новее последнего записанного для этой серии.
var ErrOutOfOrder = errors.New("sample out of order")

// Sample один замер: значение на момент времени
type Sample struct {
	Timestamp time.Time
	Value     float64
}

// SeriesPoint результат instant-запроса: серия и её актуальный сэмпл
type SeriesPoint struct {
	Metric model.Metric
	Sample Sample
}

// SeriesRange результат range-запроса: серия и сэмплы по шагам
type SeriesRange struct {
	Metric  model.Metric
	Samples []Sample
}

type series struct {
	metric  model.Metric
	samples []Sample // отсортированы по Timestamp по возрастанию
}

// Storage in-memory хранилище временных рядов.
// Серии идентифицируются fingerprint-ом полного набора лейблов
// (включая __name__). Retention ограничивает глубину хранения по времени,
// maxSamples — количество сэмплов на серию.
type Storage struct {
	mu         sync.RWMutex
	series     map[model.Fingerprint]*series
	retention  time.Duration
	maxSamples int
}

// NewStorage создаёт хранилище с указанным retention и лимитом сэмплов на серию
func NewStorage(retention time.Duration, maxSamples int) *Storage {
	if retention <= 0 {
		retention = 2 * time.Hour
	}
	if maxSamples <= 0 {
		maxSamples = 4096
	}
	return &Storage{
		series:     make(map[model.Fingerprint]*series),
		retention:  retention,
		maxSamples: maxSamples,
	}
}

// Append добавляет сэмпл в серию. Метрика должна содержать __name__.
// Сэмплы принимаются только в порядке возрастания времени.
func (s *Storage) Append(metric model.Metric, ts time.Time, value float64) error {
	fp := metric.Fingerprint()

	s.mu.Lock()
	defer s.mu.Unlock()

	sr, ok := s.series[fp]
	if !ok {
		sr = &series{metric: metric.Clone()}
		s.series[fp] = sr
	}

	if n := len(sr.samples); n > 0 && !ts.After(sr.samples[n-1].Timestamp) {
		return ErrOutOfOrder
	}

	sr.samples = append(sr.samples, Sample{Timestamp: ts, Value: value})
	sr.trim(ts.Add(-s.retention), s.maxSamples)
	return nil
}

// trim отрезает сэмплы старше minTime и сверх лимита maxSamples
func (sr *series) trim(minTime time.Time, maxSamples int) {
	cut := 0
	for cut < len(sr.samples) && sr.samples[cut].Timestamp.Before(minTime) {
		cut++
	}
	if over := len(sr.samples) - cut - maxSamples; over > 0 {
		cut += over
	}
	if cut > 0 {
		sr.samples = append(sr.samples[:0], sr.samples[cut:]...)
	}
}

// InstantQuery возвращает для каждой подходящей серии последний сэмпл
// не позже at и не старше StalenessDelta. Результат отсортирован по метрике.
func (s *Storage) InstantQuery(sel Selector, at time.Time) []SeriesPoint {
	minTime := at.Add(-StalenessDelta)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []SeriesPoint
	for _, sr := range s.series {
		if !sel.Matches(sr.metric) {
			continue
		}
		sample, ok := sr.at(at, minTime)
		if !ok {
			continue
		}
		out = append(out, SeriesPoint{Metric: sr.metric.Clone(), Sample: sample})
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Metric.Before(out[j].Metric)
	})
	return out
}

// RangeQuery вычисляет значение серий в точках start, start+step, ..., end.
// В каждой точке используется та же staleness-логика, что и в InstantQuery.
func (s *Storage) RangeQuery(sel Selector, start, end time.Time, step time.Duration) []SeriesRange {
	if step <= 0 || end.Before(start) {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []SeriesRange
	for _, sr := range s.series {
		if !sel.Matches(sr.metric) {
			continue
		}
		var samples []Sample
		for t := start; !t.After(end); t = t.Add(step) {
			sample, ok := sr.at(t, t.Add(-StalenessDelta))
			if !ok {
				continue
			}
			samples = append(samples, Sample{Timestamp: t, Value: sample.Value})
		}
		if len(samples) == 0 {
			continue
		}
		out = append(out, SeriesRange{Metric: sr.metric.Clone(), Samples: samples})
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Metric.Before(out[j].Metric)
	})
	return out
}

// at возвращает последний сэмпл серии с Timestamp в (minTime, at]
func (sr *series) at(at, minTime time.Time) (Sample, bool) {
	// Бинарный поиск первого сэмпла строго позже at
	idx := sort.Search(len(sr.samples), func(i int) bool {
		return sr.samples[i].Timestamp.After(at)
	})
	if idx == 0 {
		return Sample{}, false
	}
	candidate := sr.samples[idx-1]
	if !candidate.Timestamp.After(minTime) {
		return Sample{}, false
	}
	return candidate, true
}

// Series возвращает метрики всех серий, подходящих под селектор
func (s *Storage) Series(sel Selector) []model.Metric {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Metric
	for _, sr := range s.series {
		if sel.Matches(sr.metric) {
			out = append(out, sr.metric.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Before(out[j])
	})
	return out
}

// SeriesCount возвращает текущее количество серий в хранилище
func (s *Storage) SeriesCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.series)
}

// GC удаляет серии, у которых не осталось сэмплов новее retention-окна.
// Вызывается периодически из scrape manager-а.
func (s *Storage) GC(now time.Time) int {
	minTime := now.Add(-s.retention)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for fp, sr := range s.series {
		n := len(sr.samples)
		if n == 0 || sr.samples[n-1].Timestamp.Before(minTime) {
			delete(s.series, fp)
			removed++
		}
	}
	return removed
}
