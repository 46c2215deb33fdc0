package scrape

import (
	"fmt"
	"io"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/prometheus/common/model"
)

// Sample один сэмпл, полученный со scrape-а
type Sample struct {
	Metric    model.Metric
	Timestamp time.Time
	Value     float64
}

// ParseExposition парсит Prometheus text exposition format и разворачивает
// metric families в плоский список сэмплов. extraLabels (job, instance и
// лейблы из scrape config) добавляются ко всем сэмплам; лейблы самой метрики
// имеют приоритет.
// Summary разворачивается в quantile-серии плюс _sum/_count,
// histogram — в _bucket-серии (по le) плюс _sum/_count.
func ParseExposition(r io.Reader, defaultTime time.Time, extraLabels model.LabelSet) ([]Sample, error) {
	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(r)
	if err != nil {
		return nil, fmt.Errorf("parse exposition: %w", err)
	}

	var out []Sample
	for name, family := range families {
		for _, m := range family.GetMetric() {
			ts := defaultTime
			if m.GetTimestampMs() > 0 {
				ts = time.UnixMilli(m.GetTimestampMs())
			}

			base := baseLabels(name, m, extraLabels)

			switch family.GetType() {
			case dto.MetricType_COUNTER:
				out = append(out, Sample{Metric: base, Timestamp: ts, Value: m.GetCounter().GetValue()})
			case dto.MetricType_GAUGE:
				out = append(out, Sample{Metric: base, Timestamp: ts, Value: m.GetGauge().GetValue()})
			case dto.MetricType_UNTYPED:
				out = append(out, Sample{Metric: base, Timestamp: ts, Value: m.GetUntyped().GetValue()})
			case dto.MetricType_SUMMARY:
				s := m.GetSummary()
				for _, q := range s.GetQuantile() {
					qm := withName(base, name)
					qm["quantile"] = model.LabelValue(formatFloat(q.GetQuantile()))
					out = append(out, Sample{Metric: qm, Timestamp: ts, Value: q.GetValue()})
				}
				out = append(out,
					Sample{Metric: withName(base, name+"_sum"), Timestamp: ts, Value: s.GetSampleSum()},
					Sample{Metric: withName(base, name+"_count"), Timestamp: ts, Value: float64(s.GetSampleCount())},
				)
			case dto.MetricType_HISTOGRAM:
				h := m.GetHistogram()
				for _, b := range h.GetBucket() {
					bm := withName(base, name+"_bucket")
					bm["le"] = model.LabelValue(formatFloat(b.GetUpperBound()))
					out = append(out, Sample{Metric: bm, Timestamp: ts, Value: float64(b.GetCumulativeCount())})
				}
				out = append(out,
					Sample{Metric: withName(base, name+"_sum"), Timestamp: ts, Value: h.GetSampleSum()},
					Sample{Metric: withName(base, name+"_count"), Timestamp: ts, Value: float64(h.GetSampleCount())},
				)
			}
		}
	}
	return out, nil
}

// baseLabels собирает полный набор лейблов сэмпла: extraLabels, затем
// лейблы метрики (перекрывают extraLabels), затем __name__
func baseLabels(name string, m *dto.Metric, extraLabels model.LabelSet) model.Metric {
	metric := make(model.Metric, len(m.GetLabel())+len(extraLabels)+1)
	for k, v := range extraLabels {
		metric[k] = v
	}
	for _, pair := range m.GetLabel() {
		metric[model.LabelName(pair.GetName())] = model.LabelValue(pair.GetValue())
	}
	metric[model.MetricNameLabel] = model.LabelValue(name)
	return metric
}

// withName копирует набор лейблов, заменяя __name__
func withName(base model.Metric, name string) model.Metric {
	m := base.Clone()
	m[model.MetricNameLabel] = model.LabelValue(name)
	return m
}

func formatFloat(f float64) string {
	return model.SampleValue(f).String()
}
