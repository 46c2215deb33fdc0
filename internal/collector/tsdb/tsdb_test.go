package tsdb

import (
	"testing"
	"time"

	"github.com/prometheus/common/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func metric(name string, labels map[string]string) model.Metric {
	m := model.Metric{model.MetricNameLabel: model.LabelValue(name)}
	for k, v := range labels {
		m[model.LabelName(k)] = model.LabelValue(v)
	}
	return m
}

func TestStorage_AppendAndInstantQuery(t *testing.T) {
	storage := NewStorage(2*time.Hour, 100)
	now := time.Now()

	m := metric("http_requests_total", map[string]string{"job": "api", "instance": "localhost:8080"})

	err := storage.Append(m, now.Add(-time.Minute), 10)
	require.NoError(t, err)
	err = storage.Append(m, now, 15)
	require.NoError(t, err)

	sel, err := ParseSelector(`http_requests_total{job="api"}`)
	require.NoError(t, err)

	points := storage.InstantQuery(sel, now)
	require.Len(t, points, 1)
	assert.Equal(t, 15.0, points[0].Sample.Value)
	assert.Equal(t, model.LabelValue("api"), points[0].Metric["job"])
}

func TestStorage_AppendOutOfOrder(t *testing.T) {
	storage := NewStorage(2*time.Hour, 100)
	now := time.Now()

	m := metric("cpu_usage", nil)

	err := storage.Append(m, now, 1)
	require.NoError(t, err)

	// Сэмпл в прошлое — отклоняется
	err = storage.Append(m, now.Add(-time.Second), 2)
	assert.ErrorIs(t, err, ErrOutOfOrder)

	// Сэмпл с тем же timestamp — тоже отклоняется
	err = storage.Append(m, now, 3)
	assert.ErrorIs(t, err, ErrOutOfOrder)
}

func TestStorage_InstantQuery_Staleness(t *testing.T) {
	storage := NewStorage(2*time.Hour, 100)
	now := time.Now()

	m := metric("cpu_usage", map[string]string{"job": "node"})

	// Сэмпл старше staleness-окна не должен попадать в результат
	err := storage.Append(m, now.Add(-StalenessDelta-time.Minute), 1)
	require.NoError(t, err)

	points := storage.InstantQuery(Selector{Name: "cpu_usage"}, now)
	assert.Empty(t, points)
}

func TestStorage_InstantQuery_NotEqualMatcher(t *testing.T) {
	storage := NewStorage(2*time.Hour, 100)
	now := time.Now()

	require.NoError(t, storage.Append(metric("up", map[string]string{"job": "api"}), now, 1))
	require.NoError(t, storage.Append(metric("up", map[string]string{"job": "node"}), now, 0))

	sel, err := ParseSelector(`up{job!="api"}`)
	require.NoError(t, err)

	points := storage.InstantQuery(sel, now)
	require.Len(t, points, 1)
	assert.Equal(t, model.LabelValue("node"), points[0].Metric["job"])
}

func TestStorage_RangeQuery(t *testing.T) {
	storage := NewStorage(2*time.Hour, 100)
	start := time.Now().Truncate(time.Minute)

	m := metric("queue_depth", nil)
	require.NoError(t, storage.Append(m, start, 1))
	require.NoError(t, storage.Append(m, start.Add(30*time.Second), 2))
	require.NoError(t, storage.Append(m, start.Add(60*time.Second), 3))

	ranges := storage.RangeQuery(Selector{Name: "queue_depth"}, start, start.Add(time.Minute), 30*time.Second)
	require.Len(t, ranges, 1)
	require.Len(t, ranges[0].Samples, 3)

	// В каждой точке шага берётся последний сэмпл не позже точки
	assert.Equal(t, 1.0, ranges[0].Samples[0].Value)
	assert.Equal(t, 2.0, ranges[0].Samples[1].Value)
	assert.Equal(t, 3.0, ranges[0].Samples[2].Value)
}

func TestStorage_RetentionTrim(t *testing.T) {
	storage := NewStorage(time.Hour, 100)
	now := time.Now()

	m := metric("old_metric", nil)
	require.NoError(t, storage.Append(m, now.Add(-2*time.Hour), 1))
	require.NoError(t, storage.Append(m, now, 2))

	// Старый сэмпл отрезан, поэтому instant-запрос в прошлое пуст
	points := storage.InstantQuery(Selector{Name: "old_metric"}, now.Add(-2*time.Hour))
	assert.Empty(t, points)

	points = storage.InstantQuery(Selector{Name: "old_metric"}, now)
	require.Len(t, points, 1)
	assert.Equal(t, 2.0, points[0].Sample.Value)
}

func TestStorage_GC(t *testing.T) {
	storage := NewStorage(time.Hour, 100)
	now := time.Now()

	require.NoError(t, storage.Append(metric("stale_metric", nil), now.Add(-2*time.Hour), 1))
	require.NoError(t, storage.Append(metric("fresh_metric", nil), now, 1))
	require.Equal(t, 2, storage.SeriesCount())

	removed := storage.GC(now)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, storage.SeriesCount())
}

func TestParseSelector(t *testing.T) {
	sel, err := ParseSelector(`http_requests_total{job="api",code!="500"}`)
	require.NoError(t, err)
	assert.Equal(t, "http_requests_total", sel.Name)
	require.Len(t, sel.Matchers, 2)
	assert.Equal(t, Matcher{Name: "job", Op: MatchEqual, Value: "api"}, sel.Matchers[0])
	assert.Equal(t, Matcher{Name: "code", Op: MatchNotEqual, Value: "500"}, sel.Matchers[1])
}

func TestParseSelector_NameOnly(t *testing.T) {
	sel, err := ParseSelector("up")
	require.NoError(t, err)
	assert.Equal(t, "up", sel.Name)
	assert.Empty(t, sel.Matchers)
}

func TestParseSelector_Invalid(t *testing.T) {
	cases := []string{
		"",
		"{job=}",
		"up{job=api}",
		"up{job=\"api\"",
		"1bad_name",
		"up{=\"x\"}",
	}
	for _, input := range cases {
		_, err := ParseSelector(input)
		assert.Error(t, err, "input: %q", input)
	}
}
