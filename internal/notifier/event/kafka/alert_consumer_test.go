package kafka

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shestoi/vigil/internal/notifier/service"
)

func TestParseAlertEvent(t *testing.T) {
	data := []byte(`{
		"event_id": "e-1",
		"event_type": "alert.firing",
		"event_version": 1,
		"occurred_at": "2026-08-23T10:00:00Z",
		"alertname": "HighErrorRate",
		"status": "firing",
		"labels": {"alertname": "HighErrorRate", "job": "api"},
		"annotations": {"summary": "too many errors"},
		"value": 42.5,
		"starts_at": "2026-08-23T09:59:00Z"
	}`)

	event, err := parseAlertEvent(data)
	require.NoError(t, err)
	assert.Equal(t, "e-1", event.EventID)
	assert.Equal(t, service.EventTypeFiring, event.EventType)
	assert.Equal(t, "HighErrorRate", event.AlertName)
	assert.Equal(t, 42.5, event.Value)
	assert.Equal(t, "api", event.Labels["job"])
}

func TestParseAlertEvent_Invalid(t *testing.T) {
	cases := map[string]string{
		"not json":           `{`,
		"missing event_id":   `{"event_type":"alert.firing","alertname":"X"}`,
		"unknown event_type": `{"event_id":"e-1","event_type":"alert.flapping","alertname":"X"}`,
		"missing alertname":  `{"event_id":"e-1","event_type":"alert.resolved"}`,
	}

	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := parseAlertEvent([]byte(data))
			assert.Error(t, err)
		})
	}
}
