package telemetry

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/large-farva/playtrack/internal/eventlog"
)

func TestProgressWireShape(t *testing.T) {
	p := NewProgress(eventlog.Event{
		Timestamp: time.Date(2026, 3, 14, 9, 26, 53, 589000000, time.Local),
		Percent:   47,
		Size:      "84.9 MB",
		Status:    "Downloading: 47% of 84.9 MB",
		Session:   "s-1",
	})

	b, err := json.Marshal(p)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	assert.Equal(t, "progress", m["type"])
	assert.Equal(t, "2026-03-14T09:26:53.589000", m["timestamp"])
	assert.Equal(t, 47.0, m["percent"])
	assert.NotContains(t, m, "terminal")
	assert.NotEmpty(t, m["ts"])
}

func TestHeartbeatUptime(t *testing.T) {
	hb := NewHeartbeat("TRACKING", 12, 90*time.Second+400*time.Millisecond)
	assert.Equal(t, EventHeartbeat, hb.Type)
	assert.Equal(t, int64(90), hb.UptimeSeconds)
}
