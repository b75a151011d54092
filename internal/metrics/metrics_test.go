package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorsAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.Ticks.Inc()
	a.Events.WithLabelValues("progress").Add(2)

	assert.Equal(t, 1.0, testutil.ToFloat64(a.Ticks))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.Ticks))
	assert.Equal(t, 2.0, testutil.ToFloat64(a.Events.WithLabelValues("progress")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.Progress.Set(47)
	m.StrategyHits.WithLabelValues("percent-of-size").Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "playtrack_progress_percent 47")
	assert.Contains(t, string(body), `playtrack_strategy_hits_total{strategy="percent-of-size"} 1`)
}
