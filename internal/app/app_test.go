package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/large-farva/playtrack/internal/config"
	"github.com/large-farva/playtrack/internal/demo"
	"github.com/large-farva/playtrack/internal/device"
	"github.com/large-farva/playtrack/internal/eventlog"
	"github.com/large-farva/playtrack/internal/logging"
	"github.com/large-farva/playtrack/internal/tracker"
)

type memSink struct{ events []eventlog.Event }

func (m *memSink) Append(_ context.Context, e eventlog.Event) error {
	m.events = append(m.events, e)
	return nil
}

func (m *memSink) Close() error { return nil }

func newTestApp(t *testing.T, d *demo.Device) (*App, *memSink) {
	t.Helper()
	cfg := config.Default()
	cfg.Demo.Enabled = true
	cfg.Output.CSV = filepath.Join(t.TempDir(), "progress.csv")

	sink := &memSink{}
	tr := tracker.New(d, sink, "com.example", logging.NewNop())
	tr.Interval = time.Millisecond

	a := New(Options{
		Logger:  logging.NewNop(),
		Cfg:     cfg,
		Tracker: tr,
		Prepare: func(ctx context.Context) error {
			_, err := d.Press(ctx)
			return err
		},
	})
	return a, sink
}

func get(t *testing.T, h http.Handler, path string, header ...string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if len(header) == 2 {
		req.Header.Set(header[0], header[1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var body map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestRunTracksDemoInstall(t *testing.T) {
	a, sink := newTestApp(t, demo.New("com.example", 30, 12))
	h := a.Handler()

	_, body := get(t, h, "/api/status")
	assert.Equal(t, StateBooting, body["state"])
	assert.Equal(t, "demo", body["mode"])
	disk, ok := body["disk"].(map[string]any)
	require.True(t, ok, "status reports disk usage of the log directory")
	assert.Greater(t, disk["total_bytes"], 0.0)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s, err := a.Run(ctx)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, tracker.Terminal, s.State)

	_, body = get(t, h, "/api/status")
	assert.Equal(t, StateComplete, body["state"])
	assert.Equal(t, false, body["tracking"])
	last := body["last_event"].(map[string]any)
	assert.Equal(t, "complete", last["status"])
	session := body["session"].(map[string]any)
	assert.Equal(t, 100.0, session["last_percent"])

	_, body = get(t, h, "/api/events?limit=1")
	events := body["events"].([]any)
	require.Len(t, events, 1)
	assert.Equal(t, 100.0, events[0].(map[string]any)["percent"])

	_, body = get(t, h, "/api/events")
	assert.Len(t, body["events"], len(sink.events))
}

func TestRunAlreadyInstalled(t *testing.T) {
	a, sink := newTestApp(t, demo.NewInstalled("com.example"))

	s, err := a.Run(context.Background())
	assert.ErrorIs(t, err, device.ErrAlreadyInstalled)
	assert.Nil(t, s)
	assert.Empty(t, sink.events)
	assert.Equal(t, StateInstalled, a.state.Load())
}

func TestRunCancelledContext(t *testing.T) {
	a, _ := newTestApp(t, demo.New("com.example", 5, 12))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateCancelled, a.state.Load())
}

func TestEventsRejectsBadLimit(t *testing.T) {
	a, _ := newTestApp(t, demo.New("com.example", 5, 12))
	rec, body := get(t, a.Handler(), "/api/events?limit=-3")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, false, body["ok"])

	rec, body = get(t, a.Handler(), "/api/events")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, body["events"])
}

func TestCommandWithoutSession(t *testing.T) {
	a, _ := newTestApp(t, demo.New("com.example", 5, 12))
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/cancel", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCancelCommandEndsRun(t *testing.T) {
	a, _ := newTestApp(t, demo.New("com.example", 1, 12))
	a.tracker.Interval = time.Hour
	ticked := make(chan struct{}, 1)
	onTick := a.tracker.OnTick
	a.tracker.OnTick = func(s tracker.Session) {
		onTick(s)
		select {
		case ticked <- struct{}{}:
		default:
		}
	}

	done := make(chan error, 1)
	go func() {
		_, err := a.Run(context.Background())
		done <- err
	}()
	<-ticked

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/cancel", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok":true`)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, tracker.ErrCancelled)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop")
	}
	assert.Equal(t, StateCancelled, a.state.Load())
}

func TestHealthz(t *testing.T) {
	a, _ := newTestApp(t, demo.New("com.example", 5, 12))

	rec, _ := get(t, a.Handler(), "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok\n", rec.Body.String())

	rec, body := get(t, a.Handler(), "/healthz", "Accept", "application/json")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["healthy"])

	a.cfg.Output.CSV = filepath.Join(t.TempDir(), "missing", "dir", "progress.csv")
	rec, body = get(t, a.Handler(), "/healthz", "Accept", "application/json")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, false, body["healthy"])
}

func TestVersionAndMetrics(t *testing.T) {
	a, _ := newTestApp(t, demo.New("com.example", 5, 12))

	_, body := get(t, a.Handler(), "/api/version")
	assert.Equal(t, Version, body["version"])
	assert.NotEqual(t, "unknown", body["go_version"])

	a.metrics.Ticks.Add(3)
	rec, _ := get(t, a.Handler(), "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "playtrack_ticks_total 3")
}

func TestCommandAfterSessionEnded(t *testing.T) {
	a, _ := newTestApp(t, demo.New("com.example", 5, 12))
	// A handler that saw the session running right before it ended must not
	// wait for a reply that nobody will send.
	ended := make(chan struct{})
	close(ended)
	a.ended = ended
	a.running.Store(true)

	start := time.Now()
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/poll", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "has ended")
	assert.Less(t, time.Since(start), commandTimeout)
}

func TestCommandsRejectedAfterRun(t *testing.T) {
	a, _ := newTestApp(t, demo.New("com.example", 30, 12))
	_, err := a.Run(context.Background())
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/cancel", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Empty(t, a.tracker.Commands)
}
