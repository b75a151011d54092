package tracker

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/large-farva/playtrack/internal/device"
	"github.com/large-farva/playtrack/internal/eventlog"
	"github.com/large-farva/playtrack/internal/extract"
	"github.com/large-farva/playtrack/internal/logging"
	"github.com/large-farva/playtrack/internal/metrics"
)

// frame is what the scripted device shows during one tick.
type frame struct {
	text      string
	controls  []string
	snapErr   error
	existsErr error
}

var completeFrame = frame{controls: []string{"Open"}}

type scriptedSource struct {
	mu        sync.Mutex
	frames    []frame
	idx       int
	snapshots int
}

func (s *scriptedSource) current() frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames[min(s.idx, len(s.frames)-1)]
}

func (s *scriptedSource) advance() {
	s.mu.Lock()
	s.idx++
	s.mu.Unlock()
}

func (s *scriptedSource) Snapshot(context.Context) (string, error) {
	f := s.current()
	s.mu.Lock()
	s.snapshots++
	s.mu.Unlock()
	return f.text, f.snapErr
}

func (s *scriptedSource) Exists(_ context.Context, sel device.Selector) (bool, error) {
	f := s.current()
	if f.existsErr != nil {
		return false, f.existsErr
	}
	return slices.Contains(f.controls, sel.Text), nil
}

// fakeClock moves the scripted device to its next frame on every sleep.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	src    *scriptedSource
	sleeps []time.Duration
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.sleeps = append(c.sleeps, d)
	c.mu.Unlock()
	c.src.advance()
	return true
}

type memSink struct {
	mu     sync.Mutex
	events []eventlog.Event
	err    error
}

func (m *memSink) Append(_ context.Context, e eventlog.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, e)
	return nil
}

func (m *memSink) Close() error { return nil }

func newScripted(sink eventlog.Sink, frames ...frame) (*Tracker, *scriptedSource, *fakeClock) {
	src := &scriptedSource{frames: frames}
	clock := &fakeClock{now: t0, src: src}
	return &Tracker{
		Source:          src,
		Pipeline:        extract.NewPipeline(),
		Sink:            sink,
		Target:          "com.example",
		Interval:        time.Second,
		CompletionTexts: []string{"Open"},
		Log:             logging.NewNop(),
		Metrics:         metrics.New(),
		Clock:           clock,
	}, src, clock
}

func TestRunScriptedInstall(t *testing.T) {
	sink := &memSink{}
	tr, _, _ := newScripted(sink,
		frame{text: ""},
		frame{text: "10%"},
		frame{text: "10%"},
		frame{text: "55% of 120 MB"},
		completeFrame,
	)

	s, err := tr.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Terminal, s.State)
	assert.Equal(t, 5, s.Ticks)

	require.Len(t, sink.events, 3)
	want := []struct {
		at   time.Time
		pct  int
		size string
	}{
		{t0.Add(1 * time.Second), 10, ""},
		{t0.Add(3 * time.Second), 55, "120 MB"},
		{t0.Add(4 * time.Second), 100, "Complete"},
	}
	for i, w := range want {
		assert.True(t, w.at.Equal(sink.events[i].Timestamp), "event %d at %s", i, sink.events[i].Timestamp)
		assert.Equal(t, w.pct, sink.events[i].Percent)
		assert.Equal(t, w.size, sink.events[i].Size)
		assert.Equal(t, s.ID, sink.events[i].Session)
	}

	m := tr.Metrics
	assert.Equal(t, 5.0, testutil.ToFloat64(m.Ticks))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Events.WithLabelValues("progress")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Events.WithLabelValues("terminal")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Suppressed))
	assert.Equal(t, 100.0, testutil.ToFloat64(m.Progress))
}

func TestRunRepeatedPercentLogsOnce(t *testing.T) {
	sink := &memSink{}
	tr, _, _ := newScripted(sink, frame{text: "33%"}, frame{text: "33%"}, frame{text: "33%"}, completeFrame)

	_, err := tr.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, sink.events, 2)
	assert.Equal(t, 33, sink.events[0].Percent)
	assert.True(t, sink.events[1].Terminal)
}

func TestRunStopsTickingAfterCompletion(t *testing.T) {
	sink := &memSink{}
	tr, src, clock := newScripted(sink, completeFrame, frame{text: "50%"})

	s, err := tr.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, s.Ticks)
	assert.Empty(t, clock.sleeps, "no sleep after the terminal tick")
	assert.Zero(t, src.snapshots, "completion is checked before the snapshot")
	require.Len(t, sink.events, 1)
	assert.Equal(t, 100, sink.events[0].Percent)
}

func TestRunSettlesBeforeFirstTick(t *testing.T) {
	sink := &memSink{}
	tr, _, clock := newScripted(sink, frame{text: "skipped"}, frame{text: "20%"}, completeFrame)
	tr.Settle = 2 * time.Second

	_, err := tr.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{2 * time.Second, time.Second}, clock.sleeps)
	assert.True(t, sink.events[0].Timestamp.Equal(t0.Add(2*time.Second)))
}

func TestRunToleratesAcquisitionErrors(t *testing.T) {
	sink := &memSink{}
	boom := errors.New("device offline")
	tr, _, _ := newScripted(sink,
		frame{snapErr: boom},
		frame{existsErr: boom},
		frame{text: "64%"},
		completeFrame,
	)

	s, err := tr.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, s.Ticks)
	require.Len(t, sink.events, 2)
	assert.Equal(t, 64, sink.events[0].Percent)
	assert.Equal(t, 1.0, testutil.ToFloat64(tr.Metrics.AcquisitionFailures.WithLabelValues("snapshot")))
	assert.Equal(t, 1.0, testutil.ToFloat64(tr.Metrics.AcquisitionFailures.WithLabelValues("exists")))
}

func TestRunFailureControl(t *testing.T) {
	sink := &memSink{}
	tr, _, _ := newScripted(sink, frame{text: "30%"}, frame{controls: []string{"Retry"}})
	tr.FailureTexts = []string{"Retry"}

	s, err := tr.Run(context.Background())
	require.ErrorIs(t, err, ErrInstallFailed)
	assert.Contains(t, err.Error(), "Retry")
	assert.Equal(t, Terminal, s.State)
	require.Len(t, sink.events, 2)
	assert.Equal(t, "failed: Retry", sink.events[1].Status)
	assert.Equal(t, 30, sink.events[1].Percent)
}

func TestRunSinkFailureIsFatal(t *testing.T) {
	diskFull := errors.New("no space left on device")
	tr, src, _ := newScripted(&memSink{err: diskFull}, frame{text: "5%"}, frame{text: "6%"})

	s, err := tr.Run(context.Background())
	require.ErrorIs(t, err, diskFull)
	assert.Equal(t, 1, s.Ticks)
	assert.Equal(t, 1, src.snapshots)
}

func TestRunCancelledContext(t *testing.T) {
	sink := &memSink{}
	tr, _, _ := newScripted(sink, frame{text: "5%"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s, err := tr.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotNil(t, s)
	assert.Empty(t, sink.events)
}

func TestRunHooks(t *testing.T) {
	sink := &memSink{}
	tr, _, _ := newScripted(sink, frame{text: "10%"}, completeFrame)

	var (
		events      []int
		transitions []string
		ticks       int
	)
	tr.OnEvent = func(e eventlog.Event) { events = append(events, e.Percent) }
	tr.OnState = func(from, to State) { transitions = append(transitions, from.String()+">"+to.String()) }
	tr.OnTick = func(Session) { ticks++ }

	_, err := tr.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{10, 100}, events)
	assert.Equal(t, []string{"AWAITING_FIRST_SIGNAL>TRACKING", "TRACKING>TERMINAL"}, transitions)
	assert.Equal(t, 2, ticks)
}

func TestRunWritesCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.csv")
	sink, err := eventlog.OpenCSV(path)
	require.NoError(t, err)

	tr, _, _ := newScripted(sink, frame{text: `<hierarchy><node text="47%&#160;of 84.9 MB" /></hierarchy>`}, completeFrame)
	_, err = tr.Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, sink.Close())

	events, err := eventlog.ReadCSV(path)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "Downloading: 47% of 84.9 MB", events[0].Status)
	assert.Equal(t, "complete", events[1].Status)
}

// The command tests use the wall clock with a long interval so the loop is
// parked in wait when the command arrives.
func newCommanded(frames ...frame) (*Tracker, *scriptedSource, *memSink) {
	src := &scriptedSource{frames: frames}
	sink := &memSink{}
	tr := New(src, sink, "com.example", logging.NewNop())
	tr.Interval = time.Hour
	return tr, src, sink
}

func sendCommand(t *testing.T, tr *Tracker, typ string) CommandResult {
	t.Helper()
	reply := make(chan CommandResult, 1)
	tr.Commands <- Command{Type: typ, Reply: reply}
	select {
	case res := <-reply:
		return res
	case <-time.After(2 * time.Second):
		t.Fatalf("no reply to %s", typ)
		return CommandResult{}
	}
}

func TestRunCancelCommand(t *testing.T) {
	tr, _, sink := newCommanded(frame{text: "10%"})
	first := make(chan struct{})
	tr.OnTick = func(Session) { close(first) }

	done := make(chan error, 1)
	go func() {
		_, err := tr.Run(context.Background())
		done <- err
	}()
	<-first

	res := sendCommand(t, tr, CommandCancel)
	assert.True(t, res.OK)
	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrCancelled)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop")
	}
	assert.Len(t, sink.events, 1)
}

func TestRunPollCommand(t *testing.T) {
	tr, src, sink := newCommanded(frame{text: "10%"}, completeFrame)
	first := make(chan struct{}, 4)
	tr.OnTick = func(Session) { first <- struct{}{} }

	done := make(chan error, 1)
	go func() {
		_, err := tr.Run(context.Background())
		done <- err
	}()
	<-first

	res := sendCommand(t, tr, "rewind")
	assert.False(t, res.OK)

	src.advance()
	res = sendCommand(t, tr, CommandPoll)
	assert.True(t, res.OK)
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("poll did not trigger a tick")
	}
	require.Len(t, sink.events, 2)
	assert.True(t, sink.events[1].Terminal)
}

func TestRunReadsSnapshotWhenLookupFails(t *testing.T) {
	sink := &memSink{}
	malformed := errors.New("XML syntax error on line 1")
	tr, src, _ := newScripted(sink,
		frame{text: "45% of 80 MB", existsErr: malformed},
		completeFrame,
	)

	s, err := tr.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, s.Ticks)
	assert.Equal(t, 1, src.snapshots)
	require.Len(t, sink.events, 2)
	assert.Equal(t, 45, sink.events[0].Percent)
	assert.Equal(t, "80 MB", sink.events[0].Size)
	assert.Equal(t, 1.0, testutil.ToFloat64(tr.Metrics.AcquisitionFailures.WithLabelValues("exists")))
}

func TestRunAnswersCommandsQueuedAtExit(t *testing.T) {
	tr, _, _ := newCommanded(completeFrame)
	reply := make(chan CommandResult, 1)
	tr.Commands <- Command{Type: CommandPoll, Reply: reply}

	_, err := tr.Run(context.Background())
	require.NoError(t, err)

	select {
	case res := <-reply:
		assert.False(t, res.OK)
		assert.Contains(t, res.Error, "has ended")
	default:
		t.Fatal("queued command left unanswered")
	}
	assert.Empty(t, tr.Commands)
}
