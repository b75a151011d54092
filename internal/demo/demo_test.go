package demo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/large-farva/playtrack/internal/device"
	"github.com/large-farva/playtrack/internal/eventlog"
	"github.com/large-farva/playtrack/internal/extract"
	"github.com/large-farva/playtrack/internal/logging"
	"github.com/large-farva/playtrack/internal/tracker"
)

func TestDeviceShowsInstallUntilPressed(t *testing.T) {
	ctx := context.Background()
	d := New("com.example", 7, 84.9)

	ok, err := d.Exists(ctx, device.Text("Install"))
	require.NoError(t, err)
	assert.True(t, ok)

	label, err := d.Press(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Install", label)

	ok, err = d.Exists(ctx, device.Text("Install"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInstalledDeviceRefusesPress(t *testing.T) {
	d := NewInstalled("com.example")
	label, err := d.Press(context.Background())
	assert.ErrorIs(t, err, device.ErrAlreadyInstalled)
	assert.Equal(t, "Open", label)
}

func TestSimulationIsMonotonicAndUsesEveryShape(t *testing.T) {
	ctx := context.Background()
	d := New("com.example", 9, 120)
	_, err := d.Press(ctx)
	require.NoError(t, err)

	p := extract.NewPipeline()
	last := -1
	strategies := map[string]bool{}
	for range 200 {
		open, err := d.Exists(ctx, device.Text("Open"))
		require.NoError(t, err)
		if open {
			break
		}
		snap, err := d.Snapshot(ctx)
		require.NoError(t, err)
		r := p.Extract(snap)
		if !r.Found() {
			continue
		}
		assert.GreaterOrEqual(t, r.Value(), last)
		last = r.Value()
		strategies[r.Strategy] = true
	}

	assert.Equal(t, 100, last)
	assert.Equal(t, 100, d.Percent())
	assert.True(t, strategies["percent-of-size"])
	assert.True(t, strategies["progress-widget"])
}

func TestDemoDrivesTracker(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	d := New("com.example", 25, 10)
	_, err := d.Press(ctx)
	require.NoError(t, err)

	sink := &collect{}
	tr := tracker.New(d, sink, "com.example", logging.NewNop())
	tr.Interval = time.Millisecond

	s, err := tr.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, tracker.Terminal, s.State)
	require.NotEmpty(t, sink.events)
	final := sink.events[len(sink.events)-1]
	assert.Equal(t, "complete", final.Status)
	progress := sink.events[:len(sink.events)-1]
	for i := 1; i < len(progress); i++ {
		assert.NotEqual(t, progress[i-1].Percent, progress[i].Percent, "no consecutive duplicates")
	}
}

type collect struct{ events []eventlog.Event }

func (c *collect) Append(_ context.Context, e eventlog.Event) error {
	c.events = append(c.events, e)
	return nil
}

func (c *collect) Close() error { return nil }
