package tracker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/large-farva/playtrack/internal/extract"
)

var t0 = time.Date(2026, 3, 14, 9, 26, 53, 0, time.Local)

func reading(pct int, size string) extract.Reading {
	return extract.Reading{Percent: &pct, Size: size, Strategy: "test"}
}

func TestSessionStartsAwaiting(t *testing.T) {
	s := NewSession("id", "com.example", t0)
	assert.Equal(t, -1, s.LastPercent)
	assert.Equal(t, AwaitingFirstSignal, s.State)
}

func TestAdvanceWaitsWithoutSignal(t *testing.T) {
	s := NewSession("id", "com.example", t0)
	action, _ := s.Advance(Observation{At: t0})
	assert.Equal(t, ActionWait, action)
	assert.Equal(t, AwaitingFirstSignal, s.State)
	assert.Equal(t, -1, s.LastPercent)
	assert.Equal(t, 1, s.Ticks)
}

func TestAdvanceEmitsThenSuppressesRepeat(t *testing.T) {
	s := NewSession("id", "com.example", t0)

	action, ev := s.Advance(Observation{At: t0, Reading: reading(0, "")})
	require.Equal(t, ActionEmit, action, "0% is a real first signal")
	assert.Equal(t, "Downloading: 0%", ev.Status)
	assert.Equal(t, Tracking, s.State)

	action, _ = s.Advance(Observation{At: t0, Reading: reading(0, "")})
	assert.Equal(t, ActionSuppress, action)

	action, ev = s.Advance(Observation{At: t0, Reading: reading(12, "84.9 MB")})
	require.Equal(t, ActionEmit, action)
	assert.Equal(t, "Downloading: 12% of 84.9 MB", ev.Status)
	assert.Equal(t, "id", ev.Session)
	assert.Equal(t, "com.example", ev.Target)
	assert.Equal(t, 2, s.Emitted)
}

func TestAdvanceEmitsOnDecrease(t *testing.T) {
	s := NewSession("id", "com.example", t0)
	s.Advance(Observation{Reading: reading(80, "")})
	action, ev := s.Advance(Observation{Reading: reading(5, "")})
	assert.Equal(t, ActionEmit, action)
	assert.Equal(t, 5, ev.Percent)
}

func TestAdvanceCompletionWinsOverReading(t *testing.T) {
	s := NewSession("id", "com.example", t0)
	s.Advance(Observation{Reading: reading(40, "")})

	action, ev := s.Advance(Observation{At: t0, Complete: true, Reading: reading(99, "")})
	require.Equal(t, ActionEmit, action)
	assert.Equal(t, 100, ev.Percent)
	assert.Equal(t, "Complete", ev.Size)
	assert.Equal(t, "complete", ev.Status)
	assert.True(t, ev.Terminal)
	assert.Equal(t, Terminal, s.State)
}

func TestAdvanceCompletionAfterHundredIsStillEmitted(t *testing.T) {
	s := NewSession("id", "com.example", t0)
	s.Advance(Observation{Reading: reading(100, "")})
	action, ev := s.Advance(Observation{Complete: true})
	assert.Equal(t, ActionEmit, action)
	assert.True(t, ev.Terminal)
	assert.Equal(t, 100, ev.Percent)
	assert.Equal(t, StatusComplete, ev.Status)
	assert.Equal(t, 2, s.Emitted, "the terminal row follows the 100% row")
}

func TestAdvanceFailureKeepsLastPercent(t *testing.T) {
	s := NewSession("id", "com.example", t0)
	s.Advance(Observation{Reading: reading(30, "")})

	action, ev := s.Advance(Observation{Failure: "Retry", Reading: reading(31, "")})
	require.Equal(t, ActionEmit, action)
	assert.Equal(t, 30, ev.Percent)
	assert.Equal(t, "failed: Retry", ev.Status)
	assert.True(t, ev.Terminal)
	assert.Equal(t, "Retry", s.Failed)
}

func TestAdvanceFailureBeforeAnySignal(t *testing.T) {
	s := NewSession("id", "com.example", t0)
	_, ev := s.Advance(Observation{Failure: "Retry"})
	assert.Equal(t, 0, ev.Percent)
}

func TestAdvanceTerminalIsAbsorbing(t *testing.T) {
	s := NewSession("id", "com.example", t0)
	s.Advance(Observation{Complete: true})
	ticks := s.Ticks

	for _, obs := range []Observation{{Complete: true}, {Reading: reading(5, "")}, {Failure: "Retry"}} {
		action, ev := s.Advance(obs)
		assert.Equal(t, ActionFinish, action)
		assert.Zero(t, ev)
	}
	assert.Equal(t, ticks, s.Ticks)
	assert.Equal(t, 1, s.Emitted)
}

func TestStateAndActionStrings(t *testing.T) {
	assert.Equal(t, "TRACKING", Tracking.String())
	assert.Equal(t, "State(9)", State(9).String())
	assert.Equal(t, "suppress", ActionSuppress.String())
}

func TestIsTerminalStatus(t *testing.T) {
	assert.True(t, IsTerminalStatus(StatusComplete))
	assert.True(t, IsTerminalStatus(FailedPrefix+"Retry"))
	assert.False(t, IsTerminalStatus("Downloading: 40%"))
	assert.False(t, IsTerminalStatus(""))

	s := NewSession("id", "com.example", t0)
	_, ev := s.Advance(Observation{At: t0, Failure: "Retry"})
	assert.True(t, IsTerminalStatus(ev.Status), "failure rows are recognised from the status alone")
}
