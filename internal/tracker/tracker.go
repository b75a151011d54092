// Package tracker drives the observation loop: every tick it checks the
// terminal controls, takes a snapshot, extracts a reading, advances the
// session state machine, and appends what the state machine tells it to.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/large-farva/playtrack/internal/device"
	"github.com/large-farva/playtrack/internal/eventlog"
	"github.com/large-farva/playtrack/internal/extract"
	"github.com/large-farva/playtrack/internal/metrics"
)

var (
	// ErrInstallFailed is returned by Run when a failure control appeared.
	ErrInstallFailed = errors.New("install failed")

	// ErrCancelled is returned by Run when an operator sent a cancel command.
	ErrCancelled = errors.New("tracking cancelled by operator")
)

// Source produces snapshots and answers selector lookups.
type Source interface {
	Snapshot(ctx context.Context) (string, error)
	Exists(ctx context.Context, sel device.Selector) (bool, error)
}

// Clock is the time base of the loop. Sleep returns false when ctx was
// cancelled before d elapsed.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) bool
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

func (wallClock) Sleep(ctx context.Context, d time.Duration) bool {
	return sleepOrCancel(ctx, d)
}

// Command is an operator request delivered while the loop sleeps. Reply
// receives exactly one result.
type Command struct {
	Type  string
	Reply chan<- CommandResult
}

// Command types.
const (
	CommandCancel = "cancel"
	CommandPoll   = "poll"
)

// CommandResult is the answer to a Command.
type CommandResult struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Tracker owns one tracking run.
type Tracker struct {
	Source   Source
	Pipeline *extract.Pipeline
	Sink     eventlog.Sink
	Target   string

	Interval time.Duration
	Settle   time.Duration

	CompletionTexts []string
	FailureTexts    []string

	Log     *slog.Logger
	Metrics *metrics.Metrics
	Clock   Clock

	// Commands receives operator commands. It is only read between ticks.
	Commands chan Command

	// OnEvent is called after an event was appended.
	OnEvent func(eventlog.Event)
	// OnState is called on every state change.
	OnState func(from, to State)
	// OnTick is called after every tick with a copy of the session.
	OnTick func(Session)
}

// New returns a tracker with the wall clock and a command channel.
func New(src Source, sink eventlog.Sink, target string, log *slog.Logger) *Tracker {
	return &Tracker{
		Source:          src,
		Pipeline:        extract.NewPipeline(),
		Sink:            sink,
		Target:          target,
		Interval:        700 * time.Millisecond,
		CompletionTexts: []string{"Open"},
		Log:             log,
		Clock:           wallClock{},
		Commands:        make(chan Command, 4),
	}
}

// Run observes until the session reaches Terminal, ctx is cancelled, a
// cancel command arrives, or the sink fails. The returned session is never
// nil. A completed install returns a nil error; a failure control returns
// ErrInstallFailed.
func (t *Tracker) Run(ctx context.Context) (*Session, error) {
	clock := t.clock()
	s := NewSession(uuid.NewString(), t.Target, clock.Now())
	defer t.rejectPending(s)
	t.Log.Info("tracking started", "session", s.ID, "target", t.Target, "interval", t.Interval)

	if t.Settle > 0 {
		if err := t.wait(ctx, s, t.Settle); err != nil {
			return s, err
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return s, err
		}

		obs := t.observe(ctx)
		from := s.State
		action, ev := s.Advance(obs)
		if t.Metrics != nil {
			t.Metrics.Ticks.Inc()
		}

		switch action {
		case ActionEmit:
			if err := t.Sink.Append(ctx, ev); err != nil {
				return s, fmt.Errorf("append event: %w", err)
			}
			t.recordEvent(ev)
		case ActionSuppress:
			t.Log.Debug("percent unchanged", "percent", s.LastPercent)
			if t.Metrics != nil {
				t.Metrics.Suppressed.Inc()
			}
		case ActionWait:
			t.Log.Debug("no progress signal", "tick", s.Ticks)
		}

		if s.State != from {
			t.Log.Info("state changed", "from", from, "to", s.State)
			if t.OnState != nil {
				t.OnState(from, s.State)
			}
		}
		if t.OnTick != nil {
			t.OnTick(*s)
		}

		if s.State == Terminal {
			if s.Failed != "" {
				return s, fmt.Errorf("%w: %s", ErrInstallFailed, s.Failed)
			}
			t.Log.Info("install complete", "session", s.ID, "events", s.Emitted, "ticks", s.Ticks)
			return s, nil
		}

		if err := t.wait(ctx, s, t.Interval); err != nil {
			return s, err
		}
	}
}

// observe gathers one tick's worth of information. A snapshot error leaves
// the observation empty so the state machine waits.
func (t *Tracker) observe(ctx context.Context) Observation {
	clock := t.clock()
	obs := Observation{At: clock.Now()}

	// The text strategies may still read a dump the hierarchy parser rejects.
	found, err := t.lookup(ctx, t.CompletionTexts)
	if found != "" {
		obs.Complete = true
		return obs
	}
	if err == nil {
		found, err = t.lookup(ctx, t.FailureTexts)
		if found != "" {
			obs.Failure = found
			return obs
		}
	}
	if err != nil {
		t.acquisitionFailed("exists", err)
	}

	start := time.Now()
	snap, err := t.Source.Snapshot(ctx)
	if t.Metrics != nil {
		t.Metrics.SnapshotDuration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		t.acquisitionFailed("snapshot", err)
		return obs
	}

	obs.Reading = t.Pipeline.Extract(snap)
	if obs.Reading.Found() && t.Metrics != nil {
		t.Metrics.StrategyHits.WithLabelValues(obs.Reading.Strategy).Inc()
	}
	return obs
}

// lookup returns the first label of labels visible on screen.
func (t *Tracker) lookup(ctx context.Context, labels []string) (string, error) {
	for _, label := range labels {
		ok, err := t.Source.Exists(ctx, device.Text(label))
		if err != nil {
			return "", err
		}
		if ok {
			return label, nil
		}
	}
	return "", nil
}

// rejectPending answers commands that were queued after the last wait.
func (t *Tracker) rejectPending(s *Session) {
	if t.Commands == nil {
		return
	}
	for {
		select {
		case cmd := <-t.Commands:
			cmd.Reply <- CommandResult{OK: false, Error: "session " + s.ID + " has ended"}
		default:
			return
		}
	}
}

func (t *Tracker) acquisitionFailed(op string, err error) {
	t.Log.Debug("acquisition failed", "op", op, "error", err)
	if t.Metrics != nil {
		t.Metrics.AcquisitionFailures.WithLabelValues(op).Inc()
	}
}

func (t *Tracker) recordEvent(ev eventlog.Event) {
	kind := "progress"
	if ev.Terminal {
		kind = "terminal"
	}
	t.Log.Info("progress", "percent", ev.Percent, "size", ev.Size, "status", ev.Status)
	if t.Metrics != nil {
		t.Metrics.Events.WithLabelValues(kind).Inc()
		t.Metrics.Progress.Set(float64(ev.Percent))
	}
	if t.OnEvent != nil {
		t.OnEvent(ev)
	}
}

// wait sleeps for d, handling operator commands that arrive meanwhile. A
// poll command ends the sleep early; a cancel command ends the run.
func (t *Tracker) wait(ctx context.Context, s *Session, d time.Duration) error {
	if t.Commands == nil {
		if !t.clock().Sleep(ctx, d) {
			return ctx.Err()
		}
		return nil
	}

	sleepCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan bool, 1)
	go func() { done <- t.clock().Sleep(sleepCtx, d) }()

	for {
		select {
		case completed := <-done:
			if !completed && ctx.Err() != nil {
				return ctx.Err()
			}
			return nil
		case cmd := <-t.Commands:
			switch cmd.Type {
			case CommandCancel:
				cmd.Reply <- CommandResult{OK: true, Message: "cancelling session " + s.ID}
				t.Log.Info("cancel requested", "session", s.ID)
				return ErrCancelled
			case CommandPoll:
				cmd.Reply <- CommandResult{OK: true, Message: "polling now"}
				cancel()
				<-done
				return nil
			default:
				cmd.Reply <- CommandResult{OK: false, Error: "unknown command: " + cmd.Type}
			}
		}
	}
}

func (t *Tracker) clock() Clock {
	if t.Clock == nil {
		return wallClock{}
	}
	return t.Clock
}

// sleepOrCancel blocks for duration d or until the context is cancelled.
// Returns true if the sleep completed, false if interrupted.
func sleepOrCancel(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
