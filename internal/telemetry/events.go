// Package telemetry defines the typed event structs that flow over the
// WebSocket connection between playtrack and its clients.
package telemetry

import (
	"time"

	"github.com/large-farva/playtrack/internal/eventlog"
)

// EventType identifies the kind of WebSocket event.
type EventType string

const (
	EventHeartbeat EventType = "heartbeat"
	EventState     EventType = "state"
	EventProgress  EventType = "progress"
	EventLog       EventType = "log"
)

// Event is the base envelope shared by every event type.
type Event struct {
	Type EventType `json:"type"`
	TS   string    `json:"ts"`
}

// NowTS returns the current UTC time as an RFC 3339 nano string, matching the
// timestamp format used across all events.
func NowTS() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func envelope(t EventType) Event {
	return Event{Type: t, TS: NowTS()}
}

// Heartbeat is sent periodically so clients can detect connectivity and
// monitor uptime.
type Heartbeat struct {
	Event
	State         string `json:"state"`
	Percent       int    `json:"percent"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// NewHeartbeat stamps a heartbeat.
func NewHeartbeat(state string, percent int, uptime time.Duration) Heartbeat {
	return Heartbeat{Event: envelope(EventHeartbeat), State: state, Percent: percent, UptimeSeconds: int64(uptime.Seconds())}
}

// StateTransition is emitted whenever the tracker moves between states
// (e.g. AWAITING_FIRST_SIGNAL -> TRACKING).
type StateTransition struct {
	Event
	From string `json:"from"`
	To   string `json:"to"`
}

// NewStateTransition stamps a transition.
func NewStateTransition(from, to string) StateTransition {
	return StateTransition{Event: envelope(EventState), From: from, To: to}
}

// Progress carries one appended log event.
type Progress struct {
	Event
	Session   string `json:"session"`
	Target    string `json:"target"`
	Timestamp string `json:"timestamp"`
	Percent   int    `json:"percent"`
	Size      string `json:"size,omitempty"`
	Status    string `json:"status"`
	Terminal  bool   `json:"terminal,omitempty"`
}

// NewProgress converts a persisted event into its wire form.
func NewProgress(e eventlog.Event) Progress {
	return Progress{
		Event:     envelope(EventProgress),
		Session:   e.Session,
		Target:    e.Target,
		Timestamp: e.Timestamp.Format(eventlog.TimestampLayout),
		Percent:   e.Percent,
		Size:      e.Size,
		Status:    e.Status,
		Terminal:  e.Terminal,
	}
}

// LogLine carries a human-readable log message at a severity level.
type LogLine struct {
	Event
	Level   string `json:"level"`
	Message string `json:"message"`
}

// NewLogLine stamps a log line.
func NewLogLine(level, message string) LogLine {
	return LogLine{Event: envelope(EventLog), Level: level, Message: message}
}
