package tracker

import (
	"fmt"
	"strings"
	"time"

	"github.com/large-farva/playtrack/internal/eventlog"
	"github.com/large-farva/playtrack/internal/extract"
)

// State is the lifecycle position of a tracking session.
type State int

const (
	AwaitingFirstSignal State = iota
	Tracking
	Terminal
)

func (s State) String() string {
	switch s {
	case AwaitingFirstSignal:
		return "AWAITING_FIRST_SIGNAL"
	case Tracking:
		return "TRACKING"
	case Terminal:
		return "TERMINAL"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Action tells the driver loop what to do with the result of one tick.
type Action int

const (
	// ActionWait means no signal was found; try again next tick.
	ActionWait Action = iota
	// ActionEmit means the returned event must be appended.
	ActionEmit
	// ActionSuppress means the reading repeated the last emitted percent.
	ActionSuppress
	// ActionFinish is returned for every tick after the session ended.
	ActionFinish
)

func (a Action) String() string {
	switch a {
	case ActionWait:
		return "wait"
	case ActionEmit:
		return "emit"
	case ActionSuppress:
		return "suppress"
	case ActionFinish:
		return "finish"
	default:
		return fmt.Sprintf("Action(%d)", int(a))
	}
}

// Status texts of the terminal events.
const (
	StatusComplete = "complete"
	SizeComplete   = "Complete"
	FailedPrefix   = "failed: "
)

// IsTerminalStatus reports whether status belongs to a session's last
// event. The CSV log carries no terminal column, so readers of the log
// recognise the end of a session by its status text.
func IsTerminalStatus(status string) bool {
	return status == StatusComplete || strings.HasPrefix(status, FailedPrefix)
}

// Observation is everything the driver learned during one tick.
type Observation struct {
	At       time.Time
	Complete bool
	// Failure is the label of the failure control on screen, if any.
	Failure string
	Reading extract.Reading
}

// Session is the state of one tracking run. It is owned by the driver loop
// and mutated only through Advance.
type Session struct {
	ID          string    `json:"id"`
	Target      string    `json:"target"`
	Started     time.Time `json:"started"`
	LastPercent int       `json:"last_percent"`
	State       State     `json:"-"`
	Ticks       int       `json:"ticks"`
	Emitted     int       `json:"emitted"`
	Failed      string    `json:"failed,omitempty"`
}

// NewSession starts a session that has not seen any progress yet.
func NewSession(id, target string, started time.Time) *Session {
	return &Session{
		ID:          id,
		Target:      target,
		Started:     started,
		LastPercent: -1,
		State:       AwaitingFirstSignal,
	}
}

// Advance applies one observation. Completion wins over failure, and both
// win over any reading taken in the same tick. Once the session is Terminal
// every call returns ActionFinish and changes nothing.
func (s *Session) Advance(obs Observation) (Action, eventlog.Event) {
	if s.State == Terminal {
		return ActionFinish, eventlog.Event{}
	}
	s.Ticks++

	switch {
	case obs.Complete:
		return s.finish(obs.At, 100, SizeComplete, StatusComplete)

	case obs.Failure != "":
		s.Failed = obs.Failure
		return s.finish(obs.At, max(s.LastPercent, 0), "", FailedPrefix+obs.Failure)

	case !obs.Reading.Found():
		return ActionWait, eventlog.Event{}
	}

	pct := obs.Reading.Value()
	s.State = Tracking
	if pct == s.LastPercent {
		return ActionSuppress, eventlog.Event{}
	}

	s.LastPercent = pct
	s.Emitted++
	return ActionEmit, s.event(obs.At, pct, obs.Reading.Size, progressStatus(pct, obs.Reading.Size), false)
}

// finish ends the session with a terminal event. The terminal event is
// always written, even when it repeats the percent of the previous row
// (a last reading of 100% followed by completion); consumers key on the
// terminal row, not on a percent change.
func (s *Session) finish(at time.Time, pct int, size, status string) (Action, eventlog.Event) {
	s.State = Terminal
	s.LastPercent = pct
	s.Emitted++
	return ActionEmit, s.event(at, pct, size, status, true)
}

func (s *Session) event(at time.Time, pct int, size, status string, terminal bool) eventlog.Event {
	return eventlog.Event{
		Timestamp: at,
		Percent:   pct,
		Size:      size,
		Status:    status,
		Terminal:  terminal,
		Session:   s.ID,
		Target:    s.Target,
	}
}

func progressStatus(pct int, size string) string {
	if size == "" {
		return fmt.Sprintf("Downloading: %d%%", pct)
	}
	return fmt.Sprintf("Downloading: %d%% of %s", pct, size)
}
