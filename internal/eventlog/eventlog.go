// Package eventlog persists progress events. The CSV log is the durable
// record of a tracking session; SQLite, Elasticsearch, and Redis mirrors
// receive copies on a best-effort basis.
package eventlog

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"
)

// TimestampLayout matches the ISO-8601 local timestamps of the CSV log.
const TimestampLayout = "2006-01-02T15:04:05.000000"

// Header is the first row of every CSV log.
var Header = []string{"Timestamp", "Progress(%)", "Size", "Status"}

// Event is one persisted progress record. Session and Target are carried
// for mirrors and are not part of the CSV row.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Percent   int       `json:"percent"`
	Size      string    `json:"size,omitempty"`
	Status    string    `json:"status"`
	Terminal  bool      `json:"terminal,omitempty"`
	Session   string    `json:"session,omitempty"`
	Target    string    `json:"target,omitempty"`
}

// Row renders the event as a CSV record.
func (e Event) Row() []string {
	return []string{
		e.Timestamp.Format(TimestampLayout),
		strconv.Itoa(e.Percent),
		e.Size,
		e.Status,
	}
}

// ParseRow is the inverse of Row. Timestamps are read in the local zone.
func ParseRow(row []string) (Event, error) {
	if len(row) != len(Header) {
		return Event{}, errors.New("eventlog: wrong column count")
	}
	ts, err := time.ParseInLocation(TimestampLayout, row[0], time.Local)
	if err != nil {
		return Event{}, err
	}
	pct, err := strconv.Atoi(row[1])
	if err != nil {
		return Event{}, err
	}
	return Event{Timestamp: ts, Percent: pct, Size: row[2], Status: row[3]}, nil
}

// Sink receives events in order. Append must not return before the event is
// durable for the sink's medium.
type Sink interface {
	Append(ctx context.Context, e Event) error
	Close() error
}

// Fanout writes every event to a primary sink and then to mirrors. Only a
// primary failure is returned; mirror failures are logged and reported
// through OnMirrorError.
type Fanout struct {
	Primary       Sink
	Mirrors       map[string]Sink
	Log           *slog.Logger
	OnMirrorError func(name string, err error)
}

// Append implements Sink.
func (f *Fanout) Append(ctx context.Context, e Event) error {
	if err := f.Primary.Append(ctx, e); err != nil {
		return err
	}
	for name, m := range f.Mirrors {
		if err := m.Append(ctx, e); err != nil {
			f.Log.Warn("mirror append failed", "mirror", name, "error", err)
			if f.OnMirrorError != nil {
				f.OnMirrorError(name, err)
			}
		}
	}
	return nil
}

// Close closes the mirrors and then the primary, returning the first error.
func (f *Fanout) Close() error {
	var errs []error
	for _, m := range f.Mirrors {
		errs = append(errs, m.Close())
	}
	errs = append(errs, f.Primary.Close())
	return errors.Join(errs...)
}
