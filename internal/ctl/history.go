package ctl

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/large-farva/playtrack/internal/eventlog"
)

// HistoryOptions configures the history command.
type HistoryOptions struct {
	// Session selects one session; empty lists sessions.
	Session string
	Limit   int
	JSON    bool
}

// History reads past sessions from the SQLite event store.
// A missing database is an error; opening it would create an empty one.
func History(ctx context.Context, dbPath string, opts HistoryOptions) error {
	if _, err := os.Stat(dbPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("no event store at %s", dbPath)
		}
		return err
	}
	store, err := eventlog.OpenSQLite(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	if opts.Session != "" {
		events, err := store.History(ctx, opts.Session)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return fmt.Errorf("no events recorded for session %s", opts.Session)
		}
		if opts.JSON {
			return printJSON(map[string]any{"session": opts.Session, "events": events})
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out, header("  SESSION "+opts.Session))
		fmt.Fprintf(out, "  %s %s\n", colorize(dim, "target:"), events[0].Target)
		fmt.Fprintln(out, rule(60))
		for _, e := range events {
			e.Timestamp = e.Timestamp.Local()
			printEventRow(e)
		}
		fmt.Fprintln(out)
		return nil
	}

	sessions, err := store.Sessions(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if opts.JSON {
		if sessions == nil {
			sessions = []eventlog.SessionSummary{}
		}
		return printJSON(map[string]any{"sessions": sessions})
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, header("  SESSIONS"))
	fmt.Fprintln(out, rule(78))
	if len(sessions) == 0 {
		fmt.Fprintln(out, colorize(dim, "  no sessions recorded"))
	}
	for _, s := range sessions {
		result := colorize(yellow, "incomplete")
		if s.Terminal {
			result = colorize(green, "finished")
		}
		fmt.Fprintf(out, "  %s  %s  %-28s %3d%%  %3d events  %s\n",
			shortID(s.Session),
			colorize(dim, s.Started.Local().Format("2006-01-02 15:04")),
			s.Target,
			s.Last,
			s.Events,
			result,
		)
	}
	fmt.Fprintln(out)
	return nil
}

// shortID trims a session UUID to its first group.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
