package ctl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/large-farva/playtrack/internal/eventlog"
	"github.com/large-farva/playtrack/internal/tracker"
)

// TailOptions configures the tail command.
type TailOptions struct {
	JSON bool
	// Exit returns after the session's last row (completion or failure)
	// instead of following forever.
	Exit bool
}

// errDone stops Follow once the last row of a session was printed.
var errDone = errors.New("done")

// Tail prints the rows of a CSV progress log and keeps printing rows as they
// are appended. It works without a running tracker server.
func Tail(ctx context.Context, path string, opts TailOptions) error {
	if !opts.JSON {
		fmt.Fprintln(out)
		fmt.Fprintf(out, "  %s %s\n", colorize(green, "following"), colorize(dim, path))
		fmt.Fprintln(out, rule(60))
	}

	err := eventlog.Follow(ctx, path, func(e eventlog.Event) error {
		if opts.JSON {
			b, err := json.Marshal(e)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(b))
		} else {
			printEventRow(e)
		}
		if opts.Exit && tracker.IsTerminalStatus(e.Status) {
			return errDone
		}
		return nil
	})
	if errors.Is(err, errDone) {
		return nil
	}
	return err
}
