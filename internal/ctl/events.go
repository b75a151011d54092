package ctl

import (
	"fmt"
	"strings"

	"github.com/large-farva/playtrack/internal/eventlog"
)

// EventsOptions configures the events command.
type EventsOptions struct {
	Limit int
	JSON  bool
}

// Events lists the events the running tracker has appended so far.
func Events(baseURL string, opts EventsOptions) error {
	baseURL = strings.TrimRight(baseURL, "/")

	path := "/api/events"
	if opts.Limit > 0 {
		path += fmt.Sprintf("?limit=%d", opts.Limit)
	}

	var resp struct {
		Events []eventlog.Event `json:"events"`
	}
	if err := getJSON(baseURL, path, &resp); err != nil {
		return err
	}

	if opts.JSON {
		return printJSON(resp)
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, header("  EVENTS"))
	fmt.Fprintln(out, rule(60))
	if len(resp.Events) == 0 {
		fmt.Fprintln(out, colorize(dim, "  no events yet"))
	}
	for _, e := range resp.Events {
		printEventRow(e)
	}
	fmt.Fprintln(out)
	return nil
}

// printEventRow renders one event as a table row.
func printEventRow(e eventlog.Event) {
	fmt.Fprintf(out, "  %s  %3d%%  %-10s %s\n",
		colorize(dim, e.Timestamp.Format("15:04:05.000")),
		e.Percent,
		e.Size,
		colorize(statusColor(e.Status, e.Terminal), e.Status),
	)
}
