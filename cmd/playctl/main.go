// Playctl is the command-line client for a running playtrack instance. It
// queries status and streams live events over HTTP and WebSocket, sends
// operator commands, and reads the CSV and SQLite logs directly.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/large-farva/playtrack/internal/ctl"
)

func main() {
	var (
		host    = pflag.StringP("url", "u", "http://127.0.0.1:8077", "playtrack server URL")
		jsonOut = pflag.Bool("json", false, "Output raw JSON instead of formatted text")
		filter  = pflag.StringSlice("filter", nil, "Event types to show in watch (e.g. --filter state,progress)")
	)

	// Stop parsing global flags at the first non-flag argument (the command
	// name), so subcommand-specific flags like --limit are not rejected.
	pflag.CommandLine.SetInterspersed(false)
	pflag.Parse()

	if pflag.NArg() < 1 {
		usage()
		os.Exit(2)
	}

	cmd := pflag.Arg(0)
	subArgs := pflag.Args()[1:]

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch cmd {
	// ── Query commands ────────────────────────────────────────────
	case "status":
		err = ctl.Status(*host, *jsonOut)

	case "health":
		err = ctl.Health(*host, *jsonOut)

	case "version":
		err = ctl.VersionInfo(*host, *jsonOut)

	case "events":
		opts := ctl.EventsOptions{JSON: *jsonOut}
		evFlags := pflag.NewFlagSet("events", pflag.ContinueOnError)
		evFlags.IntVar(&opts.Limit, "limit", 0, "Show only the last N events")
		_ = evFlags.Parse(subArgs)
		err = ctl.Events(*host, opts)

	// ── Control commands ──────────────────────────────────────────
	case "cancel":
		err = ctl.Cancel(*host, *jsonOut)

	case "poll":
		err = ctl.Poll(*host, *jsonOut)

	// ── Live streaming ────────────────────────────────────────────
	case "watch":
		opts := ctl.WatchOptions{Filter: *filter, JSON: *jsonOut}
		watchFlags := pflag.NewFlagSet("watch", pflag.ContinueOnError)
		watchFlags.BoolVar(&opts.Exit, "exit", false, "Exit after the install finishes")
		_ = watchFlags.Parse(subArgs)
		err = ctl.Watch(ctx, *host, opts)

	// ── Local logs ────────────────────────────────────────────────
	case "tail":
		opts := ctl.TailOptions{JSON: *jsonOut}
		tailFlags := pflag.NewFlagSet("tail", pflag.ContinueOnError)
		tailFlags.BoolVar(&opts.Exit, "exit", false, "Exit after the final row (complete or failed)")
		_ = tailFlags.Parse(subArgs)
		path := "playstore_progress.csv"
		if tailFlags.NArg() > 0 {
			path = tailFlags.Arg(0)
		}
		err = ctl.Tail(ctx, path, opts)

	case "history":
		opts := ctl.HistoryOptions{JSON: *jsonOut}
		histFlags := pflag.NewFlagSet("history", pflag.ContinueOnError)
		db := histFlags.String("db", "playtrack.db", "SQLite event store")
		histFlags.StringVar(&opts.Session, "session", "", "Show the events of one session")
		histFlags.IntVar(&opts.Limit, "limit", 20, "Limit number of sessions listed")
		_ = histFlags.Parse(subArgs)
		err = ctl.History(ctx, *db, opts)

	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Print(`
  playctl, the playtrack control CLI

  USAGE
    playctl [flags] <command> [command-flags]

  COMMANDS (query)
    status          Show tracker state, progress, and uptime
    health          Check tracker and component health
    version         Show CLI and tracker version information
    events          List the events appended so far

  COMMANDS (control)
    cancel          Stop the running tracking session
    poll            Take the next snapshot immediately

  COMMANDS (live)
    watch           Stream live events from the tracker (Ctrl-C to stop)

  COMMANDS (local)
    tail [PATH]     Follow a CSV progress log (default: playstore_progress.csv)
    history         List sessions recorded in the SQLite store

  GLOBAL FLAGS
    -u, --url URL       Tracker base URL (default: http://127.0.0.1:8077)
        --json          Output raw JSON instead of formatted text
        --filter TYPE   Event types to show in watch (comma-separated)

  COMMAND FLAGS
    events:
        --limit N           Show only the last N events

    watch, tail:
        --exit              Exit once the install has finished

    history:
        --db PATH           SQLite event store (default: playtrack.db)
        --session ID        Show the events of one session
        --limit N           Limit number of sessions listed (default: 20)

  EXAMPLES
    playctl status
    playctl --json status
    playctl --url http://192.168.1.20:8077 watch --exit
    playctl --filter progress watch
    playctl events --limit 10
    playctl poll
    playctl cancel
    playctl tail ./progress.csv
    playctl history --db ./playtrack.db --session 3f2a...

`)
}
