package ctl

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// WatchOptions controls the watch command behavior.
type WatchOptions struct {
	Filter []string // event types to show (empty = all)
	JSON   bool     // output raw JSON per event
	// Exit returns after the terminal progress event instead of waiting for
	// the server to close the connection.
	Exit bool
}

// Watch connects to the tracker's WebSocket endpoint and streams events to
// the terminal in a human-readable format until ctx is cancelled or the
// connection closes.
func Watch(ctx context.Context, baseURL string, opts WatchOptions) error {
	u, err := wsURL(baseURL)
	if err != nil {
		return err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	if !opts.JSON {
		fmt.Fprintln(out)
		fmt.Fprintf(out, "  %s %s\n", colorize(green, "connected"), colorize(dim, u))
		if len(opts.Filter) > 0 {
			fmt.Fprintf(out, "  %s %s\n", colorize(dim, "filter:"), colorize(dim, strings.Join(opts.Filter, ", ")))
		}
		fmt.Fprintln(out, rule(50))
		fmt.Fprintln(out)
	}

	// Build a filter set for O(1) lookup.
	filterSet := make(map[string]bool, len(opts.Filter))
	for _, f := range opts.Filter {
		filterSet[f] = true
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}

			var ev map[string]any
			_ = json.Unmarshal(msg, &ev)
			evType, _ := ev["type"].(string)

			if len(filterSet) == 0 || filterSet[evType] {
				if opts.JSON {
					fmt.Fprintln(out, string(msg))
				} else {
					renderEvent(msg)
				}
			}

			if terminal, _ := ev["terminal"].(bool); opts.Exit && evType == "progress" && terminal {
				return
			}
		}
	}()

	select {
	case <-ctx.Done():
		if !opts.JSON {
			fmt.Fprintln(out)
			fmt.Fprintln(out, colorize(dim, "  disconnecting..."))
		}
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
			time.Now().Add(1*time.Second),
		)
		return nil
	case <-done:
		return nil
	}
}

// wsURL turns an http(s) base URL into the tracker's /ws endpoint.
func wsURL(baseURL string) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	u.Path = "/ws"
	u.RawQuery = ""
	return u.String(), nil
}

// renderEvent parses a JSON event and prints it in a human-friendly format.
// Falls back to raw JSON for unrecognized event types.
func renderEvent(raw []byte) {
	var ev map[string]any
	if err := json.Unmarshal(raw, &ev); err != nil {
		fmt.Fprintf(out, "  %s\n", string(raw))
		return
	}

	evType, _ := ev["type"].(string)
	ts := formatEventTime(ev)

	switch evType {
	case "heartbeat":
		// Heartbeats are noisy, so show them dimmed on a single line.
		state, _ := ev["state"].(string)
		uptime, _ := ev["uptime_seconds"].(float64)
		uptimeStr := formatDuration(time.Duration(uptime) * time.Second)
		fmt.Fprintf(out, "  %s %s  %s  up %s\n",
			colorize(dim, ts),
			colorize(dim, "heartbeat"),
			colorize(stateColor(state), state),
			colorize(dim, uptimeStr),
		)

	case "state":
		from, _ := ev["from"].(string)
		to, _ := ev["to"].(string)
		fmt.Fprintf(out, "  %s %s  %s %s %s\n",
			colorize(dim, ts),
			colorize(bold, "STATE"),
			colorize(stateColor(from), from),
			colorize(dim, "->"),
			colorize(stateColor(to), to),
		)

	case "log":
		level, _ := ev["level"].(string)
		message, _ := ev["message"].(string)
		fmt.Fprintf(out, "  %s %s  %s\n", colorize(dim, ts), formatLogLevel(level), message)

	case "progress":
		pct, _ := ev["percent"].(float64)
		status, _ := ev["status"].(string)
		terminal, _ := ev["terminal"].(bool)
		fmt.Fprintf(out, "  %s %s  [%s] %3.0f%%  %s\n",
			colorize(dim, ts),
			colorize(cyan, padRight("progress", 9)),
			progressBar(int(pct), 20),
			pct,
			colorize(statusColor(status, terminal), status),
		)

	default:
		// Unknown event type; dump as indented JSON so nothing is lost.
		pretty, err := json.MarshalIndent(ev, "  ", "  ")
		if err != nil {
			fmt.Fprintf(out, "  %s\n", string(raw))
			return
		}
		fmt.Fprintf(out, "  %s\n", string(pretty))
	}
}

// formatEventTime extracts and shortens the timestamp from an event.
func formatEventTime(ev map[string]any) string {
	tsRaw, ok := ev["ts"].(string)
	if !ok {
		return "        "
	}
	t, err := time.Parse(time.RFC3339Nano, tsRaw)
	if err != nil {
		return tsRaw[:min(len(tsRaw), 10)]
	}
	return t.Local().Format("15:04:05")
}

// formatLogLevel returns a colored, fixed-width log level label.
func formatLogLevel(level string) string {
	switch level {
	case "info":
		return colorize(green, "INFO ")
	case "warn":
		return colorize(yellow, "WARN ")
	case "error":
		return colorize(red, "ERROR")
	default:
		return padRight(level, 5)
	}
}
