package ctl

import (
	"fmt"
	"strings"
	"time"

	"github.com/large-farva/playtrack/internal/eventlog"
)

// StatusResponse mirrors the JSON returned by GET /api/status.
type StatusResponse struct {
	Name          string `json:"name"`
	State         string `json:"state"`
	Tracking      bool   `json:"tracking"`
	Mode          string `json:"mode"`
	Serial        string `json:"serial"`
	Target        string `json:"target"`
	CSV           string `json:"csv"`
	PollMS        int    `json:"poll_ms"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	WSClients     int    `json:"ws_clients"`
	Session       struct {
		ID          string `json:"id"`
		LastPercent int    `json:"last_percent"`
		Ticks       int    `json:"ticks"`
		Emitted     int    `json:"emitted"`
	} `json:"session"`
	LastEvent *eventlog.Event `json:"last_event"`
	Disk      *struct {
		AvailableBytes int64 `json:"available_bytes"`
	} `json:"disk"`
}

// Status fetches the tracker status and prints a formatted summary.
func Status(baseURL string, jsonOutput bool) error {
	baseURL = strings.TrimRight(baseURL, "/")

	var s StatusResponse
	if err := getJSON(baseURL, "/api/status", &s); err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(s)
	}

	uptime := formatDuration(time.Duration(s.UptimeSeconds) * time.Second)
	stateStr := colorize(stateColor(s.State), s.State)

	fmt.Fprintln(out)
	fmt.Fprintln(out, header("  PLAYTRACK STATUS"))
	fmt.Fprintln(out, rule(38))
	fmt.Fprintf(out, "  %-12s %s\n", colorize(dim, "Target:"), s.Target)
	fmt.Fprintf(out, "  %-12s %s\n", colorize(dim, "State:"), stateStr)
	if s.Session.LastPercent >= 0 {
		fmt.Fprintf(out, "  %-12s [%s] %d%%\n", colorize(dim, "Progress:"), progressBar(s.Session.LastPercent, 20), s.Session.LastPercent)
	}
	if s.LastEvent != nil {
		fmt.Fprintf(out, "  %-12s %s\n", colorize(dim, "Last:"), colorize(statusColor(s.LastEvent.Status, s.LastEvent.Terminal), s.LastEvent.Status))
	}
	if s.Session.ID != "" {
		fmt.Fprintf(out, "  %-12s %s (%d ticks, %d events)\n", colorize(dim, "Session:"), s.Session.ID, s.Session.Ticks, s.Session.Emitted)
	}
	mode := s.Mode
	if s.Serial != "" {
		mode += " " + s.Serial
	}
	fmt.Fprintf(out, "  %-12s %s\n", colorize(dim, "Device:"), mode)
	fmt.Fprintf(out, "  %-12s %s\n", colorize(dim, "Log:"), s.CSV)
	if s.Disk != nil {
		fmt.Fprintf(out, "  %-12s %s free\n", colorize(dim, "Disk:"), formatBytes(s.Disk.AvailableBytes))
	}
	fmt.Fprintf(out, "  %-12s %s\n", colorize(dim, "Uptime:"), uptime)
	fmt.Fprintf(out, "  %-12s %s (%d watching)\n", colorize(dim, "Host:"), baseURL, s.WSClients)
	fmt.Fprintln(out)

	return nil
}
