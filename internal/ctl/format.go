// Package ctl implements the client-side commands for playctl.
// It talks to a running playtrack over HTTP and WebSocket, or reads its CSV
// and SQLite logs directly, and renders the results to the terminal.
package ctl

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/large-farva/playtrack/internal/tracker"
)

// ANSI escape codes for terminal formatting.
const (
	reset  = "\033[0m"
	bold   = "\033[1m"
	dim    = "\033[2m"
	red    = "\033[31m"
	green  = "\033[32m"
	yellow = "\033[33m"
	blue   = "\033[34m"
	cyan   = "\033[36m"
	white  = "\033[37m"
)

// out receives all command output.
var out io.Writer = os.Stdout

// colorEnabled reports whether output goes to a terminal. When output is
// piped or redirected, or NO_COLOR is set, ANSI escape codes are suppressed.
func colorEnabled() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := out.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// stateColor returns the ANSI color code appropriate for a tracker state.
func stateColor(state string) string {
	if !colorEnabled() {
		return ""
	}
	switch state {
	case "COMPLETE", "ALREADY_INSTALLED":
		return green
	case "AWAITING_FIRST_SIGNAL", "TRIGGERING":
		return yellow
	case "TRACKING":
		return blue
	case "TERMINAL":
		return cyan
	case "FAILED":
		return red
	case "BOOTING", "CANCELLED":
		return dim
	default:
		return white
	}
}

// colorize wraps text with an ANSI color sequence.
// Returns the text unchanged when color output is disabled.
func colorize(color, text string) string {
	if !colorEnabled() || color == "" {
		return text
	}
	return color + text + reset
}

// header returns a bold section header, or plain text when color is off.
func header(title string) string {
	if colorEnabled() {
		return bold + title + reset
	}
	return title
}

// rule is the dimmed separator under headers.
func rule(width int) string {
	return colorize(dim, "  "+strings.Repeat("─", width))
}

// padRight pads s with spaces to reach the given width.
func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

// formatDuration renders a time.Duration as a compact human string like
// "2h 14m 8s" or "45s".
func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}

// formatBytes renders a byte count as a human-readable string.
func formatBytes(b int64) string {
	switch {
	case b >= 1<<30:
		return fmt.Sprintf("%.1f GB", float64(b)/float64(1<<30))
	case b >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(b)/float64(1<<10))
	default:
		return fmt.Sprintf("%d B", b)
	}
}

// progressBar builds a simple ASCII bar of the given width.
// The filled portion is colored green when color output is enabled.
func progressBar(pct, width int) string {
	filled := min(max(pct, 0)*width/100, width)
	empty := width - filled
	if colorEnabled() {
		return green + strings.Repeat("=", filled) + reset + strings.Repeat(" ", empty)
	}
	return strings.Repeat("=", filled) + strings.Repeat(" ", empty)
}

// statusColor picks a color for an event status line.
func statusColor(status string, terminal bool) string {
	switch {
	case strings.HasPrefix(status, tracker.FailedPrefix):
		return red
	case terminal, status == tracker.StatusComplete:
		return green
	default:
		return cyan
	}
}
