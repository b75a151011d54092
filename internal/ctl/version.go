package ctl

import (
	"fmt"
	"strings"
)

// Build-time variables set via -ldflags.
var (
	Version   = "dev"
	GoVersion = "unknown"
)

// VersionInfo fetches the tracker version via GET /api/version and displays
// both the CLI and tracker version information.
func VersionInfo(baseURL string, jsonOutput bool) error {
	baseURL = strings.TrimRight(baseURL, "/")

	var daemon struct {
		Version   string `json:"version"`
		GoVersion string `json:"go_version"`
		BuiltAt   string `json:"built_at"`
		Host      *struct {
			OS       string `json:"os"`
			Platform string `json:"platform"`
			Kernel   string `json:"kernel"`
			Arch     string `json:"arch"`
		} `json:"host,omitempty"`
	}
	daemonErr := getJSON(baseURL, "/api/version", &daemon)

	if jsonOutput {
		resp := map[string]any{
			"cli": map[string]any{
				"version":    Version,
				"go_version": GoVersion,
			},
		}
		if daemonErr == nil {
			resp["tracker"] = daemon
		} else {
			resp["tracker_error"] = daemonErr.Error()
		}
		return printJSON(resp)
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, header("  PLAYTRACK VERSION"))
	fmt.Fprintln(out, rule(38))
	fmt.Fprintf(out, "  %-12s %s\n", colorize(dim, "CLI:"), Version+" ("+GoVersion+")")
	if daemonErr != nil {
		fmt.Fprintf(out, "  %-12s %s\n", colorize(dim, "Tracker:"), colorize(red, "unreachable: "+daemonErr.Error()))
	} else {
		fmt.Fprintf(out, "  %-12s %s\n", colorize(dim, "Tracker:"), daemon.Version+" ("+daemon.GoVersion+")")
		fmt.Fprintf(out, "  %-12s %s\n", colorize(dim, "Built:"), daemon.BuiltAt)
		if h := daemon.Host; h != nil {
			fmt.Fprintf(out, "  %-12s %s %s (%s, kernel %s)\n", colorize(dim, "Host:"), h.OS, h.Platform, h.Arch, h.Kernel)
		}
	}
	fmt.Fprintln(out)

	return nil
}
