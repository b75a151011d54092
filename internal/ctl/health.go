package ctl

import (
	"fmt"
	"sort"
	"strings"
)

// Health checks tracker liveness and its component checks via GET /healthz.
func Health(baseURL string, jsonOutput bool) error {
	baseURL = strings.TrimRight(baseURL, "/")

	var report struct {
		Healthy bool                      `json:"healthy"`
		Checks  map[string]map[string]any `json:"checks"`
	}
	status, err := getHealth(baseURL, &report)
	if err != nil {
		if jsonOutput {
			return printJSON(map[string]any{"healthy": false, "url": baseURL, "error": err.Error()})
		}
		return err
	}

	if jsonOutput {
		return printJSON(map[string]any{"healthy": report.Healthy, "url": baseURL, "checks": report.Checks})
	}

	fmt.Fprintln(out)
	if report.Healthy {
		fmt.Fprintf(out, "  %s  playtrack is reachable at %s\n", colorize(green, "HEALTHY"), colorize(dim, baseURL))
	} else {
		fmt.Fprintf(out, "  %s  playtrack returned HTTP %d at %s\n", colorize(red, "UNHEALTHY"), status, colorize(dim, baseURL))
	}

	names := make([]string, 0, len(report.Checks))
	for name := range report.Checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		check := report.Checks[name]
		mark := colorize(green, "ok  ")
		if ok, _ := check["ok"].(bool); !ok {
			mark = colorize(red, "FAIL")
		}
		detail, _ := check["error"].(string)
		if detail == "" {
			detail, _ = check["path"].(string)
		}
		if detail == "" {
			detail, _ = check["state"].(string)
		}
		fmt.Fprintf(out, "    %s %s %s\n", mark, padRight(name, 12), colorize(dim, detail))
	}
	fmt.Fprintln(out)

	return nil
}
