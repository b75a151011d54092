package ctl

import (
	"fmt"
	"strings"
)

// Cancel stops the running tracking session.
func Cancel(baseURL string, jsonOutput bool) error {
	return trackerControl(baseURL, "/api/cancel", "CANCELLED", jsonOutput)
}

// Poll makes the tracker take its next snapshot immediately.
func Poll(baseURL string, jsonOutput bool) error {
	return trackerControl(baseURL, "/api/poll", "POLLED", jsonOutput)
}

func trackerControl(baseURL, path, label string, jsonOutput bool) error {
	baseURL = strings.TrimRight(baseURL, "/")

	var result struct {
		OK      bool   `json:"ok"`
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := postJSON(baseURL, path, nil, &result); err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(result)
	}

	if result.OK {
		fmt.Fprintf(out, "\n  %s  %s\n\n", colorize(green, label), result.Message)
	} else {
		fmt.Fprintf(out, "\n  %s  %s\n\n", colorize(red, "ERROR"), result.Error)
	}
	return nil
}
