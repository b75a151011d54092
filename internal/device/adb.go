// Package device talks to an Android device over adb: one-shot commands,
// uiautomator hierarchy snapshots, and the Play Store install trigger.
package device

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// CommandError is returned when adb exits non-zero or cannot be started.
type CommandError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("adb %s: %v", strings.Join(e.Args, " "), e.Err)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// execFunc runs name with args and returns stdout. It is swapped out in
// tests.
type execFunc func(ctx context.Context, name string, args ...string) (stdout []byte, stderr []byte, err error)

func runProcess(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// Client is the device command channel. Every invocation is bounded by
// Timeout.
type Client struct {
	ADB     string
	Serial  string
	User    string
	Timeout time.Duration

	exec execFunc
}

// NewClient returns a client for the device with the given serial. An empty
// serial lets adb pick the only attached device.
func NewClient(adb, serial, user string, timeout time.Duration) *Client {
	if adb == "" {
		adb = "adb"
	}
	if user == "" {
		user = "0"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		ADB:     adb,
		Serial:  serial,
		User:    user,
		Timeout: timeout,
		exec:    runProcess,
	}
}

// Run executes `adb [-s serial] args...` and returns its stdout.
func (c *Client) Run(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	full := c.argv(args...)
	stdout, stderr, err := c.exec(ctx, c.ADB, full...)
	if err != nil {
		if ctx.Err() != nil {
			err = fmt.Errorf("%w (after %s)", ctx.Err(), c.Timeout)
		}
		return "", &CommandError{Args: full, Stderr: strings.TrimSpace(string(stderr)), Err: err}
	}
	return string(stdout), nil
}

// Shell runs a command through `adb shell`.
func (c *Client) Shell(ctx context.Context, args ...string) (string, error) {
	return c.Run(ctx, append([]string{"shell"}, args...)...)
}

// Tap sends a touch event at the given screen coordinates.
func (c *Client) Tap(ctx context.Context, x, y int) error {
	_, err := c.Shell(ctx, "input", "tap", fmt.Sprint(x), fmt.Sprint(y))
	return err
}

func (c *Client) argv(args ...string) []string {
	var full []string
	if c.Serial != "" {
		full = append(full, "-s", c.Serial)
	}
	return append(full, args...)
}
