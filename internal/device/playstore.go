package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// PlayStorePackage is the Google Play Store application id.
const PlayStorePackage = "com.android.vending"

var (
	// ErrAlreadyInstalled means the details page shows only the completion
	// control; there is nothing to track.
	ErrAlreadyInstalled = errors.New("app is already installed")

	// ErrNoActionControl means neither an action nor a completion control
	// appeared before the deadline.
	ErrNoActionControl = errors.New("no install or update control found")
)

// LaunchDetails opens the Play Store details page for pkg.
func (c *Client) LaunchDetails(ctx context.Context, pkg string) error {
	_, err := c.Shell(ctx,
		"am", "start", "--user", c.User,
		"-a", "android.intent.action.VIEW",
		"-d", "market://details?id="+pkg,
		PlayStorePackage,
	)
	if err != nil {
		return fmt.Errorf("launch details for %s: %w", pkg, err)
	}
	return nil
}

// WaitForeground polls the window manager until pkg owns the focused window
// or timeout elapses.
func (c *Client) WaitForeground(ctx context.Context, pkg string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		out, err := c.Shell(ctx, "dumpsys", "window")
		if err == nil && focusedPackage(out) == pkg {
			return nil
		}
		if time.Now().After(deadline) {
			if err != nil {
				return fmt.Errorf("wait for %s: %w", pkg, err)
			}
			return fmt.Errorf("wait for %s: not in foreground after %s", pkg, timeout)
		}
		if !sleepOrCancel(ctx, 500*time.Millisecond) {
			return ctx.Err()
		}
	}
}

// focusedPackage extracts the package of mCurrentFocus from dumpsys output,
// e.g. "mCurrentFocus=Window{1c2 u0 com.android.vending/...MainActivity}".
func focusedPackage(dumpsys string) string {
	for _, line := range strings.Split(dumpsys, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "mCurrentFocus=") {
			continue
		}
		fields := strings.Fields(strings.TrimSuffix(line, "}"))
		if len(fields) == 0 {
			return ""
		}
		component := fields[len(fields)-1]
		if i := strings.Index(component, "/"); i > 0 {
			return component[:i]
		}
		return component
	}
	return ""
}

// Trigger presses the install control on the details page before tracking
// starts.
type Trigger struct {
	Client          *Client
	UI              *UI
	ActionTexts     []string
	CompletionTexts []string
	Wait            time.Duration
	Log             *slog.Logger
}

// Press taps the first visible action control and returns its label. It
// returns ErrAlreadyInstalled when only a completion control is shown and
// ErrNoActionControl when nothing actionable appears within Wait.
func (t *Trigger) Press(ctx context.Context) (string, error) {
	deadline := time.Now().Add(t.Wait)
	for {
		root, err := t.UI.Hierarchy(ctx)
		if err != nil {
			t.Log.Debug("hierarchy dump failed", "error", err)
		} else {
			label, err := t.pressIn(ctx, root)
			if err == nil || !errors.Is(err, ErrNoActionControl) {
				return label, err
			}
		}

		if time.Now().After(deadline) {
			return "", ErrNoActionControl
		}
		if !sleepOrCancel(ctx, 500*time.Millisecond) {
			return "", ctx.Err()
		}
	}
}

func (t *Trigger) pressIn(ctx context.Context, root *Node) (string, error) {
	for _, label := range t.ActionTexts {
		n := root.Find(Text(label))
		if n == nil {
			continue
		}
		b, err := n.Bounds()
		if err != nil {
			return "", err
		}
		x, y := b.Center()
		if err := t.Client.Tap(ctx, x, y); err != nil {
			return "", fmt.Errorf("tap %q: %w", label, err)
		}
		t.Log.Info("pressed action control", "label", label, "x", x, "y", y)
		return label, nil
	}
	for _, label := range t.CompletionTexts {
		if root.Find(Text(label)) != nil {
			return label, ErrAlreadyInstalled
		}
	}
	return "", ErrNoActionControl
}

// sleepOrCancel blocks for duration d or until the context is cancelled.
// Returns true if the sleep completed, false if interrupted.
func sleepOrCancel(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
