package device

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

// ErrEmptyDump is returned when uiautomator produced no hierarchy.
var ErrEmptyDump = errors.New("uiautomator returned no hierarchy")

// UI is the snapshot provider backed by `uiautomator dump`. A dump taken by
// Exists is reused by a Snapshot call that follows within Reuse, so one
// tracker tick costs one dump.
type UI struct {
	Client *Client
	Reuse  time.Duration

	mu    sync.Mutex
	last  string
	taken time.Time
	now   func() time.Time
}

// NewUI wraps a command client as a snapshot provider.
func NewUI(c *Client) *UI {
	return &UI{Client: c, Reuse: 300 * time.Millisecond, now: time.Now}
}

// Snapshot returns the current UI hierarchy as XML.
func (u *UI) Snapshot(ctx context.Context) (string, error) {
	u.mu.Lock()
	if u.last != "" && u.now().Sub(u.taken) < u.Reuse {
		dump := u.last
		u.last = ""
		u.mu.Unlock()
		return dump, nil
	}
	u.mu.Unlock()
	return u.dump(ctx)
}

// Exists reports whether an element matching sel is on screen. Consecutive
// calls within Reuse share one dump.
func (u *UI) Exists(ctx context.Context, sel Selector) (bool, error) {
	u.mu.Lock()
	cached := u.last
	if cached != "" && u.now().Sub(u.taken) >= u.Reuse {
		cached = ""
	}
	u.mu.Unlock()

	var (
		root *Node
		err  error
	)
	if cached != "" {
		root, err = ParseHierarchy(cached)
	} else {
		root, err = u.Hierarchy(ctx)
	}
	if err != nil {
		return false, err
	}
	return root.Find(sel) != nil, nil
}

// Hierarchy takes a fresh dump and parses it.
func (u *UI) Hierarchy(ctx context.Context) (*Node, error) {
	dump, err := u.dump(ctx)
	if err != nil {
		return nil, err
	}
	u.mu.Lock()
	u.last = dump
	u.taken = u.now()
	u.mu.Unlock()
	return ParseHierarchy(dump)
}

func (u *UI) dump(ctx context.Context) (string, error) {
	out, err := u.Client.Run(ctx, "exec-out", "uiautomator", "dump", "/dev/tty")
	if err != nil {
		return "", err
	}
	return trimDump(out)
}

// trimDump strips the "UI hierchary dumped to: /dev/tty" trailer that
// uiautomator appends after the XML.
func trimDump(out string) (string, error) {
	start := strings.Index(out, "<")
	end := strings.LastIndex(out, ">")
	if start < 0 || end < start {
		return "", ErrEmptyDump
	}
	return out[start : end+1], nil
}
