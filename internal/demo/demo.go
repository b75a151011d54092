// Package demo simulates a Play Store details page so the tracker, HTTP
// server, and CLI can be exercised end-to-end without a device. Each
// snapshot advances the simulated download, and the rendered hierarchy
// rotates between a text label and a bare progress bar so every extraction
// strategy sees traffic.
package demo

import (
	"context"
	"fmt"
	"html"
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/large-farva/playtrack/internal/device"
)

type phase int

const (
	phaseIdle phase = iota
	phasePending
	phaseDownloading
	phaseInstalling
	phaseInstalled
)

// Device is a simulated Play Store details page. It satisfies the tracker's
// snapshot source and offers the same Press contract as device.Trigger.
type Device struct {
	Package     string
	StepPercent int
	TotalMB     float64

	mu      sync.Mutex
	phase   phase
	percent int
	frames  int
	rng     *rand.Rand
}

// New returns a device showing the Install control for pkg.
func New(pkg string, step int, totalMB float64) *Device {
	return &Device{
		Package:     pkg,
		StepPercent: step,
		TotalMB:     totalMB,
		rng:         rand.New(rand.NewPCG(uint64(step), uint64(totalMB))),
	}
}

// NewInstalled returns a device on which pkg is already installed.
func NewInstalled(pkg string) *Device {
	d := New(pkg, 1, 1)
	d.phase = phaseInstalled
	return d
}

// Press starts the simulated download.
func (d *Device) Press(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.phase == phaseInstalled {
		return "Open", device.ErrAlreadyInstalled
	}
	if d.phase == phaseIdle {
		d.phase = phasePending
	}
	return "Install", nil
}

// Snapshot renders the page and then moves the simulation one step.
func (d *Device) Snapshot(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	out := d.render()
	d.advance()
	return out, nil
}

// Exists looks sel up in the current page without advancing.
func (d *Device) Exists(ctx context.Context, sel device.Selector) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	d.mu.Lock()
	dump := d.render()
	d.mu.Unlock()

	root, err := device.ParseHierarchy(dump)
	if err != nil {
		return false, err
	}
	return root.Find(sel) != nil, nil
}

// Percent reports the simulated download progress.
func (d *Device) Percent() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.percent
}

func (d *Device) advance() {
	d.frames++
	switch d.phase {
	case phasePending:
		d.phase = phaseDownloading
	case phaseDownloading:
		if d.percent == 100 {
			d.phase = phaseInstalling
			return
		}
		// Every fourth frame stalls, like a real download waiting on the network.
		if d.frames%4 == 0 {
			return
		}
		step := max(d.StepPercent+d.rng.IntN(3)-1, 1)
		d.percent = min(d.percent+step, 100)
	case phaseInstalling:
		d.phase = phaseInstalled
	}
}

func (d *Device) render() string {
	var nodes []string
	nodes = append(nodes,
		node("", d.Package, "com.android.vending:id/title", "android.widget.TextView", "[48,320][1032,400]"),
		node("", "4.5 star rating", "", "android.widget.TextView", "[48,420][300,470]"),
	)

	switch d.phase {
	case phaseIdle:
		nodes = append(nodes, button("Install"))
	case phasePending:
		nodes = append(nodes, node("Pending…", "", "", "android.widget.TextView", "[48,600][1032,650]"), button("Cancel"))
	case phaseDownloading:
		if d.frames%3 == 2 {
			nodes = append(nodes, progressBar(d.percent*10, 1000))
		} else {
			label := fmt.Sprintf("%d%% of %.1f MB", d.percent, d.TotalMB)
			nodes = append(nodes, node(label, "", "", "android.widget.TextView", "[48,600][1032,650]"), progressBar(d.percent, 100))
		}
		nodes = append(nodes, button("Cancel"))
	case phaseInstalling:
		nodes = append(nodes, node("Installing…", "", "", "android.widget.TextView", "[48,600][1032,650]"))
	case phaseInstalled:
		nodes = append(nodes, button("Uninstall"), button("Open"))
	}

	return `<?xml version='1.0' encoding='UTF-8' standalone='yes' ?><hierarchy rotation="0">` +
		`<node index="0" text="" class="android.widget.FrameLayout" package="com.android.vending" bounds="[0,0][1080,2340]">` +
		strings.Join(nodes, "") +
		`</node></hierarchy>`
}

func node(text, desc, id, class, bounds string) string {
	return fmt.Sprintf(`<node text="%s" resource-id="%s" class="%s" package="com.android.vending" content-desc="%s" clickable="false" enabled="true" bounds="%s" />`,
		html.EscapeString(text), id, class, html.EscapeString(desc), bounds)
}

func button(label string) string {
	return fmt.Sprintf(`<node text="%s" resource-id="" class="android.widget.Button" package="com.android.vending" content-desc="" clickable="true" enabled="true" bounds="[540,600][1020,700]" />`, label)
}

func progressBar(progress, limit int) string {
	return fmt.Sprintf(`<node text="" resource-id="com.android.vending:id/progress" class="android.widget.ProgressBar" package="com.android.vending" content-desc="" progress="%d" max="%d" bounds="[48,660][1032,680]" />`, progress, limit)
}
