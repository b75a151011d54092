package app

import (
	"context"
	"os"
	"path/filepath"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
)

// diskUsage returns disk usage stats for the given path, or nil on error.
func diskUsage(ctx context.Context, path string) map[string]any {
	u, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return nil
	}
	return map[string]any{
		"total_bytes":     u.Total,
		"used_bytes":      u.Used,
		"available_bytes": u.Free,
		"used_percent":    u.UsedPercent,
	}
}

// hostInfo describes the machine running the tracker, or nil on error.
func hostInfo(ctx context.Context) map[string]any {
	h, err := host.InfoWithContext(ctx)
	if err != nil {
		return nil
	}
	return map[string]any{
		"hostname": h.Hostname,
		"os":       h.OS,
		"platform": h.Platform,
		"kernel":   h.KernelVersion,
		"arch":     h.KernelArch,
	}
}

// logDir is the directory holding the CSV log.
func logDir(csvPath string) string {
	dir := filepath.Dir(csvPath)
	if dir == "" {
		return "."
	}
	return dir
}

// writable probes dir by creating and removing a scratch file.
func writable(dir string) error {
	f, err := os.CreateTemp(dir, ".healthcheck-*")
	if err != nil {
		return err
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}
