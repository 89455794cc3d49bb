package health

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v3/disk"

	"github.com/omnicapture/agent/internal/audio"
	"github.com/omnicapture/agent/internal/capture"
)

// FFmpegProbe checks that the encoder binary resolves on PATH.
func FFmpegProbe(path string) Probe {
	return func(context.Context) (Status, string) {
		resolved, err := exec.LookPath(path)
		if err != nil {
			return Unhealthy, err.Error()
		}
		return Healthy, resolved
	}
}

// ScreenProbe checks that the backend reports at least one monitor.
func ScreenProbe(b capture.Backend) Probe {
	return func(context.Context) (Status, string) {
		if b == nil {
			return Unhealthy, "no screen backend"
		}
		monitors, err := b.ListMonitors()
		if err != nil {
			return Unhealthy, err.Error()
		}
		if len(monitors) == 0 {
			return Unhealthy, "no monitors"
		}
		return Healthy, fmt.Sprintf("%d monitor(s)", len(monitors))
	}
}

// AudioProbe reports Degraded when recordings would have no audio.
func AudioProbe(b audio.Backend) Probe {
	return func(ctx context.Context) (Status, string) {
		if b == nil {
			return Degraded, "no audio backend, recording video only"
		}
		devices, err := b.ListDevices(ctx)
		if err != nil {
			return Degraded, err.Error()
		}
		return Healthy, fmt.Sprintf("%d source(s)", len(devices))
	}
}

// DiskProbe compares free space in dir with minFree bytes. A dir that does
// not exist yet is measured at its nearest existing parent.
func DiskProbe(dir string, minFree uint64) Probe {
	return func(context.Context) (Status, string) {
		usage, err := disk.Usage(existingAncestor(dir))
		if err != nil {
			return Unknown, err.Error()
		}
		msg := humanize.IBytes(usage.Free) + " free"
		if usage.Free < minFree {
			return Unhealthy, msg
		}
		return Healthy, msg
	}
}

func existingAncestor(dir string) string {
	dir = filepath.Clean(dir)
	for {
		if _, err := os.Stat(dir); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return dir
		}
		dir = parent
	}
}
