package capture

import (
	"fmt"

	"github.com/omnicapture/agent/internal/logging"
)

var log = logging.L("capture")

// Primary returns the primary monitor, or the first one when none is flagged.
func Primary(monitors []Monitor) (Monitor, error) {
	if len(monitors) == 0 {
		return Monitor{}, ErrNoMonitors
	}
	for _, m := range monitors {
		if m.IsPrimary {
			return m, nil
		}
	}
	return monitors[0], nil
}

// ResolveRegion picks the area to record. An explicit rectangle wins; it is
// clipped to the virtual desktop. Without one, the monitor at monitorIndex is
// used. An unknown index or a rectangle that is empty after clipping falls
// back to the primary monitor. The result always has even, non-zero
// dimensions.
func ResolveRegion(monitors []Monitor, requested *Region, monitorIndex int) (Region, error) {
	primary, err := Primary(monitors)
	if err != nil {
		return Region{}, err
	}

	if requested != nil {
		clipped := requested.Intersect(desktopBounds(monitors)).Even()
		if !clipped.Empty() {
			if clipped != *requested {
				log.Info("capture region adjusted", "requested", requested.String(), "region", clipped.String())
			}
			return clipped, nil
		}
		log.Warn("capture region outside desktop, falling back to primary monitor",
			"requested", requested.String(), "monitor", primary.Index)
		return evenOrError(primary.Bounds())
	}

	for _, m := range monitors {
		if m.Index == monitorIndex {
			return evenOrError(m.Bounds())
		}
	}

	log.Warn("monitor not found, falling back to primary monitor",
		"monitorIndex", monitorIndex, "monitor", primary.Index)
	return evenOrError(primary.Bounds())
}

func evenOrError(r Region) (Region, error) {
	r = r.Even()
	if r.Empty() {
		return Region{}, fmt.Errorf("monitor bounds %s too small to record", r)
	}
	return r, nil
}

// desktopBounds is the bounding box of every monitor.
func desktopBounds(monitors []Monitor) Region {
	b := monitors[0].Bounds()
	x1, y1 := b.X+b.Width, b.Y+b.Height
	for _, m := range monitors[1:] {
		b.X = min(b.X, m.X)
		b.Y = min(b.Y, m.Y)
		x1 = max(x1, m.X+m.Width)
		y1 = max(y1, m.Y+m.Height)
	}
	b.Width = x1 - b.X
	b.Height = y1 - b.Y
	return b
}
