package capture

import (
	"errors"
	"fmt"
	"sync"
)

// errSyntheticExhausted is returned by a synthetic backend after FailAfter grabs.
var errSyntheticExhausted = errors.New("synthetic display disconnected")

// SyntheticBackend renders a moving test pattern. It stands in for a real
// display on headless hosts and in tests.
type SyntheticBackend struct {
	// Monitors reported by ListMonitors. Defaults to one 1280x720 primary.
	Monitors []Monitor

	// FailAfter makes Grab fail once this many grabs have succeeded. Zero
	// disables the failure.
	FailAfter int

	mu     sync.Mutex
	grabs  int
	closed bool
}

// NewSyntheticBackend returns a backend with a single primary monitor of the
// given size.
func NewSyntheticBackend(width, height int) *SyntheticBackend {
	return &SyntheticBackend{
		Monitors: []Monitor{{Index: 0, Name: "synthetic-0", Width: width, Height: height, IsPrimary: true}},
	}
}

func (b *SyntheticBackend) ListMonitors() ([]Monitor, error) {
	if len(b.Monitors) == 0 {
		return []Monitor{{Index: 0, Name: "synthetic-0", Width: 1280, Height: 720, IsPrimary: true}}, nil
	}
	out := make([]Monitor, len(b.Monitors))
	copy(out, b.Monitors)
	return out, nil
}

// Grab paints a horizontal gradient with a vertical bar that advances four
// pixels per grab.
func (b *SyntheticBackend) Grab(region Region, dst []byte) error {
	if len(dst) != region.FrameSize() || region.Empty() {
		return fmt.Errorf("grab %s: buffer is %d bytes, want %d", region, len(dst), region.FrameSize())
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return errors.New("synthetic backend closed")
	}
	if b.FailAfter > 0 && b.grabs >= b.FailAfter {
		b.mu.Unlock()
		return errSyntheticExhausted
	}
	n := b.grabs
	b.grabs++
	b.mu.Unlock()

	bar := (n * 4) % region.Width
	stride := region.Width * BytesPerPixel
	for y := 0; y < region.Height; y++ {
		row := dst[y*stride : (y+1)*stride]
		for x := 0; x < region.Width; x++ {
			i := x * BytesPerPixel
			if x >= bar && x < bar+8 {
				row[i], row[i+1], row[i+2] = 255, 255, 255
			} else {
				row[i] = byte((x + region.X) * 255 / max(region.Width, 1))
				row[i+1] = byte((y + region.Y) * 255 / max(region.Height, 1))
				row[i+2] = byte(n)
			}
			row[i+3] = 255
		}
	}
	return nil
}

// CompositeCursor draws a 4x4 black square at the region's top-left corner.
func (b *SyntheticBackend) CompositeCursor(region Region, dst []byte) error {
	if len(dst) != region.FrameSize() {
		return fmt.Errorf("cursor %s: buffer size mismatch", region)
	}
	stride := region.Width * BytesPerPixel
	for y := 0; y < min(4, region.Height); y++ {
		for x := 0; x < min(4, region.Width); x++ {
			i := y*stride + x*BytesPerPixel
			dst[i], dst[i+1], dst[i+2] = 0, 0, 0
		}
	}
	return nil
}

// Grabs returns how many grabs have succeeded.
func (b *SyntheticBackend) Grabs() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.grabs
}

func (b *SyntheticBackend) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	return nil
}

var (
	_ Backend          = (*SyntheticBackend)(nil)
	_ CursorCompositor = (*SyntheticBackend)(nil)
)
