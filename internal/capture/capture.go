// Package capture grabs raw BGRA frames of a screen region at a fixed cadence.
package capture

import (
	"errors"
	"fmt"
	"time"
)

// BytesPerPixel is the size of one packed BGRA pixel.
const BytesPerPixel = 4

var (
	// ErrCapture wraps any backend failure that ends a capture sequence.
	ErrCapture = errors.New("screen capture failed")

	// ErrNotSupported is returned when screen capture is not supported on the platform
	ErrNotSupported = errors.New("screen capture not supported on this platform")

	// ErrNoMonitors is returned when the backend reports no displays at all.
	ErrNoMonitors = errors.New("no monitors available")

	// ErrAlreadyRunning is returned by Sampler.Start while a sequence is live.
	ErrAlreadyRunning = errors.New("capture already running")
)

// Region is a rectangle on the virtual desktop in physical pixels.
type Region struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (r Region) String() string {
	return fmt.Sprintf("%dx%d+%d+%d", r.Width, r.Height, r.X, r.Y)
}

// Empty reports whether the region has no area.
func (r Region) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Even rounds odd dimensions down so the region satisfies the yuv420p
// chroma subsampling constraint of the encoder.
func (r Region) Even() Region {
	r.Width -= r.Width % 2
	r.Height -= r.Height % 2
	return r
}

// FrameSize is the byte length of one BGRA frame of this region.
func (r Region) FrameSize() int {
	return r.Width * r.Height * BytesPerPixel
}

// Intersect returns the overlap of r and o, which may be empty.
func (r Region) Intersect(o Region) Region {
	x0, y0 := max(r.X, o.X), max(r.Y, o.Y)
	x1, y1 := min(r.X+r.Width, o.X+o.Width), min(r.Y+r.Height, o.Y+o.Height)
	if x1 <= x0 || y1 <= y0 {
		return Region{}
	}
	return Region{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

// Monitor describes a connected display output.
type Monitor struct {
	Index     int    `json:"index"`
	Name      string `json:"name"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	X         int    `json:"x"`
	Y         int    `json:"y"`
	IsPrimary bool   `json:"isPrimary"`
}

// Bounds returns the monitor rectangle on the virtual desktop.
func (m Monitor) Bounds() Region {
	return Region{X: m.X, Y: m.Y, Width: m.Width, Height: m.Height}
}

// Frame is one captured BGRA image. Pix is only valid until Release.
type Frame struct {
	Pix       []byte
	Width     int
	Height    int
	Stride    int
	Timestamp time.Time

	release func([]byte)
}

// Release hands the pixel buffer back to the sampler for reuse.
func (f *Frame) Release() {
	if f.release != nil && f.Pix != nil {
		f.release(f.Pix)
	}
	f.Pix = nil
	f.release = nil
}

// Backend is a platform screen grabber.
type Backend interface {
	// ListMonitors returns the connected displays. Index 0 is not guaranteed
	// to be the primary one; check IsPrimary.
	ListMonitors() ([]Monitor, error)

	// Grab copies the region into dst as packed BGRA rows of
	// region.Width*4 bytes. len(dst) must equal region.FrameSize().
	Grab(region Region, dst []byte) error

	// Close releases any resources held by the backend
	Close() error
}

// CursorCompositor is implemented by backends that can draw the pointer
// into a grabbed frame.
type CursorCompositor interface {
	CompositeCursor(region Region, dst []byte) error
}

// NewBackend creates the platform screen grabber.
func NewBackend() (Backend, error) {
	return newPlatformBackend()
}
