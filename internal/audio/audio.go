// Package audio captures interleaved float32 PCM from the system loopback and
// a microphone, mixes them, and queues the blocks for the recorder.
package audio

import (
	"context"
	"errors"
	"time"
)

const (
	// SampleRate of every block produced by this package.
	SampleRate = 44100
	// Channels per frame. Sources are opened as stereo.
	Channels = 2
	// BlockFrames is the number of frames read from each source per iteration.
	BlockFrames = 1024
)

var (
	// ErrDeviceNotFound is returned when a requested device does not exist.
	ErrDeviceNotFound = errors.New("audio device not found")

	// ErrAlreadyRunning is returned by Sampler.Start while capture is active.
	ErrAlreadyRunning = errors.New("audio capture already running")
)

// Block is one chunk of interleaved samples in [-1, 1] nominal range.
type Block struct {
	Samples   []float32
	Channels  int
	Timestamp time.Time
}

// Frames returns the number of sample frames in the block.
func (b Block) Frames() int {
	if b.Channels <= 0 {
		return 0
	}
	return len(b.Samples) / b.Channels
}

// Mix returns the elementwise sum of a and b truncated to the shorter one.
// No clipping is applied; out-of-range values are left for the sink.
func Mix(a, b Block) Block {
	n := min(len(a.Samples), len(b.Samples))
	out := Block{
		Samples:   make([]float32, n),
		Channels:  a.Channels,
		Timestamp: a.Timestamp,
	}
	for i := 0; i < n; i++ {
		out.Samples[i] = a.Samples[i] + b.Samples[i]
	}
	return out
}

// Device is an audio source known to the backend.
type Device struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	// IsLoopback marks a source that records what an output device plays.
	IsLoopback bool `json:"isLoopback"`
	IsDefault  bool `json:"isDefault"`
	// Output is the name of the output device a loopback source monitors.
	Output string `json:"output,omitempty"`
}

// Source is an open capture stream.
type Source interface {
	// Read fills dst with up to len(dst) interleaved samples and blocks until
	// data is available. Returning 0 with a nil error means the source had
	// nothing this round.
	Read(dst []float32) (int, error)
	Close() error
}

// Backend enumerates and opens audio sources.
type Backend interface {
	ListDevices(ctx context.Context) ([]Device, error)
	// DefaultOutput returns the name of the active output device.
	DefaultOutput(ctx context.Context) (string, error)
	// DefaultInput returns the ID of the default capture device.
	DefaultInput(ctx context.Context) (string, error)
	Open(ctx context.Context, device Device) (Source, error)
}

// InputDevices filters devices down to non-loopback inputs, marking the
// default one.
func InputDevices(ctx context.Context, b Backend) ([]Device, error) {
	all, err := b.ListDevices(ctx)
	if err != nil {
		return nil, err
	}
	def, err := b.DefaultInput(ctx)
	if err != nil {
		log.Debug("default input lookup failed", "error", err)
	}
	var out []Device
	for _, d := range all {
		if d.IsLoopback {
			continue
		}
		d.IsDefault = d.ID == def
		out = append(out, d)
	}
	return out, nil
}
