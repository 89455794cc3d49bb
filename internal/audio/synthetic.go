package audio

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"
)

// SyntheticBackend produces sine tones paced in real time. Each device plays
// its own frequency so mixes are distinguishable.
type SyntheticBackend struct {
	Devices []Device
	Output  string
	Input   string
	// Amplitude of the generated tone. Defaults to 0.25.
	Amplitude float32
	// FailAfter makes Read fail after this many blocks per source. Zero disables it.
	FailAfter int
}

// NewSyntheticBackend returns one output loopback and one microphone.
func NewSyntheticBackend() *SyntheticBackend {
	return &SyntheticBackend{
		Devices: []Device{
			{ID: "synthetic-out.monitor", Name: "Synthetic output", IsLoopback: true, Output: "synthetic-out"},
			{ID: "synthetic-mic", Name: "Synthetic microphone"},
		},
		Output: "synthetic-out",
		Input:  "synthetic-mic",
	}
}

func (b *SyntheticBackend) ListDevices(context.Context) ([]Device, error) {
	out := make([]Device, len(b.Devices))
	copy(out, b.Devices)
	return out, nil
}

func (b *SyntheticBackend) DefaultOutput(context.Context) (string, error) {
	return b.Output, nil
}

func (b *SyntheticBackend) DefaultInput(context.Context) (string, error) {
	if b.Input == "" {
		return "", fmt.Errorf("no default input")
	}
	return b.Input, nil
}

func (b *SyntheticBackend) Open(_ context.Context, device Device) (Source, error) {
	freq := 440.0
	if device.IsLoopback {
		freq = 220.0
	}
	amp := b.Amplitude
	if amp == 0 {
		amp = 0.25
	}
	return &sineSource{
		freq:      freq,
		amp:       amp,
		failAfter: b.FailAfter,
		closed:    make(chan struct{}),
		next:      time.Now(),
	}, nil
}

type sineSource struct {
	freq      float64
	amp       float32
	failAfter int

	phase  float64
	blocks int
	next   time.Time

	closeOnce sync.Once
	closed    chan struct{}
}

func (s *sineSource) Read(dst []float32) (int, error) {
	if s.failAfter > 0 && s.blocks >= s.failAfter {
		return 0, fmt.Errorf("synthetic device unplugged")
	}

	// Pace like a real device: one block per block duration.
	frames := len(dst) / Channels
	s.next = s.next.Add(time.Duration(frames) * time.Second / SampleRate)
	if wait := time.Until(s.next); wait > 0 {
		t := time.NewTimer(wait)
		select {
		case <-s.closed:
			t.Stop()
			return 0, fmt.Errorf("synthetic source closed")
		case <-t.C:
		}
	} else {
		select {
		case <-s.closed:
			return 0, fmt.Errorf("synthetic source closed")
		default:
		}
	}

	step := 2 * math.Pi * s.freq / SampleRate
	for i := 0; i < frames; i++ {
		v := s.amp * float32(math.Sin(s.phase))
		for c := 0; c < Channels; c++ {
			dst[i*Channels+c] = v
		}
		s.phase += step
	}
	s.phase = math.Mod(s.phase, 2*math.Pi)
	s.blocks++
	return frames * Channels, nil
}

func (s *sineSource) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

var _ Backend = (*SyntheticBackend)(nil)
