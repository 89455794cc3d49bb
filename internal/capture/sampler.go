package capture

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// pausePollInterval is how often a paused sampler re-checks its flags.
const pausePollInterval = 100 * time.Millisecond

// FrameInterval returns the target spacing between frames for fps.
func FrameInterval(fps int) time.Duration {
	if fps <= 0 {
		fps = 1
	}
	return time.Second / time.Duration(fps)
}

// PaceDelay is the sleep after a frame that took elapsed to produce. It never
// goes negative: an overrun frame is followed immediately by the next grab,
// and the lost time is not made up.
func PaceDelay(interval, elapsed time.Duration) time.Duration {
	if elapsed >= interval {
		return 0
	}
	return interval - elapsed
}

// Sampler produces frames of one region at a fixed interval on its own
// goroutine. Pause and Stop are observed once per iteration.
type Sampler struct {
	backend Backend
	log     *slog.Logger
	pool    framePool

	mu       sync.Mutex
	running  atomic.Bool
	paused   atomic.Bool
	done     chan struct{}
	stopOnce *sync.Once
	wg       sync.WaitGroup
	err      error
	frames   atomic.Uint64
}

// NewSampler creates a sampler over the given backend.
func NewSampler(backend Backend) *Sampler {
	return &Sampler{
		backend: backend,
		log:     log,
	}
}

// Start begins a fresh capture sequence. The returned channel holds at most
// one frame; it is closed when the sequence ends, either through Stop or a
// capture failure reported by Err.
func (s *Sampler) Start(region Region, fps int, showCursor bool) (<-chan Frame, error) {
	if region.Empty() {
		return nil, fmt.Errorf("start capture: empty region %s", region)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRunning
	}

	var cursor CursorCompositor
	if showCursor {
		if cc, ok := s.backend.(CursorCompositor); ok {
			cursor = cc
		} else {
			s.log.Debug("backend cannot draw cursor, recording without it")
		}
	}

	s.err = nil
	s.frames.Store(0)
	s.paused.Store(false)
	s.done = make(chan struct{})
	s.stopOnce = &sync.Once{}

	out := make(chan Frame, 1)
	s.wg.Add(1)
	go s.run(s.done, out, region, FrameInterval(fps), cursor)

	s.log.Info("screen capture started", "region", region.String(), "fps", fps, "cursor", cursor != nil)
	return out, nil
}

// Pause withholds frames until Resume. The sequence stays open.
func (s *Sampler) Pause() {
	s.paused.Store(true)
}

func (s *Sampler) Resume() {
	s.paused.Store(false)
}

// Paused reports whether the sampler is currently withholding frames.
func (s *Sampler) Paused() bool {
	return s.paused.Load()
}

// Stop ends the sequence and waits for the capture goroutine to exit.
func (s *Sampler) Stop() {
	s.mu.Lock()
	done, once := s.done, s.stopOnce
	s.mu.Unlock()

	if once == nil {
		return
	}
	once.Do(func() { close(done) })
	s.wg.Wait()
}

// Err returns the failure that ended the last sequence, if any.
func (s *Sampler) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// FrameCount returns the number of frames produced by the current sequence.
func (s *Sampler) FrameCount() uint64 {
	return s.frames.Load()
}

func (s *Sampler) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *Sampler) run(done <-chan struct{}, out chan<- Frame, region Region, interval time.Duration, cursor CursorCompositor) {
	defer s.wg.Done()
	defer s.running.Store(false)
	defer close(out)

	size := region.FrameSize()
	for {
		select {
		case <-done:
			return
		default:
		}

		if s.paused.Load() {
			if !sleepUnlessDone(done, pausePollInterval) {
				return
			}
			continue
		}

		start := time.Now()
		buf := s.pool.Get(size)
		if err := s.backend.Grab(region, buf); err != nil {
			s.pool.Put(buf)
			s.fail(fmt.Errorf("%w: %v", ErrCapture, err))
			s.log.Error("screen grab failed, ending capture", "error", err, "frames", s.frames.Load())
			return
		}
		if cursor != nil {
			if err := cursor.CompositeCursor(region, buf); err != nil {
				s.log.Debug("cursor composite failed", "error", err)
			}
		}

		frame := Frame{
			Pix:       buf,
			Width:     region.Width,
			Height:    region.Height,
			Stride:    region.Width * BytesPerPixel,
			Timestamp: start,
			release:   s.pool.Put,
		}
		select {
		case out <- frame:
			s.frames.Add(1)
		case <-done:
			frame.Release()
			return
		}

		if delay := PaceDelay(interval, time.Since(start)); delay > 0 {
			if !sleepUnlessDone(done, delay) {
				return
			}
		}
	}
}

// sleepUnlessDone sleeps for d and reports false if done closed first.
func sleepUnlessDone(done <-chan struct{}, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-done:
		return false
	case <-t.C:
		return true
	}
}
