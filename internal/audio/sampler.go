package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// idleInterval is the sleep used when no source delivered a block.
const idleInterval = 100 * time.Millisecond

// Options selects the sources for one capture.
type Options struct {
	UseSystem   bool
	UseMic      bool
	MicDeviceID string
}

// Sampler reads from up to two sources on its own goroutine and queues the
// (mixed) blocks in arrival order. Next polls the queue without blocking.
type Sampler struct {
	backend Backend
	queue   *blockQueue

	mu      sync.Mutex
	running atomic.Bool
	paused  atomic.Bool
	done    chan struct{}
	sources []Source
	wg      sync.WaitGroup
	err     error
}

// NewSampler creates a sampler whose queue holds at most queueBlocks blocks;
// zero leaves the queue unbounded.
func NewSampler(backend Backend, queueBlocks int) *Sampler {
	return &Sampler{
		backend: backend,
		queue:   newBlockQueue(queueBlocks),
	}
}

// Start resolves and opens the requested sources and begins capture. A source
// that cannot be resolved is disabled with a warning; Start only fails when a
// resolved device cannot be opened. With no source enabled the sampler idles
// and produces no blocks.
func (s *Sampler) Start(ctx context.Context, opts Options) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	sys, mic, err := s.openSources(ctx, opts)
	if err != nil {
		s.running.Store(false)
		return err
	}

	s.queue.Reset()
	s.err = nil
	s.paused.Store(false)
	s.done = make(chan struct{})
	s.sources = nil
	for _, src := range []Source{sys, mic} {
		if src != nil {
			s.sources = append(s.sources, src)
		}
	}

	s.wg.Add(1)
	go s.run(s.done, sys, mic)

	log.Info("audio capture started", "system", sys != nil, "mic", mic != nil,
		"queueLimit", s.queue.limit)
	return nil
}

func (s *Sampler) openSources(ctx context.Context, opts Options) (sys, mic Source, err error) {
	if s.backend == nil || (!opts.UseSystem && !opts.UseMic) {
		return nil, nil, nil
	}

	if opts.UseSystem {
		res, err := ResolveSystem(ctx, s.backend)
		if err != nil {
			log.Warn("system audio resolution failed, system audio disabled", "error", err)
		} else if res.Usable() {
			sys, err = s.backend.Open(ctx, res.Device)
			if err != nil {
				return nil, nil, fmt.Errorf("open system audio %s: %w", res.Device.ID, err)
			}
		}
	}

	if opts.UseMic {
		res, err := ResolveMic(ctx, s.backend, opts.MicDeviceID)
		if err != nil {
			log.Warn("microphone resolution failed, microphone disabled", "error", err)
		} else if res.Usable() {
			mic, err = s.backend.Open(ctx, res.Device)
			if err != nil {
				if sys != nil {
					_ = sys.Close()
				}
				return nil, nil, fmt.Errorf("open microphone %s: %w", res.Device.ID, err)
			}
		}
	}
	return sys, mic, nil
}

// Next returns the oldest queued block, if any.
func (s *Sampler) Next() (Block, bool) {
	return s.queue.Pop()
}

// Pending is the number of queued blocks.
func (s *Sampler) Pending() int {
	return s.queue.Len()
}

// Dropped is the number of blocks discarded on queue overflow since Start.
func (s *Sampler) Dropped() uint64 {
	return s.queue.Dropped()
}

func (s *Sampler) Pause() {
	s.paused.Store(true)
}

func (s *Sampler) Resume() {
	s.paused.Store(false)
}

// Stop ends capture, closes the sources and waits for the capture goroutine.
// It returns the error that terminated capture early, if there was one.
// Blocks left in the queue remain readable through Next.
func (s *Sampler) Stop() error {
	s.mu.Lock()
	if s.done == nil {
		s.mu.Unlock()
		return nil
	}
	close(s.done)
	s.done = nil
	sources := s.sources
	s.sources = nil
	s.mu.Unlock()

	// Closing unblocks readers stuck in the device.
	var closeErrs []error
	for _, src := range sources {
		if err := src.Close(); err != nil {
			closeErrs = append(closeErrs, err)
		}
	}
	s.wg.Wait()

	if len(closeErrs) > 0 {
		log.Debug("audio source close failed", "error", errors.Join(closeErrs...))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Sampler) run(done <-chan struct{}, sys, mic Source) {
	defer s.wg.Done()
	defer s.running.Store(false)

	var sysBuf, micBuf []float32
	if sys != nil {
		sysBuf = make([]float32, BlockFrames*Channels)
	}
	if mic != nil {
		micBuf = make([]float32, BlockFrames*Channels)
	}

	for {
		select {
		case <-done:
			return
		default:
		}

		var (
			sysBlock, micBlock Block
			haveSys, haveMic   bool
		)
		if sys != nil {
			b, ok, err := readBlock(sys, sysBuf)
			if err != nil {
				s.fail(done, fmt.Errorf("read system audio: %w", err))
				return
			}
			sysBlock, haveSys = b, ok
		}
		if mic != nil {
			b, ok, err := readBlock(mic, micBuf)
			if err != nil {
				s.fail(done, fmt.Errorf("read microphone: %w", err))
				return
			}
			micBlock, haveMic = b, ok
		}

		// Devices keep buffering while paused. Reading and dropping the
		// blocks keeps that backlog out of the recording on Resume.
		if s.paused.Load() && (haveSys || haveMic) {
			continue
		}

		switch {
		case haveSys && haveMic:
			s.queue.Push(Mix(sysBlock, micBlock))
		case haveSys:
			s.queue.Push(sysBlock)
		case haveMic:
			s.queue.Push(micBlock)
		default:
			if !sleepUnlessDone(done, idleInterval) {
				return
			}
		}
	}
}

// fail records err unless capture is already being stopped, in which case
// the read error is just the closed source.
func (s *Sampler) fail(done <-chan struct{}, err error) {
	select {
	case <-done:
		return
	default:
	}
	log.Error("audio capture ended", "error", err)
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// readBlock reads one block and copies it out of the reusable buffer.
func readBlock(src Source, buf []float32) (Block, bool, error) {
	n, err := src.Read(buf)
	if err != nil {
		return Block{}, false, err
	}
	n -= n % Channels
	if n == 0 {
		return Block{}, false, nil
	}
	samples := make([]float32, n)
	copy(samples, buf[:n])
	return Block{Samples: samples, Channels: Channels, Timestamp: time.Now()}, true, nil
}

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
