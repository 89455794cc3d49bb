// Package recorder coordinates a recording: it starts the screen and audio
// samplers, streams frames into the encoder, drains audio into the WAV
// intermediate, tracks pause-compensated elapsed time and finalizes the
// output when the recording stops.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/omnicapture/agent/internal/audio"
	"github.com/omnicapture/agent/internal/capture"
	"github.com/omnicapture/agent/internal/encode"
	"github.com/omnicapture/agent/internal/logging"
	"github.com/omnicapture/agent/internal/observe"
	"github.com/omnicapture/agent/internal/wav"
)

var log = logging.L("recorder")

var (
	// ErrAlreadyRecording is returned by Start while a session is active.
	ErrAlreadyRecording = errors.New("recording already in progress")

	// ErrNotRecording is returned by Pause, Resume and Stop with no session.
	ErrNotRecording = errors.New("not recording")

	// ErrCaptureEnded means the screen sampler stopped before Stop was called.
	ErrCaptureEnded = fmt.Errorf("%w: frame sequence ended early", capture.ErrCapture)
)

// Deps are the backends a Pipeline records with.
type Deps struct {
	Screen capture.Backend
	// Audio may be nil, in which case recordings have no audio.
	Audio  audio.Backend
	Runner encode.Runner

	Observer Observer
	Metrics  *observe.Metrics
	Now      func() time.Time
}

// Pipeline owns at most one recording at a time. Start, Pause, Resume and
// Stop may be called from any goroutine; Stop blocks until the output is
// finalized and must not be called from an Observer callback.
type Pipeline struct {
	deps     Deps
	observer Observer
	metrics  *observe.Metrics
	now      func() time.Time

	// active is set from Start until the loop has fully finished.
	active        atomic.Bool
	paused        atomic.Bool
	stopRequested atomic.Bool
	audioFull     atomic.Bool

	mu       sync.Mutex
	status   Status
	session  *Session
	screen   *capture.Sampler
	audio    *audio.Sampler
	encoder  *encode.StreamEncoder
	sink     *wav.Writer
	ffmpeg   string
	stopCh   chan struct{}
	stopOnce *sync.Once
	done     chan struct{}
	result   Result
}

// New creates an idle pipeline.
func New(deps Deps) *Pipeline {
	if deps.Runner == nil {
		deps.Runner = encode.ExecRunner{}
	}
	p := &Pipeline{
		deps:     deps,
		observer: deps.Observer,
		metrics:  deps.Metrics,
		now:      deps.Now,
		status:   StatusIdle,
	}
	if p.observer == nil {
		p.observer = ObserverFuncs{}
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

// Status returns the current pipeline state.
func (p *Pipeline) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Session returns the active or most recent session, or nil.
func (p *Pipeline) Session() *Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session
}

func (p *Pipeline) setStatus(s Status) {
	p.mu.Lock()
	changed := p.status != s
	p.status = s
	p.mu.Unlock()
	if changed {
		p.observer.OnStatus(s)
	}
}

// Start begins a recording with opts. The returned session stays valid after
// the recording ends.
func (p *Pipeline) Start(ctx context.Context, opts Options) (*Session, error) {
	if !p.active.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRecording
	}

	sess, err := p.start(ctx, opts)
	if err != nil {
		p.active.Store(false)
		log.Error("recording failed to start", logging.KeyError, err)
		return nil, err
	}
	return sess, nil
}

func (p *Pipeline) start(ctx context.Context, opts Options) (_ *Session, err error) {
	if p.deps.Screen == nil {
		return nil, fmt.Errorf("%w: no screen backend", capture.ErrNotSupported)
	}
	if opts.OutputDir == "" {
		return nil, errors.New("output directory not set")
	}
	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	if err := checkDiskSpace(opts.OutputDir, opts.MinFreeBytes); err != nil {
		return nil, err
	}

	monitors, err := p.deps.Screen.ListMonitors()
	if err != nil {
		return nil, fmt.Errorf("list monitors: %w", err)
	}
	region, err := capture.ResolveRegion(monitors, opts.Region, opts.MonitorIndex)
	if err != nil {
		return nil, err
	}

	sess := newSession(opts, region, p.now())
	logger := logging.WithSession(log, sess.ID)

	// Tear down whatever was started if a later step fails.
	var cleanups []func() error
	defer func() {
		if err == nil {
			return
		}
		for i := len(cleanups) - 1; i >= 0; i-- {
			if cerr := cleanups[i](); cerr != nil {
				logger.Debug("start rollback", logging.KeyError, cerr)
			}
		}
		removeIntermediates(sess)
	}()

	sink, err := wav.Create(sess.AudioPath, wav.DefaultFormat)
	if err != nil {
		return nil, err
	}
	cleanups = append(cleanups, sink.Close)

	// The encoder outlives the request that started it.
	encCtx := context.WithoutCancel(ctx)
	enc := encode.NewStreamEncoder(p.deps.Runner, opts.FFmpegPath, sess.VideoPath, region.Width, region.Height, opts.FPS)
	if err := enc.Start(encCtx); err != nil {
		return nil, err
	}
	cleanups = append(cleanups, enc.Interrupt)

	as := audio.NewSampler(p.deps.Audio, opts.AudioQueueBlocks)
	if err := as.Start(encCtx, opts.Audio); err != nil {
		return nil, fmt.Errorf("start audio: %w", err)
	}
	cleanups = append(cleanups, as.Stop)

	ss := capture.NewSampler(p.deps.Screen)
	frames, err := ss.Start(region, opts.FPS, opts.ShowCursor)
	if err != nil {
		return nil, fmt.Errorf("start screen capture: %w", err)
	}

	p.mu.Lock()
	p.session = sess
	p.screen = ss
	p.audio = as
	p.encoder = enc
	p.sink = sink
	p.ffmpeg = opts.FFmpegPath
	p.stopCh = make(chan struct{})
	p.stopOnce = &sync.Once{}
	p.done = make(chan struct{})
	p.result = Result{}
	p.mu.Unlock()

	p.paused.Store(false)
	p.stopRequested.Store(false)
	p.audioFull.Store(false)
	// Reset the start time so setup work does not count as recorded time.
	sess.mu.Lock()
	sess.startTime = p.now()
	sess.mu.Unlock()

	// Recording must be visible before the loop can move the status on.
	p.setStatus(StatusRecording)
	logger.Info("recording started", "region", region.String(), "fps", opts.FPS,
		"format", sess.Format, "output", sess.OutputPath)

	go p.loop(sess, frames, p.stopCh, p.done)
	return sess, nil
}

// Pause withholds frames and audio until Resume. Elapsed time freezes.
func (p *Pipeline) Pause() error {
	p.mu.Lock()
	sess, screen, as := p.session, p.screen, p.audio
	status := p.status
	p.mu.Unlock()

	if !p.active.Load() || sess == nil || status != StatusRecording {
		return ErrNotRecording
	}
	if !sess.Pause(p.now()) {
		return nil
	}
	p.paused.Store(true)
	screen.Pause()
	as.Pause()
	p.setStatus(StatusPaused)
	log.Info("recording paused", logging.KeySessionID, sess.ID)
	return nil
}

// Resume continues a paused recording, shifting the start time by the pause.
func (p *Pipeline) Resume() error {
	p.mu.Lock()
	sess, screen, as := p.session, p.screen, p.audio
	status := p.status
	p.mu.Unlock()

	if !p.active.Load() || sess == nil || status != StatusPaused {
		return ErrNotRecording
	}
	if !sess.Resume(p.now()) {
		return nil
	}
	p.paused.Store(false)
	as.Resume()
	screen.Resume()
	p.setStatus(StatusRecording)
	log.Info("recording resumed", logging.KeySessionID, sess.ID)
	return nil
}

// Stop ends the recording and blocks until Finalize returns. If the
// recording already ended on its own, Stop returns that outcome. The loop
// observes the request within one iteration, after any in-flight frame write.
func (p *Pipeline) Stop(ctx context.Context) (Result, error) {
	p.mu.Lock()
	stopCh, once, done := p.stopCh, p.stopOnce, p.done
	p.mu.Unlock()

	if done == nil {
		return Result{}, ErrNotRecording
	}

	p.stopRequested.Store(true)
	once.Do(func() { close(stopCh) })

	select {
	case <-done:
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.result, p.result.Err
}

// Done is closed when the current recording has been finalized.
func (p *Pipeline) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

func (p *Pipeline) loop(sess *Session, frames <-chan capture.Frame, stopCh <-chan struct{}, done chan struct{}) {
	p.mu.Lock()
	screen, as, enc, sink, ffmpeg := p.screen, p.audio, p.encoder, p.sink, p.ffmpeg
	p.mu.Unlock()

	logger := logging.WithSession(log, sess.ID)
	ctx := context.Background()
	var (
		loopErr     error
		lastDropped uint64
	)

capture:
	for !p.stopRequested.Load() {
		select {
		case <-stopCh:
			break capture
		case f, ok := <-frames:
			if !ok {
				if p.stopRequested.Load() {
					break capture
				}
				loopErr = ErrCaptureEnded
				if err := screen.Err(); err != nil {
					loopErr = err
				}
				break capture
			}
			if p.paused.Load() {
				// produced before the sampler saw the pause
				f.Release()
				continue
			}

			start := time.Now()
			if err := enc.WriteFrame(f); err != nil {
				loopErr = err
				break capture
			}
			p.metrics.RecordFrameWrite(ctx, time.Since(start))

			if err := p.drainAudio(ctx, as, sink, &lastDropped); err != nil {
				loopErr = err
				break capture
			}
			p.observer.OnTime(FormatElapsed(sess.Elapsed(p.now())))
		}
	}

	recorded := sess.Elapsed(p.now())
	if loopErr != nil {
		logger.Error("recording aborted", logging.KeyError, loopErr)
	}

	p.setStatus(StatusEncoding)
	p.teardown(sess, screen, as, enc, sink, loopErr != nil, &lastDropped)

	finalizeStart := time.Now()
	res, finErr := Finalize(ctx, encode.NewMuxer(p.deps.Runner, ffmpeg), sess, p.setStatus)
	res.Duration = recorded
	res.Frames = enc.Frames()
	res.Err = errors.Join(loopErr, finErr)

	outcome := observe.OutcomeSuccess
	switch {
	case finErr != nil:
		outcome = observe.OutcomeFailed
	case res.GIFFallback:
		outcome = observe.OutcomeGIFFallback
	}
	// One report per recording, covering both the abort and the salvage.
	if res.Err != nil {
		p.observer.OnError(res.Err)
	}
	if finErr == nil {
		p.observer.OnFinished(res.Path)
	}
	p.metrics.RecordRecording(ctx, outcome, time.Since(finalizeStart))

	logger.Info("recording finished", "elapsed", FormatElapsed(res.Duration), "frames", res.Frames,
		logging.KeyDurationMs, time.Since(finalizeStart).Milliseconds(), "outcome", outcome)

	p.mu.Lock()
	p.result = res
	p.screen, p.audio, p.encoder, p.sink = nil, nil, nil, nil
	p.mu.Unlock()

	if res.Err != nil {
		p.setStatus(StatusError)
	} else {
		p.setStatus(StatusIdle)
	}
	p.active.Store(false)
	close(done)
}

// drainAudio writes every queued audio block to the sink.
func (p *Pipeline) drainAudio(ctx context.Context, as *audio.Sampler, sink *wav.Writer, lastDropped *uint64) error {
	p.metrics.AudioQueueDepth.Record(ctx, int64(as.Pending()))

	var written int64
	for {
		b, ok := as.Next()
		if !ok {
			break
		}
		if err := sink.WriteBlock(b); err != nil {
			if !errors.Is(err, wav.ErrTooLarge) {
				return fmt.Errorf("write audio: %w", err)
			}
			// The WAV is full; the video keeps recording without sound.
			if p.audioFull.CompareAndSwap(false, true) {
				log.Warn("audio intermediate full, dropping further audio", logging.KeyError, err)
			}
			continue
		}
		written++
	}
	if written > 0 {
		p.metrics.AudioBlocksWritten.Add(ctx, written)
	}
	if dropped := as.Dropped(); dropped > *lastDropped {
		p.metrics.AudioBlocksDropped.Add(ctx, int64(dropped-*lastDropped))
		*lastDropped = dropped
	}
	return nil
}

// teardown stops every producer and closes the intermediates. Errors are
// logged; the intermediates are judged by Finalize.
func (p *Pipeline) teardown(sess *Session, screen *capture.Sampler, as *audio.Sampler, enc *encode.StreamEncoder, sink *wav.Writer, aborted bool, lastDropped *uint64) {
	logger := logging.WithSession(log, sess.ID)

	screen.Stop()
	if err := as.Stop(); err != nil {
		logger.Warn("audio capture ended with error", logging.KeyError, err)
	}
	// Keep the audio captured since the last frame.
	if err := p.drainAudio(context.Background(), as, sink, lastDropped); err != nil {
		logger.Warn("final audio drain", logging.KeyError, err)
	}

	if stats, err := enc.Stats(); err == nil {
		logger.Debug("encoder process", "pid", stats.PID, "cpuPercent", stats.CPUPercent,
			"rss", humanize.IBytes(stats.RSSBytes))
	}

	var encErr error
	if aborted {
		encErr = enc.Interrupt()
	} else {
		encErr = enc.Stop()
	}
	if encErr != nil {
		logger.Warn("encoder exit", logging.KeyError, encErr)
	}

	if err := sink.Close(); err != nil {
		logger.Warn("close audio intermediate", logging.KeyError, err)
	}
}
