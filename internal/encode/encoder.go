// Package encode drives ffmpeg: a long-running stream encoder fed raw frames
// over stdin, and one-shot mux and transcode runs used to finalize a
// recording.
package encode

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/omnicapture/agent/internal/capture"
	"github.com/omnicapture/agent/internal/logging"
)

var log = logging.L("encode")

var (
	// ErrEncodeWrite wraps any failure to hand a frame to the encoder.
	ErrEncodeWrite = errors.New("encoder write failed")

	// ErrNotStarted is returned when writing before Start.
	ErrNotStarted = errors.New("encoder not started")

	// ErrTranscode marks a failed GIF conversion. It is never fatal to a recording.
	ErrTranscode = errors.New("transcode failed")
)

// StreamEncoder compresses raw BGRA frames to H.264 in a child ffmpeg.
type StreamEncoder struct {
	runner Runner
	ffmpeg string
	path   string
	width  int
	height int
	fps    int

	mu      sync.Mutex
	proc    Process
	stopped bool

	stopOnce sync.Once
	stopErr  error

	frames atomic.Uint64
	bytes  atomic.Uint64
}

// NewStreamEncoder prepares an encoder writing to path. Dimensions must be
// even and match every frame written.
func NewStreamEncoder(runner Runner, ffmpegPath, path string, width, height, fps int) *StreamEncoder {
	if runner == nil {
		runner = ExecRunner{}
	}
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &StreamEncoder{
		runner: runner,
		ffmpeg: ffmpegPath,
		path:   path,
		width:  width,
		height: height,
		fps:    fps,
	}
}

// Args returns the ffmpeg command line used by Start.
func (e *StreamEncoder) Args() []string {
	return []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-f", "rawvideo",
		"-pix_fmt", "bgra",
		"-s", fmt.Sprintf("%dx%d", e.width, e.height),
		"-r", strconv.Itoa(e.fps),
		"-i", "pipe:0",
		"-c:v", "libx264",
		"-preset", "ultrafast",
		"-pix_fmt", "yuv420p",
		e.path,
	}
}

// Start launches ffmpeg. The process lives until Stop or until ctx ends.
func (e *StreamEncoder) Start(ctx context.Context) error {
	if e.width <= 0 || e.height <= 0 || e.width%2 != 0 || e.height%2 != 0 {
		return fmt.Errorf("encoder dimensions %dx%d must be even and positive", e.width, e.height)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.proc != nil {
		return fmt.Errorf("encoder already started")
	}

	proc, err := e.runner.Start(ctx, e.ffmpeg, e.Args()...)
	if err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}
	e.proc = proc
	log.Info("stream encoder started", "pid", proc.Pid(), logging.KeyPath, e.path,
		"size", fmt.Sprintf("%dx%d", e.width, e.height), "fps", e.fps)
	return nil
}

// WriteFrame writes the frame's pixels to ffmpeg stdin, blocking while the
// pipe is full. The frame is released whether or not the write succeeds.
func (e *StreamEncoder) WriteFrame(f capture.Frame) error {
	defer f.Release()

	e.mu.Lock()
	proc, stopped := e.proc, e.stopped
	e.mu.Unlock()
	if proc == nil {
		return fmt.Errorf("%w: %w", ErrEncodeWrite, ErrNotStarted)
	}
	if stopped {
		return fmt.Errorf("%w: encoder stopped", ErrEncodeWrite)
	}
	if f.Width != e.width || f.Height != e.height {
		return fmt.Errorf("%w: frame %dx%d does not match encoder %dx%d",
			ErrEncodeWrite, f.Width, f.Height, e.width, e.height)
	}

	row := e.width * capture.BytesPerPixel
	if f.Stride == row || f.Stride == 0 {
		if _, err := proc.Write(f.Pix[:row*e.height]); err != nil {
			return e.writeErr(proc, err)
		}
	} else {
		for y := 0; y < e.height; y++ {
			if _, err := proc.Write(f.Pix[y*f.Stride : y*f.Stride+row]); err != nil {
				return e.writeErr(proc, err)
			}
		}
	}

	e.frames.Add(1)
	e.bytes.Add(uint64(row * e.height))
	return nil
}

func (e *StreamEncoder) writeErr(proc Process, err error) error {
	if tail := proc.StderrTail(); tail != "" {
		return fmt.Errorf("%w: %v: %s", ErrEncodeWrite, err, tail)
	}
	return fmt.Errorf("%w: %v", ErrEncodeWrite, err)
}

// Stop closes stdin and waits for ffmpeg to flush the file. It runs once;
// later calls return the first result.
func (e *StreamEncoder) Stop() error {
	e.stopOnce.Do(func() {
		e.mu.Lock()
		proc := e.proc
		e.stopped = true
		e.mu.Unlock()
		if proc == nil {
			return
		}

		closeErr := proc.CloseStdin()
		waitErr := proc.Wait()
		if waitErr != nil {
			if tail := proc.StderrTail(); tail != "" {
				waitErr = fmt.Errorf("ffmpeg exited: %w: %s", waitErr, tail)
			} else {
				waitErr = fmt.Errorf("ffmpeg exited: %w", waitErr)
			}
		}
		if closeErr != nil && waitErr == nil {
			// stdin already torn down by a dead child shows up in Wait
			log.Debug("closing encoder stdin", logging.KeyError, closeErr)
		}
		e.stopErr = waitErr
		log.Info("stream encoder stopped", "frames", e.frames.Load(), logging.KeyPath, e.path)
	})
	return e.stopErr
}

// Interrupt asks ffmpeg to finish early and waits for it. Used when the
// pipeline aborts and the child may be stuck on a full pipe.
func (e *StreamEncoder) Interrupt() error {
	e.mu.Lock()
	proc := e.proc
	e.mu.Unlock()
	if proc != nil {
		if err := proc.Interrupt(); err != nil {
			log.Debug("interrupt ffmpeg", logging.KeyError, err)
		}
	}
	return e.Stop()
}

// Frames returns the number of frames written.
func (e *StreamEncoder) Frames() uint64 {
	return e.frames.Load()
}

// Path is the file ffmpeg writes to.
func (e *StreamEncoder) Path() string {
	return e.path
}

// ProcessStats reports the encoder child's resource use.
type ProcessStats struct {
	PID        int
	CPUPercent float64
	RSSBytes   uint64
}

// Stats samples CPU and memory of the running ffmpeg process.
func (e *StreamEncoder) Stats() (ProcessStats, error) {
	e.mu.Lock()
	proc := e.proc
	e.mu.Unlock()
	if proc == nil {
		return ProcessStats{}, ErrNotStarted
	}

	p, err := process.NewProcess(int32(proc.Pid()))
	if err != nil {
		return ProcessStats{}, fmt.Errorf("inspect ffmpeg: %w", err)
	}
	stats := ProcessStats{PID: proc.Pid()}
	if cpu, err := p.CPUPercent(); err == nil {
		stats.CPUPercent = cpu
	}
	if mem, err := p.MemoryInfo(); err == nil && mem != nil {
		stats.RSSBytes = mem.RSS
	}
	return stats, nil
}
