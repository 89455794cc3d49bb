package recorder

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/omnicapture/agent/internal/capture"
)

// Intermediate and output file names inside the output directory.
const (
	TempVideoName = "temp_video.mp4"
	TempAudioName = "temp_audio.wav"

	outputTimeLayout = "20060102_150405"
)

// Output formats.
const (
	FormatMP4 = "mp4"
	FormatGIF = "gif"
)

// Session is one recording from Start to the end of Finalize.
type Session struct {
	ID         string
	Region     capture.Region
	FPS        int
	Format     string
	VideoPath  string
	AudioPath  string
	OutputPath string
	CreatedAt  time.Time

	mu         sync.Mutex
	startTime  time.Time
	pauseStart time.Time
	paused     bool
	pausedFor  time.Duration
}

func newSession(opts Options, region capture.Region, now time.Time) *Session {
	format := opts.Format
	if format == "" {
		format = FormatMP4
	}
	return &Session{
		ID:         uuid.NewString(),
		Region:     region,
		FPS:        opts.FPS,
		Format:     format,
		VideoPath:  filepath.Join(opts.OutputDir, TempVideoName),
		AudioPath:  filepath.Join(opts.OutputDir, TempAudioName),
		OutputPath: filepath.Join(opts.OutputDir, OutputName(now)),
		CreatedAt:  now,
		startTime:  now,
	}
}

// OutputName is the final MP4 file name for a recording started at t.
func OutputName(t time.Time) string {
	return fmt.Sprintf("recording_%s.mp4", t.Format(outputTimeLayout))
}

// Pause marks the start of a paused interval. Repeated calls are ignored.
func (s *Session) Pause(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.paused {
		return false
	}
	s.paused = true
	s.pauseStart = now
	return true
}

// Resume shifts the start time forward by the paused interval so elapsed
// time excludes it.
func (s *Session) Resume(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.paused {
		return false
	}
	d := now.Sub(s.pauseStart)
	s.startTime = s.startTime.Add(d)
	s.pausedFor += d
	s.paused = false
	return true
}

// Paused reports whether the session is inside a paused interval.
func (s *Session) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// Elapsed is the recorded time at now, excluding pauses. While paused it
// stays frozen at the pause point.
func (s *Session) Elapsed(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.paused {
		now = s.pauseStart
	}
	return max(now.Sub(s.startTime), 0)
}

// PausedFor is the total time spent in completed pauses.
func (s *Session) PausedFor() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pausedFor
}

// FormatElapsed renders d as HH:MM:SS, flooring to whole seconds.
func FormatElapsed(d time.Duration) string {
	total := max(int64(d/time.Second), 0)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}
