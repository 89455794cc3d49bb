package recorder

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnicapture/agent/internal/capture"
)

func TestFormatElapsed(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "00:00:00"},
		{999 * time.Millisecond, "00:00:00"},
		{61 * time.Second, "00:01:01"},
		{time.Hour + 2*time.Minute + 3*time.Second + 900*time.Millisecond, "01:02:03"},
		{-5 * time.Second, "00:00:00"},
		{100 * time.Hour, "100:00:00"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatElapsed(tt.in), "FormatElapsed(%v)", tt.in)
	}
}

func TestSessionPauseResumeShiftsStart(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := newSession(Options{OutputDir: "/out", FPS: 30}, capture.Region{Width: 2, Height: 2}, t0)

	assert.Equal(t, 10*time.Second, s.Elapsed(t0.Add(10*time.Second)))

	require.True(t, s.Pause(t0.Add(10*time.Second)))
	assert.False(t, s.Pause(t0.Add(11*time.Second)), "second pause is ignored")
	assert.Equal(t, 10*time.Second, s.Elapsed(t0.Add(40*time.Second)), "elapsed frozen while paused")

	require.True(t, s.Resume(t0.Add(40*time.Second)))
	assert.False(t, s.Resume(t0.Add(41*time.Second)))
	assert.Equal(t, 15*time.Second, s.Elapsed(t0.Add(45*time.Second)))
	assert.Equal(t, 30*time.Second, s.PausedFor())
}

func TestSessionPaths(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 9, 5, 7, 0, time.Local)
	s := newSession(Options{OutputDir: "/out"}, capture.Region{Width: 2, Height: 2}, t0)

	assert.Equal(t, filepath.Join("/out", "temp_video.mp4"), s.VideoPath)
	assert.Equal(t, filepath.Join("/out", "temp_audio.wav"), s.AudioPath)
	assert.Equal(t, filepath.Join("/out", "recording_20260301_090507.mp4"), s.OutputPath)
	assert.Equal(t, FormatMP4, s.Format)
	assert.NotEmpty(t, s.ID)
}
