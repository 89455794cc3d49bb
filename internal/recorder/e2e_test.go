package recorder

import (
	"context"
	"os/exec"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnicapture/agent/internal/audio"
	"github.com/omnicapture/agent/internal/capture"
	"github.com/omnicapture/agent/internal/encode"
)

func requireFFmpeg(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("end-to-end test skipped in short mode")
	}
	for _, bin := range []string{"ffmpeg", "ffprobe"} {
		if _, err := exec.LookPath(bin); err != nil {
			t.Skipf("%s not installed", bin)
		}
	}
}

func probe(t *testing.T, path, entries string) string {
	t.Helper()
	out, err := exec.Command("ffprobe", "-v", "error", "-show_entries", entries,
		"-of", "default=noprint_wrappers=1:nokey=1", path).Output()
	require.NoError(t, err)
	return strings.TrimSpace(string(out))
}

func probeDuration(t *testing.T, path string) float64 {
	t.Helper()
	d, err := strconv.ParseFloat(probe(t, path, "format=duration"), 64)
	require.NoError(t, err)
	return d
}

func TestEndToEndVideoOnly(t *testing.T) {
	requireFFmpeg(t)

	p := New(Deps{Screen: capture.NewSyntheticBackend(640, 480), Runner: encode.ExecRunner{}})
	opts := testOptions(t.TempDir())
	opts.Audio = audio.Options{}

	_, err := p.Start(context.Background(), opts)
	require.NoError(t, err)
	time.Sleep(2 * time.Second)

	res, err := stopWithin(t, p, 30*time.Second)
	require.NoError(t, err)
	assert.False(t, res.HasAudio)

	assert.Equal(t, "640\n480", probe(t, res.Path, "stream=width,height"))
	assert.InDelta(t, 2.0, probeDuration(t, res.Path), 0.5)
	assert.Equal(t, "video", probe(t, res.Path, "stream=codec_type"))
}

func TestEndToEndAudioWithPause(t *testing.T) {
	requireFFmpeg(t)

	events := &eventLog{}
	p := New(Deps{
		Screen:   capture.NewSyntheticBackend(320, 240),
		Audio:    audio.NewSyntheticBackend(),
		Runner:   encode.ExecRunner{},
		Observer: events,
	})

	_, err := p.Start(context.Background(), testOptions(t.TempDir()))
	require.NoError(t, err)
	time.Sleep(time.Second)
	require.NoError(t, p.Pause())
	time.Sleep(time.Second)
	require.NoError(t, p.Resume())
	time.Sleep(1100 * time.Millisecond)

	res, err := stopWithin(t, p, 30*time.Second)
	require.NoError(t, err)
	assert.True(t, res.HasAudio)
	assert.InDelta(t, 2.0, res.Duration.Seconds(), 0.4)

	times, _, _, _ := events.snapshot()
	require.NotEmpty(t, times)
	assert.Equal(t, "00:00:02", times[len(times)-1])

	out := probe(t, res.Path, "stream=codec_name")
	assert.Contains(t, out, "h264")
	assert.Contains(t, out, "aac")
}
