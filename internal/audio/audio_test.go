package audio

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMixSumsAndTruncates(t *testing.T) {
	a := Block{Samples: []float32{0.1, 0.2, 0.3, 0.4}, Channels: 2}
	b := Block{Samples: []float32{0.5, 0.5}, Channels: 2}

	m := Mix(a, b)
	require.Len(t, m.Samples, 2)
	assert.InDelta(t, 0.6, m.Samples[0], 1e-6)
	assert.InDelta(t, 0.7, m.Samples[1], 1e-6)
	assert.Equal(t, 1, m.Frames())
}

func TestMixDoesNotClip(t *testing.T) {
	a := Block{Samples: []float32{0.9, -0.9}, Channels: 2}
	m := Mix(a, a)
	assert.InDelta(t, 1.8, m.Samples[0], 1e-6)
	assert.InDelta(t, -1.8, m.Samples[1], 1e-6)
}

func TestMixDoesNotAliasInputs(t *testing.T) {
	a := Block{Samples: []float32{1, 1}, Channels: 2}
	b := Block{Samples: []float32{1, 1}, Channels: 2}
	m := Mix(a, b)
	m.Samples[0] = 0
	assert.Equal(t, float32(1), a.Samples[0])
}

func TestResolveSystem(t *testing.T) {
	ctx := context.Background()

	b := NewSyntheticBackend()
	b.Devices = append([]Device{{ID: "other.monitor", IsLoopback: true, Output: "other"}}, b.Devices...)
	res, err := ResolveSystem(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, Found, res.Status)
	assert.Equal(t, "synthetic-out.monitor", res.Device.ID)

	b.Output = "hdmi"
	res, err = ResolveSystem(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, Fallback, res.Status)
	assert.Equal(t, "other.monitor", res.Device.ID)

	b.Devices = []Device{{ID: "mic"}}
	res, err = ResolveSystem(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, NotFound, res.Status)
	assert.False(t, res.Usable())
}

func TestResolveMic(t *testing.T) {
	ctx := context.Background()
	b := NewSyntheticBackend()

	res, err := ResolveMic(ctx, b, "")
	require.NoError(t, err)
	assert.Equal(t, Found, res.Status)
	assert.Equal(t, "synthetic-mic", res.Device.ID)

	res, err = ResolveMic(ctx, b, "missing")
	require.NoError(t, err)
	assert.Equal(t, NotFound, res.Status)

	// A loopback ID is never accepted as a microphone.
	res, err = ResolveMic(ctx, b, "synthetic-out.monitor")
	require.NoError(t, err)
	assert.Equal(t, NotFound, res.Status)
}

func TestInputDevicesSkipsLoopback(t *testing.T) {
	devices, err := InputDevices(context.Background(), NewSyntheticBackend())
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "synthetic-mic", devices[0].ID)
	assert.True(t, devices[0].IsDefault)
}

func TestParseShortSources(t *testing.T) {
	out := "0\talsa_output.pci-0000_00_1f.3.analog-stereo.monitor\tPipeWire\ts32le 2ch 48000Hz\tSUSPENDED\n" +
		"1\talsa_input.pci-0000_00_1f.3.analog-stereo\tPipeWire\ts32le 2ch 48000Hz\tRUNNING\n" +
		"garbage line\n"

	devices := parseShortSources(out)
	require.Len(t, devices, 2)
	assert.True(t, devices[0].IsLoopback)
	assert.Equal(t, "alsa_output.pci-0000_00_1f.3.analog-stereo", devices[0].Output)
	assert.False(t, devices[1].IsLoopback)
	assert.Equal(t, "s32le 2ch 48000Hz", devices[1].Description)
}

func TestParseInfoField(t *testing.T) {
	info := "Server Name: PulseAudio (on PipeWire 1.0.5)\nDefault Sink: speakers\nDefault Source: headset\n"
	assert.Equal(t, "speakers", parseInfoField(info, "Default Sink:"))
	assert.Equal(t, "headset", parseInfoField(info, "Default Source:"))
	assert.Empty(t, parseInfoField(info, "Default Card:"))
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSamplerMixesBothSources(t *testing.T) {
	s := NewSampler(NewSyntheticBackend(), 0)
	require.NoError(t, s.Start(context.Background(), Options{UseSystem: true, UseMic: true}))

	waitFor(t, func() bool { return s.Pending() >= 2 })
	require.NoError(t, s.Stop())

	b, ok := s.Next()
	require.True(t, ok)
	assert.Equal(t, Channels, b.Channels)
	assert.Equal(t, BlockFrames, b.Frames())
	// Two sines at 0.25 amplitude can exceed a single one.
	var peak float32
	for _, v := range b.Samples {
		peak = max(peak, v)
	}
	assert.Greater(t, peak, float32(0.25))
}

func TestSamplerNoSourcesProducesNothing(t *testing.T) {
	s := NewSampler(NewSyntheticBackend(), 0)
	require.NoError(t, s.Start(context.Background(), Options{}))
	time.Sleep(150 * time.Millisecond)
	require.NoError(t, s.Stop())

	_, ok := s.Next()
	assert.False(t, ok)
}

func TestSamplerPauseStopsBlocks(t *testing.T) {
	s := NewSampler(NewSyntheticBackend(), 0)
	require.NoError(t, s.Start(context.Background(), Options{UseMic: true}))
	waitFor(t, func() bool { return s.Pending() >= 1 })

	s.Pause()
	time.Sleep(60 * time.Millisecond)
	before := s.Pending()
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, before, s.Pending())

	s.Resume()
	waitFor(t, func() bool { return s.Pending() > before })
	require.NoError(t, s.Stop())
}

func TestSamplerPauseDiscardsDeviceBacklog(t *testing.T) {
	s := NewSampler(NewSyntheticBackend(), 0)
	require.NoError(t, s.Start(context.Background(), Options{UseSystem: true}))

	time.Sleep(500 * time.Millisecond)
	s.Pause()
	time.Sleep(time.Second)
	s.Resume()
	time.Sleep(500 * time.Millisecond)
	require.NoError(t, s.Stop())

	var frames int
	for {
		b, ok := s.Next()
		if !ok {
			break
		}
		frames += b.Frames()
	}
	queued := time.Duration(frames) * time.Second / SampleRate
	assert.InDelta(t, time.Second.Seconds(), queued.Seconds(), 0.3,
		"queued %v of audio for 1s of unpaused capture", queued)
}

func TestSamplerReportsSourceError(t *testing.T) {
	b := NewSyntheticBackend()
	b.FailAfter = 2
	s := NewSampler(b, 0)
	require.NoError(t, s.Start(context.Background(), Options{UseSystem: true}))

	waitFor(t, func() bool { return !s.running.Load() })
	err := s.Stop()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read system audio")
	assert.Equal(t, 2, s.Pending())
}

func TestSamplerStartTwice(t *testing.T) {
	s := NewSampler(NewSyntheticBackend(), 0)
	require.NoError(t, s.Start(context.Background(), Options{UseMic: true}))
	defer s.Stop()
	assert.ErrorIs(t, s.Start(context.Background(), Options{UseMic: true}), ErrAlreadyRunning)
}
