package capture

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaceDelayNeverNegative(t *testing.T) {
	for _, fps := range []int{10, 15, 24, 30, 60} {
		interval := FrameInterval(fps)
		for _, elapsed := range []time.Duration{0, interval / 2, interval, interval * 3} {
			d := PaceDelay(interval, elapsed)
			assert.GreaterOrEqual(t, d, time.Duration(0), "fps=%d elapsed=%v", fps, elapsed)
			assert.LessOrEqual(t, d, interval)
		}
	}
	assert.Equal(t, 10*time.Millisecond, PaceDelay(40*time.Millisecond, 30*time.Millisecond))
}

func TestFrameInterval(t *testing.T) {
	assert.Equal(t, 100*time.Millisecond, FrameInterval(10))
	assert.Equal(t, time.Second/30, FrameInterval(30))
	assert.Equal(t, time.Second, FrameInterval(0))
}

func recvFrame(t *testing.T, ch <-chan Frame) Frame {
	t.Helper()
	select {
	case f, ok := <-ch:
		require.True(t, ok, "frame channel closed early")
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
	}
	return Frame{}
}

func TestSamplerProducesFrames(t *testing.T) {
	backend := NewSyntheticBackend(64, 48)
	s := NewSampler(backend)
	region := Region{Width: 64, Height: 48}

	ch, err := s.Start(region, 60, true)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		f := recvFrame(t, ch)
		assert.Equal(t, 64, f.Width)
		assert.Equal(t, 48, f.Height)
		assert.Equal(t, 64*4, f.Stride)
		assert.Len(t, f.Pix, region.FrameSize())
		// Cursor square at origin is black; alpha stays opaque.
		assert.Equal(t, []byte{0, 0, 0, 255}, f.Pix[:4])
		f.Release()
		assert.Nil(t, f.Pix)
	}

	s.Stop()
	for range ch {
	}
	assert.NoError(t, s.Err())
	assert.GreaterOrEqual(t, s.FrameCount(), uint64(3))
}

func TestSamplerStartTwiceFails(t *testing.T) {
	s := NewSampler(NewSyntheticBackend(16, 16))
	_, err := s.Start(Region{Width: 16, Height: 16}, 30, false)
	require.NoError(t, err)
	defer s.Stop()

	_, err = s.Start(Region{Width: 16, Height: 16}, 30, false)
	assert.ErrorIs(t, err, ErrAlreadyRunning)
}

func TestSamplerRestartAfterStop(t *testing.T) {
	s := NewSampler(NewSyntheticBackend(16, 16))
	region := Region{Width: 16, Height: 16}

	ch, err := s.Start(region, 60, false)
	require.NoError(t, err)
	f := recvFrame(t, ch)
	f.Release()
	s.Stop()

	ch, err = s.Start(region, 60, false)
	require.NoError(t, err)
	f = recvFrame(t, ch)
	f.Release()
	s.Stop()
}

func TestSamplerPauseWithholdsFrames(t *testing.T) {
	s := NewSampler(NewSyntheticBackend(16, 16))
	ch, err := s.Start(Region{Width: 16, Height: 16}, 60, false)
	require.NoError(t, err)
	defer s.Stop()

	s.Pause()
	assert.True(t, s.Paused())

	// Drain anything produced before the pause was observed.
	time.Sleep(150 * time.Millisecond)
	for len(ch) > 0 {
		f := <-ch
		f.Release()
	}
	time.Sleep(50 * time.Millisecond)
	for len(ch) > 0 {
		f := <-ch
		f.Release()
	}

	select {
	case f := <-ch:
		f.Release()
		t.Fatal("received a frame while paused")
	case <-time.After(250 * time.Millisecond):
	}

	s.Resume()
	f := recvFrame(t, ch)
	f.Release()
}

func TestSamplerBackendFailureEndsSequence(t *testing.T) {
	backend := NewSyntheticBackend(16, 16)
	backend.FailAfter = 2
	s := NewSampler(backend)

	ch, err := s.Start(Region{Width: 16, Height: 16}, 60, false)
	require.NoError(t, err)

	n := 0
	deadline := time.After(2 * time.Second)
	for done := false; !done; {
		select {
		case f, ok := <-ch:
			if !ok {
				done = true
				break
			}
			n++
			f.Release()
		case <-deadline:
			t.Fatal("channel not closed after backend failure")
		}
	}

	assert.Equal(t, 2, n)
	assert.ErrorIs(t, s.Err(), ErrCapture)
	s.Stop()
}

func TestSamplerRejectsEmptyRegion(t *testing.T) {
	s := NewSampler(NewSyntheticBackend(16, 16))
	_, err := s.Start(Region{}, 30, false)
	assert.Error(t, err)
}
