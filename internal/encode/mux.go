package encode

import (
	"context"
	"fmt"
	"os"
	"strconv"
)

// GIFFPS is the frame rate recordings are reduced to when converted to GIF.
const GIFFPS = 15

// Muxer runs the one-shot ffmpeg jobs that turn intermediates into the
// final output.
type Muxer struct {
	runner Runner
	ffmpeg string
}

func NewMuxer(runner Runner, ffmpegPath string) *Muxer {
	if runner == nil {
		runner = ExecRunner{}
	}
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Muxer{runner: runner, ffmpeg: ffmpegPath}
}

// MuxArgs copies the video stream and encodes the WAV to AAC.
func MuxArgs(video, audio, out string) []string {
	return []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-i", video,
		"-i", audio,
		"-map", "0:v:0", "-map", "1:a:0",
		"-c:v", "copy",
		"-c:a", "aac",
		out,
	}
}

// CopyArgs remuxes the video stream alone.
func CopyArgs(video, out string) []string {
	return []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-i", video,
		"-c:v", "copy",
		out,
	}
}

// GIFArgs converts a video to GIF at GIFFPS.
func GIFArgs(in, out string) []string {
	return []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-i", in,
		"-vf", "fps=" + strconv.Itoa(GIFFPS),
		out,
	}
}

// Mux combines video and audio into out.
func (m *Muxer) Mux(ctx context.Context, video, audio, out string) error {
	if _, err := m.runner.Run(ctx, m.ffmpeg, MuxArgs(video, audio, out)...); err != nil {
		return fmt.Errorf("mux %s + %s: %w", video, audio, err)
	}
	return nil
}

// VideoOnly copies the video stream into out without audio.
func (m *Muxer) VideoOnly(ctx context.Context, video, out string) error {
	if _, err := m.runner.Run(ctx, m.ffmpeg, CopyArgs(video, out)...); err != nil {
		return fmt.Errorf("remux %s: %w", video, err)
	}
	return nil
}

// TranscodeGIF converts in to a GIF at out. It succeeds only if ffmpeg exits
// cleanly and the GIF exists; any failure wraps ErrTranscode.
func (m *Muxer) TranscodeGIF(ctx context.Context, in, out string) error {
	if _, err := m.runner.Run(ctx, m.ffmpeg, GIFArgs(in, out)...); err != nil {
		return fmt.Errorf("%w: %v", ErrTranscode, err)
	}
	if info, err := os.Stat(out); err != nil || info.Size() == 0 {
		return fmt.Errorf("%w: %s not produced", ErrTranscode, out)
	}
	return nil
}
