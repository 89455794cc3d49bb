package recorder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/omnicapture/agent/internal/encode"
	"github.com/omnicapture/agent/internal/logging"
)

// minAudioBytes excludes header-only WAV files from muxing.
const minAudioBytes = 100

var (
	// ErrFinalize marks a recording that could not be turned into an output file.
	ErrFinalize = errors.New("finalize failed")

	// ErrMissingVideo means the encoder left no usable video intermediate.
	ErrMissingVideo = fmt.Errorf("%w: video intermediate missing or empty", ErrFinalize)
)

// Result describes a finished recording.
type Result struct {
	SessionID string
	// Path is the reported output: the GIF when conversion succeeded,
	// otherwise the MP4.
	Path     string
	Format   string
	Duration time.Duration
	Frames   uint64
	Size     uint64
	HasAudio bool
	// GIFFallback is set when GIF conversion failed and the MP4 was kept.
	GIFFallback bool
	// Err is the first fatal error of the recording, if any.
	Err error
}

// Finalize produces the output file for s from its intermediates and always
// deletes the intermediates afterwards. status may be nil.
func Finalize(ctx context.Context, muxer *encode.Muxer, s *Session, status func(Status)) (Result, error) {
	logger := logging.WithSession(log, s.ID)
	res := Result{SessionID: s.ID, Format: FormatMP4}
	defer removeIntermediates(s)

	info, statErr := os.Stat(s.VideoPath)
	if statErr != nil || info.Size() == 0 {
		logger.Error("video intermediate unusable", logging.KeyPath, s.VideoPath, logging.KeyError, statErr)
		return res, ErrMissingVideo
	}

	if audioInfo, err := os.Stat(s.AudioPath); err == nil && audioInfo.Size() > minAudioBytes {
		res.HasAudio = true
		if err := muxer.Mux(ctx, s.VideoPath, s.AudioPath, s.OutputPath); err != nil {
			return res, fmt.Errorf("%w: %w", ErrFinalize, err)
		}
	} else {
		if err := muxer.VideoOnly(ctx, s.VideoPath, s.OutputPath); err != nil {
			return res, fmt.Errorf("%w: %w", ErrFinalize, err)
		}
	}
	res.Path = s.OutputPath

	if s.Format == FormatGIF {
		if status != nil {
			status(StatusConverting)
		}
		gifPath := strings.TrimSuffix(s.OutputPath, ".mp4") + ".gif"
		if err := muxer.TranscodeGIF(ctx, s.OutputPath, gifPath); err != nil {
			logger.Warn("gif conversion failed, keeping mp4", logging.KeyError, err, logging.KeyPath, s.OutputPath)
			_ = os.Remove(gifPath)
			res.GIFFallback = true
		} else {
			if err := os.Remove(s.OutputPath); err != nil {
				logger.Warn("remove mp4 after gif conversion", logging.KeyError, err)
			}
			res.Path = gifPath
			res.Format = FormatGIF
		}
	}

	if out, err := os.Stat(res.Path); err == nil {
		res.Size = uint64(out.Size())
	}
	logger.Info("recording saved", logging.KeyPath, res.Path, "size", humanize.IBytes(res.Size),
		"audio", res.HasAudio, "format", res.Format)
	return res, nil
}

// removeIntermediates deletes both temp files, ignoring failures.
func removeIntermediates(s *Session) {
	for _, p := range []string{s.VideoPath, s.AudioPath} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Debug("remove intermediate", logging.KeyPath, p, logging.KeyError, err)
		}
	}
}
