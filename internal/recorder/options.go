package recorder

import (
	"github.com/omnicapture/agent/internal/audio"
	"github.com/omnicapture/agent/internal/capture"
	"github.com/omnicapture/agent/internal/config"
)

// Options is the immutable configuration of one recording.
type Options struct {
	OutputDir string
	// Format is FormatMP4 or FormatGIF.
	Format     string
	FPS        int
	ShowCursor bool

	// Region, when set, overrides MonitorIndex.
	Region       *capture.Region
	MonitorIndex int

	Audio            audio.Options
	AudioQueueBlocks int

	FFmpegPath string
	// MinFreeBytes is the free space required in OutputDir before starting.
	MinFreeBytes uint64
}

// OptionsFromConfig snapshots the recording settings of cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		OutputDir:    cfg.OutputDir,
		Format:       cfg.OutputFormat,
		FPS:          cfg.FPS,
		ShowCursor:   cfg.ShowCursor,
		MonitorIndex: cfg.MonitorIndex,
		Audio: audio.Options{
			UseSystem:   cfg.UseSystemAudio,
			UseMic:      cfg.UseMicAudio,
			MicDeviceID: cfg.MicDeviceID,
		},
		AudioQueueBlocks: cfg.AudioQueueBlocks,
		FFmpegPath:       cfg.FFmpegPath,
		MinFreeBytes:     uint64(max(cfg.MinFreeSpaceMB, 0)) * 1024 * 1024,
	}
}
