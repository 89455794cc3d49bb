package config

import (
	"fmt"
	"log/slog"
	"strings"
)

// SupportedFPS lists the frame rates offered to the user.
var SupportedFPS = []int{10, 15, 24, 30, 60}

var validLogLevels = map[string]bool{
	"debug":   true,
	"info":    true,
	"warn":    true,
	"warning": true,
	"error":   true,
}

var knownArchiveProviders = map[string]bool{
	"":      true,
	"local": true,
	"s3":    true,
	"gcs":   true,
	"azure": true,
	"b2":    true,
}

// ValidationResult splits problems into fatals, which must stop the program,
// and warnings, which were logged and usually auto-corrected.
type ValidationResult struct {
	Fatals   []error
	Warnings []error
}

func (r ValidationResult) HasFatals() bool {
	return len(r.Fatals) > 0
}

func (r ValidationResult) AllErrors() []error {
	all := make([]error, 0, len(r.Fatals)+len(r.Warnings))
	all = append(all, r.Fatals...)
	return append(all, r.Warnings...)
}

// Validate checks the config and returns every problem found.
func (c *Config) Validate() []error {
	return c.ValidateTiered().AllErrors()
}

// ValidateTiered checks the config for invalid values. Out-of-range numbers are
// clamped to safe values and reported as warnings.
func (c *Config) ValidateTiered() ValidationResult {
	var r ValidationResult

	if !isSupportedFPS(c.FPS) {
		snapped := nearestFPS(c.FPS)
		r.Warnings = append(r.Warnings, fmt.Errorf("fps %d is not supported, using %d", c.FPS, snapped))
		c.FPS = snapped
	}

	if strings.TrimSpace(c.OutputDir) == "" {
		r.Fatals = append(r.Fatals, fmt.Errorf("output_dir is required"))
	}

	switch strings.ToLower(c.OutputFormat) {
	case "mp4", "gif":
		c.OutputFormat = strings.ToLower(c.OutputFormat)
	case "":
		c.OutputFormat = "mp4"
	default:
		r.Fatals = append(r.Fatals, fmt.Errorf("output_format %q is not valid (use mp4 or gif)", c.OutputFormat))
	}

	if c.MonitorIndex < 0 {
		r.Warnings = append(r.Warnings, fmt.Errorf("monitor_index %d is negative, using primary monitor", c.MonitorIndex))
		c.MonitorIndex = 0
	}

	if c.MicDeviceID != "" && !c.UseMicAudio {
		r.Warnings = append(r.Warnings, fmt.Errorf("mic_device_id is set but use_mic_audio is false"))
	}

	if strings.TrimSpace(c.FFmpegPath) == "" {
		c.FFmpegPath = "ffmpeg"
	}

	// 0 keeps the audio queue unbounded.
	if c.AudioQueueBlocks < 0 {
		r.Warnings = append(r.Warnings, fmt.Errorf("audio_queue_blocks %d is negative, clamping to 0 (unbounded)", c.AudioQueueBlocks))
		c.AudioQueueBlocks = 0
	} else if c.AudioQueueBlocks > 0 && c.AudioQueueBlocks < 16 {
		r.Warnings = append(r.Warnings, fmt.Errorf("audio_queue_blocks %d is below minimum 16, clamping", c.AudioQueueBlocks))
		c.AudioQueueBlocks = 16
	}

	if c.MinFreeSpaceMB < 0 {
		r.Warnings = append(r.Warnings, fmt.Errorf("min_free_space_mb %d is negative, clamping to 0", c.MinFreeSpaceMB))
		c.MinFreeSpaceMB = 0
	}

	if c.LogLevel != "" && !validLogLevels[strings.ToLower(c.LogLevel)] {
		r.Warnings = append(r.Warnings, fmt.Errorf("log_level %q is not valid (use debug, info, warn, error)", c.LogLevel))
	}

	if c.LogFormat != "" && c.LogFormat != "text" && c.LogFormat != "json" {
		r.Warnings = append(r.Warnings, fmt.Errorf("log_format %q is not valid (use text or json)", c.LogFormat))
	}

	r.Fatals = append(r.Fatals, c.Archive.validate(&r)...)

	for _, err := range r.Warnings {
		slog.Warn("config validation", "error", err)
	}

	return r
}

func (a *ArchiveConfig) validate(r *ValidationResult) []error {
	var fatals []error

	provider := strings.ToLower(strings.TrimSpace(a.Provider))
	if !knownArchiveProviders[provider] {
		return append(fatals, fmt.Errorf("archive.provider %q is not valid (use local, s3, gcs, azure or b2)", a.Provider))
	}
	a.Provider = provider

	switch provider {
	case "":
		return nil
	case "local":
		if a.LocalPath == "" {
			fatals = append(fatals, fmt.Errorf("archive.local_path is required for the local provider"))
		}
	case "azure":
		if a.Bucket == "" || a.ConnectionString == "" {
			fatals = append(fatals, fmt.Errorf("archive.bucket (container) and archive.connection_string are required for azure"))
		}
	case "b2":
		if a.Bucket == "" || a.AccessKeyID == "" || a.SecretAccessKey == "" {
			fatals = append(fatals, fmt.Errorf("archive.bucket, access_key_id and secret_access_key are required for b2"))
		}
	default:
		if a.Bucket == "" {
			fatals = append(fatals, fmt.Errorf("archive.bucket is required for %s", provider))
		}
	}

	if a.Workers < 1 {
		r.Warnings = append(r.Warnings, fmt.Errorf("archive.workers %d is below minimum 1, clamping", a.Workers))
		a.Workers = 1
	} else if a.Workers > 8 {
		r.Warnings = append(r.Warnings, fmt.Errorf("archive.workers %d exceeds maximum 8, clamping", a.Workers))
		a.Workers = 8
	}

	if a.Retries < 1 {
		a.Retries = 1
	}

	return fatals
}

func isSupportedFPS(fps int) bool {
	for _, f := range SupportedFPS {
		if f == fps {
			return true
		}
	}
	return false
}

func nearestFPS(fps int) int {
	best := SupportedFPS[0]
	for _, f := range SupportedFPS {
		if abs(f-fps) < abs(best-fps) {
			best = f
		}
	}
	return best
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
