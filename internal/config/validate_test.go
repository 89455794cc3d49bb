package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"
)

func TestValidateTieredSnapsUnsupportedFPS(t *testing.T) {
	cases := []struct {
		in, want int
	}{
		{0, 10},
		{12, 10},
		{13, 15},
		{25, 24},
		{29, 30},
		{144, 60},
	}
	for _, tc := range cases {
		cfg := Default()
		cfg.FPS = tc.in
		result := cfg.ValidateTiered()
		if result.HasFatals() {
			t.Fatalf("fps %d: unexpected fatals %v", tc.in, result.Fatals)
		}
		if cfg.FPS != tc.want {
			t.Fatalf("fps %d snapped to %d, want %d", tc.in, cfg.FPS, tc.want)
		}
		if len(result.Warnings) == 0 {
			t.Fatalf("fps %d: expected a warning", tc.in)
		}
	}
}

func TestValidateTieredSupportedFPSHasNoWarning(t *testing.T) {
	for _, fps := range SupportedFPS {
		cfg := Default()
		cfg.FPS = fps
		if result := cfg.ValidateTiered(); len(result.Warnings) > 0 {
			t.Fatalf("fps %d produced warnings: %v", fps, result.Warnings)
		}
	}
}

func TestValidateTieredInvalidOutputFormatIsFatal(t *testing.T) {
	cfg := Default()
	cfg.OutputFormat = "webm"
	if !cfg.ValidateTiered().HasFatals() {
		t.Fatal("unknown output format should be fatal")
	}
}

func TestValidateTieredNormalizesOutputFormat(t *testing.T) {
	cfg := Default()
	cfg.OutputFormat = "GIF"
	if result := cfg.ValidateTiered(); result.HasFatals() {
		t.Fatalf("unexpected fatals: %v", result.Fatals)
	}
	if cfg.OutputFormat != "gif" {
		t.Fatalf("OutputFormat = %q, want gif", cfg.OutputFormat)
	}
}

func TestValidateTieredEmptyOutputDirIsFatal(t *testing.T) {
	cfg := Default()
	cfg.OutputDir = "  "
	if !cfg.ValidateTiered().HasFatals() {
		t.Fatal("empty output_dir should be fatal")
	}
}

func TestValidateTieredAudioQueueClamping(t *testing.T) {
	cfg := Default()
	cfg.AudioQueueBlocks = 4
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatalf("clamped queue should be warning: %v", result.Fatals)
	}
	if cfg.AudioQueueBlocks != 16 {
		t.Fatalf("AudioQueueBlocks = %d, want 16", cfg.AudioQueueBlocks)
	}

	cfg = Default()
	cfg.AudioQueueBlocks = 0
	if result := cfg.ValidateTiered(); len(result.Warnings) > 0 {
		t.Fatalf("unbounded queue should not warn: %v", result.Warnings)
	}
}

func TestValidateTieredArchiveProviders(t *testing.T) {
	cfg := Default()
	cfg.Archive.Provider = "ftp"
	if !cfg.ValidateTiered().HasFatals() {
		t.Fatal("unknown archive provider should be fatal")
	}

	cfg = Default()
	cfg.Archive.Provider = "S3"
	result := cfg.ValidateTiered()
	found := false
	for _, err := range result.Fatals {
		if strings.Contains(err.Error(), "archive.bucket") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected missing bucket fatal, got %v", result.Fatals)
	}
	if cfg.Archive.Provider != "s3" {
		t.Fatalf("provider not normalized: %q", cfg.Archive.Provider)
	}

	cfg = Default()
	cfg.Archive.Provider = "local"
	cfg.Archive.LocalPath = t.TempDir()
	cfg.Archive.Workers = 50
	result = cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatalf("local archive config should be valid: %v", result.Fatals)
	}
	if cfg.Archive.Workers != 8 {
		t.Fatalf("Workers = %d, want 8", cfg.Archive.Workers)
	}
}

func TestHasFatals(t *testing.T) {
	r := ValidationResult{}
	if r.HasFatals() {
		t.Fatal("HasFatals() on empty result should be false")
	}
	r.Fatals = append(r.Fatals, fmt.Errorf("test error"))
	if !r.HasFatals() {
		t.Fatal("HasFatals() should be true with a fatal error")
	}
}

func TestAllErrorsReturnsBoth(t *testing.T) {
	cfg := Default()
	cfg.OutputFormat = "avi" // fatal
	cfg.LogFormat = "xml"    // warning
	all := cfg.ValidateTiered().AllErrors()
	if len(all) < 2 {
		t.Fatalf("AllErrors() returned %d errors, expected at least 2", len(all))
	}
}

func TestValidConfigHasNoErrors(t *testing.T) {
	cfg := Default()
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatalf("default config has fatals: %v", result.Fatals)
	}
	if len(result.Warnings) > 0 {
		t.Fatalf("default config has warnings: %v", result.Warnings)
	}
}

func TestLoadAndSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "omnicapture.yaml")

	cfg := Default()
	cfg.FPS = 60
	cfg.OutputFormat = "gif"
	cfg.UseMicAudio = true
	cfg.MicDeviceID = "alsa_input.usb-mic"
	if err := SaveTo(cfg, path); err != nil {
		t.Fatalf("SaveTo: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.FPS != 60 || loaded.OutputFormat != "gif" || !loaded.UseMicAudio || loaded.MicDeviceID != "alsa_input.usb-mic" {
		t.Fatalf("loaded config mismatch: %+v", loaded)
	}
	// Fields not persisted keep their defaults.
	if loaded.FFmpegPath != "ffmpeg" {
		t.Fatalf("FFmpegPath = %q, want default", loaded.FFmpegPath)
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for explicit missing config file")
	}
}

func TestYAMLOmitsSecrets(t *testing.T) {
	cfg := Default()
	cfg.Archive.SecretAccessKey = "super-secret"
	cfg.Archive.ConnectionString = "AccountKey=abc"
	out, err := cfg.YAML()
	if err != nil {
		t.Fatalf("YAML: %v", err)
	}
	if strings.Contains(string(out), "super-secret") || strings.Contains(string(out), "AccountKey") {
		t.Fatalf("secrets leaked into yaml: %s", out)
	}
	if !strings.Contains(string(out), "fps: 30") {
		t.Fatalf("expected fps in yaml: %s", out)
	}
}
