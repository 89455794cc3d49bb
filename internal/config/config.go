package config

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

type Config struct {
	FPS              int    `mapstructure:"fps" yaml:"fps"`
	CountdownEnabled bool   `mapstructure:"countdown_enabled" yaml:"countdown_enabled"`
	ShowCursor       bool   `mapstructure:"show_cursor" yaml:"show_cursor"`
	OutputDir        string `mapstructure:"output_dir" yaml:"output_dir"`
	OutputFormat     string `mapstructure:"output_format" yaml:"output_format"`
	MonitorIndex     int    `mapstructure:"monitor_index" yaml:"monitor_index"`

	UseSystemAudio bool   `mapstructure:"use_system_audio" yaml:"use_system_audio"`
	UseMicAudio    bool   `mapstructure:"use_mic_audio" yaml:"use_mic_audio"`
	MicDeviceID    string `mapstructure:"mic_device_id" yaml:"mic_device_id"`

	FFmpegPath       string `mapstructure:"ffmpeg_path" yaml:"ffmpeg_path"`
	AudioQueueBlocks int    `mapstructure:"audio_queue_blocks" yaml:"audio_queue_blocks"`
	MinFreeSpaceMB   int    `mapstructure:"min_free_space_mb" yaml:"min_free_space_mb"`

	LogLevel      string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat     string `mapstructure:"log_format" yaml:"log_format"`
	LogFile       string `mapstructure:"log_file" yaml:"log_file"`
	LogMaxSizeMB  int    `mapstructure:"log_max_size_mb" yaml:"log_max_size_mb"`
	LogMaxBackups int    `mapstructure:"log_max_backups" yaml:"log_max_backups"`

	MetricsListen string `mapstructure:"metrics_listen" yaml:"metrics_listen"`
	ControlListen string `mapstructure:"control_listen" yaml:"control_listen"`

	Archive ArchiveConfig `mapstructure:"archive" yaml:"archive"`
}

// ArchiveConfig selects where finished recordings are copied. An empty
// Provider disables archiving.
type ArchiveConfig struct {
	Provider string `mapstructure:"provider" yaml:"provider"`
	Bucket   string `mapstructure:"bucket" yaml:"bucket"`
	Prefix   string `mapstructure:"prefix" yaml:"prefix"`
	Region   string `mapstructure:"region" yaml:"region"`
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
	// LocalPath is the destination root for the local provider.
	LocalPath string `mapstructure:"local_path" yaml:"local_path"`

	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id,omitempty"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"-"`
	CredentialsFile string `mapstructure:"credentials_file" yaml:"credentials_file,omitempty"`
	// ConnectionString is used by the azure provider.
	ConnectionString string `mapstructure:"connection_string" yaml:"-"`

	Workers int `mapstructure:"workers" yaml:"workers"`
	Retries int `mapstructure:"retries" yaml:"retries"`
}

func Default() *Config {
	return &Config{
		FPS:              30,
		CountdownEnabled: true,
		ShowCursor:       true,
		OutputDir:        defaultOutputDir(),
		OutputFormat:     "mp4",
		UseSystemAudio:   true,
		FFmpegPath:       "ffmpeg",
		AudioQueueBlocks: 4096,
		MinFreeSpaceMB:   500,
		LogLevel:         "info",
		LogFormat:        "text",
		LogMaxSizeMB:     20,
		LogMaxBackups:    3,
		ControlListen:    "127.0.0.1:7878",
		Archive: ArchiveConfig{
			Workers: 1,
			Retries: 3,
		},
	}
}

func Load(cfgFile string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("omnicapture")
		v.SetConfigType("yaml")
		v.AddConfigPath(configDir())
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("OMNICAPTURE")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// SaveTo writes the user-facing settings to cfgFile (or the default location
// when empty). Credentials are never persisted.
func SaveTo(cfg *Config, cfgFile string) error {
	v := viper.New()
	v.Set("fps", cfg.FPS)
	v.Set("countdown_enabled", cfg.CountdownEnabled)
	v.Set("show_cursor", cfg.ShowCursor)
	v.Set("output_dir", cfg.OutputDir)
	v.Set("output_format", cfg.OutputFormat)
	v.Set("monitor_index", cfg.MonitorIndex)
	v.Set("use_system_audio", cfg.UseSystemAudio)
	v.Set("use_mic_audio", cfg.UseMicAudio)
	v.Set("mic_device_id", cfg.MicDeviceID)

	cfgPath := cfgFile
	if cfgPath == "" {
		cfgPath = filepath.Join(configDir(), "omnicapture.yaml")
	}
	if dir := filepath.Dir(cfgPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	return v.WriteConfigAs(cfgPath)
}

// YAML renders the effective configuration. Secret fields are omitted.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

func configDir() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "OmniCapture")
	case "darwin":
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "Library", "Application Support", "OmniCapture")
	default:
		if dir, err := os.UserConfigDir(); err == nil {
			return filepath.Join(dir, "omnicapture")
		}
		return "."
	}
}

func defaultOutputDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, "Videos", "OmniCapture")
}
