package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"squeeze-worker/pkg/models"
)

// Config holds all the settings for the worker and the CLI.
type Config struct {
	WorkerID        string `mapstructure:"worker_id"`
	OrchestratorURL string `mapstructure:"orchestrator_url"` // empty disables remote reporting
	HeartbeatSec    int    `mapstructure:"heartbeat_seconds"`
	ListenAddr      string `mapstructure:"listen_addr"`
	LogLevel        string `mapstructure:"log_level"`
	LogFormat       string `mapstructure:"log_format"`
	EnableHWAccel   bool   `mapstructure:"enable_hw_accel"`
	FFmpegPath      string `mapstructure:"ffmpeg_path"`
	FFprobePath     string `mapstructure:"ffprobe_path"`
	TempDir         string `mapstructure:"temp_dir"`

	DefaultPreset      string `mapstructure:"default_preset"`
	DefaultQuality     string `mapstructure:"default_quality"`
	CompatibilityMode  bool   `mapstructure:"compatibility_mode"`
	MemoryOptimization bool   `mapstructure:"memory_optimization"`
	MaxAttempts        int    `mapstructure:"max_attempts"`
	ProbeTimeoutSec    int    `mapstructure:"probe_timeout_seconds"`
	JobQueueSize       int    `mapstructure:"job_queue_size"`
}

// LoadConfig merges defaults, the YAML file at path and SQUEEZE_* env vars.
// A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	// 1. Set Defaults
	v.SetDefault("worker_id", defaultWorkerID())
	v.SetDefault("orchestrator_url", "")
	v.SetDefault("heartbeat_seconds", 15)
	v.SetDefault("listen_addr", ":8089")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("enable_hw_accel", true)
	v.SetDefault("ffmpeg_path", "ffmpeg")
	v.SetDefault("ffprobe_path", "ffprobe")
	v.SetDefault("temp_dir", os.TempDir())
	v.SetDefault("default_preset", "medium")
	v.SetDefault("default_quality", "auto")
	v.SetDefault("compatibility_mode", true)
	v.SetDefault("memory_optimization", false)
	v.SetDefault("max_attempts", 3)
	v.SetDefault("probe_timeout_seconds", 10)
	v.SetDefault("job_queue_size", 16)

	// 2. Read from File
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil && !isMissing(err) {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	// 3. Environment
	v.SetEnvPrefix("SQUEEZE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 3
	}
	if c.MaxAttempts > 3 {
		c.MaxAttempts = 3
	}
	if c.HeartbeatSec <= 0 {
		c.HeartbeatSec = 15
	}
	if c.ProbeTimeoutSec <= 0 {
		c.ProbeTimeoutSec = 10
	}
	if c.JobQueueSize <= 0 {
		c.JobQueueSize = 16
	}
	c.OrchestratorURL = strings.TrimRight(c.OrchestratorURL, "/")
}

// Validate checks the values that are parsed again later on.
func (c *Config) Validate() error {
	if _, err := models.ParsePreset(c.DefaultPreset); err != nil {
		return fmt.Errorf("default_preset: %w", err)
	}
	if _, err := models.ParseQualityMode(c.DefaultQuality); err != nil {
		return fmt.Errorf("default_quality: %w", err)
	}
	return nil
}

// DefaultSettings builds compression settings from the configured defaults.
func (c *Config) DefaultSettings() models.CompressionSettings {
	s := models.DefaultCompressionSettings()
	if p, err := models.ParsePreset(c.DefaultPreset); err == nil {
		s.Preset = p
	}
	if q, err := models.ParseQualityMode(c.DefaultQuality); err == nil {
		s.Quality = q
	}
	s.CompatibilityMode = c.CompatibilityMode
	s.MemoryOptimization = c.MemoryOptimization
	return s
}

func isMissing(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	return errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist)
}

func defaultWorkerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "squeeze-worker"
	}
	return host
}
