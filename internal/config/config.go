package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment overrides, e.g. BATCHFETCH_DOWNLOAD_CONCURRENCY
const EnvPrefix = "BATCHFETCH"

// Config represents the entire application configuration
type Config struct {
	Hub         HubConfig         `mapstructure:"hub" yaml:"hub" json:"hub"`
	Download    DownloadConfig    `mapstructure:"download" yaml:"download" json:"download"`
	Database    DatabaseConfig    `mapstructure:"database" yaml:"database" json:"database"`
	Logging     LoggingConfig     `mapstructure:"logging" yaml:"logging" json:"logging"`
	HTTP        HTTPConfig        `mapstructure:"http" yaml:"http" json:"http"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance" yaml:"maintenance" json:"maintenance"`
}

// HubConfig contains Hugging Face Hub settings
type HubConfig struct {
	Endpoint       string `mapstructure:"endpoint" yaml:"endpoint" json:"endpoint"`
	Token          string `mapstructure:"token" yaml:"token" json:"token"`
	RequestTimeout string `mapstructure:"request_timeout" yaml:"request_timeout" json:"request_timeout"`
}

// DownloadConfig contains batch execution settings
type DownloadConfig struct {
	RootDir            string  `mapstructure:"root_dir" yaml:"root_dir" json:"root_dir"`
	Concurrency        int     `mapstructure:"concurrency" yaml:"concurrency" json:"concurrency"`
	MaxAttempts        int     `mapstructure:"max_attempts" yaml:"max_attempts" json:"max_attempts"`
	RetryDelay         string  `mapstructure:"retry_delay" yaml:"retry_delay" json:"retry_delay"`
	MaxRetryDelay      string  `mapstructure:"max_retry_delay" yaml:"max_retry_delay" json:"max_retry_delay"`
	MinFreeSpace       string  `mapstructure:"min_free_space" yaml:"min_free_space" json:"min_free_space"`
	SafetyMargin       float64 `mapstructure:"safety_margin" yaml:"safety_margin" json:"safety_margin"`
	FailureThreshold   float64 `mapstructure:"failure_threshold" yaml:"failure_threshold" json:"failure_threshold"`
	ProbeInterval      string  `mapstructure:"probe_interval" yaml:"probe_interval" json:"probe_interval"`
	CancelPollInterval string  `mapstructure:"cancel_poll_interval" yaml:"cancel_poll_interval" json:"cancel_poll_interval"`
	BufferSizeMB       int     `mapstructure:"buffer_size_mb" yaml:"buffer_size_mb" json:"buffer_size_mb"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `mapstructure:"path" yaml:"path" json:"path"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level" yaml:"level" json:"level"`
	Format     string `mapstructure:"format" yaml:"format" json:"format"`
	File       string `mapstructure:"file" yaml:"file" json:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb" json:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups" json:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days" json:"max_age_days"`
}

// HTTPConfig contains status server configuration
type HTTPConfig struct {
	BindAddr     string `mapstructure:"bind_addr" yaml:"bind_addr" json:"bind_addr"`
	Username     string `mapstructure:"username" yaml:"username" json:"username"` // basic auth for /api, disabled when empty
	Password     string `mapstructure:"password" yaml:"password" json:"password"`
	ReadTimeout  string `mapstructure:"read_timeout" yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout string `mapstructure:"write_timeout" yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout  string `mapstructure:"idle_timeout" yaml:"idle_timeout" json:"idle_timeout"`
}

// MaintenanceConfig contains settings of the serve-mode cleanup loops
type MaintenanceConfig struct {
	StaleRecordTimeout string `mapstructure:"stale_record_timeout" yaml:"stale_record_timeout" json:"stale_record_timeout"`
	StaleCheckInterval string `mapstructure:"stale_check_interval" yaml:"stale_check_interval" json:"stale_check_interval"`
	CleanupInterval    string `mapstructure:"cleanup_interval" yaml:"cleanup_interval" json:"cleanup_interval"`
	TempFileMaxAge     string `mapstructure:"temp_file_max_age" yaml:"temp_file_max_age" json:"temp_file_max_age"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("hub.endpoint", "https://huggingface.co")
	v.SetDefault("hub.token", "")
	v.SetDefault("hub.request_timeout", "30s")
	v.SetDefault("download.root_dir", "./downloads")
	v.SetDefault("download.concurrency", 4)
	v.SetDefault("download.max_attempts", 5)
	v.SetDefault("download.retry_delay", "2s")
	v.SetDefault("download.max_retry_delay", "1m")
	v.SetDefault("download.min_free_space", "1GiB")
	v.SetDefault("download.safety_margin", 0.9)
	v.SetDefault("download.failure_threshold", 0.5)
	v.SetDefault("download.probe_interval", "2s")
	v.SetDefault("download.cancel_poll_interval", "2s")
	v.SetDefault("download.buffer_size_mb", 8)
	v.SetDefault("database.path", "")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age_days", 30)
	v.SetDefault("http.bind_addr", "127.0.0.1:8090")
	v.SetDefault("http.username", "")
	v.SetDefault("http.password", "")
	v.SetDefault("http.read_timeout", "30s")
	v.SetDefault("http.write_timeout", "30s")
	v.SetDefault("http.idle_timeout", "60s")
	v.SetDefault("maintenance.stale_record_timeout", "30m")
	v.SetDefault("maintenance.stale_check_interval", "5m")
	v.SetDefault("maintenance.cleanup_interval", "1h")
	v.SetDefault("maintenance.temp_file_max_age", "72h")
}

// Load loads configuration from configPath. An empty path searches
// ./batchfetch.yaml and $HOME/.config/batchfetch/config.yaml and falls back
// to defaults when neither exists. Environment variables override both.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// The conventional Hugging Face variable is honoured as a fallback
	if err := v.BindEnv("hub.token", EnvPrefix+"_HUB_TOKEN", "HF_TOKEN"); err != nil {
		return nil, fmt.Errorf("failed to bind hub.token: %w", err)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName("batchfetch")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/batchfetch")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if config.Database.Path == "" {
		config.Database.Path = filepath.Join(config.Download.RootDir, ".batchfetch", "state.db")
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Hub.Endpoint == "" {
		return fmt.Errorf("hub.endpoint is required")
	}
	if c.Download.RootDir == "" {
		return fmt.Errorf("download.root_dir is required")
	}
	if c.Download.Concurrency < 1 || c.Download.Concurrency > 64 {
		return fmt.Errorf("download.concurrency must be between 1 and 64")
	}
	if c.Download.MaxAttempts < 1 {
		return fmt.Errorf("download.max_attempts must be positive")
	}
	if c.Download.SafetyMargin <= 0 || c.Download.SafetyMargin > 1 {
		return fmt.Errorf("download.safety_margin must be in (0, 1]")
	}
	if c.Download.FailureThreshold < 0 || c.Download.FailureThreshold > 1 {
		return fmt.Errorf("download.failure_threshold must be between 0 and 1")
	}
	if _, err := humanize.ParseBytes(c.Download.MinFreeSpace); err != nil {
		return fmt.Errorf("invalid download.min_free_space: %w", err)
	}

	durations := map[string]string{
		"hub.request_timeout":              c.Hub.RequestTimeout,
		"download.retry_delay":             c.Download.RetryDelay,
		"download.max_retry_delay":         c.Download.MaxRetryDelay,
		"download.probe_interval":          c.Download.ProbeInterval,
		"download.cancel_poll_interval":    c.Download.CancelPollInterval,
		"maintenance.stale_record_timeout": c.Maintenance.StaleRecordTimeout,
		"maintenance.stale_check_interval": c.Maintenance.StaleCheckInterval,
		"maintenance.cleanup_interval":     c.Maintenance.CleanupInterval,
		"maintenance.temp_file_max_age":    c.Maintenance.TempFileMaxAge,
	}
	for key, value := range durations {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
	}

	if c.HTTP.Username != "" && c.HTTP.Password == "" {
		return fmt.Errorf("http.password is required when http.username is set")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		// Valid levels
	default:
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "json", "text":
		// Valid formats
	default:
		return fmt.Errorf("invalid logging.format: %s", c.Logging.Format)
	}

	return nil
}

const redacted = "********"

// Redacted returns a copy with credentials masked, for printing
func (c *Config) Redacted() *Config {
	cp := *c
	if cp.Hub.Token != "" {
		cp.Hub.Token = redacted
	}
	if cp.HTTP.Password != "" {
		cp.HTTP.Password = redacted
	}
	return &cp
}

func durationOr(s string, def time.Duration) time.Duration {
	d, _ := time.ParseDuration(s)
	if d <= 0 {
		return def
	}
	return d
}

// GetRequestTimeout returns the hub API timeout as time.Duration
func (c *HubConfig) GetRequestTimeout() time.Duration {
	return durationOr(c.RequestTimeout, 30*time.Second)
}

// GetRetryDelay returns the linear backoff step
func (c *DownloadConfig) GetRetryDelay() time.Duration {
	return durationOr(c.RetryDelay, 2*time.Second)
}

// GetMaxRetryDelay returns the backoff ceiling
func (c *DownloadConfig) GetMaxRetryDelay() time.Duration {
	return durationOr(c.MaxRetryDelay, time.Minute)
}

// GetProbeInterval returns the minimum interval between live free-space reads
func (c *DownloadConfig) GetProbeInterval() time.Duration {
	return durationOr(c.ProbeInterval, 2*time.Second)
}

// GetCancelPollInterval returns how often a running task checks for cancellation
func (c *DownloadConfig) GetCancelPollInterval() time.Duration {
	return durationOr(c.CancelPollInterval, 2*time.Second)
}

// GetMinFreeBytes returns the free-space floor in bytes
func (c *DownloadConfig) GetMinFreeBytes() uint64 {
	n, err := humanize.ParseBytes(c.MinFreeSpace)
	if err != nil {
		return 1 << 30
	}
	return n
}

// GetBufferSize returns the copy buffer size in bytes
func (c *DownloadConfig) GetBufferSize() int {
	if c.BufferSizeMB <= 0 {
		return 8 * 1024 * 1024 // 8MB default
	}
	return c.BufferSizeMB * 1024 * 1024
}

// GetStaleRecordTimeout returns how long a record may stay downloading before it is reset
func (c *MaintenanceConfig) GetStaleRecordTimeout() time.Duration {
	return durationOr(c.StaleRecordTimeout, 30*time.Minute)
}

// GetStaleCheckInterval returns the stale record check interval
func (c *MaintenanceConfig) GetStaleCheckInterval() time.Duration {
	return durationOr(c.StaleCheckInterval, 5*time.Minute)
}

// GetCleanupInterval returns the temp file cleanup interval
func (c *MaintenanceConfig) GetCleanupInterval() time.Duration {
	return durationOr(c.CleanupInterval, time.Hour)
}

// GetTempFileMaxAge returns the age after which partial files are removed
func (c *MaintenanceConfig) GetTempFileMaxAge() time.Duration {
	return durationOr(c.TempFileMaxAge, 72*time.Hour)
}

// GetReadTimeout returns the read timeout as time.Duration
func (c *HTTPConfig) GetReadTimeout() time.Duration {
	return durationOr(c.ReadTimeout, 30*time.Second)
}

// GetWriteTimeout returns the write timeout as time.Duration
func (c *HTTPConfig) GetWriteTimeout() time.Duration {
	return durationOr(c.WriteTimeout, 30*time.Second)
}

// GetIdleTimeout returns the idle timeout as time.Duration
func (c *HTTPConfig) GetIdleTimeout() time.Duration {
	return durationOr(c.IdleTimeout, 60*time.Second)
}
