package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment overrides, e.g.
// CACHEABLE_IMAGE_CACHE_ROOT_DIR=/srv/images
const EnvPrefix = "CACHEABLE_IMAGE"

// Config represents the entire application configuration
type Config struct {
	Cache       CacheConfig       `mapstructure:"cache"`
	Download    DownloadConfig    `mapstructure:"download"`
	HTTP        HTTPConfig        `mapstructure:"http"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Database    DatabaseConfig    `mapstructure:"database"`
}

// CacheConfig contains cache settings
type CacheConfig struct {
	RootDir             string `mapstructure:"root_dir" validate:"required"`
	MinValidSize        int64  `mapstructure:"min_valid_size" validate:"gte=1"`
	MaxSizeMB           int64  `mapstructure:"max_size_mb" validate:"gte=0"`                    // 0 = unlimited
	MaxDiskUsagePercent int    `mapstructure:"max_disk_usage_percent" validate:"gte=0,lte=100"` // 0 = unchecked
	BufferSizeKB        int    `mapstructure:"buffer_size_kb" validate:"gte=0"`
}

// DownloadConfig contains downloader settings
type DownloadConfig struct {
	ProgressInterval      string `mapstructure:"progress_interval"`
	MaxSizeMB             int64  `mapstructure:"max_size_mb" validate:"gte=0"` // 0 = unlimited
	RequireImage          bool   `mapstructure:"require_image"`
	Dedupe                bool   `mapstructure:"dedupe"`
	UserAgent             string `mapstructure:"user_agent"`
	ResponseHeaderTimeout string `mapstructure:"response_header_timeout"`
	SkipTLSVerify         bool   `mapstructure:"skip_tls_verify"`
}

// HTTPConfig contains HTTP server configuration
type HTTPConfig struct {
	BindAddr       string `mapstructure:"bind_addr" validate:"required,hostname_port"`
	ReadTimeout    string `mapstructure:"read_timeout"`
	WriteTimeout   string `mapstructure:"write_timeout"`
	IdleTimeout    string `mapstructure:"idle_timeout"`
	MaxResolveWait string `mapstructure:"max_resolve_wait"`

	// Debug endpoints require basic auth when DebugPassword is set
	DebugUsername string `mapstructure:"debug_username"`
	DebugPassword string `mapstructure:"debug_password"`
}

// MaintenanceConfig contains background cleanup settings
type MaintenanceConfig struct {
	CleanupInterval   string `mapstructure:"cleanup_interval"`
	ReconcileInterval string `mapstructure:"reconcile_interval"`
	TempFileMaxAge    string `mapstructure:"temp_file_max_age"`
	JobHistoryMaxAge  string `mapstructure:"job_history_max_age"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format     string `mapstructure:"format" validate:"oneof=json text"`
	File       string `mapstructure:"file"` // empty = stderr
	MaxSizeMB  int    `mapstructure:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `mapstructure:"max_backups" validate:"gte=0"`
	MaxAgeDays int    `mapstructure:"max_age_days" validate:"gte=0"`
	Compress   bool   `mapstructure:"compress"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `mapstructure:"path"` // empty = <cache.root_dir>/cache.db
}

// setDefaults registers a default for every key so that env overrides work
// without a config file
func setDefaults(v *viper.Viper) {
	v.SetDefault("cache.root_dir", "/var/cache/cacheable-image")
	v.SetDefault("cache.min_valid_size", 100)
	v.SetDefault("cache.max_size_mb", 0)
	v.SetDefault("cache.max_disk_usage_percent", 90)
	v.SetDefault("cache.buffer_size_kb", 256)
	v.SetDefault("download.progress_interval", "100ms")
	v.SetDefault("download.max_size_mb", 50)
	v.SetDefault("download.require_image", false)
	v.SetDefault("download.dedupe", true)
	v.SetDefault("download.user_agent", "cacheable-image/1.0")
	v.SetDefault("download.response_header_timeout", "30s")
	v.SetDefault("download.skip_tls_verify", false)
	v.SetDefault("http.bind_addr", "0.0.0.0:8080")
	v.SetDefault("http.read_timeout", "30s")
	v.SetDefault("http.write_timeout", "60s")
	v.SetDefault("http.idle_timeout", "60s")
	v.SetDefault("http.max_resolve_wait", "30s")
	v.SetDefault("http.debug_username", "admin")
	v.SetDefault("http.debug_password", "")
	v.SetDefault("maintenance.cleanup_interval", "1h")
	v.SetDefault("maintenance.reconcile_interval", "6h")
	v.SetDefault("maintenance.temp_file_max_age", "24h")
	v.SetDefault("maintenance.job_history_max_age", "168h")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 28)
	v.SetDefault("logging.compress", true)
	v.SetDefault("database.path", "")
}

// Load loads configuration from the specified file path.
// An empty path, or a path that does not exist, yields the defaults with
// environment overrides applied.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, os.ErrNotExist) {
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

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	durations := []struct {
		key   string
		value string
	}{
		{"download.progress_interval", c.Download.ProgressInterval},
		{"download.response_header_timeout", c.Download.ResponseHeaderTimeout},
		{"http.read_timeout", c.HTTP.ReadTimeout},
		{"http.write_timeout", c.HTTP.WriteTimeout},
		{"http.idle_timeout", c.HTTP.IdleTimeout},
		{"http.max_resolve_wait", c.HTTP.MaxResolveWait},
		{"maintenance.cleanup_interval", c.Maintenance.CleanupInterval},
		{"maintenance.reconcile_interval", c.Maintenance.ReconcileInterval},
		{"maintenance.temp_file_max_age", c.Maintenance.TempFileMaxAge},
		{"maintenance.job_history_max_age", c.Maintenance.JobHistoryMaxAge},
	}
	for _, d := range durations {
		if d.value == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", d.key, err)
		}
		if parsed < 0 {
			return fmt.Errorf("%s must not be negative", d.key)
		}
	}

	return nil
}

// GetDatabasePath returns the database path, defaulting to a file in the
// cache root
func (c *Config) GetDatabasePath() string {
	if c.Database.Path != "" {
		return c.Database.Path
	}
	return filepath.Join(c.Cache.RootDir, "cache.db")
}

// GetMaxSizeBytes returns the cache size limit in bytes, 0 when unlimited
func (c *CacheConfig) GetMaxSizeBytes() int64 {
	return c.MaxSizeMB * 1024 * 1024
}

// GetBufferSize returns the copy buffer size in bytes
func (c *CacheConfig) GetBufferSize() int {
	if c.BufferSizeKB <= 0 {
		return 256 * 1024
	}
	return c.BufferSizeKB * 1024
}

// GetMaxSizeBytes returns the per-download size limit in bytes, 0 when unlimited
func (c *DownloadConfig) GetMaxSizeBytes() int64 {
	return c.MaxSizeMB * 1024 * 1024
}

// GetProgressInterval returns the progress throttle interval as time.Duration
func (c *DownloadConfig) GetProgressInterval() time.Duration {
	d, _ := time.ParseDuration(c.ProgressInterval)
	return d
}

// GetResponseHeaderTimeout returns the response header timeout as time.Duration
func (c *DownloadConfig) GetResponseHeaderTimeout() time.Duration {
	d, _ := time.ParseDuration(c.ResponseHeaderTimeout)
	if d == 0 {
		return 30 * time.Second
	}
	return d
}

// GetReadTimeout returns the read timeout as time.Duration
func (c *HTTPConfig) GetReadTimeout() time.Duration {
	d, _ := time.ParseDuration(c.ReadTimeout)
	if d == 0 {
		return 30 * time.Second
	}
	return d
}

// GetWriteTimeout returns the write timeout as time.Duration
func (c *HTTPConfig) GetWriteTimeout() time.Duration {
	d, _ := time.ParseDuration(c.WriteTimeout)
	if d == 0 {
		return 60 * time.Second
	}
	return d
}

// GetIdleTimeout returns the idle timeout as time.Duration
func (c *HTTPConfig) GetIdleTimeout() time.Duration {
	d, _ := time.ParseDuration(c.IdleTimeout)
	if d == 0 {
		return 60 * time.Second
	}
	return d
}

// GetMaxResolveWait returns the longest wait a /resolve request may ask for
func (c *HTTPConfig) GetMaxResolveWait() time.Duration {
	d, _ := time.ParseDuration(c.MaxResolveWait)
	if d == 0 {
		return 30 * time.Second
	}
	return d
}

// GetCleanupInterval returns the temp file cleanup interval as time.Duration
func (c *MaintenanceConfig) GetCleanupInterval() time.Duration {
	d, _ := time.ParseDuration(c.CleanupInterval)
	if d == 0 {
		return time.Hour
	}
	return d
}

// GetReconcileInterval returns the index reconcile interval as time.Duration
func (c *MaintenanceConfig) GetReconcileInterval() time.Duration {
	d, _ := time.ParseDuration(c.ReconcileInterval)
	if d == 0 {
		return 6 * time.Hour
	}
	return d
}

// GetTempFileMaxAge returns the age after which temp files are removed
func (c *MaintenanceConfig) GetTempFileMaxAge() time.Duration {
	d, _ := time.ParseDuration(c.TempFileMaxAge)
	if d == 0 {
		return 24 * time.Hour
	}
	return d
}

// GetJobHistoryMaxAge returns the age after which finished jobs are pruned
func (c *MaintenanceConfig) GetJobHistoryMaxAge() time.Duration {
	d, _ := time.ParseDuration(c.JobHistoryMaxAge)
	if d == 0 {
		return 7 * 24 * time.Hour
	}
	return d
}
