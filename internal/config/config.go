// Package config provides configuration management for proofreel using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultMaxOpenConns        = 25
	defaultMaxIdleConns        = 10
	defaultConnMaxIdleTime     = 30 * time.Minute
	defaultPollInterval        = time.Second
	defaultVisibilityTimeout   = 5 * time.Minute
	defaultHeartbeatInterval   = 30 * time.Second
	defaultRetentionSweep      = 5 * time.Minute
	defaultOrphanMaxAge        = 3 * time.Hour
	defaultUploadSessionMaxAge = 24 * time.Hour
	defaultAssetConcurrency    = 3
	defaultNotifyConcurrency   = 2
	defaultHTTPTimeout         = 60 * time.Second
	defaultHTTPRetryMax        = 3
	defaultProbeTimeout        = 30 * time.Second
	defaultSettingsCacheTTL    = time.Minute
	defaultOpsPort             = 9090
	defaultShutdownTimeout     = 10 * time.Second
)

// Config holds all configuration for the application.
type Config struct {
	// BuildPhase is set while the host application is being built. The
	// queue refuses to connect while it is true.
	BuildPhase bool `mapstructure:"build_phase"`

	Database  DatabaseConfig  `mapstructure:"database"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Temp      TempConfig      `mapstructure:"temp"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Allocator AllocatorConfig `mapstructure:"allocator"`
	Workers   WorkersConfig   `mapstructure:"workers"`
	Transcode TranscodeConfig `mapstructure:"transcode"`
	FFmpeg    FFmpegConfig    `mapstructure:"ffmpeg"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Settings  SettingsConfig  `mapstructure:"settings"`
	Ops       OpsConfig       `mapstructure:"ops"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite, postgres, mysql
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	LogLevel        string        `mapstructure:"log_level"` // silent, error, warn, info
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// StorageConfig selects and configures the object storage client.
type StorageConfig struct {
	Backend string            `mapstructure:"backend"` // filesystem, http
	BaseDir string            `mapstructure:"base_dir"`
	HTTP    HTTPStorageConfig `mapstructure:"http"`
}

// HTTPStorageConfig configures the HTTP object store backend.
type HTTPStorageConfig struct {
	BaseURL  string        `mapstructure:"base_url"`
	Token    string        `mapstructure:"token"`
	Timeout  time.Duration `mapstructure:"timeout"`
	RetryMax int           `mapstructure:"retry_max"`
}

// TempConfig controls job scratch space and the periodic sweeps over it.
type TempConfig struct {
	Root                string        `mapstructure:"root"`
	OrphanMaxAge        time.Duration `mapstructure:"orphan_max_age"`
	OrphanSweep         string        `mapstructure:"orphan_sweep"` // cron expression
	UploadRoot          string        `mapstructure:"upload_root"`
	UploadSessionMaxAge time.Duration `mapstructure:"upload_session_max_age"`
	UploadSweep         string        `mapstructure:"upload_sweep"` // cron expression
}

// QueueConfig tunes job claiming and lock management.
type QueueConfig struct {
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	VisibilityTimeout time.Duration `mapstructure:"visibility_timeout"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	RetentionSweep    time.Duration `mapstructure:"retention_sweep"`
	// DrainTimeout bounds how long shutdown waits for running attempts
	// before interrupting them. Zero waits until they finish.
	DrainTimeout      time.Duration `mapstructure:"drain_timeout"`
}

// AllocatorConfig holds the optional hardware thread override.
type AllocatorConfig struct {
	// Threads overrides detected hardware threads when it parses as a
	// positive integer. Anything else is ignored.
	Threads string `mapstructure:"threads"`
}

// WorkersConfig holds concurrency for pools not sized by the allocator.
type WorkersConfig struct {
	AssetConcurrency        int `mapstructure:"asset_concurrency"`
	NotificationConcurrency int `mapstructure:"notification_concurrency"`
}

// TranscodeConfig holds encoder settings for preview renditions.
type TranscodeConfig struct {
	PreviewResolution string `mapstructure:"preview_resolution"`
	VideoCodec        string `mapstructure:"video_codec"`
	Preset            string `mapstructure:"preset"`
	CRF               int    `mapstructure:"crf"`
	AudioBitrate      string `mapstructure:"audio_bitrate"`
}

// FFmpegConfig holds FFmpeg binary configuration.
type FFmpegConfig struct {
	BinaryPath   string        `mapstructure:"binary_path"` // empty = search PATH
	ProbePath    string        `mapstructure:"probe_path"`  // empty = search PATH
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"`
}

// NotifyConfig configures outbound notification delivery.
type NotifyConfig struct {
	AppriseURL string        `mapstructure:"apprise_url"` // Apprise API endpoint, e.g. http://apprise:8000/notify
	Timeout    time.Duration `mapstructure:"timeout"`
	RetryMax   int           `mapstructure:"retry_max"`
}

// SettingsConfig configures the settings cache.
type SettingsConfig struct {
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// OpsConfig holds the operations HTTP server configuration.
type OpsConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with PROOFREEL_ and use underscores for nesting.
// Example: PROOFREEL_ALLOCATOR_THREADS=8.
func Load(configPath string) (*Config, error) {
	return LoadFrom(viper.New(), configPath)
}

// LoadFrom is Load over a caller supplied viper instance, so command line
// flags bound to v take precedence over the environment and the file.
func LoadFrom(v *viper.Viper, configPath string) (*Config, error) {
	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/proofreel")
		v.AddConfigPath("$HOME/.proofreel")
	}

	v.SetEnvPrefix("PROOFREEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
// Every key that should be overridable from the environment needs a default
// so AutomaticEnv can see it.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("build_phase", false)

	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "proofreel.db")
	v.SetDefault("database.max_open_conns", defaultMaxOpenConns)
	v.SetDefault("database.max_idle_conns", defaultMaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", defaultConnMaxIdleTime)
	v.SetDefault("database.log_level", "warn")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Storage defaults
	v.SetDefault("storage.backend", "filesystem")
	v.SetDefault("storage.base_dir", "./data/objects")
	v.SetDefault("storage.http.base_url", "")
	v.SetDefault("storage.http.token", "")
	v.SetDefault("storage.http.timeout", defaultHTTPTimeout)
	v.SetDefault("storage.http.retry_max", defaultHTTPRetryMax)

	// Temp defaults
	v.SetDefault("temp.root", "./data/tmp")
	v.SetDefault("temp.orphan_max_age", defaultOrphanMaxAge)
	v.SetDefault("temp.orphan_sweep", "@every 1h")
	v.SetDefault("temp.upload_root", "./data/uploads")
	v.SetDefault("temp.upload_session_max_age", defaultUploadSessionMaxAge)
	v.SetDefault("temp.upload_sweep", "@every 6h")

	// Queue defaults
	v.SetDefault("queue.poll_interval", defaultPollInterval)
	v.SetDefault("queue.visibility_timeout", defaultVisibilityTimeout)
	v.SetDefault("queue.heartbeat_interval", defaultHeartbeatInterval)
	v.SetDefault("queue.retention_sweep", defaultRetentionSweep)
	v.SetDefault("queue.drain_timeout", 0)

	v.SetDefault("allocator.threads", "")

	v.SetDefault("workers.asset_concurrency", defaultAssetConcurrency)
	v.SetDefault("workers.notification_concurrency", defaultNotifyConcurrency)

	// Transcode defaults
	v.SetDefault("transcode.preview_resolution", "720p")
	v.SetDefault("transcode.video_codec", "libx264")
	v.SetDefault("transcode.preset", "veryfast")
	v.SetDefault("transcode.crf", 23)
	v.SetDefault("transcode.audio_bitrate", "128k")

	// FFmpeg defaults
	v.SetDefault("ffmpeg.binary_path", "")
	v.SetDefault("ffmpeg.probe_path", "")
	v.SetDefault("ffmpeg.probe_timeout", defaultProbeTimeout)

	// Notify defaults
	v.SetDefault("notify.apprise_url", "")
	v.SetDefault("notify.timeout", 30*time.Second)
	v.SetDefault("notify.retry_max", 1)

	v.SetDefault("settings.cache_ttl", defaultSettingsCacheTTL)

	// Ops server defaults
	v.SetDefault("ops.enabled", false)
	v.SetDefault("ops.host", "127.0.0.1")
	v.SetDefault("ops.port", defaultOpsPort)
	v.SetDefault("ops.shutdown_timeout", defaultShutdownTimeout)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	// Database validation
	validDrivers := map[string]bool{"sqlite": true, "postgres": true, "mysql": true}
	if !validDrivers[c.Database.Driver] {
		return fmt.Errorf("database.driver must be one of: sqlite, postgres, mysql")
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	// Storage validation
	switch c.Storage.Backend {
	case "filesystem":
		if c.Storage.BaseDir == "" {
			return fmt.Errorf("storage.base_dir is required for the filesystem backend")
		}
	case "http":
		if c.Storage.HTTP.BaseURL == "" {
			return fmt.Errorf("storage.http.base_url is required for the http backend")
		}
	default:
		return fmt.Errorf("storage.backend must be one of: filesystem, http")
	}

	// Temp validation
	if c.Temp.Root == "" {
		return fmt.Errorf("temp.root is required")
	}
	if c.Temp.OrphanMaxAge <= 0 {
		return fmt.Errorf("temp.orphan_max_age must be positive")
	}
	if c.Temp.UploadSessionMaxAge <= 0 {
		return fmt.Errorf("temp.upload_session_max_age must be positive")
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(c.Temp.OrphanSweep); err != nil {
		return fmt.Errorf("temp.orphan_sweep must be a valid cron expression: %w", err)
	}
	if _, err := parser.Parse(c.Temp.UploadSweep); err != nil {
		return fmt.Errorf("temp.upload_sweep must be a valid cron expression: %w", err)
	}

	// Queue validation
	if c.Queue.PollInterval <= 0 {
		return fmt.Errorf("queue.poll_interval must be positive")
	}
	if c.Queue.HeartbeatInterval <= 0 || c.Queue.HeartbeatInterval >= c.Queue.VisibilityTimeout {
		return fmt.Errorf("queue.heartbeat_interval must be positive and shorter than queue.visibility_timeout")
	}
	if c.Queue.DrainTimeout < 0 {
		return fmt.Errorf("queue.drain_timeout must not be negative")
	}

	// Worker validation
	if c.Workers.AssetConcurrency < 1 {
		return fmt.Errorf("workers.asset_concurrency must be at least 1")
	}
	if c.Workers.NotificationConcurrency < 1 {
		return fmt.Errorf("workers.notification_concurrency must be at least 1")
	}

	// Transcode validation
	validResolutions := map[string]bool{"720p": true, "1080p": true}
	if !validResolutions[c.Transcode.PreviewResolution] {
		return fmt.Errorf("transcode.preview_resolution must be one of: 720p, 1080p")
	}
	if c.Transcode.CRF < 0 || c.Transcode.CRF > 51 {
		return fmt.Errorf("transcode.crf must be between 0 and 51")
	}

	// Ops validation
	const maxPort = 65535
	if c.Ops.Enabled && (c.Ops.Port < 1 || c.Ops.Port > maxPort) {
		return fmt.Errorf("ops.port must be between 1 and %d", maxPort)
	}

	return nil
}

// Address returns the ops server address in host:port format.
func (c *OpsConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
