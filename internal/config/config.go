// Package config provides configuration management for aura using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultServerPort      = 8080
	defaultServerTimeout   = 30 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 10
	defaultConnMaxIdleTime = 30 * time.Minute

	defaultMaxConcurrentJobs  = 2
	defaultQueueCapacity      = 16
	defaultRetryAttempts      = 3
	defaultRetryBaseDelay     = 500 * time.Millisecond
	defaultBreakerThreshold   = 5
	defaultBreakerTimeout     = 60 * time.Second
	defaultHeartbeatInterval  = 10 * time.Second
	defaultEventBufferSize    = 1024
	defaultSubscriberBacklog  = 64
	defaultTempRetention      = 24 * time.Hour
	defaultRecordRetention    = 30 * 24 * time.Hour
	defaultMaxArtifactSize    = 8 * 1024 * 1024 * 1024 // 8GB
	defaultMaintenanceCron    = "0 0 3 * * *"          // daily at 3 AM (6-field cron)
	defaultGracefulJobTimeout = 30 * time.Second
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Events   EventsConfig   `mapstructure:"events"`
	Encoder  EncoderConfig  `mapstructure:"encoder"`
	Sweep    SweepConfig    `mapstructure:"sweep"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host        string        `mapstructure:"host"`
	Port        int           `mapstructure:"port"`
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// ShutdownTimeout bounds how long graceful shutdown waits for open
	// connections. Response writes have no fixed timeout because SSE
	// event streams are long-lived.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
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

// StorageConfig holds file storage configuration.
type StorageConfig struct {
	BaseDir   string `mapstructure:"base_dir"`
	WorkDir   string `mapstructure:"work_dir"`
	OutputDir string `mapstructure:"output_dir"`
	LogDir    string `mapstructure:"log_dir"`
	// TempRetention bounds how long orphaned job temp dirs survive a crash.
	TempRetention Duration `mapstructure:"temp_retention"`
	// MaxArtifactSize caps a single output file.
	// Supports human-readable values like "500MB", "8GB", or raw byte counts.
	MaxArtifactSize ByteSize `mapstructure:"max_artifact_size"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // trace, debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// EngineConfig holds pipeline execution configuration.
type EngineConfig struct {
	// OfflineOnly blocks online-required providers for all jobs.
	OfflineOnly bool `mapstructure:"offline_only"`
	// Tier is the default requested tier: Free, ProIfAvailable, or Pro.
	Tier string `mapstructure:"tier"`
	// AutoFallback enables trying fallback providers after the primary.
	AutoFallback      bool `mapstructure:"auto_fallback"`
	MaxConcurrentJobs int  `mapstructure:"max_concurrent_jobs"`
	QueueCapacity     int  `mapstructure:"queue_capacity"`

	RetryAttempts    int           `mapstructure:"retry_attempts"`
	RetryBaseDelay   time.Duration `mapstructure:"retry_base_delay"`
	BreakerThreshold int           `mapstructure:"breaker_threshold"`
	BreakerTimeout   time.Duration `mapstructure:"breaker_timeout"`

	// GracefulJobTimeout bounds how long shutdown waits for running jobs.
	GracefulJobTimeout time.Duration `mapstructure:"graceful_job_timeout"`
}

// EventsConfig holds event stream configuration.
type EventsConfig struct {
	BufferSize        int           `mapstructure:"buffer_size"`
	SubscriberBacklog int           `mapstructure:"subscriber_backlog"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
}

// EncoderConfig holds external encoder configuration.
type EncoderConfig struct {
	// BinaryPath points at the ffmpeg binary (empty = auto-detect).
	BinaryPath string `mapstructure:"binary_path"`
}

// SweepConfig holds scheduled maintenance configuration.
type SweepConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Cron is a 6-field cron expression for the maintenance sweep.
	Cron string `mapstructure:"cron"`
	// RecordRetention bounds how long terminal job records are kept.
	RecordRetention Duration `mapstructure:"record_retention"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with AURA_ and use underscores for
// nesting. Example: AURA_SERVER_PORT=8080.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/aura")
		v.AddConfigPath("$HOME/.aura")
	}

	v.SetEnvPrefix("AURA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file not found is OK: defaults and env vars still apply.
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
// This should be called before reading the config file.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "aura.db")
	v.SetDefault("database.max_open_conns", defaultMaxOpenConns)
	v.SetDefault("database.max_idle_conns", defaultMaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", defaultConnMaxIdleTime)
	v.SetDefault("database.log_level", "warn")

	v.SetDefault("storage.base_dir", "./data")
	v.SetDefault("storage.work_dir", "work")
	v.SetDefault("storage.output_dir", "output")
	v.SetDefault("storage.log_dir", "logs")
	v.SetDefault("storage.temp_retention", defaultTempRetention)
	v.SetDefault("storage.max_artifact_size", defaultMaxArtifactSize)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	v.SetDefault("engine.offline_only", false)
	v.SetDefault("engine.tier", "Free")
	v.SetDefault("engine.auto_fallback", true)
	v.SetDefault("engine.max_concurrent_jobs", defaultMaxConcurrentJobs)
	v.SetDefault("engine.queue_capacity", defaultQueueCapacity)
	v.SetDefault("engine.retry_attempts", defaultRetryAttempts)
	v.SetDefault("engine.retry_base_delay", defaultRetryBaseDelay)
	v.SetDefault("engine.breaker_threshold", defaultBreakerThreshold)
	v.SetDefault("engine.breaker_timeout", defaultBreakerTimeout)
	v.SetDefault("engine.graceful_job_timeout", defaultGracefulJobTimeout)

	v.SetDefault("events.buffer_size", defaultEventBufferSize)
	v.SetDefault("events.subscriber_backlog", defaultSubscriberBacklog)
	v.SetDefault("events.heartbeat_interval", defaultHeartbeatInterval)

	v.SetDefault("encoder.binary_path", "")

	v.SetDefault("sweep.enabled", true)
	v.SetDefault("sweep.cron", defaultMaintenanceCron)
	v.SetDefault("sweep.record_retention", defaultRecordRetention)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	const maxPort = 65535
	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return fmt.Errorf("server.port must be between 1 and %d", maxPort)
	}

	validDrivers := map[string]bool{"sqlite": true, "postgres": true, "mysql": true}
	if !validDrivers[c.Database.Driver] {
		return fmt.Errorf("database.driver must be one of: sqlite, postgres, mysql")
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}

	if c.Storage.BaseDir == "" {
		return fmt.Errorf("storage.base_dir is required")
	}

	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: trace, debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	validTiers := map[string]bool{"Free": true, "ProIfAvailable": true, "Pro": true}
	if !validTiers[c.Engine.Tier] {
		return fmt.Errorf("engine.tier must be one of: Free, ProIfAvailable, Pro")
	}
	if c.Engine.MaxConcurrentJobs < 1 {
		return fmt.Errorf("engine.max_concurrent_jobs must be at least 1")
	}
	if c.Engine.RetryAttempts < 1 {
		return fmt.Errorf("engine.retry_attempts must be at least 1")
	}

	if c.Events.BufferSize < 1 {
		return fmt.Errorf("events.buffer_size must be at least 1")
	}

	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// WorkPath returns the full path to the job temp directory.
func (c *StorageConfig) WorkPath() string {
	return fmt.Sprintf("%s/%s", c.BaseDir, c.WorkDir)
}

// OutputPath returns the full path to the output directory.
func (c *StorageConfig) OutputPath() string {
	return fmt.Sprintf("%s/%s", c.BaseDir, c.OutputDir)
}

// LogPath returns the full path to the log directory.
func (c *StorageConfig) LogPath() string {
	return fmt.Sprintf("%s/%s", c.BaseDir, c.LogDir)
}
