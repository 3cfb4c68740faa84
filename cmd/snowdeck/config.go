package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/dataops-sh/snowdeck/internal/core/deploy"
)

// =============================================================================
// Config Types
// =============================================================================

// Config holds all application configuration.
type Config struct {
	Repo      RepoConfig      `mapstructure:"repo"`
	Warehouse WarehouseConfig `mapstructure:"warehouse"`
	Deploy    DeployConfig    `mapstructure:"deploy"`
	History   HistoryConfig   `mapstructure:"history"`
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
}

// RepoConfig holds the local working copy layout.
type RepoConfig struct {
	// Root is the path of the source working copy.
	Root string `mapstructure:"root"`

	// AppsDir is the apps directory relative to Root.
	AppsDir string `mapstructure:"apps_dir"`

	// Branch is the branch deployed when no --branch flag is given.
	Branch string `mapstructure:"branch"`
}

// WarehouseConfig holds the remote platform connection.
type WarehouseConfig struct {
	// Connection is the snow CLI connection profile name.
	Connection string `mapstructure:"connection"`

	// SnowBinary is the snow CLI executable, resolved via PATH when bare.
	SnowBinary string `mapstructure:"snow_binary"`

	// GitRepository is the warehouse-side git repository object that
	// mirrors the source repo.
	GitRepository string `mapstructure:"git_repository"`

	// Schema is the namespace deployed apps live in unless a manifest
	// declares its own.
	Schema string `mapstructure:"schema"`

	// QueryWarehouse backs deployed apps unless a manifest declares its own.
	QueryWarehouse string `mapstructure:"query_warehouse"`
}

// DeployConfig holds run execution defaults, overridable per run by flags.
type DeployConfig struct {
	MaxParallel     int           `mapstructure:"max_parallel"`
	ContinueOnError bool          `mapstructure:"continue_on_error"`
	RemoteTimeout   time.Duration `mapstructure:"remote_timeout"`
	RetryAttempts   int           `mapstructure:"retry_attempts"`
	RetryBaseDelay  time.Duration `mapstructure:"retry_base_delay"`
	RetryMaxDelay   time.Duration `mapstructure:"retry_max_delay"`
}

// Options translates the configured defaults into run options.
func (c DeployConfig) Options() deploy.Options {
	opts := deploy.DefaultOptions()
	if c.MaxParallel > 0 {
		opts.MaxParallel = c.MaxParallel
	}
	opts.ContinueOnError = c.ContinueOnError
	if c.RemoteTimeout > 0 {
		opts.RemoteTimeout = c.RemoteTimeout
	}
	if c.RetryAttempts > 0 {
		opts.Retry.Attempts = c.RetryAttempts
	}
	if c.RetryBaseDelay > 0 {
		opts.Retry.BaseDelay = c.RetryBaseDelay
	}
	if c.RetryMaxDelay > 0 {
		opts.Retry.MaxDelay = c.RetryMaxDelay
	}
	return opts
}

// HistoryConfig holds the run journal configuration.
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DSN     string `mapstructure:"dsn"`
}

// ServerConfig holds HTTP server configuration for the serve command.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Address returns the server address in host:port format.
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// =============================================================================
// Config Loading
// =============================================================================

// LoadConfig loads configuration from file and environment.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("repo.root", ".")
	v.SetDefault("repo.apps_dir", "apps")
	v.SetDefault("repo.branch", "main")
	v.SetDefault("warehouse.connection", "default")
	v.SetDefault("warehouse.snow_binary", "snow")
	v.SetDefault("warehouse.git_repository", "")
	v.SetDefault("warehouse.schema", "APPS")
	v.SetDefault("warehouse.query_warehouse", "COMPUTE_WH")
	v.SetDefault("deploy.max_parallel", 1)
	v.SetDefault("deploy.continue_on_error", true)
	v.SetDefault("deploy.remote_timeout", "60s")
	v.SetDefault("deploy.retry_attempts", 3)
	v.SetDefault("deploy.retry_base_delay", "500ms")
	v.SetDefault("deploy.retry_max_delay", "5s")
	v.SetDefault("history.enabled", true)
	v.SetDefault("history.dsn", "./data/snowdeck.db")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Load from file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			// Only return error if file was explicitly specified and is invalid
			if _, ok := err.(viper.ConfigParseError); ok {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
			// File not found is OK, we'll use defaults
		}
	}

	// Enable environment variable overrides
	v.SetEnvPrefix("SNOWDECK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unmarshal config
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate checks the settings every remote-touching command depends on.
func (c *Config) Validate() error {
	if c.Warehouse.GitRepository == "" {
		return fmt.Errorf("warehouse.git_repository must be set")
	}
	if c.Warehouse.Schema == "" {
		return fmt.Errorf("warehouse.schema must be set")
	}
	if c.Repo.Branch == "" {
		return fmt.Errorf("repo.branch must be set")
	}
	return nil
}

// =============================================================================
// Logger Setup
// =============================================================================

// SetupLogger creates a logger with the configured level and format.
func SetupLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	// Tables and reports go to stdout; logs stay on stderr so the two
	// streams can be consumed independently in CI.
	var handler slog.Handler
	if strings.ToLower(cfg.Log.Format) == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}
