package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/marmos91/drivebridge/pkg/adapter/ftp"
	"github.com/marmos91/drivebridge/pkg/adapter/sftp"
)

// Config represents the complete drivebridge configuration.
//
// This structure captures all configurable aspects of the gateway:
//   - Logging configuration
//   - Server-wide settings
//   - Object store selection and store-specific configuration
//   - Bridge behavior (cache, spill directory, delete policy)
//   - Protocol adapter configurations
//   - Metrics endpoint
//
// Configuration sources (in order of precedence):
//  1. Environment variables (DRIVEBRIDGE_*)
//  2. Configuration file (YAML or TOML)
//  3. Default values (lowest priority)
//
// Store Configuration Pattern:
// Each store implementation defines its own configuration shape. The Config
// struct contains type-specific sections (store.drive, store.memory) and
// only the section matching the selected type is used.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging"`

	// Server contains server-wide settings
	Server ServerConfig `mapstructure:"server"`

	// Store specifies the object store type and type-specific configuration
	Store StoreConfig `mapstructure:"store"`

	// Bridge controls path resolution, caching and streaming behavior
	Bridge BridgeConfig `mapstructure:"bridge"`

	// Adapters contains protocol adapter configurations
	Adapters AdaptersConfig `mapstructure:"adapters"`

	// Metrics configures the Prometheus endpoint
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required"`
}

// ServerConfig contains server-wide settings.
type ServerConfig struct {
	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0"`
}

// StoreConfig specifies object store configuration.
//
// The Type field determines which store implementation is used.
// Only the corresponding type-specific section is used.
type StoreConfig struct {
	// Type specifies which object store implementation to use
	// Valid values: drive, memory
	Type string `mapstructure:"type" validate:"required,oneof=drive memory"`

	// Drive contains Drive-specific configuration
	// Only used when Type = "drive"
	Drive map[string]any `mapstructure:"drive"`

	// Memory contains memory-specific configuration
	// Only used when Type = "memory"
	Memory map[string]any `mapstructure:"memory"`
}

// BridgeConfig controls the path/cache/streaming layer.
type BridgeConfig struct {
	// RootFolderID is the store object ID the path "/" maps to
	RootFolderID string `mapstructure:"root_folder_id"`

	// CacheTTL bounds how long cached metadata is trusted
	CacheTTL time.Duration `mapstructure:"cache_ttl" validate:"gte=0"`

	// CacheMaxEntries bounds the metadata cache size
	CacheMaxEntries int `mapstructure:"cache_max_entries" validate:"gte=0"`

	// SpillDir is where uploads are buffered before commit
	SpillDir string `mapstructure:"spill_dir"`

	// RecursiveDelete allows removing non-empty directories
	RecursiveDelete bool `mapstructure:"recursive_delete"`

	// ReadResumeAttempts bounds transparent resume of broken downloads
	ReadResumeAttempts int `mapstructure:"read_resume_attempts" validate:"gte=0"`
}

// AdaptersConfig contains all protocol adapter configurations.
type AdaptersConfig struct {
	// FTP contains FTP protocol configuration.
	// Uses the ftp.Config type directly to avoid duplication.
	FTP ftp.Config `mapstructure:"ftp"`

	// SFTP contains SFTP protocol configuration.
	// Uses the sftp.Config type directly to avoid duplication.
	SFTP sftp.Config `mapstructure:"sftp"`
}

// MetricsConfig configures the Prometheus metrics endpoint.
type MetricsConfig struct {
	// Enabled turns the metrics HTTP endpoint on
	Enabled bool `mapstructure:"enabled"`

	// Listen is the address the metrics endpoint binds to
	Listen string `mapstructure:"listen"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (DRIVEBRIDGE_*)
//  2. Configuration file
//  3. Default values
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use the DRIVEBRIDGE_ prefix and underscores.
	// Example: DRIVEBRIDGE_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("DRIVEBRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default location: $XDG_CONFIG_HOME/drivebridge/config.{yaml,toml}
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found is acceptable, defaults apply.
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to the
// current directory if the home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "drivebridge")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "drivebridge")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}
