package config

import (
	"strings"
	"time"

	"github.com/marmos91/drivebridge/pkg/adapter/ftp"
	"github.com/marmos91/drivebridge/pkg/adapter/sftp"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and
// environment variables to fill in any missing values.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
//   - Store-specific defaults are handled by store implementations
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyStoreDefaults(&cfg.Store)
	applyBridgeDefaults(&cfg.Bridge)
	applyAdaptersDefaults(&cfg.Adapters)
	applyMetricsDefaults(&cfg.Metrics)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyServerDefaults sets server defaults.
func applyServerDefaults(cfg *ServerConfig) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

// applyStoreDefaults sets object store defaults.
func applyStoreDefaults(cfg *StoreConfig) {
	if cfg.Type == "" {
		cfg.Type = "drive"
	}

	if cfg.Drive == nil {
		cfg.Drive = make(map[string]any)
	}
	if cfg.Memory == nil {
		cfg.Memory = make(map[string]any)
	}
}

// applyBridgeDefaults sets bridge defaults.
func applyBridgeDefaults(cfg *BridgeConfig) {
	if cfg.RootFolderID == "" {
		cfg.RootFolderID = "root"
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = 30 * time.Second
	}
	if cfg.CacheMaxEntries == 0 {
		cfg.CacheMaxEntries = 4096
	}
	if cfg.ReadResumeAttempts == 0 {
		cfg.ReadResumeAttempts = 3
	}
	// SpillDir empty means the OS temp directory; resolved by the bridge.
}

// applyAdaptersDefaults sets adapter defaults.
func applyAdaptersDefaults(cfg *AdaptersConfig) {
	// Enable the SFTP adapter by default if no adapters are configured.
	// This ensures a freshly loaded config (with no config file) has at
	// least one adapter enabled and passes validation. Users can explicitly
	// set enabled: false to disable it.
	if !cfg.SFTP.Enabled && !cfg.FTP.Enabled {
		if cfg.SFTP.Port == 0 && cfg.FTP.Port == 0 {
			cfg.SFTP.Enabled = true
		}
	}

	applySFTPDefaults(&cfg.SFTP)
	applyFTPDefaults(&cfg.FTP)
}

// applySFTPDefaults sets SFTP adapter defaults.
func applySFTPDefaults(cfg *sftp.Config) {
	if cfg.Port == 0 {
		cfg.Port = 2022
	}
	if cfg.BindAddress == "" {
		cfg.BindAddress = "0.0.0.0"
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

// applyFTPDefaults sets FTP adapter defaults.
func applyFTPDefaults(cfg *ftp.Config) {
	if cfg.Port == 0 {
		cfg.Port = 2121
	}
	if cfg.BindAddress == "" {
		cfg.BindAddress = "0.0.0.0"
	}
	if cfg.PassivePortStart == 0 {
		cfg.PassivePortStart = 50000
	}
	if cfg.PassivePortEnd == 0 {
		cfg.PassivePortEnd = 50100
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

// applyMetricsDefaults sets metrics endpoint defaults.
func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Listen == "" {
		cfg.Listen = ":9090"
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{
		Store: StoreConfig{
			Drive:  make(map[string]any),
			Memory: make(map[string]any),
		},
		Adapters: AdaptersConfig{
			SFTP: sftp.Config{
				Enabled: true,
			},
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
