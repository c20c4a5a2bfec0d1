package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/mitchellh/mapstructure"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/marmos91/drivebridge/pkg/bridge"
	"github.com/marmos91/drivebridge/pkg/metrics"
	"github.com/marmos91/drivebridge/pkg/store"
	"github.com/marmos91/drivebridge/pkg/store/drive"
	"github.com/marmos91/drivebridge/pkg/store/memory"
)

// driveScope grants full access to the account's files.
const driveScope = "https://www.googleapis.com/auth/drive"

// driveStoreConfig represents Drive store configuration loaded from YAML.
type driveStoreConfig struct {
	// CredentialsFile is an OAuth2 client secret JSON file
	CredentialsFile string `mapstructure:"credentials_file"`

	// TokenFile holds the persisted OAuth2 token (obtained out of band)
	TokenFile string `mapstructure:"token_file"`

	// AccessToken is a static bearer token; mainly for development
	AccessToken string `mapstructure:"access_token"`

	BaseURL            string `mapstructure:"base_url"`
	UploadBaseURL      string `mapstructure:"upload_base_url"`
	RequestsPerSecond  uint   `mapstructure:"requests_per_second"`
	Burst              uint   `mapstructure:"burst"`
	MaxRetries         int    `mapstructure:"max_retries"`
	ResumableThreshold int64  `mapstructure:"resumable_threshold"`
	UploadChunkSize    int64  `mapstructure:"upload_chunk_size"`
}

// CreateStore creates an object store based on configuration.
//
// This factory uses the Type field to determine which store implementation
// to create, then decodes the type-specific configuration from the
// corresponding map and passes it to the store's constructor.
//
// Supported types:
//   - "drive": the remote Drive-backed store (pkg/store/drive)
//   - "memory": an in-memory store for development and testing
func CreateStore(ctx context.Context, cfg *StoreConfig, m metrics.StoreMetrics) (store.Store, error) {
	switch cfg.Type {
	case "drive":
		return createDriveStore(ctx, cfg.Drive, m)
	case "memory":
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown store type: %q", cfg.Type)
	}
}

// createDriveStore creates the Drive-backed store.
func createDriveStore(ctx context.Context, options map[string]any, m metrics.StoreMetrics) (store.Store, error) {
	var storeCfg driveStoreConfig
	if err := mapstructure.Decode(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode drive store config: %w", err)
	}

	tokens, err := createTokenSource(ctx, storeCfg)
	if err != nil {
		return nil, err
	}

	d, err := drive.New(drive.Config{
		TokenSource:        tokens,
		BaseURL:            storeCfg.BaseURL,
		UploadBaseURL:      storeCfg.UploadBaseURL,
		RequestsPerSecond:  storeCfg.RequestsPerSecond,
		Burst:              storeCfg.Burst,
		MaxRetries:         storeCfg.MaxRetries,
		ResumableThreshold: storeCfg.ResumableThreshold,
		UploadChunkSize:    storeCfg.UploadChunkSize,
		Metrics:            m,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create drive store: %w", err)
	}
	return d, nil
}

// createTokenSource builds the bearer credential supplier.
//
// A static access token takes precedence; otherwise the OAuth2 client
// secret and a previously obtained token are loaded from disk and the
// resulting source refreshes the token automatically.
func createTokenSource(ctx context.Context, cfg driveStoreConfig) (oauth2.TokenSource, error) {
	if cfg.AccessToken != "" {
		return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.AccessToken}), nil
	}

	if cfg.CredentialsFile == "" {
		return nil, fmt.Errorf("drive store: access_token or credentials_file is required")
	}
	if cfg.TokenFile == "" {
		return nil, fmt.Errorf("drive store: token_file is required with credentials_file")
	}

	creds, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("drive store: read credentials file: %w", err)
	}
	oauthCfg, err := google.ConfigFromJSON(creds, driveScope)
	if err != nil {
		return nil, fmt.Errorf("drive store: parse credentials file: %w", err)
	}

	tokenData, err := os.ReadFile(cfg.TokenFile)
	if err != nil {
		return nil, fmt.Errorf("drive store: read token file: %w", err)
	}
	var token oauth2.Token
	if err := json.Unmarshal(tokenData, &token); err != nil {
		return nil, fmt.Errorf("drive store: parse token file: %w", err)
	}

	return oauthCfg.TokenSource(ctx, &token), nil
}

// CreateBridge creates the path/cache/streaming layer over the given store.
func CreateBridge(st store.Store, cfg *BridgeConfig, m metrics.BridgeMetrics) *bridge.Bridge {
	return bridge.New(st, bridge.Options{
		RootFolderID:       cfg.RootFolderID,
		CacheTTL:           cfg.CacheTTL,
		CacheMaxEntries:    cfg.CacheMaxEntries,
		SpillDir:           cfg.SpillDir,
		RecursiveDelete:    cfg.RecursiveDelete,
		ReadResumeAttempts: cfg.ReadResumeAttempts,
		Metrics:            m,
	})
}
