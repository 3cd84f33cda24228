// Package config loads and validates the daemon's configuration from a
// four-layer override chain (defaults -> TOML file -> environment ->
// CLI flags), mirroring the resolution order used throughout the rest of
// this codebase's command-line tooling.
package config

import (
	"fmt"
	"time"
)

// Duration is a time.Duration that decodes from TOML duration strings
// like "30s" or "6h".
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("config: parsing duration %q: %w", string(text), err)
	}

	*d = Duration(parsed)

	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// FolderSpec describes one provider folder to scan. FolderID empty means
// the provider's root. Depth -1 means unbounded, 0 means the folder itself
// with no descent, N>0 means descend N levels.
type FolderSpec struct {
	FolderID string `toml:"folder_id"`
	Depth    int    `toml:"depth"`
}

// ProviderConfig holds provider-specific settings. Exactly one provider is
// active per daemon instance.
type ProviderConfig struct {
	Name            string       `toml:"name"`
	CredentialsPath string       `toml:"credentials_path"`
	TokenPath       string       `toml:"token_path"`
	Folders         []FolderSpec `toml:"folders"`
	// DriveID scopes the drivea conformance to a specific remote drive;
	// ignored by other providers.
	DriveID string `toml:"drive_id"`
}

// Config is the fully resolved daemon configuration.
type Config struct {
	Provider ProviderConfig `toml:"provider"`

	DataDir  string `toml:"data_dir"`
	StoreDB  string `toml:"store_db"`
	CacheDir string `toml:"cache_dir"`

	SyncInterval      Duration `toml:"sync_interval"`
	CacheTickInterval Duration `toml:"cache_tick_interval"`
	DisplayInterval   Duration `toml:"display_interval"`

	MaxCacheSizeMB    int `toml:"max_cache_size_mb"`
	PrefetchBatchSize int `toml:"prefetch_batch_size"`

	ShowWidth   int `toml:"show_width"`
	ShowHeight  int `toml:"show_height"`
	JPEGQuality int `toml:"jpeg_quality"`

	UseBlobStorage bool `toml:"use_blob_storage"`

	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// CLIOverrides holds values sourced from command-line flags. Zero values
// mean "not set by the user" — only fields the user explicitly passed
// should be copied into the resolved config.
type CLIOverrides struct {
	ConfigPath   string
	DataDir      string
	ProviderName string
}

// EnvOverrides holds values sourced from environment variables.
type EnvOverrides struct {
	ConfigPath string
	DataDir    string
}
