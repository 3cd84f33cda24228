package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()

	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

const validConfigTOML = `
data_dir = "/tmp/photosync-test"
sync_interval = "2h"
display_interval = "45s"
use_blob_storage = true

[provider]
name = "drivea"
token_path = "/tmp/photosync-test/token.json"

[[provider.folders]]
folder_id = "pictures"
depth = -1

[[provider.folders]]
folder_id = "camera-roll"
depth = 2
`

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := writeConfigFile(t, validConfigTOML)

	cfg, err := Load(CLIOverrides{ConfigPath: path}, EnvOverrides{}, testLogger(t))
	require.NoError(t, err)

	assert.Equal(t, "drivea", cfg.Provider.Name)
	assert.Equal(t, 2*time.Hour, cfg.SyncInterval.Std())
	assert.Equal(t, 45*time.Second, cfg.DisplayInterval.Std())
	assert.True(t, cfg.UseBlobStorage)

	// Untouched keys keep their defaults.
	assert.Equal(t, DefaultCacheTickInterval, cfg.CacheTickInterval.Std())
	assert.Equal(t, DefaultMaxCacheSizeMB, cfg.MaxCacheSizeMB)
	assert.Equal(t, DefaultJPEGQuality, cfg.JPEGQuality)

	require.Len(t, cfg.Provider.Folders, 2)
	assert.Equal(t, FolderSpec{FolderID: "pictures", Depth: -1}, cfg.Provider.Folders[0])
	assert.Equal(t, FolderSpec{FolderID: "camera-roll", Depth: 2}, cfg.Provider.Folders[1])
}

func TestLoadCLIOverridesWinOverFile(t *testing.T) {
	path := writeConfigFile(t, validConfigTOML)

	cfg, err := Load(
		CLIOverrides{ConfigPath: path, DataDir: "/tmp/elsewhere", ProviderName: "cloudb"},
		EnvOverrides{},
		testLogger(t),
	)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/elsewhere", cfg.DataDir)
	assert.Equal(t, "cloudb", cfg.Provider.Name)
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.toml")

	_, err := Load(CLIOverrides{ConfigPath: path}, EnvOverrides{}, testLogger(t))

	// Defaults alone fail validation: no provider is configured.
	require.Error(t, err)
	assert.Contains(t, err.Error(), "provider.name")
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"unknown provider", func(c *Config) { c.Provider.Name = "gopherdrive" }, "not a known provider"},
		{"zero interval", func(c *Config) { c.DisplayInterval = 0 }, "display_interval"},
		{"bad depth", func(c *Config) { c.Provider.Folders = []FolderSpec{{FolderID: "x", Depth: -2}} }, "depth"},
		{"bad quality", func(c *Config) { c.JPEGQuality = 101 }, "jpeg_quality"},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Provider.Name = "drivea"
			cfg.Provider.TokenPath = "/tmp/token.json"

			tt.mutate(cfg)

			err := Validate(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
