package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Load resolves a Config from defaults, an optional TOML file, the
// environment, and CLI overrides, in that precedence order (each layer
// wins over the one before it). configPath resolution itself follows the
// same order: cli > env > default.
func Load(cli CLIOverrides, env EnvOverrides, logger *slog.Logger) (*Config, error) {
	cfg := DefaultConfig()

	path := resolveConfigPath(cli, env)

	if path != "" {
		if err := mergeFile(cfg, path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				logger.Debug("no config file found, using defaults", slog.String("path", path))
			} else {
				return nil, fmt.Errorf("loading config from %s: %w", path, err)
			}
		} else {
			logger.Debug("loaded config file", slog.String("path", path))
		}
	}

	applyEnvOverrides(cfg, env)
	applyCLIOverrides(cfg, cli)

	if cfg.DataDir == "" {
		cfg.DataDir = DefaultDataDir()
	}

	if cfg.Provider.TokenPath == "" {
		cfg.Provider.TokenPath = filepath.Join(cfg.DataDir, "token.json")
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func resolveConfigPath(cli CLIOverrides, env EnvOverrides) string {
	if cli.ConfigPath != "" {
		return cli.ConfigPath
	}

	if env.ConfigPath != "" {
		return env.ConfigPath
	}

	return DefaultConfigPath()
}

func mergeFile(cfg *Config, path string) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}

	_, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("parsing toml: %w", err)
	}

	return nil
}

func applyEnvOverrides(cfg *Config, env EnvOverrides) {
	if env.DataDir != "" {
		cfg.DataDir = env.DataDir
	}
}

func applyCLIOverrides(cfg *Config, cli CLIOverrides) {
	if cli.DataDir != "" {
		cfg.DataDir = cli.DataDir
	}

	if cli.ProviderName != "" {
		cfg.Provider.Name = cli.ProviderName
	}
}

// StoreDBPath returns the fully resolved path to the metadata store database.
func StoreDBPath(cfg *Config) string {
	return filepath.Join(cfg.DataDir, cfg.StoreDB)
}

// CacheDirPath returns the fully resolved path to the image cache directory.
func CacheDirPath(cfg *Config) string {
	return filepath.Join(cfg.DataDir, cfg.CacheDir)
}
