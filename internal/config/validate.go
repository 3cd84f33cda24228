package config

import (
	"errors"
	"fmt"
)

// Validate checks a fully-resolved Config for internal consistency,
// accumulating every problem found rather than stopping at the first.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateProvider(cfg.Provider))
	errs = append(errs, validateIntervals(cfg))
	errs = append(errs, validateCache(cfg))
	errs = append(errs, validateDisplay(cfg))
	errs = append(errs, validateLogging(cfg))

	return errors.Join(errs...)
}

func validateProvider(p ProviderConfig) error {
	var errs []error

	switch p.Name {
	case "drivea", "cloudb":
	case "":
		errs = append(errs, errors.New("provider.name must be set"))
	default:
		errs = append(errs, fmt.Errorf("provider.name %q is not a known provider", p.Name))
	}

	if p.TokenPath == "" {
		errs = append(errs, errors.New("provider.token_path must be set"))
	}

	for i, f := range p.Folders {
		if f.Depth < -1 {
			errs = append(errs, fmt.Errorf("provider.folders[%d]: depth must be >= -1, got %d", i, f.Depth))
		}
	}

	return errors.Join(errs...)
}

func validateIntervals(cfg *Config) error {
	var errs []error

	if cfg.SyncInterval <= 0 {
		errs = append(errs, errors.New("sync_interval must be positive"))
	}

	if cfg.CacheTickInterval <= 0 {
		errs = append(errs, errors.New("cache_tick_interval must be positive"))
	}

	if cfg.DisplayInterval <= 0 {
		errs = append(errs, errors.New("display_interval must be positive"))
	}

	return errors.Join(errs...)
}

func validateCache(cfg *Config) error {
	var errs []error

	if cfg.MaxCacheSizeMB <= 0 {
		errs = append(errs, errors.New("max_cache_size_mb must be positive"))
	}

	if cfg.PrefetchBatchSize <= 0 {
		errs = append(errs, errors.New("prefetch_batch_size must be positive"))
	}

	if cfg.StoreDB == "" {
		errs = append(errs, errors.New("store_db must be set"))
	}

	if cfg.CacheDir == "" {
		errs = append(errs, errors.New("cache_dir must be set"))
	}

	return errors.Join(errs...)
}

func validateDisplay(cfg *Config) error {
	var errs []error

	if cfg.ShowWidth <= 0 || cfg.ShowHeight <= 0 {
		errs = append(errs, errors.New("show_width and show_height must be positive"))
	}

	if cfg.JPEGQuality < 1 || cfg.JPEGQuality > 100 {
		errs = append(errs, fmt.Errorf("jpeg_quality must be between 1 and 100, got %d", cfg.JPEGQuality))
	}

	return errors.Join(errs...)
}

func validateLogging(cfg *Config) error {
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level %q is not one of debug, info, warn, error", cfg.LogLevel)
	}

	switch cfg.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("log_format %q is not one of text, json", cfg.LogFormat)
	}

	return nil
}
