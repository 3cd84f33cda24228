package config

import "time"

// Default values per the external interface table: generous enough for a
// single-board-computer photo frame, conservative enough not to surprise a
// first-time operator.
const (
	DefaultSyncInterval      = 6 * time.Hour
	DefaultCacheTickInterval = 30 * time.Second
	DefaultDisplayInterval   = 60 * time.Second

	DefaultMaxCacheSizeMB    = 200
	DefaultPrefetchBatchSize = 5

	DefaultShowWidth   = 1920
	DefaultShowHeight  = 1080
	DefaultJPEGQuality = 90

	DefaultUseBlobStorage = false

	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"

	DefaultStoreDBName  = "photosync.db"
	DefaultCacheDirName = "cache"
)

// DefaultConfig returns a Config populated entirely with built-in defaults.
// Callers layer a TOML file, environment, and CLI overrides on top.
func DefaultConfig() *Config {
	return &Config{
		DataDir:  DefaultDataDir(),
		StoreDB:  DefaultStoreDBName,
		CacheDir: DefaultCacheDirName,

		SyncInterval:      Duration(DefaultSyncInterval),
		CacheTickInterval: Duration(DefaultCacheTickInterval),
		DisplayInterval:   Duration(DefaultDisplayInterval),

		MaxCacheSizeMB:    DefaultMaxCacheSizeMB,
		PrefetchBatchSize: DefaultPrefetchBatchSize,

		ShowWidth:   DefaultShowWidth,
		ShowHeight:  DefaultShowHeight,
		JPEGQuality: DefaultJPEGQuality,

		UseBlobStorage: DefaultUseBlobStorage,

		LogLevel:  DefaultLogLevel,
		LogFormat: DefaultLogFormat,
	}
}
