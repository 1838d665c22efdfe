// Package config provides configuration management for memtide.
package config

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	json "github.com/goccy/go-json"
)

const (
	// DefaultWorkerPort is the default HTTP port for the worker service.
	DefaultWorkerPort = 38800

	// DefaultSimilarityThreshold is the minimum content similarity for
	// content-mode consolidation.
	DefaultSimilarityThreshold = 0.7

	// DefaultConsolidationBatch is how many unconsolidated memories a
	// scheduled pass pulls from the store.
	DefaultConsolidationBatch = 100
)

// Config holds the application configuration.
type Config struct {
	// Worker settings
	WorkerPort int `json:"worker_port"`

	// Database settings
	DBPath   string `json:"db_path"`
	MaxConns int    `json:"max_conns"`

	// Import watcher settings
	ImportDir      string `json:"import_dir"`
	WatcherEnabled bool   `json:"watcher_enabled"`

	// Consolidation scheduler settings
	SchedulerEnabled    bool          `json:"scheduler_enabled"`
	TagInterval         time.Duration `json:"tag_interval"`
	ContentInterval     time.Duration `json:"content_interval"`
	SimilarityThreshold float64       `json:"similarity_threshold"`
	ConsolidationBatch  int           `json:"consolidation_batch"`
}

var (
	globalConfig *Config
	configOnce   sync.Once
)

// DataDir returns the data directory path (~/.memtide).
func DataDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".memtide")
}

// DBPath returns the database file path.
func DBPath() string {
	return filepath.Join(DataDir(), "memtide.db")
}

// ImportDir returns the default watched import directory.
func ImportDir() string {
	return filepath.Join(DataDir(), "import")
}

// SettingsPath returns the settings file path.
func SettingsPath() string {
	return filepath.Join(DataDir(), "settings.json")
}

// EnsureDataDir creates the data and import directories if they don't exist.
func EnsureDataDir() error {
	if err := os.MkdirAll(DataDir(), 0750); err != nil {
		return err
	}
	return os.MkdirAll(ImportDir(), 0750)
}

// EnsureSettings creates a default settings file if it doesn't exist.
func EnsureSettings() error {
	path := SettingsPath()

	if _, err := os.Stat(path); err == nil {
		return nil // File exists
	}

	defaultSettings := `{
  "MEMTIDE_WORKER_PORT": 38800,
  "MEMTIDE_SCHEDULER_ENABLED": true,
  "MEMTIDE_WATCHER_ENABLED": true,
  "MEMTIDE_TAG_INTERVAL_MINUTES": 60,
  "MEMTIDE_CONTENT_INTERVAL_MINUTES": 30,
  "MEMTIDE_SIMILARITY_THRESHOLD": 0.7,
  "MEMTIDE_CONSOLIDATION_BATCH": 100
}
`
	return os.WriteFile(path, []byte(defaultSettings), 0600)
}

// EnsureAll ensures all required directories and files exist.
func EnsureAll() error {
	if err := EnsureDataDir(); err != nil {
		return err
	}
	return EnsureSettings()
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		WorkerPort:          DefaultWorkerPort,
		DBPath:              DBPath(),
		MaxConns:            4,
		ImportDir:           ImportDir(),
		WatcherEnabled:      true,
		SchedulerEnabled:    true,
		TagInterval:         60 * time.Minute,
		ContentInterval:     30 * time.Minute,
		SimilarityThreshold: DefaultSimilarityThreshold,
		ConsolidationBatch:  DefaultConsolidationBatch,
	}
}

// Load loads configuration from the settings file, merging with defaults.
func Load() (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(SettingsPath())
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	// Load settings into a map to preserve unknown fields
	var settings map[string]interface{}
	if err := json.Unmarshal(data, &settings); err != nil {
		return cfg, nil // Return defaults on parse error
	}

	if v, ok := settings["MEMTIDE_WORKER_PORT"].(float64); ok && v > 0 {
		cfg.WorkerPort = int(v)
	}
	if v, ok := settings["MEMTIDE_DB_PATH"].(string); ok && v != "" {
		cfg.DBPath = v
	}
	if v, ok := settings["MEMTIDE_MAX_CONNS"].(float64); ok && v > 0 {
		cfg.MaxConns = int(v)
	}
	if v, ok := settings["MEMTIDE_IMPORT_DIR"].(string); ok && v != "" {
		cfg.ImportDir = v
	}
	if v, ok := settings["MEMTIDE_WATCHER_ENABLED"].(bool); ok {
		cfg.WatcherEnabled = v
	}
	if v, ok := settings["MEMTIDE_SCHEDULER_ENABLED"].(bool); ok {
		cfg.SchedulerEnabled = v
	}
	if v, ok := settings["MEMTIDE_TAG_INTERVAL_MINUTES"].(float64); ok && v > 0 {
		cfg.TagInterval = time.Duration(v) * time.Minute
	}
	if v, ok := settings["MEMTIDE_CONTENT_INTERVAL_MINUTES"].(float64); ok && v > 0 {
		cfg.ContentInterval = time.Duration(v) * time.Minute
	}
	if v, ok := settings["MEMTIDE_SIMILARITY_THRESHOLD"].(float64); ok && v > 0 && v <= 1 {
		cfg.SimilarityThreshold = v
	}
	if v, ok := settings["MEMTIDE_CONSOLIDATION_BATCH"].(float64); ok && v > 0 {
		cfg.ConsolidationBatch = int(v)
	}

	return cfg, nil
}

// Get returns the global configuration, loading it if necessary.
func Get() *Config {
	configOnce.Do(func() {
		var err error
		globalConfig, err = Load()
		if err != nil {
			globalConfig = Default()
		}
	})
	return globalConfig
}
