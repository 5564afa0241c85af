// Package config provides configuration loading and structs for the Yomitori server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Indexer   IndexerConfig   `yaml:"indexer"`
	RAG       RAGConfig       `yaml:"rag"`
	Watch     WatchConfig     `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds paths for databases and indices.
type StorageConfig struct {
	VectorDatabasePath     string `yaml:"vector_database_path"`
	AuditDatabasePath      string `yaml:"audit_database_path"`
	ClassifierDatabasePath string `yaml:"classifier_database_path"`
	ConsensusDatabasePath  string `yaml:"consensus_database_path"`
	KeywordIndexPath       string `yaml:"keyword_index_path"`
	DocumentsDir           string `yaml:"documents_dir"`
}

// EmbeddingConfig holds backend settings. A backend is only registered when
// its section is configured.
type EmbeddingConfig struct {
	DefaultModel    string  `yaml:"default_model"`
	CacheSize       int     `yaml:"cache_size"`
	CacheTTLMinutes int     `yaml:"cache_ttl_minutes"`
	OpenAIAPIKey    string  `yaml:"openai_api_key"`
	OpenAIModel     string  `yaml:"openai_model"`
	GoogleAPIKey    string  `yaml:"google_api_key"`
	GoogleModel     string  `yaml:"google_model"`
	LocalModelPath  string  `yaml:"local_model_path"`
	LocalDimensions int     `yaml:"local_dimensions"`
	LocalMaxTokens  int     `yaml:"local_max_tokens"`
}

// IndexerConfig holds scheduled scan settings.
type IndexerConfig struct {
	ScanIntervalMinutes   int      `yaml:"scan_interval_minutes"`
	BatchSize             int      `yaml:"batch_size"`
	MaxConcurrentJobs     int      `yaml:"max_concurrent_jobs"`
	RetryAttempts         int      `yaml:"retry_attempts"`
	RetryDelayMinutes     int      `yaml:"retry_delay_minutes"`
	MaxFileSizeMB         int      `yaml:"max_file_size_mb"`
	EnableIncrementalSync *bool    `yaml:"enable_incremental_sync"`
	FileTypes             []string `yaml:"file_types"`
}

// IncrementalSync returns whether unchanged files are skipped; defaults to
// true when unset.
func (c *IndexerConfig) IncrementalSync() bool {
	if c.EnableIncrementalSync != nil {
		return *c.EnableIncrementalSync
	}
	return true
}

// ScanInterval returns the interval as a duration.
func (c *IndexerConfig) ScanInterval() time.Duration {
	return time.Duration(c.ScanIntervalMinutes) * time.Minute
}

// RetryDelay returns the retry delay as a duration.
func (c *IndexerConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMinutes) * time.Minute
}

// MaxFileSize returns the size limit in bytes.
func (c *IndexerConfig) MaxFileSize() int64 {
	return int64(c.MaxFileSizeMB) * 1024 * 1024
}

// RAGConfig holds query service settings.
type RAGConfig struct {
	DefaultTopK      int     `yaml:"default_top_k"`
	DefaultThreshold float64 `yaml:"default_threshold"`
	QueryCacheSize   int     `yaml:"query_cache_size"`
	AuditRetentionDays int   `yaml:"audit_retention_days"`
}

// WatchConfig holds filesystem watch settings for scan triggering.
type WatchConfig struct {
	Enabled         bool `yaml:"enabled"`
	DebounceSeconds int  `yaml:"debounce_seconds"`
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.VectorDatabasePath = expandPath(cfg.Storage.VectorDatabasePath, configDir)
	cfg.Storage.AuditDatabasePath = expandPath(cfg.Storage.AuditDatabasePath, configDir)
	cfg.Storage.ClassifierDatabasePath = expandPath(cfg.Storage.ClassifierDatabasePath, configDir)
	cfg.Storage.ConsensusDatabasePath = expandPath(cfg.Storage.ConsensusDatabasePath, configDir)
	cfg.Storage.KeywordIndexPath = expandPath(cfg.Storage.KeywordIndexPath, configDir)
	cfg.Storage.DocumentsDir = expandPath(cfg.Storage.DocumentsDir, configDir)
	if cfg.Embedding.LocalModelPath != "" {
		cfg.Embedding.LocalModelPath = expandPath(cfg.Embedding.LocalModelPath, configDir)
	}

	return &cfg, nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
