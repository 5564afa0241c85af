package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("debug: true\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Debug {
		t.Error("debug not read")
	}
	if cfg.Server.Port != 8080 || cfg.Server.Host != "localhost" {
		t.Errorf("server defaults = %+v", cfg.Server)
	}
	if cfg.Indexer.ScanIntervalMinutes != 15 {
		t.Errorf("scan interval = %d, want 15", cfg.Indexer.ScanIntervalMinutes)
	}
	if cfg.Indexer.BatchSize != 10 || cfg.Indexer.MaxConcurrentJobs != 5 {
		t.Errorf("indexer defaults = %+v", cfg.Indexer)
	}
	if cfg.Indexer.RetryAttempts != 3 || cfg.Indexer.RetryDelayMinutes != 5 {
		t.Errorf("retry defaults = %+v", cfg.Indexer)
	}
	if cfg.Indexer.MaxFileSize() != 50*1024*1024 {
		t.Errorf("max file size = %d", cfg.Indexer.MaxFileSize())
	}
	if !cfg.Indexer.IncrementalSync() {
		t.Error("incremental sync should default to true")
	}
	want := []string{"pdf", "jpg", "jpeg", "png", "tiff"}
	if len(cfg.Indexer.FileTypes) != len(want) {
		t.Fatalf("file types = %v", cfg.Indexer.FileTypes)
	}
	for i, ft := range want {
		if cfg.Indexer.FileTypes[i] != ft {
			t.Errorf("file type %d = %q, want %q", i, cfg.Indexer.FileTypes[i], ft)
		}
	}
	if cfg.RAG.DefaultTopK != 5 || cfg.RAG.DefaultThreshold != 0.7 {
		t.Errorf("rag defaults = %+v", cfg.RAG)
	}
}

func TestLoadOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
indexer:
  scan_interval_minutes: 1
  batch_size: 2
  enable_incremental_sync: false
  file_types: ["pdf"]
embedding:
  default_model: openai
  openai_api_key: sk-test
`
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Indexer.ScanInterval() != time.Minute {
		t.Errorf("interval = %v", cfg.Indexer.ScanInterval())
	}
	if cfg.Indexer.IncrementalSync() {
		t.Error("incremental sync override ignored")
	}
	if len(cfg.Indexer.FileTypes) != 1 || cfg.Indexer.FileTypes[0] != "pdf" {
		t.Errorf("file types = %v", cfg.Indexer.FileTypes)
	}
	if cfg.Embedding.DefaultModel != "openai" || cfg.Embedding.OpenAIAPIKey != "sk-test" {
		t.Errorf("embedding = %+v", cfg.Embedding)
	}
	if cfg.Embedding.OpenAIModel != "text-embedding-3-small" {
		t.Errorf("openai model default = %q", cfg.Embedding.OpenAIModel)
	}
}

func TestLoadExpandsRelativePaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
storage:
  vector_database_path: ./data/vectors.db
  documents_dir: ./docs
`
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !filepath.IsAbs(cfg.Storage.VectorDatabasePath) {
		t.Errorf("path not expanded: %q", cfg.Storage.VectorDatabasePath)
	}
	if cfg.Storage.VectorDatabasePath != filepath.Join(dir, "data", "vectors.db") {
		t.Errorf("path = %q", cfg.Storage.VectorDatabasePath)
	}
	if cfg.Storage.DocumentsDir != filepath.Join(dir, "docs") {
		t.Errorf("documents dir = %q", cfg.Storage.DocumentsDir)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("missing file should error")
	}
}
