// Package main is the Yomitori CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/yomitori/internal/audit"
	"github.com/hyperjump/yomitori/internal/classifier"
	"github.com/hyperjump/yomitori/internal/config"
	"github.com/hyperjump/yomitori/internal/consensus"
	"github.com/hyperjump/yomitori/internal/embedding"
	"github.com/hyperjump/yomitori/internal/features"
	"github.com/hyperjump/yomitori/internal/indexer"
	"github.com/hyperjump/yomitori/internal/keyword"
	"github.com/hyperjump/yomitori/internal/models"
	"github.com/hyperjump/yomitori/internal/pipeline"
	"github.com/hyperjump/yomitori/internal/ragquery"
	"github.com/hyperjump/yomitori/internal/router"
	"github.com/hyperjump/yomitori/internal/server"
	"github.com/hyperjump/yomitori/internal/vectorstore"
	"github.com/hyperjump/yomitori/internal/watcher"
	"github.com/hyperjump/yomitori/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/yomitori/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks
// for config.yaml in the current directory (for development); if that exists
// it is used instead.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "scan":
		runScan()
	case "query":
		runQuery()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("yomitori version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// Components holds all initialized services so shutdown can close them in
// one place.
type Components struct {
	Vectors    *vectorstore.Store
	Audit      *audit.Log
	Keyword    *keyword.Index
	Training   *classifier.TrainingStore
	Consensus  *consensus.Store
	Classifier *classifier.Classifier
	Router     *router.Router
	Embeddings *embedding.Service
	Registry   *embedding.Registry
	Pipeline   *pipeline.Pipeline
	RAG        *ragquery.Service
	Indexer    *indexer.Indexer
}

// Close releases all component resources.
func (c *Components) Close() {
	if c.Registry != nil {
		_ = c.Registry.Close()
	}
	if c.Keyword != nil {
		_ = c.Keyword.Close()
	}
	if c.Training != nil {
		_ = c.Training.Close()
	}
	if c.Consensus != nil {
		_ = c.Consensus.Close()
	}
	if c.Audit != nil {
		_ = c.Audit.Close()
	}
	if c.Vectors != nil {
		_ = c.Vectors.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger, debug bool) (*Components, error) {
	vectors, err := vectorstore.NewStore(cfg.Storage.VectorDatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vector store: %w", err)
	}
	auditLog, err := audit.NewLog(cfg.Storage.AuditDatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audit log: %w", err)
	}
	keywordIndex, err := keyword.NewIndex(cfg.Storage.KeywordIndexPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize keyword index: %w", err)
	}
	training, err := classifier.NewTrainingStore(cfg.Storage.ClassifierDatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize training store: %w", err)
	}
	consensusStore, err := consensus.NewStore(cfg.Storage.ConsensusDatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize consensus store: %w", err)
	}

	registry := embedding.NewRegistry()
	registry.Register(embedding.NewMockBackend(384))
	if cfg.Embedding.OpenAIAPIKey != "" {
		backend, err := embedding.NewOpenAIBackend(cfg.Embedding.OpenAIAPIKey, cfg.Embedding.OpenAIModel)
		if err != nil {
			logger.Warn("openai backend unavailable", zap.Error(err))
		} else {
			registry.Register(backend)
		}
	}
	if cfg.Embedding.GoogleAPIKey != "" {
		backend, err := embedding.NewGoogleBackend(context.Background(),
			cfg.Embedding.GoogleAPIKey, cfg.Embedding.GoogleModel, 0)
		if err != nil {
			logger.Warn("google backend unavailable", zap.Error(err))
		} else {
			registry.Register(backend)
		}
	}
	if cfg.Embedding.LocalModelPath != "" {
		backend, err := embedding.NewLocalBackend(cfg.Embedding.LocalModelPath,
			cfg.Embedding.LocalDimensions, cfg.Embedding.LocalMaxTokens)
		if err != nil {
			logger.Warn("local embedding backend unavailable", zap.Error(err))
		} else {
			registry.Register(backend)
		}
	}

	embedOpts := []embedding.ServiceOption{
		embedding.WithDefaultModel(cfg.Embedding.DefaultModel),
		embedding.WithCache(embedding.NewCache(cfg.Embedding.CacheSize,
			time.Duration(cfg.Embedding.CacheTTLMinutes)*time.Minute)),
	}
	if debug {
		embedOpts = append(embedOpts, embedding.WithLogger(logger))
	}
	embeddings := embedding.NewService(registry, embedOpts...)

	cl, err := classifier.NewClassifier(
		classifier.WithTrainingStore(training),
		classifier.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize classifier: %w", err)
	}

	engine := consensus.NewEngine(
		consensus.WithStore(consensusStore),
		consensus.WithLogger(logger),
	)

	rt := router.NewRouter(features.NewExtractor(), cl, engine, router.WithLogger(logger))
	rt.RegisterSource(classifier.PipelineBasic, router.NewTextSource())

	pipe := pipeline.NewPipeline(embeddings, vectors,
		pipeline.WithKeywordIndex(keywordIndex),
		pipeline.WithLogger(logger),
	)

	rag := ragquery.NewService(embeddings, vectors,
		ragquery.WithKeywordIndex(keywordIndex),
		ragquery.WithAuditLog(auditLog),
		ragquery.WithDefaults(cfg.RAG.DefaultTopK, cfg.RAG.DefaultThreshold),
		ragquery.WithCacheSize(cfg.RAG.QueryCacheSize),
		ragquery.WithLogger(logger),
	)

	ixCfg := indexer.Config{
		ScanInterval:          cfg.Indexer.ScanInterval(),
		BatchSize:             cfg.Indexer.BatchSize,
		MaxConcurrentJobs:     cfg.Indexer.MaxConcurrentJobs,
		RetryAttempts:         cfg.Indexer.RetryAttempts,
		RetryDelay:            cfg.Indexer.RetryDelay(),
		MaxFileSize:           cfg.Indexer.MaxFileSize(),
		EnableIncrementalSync: cfg.Indexer.IncrementalSync(),
		FileTypes:             cfg.Indexer.FileTypes,
	}
	ix := indexer.NewIndexer(
		indexer.NewDiskSource(cfg.Storage.DocumentsDir),
		pipe, vectors, ixCfg,
		indexer.WithLogger(logger),
	)

	return &Components{
		Vectors:    vectors,
		Audit:      auditLog,
		Keyword:    keywordIndex,
		Training:   training,
		Consensus:  consensusStore,
		Classifier: cl,
		Router:     rt,
		Embeddings: embeddings,
		Registry:   registry,
		Pipeline:   pipe,
		RAG:        rag,
		Indexer:    ix,
	}, nil
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger, debugMode)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	if err := components.Indexer.Start(); err != nil {
		logger.Fatal("Failed to start indexer", zap.Error(err))
	}

	var watchSvc *watcher.Watcher
	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if cfg.Watch.Enabled {
		watchOpts := []watcher.Option{
			watcher.WithDebounce(time.Duration(cfg.Watch.DebounceSeconds) * time.Second),
		}
		if debugMode {
			watchOpts = append(watchOpts, watcher.WithLogger(logger))
		}
		watchSvc = watcher.NewWatcher(cfg.Storage.DocumentsDir, components.Indexer.ForceScan, watchOpts...)
		if err := watchSvc.Start(watchCtx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
	}

	// Daily audit retention sweep.
	retention := time.Duration(cfg.RAG.AuditRetentionDays) * 24 * time.Hour
	retentionDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-retentionDone:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
				removed, err := components.Audit.CleanOldLogs(ctx, retention)
				cancel()
				if err != nil {
					logger.Warn("audit retention sweep failed", zap.Error(err))
				} else if removed > 0 {
					logger.Info("audit retention sweep", zap.Int64("removed", removed))
				}
			}
		}
	}()

	srv := server.NewServer(
		components.Classifier,
		components.Router,
		components.Consensus,
		components.RAG,
		components.Indexer,
		components.Audit,
		components.Embeddings,
		components.Vectors,
		&cfg.Server,
		logger,
	)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	close(retentionDone)
	if watchSvc != nil {
		watchSvc.Stop()
	}
	watchCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_ = components.Indexer.Stop(ctx)
	_ = srv.Stop(ctx)
}

// runScan initializes components and runs a single synchronous scan, for
// cron-style indexing without a resident server.
func runScan() {
	fs := flag.NewFlagSet("scan", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug || *debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger, cfg.Debug || *debug)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	components.Indexer.ScanOnce(context.Background())
	stats := components.Indexer.Stats()
	fmt.Printf("Scan complete: %d completed, %d retried, %d permanently failed\n",
		stats.JobsCompleted, stats.JobsRetried, stats.JobsPermanentlyFailed)
}

// runQuery sends a RAG query to a running server.
func runQuery() {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:8080", "server address")
	tenantID := fs.Int64("tenant", 0, "tenant id (required)")
	topK := fs.Int("top-k", 0, "maximum results")
	threshold := fs.Float64("threshold", 0, "minimum similarity")
	content := fs.Bool("content", false, "include document content")
	_ = fs.Parse(os.Args[2:])

	queryText := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if *tenantID <= 0 || queryText == "" {
		fmt.Println("Usage: yomitori query -tenant <id> [flags] <query text>")
		os.Exit(1)
	}

	body, err := json.Marshal(models.RAGQuery{
		TenantID:       *tenantID,
		Query:          queryText,
		TopK:           *topK,
		Threshold:      *threshold,
		IncludeContent: *content,
	})
	if err != nil {
		fmt.Printf("Failed to build request: %v\n", err)
		os.Exit(1)
	}
	resp, err := http.Post(*addr+"/api/v1/rag/query", "application/json", bytes.NewReader(body))
	if err != nil {
		fmt.Printf("Request failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		fmt.Printf("Server error (%d): %s\n", resp.StatusCode, msg)
		os.Exit(1)
	}
	var response models.RAGResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		fmt.Printf("Failed to parse response: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("%d results (model %s, %dms)\n\n", response.TotalResults, response.Model, response.ProcessingTime)
	for i, r := range response.Results {
		fmt.Printf("%d. [%.3f] %s (doc %d, %s)\n", i+1, r.Similarity, r.FileName, r.DocumentID, r.DocumentType)
		if r.HighlightedMatch != "" {
			fmt.Printf("   %s\n", r.HighlightedMatch)
		}
		if r.Content != "" {
			fmt.Printf("   %s\n", r.Content)
		}
	}
}

// runStatus prints a running server's status document.
func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:8080", "server address")
	_ = fs.Parse(os.Args[2:])

	resp, err := http.Get(*addr + "/status")
	if err != nil {
		fmt.Printf("Request failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	var status map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		fmt.Printf("Failed to parse response: %v\n", err)
		os.Exit(1)
	}
	pretty, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		fmt.Printf("Failed to format response: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(pretty))
}

func printUsage() {
	fmt.Println(`yomitori - Document intelligence pipeline

Usage:
  yomitori server [flags]                    Start the HTTP server
  yomitori scan [flags]                      Run one indexing scan and exit
  yomitori query -tenant <id> <query text>   Query a running server
  yomitori status [flags]                    Show a running server's status
  yomitori version                           Print version

Flags:
  -config <path>   Config file (default ` + defaultConfigPath + `)
  -debug           Enable debug logging`)
}
