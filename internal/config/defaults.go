package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.VectorDatabasePath == "" {
		cfg.Storage.VectorDatabasePath = "/usr/local/var/yomitori/data/db/vectors.db"
	}
	if cfg.Storage.AuditDatabasePath == "" {
		cfg.Storage.AuditDatabasePath = "/usr/local/var/yomitori/data/db/audit.db"
	}
	if cfg.Storage.ClassifierDatabasePath == "" {
		cfg.Storage.ClassifierDatabasePath = "/usr/local/var/yomitori/data/db/classifier.db"
	}
	if cfg.Storage.ConsensusDatabasePath == "" {
		cfg.Storage.ConsensusDatabasePath = "/usr/local/var/yomitori/data/db/consensus.db"
	}
	if cfg.Storage.KeywordIndexPath == "" {
		cfg.Storage.KeywordIndexPath = "/usr/local/var/yomitori/data/indices/keyword"
	}
	if cfg.Storage.DocumentsDir == "" {
		cfg.Storage.DocumentsDir = "/usr/local/var/yomitori/data/documents"
	}
	if cfg.Embedding.DefaultModel == "" {
		cfg.Embedding.DefaultModel = "mock"
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.CacheTTLMinutes == 0 {
		cfg.Embedding.CacheTTLMinutes = 24 * 60
	}
	if cfg.Embedding.OpenAIModel == "" {
		cfg.Embedding.OpenAIModel = "text-embedding-3-small"
	}
	if cfg.Embedding.GoogleModel == "" {
		cfg.Embedding.GoogleModel = "gemini-embedding-001"
	}
	if cfg.Embedding.LocalDimensions == 0 {
		cfg.Embedding.LocalDimensions = 384
	}
	if cfg.Embedding.LocalMaxTokens == 0 {
		cfg.Embedding.LocalMaxTokens = 256
	}
	if cfg.Indexer.ScanIntervalMinutes == 0 {
		cfg.Indexer.ScanIntervalMinutes = 15
	}
	if cfg.Indexer.BatchSize == 0 {
		cfg.Indexer.BatchSize = 10
	}
	if cfg.Indexer.MaxConcurrentJobs == 0 {
		cfg.Indexer.MaxConcurrentJobs = 5
	}
	if cfg.Indexer.RetryAttempts == 0 {
		cfg.Indexer.RetryAttempts = 3
	}
	if cfg.Indexer.RetryDelayMinutes == 0 {
		cfg.Indexer.RetryDelayMinutes = 5
	}
	if cfg.Indexer.MaxFileSizeMB == 0 {
		cfg.Indexer.MaxFileSizeMB = 50
	}
	if cfg.Indexer.FileTypes == nil {
		cfg.Indexer.FileTypes = []string{"pdf", "jpg", "jpeg", "png", "tiff"}
	}
	if cfg.RAG.DefaultTopK == 0 {
		cfg.RAG.DefaultTopK = 5
	}
	if cfg.RAG.DefaultThreshold == 0 {
		cfg.RAG.DefaultThreshold = 0.7
	}
	if cfg.RAG.QueryCacheSize == 0 {
		cfg.RAG.QueryCacheSize = 1000
	}
	if cfg.RAG.AuditRetentionDays == 0 {
		cfg.RAG.AuditRetentionDays = 90
	}
	if cfg.Watch.DebounceSeconds == 0 {
		cfg.Watch.DebounceSeconds = 5
	}
}
