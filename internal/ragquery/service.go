// Package ragquery answers natural-language queries over a tenant's indexed
// documents: embed the query, rank by cosine similarity, highlight matches,
// and log every query to the audit trail.
package ragquery

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/yomitori/internal/audit"
	"github.com/hyperjump/yomitori/internal/embedding"
	"github.com/hyperjump/yomitori/internal/keyword"
	"github.com/hyperjump/yomitori/internal/models"
	"github.com/hyperjump/yomitori/internal/vectorstore"
)

const (
	defaultTopK      = 5
	defaultThreshold = 0.7
	statsWindow      = 24 * time.Hour

	// keywordBoost nudges presentation order toward documents with exact
	// term matches without touching the reported similarity.
	keywordBoost = 0.02

	auditTimeout = 5 * time.Second
)

// ErrEmptyQuery is returned for blank query text.
var ErrEmptyQuery = errors.New("query text is empty")

// Service is the RAG query engine.
type Service struct {
	embeddings *embedding.Service
	store      *vectorstore.Store
	keyword    *keyword.Index
	auditLog   *audit.Log
	cache      *queryCache
	model      string
	topK       int
	threshold  float64
	cacheSize  int
	logger     *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets a logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithKeywordIndex enables exact-term re-ranking.
func WithKeywordIndex(idx *keyword.Index) Option {
	return func(s *Service) { s.keyword = idx }
}

// WithAuditLog enables query logging. Logging runs off the request path and
// never fails a query.
func WithAuditLog(l *audit.Log) Option {
	return func(s *Service) { s.auditLog = l }
}

// WithModel sets the embedding model for queries. Empty means the embedding
// service default.
func WithModel(model string) Option {
	return func(s *Service) { s.model = model }
}

// WithDefaults overrides the default topK and similarity threshold applied
// when a query leaves them unset. Zero values keep the built-in defaults.
func WithDefaults(topK int, threshold float64) Option {
	return func(s *Service) {
		if topK > 0 {
			s.topK = topK
		}
		if threshold > 0 {
			s.threshold = threshold
		}
	}
}

// WithCacheSize sets the query cache capacity.
func WithCacheSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.cacheSize = n
		}
	}
}

// NewService creates a query service over the given embedding service and
// vector store.
func NewService(embeddings *embedding.Service, store *vectorstore.Store, opts ...Option) *Service {
	s := &Service{
		embeddings: embeddings,
		store:      store,
		topK:       defaultTopK,
		threshold:  defaultThreshold,
		cacheSize:  queryCacheMaxSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.cache = newQueryCache(s.cacheSize, queryCacheTTL)
	return s
}

// Query answers one retrieval request. Identical requests within the cache
// TTL are served from cache with a "(cached)" model marker.
func (s *Service) Query(ctx context.Context, q models.RAGQuery) (*models.RAGResponse, error) {
	start := time.Now()
	if strings.TrimSpace(q.Query) == "" {
		return nil, ErrEmptyQuery
	}
	if q.TopK <= 0 {
		q.TopK = s.topK
	}
	if q.Threshold <= 0 {
		q.Threshold = s.threshold
	}

	key := cacheKey(q)
	if cached, ok := s.cache.get(key); ok {
		resp := *cached
		if !strings.HasSuffix(resp.Model, " (cached)") {
			resp.Model = resp.Model + " (cached)"
		}
		resp.ProcessingTime = time.Since(start).Milliseconds()
		s.recordAudit(q, &resp, true)
		return &resp, nil
	}

	embResult, err := s.embeddings.EmbedQuery(ctx, q.Query, s.model)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := s.store.FindSimilar(ctx, q.TenantID, embResult.Embedding, q.TopK, q.Threshold)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	s.rerank(ctx, q, hits)

	results := make([]models.RAGResult, 0, len(hits))
	for _, hit := range hits {
		r := models.RAGResult{
			DocumentID:       hit.DocumentID,
			DocumentType:     hit.DocumentType,
			FileName:         hit.FileName,
			Similarity:       hit.Similarity,
			HighlightedMatch: snippetFor(hit.ContentText, q.Query),
		}
		if q.IncludeContent {
			r.Content = truncateAtWord(hit.ContentText, snippetMaxLength)
		}
		if q.IncludeMetadata {
			r.Metadata = map[string]interface{}{
				"model":    hit.Model,
				"fileSize": hit.FileSize,
				"modTime":  hit.ModTime,
			}
		}
		results = append(results, r)
	}

	resp := &models.RAGResponse{
		Query:          q.Query,
		Results:        results,
		TotalResults:   len(results),
		Model:          strings.TrimSuffix(embResult.Model, " (cached)"),
		ProcessingTime: time.Since(start).Milliseconds(),
	}
	s.cache.set(key, resp)
	s.recordAudit(q, resp, false)
	return resp, nil
}

// rerank moves documents with exact keyword matches ahead of near-equal
// vector hits. Similarity values are left untouched.
func (s *Service) rerank(ctx context.Context, q models.RAGQuery, hits []*models.SimilarDocument) {
	if s.keyword == nil || len(hits) < 2 {
		return
	}
	kwHits, err := s.keyword.Search(ctx, q.TenantID, q.Query, len(hits)*2)
	if err != nil {
		if s.logger != nil {
			s.logger.Debug("keyword assist failed", zap.Error(err))
		}
		return
	}
	exact := make(map[int64]bool, len(kwHits))
	for _, h := range kwHits {
		exact[h.DocumentID] = true
	}
	sort.SliceStable(hits, func(i, j int) bool {
		si, sj := hits[i].Similarity, hits[j].Similarity
		if exact[hits[i].DocumentID] {
			si += keywordBoost
		}
		if exact[hits[j].DocumentID] {
			sj += keywordBoost
		}
		return si > sj
	})
}

// recordAudit logs the query without blocking the response. Failures are
// logged and dropped.
func (s *Service) recordAudit(q models.RAGQuery, resp *models.RAGResponse, cacheHit bool) {
	if s.auditLog == nil {
		return
	}
	entry := &models.AuditEntry{
		TenantID:       q.TenantID,
		UserID:         q.UserID,
		SessionID:      q.SessionID,
		UserAgent:      q.UserAgent,
		IPAddress:      q.IPAddress,
		QueryText:      q.Query,
		QueryType:      "rag_search",
		TotalResults:   resp.TotalResults,
		ResponseTime:   resp.ProcessingTime,
		EmbeddingModel: strings.TrimSuffix(resp.Model, " (cached)"),
		CacheHit:       cacheHit,
	}
	for _, r := range resp.Results {
		entry.DocumentIDs = append(entry.DocumentIDs, r.DocumentID)
		entry.Similarities = append(entry.Similarities, r.Similarity)
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), auditTimeout)
		defer cancel()
		if err := s.auditLog.Record(ctx, entry); err != nil && s.logger != nil {
			s.logger.Warn("audit record failed", zap.Error(err))
		}
	}()
}

// GetStats summarizes the tenant's queries over the last 24 hours.
func (s *Service) GetStats(ctx context.Context, tenantID int64) (*models.RAGStats, error) {
	if s.auditLog == nil {
		return &models.RAGStats{Window: statsWindow.String()}, nil
	}
	return s.auditLog.Stats(ctx, tenantID, statsWindow)
}

// CacheStats returns the query cache counters.
func (s *Service) CacheStats() CacheStats {
	return s.cache.stats()
}

// ClearCache drops all cached responses.
func (s *Service) ClearCache() {
	s.cache.clear()
}
