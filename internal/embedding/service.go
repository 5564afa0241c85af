package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/hyperjump/yomitori/internal/models"
	"go.uber.org/zap"
)

const (
	defaultCacheTTL      = 24 * time.Hour
	defaultCacheCapacity = 10000
	maxContentChars      = 4000
)

// metadataKeys are the metadata fields included in embedding input, in a
// fixed order so the content hash is stable.
var metadataKeys = []string{"vendor", "issuer", "category", "description", "amount", "currency"}

// Result is one embedding generation outcome. Model carries a "(cached)"
// suffix when the vector came from the cache.
type Result struct {
	Embedding      []float32 `json:"-"`
	Dimensions     int       `json:"dimensions"`
	Model          string    `json:"model"`
	ContentHash    string    `json:"contentHash"`
	Cached         bool      `json:"cached"`
	ProcessingTime int64     `json:"processingTimeMs"`
}

// Service generates embeddings through registered backends with a
// content-hash TTL cache in front.
type Service struct {
	registry     *Registry
	cache        *Cache
	defaultModel string
	logger       *zap.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets a logger for cache and backend events.
func WithLogger(l *zap.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// WithCache replaces the default cache (24h TTL, 10k entries).
func WithCache(c *Cache) ServiceOption {
	return func(s *Service) { s.cache = c }
}

// WithDefaultModel sets the model used when a request names none.
func WithDefaultModel(model string) ServiceOption {
	return func(s *Service) { s.defaultModel = model }
}

// NewService returns an embedding service over the given registry.
func NewService(registry *Registry, opts ...ServiceOption) *Service {
	s := &Service{
		registry:     registry,
		cache:        NewCache(defaultCacheCapacity, defaultCacheTTL),
		defaultModel: ModelSentenceTransformers,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GenerateEmbedding embeds a document's prepared text with the named model.
// Identical content within the cache TTL is served from cache and marked with
// the "(cached)" model suffix.
func (s *Service) GenerateEmbedding(ctx context.Context, content models.DocumentContent, model string) (*Result, error) {
	start := time.Now()
	if model == "" {
		model = s.defaultModel
	}
	backend, err := s.registry.Get(model)
	if err != nil {
		return nil, err
	}

	text := PrepareText(content)
	hash := ContentHash(text)
	cacheKey := model + ":" + hash

	if cached, ok := s.cache.Get(cacheKey); ok {
		if s.logger != nil {
			s.logger.Debug("embedding cache hit", zap.String("model", model), zap.String("hash", hash[:12]))
		}
		return &Result{
			Embedding:      cached,
			Dimensions:     len(cached),
			Model:          model + " (cached)",
			ContentHash:    hash,
			Cached:         true,
			ProcessingTime: time.Since(start).Milliseconds(),
		}, nil
	}

	vec, err := backend.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed with %s: %w", model, err)
	}
	s.cache.Set(cacheKey, vec)

	return &Result{
		Embedding:      vec,
		Dimensions:     len(vec),
		Model:          model,
		ContentHash:    hash,
		ProcessingTime: time.Since(start).Milliseconds(),
	}, nil
}

// EmbedQuery embeds raw query text with the named model, bypassing document
// preparation but sharing the cache.
func (s *Service) EmbedQuery(ctx context.Context, query, model string) (*Result, error) {
	return s.GenerateEmbedding(ctx, models.DocumentContent{Content: query}, model)
}

// Models returns the available model names.
func (s *Service) Models() []string {
	return s.registry.Models()
}

// CacheStats returns cache counters.
func (s *Service) CacheStats() CacheStats {
	return s.cache.Stats()
}

// ClearCache drops all cached embeddings.
func (s *Service) ClearCache() {
	s.cache.Clear()
}

// PrepareText builds the embedding input from document content: title, type,
// content capped at 4000 characters, and selected metadata, joined by blank
// lines.
func PrepareText(c models.DocumentContent) string {
	var parts []string
	if c.Title != "" {
		parts = append(parts, "Title: "+c.Title)
	}
	if c.Type != "" {
		parts = append(parts, "Type: "+c.Type)
	}
	if c.Content != "" {
		content := c.Content
		if len(content) > maxContentChars {
			content = content[:maxContentChars]
		}
		parts = append(parts, "Content: "+content)
	}
	if len(c.Metadata) > 0 {
		var meta []string
		for _, key := range metadataKeys {
			if v, ok := c.Metadata[key]; ok && v != nil {
				meta = append(meta, fmt.Sprintf("%s: %v", key, v))
			}
		}
		if len(meta) > 0 {
			parts = append(parts, "Metadata: "+strings.Join(meta, ", "))
		}
	}
	return strings.Join(parts, "\n\n")
}

// ContentHash returns the hex sha256 of the prepared text.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
