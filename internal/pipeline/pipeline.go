// Package pipeline turns extracted documents into searchable embeddings:
// embed, upsert into the vector store, and index for keyword lookup.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hyperjump/yomitori/internal/embedding"
	"github.com/hyperjump/yomitori/internal/keyword"
	"github.com/hyperjump/yomitori/internal/models"
	"github.com/hyperjump/yomitori/internal/vectorstore"
	"go.uber.org/zap"
)

// ErrInFlight is returned when the same document is already being processed.
var ErrInFlight = errors.New("document is already being processed")

// Document is one unit of pipeline work.
type Document struct {
	TenantID   int64
	DocumentID int64
	DocType    string
	FileName   string
	FileSize   int64
	ModTime    time.Time
	Content    models.DocumentContent
}

// Stats are the pipeline's lifetime counters.
type Stats struct {
	Processed int64 `json:"processed"`
	Skipped   int64 `json:"skipped"`
	Failed    int64 `json:"failed"`
	InFlight  int   `json:"inFlight"`
}

// BatchResult summarizes one batch run.
type BatchResult struct {
	Processed int      `json:"processed"`
	Skipped   int      `json:"skipped"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
}

// Pipeline wires the embedding service to the vector store and keyword index.
type Pipeline struct {
	service *embedding.Service
	store   *vectorstore.Store
	keyword *keyword.Index
	model   string
	logger  *zap.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}
	stats    Stats
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets a logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithKeywordIndex enables keyword indexing alongside vector upserts.
func WithKeywordIndex(idx *keyword.Index) Option {
	return func(p *Pipeline) { p.keyword = idx }
}

// WithModel sets the embedding model used for all documents. Empty means the
// service default.
func WithModel(model string) Option {
	return func(p *Pipeline) { p.model = model }
}

// NewPipeline creates a pipeline over the given service and store.
func NewPipeline(service *embedding.Service, store *vectorstore.Store, opts ...Option) *Pipeline {
	p := &Pipeline{
		service:  service,
		store:    store,
		inFlight: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ProcessDocument embeds one document and upserts it. Re-running on the same
// document replaces the stored row, never duplicates it. A concurrent call
// for the same (tenant, document) pair fails with ErrInFlight.
func (p *Pipeline) ProcessDocument(ctx context.Context, doc Document) (*models.DocumentEmbedding, error) {
	key := inFlightKey(doc.TenantID, doc.DocumentID)
	p.mu.Lock()
	if _, busy := p.inFlight[key]; busy {
		p.mu.Unlock()
		return nil, ErrInFlight
	}
	p.inFlight[key] = struct{}{}
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.inFlight, key)
		p.mu.Unlock()
	}()

	result, err := p.service.GenerateEmbedding(ctx, doc.Content, p.model)
	if err != nil {
		p.count(func(s *Stats) { s.Failed++ })
		return nil, fmt.Errorf("embed document %d: %w", doc.DocumentID, err)
	}

	emb := &models.DocumentEmbedding{
		TenantID:     doc.TenantID,
		DocumentID:   doc.DocumentID,
		DocumentType: doc.DocType,
		FileName:     doc.FileName,
		ContentText:  doc.Content.Content,
		Embedding:    result.Embedding,
		Model:        strings.TrimSuffix(result.Model, " (cached)"),
		FileSize:     doc.FileSize,
		ModTime:      doc.ModTime,
	}
	if _, err := p.store.Upsert(ctx, emb); err != nil {
		p.count(func(s *Stats) { s.Failed++ })
		return nil, fmt.Errorf("store embedding for document %d: %w", doc.DocumentID, err)
	}

	if p.keyword != nil {
		if err := p.keyword.Index(ctx, doc.TenantID, doc.DocumentID, doc.DocType, doc.FileName, doc.Content.Content); err != nil {
			// Keyword indexing is an assist; vector search still works
			// without it.
			if p.logger != nil {
				p.logger.Warn("keyword indexing failed",
					zap.Int64("tenant_id", doc.TenantID),
					zap.Int64("document_id", doc.DocumentID),
					zap.Error(err))
			}
		}
	}

	p.count(func(s *Stats) { s.Processed++ })
	if p.logger != nil {
		p.logger.Debug("document embedded",
			zap.Int64("tenant_id", doc.TenantID),
			zap.Int64("document_id", doc.DocumentID),
			zap.String("model", emb.Model),
			zap.Bool("cached", result.Cached))
	}
	return emb, nil
}

// ProcessDocumentsBatch processes documents independently: one failure never
// aborts the rest.
func (p *Pipeline) ProcessDocumentsBatch(ctx context.Context, docs []Document) *BatchResult {
	out := &BatchResult{}
	for _, doc := range docs {
		if _, err := p.ProcessDocument(ctx, doc); err != nil {
			if errors.Is(err, ErrInFlight) {
				out.Skipped++
				continue
			}
			out.Failed++
			out.Errors = append(out.Errors, fmt.Sprintf("document %d: %v", doc.DocumentID, err))
			continue
		}
		out.Processed++
	}
	return out
}

// ProcessAllPendingDocuments embeds every candidate that has no stored
// embedding yet, or whose file changed since it was embedded.
func (p *Pipeline) ProcessAllPendingDocuments(ctx context.Context, candidates []Document) (*BatchResult, error) {
	out := &BatchResult{}
	for _, doc := range candidates {
		pending, err := p.isPending(ctx, doc)
		if err != nil {
			return out, err
		}
		if !pending {
			out.Skipped++
			p.count(func(s *Stats) { s.Skipped++ })
			continue
		}
		if _, err := p.ProcessDocument(ctx, doc); err != nil {
			if errors.Is(err, ErrInFlight) {
				out.Skipped++
				continue
			}
			out.Failed++
			out.Errors = append(out.Errors, fmt.Sprintf("document %d: %v", doc.DocumentID, err))
			continue
		}
		out.Processed++
	}
	return out, nil
}

// Stats returns a snapshot of the counters.
func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.stats
	s.InFlight = len(p.inFlight)
	return s
}

func (p *Pipeline) isPending(ctx context.Context, doc Document) (bool, error) {
	existing, err := p.store.Get(ctx, doc.TenantID, doc.DocumentID)
	if err != nil {
		return false, fmt.Errorf("check document %d: %w", doc.DocumentID, err)
	}
	if existing == nil {
		return true, nil
	}
	changed := existing.FileSize != doc.FileSize || !existing.ModTime.Equal(doc.ModTime)
	return changed, nil
}

func (p *Pipeline) count(update func(*Stats)) {
	p.mu.Lock()
	update(&p.stats)
	p.mu.Unlock()
}

func inFlightKey(tenantID, documentID int64) string {
	return fmt.Sprintf("%d:%d", tenantID, documentID)
}
