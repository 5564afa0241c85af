// Package router decides and runs the extraction path for each document:
// layout pre-routing, feature extraction, classification, dispatch to
// extraction sources, and consensus when multiple sources ran.
package router

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hyperjump/yomitori/internal/classifier"
	"github.com/hyperjump/yomitori/internal/consensus"
	"github.com/hyperjump/yomitori/internal/features"
	"github.com/hyperjump/yomitori/internal/models"
	"go.uber.org/zap"
)

// Document is the routing input: raw bytes plus whatever text extraction
// already produced.
type Document struct {
	TenantID   int64
	DocumentID int64
	FileName   string
	FileType   string
	DocType    string
	Content    []byte
	Text       string
}

// Source is one external extraction engine. Implementations are black boxes
// to the router; they only need a stable name and an extraction call.
type Source interface {
	Name() string
	Extract(ctx context.Context, doc Document) (*models.ExtractionResult, error)
}

// PipelineInfo describes one registered pipeline.
type PipelineInfo struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Sources     []string `json:"sources"`
}

var pipelineDescriptions = map[string]string{
	classifier.PipelineBasic:     "plain text extraction from a single source",
	classifier.PipelineVision:    "vision-capable extraction for visual and tabular documents",
	classifier.PipelineConsensus: "multiple extraction sources merged by confidence-weighted consensus",
}

// TenantStats are the per-tenant routing counters.
type TenantStats struct {
	TotalRouted     int64            `json:"totalRouted"`
	Failures        int64            `json:"failures"`
	ByPipeline      map[string]int64 `json:"byPipeline"`
	AvgProcessingMs float64          `json:"avgProcessingMs"`
	totalTimeMs     int64
}

// Router routes documents to extraction pipelines.
type Router struct {
	features   *features.Extractor
	classifier *classifier.Classifier
	consensus  *consensus.Engine

	sourcesMu sync.RWMutex
	sources   map[string][]Source

	statsMu sync.Mutex
	stats   map[int64]*TenantStats

	logger *zap.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets a logger for routing decisions.
func WithLogger(l *zap.Logger) Option {
	return func(r *Router) { r.logger = l }
}

// NewRouter creates a router over the given classifier and consensus engine.
func NewRouter(fx *features.Extractor, cl *classifier.Classifier, ce *consensus.Engine, opts ...Option) *Router {
	r := &Router{
		features:   fx,
		classifier: cl,
		consensus:  ce,
		sources:    make(map[string][]Source),
		stats:      make(map[int64]*TenantStats),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RegisterSource attaches an extraction source to a pipeline. Registration
// order is the consensus tie-break order, so register the most trusted
// source first.
func (r *Router) RegisterSource(pipeline string, s Source) {
	r.sourcesMu.Lock()
	defer r.sourcesMu.Unlock()
	r.sources[pipeline] = append(r.sources[pipeline], s)
}

// Route classifies and extracts one document. The returned envelope always
// carries the pipeline and timing; Success is false when extraction failed.
func (r *Router) Route(ctx context.Context, doc Document) *models.RoutingResult {
	start := time.Now()
	result := &models.RoutingResult{
		TenantID:   doc.TenantID,
		DocumentID: doc.DocumentID,
	}

	var hints features.Hints
	shortCircuit := false
	if doc.FileType == "pdf" && len(doc.Content) > 0 {
		if layout, err := AnalyzeLayout(doc.Content); err == nil {
			hints = features.Hints{
				PageCount:  layout.PageCount,
				ImageCount: layout.ImageCount,
				TableCount: layout.TableRowCount,
			}
			shortCircuit = layout.ShortCircuit
		} else if r.logger != nil {
			r.logger.Debug("layout scan failed, continuing without hints",
				zap.Int64("document_id", doc.DocumentID), zap.Error(err))
		}
	}

	feats := r.features.Extract(doc.Text, doc.FileType, hints)
	result.Features = &feats

	var decision *models.RoutingDecision
	if shortCircuit {
		decision = &models.RoutingDecision{
			Pipeline:      classifier.PipelineBasic,
			Confidence:    0.9,
			Reasoning:     []string{"plain text layout, classification skipped"},
			Priority:      "low",
			EstimatedTime: 1000,
		}
	} else {
		var err error
		decision, err = r.classifier.Classify(feats)
		if err != nil {
			// Classification failure routes to basic rather than failing
			// the document.
			decision = &models.RoutingDecision{
				Pipeline:   classifier.PipelineBasic,
				Confidence: 0,
				Reasoning:  []string{fmt.Sprintf("classification failed (%v), basic fallback", err)},
				Priority:   "low",
			}
			if r.logger != nil {
				r.logger.Warn("classification failed",
					zap.Int64("tenant_id", doc.TenantID),
					zap.Int64("document_id", doc.DocumentID),
					zap.Error(err))
			}
		}
	}
	result.Decision = decision
	result.Pipeline = decision.Pipeline

	extraction, cons, err := r.dispatch(ctx, decision, doc)
	result.ProcessingTime = time.Since(start).Milliseconds()
	if err != nil {
		result.Error = err.Error()
		r.record(doc.TenantID, decision.Pipeline, result.ProcessingTime, false)
		return result
	}
	result.Success = true
	result.Extraction = extraction
	result.Consensus = cons
	r.record(doc.TenantID, decision.Pipeline, result.ProcessingTime, true)

	if r.logger != nil {
		r.logger.Debug("document routed",
			zap.Int64("tenant_id", doc.TenantID),
			zap.Int64("document_id", doc.DocumentID),
			zap.String("pipeline", decision.Pipeline),
			zap.Int64("elapsed_ms", result.ProcessingTime))
	}
	return result
}

// RouteBatch routes documents independently: one failure never aborts the
// rest. Results are returned in input order.
func (r *Router) RouteBatch(ctx context.Context, docs []Document) []*models.RoutingResult {
	out := make([]*models.RoutingResult, len(docs))
	for i, doc := range docs {
		out[i] = r.Route(ctx, doc)
	}
	return out
}

// dispatch runs the pipeline's sources and merges their results. All sources
// finish before consensus runs (join barrier).
func (r *Router) dispatch(ctx context.Context, decision *models.RoutingDecision, doc Document) (*models.ExtractionResult, *models.ConsensusResult, error) {
	r.sourcesMu.RLock()
	sources := append([]Source(nil), r.sources[decision.Pipeline]...)
	if len(sources) == 0 && decision.Pipeline != classifier.PipelineBasic {
		sources = append(sources, r.sources[classifier.PipelineBasic]...)
	}
	r.sourcesMu.RUnlock()

	if len(sources) == 0 {
		return nil, nil, fmt.Errorf("no extraction sources registered for pipeline %s", decision.Pipeline)
	}

	type outcome struct {
		result *models.ExtractionResult
		err    error
	}
	outcomes := make([]outcome, len(sources))
	var wg sync.WaitGroup
	for i, src := range sources {
		wg.Add(1)
		go func(i int, src Source) {
			defer wg.Done()
			res, err := src.Extract(ctx, doc)
			if err == nil && res != nil && res.Source == "" {
				res.Source = src.Name()
			}
			outcomes[i] = outcome{result: res, err: err}
		}(i, src)
	}
	wg.Wait()

	var results []models.ExtractionResult
	var firstErr error
	for i, o := range outcomes {
		if o.err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("source %s: %w", sources[i].Name(), o.err)
			}
			if r.logger != nil {
				r.logger.Warn("extraction source failed",
					zap.String("source", sources[i].Name()),
					zap.Int64("document_id", doc.DocumentID),
					zap.Error(o.err))
			}
			continue
		}
		if o.result != nil {
			results = append(results, *o.result)
		}
	}
	if len(results) == 0 {
		if firstErr != nil {
			return nil, nil, firstErr
		}
		return nil, nil, fmt.Errorf("all extraction sources returned nothing")
	}

	if decision.UseConsensus && len(results) > 1 {
		cons, err := r.consensus.BuildAndStore(doc.TenantID, doc.DocumentID, doc.DocType, results)
		if err != nil {
			return nil, nil, fmt.Errorf("consensus: %w", err)
		}
		return &results[0], cons, nil
	}
	return &results[0], nil, nil
}

// AvailablePipelines lists the registered pipelines with their sources.
func (r *Router) AvailablePipelines() []PipelineInfo {
	r.sourcesMu.RLock()
	defer r.sourcesMu.RUnlock()
	out := make([]PipelineInfo, 0, 3)
	for _, name := range []string{classifier.PipelineBasic, classifier.PipelineVision, classifier.PipelineConsensus} {
		info := PipelineInfo{Name: name, Description: pipelineDescriptions[name]}
		for _, s := range r.sources[name] {
			info.Sources = append(info.Sources, s.Name())
		}
		out = append(out, info)
	}
	return out
}

// Stats returns a copy of the tenant's routing counters.
func (r *Router) Stats(tenantID int64) TenantStats {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()
	s, ok := r.stats[tenantID]
	if !ok {
		return TenantStats{ByPipeline: map[string]int64{}}
	}
	out := TenantStats{
		TotalRouted: s.TotalRouted,
		Failures:    s.Failures,
		ByPipeline:  make(map[string]int64, len(s.ByPipeline)),
	}
	for k, v := range s.ByPipeline {
		out.ByPipeline[k] = v
	}
	if s.TotalRouted > 0 {
		out.AvgProcessingMs = float64(s.totalTimeMs) / float64(s.TotalRouted)
	}
	return out
}

func (r *Router) record(tenantID int64, pipeline string, elapsedMs int64, success bool) {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()
	s, ok := r.stats[tenantID]
	if !ok {
		s = &TenantStats{ByPipeline: make(map[string]int64)}
		r.stats[tenantID] = s
	}
	s.TotalRouted++
	s.ByPipeline[pipeline]++
	s.totalTimeMs += elapsedMs
	if !success {
		s.Failures++
	}
}
