package consensus

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/hyperjump/yomitori/internal/models"
	"go.uber.org/zap"
)

// ErrNoExtractionResults is returned when consensus is requested with no input.
var ErrNoExtractionResults = errors.New("no extraction results to merge")

// descriptionSimilarityThreshold groups line items whose normalized
// descriptions are this similar or better.
const descriptionSimilarityThreshold = 0.8

// Consensus method labels.
const (
	MethodSingleSource = "single_source"
	MethodWeightedVote = "confidence_weighted_vote"
)

// Engine builds consensus results and optionally persists them.
type Engine struct {
	store  *Store
	logger *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets a logger for merge decisions.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithStore attaches persistent storage for consensus results.
func WithStore(s *Store) Option {
	return func(e *Engine) { e.store = s }
}

// NewEngine returns a consensus engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Build merges results for one document. Results are treated in slice order;
// order is part of the deterministic tie-break, so callers must pass sources
// in a stable order.
func (e *Engine) Build(tenantID, documentID int64, docType string, results []models.ExtractionResult) (*models.ConsensusResult, error) {
	start := time.Now()
	if len(results) == 0 {
		return nil, fmt.Errorf("tenant %d document %d: %w", tenantID, documentID, ErrNoExtractionResults)
	}

	class := models.ClassForDocumentType(docType)

	if len(results) == 1 {
		r := results[0]
		items := make([]models.LineItem, len(r.LineItems))
		for i, item := range r.LineItems {
			item.Confidence = r.Confidence
			item.Sources = []string{r.Source}
			items[i] = item
		}
		out := &models.ConsensusResult{
			TenantID:        tenantID,
			DocumentID:      documentID,
			Data:            models.SplitFields(class, r.Data).Flatten(),
			Fields:          singleSourceFields(r),
			LineItems:       items,
			Confidence:      r.Confidence,
			ConsensusMethod: MethodSingleSource,
			SourceCount:     1,
			ProcessingTime:  time.Since(start).Milliseconds(),
			CreatedAt:       time.Now(),
		}
		return out, nil
	}

	fields := mergeFields(results)
	data := make(map[string]interface{}, len(fields))
	var confSum float64
	for k, fc := range fields {
		data[k] = fc.Value
		confSum += fc.Confidence
	}
	confidence := 0.0
	if len(fields) > 0 {
		confidence = confSum / float64(len(fields))
	}

	out := &models.ConsensusResult{
		TenantID:        tenantID,
		DocumentID:      documentID,
		Data:            models.SplitFields(class, data).Flatten(),
		Fields:          fields,
		LineItems:       mergeLineItems(results),
		Confidence:      confidence,
		ConsensusMethod: MethodWeightedVote,
		SourceCount:     len(results),
		ProcessingTime:  time.Since(start).Milliseconds(),
		CreatedAt:       time.Now(),
	}
	if e.logger != nil {
		e.logger.Debug("consensus built",
			zap.Int64("tenant_id", tenantID),
			zap.Int64("document_id", documentID),
			zap.Int("sources", len(results)),
			zap.Int("fields", len(fields)),
			zap.Float64("confidence", confidence))
	}
	return out, nil
}

// BuildAndStore builds consensus and upserts it, keyed on (tenant, document),
// so repeated runs are idempotent.
func (e *Engine) BuildAndStore(tenantID, documentID int64, docType string, results []models.ExtractionResult) (*models.ConsensusResult, error) {
	out, err := e.Build(tenantID, documentID, docType, results)
	if err != nil {
		return nil, err
	}
	if e.store != nil {
		if err := e.store.Upsert(out); err != nil {
			return nil, fmt.Errorf("store consensus for tenant %d document %d: %w", tenantID, documentID, err)
		}
	}
	return out, nil
}

func singleSourceFields(r models.ExtractionResult) map[string]models.FieldConsensus {
	out := make(map[string]models.FieldConsensus, len(r.Data))
	for k, v := range r.Data {
		if v == nil {
			continue
		}
		out[k] = models.FieldConsensus{
			Value:      v,
			Confidence: r.Confidence,
			Sources:    []string{r.Source},
			Agreement:  true,
		}
	}
	return out
}

// candidate is one distinct value proposed for a field.
type candidate struct {
	value       interface{}
	key         string
	sumConf     float64
	maxConf     float64
	firstSource int // index of the earliest source proposing this value
	sources     []string
}

// mergeFields runs the confidence-weighted vote per field over the union of
// keys. Ties resolve by summed confidence, then the highest individual
// confidence, then source order.
func mergeFields(results []models.ExtractionResult) map[string]models.FieldConsensus {
	type proposal struct {
		value  interface{}
		conf   float64
		source string
		order  int
	}
	byField := make(map[string][]proposal)
	for i, r := range results {
		for k, v := range r.Data {
			if v == nil {
				continue
			}
			byField[k] = append(byField[k], proposal{value: v, conf: r.Confidence, source: r.Source, order: i})
		}
	}

	out := make(map[string]models.FieldConsensus, len(byField))
	for field, proposals := range byField {
		candidates := make(map[string]*candidate)
		var order []string
		for _, p := range proposals {
			key := valueKey(p.value)
			c, ok := candidates[key]
			if !ok {
				c = &candidate{value: p.value, key: key, maxConf: -1, firstSource: p.order}
				candidates[key] = c
				order = append(order, key)
			}
			c.sumConf += p.conf
			if p.conf > c.maxConf {
				c.maxConf = p.conf
			}
			if p.order < c.firstSource {
				c.firstSource = p.order
			}
			c.sources = append(c.sources, p.source)
		}

		if len(candidates) == 1 {
			c := candidates[order[0]]
			out[field] = models.FieldConsensus{
				Value:      c.value,
				Confidence: c.sumConf / float64(len(c.sources)),
				Sources:    c.sources,
				Agreement:  len(c.sources) == len(results),
			}
			continue
		}

		ranked := make([]*candidate, 0, len(candidates))
		for _, key := range order {
			ranked = append(ranked, candidates[key])
		}
		sort.SliceStable(ranked, func(i, j int) bool {
			if ranked[i].sumConf != ranked[j].sumConf {
				return ranked[i].sumConf > ranked[j].sumConf
			}
			if ranked[i].maxConf != ranked[j].maxConf {
				return ranked[i].maxConf > ranked[j].maxConf
			}
			return ranked[i].firstSource < ranked[j].firstSource
		})
		winner := ranked[0]
		out[field] = models.FieldConsensus{
			Value:      winner.value,
			Confidence: winner.maxConf,
			Sources:    winner.sources,
			Agreement:  false,
		}
	}
	return out
}

// valueKey normalizes a value for equality grouping: strings are trimmed and
// lowercased, numbers are compared at two decimal places.
func valueKey(v interface{}) string {
	switch t := v.(type) {
	case string:
		return "s:" + strings.ToLower(strings.TrimSpace(t))
	case float64:
		return fmt.Sprintf("n:%.2f", t)
	case float32:
		return fmt.Sprintf("n:%.2f", float64(t))
	case int:
		return fmt.Sprintf("n:%.2f", float64(t))
	case int64:
		return fmt.Sprintf("n:%.2f", float64(t))
	case bool:
		return fmt.Sprintf("b:%t", t)
	default:
		return fmt.Sprintf("v:%v", t)
	}
}

// lineItemGroup accumulates near-duplicate line items across sources.
type lineItemGroup struct {
	norm    string
	best    models.LineItem
	conf    float64
	sumConf float64
	n       int
	sources []string
}

func (g *lineItemGroup) addSource(name string) {
	for _, s := range g.sources {
		if s == name {
			return
		}
	}
	g.sources = append(g.sources, name)
}

// mergeLineItems groups items by similar normalized description and rounded
// amount, keeping the highest-confidence variant of each group. Each merged
// item carries the union of contributing sources and the average of their
// confidences.
func mergeLineItems(results []models.ExtractionResult) []models.LineItem {
	var groups []*lineItemGroup
	for _, r := range results {
		for _, item := range r.LineItems {
			norm := normalizeDescription(item.Description)
			var found *lineItemGroup
			for _, g := range groups {
				sameAmount := math.Abs(g.best.Amount-item.Amount) < 0.005
				if sameAmount && Similarity(g.norm, norm) >= descriptionSimilarityThreshold {
					found = g
					break
				}
			}
			if found == nil {
				g := &lineItemGroup{norm: norm, best: item, conf: r.Confidence, sumConf: r.Confidence, n: 1}
				g.addSource(r.Source)
				groups = append(groups, g)
				continue
			}
			found.sumConf += r.Confidence
			found.n++
			found.addSource(r.Source)
			if r.Confidence > found.conf {
				found.best = item
				found.conf = r.Confidence
			}
		}
	}
	if len(groups) == 0 {
		return nil
	}
	out := make([]models.LineItem, len(groups))
	for i, g := range groups {
		out[i] = g.best
		out[i].Confidence = g.sumConf / float64(g.n)
		out[i].Sources = g.sources
	}
	return out
}
