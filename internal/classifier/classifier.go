// Package classifier decides which extraction pipeline a document should take.
// It scores the feature vector with trainable weights and falls back to fixed
// rules until enough training samples have been seen.
package classifier

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/hyperjump/yomitori/internal/models"
	"go.uber.org/zap"
)

// ErrInvalidFeatures is returned when a feature vector is out of range.
var ErrInvalidFeatures = errors.New("invalid document features")

// Pipeline names, in increasing order of cost.
const (
	PipelineBasic     = "basic_extraction"
	PipelineVision    = "vision_enhanced"
	PipelineConsensus = "consensus_enhanced"
)

const (
	visionThreshold    = 0.5
	consensusThreshold = 0.6
	// Text this complex is a consensus signal on its own, independent of
	// keyword or structure evidence.
	highComplexityThreshold = 0.8
	minTrainingSamples      = 10
	baseProcessingMs        = 1000
)

// defaultWeights is the untrained weight vector over the feature names.
var defaultWeights = map[string]float64{
	"documentLength": 0.15,
	"ocrQuality":     0.20,
	"fileType":       0.10,
	"keywordDensity": 0.25,
	"tableDensity":   0.15,
	"imageDensity":   0.10,
	"textComplexity": 0.05,
}

// fileTypeComplexity scores how hard each input format is to extract from.
var fileTypeComplexity = map[string]float64{
	"pdf":  0.8,
	"docx": 0.6,
	"txt":  0.3,
	"jpg":  0.9,
	"jpeg": 0.9,
	"png":  0.9,
	"tiff": 0.9,
}

// TrainingSample is one observed routing outcome used to adjust weights.
type TrainingSample struct {
	TenantID      int64                   `json:"tenantId"`
	Features      models.DocumentFeatures `json:"features"`
	UsedVision    bool                    `json:"usedVision"`
	UsedConsensus bool                    `json:"usedConsensus"`
	Accuracy      float64                 `json:"accuracy"`
}

// Status reports the classifier's training state.
type Status struct {
	Trained     bool               `json:"trained"`
	SampleCount int                `json:"sampleCount"`
	Weights     map[string]float64 `json:"weights"`
}

// Metrics holds evaluation results over a labeled sample set.
type Metrics struct {
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Samples   int     `json:"samples"`
}

// Classifier scores documents into extraction pipelines.
type Classifier struct {
	mu          sync.RWMutex
	weights     map[string]float64
	sampleCount int
	store       *TrainingStore
	logger      *zap.Logger
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithLogger sets a logger for training events.
func WithLogger(l *zap.Logger) Option {
	return func(c *Classifier) { c.logger = l }
}

// WithTrainingStore attaches persistent storage for training samples. The
// stored sample count is loaded so a restarted classifier keeps its state.
func WithTrainingStore(s *TrainingStore) Option {
	return func(c *Classifier) { c.store = s }
}

// NewClassifier returns a classifier with default weights.
func NewClassifier(opts ...Option) (*Classifier, error) {
	c := &Classifier{weights: copyWeights(defaultWeights)}
	for _, opt := range opts {
		opt(c)
	}
	if c.store != nil {
		n, err := c.store.Count()
		if err != nil {
			return nil, fmt.Errorf("load training state: %w", err)
		}
		c.sampleCount = n
		if w, err := c.store.LoadWeights(); err == nil && w != nil {
			c.weights = w
		}
	}
	return c, nil
}

// Classify returns the routing decision for the given features.
func (c *Classifier) Classify(f models.DocumentFeatures) (*models.RoutingDecision, error) {
	if err := validateFeatures(f); err != nil {
		return nil, err
	}

	c.mu.RLock()
	trained := c.sampleCount >= minTrainingSamples
	weights := copyWeights(c.weights)
	c.mu.RUnlock()

	var d *models.RoutingDecision
	if trained {
		d = classifyWeighted(f, weights)
	} else {
		d = classifyRuleBased(f)
	}
	d.EstimatedTime = estimateProcessingTime(f, d)
	return d, nil
}

// classifyWeighted applies the learned weights over the fixed score formulas.
func classifyWeighted(f models.DocumentFeatures, w map[string]float64) *models.RoutingDecision {
	ftScore := fileTypeScore(f.FileType)

	visionScore := 0.4*f.ImageDensity + 0.3*f.TableDensity + 0.2*ftScore + 0.1*f.DocumentLength
	structured := 0.0
	if f.HasStructuredData {
		structured = 1.0
	}
	consensusScore := 0.3*f.TextComplexity + 0.3*f.KeywordDensity + 0.2*f.OCRQuality + 0.2*structured
	priorityScore := 0.25 * (f.KeywordDensity + f.TableDensity + f.OCRQuality + f.TextComplexity)

	// The learned weights scale each score's inputs by how informative the
	// underlying feature has proven to be.
	featureScore := w["documentLength"]*f.DocumentLength +
		w["ocrQuality"]*f.OCRQuality +
		w["fileType"]*ftScore +
		w["keywordDensity"]*f.KeywordDensity +
		w["tableDensity"]*f.TableDensity +
		w["imageDensity"]*f.ImageDensity +
		w["textComplexity"]*f.TextComplexity

	useVision := visionScore > visionThreshold
	useConsensus := consensusScore > consensusThreshold ||
		f.TextComplexity > highComplexityThreshold

	d := &models.RoutingDecision{
		UseVision:    useVision,
		UseConsensus: useConsensus,
		Pipeline:     pipelineFor(useVision, useConsensus),
		Confidence:   clamp01((visionScore + consensusScore + featureScore) / 3),
		Priority:     priorityFor(priorityScore),
	}
	d.Reasoning = reasoning(f, visionScore, consensusScore, d)
	return d
}

// classifyRuleBased covers the cold-start period before enough training
// samples exist.
func classifyRuleBased(f models.DocumentFeatures) *models.RoutingDecision {
	useVision := f.ImageDensity > 0.5 || f.TableDensity > 0.6 || isImageType(f.FileType)
	useConsensus := f.TextComplexity > highComplexityThreshold ||
		(f.HasStructuredData && (f.KeywordDensity > 0.3 || f.TextComplexity > 0.6))

	priorityScore := 0.25 * (f.KeywordDensity + f.TableDensity + f.OCRQuality + f.TextComplexity)
	d := &models.RoutingDecision{
		UseVision:    useVision,
		UseConsensus: useConsensus,
		Pipeline:     pipelineFor(useVision, useConsensus),
		Confidence:   0.5,
		Priority:     priorityFor(priorityScore),
	}
	d.Reasoning = append(d.Reasoning, "rule-based routing (insufficient training data)")
	if useVision {
		d.Reasoning = append(d.Reasoning, "visual structure detected")
	}
	if useConsensus {
		d.Reasoning = append(d.Reasoning, "structured business document")
	}
	return d
}

// Train adjusts weights from observed outcomes. The update is bounded: each
// weight is scaled by (0.8 + avgAccuracy*0.4), so a single batch can shift a
// weight by at most 20% in either direction, then the vector is renormalized.
func (c *Classifier) Train(samples []TrainingSample) error {
	if len(samples) == 0 {
		return errors.New("no training samples")
	}
	for i, s := range samples {
		if err := validateFeatures(s.Features); err != nil {
			return fmt.Errorf("sample %d: %w", i, err)
		}
		if s.Accuracy < 0 || s.Accuracy > 1 {
			return fmt.Errorf("sample %d: accuracy %f out of range", i, s.Accuracy)
		}
	}

	var sum float64
	for _, s := range samples {
		sum += s.Accuracy
	}
	avg := sum / float64(len(samples))
	factor := 0.8 + avg*0.4

	c.mu.Lock()
	for k := range c.weights {
		c.weights[k] *= factor
	}
	normalizeWeights(c.weights)
	c.sampleCount += len(samples)
	weights := copyWeights(c.weights)
	c.mu.Unlock()

	if c.logger != nil {
		c.logger.Info("classifier trained",
			zap.Int("samples", len(samples)),
			zap.Float64("avg_accuracy", avg),
			zap.Float64("factor", factor))
	}

	if c.store != nil {
		if err := c.store.SaveSamples(samples); err != nil {
			return fmt.Errorf("persist training samples: %w", err)
		}
		if err := c.store.SaveWeights(weights); err != nil {
			return fmt.Errorf("persist weights: %w", err)
		}
	}
	return nil
}

// Evaluate scores the classifier's vision/consensus decisions against labeled
// samples. Positive class: the sample used vision or consensus.
func (c *Classifier) Evaluate(samples []TrainingSample) (*Metrics, error) {
	if len(samples) == 0 {
		return nil, errors.New("no evaluation samples")
	}
	var tp, fp, tn, fn float64
	for _, s := range samples {
		d, err := c.Classify(s.Features)
		if err != nil {
			return nil, err
		}
		predicted := d.UseVision || d.UseConsensus
		actual := s.UsedVision || s.UsedConsensus
		switch {
		case predicted && actual:
			tp++
		case predicted && !actual:
			fp++
		case !predicted && !actual:
			tn++
		default:
			fn++
		}
	}
	m := &Metrics{Samples: len(samples)}
	total := tp + fp + tn + fn
	m.Accuracy = (tp + tn) / total
	if tp+fp > 0 {
		m.Precision = tp / (tp + fp)
	}
	if tp+fn > 0 {
		m.Recall = tp / (tp + fn)
	}
	if m.Precision+m.Recall > 0 {
		m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
	}
	return m, nil
}

// Status returns the current training state.
func (c *Classifier) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Status{
		Trained:     c.sampleCount >= minTrainingSamples,
		SampleCount: c.sampleCount,
		Weights:     copyWeights(c.weights),
	}
}

func estimateProcessingTime(f models.DocumentFeatures, d *models.RoutingDecision) int64 {
	est := float64(baseProcessingMs)
	if f.DocumentLength > 0.8 {
		est *= 2
	}
	if f.TextComplexity > 0.7 {
		est *= 1.5
	}
	if f.TableDensity > 0.6 {
		est *= 1.8
	}
	if d.UseVision {
		est *= 1.5
	}
	if d.UseConsensus {
		est *= 2.0
	}
	return int64(est)
}

func reasoning(f models.DocumentFeatures, visionScore, consensusScore float64, d *models.RoutingDecision) []string {
	var out []string
	if d.UseVision {
		out = append(out, fmt.Sprintf("vision score %.2f above threshold %.2f", visionScore, visionThreshold))
		if f.ImageDensity > 0.5 {
			out = append(out, "high image density")
		}
		if f.TableDensity > 0.5 {
			out = append(out, "dense tabular layout")
		}
	}
	if d.UseConsensus {
		if consensusScore > consensusThreshold {
			out = append(out, fmt.Sprintf("consensus score %.2f above threshold %.2f", consensusScore, consensusThreshold))
		}
		if f.TextComplexity > highComplexityThreshold {
			out = append(out, "highly complex text")
		}
		if f.KeywordDensity > 0.3 {
			out = append(out, "business document keywords present")
		}
		if f.HasStructuredData {
			out = append(out, "structured data detected")
		}
	}
	if len(out) == 0 {
		out = append(out, "no enhanced extraction signals, basic pipeline")
	}
	return out
}

// pipelineFor maps decision flags to a pipeline. Consensus subsumes vision:
// a document needing both runs the consensus pipeline, whose sources can
// include vision engines.
func pipelineFor(useVision, useConsensus bool) string {
	switch {
	case useConsensus:
		return PipelineConsensus
	case useVision:
		return PipelineVision
	default:
		return PipelineBasic
	}
}

func priorityFor(score float64) string {
	switch {
	case score > 0.8:
		return "high"
	case score > 0.5:
		return "medium"
	default:
		return "low"
	}
}

func fileTypeScore(fileType string) float64 {
	if v, ok := fileTypeComplexity[fileType]; ok {
		return v
	}
	return 0.5
}

func isImageType(fileType string) bool {
	_, ok := map[string]struct{}{"jpg": {}, "jpeg": {}, "png": {}, "tiff": {}}[fileType]
	return ok
}

func validateFeatures(f models.DocumentFeatures) error {
	check := map[string]float64{
		"documentLength": f.DocumentLength,
		"ocrQuality":     f.OCRQuality,
		"keywordDensity": f.KeywordDensity,
		"tableDensity":   f.TableDensity,
		"imageDensity":   f.ImageDensity,
		"textComplexity": f.TextComplexity,
	}
	for name, v := range check {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 || v > 1 {
			return fmt.Errorf("%w: %s = %f", ErrInvalidFeatures, name, v)
		}
	}
	return nil
}

func copyWeights(w map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(w))
	for k, v := range w {
		out[k] = v
	}
	return out
}

func normalizeWeights(w map[string]float64) {
	var sum float64
	for _, v := range w {
		sum += v
	}
	if sum == 0 {
		return
	}
	for k := range w {
		w[k] /= sum
	}
}

// WeightNames returns the feature names in stable order, for introspection.
func WeightNames() []string {
	names := make([]string, 0, len(defaultWeights))
	for k := range defaultWeights {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
