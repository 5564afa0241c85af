// Package indexer runs scheduled scans over document sources and feeds new
// or changed files through the embedding pipeline. All job state transitions
// happen on the scan tick, so there is a single place where retries,
// promotions, and dispatch are decided.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/yomitori/internal/extract"
	"github.com/hyperjump/yomitori/internal/models"
	"github.com/hyperjump/yomitori/internal/pipeline"
	"github.com/hyperjump/yomitori/internal/vectorstore"
)

// ErrAlreadyRunning is returned by Start when the indexer is running.
var ErrAlreadyRunning = errors.New("indexer already running")

// Config controls scan scheduling and job processing.
type Config struct {
	ScanInterval          time.Duration
	BatchSize             int
	MaxConcurrentJobs     int
	RetryAttempts         int
	RetryDelay            time.Duration
	MaxFileSize           int64
	EnableIncrementalSync bool
	FileTypes             []string
}

// ApplyDefaults fills zero values with the standard settings.
func (c *Config) ApplyDefaults() {
	if c.ScanInterval <= 0 {
		c.ScanInterval = 15 * time.Minute
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 10
	}
	if c.MaxConcurrentJobs <= 0 {
		c.MaxConcurrentJobs = 5
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 5 * time.Minute
	}
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = 50 * 1024 * 1024
	}
	if len(c.FileTypes) == 0 {
		c.FileTypes = []string{"pdf", "jpg", "jpeg", "png", "tiff"}
	}
}

func (c *Config) allowsType(fileType string) bool {
	for _, t := range c.FileTypes {
		if t == fileType {
			return true
		}
	}
	return false
}

// Stats is a snapshot of the indexer's counters.
type Stats struct {
	Running               bool      `json:"running"`
	LastScanAt            time.Time `json:"lastScanAt"`
	TotalScans            int64     `json:"totalScans"`
	FilesSeen             int64     `json:"filesSeen"`
	JobsCompleted         int64     `json:"jobsCompleted"`
	JobsRetried           int64     `json:"jobsRetried"`
	JobsPermanentlyFailed int64     `json:"jobsPermanentlyFailed"`
	ActiveJobs            int       `json:"activeJobs"`
}

// Indexer schedules scans and drives jobs through the pipeline.
type Indexer struct {
	source    Source
	pipe      *pipeline.Pipeline
	store     *vectorstore.Store
	extractor *extract.Extractor
	logger    *zap.Logger

	mu      sync.Mutex
	cfg     Config
	jobs    map[string]*models.IndexingJob
	objects map[string]SourceObject
	stats   Stats
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	forceScan chan struct{}
}

// Option configures an Indexer.
type Option func(*Indexer)

// WithLogger sets a logger.
func WithLogger(l *zap.Logger) Option {
	return func(ix *Indexer) { ix.logger = l }
}

// NewIndexer creates an indexer over the given source and pipeline. The
// vector store is consulted for incremental sync decisions.
func NewIndexer(source Source, pipe *pipeline.Pipeline, store *vectorstore.Store, cfg Config, opts ...Option) *Indexer {
	cfg.ApplyDefaults()
	ix := &Indexer{
		source:    source,
		pipe:      pipe,
		store:     store,
		extractor: extract.NewExtractor(),
		cfg:       cfg,
		jobs:      make(map[string]*models.IndexingJob),
		objects:   make(map[string]SourceObject),
		forceScan: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// Start launches the scan loop. The first scan runs immediately.
func (ix *Indexer) Start() error {
	ix.mu.Lock()
	if ix.running {
		ix.mu.Unlock()
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(context.Background())
	ix.running = true
	ix.cancel = cancel
	ix.done = make(chan struct{})
	ix.stats.Running = true
	ix.mu.Unlock()

	go ix.run(ctx)
	return nil
}

// Stop cancels the loop and waits for in-flight jobs to finish, up to the
// context deadline.
func (ix *Indexer) Stop(ctx context.Context) error {
	ix.mu.Lock()
	if !ix.running {
		ix.mu.Unlock()
		return nil
	}
	cancel := ix.cancel
	done := ix.done
	ix.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("indexer shutdown: %w", ctx.Err())
	}

	ix.mu.Lock()
	ix.running = false
	ix.stats.Running = false
	ix.mu.Unlock()
	return nil
}

// ForceScan triggers a scan outside the schedule. A scan already pending
// absorbs the request.
func (ix *Indexer) ForceScan() {
	select {
	case ix.forceScan <- struct{}{}:
	default:
	}
}

// UpdateConfig swaps the configuration. The new interval takes effect on the
// next wakeup; jobs already dispatched finish under the old settings.
func (ix *Indexer) UpdateConfig(cfg Config) {
	cfg.ApplyDefaults()
	ix.mu.Lock()
	ix.cfg = cfg
	ix.mu.Unlock()
	if ix.logger != nil {
		ix.logger.Info("indexer config updated",
			zap.Duration("scan_interval", cfg.ScanInterval),
			zap.Int("batch_size", cfg.BatchSize),
			zap.Int("max_concurrent_jobs", cfg.MaxConcurrentJobs))
	}
}

// Config returns the current configuration.
func (ix *Indexer) Config() Config {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.cfg
}

// Stats returns a counter snapshot. ActiveJobs counts jobs that still have
// work ahead of them; permanently failed jobs are not active.
func (ix *Indexer) Stats() Stats {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	s := ix.stats
	for _, job := range ix.jobs {
		if !job.Status.Terminal() {
			s.ActiveJobs++
		}
	}
	return s
}

// ActiveJobs returns copies of all non-terminal jobs, oldest first.
func (ix *Indexer) ActiveJobs() []models.IndexingJob {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	out := make([]models.IndexingJob, 0)
	for _, job := range ix.jobs {
		if !job.Status.Terminal() {
			out = append(out, *job)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// QueueStatus returns job counts per status, permanently failed included so
// operators can see what needs attention.
func (ix *Indexer) QueueStatus() map[models.JobStatus]int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	out := make(map[models.JobStatus]int)
	for _, job := range ix.jobs {
		out[job.Status]++
	}
	return out
}

// ClearFailedJobs drops permanently failed jobs so their documents become
// eligible again on the next scan. Returns how many were cleared.
func (ix *Indexer) ClearFailedJobs() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	n := 0
	for key, job := range ix.jobs {
		if job.Status == models.JobPermanentlyFailed {
			delete(ix.jobs, key)
			n++
		}
	}
	return n
}

func (ix *Indexer) run(ctx context.Context) {
	defer close(ix.done)

	// ctx only cancels the schedule. Dispatched jobs run under their own
	// context so Stop lets in-flight work finish instead of failing it;
	// Stop's deadline bounds the wait.
	workCtx := context.Background()

	// Immediate first scan, then the schedule.
	ix.scan(workCtx)
	timer := time.NewTimer(ix.interval())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ix.forceScan:
		case <-timer.C:
		}
		ix.scan(workCtx)
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(ix.interval())
	}
}

func (ix *Indexer) interval() time.Duration {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.cfg.ScanInterval
}

// scan is one full tick: promote waiting retries, discover files, enqueue
// jobs, and dispatch a batch through the worker pool.
func (ix *Indexer) scan(ctx context.Context) {
	now := time.Now()
	ix.promoteRetries(now)

	objects, err := ix.source.List(ctx)
	if err != nil {
		if ix.logger != nil && !errors.Is(err, context.Canceled) {
			ix.logger.Error("source listing failed", zap.Error(err))
		}
		return
	}

	ix.enqueue(ctx, objects, now)
	batch := ix.takeBatch(now)
	ix.dispatch(ctx, batch)

	ix.mu.Lock()
	ix.stats.TotalScans++
	ix.stats.LastScanAt = now
	ix.mu.Unlock()
}

func (ix *Indexer) promoteRetries(now time.Time) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	for _, job := range ix.jobs {
		if job.Status == models.JobRetryWait && !job.NextAttempt.After(now) {
			job.Status = models.JobQueued
			job.UpdatedAt = now
		}
	}
}

func (ix *Indexer) enqueue(ctx context.Context, objects []SourceObject, now time.Time) {
	ix.mu.Lock()
	cfg := ix.cfg
	ix.mu.Unlock()

	for _, obj := range objects {
		fileType := extract.NormalizeType(obj.Name)
		if !cfg.allowsType(fileType) {
			continue
		}
		if obj.Size > cfg.MaxFileSize {
			if ix.logger != nil {
				ix.logger.Warn("file exceeds size limit, skipping",
					zap.String("file", obj.Name), zap.Int64("size", obj.Size))
			}
			continue
		}

		key := jobKey(obj.TenantID, obj.DocumentID)

		ix.mu.Lock()
		ix.objects[key] = obj
		existing, haveJob := ix.jobs[key]
		ix.mu.Unlock()

		if haveJob && !existing.Status.Terminal() {
			continue
		}
		if haveJob && existing.Status == models.JobPermanentlyFailed {
			// Stays failed until an operator clears it.
			continue
		}
		if cfg.EnableIncrementalSync && ix.upToDate(ctx, obj) {
			continue
		}

		job := &models.IndexingJob{
			ID:         uuid.New().String(),
			TenantID:   obj.TenantID,
			DocumentID: obj.DocumentID,
			SourceKey:  obj.ID,
			FileName:   obj.Name,
			FileSize:   obj.Size,
			Status:     models.JobQueued,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		ix.mu.Lock()
		ix.jobs[key] = job
		ix.stats.FilesSeen++
		ix.mu.Unlock()
	}
}

// upToDate reports whether the stored embedding already covers this exact
// file revision.
func (ix *Indexer) upToDate(ctx context.Context, obj SourceObject) bool {
	existing, err := ix.store.Get(ctx, obj.TenantID, obj.DocumentID)
	if err != nil || existing == nil {
		return false
	}
	return existing.FileSize == obj.Size && existing.ModTime.Equal(obj.ModifiedAt)
}

func (ix *Indexer) takeBatch(now time.Time) []*models.IndexingJob {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	queued := make([]*models.IndexingJob, 0)
	for _, job := range ix.jobs {
		if job.Status == models.JobQueued {
			queued = append(queued, job)
		}
	}
	sort.Slice(queued, func(i, j int) bool { return queued[i].CreatedAt.Before(queued[j].CreatedAt) })
	if len(queued) > ix.cfg.BatchSize {
		queued = queued[:ix.cfg.BatchSize]
	}
	for _, job := range queued {
		job.Status = models.JobProcessing
		job.UpdatedAt = now
	}
	return queued
}

func (ix *Indexer) dispatch(ctx context.Context, batch []*models.IndexingJob) {
	if len(batch) == 0 {
		return
	}
	ix.mu.Lock()
	workers := ix.cfg.MaxConcurrentJobs
	ix.mu.Unlock()

	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for _, job := range batch {
		wg.Add(1)
		sem <- struct{}{}
		go func(job *models.IndexingJob) {
			defer wg.Done()
			defer func() { <-sem }()
			ix.processJob(ctx, job)
		}(job)
	}
	wg.Wait()
}

func (ix *Indexer) processJob(ctx context.Context, job *models.IndexingJob) {
	key := jobKey(job.TenantID, job.DocumentID)
	ix.mu.Lock()
	obj, haveObj := ix.objects[key]
	ix.mu.Unlock()

	err := func() error {
		if !haveObj {
			return fmt.Errorf("source object for %s no longer listed", job.FileName)
		}
		content, err := ix.source.Download(ctx, obj.ID)
		if err != nil {
			return fmt.Errorf("download: %w", err)
		}
		fileType := extract.NormalizeType(obj.Name)
		text, err := ix.extractor.ExtractBytes(content, fileType)
		if err != nil {
			return fmt.Errorf("extract text: %w", err)
		}
		docType := DocTypeFor(obj.Name)
		_, err = ix.pipe.ProcessDocument(ctx, pipeline.Document{
			TenantID:   job.TenantID,
			DocumentID: job.DocumentID,
			DocType:    docType,
			FileName:   obj.Name,
			FileSize:   obj.Size,
			ModTime:    obj.ModifiedAt,
			Content: models.DocumentContent{
				Title:   obj.Name,
				Type:    docType,
				Content: text,
			},
		})
		return err
	}()

	now := time.Now()
	ix.mu.Lock()
	defer ix.mu.Unlock()
	job.UpdatedAt = now

	if err == nil {
		job.Status = models.JobCompleted
		job.Error = ""
		ix.stats.JobsCompleted++
		if ix.logger != nil {
			ix.logger.Debug("job completed",
				zap.Int64("tenant_id", job.TenantID),
				zap.Int64("document_id", job.DocumentID),
				zap.String("file", job.FileName))
		}
		return
	}

	job.Error = err.Error()
	job.RetryCount++
	if job.RetryCount >= ix.cfg.RetryAttempts {
		job.Status = models.JobPermanentlyFailed
		ix.stats.JobsPermanentlyFailed++
		if ix.logger != nil {
			ix.logger.Error("job permanently failed",
				zap.Int64("tenant_id", job.TenantID),
				zap.Int64("document_id", job.DocumentID),
				zap.String("file", job.FileName),
				zap.Int("attempts", job.RetryCount),
				zap.Error(err))
		}
		return
	}
	job.Status = models.JobRetryWait
	job.NextAttempt = now.Add(ix.cfg.RetryDelay)
	ix.stats.JobsRetried++
	if ix.logger != nil {
		ix.logger.Warn("job failed, will retry",
			zap.Int64("tenant_id", job.TenantID),
			zap.Int64("document_id", job.DocumentID),
			zap.String("file", job.FileName),
			zap.Int("retry_count", job.RetryCount),
			zap.Time("next_attempt", job.NextAttempt),
			zap.Error(err))
	}
}

// ScanOnce runs a single synchronous scan. It is the same code path the
// scheduler uses, exposed for callers that manage their own timing.
func (ix *Indexer) ScanOnce(ctx context.Context) {
	ix.scan(ctx)
}

func jobKey(tenantID, documentID int64) string {
	return fmt.Sprintf("%d:%d", tenantID, documentID)
}
