package models

import "time"

// JobStatus is the lifecycle state of an indexing job.
type JobStatus string

const (
	JobQueued            JobStatus = "queued"
	JobProcessing        JobStatus = "processing"
	JobCompleted         JobStatus = "completed"
	JobRetryWait         JobStatus = "retry_wait"
	JobPermanentlyFailed JobStatus = "permanently_failed"
)

// Terminal reports whether the status is final.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobPermanentlyFailed
}

// IndexingJob tracks one document through the scheduled indexer.
type IndexingJob struct {
	ID          string    `json:"id"`
	TenantID    int64     `json:"tenantId"`
	DocumentID  int64     `json:"documentId"`
	SourceKey   string    `json:"sourceKey"`
	FileName    string    `json:"fileName"`
	FileSize    int64     `json:"fileSize"`
	Status      JobStatus `json:"status"`
	RetryCount  int       `json:"retryCount"`
	NextAttempt time.Time `json:"nextAttempt,omitempty"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
