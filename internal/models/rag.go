package models

import "time"

// RAGQuery is a retrieval request against a tenant's indexed documents.
type RAGQuery struct {
	TenantID        int64   `json:"tenantId"`
	Query           string  `json:"query"`
	TopK            int     `json:"topK,omitempty"`
	Threshold       float64 `json:"threshold,omitempty"`
	IncludeMetadata bool    `json:"includeMetadata,omitempty"`
	IncludeContent  bool    `json:"includeContent,omitempty"`
	UserID          string  `json:"userId,omitempty"`
	SessionID       string  `json:"sessionId,omitempty"`
	UserAgent       string  `json:"userAgent,omitempty"`
	IPAddress       string  `json:"ipAddress,omitempty"`
}

// RAGResult is one retrieved document with its match context.
type RAGResult struct {
	DocumentID       int64                  `json:"documentId"`
	DocumentType     string                 `json:"documentType"`
	FileName         string                 `json:"fileName,omitempty"`
	Similarity       float64                `json:"similarity"`
	HighlightedMatch string                 `json:"highlightedMatch"`
	Content          string                 `json:"content,omitempty"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
}

// RAGResponse is the full answer to a RAGQuery. Model carries a "(cached)"
// suffix when the response was served from the query cache.
type RAGResponse struct {
	Query          string      `json:"query"`
	Results        []RAGResult `json:"results"`
	TotalResults   int         `json:"totalResults"`
	Model          string      `json:"model"`
	ProcessingTime int64       `json:"processingTimeMs"`
}

// RAGStats summarizes query activity over a time window.
type RAGStats struct {
	TotalQueries    int64        `json:"totalQueries"`
	AvgResponseTime float64      `json:"avgResponseTimeMs"`
	CacheHitRate    float64      `json:"cacheHitRate"`
	TopQueries      []QueryCount `json:"topQueries"`
	Window          string       `json:"window"`
}

// QueryCount is a query string and how often it was seen.
type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// AuditEntry is one append-only record of a RAG query.
type AuditEntry struct {
	ID             string    `json:"id"`
	TenantID       int64     `json:"tenantId"`
	UserID         string    `json:"userId,omitempty"`
	SessionID      string    `json:"sessionId,omitempty"`
	QueryText      string    `json:"queryText"`
	QueryType      string    `json:"queryType"`
	TotalResults   int       `json:"totalResults"`
	DocumentIDs    []int64   `json:"documentIds,omitempty"`
	Similarities   []float64 `json:"similarities,omitempty"`
	ResponseTime   int64     `json:"responseTimeMs"`
	EmbeddingModel string    `json:"embeddingModel,omitempty"`
	CacheHit       bool      `json:"cacheHit"`
	UserAgent      string    `json:"userAgent,omitempty"`
	IPAddress      string    `json:"ipAddress,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}
