// Package models defines the shared data structures for the document pipeline.
package models

import "time"

// DocumentFeatures is the fixed numeric feature vector extracted from a document.
// All density/quality values are in [0, 1].
type DocumentFeatures struct {
	DocumentLength    float64 `json:"documentLength"`
	OCRQuality        float64 `json:"ocrQuality"`
	FileType          string  `json:"fileType"`
	HasStructuredData bool    `json:"hasStructuredData"`
	LanguageDetected  string  `json:"languageDetected"`
	KeywordDensity    float64 `json:"keywordDensity"`
	TableDensity      float64 `json:"tableDensity"`
	ImageDensity      float64 `json:"imageDensity"`
	TextComplexity    float64 `json:"textComplexity"`
}

// RoutingDecision is the classifier's verdict for a document.
type RoutingDecision struct {
	UseVision     bool     `json:"useVision"`
	UseConsensus  bool     `json:"useConsensus"`
	Pipeline      string   `json:"pipeline"`
	Confidence    float64  `json:"confidence"`
	Reasoning     []string `json:"reasoning"`
	Priority      string   `json:"priority"`
	EstimatedTime int64    `json:"estimatedTimeMs"`
}

// LineItem is a single line of an itemized document (invoice, receipt).
// Confidence and Sources are filled by the consensus merge: how sure the
// winning variant is and which extraction sources contributed to it.
type LineItem struct {
	Description string   `json:"description"`
	Quantity    float64  `json:"quantity,omitempty"`
	UnitPrice   float64  `json:"unitPrice,omitempty"`
	Amount      float64  `json:"amount"`
	Confidence  float64  `json:"confidence,omitempty"`
	Sources     []string `json:"sources,omitempty"`
}

// ExtractionResult is the output of one extraction source for one document.
type ExtractionResult struct {
	Source         string                 `json:"source"`
	Data           map[string]interface{} `json:"data"`
	LineItems      []LineItem             `json:"lineItems,omitempty"`
	Confidence     float64                `json:"confidence"`
	ProcessingTime int64                  `json:"processingTimeMs"`
}

// FieldConsensus records how a single field value was agreed on.
type FieldConsensus struct {
	Value      interface{} `json:"value"`
	Confidence float64     `json:"confidence"`
	Sources    []string    `json:"sources"`
	Agreement  bool        `json:"agreement"`
}

// ConsensusResult merges multiple extraction results into one.
type ConsensusResult struct {
	TenantID        int64                     `json:"tenantId"`
	DocumentID      int64                     `json:"documentId"`
	Data            map[string]interface{}    `json:"data"`
	Fields          map[string]FieldConsensus `json:"fields"`
	LineItems       []LineItem                `json:"lineItems,omitempty"`
	Confidence      float64                   `json:"confidence"`
	ConsensusMethod string                    `json:"consensusMethod"`
	SourceCount     int                       `json:"sourceCount"`
	ProcessingTime  int64                     `json:"processingTimeMs"`
	CreatedAt       time.Time                 `json:"createdAt"`
}

// RoutingResult is the uniform envelope returned for every routed document,
// success or failure.
type RoutingResult struct {
	TenantID       int64             `json:"tenantId"`
	DocumentID     int64             `json:"documentId"`
	Success        bool              `json:"success"`
	Pipeline       string            `json:"pipeline"`
	Decision       *RoutingDecision  `json:"decision,omitempty"`
	Features       *DocumentFeatures `json:"features,omitempty"`
	Extraction     *ExtractionResult `json:"extraction,omitempty"`
	Consensus      *ConsensusResult  `json:"consensus,omitempty"`
	ProcessingTime int64             `json:"processingTimeMs"`
	Error          string            `json:"error,omitempty"`
}

// DocumentContent is the text and metadata used to build embedding input.
type DocumentContent struct {
	Title    string                 `json:"title"`
	Type     string                 `json:"type"`
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// DocumentEmbedding is a stored embedding row, unique per (TenantID, DocumentID).
type DocumentEmbedding struct {
	ID           int64     `json:"id"`
	TenantID     int64     `json:"tenantId"`
	DocumentID   int64     `json:"documentId"`
	DocumentType string    `json:"documentType"`
	FileName     string    `json:"fileName"`
	ContentText  string    `json:"contentText"`
	Embedding    []float32 `json:"-"`
	Model        string    `json:"model"`
	FileSize     int64     `json:"fileSize"`
	ModTime      time.Time `json:"modTime"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// SimilarDocument is a vector search hit.
type SimilarDocument struct {
	DocumentEmbedding
	Similarity float64 `json:"similarity"`
}
