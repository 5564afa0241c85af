// Package keyword maintains a Bleve index over document text. Vector search
// does the heavy lifting for RAG; this index supplies exact-term hits that
// the query service uses to re-rank snippets.
package keyword

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
)

// Entry is what gets indexed per document.
type Entry struct {
	Tenant   string `json:"tenant"`
	DocType  string `json:"doc_type"`
	FileName string `json:"file_name"`
	Content  string `json:"content"`
}

// Hit is one keyword match.
type Hit struct {
	TenantID   int64
	DocumentID int64
	Score      float64
}

// Index wraps a Bleve index keyed by "tenantID:documentID".
type Index struct {
	index bleve.Index
}

// NewIndex creates or opens a Bleve index at path. An existing index is
// reused so incremental sync does not force re-indexing; remove the
// directory after a mapping change to rebuild.
func NewIndex(path string) (*Index, error) {
	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("open keyword index: %w", openErr)
		}
		return &Index{index: index}, nil
	}

	index, err := bleve.New(path, buildMapping())
	if err != nil {
		return nil, fmt.Errorf("create keyword index: %w", err)
	}
	return &Index{index: index}, nil
}

// NewMemIndex creates an in-memory index, used by tests and by deployments
// that rebuild on startup.
func NewMemIndex() (*Index, error) {
	index, err := bleve.NewMemOnly(buildMapping())
	if err != nil {
		return nil, fmt.Errorf("create in-memory keyword index: %w", err)
	}
	return &Index{index: index}, nil
}

func buildMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	// Standard analyzer (lowercase + tokenize, no stemming) so "fatura"
	// only matches "fatura".
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("content", textFieldMapping)
	docMapping.AddFieldMappingsAt("file_name", textFieldMapping)
	keywordFieldMapping := bleve.NewKeywordFieldMapping()
	docMapping.AddFieldMappingsAt("tenant", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("doc_type", keywordFieldMapping)
	im.AddDocumentMapping("document", docMapping)
	im.DefaultType = "document"
	im.DefaultMapping = docMapping
	return im
}

// Index adds or replaces a document's text.
func (i *Index) Index(ctx context.Context, tenantID, documentID int64, docType, fileName, content string) error {
	entry := Entry{
		Tenant:   strconv.FormatInt(tenantID, 10),
		DocType:  docType,
		FileName: fileName,
		Content:  content,
	}
	return i.index.Index(docKey(tenantID, documentID), entry)
}

// Search runs a tenant-scoped match query and returns up to limit hits.
// The tenant term is a conjunct, never a boost, so results from other
// tenants cannot appear no matter how well they score.
func (i *Index) Search(ctx context.Context, tenantID int64, query string, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = 10
	}
	tenantQuery := bleve.NewTermQuery(strconv.FormatInt(tenantID, 10))
	tenantQuery.SetField("tenant")
	matchQuery := bleve.NewMatchQuery(query)
	matchQuery.SetField("content")
	q := bleve.NewConjunctionQuery(tenantQuery, matchQuery)

	req := bleve.NewSearchRequest(q)
	req.Size = limit
	results, err := i.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}

	out := make([]Hit, 0, len(results.Hits))
	for _, hit := range results.Hits {
		tid, did, ok := parseDocKey(hit.ID)
		if !ok || tid != tenantID {
			continue
		}
		out = append(out, Hit{TenantID: tid, DocumentID: did, Score: hit.Score})
	}
	return out, nil
}

// Delete removes a document from the index.
func (i *Index) Delete(ctx context.Context, tenantID, documentID int64) error {
	return i.index.Delete(docKey(tenantID, documentID))
}

// DocCount returns the total number of indexed documents across tenants.
func (i *Index) DocCount() (uint64, error) {
	return i.index.DocCount()
}

// Close closes the underlying index.
func (i *Index) Close() error {
	return i.index.Close()
}

func docKey(tenantID, documentID int64) string {
	return strconv.FormatInt(tenantID, 10) + ":" + strconv.FormatInt(documentID, 10)
}

func parseDocKey(key string) (tenantID, documentID int64, ok bool) {
	idx := strings.IndexByte(key, ':')
	if idx < 0 {
		return 0, 0, false
	}
	tenantID, err := strconv.ParseInt(key[:idx], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	documentID, err = strconv.ParseInt(key[idx+1:], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	return tenantID, documentID, true
}
