package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/yomitori/internal/audit"
	"github.com/hyperjump/yomitori/internal/classifier"
	"github.com/hyperjump/yomitori/internal/config"
	"github.com/hyperjump/yomitori/internal/consensus"
	"github.com/hyperjump/yomitori/internal/embedding"
	"github.com/hyperjump/yomitori/internal/features"
	"github.com/hyperjump/yomitori/internal/indexer"
	"github.com/hyperjump/yomitori/internal/models"
	"github.com/hyperjump/yomitori/internal/pipeline"
	"github.com/hyperjump/yomitori/internal/ragquery"
	"github.com/hyperjump/yomitori/internal/router"
	"github.com/hyperjump/yomitori/internal/vectorstore"
)

type echoSource struct{}

func (echoSource) Name() string { return "echo" }

func (echoSource) Extract(ctx context.Context, doc router.Document) (*models.ExtractionResult, error) {
	return &models.ExtractionResult{
		Source:     "echo",
		Data:       map[string]interface{}{"text_length": len(doc.Text)},
		Confidence: 0.9,
	}, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()

	cl, err := classifier.NewClassifier()
	if err != nil {
		t.Fatal(err)
	}

	consensusStore, err := consensus.NewStore(filepath.Join(dir, "consensus.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { consensusStore.Close() })
	engine := consensus.NewEngine(consensus.WithStore(consensusStore))

	rt := router.NewRouter(features.NewExtractor(), cl, engine)
	rt.RegisterSource(classifier.PipelineBasic, echoSource{})

	registry := embedding.NewRegistry()
	registry.Register(embedding.NewMockBackend(8))
	embeddings := embedding.NewService(registry, embedding.WithDefaultModel(embedding.ModelMock))

	vectors, err := vectorstore.NewStore(filepath.Join(dir, "vectors.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { vectors.Close() })

	auditLog, err := audit.NewLog(filepath.Join(dir, "audit.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { auditLog.Close() })

	rag := ragquery.NewService(embeddings, vectors, ragquery.WithAuditLog(auditLog))

	pipe := pipeline.NewPipeline(embeddings, vectors)
	ix := indexer.NewIndexer(indexer.NewDiskSource(filepath.Join(dir, "docs")), pipe, vectors, indexer.Config{})

	return NewServer(cl, rt, consensusStore, rag, ix, auditLog, embeddings, vectors,
		&config.ServerConfig{Host: "localhost", Port: 0}, zap.NewNop())
}

func postJSON(t *testing.T, handler http.HandlerFunc, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(data))
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestHandleClassify(t *testing.T) {
	s := newTestServer(t)
	rec := postJSON(t, s.handleClassify, classifyRequest{
		TenantID: 1,
		Features: models.DocumentFeatures{
			DocumentLength: 0.5,
			OCRQuality:     0.8,
			FileType:       "pdf",
			TextComplexity: 0.4,
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	var decision models.RoutingDecision
	if err := json.Unmarshal(rec.Body.Bytes(), &decision); err != nil {
		t.Fatal(err)
	}
	if decision.Pipeline == "" {
		t.Error("empty pipeline in decision")
	}
}

func TestHandleClassifyInvalidFeatures(t *testing.T) {
	s := newTestServer(t)
	rec := postJSON(t, s.handleClassify, classifyRequest{
		TenantID: 1,
		Features: models.DocumentFeatures{DocumentLength: 3.5},
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandleRoute(t *testing.T) {
	s := newTestServer(t)
	rec := postJSON(t, s.handleRoute, routeRequest{
		TenantID:   1,
		DocumentID: 10,
		FileName:   "note.txt",
		FileType:   "txt",
		Text:       "plain note",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	var result models.RoutingResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatal(err)
	}
	if !result.Success {
		t.Errorf("route failed: %s", result.Error)
	}
	if result.Extraction == nil || result.Extraction.Source != "echo" {
		t.Errorf("extraction = %+v", result.Extraction)
	}
}

func TestHandleRAGQueryAndStats(t *testing.T) {
	s := newTestServer(t)

	rec := postJSON(t, s.handleRAGQuery, models.RAGQuery{TenantID: 1, Query: "anything"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	var resp models.RAGResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.TotalResults != 0 {
		t.Errorf("results on empty store: %d", resp.TotalResults)
	}

	req := httptest.NewRequest(http.MethodGet, "/?tenantId=1", nil)
	statsRec := httptest.NewRecorder()
	s.handleRAGStats(statsRec, req)
	if statsRec.Code != http.StatusOK {
		t.Errorf("stats status = %d", statsRec.Code)
	}

	// Missing tenantId is rejected.
	bad := httptest.NewRecorder()
	s.handleRAGStats(bad, httptest.NewRequest(http.MethodGet, "/", nil))
	if bad.Code != http.StatusBadRequest {
		t.Errorf("missing tenant status = %d", bad.Code)
	}
}

func TestHandleIndexerConfigAndStats(t *testing.T) {
	s := newTestServer(t)

	rec := postJSON(t, s.handleIndexerConfig, indexerConfigRequest{
		ScanIntervalMinutes: 1,
		BatchSize:           2,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := s.indexer.Config().BatchSize; got != 2 {
		t.Errorf("batch size = %d, want 2", got)
	}

	statsRec := httptest.NewRecorder()
	s.handleIndexerStats(statsRec, httptest.NewRequest(http.MethodGet, "/", nil))
	if statsRec.Code != http.StatusOK {
		t.Errorf("stats status = %d", statsRec.Code)
	}
	var stats indexer.Stats
	if err := json.Unmarshal(statsRec.Body.Bytes(), &stats); err != nil {
		t.Fatal(err)
	}
	if stats.Running {
		t.Error("indexer reported running before start")
	}
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()
	s.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "ok") {
		t.Errorf("body = %s", rec.Body)
	}
}
