package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/yomitori/internal/classifier"
	"github.com/hyperjump/yomitori/internal/indexer"
	"github.com/hyperjump/yomitori/internal/models"
	"github.com/hyperjump/yomitori/internal/router"
)

type classifyRequest struct {
	TenantID int64                   `json:"tenantId"`
	Features models.DocumentFeatures `json:"features"`
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	var req classifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	decision, err := s.classifier.Classify(req.Features)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, decision)
}

type trainRequest struct {
	Samples []classifier.TrainingSample `json:"samples"`
}

func (s *Server) handleTrain(w http.ResponseWriter, r *http.Request) {
	var req trainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("train request", zap.Int("samples", len(req.Samples)))
	if err := s.classifier.Train(req.Samples); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, s.classifier.Status())
}

func (s *Server) handleClassifierStatus(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.classifier.Status())
}

type routeRequest struct {
	TenantID   int64  `json:"tenantId"`
	DocumentID int64  `json:"documentId"`
	FileName   string `json:"fileName"`
	FileType   string `json:"fileType"`
	DocType    string `json:"docType,omitempty"`
	Content    []byte `json:"content,omitempty"`
	Text       string `json:"text,omitempty"`
}

func (req *routeRequest) toDocument() router.Document {
	return router.Document{
		TenantID:   req.TenantID,
		DocumentID: req.DocumentID,
		FileName:   req.FileName,
		FileType:   req.FileType,
		DocType:    req.DocType,
		Content:    req.Content,
		Text:       req.Text,
	}
}

func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	var req routeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("route request",
		zap.Int64("tenant_id", req.TenantID),
		zap.Int64("document_id", req.DocumentID),
		zap.String("file_type", req.FileType))
	result := s.router.Route(r.Context(), req.toDocument())
	s.respondJSON(w, http.StatusOK, result)
}

type routeBatchRequest struct {
	Documents []routeRequest `json:"documents"`
}

func (s *Server) handleRouteBatch(w http.ResponseWriter, r *http.Request) {
	var req routeBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	docs := make([]router.Document, len(req.Documents))
	for i, d := range req.Documents {
		docs[i] = d.toDocument()
	}
	results := s.router.RouteBatch(r.Context(), docs)
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"results": results,
		"total":   len(results),
	})
}

func (s *Server) handlePipelines(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.router.AvailablePipelines())
}

func (s *Server) handleRoutingStats(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := s.tenantParam(w, r)
	if !ok {
		return
	}
	s.respondJSON(w, http.StatusOK, s.router.Stats(tenantID))
}

func (s *Server) handleGetConsensus(w http.ResponseWriter, r *http.Request) {
	tenantID, err := strconv.ParseInt(chi.URLParam(r, "tenantId"), 10, 64)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid tenant id")
		return
	}
	documentID, err := strconv.ParseInt(chi.URLParam(r, "documentId"), 10, 64)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid document id")
		return
	}
	result, err := s.consensus.Get(tenantID, documentID)
	if err != nil {
		s.logger.Error("consensus lookup failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if result == nil {
		s.respondError(w, http.StatusNotFound, "no consensus result for document")
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleRAGQuery(w http.ResponseWriter, r *http.Request) {
	var query models.RAGQuery
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if query.UserAgent == "" {
		query.UserAgent = r.UserAgent()
	}
	if query.IPAddress == "" {
		query.IPAddress = r.RemoteAddr
	}
	s.logger.Debug("rag query", zap.Int64("tenant_id", query.TenantID), zap.String("query", query.Query))
	response, err := s.rag.Query(r.Context(), query)
	if err != nil {
		s.logger.Error("rag query failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, response)
}

func (s *Server) handleRAGStats(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := s.tenantParam(w, r)
	if !ok {
		return
	}
	stats, err := s.rag.GetStats(r.Context(), tenantID)
	if err != nil {
		s.logger.Error("rag stats failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"queries": stats,
		"cache":   s.rag.CacheStats(),
	})
}

func (s *Server) handleAuditExport(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := s.tenantParam(w, r)
	if !ok {
		return
	}
	format := r.URL.Query().Get("format")
	switch format {
	case "csv":
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", "attachment; filename=audit.csv")
		if err := s.audit.ExportCSV(r.Context(), tenantID, w); err != nil {
			s.logger.Error("audit export failed", zap.Error(err))
		}
	case "", "json":
		w.Header().Set("Content-Type", "application/json")
		if err := s.audit.ExportJSON(r.Context(), tenantID, w); err != nil {
			s.logger.Error("audit export failed", zap.Error(err))
		}
	default:
		s.respondError(w, http.StatusBadRequest, "format must be json or csv")
	}
}

func (s *Server) handleIndexerStats(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.indexer.Stats())
}

func (s *Server) handleIndexerJobs(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"active": s.indexer.ActiveJobs(),
		"queue":  s.indexer.QueueStatus(),
	})
}

func (s *Server) handleIndexerStart(w http.ResponseWriter, r *http.Request) {
	if err := s.indexer.Start(); err != nil {
		s.respondError(w, http.StatusConflict, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "started"})
}

func (s *Server) handleIndexerStop(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()
	if err := s.indexer.Stop(ctx); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

func (s *Server) handleIndexerScan(w http.ResponseWriter, r *http.Request) {
	s.indexer.ForceScan()
	s.respondJSON(w, http.StatusAccepted, map[string]string{"status": "scan scheduled"})
}

type indexerConfigRequest struct {
	ScanIntervalMinutes   int      `json:"scanIntervalMinutes"`
	BatchSize             int      `json:"batchSize"`
	MaxConcurrentJobs     int      `json:"maxConcurrentJobs"`
	RetryAttempts         int      `json:"retryAttempts"`
	RetryDelayMinutes     int      `json:"retryDelayMinutes"`
	MaxFileSizeMB         int      `json:"maxFileSizeMb"`
	EnableIncrementalSync *bool    `json:"enableIncrementalSync"`
	FileTypes             []string `json:"fileTypes"`
}

func (s *Server) handleIndexerConfig(w http.ResponseWriter, r *http.Request) {
	var req indexerConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	cfg := indexer.Config{
		ScanInterval:      time.Duration(req.ScanIntervalMinutes) * time.Minute,
		BatchSize:         req.BatchSize,
		MaxConcurrentJobs: req.MaxConcurrentJobs,
		RetryAttempts:     req.RetryAttempts,
		RetryDelay:        time.Duration(req.RetryDelayMinutes) * time.Minute,
		MaxFileSize:       int64(req.MaxFileSizeMB) * 1024 * 1024,
		FileTypes:         req.FileTypes,
	}
	if req.EnableIncrementalSync != nil {
		cfg.EnableIncrementalSync = *req.EnableIncrementalSync
	} else {
		cfg.EnableIncrementalSync = s.indexer.Config().EnableIncrementalSync
	}
	s.indexer.UpdateConfig(cfg)
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (s *Server) handleClearFailedJobs(w http.ResponseWriter, r *http.Request) {
	n := s.indexer.ClearFailedJobs()
	s.respondJSON(w, http.StatusOK, map[string]int{"cleared": n})
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"models": s.embeddings.Models(),
		"cache":  s.embeddings.CacheStats(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"indexer":    s.indexer.Stats(),
		"classifier": s.classifier.Status(),
		"models":     s.embeddings.Models(),
		"queryCache": s.rag.CacheStats(),
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// tenantParam parses the required tenantId query parameter.
func (s *Server) tenantParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := r.URL.Query().Get("tenantId")
	tenantID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || tenantID <= 0 {
		s.respondError(w, http.StatusBadRequest, "tenantId query parameter is required")
		return 0, false
	}
	return tenantID, true
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
