// Package server provides the HTTP API for Yomitori.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/yomitori/internal/audit"
	"github.com/hyperjump/yomitori/internal/classifier"
	"github.com/hyperjump/yomitori/internal/config"
	"github.com/hyperjump/yomitori/internal/consensus"
	"github.com/hyperjump/yomitori/internal/embedding"
	"github.com/hyperjump/yomitori/internal/indexer"
	"github.com/hyperjump/yomitori/internal/ragquery"
	"github.com/hyperjump/yomitori/internal/router"
	"github.com/hyperjump/yomitori/internal/vectorstore"
)

// Server is the HTTP server for the Yomitori API.
type Server struct {
	classifier *classifier.Classifier
	router     *router.Router
	consensus  *consensus.Store
	rag        *ragquery.Service
	indexer    *indexer.Indexer
	audit      *audit.Log
	embeddings *embedding.Service
	vectors    *vectorstore.Store
	config     *config.ServerConfig
	logger     *zap.Logger
	server     *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(
	cl *classifier.Classifier,
	rt *router.Router,
	cs *consensus.Store,
	rag *ragquery.Service,
	ix *indexer.Indexer,
	auditLog *audit.Log,
	embeddings *embedding.Service,
	vectors *vectorstore.Store,
	cfg *config.ServerConfig,
	logger *zap.Logger,
) *Server {
	return &Server{
		classifier: cl,
		router:     rt,
		consensus:  cs,
		rag:        rag,
		indexer:    ix,
		audit:      auditLog,
		embeddings: embeddings,
		vectors:    vectors,
		config:     cfg,
		logger:     logger,
	}
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/classify", s.handleClassify)
		r.Post("/classify/train", s.handleTrain)
		r.Get("/classify/status", s.handleClassifierStatus)

		r.Post("/route", s.handleRoute)
		r.Post("/route/batch", s.handleRouteBatch)
		r.Get("/routing/pipelines", s.handlePipelines)
		r.Get("/routing/stats", s.handleRoutingStats)

		r.Get("/consensus/{tenantId}/{documentId}", s.handleGetConsensus)

		r.Post("/rag/query", s.handleRAGQuery)
		r.Get("/rag/stats", s.handleRAGStats)
		r.Get("/rag/audit/export", s.handleAuditExport)

		r.Get("/indexer/stats", s.handleIndexerStats)
		r.Get("/indexer/jobs", s.handleIndexerJobs)
		r.Post("/indexer/start", s.handleIndexerStart)
		r.Post("/indexer/stop", s.handleIndexerStop)
		r.Post("/indexer/scan", s.handleIndexerScan)
		r.Put("/indexer/config", s.handleIndexerConfig)
		r.Delete("/indexer/jobs/failed", s.handleClearFailedJobs)

		r.Get("/models", s.handleModels)
	})
	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: r,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
