// Package audit keeps an append-only log of RAG queries in SQLite. Logging
// failures are reported to the caller as errors, but callers on the query
// path are expected to fire-and-forget.
package audit

import (
	"context"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/yomitori/internal/models"
	"github.com/hyperjump/yomitori/pkg/utils"
)

// maxQueryTextLen caps stored query text so a pathological query cannot
// bloat the log.
const maxQueryTextLen = 2000

// Log is the append-only query log.
type Log struct {
	db *sql.DB
}

// NewLog opens or creates the audit database at dbPath.
func NewLog(dbPath string) (*Log, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	schema := `
	CREATE TABLE IF NOT EXISTS rag_query_log (
		id TEXT PRIMARY KEY,
		tenant_id INTEGER NOT NULL,
		user_id TEXT,
		session_id TEXT,
		query_text TEXT NOT NULL,
		query_type TEXT NOT NULL,
		total_results INTEGER NOT NULL,
		document_ids TEXT,
		similarities TEXT,
		response_time_ms INTEGER NOT NULL,
		embedding_model TEXT,
		cache_hit INTEGER NOT NULL,
		user_agent TEXT,
		ip_address TEXT,
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_rag_log_tenant_created ON rag_query_log(tenant_id, created_at);
	`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return &Log{db: db}, nil
}

// Record appends one entry. ID and CreatedAt are filled when empty.
func (l *Log) Record(ctx context.Context, e *models.AuditEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	e.QueryText = utils.Truncate(e.QueryText, maxQueryTextLen)
	docIDs, err := json.Marshal(e.DocumentIDs)
	if err != nil {
		return fmt.Errorf("marshal document ids: %w", err)
	}
	sims, err := json.Marshal(e.Similarities)
	if err != nil {
		return fmt.Errorf("marshal similarities: %w", err)
	}
	_, err = l.db.ExecContext(ctx,
		`INSERT INTO rag_query_log
		 (id, tenant_id, user_id, session_id, query_text, query_type, total_results, document_ids, similarities, response_time_ms, embedding_model, cache_hit, user_agent, ip_address, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.TenantID, e.UserID, e.SessionID, e.QueryText, e.QueryType,
		e.TotalResults, string(docIDs), string(sims), e.ResponseTime,
		e.EmbeddingModel, boolInt(e.CacheHit), e.UserAgent, e.IPAddress, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

// Stats summarizes a tenant's queries over the trailing window.
func (l *Log) Stats(ctx context.Context, tenantID int64, window time.Duration) (*models.RAGStats, error) {
	since := time.Now().Add(-window)

	var (
		total   int64
		avgResp sql.NullFloat64
		hits    sql.NullFloat64
	)
	err := l.db.QueryRowContext(ctx,
		`SELECT COUNT(*), AVG(response_time_ms), AVG(cache_hit)
		 FROM rag_query_log WHERE tenant_id = ? AND created_at >= ?`,
		tenantID, since).Scan(&total, &avgResp, &hits)
	if err != nil {
		return nil, fmt.Errorf("aggregate stats: %w", err)
	}

	stats := &models.RAGStats{
		TotalQueries: total,
		Window:       window.String(),
	}
	if avgResp.Valid {
		stats.AvgResponseTime = avgResp.Float64
	}
	if hits.Valid {
		stats.CacheHitRate = hits.Float64
	}

	rows, err := l.db.QueryContext(ctx,
		`SELECT query_text, COUNT(*) AS n
		 FROM rag_query_log WHERE tenant_id = ? AND created_at >= ?
		 GROUP BY query_text ORDER BY n DESC, query_text LIMIT 10`,
		tenantID, since)
	if err != nil {
		return nil, fmt.Errorf("top queries: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var qc models.QueryCount
		if err := rows.Scan(&qc.Query, &qc.Count); err != nil {
			return nil, err
		}
		stats.TopQueries = append(stats.TopQueries, qc)
	}
	return stats, rows.Err()
}

// Recent returns the tenant's newest entries, up to limit.
func (l *Log) Recent(ctx context.Context, tenantID int64, limit int) ([]*models.AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, tenant_id, user_id, session_id, query_text, query_type, total_results, document_ids, similarities, response_time_ms, embedding_model, cache_hit, user_agent, ip_address, created_at
		 FROM rag_query_log WHERE tenant_id = ? ORDER BY created_at DESC LIMIT ?`,
		tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.AuditEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ExportJSON writes the tenant's full log as a JSON array.
func (l *Log) ExportJSON(ctx context.Context, tenantID int64, w io.Writer) error {
	entries, err := l.all(ctx, tenantID)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(entries)
}

// ExportCSV writes the tenant's full log as CSV with a header row.
func (l *Log) ExportCSV(ctx context.Context, tenantID int64, w io.Writer) error {
	entries, err := l.all(ctx, tenantID)
	if err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	header := []string{"id", "tenant_id", "user_id", "session_id", "query_text", "query_type", "total_results", "response_time_ms", "embedding_model", "cache_hit", "user_agent", "ip_address", "created_at"}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, e := range entries {
		rec := []string{
			e.ID,
			strconv.FormatInt(e.TenantID, 10),
			e.UserID,
			e.SessionID,
			e.QueryText,
			e.QueryType,
			strconv.Itoa(e.TotalResults),
			strconv.FormatInt(e.ResponseTime, 10),
			e.EmbeddingModel,
			strconv.FormatBool(e.CacheHit),
			e.UserAgent,
			e.IPAddress,
			e.CreatedAt.Format(time.RFC3339),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// CleanOldLogs deletes entries older than retention and returns how many
// rows were removed.
func (l *Log) CleanOldLogs(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention)
	res, err := l.db.ExecContext(ctx,
		`DELETE FROM rag_query_log WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("clean old logs: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the underlying database.
func (l *Log) Close() error {
	return l.db.Close()
}

func (l *Log) all(ctx context.Context, tenantID int64) ([]*models.AuditEntry, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, tenant_id, user_id, session_id, query_text, query_type, total_results, document_ids, similarities, response_time_ms, embedding_model, cache_hit, user_agent, ip_address, created_at
		 FROM rag_query_log WHERE tenant_id = ? ORDER BY created_at`,
		tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*models.AuditEntry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row rowScanner) (*models.AuditEntry, error) {
	var (
		e         models.AuditEntry
		docIDs    sql.NullString
		sims      sql.NullString
		cacheHit  int
		userAgent sql.NullString
		ipAddress sql.NullString
	)
	err := row.Scan(&e.ID, &e.TenantID, &e.UserID, &e.SessionID, &e.QueryText,
		&e.QueryType, &e.TotalResults, &docIDs, &sims, &e.ResponseTime,
		&e.EmbeddingModel, &cacheHit, &userAgent, &ipAddress, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	e.CacheHit = cacheHit != 0
	e.UserAgent = userAgent.String
	e.IPAddress = ipAddress.String
	if docIDs.Valid && docIDs.String != "" && docIDs.String != "null" {
		if err := json.Unmarshal([]byte(docIDs.String), &e.DocumentIDs); err != nil {
			return nil, fmt.Errorf("unmarshal document ids: %w", err)
		}
	}
	if sims.Valid && sims.String != "" && sims.String != "null" {
		if err := json.Unmarshal([]byte(sims.String), &e.Similarities); err != nil {
			return nil, fmt.Errorf("unmarshal similarities: %w", err)
		}
	}
	return &e, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
