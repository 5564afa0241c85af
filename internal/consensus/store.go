package consensus

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/yomitori/internal/models"
)

// Store persists consensus results in SQLite, one row per (tenant, document).
type Store struct {
	db *sql.DB
}

// NewStore opens or creates the consensus database at dbPath.
func NewStore(dbPath string) (*Store, error) {
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
	CREATE TABLE IF NOT EXISTS consensus_results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tenant_id INTEGER NOT NULL,
		document_id INTEGER NOT NULL,
		data TEXT NOT NULL,
		fields TEXT NOT NULL,
		line_items TEXT,
		confidence REAL NOT NULL,
		method TEXT NOT NULL,
		source_count INTEGER NOT NULL,
		processing_time_ms INTEGER NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		UNIQUE(tenant_id, document_id)
	);
	`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Upsert inserts or replaces the consensus row for (tenant, document).
func (s *Store) Upsert(r *models.ConsensusResult) error {
	dataJSON, err := json.Marshal(r.Data)
	if err != nil {
		return fmt.Errorf("marshal data: %w", err)
	}
	fieldsJSON, err := json.Marshal(r.Fields)
	if err != nil {
		return fmt.Errorf("marshal fields: %w", err)
	}
	itemsJSON, err := json.Marshal(r.LineItems)
	if err != nil {
		return fmt.Errorf("marshal line items: %w", err)
	}

	now := time.Now()
	_, err = s.db.Exec(
		`INSERT INTO consensus_results
		 (tenant_id, document_id, data, fields, line_items, confidence, method, source_count, processing_time_ms, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(tenant_id, document_id) DO UPDATE SET
		 	data = excluded.data,
		 	fields = excluded.fields,
		 	line_items = excluded.line_items,
		 	confidence = excluded.confidence,
		 	method = excluded.method,
		 	source_count = excluded.source_count,
		 	processing_time_ms = excluded.processing_time_ms,
		 	updated_at = excluded.updated_at`,
		r.TenantID, r.DocumentID, string(dataJSON), string(fieldsJSON), string(itemsJSON),
		r.Confidence, r.ConsensusMethod, r.SourceCount, r.ProcessingTime, now, now,
	)
	return err
}

// Get returns the stored consensus for (tenant, document), or nil when absent.
func (s *Store) Get(tenantID, documentID int64) (*models.ConsensusResult, error) {
	var (
		r          models.ConsensusResult
		dataJSON   string
		fieldsJSON string
		itemsJSON  sql.NullString
	)
	err := s.db.QueryRow(
		`SELECT tenant_id, document_id, data, fields, line_items, confidence, method, source_count, processing_time_ms, created_at
		 FROM consensus_results WHERE tenant_id = ? AND document_id = ?`,
		tenantID, documentID,
	).Scan(&r.TenantID, &r.DocumentID, &dataJSON, &fieldsJSON, &itemsJSON,
		&r.Confidence, &r.ConsensusMethod, &r.SourceCount, &r.ProcessingTime, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(dataJSON), &r.Data); err != nil {
		return nil, fmt.Errorf("unmarshal data: %w", err)
	}
	if err := json.Unmarshal([]byte(fieldsJSON), &r.Fields); err != nil {
		return nil, fmt.Errorf("unmarshal fields: %w", err)
	}
	if itemsJSON.Valid && itemsJSON.String != "" && itemsJSON.String != "null" {
		if err := json.Unmarshal([]byte(itemsJSON.String), &r.LineItems); err != nil {
			return nil, fmt.Errorf("unmarshal line items: %w", err)
		}
	}
	return &r, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
