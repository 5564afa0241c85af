package vectorstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/yomitori/internal/models"
)

// Store is the SQLite-backed embedding store. The unique index on
// (tenant_id, document_id) gives Upsert its idempotence, and every read is
// scoped by tenant_id.
type Store struct {
	db *sql.DB
}

// NewStore opens or creates the embedding database at dbPath.
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
	CREATE TABLE IF NOT EXISTS documents_embedding (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tenant_id INTEGER NOT NULL,
		document_id INTEGER NOT NULL,
		document_type TEXT,
		file_name TEXT,
		content_text TEXT,
		embedding BLOB NOT NULL,
		model TEXT NOT NULL,
		file_size INTEGER NOT NULL DEFAULT 0,
		mod_time TIMESTAMP,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		UNIQUE(tenant_id, document_id)
	);
	CREATE INDEX IF NOT EXISTS idx_embedding_tenant ON documents_embedding(tenant_id);
	`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Upsert inserts or replaces the embedding for (tenant, document) and
// returns the row id.
func (s *Store) Upsert(ctx context.Context, e *models.DocumentEmbedding) (int64, error) {
	if len(e.Embedding) == 0 {
		return 0, fmt.Errorf("tenant %d document %d: empty embedding", e.TenantID, e.DocumentID)
	}
	now := time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents_embedding
		 (tenant_id, document_id, document_type, file_name, content_text, embedding, model, file_size, mod_time, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(tenant_id, document_id) DO UPDATE SET
		 	document_type = excluded.document_type,
		 	file_name = excluded.file_name,
		 	content_text = excluded.content_text,
		 	embedding = excluded.embedding,
		 	model = excluded.model,
		 	file_size = excluded.file_size,
		 	mod_time = excluded.mod_time,
		 	updated_at = excluded.updated_at`,
		e.TenantID, e.DocumentID, e.DocumentType, e.FileName, e.ContentText,
		encodeVector(e.Embedding), e.Model, e.FileSize, e.ModTime, now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("upsert embedding for tenant %d document %d: %w", e.TenantID, e.DocumentID, err)
	}

	var id int64
	err = s.db.QueryRowContext(ctx,
		`SELECT id FROM documents_embedding WHERE tenant_id = ? AND document_id = ?`,
		e.TenantID, e.DocumentID,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("read back embedding id: %w", err)
	}
	e.ID = id
	return id, nil
}

// Get returns the embedding for (tenant, document), or nil when absent.
func (s *Store) Get(ctx context.Context, tenantID, documentID int64) (*models.DocumentEmbedding, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, document_id, document_type, file_name, content_text, embedding, model, file_size, mod_time, created_at, updated_at
		 FROM documents_embedding WHERE tenant_id = ? AND document_id = ?`,
		tenantID, documentID)
	e, err := scanEmbedding(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return e, err
}

// Delete removes the embedding for (tenant, document).
func (s *Store) Delete(ctx context.Context, tenantID, documentID int64) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM documents_embedding WHERE tenant_id = ? AND document_id = ?`,
		tenantID, documentID)
	return err
}

// GetTenantEmbeddings returns all embeddings for a tenant.
func (s *Store) GetTenantEmbeddings(ctx context.Context, tenantID int64) ([]*models.DocumentEmbedding, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tenant_id, document_id, document_type, file_name, content_text, embedding, model, file_size, mod_time, created_at, updated_at
		 FROM documents_embedding WHERE tenant_id = ? ORDER BY document_id`,
		tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.DocumentEmbedding
	for rows.Next() {
		e, err := scanEmbedding(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CountForTenant returns the number of embeddings for a tenant.
func (s *Store) CountForTenant(ctx context.Context, tenantID int64) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM documents_embedding WHERE tenant_id = ?`, tenantID).Scan(&n)
	return n, err
}

// FindSimilar runs cosine similarity over the tenant's embeddings and
// returns up to topK hits at or above threshold, ordered by similarity
// descending with document id as the stable tie-break.
func (s *Store) FindSimilar(ctx context.Context, tenantID int64, query []float32, topK int, threshold float64) ([]*models.SimilarDocument, error) {
	if len(query) == 0 {
		return nil, fmt.Errorf("empty query vector")
	}
	if topK <= 0 {
		topK = 5
	}
	embeddings, err := s.GetTenantEmbeddings(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("load tenant %d embeddings: %w", tenantID, err)
	}

	var hits []*models.SimilarDocument
	for _, e := range embeddings {
		sim := CosineSimilarity(query, e.Embedding)
		if sim >= threshold {
			hits = append(hits, &models.SimilarDocument{DocumentEmbedding: *e, Similarity: sim})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].DocumentID < hits[j].DocumentID
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEmbedding(row rowScanner) (*models.DocumentEmbedding, error) {
	var (
		e       models.DocumentEmbedding
		blob    []byte
		modTime sql.NullTime
	)
	err := row.Scan(&e.ID, &e.TenantID, &e.DocumentID, &e.DocumentType, &e.FileName,
		&e.ContentText, &blob, &e.Model, &e.FileSize, &modTime, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if modTime.Valid {
		e.ModTime = modTime.Time
	}
	vec, err := decodeVector(blob)
	if err != nil {
		return nil, fmt.Errorf("document %d: %w", e.DocumentID, err)
	}
	e.Embedding = vec
	return &e, nil
}
