package classifier

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// TrainingStore persists training samples and learned weights in SQLite so
// classifier state survives restarts.
type TrainingStore struct {
	db *sql.DB
}

// NewTrainingStore opens or creates the training database at dbPath.
func NewTrainingStore(dbPath string) (*TrainingStore, error) {
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
	CREATE TABLE IF NOT EXISTS training_samples (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tenant_id INTEGER NOT NULL,
		features TEXT NOT NULL,
		used_vision INTEGER NOT NULL,
		used_consensus INTEGER NOT NULL,
		accuracy REAL NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_training_tenant ON training_samples(tenant_id);

	CREATE TABLE IF NOT EXISTS classifier_weights (
		name TEXT PRIMARY KEY,
		weight REAL NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return &TrainingStore{db: db}, nil
}

// SaveSamples appends samples in one transaction.
func (s *TrainingStore) SaveSamples(samples []TrainingSample) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO training_samples (tenant_id, features, used_vision, used_consensus, accuracy, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now()
	for _, sample := range samples {
		featJSON, err := json.Marshal(sample.Features)
		if err != nil {
			return fmt.Errorf("marshal features: %w", err)
		}
		if _, err := stmt.Exec(sample.TenantID, string(featJSON),
			boolInt(sample.UsedVision), boolInt(sample.UsedConsensus),
			sample.Accuracy, now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Count returns the number of stored samples.
func (s *TrainingStore) Count() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM training_samples`).Scan(&n)
	return n, err
}

// SaveWeights upserts the full weight vector.
func (s *TrainingStore) SaveWeights(weights map[string]float64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO classifier_weights (name, weight, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET weight = excluded.weight, updated_at = excluded.updated_at`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now()
	for name, w := range weights {
		if _, err := stmt.Exec(name, w, now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// LoadWeights returns the stored weight vector, or nil when none was saved.
func (s *TrainingStore) LoadWeights() (map[string]float64, error) {
	rows, err := s.db.Query(`SELECT name, weight FROM classifier_weights`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var name string
		var w float64
		if err := rows.Scan(&name, &w); err != nil {
			return nil, err
		}
		out[name] = w
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

// Close closes the underlying database.
func (s *TrainingStore) Close() error {
	return s.db.Close()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
