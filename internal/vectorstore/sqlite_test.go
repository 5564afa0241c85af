package vectorstore

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperjump/yomitori/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "vectors.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func embedding(tenantID, documentID int64, vec []float32) *models.DocumentEmbedding {
	return &models.DocumentEmbedding{
		TenantID:     tenantID,
		DocumentID:   documentID,
		DocumentType: "invoice",
		FileName:     "doc.pdf",
		ContentText:  "some text",
		Embedding:    vec,
		Model:        "mock",
		FileSize:     100,
		ModTime:      time.Now(),
	}
}

func TestUpsertIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id1, err := s.Upsert(ctx, embedding(1, 10, []float32{1, 0, 0}))
	if err != nil {
		t.Fatal(err)
	}
	id2, err := s.Upsert(ctx, embedding(1, 10, []float32{0, 1, 0}))
	if err != nil {
		t.Fatal(err)
	}
	if id1 != id2 {
		t.Errorf("upsert created a second row: %d vs %d", id1, id2)
	}

	n, err := s.CountForTenant(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("count = %d, want 1", n)
	}

	got, err := s.Get(ctx, 1, 10)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.Embedding[1] != 1 {
		t.Errorf("latest embedding not stored: %+v", got)
	}
}

func TestUpsertRejectsEmptyEmbedding(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Upsert(context.Background(), embedding(1, 10, nil)); err == nil {
		t.Error("empty embedding should fail")
	}
}

func TestGetMissingReturnsNil(t *testing.T) {
	s := newTestStore(t)
	got, err := s.Get(context.Background(), 1, 999)
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Errorf("got %+v, want nil", got)
	}
}

func TestVectorRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	vec := []float32{0.1, -0.5, 3.25, 0, 1e-7}
	if _, err := s.Upsert(ctx, embedding(1, 10, vec)); err != nil {
		t.Fatal(err)
	}
	got, err := s.Get(ctx, 1, 10)
	if err != nil {
		t.Fatal(err)
	}
	for i := range vec {
		if got.Embedding[i] != vec[i] {
			t.Errorf("component %d = %f, want %f", i, got.Embedding[i], vec[i])
		}
	}
}

func TestFindSimilarTenantIsolation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Upsert(ctx, embedding(1, 10, []float32{1, 0, 0})); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Upsert(ctx, embedding(2, 20, []float32{1, 0, 0})); err != nil {
		t.Fatal(err)
	}

	hits, err := s.FindSimilar(ctx, 1, []float32{1, 0, 0}, 10, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 {
		t.Fatalf("got %d hits, want 1", len(hits))
	}
	if hits[0].TenantID != 1 || hits[0].DocumentID != 10 {
		t.Errorf("hit = %+v, crossed tenant boundary", hits[0])
	}
}

func TestFindSimilarOrderingAndThreshold(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	vecs := map[int64][]float32{
		1: {1, 0, 0},      // similarity 1.0
		2: {0.9, 0.1, 0},  // high
		3: {0, 1, 0},      // orthogonal, below threshold
		4: {0.5, 0.5, 0},  // medium
	}
	for docID, v := range vecs {
		if _, err := s.Upsert(ctx, embedding(1, docID, v)); err != nil {
			t.Fatal(err)
		}
	}

	hits, err := s.FindSimilar(ctx, 1, []float32{1, 0, 0}, 10, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 3 {
		t.Fatalf("got %d hits, want 3 (orthogonal vector excluded)", len(hits))
	}
	for i := 1; i < len(hits); i++ {
		if hits[i].Similarity > hits[i-1].Similarity {
			t.Errorf("hits not sorted: %f before %f", hits[i-1].Similarity, hits[i].Similarity)
		}
	}
	if hits[0].DocumentID != 1 {
		t.Errorf("best hit = %d, want 1", hits[0].DocumentID)
	}

	top2, err := s.FindSimilar(ctx, 1, []float32{1, 0, 0}, 2, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	if len(top2) != 2 {
		t.Errorf("topK not applied: %d hits", len(top2))
	}
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if _, err := s.Upsert(ctx, embedding(1, 10, []float32{1})); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, 1, 10); err != nil {
		t.Fatal(err)
	}
	got, err := s.Get(ctx, 1, 10)
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Error("embedding still present after delete")
	}
}

func TestCosineSimilarity(t *testing.T) {
	if sim := CosineSimilarity([]float32{1, 0}, []float32{1, 0}); math.Abs(sim-1) > 1e-9 {
		t.Errorf("identical = %f", sim)
	}
	if sim := CosineSimilarity([]float32{1, 0}, []float32{0, 1}); math.Abs(sim) > 1e-9 {
		t.Errorf("orthogonal = %f", sim)
	}
	if sim := CosineSimilarity([]float32{1, 0}, []float32{0, 0}); sim != 0 {
		t.Errorf("zero vector = %f", sim)
	}
	if sim := CosineSimilarity([]float32{1, 0}, []float32{1}); sim != 0 {
		t.Errorf("mismatched lengths = %f", sim)
	}
}
