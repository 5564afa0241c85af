package keyword

import (
	"context"
	"testing"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := NewMemIndex()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

func TestIndexAndSearch(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	if err := idx.Index(ctx, 1, 10, "invoice", "invoice_jan.pdf", "invoice for consulting services, total 1500"); err != nil {
		t.Fatal(err)
	}
	if err := idx.Index(ctx, 1, 11, "receipt", "receipt.pdf", "grocery receipt from the supermarket"); err != nil {
		t.Fatal(err)
	}

	hits, err := idx.Search(ctx, 1, "consulting", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 {
		t.Fatalf("got %d hits, want 1", len(hits))
	}
	if hits[0].DocumentID != 10 {
		t.Errorf("hit document = %d, want 10", hits[0].DocumentID)
	}
	if hits[0].Score <= 0 {
		t.Errorf("score = %f, want > 0", hits[0].Score)
	}
}

func TestSearchTenantIsolation(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	if err := idx.Index(ctx, 1, 10, "invoice", "a.pdf", "confidential acquisition contract"); err != nil {
		t.Fatal(err)
	}
	if err := idx.Index(ctx, 2, 20, "invoice", "b.pdf", "confidential acquisition contract"); err != nil {
		t.Fatal(err)
	}

	hits, err := idx.Search(ctx, 1, "confidential acquisition", 10)
	if err != nil {
		t.Fatal(err)
	}
	for _, h := range hits {
		if h.TenantID != 1 {
			t.Errorf("hit from tenant %d leaked into tenant 1 search", h.TenantID)
		}
	}
	if len(hits) != 1 {
		t.Errorf("got %d hits, want 1", len(hits))
	}
}

func TestReindexReplaces(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	if err := idx.Index(ctx, 1, 10, "invoice", "a.pdf", "original wording"); err != nil {
		t.Fatal(err)
	}
	if err := idx.Index(ctx, 1, 10, "invoice", "a.pdf", "revised wording"); err != nil {
		t.Fatal(err)
	}

	n, err := idx.DocCount()
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("doc count = %d, want 1 after reindex", n)
	}

	hits, err := idx.Search(ctx, 1, "original", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 0 {
		t.Errorf("stale content still indexed: %+v", hits)
	}
}

func TestDelete(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	if err := idx.Index(ctx, 1, 10, "invoice", "a.pdf", "to be removed"); err != nil {
		t.Fatal(err)
	}
	if err := idx.Delete(ctx, 1, 10); err != nil {
		t.Fatal(err)
	}
	hits, err := idx.Search(ctx, 1, "removed", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 0 {
		t.Errorf("document still searchable after delete")
	}
}

func TestParseDocKey(t *testing.T) {
	tid, did, ok := parseDocKey("7:42")
	if !ok || tid != 7 || did != 42 {
		t.Errorf("parseDocKey = %d, %d, %v", tid, did, ok)
	}
	if _, _, ok := parseDocKey("no-separator"); ok {
		t.Error("malformed key parsed")
	}
	if _, _, ok := parseDocKey("x:1"); ok {
		t.Error("non-numeric tenant parsed")
	}
}
