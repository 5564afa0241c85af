package embedding

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hyperjump/yomitori/internal/models"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	reg := NewRegistry()
	reg.Register(NewMockBackend(64))
	return NewService(reg, WithDefaultModel(ModelMock))
}

func invoiceContent() models.DocumentContent {
	return models.DocumentContent{
		Title:   "invoice_001.pdf",
		Type:    "invoice",
		Content: "Invoice #1001 Vendor: Acme Total: 150.00",
		Metadata: map[string]interface{}{
			"vendor":   "Acme",
			"amount":   150.0,
			"currency": "USD",
			"ignored":  "not in the key list",
		},
	}
}

func TestGenerateEmbeddingDeterministic(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	a, err := s.GenerateEmbedding(ctx, invoiceContent(), ModelMock)
	if err != nil {
		t.Fatal(err)
	}
	s.ClearCache()
	b, err := s.GenerateEmbedding(ctx, invoiceContent(), ModelMock)
	if err != nil {
		t.Fatal(err)
	}
	if len(a.Embedding) != 64 || len(b.Embedding) != 64 {
		t.Fatalf("dims = %d, %d", len(a.Embedding), len(b.Embedding))
	}
	for i := range a.Embedding {
		if a.Embedding[i] != b.Embedding[i] {
			t.Fatalf("embedding differs at %d", i)
		}
	}
}

func TestGenerateEmbeddingCacheMarker(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	first, err := s.GenerateEmbedding(ctx, invoiceContent(), ModelMock)
	if err != nil {
		t.Fatal(err)
	}
	if first.Cached || strings.Contains(first.Model, "(cached)") {
		t.Errorf("first call must not be cached: %+v", first)
	}

	second, err := s.GenerateEmbedding(ctx, invoiceContent(), ModelMock)
	if err != nil {
		t.Fatal(err)
	}
	if !second.Cached {
		t.Error("second call should hit the cache")
	}
	if !strings.HasSuffix(second.Model, " (cached)") {
		t.Errorf("model = %q, want (cached) suffix", second.Model)
	}
	for i := range first.Embedding {
		if first.Embedding[i] != second.Embedding[i] {
			t.Fatal("cached embedding differs from original")
		}
	}

	stats := s.CacheStats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestGenerateEmbeddingUnknownModel(t *testing.T) {
	s := newTestService(t)
	_, err := s.GenerateEmbedding(context.Background(), invoiceContent(), "instructor-xl")
	if !errors.Is(err, ErrModelUnavailable) {
		t.Errorf("err = %v, want ErrModelUnavailable", err)
	}
}

func TestPrepareText(t *testing.T) {
	text := PrepareText(invoiceContent())
	for _, want := range []string{"Title: invoice_001.pdf", "Type: invoice", "Content: Invoice #1001", "vendor: Acme", "currency: USD"} {
		if !strings.Contains(text, want) {
			t.Errorf("prepared text missing %q:\n%s", want, text)
		}
	}
	if strings.Contains(text, "ignored") {
		t.Error("metadata outside the key list must not be embedded")
	}
	sections := strings.Split(text, "\n\n")
	if len(sections) != 4 {
		t.Errorf("got %d sections, want 4", len(sections))
	}
}

func TestPrepareTextCapsContent(t *testing.T) {
	c := models.DocumentContent{Content: strings.Repeat("x", 10000)}
	text := PrepareText(c)
	if len(text) > len("Content: ")+4000 {
		t.Errorf("content not capped: %d chars", len(text))
	}
}

func TestContentHashChangesWithMetadata(t *testing.T) {
	a := invoiceContent()
	b := invoiceContent()
	b.Metadata["vendor"] = "Other Corp"
	if ContentHash(PrepareText(a)) == ContentHash(PrepareText(b)) {
		t.Error("different metadata must hash differently")
	}
}

func TestCacheTTLExpiry(t *testing.T) {
	c := NewCache(10, time.Hour)
	now := time.Now()
	c.now = func() time.Time { return now }

	c.Set("k", []float32{1, 2})
	if _, ok := c.Get("k"); !ok {
		t.Fatal("fresh entry should hit")
	}

	now = now.Add(2 * time.Hour)
	if _, ok := c.Get("k"); ok {
		t.Error("expired entry should miss")
	}
	if c.Stats().Entries != 0 {
		t.Errorf("expired entry not evicted: %+v", c.Stats())
	}
}

func TestCacheEvictsAtCapacity(t *testing.T) {
	c := NewCache(2, time.Hour)
	c.Set("a", []float32{1})
	c.Set("b", []float32{2})
	c.Set("c", []float32{3})
	if _, ok := c.Get("a"); ok {
		t.Error("oldest entry should have been evicted")
	}
	if _, ok := c.Get("c"); !ok {
		t.Error("newest entry should be present")
	}
	if c.Stats().Entries != 2 {
		t.Errorf("entries = %d", c.Stats().Entries)
	}
}

func TestRegistryModels(t *testing.T) {
	reg := NewRegistry()
	reg.Register(NewMockBackend(8))
	models := reg.Models()
	if len(models) != 1 || models[0] != ModelMock {
		t.Errorf("models = %v", models)
	}
	if _, err := reg.Get("openai"); !errors.Is(err, ErrModelUnavailable) {
		t.Errorf("unregistered get err = %v", err)
	}
}
