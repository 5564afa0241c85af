package audit

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperjump/yomitori/internal/models"
)

func newTestLog(t *testing.T) *Log {
	t.Helper()
	l, err := NewLog(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func entry(tenantID int64, query string, cacheHit bool, respMs int64) *models.AuditEntry {
	return &models.AuditEntry{
		TenantID:     tenantID,
		QueryText:    query,
		QueryType:    "rag_search",
		TotalResults: 3,
		DocumentIDs:  []int64{1, 2, 3},
		Similarities: []float64{0.9, 0.8, 0.7},
		ResponseTime: respMs,
		CacheHit:     cacheHit,
	}
}

func TestRecordAndRecent(t *testing.T) {
	l := newTestLog(t)
	ctx := context.Background()

	e := entry(1, "find invoices", false, 120)
	if err := l.Record(ctx, e); err != nil {
		t.Fatal(err)
	}
	if e.ID == "" {
		t.Error("Record should assign an id")
	}

	recent, err := l.Recent(ctx, 1, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 1 {
		t.Fatalf("got %d entries", len(recent))
	}
	got := recent[0]
	if got.QueryText != "find invoices" || got.CacheHit {
		t.Errorf("entry = %+v", got)
	}
	if len(got.DocumentIDs) != 3 || got.DocumentIDs[0] != 1 {
		t.Errorf("document ids = %v", got.DocumentIDs)
	}
	if len(got.Similarities) != 3 {
		t.Errorf("similarities = %v", got.Similarities)
	}
}

func TestRecordClientContext(t *testing.T) {
	l := newTestLog(t)
	ctx := context.Background()

	e := entry(1, "find invoices", false, 120)
	e.UserAgent = "curl/8.5.0"
	e.IPAddress = "10.0.0.7:52114"
	if err := l.Record(ctx, e); err != nil {
		t.Fatal(err)
	}

	recent, err := l.Recent(ctx, 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 1 {
		t.Fatalf("got %d entries", len(recent))
	}
	got := recent[0]
	if got.UserAgent != "curl/8.5.0" {
		t.Errorf("user agent = %q", got.UserAgent)
	}
	if got.IPAddress != "10.0.0.7:52114" {
		t.Errorf("ip address = %q", got.IPAddress)
	}

	var buf bytes.Buffer
	if err := l.ExportCSV(ctx, 1, &buf); err != nil {
		t.Fatal(err)
	}
	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	uaCol, ipCol := -1, -1
	for i, name := range records[0] {
		switch name {
		case "user_agent":
			uaCol = i
		case "ip_address":
			ipCol = i
		}
	}
	if uaCol < 0 || ipCol < 0 {
		t.Fatalf("csv header missing client columns: %v", records[0])
	}
	if records[1][uaCol] != "curl/8.5.0" || records[1][ipCol] != "10.0.0.7:52114" {
		t.Errorf("csv row = %v", records[1])
	}
}

func TestStats(t *testing.T) {
	l := newTestLog(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := l.Record(ctx, entry(1, "find invoices", i > 0, 100)); err != nil {
			t.Fatal(err)
		}
	}
	if err := l.Record(ctx, entry(1, "contracts 2024", false, 300)); err != nil {
		t.Fatal(err)
	}
	// Another tenant's entry must not leak into tenant 1 stats.
	if err := l.Record(ctx, entry(2, "find invoices", false, 500)); err != nil {
		t.Fatal(err)
	}

	stats, err := l.Stats(ctx, 1, 24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalQueries != 4 {
		t.Errorf("total = %d, want 4", stats.TotalQueries)
	}
	if stats.AvgResponseTime != 150 {
		t.Errorf("avg response = %f, want 150", stats.AvgResponseTime)
	}
	if stats.CacheHitRate != 0.5 {
		t.Errorf("hit rate = %f, want 0.5", stats.CacheHitRate)
	}
	if len(stats.TopQueries) == 0 || stats.TopQueries[0].Query != "find invoices" || stats.TopQueries[0].Count != 3 {
		t.Errorf("top queries = %+v", stats.TopQueries)
	}
}

func TestStatsEmptyWindow(t *testing.T) {
	l := newTestLog(t)
	stats, err := l.Stats(context.Background(), 1, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalQueries != 0 || stats.AvgResponseTime != 0 || stats.CacheHitRate != 0 {
		t.Errorf("empty stats = %+v", stats)
	}
}

func TestExportJSON(t *testing.T) {
	l := newTestLog(t)
	ctx := context.Background()
	if err := l.Record(ctx, entry(1, "q1", false, 10)); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := l.ExportJSON(ctx, 1, &buf); err != nil {
		t.Fatal(err)
	}
	var out []models.AuditEntry
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("invalid JSON export: %v", err)
	}
	if len(out) != 1 || out[0].QueryText != "q1" {
		t.Errorf("export = %+v", out)
	}
}

func TestExportCSV(t *testing.T) {
	l := newTestLog(t)
	ctx := context.Background()
	if err := l.Record(ctx, entry(1, "q1", true, 10)); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := l.ExportCSV(ctx, 1, &buf); err != nil {
		t.Fatal(err)
	}
	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("invalid CSV export: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d rows, want header + 1", len(records))
	}
	if records[0][0] != "id" {
		t.Errorf("header = %v", records[0])
	}
	if records[1][4] != "q1" {
		t.Errorf("row = %v", records[1])
	}
}

func TestCleanOldLogs(t *testing.T) {
	l := newTestLog(t)
	ctx := context.Background()

	old := entry(1, "old query", false, 10)
	old.CreatedAt = time.Now().Add(-48 * time.Hour)
	if err := l.Record(ctx, old); err != nil {
		t.Fatal(err)
	}
	if err := l.Record(ctx, entry(1, "new query", false, 10)); err != nil {
		t.Fatal(err)
	}

	removed, err := l.CleanOldLogs(ctx, 24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	recent, err := l.Recent(ctx, 1, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 1 || recent[0].QueryText != "new query" {
		t.Errorf("remaining = %+v", recent)
	}
}
