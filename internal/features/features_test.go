package features

import (
	"strings"
	"testing"
)

func TestExtractDeterministic(t *testing.T) {
	e := NewExtractor()
	text := "Invoice #1001\nVendor: Acme Corp\nTotal: $150.00\n"
	a := e.Extract(text, "pdf", Hints{})
	b := e.Extract(text, "pdf", Hints{})
	if a != b {
		t.Errorf("same input produced different features:\n%+v\n%+v", a, b)
	}
}

func TestExtractEmptyInput(t *testing.T) {
	e := NewExtractor()
	f := e.Extract("", "pdf", Hints{})
	if f.DocumentLength != 0 || f.KeywordDensity != 0 || f.TableDensity != 0 {
		t.Errorf("empty input should yield zero densities: %+v", f)
	}
	if f.LanguageDetected != "unknown" {
		t.Errorf("language = %q, want unknown", f.LanguageDetected)
	}
	if f.FileType != "pdf" {
		t.Errorf("file type = %q", f.FileType)
	}
}

func TestKeywordDensitySignals(t *testing.T) {
	e := NewExtractor()
	invoice := e.Extract("invoice invoice total amount due invoice", "pdf", Hints{})
	prose := e.Extract("the quick brown fox jumps over the lazy dog again", "pdf", Hints{})
	if invoice.KeywordDensity <= prose.KeywordDensity {
		t.Errorf("invoice density %f should exceed prose density %f",
			invoice.KeywordDensity, prose.KeywordDensity)
	}
}

func TestImageDensity(t *testing.T) {
	e := NewExtractor()
	if f := e.Extract("", "jpg", Hints{}); f.ImageDensity != 1.0 {
		t.Errorf("jpg image density = %f, want 1.0", f.ImageDensity)
	}
	if f := e.Extract("plain text", "pdf", Hints{PageCount: 4, ImageCount: 2}); f.ImageDensity != 0.5 {
		t.Errorf("pdf with hints image density = %f, want 0.5", f.ImageDensity)
	}
}

func TestTableDensityFromText(t *testing.T) {
	e := NewExtractor()
	table := strings.Repeat("item\t2\t30.00\n", 10)
	f := e.Extract(table, "xlsx", Hints{})
	if f.TableDensity < 0.5 {
		t.Errorf("tabular text density = %f, want >= 0.5", f.TableDensity)
	}
	if !f.HasStructuredData {
		t.Error("tabular text should report structured data")
	}
}

func TestStructuredDataFromCurrency(t *testing.T) {
	e := NewExtractor()
	f := e.Extract("Total due: $1,234.56 by Friday", "pdf", Hints{})
	if !f.HasStructuredData {
		t.Error("currency amount should report structured data")
	}
}

func TestLanguageDetection(t *testing.T) {
	e := NewExtractor()
	pt := e.Extract("fatura de consumo para cliente com valores do mês não pagos", "pdf", Hints{})
	if pt.LanguageDetected != "pt" {
		t.Errorf("language = %q, want pt", pt.LanguageDetected)
	}
	en := e.Extract("this is the statement of the account for this month", "pdf", Hints{})
	if en.LanguageDetected != "en" {
		t.Errorf("language = %q, want en", en.LanguageDetected)
	}
}

func TestDensitiesBounded(t *testing.T) {
	e := NewExtractor()
	f := e.Extract(strings.Repeat("invoice fatura recibo ", 5000), "png", Hints{PageCount: 1, ImageCount: 50, TableCount: 90})
	for name, v := range map[string]float64{
		"documentLength": f.DocumentLength,
		"ocrQuality":     f.OCRQuality,
		"keywordDensity": f.KeywordDensity,
		"tableDensity":   f.TableDensity,
		"imageDensity":   f.ImageDensity,
		"textComplexity": f.TextComplexity,
	} {
		if v < 0 || v > 1 {
			t.Errorf("%s = %f out of [0,1]", name, v)
		}
	}
}
