package router

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/hyperjump/yomitori/internal/models"
)

// TextSource is the built-in extraction source: rule-based field extraction
// over already-extracted text. External engines register alongside it; on a
// bare deployment it is what the basic pipeline runs.
type TextSource struct{}

// NewTextSource returns the built-in text extraction source.
func NewTextSource() *TextSource {
	return &TextSource{}
}

// Name implements Source.
func (t *TextSource) Name() string { return "text-rules" }

var (
	amountRe = regexp.MustCompile(`(?:R\$|US\$|\$|€|EUR|USD|BRL)\s*([0-9][0-9.,]*)`)
	dateRe   = regexp.MustCompile(`\b(\d{1,2}[/-]\d{1,2}[/-]\d{2,4}|\d{4}-\d{2}-\d{2})\b`)
	totalRe  = regexp.MustCompile(`(?i)\b(?:total|amount due|valor total)\b[:\s]*(?:R\$|US\$|\$|€)?\s*([0-9][0-9.,]*)`)
)

// Extract implements Source. It never calls out anywhere, so its confidence
// is moderate: real engines should outscore it.
func (t *TextSource) Extract(ctx context.Context, doc Document) (*models.ExtractionResult, error) {
	start := time.Now()
	data := make(map[string]interface{})

	text := doc.Text
	if vendor := firstLine(text); vendor != "" {
		data["vendor"] = vendor
	}
	if m := totalRe.FindStringSubmatch(text); m != nil {
		if v, ok := parseAmount(m[1]); ok {
			data["amount"] = v
		}
	} else if m := amountRe.FindStringSubmatch(text); m != nil {
		if v, ok := parseAmount(m[1]); ok {
			data["amount"] = v
		}
	}
	if m := dateRe.FindString(text); m != "" {
		data["date"] = m
	}
	if doc.DocType != "" {
		data["category"] = doc.DocType
	}

	confidence := 0.5
	if len(data) >= 3 {
		confidence = 0.7
	}
	return &models.ExtractionResult{
		Source:         t.Name(),
		Data:           data,
		Confidence:     confidence,
		ProcessingTime: time.Since(start).Milliseconds(),
	}, nil
}

func firstLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			if len(line) > 80 {
				line = line[:80]
			}
			return line
		}
	}
	return ""
}

// parseAmount handles both 1.234,56 and 1,234.56 conventions.
func parseAmount(raw string) (float64, bool) {
	lastComma := strings.LastIndexByte(raw, ',')
	lastDot := strings.LastIndexByte(raw, '.')
	switch {
	case lastComma > lastDot:
		raw = strings.ReplaceAll(raw, ".", "")
		raw = strings.Replace(raw, ",", ".", 1)
	default:
		raw = strings.ReplaceAll(raw, ",", "")
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
