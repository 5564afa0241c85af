// Package features computes the numeric feature vector that drives document
// classification. Extraction is deterministic and never fails: unusable input
// yields conservative defaults rather than an error.
package features

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/hyperjump/yomitori/internal/models"
)

// documentKeywords are the domain terms whose density signals a business
// document, with Portuguese variants alongside the English ones.
var documentKeywords = []string{
	"invoice", "receipt", "contract", "report", "statement",
	"fatura", "recibo", "contrato", "extrato", "despesa",
}

var (
	currencyRe = regexp.MustCompile(`(?i)(\$|€|£|R\$|USD|EUR|BRL)\s*\d`)
	amountRe   = regexp.MustCompile(`\d+[.,]\d{2}\b`)
)

// portugueseMarkers are common Portuguese function words used for the
// language heuristic.
var portugueseMarkers = []string{
	"de", "da", "do", "para", "com", "não", "são", "uma", "pelo", "pela",
}

var englishMarkers = []string{
	"the", "of", "and", "for", "with", "this", "that", "from", "are", "is",
}

// Hints carries structural information the text alone cannot show, typically
// from the PDF layout scan. Zero values are valid.
type Hints struct {
	PageCount  int
	ImageCount int
	TableCount int
}

// Extractor computes DocumentFeatures from extracted text.
type Extractor struct{}

// NewExtractor returns a feature extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract computes the feature vector for text of the given file type.
func (e *Extractor) Extract(text, fileType string, hints Hints) models.DocumentFeatures {
	fileType = strings.ToLower(fileType)
	words := strings.Fields(strings.ToLower(text))

	f := models.DocumentFeatures{
		FileType:         fileType,
		DocumentLength:   clamp01(float64(len(text)) / 10000.0),
		OCRQuality:       ocrQuality(text, fileType),
		KeywordDensity:   keywordDensity(words),
		TableDensity:     tableDensity(text, hints),
		ImageDensity:     imageDensity(fileType, hints),
		TextComplexity:   textComplexity(words),
		LanguageDetected: detectLanguage(words),
	}
	f.HasStructuredData = f.TableDensity > 0.3 ||
		currencyRe.MatchString(text) || amountRe.MatchString(text)
	return f
}

// ocrQuality estimates how cleanly the text was recognized: the share of
// printable characters weighted by how word-like the tokens are. Image inputs
// without extracted text score low until an OCR source fills them in.
func ocrQuality(text, fileType string) float64 {
	if len(text) == 0 {
		if isImageType(fileType) {
			return 0.3
		}
		return 0.5
	}
	printable := 0
	for _, r := range text {
		if unicode.IsPrint(r) || r == '\n' || r == '\t' {
			printable++
		}
	}
	ratio := float64(printable) / float64(len([]rune(text)))

	words := strings.Fields(text)
	wordLike := 0
	for _, w := range words {
		letters := 0
		for _, r := range w {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				letters++
			}
		}
		if letters*2 >= len([]rune(w)) {
			wordLike++
		}
	}
	wordRatio := 1.0
	if len(words) > 0 {
		wordRatio = float64(wordLike) / float64(len(words))
	}
	return clamp01(0.5*ratio + 0.5*wordRatio)
}

func keywordDensity(words []string) float64 {
	if len(words) == 0 {
		return 0
	}
	hits := 0
	for _, w := range words {
		w = strings.Trim(w, ".,;:!?#()")
		for _, kw := range documentKeywords {
			if w == kw {
				hits++
				break
			}
		}
	}
	// 1 keyword per 20 words saturates the signal.
	return clamp01(float64(hits) * 20.0 / float64(len(words)))
}

func tableDensity(text string, hints Hints) float64 {
	if hints.TableCount > 0 && hints.PageCount > 0 {
		return clamp01(float64(hints.TableCount) / float64(hints.PageCount))
	}
	lines := strings.Split(text, "\n")
	if len(lines) == 0 {
		return 0
	}
	tabular := 0
	for _, line := range lines {
		if strings.Count(line, "\t") >= 2 || strings.Count(line, "|") >= 2 {
			tabular++
			continue
		}
		if amountRe.MatchString(line) && len(strings.Fields(line)) >= 3 {
			tabular++
		}
	}
	return clamp01(float64(tabular) / float64(len(lines)))
}

func imageDensity(fileType string, hints Hints) float64 {
	if isImageType(fileType) {
		return 1.0
	}
	if hints.PageCount > 0 {
		return clamp01(float64(hints.ImageCount) / float64(hints.PageCount))
	}
	return 0
}

// textComplexity blends average word length with vocabulary diversity.
func textComplexity(words []string) float64 {
	if len(words) == 0 {
		return 0
	}
	totalLen := 0
	unique := make(map[string]struct{}, len(words))
	for _, w := range words {
		totalLen += len([]rune(w))
		unique[w] = struct{}{}
	}
	avgLen := float64(totalLen) / float64(len(words))
	diversity := float64(len(unique)) / float64(len(words))
	return clamp01(0.5*(avgLen/10.0) + 0.5*diversity)
}

func detectLanguage(words []string) string {
	if len(words) == 0 {
		return "unknown"
	}
	pt, en := 0, 0
	for _, w := range words {
		for _, m := range portugueseMarkers {
			if w == m {
				pt++
				break
			}
		}
		for _, m := range englishMarkers {
			if w == m {
				en++
				break
			}
		}
	}
	switch {
	case pt == 0 && en == 0:
		return "unknown"
	case pt > en:
		return "pt"
	default:
		return "en"
	}
}

func isImageType(fileType string) bool {
	switch fileType {
	case "jpg", "jpeg", "png", "tiff":
		return true
	}
	return false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
