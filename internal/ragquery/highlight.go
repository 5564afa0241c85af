package ragquery

import (
	"regexp"
	"strings"
)

const (
	snippetMaxLength = 300
	snippetLeadIn    = 100
	minHighlightLen  = 3
)

// highlightTerms wraps query terms in **bold** markers. Terms shorter than
// three characters are skipped so articles and prepositions stay quiet.
func highlightTerms(text, query string) string {
	for _, word := range strings.Fields(query) {
		if len(word) < minHighlightLen {
			continue
		}
		re, err := regexp.Compile(`(?i)\b(` + regexp.QuoteMeta(word) + `)\b`)
		if err != nil {
			continue
		}
		text = re.ReplaceAllString(text, "**$1**")
	}
	return text
}

// snippetFor extracts a window of content around the first query term match
// and highlights the terms. With no match the snippet is the head of the
// content.
func snippetFor(content, query string) string {
	snippet := windowAround(content, query)
	snippet = truncateAtWord(snippet, snippetMaxLength)
	return highlightTerms(snippet, query)
}

func windowAround(content, query string) string {
	lower := strings.ToLower(content)
	first := -1
	for _, word := range strings.Fields(strings.ToLower(query)) {
		if len(word) < minHighlightLen {
			continue
		}
		if idx := strings.Index(lower, word); idx >= 0 && (first < 0 || idx < first) {
			first = idx
		}
	}
	if first <= snippetLeadIn {
		return content
	}
	start := first - snippetLeadIn
	// Snap forward to a word boundary so the snippet never opens mid-word.
	if sp := strings.IndexByte(content[start:first], ' '); sp >= 0 {
		start += sp + 1
	}
	return content[start:]
}

// truncateAtWord cuts text at maxLen, stepping back to the last space when
// one falls in the final fifth of the window.
func truncateAtWord(text string, maxLen int) string {
	if len(text) <= maxLen {
		return text
	}
	cut := text[:maxLen]
	if lastSpace := strings.LastIndexByte(cut, ' '); lastSpace > int(float64(maxLen)*0.8) {
		cut = cut[:lastSpace]
	}
	return cut + "..."
}
