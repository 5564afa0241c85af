package router

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Layout types reported by the pre-router.
const (
	LayoutText    = "text"
	LayoutTabular = "tabular"
	LayoutMixed   = "mixed"
	LayoutImage   = "image"
)

// LayoutInfo is the cheap structural summary of a PDF used to pre-route
// before feature extraction.
type LayoutInfo struct {
	PageCount     int    `json:"pageCount"`
	ImageCount    int    `json:"imageCount"`
	TableRowCount int    `json:"tableRowCount"`
	TextLength    int    `json:"textLength"`
	Type          string `json:"type"`
	// ShortCircuit is set when the document is plain running text and can
	// skip classification entirely.
	ShortCircuit bool `json:"shortCircuit"`
}

// AnalyzeLayout scans a PDF's structure without full extraction: it counts
// pages, image XObjects, and column-aligned text rows.
func AnalyzeLayout(content []byte) (*LayoutInfo, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("open PDF for layout scan: %w", err)
	}

	info := &LayoutInfo{PageCount: r.NumPage()}
	for i := 1; i <= info.PageCount; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		info.ImageCount += countImageXObjects(page)
		rows, textLen := scanTextRows(page)
		info.TableRowCount += rows
		info.TextLength += textLen
	}

	info.Type = layoutType(info)
	info.ShortCircuit = info.Type == LayoutText
	return info, nil
}

// countImageXObjects counts /Image XObjects in the page's resources.
func countImageXObjects(page pdf.Page) int {
	resources := page.V.Key("Resources")
	if resources.IsNull() {
		return 0
	}
	xobjects := resources.Key("XObject")
	if xobjects.IsNull() {
		return 0
	}
	count := 0
	for _, name := range xobjects.Keys() {
		obj := xobjects.Key(name)
		if obj.IsNull() {
			continue
		}
		if obj.Key("Subtype").Name() == "Image" {
			count++
		}
	}
	return count
}

// scanTextRows groups positioned text by Y coordinate and counts rows with
// three or more separated runs, which is how tables render.
func scanTextRows(page pdf.Page) (tableRows, textLen int) {
	defer func() {
		// Malformed content streams panic inside the parser; a page we
		// cannot scan contributes nothing.
		_ = recover()
	}()
	content := page.Content()
	rows := make(map[int]int)
	for _, t := range content.Text {
		textLen += len(t.S)
		if strings.TrimSpace(t.S) == "" {
			continue
		}
		rows[int(t.Y)]++
	}
	for _, runs := range rows {
		if runs >= 3 {
			tableRows++
		}
	}
	return tableRows, textLen
}

func layoutType(info *LayoutInfo) string {
	hasImages := info.ImageCount > 0
	hasTables := info.PageCount > 0 && info.TableRowCount >= info.PageCount*2
	sparseText := info.TextLength < 200*info.PageCount

	switch {
	case hasImages && sparseText:
		return LayoutImage
	case hasImages && hasTables:
		return LayoutMixed
	case hasTables:
		return LayoutTabular
	case hasImages:
		return LayoutMixed
	default:
		return LayoutText
	}
}
