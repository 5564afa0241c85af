// Package extract provides text extraction from the document formats the
// pipeline accepts.
package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Extractor extracts plain text from document bytes.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// NormalizeType maps a file name or extension to the pipeline's file type
// vocabulary ("pdf", "docx", ...). The leading dot and case are ignored.
func NormalizeType(nameOrExt string) string {
	ext := nameOrExt
	if strings.Contains(nameOrExt, ".") {
		ext = filepath.Ext(nameOrExt)
	}
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// Extract reads the file at path and returns its text content.
func (e *Extractor) Extract(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return e.ExtractBytes(content, NormalizeType(path))
}

// ExtractBytes extracts text from content based on fileType ("pdf", "docx",
// "xlsx", "odt", "rtf", "txt", ...). Image types carry no extractable text and
// return an empty string; unknown types degrade to plain text so extraction is
// total over the accepted inputs.
func (e *Extractor) ExtractBytes(content []byte, fileType string) (string, error) {
	switch NormalizeType(fileType) {
	case "pdf":
		return extractPDF(content)
	case "docx":
		return extractDOCX(content)
	case "odt", "rtf":
		return extractWithCat(content, fileType)
	case "xlsx":
		return extractExcel(content)
	case "jpg", "jpeg", "png", "tiff":
		// OCR happens in the external extraction sources, not here.
		return "", nil
	default:
		return extractPlain(content)
	}
}
