package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"
)

const (
	// Conventional location of the main body part when the package's
	// content types do not say otherwise.
	docxDefaultBodyPath = "word/document.xml"

	ooxmlTypesPart      = "[Content_Types].xml"
	docxBodyContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"
)

// Text runs carry arbitrary attributes (xml:space, revision ids), so any
// <w:t ...> open tag must match.
var docxTextRun = regexp.MustCompile(`<w:t[^>]*>([^<]*)</w:t>`)

// Override elements in [Content_Types].xml do not guarantee attribute
// order, so both permutations are tried.
var docxBodyOverrides = []*regexp.Regexp{
	regexp.MustCompile(`<Override[^>]+PartName="([^"]+)"[^>]+ContentType="` + regexp.QuoteMeta(docxBodyContentType) + `"`),
	regexp.MustCompile(`<Override[^>]+ContentType="` + regexp.QuoteMeta(docxBodyContentType) + `"[^>]+PartName="([^"]+)"`),
}

// extractDOCX pulls the searchable text out of a .docx payload. A docx is a
// zip whose main body part holds the document XML; every <w:t> text node is
// collected and joined with single spaces so content stays searchable no
// matter how paragraphs and runs are attributed. lu4p/cat is deliberately
// not used here: its paragraph regex assumes attribute-free <w:p> tags and
// comes back empty on documents written by real editors.
func extractDOCX(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("extract DOCX: not a zip: %w", err)
	}
	parts := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		parts[f.Name] = f
	}

	bodyPath := docxBodyPath(parts)
	body, ok := parts[bodyPath]
	if !ok {
		return "", fmt.Errorf("extract DOCX: %s not found", bodyPath)
	}
	xmlData, err := readZipPart(body)
	if err != nil {
		return "", fmt.Errorf("extract DOCX: %w", err)
	}

	runs := docxTextRun.FindAllSubmatch(xmlData, -1)
	if len(runs) == 0 {
		return "", nil
	}
	texts := make([]string, 0, len(runs))
	for _, run := range runs {
		texts = append(texts, strings.TrimSpace(string(run[1])))
	}
	return strings.TrimSpace(strings.Join(texts, " ")), nil
}

// docxBodyPath resolves the main document part from the package's content
// types, falling back to the conventional path.
func docxBodyPath(parts map[string]*zip.File) string {
	types, ok := parts[ooxmlTypesPart]
	if !ok {
		return docxDefaultBodyPath
	}
	data, err := readZipPart(types)
	if err != nil {
		return docxDefaultBodyPath
	}
	for _, re := range docxBodyOverrides {
		if m := re.FindSubmatch(data); len(m) > 1 {
			return strings.TrimPrefix(string(m[1]), "/")
		}
	}
	return docxDefaultBodyPath
}

func readZipPart(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.Name, err)
	}
	return data, nil
}
