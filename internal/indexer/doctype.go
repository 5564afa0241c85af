package indexer

import "strings"

// docTypeKeywords maps file-name markers to document types. Portuguese
// variants match the documents our tenants actually upload.
var docTypeKeywords = []struct {
	docType  string
	keywords []string
}{
	{"invoice", []string{"invoice", "fatura"}},
	{"receipt", []string{"receipt", "recibo"}},
	{"contract", []string{"contract", "contrato"}},
	{"statement", []string{"statement", "extrato"}},
	{"tax", []string{"tax", "imposto"}},
	{"expense", []string{"expense", "despesa"}},
}

// DocTypeFor infers a document type from the file name, falling back to
// "document" when nothing matches.
func DocTypeFor(fileName string) string {
	lower := strings.ToLower(fileName)
	for _, entry := range docTypeKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(lower, kw) {
				return entry.docType
			}
		}
	}
	return "document"
}
