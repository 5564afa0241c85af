package extract

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/lu4p/cat"
)

// extractWithCat extracts text from .odt or .rtf bytes via lu4p/cat, which
// only takes file paths, so the bytes go through a temp file.
func extractWithCat(content []byte, fileType string) (string, error) {
	tmp, err := os.CreateTemp("", "yomitori-*."+NormalizeType(fileType))
	if err != nil {
		return "", fmt.Errorf("extract %s: temp file: %w", fileType, err)
	}
	path := tmp.Name()
	defer os.Remove(path)
	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("extract %s: write temp: %w", fileType, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("extract %s: close temp: %w", fileType, err)
	}
	text, err := cat.File(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", fileType, err)
	}
	return text, nil
}
