package indexer

import (
	"context"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// SourceObject is one candidate file reported by a document source.
type SourceObject struct {
	// ID is the source-specific handle passed back to Download.
	ID         string
	TenantID   int64
	DocumentID int64
	Name       string
	Size       int64
	ModifiedAt time.Time
}

// Source lists and fetches tenant documents from some storage backend.
type Source interface {
	List(ctx context.Context) ([]SourceObject, error)
	Download(ctx context.Context, id string) ([]byte, error)
}

// DiskSource reads documents from a directory tree laid out as
// root/tenant_<id>/<files>. Anything outside a tenant directory is ignored.
type DiskSource struct {
	root string
}

// NewDiskSource creates a source rooted at dir.
func NewDiskSource(dir string) *DiskSource {
	return &DiskSource{root: dir}
}

// List walks the tenant directories and reports every regular file that is
// not hidden or temporary.
func (s *DiskSource) List(ctx context.Context) ([]SourceObject, error) {
	tenantDirs, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("read source root: %w", err)
	}

	var out []SourceObject
	for _, td := range tenantDirs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !td.IsDir() {
			continue
		}
		tenantID, ok := parseTenantDir(td.Name())
		if !ok {
			continue
		}
		entries, err := os.ReadDir(filepath.Join(s.root, td.Name()))
		if err != nil {
			return nil, fmt.Errorf("read tenant directory %s: %w", td.Name(), err)
		}
		for _, entry := range entries {
			if entry.IsDir() || SkipFileName(entry.Name()) {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				continue
			}
			out = append(out, SourceObject{
				ID:         filepath.Join(td.Name(), entry.Name()),
				TenantID:   tenantID,
				DocumentID: DocumentIDFor(entry.Name()),
				Name:       entry.Name(),
				Size:       info.Size(),
				ModifiedAt: info.ModTime(),
			})
		}
	}
	return out, nil
}

// Download reads the file behind a List ID.
func (s *DiskSource) Download(ctx context.Context, id string) ([]byte, error) {
	clean := filepath.Clean(id)
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return nil, fmt.Errorf("invalid source id %q", id)
	}
	return os.ReadFile(filepath.Join(s.root, clean))
}

// SkipFileName reports whether a file name should never be indexed: hidden
// files and editor or upload temporaries.
func SkipFileName(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	lower := strings.ToLower(name)
	return strings.Contains(lower, "temp") || strings.Contains(lower, "tmp")
}

// DocumentIDFor derives a stable document ID from a file name: the first
// digit run when present, otherwise an FNV hash of the name.
func DocumentIDFor(name string) int64 {
	start := -1
	for i, r := range name {
		if unicode.IsDigit(r) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			if id, err := strconv.ParseInt(name[start:i], 10, 64); err == nil && id > 0 {
				return id
			}
			start = -1
		}
	}
	if start >= 0 {
		if id, err := strconv.ParseInt(name[start:], 10, 64); err == nil && id > 0 {
			return id
		}
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	id := int64(h.Sum64() & 0x7fffffffffffffff)
	if id == 0 {
		id = 1
	}
	return id
}

func parseTenantDir(name string) (int64, bool) {
	const prefix = "tenant_"
	if !strings.HasPrefix(name, prefix) {
		return 0, false
	}
	id, err := strconv.ParseInt(name[len(prefix):], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
