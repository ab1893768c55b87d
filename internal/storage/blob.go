package storage

import (
	"fmt"
	"os"
	"path/filepath"
)

// BlobStore writes binary payloads, image frames mostly, into a directory
// next to the database instead of bloating the database itself.
type BlobStore struct {
	dir string
}

// NewBlobStore creates the blob directory if needed.
func NewBlobStore(dir string) (*BlobStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating blob directory: %w", err)
	}
	return &BlobStore{dir: dir}, nil
}

// Dir returns the blob directory.
func (b *BlobStore) Dir() string { return b.dir }

// Write stores one payload keyed by the owning log ID and returns the
// path it was written to. The format becomes the file extension when set.
func (b *BlobStore) Write(logID int64, format string, payload []byte) (string, error) {
	ext := "bin"
	if format != "" {
		ext = format
	}

	path := filepath.Join(b.dir, fmt.Sprintf("log_%d.%s", logID, ext))
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return "", fmt.Errorf("writing blob: %w", err)
	}
	return path, nil
}
