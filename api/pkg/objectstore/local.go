package objectstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// LocalBackend writes video payloads under {root}/videos/ as described
// in spec.md §4.3's local path, grounded on filestore.FileSystemStorage's
// MkdirAll-then-write shape.
type LocalBackend struct {
	root string
}

var (
	_ Adapter    = (*LocalBackend)(nil)
	_ Downloader = (*LocalBackend)(nil)
)

// NewLocalBackend returns a backend rooted at root (spec.md's BACKUP_DIR).
func NewLocalBackend(root string) *LocalBackend {
	return &LocalBackend{root: root}
}

func (b *LocalBackend) Upload(_ context.Context, payload []byte, sessionID uint, cameraKey string, timestamp float64, progress ProgressFunc) (*UploadResult, error) {
	start := time.Now()

	fileName := fmt.Sprintf("%d_%s.mp4", sessionID, objectKey(cameraKey, timestamp))
	fullPath := filepath.Join(b.root, "videos", fileName)

	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		result := &UploadResult{Success: false, StorageKind: StorageKindLocal, Error: fmt.Errorf("objectstore: create directory: %w", err)}
		return result, result.Error
	}

	if err := os.WriteFile(fullPath, payload, 0o644); err != nil {
		result := &UploadResult{Success: false, StorageKind: StorageKindLocal, Error: fmt.Errorf("objectstore: write file: %w", err)}
		return result, result.Error
	}

	reportProgress(progress, ProgressEvent{
		TotalBytes:     int64(len(payload)),
		UploadedBytes:  int64(len(payload)),
		PartsCompleted: 1,
		TotalParts:     1,
		Status:         UploadStatusCompleted,
	})

	return &UploadResult{
		Success:     true,
		StorageKind: StorageKindLocal,
		URI:         fullPath,
		Size:        int64(len(payload)),
		ElapsedMS:   time.Since(start).Milliseconds(),
	}, nil
}

// Download returns uri unchanged: a local backend's URI is already a
// filesystem path, so there is nothing to fetch.
func (b *LocalBackend) Download(_ context.Context, uri, _ string) (string, error) {
	return uri, nil
}
