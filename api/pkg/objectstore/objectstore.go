// Package objectstore implements the uniform upload adapter described
// in spec.md §4.3: a remote, multipart-capable blob store backend with
// a local filesystem fallback, selected lazily and stuck for the
// process lifetime once a backend is chosen.
package objectstore

import (
	"context"
	"fmt"
	"math"
)

// StorageKind identifies which backend actually served an upload.
type StorageKind string

const (
	StorageKindRemote StorageKind = "remote"
	StorageKindLocal  StorageKind = "local"
)

// UploadStatus is the lifecycle state reported by ProgressEvent.
type UploadStatus string

const (
	UploadStatusPending    UploadStatus = "pending"
	UploadStatusUploading  UploadStatus = "uploading"
	UploadStatusCompleted  UploadStatus = "completed"
	UploadStatusFailed     UploadStatus = "failed"
)

// ProgressEvent is one snapshot of an in-flight upload, emitted after
// each part (multipart) or once at completion (single PUT / local).
type ProgressEvent struct {
	TotalBytes     int64
	UploadedBytes  int64
	PartsCompleted int
	TotalParts     int
	Status         UploadStatus
	Error          error
}

// ProgressFunc receives ProgressEvent snapshots. A nil ProgressFunc is
// always safe to pass.
type ProgressFunc func(ProgressEvent)

// UploadResult is the outcome of a single Adapter.Upload call.
type UploadResult struct {
	Success     bool
	StorageKind StorageKind
	URI         string
	Size        int64
	ElapsedMS   int64
	Error       error
}

// Adapter is the one-method contract every backend and the selecting
// wrapper implement.
type Adapter interface {
	Upload(ctx context.Context, payload []byte, sessionID uint, cameraKey string, timestamp float64, progress ProgressFunc) (*UploadResult, error)
}

// objectKey builds the path shared by both backends' naming schemes:
// `{camera_key}_{floor(timestamp)}` for the local filename and
// `{camera_key}_{floor(timestamp)}.mp4` for the remote object key,
// per spec.md §4.3/§6.
func objectKey(cameraKey string, timestamp float64) string {
	return fmt.Sprintf("%s_%d", cameraKey, int64(math.Floor(timestamp)))
}

func reportProgress(progress ProgressFunc, evt ProgressEvent) {
	if progress != nil {
		progress(evt)
	}
}
