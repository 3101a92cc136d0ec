// Package videoupload implements the "closes the loop" integration
// wrapper from spec.md §4.7: validate, delegate to the object store
// adapter, and record a video_chunk row.
package videoupload

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fleetlog/telemetryhub/api/pkg/config"
	"github.com/fleetlog/telemetryhub/api/pkg/objectstore"
	"github.com/fleetlog/telemetryhub/api/pkg/store"
	"github.com/fleetlog/telemetryhub/api/pkg/types"
)

// ErrorCode classifies a failure into the HTTP status spec.md §4.7
// maps it to. The server package is responsible for the actual status
// write; this package never imports net/http.
type ErrorCode int

const (
	ErrBadExtension  ErrorCode = 400
	ErrNoSuchSession ErrorCode = 404
	ErrTooLarge      ErrorCode = 413
	ErrUploadFailed  ErrorCode = 500
)

// Error wraps an underlying cause with the status code it maps to.
type Error struct {
	Code ErrorCode
	Err  error
}

func (e *Error) Error() string { return e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// Request is one video upload request.
type Request struct {
	SessionID     uint
	RobotID       string
	CameraKey     string
	Filename      string
	DeclaredSize  int64
	Payload       []byte
	StartTimestamp float64
	EndTimestamp   float64
}

// Uploader validates and persists one video upload.
type Uploader struct {
	store   store.Store
	adapter objectstore.Adapter
	cfg     config.Video
}

// New constructs an Uploader bound to st and adapter, enforcing cfg's
// extension allow-list and size limit.
func New(st store.Store, adapter objectstore.Adapter, cfg config.Video) *Uploader {
	return &Uploader{store: st, adapter: adapter, cfg: cfg}
}

// Upload validates req, uploads its payload through the configured
// object store adapter, and records a video_chunk row on success.
func (u *Uploader) Upload(ctx context.Context, req Request) (*types.VideoChunk, error) {
	if err := u.validateExtension(req.Filename); err != nil {
		return nil, err
	}

	maxBytes := u.cfg.MaxSizeMB * 1024 * 1024
	if req.DeclaredSize > maxBytes {
		return nil, &Error{Code: ErrTooLarge, Err: fmt.Errorf("videoupload: declared size %d exceeds limit %d bytes", req.DeclaredSize, maxBytes)}
	}
	if int64(len(req.Payload)) > maxBytes {
		return nil, &Error{Code: ErrTooLarge, Err: fmt.Errorf("videoupload: payload size %d exceeds limit %d bytes", len(req.Payload), maxBytes)}
	}

	if _, err := u.store.GetSession(ctx, req.SessionID); err != nil {
		return nil, &Error{Code: ErrNoSuchSession, Err: fmt.Errorf("videoupload: session %d not found: %w", req.SessionID, err)}
	}

	result, err := u.adapter.Upload(ctx, req.Payload, req.SessionID, req.CameraKey, req.StartTimestamp, nil)
	if err != nil {
		return nil, &Error{Code: ErrUploadFailed, Err: fmt.Errorf("videoupload: upload failed: %w", err)}
	}

	chunk, err := u.store.CreateVideoChunk(ctx, types.VideoChunk{
		SessionID:      req.SessionID,
		RobotID:        req.RobotID,
		CameraKey:      req.CameraKey,
		StoragePath:    result.URI,
		ContentType:    "video/mp4",
		StartTimestamp: req.StartTimestamp,
		EndTimestamp:   req.EndTimestamp,
	})
	if err != nil {
		return nil, &Error{Code: ErrUploadFailed, Err: fmt.Errorf("videoupload: record video chunk: %w", err)}
	}

	return chunk, nil
}

func (u *Uploader) validateExtension(filename string) error {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	for _, allowed := range u.cfg.AllowedExtensions {
		if ext == strings.ToLower(allowed) {
			return nil
		}
	}
	return &Error{Code: ErrBadExtension, Err: fmt.Errorf("videoupload: extension %q not in allow-list %v", ext, u.cfg.AllowedExtensions)}
}
