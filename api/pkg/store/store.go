// Package store wraps the relational frame store described in
// spec.md §4.5: sessions, frames, video_chunks and the robots
// registry, behind one repository interface so the concrete backend
// (Postgres or SQLite) never leaks above it.
package store

import (
	"context"

	"github.com/fleetlog/telemetryhub/api/pkg/types"
)

// Store is the repository surface used by the ingestion session,
// merge engine and HTTP handlers.
type Store interface {
	// UpsertRobot creates or updates the robots row for robotID.
	UpsertRobot(ctx context.Context, robot types.Robot) (*types.Robot, error)
	GetRobot(ctx context.Context, robotID string) (*types.Robot, error)
	ListRobots(ctx context.Context) ([]*types.Robot, error)

	// CreateSession allocates a new session row and returns it with
	// its assigned ID.
	CreateSession(ctx context.Context, session types.Session) (*types.Session, error)
	GetSession(ctx context.Context, id uint) (*types.Session, error)
	// CloseSession sets end_time and the final frame_count.
	CloseSession(ctx context.Context, id uint, frameCount int) error
	ListSessions(ctx context.Context, robotID string, limit, offset int) ([]*types.Session, error)

	// CreateFrames bulk-inserts a batch in one round trip, preserving
	// slice order.
	CreateFrames(ctx context.Context, frames []types.Frame) error
	// ListFrames returns frames ordered by (session_id, frame_index asc).
	ListFrames(ctx context.Context, sessionID uint) ([]types.Frame, error)

	CreateVideoChunk(ctx context.Context, chunk types.VideoChunk) (*types.VideoChunk, error)
	// ListVideoChunks returns chunks ordered by start_timestamp asc,
	// optionally filtered to the given camera keys.
	ListVideoChunks(ctx context.Context, sessionID uint, cameraKeys []string) ([]types.VideoChunk, error)
}
