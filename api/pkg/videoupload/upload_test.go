package videoupload

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fleetlog/telemetryhub/api/pkg/config"
	"github.com/fleetlog/telemetryhub/api/pkg/objectstore"
	"github.com/fleetlog/telemetryhub/api/pkg/store"
	"github.com/fleetlog/telemetryhub/api/pkg/types"
)

func testConfig() config.Video {
	return config.Video{AllowedExtensions: []string{"mp4", "avi", "mov", "webm"}, MaxSizeMB: 1}
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	db, err := store.New(config.Database{Driver: "sqlite", URL: "file::memory:?cache=shared", AutoMigrate: true})
	require.NoError(t, err)
	return db
}

func TestUploadRejectsBadExtension(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	u := New(st, objectstore.NewLocalBackend(t.TempDir()), testConfig())

	_, err := u.Upload(ctx, Request{SessionID: 1, Filename: "clip.mkv", Payload: []byte("x")})
	require.Error(t, err)

	var uerr *Error
	require.ErrorAs(t, err, &uerr)
	require.Equal(t, ErrBadExtension, uerr.Code)
}

func TestUploadRejectsMissingSession(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	u := New(st, objectstore.NewLocalBackend(t.TempDir()), testConfig())

	_, err := u.Upload(ctx, Request{SessionID: 9999, Filename: "clip.mp4", Payload: []byte("x")})
	require.Error(t, err)

	var uerr *Error
	require.ErrorAs(t, err, &uerr)
	require.Equal(t, ErrNoSuchSession, uerr.Code)
}

func TestUploadRejectsOversizePayload(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	session, err := st.CreateSession(ctx, types.Session{RobotID: "robot-x"})
	require.NoError(t, err)

	u := New(st, objectstore.NewLocalBackend(t.TempDir()), testConfig())

	oversized := make([]byte, 2*1024*1024)
	_, err = u.Upload(ctx, Request{SessionID: session.ID, Filename: "clip.mp4", DeclaredSize: int64(len(oversized)), Payload: oversized})
	require.Error(t, err)

	var uerr *Error
	require.ErrorAs(t, err, &uerr)
	require.Equal(t, ErrTooLarge, uerr.Code)
}

func TestUploadSucceedsAndRecordsVideoChunk(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	session, err := st.CreateSession(ctx, types.Session{RobotID: "robot-y"})
	require.NoError(t, err)

	u := New(st, objectstore.NewLocalBackend(t.TempDir()), testConfig())

	chunk, err := u.Upload(ctx, Request{
		SessionID:      session.ID,
		RobotID:        "robot-y",
		CameraKey:      "laptop",
		Filename:       "clip.mp4",
		Payload:        []byte("fake-bytes"),
		StartTimestamp: 10,
		EndTimestamp:   20,
	})
	require.NoError(t, err)
	require.Equal(t, "laptop", chunk.CameraKey)
	require.Equal(t, "video/mp4", chunk.ContentType)

	chunks, err := st.ListVideoChunks(ctx, session.ID, nil)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
}
