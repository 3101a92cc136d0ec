package objectstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLocalBackendUploadWritesFile(t *testing.T) {
	dir := t.TempDir()
	backend := NewLocalBackend(dir)

	var events []ProgressEvent
	result, err := backend.Upload(context.Background(), []byte("fake-mp4-bytes"), 7, "laptop", 12.9, func(e ProgressEvent) {
		events = append(events, e)
	})
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, StorageKindLocal, result.StorageKind)
	require.Len(t, events, 1)
	require.Equal(t, UploadStatusCompleted, events[0].Status)

	expected := filepath.Join(dir, "videos", "7_laptop_12.mp4")
	require.Equal(t, expected, result.URI)

	data, err := os.ReadFile(expected)
	require.NoError(t, err)
	require.Equal(t, "fake-mp4-bytes", string(data))
}

func TestObjectKeyFloorsTimestamp(t *testing.T) {
	require.Equal(t, "cam1_99", objectKey("cam1", 99.999))
	require.Equal(t, "cam1_0", objectKey("cam1", 0.1))
}
