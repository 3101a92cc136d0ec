package merge

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLocalDatasetWriterAppendAndClose(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writer := NewLocalDatasetWriter(dir)

	episode, err := writer.NewEpisode(ctx, []string{"x", "y"}, []string{"throttle"}, []string{"laptop"}, 60)
	require.NoError(t, err)

	require.NoError(t, episode.Append(ctx, DatasetFrame{
		ObservationState: []float32{1, 2},
		Action:           []float32{0.5},
		Images:           map[string]*Frame{"laptop": {Width: 2, Height: 1, RGB: []byte{1, 2, 3, 4, 5, 6}}},
	}))
	require.NoError(t, episode.Append(ctx, DatasetFrame{
		ObservationState: []float32{3, 4},
		Action:           []float32{0.6},
	}))

	outputPath, err := episode.Close(ctx)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "episode_0"), outputPath)

	_, err = os.Stat(filepath.Join(outputPath, "manifest.json"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(outputPath, "frames.json"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(outputPath, "images", "laptop", "0.rgb"))
	require.NoError(t, err)
}

func TestLocalDatasetWriterAbortRemovesOutput(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writer := NewLocalDatasetWriter(dir)

	episode, err := writer.NewEpisode(ctx, nil, nil, nil, 60)
	require.NoError(t, err)

	episodeDir := filepath.Join(dir, "episode_0")
	_, err = os.Stat(episodeDir)
	require.NoError(t, err)

	require.NoError(t, episode.Abort(ctx))
	_, err = os.Stat(episodeDir)
	require.True(t, os.IsNotExist(err))
}
