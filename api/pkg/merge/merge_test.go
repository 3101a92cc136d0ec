package merge

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fleetlog/telemetryhub/api/pkg/config"
	"github.com/fleetlog/telemetryhub/api/pkg/store"
	"github.com/fleetlog/telemetryhub/api/pkg/types"
)

// TestSchemaFromFirstFramePreservesInsertionOrder covers spec.md
// §4.6 step 6: schema keys follow the first frame's JSON insertion
// order, not an alphabetical or map-iteration order. The input is
// built from real JSON text (a Go map literal cannot carry order)
// so "wrist_x" before "arm_y" is meaningful.
func TestSchemaFromFirstFramePreservesInsertionOrder(t *testing.T) {
	var frame types.Frame
	raw := []byte(`{"data": {"observation": {"wrist_x": 1.0, "arm_y": 2.0}, "action": {"throttle": 0.5}}}`)
	require.NoError(t, json.Unmarshal(raw, &frame))

	observationKeys, actionKeys := schemaFromFirstFrame(frame)
	require.Equal(t, []string{"wrist_x", "arm_y"}, observationKeys)
	require.Equal(t, []string{"throttle"}, actionKeys)
}

func TestExtractVectorMissingFieldReturnsZeroVector(t *testing.T) {
	frame := types.Frame{Data: types.JSONMap{
		"observation": types.NewOrderedObject([]string{"x"}, map[string]interface{}{"x": 1.0}),
	}}
	vec := extractVector(frame, "action", []string{"throttle"})
	require.Equal(t, []float32{0}, vec)
}

func newMergeTestStore(t *testing.T) store.Store {
	t.Helper()
	db, err := store.New(config.Database{Driver: "sqlite", URL: "file::memory:?cache=shared", AutoMigrate: true})
	require.NoError(t, err)
	return db
}

// TestMergeWithoutCamerasSkipsEveryFrame covers the half of Testable
// Property #5 that doesn't require a real video file: when no camera
// chunks exist, matched=0 and skipped=total.
func TestMergeWithoutCamerasSkipsEveryFrame(t *testing.T) {
	ctx := context.Background()
	st := newMergeTestStore(t)

	session, err := st.CreateSession(ctx, types.Session{RobotID: "robot-merge", FPS: 60})
	require.NoError(t, err)

	now := time.Now()
	frames := []types.Frame{
		{SessionID: session.ID, RobotID: "robot-merge", FrameIndex: 0, Timestamp: now, Data: types.JSONMap{
			"observation": types.NewOrderedObject([]string{"x"}, map[string]interface{}{"x": 1.0}),
			"action":      types.NewOrderedObject([]string{"throttle"}, map[string]interface{}{"throttle": 0.1}),
		}},
		{SessionID: session.ID, RobotID: "robot-merge", FrameIndex: 1, Timestamp: now.Add(time.Second / 60), Data: types.JSONMap{
			"observation": types.NewOrderedObject([]string{"x"}, map[string]interface{}{"x": 2.0}),
			"action":      types.NewOrderedObject([]string{"throttle"}, map[string]interface{}{"throttle": 0.2}),
		}},
	}
	require.NoError(t, st.CreateFrames(ctx, frames))

	engine := NewEngine(st, nil, NewLocalDatasetWriter(t.TempDir()))
	result, err := engine.Merge(ctx, Request{SessionID: session.ID})
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, 2, result.TotalFrames)
	require.Equal(t, 0, result.MatchedFrames)
	require.Equal(t, 2, result.SkippedFrames)
	require.Empty(t, result.Cameras)
}

func TestMergeFailsFastWhenSessionHasNoFrames(t *testing.T) {
	ctx := context.Background()
	st := newMergeTestStore(t)

	session, err := st.CreateSession(ctx, types.Session{RobotID: "robot-empty"})
	require.NoError(t, err)

	engine := NewEngine(st, nil, NewLocalDatasetWriter(t.TempDir()))
	_, err = engine.Merge(ctx, Request{SessionID: session.ID})
	require.Error(t, err)
}
