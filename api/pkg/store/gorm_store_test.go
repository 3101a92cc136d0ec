package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/fleetlog/telemetryhub/api/pkg/config"
	"github.com/fleetlog/telemetryhub/api/pkg/types"
)

// TestStoreSuite runs against SQLite in-memory by default, or against
// a real Postgres when POSTGRES_URL is set - mirroring the teacher's
// PostgresStoreTestSuite gated on POSTGRES_HOST.
func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreTestSuite))
}

type StoreTestSuite struct {
	suite.Suite
	ctx context.Context
	db  *GormStore
}

func (s *StoreTestSuite) SetupTest() {
	s.ctx = context.Background()

	cfg := config.Database{Driver: "sqlite", URL: "file::memory:?cache=shared", AutoMigrate: true}
	if url := os.Getenv("POSTGRES_URL"); url != "" {
		cfg = config.Database{Driver: "postgres", URL: url, AutoMigrate: true}
	}

	db, err := New(cfg)
	s.Require().NoError(err)
	s.db = db
}

func (s *StoreTestSuite) TestUpsertRobotCreatesThenUpdates() {
	robot := types.Robot{RobotID: "robot-a", DisplayName: "Robot A", Type: "arm", Status: types.RobotStatusOnline}

	created, err := s.db.UpsertRobot(s.ctx, robot)
	s.Require().NoError(err)
	s.Equal("robot-a", created.RobotID)

	robot.DisplayName = "Robot A (renamed)"
	robot.Status = types.RobotStatusOffline
	updated, err := s.db.UpsertRobot(s.ctx, robot)
	s.Require().NoError(err)
	s.Equal("Robot A (renamed)", updated.DisplayName)
	s.Equal(types.RobotStatusOffline, updated.Status)

	all, err := s.db.ListRobots(s.ctx)
	s.Require().NoError(err)
	s.Len(all, 1)
}

func (s *StoreTestSuite) TestSessionLifecycle() {
	session, err := s.db.CreateSession(s.ctx, types.Session{RobotID: "robot-b", FPS: 60})
	s.Require().NoError(err)
	s.NotZero(session.ID)
	s.Nil(session.EndTime)

	err = s.db.CloseSession(s.ctx, session.ID, 180)
	s.Require().NoError(err)

	closed, err := s.db.GetSession(s.ctx, session.ID)
	s.Require().NoError(err)
	s.NotNil(closed.EndTime)
	s.Equal(180, closed.FrameCount)
}

// TestFramesPreserveInsertionOrder covers Testable Property #1: stored
// order must equal receive order, regardless of frame_index gaps.
func (s *StoreTestSuite) TestFramesPreserveInsertionOrder() {
	session, err := s.db.CreateSession(s.ctx, types.Session{RobotID: "robot-c", FPS: 60})
	s.Require().NoError(err)

	now := time.Now()
	batch := []types.Frame{
		{SessionID: session.ID, RobotID: "robot-c", FrameIndex: 0, Timestamp: now, Data: types.JSONMap{"observation": map[string]interface{}{"x": 1.0}}},
		{SessionID: session.ID, RobotID: "robot-c", FrameIndex: 1, Timestamp: now.Add(time.Second / 60), Data: types.JSONMap{"observation": map[string]interface{}{"x": 2.0}}},
		{SessionID: session.ID, RobotID: "robot-c", FrameIndex: 5, Timestamp: now.Add(5 * time.Second / 60), Data: types.JSONMap{"observation": map[string]interface{}{"x": 3.0}}},
	}

	s.Require().NoError(s.db.CreateFrames(s.ctx, batch))

	stored, err := s.db.ListFrames(s.ctx, session.ID)
	s.Require().NoError(err)
	s.Require().Len(stored, 3)
	s.Equal([]int{0, 1, 5}, []int{stored[0].FrameIndex, stored[1].FrameIndex, stored[2].FrameIndex})
}

func (s *StoreTestSuite) TestVideoChunksOrderedByStartTimestamp() {
	session, err := s.db.CreateSession(s.ctx, types.Session{RobotID: "robot-d", FPS: 30})
	s.Require().NoError(err)

	_, err = s.db.CreateVideoChunk(s.ctx, types.VideoChunk{SessionID: session.ID, RobotID: "robot-d", CameraKey: "laptop", StartTimestamp: 20, EndTimestamp: 30})
	s.Require().NoError(err)
	_, err = s.db.CreateVideoChunk(s.ctx, types.VideoChunk{SessionID: session.ID, RobotID: "robot-d", CameraKey: "laptop", StartTimestamp: 10, EndTimestamp: 20})
	s.Require().NoError(err)

	chunks, err := s.db.ListVideoChunks(s.ctx, session.ID, nil)
	s.Require().NoError(err)
	s.Require().Len(chunks, 2)
	s.Equal(10.0, chunks[0].StartTimestamp)
	s.Equal(20.0, chunks[1].StartTimestamp)
}
