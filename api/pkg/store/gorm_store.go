package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/fleetlog/telemetryhub/api/pkg/config"
	"github.com/fleetlog/telemetryhub/api/pkg/types"
)

// GormStore is the gorm-backed Store implementation. The concrete
// driver (Postgres or SQLite) is selected once at construction and is
// invisible to every caller above this package, per spec.md §4.5.
type GormStore struct {
	db *gorm.DB
}

var _ Store = (*GormStore)(nil)

// New opens a GormStore using cfg.Database, auto-migrating the four
// tables in §3 when AutoMigrate is set.
func New(cfg config.Database) (*GormStore, error) {
	var dialector gorm.Dialector

	switch cfg.Driver {
	case "sqlite", "":
		path := cfg.URL
		if path == "" {
			path = "file::memory:?cache=shared"
		}
		dialector = sqlite.Open(path)
	case "postgres":
		if cfg.URL == "" {
			return nil, errors.New("store: DATABASE_URL is required for the postgres driver")
		}
		dialector = postgres.Open(cfg.URL)
	default:
		return nil, fmt.Errorf("store: unknown database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("store: failed to open database: %w", err)
	}

	s := &GormStore{db: db}

	if cfg.AutoMigrate {
		if err := s.migrate(); err != nil {
			return nil, err
		}
	}

	return s, nil
}

func (s *GormStore) migrate() error {
	return s.db.AutoMigrate(&types.Robot{}, &types.Session{}, &types.Frame{}, &types.VideoChunk{})
}

// Close releases the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *GormStore) UpsertRobot(ctx context.Context, robot types.Robot) (*types.Robot, error) {
	if robot.LastHeartbeat.IsZero() {
		robot.LastHeartbeat = time.Now()
	}

	var existing types.Robot
	err := s.db.WithContext(ctx).First(&existing, "robot_id = ?", robot.RobotID).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if err := s.db.WithContext(ctx).Create(&robot).Error; err != nil {
			return nil, fmt.Errorf("store: create robot: %w", err)
		}
		return &robot, nil
	case err != nil:
		return nil, fmt.Errorf("store: lookup robot: %w", err)
	}

	existing.DisplayName = robot.DisplayName
	existing.Type = robot.Type
	existing.Status = robot.Status
	existing.LastHeartbeat = robot.LastHeartbeat
	if robot.Metadata != nil {
		existing.Metadata = robot.Metadata
	}

	if err := s.db.WithContext(ctx).Save(&existing).Error; err != nil {
		return nil, fmt.Errorf("store: update robot: %w", err)
	}
	return &existing, nil
}

func (s *GormStore) GetRobot(ctx context.Context, robotID string) (*types.Robot, error) {
	var robot types.Robot
	if err := s.db.WithContext(ctx).First(&robot, "robot_id = ?", robotID).Error; err != nil {
		return nil, fmt.Errorf("store: get robot: %w", err)
	}
	return &robot, nil
}

func (s *GormStore) ListRobots(ctx context.Context) ([]*types.Robot, error) {
	var robots []*types.Robot
	if err := s.db.WithContext(ctx).Order("robot_id asc").Find(&robots).Error; err != nil {
		return nil, fmt.Errorf("store: list robots: %w", err)
	}
	return robots, nil
}

func (s *GormStore) CreateSession(ctx context.Context, session types.Session) (*types.Session, error) {
	if session.StartTime.IsZero() {
		session.StartTime = time.Now()
	}
	if session.FPS == 0 {
		session.FPS = 60
	}

	if err := s.db.WithContext(ctx).Create(&session).Error; err != nil {
		return nil, fmt.Errorf("store: create session: %w", err)
	}
	return &session, nil
}

func (s *GormStore) GetSession(ctx context.Context, id uint) (*types.Session, error) {
	var session types.Session
	if err := s.db.WithContext(ctx).First(&session, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("store: get session: %w", err)
	}
	return &session, nil
}

func (s *GormStore) CloseSession(ctx context.Context, id uint, frameCount int) error {
	now := time.Now()
	err := s.db.WithContext(ctx).Model(&types.Session{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"end_time":    now,
			"frame_count": frameCount,
		}).Error
	if err != nil {
		return fmt.Errorf("store: close session: %w", err)
	}
	return nil
}

func (s *GormStore) ListSessions(ctx context.Context, robotID string, limit, offset int) ([]*types.Session, error) {
	if limit <= 0 {
		limit = 50
	}

	q := s.db.WithContext(ctx).Order("start_time desc").Limit(limit).Offset(offset)
	if robotID != "" {
		q = q.Where("robot_id = ?", robotID)
	}

	var sessions []*types.Session
	if err := q.Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("store: list sessions: %w", err)
	}
	return sessions, nil
}

// CreateFrames bulk-inserts the batch in a single round trip. The
// slice order is preserved by the insert; callers must not reorder it
// before calling, per spec.md's frame_index monotonicity invariant.
func (s *GormStore) CreateFrames(ctx context.Context, frames []types.Frame) error {
	if len(frames) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Create(&frames).Error; err != nil {
		return fmt.Errorf("store: bulk insert frames: %w", err)
	}
	return nil
}

func (s *GormStore) ListFrames(ctx context.Context, sessionID uint) ([]types.Frame, error) {
	var frames []types.Frame
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("frame_index asc").
		Find(&frames).Error
	if err != nil {
		return nil, fmt.Errorf("store: list frames: %w", err)
	}
	return frames, nil
}

func (s *GormStore) CreateVideoChunk(ctx context.Context, chunk types.VideoChunk) (*types.VideoChunk, error) {
	if chunk.CreatedAt.IsZero() {
		chunk.CreatedAt = time.Now()
	}
	if chunk.ContentType == "" {
		chunk.ContentType = "video/mp4"
	}

	if err := s.db.WithContext(ctx).Create(&chunk).Error; err != nil {
		return nil, fmt.Errorf("store: create video chunk: %w", err)
	}
	return &chunk, nil
}

func (s *GormStore) ListVideoChunks(ctx context.Context, sessionID uint, cameraKeys []string) ([]types.VideoChunk, error) {
	q := s.db.WithContext(ctx).Where("session_id = ?", sessionID).Order("start_timestamp asc")
	if len(cameraKeys) > 0 {
		q = q.Where("camera_key IN ?", cameraKeys)
	}

	var chunks []types.VideoChunk
	if err := q.Find(&chunks).Error; err != nil {
		return nil, fmt.Errorf("store: list video chunks: %w", err)
	}
	return chunks, nil
}
