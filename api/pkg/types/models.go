// Package types holds the persisted entities shared by the ingestion,
// merge and HTTP layers.
package types

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// RobotStatus is the lifecycle status of a Robot as tracked by the
// status cache and mirrored onto the robots table.
type RobotStatus string

const (
	RobotStatusOnline  RobotStatus = "online"
	RobotStatusOffline RobotStatus = "offline"
	RobotStatusError   RobotStatus = "error"
)

// JSONMap is an opaque string-keyed blob persisted as a jsonb column.
// It otherwise never assumes anything about the shape of the data it
// carries, per §3's "opaque structured blob" invariant - the one
// exception is that "observation" and "action" sub-objects decode
// into an order-preserving OrderedObject rather than a plain map,
// since the merge engine's schema derivation depends on their
// original key order.
type JSONMap map[string]interface{}

// UnmarshalJSON decodes "observation" and "action" values into
// OrderedObject so their key order survives the decode; every other
// field decodes as plain interface{}, same as before.
func (m *JSONMap) UnmarshalJSON(raw []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return err
	}

	result := make(JSONMap, len(fields))
	for k, v := range fields {
		if k == "observation" || k == "action" {
			var obj OrderedObject
			if err := json.Unmarshal(v, &obj); err != nil {
				return fmt.Errorf("types: decode %q: %w", k, err)
			}
			result[k] = obj
			continue
		}

		var value interface{}
		if err := json.Unmarshal(v, &value); err != nil {
			return err
		}
		result[k] = value
	}

	*m = result
	return nil
}

// Scan implements sql.Scanner so gorm can hydrate JSONMap from jsonb/text.
func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = JSONMap{}
		return nil
	}

	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return errors.New("types: unsupported Scan source for JSONMap")
	}

	if len(raw) == 0 {
		*m = JSONMap{}
		return nil
	}

	return json.Unmarshal(raw, m)
}

// Value implements driver.Valuer so gorm can persist JSONMap as jsonb/text.
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// Robot is the fleet registry row, upserted on first ingestion and
// whose Status/LastHeartbeat are driven by presence in the status cache.
type Robot struct {
	RobotID       string      `json:"robot_id" gorm:"column:robot_id;type:varchar(128);primaryKey"`
	DisplayName   string      `json:"display_name" gorm:"column:display_name;type:varchar(255)"`
	Type          string      `json:"type" gorm:"column:type;type:varchar(64)"`
	Status        RobotStatus `json:"status" gorm:"column:status;type:varchar(16);default:offline"`
	LastHeartbeat time.Time   `json:"last_heartbeat" gorm:"column:last_heartbeat"`
	Metadata      JSONMap     `json:"metadata,omitempty" gorm:"column:metadata;type:jsonb"`
}

func (Robot) TableName() string { return "robots" }

// Session is one continuous ingestion stream from one robot.
type Session struct {
	ID         uint       `json:"id" gorm:"primaryKey;autoIncrement"`
	RobotID    string     `json:"robot_id" gorm:"column:robot_id;type:varchar(128);index:idx_sessions_robot_id"`
	StartTime  time.Time  `json:"start_time" gorm:"column:start_time"`
	EndTime    *time.Time `json:"end_time,omitempty" gorm:"column:end_time"`
	FPS        int        `json:"fps" gorm:"column:fps;default:60"`
	FrameCount int        `json:"frame_count" gorm:"column:frame_count;default:0"`
	Meta       JSONMap    `json:"meta,omitempty" gorm:"column:meta;type:jsonb"`
}

func (Session) TableName() string { return "sessions" }

// Frame is one timestamped observation+action record. Data is an
// opaque blob with (by merge-time convention) `observation` and
// `action` sub-maps; the ingestion path never inspects its shape.
type Frame struct {
	ID         uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	SessionID  uint      `json:"session_id" gorm:"column:session_id;index:idx_frames_session_frame_index,priority:1"`
	RobotID    string    `json:"robot_id" gorm:"column:robot_id;type:varchar(128)"`
	FrameIndex int       `json:"frame_index" gorm:"column:frame_index;index:idx_frames_session_frame_index,priority:2"`
	Timestamp  time.Time `json:"timestamp" gorm:"column:timestamp"`
	Data       JSONMap   `json:"data" gorm:"column:data;type:jsonb"`
}

func (Frame) TableName() string { return "frames" }

// VideoChunk is one contiguous recorded video segment associated with
// a session and camera.
type VideoChunk struct {
	ID              uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	SessionID       uint      `json:"session_id" gorm:"column:session_id;index:idx_video_chunks_session_id"`
	RobotID         string    `json:"robot_id" gorm:"column:robot_id;type:varchar(128)"`
	CameraKey       string    `json:"camera_key" gorm:"column:camera_key;type:varchar(64)"`
	StoragePath     string    `json:"storage_path" gorm:"column:storage_path;type:text"`
	ContentType     string    `json:"content_type" gorm:"column:content_type;type:varchar(64);default:video/mp4"`
	StartTimestamp  float64   `json:"start_timestamp" gorm:"column:start_timestamp"`
	EndTimestamp    float64   `json:"end_timestamp" gorm:"column:end_timestamp"`
	CreatedAt       time.Time `json:"created_at" gorm:"column:created_at"`
}

func (VideoChunk) TableName() string { return "video_chunks" }

// IncomingFrame is the wire shape of one inbound ingestion message:
// `frame_index` and `timestamp` are required, everything else is
// preserved verbatim under the opaque Data map.
type IncomingFrame struct {
	FrameIndex int     `json:"frame_index"`
	Timestamp  float64 `json:"timestamp"`
	Data       JSONMap `json:"-"`
}

// UnmarshalJSON pulls frame_index/timestamp out as typed fields while
// keeping every field (including those two) in Data, since the
// downstream Frame.Data blob is meant to carry the message verbatim.
// Decoding into JSONMap (rather than a plain map[string]interface{})
// is what lets observation/action key order survive into Data.
func (f *IncomingFrame) UnmarshalJSON(raw []byte) error {
	var data JSONMap
	if err := json.Unmarshal(raw, &data); err != nil {
		return err
	}

	idx, ok := data["frame_index"].(float64)
	if !ok {
		return errors.New("types: frame_index missing or not a number")
	}
	ts, ok := data["timestamp"].(float64)
	if !ok {
		return errors.New("types: timestamp missing or not a number")
	}

	f.FrameIndex = int(idx)
	f.Timestamp = ts
	f.Data = data
	return nil
}
