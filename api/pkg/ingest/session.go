package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fleetlog/telemetryhub/api/pkg/store"
	"github.com/fleetlog/telemetryhub/api/pkg/types"
)

// Session owns one live robot stream: its Session row, frame buffer,
// and latency sampler, per spec.md §4.1.
type Session struct {
	RobotID   string
	SessionID uint

	store   store.Store
	buffer  *FrameBuffer
	latency *LatencySampler

	persisted atomic.Int64
}

// Open allocates a Session row (fps defaults to 60 if unset) and a
// FrameBuffer sized by batchSize, per §4.1 step 1.
func Open(ctx context.Context, st store.Store, robotID string, fps, batchSize, latencySample int) (*Session, error) {
	if fps <= 0 {
		fps = 60
	}

	row, err := st.CreateSession(ctx, types.Session{RobotID: robotID, FPS: fps, StartTime: time.Now()})
	if err != nil {
		return nil, fmt.Errorf("ingest: open session: %w", err)
	}

	return &Session{
		RobotID:   robotID,
		SessionID: row.ID,
		store:     st,
		buffer:    NewFrameBuffer(batchSize),
		latency:   NewLatencySampler(latencySample),
	}, nil
}

// HandleMessage decodes one inbound stream message and appends the
// resulting Frame to the buffer, flushing synchronously if the
// threshold is crossed. Malformed JSON is reported without tearing
// the session down, per §4.1's failure semantics.
func (s *Session) HandleMessage(ctx context.Context, raw []byte) error {
	started := time.Now()
	defer func() { s.latency.Record(time.Since(started)) }()

	var incoming types.IncomingFrame
	if err := json.Unmarshal(raw, &incoming); err != nil {
		return fmt.Errorf("ingest: malformed frame: %w", err)
	}

	frame := types.Frame{
		SessionID:  s.SessionID,
		RobotID:    s.RobotID,
		FrameIndex: incoming.FrameIndex,
		Timestamp:  time.Unix(0, int64(incoming.Timestamp*float64(time.Second))),
		Data:       incoming.Data,
	}

	flushed, err := s.buffer.Append(ctx, frame, s.store.CreateFrames)
	if err != nil {
		// Commit error mid-stream: drop the lost batch and keep
		// ingesting rather than tearing the session down.
		log.Error().Err(err).Str("robot_id", s.RobotID).Uint("session_id", s.SessionID).
			Msg("ingest: batch commit failed, dropping batch and continuing")
		s.buffer.Clear()
		return nil
	}
	if flushed {
		s.persisted.Add(int64(s.buffer.batchSize))
	}
	return nil
}

// CloseGraceful flushes any residual frames and finalizes the
// session row's end_time and frame_count, per §4.1 step 3.
func (s *Session) CloseGraceful(ctx context.Context) error {
	residual := s.buffer.Drain()
	if len(residual) > 0 {
		if err := s.store.CreateFrames(ctx, residual); err != nil {
			log.Error().Err(err).Str("robot_id", s.RobotID).Uint("session_id", s.SessionID).
				Msg("ingest: residual flush failed on graceful close, frames dropped")
		} else {
			s.persisted.Add(int64(len(residual)))
		}
	}

	if err := s.store.CloseSession(ctx, s.SessionID, int(s.persisted.Load())); err != nil {
		return fmt.Errorf("ingest: close session: %w", err)
	}

	p50, p95 := s.latency.Percentiles()
	log.Info().
		Str("robot_id", s.RobotID).
		Uint("session_id", s.SessionID).
		Int64("frames_persisted", s.persisted.Load()).
		Int("flush_count", s.buffer.FlushCount()).
		Dur("p50", p50).
		Dur("p95", p95).
		Msg("ingest: session closed")
	return nil
}

// CloseError performs the same finalization as CloseGraceful when the
// store is reachable; if it is not, the residual batch is dropped and
// the error logged rather than propagated, per §4.1 step 4's
// at-least-once-within-a-live-connection contract.
func (s *Session) CloseError(ctx context.Context, cause error) {
	log.Warn().Err(cause).Str("robot_id", s.RobotID).Uint("session_id", s.SessionID).
		Msg("ingest: session closing on error")

	if err := s.CloseGraceful(ctx); err != nil {
		log.Error().Err(err).Str("robot_id", s.RobotID).Uint("session_id", s.SessionID).
			Msg("ingest: store unreachable on error close, residual batch dropped")
	}
}

// FramesPersisted returns the running count of frames durably stored
// so far in this session.
func (s *Session) FramesPersisted() int64 {
	return s.persisted.Load()
}
