package ingest

import (
	"context"
	"sync"

	"github.com/rcrowley/go-metrics"

	"github.com/fleetlog/telemetryhub/api/pkg/config"
	"github.com/fleetlog/telemetryhub/api/pkg/store"
)

// sessionKey identifies one (robot_id, session_id) pair.
type sessionKey struct {
	robotID   string
	sessionID uint
}

// Manager holds every live Session, keyed by (robot_id, session_id),
// guarded by a mutex for get-or-create and remove - spec.md §4.1's
// TelemetryManager.
type Manager struct {
	store store.Store
	cfg   config.Ingest

	mu       sync.Mutex
	sessions map[sessionKey]*Session

	flushCounter  metrics.Counter
	framesCounter metrics.Counter
	latency       metrics.Histogram
}

// NewManager returns an empty manager. cfg supplies the default
// batch size, default fps, and latency sample window for sessions it
// opens.
func NewManager(st store.Store, cfg config.Ingest) *Manager {
	return &Manager{
		store:         st,
		cfg:           cfg,
		sessions:      make(map[sessionKey]*Session),
		flushCounter:  metrics.NewCounter(),
		framesCounter: metrics.NewCounter(),
		latency:       metrics.NewHistogram(metrics.NewUniformSample(cfg.LatencySample)),
	}
}

// OpenSession allocates a new Session for robotID and registers it
// under (robot_id, session_id).
func (m *Manager) OpenSession(ctx context.Context, robotID string) (*Session, error) {
	session, err := Open(ctx, m.store, robotID, m.cfg.DefaultFPS, m.cfg.BatchSize, m.cfg.LatencySample)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sessions[sessionKey{robotID, session.SessionID}] = session
	m.mu.Unlock()

	return session, nil
}

// CloseSession removes session from the registry and finalizes it
// gracefully, rolling its counters into the manager-wide metrics.
func (m *Manager) CloseSession(ctx context.Context, session *Session) error {
	m.mu.Lock()
	delete(m.sessions, sessionKey{session.RobotID, session.SessionID})
	m.mu.Unlock()

	err := session.CloseGraceful(ctx)
	m.recordSessionMetrics(session)
	return err
}

// CloseSessionOnError is the error-path counterpart of CloseSession;
// it never returns an error since the session's own best-effort
// finalization already logs whatever went wrong.
func (m *Manager) CloseSessionOnError(ctx context.Context, session *Session, cause error) {
	m.mu.Lock()
	delete(m.sessions, sessionKey{session.RobotID, session.SessionID})
	m.mu.Unlock()

	session.CloseError(ctx, cause)
	m.recordSessionMetrics(session)
}

func (m *Manager) recordSessionMetrics(session *Session) {
	m.framesCounter.Inc(session.FramesPersisted())
	m.flushCounter.Inc(int64(session.buffer.FlushCount()))
	_, p95 := session.latency.Percentiles()
	m.latency.Update(p95.Nanoseconds())
}

// Count returns the number of currently open sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// HealthSnapshot is the process-wide, cross-session view exposed by
// the server's health endpoint.
type HealthSnapshot struct {
	OpenSessions   int
	TotalFrames    int64
	TotalFlushes   int64
	LatencyP95Mean float64
}

// Health aggregates the manager-wide counters maintained across every
// session that has ever closed, plus the currently open count.
func (m *Manager) Health() HealthSnapshot {
	return HealthSnapshot{
		OpenSessions:   m.Count(),
		TotalFrames:    m.framesCounter.Count(),
		TotalFlushes:   m.flushCounter.Count(),
		LatencyP95Mean: m.latency.Mean(),
	}
}

// Get returns the open session for (robotID, sessionID), if any.
func (m *Manager) Get(robotID string, sessionID uint) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionKey{robotID, sessionID}]
	return s, ok
}
