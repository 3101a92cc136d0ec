// Package registry tracks the process-wide set of live ingestion
// stream handles described in spec.md §4.2: connect/disconnect for
// membership, broadcast for fan-out, count for introspection. It is
// not itself a synchronization primitive for ingestion.
package registry

import (
	"sync"

	"github.com/gorilla/websocket"
)

// Handle is one registered stream connection. Send must be safe to
// call concurrently with itself - gorilla/websocket connections are
// not, so concrete handles guard their own writes with a mutex, the
// same shape as desktop.VideoStreamer's ws write path.
type Handle interface {
	ID() string
	Send(message []byte) error
}

// WSHandle adapts a *websocket.Conn to Handle.
type WSHandle struct {
	id string
	mu sync.Mutex
	ws *websocket.Conn
}

var _ Handle = (*WSHandle)(nil)

// NewWSHandle wraps conn under the given id (typically "{robot_id}/{session_id}").
func NewWSHandle(id string, conn *websocket.Conn) *WSHandle {
	return &WSHandle{id: id, ws: conn}
}

func (h *WSHandle) ID() string { return h.id }

func (h *WSHandle) Send(message []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ws.WriteMessage(websocket.TextMessage, message)
}

// Registry is the live set of connected handles. The zero value is
// not usable; construct with New.
type Registry struct {
	mu      sync.RWMutex
	handles map[string]Handle
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{handles: make(map[string]Handle)}
}

// Connect registers handle under its own ID, replacing any existing
// handle with the same ID.
func (r *Registry) Connect(handle Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handles[handle.ID()] = handle
}

// Disconnect removes handle. A no-op if it is already absent.
func (r *Registry) Disconnect(handle Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handles, handle.ID())
}

// Broadcast attempts to send message to every registered handle. Send
// errors are swallowed, per spec.md §4.2 - a dead peer is discovered
// and cleaned up by its own read loop, not by the broadcaster.
func (r *Registry) Broadcast(message []byte) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, handle := range r.handles {
		_ = handle.Send(message)
	}
}

// Count returns the number of live handles.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handles)
}
