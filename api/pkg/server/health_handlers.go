package server

import "net/http"

// handleHealth is the liveness/readiness probe collapsed into one
// cheap endpoint for load balancers that only check a single path.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleHealthLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleHealthReady additionally touches the frame store, since a
// server that can accept connections but can't reach its database
// should not be marked ready.
func (s *Server) handleHealthReady(w http.ResponseWriter, r *http.Request) {
	if _, err := s.store.ListRobots(r.Context()); err != nil {
		writeError(w, r, http.StatusServiceUnavailable, "store_unreachable", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type healthDetail struct {
	Ingest      interface{} `json:"ingest"`
	StatusCache interface{} `json:"status_cache"`
	ObjectStore string      `json:"object_store"`
	Connections int         `json:"ws_connections"`
}

// handleHealthDetail exposes the process-wide counters spec.md §4.1's
// TelemetryManager, §4.4's Cache, and §4.3's Adapter all maintain -
// useful for an operator dashboard, never consulted by the probes
// above.
func (s *Server) handleHealthDetail(w http.ResponseWriter, r *http.Request) {
	kind, selected := s.objects.Kind()
	objectStoreStatus := "unselected"
	if selected {
		objectStoreStatus = string(kind)
	}

	writeJSON(w, http.StatusOK, healthDetail{
		Ingest:      s.ingest.Health(),
		StatusCache: s.cache.HealthCheck(r.Context()),
		ObjectStore: objectStoreStatus,
		Connections: s.registry.Count(),
	})
}
