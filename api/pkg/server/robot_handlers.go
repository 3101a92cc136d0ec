package server

import (
	"net/http"

	"github.com/gorilla/mux"
)

// robotView merges the durable registry row with the live status
// cache entry, per spec.md §4.5: a robot is "online" only while it
// holds a live cache entry, regardless of what's persisted.
type robotView struct {
	RobotID       string      `json:"robot_id"`
	DisplayName   string      `json:"display_name"`
	Type          string      `json:"type"`
	Status        string      `json:"status"`
	LastHeartbeat interface{} `json:"last_heartbeat,omitempty"`
}

func (s *Server) handleListRobots(w http.ResponseWriter, r *http.Request) {
	robots, err := s.store.ListRobots(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "store_error", err.Error())
		return
	}

	online, err := s.cache.ListOnline(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "cache_error", err.Error())
		return
	}
	onlineSet := make(map[string]bool, len(online))
	for _, id := range online {
		onlineSet[id] = true
	}

	views := make([]robotView, 0, len(robots))
	for _, robot := range robots {
		status := "offline"
		if onlineSet[robot.RobotID] {
			status = "online"
		}
		views = append(views, robotView{
			RobotID:       robot.RobotID,
			DisplayName:   robot.DisplayName,
			Type:          robot.Type,
			Status:        status,
			LastHeartbeat: robot.LastHeartbeat,
		})
	}

	writeJSON(w, http.StatusOK, views)
}

// handleRobotStatus returns the live status cache record for one
// robot, 404 if it has no current entry (offline or never seen).
func (s *Server) handleRobotStatus(w http.ResponseWriter, r *http.Request) {
	robotID := mux.Vars(r)["robot_id"]

	record, err := s.cache.Get(r.Context(), robotID)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "cache_error", err.Error())
		return
	}
	if record == nil {
		writeError(w, r, http.StatusNotFound, "robot_offline", "robot has no live status entry")
		return
	}

	writeJSON(w, http.StatusOK, record)
}
