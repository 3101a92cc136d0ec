package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/fleetlog/telemetryhub/api/pkg/registry"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Robots stream from their own network, not a browser origin;
	// same-origin checks don't apply here.
	CheckOrigin: func(_ *http.Request) bool { return true },
}

// handleWSLog upgrades /ws/log/{robot_id}, enforces the API key
// (close codes 4001/4003 per spec.md §6), opens an ingestion session,
// and feeds every inbound message to it until the connection drops.
// Covers scenarios S2 (connection kill mid-stream) and S3 (API key
// rejection).
func (s *Server) handleWSLog(w http.ResponseWriter, r *http.Request) {
	robotID := mux.Vars(r)["robot_id"]

	closeCode, reason, ok := checkWSAPIKey(r, s.cfg.Auth.APIKey)
	if !ok {
		conn, err := wsUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		closeMsg := websocket.FormatCloseMessage(closeCode, reason)
		_ = conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(5*time.Second))
		_ = conn.Close()
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("robot_id", robotID).Msg("server: websocket upgrade failed")
		return
	}

	session, err := s.ingest.OpenSession(r.Context(), robotID)
	if err != nil {
		log.Error().Err(err).Str("robot_id", robotID).Msg("server: failed to open ingestion session")
		_ = conn.Close()
		return
	}

	handleID := fmt.Sprintf("%s/%d", robotID, session.SessionID)
	handle := registry.NewWSHandle(handleID, conn)
	s.registry.Connect(handle)
	defer s.registry.Disconnect(handle)

	log.Info().Str("robot_id", robotID).Uint("session_id", session.SessionID).Msg("server: ingestion session opened")

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.ingest.CloseSessionOnError(r.Context(), session, err)
			} else {
				_ = s.ingest.CloseSession(r.Context(), session)
			}
			_ = conn.Close()
			return
		}

		if err := session.HandleMessage(r.Context(), message); err != nil {
			log.Warn().Err(err).Str("robot_id", robotID).Msg("server: dropping malformed frame")
		}
	}
}
