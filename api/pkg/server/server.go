// Package server exposes the HTTP and WebSocket surface described in
// spec.md §6: robot/session read endpoints, the session merge trigger,
// the video upload and sync receivers, and the ingestion WebSocket, all behind the same
// gorilla/mux router the rest of this codebase's ancestry uses.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/fleetlog/telemetryhub/api/pkg/config"
	"github.com/fleetlog/telemetryhub/api/pkg/ingest"
	"github.com/fleetlog/telemetryhub/api/pkg/merge"
	"github.com/fleetlog/telemetryhub/api/pkg/objectstore"
	"github.com/fleetlog/telemetryhub/api/pkg/registry"
	"github.com/fleetlog/telemetryhub/api/pkg/statuscache"
	"github.com/fleetlog/telemetryhub/api/pkg/store"
	"github.com/fleetlog/telemetryhub/api/pkg/videoupload"
)

// Server wires every long-lived collaborator behind net/http, the way
// helix.Server wires its controller/store/pubsub set in cmd/helix/serve.go.
type Server struct {
	cfg config.Config

	store     store.Store
	ingest    *ingest.Manager
	registry  *registry.Registry
	cache     statuscache.Cache
	objects   *objectstore.StickyAdapter
	uploader  *videoupload.Uploader
	merger    *merge.Engine

	httpServer *http.Server
}

// New constructs a Server from its already-initialized collaborators.
// Construction never fails - each collaborator manages its own
// fallback (statuscache.New, objectstore.NewStickyAdapter) before it
// reaches here.
func New(
	cfg config.Config,
	st store.Store,
	ingestManager *ingest.Manager,
	reg *registry.Registry,
	cache statuscache.Cache,
	objects *objectstore.StickyAdapter,
	uploader *videoupload.Uploader,
	merger *merge.Engine,
) *Server {
	return &Server{
		cfg:      cfg,
		store:    st,
		ingest:   ingestManager,
		registry: reg,
		cache:    cache,
		objects:  objects,
		uploader: uploader,
		merger:   merger,
	}
}

// router builds the mux.Router with every route from spec.md §6, the
// request-ID middleware applied globally, and the API key middleware
// applied to everything but the health group.
func (s *Server) router() *mux.Router {
	r := mux.NewRouter()
	r.Use(withRequestID)
	r.Use(func(next http.Handler) http.Handler { return apiKeyMiddleware(s.cfg.Auth.APIKey)(next) })

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/health/ready", s.handleHealthReady).Methods(http.MethodGet)
	r.HandleFunc("/health/live", s.handleHealthLive).Methods(http.MethodGet)
	r.HandleFunc("/health/detail", s.handleHealthDetail).Methods(http.MethodGet)

	r.HandleFunc("/robots", s.handleListRobots).Methods(http.MethodGet)
	r.HandleFunc("/robots/{robot_id}/status", s.handleRobotStatus).Methods(http.MethodGet)

	r.HandleFunc("/sessions", s.handleListSessions).Methods(http.MethodGet)
	r.HandleFunc("/sessions/{id}", s.handleGetSession).Methods(http.MethodGet)

	r.HandleFunc("/upload/video", s.handleUploadVideo).Methods(http.MethodPost)
	r.HandleFunc("/upload/sync", s.handleUploadSync).Methods(http.MethodPost)
	r.HandleFunc("/upload/storage-status", s.handleStorageStatus).Methods(http.MethodGet)

	r.HandleFunc("/sessions/{id}/merge", s.handleMergeSession).Methods(http.MethodPost)

	r.HandleFunc("/ws/log/{robot_id}", s.handleWSLog)

	return r
}

// ListenAndServe starts the HTTP server and blocks until ctx is
// cancelled, then drains in-flight requests before returning - the
// same shutdown shape helix.Server.ListenAndServe uses around
// system.CleanupManager.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // uploads and WS streams can run long
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("server: listening")
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info().Msg("server: shutting down")
		return s.httpServer.Shutdown(shutdownCtx)
	}
}
