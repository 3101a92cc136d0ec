package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fleetlog/telemetryhub/api/pkg/config"
	"github.com/fleetlog/telemetryhub/api/pkg/ingest"
	"github.com/fleetlog/telemetryhub/api/pkg/merge"
	"github.com/fleetlog/telemetryhub/api/pkg/objectstore"
	"github.com/fleetlog/telemetryhub/api/pkg/registry"
	"github.com/fleetlog/telemetryhub/api/pkg/statuscache"
	"github.com/fleetlog/telemetryhub/api/pkg/store"
	"github.com/fleetlog/telemetryhub/api/pkg/types"
	"github.com/fleetlog/telemetryhub/api/pkg/videoupload"
)

func newTestServer(t *testing.T, apiKey string) (*Server, store.Store) {
	t.Helper()

	st, err := store.New(config.Database{Driver: "sqlite", URL: "file::memory:?cache=shared", AutoMigrate: true})
	require.NoError(t, err)

	cfg := config.Config{
		Auth:        config.Auth{APIKey: apiKey},
		Video:       config.Video{AllowedExtensions: []string{"mp4"}, MaxSizeMB: 10, DownloadTempDir: t.TempDir()},
		ObjectStore: config.ObjectStore{BackupDir: t.TempDir()},
		Ingest:      config.Ingest{BatchSize: 10, DefaultFPS: 60, LatencySample: 100},
	}

	objects := objectstore.NewStickyAdapter(cfg.ObjectStore)
	cache := statuscache.NewMemoryCache()
	ingestManager := ingest.NewManager(st, cfg.Ingest)
	reg := registry.New()
	uploader := videoupload.New(st, objects, cfg.Video)
	merger := merge.NewEngine(st, objects, merge.NewLocalDatasetWriter(t.TempDir()))

	return New(cfg, st, ingestManager, reg, cache, objects, uploader, merger), st
}

func TestHealthEndpointsBypassAPIKey(t *testing.T) {
	srv, _ := newTestServer(t, "secret")
	router := srv.router()

	for _, path := range []string{"/health", "/health/ready", "/health/live", "/health/detail"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestAPIKeyMiddlewareRejectsMissingAndWrongKey(t *testing.T) {
	srv, _ := newTestServer(t, "secret")
	router := srv.router()

	req := httptest.NewRequest(http.MethodGet, "/robots", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/robots", nil)
	req.Header.Set("X-API-Key", "wrong")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/robots", nil)
	req.Header.Set("X-API-Key", "secret")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestListRobotsReflectsStatusCache(t *testing.T) {
	srv, st := newTestServer(t, "")
	router := srv.router()
	ctx := context.Background()

	_, err := st.UpsertRobot(ctx, types.Robot{RobotID: "robot-1", DisplayName: "Robot One"})
	require.NoError(t, err)
	require.NoError(t, srv.cache.Update(ctx, "robot-1", map[string]interface{}{"battery": 0.9}, "", statuscache.DefaultTTL))

	req := httptest.NewRequest(http.MethodGet, "/robots", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"online"`)
}

func TestRobotStatusNotFoundWhenOffline(t *testing.T) {
	srv, _ := newTestServer(t, "")
	router := srv.router()

	req := httptest.NewRequest(http.MethodGet, "/robots/ghost/status", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListSessionsRejectsBadLimit(t *testing.T) {
	srv, _ := newTestServer(t, "")
	router := srv.router()

	req := httptest.NewRequest(http.MethodGet, "/sessions?limit=-1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetSessionNotFound(t *testing.T) {
	srv, _ := newTestServer(t, "")
	router := srv.router()

	req := httptest.NewRequest(http.MethodGet, "/sessions/999", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMergeSessionFailsFastOnUnknownSession(t *testing.T) {
	srv, _ := newTestServer(t, "")
	router := srv.router()

	req := httptest.NewRequest(http.MethodPost, "/sessions/999/merge", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStorageStatusBeforeFirstUploadReportsUnselected(t *testing.T) {
	srv, _ := newTestServer(t, "")
	router := srv.router()

	req := httptest.NewRequest(http.MethodGet, "/upload/storage-status", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"selected":false`)
}
