package server

import (
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/fleetlog/telemetryhub/api/pkg/merge"
	"github.com/fleetlog/telemetryhub/api/pkg/videoupload"
)

const maxUploadMemory = 32 << 20 // ParseMultipartForm keeps up to 32 MiB of the form in memory and spills larger file parts to temporary files

// handleUploadVideo parses a multipart POST (file + session_id +
// camera_key + start_timestamp + end_timestamp), delegates to the
// videoupload.Uploader, and maps its typed error codes onto HTTP
// status per spec.md §4.7.
func (s *Server) handleUploadVideo(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_multipart", err.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "missing_file", "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	sessionID, err := parseSessionID(r.FormValue("session_id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_session_id", err.Error())
		return
	}

	payload, err := io.ReadAll(file)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "read_failed", err.Error())
		return
	}

	startTimestamp, _ := strconv.ParseFloat(r.FormValue("start_timestamp"), 64)
	endTimestamp, _ := strconv.ParseFloat(r.FormValue("end_timestamp"), 64)

	chunk, err := s.uploader.Upload(r.Context(), videoupload.Request{
		SessionID:      sessionID,
		RobotID:        r.FormValue("robot_id"),
		CameraKey:      r.FormValue("camera_key"),
		Filename:       header.Filename,
		DeclaredSize:   header.Size,
		Payload:        payload,
		StartTimestamp: startTimestamp,
		EndTimestamp:   endTimestamp,
	})
	if err != nil {
		writeUploadError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, chunk)
}

func writeUploadError(w http.ResponseWriter, r *http.Request, err error) {
	var uploadErr *videoupload.Error
	if !errors.As(err, &uploadErr) {
		writeError(w, r, http.StatusInternalServerError, "upload_failed", err.Error())
		return
	}

	status := http.StatusInternalServerError
	code := "upload_failed"
	switch uploadErr.Code {
	case videoupload.ErrBadExtension:
		status, code = http.StatusBadRequest, "bad_extension"
	case videoupload.ErrNoSuchSession:
		status, code = http.StatusNotFound, "session_not_found"
	case videoupload.ErrTooLarge:
		status, code = http.StatusRequestEntityTooLarge, "payload_too_large"
	}
	writeError(w, r, status, code, uploadErr.Error())
}

// handleUploadSync receives the sidecar file watcher's raw byte
// stream (spec.md §1 names the watcher itself as out of scope; this
// is the receiving end of its POST). Files land at
// {BACKUP_DIR}/{dataset_name}/{relative_path}.
func (s *Server) handleUploadSync(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_multipart", err.Error())
		return
	}

	datasetName := r.FormValue("dataset_name")
	relativePath := r.FormValue("relative_path")
	if datasetName == "" || relativePath == "" {
		writeError(w, r, http.StatusBadRequest, "missing_fields", "dataset_name and relative_path are required")
		return
	}
	if strings.Contains(relativePath, "..") {
		writeError(w, r, http.StatusBadRequest, "bad_relative_path", "relative_path must not contain \"..\"")
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "missing_file", "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	destPath := filepath.Join(s.cfg.ObjectStore.BackupDir, datasetName, filepath.FromSlash(relativePath))
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		writeError(w, r, http.StatusInternalServerError, "mkdir_failed", err.Error())
		return
	}

	dest, err := os.Create(destPath)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "create_failed", err.Error())
		return
	}
	defer dest.Close()

	if _, err := io.Copy(dest, file); err != nil {
		writeError(w, r, http.StatusInternalServerError, "write_failed", err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"path": destPath})
}

type storageStatusResponse struct {
	Backend  string `json:"backend"`
	Selected bool   `json:"selected"`
}

// handleStorageStatus reports which object store backend the sticky
// adapter landed on, per spec.md §4.3's Testable Property #6 - useful
// for operators confirming a remote handshake actually succeeded.
func (s *Server) handleStorageStatus(w http.ResponseWriter, r *http.Request) {
	kind, selected := s.objects.Kind()
	resp := storageStatusResponse{Selected: selected}
	if selected {
		resp.Backend = string(kind)
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleMergeSession runs the offline merge pipeline for one session,
// per spec.md §4.6. Per-camera failures only drop that camera from the
// result's Cameras list, and a dataset append/finalize failure is
// reported inside the result body (Success=false, Error set); both
// return 200. Every error returned by Merge (missing session, no
// frames, chunk listing or episode start failure) maps to 404.
func (s *Server) handleMergeSession(w http.ResponseWriter, r *http.Request) {
	sessionID, err := parseSessionID(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_session_id", err.Error())
		return
	}

	result, err := s.merger.Merge(r.Context(), merge.Request{
		SessionID:       sessionID,
		OutputDir:       filepath.Join(s.cfg.ObjectStore.BackupDir, "datasets"),
		FPSDefault:      s.cfg.Ingest.DefaultFPS,
		DownloadTempDir: s.cfg.Video.DownloadTempDir,
	})
	if err != nil {
		writeError(w, r, http.StatusNotFound, "merge_failed", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}
