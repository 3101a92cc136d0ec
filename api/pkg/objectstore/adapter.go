package objectstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/fleetlog/telemetryhub/api/pkg/config"
)

// Downloader is satisfied by backends that can fetch a previously
// uploaded object back to a local path, used by the merge engine to
// pull remote video chunks before seeking into them (spec.md §4.6
// step 4). Not every Adapter needs to implement it.
type Downloader interface {
	Download(ctx context.Context, uri, destDir string) (localPath string, err error)
}

// StickyAdapter picks a backend lazily on its first Upload call and
// never revisits the decision for the rest of the process lifetime:
// if the remote handshake fails, every later call goes to local, per
// spec.md §4.3's "lazy on first call, sticky thereafter" rule and
// Testable Property #6.
type StickyAdapter struct {
	cfg config.ObjectStore

	once    sync.Once
	backend Adapter
}

var _ Adapter = (*StickyAdapter)(nil)

// NewStickyAdapter builds the wrapper. No backend is selected yet;
// selection happens on the first Upload call.
func NewStickyAdapter(cfg config.ObjectStore) *StickyAdapter {
	return &StickyAdapter{cfg: cfg}
}

func (a *StickyAdapter) Upload(ctx context.Context, payload []byte, sessionID uint, cameraKey string, timestamp float64, progress ProgressFunc) (*UploadResult, error) {
	a.once.Do(func() { a.backend = a.selectBackend(ctx) })
	return a.backend.Upload(ctx, payload, sessionID, cameraKey, timestamp, progress)
}

// Download delegates to the selected backend if it implements
// Downloader. Selection happens lazily here too, so Download can be
// the very first call the adapter ever receives.
func (a *StickyAdapter) Download(ctx context.Context, uri, destDir string) (string, error) {
	a.once.Do(func() { a.backend = a.selectBackend(ctx) })

	downloader, ok := a.backend.(Downloader)
	if !ok {
		return "", fmt.Errorf("objectstore: selected backend does not support download")
	}
	return downloader.Download(ctx, uri, destDir)
}

func (a *StickyAdapter) selectBackend(ctx context.Context) Adapter {
	local := NewLocalBackend(a.cfg.BackupDir)

	if a.cfg.Bucket == "" {
		log.Info().Msg("objectstore: no bucket configured, using local backend")
		return local
	}

	remote, err := NewRemoteBackend(ctx, RemoteConfig{
		Bucket:             a.cfg.Bucket,
		Region:             a.cfg.Region,
		AccessKeyID:        a.cfg.AccessKeyID,
		SecretAccessKey:    a.cfg.SecretAccessKey,
		EndpointURL:        a.cfg.EndpointURL,
		MultipartThreshold: a.cfg.MultipartThreshold,
		MultipartChunkSize: a.cfg.MultipartChunkSize,
	})
	if err != nil {
		log.Warn().Err(err).Msg("objectstore: remote handshake failed, permanently falling back to local backend")
		return local
	}

	log.Info().Str("bucket", a.cfg.Bucket).Msg("objectstore: using remote backend")
	return remote
}

// Kind reports which backend is currently selected, for the
// /upload/storage-status handler. It returns false if neither Upload
// nor Download has been called yet and the decision has not been made.
func (a *StickyAdapter) Kind() (StorageKind, bool) {
	if a.backend == nil {
		return "", false
	}
	switch a.backend.(type) {
	case *RemoteBackend:
		return StorageKindRemote, true
	default:
		return StorageKindLocal, true
	}
}
