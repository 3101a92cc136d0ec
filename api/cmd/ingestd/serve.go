package ingestd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fleetlog/telemetryhub/api/pkg/config"
	"github.com/fleetlog/telemetryhub/api/pkg/ingest"
	"github.com/fleetlog/telemetryhub/api/pkg/merge"
	"github.com/fleetlog/telemetryhub/api/pkg/objectstore"
	"github.com/fleetlog/telemetryhub/api/pkg/registry"
	"github.com/fleetlog/telemetryhub/api/pkg/server"
	"github.com/fleetlog/telemetryhub/api/pkg/statuscache"
	"github.com/fleetlog/telemetryhub/api/pkg/store"
	"github.com/fleetlog/telemetryhub/api/pkg/videoupload"
)

// app holds every process-wide singleton named in spec.md §9's
// "Global singletons" note, constructed once in newApp and torn down
// in reverse order on shutdown.
type app struct {
	cfg      config.Config
	store    store.Store
	ingest   *ingest.Manager
	registry *registry.Registry
	cache    statuscache.Cache
	objects  *objectstore.StickyAdapter
	server   *server.Server
}

func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	st, err := store.New(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("ingestd: open store: %w", err)
	}

	objects := objectstore.NewStickyAdapter(cfg.ObjectStore)
	cache := statuscache.New(ctx, cfg.Redis)
	ingestManager := ingest.NewManager(st, cfg.Ingest)
	reg := registry.New()
	uploader := videoupload.New(st, objects, cfg.Video)
	merger := merge.NewEngine(st, objects, merge.NewLocalDatasetWriter(cfg.ObjectStore.BackupDir))

	srv := server.New(cfg, st, ingestManager, reg, cache, objects, uploader, merger)

	return &app{
		cfg:      cfg,
		store:    st,
		ingest:   ingestManager,
		registry: reg,
		cache:    cache,
		objects:  objects,
		server:   srv,
	}, nil
}

func setupLogging(cfg config.Log) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the ingestion/merge HTTP and WebSocket server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("ingestd: load config: %w", err)
			}
			setupLogging(cfg.Log)

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			application, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}

			log.Info().Msg("ingestd: starting")
			serveErr := application.server.ListenAndServe(ctx)

			// The server has drained; close the remaining collaborators
			// that hold connections, in reverse construction order.
			if closer, ok := application.cache.(interface{ Close() error }); ok {
				_ = closer.Close()
			}
			if closer, ok := application.store.(interface{ Close() error }); ok {
				_ = closer.Close()
			}
			return serveErr
		},
	}
}
