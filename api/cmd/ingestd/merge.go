package ingestd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/fleetlog/telemetryhub/api/pkg/config"
	"github.com/fleetlog/telemetryhub/api/pkg/merge"
	"github.com/fleetlog/telemetryhub/api/pkg/objectstore"
	"github.com/fleetlog/telemetryhub/api/pkg/store"
)

// newMergeCmd exposes spec.md §4.6's merge pipeline as an operator CLI
// command, for backfilling a session outside of the HTTP API.
func newMergeCmd() *cobra.Command {
	var outputDir string

	cmd := &cobra.Command{
		Use:   "merge [session-id]",
		Short: "Run the offline frame/video merge for one session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("ingestd: invalid session id %q: %w", args[0], err)
			}

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("ingestd: load config: %w", err)
			}

			st, err := store.New(cfg.Database)
			if err != nil {
				return fmt.Errorf("ingestd: open store: %w", err)
			}

			objects := objectstore.NewStickyAdapter(cfg.ObjectStore)
			if outputDir == "" {
				outputDir = cfg.ObjectStore.BackupDir + "/datasets"
			}
			engine := merge.NewEngine(st, objects, merge.NewLocalDatasetWriter(outputDir))

			result, err := engine.Merge(context.Background(), merge.Request{
				SessionID:       uint(sessionID),
				OutputDir:       outputDir,
				FPSDefault:      cfg.Ingest.DefaultFPS,
				DownloadTempDir: cfg.Video.DownloadTempDir,
			})
			if err != nil {
				return err
			}

			return json.NewEncoder(os.Stdout).Encode(result)
		},
	}

	cmd.Flags().StringVar(&outputDir, "output-dir", "", "directory the merged episode is written under (default: {BACKUP_DIR}/datasets)")
	return cmd
}
