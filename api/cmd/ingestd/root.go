// Package ingestd is the CLI entrypoint for the telemetry ingestion
// and merge service, mirroring cmd/helix's cobra root/serve split.
package ingestd

import (
	"context"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ingestd",
		Short: "Robot telemetry ingestion and merge service",
		Long:  "Ingests robot telemetry/video over WebSocket, serves fleet status and session reads, and offline-merges recorded sessions into replay datasets.",
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newMergeCmd())

	return rootCmd
}

func Execute() {
	rootCmd := NewRootCmd()
	rootCmd.SetContext(context.Background())
	rootCmd.SetOutput(os.Stdout)
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("ingestd: fatal error")
	}
}
