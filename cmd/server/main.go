package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"gwi.com/fleet-copilot/internal/config"
)

var (
	cfg     *config.Config
	logger  *slog.Logger
	closeFn func() error
)

var rootCmd = &cobra.Command{
	Use:   "fleet-copilot",
	Short: "Conversational copilot for fleet telematics",
	Long: `fleet-copilot answers questions about a vehicle fleet by calling the
telematics API on the user's behalf and streaming the answer over SSE.

Examples:
  fleet-copilot serve
  fleet-copilot sync-tags
  fleet-copilot sync-vehicles
  fleet-copilot issue-token --user dispatcher-1`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		logger, closeFn = config.SetupLogger(cfg.LogFile, cfg.Level())
		slog.SetDefault(logger)
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if closeFn != nil {
			return closeFn()
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(syncTagsCmd)
	rootCmd.AddCommand(syncVehiclesCmd)
	rootCmd.AddCommand(issueTokenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
