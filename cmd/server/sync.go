package main

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"gwi.com/fleet-copilot/internal/auth"
	"gwi.com/fleet-copilot/internal/catalog"
)

var syncTagsCmd = &cobra.Command{
	Use:   "sync-tags",
	Short: "Pull the tag directory from the telematics API and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSync(cmd, "tags", func(a *app) (catalog.SyncResult, error) {
			return a.tags.SyncNow(cmd.Context())
		})
	},
}

var syncVehiclesCmd = &cobra.Command{
	Use:   "sync-vehicles",
	Short: "Pull the vehicle directory from the telematics API and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSync(cmd, "vehicles", func(a *app) (catalog.SyncResult, error) {
			return a.vehicles.SyncNow(cmd.Context())
		})
	},
}

func runSync(cmd *cobra.Command, kind string, sync func(a *app) (catalog.SyncResult, error)) error {
	if cfg.SamsaraAPIToken == "" {
		return errors.New("SAMSARA_API_TOKEN environment variable is required")
	}
	a, err := newApp(cfg, logger, prometheus.NewRegistry())
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := sync(a)
	if err != nil {
		return fmt.Errorf("%s sync failed: %w", kind, err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), res.String())
	return nil
}

var issueUser string

var issueTokenCmd = &cobra.Command{
	Use:   "issue-token",
	Short: "Print a bearer token for a user id",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.JWTSecret == "" {
			return errors.New("JWT_SECRET environment variable is required")
		}
		if issueUser == "" {
			return errors.New("--user is required")
		}
		token, err := auth.NewSigner(cfg.JWTSecret, auth.DefaultTokenTTL).GenerateJWT(issueUser)
		if err != nil {
			return fmt.Errorf("failed to generate token: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	issueTokenCmd.Flags().StringVarP(&issueUser, "user", "u", "", "user id to put in the token subject")
}
