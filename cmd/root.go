// Package cmd defines and implements the CLI commands for the mikan executable.
package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/mikan-crawler/internal/app"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// newApp is the application factory. Tests replace it to observe the App a
// command receives.
var newApp = app.New

// NewRootCmd creates and configures the root command.
func NewRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "mikan",
		Short: "Mirrors the mikanani.me weekly catalog, releases, covers and torrents.",
		Long: `mikan crawls the weekly anime catalog of mikanani.me, records every
entry and every published release in a local database, and downloads the
cover images and torrent files those records reference.`,
		SilenceUsage: true,

		// Runs before any subcommand so each one receives a configured App.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cfgFile)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml); environment variables use the MIKAN_ prefix")

	cmd.AddCommand(newCrawlCmd(), newSweepCmd(), newListCmd())
	return cmd
}

// Execute runs the root command under ctx.
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}

// resolveApp returns the App stored by the root command. Cobra skips post-run
// hooks when RunE fails, so every command defers App.Close itself.
func resolveApp(ctx context.Context) (*app.App, error) {
	appInstance, ok := ctx.Value(appKey).(*app.App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}
