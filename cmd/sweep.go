package cmd

import (
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Deletes old downloads when disk usage exceeds the threshold",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			sweeper, err := a.Sweeper()
			if err != nil {
				return err
			}
			res, err := sweeper.Sweep(cmd.Context())
			a.PushMetrics(cmd.Context())
			if err != nil {
				return err
			}
			// #nosec G115 -- usage is never negative.
			a.Logger.Info("sweep finished",
				zap.String("usage", humanize.IBytes(uint64(res.UsageBytes))),
				zap.Bool("swept", res.Swept),
				zap.Int("removed", len(res.Removed)),
			)
			return nil
		},
	}
}
