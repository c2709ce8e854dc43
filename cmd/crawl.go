package cmd

import (
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/mikan-crawler/internal/app"
)

func newCrawlCmd() *cobra.Command {
	var skipSweep bool

	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Runs one full crawl",
		Long: `Sweeps old downloads when the download directories exceed the
retention threshold, then fetches the catalog, every entry's resource page,
and the cover images and torrents that are not on disk yet.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			return runCrawl(cmd, a, skipSweep)
		},
	}
	cmd.Flags().BoolVar(&skipSweep, "skip-sweep", false, "do not run the retention sweep before crawling")
	return cmd
}

func runCrawl(cmd *cobra.Command, a *app.App, skipSweep bool) error {
	ctx := cmd.Context()
	log := a.Logger
	begin := time.Now()
	log.Info("mikan crawler starts running")
	defer func() {
		log.Info("all tasks are done", zap.Float64("seconds", time.Since(begin).Seconds()))
		log.Info(strings.Repeat("*", 50))
	}()

	files, err := a.Files()
	if err != nil {
		return err
	}

	if !skipSweep {
		sweeper, err := a.Sweeper()
		if err != nil {
			return err
		}
		if _, err := sweeper.Sweep(ctx); err != nil {
			log.Warn("retention sweep failed", zap.Error(err))
		}
	}

	store, err := a.OpenStore(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			log.Warn("close store failed", zap.Error(cerr))
		}
	}()

	p, err := a.Pipeline(store, files)
	if err != nil {
		return err
	}
	rep, err := p.Run(ctx)
	a.PushMetrics(ctx)
	log.Info("run finished",
		zap.String("run_id", rep.RunID),
		zap.Stringer("state", rep.State),
		zap.Any("resources", rep.Resources),
		zap.Any("images", rep.Images),
		zap.Any("torrents", rep.Torrents),
	)
	return err
}
