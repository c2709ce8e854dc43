// Package app builds the services a command needs from configuration.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/JakeFAU/mikan-crawler/internal/config"
	"github.com/JakeFAU/mikan-crawler/internal/crawler"
	collyfetcher "github.com/JakeFAU/mikan-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/mikan-crawler/internal/logging"
	"github.com/JakeFAU/mikan-crawler/internal/metrics"
	"github.com/JakeFAU/mikan-crawler/internal/pipeline"
	"github.com/JakeFAU/mikan-crawler/internal/retention"
	"github.com/JakeFAU/mikan-crawler/internal/storage"
	"github.com/JakeFAU/mikan-crawler/internal/storage/local"
)

// App holds the configuration and the shared services of one process.
type App struct {
	Config   config.Config
	Logger   *zap.Logger
	Registry *prometheus.Registry
	Recorder *metrics.Recorder
	Fs       afero.Fs
}

// New loads configuration from path (empty for defaults and environment only)
// and builds the logger and metrics registry.
func New(path string) (*App, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return NewWithConfig(cfg, afero.NewOsFs())
}

// NewWithConfig builds an App from an already validated Config.
func NewWithConfig(cfg config.Config, fs afero.Fs) (*App, error) {
	logger, err := logging.New(logging.Config{
		Development: cfg.Logging.Development,
		File:        cfg.Logging.File,
	})
	if err != nil {
		return nil, err
	}
	reg := prometheus.NewRegistry()
	recorder, err := metrics.NewRecorder(reg)
	if err != nil {
		return nil, err
	}
	return &App{
		Config:   cfg,
		Logger:   logger,
		Registry: reg,
		Recorder: recorder,
		Fs:       fs,
	}, nil
}

// OpenStore opens the configured metadata store. Callers must Close it.
func (a *App) OpenStore(ctx context.Context) (crawler.Store, error) {
	s := a.Config.Store
	store, err := storage.Open(ctx, storage.Options{
		Driver:   s.Driver,
		Path:     s.Path,
		DSN:      s.DSN,
		Schema:   s.Schema,
		MaxConns: s.MaxConns,
	})
	if err != nil {
		return nil, err
	}
	a.Logger.Info("store opened", zap.String("driver", s.Driver))
	return store, nil
}

// Files prepares the download directories, creating them on first use.
func (a *App) Files() (*local.FileStore, error) {
	files, err := local.New(a.Fs, local.Config{
		Dirs: []string{a.Config.Paths.ImageDir, a.Config.Paths.TorrentDir},
	}, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("prepare download directories: %w", err)
	}
	return files, nil
}

// Fetcher builds the shared HTTP client.
func (a *App) Fetcher() *collyfetcher.Fetcher {
	h := a.Config.HTTP
	return collyfetcher.New(collyfetcher.Config{
		UserAgent:    h.UserAgent,
		Timeout:      a.Config.Timeout(),
		PoolSize:     h.PoolSize,
		MaxRetries:   h.MaxRetries,
		RetryBackoff: 200 * time.Millisecond,
		MaxBodyBytes: h.MaxBodyBytes,
	})
}

// Pipeline wires a crawl run over store and files.
func (a *App) Pipeline(store crawler.Store, files crawler.FileStore) (*pipeline.Pipeline, error) {
	return pipeline.New(pipeline.Config{
		BaseURL:     a.Config.BaseURL,
		ImageDir:    a.Config.Paths.ImageDir,
		TorrentDir:  a.Config.Paths.TorrentDir,
		Concurrency: a.Config.Crawler.Concurrency,
	}, a.Fetcher(), store, files, a.Logger.Named("pipeline"), pipeline.WithRecorder(a.Recorder))
}

// Sweeper builds the retention sweeper for the download directories.
func (a *App) Sweeper() (*retention.Sweeper, error) {
	var usage retention.Usage = retention.DuUsage{}
	if a.Config.Retention.UsageMethod == "walk" {
		usage = retention.WalkUsage{Fs: a.Fs}
	}
	return retention.NewSweeper(a.Fs, usage, retention.Config{
		Dirs:           []string{a.Config.Paths.ImageDir, a.Config.Paths.TorrentDir},
		ThresholdBytes: a.Config.Retention.ThresholdBytes,
		MaxAge:         a.Config.MaxAge(),
	}, a.Logger.Named("retention"), retention.WithObserver(a.Recorder))
}

// PushMetrics sends the registry to the configured Pushgateway, if any.
func (a *App) PushMetrics(ctx context.Context) {
	m := a.Config.Metrics
	if err := metrics.Push(ctx, m.PushgatewayURL, m.Job, a.Registry); err != nil {
		a.Logger.Warn("push metrics failed", zap.String("url", m.PushgatewayURL), zap.Error(err))
	}
}

// Close flushes the logger.
func (a *App) Close() {
	_ = a.Logger.Sync()
}
