// Package retention bounds the disk space taken by downloaded files.
package retention

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// Defaults applied when Config leaves a field zero.
const (
	DefaultThresholdBytes int64 = 1 << 30
	DefaultMaxAge               = 100 * 24 * time.Hour
)

// Config controls when and what the sweeper deletes.
type Config struct {
	Dirs           []string
	ThresholdBytes int64
	MaxAge         time.Duration
}

// Result describes one sweep.
type Result struct {
	UsageBytes int64
	Swept      bool
	Removed    []string
}

// Observer receives sweep measurements.
type Observer interface {
	SetDiskUsage(bytes int64)
	AddRemovedFiles(n int)
}

// Sweeper deletes old downloads once the directories grow past a threshold.
type Sweeper struct {
	fs       afero.Fs
	usage    Usage
	cfg      Config
	now      func() time.Time
	logger   *zap.Logger
	observer Observer
}

// Option customizes a Sweeper.
type Option func(*Sweeper)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) { s.now = now }
}

// WithObserver reports usage and deletions to o.
func WithObserver(o Observer) Option {
	return func(s *Sweeper) { s.observer = o }
}

// NewSweeper builds a Sweeper over fs.
func NewSweeper(fs afero.Fs, usage Usage, cfg Config, logger *zap.Logger, opts ...Option) (*Sweeper, error) {
	if fs == nil {
		return nil, fmt.Errorf("filesystem is required")
	}
	if usage == nil {
		return nil, fmt.Errorf("usage measurer is required")
	}
	if cfg.ThresholdBytes <= 0 {
		cfg.ThresholdBytes = DefaultThresholdBytes
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultMaxAge
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Sweeper{fs: fs, usage: usage, cfg: cfg, now: time.Now, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Sweep measures usage and, when it exceeds the threshold, removes every
// regular file last modified before now minus the max age.
func (s *Sweeper) Sweep(ctx context.Context) (Result, error) {
	used, err := s.usage.Bytes(ctx, s.cfg.Dirs...)
	if err != nil {
		return Result{}, fmt.Errorf("measure usage: %w", err)
	}
	res := Result{UsageBytes: used}
	if s.observer != nil {
		s.observer.SetDiskUsage(used)
	}
	// #nosec G115 -- usage is never negative.
	s.logger.Info("disk usage",
		zap.String("usage", humanize.IBytes(uint64(used))),
		zap.String("threshold", humanize.IBytes(uint64(s.cfg.ThresholdBytes))),
	)
	if used <= s.cfg.ThresholdBytes {
		return res, nil
	}

	res.Swept = true
	cutoff := s.now().Add(-s.cfg.MaxAge)
	for _, dir := range s.cfg.Dirs {
		removed, err := s.sweepDir(ctx, dir, cutoff)
		res.Removed = append(res.Removed, removed...)
		if err != nil {
			s.report(res)
			return res, err
		}
	}
	s.report(res)
	return res, nil
}

func (s *Sweeper) report(res Result) {
	if s.observer != nil {
		s.observer.AddRemovedFiles(len(res.Removed))
	}
	s.logger.Info("retention sweep finished", zap.Int("removed", len(res.Removed)))
}

func (s *Sweeper) sweepDir(ctx context.Context, dir string, cutoff time.Time) ([]string, error) {
	entries, err := afero.ReadDir(s.fs, dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}
	var removed []string
	for _, info := range entries {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if !info.Mode().IsRegular() || !info.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(dir, info.Name())
		if err := s.fs.Remove(path); err != nil {
			s.logger.Warn("remove failed", zap.String("path", path), zap.Error(err))
			continue
		}
		s.logger.Info("removed", zap.String("path", path), zap.Time("mtime", info.ModTime()))
		removed = append(removed, path)
	}
	return removed, nil
}
