// Package local implements the download directories on a filesystem.
package local

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// Config captures the directories a FileStore may write into.
type Config struct {
	// Dirs lists the roots that downloads are placed under.
	Dirs []string
}

// FileStore reads and writes downloaded files beneath a fixed set of roots.
// It is safe for concurrent use when callers write disjoint paths.
type FileStore struct {
	fs     afero.Fs
	roots  []string
	logger *zap.Logger
}

// New creates every configured directory that is missing and verifies each
// one can be written.
func New(fs afero.Fs, cfg Config, logger *zap.Logger) (*FileStore, error) {
	if fs == nil {
		return nil, fmt.Errorf("filesystem is required")
	}
	if len(cfg.Dirs) == 0 {
		return nil, fmt.Errorf("at least one directory is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	roots := make([]string, 0, len(cfg.Dirs))
	for _, dir := range cfg.Dirs {
		if strings.TrimSpace(dir) == "" {
			return nil, fmt.Errorf("directory path is required")
		}
		if err := ensureDir(fs, dir, logger); err != nil {
			return nil, err
		}
		roots = append(roots, filepath.Clean(dir))
	}
	return &FileStore{fs: fs, roots: roots, logger: logger}, nil
}

func ensureDir(fs afero.Fs, dir string, logger *zap.Logger) error {
	info, err := fs.Stat(dir)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if mkErr := fs.MkdirAll(dir, 0o750); mkErr != nil {
			return fmt.Errorf("create directory %s: %w", dir, mkErr)
		}
		logger.Info("mkdir", zap.String("path", dir))
	case err != nil:
		return fmt.Errorf("stat directory %s: %w", dir, err)
	case !info.IsDir():
		return fmt.Errorf("%s is not a directory", dir)
	}

	probe := filepath.Join(dir, ".writable_test")
	if err := afero.WriteFile(fs, probe, []byte("test"), 0o600); err != nil {
		return fmt.Errorf("directory %s is not writable: %w", dir, err)
	}
	if err := fs.Remove(probe); err != nil {
		return fmt.Errorf("clean up probe file: %w", err)
	}
	return nil
}

func (s *FileStore) contained(path string) error {
	clean := filepath.Clean(path)
	for _, root := range s.roots {
		if strings.HasPrefix(clean, root+string(filepath.Separator)) {
			return nil
		}
	}
	return fmt.Errorf("path %q is outside the download directories", path)
}

// Exists reports whether a file is already present at path.
func (s *FileStore) Exists(path string) (bool, error) {
	if err := s.contained(path); err != nil {
		return false, err
	}
	ok, err := afero.Exists(s.fs, path)
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
	return ok, nil
}

// Write stores data at path, replacing any previous content. The write is not
// atomic: an interrupted write may leave a partial file.
func (s *FileStore) Write(path string, data []byte) error {
	if err := s.contained(path); err != nil {
		return err
	}
	if err := afero.WriteFile(s.fs, path, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
