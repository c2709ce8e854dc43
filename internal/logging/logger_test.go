// Package logging includes tests for the zap logger helpers.
package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestNewDevelopmentLogger confirms the development logger builds and logs.
func TestNewDevelopmentLogger(t *testing.T) {
	t.Parallel()

	logger, err := New(Config{Development: true})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if logger == nil {
		t.Fatal("expected logger to be non-nil")
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush
	logger.Info("development logger ready")
}

// TestNewProductionLogger ensures the production logger configuration succeeds.
func TestNewProductionLogger(t *testing.T) {
	t.Parallel()

	logger, err := New(Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if logger == nil {
		t.Fatal("expected logger to be non-nil")
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush
	logger.Info("production logger ready")
}

func TestLoggersCopyToFile(t *testing.T) {
	t.Parallel()

	for _, dev := range []bool{true, false} {
		path := filepath.Join(t.TempDir(), "mikan.log")
		logger, err := New(Config{Development: dev, File: path})
		if err != nil {
			t.Fatalf("New(development=%v) error = %v", dev, err)
		}
		logger.Info("written to file")
		_ = logger.Sync()

		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("read log file: %v", err)
		}
		if !strings.Contains(string(data), "written to file") {
			t.Fatalf("log file missing entry: %q", data)
		}
		if dev && strings.Contains(string(data), "\x1b[") {
			t.Fatalf("development file copy should not contain color codes: %q", data)
		}
	}
}

func TestInvalidLogFile(t *testing.T) {
	t.Parallel()

	missing := filepath.Join(t.TempDir(), "no", "such", "dir", "mikan.log")
	if _, err := New(Config{Development: true, File: missing}); err == nil {
		t.Fatal("expected error for unwritable log file")
	}
}
