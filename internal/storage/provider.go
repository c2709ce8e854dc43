// Package storage selects the metadata store backend for a run.
package storage

import (
	"context"
	"fmt"

	"github.com/JakeFAU/mikan-crawler/internal/crawler"
	"github.com/JakeFAU/mikan-crawler/internal/storage/postgres"
	"github.com/JakeFAU/mikan-crawler/internal/storage/sqlite"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Options describe which backend to open and how to reach it.
type Options struct {
	Driver   string
	Path     string
	DSN      string
	Schema   string
	MaxConns int32
}

// Open returns the configured store. Callers must Close it.
func Open(ctx context.Context, opts Options) (crawler.Store, error) {
	switch opts.Driver {
	case DriverSQLite, "":
		store, err := sqlite.Open(ctx, opts.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return store, nil
	case DriverPostgres:
		store, err := postgres.Open(ctx, postgres.Config{
			DSN:      opts.DSN,
			Schema:   opts.Schema,
			MaxConns: opts.MaxConns,
		})
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported store driver %q", opts.Driver)
	}
}
