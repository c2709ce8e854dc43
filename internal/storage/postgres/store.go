// Package postgres provides a Postgres-backed metadata store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/mikan-crawler/internal/crawler"
)

var validIdentifier = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	Schema          string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Begin(context.Context) (pgx.Tx, error)
	Close()
}

// Store keeps catalog and resource rows in Postgres. A run's reads and
// writes share one transaction that is opened lazily and finalized by Commit.
// A Store is not safe for concurrent use.
type Store struct {
	pool      pool
	tx        pgx.Tx
	entries   string
	resources string
}

// Open connects a pool using cfg and ensures the schema exists.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s, err := NewWithPool(p, cfg.Schema)
	if err != nil {
		p.Close()
		return nil, err
	}
	if err := s.EnsureSchema(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return s, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(p pool, schema string) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if schema == "" {
		schema = "public"
	}
	if !validIdentifier.MatchString(schema) {
		return nil, fmt.Errorf("invalid schema name %q", schema)
	}
	return &Store{
		pool:      p,
		entries:   schema + ".catalog_entry",
		resources: schema + ".resource_info",
	}, nil
}

// EnsureSchema creates both tables when they are missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
	weekday INTEGER,
	entry_id TEXT UNIQUE,
	cover_image_path TEXT,
	last_update_label TEXT,
	title TEXT
);
CREATE TABLE IF NOT EXISTS %[2]s (
	publish_group_id TEXT,
	publish_group_name TEXT,
	resource_name TEXT UNIQUE,
	magnet_link TEXT,
	resource_size TEXT,
	publish_date TEXT,
	torrent_href TEXT,
	entry_id TEXT
);
CREATE INDEX IF NOT EXISTS idx_resource_entry ON %[2]s (entry_id);`, s.entries, s.resources)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	return nil
}

func (s *Store) conn(ctx context.Context) (pgx.Tx, error) {
	if s.tx != nil {
		return s.tx, nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	s.tx = tx
	return tx, nil
}

// batch runs fn inside a savepoint. Postgres aborts the whole transaction on
// any failed statement unless the savepoint is rolled back.
func (s *Store) batch(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.conn(ctx)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, "SAVEPOINT mikan_batch"); err != nil {
		return fmt.Errorf("open savepoint: %w", err)
	}
	if err := fn(tx); err != nil {
		if _, rbErr := tx.Exec(ctx, "ROLLBACK TO SAVEPOINT mikan_batch"); rbErr != nil {
			return errors.Join(classify(err), fmt.Errorf("rollback savepoint: %w", rbErr))
		}
		_, _ = tx.Exec(ctx, "RELEASE SAVEPOINT mikan_batch")
		return classify(err)
	}
	if _, err := tx.Exec(ctx, "RELEASE SAVEPOINT mikan_batch"); err != nil {
		return fmt.Errorf("release savepoint: %w", err)
	}
	return nil
}

// classify maps integrity constraint violations (SQLSTATE class 23) to ErrConflict.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && strings.HasPrefix(pgErr.Code, "23") {
		return fmt.Errorf("%w: %w", crawler.ErrConflict, err)
	}
	return err
}

// UpsertEntries inserts entries, overwriting any row with the same entry id.
func (s *Store) UpsertEntries(ctx context.Context, entries []crawler.CatalogEntry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}
	query := fmt.Sprintf(`
INSERT INTO %s (weekday, entry_id, cover_image_path, last_update_label, title)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (entry_id) DO UPDATE SET
	weekday = EXCLUDED.weekday,
	cover_image_path = EXCLUDED.cover_image_path,
	last_update_label = EXCLUDED.last_update_label,
	title = EXCLUDED.title`, s.entries)

	written := 0
	err := s.batch(ctx, func(tx pgx.Tx) error {
		for _, e := range entries {
			if _, err := tx.Exec(ctx, query, int(e.Weekday), e.EntryID, e.CoverImagePath, e.LastUpdateLabel, e.Title); err != nil {
				return fmt.Errorf("upsert entry %s: %w", e.EntryID, err)
			}
			written++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return written, nil
}

// InsertResources inserts resources, skipping names that are already stored.
func (s *Store) InsertResources(ctx context.Context, resources []crawler.ResourceInfo) (int, error) {
	if len(resources) == 0 {
		return 0, nil
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	publish_group_id,
	publish_group_name,
	resource_name,
	magnet_link,
	resource_size,
	publish_date,
	torrent_href,
	entry_id
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (resource_name) DO NOTHING`, s.resources)

	inserted := 0
	err := s.batch(ctx, func(tx pgx.Tx) error {
		for _, r := range resources {
			tag, err := tx.Exec(ctx, query,
				r.PublishGroupID,
				r.PublishGroupName,
				r.ResourceName,
				r.MagnetLink,
				r.ResourceSize,
				r.PublishDate,
				r.TorrentHref,
				r.EntryID,
			)
			if err != nil {
				return fmt.Errorf("insert resource %q: %w", r.ResourceName, err)
			}
			inserted += int(tag.RowsAffected())
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// EntryIDs lists every stored entry id.
func (s *Store) EntryIDs(ctx context.Context) ([]string, error) {
	return s.column(ctx, fmt.Sprintf(`SELECT COALESCE(entry_id, '') FROM %s ORDER BY entry_id`, s.entries))
}

// CoverImagePaths lists the cover image path of every stored entry.
func (s *Store) CoverImagePaths(ctx context.Context) ([]string, error) {
	return s.column(ctx, fmt.Sprintf(`SELECT COALESCE(cover_image_path, '') FROM %s ORDER BY entry_id`, s.entries))
}

// TorrentHrefs lists the torrent link of every stored resource.
func (s *Store) TorrentHrefs(ctx context.Context) ([]string, error) {
	return s.column(ctx, fmt.Sprintf(`SELECT COALESCE(torrent_href, '') FROM %s ORDER BY resource_name`, s.resources))
}

func (s *Store) column(ctx context.Context, query string) ([]string, error) {
	tx, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query column: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		if v != "" {
			out = append(out, v)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate column: %w", err)
	}
	return out, nil
}

// ListEntries returns every stored entry ordered by weekday then id.
func (s *Store) ListEntries(ctx context.Context) ([]crawler.CatalogEntry, error) {
	tx, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, fmt.Sprintf(`
SELECT COALESCE(weekday, 0), COALESCE(entry_id, ''), COALESCE(cover_image_path, ''),
	COALESCE(last_update_label, ''), COALESCE(title, '')
FROM %s
ORDER BY weekday, entry_id`, s.entries))
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	var out []crawler.CatalogEntry
	for rows.Next() {
		var (
			e       crawler.CatalogEntry
			weekday int
		)
		if err := rows.Scan(&weekday, &e.EntryID, &e.CoverImagePath, &e.LastUpdateLabel, &e.Title); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.Weekday = crawler.Weekday(weekday)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return out, nil
}

// ListResources returns the resources stored for one entry.
func (s *Store) ListResources(ctx context.Context, entryID string) ([]crawler.ResourceInfo, error) {
	tx, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, fmt.Sprintf(`
SELECT COALESCE(publish_group_id, ''), COALESCE(publish_group_name, ''), resource_name,
	COALESCE(magnet_link, ''), COALESCE(resource_size, ''), COALESCE(publish_date, ''),
	COALESCE(torrent_href, ''), COALESCE(entry_id, '')
FROM %s
WHERE entry_id = $1
ORDER BY publish_date, resource_name`, s.resources), entryID)
	if err != nil {
		return nil, fmt.Errorf("query resources: %w", err)
	}
	defer rows.Close()

	var out []crawler.ResourceInfo
	for rows.Next() {
		var r crawler.ResourceInfo
		if err := rows.Scan(
			&r.PublishGroupID,
			&r.PublishGroupName,
			&r.ResourceName,
			&r.MagnetLink,
			&r.ResourceSize,
			&r.PublishDate,
			&r.TorrentHref,
			&r.EntryID,
		); err != nil {
			return nil, fmt.Errorf("scan resource: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate resources: %w", err)
	}
	return out, nil
}

// Counts reports the row count of both tables.
func (s *Store) Counts(ctx context.Context) (crawler.Counts, error) {
	tx, err := s.conn(ctx)
	if err != nil {
		return crawler.Counts{}, err
	}
	var c crawler.Counts
	err = tx.QueryRow(ctx, fmt.Sprintf(
		`SELECT (SELECT COUNT(*) FROM %s), (SELECT COUNT(*) FROM %s)`, s.entries, s.resources,
	)).Scan(&c.Entries, &c.Resources)
	if err != nil {
		return crawler.Counts{}, fmt.Errorf("count rows: %w", err)
	}
	return c, nil
}

// Commit finalizes the run's transaction. It is a no-op when nothing is pending.
func (s *Store) Commit(ctx context.Context) error {
	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Close rolls back uncommitted work and releases the pool.
func (s *Store) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	var rbErr error
	if s.tx != nil {
		if err := s.tx.Rollback(context.Background()); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			rbErr = fmt.Errorf("rollback transaction: %w", err)
		}
		s.tx = nil
	}
	s.pool.Close()
	return rbErr
}
