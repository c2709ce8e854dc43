// Package sqlite provides the default SQLite-backed metadata store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	msqlite "modernc.org/sqlite" // SQLite driver
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/JakeFAU/mikan-crawler/internal/crawler"
)

const schema = `
CREATE TABLE IF NOT EXISTS catalog_entry (
	weekday INTEGER,
	entry_id TEXT UNIQUE,
	cover_image_path TEXT,
	last_update_label TEXT,
	title TEXT
);

CREATE TABLE IF NOT EXISTS resource_info (
	publish_group_id TEXT,
	publish_group_name TEXT,
	resource_name TEXT UNIQUE,
	magnet_link TEXT,
	resource_size TEXT,
	publish_date TEXT,
	torrent_href TEXT,
	entry_id TEXT
);

CREATE INDEX IF NOT EXISTS idx_resource_entry ON resource_info(entry_id);
`

// Store keeps catalog and resource rows in a single SQLite file. Every read
// and write of a run shares one transaction, opened on first use and
// finalized by Commit. A Store is not safe for concurrent use.
type Store struct {
	db   *sql.DB
	tx   *sql.Tx
	path string
}

// Open opens or creates the database at path and ensures the schema exists.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite only supports one writer and the run holds one transaction.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) conn(ctx context.Context) (*sql.Tx, error) {
	if s.tx != nil {
		return s.tx, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	s.tx = tx
	return tx, nil
}

// batch runs fn inside a savepoint so a failed batch leaves the run's
// transaction usable.
func (s *Store) batch(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.conn(ctx)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "SAVEPOINT mikan_batch"); err != nil {
		return fmt.Errorf("open savepoint: %w", err)
	}
	if err := fn(tx); err != nil {
		if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT mikan_batch"); rbErr != nil {
			return errors.Join(classify(err), fmt.Errorf("rollback savepoint: %w", rbErr))
		}
		_, _ = tx.ExecContext(ctx, "RELEASE SAVEPOINT mikan_batch")
		return classify(err)
	}
	if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT mikan_batch"); err != nil {
		return fmt.Errorf("release savepoint: %w", err)
	}
	return nil
}

func classify(err error) error {
	var se *msqlite.Error
	if errors.As(err, &se) && se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT {
		return fmt.Errorf("%w: %w", crawler.ErrConflict, err)
	}
	return err
}

// UpsertEntries inserts entries, replacing any row with the same entry id.
func (s *Store) UpsertEntries(ctx context.Context, entries []crawler.CatalogEntry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}
	written := 0
	err := s.batch(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO catalog_entry VALUES (?,?,?,?,?)`)
		if err != nil {
			return fmt.Errorf("prepare entry upsert: %w", err)
		}
		defer stmt.Close()
		for _, e := range entries {
			if _, err := stmt.ExecContext(ctx, int(e.Weekday), e.EntryID, e.CoverImagePath, e.LastUpdateLabel, e.Title); err != nil {
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

// InsertResources inserts resources, leaving rows whose name is already stored untouched.
func (s *Store) InsertResources(ctx context.Context, resources []crawler.ResourceInfo) (int, error) {
	if len(resources) == 0 {
		return 0, nil
	}
	inserted := 0
	err := s.batch(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO resource_info VALUES (?,?,?,?,?,?,?,?)`)
		if err != nil {
			return fmt.Errorf("prepare resource insert: %w", err)
		}
		defer stmt.Close()
		for _, r := range resources {
			res, err := stmt.ExecContext(ctx,
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
			if n, err := res.RowsAffected(); err == nil {
				inserted += int(n)
			}
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
	return s.column(ctx, `SELECT entry_id FROM catalog_entry ORDER BY entry_id`)
}

// CoverImagePaths lists the cover image path of every stored entry.
func (s *Store) CoverImagePaths(ctx context.Context) ([]string, error) {
	return s.column(ctx, `SELECT cover_image_path FROM catalog_entry ORDER BY entry_id`)
}

// TorrentHrefs lists the torrent link of every stored resource.
func (s *Store) TorrentHrefs(ctx context.Context) ([]string, error) {
	return s.column(ctx, `SELECT torrent_href FROM resource_info ORDER BY resource_name`)
}

func (s *Store) column(ctx context.Context, query string) ([]string, error) {
	tx, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query column: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v sql.NullString
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		if v.Valid && v.String != "" {
			out = append(out, v.String)
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
	rows, err := tx.QueryContext(ctx, `
SELECT weekday, entry_id, cover_image_path, last_update_label, title
FROM catalog_entry
ORDER BY weekday, entry_id`)
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
	rows, err := tx.QueryContext(ctx, `
SELECT publish_group_id, publish_group_name, resource_name, magnet_link,
	resource_size, publish_date, torrent_href, entry_id
FROM resource_info
WHERE entry_id = ?
ORDER BY publish_date, resource_name`, entryID)
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
	err = tx.QueryRowContext(ctx,
		`SELECT (SELECT COUNT(*) FROM catalog_entry), (SELECT COUNT(*) FROM resource_info)`,
	).Scan(&c.Entries, &c.Resources)
	if err != nil {
		return crawler.Counts{}, fmt.Errorf("count rows: %w", err)
	}
	return c, nil
}

// Commit finalizes the run's transaction. It is a no-op when nothing is pending.
func (s *Store) Commit(_ context.Context) error {
	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Close rolls back uncommitted work and closes the database.
func (s *Store) Close() error {
	var rbErr error
	if s.tx != nil {
		if err := s.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			rbErr = fmt.Errorf("rollback transaction: %w", err)
		}
		s.tx = nil
	}
	if err := s.db.Close(); err != nil {
		return errors.Join(rbErr, fmt.Errorf("close database: %w", err))
	}
	return rbErr
}
