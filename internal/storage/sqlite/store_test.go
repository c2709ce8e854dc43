package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/mikan-crawler/internal/crawler"
)

// setupTestStore opens a fresh database under a temporary directory.
func setupTestStore(t *testing.T) (*Store, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "mikan.db")
	store, err := Open(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, path
}

func TestOpenCreatesDatabaseInNewDirectory(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "dir", "mikan.db")
	store, err := Open(context.Background(), path)
	require.NoError(t, err)
	require.Equal(t, path, store.Path())
	require.NoError(t, store.Close())
	require.FileExists(t, path)
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), "")
	require.Error(t, err)
}

func TestUpsertEntriesReplacesOnConflict(t *testing.T) {
	t.Parallel()

	store, _ := setupTestStore(t)
	ctx := context.Background()

	first := crawler.CatalogEntry{Weekday: 1, EntryID: "2353", CoverImagePath: "/a/b.jpg", LastUpdateLabel: "2020/10/12 更新", Title: "Old"}
	second := first
	second.Title = "New"
	second.LastUpdateLabel = "2020/10/19 更新"

	n, err := store.UpsertEntries(ctx, []crawler.CatalogEntry{first})
	require.NoError(t, err)
	require.Equal(t, 1, n)
	_, err = store.UpsertEntries(ctx, []crawler.CatalogEntry{second})
	require.NoError(t, err)

	entries, err := store.ListEntries(ctx)
	require.NoError(t, err)
	require.Equal(t, []crawler.CatalogEntry{second}, entries)
}

func TestInsertResourcesIgnoresDuplicates(t *testing.T) {
	t.Parallel()

	store, _ := setupTestStore(t)
	ctx := context.Background()

	first := crawler.ResourceInfo{
		PublishGroupID:   "583",
		PublishGroupName: "Lilith-Raws",
		ResourceName:     "[Lilith-Raws] Show - 01",
		MagnetLink:       "magnet:?xt=urn:btih:AAA",
		ResourceSize:     "300MB",
		PublishDate:      "2020/10/12 23:01",
		TorrentHref:      "/Download/20201012/aaa.torrent",
		EntryID:          "2353",
	}
	second := first
	second.MagnetLink = "magnet:?xt=urn:btih:ZZZ"
	second.PublishGroupName = "Renamed"

	n, err := store.InsertResources(ctx, []crawler.ResourceInfo{first})
	require.NoError(t, err)
	require.Equal(t, 1, n)
	n, err = store.InsertResources(ctx, []crawler.ResourceInfo{second})
	require.NoError(t, err)
	require.Equal(t, 0, n)

	rows, err := store.ListResources(ctx, "2353")
	require.NoError(t, err)
	require.Equal(t, []crawler.ResourceInfo{first}, rows)
}

func TestReadBackScans(t *testing.T) {
	t.Parallel()

	store, _ := setupTestStore(t)
	ctx := context.Background()

	_, err := store.UpsertEntries(ctx, []crawler.CatalogEntry{
		{Weekday: 2, EntryID: "20", CoverImagePath: "/images/Bangumi/2/b.jpg"},
		{Weekday: 1, EntryID: "10", CoverImagePath: "/images/Bangumi/1/a.jpg"},
	})
	require.NoError(t, err)
	_, err = store.InsertResources(ctx, []crawler.ResourceInfo{
		{ResourceName: "b", TorrentHref: "/Download/2/b.torrent", EntryID: "20"},
		{ResourceName: "a", TorrentHref: "/Download/1/a.torrent", EntryID: "10"},
	})
	require.NoError(t, err)

	ids, err := store.EntryIDs(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"10", "20"}, ids)

	covers, err := store.CoverImagePaths(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"/images/Bangumi/1/a.jpg", "/images/Bangumi/2/b.jpg"}, covers)

	hrefs, err := store.TorrentHrefs(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"/Download/1/a.torrent", "/Download/2/b.torrent"}, hrefs)

	counts, err := store.Counts(ctx)
	require.NoError(t, err)
	require.Equal(t, crawler.Counts{Entries: 2, Resources: 2}, counts)
}

func TestCommitPersistsAndCloseDiscardsPending(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "mikan.db")
	ctx := context.Background()

	store, err := Open(ctx, path)
	require.NoError(t, err)
	_, err = store.UpsertEntries(ctx, []crawler.CatalogEntry{{EntryID: "committed"}})
	require.NoError(t, err)
	require.NoError(t, store.Commit(ctx))
	_, err = store.UpsertEntries(ctx, []crawler.CatalogEntry{{EntryID: "pending"}})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := Open(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()
	ids, err := reopened.EntryIDs(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"committed"}, ids)
}

func TestCommitWithoutWritesIsNoop(t *testing.T) {
	t.Parallel()

	store, _ := setupTestStore(t)
	require.NoError(t, store.Commit(context.Background()))
}

func TestFailedBatchRollsBackToSavepoint(t *testing.T) {
	t.Parallel()

	store, _ := setupTestStore(t)
	ctx := context.Background()

	_, err := store.InsertResources(ctx, []crawler.ResourceInfo{{ResourceName: "kept", EntryID: "1"}})
	require.NoError(t, err)

	err = store.batch(ctx, func(tx *sql.Tx) error {
		for i := 0; i < 2; i++ {
			if _, err := tx.ExecContext(ctx, `INSERT INTO resource_info (resource_name) VALUES ('dup')`); err != nil {
				return fmt.Errorf("insert dup: %w", err)
			}
		}
		return nil
	})
	require.Error(t, err)
	require.True(t, errors.Is(err, crawler.ErrConflict))

	counts, err := store.Counts(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, counts.Resources)
	require.NoError(t, store.Commit(ctx))
}

func TestEmptyBatchesDoNotOpenTransaction(t *testing.T) {
	t.Parallel()

	store, _ := setupTestStore(t)
	ctx := context.Background()

	n, err := store.UpsertEntries(ctx, nil)
	require.NoError(t, err)
	require.Zero(t, n)
	n, err = store.InsertResources(ctx, nil)
	require.NoError(t, err)
	require.Zero(t, n)
	require.Nil(t, store.tx)
}
