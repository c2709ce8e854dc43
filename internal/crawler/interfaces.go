package crawler

import "context"

// Fetcher retrieves the full body of a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Store persists catalog and resource metadata. Implementations are not
// required to be safe for concurrent use.
type Store interface {
	// UpsertEntries inserts entries, replacing rows that share an entry id.
	UpsertEntries(ctx context.Context, entries []CatalogEntry) (int, error)
	// InsertResources inserts resources, skipping names already stored. It
	// returns the number of rows actually inserted.
	InsertResources(ctx context.Context, resources []ResourceInfo) (int, error)

	EntryIDs(ctx context.Context) ([]string, error)
	CoverImagePaths(ctx context.Context) ([]string, error)
	TorrentHrefs(ctx context.Context) ([]string, error)

	ListEntries(ctx context.Context) ([]CatalogEntry, error)
	ListResources(ctx context.Context, entryID string) ([]ResourceInfo, error)
	Counts(ctx context.Context) (Counts, error)

	// Commit finalizes every write made since the last commit.
	Commit(ctx context.Context) error
	// Close discards uncommitted writes and releases the connection.
	Close() error
}

// FileStore holds downloaded images and torrents.
type FileStore interface {
	Exists(path string) (bool, error)
	Write(path string, data []byte) error
}
