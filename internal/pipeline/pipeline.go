// Package pipeline runs one crawl: the home page catalog, every entry's
// resource page, then the cover images and torrent files those pages name.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/mikan-crawler/internal/crawler"
	"github.com/JakeFAU/mikan-crawler/internal/id/uuid"
	"github.com/JakeFAU/mikan-crawler/internal/parser"
)

// ErrCatalogUnavailable is returned when the home page cannot be fetched.
// It is the only failure that aborts a run.
var ErrCatalogUnavailable = errors.New("catalog unavailable")

// Recorder receives task and row observations.
type Recorder interface {
	ObserveTask(stage, outcome string)
	ObserveRows(table, result string, n int)
	ObserveRunDuration(d time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) ObserveTask(string, string)       {}
func (nopRecorder) ObserveRows(string, string, int)  {}
func (nopRecorder) ObserveRunDuration(time.Duration) {}

// Config controls where a run reads from and writes to.
type Config struct {
	BaseURL     string
	ImageDir    string
	TorrentDir  string
	Concurrency int
}

// Pipeline wires a fetcher, a metadata store and download directories into
// the staged crawl. The store is only touched from the goroutine calling Run.
type Pipeline struct {
	cfg      Config
	fetcher  crawler.Fetcher
	store    crawler.Store
	files    crawler.FileStore
	logger   *zap.Logger
	recorder Recorder
	now      func() time.Time
	newID    func() (string, error)
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithRecorder mirrors stage outcomes to r.
func WithRecorder(r Recorder) Option {
	return func(p *Pipeline) {
		if r != nil {
			p.recorder = r
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithRunID replaces the run id generator.
func WithRunID(newID func() (string, error)) Option {
	return func(p *Pipeline) { p.newID = newID }
}

// New validates dependencies and returns a Pipeline.
func New(
	cfg Config,
	fetcher crawler.Fetcher,
	store crawler.Store,
	files crawler.FileStore,
	logger *zap.Logger,
	opts ...Option,
) (*Pipeline, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if fetcher == nil || store == nil || files == nil {
		return nil, fmt.Errorf("fetcher, store and file store are required")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pipeline{
		cfg:      cfg,
		fetcher:  fetcher,
		store:    store,
		files:    files,
		logger:   logger,
		recorder: nopRecorder{},
		now:      time.Now,
		newID:    uuid.NewRunID,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Run executes every stage in order and commits the store. Only a failed
// catalog fetch, a failed store read-back, a failed commit or cancellation
// returns an error; per-task failures are logged and counted in the Report.
// The caller owns the store and must Close it, which discards the run's
// writes when Run did not reach Committed.
func (p *Pipeline) Run(ctx context.Context) (Report, error) {
	start := p.now()
	rep, err := p.run(ctx)
	rep.Elapsed = p.now().Sub(start)
	p.recorder.ObserveRunDuration(rep.Elapsed)
	return rep, err
}

func (p *Pipeline) run(ctx context.Context) (Report, error) {
	runID, err := p.newID()
	if err != nil {
		return Report{}, err
	}
	rep := Report{RunID: runID, State: Idle}
	log := p.logger.With(zap.String("run_id", runID))

	if err := p.fetchCatalog(ctx, log, &rep); err != nil {
		return rep, err
	}
	rep.State = CatalogFetched

	if err := p.fetchResources(ctx, log, &rep); err != nil {
		return rep, err
	}
	rep.State = ResourcesFetched

	if err := p.download(ctx, log, StageImages, p.store.CoverImagePaths, p.cfg.ImageDir, &rep.Images); err != nil {
		return rep, err
	}
	rep.State = ImagesFetched

	if err := p.download(ctx, log, StageTorrents, p.store.TorrentHrefs, p.cfg.TorrentDir, &rep.Torrents); err != nil {
		return rep, err
	}
	rep.State = TorrentsFetched

	counts, err := p.store.Counts(ctx)
	if err != nil {
		return rep, fmt.Errorf("count rows: %w", err)
	}
	rep.Counts = counts
	if err := p.store.Commit(ctx); err != nil {
		return rep, fmt.Errorf("commit run: %w", err)
	}
	rep.State = Committed
	log.Info("run committed",
		zap.Int("entries", counts.Entries),
		zap.Int("resources", counts.Resources),
	)
	return rep, nil
}

func (p *Pipeline) fetchCatalog(ctx context.Context, log *zap.Logger, rep *Report) error {
	log = log.With(zap.String("stage", StageCatalog))
	t := tally{stage: StageCatalog, report: &rep.Catalog, recorder: p.recorder}
	rep.Catalog.Scheduled = 1

	body, err := p.fetcher.Fetch(ctx, p.cfg.BaseURL)
	if err != nil {
		t.fail()
		log.Error("fetch catalog failed, please check your network",
			zap.String("url", p.cfg.BaseURL),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %w", ErrCatalogUnavailable, err)
	}
	log.Info("catalog fetched", zap.String("url", p.cfg.BaseURL), zap.Int("bytes", len(body)))

	entries, err := parser.ParseCatalog(body)
	if err != nil && len(entries) == 0 {
		// Stored ids from earlier runs still feed the next stage.
		t.fail()
		log.Error("parse catalog failed", zap.Error(err))
		return nil
	}
	if err != nil {
		log.Warn("catalog items skipped", zap.Int("parsed", len(entries)), zap.Error(err))
	}
	n, err := p.store.UpsertEntries(ctx, entries)
	if err != nil {
		t.fail()
		p.recorder.ObserveRows("catalog_entry", "failed", len(entries))
		log.Error("store catalog failed", zap.Int("entries", len(entries)), zap.Error(err))
		return nil
	}
	t.succeed()
	p.recorder.ObserveRows("catalog_entry", "written", n)
	log.Info("catalog stored", zap.Int("entries", n))
	return nil
}

type page struct {
	entryID string
	url     string
	body    []byte
	err     error
}

func (p *Pipeline) fetchResources(ctx context.Context, log *zap.Logger, rep *Report) error {
	log = log.With(zap.String("stage", StageResources))
	t := tally{stage: StageResources, report: &rep.Resources, recorder: p.recorder}

	ids, err := p.store.EntryIDs(ctx)
	if err != nil {
		return fmt.Errorf("read entry ids: %w", err)
	}
	rep.Resources.Scheduled = len(ids)
	log.Info("tasks scheduled", zap.Int("scheduled", len(ids)))

	fanOut(ctx, p.cfg.Concurrency, ids,
		func(ctx context.Context, id string) page {
			u, err := crawler.ResourcePageURL(p.cfg.BaseURL, id)
			if err != nil {
				return page{entryID: id, err: err}
			}
			body, err := p.fetcher.Fetch(ctx, u)
			return page{entryID: id, url: u, body: body, err: err}
		},
		func(pg page) {
			fields := []zap.Field{zap.String("entry_id", pg.entryID), zap.String("url", pg.url)}
			if pg.err != nil {
				t.fail()
				log.Error("fetch resources failed", append(fields, zap.Error(pg.err))...)
				return
			}
			rows, err := parser.ParseResources(pg.body, pg.entryID)
			if err != nil {
				t.fail()
				log.Error("parse resources failed", append(fields, zap.Error(err))...)
				return
			}
			n, err := p.store.InsertResources(ctx, rows)
			if err != nil {
				t.fail()
				p.recorder.ObserveRows("resource_info", "failed", len(rows))
				log.Error("store resources failed", append(fields, zap.Error(err))...)
				return
			}
			t.succeed()
			p.recorder.ObserveRows("resource_info", "written", n)
			p.recorder.ObserveRows("resource_info", "ignored", len(rows)-n)
			log.Debug("resources stored", append(fields, zap.Int("rows", len(rows)), zap.Int("inserted", n))...)
		},
	)
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("resources stage: %w", err)
	}
	return nil
}

type transfer struct {
	url  string
	path string
}

type transferResult struct {
	transfer
	bytes int
	err   error
}

// download fetches every reference returned by refs into dir, skipping files
// that already exist.
func (p *Pipeline) download(
	ctx context.Context,
	log *zap.Logger,
	stage string,
	refs func(context.Context) ([]string, error),
	dir string,
	sr *StageReport,
) error {
	log = log.With(zap.String("stage", stage))
	t := tally{stage: stage, report: sr, recorder: p.recorder}

	list, err := refs(ctx)
	if err != nil {
		return fmt.Errorf("read %s references: %w", stage, err)
	}

	seen := make(map[string]struct{}, len(list))
	tasks := make([]transfer, 0, len(list))
	for _, ref := range list {
		u, err := crawler.ResolveURL(p.cfg.BaseURL, ref)
		if err != nil {
			t.fail()
			log.Warn("invalid reference", zap.String("url", ref), zap.Error(err))
			continue
		}
		path, err := crawler.DestinationPath(u, dir)
		if err != nil {
			t.fail()
			log.Warn("skipping download", zap.String("url", u), zap.Error(err))
			continue
		}
		if _, dup := seen[path]; dup {
			t.skip()
			continue
		}
		seen[path] = struct{}{}
		exists, err := p.files.Exists(path)
		if err != nil {
			t.fail()
			log.Warn("stat destination failed", zap.String("path", path), zap.Error(err))
			continue
		}
		if exists {
			t.skip()
			continue
		}
		tasks = append(tasks, transfer{url: u, path: path})
	}
	sr.Scheduled = len(tasks)
	log.Info("download tasks scheduled", zap.Int("scheduled", len(tasks)), zap.Int("skipped", sr.Skipped))

	fanOut(ctx, p.cfg.Concurrency, tasks,
		func(ctx context.Context, tr transfer) transferResult {
			body, err := p.fetcher.Fetch(ctx, tr.url)
			if err != nil {
				return transferResult{transfer: tr, err: err}
			}
			if err := p.files.Write(tr.path, body); err != nil {
				return transferResult{transfer: tr, err: err}
			}
			return transferResult{transfer: tr, bytes: len(body)}
		},
		func(res transferResult) {
			if res.err != nil {
				t.fail()
				log.Error("download failed", zap.String("url", res.url), zap.String("path", res.path), zap.Error(res.err))
				return
			}
			t.succeed()
			log.Debug("downloaded", zap.String("path", res.path), zap.Int("bytes", res.bytes))
		},
	)
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s stage: %w", stage, err)
	}
	return nil
}
