// Package downloader drives a run: for every catalog item it resolves the
// wanted formats, lays out the output directory and hands each missing file
// to the transfer engine.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"packt-downloader/model"
	"packt-downloader/store"
	"packt-downloader/utils"
)

const DefaultWorkers = 4

// StatusRecorder persists target transitions.
type StatusRecorder interface {
	Record(ctx context.Context, rec store.Record) error
	Get(ctx context.Context, key model.TargetKey) (store.Record, bool, error)
}

// Progress is told about finished items.
type Progress interface {
	Items(total int)
	ItemDone(name string)
	Done()
}

type Options struct {
	OutputDir string
	// Formats is the requested subset of format tags.
	Formats []string
	// Separate puts the files of every item in their own folder.
	Separate bool
	// Workers bounds the number of items processed at once.
	// Default: 4
	Workers int

	RunID    string
	Status   StatusRecorder
	Progress Progress
	Logger   *slog.Logger
}

type Downloader struct {
	resolver model.Resolver
	transfer model.Transferer
	opts     Options
	logger   *slog.Logger
	locks    *keyedMutex
}

func New(resolver model.Resolver, transferer model.Transferer, opts Options) *Downloader {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Downloader{
		resolver: resolver,
		transfer: transferer,
		opts:     opts,
		logger:   opts.Logger,
		locks:    newKeyedMutex(),
	}
}

// Run processes items and returns what happened to every target. Failures
// of single items are collected in the summary; only cancellation of ctx
// ends the run early, in which case ctx.Err() is returned with the partial
// summary.
func (d *Downloader) Run(ctx context.Context, items []model.CatalogItem) (*Summary, error) {
	if err := utils.EnsureDir(d.opts.OutputDir); err != nil {
		return nil, &model.SetupError{Op: "create output directory", Err: err}
	}

	summary := &Summary{}
	if d.opts.Progress != nil {
		d.opts.Progress.Items(len(items))
		defer d.opts.Progress.Done()
	}

	g := new(errgroup.Group)
	g.SetLimit(d.opts.Workers)
	for _, item := range items {
		item := item
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			d.processItem(ctx, item, summary)
			if d.opts.Progress != nil {
				d.opts.Progress.ItemDone(item.ProductName)
			}
			return nil
		})
	}
	g.Wait()

	if err := ctx.Err(); err != nil {
		summary.Cancelled = true
		return summary, err
	}
	return summary, nil
}

func (d *Downloader) processItem(ctx context.Context, item model.CatalogItem, summary *Summary) {
	if ctx.Err() != nil {
		return
	}
	name := FileStem(item)
	logger := d.logger.With("book", item.ProductName)

	available, err := d.resolver.ListFormats(ctx, item.ProductID)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		logger.Warn("failed to list formats, skipping book", "error", err)
		summary.addError(fmt.Errorf("%s: %w", item.ProductName, err))
		available = model.FileTypeSet{}
	}

	formats := available.Intersect(d.opts.Formats)
	if len(formats) == 0 {
		logger.Debug("no requested format available", "available", available)
		return
	}

	dir := ItemDir(d.opts.OutputDir, name, d.opts.Separate)
	if d.opts.Separate {
		if err := utils.EnsureDir(dir); err != nil {
			logger.Warn("failed to create book folder", "error", err)
			summary.addError(err)
			return
		}
		if _, err := MigrateLoose(d.opts.OutputDir, name, dir, logger); err != nil {
			logger.Warn("failed to move loose files", "error", err)
		}
	}

	for _, format := range formats {
		if ctx.Err() != nil {
			return
		}
		d.processTarget(ctx, PlanTarget(item, name, dir, format), summary, logger)
	}
}

func (d *Downloader) processTarget(ctx context.Context, target model.DownloadTarget, summary *Summary, logger *slog.Logger) {
	unlock := d.locks.Lock(target.Target)
	defer unlock()

	logger = logger.With("format", target.Format)

	if utils.FileExists(target.Target) {
		logger.Debug("already downloaded", "file", target.Target)
		d.recordSkip(ctx, target, logger)
		summary.add(model.TargetSkipped)
		return
	}

	// The file on disk decides; the store only remembers where a completed
	// download went when it had to dodge a name collision.
	if rec, ok := d.lookup(ctx, target, logger); ok && rec.Status == model.TargetComplete {
		if rec.Path != target.Target && filepath.Dir(rec.Path) == filepath.Dir(target.Target) && utils.FileExists(rec.Path) {
			logger.Debug("already downloaded", "file", rec.Path)
			summary.add(model.TargetSkipped)
			return
		}
		logger.Info("downloaded before but the file is gone, fetching again", "file", rec.Path)
	}

	// A finished archive download that was not renamed yet.
	if target.Path != target.Target && utils.FileExists(target.Path) {
		if err := d.finish(ctx, target, logger); err != nil {
			d.fail(ctx, target, err, summary, logger)
			return
		}
		summary.add(model.TargetComplete)
		return
	}

	d.record(ctx, target, model.TargetResolving, "", logger)
	url, err := d.resolver.ResolveURL(ctx, target.Item.ProductID, target.Format)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		d.fail(ctx, target, err, summary, logger)
		return
	}
	target.URL = url

	d.record(ctx, target, model.TargetDownloading, "", logger)
	logger.Info("downloading", "file", filepath.Base(target.Path))
	if err := d.transfer.Download(ctx, target.URL, target.Path); err != nil {
		if ctx.Err() != nil {
			return
		}
		d.fail(ctx, target, err, summary, logger)
		return
	}

	if err := d.finish(ctx, target, logger); err != nil {
		d.fail(ctx, target, err, summary, logger)
		return
	}
	summary.add(model.TargetComplete)
}

// finish applies the archive rename and records completion.
func (d *Downloader) finish(ctx context.Context, target model.DownloadTarget, logger *slog.Logger) error {
	if target.Path != target.Target {
		final, err := utils.MoveNoClobber(target.Path, target.Target)
		if err != nil {
			return err
		}
		target.Target = final
	}
	d.record(ctx, target, model.TargetComplete, "", logger)
	logger.Info("downloaded", "file", filepath.Base(target.Target))
	return nil
}

func (d *Downloader) fail(ctx context.Context, target model.DownloadTarget, err error, summary *Summary, logger *slog.Logger) {
	logger.Warn("failed to download", "error", err)
	d.record(ctx, target, model.TargetFailed, err.Error(), logger)
	summary.add(model.TargetFailed)
	summary.addError(fmt.Errorf("%s (%s): %w", target.Item.ProductName, target.Format, err))
}

// recordSkip marks an existing file as complete unless the store already
// knows about it.
func (d *Downloader) recordSkip(ctx context.Context, target model.DownloadTarget, logger *slog.Logger) {
	if d.opts.Status == nil {
		return
	}
	if rec, ok := d.lookup(ctx, target, logger); ok && rec.Status == model.TargetComplete {
		return
	}
	d.record(ctx, target, model.TargetComplete, "", logger)
}

func (d *Downloader) lookup(ctx context.Context, target model.DownloadTarget, logger *slog.Logger) (store.Record, bool) {
	if d.opts.Status == nil {
		return store.Record{}, false
	}
	rec, ok, err := d.opts.Status.Get(ctx, target.Key())
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			logger.Warn("failed to read status", "error", err)
		}
		return store.Record{}, false
	}
	return rec, ok
}

func (d *Downloader) record(ctx context.Context, target model.DownloadTarget, status model.TargetStatus, lastErr string, logger *slog.Logger) {
	if d.opts.Status == nil {
		return
	}
	err := d.opts.Status.Record(ctx, store.Record{
		ProductID:   target.Item.ProductID,
		Format:      target.Format,
		ProductName: target.Item.ProductName,
		Path:        target.Target,
		Status:      status,
		LastError:   lastErr,
		RunID:       d.opts.RunID,
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn("failed to record status", "status", status, "error", err)
	}
}

// keyedMutex serializes work on the same output path.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

func (k *keyedMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
