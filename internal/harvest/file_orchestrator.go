package harvest

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/jacorycyjin/smart-library-crawler/internal/catalog"
	"github.com/jacorycyjin/smart-library-crawler/internal/metrics"
)

// FileOrchestrator drains the file-acquisition queue: for each claimed task
// it searches the e-book source by ISBN and stores every format it can get.
// Partial success is still completion; missing formats are expected.
type FileOrchestrator struct {
	tasks   TaskStore
	records RecordStore
	assets  AssetStore
	source  EbookSource
	ids     IDGenerator
	buckets Buckets
	log     *zap.Logger
}

// NewFileOrchestrator wires a FileOrchestrator.
func NewFileOrchestrator(
	tasks TaskStore,
	records RecordStore,
	assets AssetStore,
	source EbookSource,
	ids IDGenerator,
	buckets Buckets,
	log *zap.Logger,
) *FileOrchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &FileOrchestrator{
		tasks:   tasks,
		records: records,
		assets:  assets,
		source:  source,
		ids:     ids,
		buckets: buckets,
		log:     log,
	}
}

// Run claims up to limit pending tasks and processes them sequentially.
func (o *FileOrchestrator) Run(ctx context.Context, limit int) (Summary, error) {
	tasks, err := o.tasks.ListPendingFileTasks(ctx, limit)
	if err != nil {
		return Summary{}, fmt.Errorf("list pending file tasks: %w", err)
	}
	var sum Summary
	for _, t := range tasks {
		sum.Processed++
		if err := o.tasks.UpdateFileTask(ctx, t.ID, StatusUpdate{Status: StatusInProgress}); err != nil {
			return sum, fmt.Errorf("claim file task %d: %w", t.ID, err)
		}
		outcome, err := o.processTask(ctx, t)
		switch {
		case err != nil:
			o.log.Error("file task failed",
				zap.Int64("task_id", t.ID),
				zap.String("isbn", t.ISBN),
				zap.Error(err))
			upd := StatusUpdate{Status: StatusFailed}.WithError(err.Error())
			if uerr := o.tasks.UpdateFileTask(ctx, t.ID, upd); uerr != nil {
				o.log.Error("record file task failure", zap.Int64("task_id", t.ID), zap.Error(uerr))
			}
			metrics.TasksFinished.WithLabelValues("file", string(StatusFailed)).Inc()
			sum.Failed++
		case outcome == taskBlocked:
			metrics.BlockedDetected.WithLabelValues("file").Inc()
		default:
			sum.Succeeded++
		}
	}
	return sum, nil
}

func (o *FileOrchestrator) processTask(ctx context.Context, t FileTask) (taskOutcome, error) {
	result, err := o.source.Search(ctx, t.ISBN)
	switch {
	case errors.Is(err, ErrBlocked):
		upd := StatusUpdate{Status: StatusPending}.WithError(BlockedMessage)
		if uerr := o.tasks.UpdateFileTask(ctx, t.ID, upd); uerr != nil {
			return 0, fmt.Errorf("requeue blocked file task: %w", uerr)
		}
		o.log.Warn("file task re-queued after challenge page", zap.String("isbn", t.ISBN))
		return taskBlocked, nil
	case errors.Is(err, ErrNotFound):
		return o.markNoResource(ctx, t)
	case err != nil:
		return 0, fmt.Errorf("search e-book %s: %w", t.ISBN, err)
	}
	if len(result.Downloads) == 0 {
		return o.markNoResource(ctx, t)
	}

	o.storeTags(ctx, t.ResourceID, result.Tags)

	var flags FormatFlags
	for _, format := range AllFormats {
		// Existence is checked against the record store, not the task's own
		// flags, to tolerate externally-added files.
		exists, err := o.records.FileExists(ctx, t.ResourceID, format)
		if err != nil {
			return 0, fmt.Errorf("file existence check: %w", err)
		}
		if exists {
			flags.Set(format, true)
			o.log.Debug("format already stored",
				zap.String("isbn", t.ISBN), zap.Stringer("format", format))
			continue
		}
		download := findDownload(result.Downloads, format)
		if download == nil {
			continue
		}
		data, err := o.source.Download(ctx, download.URL)
		if err != nil {
			// A single missing format is expected and non-fatal.
			o.log.Warn("format download failed",
				zap.String("isbn", t.ISBN), zap.Stringer("format", format), zap.Error(err))
			continue
		}
		name, err := o.ids.NewID()
		if err != nil {
			return 0, fmt.Errorf("mint file name: %w", err)
		}
		object := name + format.Ext()
		url, err := o.assets.Put(ctx, o.buckets.Attachments, object, format.ContentType(), data)
		if err != nil {
			return 0, fmt.Errorf("upload %s: %w", format, err)
		}
		file := catalog.ResourceFile{
			ResourceID: t.ResourceID,
			FileType:   int(format),
			FileURL:    url,
			FileSize:   int64(len(data)),
		}
		if err := o.records.CreateFile(ctx, file); err != nil {
			return 0, fmt.Errorf("store file row %s: %w", format, err)
		}
		flags.Set(format, true)
		metrics.FilesUploaded.WithLabelValues(format.String()).Inc()
		o.log.Info("e-book stored",
			zap.String("isbn", t.ISBN), zap.Stringer("format", format), zap.Int("bytes", len(data)))
	}

	upd := StatusUpdate{Status: StatusCompleted}.WithFormats(flags).ClearError()
	if err := o.tasks.UpdateFileTask(ctx, t.ID, upd); err != nil {
		return 0, fmt.Errorf("complete file task: %w", err)
	}
	metrics.TasksFinished.WithLabelValues("file", string(StatusCompleted)).Inc()
	return taskSucceeded, nil
}

// storeTags records the tags scraped alongside the e-book. Tag failures are
// logged and swallowed; they never fail the acquisition task.
func (o *FileOrchestrator) storeTags(ctx context.Context, resourceID string, tags []string) {
	for _, name := range tags {
		if name == "" {
			continue
		}
		id, err := o.ids.NewID()
		if err != nil {
			o.log.Warn("mint tag id failed", zap.Error(err))
			return
		}
		tagID, err := o.records.EnsureTag(ctx, catalog.Tag{TagID: id, Name: name})
		if err != nil {
			o.log.Warn("ensure tag failed", zap.String("tag", name), zap.Error(err))
			continue
		}
		if err := o.records.AttachTag(ctx, resourceID, tagID, 1.0); err != nil {
			o.log.Warn("attach tag failed", zap.String("tag", name), zap.Error(err))
		}
	}
}

func (o *FileOrchestrator) markNoResource(ctx context.Context, t FileTask) (taskOutcome, error) {
	upd := StatusUpdate{Status: StatusNoResource}.WithError("no e-book found")
	if err := o.tasks.UpdateFileTask(ctx, t.ID, upd); err != nil {
		return 0, fmt.Errorf("mark file task no_resource: %w", err)
	}
	metrics.TasksFinished.WithLabelValues("file", string(StatusNoResource)).Inc()
	o.log.Info("no e-book available", zap.String("isbn", t.ISBN))
	return taskSucceeded, nil
}

func findDownload(downloads []EbookDownload, format FileFormat) *EbookDownload {
	for i := range downloads {
		if downloads[i].Format == format {
			return &downloads[i]
		}
	}
	return nil
}
