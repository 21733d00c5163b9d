package downloader

import (
	"context"
	"fmt"

	"tumblrbackup/pkg/logger"
	"tumblrbackup/pkg/metrics"
	"tumblrbackup/pkg/store"
)

const (
	DefaultConcurrency = 5

	// progressEvery is how many completions pass between progress lines
	progressEvery = 10
)

// MediaStore is the part of the archive the downloader reads and updates
type MediaStore interface {
	ListPendingMedia(ctx context.Context) ([]store.MediaItem, error)
	MarkMediaResult(ctx context.Context, mediaID int64, localPath string) error
}

// Summary counts one DownloadPending pass
type Summary struct {
	Attempted int
	Succeeded int
}

// Failed is the number of attempted items that did not land on disk
func (s Summary) Failed() int {
	return s.Attempted - s.Succeeded
}

// Downloader drains the pending media set through a worker pool
type Downloader struct {
	store   MediaStore
	fetcher Fetcher
	logger  logger.Logger
	metrics *metrics.Metrics
}

// New creates a downloader; log may be nil
func New(st MediaStore, fetcher Fetcher, log logger.Logger, m *metrics.Metrics) *Downloader {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Downloader{store: st, fetcher: fetcher, logger: log, metrics: m}
}

// DownloadPending reads the pending set once and fetches every item with at
// most concurrency fetches in flight. Each item is marked downloaded whether
// or not its fetch succeeded; a failed item keeps an empty local path. The
// returned error is non-nil only when the pending set cannot be read or the
// context is cancelled.
func (d *Downloader) DownloadPending(ctx context.Context, concurrency int) (Summary, error) {
	if concurrency < 1 {
		concurrency = DefaultConcurrency
	}

	pending, err := d.store.ListPendingMedia(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to list pending media: %w", err)
	}
	total := len(pending)
	d.metrics.SetMediaPending(total)

	if total == 0 {
		d.logger.Info("No pending media to download")
		return Summary{}, nil
	}

	d.logger.InfoWithFields("Downloading pending media", map[string]interface{}{
		"pending":     total,
		"concurrency": concurrency,
	})

	pool := NewWorkerPool(ctx, concurrency, d.fetcher, d.logger)
	pool.Start()

	go func() {
		defer pool.Stop()
		for _, item := range pending {
			if err := pool.Submit(jobFor(item)); err != nil {
				return
			}
		}
	}()

	var summary Summary
	for result := range pool.Results() {
		if d.record(ctx, result) {
			summary.Attempted++
			if result.Success() {
				summary.Succeeded++
			}
		}
		d.metrics.SetMediaPending(total - summary.Attempted)

		if summary.Attempted > 0 && summary.Attempted%progressEvery == 0 {
			logger.LogProgress(d.logger, summary.Attempted, total)
		}
	}

	d.logger.InfoWithFields("Media download finished", map[string]interface{}{
		"attempted": summary.Attempted,
		"succeeded": summary.Succeeded,
		"failed":    summary.Failed(),
	})

	if err := ctx.Err(); err != nil {
		return summary, fmt.Errorf("media download interrupted: %w", err)
	}
	return summary, nil
}

// record writes one result to the store and reports whether it counted as
// an attempt. A failure caused by cancellation is left pending so the next
// run picks it up.
func (d *Downloader) record(ctx context.Context, result DownloadResult) bool {
	if result.Error != nil && ctx.Err() != nil {
		return false
	}

	logger.LogDownload(d.logger, result.Job.MediaID, result.Job.URL, result.LocalPath, result.Error)

	path := ""
	if result.Success() {
		path = result.LocalPath
	}
	// A finished download is recorded even if the run is being cancelled
	if err := d.store.MarkMediaResult(context.WithoutCancel(ctx), result.Job.MediaID, path); err != nil {
		d.logger.ErrorWithFields("Failed to record media result", map[string]interface{}{
			"media_id": result.Job.MediaID,
			"error":    err.Error(),
		})
	}
	return true
}
