package downloader

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tumblrbackup/pkg/logger"
	"tumblrbackup/pkg/store"
)

// DownloadJob is one pending media row handed to a worker
type DownloadJob struct {
	MediaID int64
	PostID  int64
	URL     string
}

// DownloadResult is the outcome of one job
type DownloadResult struct {
	Job       DownloadJob
	LocalPath string
	Error     error
	Duration  time.Duration
}

// Success reports whether the asset landed on disk
func (r DownloadResult) Success() bool {
	return r.Error == nil && r.LocalPath != ""
}

// Fetcher downloads a single asset and returns where it was written
type Fetcher interface {
	Fetch(ctx context.Context, postID int64, url string) (string, error)
}

func jobFor(item store.MediaItem) DownloadJob {
	return DownloadJob{MediaID: item.ID, PostID: item.PostID, URL: item.URL}
}

// WorkerPool runs a fixed number of fetch workers over a job channel and
// fans their results into one channel. Results arrive in completion order.
type WorkerPool struct {
	numWorkers  int
	jobQueue    chan DownloadJob
	resultQueue chan DownloadResult
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	fetcher     Fetcher
	logger      logger.Logger
}

// NewWorkerPool creates a pool; numWorkers below 1 is treated as 1
func NewWorkerPool(ctx context.Context, numWorkers int, fetcher Fetcher, log logger.Logger) *WorkerPool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	if log == nil {
		log = logger.GetLogger()
	}
	ctx, cancel := context.WithCancel(ctx)

	return &WorkerPool{
		numWorkers:  numWorkers,
		jobQueue:    make(chan DownloadJob, numWorkers*2),
		resultQueue: make(chan DownloadResult, numWorkers),
		ctx:         ctx,
		cancel:      cancel,
		fetcher:     fetcher,
		logger:      log,
	}
}

// Start launches the workers
func (wp *WorkerPool) Start() {
	wp.logger.DebugWithFields("Starting worker pool", map[string]interface{}{
		"num_workers": wp.numWorkers,
	})

	for i := 0; i < wp.numWorkers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// Stop closes the job queue, waits for in-flight jobs and closes Results
func (wp *WorkerPool) Stop() {
	close(wp.jobQueue)
	wp.wg.Wait()
	close(wp.resultQueue)
	wp.cancel()

	wp.logger.Debug("Worker pool stopped")
}

// Submit queues a job, blocking while the queue is full
func (wp *WorkerPool) Submit(job DownloadJob) error {
	select {
	case wp.jobQueue <- job:
		return nil
	case <-wp.ctx.Done():
		return fmt.Errorf("worker pool is shutting down: %w", wp.ctx.Err())
	}
}

// Results must be drained concurrently with Submit
func (wp *WorkerPool) Results() <-chan DownloadResult {
	return wp.resultQueue
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	for job := range wp.jobQueue {
		if wp.ctx.Err() != nil {
			// Drain without fetching so Stop can return
			continue
		}

		result := wp.processJob(job, id)

		select {
		case wp.resultQueue <- result:
		case <-wp.ctx.Done():
			wp.logger.DebugWithFields("Worker dropped result after cancellation", map[string]interface{}{
				"worker_id": id,
				"media_id":  job.MediaID,
			})
		}
	}
}

func (wp *WorkerPool) processJob(job DownloadJob, workerID int) DownloadResult {
	start := time.Now()

	wp.logger.DebugWithFields("Worker processing job", map[string]interface{}{
		"worker_id": workerID,
		"media_id":  job.MediaID,
		"url":       job.URL,
	})

	localPath, err := wp.fetcher.Fetch(wp.ctx, job.PostID, job.URL)
	return DownloadResult{
		Job:       job,
		LocalPath: localPath,
		Error:     err,
		Duration:  time.Since(start),
	}
}

// NumWorkers returns the pool size
func (wp *WorkerPool) NumWorkers() int {
	return wp.numWorkers
}
