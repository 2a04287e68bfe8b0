package downloader

import (
	"context"
	"sync"

	"streetviewdl/pkg/logger"
	"streetviewdl/pkg/panorama"
)

// Job is one panorama to download
type Job struct {
	Index  int
	Record panorama.Record
}

// jobFunc handles a single job
type jobFunc func(ctx context.Context, job Job, workerID int) Result

// WorkerPool runs jobs on a fixed number of workers. Jobs still queued when
// ctx is cancelled are reported as cancelled without running.
type WorkerPool struct {
	numWorkers  int
	jobQueue    chan Job
	resultQueue chan indexedResult
	wg          sync.WaitGroup
	ctx         context.Context
	process     jobFunc
	logger      logger.Logger
}

type indexedResult struct {
	index  int
	result Result
}

// NewWorkerPool creates a new worker pool bound to ctx
func NewWorkerPool(ctx context.Context, numWorkers int, process jobFunc, log logger.Logger) *WorkerPool {
	if numWorkers <= 0 {
		numWorkers = 1
	}

	return &WorkerPool{
		numWorkers:  numWorkers,
		jobQueue:    make(chan Job, numWorkers*2),
		resultQueue: make(chan indexedResult, numWorkers),
		ctx:         ctx,
		process:     process,
		logger:      logger.OrNop(log),
	}
}

// Start initializes and starts all workers
func (wp *WorkerPool) Start() {
	wp.logger.DebugWithFields("Starting worker pool", map[string]interface{}{
		"num_workers": wp.numWorkers,
	})

	for i := 0; i < wp.numWorkers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// Stop closes the queue and waits for workers to drain it
func (wp *WorkerPool) Stop() {
	close(wp.jobQueue)
	wp.wg.Wait()
	close(wp.resultQueue)

	wp.logger.Debug("Worker pool stopped")
}

// Submit queues a job, returning false once ctx is cancelled
func (wp *WorkerPool) Submit(job Job) bool {
	if wp.ctx.Err() != nil {
		return false
	}
	select {
	case wp.jobQueue <- job:
		return true
	case <-wp.ctx.Done():
		return false
	}
}

// Results returns the result channel for consuming job results
func (wp *WorkerPool) Results() <-chan indexedResult {
	return wp.resultQueue
}

// worker is the main worker routine
func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	for job := range wp.jobQueue {
		// process reports jobs drained after cancellation as cancelled
		result := wp.process(wp.ctx, job, id)
		wp.resultQueue <- indexedResult{index: job.Index, result: result}
	}

	wp.logger.DebugWithFields("Worker stopping - job queue closed", map[string]interface{}{
		"worker_id": id,
	})
}
