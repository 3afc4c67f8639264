package export

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Worker owns a bounded queue of export ids and a fixed pool of
// goroutines draining it. Each job runs at most once per enqueue;
// token uniqueness guarantees two jobs never race on the same file.
type Worker struct {
	generator *Generator
	logger    *zap.Logger
	queue     chan string
	wg        sync.WaitGroup
	workers   int

	mu      sync.Mutex
	stopped bool
}

func NewWorker(gen *Generator, logger *zap.Logger, workers, queueSize int) *Worker {
	if workers < 1 {
		workers = 2
	}
	if queueSize < 1 {
		queueSize = 64
	}
	return &Worker{
		generator: gen,
		logger:    logger,
		queue:     make(chan string, queueSize),
		workers:   workers,
	}
}

// Start launches the pool.
func (w *Worker) Start(ctx context.Context) {
	for i := 0; i < w.workers; i++ {
		w.wg.Add(1)
		go w.run(ctx)
	}
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()
	for jobID := range w.queue {
		if err := w.generator.Generate(ctx, jobID); err != nil {
			w.logger.Error("export generation failed", zap.String("id", jobID), zap.Error(err))
		}
	}
}

// Enqueue hands a job to the pool. Returns false when the queue is
// full or the worker is stopped; the caller decides the job's fate.
func (w *Worker) Enqueue(jobID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return false
	}
	select {
	case w.queue <- jobID:
		return true
	default:
		w.logger.Warn("export queue full", zap.String("id", jobID))
		return false
	}
}

// Stop closes the queue and waits for in-flight jobs to finish.
func (w *Worker) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	close(w.queue)
	w.mu.Unlock()
	w.wg.Wait()
}
