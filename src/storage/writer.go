package storage

import (
	"context"
	"sync"
	"time"

	"market-pulse/src/interfaces"
	"market-pulse/src/logger"
	"market-pulse/src/metrics"
	"market-pulse/src/models"
)

const writeTimeout = 5 * time.Second

type writeJob struct {
	what string
	fn   func(ctx context.Context) error
}

// AsyncWriter moves cache writes off the delivery path. Jobs are queued on a
// bounded channel and dropped when it is full. Failures are logged and
// counted, never returned to the caller.
type AsyncWriter struct {
	cache   interfaces.ICache
	logger  *logger.Logger
	metrics *metrics.Metrics
	jobs    chan writeJob

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// -----------------------------------------------------------------------------

func NewAsyncWriter(cache interfaces.ICache, buffer int, log *logger.Logger, m *metrics.Metrics) *AsyncWriter {
	if buffer <= 0 {
		buffer = 256
	}
	return &AsyncWriter{
		cache:   cache,
		logger:  log,
		metrics: m,
		jobs:    make(chan writeJob, buffer),
	}
}

// -----------------------------------------------------------------------------

// Start launches the single writer goroutine
func (w *AsyncWriter) Start() {
	w.wg.Add(1)
	go w.run()
}

// -----------------------------------------------------------------------------

// Stop drains the queue and waits for the writer goroutine
func (w *AsyncWriter) Stop() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	close(w.jobs)
	w.mu.Unlock()

	w.wg.Wait()
}

// -----------------------------------------------------------------------------

func (w *AsyncWriter) run() {
	defer w.wg.Done()

	for job := range w.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := job.fn(ctx)
		cancel()

		if err != nil {
			w.logger.Debug("Cache write %s failed: %v", job.what, err)
			w.metrics.RecordCacheWrite(w.cache.Name(), "error")
			continue
		}
		w.metrics.RecordCacheWrite(w.cache.Name(), "ok")
	}
}

// -----------------------------------------------------------------------------

func (w *AsyncWriter) enqueue(job writeJob) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.closed {
		return false
	}

	select {
	case w.jobs <- job:
		return true
	default:
		w.logger.Debug("Cache write queue full, dropping %s", job.what)
		w.metrics.RecordCacheWrite(w.cache.Name(), "dropped")
		return false
	}
}

// -----------------------------------------------------------------------------

func (w *AsyncWriter) WriteQuote(q models.Quote) bool {
	return w.enqueue(writeJob{what: "quote " + q.Symbol, fn: func(ctx context.Context) error {
		return w.cache.PutQuote(ctx, q)
	}})
}

func (w *AsyncWriter) WriteMovers(s models.MoversSnapshot) bool {
	return w.enqueue(writeJob{what: "movers", fn: func(ctx context.Context) error {
		return w.cache.PutMovers(ctx, s)
	}})
}

func (w *AsyncWriter) WriteBars(symbol string, bars []models.Bar) bool {
	return w.enqueue(writeJob{what: "bars " + symbol, fn: func(ctx context.Context) error {
		return w.cache.PutBars(ctx, symbol, bars)
	}})
}

func (w *AsyncWriter) WriteSignal(s models.Signal) bool {
	return w.enqueue(writeJob{what: "signal " + s.Symbol, fn: func(ctx context.Context) error {
		return w.cache.PutSignal(ctx, s)
	}})
}

// Cleanup queues a retention cleanup behind pending writes
func (w *AsyncWriter) Cleanup(retention time.Duration) bool {
	return w.enqueue(writeJob{what: "cleanup", fn: func(ctx context.Context) error {
		return w.cache.CleanupOldData(ctx, retention)
	}})
}
