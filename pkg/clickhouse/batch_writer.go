package clickhouse

import (
	"context"
	"sync"
	"time"

	"rwaledger/pkg/logger"
)

// FlushFunc performs the INSERT for one batch
type FlushFunc[T any] func(ctx context.Context, batch []T) error

// BatchWriterConfig configures a BatchWriter. Zero values take defaults.
type BatchWriterConfig[T any] struct {
	FlushFunc FlushFunc[T]
	TableName string

	MaxBatchSize int           // rows that trigger an immediate flush; 500
	MaxBuffered  int           // rows kept across failed flushes; 20 x MaxBatchSize
	MaxAge       time.Duration // longest a row waits in the background loop; 5s

	// OnFlush observes every flush attempt: rows attempted, rows dropped on
	// overflow, and the insert error
	OnFlush func(rows, dropped int, err error)
}

// BatchWriter buffers rows and inserts them in batches. Rows from a failed
// insert go back to the front of the buffer so the journal keeps event order;
// past MaxBuffered the oldest rows are dropped.
type BatchWriter[T any] struct {
	cfg BatchWriterConfig[T]
	log *logger.Logger

	mu      sync.Mutex
	pending []T
	dropped int64

	flushing sync.Mutex

	stop context.CancelFunc
	done chan struct{}
}

func NewBatchWriter[T any](cfg BatchWriterConfig[T]) *BatchWriter[T] {
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 500
	}
	if cfg.MaxBuffered < cfg.MaxBatchSize {
		cfg.MaxBuffered = 20 * cfg.MaxBatchSize
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 5 * time.Second
	}
	if cfg.OnFlush == nil {
		cfg.OnFlush = func(int, int, error) {}
	}
	return &BatchWriter[T]{
		cfg: cfg,
		log: logger.Get().Component("batch_writer").With("table", cfg.TableName),
	}
}

// Start runs the age-based flush loop until ctx ends or Stop is called.
// Calling Start twice is a no-op.
func (w *BatchWriter[T]) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done != nil {
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	w.stop, w.done = cancel, make(chan struct{})
	go w.loop(loopCtx, w.done)
}

// Add buffers one row. When the buffer reaches MaxBatchSize the row is
// flushed synchronously and the insert error, if any, is returned.
func (w *BatchWriter[T]) Add(ctx context.Context, row T) error {
	w.mu.Lock()
	w.pending = append(w.pending, row)
	full := len(w.pending) >= w.cfg.MaxBatchSize
	w.mu.Unlock()

	if !full {
		return nil
	}
	return w.Flush(ctx)
}

// Flush inserts everything buffered. Concurrent flushes run one at a time.
func (w *BatchWriter[T]) Flush(ctx context.Context) error {
	w.flushing.Lock()
	defer w.flushing.Unlock()

	batch := w.take()
	if len(batch) == 0 {
		return nil
	}

	start := time.Now()
	err := w.cfg.FlushFunc(ctx, batch)
	dropped := 0
	if err != nil {
		dropped = w.putBack(batch)
		w.log.Warnw("Journal insert failed, rows kept for retry",
			"rows", len(batch),
			"dropped", dropped,
			"error", err,
		)
	} else {
		w.log.Debugw("Journal insert", "rows", len(batch), "took", time.Since(start))
	}
	w.cfg.OnFlush(len(batch), dropped, err)
	return err
}

func (w *BatchWriter[T]) take() []T {
	w.mu.Lock()
	defer w.mu.Unlock()
	batch := w.pending
	w.pending = nil
	return batch
}

// putBack restores a failed batch ahead of rows added meanwhile and returns
// how many of the oldest rows were dropped to stay within MaxBuffered
func (w *BatchWriter[T]) putBack(batch []T) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	rows := append(batch, w.pending...)
	over := len(rows) - w.cfg.MaxBuffered
	if over > 0 {
		rows = rows[over:]
		w.dropped += int64(over)
	} else {
		over = 0
	}
	w.pending = rows
	return over
}

func (w *BatchWriter[T]) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	tick := time.NewTicker(w.cfg.MaxAge)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			drainCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := w.Flush(drainCtx); err != nil {
				w.log.Errorw("Journal rows lost at shutdown", "rows", w.BufferSize(), "error", err)
			}
			cancel()
			return
		case <-tick.C:
			_ = w.Flush(ctx)
		}
	}
}

// Stop ends the loop after a final flush. Without a running loop it flushes directly.
func (w *BatchWriter[T]) Stop(ctx context.Context) error {
	w.mu.Lock()
	stop, done := w.stop, w.done
	w.stop, w.done = nil, nil
	w.mu.Unlock()

	if done == nil {
		return w.Flush(ctx)
	}
	stop()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// BufferSize returns the number of rows waiting to be inserted
func (w *BatchWriter[T]) BufferSize() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

// Dropped returns the number of rows discarded on overflow
func (w *BatchWriter[T]) Dropped() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dropped
}
