package workers

import (
	"context"
	"sync"
	"time"

	"rwaledger/pkg/logger"
)

// Worker is a periodic background job. Run performs one pass and returns;
// the scheduler calls it again every Interval().
type Worker interface {
	Name() string
	Run(ctx context.Context) error
	Interval() time.Duration
	Enabled() bool
}

// WorkerWithHealth is a Worker that keeps run bookkeeping
type WorkerWithHealth interface {
	Worker
	Health() WorkerHealth
	RecordRun(duration time.Duration)
	RecordError(err error, duration time.Duration)
}

// WorkerHealth is a snapshot of a worker's recent runs
type WorkerHealth struct {
	Enabled             bool          `json:"enabled"`
	Runs                int64         `json:"runs"`
	Failures            int64         `json:"failures"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	LastRun             time.Time     `json:"last_run"`
	LastSuccess         time.Time     `json:"last_success"`
	LastDuration        time.Duration `json:"last_duration"`
	LastError           string        `json:"last_error,omitempty"`
}

// BaseWorker carries the name, schedule and run bookkeeping shared by all workers
type BaseWorker struct {
	name     string
	interval time.Duration
	enabled  bool
	log      *logger.Logger

	mu     sync.RWMutex
	health WorkerHealth
}

// NewBaseWorker creates a new base worker
func NewBaseWorker(name string, interval time.Duration, enabled bool) *BaseWorker {
	return &BaseWorker{
		name:     name,
		interval: interval,
		enabled:  enabled,
		log:      logger.Get().With("worker", name),
		health:   WorkerHealth{Enabled: enabled},
	}
}

func (w *BaseWorker) Name() string            { return w.name }
func (w *BaseWorker) Interval() time.Duration { return w.interval }
func (w *BaseWorker) Enabled() bool           { return w.enabled }
func (w *BaseWorker) Log() *logger.Logger     { return w.log }

// Health returns a copy of the bookkeeping
func (w *BaseWorker) Health() WorkerHealth {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.health
}

// RecordRun records a successful pass
func (w *BaseWorker) RecordRun(duration time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	w.health.Runs++
	w.health.LastRun, w.health.LastSuccess = now, now
	w.health.LastDuration = duration
	w.health.ConsecutiveFailures = 0
	w.health.LastError = ""
}

// RecordError records a failed pass
func (w *BaseWorker) RecordError(err error, duration time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.health.Runs++
	w.health.Failures++
	w.health.ConsecutiveFailures++
	w.health.LastRun = time.Now()
	w.health.LastDuration = duration
	if err != nil {
		w.health.LastError = err.Error()
	}
}
