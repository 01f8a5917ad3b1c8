package workers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"rwaledger/internal/metrics"
	"rwaledger/pkg/errors"
	"rwaledger/pkg/logger"
)

const defaultShutdownTimeout = 30 * time.Second

// Scheduler runs each enabled worker in its own goroutine: one pass at start,
// then one per interval. Passes of one worker never overlap.
type Scheduler struct {
	mu      sync.RWMutex
	workers []Worker
	run     *schedulerRun
	log     *logger.Logger

	shutdownTimeout time.Duration
}

// schedulerRun is the state of one Start/Stop cycle
type schedulerRun struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewScheduler() *Scheduler {
	return &Scheduler{
		log:             logger.Get().Component("scheduler"),
		shutdownTimeout: defaultShutdownTimeout,
	}
}

// RegisterWorker adds w. Registration after Start is ignored.
func (s *Scheduler) RegisterWorker(w Worker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run != nil {
		s.log.Warnw("Worker registered after start, ignoring", "worker", w.Name())
		return
	}
	s.workers = append(s.workers, w)
	s.log.Infow("Worker registered", "worker", w.Name(), "interval", w.Interval(), "enabled", w.Enabled())
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run != nil {
		return errors.Wrap(errors.ErrInternal, "scheduler already started")
	}

	run := &schedulerRun{}
	run.ctx, run.cancel = context.WithCancel(ctx)
	s.run = run

	started := 0
	for _, w := range s.workers {
		if !w.Enabled() {
			continue
		}
		started++
		run.wg.Add(1)
		go s.loop(run, w)
	}
	s.log.Infow("Scheduler started", "workers", started, "disabled", len(s.workers)-started)
	return nil
}

// Stop cancels running passes and waits for them up to the shutdown timeout.
// A settlement call in flight is bounded by the settlement timeout.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	run := s.run
	s.run = nil
	s.mu.Unlock()

	if run == nil {
		return errors.Wrap(errors.ErrInternal, "scheduler not started")
	}
	run.cancel()

	done := make(chan struct{})
	go func() {
		run.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info("Scheduler stopped")
		return nil
	case <-time.After(s.shutdownTimeout):
		return errors.Wrapf(errors.ErrTimeout, "workers still running after %s", s.shutdownTimeout)
	}
}

func (s *Scheduler) loop(run *schedulerRun, w Worker) {
	defer run.wg.Done()

	tick := time.NewTicker(w.Interval())
	defer tick.Stop()

	for {
		s.pass(run.ctx, w)
		select {
		case <-run.ctx.Done():
			return
		case <-tick.C:
		}
	}
}

// pass runs w once and records the outcome. A panic counts as a failed pass.
func (s *Scheduler) pass(ctx context.Context, w Worker) {
	start := time.Now()
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				s.log.Errorw("Worker panicked", "worker", w.Name(), "panic", r)
				err = errors.Wrap(errors.ErrInternal, "panic: "+fmt.Sprint(r))
			}
		}()
		return w.Run(ctx)
	}()
	took := time.Since(start)

	metrics.RecordWorkerExecution(w.Name(), took, err)
	if h, ok := w.(WorkerWithHealth); ok {
		if err != nil {
			h.RecordError(err, took)
		} else {
			h.RecordRun(took)
		}
	}
	if err != nil && ctx.Err() == nil {
		s.log.Errorw("Worker pass failed", "worker", w.Name(), "took", took, "error", err)
	}
}

// GetWorkers returns the registered workers
func (s *Scheduler) GetWorkers() []Worker {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Worker(nil), s.workers...)
}

// Health returns the bookkeeping of every worker that keeps it
func (s *Scheduler) Health() map[string]WorkerHealth {
	out := make(map[string]WorkerHealth)
	for _, w := range s.GetWorkers() {
		if h, ok := w.(WorkerWithHealth); ok {
			out[w.Name()] = h.Health()
		}
	}
	return out
}

// Checker returns a readiness check that fails while any enabled worker has
// failed more than maxFailures passes in a row. A reconciler that keeps failing
// leaves settlement legs pending.
func (s *Scheduler) Checker(maxFailures int) *FailureCheck {
	return &FailureCheck{scheduler: s, maxFailures: maxFailures}
}

// FailureCheck implements the health checker contract over worker bookkeeping
type FailureCheck struct {
	scheduler   *Scheduler
	maxFailures int
}

func (c *FailureCheck) Health(_ context.Context) error {
	for name, h := range c.scheduler.Health() {
		if h.Enabled && h.ConsecutiveFailures > c.maxFailures {
			return errors.Wrapf(errors.ErrInternal, "worker %s failed %d runs in a row: %s",
				name, h.ConsecutiveFailures, h.LastError)
		}
	}
	return nil
}

func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.run != nil
}
