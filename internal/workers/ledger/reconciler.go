package ledger

import (
	"context"
	"time"

	"rwaledger/internal/domain/ledger"
	"rwaledger/internal/domain/pool"
	"rwaledger/internal/services/holdings"
	settlementsvc "rwaledger/internal/services/settlement"
	"rwaledger/internal/workers"
	"rwaledger/pkg/errors"
	"rwaledger/pkg/logger"
)

const reconcileLockKey = "settlement:reconcile"

// SettlementReconciler resubmits settlement legs
type SettlementReconciler interface {
	Reconcile(ctx context.Context, staleBefore time.Time, limit int) (settlementsvc.ReconcileResult, error)
}

// ReconcilerConfig configures the reconciliation worker
type ReconcilerConfig struct {
	Interval   time.Duration
	StaleAfter time.Duration // must exceed the settlement timeout
	BatchSize  int
	Enabled    bool
}

// Reconciler retries failed and stale settlement legs and audits pool
// aggregates against their holdings. One instance runs at a time across
// processes.
type Reconciler struct {
	*workers.BaseWorker
	settlements SettlementReconciler
	tx          ledger.Transactor
	locker      ledger.Locker
	cfg         ReconcilerConfig
	log         *logger.Logger
}

// NewReconciler creates the reconciliation worker
func NewReconciler(settlements SettlementReconciler, tx ledger.Transactor, locker ledger.Locker, cfg ReconcilerConfig) *Reconciler {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Reconciler{
		BaseWorker:  workers.NewBaseWorker("settlement_reconciler", cfg.Interval, cfg.Enabled),
		settlements: settlements,
		tx:          tx,
		locker:      locker,
		cfg:         cfg,
		log:         logger.Get().With("worker", "settlement_reconciler"),
	}
}

// Run executes one reconciliation pass
func (r *Reconciler) Run(ctx context.Context) error {
	unlock, err := r.locker.TryLock(ctx, reconcileLockKey, r.Interval())
	if errors.Is(err, errors.ErrLockHeld) {
		r.log.Debug("Reconciliation running elsewhere, skipping")
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "acquire reconcile lock")
	}
	defer func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			r.log.Warnw("Failed to release reconcile lock", "error", err)
		}
	}()

	res, err := r.settlements.Reconcile(ctx, time.Now().Add(-r.cfg.StaleAfter), r.cfg.BatchSize)
	if err != nil {
		return errors.Wrap(err, "reconcile settlements")
	}
	if res.Retried > 0 {
		r.log.Infow("Settlement legs reconciled",
			"retried", res.Retried,
			"confirmed", res.Confirmed,
			"failed", res.Failed,
		)
	}

	return r.auditAggregates(ctx)
}

// auditAggregates logs every pool whose aggregates drift from its holdings.
// Drift is reported, never repaired automatically.
func (r *Reconciler) auditAggregates(ctx context.Context) error {
	repos := r.tx.Repos()
	pools, err := repos.Pools.List(ctx, "")
	if err != nil {
		return errors.Wrap(err, "list pools")
	}

	for _, p := range pools {
		if p.Status == pool.PoolDraft {
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		hs, err := repos.Holdings.ListByPool(ctx, p.ID)
		if err != nil {
			return errors.Wrapf(err, "list holdings of pool %s", p.ID)
		}
		if err := holdings.CheckAggregates(p, hs); err != nil {
			r.log.Errorw("Pool aggregates drift from holdings",
				"pool_id", p.ID,
				"symbol", p.Symbol,
				"error", err,
			)
		}
	}
	return nil
}
