package ledger

import (
	"context"
	"time"

	"rwaledger/internal/domain/ledger"
	"rwaledger/internal/domain/pool"
	"rwaledger/internal/services/holdings"
	poolsvc "rwaledger/internal/services/pool"
	"rwaledger/internal/workers"
	"rwaledger/pkg/errors"
	"rwaledger/pkg/logger"
)

// Revaluer brings every holding of an ACTIVE pool to the pool's current price
type Revaluer struct {
	*workers.BaseWorker
	ledger *holdings.Ledger
	cache  ledger.Cache
	log    *logger.Logger
}

// NewRevaluer creates the revaluation worker
func NewRevaluer(l *holdings.Ledger, cache ledger.Cache, interval time.Duration, enabled bool) *Revaluer {
	return &Revaluer{
		BaseWorker: workers.NewBaseWorker("holding_revaluer", interval, enabled),
		ledger:     l,
		cache:      cache,
		log:        logger.Get().With("worker", "holding_revaluer"),
	}
}

// Run revalues one pool per transaction
func (w *Revaluer) Run(ctx context.Context) error {
	pools, err := w.ledger.Repos().Pools.List(ctx, pool.PoolActive)
	if err != nil {
		return errors.Wrap(err, "list active pools")
	}

	total, failed := 0, 0
	for _, p := range pools {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		var updated int
		err := w.ledger.Atomic(ctx, "revalue", func(ctx context.Context, repos ledger.Repositories) error {
			cur, err := repos.Pools.GetByID(ctx, p.ID)
			if err != nil {
				return err
			}
			updated, err = w.ledger.Revalue(ctx, repos, cur, time.Now().UTC())
			return err
		})
		if err != nil {
			failed++
			w.log.Errorw("Failed to revalue pool", "pool_id", p.ID, "error", err)
			continue
		}
		if updated > 0 {
			total += updated
			if err := poolsvc.InvalidateStats(ctx, w.cache, p.ID); err != nil {
				w.log.Warnw("Failed to invalidate pool stats", "pool_id", p.ID, "error", err)
			}
		}
	}

	if total > 0 || failed > 0 {
		w.log.Infow("Holdings revalued", "pools", len(pools), "holdings", total, "failed_pools", failed)
	}
	if failed > 0 {
		return errors.Wrapf(errors.ErrInternal, "%d pool(s) failed to revalue", failed)
	}
	return nil
}
