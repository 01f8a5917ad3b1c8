package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rwaledger/internal/domain/settlement"
	"rwaledger/internal/services/investment"
	"rwaledger/internal/testsupport/ledgertest"
	ledgerworkers "rwaledger/internal/workers/ledger"
	"rwaledger/pkg/errors"
)

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func TestReconciler_RetriesFailedLegs(t *testing.T) {
	env := ledgertest.New(t)
	ctx := context.Background()
	p := env.SeedActivePool(t, d(1000), d(10))
	inv := investment.NewService(env.Ledger, env.Dispatcher, env.Cache, env.Events, env.Log)

	env.Adapter.FailWith(func(string) error { return errors.New("rpc down") })
	res, err := inv.Invest(ctx, p.ID, "alice", d(100))
	require.NoError(t, err)
	require.Equal(t, settlement.StatusFailed, res.Settlement.Status)
	env.Adapter.FailWith(nil)

	w := ledgerworkers.NewReconciler(env.Dispatcher, env.Tx, env.Locker, ledgerworkers.ReconcilerConfig{
		Interval:   time.Minute,
		StaleAfter: time.Minute,
		Enabled:    true,
	})
	require.NoError(t, w.Run(ctx))

	leg, err := env.Dispatcher.Get(ctx, res.Settlement.SettlementID)
	require.NoError(t, err)
	assert.Equal(t, settlement.StatusConfirmed, leg.Status)
	assert.Equal(t, 2, leg.Attempts)

	h := env.Holding(t, "alice", p.ID)
	transfers, err := env.Tx.Repos().Holdings.ListTransfers(ctx, h.ID, 1)
	require.NoError(t, err)
	require.Len(t, transfers, 1)
	assert.Equal(t, settlement.StatusConfirmed, transfers[0].SettlementStatus)
	assert.Equal(t, leg.TxRef, transfers[0].SettlementTxRef)
}

func TestReconciler_SkipsWhenLockHeld(t *testing.T) {
	env := ledgertest.New(t)
	ctx := context.Background()
	p := env.SeedActivePool(t, d(1000), d(10))
	inv := investment.NewService(env.Ledger, env.Dispatcher, env.Cache, env.Events, env.Log)

	env.Adapter.FailWith(func(string) error { return errors.New("rpc down") })
	res, err := inv.Invest(ctx, p.ID, "alice", d(100))
	require.NoError(t, err)
	env.Adapter.FailWith(nil)

	unlock, err := env.Locker.TryLock(ctx, "settlement:reconcile", time.Minute)
	require.NoError(t, err)
	defer func() { _ = unlock(ctx) }()

	w := ledgerworkers.NewReconciler(env.Dispatcher, env.Tx, env.Locker, ledgerworkers.ReconcilerConfig{
		Interval: time.Minute,
		Enabled:  true,
	})
	require.NoError(t, w.Run(ctx))

	leg, err := env.Dispatcher.Get(ctx, res.Settlement.SettlementID)
	require.NoError(t, err)
	assert.Equal(t, settlement.StatusFailed, leg.Status)
}

func TestRevaluer_AppliesPoolPrice(t *testing.T) {
	env := ledgertest.New(t)
	ctx := context.Background()
	p := env.SeedActivePool(t, d(1000), d(10))
	inv := investment.NewService(env.Ledger, env.Dispatcher, env.Cache, env.Events, env.Log)
	_, err := inv.Invest(ctx, p.ID, "alice", d(100))
	require.NoError(t, err)

	stored := env.Pool(t, p.ID)
	stored.TokenPrice = d(8)
	require.NoError(t, env.Tx.Repos().Pools.Update(ctx, stored))

	w := ledgerworkers.NewRevaluer(env.Ledger, env.Cache, time.Minute, true)
	require.NoError(t, w.Run(ctx))

	h := env.Holding(t, "alice", p.ID)
	assert.True(t, h.CurrentValue.Equal(d(80)))
	assert.True(t, h.UnrealizedPnL.Equal(d(-20)))
	assert.True(t, h.ROI.Equal(d(-20)))
	env.CheckAggregates(t, p.ID)
}
