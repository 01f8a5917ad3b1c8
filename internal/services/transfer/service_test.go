package transfer_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rwaledger/internal/domain/holding"
	"rwaledger/internal/domain/ledger"
	"rwaledger/internal/domain/pool"
	"rwaledger/internal/domain/settlement"
	"rwaledger/internal/services/investment"
	"rwaledger/internal/services/transfer"
	"rwaledger/internal/testsupport/ledgertest"
	"rwaledger/pkg/errors"
)

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

type fixture struct {
	env  *ledgertest.Env
	svc  *transfer.Service
	pool *pool.Pool
}

// newFixture seeds a 100 token pool where alice bought 20 tokens at 10
func newFixture(t *testing.T) *fixture {
	t.Helper()
	env := ledgertest.New(t)
	p := env.SeedActivePool(t, d(100), d(10))

	inv := investment.NewService(env.Ledger, env.Dispatcher, env.Cache, env.Events, env.Log)
	_, err := inv.Invest(context.Background(), p.ID, "alice", d(200))
	require.NoError(t, err)

	return &fixture{
		env:  env,
		svc:  transfer.NewService(env.Ledger, env.Dispatcher, env.Auth, env.Cache, env.Events, env.Log),
		pool: p,
	}
}

func TestTransfer_MovesTokensAtPoolPrice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.Transfer(ctx, f.pool.ID, "alice", "bob", d(5))
	require.NoError(t, err)
	assert.True(t, res.From.TotalTokens.Equal(d(15)))
	assert.True(t, res.To.TotalTokens.Equal(d(5)))
	assert.True(t, res.To.TotalInvested.Equal(d(50)))
	assert.Equal(t, holding.TransferTrade, res.Transfer.Type)
	assert.Equal(t, settlement.StatusConfirmed, res.Settlement.Status)

	stored := f.env.Pool(t, f.pool.ID)
	assert.EqualValues(t, 2, stored.TotalInvestors)
	assert.True(t, stored.TotalTokensIssued.Equal(d(20)))
	f.env.CheckAggregates(t, f.pool.ID)
	assert.Equal(t, 1, f.env.Events.Count(ledger.EventTokensTransferred))

	legs, err := f.env.Dispatcher.ListByReference(ctx, res.Transfer.ID)
	require.NoError(t, err)
	require.Len(t, legs, 1)
	assert.Equal(t, "alice", legs[0].From)
	assert.Equal(t, "bob", legs[0].To)
}

func TestTransfer_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Transfer(ctx, f.pool.ID, "alice", "alice", d(1))
	assert.Equal(t, "SAME_ADDRESS", errors.CodeOf(err))

	_, err = f.svc.Transfer(ctx, uuid.New(), "alice", "bob", d(1))
	assert.Equal(t, "POOL_NOT_FOUND", errors.CodeOf(err))

	_, err = f.svc.Transfer(ctx, f.pool.ID, "alice", "bob", d(21))
	assert.Equal(t, "INSUFFICIENT_BALANCE", errors.CodeOf(err))

	_, err = f.svc.Transfer(ctx, f.pool.ID, "carol", "bob", d(1))
	assert.Equal(t, "INSUFFICIENT_BALANCE", errors.CodeOf(err))

	_, err = f.svc.Transfer(ctx, f.pool.ID, "alice", "bob", decimal.RequireFromString("1.5"))
	assert.Equal(t, "VALIDATION_ERROR", errors.CodeOf(err))

	h := f.env.Holding(t, "alice", f.pool.ID)
	assert.True(t, h.TotalTokens.Equal(d(20)))
}

func TestTransfer_LockedTokensAreNotTransferable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	staked, err := f.svc.Stake(ctx, "alice", f.pool.ID, d(15), 30)
	require.NoError(t, err)
	assert.True(t, staked.Holding.LockedTokens.Equal(d(15)))
	assert.True(t, staked.Holding.AvailableTokens.Equal(d(5)))
	assert.Equal(t, holding.StakeActive, staked.Stake.Status)

	_, err = f.svc.Transfer(ctx, f.pool.ID, "alice", "bob", d(6))
	assert.Equal(t, "INSUFFICIENT_BALANCE", errors.CodeOf(err))

	unstaked, err := f.svc.Unstake(ctx, "alice", f.pool.ID, staked.Stake.ID)
	require.NoError(t, err)
	assert.True(t, unstaked.Holding.AvailableTokens.Equal(d(20)))
	assert.Equal(t, holding.StakeUnstaked, unstaked.Stake.Status)

	_, err = f.svc.Unstake(ctx, "alice", f.pool.ID, staked.Stake.ID)
	assert.Equal(t, "NOT_ACTIVE_OR_NOT_FOUND", errors.CodeOf(err))

	_, err = f.svc.Transfer(ctx, f.pool.ID, "alice", "bob", d(6))
	require.NoError(t, err)
}

func TestStake_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Stake(ctx, "alice", f.pool.ID, d(5), 0)
	assert.Equal(t, "VALIDATION_ERROR", errors.CodeOf(err))

	_, err = f.svc.Stake(ctx, "alice", f.pool.ID, d(50), 10)
	assert.Equal(t, "INSUFFICIENT_BALANCE", errors.CodeOf(err))

	_, err = f.svc.Unstake(ctx, "bob", f.pool.ID, uuid.New())
	assert.Equal(t, "NOT_ACTIVE_OR_NOT_FOUND", errors.CodeOf(err))
}

func TestDistribute_BoundedBySupply(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Distribute(ctx, "alice", f.pool.ID, "bob", d(10))
	assert.Equal(t, "FORBIDDEN", errors.CodeOf(err))

	res, err := f.svc.Distribute(ctx, ledgertest.Admin, f.pool.ID, "bob", d(80))
	require.NoError(t, err)
	assert.True(t, res.To.TotalTokens.Equal(d(80)))
	assert.True(t, res.To.TotalInvested.IsZero())
	assert.Equal(t, holding.TransferMint, res.Transfer.Type)

	_, err = f.svc.Distribute(ctx, ledgertest.Admin, f.pool.ID, "carol", d(1))
	assert.Equal(t, "SUPPLY_EXCEEDED", errors.CodeOf(err))

	stored := f.env.Pool(t, f.pool.ID)
	assert.True(t, stored.RemainingSupply().IsZero())
	f.env.CheckAggregates(t, f.pool.ID)
}

func TestTransfer_SettlementFailureKeepsLedger(t *testing.T) {
	f := newFixture(t)
	f.env.Adapter.FailWith(func(string) error { return errors.New("node timeout") })

	res, err := f.svc.Transfer(context.Background(), f.pool.ID, "alice", "bob", d(5))
	require.NoError(t, err)
	assert.Equal(t, settlement.StatusFailed, res.Settlement.Status)
	assert.Empty(t, res.Transfer.SettlementTxRef)
	assert.True(t, f.env.Holding(t, "bob", f.pool.ID).TotalTokens.Equal(d(5)))
}
