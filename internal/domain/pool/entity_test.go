package pool_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rwaledger/internal/domain/pool"
	"rwaledger/pkg/errors"
)

func TestPoolStatus_Transitions(t *testing.T) {
	assert.True(t, pool.PoolDraft.CanTransitionTo(pool.PoolActive))
	assert.False(t, pool.PoolDraft.CanTransitionTo(pool.PoolClosed))
	assert.True(t, pool.PoolActive.CanTransitionTo(pool.PoolSuspended))
	assert.True(t, pool.PoolActive.CanTransitionTo(pool.PoolClosed))
	assert.True(t, pool.PoolSuspended.CanTransitionTo(pool.PoolActive))
	assert.False(t, pool.PoolMatured.CanTransitionTo(pool.PoolActive))
	assert.True(t, pool.PoolMatured.IsTerminal())

	assert.True(t, pool.PoolActive.AcceptsInvestment())
	assert.False(t, pool.PoolSuspended.AcceptsInvestment())
}

func TestPool_TransitionToRejectsInvalidEdge(t *testing.T) {
	p := &pool.Pool{ID: uuid.New(), Status: pool.PoolDraft}

	err := p.TransitionTo(pool.PoolMatured)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidState))
	assert.Equal(t, pool.PoolDraft, p.Status)

	require.NoError(t, p.TransitionTo(pool.PoolActive))
	assert.Equal(t, pool.PoolActive, p.Status)
}

func TestPool_TokensForFloors(t *testing.T) {
	p := &pool.Pool{TokenPrice: decimal.NewFromInt(10)}

	assert.True(t, p.TokensFor(decimal.NewFromInt(100)).Equal(decimal.NewFromInt(10)))
	assert.True(t, p.TokensFor(decimal.NewFromFloat(59.99)).Equal(decimal.NewFromInt(5)))
	assert.True(t, p.TokensFor(decimal.NewFromFloat(9.99)).IsZero())

	p.TokenPrice = decimal.Zero
	assert.True(t, p.TokensFor(decimal.NewFromInt(100)).IsZero())
}

func TestPool_RecordIssuanceBoundedBySupply(t *testing.T) {
	p := &pool.Pool{ID: uuid.New(), TokenSupply: decimal.NewFromInt(100)}

	require.NoError(t, p.RecordIssuance(decimal.NewFromInt(60), decimal.NewFromInt(600), true))
	require.NoError(t, p.RecordIssuance(decimal.NewFromInt(40), decimal.NewFromInt(400), false))
	assert.EqualValues(t, 1, p.TotalInvestors)
	assert.True(t, p.RemainingSupply().IsZero())

	err := p.RecordIssuance(decimal.NewFromInt(1), decimal.NewFromInt(10), true)
	assert.True(t, errors.Is(err, errors.ErrSupplyExceeded))
	assert.True(t, p.TotalTokensIssued.Equal(decimal.NewFromInt(100)))
	assert.EqualValues(t, 1, p.TotalInvestors)
}

func TestUnderlyingAssets_ValueScanRoundTrip(t *testing.T) {
	assets := pool.UnderlyingAssets{
		{ID: uuid.New(), Name: "Warehouse A", Valuation: decimal.NewFromInt(250000), Validated: true},
	}
	raw, err := assets.Value()
	require.NoError(t, err)

	var scanned pool.UnderlyingAssets
	require.NoError(t, scanned.Scan(raw))
	require.Len(t, scanned, 1)
	assert.Equal(t, "Warehouse A", scanned[0].Name)
	assert.True(t, scanned[0].Validated)

	var empty pool.UnderlyingAssets
	require.NoError(t, empty.Scan(nil))
	assert.Empty(t, empty)
}
