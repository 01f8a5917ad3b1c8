package holding_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rwaledger/internal/domain/holding"
	"rwaledger/pkg/errors"
)

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func TestHolding_InvestTwiceAtSamePrice(t *testing.T) {
	now := time.Now()
	h := holding.New("investor-a", uuid.New(), now)

	require.NoError(t, h.ApplyInvestment(d(10), d(10), d(100), now))
	assert.True(t, h.TotalTokens.Equal(d(10)))
	assert.True(t, h.AverageBuyPrice.Equal(d(10)))

	require.NoError(t, h.ApplyInvestment(d(5), d(10), d(50), now.Add(time.Hour)))
	assert.True(t, h.TotalTokens.Equal(d(15)))
	assert.True(t, h.TotalInvested.Equal(d(150)))
	assert.True(t, h.AverageBuyPrice.Equal(d(10)))
	assert.True(t, h.ROI.IsZero())
	assert.True(t, h.IsActive)
	assert.Equal(t, now, *h.FirstInvestmentDate)
	require.NoError(t, h.CheckBalances())
}

func TestHolding_WeightedAverage(t *testing.T) {
	now := time.Now()
	h := holding.New("investor-a", uuid.New(), now)

	require.NoError(t, h.ApplyInvestment(d(10), d(10), d(100), now))
	require.NoError(t, h.ApplyInvestment(d(10), d(20), d(200), now))

	assert.True(t, h.AverageBuyPrice.Equal(d(15)))
	assert.True(t, h.CurrentValue.Equal(d(400)))
	assert.True(t, h.UnrealizedPnL.Equal(d(100)))
	assert.True(t, h.ROI.Equal(decimal.RequireFromString("33.3333")))
}

func TestHolding_RevalueWithoutInvestmentHasZeroROI(t *testing.T) {
	h := holding.New("x", uuid.New(), time.Now())
	require.NoError(t, h.ApplyMint(d(5), d(10), time.Now()))

	assert.True(t, h.TotalInvested.IsZero())
	assert.True(t, h.ROI.IsZero())
	assert.True(t, h.CurrentValue.Equal(d(50)))
}

func TestHolding_TransferOutRealizesAgainstAverage(t *testing.T) {
	now := time.Now()
	h := holding.New("a", uuid.New(), now)
	require.NoError(t, h.ApplyInvestment(d(10), d(10), d(100), now))

	require.NoError(t, h.ApplyTransferOut(d(4), d(12), now))
	assert.True(t, h.TotalTokens.Equal(d(6)))
	assert.True(t, h.AvailableTokens.Equal(d(6)))
	assert.True(t, h.TotalInvested.Equal(d(60)))
	assert.True(t, h.AverageBuyPrice.Equal(d(10)))
	assert.True(t, h.RealizedPnL.Equal(d(8)))
	assert.True(t, h.UnrealizedPnL.Equal(d(12)))
	assert.True(t, h.TotalPnL.Equal(d(20)))

	err := h.ApplyTransferOut(d(7), d(12), now)
	assert.True(t, errors.Is(err, errors.ErrInsufficientBalance))
	assert.True(t, h.TotalTokens.Equal(d(6)))
}

func TestHolding_TransferOutEverythingDeactivates(t *testing.T) {
	now := time.Now()
	h := holding.New("a", uuid.New(), now)
	require.NoError(t, h.ApplyInvestment(d(3), d(10), d(30), now))

	require.NoError(t, h.ApplyTransferOut(d(3), d(10), now))
	assert.False(t, h.IsActive)
	assert.True(t, h.TotalInvested.IsZero())

	require.NoError(t, h.ApplyDividendAccrual(d(5), now))
	assert.True(t, h.IsActive)
	require.NoError(t, h.ApplyDividendClaim(d(5), now))
	assert.False(t, h.IsActive)
}

func TestHolding_StakeUsesAvailableOnly(t *testing.T) {
	now := time.Now()
	h := holding.New("a", uuid.New(), now)
	require.NoError(t, h.ApplyInvestment(d(10), d(10), d(100), now))

	require.NoError(t, h.ApplyStake(d(8), now))
	assert.True(t, h.AvailableTokens.Equal(d(2)))
	assert.True(t, h.LockedTokens.Equal(d(8)))
	require.NoError(t, h.CheckBalances())

	err := h.ApplyStake(d(3), now)
	assert.True(t, errors.Is(err, errors.ErrInsufficientBalance))

	err = h.ApplyTransferOut(d(3), d(10), now)
	assert.True(t, errors.Is(err, errors.ErrInsufficientBalance))

	require.NoError(t, h.ApplyUnstake(d(8), now))
	assert.True(t, h.AvailableTokens.Equal(d(10)))
	assert.True(t, h.LockedTokens.IsZero())
	require.NoError(t, h.CheckBalances())
}

func TestHolding_DividendClaimBounded(t *testing.T) {
	h := holding.New("a", uuid.New(), time.Now())
	require.NoError(t, h.ApplyDividendAccrual(d(300), time.Now()))

	err := h.ApplyDividendClaim(d(301), time.Now())
	assert.True(t, errors.Is(err, errors.ErrInsufficientBalance))

	require.NoError(t, h.ApplyDividendClaim(d(300), time.Now()))
	assert.True(t, h.ClaimedDividends.Equal(d(300)))
	assert.True(t, h.UnclaimedDividends.IsZero())
	assert.True(t, h.AccruedDividends.Equal(d(300)))
}

func TestHolding_EligibleAt(t *testing.T) {
	first := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	h := holding.New("a", uuid.New(), first)
	assert.False(t, h.EligibleAt(first))

	require.NoError(t, h.ApplyInvestment(d(1), d(10), d(10), first))
	assert.True(t, h.EligibleAt(first))
	assert.True(t, h.EligibleAt(first.Add(time.Hour)))
	assert.False(t, h.EligibleAt(first.Add(-time.Hour)))
}

func TestTransferRecord_ForCopiesPerHolding(t *testing.T) {
	rec := holding.NewTransferRecord(uuid.New(), holding.TransferTrade, "a", "b", d(1), d(10), d(10), time.Now())
	rec.AttachSettlement(uuid.New())

	a, b := uuid.New(), uuid.New()
	ra, rb := rec.For(a), rec.For(b)
	assert.Equal(t, rec.ID, ra.ID)
	assert.Equal(t, rec.ID, rb.ID)
	assert.Equal(t, a, ra.HoldingID)
	assert.Equal(t, b, rb.HoldingID)
	assert.Equal(t, rec.SettlementID, ra.SettlementID)
}
