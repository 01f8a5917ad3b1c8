package distribution_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rwaledger/internal/domain/distribution"
	"rwaledger/pkg/errors"
)

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func TestComputeSchedule_ThirtySeventy(t *testing.T) {
	s, err := distribution.ComputeSchedule(d(1000), []distribution.Entitlement{
		{HolderID: "b", HoldingID: uuid.New(), Tokens: d(70)},
		{HolderID: "a", HoldingID: uuid.New(), Tokens: d(30)},
	}, 6)
	require.NoError(t, err)

	assert.True(t, s.PerTokenRate.Equal(d(10)))
	assert.True(t, s.TotalTokensEligible.Equal(d(100)))
	require.Len(t, s.Recipients, 2)
	assert.Equal(t, "a", s.Recipients[0].HolderID)
	assert.True(t, s.Recipients[0].DividendAmount.Equal(d(300)))
	assert.True(t, s.Recipients[1].DividendAmount.Equal(d(700)))
	assert.True(t, s.RoundingRemainder.IsZero())
}

func TestComputeSchedule_RemainderBoundedByRecipients(t *testing.T) {
	s, err := distribution.ComputeSchedule(d(100), []distribution.Entitlement{
		{HolderID: "a", Tokens: d(1)},
		{HolderID: "b", Tokens: d(1)},
		{HolderID: "c", Tokens: d(1)},
	}, 2)
	require.NoError(t, err)

	for _, r := range s.Recipients {
		assert.True(t, r.DividendAmount.Equal(decimal.RequireFromString("33.33")))
	}
	assert.True(t, s.RoundingRemainder.Equal(decimal.RequireFromString("0.01")))

	unit := decimal.New(1, -2)
	bound := unit.Mul(decimal.NewFromInt(int64(len(s.Recipients))))
	assert.True(t, s.RoundingRemainder.LessThanOrEqual(bound))

	paid := decimal.Zero
	for _, r := range s.Recipients {
		paid = paid.Add(r.DividendAmount)
	}
	assert.True(t, paid.Add(s.RoundingRemainder).Equal(d(100)))
}

func TestComputeSchedule_Rejects(t *testing.T) {
	_, err := distribution.ComputeSchedule(d(100), nil, 6)
	assert.True(t, errors.Is(err, errors.ErrNoEligibleHolders))

	_, err = distribution.ComputeSchedule(d(100), []distribution.Entitlement{{HolderID: "a", Tokens: decimal.Zero}}, 6)
	assert.True(t, errors.Is(err, errors.ErrNoEligibleHolders))

	_, err = distribution.ComputeSchedule(decimal.Zero, []distribution.Entitlement{{HolderID: "a", Tokens: d(1)}}, 6)
	assert.Equal(t, errors.KindValidation, errors.KindOf(err))
}

func TestDistribution_Lifecycle(t *testing.T) {
	now := time.Now()
	s, err := distribution.ComputeSchedule(d(1000), []distribution.Entitlement{
		{HolderID: "a", Tokens: d(30)},
		{HolderID: "b", Tokens: d(70)},
	}, 6)
	require.NoError(t, err)

	dist := distribution.New(uuid.New(), d(1000), now, now.Add(time.Hour), s, "admin", now)
	assert.Equal(t, distribution.StatusPending, dist.Status)
	assert.False(t, dist.Due(now))
	assert.True(t, dist.Due(now.Add(time.Hour)))
	require.Len(t, dist.Audit, 1)
	assert.Equal(t, distribution.ActionCreated, dist.Audit[0].Action)
	for _, r := range dist.Recipients {
		assert.Equal(t, dist.ID, r.DistributionID)
	}

	err = dist.TransitionTo(distribution.StatusDistributed, now)
	assert.True(t, errors.Is(err, errors.ErrInvalidState))

	require.NoError(t, dist.TransitionTo(distribution.StatusDistributing, now))
	err = dist.TransitionTo(distribution.StatusCancelled, now)
	assert.True(t, errors.Is(err, errors.ErrInvalidState))

	require.NoError(t, dist.TransitionTo(distribution.StatusDistributed, now))
	require.NotNil(t, dist.ExecutedAt)
	dist.MarkAccrued()
	assert.True(t, dist.TotalUnclaimed.Equal(d(1000)))

	a, ok := dist.Recipient("a")
	require.True(t, ok)
	dist.RecordClaim(a.DividendAmount, now)
	b, _ := dist.Recipient("b")
	dist.RecordClaim(b.DividendAmount, now)
	assert.True(t, dist.TotalClaimed.Equal(d(1000)))
	assert.True(t, dist.TotalUnclaimed.IsZero())
	assert.EqualValues(t, 2, dist.ClaimCount)

	_, ok = dist.Recipient("nobody")
	assert.False(t, ok)
}

func TestStatus_InFlight(t *testing.T) {
	assert.True(t, distribution.StatusPending.InFlight())
	assert.True(t, distribution.StatusDistributing.InFlight())
	assert.False(t, distribution.StatusDistributed.InFlight())
	assert.False(t, distribution.StatusCancelled.InFlight())
}
