package settlement_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"rwaledger/internal/domain/settlement"
	"rwaledger/pkg/errors"
)

func TestSettlement_OutcomeReflectsStatus(t *testing.T) {
	s := settlement.NewTokenTransfer(settlement.PurposeInvestment, uuid.New(), "holder", "mint", "", "holder", decimal.NewFromInt(10), uuid.New())

	o := s.Outcome()
	assert.Equal(t, settlement.StatusPending, o.Status)
	assert.Contains(t, o.Warning, "pending")
	assert.False(t, o.Settled())

	s.MarkFailed("rpc timeout", time.Now())
	o = s.Outcome()
	assert.Equal(t, settlement.StatusFailed, o.Status)
	assert.Empty(t, o.TxRef)
	assert.Contains(t, o.Warning, "rpc timeout")
	assert.Equal(t, 1, s.Attempts)

	s.MarkConfirmed("sig123", time.Now())
	o = s.Outcome()
	assert.True(t, o.Settled())
	assert.Equal(t, "sig123", o.TxRef)
	assert.Empty(t, o.Warning)
	assert.Empty(t, s.FailureReason)
	assert.Equal(t, 2, s.Attempts)
	assert.NotNil(t, s.LastAttemptAt)
}

func TestFailure_MatchesSentinel(t *testing.T) {
	cause := errors.New("blockhash not found")
	err := error(settlement.NewFailure("token_transfer", "send transaction", cause))

	assert.True(t, errors.Is(err, errors.ErrSettlementFailed))
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, errors.KindSettlement, errors.KindOf(err))
	assert.Contains(t, err.Error(), "send transaction")
}
