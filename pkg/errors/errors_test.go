package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindAndCode(t *testing.T) {
	cases := []struct {
		err  error
		kind Kind
		code string
	}{
		{Wrap(ErrAmountTooSmall, "invest"), KindValidation, "AMOUNT_TOO_SMALL"},
		{Wrapf(ErrBelowMinimum, "pool %s", "p1"), KindValidation, "VALIDATION_ERROR"},
		{NewValidationError("amount", "must be positive", -1), KindValidation, "VALIDATION_ERROR"},
		{Wrap(ErrPoolNotFound, "load"), KindNotFound, "POOL_NOT_FOUND"},
		{ErrRecipientNotFound, KindNotFound, "RECIPIENT_NOT_FOUND"},
		{Wrap(ErrAlreadyClaimed, "claim"), KindInvariant, "ALREADY_CLAIMED"},
		{ErrInsufficientBalance, KindInvariant, "INSUFFICIENT_BALANCE"},
		{ErrNotActiveOrNotFound, KindInvariant, "NOT_ACTIVE_OR_NOT_FOUND"},
		{ErrForbidden, KindForbidden, "FORBIDDEN"},
		{ErrVersionConflict, KindConflict, "VERSION_CONFLICT"},
		{Wrap(ErrSettlementFailed, "rpc down"), KindSettlement, "SETTLEMENT_FAILURE"},
		{fmt.Errorf("boom"), KindInternal, "INTERNAL"},
	}

	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			assert.Equal(t, tc.kind, KindOf(tc.err))
			assert.Equal(t, tc.code, CodeOf(tc.err))
		})
	}

	assert.Equal(t, Kind(""), KindOf(nil))
	assert.Equal(t, "", CodeOf(nil))
}

func TestDomainErrorCodeWins(t *testing.T) {
	err := NewDomainError("CUSTOM", "custom failure", ErrInsufficientBalance)
	assert.Equal(t, "CUSTOM", CodeOf(err))
	assert.Equal(t, KindInvariant, KindOf(err))
	assert.True(t, Is(err, ErrInsufficientBalance))
}

func TestMultiErrorMatchesMembers(t *testing.T) {
	var m MultiError
	assert.Nil(t, m.ToError())

	m.Add(nil)
	m.Add(Wrap(ErrSettlementFailed, "recipient a"))
	m.Add(Wrap(ErrTimeout, "recipient b"))

	err := m.ToError()
	assert.Error(t, err)
	assert.True(t, Is(err, ErrSettlementFailed))
	assert.True(t, Is(err, ErrTimeout))
	assert.Contains(t, err.Error(), "multiple errors (2)")
}
