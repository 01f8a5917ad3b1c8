package retry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rwaledger/pkg/errors"
)

func fastPolicy(max int) *Policy {
	return New(Config{MaxRetries: max, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond})
}

func TestPolicy_RetriesConflictsUntilSuccess(t *testing.T) {
	calls := 0
	err := fastPolicy(5).Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.Wrap(errors.ErrVersionConflict, "holding")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestPolicy_StopsOnPermanentError(t *testing.T) {
	calls := 0
	err := fastPolicy(5).Do(context.Background(), func() error {
		calls++
		return errors.ErrInsufficientBalance
	})
	assert.True(t, errors.Is(err, errors.ErrInsufficientBalance))
	assert.Equal(t, 1, calls)
}

func TestPolicy_GivesUpAfterMaxRetries(t *testing.T) {
	calls := 0
	err := fastPolicy(2).Do(context.Background(), func() error {
		calls++
		return errors.ErrVersionConflict
	})
	assert.True(t, errors.Is(err, errors.ErrVersionConflict))
	assert.Contains(t, err.Error(), "max retries")
	assert.Equal(t, 3, calls)
}

func TestPolicy_HonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := New(Config{MaxRetries: 3, InitialDelay: time.Second})
	err := p.Do(ctx, func() error { return errors.ErrVersionConflict })
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestPolicy_DelayCapped(t *testing.T) {
	p := New(Config{InitialDelay: 10 * time.Millisecond, MaxDelay: 50 * time.Millisecond, Multiplier: 2})
	assert.Equal(t, 10*time.Millisecond, p.delay(0))
	assert.Equal(t, 40*time.Millisecond, p.delay(2))
	assert.Equal(t, 50*time.Millisecond, p.delay(5))
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(errors.ErrVersionConflict))
	assert.True(t, IsTransient(errors.New("rpc: Too Many Requests")))
	assert.False(t, IsTransient(errors.ErrAlreadyClaimed))
	assert.False(t, IsTransient(context.DeadlineExceeded))
	assert.False(t, IsTransient(nil))
}
