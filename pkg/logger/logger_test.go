package logger_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rwaledger/internal/adapters/errors/noop"
	"rwaledger/pkg/errors"
	"rwaledger/pkg/logger"
)

func TestLogger_ForwardsErrorsToTracker(t *testing.T) {
	tracker := noop.New()
	log := logger.Nop().WithTracker(tracker).Component("settlement_dispatcher").With("pool_id", "p-1")

	log.Errorw("Failed to record settlement outcome", "error", errors.ErrVersionConflict)

	ctx := errors.WithActor(context.Background(), "ops")
	log.ErrorWithContext(ctx, errors.NewValidationError("amount", "must be positive", "-1"),
		map[string]string{"settlement_id": "s-1"})

	captures := tracker.Captures()
	require.Len(t, captures, 2)

	assert.Equal(t, errors.CodeOf(errors.ErrVersionConflict), captures[0].Code)
	assert.Equal(t, "settlement_dispatcher", captures[0].Tags["component"])
	assert.Equal(t, "p-1", captures[0].Tags["pool_id"])
	assert.Empty(t, captures[0].Actor)

	assert.Equal(t, "ops", captures[1].Actor)
	assert.Equal(t, "s-1", captures[1].Tags["settlement_id"])
	assert.Equal(t, "p-1", captures[1].Tags["pool_id"])
}

func TestLogger_StepLeavesBreadcrumb(t *testing.T) {
	tracker := noop.New()
	log := logger.Nop().WithTracker(tracker)

	log.Step(context.Background(), "Settlement attempt", "attempts", 1)
	log.Step(context.Background(), "Settlement attempt", "attempts", 2)

	assert.Equal(t, 2, tracker.Breadcrumbs())
	assert.Empty(t, tracker.Captures())
}

func TestLogger_WithoutTracker(t *testing.T) {
	log := logger.Nop()
	assert.NotPanics(t, func() {
		log.Errorw("boom", "error", errors.ErrInternal)
		log.Step(context.Background(), "step")
	})
}

func TestWithActor_IgnoresEmpty(t *testing.T) {
	_, ok := errors.ActorFrom(errors.WithActor(context.Background(), ""))
	assert.False(t, ok)
}
