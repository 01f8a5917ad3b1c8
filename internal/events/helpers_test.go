package events

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"

	"rwaledger/internal/adapters/kafka"
	"rwaledger/internal/domain/ledger"
	eventspb "rwaledger/internal/events/proto"
	"rwaledger/pkg/errors"
	"rwaledger/pkg/logger"
)

func TestSanitizeUTF8(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "valid string unchanged",
			input:    "blockhash not found",
			expected: "blockhash not found",
		},
		{
			name:     "empty string",
			input:    "",
			expected: "",
		},
		{
			name:     "invalid bytes removed",
			input:    "Transaction\xff simulation failed",
			expected: "Transaction simulation failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SanitizeUTF8(tt.input))
		})
	}
}

func TestTopicFor(t *testing.T) {
	assert.Equal(t, kafka.TopicSettlementEvents, TopicFor(ledger.EventSettlementFailed))
	assert.Equal(t, kafka.TopicSettlementEvents, TopicFor(ledger.EventSettlementConfirmed))
	assert.Equal(t, kafka.TopicLedgerEvents, TopicFor(ledger.EventInvestmentRecorded))
	assert.Equal(t, kafka.TopicLedgerEvents, TopicFor(ledger.EventDividendClaimed))
}

type mockSender struct {
	mock.Mock
}

func (m *mockSender) Publish(ctx context.Context, topic string, key string, eventType string, event proto.Message) error {
	args := m.Called(ctx, topic, key, eventType, event)
	return args.Error(0)
}

func TestPublisher_KeysByPoolAndSanitizes(t *testing.T) {
	sender := new(mockSender)
	p := NewPublisher(sender, logger.Nop())
	ctx := context.Background()

	poolID := uuid.New()
	e := ledger.NewEvent(ledger.EventSettlementFailed, poolID, "holder-1", uuid.New(), decimal.NewFromInt(10))
	e.Detail = "rpc\xff down"

	sender.On("Publish", ctx, kafka.TopicSettlementEvents, poolID.String(), string(ledger.EventSettlementFailed),
		mock.MatchedBy(func(ev *eventspb.LedgerEvent) bool {
			return ev.GetDetail() == "rpc down" && ev.GetId() == e.ID.String()
		})).Return(nil).Once()

	require.NoError(t, p.Publish(ctx, e))
	sender.AssertExpectations(t)
}

func TestPublisher_WrapsSendError(t *testing.T) {
	sender := new(mockSender)
	p := NewPublisher(sender, logger.Nop())
	ctx := context.Background()

	sender.On("Publish", ctx, kafka.TopicLedgerEvents, mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("leader not available"))

	err := p.Publish(ctx, ledger.NewEvent(ledger.EventInvestmentRecorded, uuid.New(), "h", uuid.New(), decimal.NewFromInt(1)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "send to kafka")
}

func TestCodec_RoundTripAndRejects(t *testing.T) {
	e := ledger.NewEvent(ledger.EventTokensTransferred, uuid.New(), "holder-b", uuid.New(), decimal.RequireFromString("12.5"))
	e.Actor = "holder-b"

	data, err := proto.Marshal(ToProto(e))
	require.NoError(t, err)
	got, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, e.ID, got.ID)
	assert.Equal(t, e.Type, got.Type)
	assert.Equal(t, e.ReferenceID, got.ReferenceID)
	assert.True(t, e.Amount.Equal(got.Amount))
	assert.True(t, e.OccurredAt.Equal(got.OccurredAt))

	_, err = FromProto(&eventspb.LedgerEvent{Id: "nope", Type: "x"})
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))

	_, err = FromProto(&eventspb.LedgerEvent{Id: e.ID.String(), PoolId: e.PoolID.String(), Amount: "ten", Type: "x"})
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))
}
