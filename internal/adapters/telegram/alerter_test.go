package telegram

import (
	"context"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"rwaledger/internal/domain/settlement"
	"rwaledger/pkg/logger"
)

type mockSender struct {
	mock.Mock
}

func (m *mockSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	args := m.Called(c)
	return tgbotapi.Message{}, args.Error(0)
}

func failedLeg() *settlement.Settlement {
	s := settlement.NewCurrencyTransfer(settlement.PurposeDividend, uuid.New(), "holder-b", decimal.RequireFromString("1234567.5"), uuid.New())
	s.MarkFailed("rpc: blockhash not found", time.Now().Add(-2*time.Minute))
	return s
}

func TestFormatSettlementFailure(t *testing.T) {
	text := FormatSettlementFailure(failedLeg())

	assert.Contains(t, text, "Settlement FAILED (dividend, currency_transfer)")
	assert.Contains(t, text, "1,234,567.5")
	assert.Contains(t, text, "holder-b")
	assert.Contains(t, text, "Attempts: 1 (last 2 minutes ago)")
	assert.Contains(t, text, "Reason: rpc: blockhash not found")
}

func TestAlerter_SendsToConfiguredChat(t *testing.T) {
	api := new(mockSender)
	a := newAlerter(api, Config{ChatID: 42}, logger.Nop())

	api.On("Send", mock.MatchedBy(func(c tgbotapi.Chattable) bool {
		msg, ok := c.(tgbotapi.MessageConfig)
		return ok && msg.ChatID == 42 && msg.ParseMode == ""
	})).Return(nil).Once()

	require.NoError(t, a.SettlementFailed(context.Background(), failedLeg()))
	api.AssertExpectations(t)
}

func TestAlerter_SummarySkippedWithoutFailures(t *testing.T) {
	api := new(mockSender)
	a := newAlerter(api, Config{ChatID: 42}, logger.Nop())

	require.NoError(t, a.ReconciliationSummary(context.Background(), 3, 3, 0))
	api.AssertNotCalled(t, "Send", mock.Anything)
}
