package consumers

import (
	"context"
	"testing"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"

	"rwaledger/internal/adapters/kafka"
	"rwaledger/internal/domain/ledger"
	"rwaledger/internal/events"
	eventspb "rwaledger/internal/events/proto"
	"rwaledger/pkg/logger"
)

type sliceSource struct {
	msgs []kafkago.Message
}

func (s *sliceSource) Consume(ctx context.Context, handler kafka.MessageHandler) error {
	for _, m := range s.msgs {
		if err := handler(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

type memWriter struct {
	rows []ledger.Event
}

func (w *memWriter) Add(ctx context.Context, e ledger.Event) error {
	w.rows = append(w.rows, e)
	return nil
}

func TestJournalConsumer_WritesDecodedEventsAndSkipsGarbage(t *testing.T) {
	e := ledger.NewEvent(ledger.EventDividendClaimed, uuid.New(), "holder-a", uuid.New(), decimal.RequireFromString("300"))
	e.Actor = "admin"
	data, err := proto.Marshal(events.ToProto(e))
	require.NoError(t, err)
	untyped, err := proto.Marshal(&eventspb.LedgerEvent{Id: uuid.NewString(), PoolId: uuid.NewString()})
	require.NoError(t, err)

	src := &sliceSource{msgs: []kafkago.Message{
		{Topic: kafka.TopicLedgerEvents, Value: []byte{0x0a, 0xff}},
		{Topic: kafka.TopicLedgerEvents, Value: untyped},
		{Topic: kafka.TopicLedgerEvents, Value: data},
	}}
	w := &memWriter{}

	jc := NewJournalConsumer(src, w, logger.Nop())
	require.NoError(t, jc.Start(context.Background()))

	require.Len(t, w.rows, 1)
	assert.Equal(t, e.ID, w.rows[0].ID)
	assert.Equal(t, ledger.EventDividendClaimed, w.rows[0].Type)
	assert.True(t, e.Amount.Equal(w.rows[0].Amount))
	assert.Equal(t, e.PoolID, w.rows[0].PoolID)
	assert.Equal(t, "admin", w.rows[0].Actor)
	assert.True(t, e.OccurredAt.Equal(w.rows[0].OccurredAt))
}
