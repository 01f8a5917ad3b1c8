package consumers

import (
	"context"

	kafkago "github.com/segmentio/kafka-go"

	"rwaledger/internal/adapters/kafka"
	"rwaledger/internal/domain/ledger"
	"rwaledger/internal/events"
	"rwaledger/internal/metrics"
	"rwaledger/pkg/logger"
)

// MessageSource is the Kafka read side used by the journal consumer
type MessageSource interface {
	Consume(ctx context.Context, handler kafka.MessageHandler) error
}

// RowWriter buffers journal rows for batched insertion
type RowWriter interface {
	Add(ctx context.Context, e ledger.Event) error
}

// JournalConsumer copies ledger events from Kafka into the ClickHouse journal
type JournalConsumer struct {
	source MessageSource
	writer RowWriter
	log    *logger.Logger
}

// NewJournalConsumer creates a new journal consumer
func NewJournalConsumer(source MessageSource, writer RowWriter, log *logger.Logger) *JournalConsumer {
	return &JournalConsumer{
		source: source,
		writer: writer,
		log:    log,
	}
}

// Start consumes until ctx is cancelled
func (jc *JournalConsumer) Start(ctx context.Context) error {
	jc.log.Info("Starting ledger journal consumer...")

	err := jc.source.Consume(ctx, jc.handleMessage)
	if ctx.Err() != nil {
		jc.log.Info("Ledger journal consumer stopping (context cancelled)")
		return nil
	}
	return err
}

func (jc *JournalConsumer) handleMessage(ctx context.Context, msg kafkago.Message) error {
	metrics.KafkaMessages.WithLabelValues(msg.Topic, "consumed").Inc()

	e, err := events.Decode(msg.Value)
	if err != nil {
		// A malformed message will never decode; skip it so the partition keeps moving.
		jc.log.Warnw("Skipping undecodable ledger event",
			"topic", msg.Topic,
			"offset", msg.Offset,
			"error", err,
		)
		return nil
	}

	if err := jc.writer.Add(ctx, e); err != nil {
		// The row stays buffered in the writer and is retried on the next flush.
		jc.log.Debugw("Journal flush deferred", "event_id", e.ID, "error", err)
	}
	return nil
}

var _ MessageSource = (*kafka.Consumer)(nil)
