package events

import (
	"context"

	"google.golang.org/protobuf/proto"

	"rwaledger/internal/adapters/kafka"
	"rwaledger/internal/domain/ledger"
	"rwaledger/internal/metrics"
	"rwaledger/pkg/errors"
	"rwaledger/pkg/logger"
)

// Sender is the Kafka write side used by Publisher
type Sender interface {
	Publish(ctx context.Context, topic string, key string, eventType string, event proto.Message) error
}

// Publisher publishes ledger events to Kafka as protobuf, keyed by pool id
type Publisher struct {
	producer Sender
	log      *logger.Logger
}

// NewPublisher creates a new event publisher
func NewPublisher(producer Sender, log *logger.Logger) *Publisher {
	return &Publisher{
		producer: producer,
		log:      log,
	}
}

// Publish implements ledger.EventPublisher
func (p *Publisher) Publish(ctx context.Context, e ledger.Event) error {
	topic := TopicFor(e.Type)
	e.Detail = SanitizeUTF8(e.Detail)

	if err := p.producer.Publish(ctx, topic, e.PoolID.String(), string(e.Type), ToProto(e)); err != nil {
		p.log.Warnw("Failed to publish ledger event",
			"topic", topic,
			"type", e.Type,
			"reference_id", e.ReferenceID,
			"error", err,
		)
		return errors.Wrap(err, "send to kafka")
	}

	metrics.KafkaMessages.WithLabelValues(topic, "produced").Inc()
	p.log.Debugw("Ledger event published", "topic", topic, "type", e.Type, "id", e.ID)
	return nil
}

// Noop drops every event. Used when Kafka is not configured.
type Noop struct{}

// Publish implements ledger.EventPublisher
func (Noop) Publish(context.Context, ledger.Event) error { return nil }

var (
	_ ledger.EventPublisher = (*Publisher)(nil)
	_ ledger.EventPublisher = Noop{}
	_ Sender                = (*kafka.Producer)(nil)
)
