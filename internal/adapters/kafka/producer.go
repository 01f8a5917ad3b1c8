package kafka

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"google.golang.org/protobuf/proto"

	"rwaledger/pkg/errors"
	"rwaledger/pkg/logger"
	"rwaledger/pkg/retry"
)

// HeaderEventType carries the ledger event type so consumers can route
// without decoding the payload
const HeaderEventType = "event-type"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ProducerConfig holds producer configuration
type ProducerConfig struct {
	Brokers      []string
	WriteTimeout time.Duration
	Retries      int
}

// Producer writes protobuf payloads to ledger topics. A single writer serves
// every topic; the topic travels on each message.
type Producer struct {
	writer messageWriter
	retry  *retry.Policy
	log    *logger.Logger
}

// NewProducer creates a producer over a hash-balanced writer so that one
// pool's events keep their order within a partition
func NewProducer(cfg ProducerConfig) *Producer {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.Retries <= 0 {
		cfg.Retries = 3
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: cfg.WriteTimeout,
		BatchTimeout: 10 * time.Millisecond,
	}
	return newProducer(w, cfg.Retries)
}

func newProducer(w messageWriter, retries int) *Producer {
	return &Producer{
		writer: w,
		retry: retry.New(retry.Config{
			MaxRetries:   retries,
			InitialDelay: 50 * time.Millisecond,
			MaxDelay:     time.Second,
			Strategy:     retry.StrategyExponential,
			Retryable:    retryableWrite,
		}),
		log: logger.Get().Component("kafka_producer"),
	}
}

// Publish marshals event and writes it to topic under key. A non-empty
// eventType is sent as the HeaderEventType header.
func (p *Producer) Publish(ctx context.Context, topic string, key string, eventType string, event proto.Message) error {
	value, err := proto.Marshal(event)
	if err != nil {
		return errors.Wrapf(errors.ErrInvalidInput, "marshal %s event: %v", topic, err)
	}

	msg := kafka.Message{Topic: topic, Key: []byte(key), Value: value}
	if eventType != "" {
		msg.Headers = append(msg.Headers, kafka.Header{Key: HeaderEventType, Value: []byte(eventType)})
	}

	err = p.retry.Do(ctx, func() error {
		return p.writer.WriteMessages(ctx, msg)
	})
	if err != nil {
		p.log.Errorw("Kafka write failed", "topic", topic, "key", key, "error", err)
		return errors.Wrapf(err, "write to %s", topic)
	}
	p.log.Debugw("Kafka write", "topic", topic, "key", key, "bytes", len(value))
	return nil
}

// Close flushes pending batches
func (p *Producer) Close() error {
	return p.writer.Close()
}

// retryableWrite retries leader elections and broker timeouts, which kafka-go
// reports as temporary
func retryableWrite(err error) bool {
	if retry.IsTransient(err) {
		return true
	}
	var kerr kafka.Error
	if errors.As(err, &kerr) {
		return kerr.Temporary()
	}
	return false
}
