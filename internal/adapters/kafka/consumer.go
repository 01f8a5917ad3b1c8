package kafka

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"

	"rwaledger/pkg/logger"
	"rwaledger/pkg/retry"
)

// MessageHandler processes one message. A failing message is retried, then skipped.
type MessageHandler func(ctx context.Context, msg kafka.Message) error

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	Brokers []string
	GroupID string
	Topics  []string

	// HandlerRetries is how many times a failing message is retried before
	// it is skipped
	HandlerRetries int
	// FetchBackoff is the pause after a failed fetch
	FetchBackoff time.Duration
}

// Consumer reads a consumer group and commits offsets after the handler succeeds
type Consumer struct {
	reader  messageReader
	retry   *retry.Policy
	backoff time.Duration
	log     *logger.Logger
}

// NewConsumer creates a group reader. A new group starts at the earliest
// offset so the journal replays history.
func NewConsumer(cfg ConsumerConfig) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		GroupTopics: cfg.Topics,
		MinBytes:    1,
		MaxBytes:    10 << 20,
		MaxWait:     time.Second,
		StartOffset: kafka.FirstOffset,
	})
	c := newConsumer(r, cfg)
	c.log = c.log.With("group_id", cfg.GroupID)
	c.log.Infow("Kafka consumer created", "brokers", cfg.Brokers, "topics", cfg.Topics)
	return c
}

func newConsumer(r messageReader, cfg ConsumerConfig) *Consumer {
	if cfg.HandlerRetries <= 0 {
		cfg.HandlerRetries = 3
	}
	if cfg.FetchBackoff <= 0 {
		cfg.FetchBackoff = time.Second
	}
	return &Consumer{
		reader: r,
		retry: retry.New(retry.Config{
			MaxRetries:   cfg.HandlerRetries,
			InitialDelay: 100 * time.Millisecond,
			MaxDelay:     2 * time.Second,
			Strategy:     retry.StrategyExponential,
			Retryable:    func(error) bool { return true },
		}),
		backoff: cfg.FetchBackoff,
		log:     logger.Get().Component("kafka_consumer"),
	}
}

// Consume runs until ctx is cancelled. A message whose handler keeps failing
// is logged and skipped; committing the next offset moves past it.
func (c *Consumer) Consume(ctx context.Context, handle MessageHandler) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Warnw("Kafka fetch failed", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.backoff):
			}
			continue
		}

		err = c.retry.Do(ctx, func() error { return handle(ctx, msg) })
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			c.log.Errorw("Skipping message after handler retries",
				"topic", msg.Topic,
				"partition", msg.Partition,
				"offset", msg.Offset,
				"event_type", header(msg, HeaderEventType),
				"error", err,
			)
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.log.Warnw("Kafka commit failed", "topic", msg.Topic, "offset", msg.Offset, "error", err)
		}
	}
}

// Close closes the reader and leaves the group
func (c *Consumer) Close() error {
	return c.reader.Close()
}

func header(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
