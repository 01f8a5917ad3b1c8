package kafka

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"

	eventspb "rwaledger/internal/events/proto"
	"rwaledger/pkg/errors"
)

type fakeWriter struct {
	mu       sync.Mutex
	failures []error
	written  []kafka.Message
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.failures) > 0 {
		err := w.failures[0]
		w.failures = w.failures[1:]
		return err
	}
	w.written = append(w.written, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestProducer_Publish(t *testing.T) {
	w := &fakeWriter{failures: []error{kafka.LeaderNotAvailable}}
	p := newProducer(w, 2)

	event := &eventspb.LedgerEvent{Type: "investment.recorded", PoolId: "pool-1", Amount: "250"}
	require.NoError(t, p.Publish(context.Background(), TopicLedgerEvents, "pool-1", event.GetType(), event))

	require.Len(t, w.written, 1)
	msg := w.written[0]
	assert.Equal(t, TopicLedgerEvents, msg.Topic)
	assert.Equal(t, "pool-1", string(msg.Key))
	assert.Equal(t, "investment.recorded", header(msg, HeaderEventType))

	var decoded eventspb.LedgerEvent
	require.NoError(t, proto.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "pool-1", decoded.GetPoolId())
	assert.Equal(t, "250", decoded.GetAmount())
}

func TestProducer_PermanentFailure(t *testing.T) {
	w := &fakeWriter{failures: []error{kafka.TopicAuthorizationFailed, nil}}
	p := newProducer(w, 3)

	err := p.Publish(context.Background(), TopicSettlementEvents, "k", "", &eventspb.LedgerEvent{Id: "a"})
	require.Error(t, err)
	assert.Empty(t, w.written, "non-temporary errors are not retried")
	assert.Empty(t, header(kafka.Message{}, HeaderEventType))
}

func TestProducer_InvalidUTF8Rejected(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, 1)
	err := p.Publish(context.Background(), TopicLedgerEvents, "k", "", &eventspb.LedgerEvent{Detail: "rpc\xff down"})
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))
	assert.Empty(t, w.written)
}

// fakeReader serves a fixed backlog, then blocks until ctx ends
type fakeReader struct {
	mu        sync.Mutex
	backlog   []kafka.Message
	fetchErrs []error
	committed []int64
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.fetchErrs) > 0 {
		err := r.fetchErrs[0]
		r.fetchErrs = r.fetchErrs[1:]
		r.mu.Unlock()
		return kafka.Message{}, err
	}
	if len(r.backlog) > 0 {
		msg := r.backlog[0]
		r.backlog = r.backlog[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

func TestConsumer_CommitsAfterHandling(t *testing.T) {
	r := &fakeReader{
		fetchErrs: []error{errors.New("broker gone")},
		backlog:   []kafka.Message{{Offset: 1}, {Offset: 2}, {Offset: 3}},
	}
	c := newConsumer(r, ConsumerConfig{HandlerRetries: 1, FetchBackoff: time.Millisecond})

	attempts := map[int64]int{}
	var mu sync.Mutex
	handle := func(_ context.Context, msg kafka.Message) error {
		mu.Lock()
		defer mu.Unlock()
		attempts[msg.Offset]++
		switch msg.Offset {
		case 2:
			if attempts[2] == 1 {
				return errors.New("clickhouse busy")
			}
		case 3:
			return errors.New("poison")
		}
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Consume(ctx, handle) }()

	require.Eventually(t, func() bool { return len(r.commits()) == 3 }, 3*time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	assert.Equal(t, []int64{1, 2, 3}, r.commits())
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, attempts[1])
	assert.Equal(t, 2, attempts[2], "retried once then succeeded")
	assert.Equal(t, 2, attempts[3], "skipped after retries ran out")
}
