package testsupport

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"rwaledger/internal/adapters/clickhouse"
	"rwaledger/internal/adapters/config"
	"rwaledger/internal/domain/ledger"
)

// ClickHouseTestHelper manages cleanup for ClickHouse integration tests.
type ClickHouseTestHelper struct {
	client *clickhouse.Client
}

// NewClickHouseTestHelper creates a ClickHouse client with the journal schema in place.
func NewClickHouseTestHelper(t *testing.T, cfg config.ClickHouseConfig) *ClickHouseTestHelper {
	t.Helper()

	client, err := clickhouse.NewClient(context.Background(), cfg)
	if err != nil {
		t.Fatalf("failed to connect to clickhouse: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	if err := client.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("failed to create journal schema: %v", err)
	}
	return &ClickHouseTestHelper{client: client}
}

// RegisterPoolCleanup deletes a pool's journal rows after the test completes.
// Tests use a fresh pool id so shared tables stay usable.
func (h *ClickHouseTestHelper) RegisterPoolCleanup(t *testing.T, poolID uuid.UUID) {
	t.Helper()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_ = h.client.Exec(ctx, "ALTER TABLE ledger_events DELETE WHERE pool_id = ?", poolID)
	})
}

// Client exposes the ClickHouse client for queries.
func (h *ClickHouseTestHelper) Client() *clickhouse.Client {
	return h.client
}

// EventFixture builds ledger events for journal tests
type EventFixture struct {
	event ledger.Event
}

// NewEventFixture creates an investment event for poolID
func NewEventFixture(poolID uuid.UUID) *EventFixture {
	e := ledger.NewEvent(ledger.EventInvestmentRecorded, poolID, "holder-1", uuid.New(), decimal.NewFromInt(10))
	e.OccurredAt = e.OccurredAt.Truncate(time.Millisecond)
	return &EventFixture{event: e}
}

// WithType sets the event type
func (f *EventFixture) WithType(t ledger.EventType) *EventFixture {
	f.event.Type = t
	return f
}

// WithHolder sets the holder
func (f *EventFixture) WithHolder(holderID string) *EventFixture {
	f.event.HolderID = holderID
	return f
}

// At sets the occurrence time
func (f *EventFixture) At(at time.Time) *EventFixture {
	f.event.OccurredAt = at.UTC().Truncate(time.Millisecond)
	return f
}

// Build returns the event
func (f *EventFixture) Build() ledger.Event {
	return f.event
}
