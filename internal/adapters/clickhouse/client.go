package clickhouse

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/google/uuid"

	"rwaledger/internal/adapters/config"
	"rwaledger/internal/domain/ledger"
	"rwaledger/pkg/errors"
)

const createLedgerEvents = `
CREATE TABLE IF NOT EXISTS ledger_events (
	id           UUID,
	type         LowCardinality(String),
	pool_id      UUID,
	holder_id    String,
	reference_id UUID,
	amount       Decimal(38, 18),
	actor        String,
	detail       String,
	occurred_at  DateTime64(3, 'UTC')
) ENGINE = ReplacingMergeTree
PARTITION BY toYYYYMM(occurred_at)
ORDER BY (pool_id, occurred_at, id)`

// Client is the journal store: an append-only copy of published ledger events
type Client struct {
	conn driver.Conn
}

// NewClient opens an LZ4-compressed native connection and pings it
func NewClient(ctx context.Context, cfg config.ClickHouseConfig) (*Client, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Compression:     &clickhouse.Compression{Method: clickhouse.CompressionLZ4},
		DialTimeout:     5 * time.Second,
		MaxOpenConns:    4,
		ConnMaxLifetime: time.Hour,
	})
	if err != nil {
		return nil, errors.Wrap(err, "open clickhouse")
	}
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "clickhouse ping")
	}
	return &Client{conn: conn}, nil
}

// EnsureSchema creates the journal table when missing
func (c *Client) EnsureSchema(ctx context.Context) error {
	return errors.Wrap(c.conn.Exec(ctx, createLedgerEvents), "create ledger_events")
}

// InsertEvents appends events to the journal in one batch.
// ReplacingMergeTree collapses redelivered events with the same key.
func (c *Client) InsertEvents(ctx context.Context, events []ledger.Event) error {
	if len(events) == 0 {
		return nil
	}

	batch, err := c.conn.PrepareBatch(ctx, "INSERT INTO ledger_events")
	if err != nil {
		return errors.Wrap(err, "prepare batch")
	}

	for _, e := range events {
		if err := batch.Append(
			e.ID,
			string(e.Type),
			e.PoolID,
			e.HolderID,
			e.ReferenceID,
			e.Amount,
			e.Actor,
			e.Detail,
			e.OccurredAt,
		); err != nil {
			_ = batch.Abort()
			return errors.Wrapf(err, "append event %s", e.ID)
		}
	}

	return errors.Wrap(batch.Send(), "send batch")
}

// ListEvents returns a pool's journaled events, newest first.
// FINAL collapses redelivered duplicates not merged yet.
func (c *Client) ListEvents(ctx context.Context, poolID uuid.UUID, limit int) ([]ledger.Event, error) {
	rows, err := c.conn.Query(ctx, `
		SELECT id, type, pool_id, holder_id, reference_id, amount, actor, detail, occurred_at
		FROM ledger_events FINAL
		WHERE pool_id = ?
		ORDER BY occurred_at DESC
		LIMIT ?`, poolID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "query ledger events")
	}
	defer rows.Close()

	var out []ledger.Event
	for rows.Next() {
		var (
			e         ledger.Event
			eventType string
		)
		if err := rows.Scan(&e.ID, &eventType, &e.PoolID, &e.HolderID, &e.ReferenceID, &e.Amount, &e.Actor, &e.Detail, &e.OccurredAt); err != nil {
			return nil, errors.Wrap(err, "scan ledger event")
		}
		e.Type = ledger.EventType(eventType)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Exec runs a statement without results
func (c *Client) Exec(ctx context.Context, query string, args ...interface{}) error {
	return c.conn.Exec(ctx, query, args...)
}

func (c *Client) Close() error { return c.conn.Close() }

// Health pings the server; the journal is an optional dependency
func (c *Client) Health(ctx context.Context) error {
	return errors.Wrap(c.conn.Ping(ctx), "clickhouse ping")
}
