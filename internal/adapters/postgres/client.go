package postgres

import (
	"context"
	"embed"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	migrate "github.com/rubenv/sql-migrate"

	"rwaledger/internal/adapters/config"
	"rwaledger/pkg/errors"
	"rwaledger/pkg/retry"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const migrationTable = "ledger_schema_migrations"

// Client owns the ledger's PostgreSQL pool
type Client struct {
	db *sqlx.DB
}

// NewClient connects and pings, retrying while the server is still coming up
func NewClient(ctx context.Context, cfg config.PostgresConfig) (*Client, error) {
	var db *sqlx.DB
	policy := retry.New(retry.Config{
		MaxRetries:   cfg.ConnectRetries,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Retryable:    func(err error) bool { return ctx.Err() == nil },
	})
	err := policy.Do(ctx, func() error {
		var err error
		db, err = sqlx.ConnectContext(ctx, "postgres", cfg.DSN())
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "connect postgres")
	}

	// Ledger transactions are short; a small idle pool is enough.
	db.SetMaxOpenConns(cfg.MaxConns)
	db.SetMaxIdleConns(max(cfg.MaxConns/4, 2))
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return &Client{db: db}, nil
}

// Migrate applies the embedded ledger schema and returns how many migrations ran
func (c *Client) Migrate(ctx context.Context) (int, error) {
	ms := migrate.MigrationSet{TableName: migrationTable}
	src := &migrate.EmbedFileSystemMigrationSource{FileSystem: migrationsFS, Root: "migrations"}

	n, err := ms.ExecContext(ctx, c.db.DB, "postgres", src, migrate.Up)
	if err != nil {
		return n, errors.Wrapf(err, "apply ledger migrations (%d applied before failure)", n)
	}
	return n, nil
}

func (c *Client) DB() *sqlx.DB { return c.db }

func (c *Client) Close() error { return c.db.Close() }

// Health pings the pool; it backs the readiness probe
func (c *Client) Health(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return errors.Wrap(err, "postgres ping")
	}
	return nil
}
