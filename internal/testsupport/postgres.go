package testsupport

import (
	"context"
	"sync"
	"testing"

	"github.com/jmoiron/sqlx"

	"rwaledger/internal/adapters/postgres"
)

var (
	migrateOnce sync.Once
	migrateErr  error
)

// PostgresDB connects to the integration database with the schema migrated
// once per test binary. Rows written through it are committed, so callers
// scope their assertions to freshly generated ids. Skips when POSTGRES_* is unset.
func PostgresDB(t *testing.T) *sqlx.DB {
	t.Helper()
	cfg := PostgresConfigFromEnv(t)
	ctx := context.Background()

	client, err := postgres.NewClient(ctx, cfg)
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	migrateOnce.Do(func() { _, migrateErr = client.Migrate(ctx) })
	if migrateErr != nil {
		t.Fatalf("migrate ledger schema: %v", migrateErr)
	}
	return client.DB()
}

// PostgresTx opens a transaction against the integration database and rolls
// it back when the test ends, so every test sees an empty ledger.
func PostgresTx(t *testing.T) *sqlx.Tx {
	t.Helper()
	tx, err := PostgresDB(t).BeginTxx(context.Background(), nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	t.Cleanup(func() { _ = tx.Rollback() })
	return tx
}
