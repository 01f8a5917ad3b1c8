// Package ledgertest wires the ledger services for service tests, over the
// in-memory store or, for concurrency tests, the integration database.
package ledgertest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"rwaledger/internal/adapters/access"
	"rwaledger/internal/adapters/config"
	"rwaledger/internal/adapters/redis"
	simulated "rwaledger/internal/adapters/settlement"
	"rwaledger/internal/domain/holding"
	"rwaledger/internal/domain/ledger"
	"rwaledger/internal/domain/pool"
	"rwaledger/internal/repository/memory"
	"rwaledger/internal/repository/postgres"
	"rwaledger/internal/services/holdings"
	settlementsvc "rwaledger/internal/services/settlement"
	"rwaledger/internal/testsupport"
	"rwaledger/pkg/logger"
)

// Admin holds every elevated role in the test environment
const Admin = "admin-1"

// Env is a complete ledger
type Env struct {
	Tx         ledger.Transactor
	Ledger     *holdings.Ledger
	Adapter    *simulated.Simulated
	Dispatcher *settlementsvc.Dispatcher
	Auth       *access.Static
	Locker     *redis.LocalLocker
	Cache      *redis.LocalCache
	Events     *EventRecorder
	Log        *logger.Logger
}

// New creates an empty in-memory environment
func New(t *testing.T) *Env {
	t.Helper()
	return newEnv(memory.NewTransactor(memory.NewStore()), 5)
}

// NewPostgres creates an environment over the integration database. Writes
// are committed and transactions really overlap, so conflict retries are
// raised. Skips when POSTGRES_* is unset.
func NewPostgres(t *testing.T) *Env {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	return newEnv(postgres.NewTransactor(testsupport.PostgresDB(t)), 20)
}

func newEnv(tx ledger.Transactor, conflictRetries int) *Env {
	log := logger.Nop()
	adapter := simulated.NewSimulated()
	events := &EventRecorder{}
	locker := redis.NewLocalLocker()

	return &Env{
		Tx:      tx,
		Ledger:  holdings.NewLedger(tx, conflictRetries, log),
		Adapter: adapter,
		Dispatcher: settlementsvc.NewDispatcher(tx, adapter, locker, events, nil, settlementsvc.Config{
			Timeout:         time.Second,
			MaxAttempts:     3,
			ConflictRetries: conflictRetries,
		}, log),
		Auth:   access.NewStatic(config.AccessConfig{SuperAdmins: []string{Admin}}),
		Locker: locker,
		Cache:  redis.NewLocalCache(),
		Events: events,
		Log:    log,
	}
}

// PoolOption adjusts a seeded pool
type PoolOption func(p *pool.Pool)

// WithMinimum sets the minimum investment
func WithMinimum(min decimal.Decimal) PoolOption {
	return func(p *pool.Pool) { p.MinimumInvestment = min }
}

// WithStatus sets the pool status
func WithStatus(s pool.PoolStatus) PoolOption {
	return func(p *pool.Pool) { p.Status = s }
}

// SeedActivePool stores a launched pool with a bound token
func (e *Env) SeedActivePool(t *testing.T, supply, price decimal.Decimal, opts ...PoolOption) *pool.Pool {
	t.Helper()

	now := time.Now().UTC()
	p := &pool.Pool{
		ID:                        uuid.New(),
		Name:                      "Harbor Warehouse",
		Symbol:                    "HBW",
		Status:                    pool.PoolActive,
		TokenSupply:               supply,
		TokenPrice:                price,
		MinimumInvestment:         decimal.Zero,
		TotalInvested:             decimal.Zero,
		TotalTokensIssued:         decimal.Zero,
		TotalDividendsDistributed: decimal.Zero,
		ExternalTokenRef:          "mint-" + uuid.NewString()[:8],
		Assets:                    pool.UnderlyingAssets{{ID: uuid.New(), Name: "Pier 4", Valuation: supply.Mul(price), Validated: true}},
		CreatedBy:                 Admin,
		LaunchedAt:                &now,
		CreatedAt:                 now,
		UpdatedAt:                 now,
	}
	for _, opt := range opts {
		opt(p)
	}

	err := e.Tx.WithinTx(context.Background(), func(ctx context.Context, repos ledger.Repositories) error {
		return repos.Pools.Create(ctx, p)
	})
	if err != nil {
		t.Fatalf("seed pool: %v", err)
	}
	return p
}

// Pool reloads a pool
func (e *Env) Pool(t *testing.T, id uuid.UUID) *pool.Pool {
	t.Helper()
	p, err := e.Tx.Repos().Pools.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("load pool: %v", err)
	}
	return p
}

// Holding reloads a holder's position
func (e *Env) Holding(t *testing.T, holderID string, poolID uuid.UUID) *holding.Holding {
	t.Helper()
	h, err := e.Tx.Repos().Holdings.GetByHolderAndPool(context.Background(), holderID, poolID)
	if err != nil {
		t.Fatalf("load holding: %v", err)
	}
	return h
}

// CheckAggregates fails the test when the pool aggregates drift from its holdings
func (e *Env) CheckAggregates(t *testing.T, poolID uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	p := e.Pool(t, poolID)
	hs, err := e.Tx.Repos().Holdings.ListByPool(ctx, poolID)
	if err != nil {
		t.Fatalf("list holdings: %v", err)
	}
	if err := holdings.CheckAggregates(p, hs); err != nil {
		t.Errorf("aggregates: %v", err)
	}
}

// EventRecorder is an EventPublisher that keeps everything it receives
type EventRecorder struct {
	mu     sync.Mutex
	events []ledger.Event
}

// Publish implements ledger.EventPublisher
func (r *EventRecorder) Publish(_ context.Context, e ledger.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

// Types returns the recorded event types in order
func (r *EventRecorder) Types() []ledger.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ledger.EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

// Count returns how many events of type t were recorded
func (r *EventRecorder) Count(t ledger.EventType) int {
	n := 0
	for _, et := range r.Types() {
		if et == t {
			n++
		}
	}
	return n
}
