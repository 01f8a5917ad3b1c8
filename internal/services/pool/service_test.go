package pool_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rwaledger/internal/domain/distribution"
	"rwaledger/internal/domain/ledger"
	"rwaledger/internal/adapters/redis"
	"rwaledger/internal/domain/pool"
	"rwaledger/internal/services/dividend"
	"rwaledger/internal/services/investment"
	poolsvc "rwaledger/internal/services/pool"
	"rwaledger/internal/testsupport/ledgertest"
	"rwaledger/pkg/errors"
)

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func newService(env *ledgertest.Env) *poolsvc.Service {
	return poolsvc.NewService(env.Ledger, env.Adapter, env.Auth, env.Locker, env.Cache, env.Events, poolsvc.Config{
		StatsCacheTTL:     time.Minute,
		SettlementTimeout: time.Second,
	}, env.Log)
}

func draftInput() poolsvc.CreateInput {
	return poolsvc.CreateInput{
		Name:              "Dockside Lofts",
		Symbol:            "dsl",
		TokenSupply:       d(10000),
		TokenPrice:        d(25),
		MinimumInvestment: d(100),
		Assets:            []poolsvc.AssetInput{{Name: "Unit block A", Valuation: d(250000)}},
	}
}

func TestCreate_ValidatesTerms(t *testing.T) {
	env := ledgertest.New(t)
	svc := newService(env)
	ctx := context.Background()

	p, err := svc.Create(ctx, ledgertest.Admin, draftInput())
	require.NoError(t, err)
	assert.Equal(t, pool.PoolDraft, p.Status)
	assert.Equal(t, "DSL", p.Symbol)
	assert.Empty(t, p.ExternalTokenRef)

	bad := draftInput()
	bad.TokenSupply = decimal.RequireFromString("10.5")
	bad.TokenPrice = d(0)
	_, err = svc.Create(ctx, ledgertest.Admin, bad)
	require.Error(t, err)
	assert.Equal(t, "VALIDATION_ERROR", errors.CodeOf(err))

	_, err = svc.Create(ctx, "someone", draftInput())
	assert.Equal(t, "FORBIDDEN", errors.CodeOf(err))
}

func TestLaunch_RequiresValidatedAsset(t *testing.T) {
	env := ledgertest.New(t)
	svc := newService(env)
	ctx := context.Background()

	p, err := svc.Create(ctx, ledgertest.Admin, draftInput())
	require.NoError(t, err)

	_, err = svc.Launch(ctx, ledgertest.Admin, p.ID)
	assert.Equal(t, "INVALID_STATE", errors.CodeOf(err))

	_, err = svc.ValidateAsset(ctx, ledgertest.Admin, p.ID, p.Assets[0].ID)
	require.NoError(t, err)

	launched, err := svc.Launch(ctx, ledgertest.Admin, p.ID)
	require.NoError(t, err)
	assert.Equal(t, pool.PoolActive, launched.Status)
	assert.NotEmpty(t, launched.ExternalTokenRef)
	assert.NotNil(t, launched.LaunchedAt)
	assert.Equal(t, 1, env.Events.Count(ledger.EventPoolLaunched))

	_, err = svc.Launch(ctx, ledgertest.Admin, p.ID)
	assert.Equal(t, "INVALID_STATE", errors.CodeOf(err))
}

func TestLaunch_BindingFailureKeepsDraft(t *testing.T) {
	env := ledgertest.New(t)
	svc := newService(env)
	ctx := context.Background()

	p, err := svc.Create(ctx, ledgertest.Admin, draftInput())
	require.NoError(t, err)
	_, err = svc.ValidateAsset(ctx, ledgertest.Admin, p.ID, p.Assets[0].ID)
	require.NoError(t, err)

	env.Adapter.FailWith(func(op string) error { return errors.New("mint authority unavailable") })
	_, err = svc.Launch(ctx, ledgertest.Admin, p.ID)
	require.Error(t, err)
	assert.Equal(t, "SETTLEMENT_FAILURE", errors.CodeOf(err))

	stored := env.Pool(t, p.ID)
	assert.Equal(t, pool.PoolDraft, stored.Status)
	assert.Empty(t, stored.ExternalTokenRef)

	env.Adapter.FailWith(nil)
	launched, err := svc.Launch(ctx, ledgertest.Admin, p.ID)
	require.NoError(t, err)
	assert.Equal(t, pool.PoolActive, launched.Status)
}

func TestLaunch_LockHeld(t *testing.T) {
	env := ledgertest.New(t)
	svc := newService(env)
	ctx := context.Background()

	p, err := svc.Create(ctx, ledgertest.Admin, draftInput())
	require.NoError(t, err)

	unlock, err := env.Locker.TryLock(ctx, "pool:launch:"+p.ID.String(), time.Minute)
	require.NoError(t, err)
	defer func() { _ = unlock(ctx) }()

	_, err = svc.Launch(ctx, ledgertest.Admin, p.ID)
	assert.Equal(t, "LOCK_HELD", errors.CodeOf(err))
}

func TestClose_BlockedByInFlightDistribution(t *testing.T) {
	env := ledgertest.New(t)
	svc := newService(env)
	ctx := context.Background()
	p := env.SeedActivePool(t, d(1000), d(10))

	inv := investment.NewService(env.Ledger, env.Dispatcher, env.Cache, env.Events, env.Log)
	_, err := inv.Invest(ctx, p.ID, "alice", d(100))
	require.NoError(t, err)

	div := dividend.NewService(env.Ledger, env.Dispatcher, env.Auth, env.Locker, env.Cache, env.Events, dividend.Config{CurrencyScale: 2}, env.Log)
	dist, err := div.Create(ctx, ledgertest.Admin, dividend.CreateInput{
		PoolID:           p.ID,
		TotalAmount:      d(50),
		RecordDate:       time.Now(),
		DistributionDate: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	_, err = svc.Close(ctx, ledgertest.Admin, p.ID)
	assert.Equal(t, "INVALID_STATE", errors.CodeOf(err))
	_, err = svc.Suspend(ctx, ledgertest.Admin, p.ID)
	assert.Equal(t, "INVALID_STATE", errors.CodeOf(err))

	cancelled, err := div.Cancel(ctx, ledgertest.Admin, dist.ID)
	require.NoError(t, err)
	assert.Equal(t, distribution.StatusCancelled, cancelled.Status)

	closed, err := svc.Close(ctx, ledgertest.Admin, p.ID)
	require.NoError(t, err)
	assert.Equal(t, pool.PoolClosed, closed.Status)

	_, err = inv.Invest(ctx, p.ID, "bob", d(100))
	assert.Equal(t, "INVALID_STATE", errors.CodeOf(err))
}

func TestSuspendAndResume(t *testing.T) {
	env := ledgertest.New(t)
	svc := newService(env)
	ctx := context.Background()
	p := env.SeedActivePool(t, d(1000), d(10))

	_, err := svc.Resume(ctx, ledgertest.Admin, p.ID)
	assert.Equal(t, "INVALID_STATE", errors.CodeOf(err))

	suspended, err := svc.Suspend(ctx, ledgertest.Admin, p.ID)
	require.NoError(t, err)
	assert.Equal(t, pool.PoolSuspended, suspended.Status)

	resumed, err := svc.Resume(ctx, ledgertest.Admin, p.ID)
	require.NoError(t, err)
	assert.Equal(t, pool.PoolActive, resumed.Status)

	matured, err := svc.Mature(ctx, ledgertest.Admin, p.ID)
	require.NoError(t, err)
	assert.True(t, matured.Status.IsTerminal())

	_, err = svc.Resume(ctx, ledgertest.Admin, p.ID)
	assert.Equal(t, "INVALID_STATE", errors.CodeOf(err))
}

func TestUpdatePrice_RevaluesHoldings(t *testing.T) {
	env := ledgertest.New(t)
	svc := newService(env)
	ctx := context.Background()
	p := env.SeedActivePool(t, d(1000), d(10))

	inv := investment.NewService(env.Ledger, env.Dispatcher, env.Cache, env.Events, env.Log)
	_, err := inv.Invest(ctx, p.ID, "alice", d(100))
	require.NoError(t, err)

	_, err = svc.UpdatePrice(ctx, ledgertest.Admin, p.ID, d(12))
	require.NoError(t, err)

	h := env.Holding(t, "alice", p.ID)
	assert.True(t, h.CurrentPrice.Equal(d(12)))
	assert.True(t, h.CurrentValue.Equal(d(120)))
	assert.True(t, h.UnrealizedPnL.Equal(d(20)))

	_, err = svc.UpdatePrice(ctx, ledgertest.Admin, p.ID, d(-1))
	assert.Equal(t, "VALIDATION_ERROR", errors.CodeOf(err))
}

func TestGetStats_CachedUntilInvalidated(t *testing.T) {
	env := ledgertest.New(t)
	svc := newService(env)
	ctx := context.Background()
	p := env.SeedActivePool(t, d(1000), d(10))

	inv := investment.NewService(env.Ledger, env.Dispatcher, env.Cache, env.Events, env.Log)
	_, err := inv.Invest(ctx, p.ID, "alice", d(100))
	require.NoError(t, err)

	st, err := svc.GetStats(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, st.TokensIssued.Equal(d(10)))
	assert.True(t, st.RemainingSupply.Equal(d(990)))
	assert.Equal(t, 1, st.ActiveHolders)
	assert.EqualValues(t, 1, st.Settlements["confirmed"])

	var gen string
	require.NoError(t, env.Cache.Get(ctx, pool.StatsGenerationKey(p.ID), &gen))
	var cached poolsvc.Stats
	require.NoError(t, env.Cache.Get(ctx, pool.StatsCacheKey(p.ID, gen), &cached))
	assert.Equal(t, st.PoolID, cached.PoolID)

	_, err = inv.Invest(ctx, p.ID, "bob", d(200))
	require.NoError(t, err)

	st, err = svc.GetStats(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, st.TokensIssued.Equal(d(30)))
	assert.EqualValues(t, 2, st.TotalInvestors)
}

// racingCache runs beforeStatsWrite once, just before the first stats
// snapshot is stored
type racingCache struct {
	*redis.LocalCache
	once             sync.Once
	beforeStatsWrite func()
}

func (c *racingCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if strings.HasPrefix(key, "pool:stats:") {
		c.once.Do(c.beforeStatsWrite)
	}
	return c.LocalCache.Set(ctx, key, value, ttl)
}

func TestGetStats_WriteDuringComputeIsNotServedStale(t *testing.T) {
	env := ledgertest.New(t)
	ctx := context.Background()
	p := env.SeedActivePool(t, d(1000), d(10))
	inv := investment.NewService(env.Ledger, env.Dispatcher, env.Cache, env.Events, env.Log)

	cache := &racingCache{LocalCache: env.Cache}
	cache.beforeStatsWrite = func() {
		_, err := inv.Invest(ctx, p.ID, "alice", d(100))
		require.NoError(t, err)
	}
	svc := poolsvc.NewService(env.Ledger, env.Adapter, env.Auth, env.Locker, cache, env.Events, poolsvc.Config{
		StatsCacheTTL:     time.Minute,
		SettlementTimeout: time.Second,
	}, env.Log)

	st, err := svc.GetStats(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, st.TokensIssued.IsZero(), "snapshot taken before the investment")

	st, err = svc.GetStats(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, st.TokensIssued.Equal(d(10)))
}
