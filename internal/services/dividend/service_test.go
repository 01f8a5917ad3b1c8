package dividend_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rwaledger/internal/domain/distribution"
	"rwaledger/internal/domain/holding"
	"rwaledger/internal/domain/pool"
	"rwaledger/internal/domain/settlement"
	"rwaledger/internal/services/dividend"
	"rwaledger/internal/services/investment"
	"rwaledger/internal/testsupport/ledgertest"
	"rwaledger/pkg/errors"
)

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

type fixture struct {
	env      *ledgertest.Env
	svc      *dividend.Service
	invest   *investment.Service
	pool     *pool.Pool
	recorded time.Time
}

// newFixture seeds a pool where alice holds 30 tokens and bob holds 70
func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureOn(t, ledgertest.New(t))
}

func newFixtureOn(t *testing.T, env *ledgertest.Env) *fixture {
	t.Helper()
	f := &fixture{
		env: env,
		svc: dividend.NewService(env.Ledger, env.Dispatcher, env.Auth, env.Locker, env.Cache, env.Events, dividend.Config{
			CurrencyScale:      2,
			ExecuteParallelism: 4,
		}, env.Log),
		invest: investment.NewService(env.Ledger, env.Dispatcher, env.Cache, env.Events, env.Log),
		pool:   env.SeedActivePool(t, d(1000), d(10)),
	}

	ctx := context.Background()
	_, err := f.invest.Invest(ctx, f.pool.ID, "alice", d(300))
	require.NoError(t, err)
	_, err = f.invest.Invest(ctx, f.pool.ID, "bob", d(700))
	require.NoError(t, err)
	f.recorded = time.Now().UTC()
	return f
}

func (f *fixture) create(t *testing.T, total decimal.Decimal) *distribution.Distribution {
	t.Helper()
	dist, err := f.svc.Create(context.Background(), ledgertest.Admin, dividend.CreateInput{
		PoolID:      f.pool.ID,
		TotalAmount: total,
		RecordDate:  f.recorded,
	})
	require.NoError(t, err)
	return dist
}

func TestDistribution_ProRataExecuteAndClaim(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	dist := f.create(t, d(1000))
	assert.Equal(t, distribution.StatusPending, dist.Status)
	assert.True(t, dist.PerTokenRate.Equal(d(10)))
	assert.True(t, dist.RoundingRemainder.IsZero())
	require.Len(t, dist.Recipients, 2)

	alice, ok := dist.Recipient("alice")
	require.True(t, ok)
	assert.True(t, alice.DividendAmount.Equal(d(300)))
	bob, ok := dist.Recipient("bob")
	require.True(t, ok)
	assert.True(t, bob.DividendAmount.Equal(d(700)))

	res, err := f.svc.Execute(ctx, ledgertest.Admin, dist.ID)
	require.NoError(t, err)
	assert.Equal(t, distribution.StatusDistributed, res.Distribution.Status)
	assert.Equal(t, 2, res.Accrued)
	assert.Zero(t, res.Failed)
	require.Len(t, res.Settlements, 2)
	for _, out := range res.Settlements {
		assert.Equal(t, settlement.StatusConfirmed, out.Status)
	}
	assert.True(t, res.Distribution.TotalUnclaimed.Equal(d(1000)))

	h := f.env.Holding(t, "alice", f.pool.ID)
	assert.True(t, h.AccruedDividends.Equal(d(300)))
	assert.True(t, h.UnclaimedDividends.Equal(d(300)))
	assert.True(t, f.env.Pool(t, f.pool.ID).TotalDividendsDistributed.Equal(d(1000)))
	f.env.CheckAggregates(t, f.pool.ID)

	claim, err := f.svc.Claim(ctx, dist.ID, "alice")
	require.NoError(t, err)
	assert.True(t, claim.Amount.Equal(d(300)))
	assert.True(t, claim.Holding.ClaimedDividends.Equal(d(300)))
	assert.True(t, claim.Holding.UnclaimedDividends.IsZero())

	_, err = f.svc.Claim(ctx, dist.ID, "bob")
	require.NoError(t, err)

	final, err := f.svc.Get(ctx, dist.ID)
	require.NoError(t, err)
	assert.True(t, final.TotalClaimed.Equal(d(1000)))
	assert.True(t, final.TotalUnclaimed.IsZero())
	assert.EqualValues(t, 2, final.ClaimCount)

	actions := make([]distribution.Action, 0, len(final.Audit))
	for _, e := range final.Audit {
		actions = append(actions, e.Action)
	}
	assert.Contains(t, actions, distribution.ActionCreated)
	assert.Contains(t, actions, distribution.ActionExecuting)
	assert.Contains(t, actions, distribution.ActionDistributed)
	assert.Contains(t, actions, distribution.ActionClaimed)
}

func TestDistribution_RoundsDownAndKeepsRemainder(t *testing.T) {
	f := newFixture(t)

	dist := f.create(t, decimal.RequireFromString("100.01"))
	alice, _ := dist.Recipient("alice")
	bob, _ := dist.Recipient("bob")
	assert.True(t, alice.DividendAmount.Equal(d(30)))
	assert.True(t, bob.DividendAmount.Equal(d(70)))
	assert.True(t, dist.RoundingRemainder.Equal(decimal.RequireFromString("0.01")))
	assert.True(t, dist.PaidTotal().Add(dist.RoundingRemainder).Equal(dist.TotalAmount))
}

func TestClaim_Rules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dist := f.create(t, d(1000))

	_, err := f.svc.Claim(ctx, dist.ID, "alice")
	assert.Equal(t, "INVALID_STATE", errors.CodeOf(err), "pending distributions cannot be claimed")

	_, err = f.svc.Execute(ctx, ledgertest.Admin, dist.ID)
	require.NoError(t, err)

	_, err = f.svc.Claim(ctx, dist.ID, "carol")
	assert.Equal(t, "RECIPIENT_NOT_FOUND", errors.CodeOf(err))

	_, err = f.svc.Claim(ctx, dist.ID, "alice")
	require.NoError(t, err)
	_, err = f.svc.Claim(ctx, dist.ID, "alice")
	assert.Equal(t, "ALREADY_CLAIMED", errors.CodeOf(err))

	h := f.env.Holding(t, "alice", f.pool.ID)
	assert.True(t, h.ClaimedDividends.Equal(d(300)))

	records, err := f.env.Tx.Repos().Holdings.ListDividends(ctx, h.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, holding.DividendClaimed, records[0].Status)
}

func TestClaim_ConcurrentClaimsSucceedOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dist := f.create(t, d(1000))
	_, err := f.svc.Execute(ctx, ledgertest.Admin, dist.ID)
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.Claim(ctx, dist.ID, "bob"); err == nil {
				mu.Lock()
				success++
				mu.Unlock()
			} else {
				assert.Equal(t, "ALREADY_CLAIMED", errors.CodeOf(err))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, success)
	assert.True(t, f.env.Holding(t, "bob", f.pool.ID).ClaimedDividends.Equal(d(700)))
}

func TestExecute_ConcurrentCallsAccrueOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dist := f.create(t, d(1000))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
		codes   []string
	)
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Execute(ctx, ledgertest.Admin, dist.ID)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				success++
				return
			}
			codes = append(codes, errors.CodeOf(err))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, success)
	require.Len(t, codes, 1)
	assert.Contains(t, []string{"LOCK_HELD", "INVALID_STATE"}, codes[0])

	h := f.env.Holding(t, "alice", f.pool.ID)
	assert.True(t, h.AccruedDividends.Equal(d(300)))
	records, err := f.env.Tx.Repos().Holdings.ListDividends(ctx, h.ID)
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.True(t, f.env.Pool(t, f.pool.ID).TotalDividendsDistributed.Equal(d(1000)))
}

func TestExecute_NotDue(t *testing.T) {
	f := newFixture(t)
	dist, err := f.svc.Create(context.Background(), ledgertest.Admin, dividend.CreateInput{
		PoolID:           f.pool.ID,
		TotalAmount:      d(100),
		RecordDate:       f.recorded,
		DistributionDate: time.Now().Add(24 * time.Hour),
	})
	require.NoError(t, err)

	_, err = f.svc.Execute(context.Background(), ledgertest.Admin, dist.ID)
	assert.Equal(t, "INVALID_STATE", errors.CodeOf(err))

	stored, err := f.svc.Get(context.Background(), dist.ID)
	require.NoError(t, err)
	assert.Equal(t, distribution.StatusPending, stored.Status)
}

func TestExecute_SettlementFailureStillDistributes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dist := f.create(t, d(1000))

	f.env.Adapter.FailWith(func(op string) error {
		if op == "currency_transfer" {
			return errors.New("treasury offline")
		}
		return nil
	})

	res, err := f.svc.Execute(ctx, ledgertest.Admin, dist.ID)
	require.NoError(t, err)
	assert.Equal(t, distribution.StatusDistributed, res.Distribution.Status)
	assert.Equal(t, 2, res.Failed)

	stored, err := f.svc.Get(ctx, dist.ID)
	require.NoError(t, err)
	failures := 0
	for _, e := range stored.Audit {
		if e.Action == distribution.ActionSettlementFailed {
			failures++
		}
	}
	assert.Equal(t, 2, failures)
}

func TestCreate_Rules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, "alice", dividend.CreateInput{PoolID: f.pool.ID, TotalAmount: d(10), RecordDate: f.recorded})
	assert.Equal(t, "FORBIDDEN", errors.CodeOf(err))

	_, err = f.svc.Create(ctx, ledgertest.Admin, dividend.CreateInput{PoolID: f.pool.ID, TotalAmount: d(0), RecordDate: f.recorded})
	assert.Equal(t, "VALIDATION_ERROR", errors.CodeOf(err))

	_, err = f.svc.Create(ctx, ledgertest.Admin, dividend.CreateInput{
		PoolID:           f.pool.ID,
		TotalAmount:      d(10),
		RecordDate:       f.recorded,
		DistributionDate: f.recorded.Add(-time.Hour),
	})
	assert.Equal(t, "VALIDATION_ERROR", errors.CodeOf(err))

	_, err = f.svc.Create(ctx, ledgertest.Admin, dividend.CreateInput{
		PoolID:      f.pool.ID,
		TotalAmount: d(10),
		RecordDate:  f.recorded.Add(-365 * 24 * time.Hour),
	})
	assert.Equal(t, "NO_ELIGIBLE_HOLDERS", errors.CodeOf(err))

	_, err = f.svc.Create(ctx, ledgertest.Admin, dividend.CreateInput{PoolID: uuid.New(), TotalAmount: d(10), RecordDate: f.recorded})
	assert.Equal(t, "POOL_NOT_FOUND", errors.CodeOf(err))
}

func TestCreate_BumpsPoolVersion(t *testing.T) {
	f := newFixture(t)
	before := f.env.Pool(t, f.pool.ID).Version

	f.create(t, d(100))

	assert.Greater(t, f.env.Pool(t, f.pool.ID).Version, before)
}

func TestCancel_OnlyPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pending := f.create(t, d(100))
	cancelled, err := f.svc.Cancel(ctx, ledgertest.Admin, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, distribution.StatusCancelled, cancelled.Status)

	_, err = f.svc.Execute(ctx, ledgertest.Admin, pending.ID)
	assert.Equal(t, "INVALID_STATE", errors.CodeOf(err))

	executed := f.create(t, d(100))
	_, err = f.svc.Execute(ctx, ledgertest.Admin, executed.ID)
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, ledgertest.Admin, executed.ID)
	assert.Equal(t, "INVALID_STATE", errors.CodeOf(err))
}

func TestRetryExecution_RequiresDistributing(t *testing.T) {
	f := newFixture(t)
	dist := f.create(t, d(100))

	_, err := f.svc.RetryExecution(context.Background(), ledgertest.Admin, dist.ID)
	assert.Equal(t, "INVALID_STATE", errors.CodeOf(err))
}
