package pool

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"rwaledger/internal/domain/distribution"
	"rwaledger/internal/domain/ledger"
	"rwaledger/internal/domain/pool"
	"rwaledger/internal/domain/settlement"
	"rwaledger/pkg/errors"
)

// Stats is the cached read model behind GetPoolStats
type Stats struct {
	PoolID uuid.UUID       `json:"pool_id"`
	Name   string          `json:"name"`
	Symbol string          `json:"symbol"`
	Status pool.PoolStatus `json:"status"`

	TokenSupply     decimal.Decimal `json:"token_supply"`
	TokensIssued    decimal.Decimal `json:"tokens_issued"`
	RemainingSupply decimal.Decimal `json:"remaining_supply"`
	TokenPrice      decimal.Decimal `json:"token_price"`
	MarketValue     decimal.Decimal `json:"market_value"`

	TotalInvested  decimal.Decimal `json:"total_invested"`
	TotalInvestors int64           `json:"total_investors"`
	ActiveHolders  int             `json:"active_holders"`
	LockedTokens   decimal.Decimal `json:"locked_tokens"`

	DividendsDistributed decimal.Decimal             `json:"dividends_distributed"`
	DividendsClaimed     decimal.Decimal             `json:"dividends_claimed"`
	DividendsUnclaimed   decimal.Decimal             `json:"dividends_unclaimed"`
	Distributions        map[distribution.Status]int `json:"distributions"`

	Settlements map[settlement.Status]int64 `json:"settlements"`

	ComputedAt time.Time `json:"computed_at"`
}

// statsGenerationTTL outlives any stats TTL, so an expired generation never
// resurrects stats cached under the initial one
const statsGenerationTTL = 24 * time.Hour

// InvalidateStats starts a new stats generation for the pool. Call it after
// the write commits; stats computed under an earlier generation are never served.
func InvalidateStats(ctx context.Context, cache ledger.Cache, poolID uuid.UUID) error {
	return cache.Set(ctx, pool.StatsGenerationKey(poolID), uuid.NewString(), statsGenerationTTL)
}

func statsGeneration(ctx context.Context, cache ledger.Cache, poolID uuid.UUID) (string, error) {
	var gen string
	err := cache.Get(ctx, pool.StatsGenerationKey(poolID), &gen)
	if errors.Is(err, errors.ErrNotFound) {
		return "0", nil
	}
	return gen, err
}

// GetStats returns the pool's stats, served from cache when fresh. The
// generation is read before the ledger, so a write committing mid-compute
// moves readers to a new key and the snapshot cached here is never read.
func (s *Service) GetStats(ctx context.Context, poolID uuid.UUID) (*Stats, error) {
	gen, err := statsGeneration(ctx, s.cache, poolID)
	if err != nil {
		s.log.Warnw("Pool stats generation read failed", "pool_id", poolID, "error", err)
		return s.computeStats(ctx, poolID)
	}
	key := pool.StatsCacheKey(poolID, gen)

	var cached Stats
	err = s.cache.Get(ctx, key, &cached)
	if err == nil {
		return &cached, nil
	}
	if !errors.Is(err, errors.ErrNotFound) {
		s.log.Warnw("Pool stats cache read failed", "pool_id", poolID, "error", err)
	}

	st, err := s.computeStats(ctx, poolID)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, key, st, s.cfg.StatsCacheTTL); err != nil {
		s.log.Warnw("Pool stats cache write failed", "pool_id", poolID, "error", err)
	}
	return st, nil
}

func (s *Service) computeStats(ctx context.Context, poolID uuid.UUID) (*Stats, error) {
	repos := s.ledger.Repos()

	p, err := repos.Pools.GetByID(ctx, poolID)
	if err != nil {
		return nil, err
	}
	hs, err := repos.Holdings.ListByPool(ctx, poolID)
	if err != nil {
		return nil, errors.Wrap(err, "list holdings")
	}
	ds, err := repos.Distributions.ListByPool(ctx, poolID)
	if err != nil {
		return nil, errors.Wrap(err, "list distributions")
	}
	legs, err := repos.Settlements.CountByPool(ctx, poolID)
	if err != nil {
		return nil, errors.Wrap(err, "count settlements")
	}

	st := &Stats{
		PoolID:               p.ID,
		Name:                 p.Name,
		Symbol:               p.Symbol,
		Status:               p.Status,
		TokenSupply:          p.TokenSupply,
		TokensIssued:         p.TotalTokensIssued,
		RemainingSupply:      p.RemainingSupply(),
		TokenPrice:           p.TokenPrice,
		MarketValue:          p.TotalTokensIssued.Mul(p.TokenPrice),
		TotalInvested:        p.TotalInvested,
		TotalInvestors:       p.TotalInvestors,
		LockedTokens:         decimal.Zero,
		DividendsDistributed: p.TotalDividendsDistributed,
		DividendsClaimed:     decimal.Zero,
		DividendsUnclaimed:   decimal.Zero,
		Distributions:        make(map[distribution.Status]int),
		Settlements:          legs,
		ComputedAt:           time.Now().UTC(),
	}
	for _, h := range hs {
		if h.IsActive {
			st.ActiveHolders++
		}
		st.LockedTokens = st.LockedTokens.Add(h.LockedTokens)
	}
	for _, d := range ds {
		st.Distributions[d.Status]++
		st.DividendsClaimed = st.DividendsClaimed.Add(d.TotalClaimed)
		st.DividendsUnclaimed = st.DividendsUnclaimed.Add(d.TotalUnclaimed)
	}
	return st, nil
}
