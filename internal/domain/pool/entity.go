package pool

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"rwaledger/pkg/errors"
)

// Pool is a collection of underlying assets represented by a fungible token supply
type Pool struct {
	ID          uuid.UUID `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Symbol      string    `db:"symbol" json:"symbol"`
	Description string    `db:"description" json:"description"`

	Status PoolStatus `db:"status" json:"status"`

	// Economics
	TokenSupply       decimal.Decimal `db:"token_supply" json:"token_supply"`
	TokenPrice        decimal.Decimal `db:"token_price" json:"token_price"` // current price per token
	MinimumInvestment decimal.Decimal `db:"minimum_investment" json:"minimum_investment"`

	// Aggregates, equal to the sum over the pool's holdings
	TotalInvested             decimal.Decimal `db:"total_invested" json:"total_invested"`
	TotalInvestors            int64           `db:"total_investors" json:"total_investors"`
	TotalTokensIssued         decimal.Decimal `db:"total_tokens_issued" json:"total_tokens_issued"`
	TotalDividendsDistributed decimal.Decimal `db:"total_dividends_distributed" json:"total_dividends_distributed"`

	// Settlement network binding, empty until launch
	ExternalTokenRef string `db:"external_token_ref" json:"external_token_ref"`

	Assets UnderlyingAssets `db:"assets" json:"assets"`

	CreatedBy  string     `db:"created_by" json:"created_by"`
	LaunchedAt *time.Time `db:"launched_at" json:"launched_at"`
	Version    int64      `db:"version" json:"version"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`
}

// RemainingSupply returns tokens not yet issued to any holder
func (p *Pool) RemainingSupply() decimal.Decimal {
	return p.TokenSupply.Sub(p.TotalTokensIssued)
}

// HasValidatedAsset reports whether at least one underlying asset passed validation
func (p *Pool) HasValidatedAsset() bool {
	for _, a := range p.Assets {
		if a.Validated {
			return true
		}
	}
	return false
}

// TokensFor returns floor(cash / price)
func (p *Pool) TokensFor(cash decimal.Decimal) decimal.Decimal {
	if !p.TokenPrice.IsPositive() {
		return decimal.Zero
	}
	return cash.Div(p.TokenPrice).Floor()
}

// RecordIssuance adds issued tokens and cash to the aggregates.
// newInvestor is true when the issuance created the holder's first position.
func (p *Pool) RecordIssuance(tokens, cash decimal.Decimal, newInvestor bool) error {
	if p.TotalTokensIssued.Add(tokens).GreaterThan(p.TokenSupply) {
		return errors.Wrapf(errors.ErrSupplyExceeded, "pool %s: issued %s + %s > supply %s",
			p.ID, p.TotalTokensIssued, tokens, p.TokenSupply)
	}
	p.TotalTokensIssued = p.TotalTokensIssued.Add(tokens)
	p.TotalInvested = p.TotalInvested.Add(cash)
	if newInvestor {
		p.TotalInvestors++
	}
	return nil
}

// RecordHolderChange applies a cost basis delta and new holders from a secondary transfer
func (p *Pool) RecordHolderChange(investedDelta decimal.Decimal, newHolders int64) {
	p.TotalInvested = p.TotalInvested.Add(investedDelta)
	p.TotalInvestors += newHolders
}

// RecordDividends adds an executed distribution's paid total
func (p *Pool) RecordDividends(amount decimal.Decimal) {
	p.TotalDividendsDistributed = p.TotalDividendsDistributed.Add(amount)
}

// StatsCacheKey is the cache key of the pool's stats read model computed
// under generation gen
func StatsCacheKey(id uuid.UUID, gen string) string {
	return "pool:stats:" + id.String() + ":" + gen
}

// StatsGenerationKey holds the pool's current stats generation
func StatsGenerationKey(id uuid.UUID) string {
	return "pool:stats-gen:" + id.String()
}

// TransitionTo moves the pool to next if the lifecycle allows it
func (p *Pool) TransitionTo(next PoolStatus) error {
	if !p.Status.CanTransitionTo(next) {
		return errors.Wrapf(errors.ErrInvalidState, "pool %s: %s -> %s", p.ID, p.Status, next)
	}
	p.Status = next
	return nil
}

// UnderlyingAsset is a real-world asset backing the pool
type UnderlyingAsset struct {
	ID        uuid.UUID       `json:"id"`
	Name      string          `json:"name"`
	Valuation decimal.Decimal `json:"valuation"`
	Validated bool            `json:"validated"`
}

// UnderlyingAssets is stored as a JSONB column
type UnderlyingAssets []UnderlyingAsset

// Value implements driver.Valuer
func (a UnderlyingAssets) Value() (driver.Value, error) {
	if a == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(a)
}

// Scan implements sql.Scanner
func (a *UnderlyingAssets) Scan(src interface{}) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*a = UnderlyingAssets{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return errors.Newf("unsupported assets column type %T", src)
	}
	return json.Unmarshal(data, a)
}

// PoolStatus defines the pool lifecycle status
type PoolStatus string

const (
	PoolDraft     PoolStatus = "draft"
	PoolActive    PoolStatus = "active"
	PoolClosed    PoolStatus = "closed"
	PoolSuspended PoolStatus = "suspended"
	PoolMatured   PoolStatus = "matured"
)

var transitions = map[PoolStatus][]PoolStatus{
	PoolDraft:     {PoolActive},
	PoolActive:    {PoolClosed, PoolSuspended, PoolMatured},
	PoolSuspended: {PoolActive, PoolClosed, PoolMatured},
	PoolClosed:    {PoolMatured},
}

// Valid checks if pool status is valid
func (s PoolStatus) Valid() bool {
	switch s {
	case PoolDraft, PoolActive, PoolClosed, PoolSuspended, PoolMatured:
		return true
	}
	return false
}

// CanTransitionTo reports whether s -> next is a lifecycle edge
func (s PoolStatus) CanTransitionTo(next PoolStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// AcceptsInvestment is true only for active pools
func (s PoolStatus) AcceptsInvestment() bool {
	return s == PoolActive
}

// IsTerminal returns true for matured pools
func (s PoolStatus) IsTerminal() bool {
	return s == PoolMatured
}

// String returns string representation
func (s PoolStatus) String() string {
	return string(s)
}
