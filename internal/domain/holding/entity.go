package holding

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"rwaledger/internal/domain/settlement"
	"rwaledger/pkg/errors"
)

var hundred = decimal.NewFromInt(100)

// Holding is one holder's position in one pool
type Holding struct {
	ID       uuid.UUID `db:"id" json:"id"`
	HolderID string    `db:"holder_id" json:"holder_id"`
	PoolID   uuid.UUID `db:"pool_id" json:"pool_id"`

	// Balances
	TotalTokens     decimal.Decimal `db:"total_tokens" json:"total_tokens"`
	AvailableTokens decimal.Decimal `db:"available_tokens" json:"available_tokens"`
	LockedTokens    decimal.Decimal `db:"locked_tokens" json:"locked_tokens"`

	// Cost basis
	TotalInvested   decimal.Decimal `db:"total_invested" json:"total_invested"`
	AverageBuyPrice decimal.Decimal `db:"average_buy_price" json:"average_buy_price"`

	// Valuation
	CurrentPrice  decimal.Decimal `db:"current_price" json:"current_price"`
	CurrentValue  decimal.Decimal `db:"current_value" json:"current_value"`
	UnrealizedPnL decimal.Decimal `db:"unrealized_pnl" json:"unrealized_pnl"`
	RealizedPnL   decimal.Decimal `db:"realized_pnl" json:"realized_pnl"`
	TotalPnL      decimal.Decimal `db:"total_pnl" json:"total_pnl"`
	ROI           decimal.Decimal `db:"roi" json:"roi"` // percent

	// Dividends
	AccruedDividends   decimal.Decimal `db:"accrued_dividends" json:"accrued_dividends"`
	ClaimedDividends   decimal.Decimal `db:"claimed_dividends" json:"claimed_dividends"`
	UnclaimedDividends decimal.Decimal `db:"unclaimed_dividends" json:"unclaimed_dividends"`

	FirstInvestmentDate *time.Time `db:"first_investment_date" json:"first_investment_date"`
	LastActivityAt      time.Time  `db:"last_activity_at" json:"last_activity_at"`
	IsActive            bool       `db:"is_active" json:"is_active"`

	Version   int64     `db:"version" json:"version"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// New creates an empty holding for (holderID, poolID)
func New(holderID string, poolID uuid.UUID, now time.Time) *Holding {
	return &Holding{
		ID:             uuid.New(),
		HolderID:       holderID,
		PoolID:         poolID,
		LastActivityAt: now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// ApplyInvestment adds purchased tokens at pricePerToken for cashAmount
func (h *Holding) ApplyInvestment(tokens, pricePerToken, cashAmount decimal.Decimal, at time.Time) error {
	if !tokens.IsPositive() {
		return errors.NewValidationError("tokens", "must be positive", tokens)
	}
	if cashAmount.IsNegative() {
		return errors.NewValidationError("cash_amount", "must not be negative", cashAmount)
	}
	h.acquire(tokens, cashAmount, at)
	h.Revalue(pricePerToken)
	return nil
}

// ApplyTransferIn credits tokens received from another holder.
// Cost basis for the receiver is the pool price at the time of transfer.
func (h *Holding) ApplyTransferIn(tokens, price decimal.Decimal, at time.Time) error {
	if !tokens.IsPositive() {
		return errors.NewValidationError("tokens", "must be positive", tokens)
	}
	h.acquire(tokens, tokens.Mul(price), at)
	h.Revalue(price)
	return nil
}

// ApplyMint credits tokens allocated from unissued supply, with zero cost basis
func (h *Holding) ApplyMint(tokens, price decimal.Decimal, at time.Time) error {
	if !tokens.IsPositive() {
		return errors.NewValidationError("tokens", "must be positive", tokens)
	}
	h.acquire(tokens, decimal.Zero, at)
	h.Revalue(price)
	return nil
}

// ApplyTransferOut debits available tokens.
// The average price is kept; the removed cost basis is realized against price.
func (h *Holding) ApplyTransferOut(tokens, price decimal.Decimal, at time.Time) error {
	if !tokens.IsPositive() {
		return errors.NewValidationError("tokens", "must be positive", tokens)
	}
	if h.AvailableTokens.LessThan(tokens) {
		return errors.Wrapf(errors.ErrInsufficientBalance, "available %s < %s", h.AvailableTokens, tokens)
	}

	costBasis := h.AverageBuyPrice.Mul(tokens)
	h.RealizedPnL = h.RealizedPnL.Add(price.Sub(h.AverageBuyPrice).Mul(tokens))
	h.TotalInvested = decimal.Max(h.TotalInvested.Sub(costBasis), decimal.Zero)
	h.TotalTokens = h.TotalTokens.Sub(tokens)
	h.AvailableTokens = h.AvailableTokens.Sub(tokens)
	if h.TotalTokens.IsZero() {
		h.TotalInvested = decimal.Zero
	}

	h.touch(at)
	h.Revalue(price)
	return nil
}

// ApplyDividendAccrual credits an unclaimed dividend
func (h *Holding) ApplyDividendAccrual(amount decimal.Decimal, at time.Time) error {
	if amount.IsNegative() {
		return errors.NewValidationError("amount", "must not be negative", amount)
	}
	h.AccruedDividends = h.AccruedDividends.Add(amount)
	h.UnclaimedDividends = h.UnclaimedDividends.Add(amount)
	h.touch(at)
	return nil
}

// ApplyDividendClaim moves amount from unclaimed to claimed
func (h *Holding) ApplyDividendClaim(amount decimal.Decimal, at time.Time) error {
	if amount.IsNegative() {
		return errors.NewValidationError("amount", "must not be negative", amount)
	}
	if h.UnclaimedDividends.LessThan(amount) {
		return errors.Wrapf(errors.ErrInsufficientBalance, "unclaimed dividends %s < %s", h.UnclaimedDividends, amount)
	}
	h.UnclaimedDividends = h.UnclaimedDividends.Sub(amount)
	h.ClaimedDividends = h.ClaimedDividends.Add(amount)
	h.touch(at)
	return nil
}

// ApplyStake locks available tokens
func (h *Holding) ApplyStake(amount decimal.Decimal, at time.Time) error {
	if !amount.IsPositive() {
		return errors.NewValidationError("amount", "must be positive", amount)
	}
	if h.AvailableTokens.LessThan(amount) {
		return errors.Wrapf(errors.ErrInsufficientBalance, "available %s < %s", h.AvailableTokens, amount)
	}
	h.AvailableTokens = h.AvailableTokens.Sub(amount)
	h.LockedTokens = h.LockedTokens.Add(amount)
	h.touch(at)
	return nil
}

// ApplyUnstake releases locked tokens
func (h *Holding) ApplyUnstake(amount decimal.Decimal, at time.Time) error {
	if !amount.IsPositive() {
		return errors.NewValidationError("amount", "must be positive", amount)
	}
	if h.LockedTokens.LessThan(amount) {
		return errors.Wrapf(errors.ErrInsufficientBalance, "locked %s < %s", h.LockedTokens, amount)
	}
	h.LockedTokens = h.LockedTokens.Sub(amount)
	h.AvailableTokens = h.AvailableTokens.Add(amount)
	h.touch(at)
	return nil
}

// Revalue recomputes valuation fields at currentPrice
func (h *Holding) Revalue(currentPrice decimal.Decimal) {
	h.CurrentPrice = currentPrice
	h.CurrentValue = h.TotalTokens.Mul(currentPrice)
	h.UnrealizedPnL = h.CurrentValue.Sub(h.TotalInvested)
	h.TotalPnL = h.UnrealizedPnL.Add(h.RealizedPnL)
	if h.TotalInvested.IsPositive() {
		h.ROI = h.TotalPnL.Div(h.TotalInvested).Mul(hundred).Round(4)
	} else {
		h.ROI = decimal.Zero
	}
	h.refreshActive()
}

// CheckBalances verifies total == available + locked and that no balance is negative
func (h *Holding) CheckBalances() error {
	if h.AvailableTokens.IsNegative() || h.LockedTokens.IsNegative() || h.UnclaimedDividends.IsNegative() {
		return errors.Newf("holding %s: negative balance", h.ID)
	}
	if !h.TotalTokens.Equal(h.AvailableTokens.Add(h.LockedTokens)) {
		return errors.Newf("holding %s: total %s != available %s + locked %s",
			h.ID, h.TotalTokens, h.AvailableTokens, h.LockedTokens)
	}
	return nil
}

// EligibleAt reports whether the holding takes part in a distribution with recordDate
func (h *Holding) EligibleAt(recordDate time.Time) bool {
	return h.TotalTokens.IsPositive() &&
		h.FirstInvestmentDate != nil &&
		!h.FirstInvestmentDate.After(recordDate)
}

func (h *Holding) acquire(tokens, cost decimal.Decimal, at time.Time) {
	newTotal := h.TotalTokens.Add(tokens)
	newInvested := h.TotalInvested.Add(cost)

	h.AverageBuyPrice = newInvested.Div(newTotal)
	h.TotalTokens = newTotal
	h.AvailableTokens = h.AvailableTokens.Add(tokens)
	h.TotalInvested = newInvested
	if h.FirstInvestmentDate == nil {
		first := at
		h.FirstInvestmentDate = &first
	}
	h.touch(at)
}

func (h *Holding) touch(at time.Time) {
	h.LastActivityAt = at
	h.UpdatedAt = at
	h.refreshActive()
}

func (h *Holding) refreshActive() {
	h.IsActive = h.TotalTokens.IsPositive() || h.UnclaimedDividends.IsPositive()
}

// TransferRecord is an append-only history entry.
// Only the settlement fields change after creation.
type TransferRecord struct {
	ID        uuid.UUID    `db:"id" json:"id"`
	HoldingID uuid.UUID    `db:"holding_id" json:"holding_id"`
	PoolID    uuid.UUID    `db:"pool_id" json:"pool_id"`
	Type      TransferType `db:"type" json:"type"`

	From       string          `db:"from_holder" json:"from_holder"`
	To         string          `db:"to_holder" json:"to_holder"`
	Amount     decimal.Decimal `db:"amount" json:"amount"`
	Price      decimal.Decimal `db:"price" json:"price"`
	CashAmount decimal.Decimal `db:"cash_amount" json:"cash_amount"`

	SettlementID     *uuid.UUID        `db:"settlement_id" json:"settlement_id"`
	SettlementTxRef  string            `db:"settlement_tx_ref" json:"settlement_tx_ref"`
	SettlementStatus settlement.Status `db:"settlement_status" json:"settlement_status"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// NewTransferRecord builds a record not yet attached to a holding
func NewTransferRecord(poolID uuid.UUID, t TransferType, from, to string, amount, price, cash decimal.Decimal, at time.Time) TransferRecord {
	return TransferRecord{
		ID:         uuid.New(),
		PoolID:     poolID,
		Type:       t,
		From:       from,
		To:         to,
		Amount:     amount,
		Price:      price,
		CashAmount: cash,
		CreatedAt:  at,
	}
}

// AttachSettlement links the record to its pending settlement leg
func (r *TransferRecord) AttachSettlement(id uuid.UUID) {
	r.SettlementID = &id
	r.SettlementStatus = settlement.StatusPending
}

// For returns a copy of the record owned by holdingID
func (r TransferRecord) For(holdingID uuid.UUID) *TransferRecord {
	r.HoldingID = holdingID
	return &r
}

// TransferType categorizes history entries
type TransferType string

const (
	TransferInvestment TransferType = "investment"
	TransferDividend   TransferType = "dividend"
	TransferTrade      TransferType = "trade"
	TransferStake      TransferType = "stake"
	TransferUnstake    TransferType = "unstake"
	TransferMint       TransferType = "mint"
	TransferBurn       TransferType = "burn"
)

// DividendRecord is one accrued dividend, unique per (holding, distribution)
type DividendRecord struct {
	ID             uuid.UUID       `db:"id" json:"id"`
	HoldingID      uuid.UUID       `db:"holding_id" json:"holding_id"`
	DistributionID uuid.UUID       `db:"distribution_id" json:"distribution_id"`
	Amount         decimal.Decimal `db:"amount" json:"amount"`
	Status         DividendStatus  `db:"status" json:"status"`
	AccruedAt      time.Time       `db:"accrued_at" json:"accrued_at"`
	ClaimedAt      *time.Time      `db:"claimed_at" json:"claimed_at"`
}

// DividendStatus of an accrued dividend
type DividendStatus string

const (
	DividendAccrued DividendStatus = "accrued"
	DividendClaimed DividendStatus = "claimed"
)

// StakeRecord tracks one lock of available tokens
type StakeRecord struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	HoldingID    uuid.UUID       `db:"holding_id" json:"holding_id"`
	Amount       decimal.Decimal `db:"amount" json:"amount"`
	DurationDays int             `db:"duration_days" json:"duration_days"`
	Status       StakeStatus     `db:"status" json:"status"`
	StakedAt     time.Time       `db:"staked_at" json:"staked_at"`
	UnlocksAt    time.Time       `db:"unlocks_at" json:"unlocks_at"`
	UnstakedAt   *time.Time      `db:"unstaked_at" json:"unstaked_at"`
}

// NewStakeRecord builds an active stake record
func NewStakeRecord(holdingID uuid.UUID, amount decimal.Decimal, durationDays int, at time.Time) *StakeRecord {
	return &StakeRecord{
		ID:           uuid.New(),
		HoldingID:    holdingID,
		Amount:       amount,
		DurationDays: durationDays,
		Status:       StakeActive,
		StakedAt:     at,
		UnlocksAt:    at.AddDate(0, 0, durationDays),
	}
}

// StakeStatus of a stake record
type StakeStatus string

const (
	StakeActive   StakeStatus = "active"
	StakeUnstaked StakeStatus = "unstaked"
)
