// Package holdings is the single writer of holding state. Every method runs
// against the repositories of the caller's transaction and updates the pool
// aggregates in memory; the caller persists the pool in the same transaction.
package holdings

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"rwaledger/internal/domain/distribution"
	"rwaledger/internal/domain/holding"
	"rwaledger/internal/domain/ledger"
	"rwaledger/internal/domain/pool"
	"rwaledger/internal/metrics"
	"rwaledger/pkg/errors"
	"rwaledger/pkg/logger"
	"rwaledger/pkg/retry"
)

// Ledger applies balance and cost basis changes to holdings
type Ledger struct {
	tx    ledger.Transactor
	retry *retry.Policy
	log   *logger.Logger
}

// NewLedger creates a holdings ledger. conflictRetries bounds how often a
// transaction that lost an optimistic version race is replayed.
func NewLedger(tx ledger.Transactor, conflictRetries int, log *logger.Logger) *Ledger {
	return &Ledger{
		tx:    tx,
		retry: retry.New(retry.Config{MaxRetries: conflictRetries, Retryable: IsContention}),
		log:   log.Component("holdings_ledger"),
	}
}

// Atomic runs fn in one transaction and replays the whole transaction when it
// loses a version race or a concurrent insert of the same holding.
func (l *Ledger) Atomic(ctx context.Context, op string, fn func(ctx context.Context, repos ledger.Repositories) error) error {
	return l.retry.Do(ctx, func() error {
		err := l.tx.WithinTx(ctx, fn)
		if IsContention(err) {
			metrics.RecordVersionConflict(op)
			l.log.Debugw("Ledger transaction lost a race, retrying", "operation", op, "error", err)
		}
		return err
	})
}

// Repos returns repositories for reads outside a transaction
func (l *Ledger) Repos() ledger.Repositories {
	return l.tx.Repos()
}

// IsContention is true for errors a replay of the transaction may resolve
func IsContention(err error) bool {
	return retry.IsConflict(err) || errors.Is(err, errors.ErrAlreadyExists)
}

// Invest credits rec.Amount tokens bought for rec.CashAmount to rec.To
// and records the issuance on p. Fails with ErrSupplyExceeded past the pool supply.
func (l *Ledger) Invest(ctx context.Context, repos ledger.Repositories, p *pool.Pool, rec holding.TransferRecord) (*holding.Holding, error) {
	h, created, err := l.load(ctx, repos, rec.To, p.ID, rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := h.ApplyInvestment(rec.Amount, rec.Price, rec.CashAmount, rec.CreatedAt); err != nil {
		return nil, err
	}
	if err := p.RecordIssuance(rec.Amount, rec.CashAmount, created); err != nil {
		return nil, err
	}
	if err := l.save(ctx, repos, h, created); err != nil {
		return nil, err
	}
	if err := repos.Holdings.AppendTransfer(ctx, rec.For(h.ID)); err != nil {
		return nil, errors.Wrap(err, "append investment record")
	}
	return h, nil
}

// Mint allocates unissued supply to rec.To with zero cost basis
func (l *Ledger) Mint(ctx context.Context, repos ledger.Repositories, p *pool.Pool, rec holding.TransferRecord) (*holding.Holding, error) {
	h, created, err := l.load(ctx, repos, rec.To, p.ID, rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := h.ApplyMint(rec.Amount, p.TokenPrice, rec.CreatedAt); err != nil {
		return nil, err
	}
	if err := p.RecordIssuance(rec.Amount, decimal.Zero, created); err != nil {
		return nil, err
	}
	if err := l.save(ctx, repos, h, created); err != nil {
		return nil, err
	}
	if err := repos.Holdings.AppendTransfer(ctx, rec.For(h.ID)); err != nil {
		return nil, errors.Wrap(err, "append mint record")
	}
	return h, nil
}

// Transfer moves rec.Amount available tokens from rec.From to rec.To at the pool's
// current price. Both holdings get the same record and are revalued.
func (l *Ledger) Transfer(ctx context.Context, repos ledger.Repositories, p *pool.Pool, rec holding.TransferRecord) (from, to *holding.Holding, err error) {
	from, err = repos.Holdings.GetByHolderAndPool(ctx, rec.From, p.ID)
	if errors.Is(err, errors.ErrHoldingNotFound) {
		return nil, nil, errors.Wrapf(errors.ErrInsufficientBalance, "holder %s has no tokens in pool %s", rec.From, p.ID)
	}
	if err != nil {
		return nil, nil, errors.Wrap(err, "load sender holding")
	}

	to, created, err := l.load(ctx, repos, rec.To, p.ID, rec.CreatedAt)
	if err != nil {
		return nil, nil, err
	}

	fromBasis, toBasis := from.TotalInvested, to.TotalInvested
	if err := from.ApplyTransferOut(rec.Amount, p.TokenPrice, rec.CreatedAt); err != nil {
		return nil, nil, err
	}
	if err := to.ApplyTransferIn(rec.Amount, p.TokenPrice, rec.CreatedAt); err != nil {
		return nil, nil, err
	}

	delta := from.TotalInvested.Sub(fromBasis).Add(to.TotalInvested.Sub(toBasis))
	var newHolders int64
	if created {
		newHolders = 1
	}
	p.RecordHolderChange(delta, newHolders)

	if err := l.save(ctx, repos, from, false); err != nil {
		return nil, nil, err
	}
	if err := l.save(ctx, repos, to, created); err != nil {
		return nil, nil, err
	}
	for _, h := range []*holding.Holding{from, to} {
		if err := repos.Holdings.AppendTransfer(ctx, rec.For(h.ID)); err != nil {
			return nil, nil, errors.Wrap(err, "append trade record")
		}
	}
	return from, to, nil
}

// AccrueDividend credits r's entitlement once per (holding, distribution).
// It returns false when the dividend was already accrued. A non-nil
// settlementID links the history record to the payout leg.
func (l *Ledger) AccrueDividend(ctx context.Context, repos ledger.Repositories, r distribution.Recipient, settlementID *uuid.UUID, at time.Time) (bool, error) {
	err := repos.Holdings.AppendDividend(ctx, &holding.DividendRecord{
		ID:             uuid.New(),
		HoldingID:      r.HoldingID,
		DistributionID: r.DistributionID,
		Amount:         r.DividendAmount,
		Status:         holding.DividendAccrued,
		AccruedAt:      at,
	})
	if errors.Is(err, errors.ErrAlreadyExists) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "append dividend")
	}

	h, err := repos.Holdings.GetByID(ctx, r.HoldingID)
	if err != nil {
		return false, errors.Wrap(err, "load holding")
	}
	if err := h.ApplyDividendAccrual(r.DividendAmount, at); err != nil {
		return false, err
	}
	if err := l.save(ctx, repos, h, false); err != nil {
		return false, err
	}

	rec := holding.NewTransferRecord(h.PoolID, holding.TransferDividend, "", h.HolderID, r.DividendAmount, decimal.Zero, r.DividendAmount, at)
	if settlementID != nil {
		rec.AttachSettlement(*settlementID)
	}
	if err := repos.Holdings.AppendTransfer(ctx, rec.For(h.ID)); err != nil {
		return false, errors.Wrap(err, "append dividend record")
	}
	return true, nil
}

// ClaimDividend moves r's entitlement from unclaimed to claimed
func (l *Ledger) ClaimDividend(ctx context.Context, repos ledger.Repositories, r distribution.Recipient, at time.Time) (*holding.Holding, error) {
	h, err := repos.Holdings.GetByID(ctx, r.HoldingID)
	if err != nil {
		return nil, errors.Wrap(err, "load holding")
	}
	if err := h.ApplyDividendClaim(r.DividendAmount, at); err != nil {
		return nil, err
	}
	if err := l.save(ctx, repos, h, false); err != nil {
		return nil, err
	}
	if err := repos.Holdings.MarkDividendClaimed(ctx, h.ID, r.DistributionID, at); err != nil {
		return nil, errors.Wrap(err, "mark dividend claimed")
	}
	return h, nil
}

// Stake locks amount available tokens for durationDays
func (l *Ledger) Stake(ctx context.Context, repos ledger.Repositories, p *pool.Pool, holderID string, amount decimal.Decimal, durationDays int, at time.Time) (*holding.Holding, *holding.StakeRecord, error) {
	h, err := repos.Holdings.GetByHolderAndPool(ctx, holderID, p.ID)
	if errors.Is(err, errors.ErrHoldingNotFound) {
		return nil, nil, errors.Wrapf(errors.ErrInsufficientBalance, "holder %s has no tokens in pool %s", holderID, p.ID)
	}
	if err != nil {
		return nil, nil, errors.Wrap(err, "load holding")
	}
	if err := h.ApplyStake(amount, at); err != nil {
		return nil, nil, err
	}
	h.Revalue(p.TokenPrice)

	stake := holding.NewStakeRecord(h.ID, amount, durationDays, at)
	if err := repos.Holdings.CreateStake(ctx, stake); err != nil {
		return nil, nil, errors.Wrap(err, "create stake")
	}
	if err := l.save(ctx, repos, h, false); err != nil {
		return nil, nil, err
	}
	rec := holding.NewTransferRecord(p.ID, holding.TransferStake, holderID, holderID, amount, p.TokenPrice, decimal.Zero, at)
	if err := repos.Holdings.AppendTransfer(ctx, rec.For(h.ID)); err != nil {
		return nil, nil, errors.Wrap(err, "append stake record")
	}
	return h, stake, nil
}

// Unstake releases an active stake. Fails with ErrNotActiveOrNotFound
// when the holder has no such active stake in the pool.
func (l *Ledger) Unstake(ctx context.Context, repos ledger.Repositories, p *pool.Pool, holderID string, stakeID uuid.UUID, at time.Time) (*holding.Holding, *holding.StakeRecord, error) {
	h, err := repos.Holdings.GetByHolderAndPool(ctx, holderID, p.ID)
	if errors.Is(err, errors.ErrHoldingNotFound) {
		return nil, nil, errors.Wrapf(errors.ErrNotActiveOrNotFound, "stake %s", stakeID)
	}
	if err != nil {
		return nil, nil, errors.Wrap(err, "load holding")
	}

	stake, err := repos.Holdings.CloseStake(ctx, h.ID, stakeID, at)
	if err != nil {
		return nil, nil, err
	}
	if err := h.ApplyUnstake(stake.Amount, at); err != nil {
		return nil, nil, err
	}
	h.Revalue(p.TokenPrice)
	if err := l.save(ctx, repos, h, false); err != nil {
		return nil, nil, err
	}
	rec := holding.NewTransferRecord(p.ID, holding.TransferUnstake, holderID, holderID, stake.Amount, p.TokenPrice, decimal.Zero, at)
	if err := repos.Holdings.AppendTransfer(ctx, rec.For(h.ID)); err != nil {
		return nil, nil, errors.Wrap(err, "append unstake record")
	}
	return h, stake, nil
}

// Revalue marks every holding of p to the pool's current token price.
// Holdings already at that price are skipped. Returns the number updated.
func (l *Ledger) Revalue(ctx context.Context, repos ledger.Repositories, p *pool.Pool, at time.Time) (int, error) {
	hs, err := repos.Holdings.ListByPool(ctx, p.ID)
	if err != nil {
		return 0, errors.Wrap(err, "list holdings")
	}

	updated := 0
	for _, h := range hs {
		if h.CurrentPrice.Equal(p.TokenPrice) {
			continue
		}
		h.Revalue(p.TokenPrice)
		h.UpdatedAt = at
		if err := repos.Holdings.Update(ctx, h); err != nil {
			return updated, errors.Wrapf(err, "revalue holding %s", h.ID)
		}
		updated++
	}
	return updated, nil
}

// CheckAggregates compares the pool aggregates with the sums over hs.
// Dividend totals lag the holdings while a distribution is executing.
func CheckAggregates(p *pool.Pool, hs []*holding.Holding) error {
	tokens, invested, accrued := decimal.Zero, decimal.Zero, decimal.Zero
	merr := &errors.MultiError{}
	for _, h := range hs {
		if err := h.CheckBalances(); err != nil {
			merr.Add(err)
		}
		tokens = tokens.Add(h.TotalTokens)
		invested = invested.Add(h.TotalInvested)
		accrued = accrued.Add(h.AccruedDividends)
	}

	if !p.TotalTokensIssued.Equal(tokens) {
		merr.Add(errors.Newf("pool %s: tokens issued %s != held %s", p.ID, p.TotalTokensIssued, tokens))
	}
	if p.TotalTokensIssued.GreaterThan(p.TokenSupply) {
		merr.Add(errors.Newf("pool %s: tokens issued %s > supply %s", p.ID, p.TotalTokensIssued, p.TokenSupply))
	}
	if !p.TotalInvested.Equal(invested) {
		merr.Add(errors.Newf("pool %s: total invested %s != holdings %s", p.ID, p.TotalInvested, invested))
	}
	if p.TotalInvestors != int64(len(hs)) {
		merr.Add(errors.Newf("pool %s: investors %d != holdings %d", p.ID, p.TotalInvestors, len(hs)))
	}
	if !p.TotalDividendsDistributed.Equal(accrued) {
		merr.Add(errors.Newf("pool %s: dividends distributed %s != accrued %s", p.ID, p.TotalDividendsDistributed, accrued))
	}
	return merr.ToError()
}

func (l *Ledger) load(ctx context.Context, repos ledger.Repositories, holderID string, poolID uuid.UUID, at time.Time) (*holding.Holding, bool, error) {
	h, err := repos.Holdings.GetByHolderAndPool(ctx, holderID, poolID)
	if err == nil {
		return h, false, nil
	}
	if !errors.Is(err, errors.ErrHoldingNotFound) {
		return nil, false, errors.Wrap(err, "load holding")
	}
	return holding.New(holderID, poolID, at), true, nil
}

func (l *Ledger) save(ctx context.Context, repos ledger.Repositories, h *holding.Holding, created bool) error {
	if err := h.CheckBalances(); err != nil {
		l.log.Errorw("Holding invariant violated", "holding_id", h.ID, "error", err)
		return errors.Wrap(errors.ErrInternal, err.Error())
	}
	if created {
		return errors.Wrap(repos.Holdings.Create(ctx, h), "create holding")
	}
	return errors.Wrap(repos.Holdings.Update(ctx, h), "update holding")
}
