package transfer

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"rwaledger/internal/domain/access"
	"rwaledger/internal/domain/holding"
	"rwaledger/internal/domain/ledger"
	"rwaledger/internal/domain/pool"
	"rwaledger/internal/domain/settlement"
	"rwaledger/internal/metrics"
	"rwaledger/internal/services/holdings"
	poolsvc "rwaledger/internal/services/pool"
	"rwaledger/pkg/errors"
	"rwaledger/pkg/logger"
)

// Settler submits a committed settlement leg
type Settler interface {
	Dispatch(ctx context.Context, s *settlement.Settlement) settlement.Outcome
}

// Service moves tokens between holders and locks them for staking
type Service struct {
	ledger  *holdings.Ledger
	settler Settler
	auth    access.Authorizer
	cache   ledger.Cache
	events  ledger.EventPublisher
	log     *logger.Logger
}

// NewService creates a new transfer service
func NewService(l *holdings.Ledger, settler Settler, auth access.Authorizer, cache ledger.Cache, events ledger.EventPublisher, log *logger.Logger) *Service {
	return &Service{
		ledger:  l,
		settler: settler,
		auth:    auth,
		cache:   cache,
		events:  events,
		log:     log.Component("transfer_service"),
	}
}

// Result is the dual-track outcome of a token movement
type Result struct {
	From       *holding.Holding        `json:"from,omitempty"`
	To         *holding.Holding        `json:"to"`
	Transfer   *holding.TransferRecord `json:"transfer"`
	Settlement settlement.Outcome      `json:"settlement"`
}

// Transfer moves amount available tokens between two holders of an ACTIVE pool
// at the pool's current price.
func (s *Service) Transfer(ctx context.Context, poolID uuid.UUID, from, to string, amount decimal.Decimal) (res *Result, err error) {
	start := time.Now()
	defer func() { metrics.RecordOperation("transfer", errors.CodeOf(err), time.Since(start)) }()

	from, to = strings.TrimSpace(from), strings.TrimSpace(to)
	if from == "" || to == "" {
		return nil, errors.NewValidationError("holder_id", "sender and receiver are required", from+"->"+to)
	}
	if from == to {
		return nil, errors.Wrapf(errors.ErrSameAddress, "holder %s", from)
	}
	if err := wholeTokens(amount); err != nil {
		return nil, err
	}

	var (
		fromH, toH *holding.Holding
		rec        holding.TransferRecord
		leg        *settlement.Settlement
	)
	err = s.ledger.Atomic(ctx, "transfer", func(ctx context.Context, repos ledger.Repositories) error {
		p, err := s.activePool(ctx, repos, poolID)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		rec = holding.NewTransferRecord(p.ID, holding.TransferTrade, from, to, amount, p.TokenPrice, amount.Mul(p.TokenPrice), now)
		leg = settlement.NewTokenTransfer(settlement.PurposeTransfer, p.ID, to, p.ExternalTokenRef, from, to, amount, rec.ID)
		rec.AttachSettlement(leg.ID)

		if fromH, toH, err = s.ledger.Transfer(ctx, repos, p, rec); err != nil {
			return err
		}
		if err := repos.Settlements.Create(ctx, leg); err != nil {
			return errors.Wrap(err, "create settlement")
		}
		p.UpdatedAt = now
		return repos.Pools.Update(ctx, p)
	})
	if err != nil {
		return nil, err
	}

	s.log.Infow("Tokens transferred", "pool_id", poolID, "from", from, "to", to, "amount", amount)
	s.after(ctx, ledger.EventTokensTransferred, rec, "")

	outcome := s.settler.Dispatch(ctx, leg)
	rec.SettlementStatus, rec.SettlementTxRef = outcome.Status, outcome.TxRef
	return &Result{From: fromH, To: toH, Transfer: &rec, Settlement: outcome}, nil
}

// Distribute allocates amount unissued tokens to a holder without cash.
// It is bounded by the pool's remaining supply.
func (s *Service) Distribute(ctx context.Context, actor string, poolID uuid.UUID, to string, amount decimal.Decimal) (res *Result, err error) {
	start := time.Now()
	defer func() { metrics.RecordOperation("distribute_tokens", errors.CodeOf(err), time.Since(start)) }()

	if err := access.RequireElevated(ctx, s.auth, actor); err != nil {
		return nil, err
	}
	to = strings.TrimSpace(to)
	if to == "" {
		return nil, errors.NewValidationError("holder_id", "required", to)
	}
	if err := wholeTokens(amount); err != nil {
		return nil, err
	}

	var (
		h   *holding.Holding
		rec holding.TransferRecord
		leg *settlement.Settlement
	)
	err = s.ledger.Atomic(ctx, "distribute_tokens", func(ctx context.Context, repos ledger.Repositories) error {
		p, err := s.activePool(ctx, repos, poolID)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		rec = holding.NewTransferRecord(p.ID, holding.TransferMint, "", to, amount, p.TokenPrice, decimal.Zero, now)
		leg = settlement.NewTokenTransfer(settlement.PurposeDistribute, p.ID, to, p.ExternalTokenRef, "", to, amount, rec.ID)
		rec.AttachSettlement(leg.ID)

		if h, err = s.ledger.Mint(ctx, repos, p, rec); err != nil {
			return err
		}
		if err := repos.Settlements.Create(ctx, leg); err != nil {
			return errors.Wrap(err, "create settlement")
		}
		p.UpdatedAt = now
		return repos.Pools.Update(ctx, p)
	})
	if err != nil {
		return nil, err
	}

	s.log.Infow("Tokens distributed", "pool_id", poolID, "to", to, "amount", amount, "actor", actor)
	s.after(ctx, ledger.EventTokensDistributed, rec, actor)

	outcome := s.settler.Dispatch(ctx, leg)
	rec.SettlementStatus, rec.SettlementTxRef = outcome.Status, outcome.TxRef
	return &Result{To: h, Transfer: &rec, Settlement: outcome}, nil
}

// StakeResult is returned by Stake and Unstake
type StakeResult struct {
	Holding *holding.Holding     `json:"holding"`
	Stake   *holding.StakeRecord `json:"stake"`
}

// Stake locks amount available tokens for durationDays
func (s *Service) Stake(ctx context.Context, holderID string, poolID uuid.UUID, amount decimal.Decimal, durationDays int) (*StakeResult, error) {
	if err := wholeTokens(amount); err != nil {
		return nil, err
	}
	if durationDays <= 0 {
		return nil, errors.NewValidationError("duration_days", "must be positive", durationDays)
	}

	var res StakeResult
	err := s.ledger.Atomic(ctx, "stake", func(ctx context.Context, repos ledger.Repositories) error {
		p, err := repos.Pools.GetByID(ctx, poolID)
		if err != nil {
			return err
		}
		res.Holding, res.Stake, err = s.ledger.Stake(ctx, repos, p, holderID, amount, durationDays, time.Now().UTC())
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Infow("Tokens staked", "pool_id", poolID, "holder_id", holderID, "amount", amount, "days", durationDays)
	s.invalidate(ctx, poolID)
	return &res, nil
}

// Unstake releases an active stake, also before its unlock date
func (s *Service) Unstake(ctx context.Context, holderID string, poolID, stakeID uuid.UUID) (*StakeResult, error) {
	var res StakeResult
	err := s.ledger.Atomic(ctx, "unstake", func(ctx context.Context, repos ledger.Repositories) error {
		p, err := repos.Pools.GetByID(ctx, poolID)
		if err != nil {
			return err
		}
		res.Holding, res.Stake, err = s.ledger.Unstake(ctx, repos, p, holderID, stakeID, time.Now().UTC())
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Infow("Tokens unstaked", "pool_id", poolID, "holder_id", holderID, "stake_id", stakeID)
	s.invalidate(ctx, poolID)
	return &res, nil
}

func (s *Service) activePool(ctx context.Context, repos ledger.Repositories, poolID uuid.UUID) (*pool.Pool, error) {
	p, err := repos.Pools.GetByID(ctx, poolID)
	if err != nil {
		return nil, err
	}
	if p.Status != pool.PoolActive {
		return nil, errors.Wrapf(errors.ErrInvalidState, "pool %s is %s", p.ID, p.Status)
	}
	return p, nil
}

func (s *Service) after(ctx context.Context, t ledger.EventType, rec holding.TransferRecord, actor string) {
	e := ledger.NewEvent(t, rec.PoolID, rec.To, rec.ID, rec.Amount)
	e.Actor = actor
	e.Detail = rec.From
	if err := s.events.Publish(ctx, e); err != nil {
		s.log.Warnw("Failed to publish transfer event", "transfer_id", rec.ID, "error", err)
	}
	s.invalidate(ctx, rec.PoolID)
}

func (s *Service) invalidate(ctx context.Context, poolID uuid.UUID) {
	if err := poolsvc.InvalidateStats(ctx, s.cache, poolID); err != nil {
		s.log.Warnw("Failed to invalidate pool stats", "pool_id", poolID, "error", err)
	}
}

// wholeTokens rejects non-positive and fractional token amounts
func wholeTokens(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return errors.NewValidationError("amount", "must be positive", amount)
	}
	if !amount.Equal(amount.Floor()) {
		return errors.NewValidationError("amount", "must be a whole number of tokens", amount)
	}
	return nil
}
