package investment

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"rwaledger/internal/domain/holding"
	"rwaledger/internal/domain/ledger"
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

// Service processes primary investments into pools
type Service struct {
	ledger  *holdings.Ledger
	settler Settler
	cache   ledger.Cache
	events  ledger.EventPublisher
	log     *logger.Logger
}

// NewService creates a new investment service
func NewService(l *holdings.Ledger, settler Settler, cache ledger.Cache, events ledger.EventPublisher, log *logger.Logger) *Service {
	return &Service{
		ledger:  l,
		settler: settler,
		cache:   cache,
		events:  events,
		log:     log.Component("investment_service"),
	}
}

// Result is the dual-track outcome of an investment: the committed ledger
// state plus the state of its token settlement leg
type Result struct {
	Holding    *holding.Holding        `json:"holding"`
	Transfer   *holding.TransferRecord `json:"transfer"`
	Tokens     decimal.Decimal         `json:"tokens"`
	Settlement settlement.Outcome      `json:"settlement"`
}

// Invest buys floor(cash / price) tokens of an ACTIVE pool for investorID.
// The holding, pool aggregates, transfer record and pending settlement leg
// commit together; the settlement leg is then submitted and its failure
// does not undo the investment.
func (s *Service) Invest(ctx context.Context, poolID uuid.UUID, investorID string, cash decimal.Decimal) (res *Result, err error) {
	start := time.Now()
	defer func() { metrics.RecordOperation("invest", errors.CodeOf(err), time.Since(start)) }()

	investorID = strings.TrimSpace(investorID)
	if investorID == "" {
		return nil, errors.NewValidationError("investor_id", "required", investorID)
	}
	if !cash.IsPositive() {
		return nil, errors.NewValidationError("cash_amount", "must be positive", cash)
	}

	var (
		h   *holding.Holding
		rec holding.TransferRecord
		leg *settlement.Settlement
	)
	err = s.ledger.Atomic(ctx, "invest", func(ctx context.Context, repos ledger.Repositories) error {
		p, err := repos.Pools.GetByID(ctx, poolID)
		if err != nil {
			return err
		}
		if !p.Status.AcceptsInvestment() {
			return errors.Wrapf(errors.ErrInvalidState, "pool %s is %s", p.ID, p.Status)
		}
		if cash.LessThan(p.MinimumInvestment) {
			return &errors.ValidationError{
				Field:   "cash_amount",
				Message: "below minimum investment of " + p.MinimumInvestment.String(),
				Value:   cash,
				Err:     errors.ErrBelowMinimum,
			}
		}
		tokens := p.TokensFor(cash)
		if tokens.IsZero() {
			return errors.Wrapf(errors.ErrAmountTooSmall, "%s buys no token at price %s", cash, p.TokenPrice)
		}

		now := time.Now().UTC()
		rec = holding.NewTransferRecord(p.ID, holding.TransferInvestment, "", investorID, tokens, p.TokenPrice, cash, now)
		leg = settlement.NewTokenTransfer(settlement.PurposeInvestment, p.ID, investorID, p.ExternalTokenRef, "", investorID, tokens, rec.ID)
		rec.AttachSettlement(leg.ID)

		if h, err = s.ledger.Invest(ctx, repos, p, rec); err != nil {
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

	s.log.Infow("Investment recorded",
		"pool_id", poolID,
		"investor_id", investorID,
		"tokens", rec.Amount,
		"cash", cash,
	)
	metrics.InvestedAmount.WithLabelValues(poolID.String()).Add(cash.InexactFloat64())
	s.publish(ctx, rec)
	if err := poolsvc.InvalidateStats(ctx, s.cache, poolID); err != nil {
		s.log.Warnw("Failed to invalidate pool stats", "pool_id", poolID, "error", err)
	}

	outcome := s.settler.Dispatch(ctx, leg)
	rec.SettlementStatus = outcome.Status
	rec.SettlementTxRef = outcome.TxRef

	return &Result{
		Holding:    h,
		Transfer:   rec.For(h.ID),
		Tokens:     rec.Amount,
		Settlement: outcome,
	}, nil
}

func (s *Service) publish(ctx context.Context, rec holding.TransferRecord) {
	e := ledger.NewEvent(ledger.EventInvestmentRecorded, rec.PoolID, rec.To, rec.ID, rec.Amount)
	e.Detail = rec.CashAmount.String()
	if err := s.events.Publish(ctx, e); err != nil {
		s.log.Warnw("Failed to publish investment event", "transfer_id", rec.ID, "error", err)
	}
}
