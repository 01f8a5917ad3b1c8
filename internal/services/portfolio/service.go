package portfolio

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"rwaledger/internal/domain/holding"
	"rwaledger/internal/domain/ledger"
	"rwaledger/internal/domain/pool"
	"rwaledger/pkg/errors"
	"rwaledger/pkg/logger"
)

var hundred = decimal.NewFromInt(100)

// Service builds read-only views of a holder's positions
type Service struct {
	tx  ledger.Transactor
	log *logger.Logger
}

// NewService creates a new portfolio service
func NewService(tx ledger.Transactor, log *logger.Logger) *Service {
	return &Service{tx: tx, log: log.Component("portfolio_service")}
}

// Position is one holding valued at its pool's current price
type Position struct {
	PoolID     uuid.UUID       `json:"pool_id"`
	PoolName   string          `json:"pool_name"`
	PoolSymbol string          `json:"pool_symbol"`
	PoolStatus pool.PoolStatus `json:"pool_status"`
	Holding    holding.Holding `json:"holding"`
}

// Summary aggregates every position of one holder
type Summary struct {
	HolderID string `json:"holder_id"`

	TotalInvested decimal.Decimal `json:"total_invested"`
	CurrentValue  decimal.Decimal `json:"current_value"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl"`
	TotalPnL      decimal.Decimal `json:"total_pnl"`
	ROI           decimal.Decimal `json:"roi"`

	AccruedDividends   decimal.Decimal `json:"accrued_dividends"`
	ClaimedDividends   decimal.Decimal `json:"claimed_dividends"`
	UnclaimedDividends decimal.Decimal `json:"unclaimed_dividends"`

	PoolCount       int        `json:"pool_count"`
	ActivePositions int        `json:"active_positions"`
	Positions       []Position `json:"positions"`
}

// GetSummary returns the holder's portfolio. Holdings are valued at the pools'
// current prices without persisting the revaluation.
func (s *Service) GetSummary(ctx context.Context, holderID string) (*Summary, error) {
	holderID = strings.TrimSpace(holderID)
	if holderID == "" {
		return nil, errors.NewValidationError("holder_id", "required", holderID)
	}

	repos := s.tx.Repos()
	hs, err := repos.Holdings.ListByHolder(ctx, holderID)
	if err != nil {
		return nil, errors.Wrap(err, "list holdings")
	}

	sum := &Summary{
		HolderID:           holderID,
		TotalInvested:      decimal.Zero,
		CurrentValue:       decimal.Zero,
		UnrealizedPnL:      decimal.Zero,
		RealizedPnL:        decimal.Zero,
		TotalPnL:           decimal.Zero,
		ROI:                decimal.Zero,
		AccruedDividends:   decimal.Zero,
		ClaimedDividends:   decimal.Zero,
		UnclaimedDividends: decimal.Zero,
		Positions:          make([]Position, 0, len(hs)),
	}

	for _, h := range hs {
		p, err := repos.Pools.GetByID(ctx, h.PoolID)
		if err != nil {
			return nil, errors.Wrapf(err, "load pool %s", h.PoolID)
		}
		h.Revalue(p.TokenPrice)

		sum.TotalInvested = sum.TotalInvested.Add(h.TotalInvested)
		sum.CurrentValue = sum.CurrentValue.Add(h.CurrentValue)
		sum.UnrealizedPnL = sum.UnrealizedPnL.Add(h.UnrealizedPnL)
		sum.RealizedPnL = sum.RealizedPnL.Add(h.RealizedPnL)
		sum.AccruedDividends = sum.AccruedDividends.Add(h.AccruedDividends)
		sum.ClaimedDividends = sum.ClaimedDividends.Add(h.ClaimedDividends)
		sum.UnclaimedDividends = sum.UnclaimedDividends.Add(h.UnclaimedDividends)
		if h.IsActive {
			sum.ActivePositions++
		}

		sum.Positions = append(sum.Positions, Position{
			PoolID:     p.ID,
			PoolName:   p.Name,
			PoolSymbol: p.Symbol,
			PoolStatus: p.Status,
			Holding:    *h,
		})
	}

	sum.PoolCount = len(sum.Positions)
	sum.TotalPnL = sum.UnrealizedPnL.Add(sum.RealizedPnL)
	if sum.TotalInvested.IsPositive() {
		sum.ROI = sum.TotalPnL.Div(sum.TotalInvested).Mul(hundred).Round(4)
	}
	return sum, nil
}

// HoldingDetail is one holding with its history
type HoldingDetail struct {
	Holding   *holding.Holding          `json:"holding"`
	Transfers []*holding.TransferRecord `json:"transfers"`
	Dividends []*holding.DividendRecord `json:"dividends"`
	Stakes    []*holding.StakeRecord    `json:"stakes"`
}

// GetHolding returns the holder's position in one pool with its history,
// newest transfers first, up to limit transfers
func (s *Service) GetHolding(ctx context.Context, holderID string, poolID uuid.UUID, limit int) (*HoldingDetail, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	repos := s.tx.Repos()

	h, err := repos.Holdings.GetByHolderAndPool(ctx, holderID, poolID)
	if err != nil {
		return nil, err
	}
	transfers, err := repos.Holdings.ListTransfers(ctx, h.ID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list transfers")
	}
	dividends, err := repos.Holdings.ListDividends(ctx, h.ID)
	if err != nil {
		return nil, errors.Wrap(err, "list dividends")
	}
	stakes, err := repos.Holdings.ListStakes(ctx, h.ID)
	if err != nil {
		return nil, errors.Wrap(err, "list stakes")
	}

	return &HoldingDetail{Holding: h, Transfers: transfers, Dividends: dividends, Stakes: stakes}, nil
}
