package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"rwaledger/internal/domain/holding"
	"rwaledger/internal/domain/settlement"
	"rwaledger/pkg/errors"
)

// Compile-time check
var _ holding.Repository = (*HoldingRepository)(nil)

// HoldingRepository implements holding.Repository using sqlx
type HoldingRepository struct {
	db DBTX
}

// NewHoldingRepository creates a new holding repository
func NewHoldingRepository(db DBTX) *HoldingRepository {
	return &HoldingRepository{db: db}
}

// Create inserts a new holding
func (r *HoldingRepository) Create(ctx context.Context, h *holding.Holding) error {
	query := `
		INSERT INTO holdings (
			id, holder_id, pool_id,
			total_tokens, available_tokens, locked_tokens,
			total_invested, average_buy_price,
			current_price, current_value, unrealized_pnl, realized_pnl, total_pnl, roi,
			accrued_dividends, claimed_dividends, unclaimed_dividends,
			first_investment_date, last_activity_at, is_active,
			version, created_at, updated_at
		) VALUES (
			:id, :holder_id, :pool_id,
			:total_tokens, :available_tokens, :locked_tokens,
			:total_invested, :average_buy_price,
			:current_price, :current_value, :unrealized_pnl, :realized_pnl, :total_pnl, :roi,
			:accrued_dividends, :claimed_dividends, :unclaimed_dividends,
			:first_investment_date, :last_activity_at, :is_active,
			:version, :created_at, :updated_at
		)`

	_, err := r.db.NamedExecContext(ctx, query, h)
	return mapInsertErr(err, "holding")
}

// GetByID retrieves a holding by ID
func (r *HoldingRepository) GetByID(ctx context.Context, id uuid.UUID) (*holding.Holding, error) {
	var h holding.Holding

	err := r.db.GetContext(ctx, &h, `SELECT * FROM holdings WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(errors.ErrHoldingNotFound, "holding %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get holding")
	}

	return &h, nil
}

// GetByHolderAndPool retrieves the holding for (holderID, poolID)
func (r *HoldingRepository) GetByHolderAndPool(ctx context.Context, holderID string, poolID uuid.UUID) (*holding.Holding, error) {
	var h holding.Holding

	query := `SELECT * FROM holdings WHERE holder_id = $1 AND pool_id = $2`

	err := r.db.GetContext(ctx, &h, query, holderID, poolID)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(errors.ErrHoldingNotFound, "holding %s/%s", holderID, poolID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get holding")
	}

	return &h, nil
}

// ListByPool returns every holding in a pool
func (r *HoldingRepository) ListByPool(ctx context.Context, poolID uuid.UUID) ([]*holding.Holding, error) {
	var holdings []*holding.Holding

	query := `SELECT * FROM holdings WHERE pool_id = $1 ORDER BY created_at`

	if err := r.db.SelectContext(ctx, &holdings, query, poolID); err != nil {
		return nil, errors.Wrap(err, "failed to list pool holdings")
	}

	return holdings, nil
}

// ListByHolder returns every holding of a holder
func (r *HoldingRepository) ListByHolder(ctx context.Context, holderID string) ([]*holding.Holding, error) {
	var holdings []*holding.Holding

	query := `SELECT * FROM holdings WHERE holder_id = $1 ORDER BY created_at`

	if err := r.db.SelectContext(ctx, &holdings, query, holderID); err != nil {
		return nil, errors.Wrap(err, "failed to list holder holdings")
	}

	return holdings, nil
}

// Update persists h when h.Version is current and bumps the version
func (r *HoldingRepository) Update(ctx context.Context, h *holding.Holding) error {
	query := `
		UPDATE holdings SET
			total_tokens = :total_tokens,
			available_tokens = :available_tokens,
			locked_tokens = :locked_tokens,
			total_invested = :total_invested,
			average_buy_price = :average_buy_price,
			current_price = :current_price,
			current_value = :current_value,
			unrealized_pnl = :unrealized_pnl,
			realized_pnl = :realized_pnl,
			total_pnl = :total_pnl,
			roi = :roi,
			accrued_dividends = :accrued_dividends,
			claimed_dividends = :claimed_dividends,
			unclaimed_dividends = :unclaimed_dividends,
			first_investment_date = :first_investment_date,
			last_activity_at = :last_activity_at,
			is_active = :is_active,
			updated_at = :updated_at,
			version = version + 1
		WHERE id = :id AND version = :version`

	result, err := r.db.NamedExecContext(ctx, query, h)
	if err != nil {
		return errors.Wrap(err, "failed to update holding")
	}

	if err := versionedUpdate(ctx, r.db, "holdings", h.ID, result, errors.Wrapf(errors.ErrHoldingNotFound, "holding %s", h.ID)); err != nil {
		return err
	}
	h.Version++
	return nil
}

// AppendTransfer appends a history record
func (r *HoldingRepository) AppendTransfer(ctx context.Context, rec *holding.TransferRecord) error {
	query := `
		INSERT INTO holding_transfers (
			id, holding_id, pool_id, type,
			from_holder, to_holder, amount, price, cash_amount,
			settlement_id, settlement_tx_ref, settlement_status,
			created_at
		) VALUES (
			:id, :holding_id, :pool_id, :type,
			:from_holder, :to_holder, :amount, :price, :cash_amount,
			:settlement_id, :settlement_tx_ref, :settlement_status,
			:created_at
		)`

	_, err := r.db.NamedExecContext(ctx, query, rec)
	return mapInsertErr(err, "transfer record")
}

// ListTransfers returns newest records first
func (r *HoldingRepository) ListTransfers(ctx context.Context, holdingID uuid.UUID, limit int) ([]*holding.TransferRecord, error) {
	var records []*holding.TransferRecord

	query := `
		SELECT * FROM holding_transfers
		WHERE holding_id = $1
		ORDER BY created_at DESC
		LIMIT NULLIF($2, 0)`

	if err := r.db.SelectContext(ctx, &records, query, holdingID, limit); err != nil {
		return nil, errors.Wrap(err, "failed to list transfers")
	}

	return records, nil
}

// RecordTransferSettlement writes the settlement outcome onto linked records
func (r *HoldingRepository) RecordTransferSettlement(ctx context.Context, settlementID uuid.UUID, status settlement.Status, txRef string) error {
	query := `
		UPDATE holding_transfers
		SET settlement_status = $2, settlement_tx_ref = $3
		WHERE settlement_id = $1`

	if _, err := r.db.ExecContext(ctx, query, settlementID, status, txRef); err != nil {
		return errors.Wrap(err, "failed to record transfer settlement")
	}
	return nil
}

// AppendDividend records an accrual, once per (holding, distribution). A
// repeat is reported as ErrAlreadyExists without raising a unique violation,
// so the surrounding transaction stays usable.
func (r *HoldingRepository) AppendDividend(ctx context.Context, rec *holding.DividendRecord) error {
	query := `
		INSERT INTO holding_dividends (
			id, holding_id, distribution_id, amount, status, accrued_at, claimed_at
		) VALUES (
			:id, :holding_id, :distribution_id, :amount, :status, :accrued_at, :claimed_at
		)
		ON CONFLICT (holding_id, distribution_id) DO NOTHING`

	result, err := r.db.NamedExecContext(ctx, query, rec)
	if err != nil {
		return mapInsertErr(err, "dividend record")
	}
	return expectOne(result, errors.Wrapf(errors.ErrAlreadyExists, "dividend %s for holding %s", rec.DistributionID, rec.HoldingID))
}

// GetDividend retrieves the accrual for a distribution
func (r *HoldingRepository) GetDividend(ctx context.Context, holdingID, distributionID uuid.UUID) (*holding.DividendRecord, error) {
	var rec holding.DividendRecord

	query := `SELECT * FROM holding_dividends WHERE holding_id = $1 AND distribution_id = $2`

	err := r.db.GetContext(ctx, &rec, query, holdingID, distributionID)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(errors.ErrNotFound, "dividend %s for holding %s", distributionID, holdingID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get dividend")
	}

	return &rec, nil
}

// MarkDividendClaimed flips an accrued dividend to claimed
func (r *HoldingRepository) MarkDividendClaimed(ctx context.Context, holdingID, distributionID uuid.UUID, at time.Time) error {
	query := `
		UPDATE holding_dividends
		SET status = $3, claimed_at = $4
		WHERE holding_id = $1 AND distribution_id = $2 AND status = $5`

	result, err := r.db.ExecContext(ctx, query, holdingID, distributionID, holding.DividendClaimed, at, holding.DividendAccrued)
	if err != nil {
		return errors.Wrap(err, "failed to mark dividend claimed")
	}

	err = expectOne(result, errors.ErrAlreadyClaimed)
	if !errors.Is(err, errors.ErrAlreadyClaimed) {
		return err
	}
	if _, err := r.GetDividend(ctx, holdingID, distributionID); err != nil {
		return err
	}
	return errors.Wrapf(errors.ErrAlreadyClaimed, "dividend %s for holding %s", distributionID, holdingID)
}

// ListDividends returns accruals oldest first
func (r *HoldingRepository) ListDividends(ctx context.Context, holdingID uuid.UUID) ([]*holding.DividendRecord, error) {
	var records []*holding.DividendRecord

	query := `SELECT * FROM holding_dividends WHERE holding_id = $1 ORDER BY accrued_at`

	if err := r.db.SelectContext(ctx, &records, query, holdingID); err != nil {
		return nil, errors.Wrap(err, "failed to list dividends")
	}

	return records, nil
}

// CreateStake inserts a stake record
func (r *HoldingRepository) CreateStake(ctx context.Context, s *holding.StakeRecord) error {
	query := `
		INSERT INTO holding_stakes (
			id, holding_id, amount, duration_days, status, staked_at, unlocks_at, unstaked_at
		) VALUES (
			:id, :holding_id, :amount, :duration_days, :status, :staked_at, :unlocks_at, :unstaked_at
		)`

	_, err := r.db.NamedExecContext(ctx, query, s)
	return mapInsertErr(err, "stake record")
}

// ListStakes returns a holding's stakes oldest first
func (r *HoldingRepository) ListStakes(ctx context.Context, holdingID uuid.UUID) ([]*holding.StakeRecord, error) {
	var stakes []*holding.StakeRecord

	query := `SELECT * FROM holding_stakes WHERE holding_id = $1 ORDER BY staked_at`

	if err := r.db.SelectContext(ctx, &stakes, query, holdingID); err != nil {
		return nil, errors.Wrap(err, "failed to list stakes")
	}

	return stakes, nil
}

// CloseStake marks an active stake as unstaked
func (r *HoldingRepository) CloseStake(ctx context.Context, holdingID, stakeID uuid.UUID, at time.Time) (*holding.StakeRecord, error) {
	var s holding.StakeRecord

	query := `
		UPDATE holding_stakes
		SET status = $3, unstaked_at = $4
		WHERE id = $1 AND holding_id = $2 AND status = $5
		RETURNING *`

	err := r.db.GetContext(ctx, &s, query, stakeID, holdingID, holding.StakeUnstaked, at, holding.StakeActive)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(errors.ErrNotActiveOrNotFound, "stake %s", stakeID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to close stake")
	}

	return &s, nil
}
