package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"rwaledger/internal/domain/holding"
	"rwaledger/internal/domain/settlement"
	"rwaledger/pkg/errors"
)

type holdingRepository struct {
	s *session
}

// Create inserts a holding; (holder, pool) is unique
func (r *holdingRepository) Create(ctx context.Context, h *holding.Holding) error {
	return r.s.with(func(st *state) error {
		key := holdingKey{h.HolderID, h.PoolID}
		if _, ok := st.byHolder[key]; ok {
			return errors.Wrapf(errors.ErrAlreadyExists, "holding %s/%s", h.HolderID, h.PoolID)
		}
		st.holdings[h.ID] = *h
		st.byHolder[key] = h.ID
		return nil
	})
}

// GetByID retrieves a holding by ID
func (r *holdingRepository) GetByID(ctx context.Context, id uuid.UUID) (*holding.Holding, error) {
	var out *holding.Holding
	err := r.s.with(func(st *state) error {
		h, ok := st.holdings[id]
		if !ok {
			return errors.Wrapf(errors.ErrHoldingNotFound, "holding %s", id)
		}
		out = &h
		return nil
	})
	return out, err
}

// GetByHolderAndPool retrieves the holding for (holderID, poolID)
func (r *holdingRepository) GetByHolderAndPool(ctx context.Context, holderID string, poolID uuid.UUID) (*holding.Holding, error) {
	var out *holding.Holding
	err := r.s.with(func(st *state) error {
		id, ok := st.byHolder[holdingKey{holderID, poolID}]
		if !ok {
			return errors.Wrapf(errors.ErrHoldingNotFound, "holding %s/%s", holderID, poolID)
		}
		h := st.holdings[id]
		out = &h
		return nil
	})
	return out, err
}

// ListByPool returns every holding in a pool
func (r *holdingRepository) ListByPool(ctx context.Context, poolID uuid.UUID) ([]*holding.Holding, error) {
	return r.list(func(h *holding.Holding) bool { return h.PoolID == poolID })
}

// ListByHolder returns every holding of a holder
func (r *holdingRepository) ListByHolder(ctx context.Context, holderID string) ([]*holding.Holding, error) {
	return r.list(func(h *holding.Holding) bool { return h.HolderID == holderID })
}

func (r *holdingRepository) list(match func(h *holding.Holding) bool) ([]*holding.Holding, error) {
	var out []*holding.Holding
	err := r.s.with(func(st *state) error {
		for _, h := range st.holdings {
			h := h
			if match(&h) {
				out = append(out, &h)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, err
}

// Update stores h if its version is current
func (r *holdingRepository) Update(ctx context.Context, h *holding.Holding) error {
	return r.s.with(func(st *state) error {
		cur, ok := st.holdings[h.ID]
		if !ok {
			return errors.Wrapf(errors.ErrHoldingNotFound, "holding %s", h.ID)
		}
		if cur.Version != h.Version {
			return errors.Wrapf(errors.ErrVersionConflict, "holding %s at version %d", h.ID, h.Version)
		}
		next := *h
		next.Version++
		st.holdings[h.ID] = next
		h.Version = next.Version
		return nil
	})
}

// AppendTransfer appends a history record
func (r *holdingRepository) AppendTransfer(ctx context.Context, rec *holding.TransferRecord) error {
	return r.s.with(func(st *state) error {
		for _, t := range st.transfers {
			if t.ID == rec.ID && t.HoldingID == rec.HoldingID {
				return errors.Wrapf(errors.ErrAlreadyExists, "transfer %s", rec.ID)
			}
		}
		st.transfers = append(st.transfers, *rec)
		return nil
	})
}

// ListTransfers returns newest records first
func (r *holdingRepository) ListTransfers(ctx context.Context, holdingID uuid.UUID, limit int) ([]*holding.TransferRecord, error) {
	var out []*holding.TransferRecord
	err := r.s.with(func(st *state) error {
		for i := len(st.transfers) - 1; i >= 0; i-- {
			if st.transfers[i].HoldingID != holdingID {
				continue
			}
			t := st.transfers[i]
			out = append(out, &t)
			if limit > 0 && len(out) == limit {
				break
			}
		}
		return nil
	})
	return out, err
}

// RecordTransferSettlement writes the settlement outcome onto linked records
func (r *holdingRepository) RecordTransferSettlement(ctx context.Context, settlementID uuid.UUID, status settlement.Status, txRef string) error {
	return r.s.with(func(st *state) error {
		for i := range st.transfers {
			t := &st.transfers[i]
			if t.SettlementID != nil && *t.SettlementID == settlementID {
				t.SettlementStatus = status
				t.SettlementTxRef = txRef
			}
		}
		return nil
	})
}

// AppendDividend records an accrual, once per (holding, distribution)
func (r *holdingRepository) AppendDividend(ctx context.Context, rec *holding.DividendRecord) error {
	return r.s.with(func(st *state) error {
		key := dividendKey{rec.HoldingID, rec.DistributionID}
		if _, ok := st.dividends[key]; ok {
			return errors.Wrapf(errors.ErrAlreadyExists, "dividend %s for holding %s", rec.DistributionID, rec.HoldingID)
		}
		st.dividends[key] = *rec
		return nil
	})
}

// GetDividend retrieves the accrual for a distribution
func (r *holdingRepository) GetDividend(ctx context.Context, holdingID, distributionID uuid.UUID) (*holding.DividendRecord, error) {
	var out *holding.DividendRecord
	err := r.s.with(func(st *state) error {
		rec, ok := st.dividends[dividendKey{holdingID, distributionID}]
		if !ok {
			return errors.Wrapf(errors.ErrNotFound, "dividend %s for holding %s", distributionID, holdingID)
		}
		out = &rec
		return nil
	})
	return out, err
}

// MarkDividendClaimed flips an accrued dividend to claimed
func (r *holdingRepository) MarkDividendClaimed(ctx context.Context, holdingID, distributionID uuid.UUID, at time.Time) error {
	return r.s.with(func(st *state) error {
		key := dividendKey{holdingID, distributionID}
		rec, ok := st.dividends[key]
		if !ok {
			return errors.Wrapf(errors.ErrNotFound, "dividend %s for holding %s", distributionID, holdingID)
		}
		if rec.Status == holding.DividendClaimed {
			return errors.Wrapf(errors.ErrAlreadyClaimed, "dividend %s for holding %s", distributionID, holdingID)
		}
		rec.Status = holding.DividendClaimed
		rec.ClaimedAt = &at
		st.dividends[key] = rec
		return nil
	})
}

// ListDividends returns accruals oldest first
func (r *holdingRepository) ListDividends(ctx context.Context, holdingID uuid.UUID) ([]*holding.DividendRecord, error) {
	var out []*holding.DividendRecord
	err := r.s.with(func(st *state) error {
		for k, rec := range st.dividends {
			if k.holdingID == holdingID {
				rec := rec
				out = append(out, &rec)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].AccruedAt.Before(out[j].AccruedAt) })
	return out, err
}

// CreateStake inserts a stake record
func (r *holdingRepository) CreateStake(ctx context.Context, s *holding.StakeRecord) error {
	return r.s.with(func(st *state) error {
		if _, ok := st.stakes[s.ID]; ok {
			return errors.Wrapf(errors.ErrAlreadyExists, "stake %s", s.ID)
		}
		st.stakes[s.ID] = *s
		return nil
	})
}

// ListStakes returns a holding's stakes oldest first
func (r *holdingRepository) ListStakes(ctx context.Context, holdingID uuid.UUID) ([]*holding.StakeRecord, error) {
	var out []*holding.StakeRecord
	err := r.s.with(func(st *state) error {
		for _, s := range st.stakes {
			if s.HoldingID == holdingID {
				s := s
				out = append(out, &s)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].StakedAt.Before(out[j].StakedAt) })
	return out, err
}

// CloseStake marks an active stake as unstaked
func (r *holdingRepository) CloseStake(ctx context.Context, holdingID, stakeID uuid.UUID, at time.Time) (*holding.StakeRecord, error) {
	var out *holding.StakeRecord
	err := r.s.with(func(st *state) error {
		s, ok := st.stakes[stakeID]
		if !ok || s.HoldingID != holdingID || s.Status != holding.StakeActive {
			return errors.Wrapf(errors.ErrNotActiveOrNotFound, "stake %s", stakeID)
		}
		s.Status = holding.StakeUnstaked
		s.UnstakedAt = &at
		st.stakes[stakeID] = s
		out = &s
		return nil
	})
	return out, err
}
